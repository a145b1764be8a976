package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/bnema/primedictation-export/internal/domain"
)

type DestinationStatus struct {
	Provider  domain.Provider
	Selected  bool
	SignedIn  bool
	AccountID string
	Folder    string
	// Detail explains a missing session or an unreadable selection.
	Detail string
}

type Status struct {
	Selected     domain.Provider
	Destinations []DestinationStatus
	Recent       []domain.ExportRecord
}

// statusReporter is implemented by exporters that can describe themselves
// without network side effects beyond a silent sign-in.
type statusReporter interface {
	Status(ctx context.Context) DestinationStatus
}

// Status reports the session and saved folder of the destination. It never
// prompts.
func (d *Destination) Status(ctx context.Context) DestinationStatus {
	status := DestinationStatus{Provider: d.profile.Provider}

	session, _, err := d.session.EnsureAuthorized(ctx, false)
	switch {
	case err == nil:
		status.SignedIn = true
		status.AccountID = session.AccountID
	case errors.Is(err, domain.ErrInteractionRequired):
		status.Detail = "not signed in"
	default:
		status.Detail = err.Error()
	}

	selection, err := d.Selection(ctx)
	if err != nil {
		status.Detail = fmt.Sprintf("selection unreadable: %v", err)
		return status
	}
	status.Folder = selection.Display(d.profile)
	return status
}

func (e *EmailExporter) Status(ctx context.Context) DestinationStatus {
	status := DestinationStatus{Provider: domain.ProviderEmail, Folder: "presigned upload"}
	if _, err := e.deps.IDTokens.IDToken(ctx, false); err != nil {
		status.Detail = "identity sign-in required"
		return status
	}
	status.SignedIn = true
	return status
}

// Status collects every destination's status and up to recent history rows.
func (s *DestinationSelector) Status(ctx context.Context, recent int) (Status, error) {
	selected, err := s.Selected(ctx)
	if err != nil {
		return Status{}, err
	}

	out := Status{Selected: selected}
	for _, provider := range s.Providers() {
		status := DestinationStatus{Provider: provider}
		if reporter, ok := s.exporters[provider].(statusReporter); ok {
			status = reporter.Status(ctx)
		}
		status.Selected = provider == selected
		out.Destinations = append(out.Destinations, status)
	}

	if s.history != nil && recent > 0 {
		records, err := s.history.Recent(ctx, recent)
		if err != nil {
			return Status{}, fmt.Errorf("load export history: %w", err)
		}
		out.Recent = records
	}
	return out, nil
}
