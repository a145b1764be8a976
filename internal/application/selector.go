package application

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/bnema/primedictation-export/internal/domain"
	"github.com/bnema/primedictation-export/internal/logging"
	"github.com/bnema/primedictation-export/internal/ports"
)

const SelectedDestinationKey = "selected_destination"

type SelectorOptions struct {
	History ports.ExportHistory
	Alerts  *AlertQueue
	Clock   ports.Clock
	Logger  logging.Logger
}

// DestinationSelector owns the user's chosen destination and routes export
// jobs to it. It replaces any process-wide "current destination" state.
type DestinationSelector struct {
	settings  ports.KeyValueStore
	exporters map[domain.Provider]Exporter
	history   ports.ExportHistory
	alerts    *AlertQueue
	clock     ports.Clock
	log       logging.Logger
}

func NewDestinationSelector(settings ports.KeyValueStore, exporters map[domain.Provider]Exporter, opts SelectorOptions) *DestinationSelector {
	if opts.Clock == nil {
		opts.Clock = ports.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Alerts == nil {
		opts.Alerts = NewAlertQueue(nil)
	}
	return &DestinationSelector{
		settings:  settings,
		exporters: exporters,
		history:   opts.History,
		alerts:    opts.Alerts,
		clock:     opts.Clock,
		log:       opts.Logger,
	}
}

// Providers lists the destinations that can be selected.
func (s *DestinationSelector) Providers() []domain.Provider {
	providers := make([]domain.Provider, 0, len(s.exporters))
	for provider := range s.exporters {
		providers = append(providers, provider)
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i] < providers[j] })
	return providers
}

// Selected returns the saved destination, ProviderNone when unset.
func (s *DestinationSelector) Selected(ctx context.Context) (domain.Provider, error) {
	raw, err := s.settings.Get(ctx, SelectedDestinationKey)
	if err != nil {
		if errors.Is(err, domain.ErrKeyNotFound) {
			return domain.ProviderNone, nil
		}
		return "", fmt.Errorf("load selected destination: %w", err)
	}
	provider, err := domain.ParseProvider(raw)
	if err != nil {
		s.log.Warn(ctx, "ignoring unknown saved destination", "value", raw)
		return domain.ProviderNone, nil
	}
	return provider, nil
}

func (s *DestinationSelector) Use(ctx context.Context, provider domain.Provider) error {
	if provider != domain.ProviderNone {
		if _, ok := s.exporters[provider]; !ok {
			return fmt.Errorf("use destination %q: not configured", provider)
		}
	}
	if err := s.settings.Put(ctx, SelectedDestinationKey, string(provider)); err != nil {
		return fmt.Errorf("save selected destination: %w", err)
	}
	return nil
}

// Export runs job on its provider, or on the selected destination when the
// job names none, and records the outcome in the history.
func (s *DestinationSelector) Export(ctx context.Context, job domain.ExportJob) (domain.ExportResult, error) {
	if job.Provider == "" || job.Provider == domain.ProviderNone {
		selected, err := s.Selected(ctx)
		if err != nil {
			return domain.ExportResult{Job: job, Status: domain.ExportStatusFailed}, err
		}
		job.Provider = selected
	}

	exporter, ok := s.exporters[job.Provider]
	if !ok {
		now := s.clock.Now()
		return domain.ExportResult{Job: job, Status: domain.ExportStatusFailed, StartedAt: now, FinishedAt: now}, domain.ErrNoDestination
	}

	result, err := exporter.Export(ctx, job)
	result.Job.Provider = job.Provider
	s.record(ctx, result, err)
	return result, err
}

// Dispatch runs job in the background and posts its alert when done. The
// export is detached from ctx cancellation; the returned channel yields the
// result once.
func (s *DestinationSelector) Dispatch(ctx context.Context, job domain.ExportJob) <-chan domain.ExportResult {
	done := make(chan domain.ExportResult, 1)
	detached := context.WithoutCancel(ctx)

	go func() {
		defer close(done)
		result, err := s.Export(detached, job)
		if err != nil {
			s.log.Warn(detached, "export failed", "provider", string(result.Job.Provider), "status", string(result.Status), "error", err)
		}
		s.alerts.Post(AlertFor(result, err))
		done <- result
	}()

	return done
}

func (s *DestinationSelector) record(ctx context.Context, result domain.ExportResult, exportErr error) {
	if s.history == nil || result.Status == domain.ExportStatusCancelled {
		return
	}

	record := domain.ExportRecord{
		Provider:        result.Job.Provider,
		FileBaseName:    result.Job.FileBaseName,
		DestinationID:   result.Destination.FolderID,
		DestinationName: result.Destination.DisplayName,
		Status:          result.Status,
		StartedAt:       result.StartedAt,
		FinishedAt:      result.FinishedAt,
	}
	if exportErr != nil {
		record.Error = exportErr.Error()
	}
	if record.FinishedAt.IsZero() {
		record.FinishedAt = s.clock.Now()
	}
	if record.StartedAt.IsZero() {
		record.StartedAt = record.FinishedAt
	}

	if err := s.history.Record(ctx, record); err != nil {
		s.log.Warn(ctx, "record export history failed", "error", err)
	}
}
