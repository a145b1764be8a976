package application

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bnema/primedictation-export/internal/domain"
)

// Alert is the single user-visible report of a finished export.
type Alert struct {
	Provider domain.Provider
	Status   domain.ExportStatus
	Title    string
	Message  string
}

// AlertQueue delivers alerts immediately while in the foreground and holds
// them, in order, while in the background.
type AlertQueue struct {
	deliver func(Alert)

	mu         sync.Mutex
	background bool
	pending    []Alert
}

func NewAlertQueue(deliver func(Alert)) *AlertQueue {
	if deliver == nil {
		deliver = func(Alert) {}
	}
	return &AlertQueue{deliver: deliver}
}

func (q *AlertQueue) Post(alert Alert) {
	q.mu.Lock()
	if q.background {
		q.pending = append(q.pending, alert)
		q.mu.Unlock()
		return
	}
	q.mu.Unlock()
	q.deliver(alert)
}

func (q *AlertQueue) Background() {
	q.mu.Lock()
	q.background = true
	q.mu.Unlock()
}

// Foreground delivers the alerts held while in the background.
func (q *AlertQueue) Foreground() {
	q.mu.Lock()
	q.background = false
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, alert := range pending {
		q.deliver(alert)
	}
}

func (q *AlertQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// AlertFor builds the consolidated alert of an export result.
func AlertFor(result domain.ExportResult, err error) Alert {
	provider := result.Job.Provider
	alert := Alert{Provider: provider, Status: result.Status}
	name := provider.DisplayName()

	switch result.Status {
	case domain.ExportStatusSucceeded:
		alert.Title = "Export complete"
		alert.Message = fmt.Sprintf("Sent %s to %s.", result.Job.FileBaseName, name)
		if result.Destination.FolderID != "" && provider.IsCloud() {
			if profile, profileErr := domain.ProfileFor(provider); profileErr == nil {
				alert.Message = fmt.Sprintf("Sent %s to %s.", result.Job.FileBaseName, result.Destination.Display(profile))
			}
		}
	case domain.ExportStatusPartial:
		alert.Title = "Export partially complete"
		alert.Message = "The recording was sent but the transcript was not. Try sending again."
	case domain.ExportStatusCancelled:
		alert.Title = "Export cancelled"
		alert.Message = fmt.Sprintf("Sign in to %s to send recordings.", name)
	default:
		alert.Title = "Export failed"
		alert.Message = FailureMessage(provider, err)
	}
	return alert
}

// FailureMessage turns an export error into an actionable sentence.
func FailureMessage(provider domain.Provider, err error) string {
	name := provider.DisplayName()
	switch {
	case err == nil:
		return "The export did not finish."
	case domain.IsTransient(err) || errors.Is(err, domain.ErrTransient):
		return "Check your connection and try again."
	case errors.Is(err, domain.ErrInteractionRequired), errors.Is(err, domain.ErrUnauthorized):
		return fmt.Sprintf("Sign in to %s again and retry.", name)
	case errors.Is(err, domain.ErrProviderFailure):
		return fmt.Sprintf("Unable to sign in to %s. Try again later.", name)
	case errors.Is(err, domain.ErrFolderNotFound), errors.Is(err, domain.ErrAccountMismatch):
		return "Select a different folder and try again."
	case errors.Is(err, domain.ErrInvalidEmail):
		return "Enter a valid email address."
	case errors.Is(err, domain.ErrMissingAudio):
		return "The recording file is missing."
	case errors.Is(err, domain.ErrSessionCreationFailed), errors.Is(err, domain.ErrChunkFailed):
		return fmt.Sprintf("%s stopped the upload. Try again.", name)
	case errors.Is(err, domain.ErrUploadRejected):
		if code, ok := domain.StatusCode(err); ok {
			return fmt.Sprintf("%s rejected the upload (status %d).", name, code)
		}
		return fmt.Sprintf("%s rejected the upload.", name)
	default:
		return fmt.Sprintf("Export failed: %v", err)
	}
}
