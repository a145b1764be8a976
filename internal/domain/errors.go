package domain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

var (
	ErrKeyNotFound     = errors.New("key not found")
	ErrNoDestination   = errors.New("no destination selected")
	ErrNotCloudBacked  = errors.New("destination is not a cloud provider")
	ErrInvalidEmail    = errors.New("invalid email address")
	ErrMissingAudio    = errors.New("recording audio file not found")
	ErrPickerConfirmed = errors.New("folder picker already confirmed")
)

// Authorization outcomes.
var (
	ErrAuthCancelled       = errors.New("authorization cancelled")
	ErrInteractionRequired = errors.New("interactive authorization required")
	ErrProviderFailure     = errors.New("unable to sign in")
	ErrUnauthorized        = errors.New("unauthorized")
)

// Selection resolution.
var (
	ErrFolderNotFound  = errors.New("folder not found")
	ErrAccountMismatch = errors.New("selection belongs to a different account")
)

// Uploads and transcripts.
var (
	ErrTransient              = errors.New("transient network error")
	ErrUploadRejected         = errors.New("upload rejected")
	ErrSessionCreationFailed  = errors.New("upload session creation failed")
	ErrChunkFailed            = errors.New("upload chunk failed")
	ErrTranscriptUploadFailed = errors.New("transcript upload failed")
	ErrTranscriptionTimeout   = errors.New("transcription timed out")
)

// StatusError is a terminal non-2xx response from a provider or service.
type StatusError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Message)
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUploadRejected:
		return true
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	default:
		return false
	}
}

// StatusCode extracts the HTTP status of a wrapped StatusError.
func StatusCode(err error) (int, bool) {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode, true
	}
	return 0, false
}

// IsTransient reports whether err is a network condition worth retrying
// inline: timeouts, dropped connections and unreachable hosts.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.ENETDOWN) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTimeout || dnsErr.IsTemporary
	}
	return false
}
