package domain

import "time"

type AuthOutcome int

const (
	AuthOutcomeAlreadyAuthenticated AuthOutcome = iota + 1
	AuthOutcomeAuthenticated
	AuthOutcomeCancelled
)

func (o AuthOutcome) String() string {
	switch o {
	case AuthOutcomeAlreadyAuthenticated:
		return "already authenticated"
	case AuthOutcomeAuthenticated:
		return "authenticated"
	case AuthOutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

type SignOutPolicy string

const (
	SignOutAppOnly SignOutPolicy = "app_only"
	SignOutRevoke  SignOutPolicy = "revoke"
)

// Session is the opaque provider credential handle held by this layer.
type Session struct {
	Provider    string
	AccountID   string
	AccessToken string
	ExpiresAt   time.Time
}

func (s Session) Valid(now time.Time) bool {
	if s.AccessToken == "" {
		return false
	}
	return s.ExpiresAt.IsZero() || s.ExpiresAt.After(now)
}
