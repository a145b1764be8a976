package application

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bnema/primedictation-export/internal/domain"
	"github.com/bnema/primedictation-export/internal/logging"
	"github.com/bnema/primedictation-export/internal/ports"
)

// SessionController wraps a provider Authorizer: silent reuse first, the
// interactive flow only when the provider asks for it.
type SessionController struct {
	provider   domain.Provider
	authorizer ports.Authorizer
	log        logging.Logger

	mu        sync.RWMutex
	accountID string
}

func NewSessionController(provider domain.Provider, authorizer ports.Authorizer, log logging.Logger) *SessionController {
	if log == nil {
		log = logging.NewNop()
	}
	return &SessionController{
		provider:   provider,
		authorizer: authorizer,
		log:        log.With("provider", string(provider)),
	}
}

// EnsureAuthorized returns a session and how it was obtained. Cancellation
// is an outcome, not an error. Any other failure wraps
// domain.ErrProviderFailure.
func (c *SessionController) EnsureAuthorized(ctx context.Context, interactive bool) (domain.Session, domain.AuthOutcome, error) {
	session, err := c.authorizer.Authorize(ctx, false)
	if err == nil {
		c.remember(session)
		return session, domain.AuthOutcomeAlreadyAuthenticated, nil
	}
	if !errors.Is(err, domain.ErrInteractionRequired) {
		return domain.Session{}, 0, c.failure(ctx, err)
	}
	if !interactive {
		return domain.Session{}, 0, fmt.Errorf("%s sign-in: %w", c.provider, err)
	}

	session, err = c.authorizer.Authorize(ctx, true)
	if err != nil {
		if errors.Is(err, domain.ErrAuthCancelled) || errors.Is(err, context.Canceled) {
			c.log.Info(ctx, "sign-in cancelled")
			return domain.Session{}, domain.AuthOutcomeCancelled, nil
		}
		return domain.Session{}, 0, c.failure(ctx, err)
	}

	c.remember(session)
	return session, domain.AuthOutcomeAuthenticated, nil
}

// SignOut ends the local session. SignOutRevoke also invalidates the
// credential on the provider.
func (c *SessionController) SignOut(ctx context.Context, policy domain.SignOutPolicy) error {
	if err := c.authorizer.SignOut(ctx, policy == domain.SignOutRevoke); err != nil {
		return fmt.Errorf("%s sign-out: %w", c.provider, err)
	}
	c.mu.Lock()
	c.accountID = ""
	c.mu.Unlock()
	return nil
}

// AccountID is the account of the last successful authorization.
func (c *SessionController) AccountID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accountID
}

func (c *SessionController) remember(session domain.Session) {
	c.mu.Lock()
	c.accountID = session.AccountID
	c.mu.Unlock()
}

func (c *SessionController) failure(ctx context.Context, err error) error {
	c.log.Warn(ctx, "sign-in failed", "error", err)
	return fmt.Errorf("%s sign-in: %w: %w", c.provider, domain.ErrProviderFailure, err)
}
