package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bnema/primedictation-export/internal/domain"
	"github.com/bnema/primedictation-export/internal/logging"
	"github.com/bnema/primedictation-export/internal/ports"
)

const (
	refreshSkew            = 2 * time.Minute
	defaultCallbackTimeout = 5 * time.Minute
)

// Prompter shows the user where to complete an interactive sign-in.
type Prompter interface {
	ShowAuthorizationURL(ctx context.Context, provider string, authURL string) error
	ShowDeviceCode(ctx context.Context, provider string, code DeviceCodeResult) error
}

type SessionOptions struct {
	HTTPClient      *http.Client
	Clock           ports.Clock
	Prompter        Prompter
	Logger          logging.Logger
	ListenAddr      string
	CallbackTimeout time.Duration
	// UseDeviceFlow selects the device-code flow for interactive sign-in when
	// the provider supports it.
	UseDeviceFlow bool
}

// OAuthSession stores provider tokens in a KeyValueStore and refreshes them
// silently when possible.
type OAuthSession struct {
	config ProviderConfig
	store  ports.KeyValueStore
	opts   SessionOptions
}

var (
	_ ports.Authorizer    = (*OAuthSession)(nil)
	_ ports.IDTokenSource = (*OAuthSession)(nil)
)

func NewOAuthSession(config ProviderConfig, store ports.KeyValueStore, opts SessionOptions) (*OAuthSession, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("token store is nil")
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Clock == nil {
		opts.Clock = ports.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.CallbackTimeout <= 0 {
		opts.CallbackTimeout = defaultCallbackTimeout
	}
	opts.Logger = opts.Logger.With("provider", config.Name)

	return &OAuthSession{config: config, store: store, opts: opts}, nil
}

func (s *OAuthSession) Name() string {
	return s.config.Name
}

// Authorize returns a usable session. Without interaction it only uses
// stored or refreshed tokens and reports domain.ErrInteractionRequired
// otherwise.
func (s *OAuthSession) Authorize(ctx context.Context, interactive bool) (domain.Session, error) {
	tokens, err := s.currentTokens(ctx)
	if err == nil {
		return s.session(tokens), nil
	}
	if !errors.Is(err, domain.ErrInteractionRequired) {
		return domain.Session{}, err
	}
	if !interactive {
		return domain.Session{}, err
	}

	if s.opts.Prompter == nil {
		return domain.Session{}, fmt.Errorf("%s sign-in: no prompter configured: %w", s.config.Name, domain.ErrInteractionRequired)
	}

	if s.opts.UseDeviceFlow && s.config.SupportsDeviceFlow() {
		tokens, err = s.deviceSignIn(ctx)
	} else {
		tokens, err = s.browserSignIn(ctx)
	}
	if err != nil {
		if isCancellation(err) {
			return domain.Session{}, fmt.Errorf("%s sign-in: %w: %w", s.config.Name, domain.ErrAuthCancelled, err)
		}
		return domain.Session{}, fmt.Errorf("%s sign-in: %w", s.config.Name, err)
	}

	tokens, err = s.saveTokens(ctx, tokens)
	if err != nil {
		return domain.Session{}, err
	}
	s.opts.Logger.Info(ctx, "signed in", "account", tokens.AccountID)

	return s.session(tokens), nil
}

// AccessToken returns a bearer token for API calls without prompting.
func (s *OAuthSession) AccessToken(ctx context.Context) (string, error) {
	tokens, err := s.currentTokens(ctx)
	if err != nil {
		return "", err
	}
	return tokens.AccessToken, nil
}

// SignOut deletes local tokens. With revoke the provider is asked to
// invalidate them first; a failed revocation is logged, not returned.
func (s *OAuthSession) SignOut(ctx context.Context, revoke bool) error {
	if revoke {
		tokens, err := s.loadTokens(ctx)
		switch {
		case err == nil:
			token := tokens.AccessToken
			if s.config.RevokeMode == RevokeForm && tokens.RefreshToken != "" {
				token = tokens.RefreshToken
			}
			if revokeErr := RevokeToken(ctx, s.opts.HTTPClient, RevokeRequest{
				URL:   s.config.RevokeURL,
				Mode:  s.config.RevokeMode,
				Token: token,
			}); revokeErr != nil {
				s.opts.Logger.Warn(ctx, "token revocation failed", "error", revokeErr)
			}
		case !errors.Is(err, domain.ErrKeyNotFound):
			s.opts.Logger.Warn(ctx, "read tokens for revocation failed", "error", err)
		}
	}

	if err := s.store.Delete(ctx, s.config.TokenKey()); err != nil {
		return fmt.Errorf("delete %s tokens: %w", s.config.Name, err)
	}
	return nil
}

// IDToken returns the stored ID token, refreshing it when forced or when it
// expires within the refresh skew.
func (s *OAuthSession) IDToken(ctx context.Context, forceRefresh bool) (string, error) {
	tokens, err := s.currentTokens(ctx)
	if err != nil {
		return "", err
	}

	stale := forceRefresh || tokens.IDToken == ""
	if !stale {
		if exp, expErr := IDTokenExpiry(tokens.IDToken); expErr == nil && !exp.IsZero() {
			stale = !exp.After(s.opts.Clock.Now().Add(refreshSkew))
		}
	}
	if stale {
		tokens, err = s.refresh(ctx, tokens)
		if err != nil {
			return "", err
		}
	}
	if tokens.IDToken == "" {
		return "", fmt.Errorf("%s tokens carry no id token: %w", s.config.Name, domain.ErrInteractionRequired)
	}
	return tokens.IDToken, nil
}

func (s *OAuthSession) currentTokens(ctx context.Context) (Tokens, error) {
	tokens, err := s.loadTokens(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrKeyNotFound) {
			return Tokens{}, fmt.Errorf("%s has no stored tokens: %w", s.config.Name, domain.ErrInteractionRequired)
		}
		return Tokens{}, err
	}

	if !TokenExpiringSoon(tokens, s.opts.Clock.Now(), refreshSkew) {
		return tokens, nil
	}
	return s.refresh(ctx, tokens)
}

func (s *OAuthSession) refresh(ctx context.Context, tokens Tokens) (Tokens, error) {
	s.opts.Logger.Debug(ctx, "refreshing tokens")

	refreshed, err := s.endpoint().refresh(ctx, tokens.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrRefreshTokenInvalid) {
			if deleteErr := s.store.Delete(ctx, s.config.TokenKey()); deleteErr != nil {
				s.opts.Logger.Warn(ctx, "delete rejected tokens failed", "error", deleteErr)
			}
			return Tokens{}, fmt.Errorf("%s refresh rejected: %w", s.config.Name, domain.ErrInteractionRequired)
		}
		return Tokens{}, fmt.Errorf("refresh %s tokens: %w", s.config.Name, err)
	}

	if refreshed.IDToken == "" {
		refreshed.IDToken = tokens.IDToken
	}
	if refreshed.AccountID == "" {
		refreshed.AccountID = tokens.AccountID
	}
	return s.saveTokens(ctx, refreshed)
}

func (s *OAuthSession) withAccountID(tokens Tokens) Tokens {
	if tokens.AccountID != "" || tokens.IDToken == "" || len(s.config.AccountClaims) == 0 {
		return tokens
	}
	accountID, err := AccountIDFromIDToken(tokens.IDToken, s.config.AccountClaims)
	if err == nil {
		tokens.AccountID = accountID
	}
	return tokens
}

func (s *OAuthSession) loadTokens(ctx context.Context) (Tokens, error) {
	raw, err := s.store.Get(ctx, s.config.TokenKey())
	if err != nil {
		return Tokens{}, fmt.Errorf("load %s tokens: %w", s.config.Name, err)
	}
	return DecodeTokens(raw)
}

func (s *OAuthSession) saveTokens(ctx context.Context, tokens Tokens) (Tokens, error) {
	tokens = WithCalculatedExpiry(tokens, s.opts.Clock.Now())
	encoded, err := EncodeTokens(tokens)
	if err != nil {
		return Tokens{}, err
	}
	if err := s.store.Put(ctx, s.config.TokenKey(), encoded); err != nil {
		return Tokens{}, fmt.Errorf("save %s tokens: %w", s.config.Name, err)
	}
	return tokens, nil
}

func (s *OAuthSession) session(tokens Tokens) domain.Session {
	return domain.Session{
		Provider:    s.config.Name,
		AccountID:   tokens.AccountID,
		AccessToken: tokens.AccessToken,
		ExpiresAt:   tokens.Expiry(),
	}
}

func (s *OAuthSession) endpoint() tokenEndpoint {
	return newTokenEndpoint(s.config, s.opts.HTTPClient)
}

func isCancellation(err error) bool {
	return errors.Is(err, ErrAuthorizationDenied) ||
		errors.Is(err, ErrSignInTimeout) ||
		errors.Is(err, context.Canceled)
}
