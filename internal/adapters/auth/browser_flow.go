package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"
)

const (
	callbackPath          = "/auth/callback"
	callbackHeaderTimeout = 10 * time.Second
)

var ErrStateMismatch = errors.New("oauth callback state mismatch")

// randomURLToken returns n random bytes, base64url encoded without padding.
func randomURLToken(n int) (string, error) {
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// newPKCE returns an RFC 7636 verifier and its S256 challenge.
func newPKCE() (verifier string, challenge string, err error) {
	verifier, err = randomURLToken(32)
	if err != nil {
		return "", "", err
	}
	sum := sha256.Sum256([]byte(verifier))
	return verifier, base64.RawURLEncoding.EncodeToString(sum[:]), nil
}

// authorizationURL is the consent page for an authorization-code grant with
// PKCE, redirecting to redirectURI.
func (c ProviderConfig) authorizationURL(redirectURI string, state string, challenge string) (string, error) {
	parsed, err := url.Parse(c.AuthURL)
	if err != nil {
		return "", fmt.Errorf("parse %s auth url: %w", c.Name, err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", fmt.Errorf("%s auth url %q is not an http(s) url", c.Name, c.AuthURL)
	}

	q := parsed.Query()
	for key, value := range c.ExtraAuthParams {
		q.Set(key, value)
	}
	q.Set("response_type", "code")
	q.Set("client_id", c.ClientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("state", state)
	q.Set("code_challenge", challenge)
	q.Set("code_challenge_method", "S256")
	if len(c.Scopes) > 0 {
		q.Set("scope", joinScopes(c.Scopes))
	}
	parsed.RawQuery = q.Encode()

	return parsed.String(), nil
}

type callbackOutcome struct {
	code string
	err  error
}

// loopback receives the authorization redirect on a local port. Only the
// first callback counts.
type loopback struct {
	state    string
	listener net.Listener
	server   *http.Server
	outcome  chan callbackOutcome
	once     sync.Once
}

func listenLoopback(addr string, state string) (*loopback, error) {
	if state == "" {
		return nil, errors.New("loopback needs an oauth state")
	}
	if addr == "" {
		addr = "127.0.0.1:0"
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen for oauth callback: %w", err)
	}

	l := &loopback{state: state, listener: listener, outcome: make(chan callbackOutcome, 1)}
	mux := http.NewServeMux()
	mux.Handle(callbackPath, l)
	l.server = &http.Server{Handler: mux, ReadHeaderTimeout: callbackHeaderTimeout}

	go func() {
		if err := l.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.finish(callbackOutcome{err: err})
		}
	}()
	return l, nil
}

func (l *loopback) redirectURI() string {
	port := 0
	if addr, ok := l.listener.Addr().(*net.TCPAddr); ok {
		port = addr.Port
	}
	return fmt.Sprintf("http://localhost:%d%s", port, callbackPath)
}

// wait returns the authorization code, or ErrSignInTimeout once timeout
// elapses. The listener is closed on return.
func (l *loopback) wait(ctx context.Context, timeout time.Duration) (string, error) {
	defer l.close()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case outcome := <-l.outcome:
		return outcome.code, outcome.err
	case <-timer.C:
		return "", ErrSignInTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (l *loopback) close() {
	_ = l.server.Close()
}

func (l *loopback) finish(outcome callbackOutcome) {
	l.once.Do(func() { l.outcome <- outcome })
}

func (l *loopback) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("state") != l.state {
		l.finish(callbackOutcome{err: ErrStateMismatch})
		http.Error(w, "state mismatch", http.StatusBadRequest)
		return
	}
	if code := q.Get("error"); code != "" {
		l.finish(callbackOutcome{err: &OAuthError{Code: code, Description: q.Get("error_description")}})
		http.Error(w, "sign-in was not completed", http.StatusBadRequest)
		return
	}
	code := q.Get("code")
	if code == "" {
		l.finish(callbackOutcome{err: errors.New("oauth callback carries no code")})
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}

	l.finish(callbackOutcome{code: code})
	_, _ = w.Write([]byte("Signed in. You can close this window and return to pdx."))
}

// browserSignIn runs the authorization-code flow with PKCE against a local
// callback.
func (s *OAuthSession) browserSignIn(ctx context.Context) (Tokens, error) {
	verifier, challenge, err := newPKCE()
	if err != nil {
		return Tokens{}, fmt.Errorf("generate pkce: %w", err)
	}
	state, err := randomURLToken(16)
	if err != nil {
		return Tokens{}, fmt.Errorf("generate oauth state: %w", err)
	}

	callback, err := listenLoopback(s.opts.ListenAddr, state)
	if err != nil {
		return Tokens{}, err
	}
	redirectURI := callback.redirectURI()

	authURL, err := s.config.authorizationURL(redirectURI, state, challenge)
	if err != nil {
		callback.close()
		return Tokens{}, err
	}
	if err := s.opts.Prompter.ShowAuthorizationURL(ctx, s.config.Name, authURL); err != nil {
		callback.close()
		return Tokens{}, fmt.Errorf("show authorization url: %w", err)
	}

	code, err := callback.wait(ctx, s.opts.CallbackTimeout)
	if err != nil {
		return Tokens{}, fmt.Errorf("wait for oauth callback: %w", err)
	}

	tokens, err := s.endpoint().grant(ctx, "authorization_code", url.Values{
		"code":          {code},
		"redirect_uri":  {redirectURI},
		"code_verifier": {verifier},
	})
	if err != nil {
		return Tokens{}, err
	}
	return s.withAccountID(tokens), nil
}
