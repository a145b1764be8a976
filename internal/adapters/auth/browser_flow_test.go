package auth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPKCEChallengeMatchesVerifier(t *testing.T) {
	t.Parallel()

	verifier, challenge, err := newPKCE()
	require.NoError(t, err)

	sum := sha256.Sum256([]byte(verifier))
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(sum[:]), challenge)
	assert.Len(t, verifier, 43)
}

func TestAuthorizationURLCarriesPKCEAndProviderParams(t *testing.T) {
	t.Parallel()

	cfg, err := DefaultProviderConfig("dropbox")
	require.NoError(t, err)
	cfg.ClientID = "dbx-app"

	raw, err := cfg.authorizationURL("http://localhost:5000/auth/callback", "state-1", "challenge-1")
	require.NoError(t, err)

	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	q := parsed.Query()
	assert.Equal(t, "www.dropbox.com", parsed.Host)
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "dbx-app", q.Get("client_id"))
	assert.Equal(t, "state-1", q.Get("state"))
	assert.Equal(t, "challenge-1", q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, "offline", q.Get("token_access_type"))
	assert.Equal(t, "files.content.write files.content.read files.metadata.read sharing.read", q.Get("scope"))
}

func TestAuthorizationURLRejectsNonHTTPScheme(t *testing.T) {
	t.Parallel()

	cfg := ProviderConfig{Name: "dropbox", AuthURL: "ftp://example.com/authorize", ClientID: "c"}
	_, err := cfg.authorizationURL("http://localhost/auth/callback", "s", "c")
	require.Error(t, err)
}

func callLoopback(t *testing.T, l *loopback, query url.Values) {
	t.Helper()
	go func() {
		resp, err := http.Get(l.redirectURI() + "?" + query.Encode())
		if err == nil {
			_ = resp.Body.Close()
		}
	}()
}

func TestLoopbackReturnsCode(t *testing.T) {
	t.Parallel()

	l, err := listenLoopback("127.0.0.1:0", "expected")
	require.NoError(t, err)
	callLoopback(t, l, url.Values{"state": {"expected"}, "code": {"abc"}})

	code, err := l.wait(context.Background(), 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "abc", code)
}

func TestLoopbackRejectsStateMismatch(t *testing.T) {
	t.Parallel()

	l, err := listenLoopback("127.0.0.1:0", "expected")
	require.NoError(t, err)
	callLoopback(t, l, url.Values{"state": {"forged"}, "code": {"abc"}})

	_, err = l.wait(context.Background(), 2*time.Second)
	require.ErrorIs(t, err, ErrStateMismatch)
}

func TestLoopbackDeniedConsentIsAuthorizationDenied(t *testing.T) {
	t.Parallel()

	l, err := listenLoopback("127.0.0.1:0", "expected")
	require.NoError(t, err)
	callLoopback(t, l, url.Values{"state": {"expected"}, "error": {"access_denied"}, "error_description": {"user said no"}})

	_, err = l.wait(context.Background(), 2*time.Second)
	require.ErrorIs(t, err, ErrAuthorizationDenied)
	assert.Contains(t, err.Error(), "user said no")
}

func TestLoopbackTimesOut(t *testing.T) {
	t.Parallel()

	l, err := listenLoopback("127.0.0.1:0", "expected")
	require.NoError(t, err)

	_, err = l.wait(context.Background(), 20*time.Millisecond)
	require.ErrorIs(t, err, ErrSignInTimeout)
}

func TestLoopbackRequiresState(t *testing.T) {
	t.Parallel()

	_, err := listenLoopback("127.0.0.1:0", "")
	require.Error(t, err)
}

func TestTokenEndpointGrantSendsClientCredentials(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.Form.Get("grant_type"))
		assert.Equal(t, "client-1", r.Form.Get("client_id"))
		assert.Equal(t, "secret-1", r.Form.Get("client_secret"))
		assert.Equal(t, "code-1", r.Form.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","refresh_token":"rt","expires_in":14400,"account_id":"dbid:7"}`))
	}))
	t.Cleanup(server.Close)

	endpoint := newTokenEndpoint(ProviderConfig{TokenURL: server.URL, ClientID: "client-1", ClientSecret: "secret-1"}, nil)
	tokens, err := endpoint.grant(context.Background(), "authorization_code", url.Values{"code": {"code-1"}})
	require.NoError(t, err)
	assert.Equal(t, Tokens{AccessToken: "at", RefreshToken: "rt", ExpiresIn: 14400, AccountID: "dbid:7"}, tokens)
}

func TestTokenEndpointGrantReportsOAuthError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_client","error_description":"unknown app"}`))
	}))
	t.Cleanup(server.Close)

	endpoint := newTokenEndpoint(ProviderConfig{TokenURL: server.URL, ClientID: "c"}, nil)
	_, err := endpoint.grant(context.Background(), "authorization_code", nil)

	var oauthErr *OAuthError
	require.ErrorAs(t, err, &oauthErr)
	assert.Equal(t, http.StatusBadRequest, oauthErr.StatusCode)
	assert.Equal(t, "invalid_client", oauthErr.Code)
	assert.NotErrorIs(t, err, ErrRefreshTokenInvalid)
}

func TestTokenEndpointRefreshInvalidGrant(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	t.Cleanup(server.Close)

	endpoint := newTokenEndpoint(ProviderConfig{TokenURL: server.URL, ClientID: "c"}, nil)
	_, err := endpoint.refresh(context.Background(), "rt")
	require.ErrorIs(t, err, ErrRefreshTokenInvalid)

	_, err = endpoint.refresh(context.Background(), "")
	require.ErrorIs(t, err, ErrRefreshTokenInvalid)
}

func TestTokenEndpointRefreshKeepsUnrotatedRefreshToken(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "rt-1", r.Form.Get("refresh_token"))
		_, _ = w.Write([]byte(`{"access_token":"at-2","expires_in":3600}`))
	}))
	t.Cleanup(server.Close)

	endpoint := newTokenEndpoint(ProviderConfig{TokenURL: server.URL, ClientID: "c"}, nil)
	tokens, err := endpoint.refresh(context.Background(), "rt-1")
	require.NoError(t, err)
	assert.Equal(t, "at-2", tokens.AccessToken)
	assert.Equal(t, "rt-1", tokens.RefreshToken)
}
