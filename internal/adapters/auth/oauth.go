package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	maxOAuthResponseBytes = 1 << 20
	oauthRequestTimeout   = 30 * time.Second
)

var (
	// ErrRefreshTokenInvalid means the provider no longer honours the stored
	// refresh token and the user has to sign in again.
	ErrRefreshTokenInvalid = errors.New("refresh token is invalid or expired")
	ErrAuthorizationDenied = errors.New("authorization denied by user")
	ErrSignInTimeout       = errors.New("timed out waiting for sign-in")
)

// OAuthError is an RFC 6749 error response from an authorization server.
type OAuthError struct {
	StatusCode  int
	Code        string `json:"error"`
	Description string `json:"error_description"`
	// Interval is the poll interval a device-code server asks for, in seconds.
	Interval int64 `json:"interval"`
}

func (e *OAuthError) Error() string {
	switch {
	case e.Code == "":
		return fmt.Sprintf("oauth status %d", e.StatusCode)
	case e.Description != "":
		return fmt.Sprintf("oauth %s: %s", e.Code, e.Description)
	default:
		return "oauth " + e.Code
	}
}

func (e *OAuthError) Is(target error) bool {
	switch e.Code {
	case "invalid_grant":
		return target == ErrRefreshTokenInvalid
	case "access_denied":
		return target == ErrAuthorizationDenied
	case "expired_token":
		return target == ErrSignInTimeout
	}
	return false
}

// grantResponse is the successful token endpoint payload shared by every
// grant type. Dropbox adds account_id.
type grantResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	AccountID    string `json:"account_id"`
}

func (g grantResponse) tokens() Tokens {
	return Tokens{
		AccessToken:  g.AccessToken,
		RefreshToken: g.RefreshToken,
		IDToken:      g.IDToken,
		TokenType:    g.TokenType,
		ExpiresIn:    g.ExpiresIn,
		AccountID:    g.AccountID,
	}
}

// tokenEndpoint redeems grants at one provider's token URL with the
// configured client registration.
type tokenEndpoint struct {
	url          string
	clientID     string
	clientSecret string
	client       *http.Client
}

func newTokenEndpoint(cfg ProviderConfig, client *http.Client) tokenEndpoint {
	if client == nil {
		client = http.DefaultClient
	}
	return tokenEndpoint{url: cfg.TokenURL, clientID: cfg.ClientID, clientSecret: cfg.ClientSecret, client: client}
}

func (e tokenEndpoint) grant(ctx context.Context, grantType string, params url.Values) (Tokens, error) {
	form := url.Values{}
	for key, values := range params {
		form[key] = values
	}
	form.Set("grant_type", grantType)
	form.Set("client_id", e.clientID)
	if e.clientSecret != "" {
		form.Set("client_secret", e.clientSecret)
	}

	var payload grantResponse
	if err := postForm(ctx, e.client, e.url, form, &payload); err != nil {
		return Tokens{}, fmt.Errorf("%s grant: %w", grantType, err)
	}
	if payload.AccessToken == "" {
		return Tokens{}, fmt.Errorf("%s grant: response has no access token", grantType)
	}
	return payload.tokens(), nil
}

// refresh redeems a refresh token. Providers that do not rotate refresh
// tokens keep the current one.
func (e tokenEndpoint) refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	if refreshToken == "" {
		return Tokens{}, ErrRefreshTokenInvalid
	}
	tokens, err := e.grant(ctx, "refresh_token", url.Values{"refresh_token": {refreshToken}})
	if err != nil {
		return Tokens{}, err
	}
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = refreshToken
	}
	return tokens, nil
}

// postForm posts an urlencoded form and decodes a 2xx JSON answer into out.
// Other statuses become an *OAuthError.
func postForm(ctx context.Context, client *http.Client, endpoint string, form url.Values, out any) error {
	if endpoint == "" {
		return errors.New("oauth endpoint is not set")
	}

	requestCtx, cancel := withRequestTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body := io.LimitReader(resp.Body, maxOAuthResponseBytes)
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		oauthErr := &OAuthError{}
		_ = json.NewDecoder(body).Decode(oauthErr)
		oauthErr.StatusCode = resp.StatusCode
		return oauthErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, body)
		return nil
	}
	if err := json.NewDecoder(body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func withRequestTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, oauthRequestTimeout)
}
