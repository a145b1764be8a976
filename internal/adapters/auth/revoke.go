package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

type RevokeRequest struct {
	URL   string
	Mode  RevokeMode
	Token string
}

// RevokeToken invalidates a token at the provider. Bearer mode posts with the
// token as Authorization; form mode posts it as the "token" field.
func RevokeToken(ctx context.Context, client *http.Client, req RevokeRequest) error {
	if req.URL == "" || req.Mode == RevokeNone {
		return nil
	}
	if req.Token == "" {
		return errors.New("revoke token is empty")
	}
	if client == nil {
		client = http.DefaultClient
	}

	requestCtx, cancel := withRequestTimeout(ctx)
	defer cancel()

	var body io.Reader
	if req.Mode == RevokeForm {
		body = strings.NewReader(url.Values{"token": {req.Token}}.Encode())
	}

	httpReq, err := http.NewRequestWithContext(requestCtx, http.MethodPost, req.URL, body)
	if err != nil {
		return fmt.Errorf("create revoke request: %w", err)
	}
	switch req.Mode {
	case RevokeForm:
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	case RevokeBearer:
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	default:
		return fmt.Errorf("unsupported revoke mode %q", req.Mode)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxOAuthResponseBytes))

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("revoke endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
