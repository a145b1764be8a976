package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"
)

const (
	deviceCodeGrant        = "urn:ietf:params:oauth:grant-type:device_code"
	defaultDevicePoll      = 5 * time.Second
	deviceSlowDownIncrease = 5 * time.Second
)

// DeviceCodeResult is what the user needs to finish a device-code sign-in on
// another screen.
type DeviceCodeResult struct {
	VerificationURL string
	UserCode        string
	Interval        time.Duration
	ExpiresIn       time.Duration

	deviceCode string
}

// deviceCodeResponse covers both RFC 8628 (verification_uri) and the older
// Google spelling (verification_url).
type deviceCodeResponse struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete"`
	VerificationURL         string `json:"verification_url"`
	Interval                int64  `json:"interval"`
	ExpiresIn               int64  `json:"expires_in"`
}

func (r deviceCodeResponse) result() (DeviceCodeResult, error) {
	verification := r.VerificationURIComplete
	if verification == "" {
		verification = r.VerificationURI
	}
	if verification == "" {
		verification = r.VerificationURL
	}
	if r.DeviceCode == "" || r.UserCode == "" || verification == "" {
		return DeviceCodeResult{}, errors.New("device code response is incomplete")
	}

	interval := time.Duration(r.Interval) * time.Second
	if interval <= 0 {
		interval = defaultDevicePoll
	}
	return DeviceCodeResult{
		VerificationURL: verification,
		UserCode:        r.UserCode,
		Interval:        interval,
		ExpiresIn:       time.Duration(r.ExpiresIn) * time.Second,
		deviceCode:      r.DeviceCode,
	}, nil
}

func (s *OAuthSession) requestDeviceCode(ctx context.Context) (DeviceCodeResult, error) {
	form := url.Values{"client_id": {s.config.ClientID}}
	if len(s.config.Scopes) > 0 {
		form.Set("scope", joinScopes(s.config.Scopes))
	}

	var payload deviceCodeResponse
	if err := postForm(ctx, s.opts.HTTPClient, s.config.DeviceCodeURL, form, &payload); err != nil {
		return DeviceCodeResult{}, fmt.Errorf("request %s device code: %w", s.config.Name, err)
	}
	return payload.result()
}

// awaitDeviceGrant polls the token endpoint until the user approves, the
// code expires or the sign-in timeout passes.
func (s *OAuthSession) awaitDeviceGrant(ctx context.Context, code DeviceCodeResult) (Tokens, error) {
	timeout := s.opts.CallbackTimeout
	if code.ExpiresIn > 0 && code.ExpiresIn < timeout {
		timeout = code.ExpiresIn
	}
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	endpoint := s.endpoint()
	interval := code.Interval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-pollCtx.Done():
			if ctx.Err() != nil {
				return Tokens{}, ctx.Err()
			}
			return Tokens{}, ErrSignInTimeout
		case <-timer.C:
		}

		tokens, err := endpoint.grant(pollCtx, deviceCodeGrant, url.Values{"device_code": {code.deviceCode}})
		if err == nil {
			return tokens, nil
		}

		var oauthErr *OAuthError
		if !errors.As(err, &oauthErr) {
			if pollCtx.Err() != nil {
				continue
			}
			return Tokens{}, err
		}
		switch oauthErr.Code {
		case "authorization_pending":
		case "slow_down":
			interval += deviceSlowDownIncrease
		default:
			return Tokens{}, err
		}
		if oauthErr.Interval > 0 {
			interval = time.Duration(oauthErr.Interval) * time.Second
		}
		timer.Reset(interval)
	}
}

func (s *OAuthSession) deviceSignIn(ctx context.Context) (Tokens, error) {
	code, err := s.requestDeviceCode(ctx)
	if err != nil {
		return Tokens{}, err
	}
	if err := s.opts.Prompter.ShowDeviceCode(ctx, s.config.Name, code); err != nil {
		return Tokens{}, fmt.Errorf("show device code: %w", err)
	}

	tokens, err := s.awaitDeviceGrant(ctx, code)
	if err != nil {
		return Tokens{}, err
	}
	return s.withAccountID(tokens), nil
}
