// Package transport holds the HTTP plumbing shared by the cloud provider
// clients: bearer authentication, per-request deadlines and the mapping of
// failures onto the domain error taxonomy.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bnema/primedictation-export/internal/domain"
	"github.com/bnema/primedictation-export/internal/logging"
)

const (
	MaxResponseBytes      = 1 << 20
	DefaultRequestTimeout = 30 * time.Second
	maxErrorMessageBytes  = 512
)

// TokenSource yields the bearer token for API calls.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

func (t StaticToken) AccessToken(context.Context) (string, error) {
	return string(t), nil
}

type Client struct {
	HTTPClient     *http.Client
	Tokens         TokenSource
	RequestTimeout time.Duration
	Logger         logging.Logger
}

// Request describes one API call.
type Request struct {
	Op      string
	Method  string
	URL     string
	Body    io.Reader
	Headers map[string]string
	// ContentLength is announced for streamed bodies when positive.
	ContentLength int64
	// Timeout overrides the client's per-request timeout.
	Timeout time.Duration
}

// JSONBody encodes v for use as a Request body.
func JSONBody(v any) (io.Reader, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	return bytes.NewReader(payload), nil
}

// Do sends req with a bearer token. Network failures worth retrying wrap
// domain.ErrTransient. The caller owns the response body; call the returned
// release func once done with it.
func (c *Client) Do(ctx context.Context, req Request) (*http.Response, func(), error) {
	token := ""
	if c.Tokens != nil {
		var err error
		token, err = c.Tokens.AccessToken(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", req.Op, err)
		}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.RequestTimeout
	}
	requestCtx, cancel := RequestContext(ctx, timeout)

	httpReq, err := http.NewRequestWithContext(requestCtx, req.Method, req.URL, req.Body)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("create %s request: %w", req.Op, err)
	}
	if req.ContentLength > 0 {
		httpReq.ContentLength = req.ContentLength
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	started := time.Now()
	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		cancel()
		return nil, nil, WrapNetworkError(req.Op, err)
	}
	c.logger().Debug(ctx, "api call", "op", req.Op, "method", req.Method, "status", resp.StatusCode, "elapsed", time.Since(started))

	release := func() {
		_ = resp.Body.Close()
		cancel()
	}
	return resp, release, nil
}

// DoJSON sends req, checks for a 2xx status and decodes the body into out
// when out is non-nil.
func (c *Client) DoJSON(ctx context.Context, req Request, out any) error {
	resp, release, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	defer release()

	if err := CheckStatus(req.Op, resp); err != nil {
		return err
	}
	return DecodeJSON(req.Op, resp, out)
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) logger() logging.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logging.NewNop()
}

func RequestContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// WrapNetworkError marks retryable transport failures with
// domain.ErrTransient.
func WrapNetworkError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if domain.IsTransient(err) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrTransient, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// CheckStatus turns a non-2xx response into a *domain.StatusError.
func CheckStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return nil
	}
	return StatusError(op, resp)
}

func StatusError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorMessageBytes))
	return &domain.StatusError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(raw)),
	}
}

func DecodeJSON(op string, resp *http.Response, out any) error {
	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, MaxResponseBytes))
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, MaxResponseBytes)).Decode(out); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return WrapNetworkError("decode "+op+" response", err)
		}
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}
