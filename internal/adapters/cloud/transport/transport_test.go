package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bnema/primedictation-export/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoJSONSetsBearerAndDecodes(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"Recordings"}`))
	}))
	t.Cleanup(server.Close)

	client := &Client{HTTPClient: server.Client(), Tokens: StaticToken("tok")}
	body, err := JSONBody(map[string]string{"path": ""})
	require.NoError(t, err)

	var out struct {
		Name string `json:"name"`
	}
	err = client.DoJSON(context.Background(), Request{
		Op:      "list folder",
		Method:  http.MethodPost,
		URL:     server.URL,
		Body:    body,
		Headers: map[string]string{"Content-Type": "application/json"},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "Recordings", out.Name)
}

func TestDoJSONMapsNon2xxToStatusError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"expired_access_token"}`))
	}))
	t.Cleanup(server.Close)

	client := &Client{HTTPClient: server.Client()}
	err := client.DoJSON(context.Background(), Request{Op: "get metadata", Method: http.MethodGet, URL: server.URL}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUploadRejected)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	status, ok := domain.StatusCode(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.ErrorContains(t, err, "expired_access_token")
}

func TestDoClassifiesTimeoutAsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(server.Close)

	client := &Client{HTTPClient: server.Client(), RequestTimeout: 20 * time.Millisecond}
	_, _, err := client.Do(context.Background(), Request{Op: "upload", Method: http.MethodGet, URL: server.URL})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.True(t, domain.IsTransient(err))
}

func TestDoDoesNotMarkCancellationTransient(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &Client{}
	_, _, err := client.Do(ctx, Request{Op: "upload", Method: http.MethodGet, URL: "http://127.0.0.1:1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, domain.IsTransient(err))
}

func TestDoClassifiesRefusedConnectionAsNonTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := &Client{}
	_, _, err := client.Do(context.Background(), Request{Op: "probe", Method: http.MethodGet, URL: url})
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrTransient)
}
