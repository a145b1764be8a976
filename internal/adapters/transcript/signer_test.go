package transcript

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

func TestSignAudioUpload(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/signed-put", r.URL.Path)
		assert.Equal(t, "memo.m4a", r.URL.Query().Get("bucketPath"))
		assert.Equal(t, "audio/mp4", r.URL.Query().Get("contentType"))
		assert.Equal(t, "Bearer id-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"url":"https://storage.example/put"}`))
	}))
	t.Cleanup(server.Close)

	signer := NewSigner(server.URL+"/", "", server.Client(), nil)
	signed, err := signer.SignAudioUpload(context.Background(), "id-token", "memo.m4a", "audio/mp4")
	require.NoError(t, err)
	assert.Equal(t, "https://storage.example/put", signed)
}

func TestSignTranscriptNotReady(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sign", r.URL.Path)
		assert.Equal(t, "memo.txt", r.URL.Query().Get("name"))
		assert.Equal(t, "1700000000", r.URL.Query().Get("ts"))
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	signer := NewSigner("", server.URL, server.Client(), nil)
	_, err := signer.SignTranscript(context.Background(), "memo.txt", time.Unix(1700000000, 0))
	code, ok := domain.StatusCode(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSignerRequiresURLs(t *testing.T) {
	t.Parallel()

	signer := NewSigner("", "", nil, nil)
	_, err := signer.SignAudioUpload(context.Background(), "t", "a", "b")
	require.Error(t, err)
	_, err = signer.SignTranscript(context.Background(), "a", time.Now())
	require.Error(t, err)
}
