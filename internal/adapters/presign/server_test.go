package presign

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/primedictation-export/internal/domain"
)

var testSecret = []byte("signer-secret")

type fakePresigner struct {
	got domain.PresignRequest
}

func (f *fakePresigner) Presign(_ context.Context, req domain.PresignRequest) (domain.PresignedUpload, error) {
	f.got = req
	if !strings.HasPrefix(req.Key, domain.RecordingKeyPrefix) {
		return domain.PresignedUpload{}, ErrKeyNotAllowed
	}
	return domain.PresignedUpload{URL: "https://s3.example/" + req.Key, Method: http.MethodPut, Key: req.Key, ExpiresIn: 900}, nil
}

func signToken(t *testing.T, secret []byte, method jwt.SigningMethod, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(method, jwt.MapClaims{"sub": "user-1", "exp": exp.Unix()})
	signed, err := token.SignedString(secret)
	require.NoError(t, err)
	return signed
}

func postPresign(t *testing.T, handler http.Handler, bearer string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/presign", strings.NewReader(body))
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestServerPresignsWithValidToken(t *testing.T) {
	t.Parallel()

	presigner := &fakePresigner{}
	router := NewRouter(presigner, testSecret, nil)

	rec := postPresign(t, router, signToken(t, testSecret, jwt.SigningMethodHS256, time.Now().Add(time.Hour)),
		`{"key":"recordings/memo.m4a","contentType":"audio/mp4","contentLength":42}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp presignResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "https://s3.example/recordings/memo.m4a", resp.URL)
	assert.Equal(t, int64(42), presigner.got.ContentLength)
}

func TestServerRejectsBadTokens(t *testing.T) {
	t.Parallel()

	router := NewRouter(&fakePresigner{}, testSecret, nil)
	body := `{"key":"recordings/memo.m4a"}`

	tests := []struct {
		name   string
		bearer string
	}{
		{name: "missing", bearer: ""},
		{name: "wrong secret", bearer: signToken(t, []byte("other"), jwt.SigningMethodHS256, time.Now().Add(time.Hour))},
		{name: "expired", bearer: signToken(t, testSecret, jwt.SigningMethodHS256, time.Now().Add(-time.Hour))},
		{name: "wrong algorithm", bearer: signToken(t, testSecret, jwt.SigningMethodHS512, time.Now().Add(time.Hour))},
		{name: "garbage", bearer: "not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postPresign(t, router, tt.bearer, body)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestServerValidatesRequest(t *testing.T) {
	t.Parallel()

	router := NewRouter(&fakePresigner{}, testSecret, nil)
	token := signToken(t, testSecret, jwt.SigningMethodHS256, time.Now().Add(time.Hour))

	assert.Equal(t, http.StatusBadRequest, postPresign(t, router, token, `{`).Code)
	assert.Equal(t, http.StatusBadRequest, postPresign(t, router, token, `{"key":" "}`).Code)
	assert.Equal(t, http.StatusForbidden, postPresign(t, router, token, `{"key":"users/x"}`).Code)
}

func TestServerHealthz(t *testing.T) {
	t.Parallel()

	router := NewRouter(&fakePresigner{}, testSecret, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
