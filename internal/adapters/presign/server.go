package presign

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"

	"github.com/bnema/primedictation-export/internal/domain"
	"github.com/bnema/primedictation-export/internal/logging"
)

// Presigner signs one upload.
type Presigner interface {
	Presign(ctx context.Context, req domain.PresignRequest) (domain.PresignedUpload, error)
}

const maxRequestBytes = 64 << 10

// NewRouter serves POST /presign behind HS256 bearer verification and an
// unauthenticated GET /healthz.
func NewRouter(presigner Presigner, secret []byte, log logging.Logger) *chi.Mux {
	if log == nil {
		log = logging.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.CleanPath)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(secret))
		r.Post("/presign", presignHandler(presigner, log))
	})
	return r
}

func presignHandler(presigner Presigner, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req presignRequest
		decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
		if err := decoder.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if strings.TrimSpace(req.Key) == "" {
			writeError(w, http.StatusBadRequest, "key is required")
			return
		}

		upload, err := presigner.Presign(r.Context(), req.domain())
		if err != nil {
			if errors.Is(err, ErrKeyNotAllowed) {
				writeError(w, http.StatusForbidden, err.Error())
				return
			}
			log.Error(r.Context(), "presign failed", "key", req.Key, "error", err)
			writeError(w, http.StatusInternalServerError, "presign failed")
			return
		}

		log.Info(r.Context(), "presigned upload", "key", upload.Key, "request_id", middleware.GetReqID(r.Context()))
		writeJSON(w, http.StatusOK, responseFrom(upload))
	}
}

// bearerAuth accepts HS256 tokens signed with secret that carry an unexpired
// exp claim.
func bearerAuth(secret []byte) func(http.Handler) http.Handler {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	keyFunc := func(*jwt.Token) (any, error) { return secret, nil }

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			if _, err := parser.Parse(strings.TrimSpace(raw), keyFunc); err != nil {
				writeError(w, http.StatusUnauthorized, "invalid bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
