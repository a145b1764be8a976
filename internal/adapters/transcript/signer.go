// Package transcript implements the remote transcription pipeline: signed
// URL minting, readiness probing and transcript download, plus a local
// Whisper transcriber.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bnema/primedictation-export/internal/adapters/cloud/transport"
	"github.com/bnema/primedictation-export/internal/logging"
	"github.com/bnema/primedictation-export/internal/ports"
)

const signTimeout = 30 * time.Second

// Signer mints signed URLs from the audio and transcript signing endpoints.
type Signer struct {
	audioURL string
	textURL  string
	api      transport.Client
}

var _ ports.TranscriptSigner = (*Signer)(nil)

func NewSigner(audioSignerURL string, textSignerURL string, httpClient *http.Client, log logging.Logger) *Signer {
	return &Signer{
		audioURL: strings.TrimRight(audioSignerURL, "/"),
		textURL:  strings.TrimRight(textSignerURL, "/"),
		api:      transport.Client{HTTPClient: httpClient, Logger: log, RequestTimeout: signTimeout},
	}
}

type signedURL struct {
	URL string `json:"url"`
}

// SignAudioUpload returns a signed PUT URL for bucketPath.
func (s *Signer) SignAudioUpload(ctx context.Context, bearer string, bucketPath string, contentType string) (string, error) {
	if s.audioURL == "" {
		return "", errors.New("sign audio upload: audio signer url is not configured")
	}
	params := url.Values{}
	params.Set("bucketPath", bucketPath)
	params.Set("contentType", contentType)

	return s.sign(ctx, "sign audio upload", s.audioURL+"/signed-put?"+params.Encode(), map[string]string{
		"Authorization": "Bearer " + bearer,
	})
}

// SignTranscript returns a signed GET URL for the transcript name. The
// endpoint answers 404 until the transcript exists.
func (s *Signer) SignTranscript(ctx context.Context, name string, ts time.Time) (string, error) {
	if s.textURL == "" {
		return "", errors.New("sign transcript: text signer url is not configured")
	}
	params := url.Values{}
	params.Set("name", name)
	params.Set("ts", strconv.FormatInt(ts.Unix(), 10))

	return s.sign(ctx, "sign transcript", s.textURL+"/sign?"+params.Encode(), map[string]string{
		"Cache-Control": "no-cache",
	})
}

func (s *Signer) sign(ctx context.Context, op string, endpoint string, headers map[string]string) (string, error) {
	var out signedURL
	err := s.api.DoJSON(ctx, transport.Request{
		Op:      op,
		Method:  http.MethodGet,
		URL:     endpoint,
		Headers: headers,
	}, &out)
	if err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", fmt.Errorf("%s: empty url in response", op)
	}
	return out.URL, nil
}
