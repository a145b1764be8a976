package transcript

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bnema/primedictation-export/internal/adapters/cloud/transport"
	"github.com/bnema/primedictation-export/internal/atomicfile"
	"github.com/bnema/primedictation-export/internal/logging"
	"github.com/bnema/primedictation-export/internal/ports"
)

const (
	probeTimeout       = 30 * time.Second
	downloadTimeout    = 2 * time.Minute
	maxTranscriptBytes = 16 << 20
	transcriptFileMode = 0o600
)

// Fetcher probes and downloads transcripts through signed URLs.
type Fetcher struct {
	api transport.Client
	log logging.Logger
}

var _ ports.TranscriptFetcher = (*Fetcher)(nil)

func NewFetcher(httpClient *http.Client, log logging.Logger) *Fetcher {
	if log == nil {
		log = logging.NewNop()
	}
	return &Fetcher{
		api: transport.Client{HTTPClient: httpClient, Logger: log, RequestTimeout: probeTimeout},
		log: log,
	}
}

var noCache = map[string]string{"Cache-Control": "no-cache", "Pragma": "no-cache"}

// IsFresh reports whether the object exists and was modified at or after
// notBefore. A zero notBefore only checks existence. HEAD is tried first;
// URLs signed for GET only fall back to a one byte ranged GET.
func (f *Fetcher) IsFresh(ctx context.Context, signedURL string, notBefore time.Time) (bool, error) {
	fresh, decided, err := f.probe(ctx, http.MethodHead, signedURL, notBefore)
	if decided {
		return fresh, nil
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return false, err
		}
		f.log.Debug(ctx, "head probe failed, trying ranged get", "error", err)
	}

	fresh, decided, err = f.probe(ctx, http.MethodGet, signedURL, notBefore)
	if err != nil {
		return false, err
	}
	if !decided {
		return false, nil
	}
	return fresh, nil
}

// probe returns decided=false when the response says nothing about the
// object, so the caller can try another method.
func (f *Fetcher) probe(ctx context.Context, method string, signedURL string, notBefore time.Time) (fresh bool, decided bool, err error) {
	headers := map[string]string{}
	for key, value := range noCache {
		headers[key] = value
	}
	if method == http.MethodGet {
		headers["Range"] = "bytes=0-0"
	}

	resp, release, err := f.api.Do(ctx, transport.Request{
		Op:      "probe transcript",
		Method:  method,
		URL:     signedURL,
		Headers: headers,
	})
	if err != nil {
		return false, false, err
	}
	defer release()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusNotModified:
		return false, true, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return !stale(resp.Header.Get("Last-Modified"), notBefore), true, nil
	default:
		return false, false, nil
	}
}

func stale(lastModified string, notBefore time.Time) bool {
	if notBefore.IsZero() || lastModified == "" {
		return false
	}
	modified, err := http.ParseTime(lastModified)
	if err != nil {
		return false
	}
	// Last-Modified has second precision.
	return modified.Before(notBefore.Truncate(time.Second))
}

// Download writes the transcript to destPath, replacing it atomically, and
// returns the decoded text.
func (f *Fetcher) Download(ctx context.Context, signedURL string, destPath string) (string, error) {
	resp, release, err := f.api.Do(ctx, transport.Request{
		Op:      "download transcript",
		Method:  http.MethodGet,
		URL:     signedURL,
		Headers: noCache,
		Timeout: downloadTimeout,
	})
	if err != nil {
		return "", err
	}
	defer release()

	if err := transport.CheckStatus("download transcript", resp); err != nil {
		return "", err
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxTranscriptBytes))
	if err != nil {
		return "", transport.WrapNetworkError("read transcript", err)
	}

	text := DecodeText(raw, resp.Header.Get("Content-Type"))
	if err := atomicfile.Write(destPath, []byte(text), transcriptFileMode); err != nil {
		return "", err
	}
	return text, nil
}
