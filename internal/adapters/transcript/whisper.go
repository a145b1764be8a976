package transcript

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sethvargo/go-retry"

	"github.com/bnema/primedictation-export/internal/atomicfile"
	"github.com/bnema/primedictation-export/internal/domain"
	"github.com/bnema/primedictation-export/internal/logging"
	"github.com/bnema/primedictation-export/internal/ports"
)

const (
	DefaultWhisperModel = openai.Whisper1

	whisperRetries   = 2
	whisperBaseDelay = time.Second
)

// audioTranscriber is satisfied by *openai.Client.
type audioTranscriber interface {
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
}

var (
	_ ports.Transcriber = (*Whisper)(nil)
	_ audioTranscriber  = (*openai.Client)(nil)
)

// Whisper transcribes recordings with the OpenAI audio API.
type Whisper struct {
	client    audioTranscriber
	model     string
	baseDelay time.Duration
	log       logging.Logger
}

type WhisperConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

func NewWhisper(cfg WhisperConfig, log logging.Logger) (*Whisper, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("whisper: openai api key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return newWhisper(openai.NewClientWithConfig(clientCfg), cfg.Model, log), nil
}

func newWhisper(client audioTranscriber, model string, log logging.Logger) *Whisper {
	if model == "" {
		model = DefaultWhisperModel
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Whisper{client: client, model: model, baseDelay: whisperBaseDelay, log: log}
}

// Transcribe sends audioPath to the API and writes the text to
// transcriptPath. Rate limits and server errors are retried.
func (w *Whisper) Transcribe(ctx context.Context, audioPath string, transcriptPath string) (string, error) {
	req := openai.AudioRequest{
		Model:    w.model,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatJSON,
	}

	backoff := retry.WithMaxRetries(whisperRetries, retry.NewExponential(w.baseDelay))
	var text string
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, err := w.client.CreateTranscription(ctx, req)
		if err != nil {
			if retryableAPIError(err) {
				w.log.Warn(ctx, "transcription attempt failed", "error", err)
				return retry.RetryableError(err)
			}
			return err
		}
		text = resp.Text
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("transcribe %s: %w", audioPath, err)
	}

	if err := atomicfile.Write(transcriptPath, []byte(text), transcriptFileMode); err != nil {
		return "", err
	}
	return text, nil
}

func retryableAPIError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests:
			return !strings.Contains(apiErr.Message, "quota")
		case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	return domain.IsTransient(err)
}
