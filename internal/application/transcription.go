package application

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/bnema/primedictation-export/internal/domain"
	"github.com/bnema/primedictation-export/internal/logging"
	"github.com/bnema/primedictation-export/internal/ports"
)

const (
	DefaultTranscriptDeadline = 20 * time.Minute
	DefaultFallbackDeadline   = 60 * time.Second

	defaultPollBase   = 500 * time.Millisecond
	defaultPollCap    = 60 * time.Second
	defaultPollJitter = 300 * time.Millisecond
	pollGrowth        = 1.1
)

var errTranscriptNotReady = errors.New("transcript not ready")

type TranscriptionDeps struct {
	IDTokens ports.IDTokenSource
	Signer   ports.TranscriptSigner
	Objects  ports.ObjectUploader
	Fetcher  ports.TranscriptFetcher
	// Local, when set, transcribes on this machine instead of the remote
	// pipeline.
	Local  ports.Transcriber
	Clock  ports.Clock
	Logger logging.Logger
}

type TranscriptionOptions struct {
	Deadline         time.Duration
	FallbackDeadline time.Duration
	PollBase         time.Duration
	PollCap          time.Duration
	// PollJitter is the upper bound of the random extra wait; negative
	// disables it.
	PollJitter time.Duration
}

// TranscriptionService produces the transcript file of a recording. The
// remote pipeline uploads the audio to a signed URL and polls a signed
// transcript URL until a fresh transcript appears.
type TranscriptionService struct {
	deps TranscriptionDeps
	opts TranscriptionOptions
	log  logging.Logger
}

func NewTranscriptionService(deps TranscriptionDeps, opts TranscriptionOptions) *TranscriptionService {
	if deps.Clock == nil {
		deps.Clock = ports.SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	if opts.Deadline <= 0 {
		opts.Deadline = DefaultTranscriptDeadline
	}
	if opts.FallbackDeadline <= 0 {
		opts.FallbackDeadline = DefaultFallbackDeadline
	}
	if opts.PollBase <= 0 {
		opts.PollBase = defaultPollBase
	}
	if opts.PollCap <= 0 {
		opts.PollCap = defaultPollCap
	}
	if opts.PollJitter < 0 {
		opts.PollJitter = 0
	} else if opts.PollJitter == 0 {
		opts.PollJitter = defaultPollJitter
	}
	return &TranscriptionService{deps: deps, opts: opts, log: deps.Logger}
}

// Transcribe writes the transcript of recording next to its audio, or to
// the recording's transcript path when it has one, and returns the path and
// text.
func (s *TranscriptionService) Transcribe(ctx context.Context, recording ports.RecordingSource) (string, string, error) {
	audioPath := recording.AudioFilePath()
	destPath, _ := recording.TranscriptFilePath()
	if destPath == "" {
		destPath = filepath.Join(filepath.Dir(audioPath), recording.BaseFileName()+".txt")
	}

	if s.deps.Local != nil {
		text, err := s.deps.Local.Transcribe(ctx, audioPath, destPath)
		if err != nil {
			return "", "", fmt.Errorf("transcribe locally: %w", err)
		}
		return destPath, text, nil
	}

	text, err := s.transcribeRemote(ctx, audioPath, recording.BaseFileName(), destPath)
	if err != nil {
		return "", "", err
	}
	return destPath, text, nil
}

func (s *TranscriptionService) transcribeRemote(ctx context.Context, audioPath string, baseName string, destPath string) (string, error) {
	bucketPath := baseName + filepath.Ext(audioPath)
	uploadedAt := s.deps.Clock.Now()

	alreadyUploaded, err := s.uploadAudio(ctx, audioPath, bucketPath)
	if err != nil {
		return "", err
	}

	deadline := s.opts.Deadline
	notBefore := uploadedAt
	if alreadyUploaded {
		deadline = s.opts.FallbackDeadline
		notBefore = time.Time{}
		s.log.Info(ctx, "audio already uploaded; waiting for existing transcript", "name", bucketPath)
	}

	return s.poll(ctx, baseName+".txt", destPath, notBefore, deadline)
}

// uploadAudio reports true when the storage says the object already exists.
func (s *TranscriptionService) uploadAudio(ctx context.Context, audioPath string, bucketPath string) (bool, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return false, fmt.Errorf("open audio: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return false, fmt.Errorf("stat audio: %w", err)
	}

	bearer, err := s.deps.IDTokens.IDToken(ctx, false)
	if err != nil {
		return false, fmt.Errorf("get id token: %w", err)
	}
	const contentType = "audio/mp4"
	signedURL, err := s.deps.Signer.SignAudioUpload(ctx, bearer, bucketPath, contentType)
	if err != nil {
		return false, fmt.Errorf("sign audio upload: %w", err)
	}

	err = s.deps.Objects.PutObject(ctx, domain.PresignedUpload{
		URL:     signedURL,
		Method:  http.MethodPut,
		Headers: map[string]string{"Content-Type": contentType},
		Key:     bucketPath,
	}, file, info.Size())
	if err != nil {
		if code, ok := domain.StatusCode(err); ok && (code == http.StatusForbidden || code == http.StatusConflict) {
			return true, nil
		}
		return false, fmt.Errorf("upload audio: %w", err)
	}
	return false, nil
}

func (s *TranscriptionService) poll(ctx context.Context, name string, destPath string, notBefore time.Time, deadline time.Duration) (string, error) {
	var text string
	backoff := retry.WithMaxDuration(deadline, s.pollBackoff())

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		signedURL, err := s.deps.Signer.SignTranscript(ctx, name, s.deps.Clock.Now())
		if err != nil {
			if domain.IsTransient(err) {
				return retry.RetryableError(err)
			}
			return fmt.Errorf("sign transcript url: %w", err)
		}

		fresh, err := s.deps.Fetcher.IsFresh(ctx, signedURL, notBefore)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			s.log.Debug(ctx, "transcript probe failed", "error", err)
			return retry.RetryableError(errTranscriptNotReady)
		}
		if !fresh {
			return retry.RetryableError(errTranscriptNotReady)
		}

		text, err = s.deps.Fetcher.Download(ctx, signedURL, destPath)
		if err != nil {
			return fmt.Errorf("download transcript: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errTranscriptNotReady) || domain.IsTransient(err) {
			return "", fmt.Errorf("%w after %s", domain.ErrTranscriptionTimeout, deadline)
		}
		return "", err
	}
	return text, nil
}

// pollBackoff waits min(base*1.1^n, cap) plus up to the jitter between
// polls.
func (s *TranscriptionService) pollBackoff() retry.Backoff {
	attempt := 0
	return retry.BackoffFunc(func() (time.Duration, bool) {
		delay := PollDelay(attempt, s.opts.PollBase, s.opts.PollCap)
		attempt++
		if s.opts.PollJitter > 0 {
			delay += rand.N(s.opts.PollJitter)
		}
		return delay, false
	})
}

// PollDelay is the capped growth part of the delay before poll attempt n.
func PollDelay(attempt int, base time.Duration, ceiling time.Duration) time.Duration {
	delay := float64(base) * math.Pow(pollGrowth, float64(attempt))
	if delay >= float64(ceiling) {
		return ceiling
	}
	return time.Duration(delay)
}
