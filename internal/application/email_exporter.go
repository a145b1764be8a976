package application

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"strings"

	"github.com/bnema/primedictation-export/internal/domain"
	"github.com/bnema/primedictation-export/internal/logging"
	"github.com/bnema/primedictation-export/internal/ports"
)

type EmailDeps struct {
	IDTokens ports.IDTokenSource
	Signer   ports.UploadSigner
	Objects  ports.ObjectUploader
	Sender   ports.EmailSender
	Clock    ports.Clock
	Logger   logging.Logger
}

// EmailExporter sends a recording by email: each file goes to object storage
// through a presigned request, then the mail service is asked to send the
// stored keys.
type EmailExporter struct {
	deps EmailDeps
	log  logging.Logger
}

var _ Exporter = (*EmailExporter)(nil)

func NewEmailExporter(deps EmailDeps) *EmailExporter {
	if deps.Clock == nil {
		deps.Clock = ports.SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	return &EmailExporter{deps: deps, log: deps.Logger.With("provider", string(domain.ProviderEmail))}
}

func (e *EmailExporter) Export(ctx context.Context, job domain.ExportJob) (domain.ExportResult, error) {
	result := domain.ExportResult{Job: job, StartedAt: e.deps.Clock.Now()}
	finish := func(status domain.ExportStatus, err error) (domain.ExportResult, error) {
		result.Status = status
		result.FinishedAt = e.deps.Clock.Now()
		return result, err
	}

	to, err := ParseEmail(job.ToEmail)
	if err != nil {
		return finish(domain.ExportStatusFailed, err)
	}
	result.Destination = domain.FolderSelection{FolderID: to, DisplayName: to}

	audioKey := domain.RecordingKeyPrefix + job.FileBaseName + filepath.Ext(job.AudioPath)
	audio, err := e.store(ctx, job.AudioPath, audioKey)
	if err != nil {
		return finish(domain.ExportStatusFailed, fmt.Errorf("store recording: %w", err))
	}
	result.Audio = &audio

	var transcriptErr error
	request := domain.EmailRequest{ToEmail: to, RecordingKey: audio.ID}
	if job.IncludeTranscript && job.TranscriptPath != "" {
		transcriptKey := domain.TranscriptionKeyPrefix + job.FileBaseName + ".txt"
		transcript, err := e.store(ctx, job.TranscriptPath, transcriptKey)
		if err != nil {
			e.log.Warn(ctx, "transcript upload failed; sending recording only", "error", err)
			transcriptErr = fmt.Errorf("%w: %w", domain.ErrTranscriptUploadFailed, err)
		} else {
			result.Transcript = &transcript
			request.TranscriptionKey = transcript.ID
		}
	}

	err = e.withBearer(ctx, func(bearer string) error {
		return e.deps.Sender.SendRecording(ctx, bearer, request)
	})
	if err != nil {
		return finish(domain.ExportStatusFailed, fmt.Errorf("send email: %w", err))
	}
	e.log.Info(ctx, "recording emailed", "key", request.RecordingKey, "transcript", request.TranscriptionKey != "")

	if transcriptErr != nil {
		return finish(domain.ExportStatusPartial, transcriptErr)
	}
	return finish(domain.ExportStatusSucceeded, nil)
}

// store presigns key for the file at localPath and uploads it.
func (e *EmailExporter) store(ctx context.Context, localPath string, key string) (domain.RemoteFile, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return domain.RemoteFile{}, fmt.Errorf("open %q: %w", localPath, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return domain.RemoteFile{}, fmt.Errorf("stat %q: %w", localPath, err)
	}

	var upload domain.PresignedUpload
	err = e.withBearer(ctx, func(bearer string) error {
		var err error
		upload, err = e.deps.Signer.PresignUpload(ctx, bearer, domain.PresignRequest{
			Key:           key,
			ContentType:   ContentTypeFor(key),
			ContentLength: info.Size(),
		})
		return err
	})
	if err != nil {
		return domain.RemoteFile{}, fmt.Errorf("presign %q: %w", key, err)
	}

	if err := e.deps.Objects.PutObject(ctx, upload, file, info.Size()); err != nil {
		return domain.RemoteFile{}, fmt.Errorf("put %q: %w", upload.Key, err)
	}

	return domain.RemoteFile{
		ID:   upload.Key,
		Name: filepath.Base(upload.Key),
		Path: upload.Key,
		Size: info.Size(),
	}, nil
}

// withBearer calls fn with the current ID token and, on a 401, once more
// with a forcibly refreshed one.
func (e *EmailExporter) withBearer(ctx context.Context, fn func(bearer string) error) error {
	bearer, err := e.deps.IDTokens.IDToken(ctx, false)
	if err != nil {
		return fmt.Errorf("get id token: %w", err)
	}

	err = fn(bearer)
	if !errors.Is(err, domain.ErrUnauthorized) {
		return err
	}

	e.log.Debug(ctx, "bearer rejected; refreshing id token")
	bearer, refreshErr := e.deps.IDTokens.IDToken(ctx, true)
	if refreshErr != nil {
		return errors.Join(err, fmt.Errorf("refresh id token: %w", refreshErr))
	}
	return fn(bearer)
}

// ParseEmail validates a single bare address.
func ParseEmail(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", domain.ErrInvalidEmail)
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidEmail, raw)
	}
	return addr.Address, nil
}
