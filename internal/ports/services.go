package ports

import (
	"context"
	"io"
	"time"

	"github.com/bnema/primedictation-export/internal/domain"
)

// IDTokenSource returns a bearer ID token for first-party services.
type IDTokenSource interface {
	IDToken(ctx context.Context, forceRefresh bool) (string, error)
}

type UploadSigner interface {
	PresignUpload(ctx context.Context, bearer string, req domain.PresignRequest) (domain.PresignedUpload, error)
}

type ObjectUploader interface {
	PutObject(ctx context.Context, upload domain.PresignedUpload, body io.Reader, size int64) error
}

type EmailSender interface {
	SendRecording(ctx context.Context, bearer string, req domain.EmailRequest) error
}

type TranscriptSigner interface {
	SignAudioUpload(ctx context.Context, bearer string, bucketPath string, contentType string) (string, error)
	SignTranscript(ctx context.Context, name string, ts time.Time) (string, error)
}

type TranscriptFetcher interface {
	IsFresh(ctx context.Context, signedURL string, notBefore time.Time) (bool, error)
	Download(ctx context.Context, signedURL string, destPath string) (string, error)
}

// Transcriber produces a transcript for audioPath and writes it to
// transcriptPath, returning the text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, transcriptPath string) (string, error)
}

type ExportHistory interface {
	Record(ctx context.Context, record domain.ExportRecord) error
	Recent(ctx context.Context, limit int) ([]domain.ExportRecord, error)
}

// RecordingSource exposes the local files of one recording.
type RecordingSource interface {
	AudioFilePath() string
	TranscriptFilePath() (string, bool)
	BaseFileName() string
	HasTranscription() bool
}
