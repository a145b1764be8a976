package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/bnema/primedictation-export/internal/domain"
	"github.com/bnema/primedictation-export/internal/logging"
	"github.com/bnema/primedictation-export/internal/ports"
)

const (
	DefaultUploadAttempts   = 2
	DefaultUploadRetryDelay = 500 * time.Millisecond
)

type UploaderOptions struct {
	SmallFileLimit int64
	ChunkSize      int64
	// Attempts bounds every provider call, the first try included.
	Attempts   int
	RetryDelay time.Duration
	Logger     logging.Logger
}

// Uploader sends one local file to a cloud folder, choosing a single
// request or a chunked session by size. Transient network failures are
// retried inline; everything else is terminal for the call.
type Uploader struct {
	files  ports.FileUploader
	prober ports.FileProber
	namer  ports.FileNamer
	opts   UploaderOptions
	log    logging.Logger
}

// NewUploader builds an uploader. files may also implement ports.FileProber
// and ports.FileNamer.
func NewUploader(files ports.FileUploader, opts UploaderOptions) *Uploader {
	if opts.SmallFileLimit <= 0 {
		opts.SmallFileLimit = domain.DefaultSmallFileLimit
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = domain.DefaultChunkSize
	}
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultUploadAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultUploadRetryDelay
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}

	prober, _ := files.(ports.FileProber)
	namer, _ := files.(ports.FileNamer)
	return &Uploader{files: files, prober: prober, namer: namer, opts: opts, log: opts.Logger}
}

// Upload sends localPath into folder as fileName.
func (u *Uploader) Upload(ctx context.Context, folder domain.FolderSelection, localPath string, fileName string, contentType string) (domain.RemoteFile, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return domain.RemoteFile{}, fmt.Errorf("stat upload source: %w", err)
	}
	if info.IsDir() {
		return domain.RemoteFile{}, fmt.Errorf("upload source %q is a directory", localPath)
	}

	if u.namer != nil {
		fileName = u.namer.SanitizeFileName(fileName)
	}
	target := domain.UploadTarget{
		Folder:      folder,
		FileName:    fileName,
		ContentType: contentType,
		Size:        info.Size(),
	}

	var file domain.RemoteFile
	if target.Size <= u.opts.SmallFileLimit {
		file, err = u.uploadSmall(ctx, localPath, target)
	} else {
		file, err = u.uploadChunked(ctx, localPath, target)
	}
	if err == nil {
		u.log.Debug(ctx, "upload finished", "file", file.Name, "bytes", target.Size)
		return file, nil
	}

	if code, ok := domain.StatusCode(err); ok && code == http.StatusForbidden && u.prober != nil {
		if existing, found := u.probeExisting(ctx, target); found {
			return existing, nil
		}
	}
	return domain.RemoteFile{}, err
}

func (u *Uploader) uploadSmall(ctx context.Context, localPath string, target domain.UploadTarget) (domain.RemoteFile, error) {
	body, err := os.ReadFile(localPath)
	if err != nil {
		return domain.RemoteFile{}, fmt.Errorf("read upload source: %w", err)
	}

	var file domain.RemoteFile
	err = u.withRetry(ctx, "upload file", func(ctx context.Context) error {
		var err error
		file, err = u.files.UploadSmall(ctx, target, body)
		return err
	})
	if err != nil {
		return domain.RemoteFile{}, fmt.Errorf("upload %q: %w", target.FileName, err)
	}
	return file, nil
}

func (u *Uploader) uploadChunked(ctx context.Context, localPath string, target domain.UploadTarget) (domain.RemoteFile, error) {
	source, err := os.Open(localPath)
	if err != nil {
		return domain.RemoteFile{}, fmt.Errorf("open upload source: %w", err)
	}
	defer source.Close()

	var session string
	err = u.withRetry(ctx, "create upload session", func(ctx context.Context) error {
		var err error
		session, err = u.files.CreateUploadSession(ctx, target)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrSessionCreationFailed) {
			return domain.RemoteFile{}, fmt.Errorf("upload %q: %w", target.FileName, err)
		}
		return domain.RemoteFile{}, fmt.Errorf("upload %q: %w: %w", target.FileName, domain.ErrSessionCreationFailed, err)
	}

	chunks := domain.SplitChunks(target.Size, u.opts.ChunkSize)
	buf := make([]byte, u.opts.ChunkSize)
	for _, chunk := range chunks {
		body := buf[:chunk.Len()]
		if _, err := io.ReadFull(io.NewSectionReader(source, chunk.Start, chunk.Len()), body); err != nil {
			return domain.RemoteFile{}, fmt.Errorf("read upload chunk %s: %w", chunk.ContentRange(), err)
		}

		var result domain.ChunkResult
		err := u.withRetry(ctx, "upload chunk", func(ctx context.Context) error {
			var err error
			result, err = u.files.UploadChunk(ctx, session, chunk, body)
			return err
		})
		if err != nil {
			return domain.RemoteFile{}, fmt.Errorf("upload %q chunk %s: %w: %w", target.FileName, chunk.ContentRange(), domain.ErrChunkFailed, err)
		}
		u.log.Debug(ctx, "chunk accepted", "file", target.FileName, "range", chunk.ContentRange())

		if result.Done {
			return result.File, nil
		}
	}

	return domain.RemoteFile{}, fmt.Errorf("upload %q: session ended without file metadata: %w", target.FileName, domain.ErrChunkFailed)
}

// probeExisting checks whether a rejected upload already landed, as happens
// when an earlier attempt completed but its response was lost.
func (u *Uploader) probeExisting(ctx context.Context, target domain.UploadTarget) (domain.RemoteFile, bool) {
	file, found, err := u.prober.FindFile(ctx, target)
	if err != nil {
		u.log.Warn(ctx, "existence probe after rejected upload failed", "file", target.FileName, "error", err)
		return domain.RemoteFile{}, false
	}
	if !found {
		return domain.RemoteFile{}, false
	}
	u.log.Warn(ctx, "upload rejected but file already exists; treating as uploaded", "file", file.Name)
	return file, true
}

func (u *Uploader) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempt := 0
	backoff := retry.WithMaxRetries(uint64(u.opts.Attempts-1), retry.NewConstant(u.opts.RetryDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err != nil && domain.IsTransient(err) {
			u.log.Warn(ctx, "transient failure", "op", op, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
}
