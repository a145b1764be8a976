package ports

import (
	"context"

	"github.com/bnema/primedictation-export/internal/domain"
)

// Authorizer obtains a provider session. A silent call returns an error
// wrapping domain.ErrInteractionRequired when the user must sign in; an
// interactive call returns domain.ErrAuthCancelled when the user backs out.
type Authorizer interface {
	Authorize(ctx context.Context, interactive bool) (domain.Session, error)
	SignOut(ctx context.Context, revoke bool) error
}

// FolderBrowser lists and looks up folders. Listings contain folders only.
// GetFolder returns an error wrapping domain.ErrFolderNotFound when the
// reference no longer resolves.
type FolderBrowser interface {
	ListFolders(ctx context.Context, parent domain.FolderRef, cursor string) (domain.FolderPage, error)
	GetFolder(ctx context.Context, ref domain.FolderRef) (domain.FolderNode, error)
}

type SubfolderProber interface {
	HasSubfolders(ctx context.Context, ref domain.FolderRef) (bool, error)
}

// BatchSubfolderProber answers has-children for many parents in one call.
// The result is keyed by FolderRef.ID.
type BatchSubfolderProber interface {
	ParentsWithSubfolders(ctx context.Context, parents []domain.FolderRef) (map[string]bool, error)
}

type FileUploader interface {
	UploadSmall(ctx context.Context, target domain.UploadTarget, body []byte) (domain.RemoteFile, error)
	CreateUploadSession(ctx context.Context, target domain.UploadTarget) (string, error)
	UploadChunk(ctx context.Context, sessionURL string, chunk domain.ChunkRange, body []byte) (domain.ChunkResult, error)
}

// FileProber checks whether an upload target already exists remotely.
type FileProber interface {
	FindFile(ctx context.Context, target domain.UploadTarget) (domain.RemoteFile, bool, error)
}

// FileNamer adapts file names to provider restrictions.
type FileNamer interface {
	SanitizeFileName(name string) string
}

// CloudProvider is the API surface every cloud destination implements.
// Authorization is provided separately by an Authorizer.
type CloudProvider interface {
	FolderBrowser
	SubfolderProber
	FileUploader
}
