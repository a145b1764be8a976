package application

import (
	"context"
	"errors"

	"github.com/bnema/primedictation-export/internal/domain"
	"github.com/bnema/primedictation-export/internal/logging"
	"github.com/bnema/primedictation-export/internal/ports"
)

// SelectionResolver turns the saved selection into an upload destination.
// It never fails because a folder vanished: the provider root is always a
// valid answer.
type SelectionResolver struct {
	profile domain.ProviderProfile
	store   *SelectionStore
	browser ports.FolderBrowser
	log     logging.Logger
}

func NewSelectionResolver(profile domain.ProviderProfile, store *SelectionStore, browser ports.FolderBrowser, log logging.Logger) *SelectionResolver {
	if log == nil {
		log = logging.NewNop()
	}
	return &SelectionResolver{
		profile: profile,
		store:   store,
		browser: browser,
		log:     log.With("provider", string(profile.Provider)),
	}
}

// ResolveOrDefault returns the destination folder for accountID. The saved
// id is only looked up when the selection belongs to accountID; otherwise
// the saved path is tried. A resolved selection is persisted with its fresh
// id and path. When the id lookup fails for a reason other than not found,
// the saved selection is used as is and the upload reports the real error.
func (r *SelectionResolver) ResolveOrDefault(ctx context.Context, accountID string) (domain.FolderSelection, error) {
	saved, ok, err := r.store.Load(ctx)
	if err != nil {
		r.log.Warn(ctx, "load saved selection failed; using root", "error", err)
		return r.profile.RootSelection(accountID), nil
	}
	if !ok || r.profile.IsRoot(saved) {
		return r.profile.RootSelection(accountID), nil
	}

	if saved.BelongsTo(accountID) {
		node, err := r.browser.GetFolder(ctx, domain.FolderRef{ID: saved.FolderID, Path: saved.LastKnownPath, DriveID: saved.DriveID})
		switch {
		case err == nil:
			return r.adopt(ctx, node, saved, accountID)
		case errors.Is(err, domain.ErrFolderNotFound):
			r.log.Debug(ctx, "saved folder id no longer resolves", "folder", saved.FolderID)
		default:
			r.log.Warn(ctx, "look up saved folder failed; keeping saved selection", "folder", saved.FolderID, "error", err)
			return saved, nil
		}
	} else {
		r.log.Info(ctx, "saved selection belongs to another account; skipping id lookup", "owner", saved.OwnerAccountID, "account", accountID)
	}

	if saved.LastKnownPath != "" {
		node, err := r.browser.GetFolder(ctx, domain.FolderRef{Path: saved.LastKnownPath, DriveID: saved.DriveID})
		switch {
		case err == nil:
			return r.adopt(ctx, node, saved, accountID)
		case !errors.Is(err, domain.ErrFolderNotFound):
			r.log.Warn(ctx, "look up saved folder path failed", "path", saved.LastKnownPath, "error", err)
		}
	}

	r.log.Warn(ctx, "saved folder is gone; uploading to root", "folder", saved.FolderID, "path", saved.LastKnownPath)
	return r.profile.RootSelection(accountID), nil
}

func (r *SelectionResolver) adopt(ctx context.Context, node domain.FolderNode, saved domain.FolderSelection, accountID string) (domain.FolderSelection, error) {
	resolved := node.Selection(accountID)
	if resolved.DriveID == "" {
		resolved.DriveID = saved.DriveID
	}
	if resolved.DisplayName == "" {
		resolved.DisplayName = saved.DisplayName
	}
	if resolved == saved {
		return resolved, nil
	}

	if err := r.store.Save(ctx, resolved); err != nil {
		r.log.Warn(ctx, "persist refreshed selection failed", "folder", resolved.FolderID, "error", err)
	}
	return resolved, nil
}
