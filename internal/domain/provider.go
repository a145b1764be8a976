package domain

import (
	"fmt"
	"strings"
)

type Provider string

const (
	ProviderNone        Provider = "none"
	ProviderDropbox     Provider = "dropbox"
	ProviderGoogleDrive Provider = "gdrive"
	ProviderOneDrive    Provider = "onedrive"
	ProviderEmail       Provider = "email"
)

var CloudProviders = []Provider{ProviderDropbox, ProviderGoogleDrive, ProviderOneDrive}

func ParseProvider(raw string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "none":
		return ProviderNone, nil
	case "dropbox":
		return ProviderDropbox, nil
	case "gdrive", "googledrive", "google-drive", "google":
		return ProviderGoogleDrive, nil
	case "onedrive", "one-drive":
		return ProviderOneDrive, nil
	case "email":
		return ProviderEmail, nil
	default:
		return "", fmt.Errorf("unsupported destination %q", raw)
	}
}

func (p Provider) IsCloud() bool {
	switch p {
	case ProviderDropbox, ProviderGoogleDrive, ProviderOneDrive:
		return true
	default:
		return false
	}
}

func (p Provider) DisplayName() string {
	switch p {
	case ProviderDropbox:
		return "Dropbox"
	case ProviderGoogleDrive:
		return "Google Drive"
	case ProviderOneDrive:
		return "OneDrive"
	case ProviderEmail:
		return "Email"
	default:
		return "None"
	}
}

// ProviderProfile captures the per-provider constants that differ between
// otherwise identical cloud destinations.
type ProviderProfile struct {
	Provider     Provider
	RootID       string
	RootName     string
	RootPath     string
	SelectionKey string
	// KeepSelectionOnSignOut preserves the saved folder so it is restored on
	// the next login.
	KeepSelectionOnSignOut bool
}

const DropboxRootID = "__dbx_root__"

func ProfileFor(p Provider) (ProviderProfile, error) {
	switch p {
	case ProviderDropbox:
		return ProviderProfile{
			Provider:               p,
			RootID:                 DropboxRootID,
			RootName:               "Dropbox",
			RootPath:               "",
			SelectionKey:           "dropbox_selection",
			KeepSelectionOnSignOut: true,
		}, nil
	case ProviderGoogleDrive:
		return ProviderProfile{
			Provider:     p,
			RootID:       "root",
			RootName:     "Google Drive",
			RootPath:     "",
			SelectionKey: "gdrive_selection",
		}, nil
	case ProviderOneDrive:
		return ProviderProfile{
			Provider:               p,
			RootID:                 "root",
			RootName:               "OneDrive",
			RootPath:               "",
			SelectionKey:           "onedrive_selection",
			KeepSelectionOnSignOut: true,
		}, nil
	default:
		return ProviderProfile{}, fmt.Errorf("no cloud profile for destination %q", p)
	}
}

func (p ProviderProfile) RootSelection(accountID string) FolderSelection {
	return FolderSelection{
		FolderID:       p.RootID,
		LastKnownPath:  p.RootPath,
		DisplayName:    p.RootName,
		OwnerAccountID: accountID,
	}
}

func (p ProviderProfile) RootNode() FolderNode {
	return FolderNode{ID: p.RootID, Name: p.RootName, Path: p.RootPath}
}

func (p ProviderProfile) IsRoot(selection FolderSelection) bool {
	return selection.FolderID == p.RootID
}
