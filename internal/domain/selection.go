package domain

import (
	"path"
	"strings"
)

// FolderSelection is the durable destination folder of a cloud provider.
// FolderID is the identity; LastKnownPath is only a hint revalidated on use.
type FolderSelection struct {
	FolderID       string
	LastKnownPath  string
	DisplayName    string
	OwnerAccountID string
	// DriveID is set for providers that address folders inside a drive.
	DriveID string
}

func (s FolderSelection) IsZero() bool {
	return s.FolderID == ""
}

func (s FolderSelection) Ref() FolderRef {
	return FolderRef{ID: s.FolderID, Path: s.LastKnownPath, DriveID: s.DriveID}
}

// BelongsTo reports whether the selection can be used by accountID. Unknown
// owners on either side are treated as a match.
func (s FolderSelection) BelongsTo(accountID string) bool {
	if s.OwnerAccountID == "" || accountID == "" {
		return true
	}
	return s.OwnerAccountID == accountID
}

func (s FolderSelection) Display(profile ProviderProfile) string {
	if profile.IsRoot(s) || s.IsZero() {
		return profile.RootName + " (root)"
	}
	if s.DisplayName != "" {
		return s.DisplayName
	}
	if s.LastKnownPath != "" {
		return s.LastKnownPath
	}
	return s.FolderID
}

// SelectedChain maps every ancestor path of the selection to the path of its
// child on the route to the selection, so listings can highlight the route.
// Paths are compared lower-cased.
func SelectedChain(selection FolderSelection) map[string]string {
	chain := map[string]string{}
	p := strings.TrimSpace(selection.LastKnownPath)
	if p == "" || p == "/" {
		return chain
	}
	p = strings.ToLower(path.Clean("/" + strings.TrimPrefix(p, "/")))

	child := p
	for child != "/" {
		parent := path.Dir(child)
		key := parent
		if parent == "/" {
			key = ""
		}
		chain[key] = child
		child = parent
	}
	return chain
}
