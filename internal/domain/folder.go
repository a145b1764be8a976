package domain

// FolderRef addresses a folder by id, by path, or both.
type FolderRef struct {
	ID      string
	Path    string
	DriveID string
}

// FolderNode is a transient listing row. HasChildren is nil until known.
type FolderNode struct {
	ID             string
	Name           string
	Path           string
	DriveID        string
	HasChildren    *bool
	ChildCountHint *int
}

func (n FolderNode) Ref() FolderRef {
	return FolderRef{ID: n.ID, Path: n.Path, DriveID: n.DriveID}
}

func (n FolderNode) Selection(accountID string) FolderSelection {
	return FolderSelection{
		FolderID:       n.ID,
		LastKnownPath:  n.Path,
		DisplayName:    n.Name,
		OwnerAccountID: accountID,
		DriveID:        n.DriveID,
	}
}

type FolderPage struct {
	Folders    []FolderNode
	NextCursor string
}

func (p FolderPage) HasMore() bool {
	return p.NextCursor != ""
}

func BoolPtr(v bool) *bool {
	return &v
}
