// Package onedrive implements the cloud destination API surface over
// Microsoft Graph v1.0 drive items.
package onedrive

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/bnema/primedictation-export/internal/adapters/cloud/transport"
	"github.com/bnema/primedictation-export/internal/domain"
	"github.com/bnema/primedictation-export/internal/logging"
	"github.com/bnema/primedictation-export/internal/ports"
)

const (
	DefaultAPIURL = "https://graph.microsoft.com/v1.0"

	childSelect     = "$select=id,name,folder,remoteItem,parentReference&$orderby=name&$top=200"
	maxProbePages   = 3
	uploadTimeout   = 2 * time.Minute
	maxNameRunes    = 255
	defaultFileName = "Recording"
)

type Config struct {
	APIURL     string
	HTTPClient *http.Client
	Tokens     transport.TokenSource
	Logger     logging.Logger
}

type Client struct {
	api transport.Client
	// sessions talks to pre-authenticated upload URLs, which reject bearer
	// tokens.
	sessions transport.Client
	apiURL   string
	root     domain.ProviderProfile
}

var (
	_ ports.CloudProvider = (*Client)(nil)
	_ ports.FileProber    = (*Client)(nil)
	_ ports.FileNamer     = (*Client)(nil)
)

func New(cfg Config) *Client {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	profile, _ := domain.ProfileFor(domain.ProviderOneDrive)
	return &Client{
		api: transport.Client{
			HTTPClient: cfg.HTTPClient,
			Tokens:     cfg.Tokens,
			Logger:     cfg.Logger,
		},
		sessions: transport.Client{
			HTTPClient: cfg.HTTPClient,
			Logger:     cfg.Logger,
		},
		apiURL: strings.TrimRight(cfg.APIURL, "/"),
		root:   profile,
	}
}

type folderFacet struct {
	ChildCount *int `json:"childCount"`
}

type parentReference struct {
	DriveID string `json:"driveId"`
	ID      string `json:"id"`
	Path    string `json:"path"`
}

type remoteItem struct {
	ID              string          `json:"id"`
	Folder          *folderFacet    `json:"folder"`
	ParentReference parentReference `json:"parentReference"`
}

type driveItem struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Size            int64           `json:"size"`
	Folder          *folderFacet    `json:"folder"`
	RemoteItem      *remoteItem     `json:"remoteItem"`
	ParentReference parentReference `json:"parentReference"`
}

type childrenPage struct {
	Value    []driveItem `json:"value"`
	NextLink string      `json:"@odata.nextLink"`
}

type uploadSession struct {
	UploadURL string `json:"uploadUrl"`
}

// drivePrefix addresses the drive owning ref, defaulting to the signed-in
// user's drive.
func (c *Client) drivePrefix(driveID string) string {
	if driveID == "" {
		return c.apiURL + "/me/drive"
	}
	return c.apiURL + "/drives/" + url.PathEscape(driveID)
}

func (c *Client) itemURL(ref domain.FolderRef) string {
	if ref.ID == "" || ref.ID == c.root.RootID {
		return c.drivePrefix(ref.DriveID) + "/root"
	}
	return c.drivePrefix(ref.DriveID) + "/items/" + url.PathEscape(ref.ID)
}

// childURL addresses name inside the folder ref using Graph path syntax.
func (c *Client) childURL(ref domain.FolderRef, name string) string {
	return c.itemURL(ref) + ":/" + url.PathEscape(name) + ":"
}

func (c *Client) ListFolders(ctx context.Context, parent domain.FolderRef, cursor string) (domain.FolderPage, error) {
	page, err := c.children(ctx, parent, cursor)
	if err != nil {
		return domain.FolderPage{}, err
	}

	result := domain.FolderPage{NextCursor: page.NextLink}
	for _, item := range page.Value {
		node, ok := folderNode(item, parent)
		if !ok {
			continue
		}
		result.Folders = append(result.Folders, node)
	}
	return result, nil
}

// folderNode maps a listing row to a navigable folder. Shortcuts to folders
// in other drives are addressed through the remote drive.
func folderNode(item driveItem, parent domain.FolderRef) (domain.FolderNode, bool) {
	node := domain.FolderNode{
		ID:      item.ID,
		Name:    item.Name,
		Path:    joinPath(parent.Path, item.Name),
		DriveID: item.ParentReference.DriveID,
	}
	if node.DriveID == "" {
		node.DriveID = parent.DriveID
	}

	var facet *folderFacet
	switch {
	case item.Folder != nil:
		facet = item.Folder
	case item.RemoteItem != nil && item.RemoteItem.Folder != nil:
		facet = item.RemoteItem.Folder
		node.ID = item.RemoteItem.ID
		if item.RemoteItem.ParentReference.DriveID != "" {
			node.DriveID = item.RemoteItem.ParentReference.DriveID
		}
	default:
		return domain.FolderNode{}, false
	}

	if facet.ChildCount != nil {
		count := *facet.ChildCount
		node.ChildCountHint = &count
		if count == 0 {
			node.HasChildren = domain.BoolPtr(false)
		}
	}
	return node, true
}

func (c *Client) GetFolder(ctx context.Context, ref domain.FolderRef) (domain.FolderNode, error) {
	if ref.ID == c.root.RootID {
		node := c.root.RootNode()
		node.DriveID = ref.DriveID
		return node, nil
	}

	endpoint := c.itemURL(ref)
	if ref.ID == "" {
		trimmed := strings.Trim(ref.Path, "/")
		if trimmed == "" {
			return c.root.RootNode(), nil
		}
		endpoint = c.drivePrefix(ref.DriveID) + "/root:/" + escapePath(trimmed) + ":"
	}

	var item driveItem
	err := c.api.DoJSON(ctx, transport.Request{
		Op:     "get folder",
		Method: http.MethodGet,
		URL:    endpoint + "?$select=id,name,folder,remoteItem,parentReference",
	}, &item)
	if err != nil {
		if code, ok := domain.StatusCode(err); ok && code == http.StatusNotFound {
			return domain.FolderNode{}, fmt.Errorf("get folder %q: %w", ref.ID+ref.Path, domain.ErrFolderNotFound)
		}
		return domain.FolderNode{}, err
	}

	node, ok := folderNode(item, domain.FolderRef{DriveID: ref.DriveID})
	if !ok {
		return domain.FolderNode{}, fmt.Errorf("get folder %q: not a folder: %w", ref.ID+ref.Path, domain.ErrFolderNotFound)
	}
	node.HasChildren = nil
	node.Path = joinPath(graphParentPath(item.ParentReference.Path), item.Name)
	return node, nil
}

// graphParentPath turns "/drive/root:/Work/Notes" into "/Work/Notes".
func graphParentPath(raw string) string {
	_, after, found := strings.Cut(raw, "root:")
	if !found {
		return ""
	}
	unescaped, err := url.PathUnescape(after)
	if err != nil {
		return after
	}
	return unescaped
}

func (c *Client) HasSubfolders(ctx context.Context, ref domain.FolderRef) (bool, error) {
	cursor := ""
	for page := 0; page < maxProbePages; page++ {
		result, err := c.children(ctx, ref, cursor)
		if err != nil {
			return false, err
		}
		for _, item := range result.Value {
			if _, ok := folderNode(item, ref); ok {
				return true, nil
			}
		}
		if result.NextLink == "" {
			return false, nil
		}
		cursor = result.NextLink
	}
	return false, nil
}

func (c *Client) children(ctx context.Context, parent domain.FolderRef, cursor string) (childrenPage, error) {
	endpoint := cursor
	if endpoint == "" {
		endpoint = c.itemURL(parent) + "/children?" + childSelect
	}

	var page childrenPage
	if err := c.api.DoJSON(ctx, transport.Request{Op: "list children", Method: http.MethodGet, URL: endpoint}, &page); err != nil {
		return childrenPage{}, err
	}
	return page, nil
}

func (c *Client) UploadSmall(ctx context.Context, target domain.UploadTarget, body []byte) (domain.RemoteFile, error) {
	name := c.SanitizeFileName(target.FileName)

	var item driveItem
	err := c.api.DoJSON(ctx, transport.Request{
		Op:      "upload file",
		Method:  http.MethodPut,
		URL:     c.childURL(target.Folder.Ref(), name) + "/content",
		Body:    bytes.NewReader(body),
		Headers: map[string]string{"Content-Type": contentType(target)},
		Timeout: uploadTimeout,
	}, &item)
	if err != nil {
		return domain.RemoteFile{}, err
	}
	return remoteFile(item, target.Folder), nil
}

// CreateUploadSession returns the pre-authenticated upload URL.
func (c *Client) CreateUploadSession(ctx context.Context, target domain.UploadTarget) (string, error) {
	name := c.SanitizeFileName(target.FileName)
	body, err := transport.JSONBody(map[string]any{
		"item": map[string]string{
			"@microsoft.graph.conflictBehavior": "replace",
			"name":                              name,
		},
	})
	if err != nil {
		return "", err
	}

	var session uploadSession
	err = c.api.DoJSON(ctx, transport.Request{
		Op:      "create upload session",
		Method:  http.MethodPost,
		URL:     c.childURL(target.Folder.Ref(), name) + "/createUploadSession",
		Body:    body,
		Headers: map[string]string{"Content-Type": "application/json"},
	}, &session)
	if err != nil {
		return "", err
	}
	if session.UploadURL == "" {
		return "", fmt.Errorf("create upload session: missing upload url: %w", domain.ErrSessionCreationFailed)
	}
	return session.UploadURL, nil
}

func (c *Client) UploadChunk(ctx context.Context, sessionURL string, chunk domain.ChunkRange, body []byte) (domain.ChunkResult, error) {
	resp, release, err := c.sessions.Do(ctx, transport.Request{
		Op:      "upload chunk",
		Method:  http.MethodPut,
		URL:     sessionURL,
		Body:    bytes.NewReader(body),
		Headers: map[string]string{"Content-Range": chunk.ContentRange()},
		Timeout: uploadTimeout,
	})
	if err != nil {
		return domain.ChunkResult{}, err
	}
	defer release()

	if resp.StatusCode == http.StatusAccepted {
		return domain.ChunkResult{}, nil
	}
	if err := transport.CheckStatus("upload chunk", resp); err != nil {
		return domain.ChunkResult{}, err
	}

	var item driveItem
	if err := transport.DecodeJSON("upload chunk", resp, &item); err != nil {
		return domain.ChunkResult{}, err
	}
	return domain.ChunkResult{Done: true, File: remoteFile(item, domain.FolderSelection{})}, nil
}

func (c *Client) FindFile(ctx context.Context, target domain.UploadTarget) (domain.RemoteFile, bool, error) {
	var item driveItem
	err := c.api.DoJSON(ctx, transport.Request{
		Op:     "find file",
		Method: http.MethodGet,
		URL:    c.childURL(target.Folder.Ref(), c.SanitizeFileName(target.FileName)) + "?$select=id,name,size,parentReference",
	}, &item)
	if err != nil {
		if code, ok := domain.StatusCode(err); ok && code == http.StatusNotFound {
			return domain.RemoteFile{}, false, nil
		}
		return domain.RemoteFile{}, false, err
	}
	return remoteFile(item, target.Folder), true, nil
}

// SanitizeFileName replaces characters OneDrive rejects with "-", keeps the
// name from ending in a space or dot and caps it at 255 characters while
// preserving the extension.
func (c *Client) SanitizeFileName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if strings.ContainsRune(`\/:*?"<>|`, r) || unicode.IsControl(r) {
			b.WriteByte('-')
			continue
		}
		b.WriteRune(r)
	}
	cleaned := b.String()

	trimmed := strings.TrimRight(cleaned, " .")
	if trimmed != cleaned {
		cleaned = trimmed + strings.Repeat("-", len(cleaned)-len(trimmed))
	}
	if cleaned == "" {
		return defaultFileName
	}

	if utf8.RuneCountInString(cleaned) > maxNameRunes {
		ext := path.Ext(cleaned)
		base := strings.TrimSuffix(cleaned, ext)
		maxBase := max(1, maxNameRunes-utf8.RuneCountInString(ext))
		base = string([]rune(base)[:min(maxBase, utf8.RuneCountInString(base))])
		cleaned = base + ext
	}
	return cleaned
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

func contentType(target domain.UploadTarget) string {
	if target.ContentType != "" {
		return target.ContentType
	}
	return "application/octet-stream"
}

func joinPath(parent string, name string) string {
	return strings.TrimSuffix(parent, "/") + "/" + name
}

func remoteFile(item driveItem, folder domain.FolderSelection) domain.RemoteFile {
	file := domain.RemoteFile{ID: item.ID, Name: item.Name, Size: item.Size}
	if parent := graphParentPath(item.ParentReference.Path); parent != "" || item.ParentReference.Path != "" {
		file.Path = joinPath(parent, item.Name)
	} else if item.Name != "" {
		file.Path = joinPath(folder.LastKnownPath, item.Name)
	}
	return file
}
