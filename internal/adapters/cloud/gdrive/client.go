// Package gdrive implements the cloud destination API surface over the
// Google Drive REST API v3.
package gdrive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/bnema/primedictation-export/internal/adapters/cloud/transport"
	"github.com/bnema/primedictation-export/internal/domain"
	"github.com/bnema/primedictation-export/internal/logging"
	"github.com/bnema/primedictation-export/internal/ports"
)

const (
	DefaultAPIURL = "https://www.googleapis.com"

	folderMimeType = "application/vnd.google-apps.folder"
	listPageSize   = 200
	probePageSize  = 1000
	// maxParentsPerProbe keeps the batched query string well under URL limits.
	maxParentsPerProbe = 40
	uploadTimeout      = 2 * time.Minute
)

type Config struct {
	APIURL     string
	HTTPClient *http.Client
	Tokens     transport.TokenSource
	Logger     logging.Logger
}

type Client struct {
	api    transport.Client
	apiURL string
	root   domain.ProviderProfile
}

var (
	_ ports.CloudProvider        = (*Client)(nil)
	_ ports.BatchSubfolderProber = (*Client)(nil)
	_ ports.FileProber           = (*Client)(nil)
)

func New(cfg Config) *Client {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	profile, _ := domain.ProfileFor(domain.ProviderGoogleDrive)
	return &Client{
		api: transport.Client{
			HTTPClient: cfg.HTTPClient,
			Tokens:     cfg.Tokens,
			Logger:     cfg.Logger,
		},
		apiURL: strings.TrimRight(cfg.APIURL, "/"),
		root:   profile,
	}
}

type file struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	MimeType string   `json:"mimeType"`
	Trashed  bool     `json:"trashed"`
	Parents  []string `json:"parents"`
	Size     string   `json:"size"`
}

type fileList struct {
	Files         []file `json:"files"`
	NextPageToken string `json:"nextPageToken"`
}

type uploadMetadata struct {
	Name     string   `json:"name"`
	MimeType string   `json:"mimeType,omitempty"`
	Parents  []string `json:"parents,omitempty"`
}

// quote renders s as a Drive query string literal.
func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}

func (c *Client) parentID(ref domain.FolderRef) string {
	if ref.ID == "" {
		return c.root.RootID
	}
	return ref.ID
}

func (c *Client) isRoot(id string) bool {
	return id == "" || id == c.root.RootID
}

func childFolderQuery(parent string) string {
	return quote(parent) + " in parents and mimeType = " + quote(folderMimeType) + " and trashed = false"
}

func (c *Client) ListFolders(ctx context.Context, parent domain.FolderRef, cursor string) (domain.FolderPage, error) {
	params := url.Values{}
	params.Set("q", childFolderQuery(c.parentID(parent)))
	params.Set("fields", "nextPageToken,files(id,name)")
	params.Set("orderBy", "name")
	params.Set("pageSize", strconv.Itoa(listPageSize))
	if cursor != "" {
		params.Set("pageToken", cursor)
	}

	list, err := c.list(ctx, "list folders", params)
	if err != nil {
		return domain.FolderPage{}, err
	}

	page := domain.FolderPage{NextCursor: list.NextPageToken}
	for _, f := range list.Files {
		name := f.Name
		if name == "" {
			name = "(untitled)"
		}
		page.Folders = append(page.Folders, domain.FolderNode{
			ID:   f.ID,
			Name: name,
			Path: joinPath(parent.Path, name),
		})
	}
	return page, nil
}

// GetFolder looks a folder up by id. Drive has no path addressing, so a
// reference without an id is reported as not found.
func (c *Client) GetFolder(ctx context.Context, ref domain.FolderRef) (domain.FolderNode, error) {
	if ref.ID == c.root.RootID {
		return c.root.RootNode(), nil
	}
	if ref.ID == "" {
		return domain.FolderNode{}, fmt.Errorf("get folder %q: path lookup unsupported: %w", ref.Path, domain.ErrFolderNotFound)
	}

	params := url.Values{}
	params.Set("fields", "id,name,mimeType,trashed")
	params.Set("supportsAllDrives", "true")

	var f file
	err := c.api.DoJSON(ctx, transport.Request{
		Op:     "get folder",
		Method: http.MethodGet,
		URL:    c.apiURL + "/drive/v3/files/" + url.PathEscape(ref.ID) + "?" + params.Encode(),
	}, &f)
	if err != nil {
		if code, ok := domain.StatusCode(err); ok && code == http.StatusNotFound {
			return domain.FolderNode{}, fmt.Errorf("get folder %q: %w", ref.ID, domain.ErrFolderNotFound)
		}
		return domain.FolderNode{}, err
	}
	if f.Trashed || f.MimeType != folderMimeType {
		return domain.FolderNode{}, fmt.Errorf("get folder %q: trashed or not a folder: %w", ref.ID, domain.ErrFolderNotFound)
	}

	folderPath := "/" + f.Name
	if ref.Path != "" {
		folderPath = joinPath(path.Dir("/"+strings.TrimPrefix(ref.Path, "/")), f.Name)
	}
	return domain.FolderNode{ID: f.ID, Name: f.Name, Path: folderPath}, nil
}

func (c *Client) HasSubfolders(ctx context.Context, ref domain.FolderRef) (bool, error) {
	params := url.Values{}
	params.Set("q", childFolderQuery(c.parentID(ref)))
	params.Set("fields", "files(id)")
	params.Set("pageSize", "1")

	list, err := c.list(ctx, "probe subfolders", params)
	if err != nil {
		return false, err
	}
	return len(list.Files) > 0, nil
}

// ParentsWithSubfolders answers has-subfolders for many parents with one
// query per batch of parents. Every requested id is present in the result.
func (c *Client) ParentsWithSubfolders(ctx context.Context, refs []domain.FolderRef) (map[string]bool, error) {
	result := make(map[string]bool, len(refs))
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		id := c.parentID(ref)
		if _, seen := result[id]; seen {
			continue
		}
		result[id] = false
		ids = append(ids, id)
	}

	for start := 0; start < len(ids); start += maxParentsPerProbe {
		end := min(start+maxParentsPerProbe, len(ids))
		clauses := make([]string, 0, end-start)
		for _, id := range ids[start:end] {
			clauses = append(clauses, quote(id)+" in parents")
		}

		params := url.Values{}
		params.Set("q", "("+strings.Join(clauses, " or ")+") and mimeType = "+quote(folderMimeType)+" and trashed = false")
		params.Set("fields", "nextPageToken,files(parents)")
		params.Set("pageSize", strconv.Itoa(probePageSize))

		for {
			list, err := c.list(ctx, "probe subfolders batch", params)
			if err != nil {
				return nil, err
			}
			for _, f := range list.Files {
				for _, parent := range f.Parents {
					if _, requested := result[parent]; requested {
						result[parent] = true
					}
				}
			}
			if list.NextPageToken == "" {
				break
			}
			params.Set("pageToken", list.NextPageToken)
		}
	}

	return result, nil
}

func (c *Client) UploadSmall(ctx context.Context, target domain.UploadTarget, body []byte) (domain.RemoteFile, error) {
	meta, err := json.Marshal(c.metadataFor(target))
	if err != nil {
		return domain.RemoteFile{}, fmt.Errorf("encode upload metadata: %w", err)
	}

	var payload bytes.Buffer
	writer := multipart.NewWriter(&payload)
	metaPart, err := writer.CreatePart(textproto.MIMEHeader{"Content-Type": {"application/json; charset=UTF-8"}})
	if err != nil {
		return domain.RemoteFile{}, fmt.Errorf("create metadata part: %w", err)
	}
	if _, err := metaPart.Write(meta); err != nil {
		return domain.RemoteFile{}, fmt.Errorf("write metadata part: %w", err)
	}
	mediaPart, err := writer.CreatePart(textproto.MIMEHeader{"Content-Type": {contentType(target)}})
	if err != nil {
		return domain.RemoteFile{}, fmt.Errorf("create media part: %w", err)
	}
	if _, err := mediaPart.Write(body); err != nil {
		return domain.RemoteFile{}, fmt.Errorf("write media part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return domain.RemoteFile{}, fmt.Errorf("close multipart body: %w", err)
	}

	var f file
	err = c.api.DoJSON(ctx, transport.Request{
		Op:      "upload file",
		Method:  http.MethodPost,
		URL:     c.apiURL + "/upload/drive/v3/files?uploadType=multipart&supportsAllDrives=true&fields=id,name,size",
		Body:    &payload,
		Headers: map[string]string{"Content-Type": "multipart/related; boundary=" + writer.Boundary()},
		Timeout: uploadTimeout,
	}, &f)
	if err != nil {
		return domain.RemoteFile{}, err
	}
	return remoteFile(f, target), nil
}

// CreateUploadSession starts a resumable upload. The returned token is the
// session URL from the Location header.
func (c *Client) CreateUploadSession(ctx context.Context, target domain.UploadTarget) (string, error) {
	body, err := transport.JSONBody(c.metadataFor(target))
	if err != nil {
		return "", err
	}

	headers := map[string]string{
		"Content-Type":          "application/json; charset=UTF-8",
		"X-Upload-Content-Type": contentType(target),
	}
	if target.Size > 0 {
		headers["X-Upload-Content-Length"] = strconv.FormatInt(target.Size, 10)
	}

	resp, release, err := c.api.Do(ctx, transport.Request{
		Op:      "start upload session",
		Method:  http.MethodPost,
		URL:     c.apiURL + "/upload/drive/v3/files?uploadType=resumable&supportsAllDrives=true&fields=id,name,size",
		Body:    body,
		Headers: headers,
	})
	if err != nil {
		return "", err
	}
	defer release()

	if err := transport.CheckStatus("start upload session", resp); err != nil {
		return "", err
	}
	location := resp.Header.Get("Location")
	if location == "" {
		return "", fmt.Errorf("start upload session: missing Location header: %w", domain.ErrSessionCreationFailed)
	}
	return location, nil
}

func (c *Client) UploadChunk(ctx context.Context, sessionURL string, chunk domain.ChunkRange, body []byte) (domain.ChunkResult, error) {
	resp, release, err := c.api.Do(ctx, transport.Request{
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

	// 308 Resume Incomplete acknowledges an intermediate chunk.
	if resp.StatusCode == http.StatusPermanentRedirect {
		return domain.ChunkResult{}, nil
	}
	if err := transport.CheckStatus("upload chunk", resp); err != nil {
		return domain.ChunkResult{}, err
	}

	var f file
	if err := transport.DecodeJSON("upload chunk", resp, &f); err != nil {
		return domain.ChunkResult{}, err
	}
	return domain.ChunkResult{Done: true, File: remoteFile(f, domain.UploadTarget{})}, nil
}

func (c *Client) FindFile(ctx context.Context, target domain.UploadTarget) (domain.RemoteFile, bool, error) {
	params := url.Values{}
	params.Set("q", "name = "+quote(target.FileName)+" and "+quote(c.parentID(target.Folder.Ref()))+" in parents and trashed = false")
	params.Set("fields", "files(id,name,size)")
	params.Set("pageSize", "1")

	list, err := c.list(ctx, "find file", params)
	if err != nil {
		return domain.RemoteFile{}, false, err
	}
	if len(list.Files) == 0 {
		return domain.RemoteFile{}, false, nil
	}
	return remoteFile(list.Files[0], target), true, nil
}

func (c *Client) list(ctx context.Context, op string, params url.Values) (fileList, error) {
	params.Set("supportsAllDrives", "true")
	params.Set("includeItemsFromAllDrives", "true")
	params.Set("spaces", "drive")

	var list fileList
	err := c.api.DoJSON(ctx, transport.Request{
		Op:     op,
		Method: http.MethodGet,
		URL:    c.apiURL + "/drive/v3/files?" + params.Encode(),
	}, &list)
	if err != nil {
		return fileList{}, err
	}
	return list, nil
}

func (c *Client) metadataFor(target domain.UploadTarget) uploadMetadata {
	meta := uploadMetadata{Name: target.FileName, MimeType: target.ContentType}
	if !c.isRoot(target.Folder.FolderID) {
		meta.Parents = []string{target.Folder.FolderID}
	}
	return meta
}

func contentType(target domain.UploadTarget) string {
	if target.ContentType != "" {
		return target.ContentType
	}
	return "application/octet-stream"
}

func joinPath(parent string, name string) string {
	parent = strings.TrimSuffix(parent, "/")
	return parent + "/" + name
}

func remoteFile(f file, target domain.UploadTarget) domain.RemoteFile {
	size, _ := strconv.ParseInt(f.Size, 10, 64)
	name := f.Name
	if name == "" {
		name = target.FileName
	}
	remote := domain.RemoteFile{ID: f.ID, Name: name, Size: size}
	if target.FileName != "" {
		remote.Path = joinPath(target.Folder.LastKnownPath, name)
	}
	return remote
}
