// Package dropbox implements the cloud destination API surface over the
// Dropbox HTTP API v2.
package dropbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/bnema/primedictation-export/internal/adapters/cloud/transport"
	"github.com/bnema/primedictation-export/internal/domain"
	"github.com/bnema/primedictation-export/internal/logging"
	"github.com/bnema/primedictation-export/internal/ports"
)

const (
	DefaultAPIURL     = "https://api.dropboxapi.com"
	DefaultContentURL = "https://content.dropboxapi.com"

	uploadTimeout  = 2 * time.Minute
	maxProbePages  = 3
	defaultPageMax = 2000
)

type Config struct {
	APIURL     string
	ContentURL string
	HTTPClient *http.Client
	Tokens     transport.TokenSource
	Logger     logging.Logger
	PageLimit  int
}

type Client struct {
	api        transport.Client
	apiURL     string
	contentURL string
	pageLimit  int

	mu       sync.Mutex
	sessions map[string]commitInfo
}

var (
	_ ports.CloudProvider = (*Client)(nil)
	_ ports.FileProber    = (*Client)(nil)
)

func New(cfg Config) *Client {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.ContentURL == "" {
		cfg.ContentURL = DefaultContentURL
	}
	if cfg.PageLimit <= 0 || cfg.PageLimit > defaultPageMax {
		cfg.PageLimit = defaultPageMax
	}
	return &Client{
		api: transport.Client{
			HTTPClient: cfg.HTTPClient,
			Tokens:     cfg.Tokens,
			Logger:     cfg.Logger,
		},
		apiURL:     strings.TrimRight(cfg.APIURL, "/"),
		contentURL: strings.TrimRight(cfg.ContentURL, "/"),
		pageLimit:  cfg.PageLimit,
		sessions:   map[string]commitInfo{},
	}
}

type metadata struct {
	Tag         string `json:".tag"`
	ID          string `json:"id"`
	Name        string `json:"name"`
	PathLower   string `json:"path_lower"`
	PathDisplay string `json:"path_display"`
	Size        int64  `json:"size"`
}

type listFolderResult struct {
	Entries []metadata `json:"entries"`
	Cursor  string     `json:"cursor"`
	HasMore bool       `json:"has_more"`
}

type apiError struct {
	ErrorSummary string `json:"error_summary"`
}

type commitInfo struct {
	Path       string `json:"path"`
	Mode       string `json:"mode"`
	Autorename bool   `json:"autorename"`
	Mute       bool   `json:"mute"`
}

type sessionCursor struct {
	SessionID string `json:"session_id"`
	Offset    int64  `json:"offset"`
}

// apiPath maps a folder reference to the path argument of the API. The
// synthetic root and the empty path both mean the Dropbox root "".
func apiPath(ref domain.FolderRef) string {
	if ref.ID == domain.DropboxRootID || (ref.ID == "" && (ref.Path == "" || ref.Path == "/")) {
		return ""
	}
	if strings.HasPrefix(ref.ID, "id:") {
		return ref.ID
	}
	if ref.Path != "" {
		return "/" + strings.TrimPrefix(ref.Path, "/")
	}
	return ref.ID
}

func filePath(folder domain.FolderSelection, name string) string {
	parent := apiPath(folder.Ref())
	if parent == "" {
		return "/" + name
	}
	return parent + "/" + name
}

func (c *Client) ListFolders(ctx context.Context, parent domain.FolderRef, cursor string) (domain.FolderPage, error) {
	result, err := c.listFolder(ctx, parent, cursor)
	if err != nil {
		return domain.FolderPage{}, err
	}

	page := domain.FolderPage{}
	for _, entry := range result.Entries {
		if entry.Tag != "folder" {
			continue
		}
		page.Folders = append(page.Folders, domain.FolderNode{
			ID:   entry.ID,
			Name: entry.Name,
			Path: entry.PathDisplay,
		})
	}
	if result.HasMore {
		page.NextCursor = result.Cursor
	}
	return page, nil
}

func (c *Client) listFolder(ctx context.Context, parent domain.FolderRef, cursor string) (listFolderResult, error) {
	var (
		endpoint string
		payload  any
	)
	if cursor != "" {
		endpoint = c.apiURL + "/2/files/list_folder/continue"
		payload = map[string]string{"cursor": cursor}
	} else {
		endpoint = c.apiURL + "/2/files/list_folder"
		payload = map[string]any{
			"path":                           apiPath(parent),
			"recursive":                      false,
			"include_mounted_folders":        true,
			"include_non_downloadable_files": false,
			"limit":                          c.pageLimit,
		}
	}

	var result listFolderResult
	if err := c.rpc(ctx, "list folder", endpoint, payload, &result); err != nil {
		return listFolderResult{}, err
	}
	return result, nil
}

func (c *Client) GetFolder(ctx context.Context, ref domain.FolderRef) (domain.FolderNode, error) {
	target := apiPath(ref)
	if target == "" {
		profile, _ := domain.ProfileFor(domain.ProviderDropbox)
		return profile.RootNode(), nil
	}

	var meta metadata
	if err := c.rpc(ctx, "get metadata", c.apiURL+"/2/files/get_metadata", map[string]string{"path": target}, &meta); err != nil {
		return domain.FolderNode{}, err
	}
	if meta.Tag != "folder" {
		return domain.FolderNode{}, fmt.Errorf("get metadata %q: not a folder: %w", target, domain.ErrFolderNotFound)
	}

	return domain.FolderNode{ID: meta.ID, Name: meta.Name, Path: meta.PathDisplay}, nil
}

// HasSubfolders scans at most a few listing pages of ref for a folder entry.
func (c *Client) HasSubfolders(ctx context.Context, ref domain.FolderRef) (bool, error) {
	cursor := ""
	for page := 0; page < maxProbePages; page++ {
		result, err := c.listFolder(ctx, ref, cursor)
		if err != nil {
			return false, err
		}
		for _, entry := range result.Entries {
			if entry.Tag == "folder" {
				return true, nil
			}
		}
		if !result.HasMore {
			return false, nil
		}
		cursor = result.Cursor
	}
	return false, nil
}

func (c *Client) UploadSmall(ctx context.Context, target domain.UploadTarget, body []byte) (domain.RemoteFile, error) {
	arg := commitInfo{Path: filePath(target.Folder, target.FileName), Mode: "add", Autorename: true, Mute: true}

	var meta metadata
	if err := c.content(ctx, "upload file", "/2/files/upload", arg, body, &meta); err != nil {
		return domain.RemoteFile{}, err
	}
	return remoteFile(meta), nil
}

// CreateUploadSession starts an upload session. The returned token is the
// Dropbox session id.
func (c *Client) CreateUploadSession(ctx context.Context, target domain.UploadTarget) (string, error) {
	var result struct {
		SessionID string `json:"session_id"`
	}
	if err := c.content(ctx, "start upload session", "/2/files/upload_session/start", map[string]bool{"close": false}, nil, &result); err != nil {
		return "", err
	}
	if result.SessionID == "" {
		return "", errors.New("start upload session: empty session id")
	}

	c.mu.Lock()
	c.sessions[result.SessionID] = commitInfo{Path: filePath(target.Folder, target.FileName), Mode: "add", Autorename: true, Mute: true}
	c.mu.Unlock()

	return result.SessionID, nil
}

func (c *Client) UploadChunk(ctx context.Context, sessionID string, chunk domain.ChunkRange, body []byte) (domain.ChunkResult, error) {
	cursor := sessionCursor{SessionID: sessionID, Offset: chunk.Start}

	if !chunk.IsLast() {
		arg := map[string]any{"cursor": cursor, "close": false}
		if err := c.content(ctx, "append upload session", "/2/files/upload_session/append_v2", arg, body, nil); err != nil {
			return domain.ChunkResult{}, err
		}
		return domain.ChunkResult{}, nil
	}

	c.mu.Lock()
	commit, ok := c.sessions[sessionID]
	c.mu.Unlock()
	if !ok {
		return domain.ChunkResult{}, fmt.Errorf("finish upload session: unknown session %q", sessionID)
	}

	var meta metadata
	arg := map[string]any{"cursor": cursor, "commit": commit}
	if err := c.content(ctx, "finish upload session", "/2/files/upload_session/finish", arg, body, &meta); err != nil {
		return domain.ChunkResult{}, err
	}

	c.mu.Lock()
	delete(c.sessions, sessionID)
	c.mu.Unlock()

	return domain.ChunkResult{Done: true, File: remoteFile(meta)}, nil
}

func (c *Client) FindFile(ctx context.Context, target domain.UploadTarget) (domain.RemoteFile, bool, error) {
	var meta metadata
	err := c.rpc(ctx, "get metadata", c.apiURL+"/2/files/get_metadata", map[string]string{"path": filePath(target.Folder, target.FileName)}, &meta)
	if err != nil {
		if errors.Is(err, domain.ErrFolderNotFound) {
			return domain.RemoteFile{}, false, nil
		}
		return domain.RemoteFile{}, false, err
	}
	return remoteFile(meta), true, nil
}

func (c *Client) rpc(ctx context.Context, op string, endpoint string, payload any, out any) error {
	body, err := transport.JSONBody(payload)
	if err != nil {
		return err
	}

	resp, release, err := c.api.Do(ctx, transport.Request{
		Op:      op,
		Method:  http.MethodPost,
		URL:     endpoint,
		Body:    body,
		Headers: map[string]string{"Content-Type": "application/json"},
	})
	if err != nil {
		return err
	}
	defer release()

	if err := checkStatus(op, resp); err != nil {
		return err
	}
	return transport.DecodeJSON(op, resp, out)
}

func (c *Client) content(ctx context.Context, op string, endpointPath string, arg any, body []byte, out any) error {
	encodedArg, err := json.Marshal(arg)
	if err != nil {
		return fmt.Errorf("encode %s argument: %w", op, err)
	}

	resp, release, err := c.api.Do(ctx, transport.Request{
		Op:     op,
		Method: http.MethodPost,
		URL:    c.contentURL + endpointPath,
		Body:   bytes.NewReader(body),
		Headers: map[string]string{
			"Content-Type":    "application/octet-stream",
			"Dropbox-API-Arg": asciiJSON(encodedArg),
		},
		Timeout: uploadTimeout,
	})
	if err != nil {
		return err
	}
	defer release()

	if err := checkStatus(op, resp); err != nil {
		return err
	}
	return transport.DecodeJSON(op, resp, out)
}

// checkStatus maps path/not_found conflicts to domain.ErrFolderNotFound.
func checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode != http.StatusConflict {
		return transport.CheckStatus(op, resp)
	}

	statusErr := transport.StatusError(op, resp)
	var typed *domain.StatusError
	if errors.As(statusErr, &typed) {
		var apiErr apiError
		if json.Unmarshal([]byte(typed.Message), &apiErr) == nil && strings.Contains(apiErr.ErrorSummary, "not_found") {
			return fmt.Errorf("%s: %s: %w", op, apiErr.ErrorSummary, domain.ErrFolderNotFound)
		}
	}
	return statusErr
}

// asciiJSON escapes non-ASCII characters, which Dropbox rejects in
// Dropbox-API-Arg headers.
func asciiJSON(raw []byte) string {
	var b strings.Builder
	for _, r := range string(raw) {
		if r < 0x80 {
			b.WriteRune(r)
			continue
		}
		if r > 0xFFFF {
			r -= 0x10000
			fmt.Fprintf(&b, `\u%04x\u%04x`, 0xD800+(r>>10), 0xDC00+(r&0x3FF))
			continue
		}
		fmt.Fprintf(&b, `\u%04x`, r)
	}
	return b.String()
}

func remoteFile(meta metadata) domain.RemoteFile {
	name := meta.Name
	if name == "" {
		name = path.Base(meta.PathDisplay)
	}
	return domain.RemoteFile{ID: meta.ID, Name: name, Path: meta.PathDisplay, Size: meta.Size}
}
