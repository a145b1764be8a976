package application

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/stretchr/testify/mock"

	"github.com/bnema/primedictation-export/internal/domain"
)

func mockAnyContext() interface{} {
	return mock.Anything
}

type memoryStore struct {
	mu     sync.Mutex
	values map[string]string
	puts   atomic.Int32
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}}
}

func (s *memoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	if !ok {
		return "", fmt.Errorf("get %q: %w", key, domain.ErrKeyNotFound)
	}
	return value, nil
}

func (s *memoryStore) Put(_ context.Context, key string, value string) error {
	s.puts.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

func (s *memoryStore) raw(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key]
}

type smallUpload struct {
	target domain.UploadTarget
	size   int
}

type chunkUpload struct {
	session string
	chunk   domain.ChunkRange
	size    int
}

// fakeCloud is an in-memory provider. Folders are keyed by id; root
// children hang off rootID.
type fakeCloud struct {
	rootID string

	mu       sync.Mutex
	folders  map[string]domain.FolderNode
	children map[string][]string
	files    map[string]domain.RemoteFile

	pageSize int

	small  []smallUpload
	chunks []chunkUpload

	smallErrs  []error
	chunkErrs  []error
	getErrs    map[string]error
	probeErr   error
	probeCalls atomic.Int32
	getCalls   atomic.Int32
}

func newFakeCloud(rootID string) *fakeCloud {
	return &fakeCloud{
		rootID:   rootID,
		folders:  map[string]domain.FolderNode{},
		children: map[string][]string{},
		files:    map[string]domain.RemoteFile{},
		getErrs:  map[string]error{},
	}
}

func (f *fakeCloud) addFolder(parentID string, id string, name string) domain.FolderNode {
	f.mu.Lock()
	defer f.mu.Unlock()

	parentPath := ""
	if parent, ok := f.folders[parentID]; ok {
		parentPath = parent.Path
	}
	node := domain.FolderNode{ID: id, Name: name, Path: parentPath + "/" + name}
	f.folders[id] = node
	f.children[parentID] = append(f.children[parentID], id)
	return node
}

func (f *fakeCloud) ListFolders(_ context.Context, parent domain.FolderRef, cursor string) (domain.FolderPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := f.children[parent.ID]
	start := 0
	if cursor != "" {
		_, _ = fmt.Sscanf(cursor, "%d", &start)
	}
	end := len(ids)
	if f.pageSize > 0 && start+f.pageSize < end {
		end = start + f.pageSize
	}

	page := domain.FolderPage{}
	for _, id := range ids[start:end] {
		page.Folders = append(page.Folders, f.folders[id])
	}
	if end < len(ids) {
		page.NextCursor = fmt.Sprintf("%d", end)
	}
	return page, nil
}

func (f *fakeCloud) GetFolder(_ context.Context, ref domain.FolderRef) (domain.FolderNode, error) {
	f.getCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()

	if ref.ID != "" {
		if err := f.getErrs[ref.ID]; err != nil {
			return domain.FolderNode{}, err
		}
		if node, ok := f.folders[ref.ID]; ok {
			return node, nil
		}
		return domain.FolderNode{}, fmt.Errorf("get %q: %w", ref.ID, domain.ErrFolderNotFound)
	}
	for _, node := range f.folders {
		if strings.EqualFold(node.Path, ref.Path) {
			return node, nil
		}
	}
	return domain.FolderNode{}, fmt.Errorf("get path %q: %w", ref.Path, domain.ErrFolderNotFound)
}

func (f *fakeCloud) HasSubfolders(_ context.Context, ref domain.FolderRef) (bool, error) {
	f.probeCalls.Add(1)
	if f.probeErr != nil {
		return false, f.probeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.children[ref.ID]) > 0, nil
}

func (f *fakeCloud) UploadSmall(_ context.Context, target domain.UploadTarget, body []byte) (domain.RemoteFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.small = append(f.small, smallUpload{target: target, size: len(body)})
	if len(f.smallErrs) > 0 {
		err := f.smallErrs[0]
		f.smallErrs = f.smallErrs[1:]
		if err != nil {
			return domain.RemoteFile{}, err
		}
	}
	file := domain.RemoteFile{ID: "file-" + target.FileName, Name: target.FileName, Path: uploadPath(target), Size: int64(len(body))}
	f.files[uploadPath(target)] = file
	return file, nil
}

func (f *fakeCloud) CreateUploadSession(_ context.Context, target domain.UploadTarget) (string, error) {
	return "session:" + uploadPath(target), nil
}

func (f *fakeCloud) UploadChunk(_ context.Context, session string, chunk domain.ChunkRange, body []byte) (domain.ChunkResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.chunks = append(f.chunks, chunkUpload{session: session, chunk: chunk, size: len(body)})
	if len(f.chunkErrs) > 0 {
		err := f.chunkErrs[0]
		f.chunkErrs = f.chunkErrs[1:]
		if err != nil {
			return domain.ChunkResult{}, err
		}
	}
	if !chunk.IsLast() {
		return domain.ChunkResult{}, nil
	}
	name := session[strings.LastIndex(session, "/")+1:]
	return domain.ChunkResult{Done: true, File: domain.RemoteFile{ID: "big", Name: name, Size: chunk.Total}}, nil
}

func (f *fakeCloud) FindFile(_ context.Context, target domain.UploadTarget) (domain.RemoteFile, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[uploadPath(target)]
	return file, ok, nil
}

func uploadPath(target domain.UploadTarget) string {
	return target.Folder.FolderID + "/" + target.FileName
}

// batchCloud adds a batched has-children probe to fakeCloud.
type batchCloud struct {
	*fakeCloud
	batchCalls atomic.Int32
}

func (b *batchCloud) ParentsWithSubfolders(_ context.Context, parents []domain.FolderRef) (map[string]bool, error) {
	b.batchCalls.Add(1)
	b.mu.Lock()
	defer b.mu.Unlock()
	result := map[string]bool{}
	for _, parent := range parents {
		result[parent.ID] = len(b.children[parent.ID]) > 0
	}
	return result, nil
}

type fakeAuthorizer struct {
	session     domain.Session
	silentErr   error
	interactErr error
	signedOut   []bool
	interactive atomic.Int32
}

func (a *fakeAuthorizer) Authorize(_ context.Context, interactive bool) (domain.Session, error) {
	if !interactive {
		if a.silentErr != nil {
			return domain.Session{}, a.silentErr
		}
		return a.session, nil
	}
	a.interactive.Add(1)
	if a.interactErr != nil {
		return domain.Session{}, a.interactErr
	}
	a.silentErr = nil
	return a.session, nil
}

func (a *fakeAuthorizer) SignOut(_ context.Context, revoke bool) error {
	a.signedOut = append(a.signedOut, revoke)
	return nil
}

type fakeRecording struct {
	audio      string
	transcript string
	base       string
}

func (r fakeRecording) AudioFilePath() string {
	return r.audio
}

func (r fakeRecording) TranscriptFilePath() (string, bool) {
	return r.transcript, r.transcript != ""
}

func (r fakeRecording) BaseFileName() string {
	return r.base
}

func (r fakeRecording) HasTranscription() bool {
	return r.transcript != ""
}
