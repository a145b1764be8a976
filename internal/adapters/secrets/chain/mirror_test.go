package chain

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	filestore "github.com/bnema/primedictation-export/internal/adapters/secrets/file"
	"github.com/bnema/primedictation-export/internal/domain"
	"github.com/bnema/primedictation-export/internal/logging"
	portmocks "github.com/bnema/primedictation-export/internal/ports/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestMirror(t *testing.T) (*Mirror, *filestore.Store, *filestore.Store) {
	t.Helper()

	root := t.TempDir()
	primary := filestore.NewStore(filepath.Join(root, "primary"))
	backup := filestore.NewStore(filepath.Join(root, "backup"))
	mirror, err := NewMirror(primary, backup, logging.NewNop())
	require.NoError(t, err)
	return mirror, primary, backup
}

func TestMirrorPutWritesBothChannels(t *testing.T) {
	t.Parallel()

	mirror, primary, backup := newTestMirror(t)
	ctx := context.Background()

	require.NoError(t, mirror.Put(ctx, "dropbox_selection", "v1"))

	got, err := primary.Get(ctx, "dropbox_selection")
	require.NoError(t, err)
	assert.Equal(t, "v1", got)
	got, err = backup.Get(ctx, "dropbox_selection")
	require.NoError(t, err)
	assert.Equal(t, "v1", got)
	assert.Zero(t, mirror.Pending())
}

func TestMirrorGetRepairsPrimaryFromBackup(t *testing.T) {
	t.Parallel()

	mirror, primary, backup := newTestMirror(t)
	ctx := context.Background()

	require.NoError(t, backup.Put(ctx, "gdrive_selection", "from-backup"))

	got, err := mirror.Get(ctx, "gdrive_selection")
	require.NoError(t, err)
	assert.Equal(t, "from-backup", got)

	repaired, err := primary.Get(ctx, "gdrive_selection")
	require.NoError(t, err)
	assert.Equal(t, "from-backup", repaired)
}

func TestMirrorGetMissingEverywhereIsKeyNotFound(t *testing.T) {
	t.Parallel()

	mirror, _, _ := newTestMirror(t)

	_, err := mirror.Get(context.Background(), "onedrive_selection")
	require.ErrorIs(t, err, domain.ErrKeyNotFound)
}

func TestMirrorDeleteClearsBothChannels(t *testing.T) {
	t.Parallel()

	mirror, primary, backup := newTestMirror(t)
	ctx := context.Background()

	require.NoError(t, mirror.Put(ctx, "gdrive_selection", "v1"))
	require.NoError(t, mirror.Delete(ctx, "gdrive_selection"))

	_, err := primary.Get(ctx, "gdrive_selection")
	assert.ErrorIs(t, err, domain.ErrKeyNotFound)
	_, err = backup.Get(ctx, "gdrive_selection")
	assert.ErrorIs(t, err, domain.ErrKeyNotFound)
}

func TestMirrorPutToleratesOneChannelAndFlushReplays(t *testing.T) {
	t.Parallel()

	primary := portmocks.NewMockKeyValueStore(t)
	backup := portmocks.NewMockKeyValueStore(t)
	mirror, err := NewMirror(primary, backup, logging.NewNop())
	require.NoError(t, err)

	primary.EXPECT().Put(mock.Anything, "dropbox_selection", "v1").Return(nil).Once()
	backup.EXPECT().Put(mock.Anything, "dropbox_selection", "v1").Return(errors.New("disk full")).Once()

	require.NoError(t, mirror.Put(context.Background(), "dropbox_selection", "v1"))
	assert.Equal(t, 1, mirror.Pending())

	backup.EXPECT().Put(mock.Anything, "dropbox_selection", "v1").Return(nil).Once()

	require.NoError(t, mirror.Flush(context.Background()))
	assert.Zero(t, mirror.Pending())
}

func TestMirrorPutFailsWhenBothChannelsFail(t *testing.T) {
	t.Parallel()

	primary := portmocks.NewMockKeyValueStore(t)
	backup := portmocks.NewMockKeyValueStore(t)
	mirror, err := NewMirror(primary, backup, logging.NewNop())
	require.NoError(t, err)

	primary.EXPECT().Put(mock.Anything, "k", "v").Return(errors.New("settings locked")).Once()
	backup.EXPECT().Put(mock.Anything, "k", "v").Return(errors.New("disk full")).Once()

	err = mirror.Put(context.Background(), "k", "v")
	require.Error(t, err)
	assert.ErrorContains(t, err, "settings locked")
	assert.ErrorContains(t, err, "disk full")
}

func TestMirrorFlushKeepsFailuresPending(t *testing.T) {
	t.Parallel()

	primary := portmocks.NewMockKeyValueStore(t)
	backup := portmocks.NewMockKeyValueStore(t)
	mirror, err := NewMirror(primary, backup, logging.NewNop())
	require.NoError(t, err)

	primary.EXPECT().Delete(mock.Anything, "k").Return(errors.New("locked")).Twice()
	backup.EXPECT().Delete(mock.Anything, "k").Return(nil).Once()

	require.NoError(t, mirror.Delete(context.Background(), "k"))

	err = mirror.Flush(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "flush primary")
	assert.Equal(t, 1, mirror.Pending())
}

// flakyStore fails the operations named in fail and delegates the rest.
type flakyStore struct {
	*filestore.Store
	fail map[string]bool
}

func (s *flakyStore) Put(ctx context.Context, key string, value string) error {
	if s.fail["put"] {
		return errors.New("put unavailable")
	}
	return s.Store.Put(ctx, key, value)
}

func (s *flakyStore) Delete(ctx context.Context, key string) error {
	if s.fail["delete"] {
		return errors.New("delete unavailable")
	}
	return s.Store.Delete(ctx, key)
}

func newFlakyMirror(t *testing.T) (*Mirror, *flakyStore, *flakyStore) {
	t.Helper()

	root := t.TempDir()
	primary := &flakyStore{Store: filestore.NewStore(filepath.Join(root, "primary")), fail: map[string]bool{}}
	backup := &flakyStore{Store: filestore.NewStore(filepath.Join(root, "backup")), fail: map[string]bool{}}
	mirror, err := NewMirror(primary, backup, logging.NewNop())
	require.NoError(t, err)
	return mirror, primary, backup
}

func TestMirrorClearedSelectionStaysClearedWhenBackupDeleteFails(t *testing.T) {
	t.Parallel()

	mirror, primary, backup := newFlakyMirror(t)
	ctx := context.Background()

	require.NoError(t, mirror.Put(ctx, "gdrive_selection", "old"))
	backup.fail["delete"] = true
	require.NoError(t, mirror.Delete(ctx, "gdrive_selection"))
	require.Equal(t, 1, mirror.Pending())

	_, err := mirror.Get(ctx, "gdrive_selection")
	require.ErrorIs(t, err, domain.ErrKeyNotFound)
	_, err = primary.Get(ctx, "gdrive_selection")
	require.ErrorIs(t, err, domain.ErrKeyNotFound, "a pending delete must not be read-repaired")

	backup.fail["delete"] = false
	require.NoError(t, mirror.Flush(ctx))
	assert.Zero(t, mirror.Pending())

	_, err = mirror.Get(ctx, "gdrive_selection")
	require.ErrorIs(t, err, domain.ErrKeyNotFound)
	_, err = backup.Get(ctx, "gdrive_selection")
	require.ErrorIs(t, err, domain.ErrKeyNotFound)
}

func TestMirrorClearedSelectionStaysClearedWhenPrimaryDeleteFails(t *testing.T) {
	t.Parallel()

	mirror, primary, _ := newFlakyMirror(t)
	ctx := context.Background()

	require.NoError(t, mirror.Put(ctx, "gdrive_selection", "old"))
	primary.fail["delete"] = true
	require.NoError(t, mirror.Delete(ctx, "gdrive_selection"))

	_, err := mirror.Get(ctx, "gdrive_selection")
	require.ErrorIs(t, err, domain.ErrKeyNotFound)

	primary.fail["delete"] = false
	require.NoError(t, mirror.Flush(ctx))
	_, err = mirror.Get(ctx, "gdrive_selection")
	require.ErrorIs(t, err, domain.ErrKeyNotFound)
}

func TestMirrorGetServesNewestValueWhenPrimaryPutFails(t *testing.T) {
	t.Parallel()

	mirror, primary, _ := newFlakyMirror(t)
	ctx := context.Background()

	require.NoError(t, mirror.Put(ctx, "dropbox_selection", "v1"))
	primary.fail["put"] = true
	require.NoError(t, mirror.Put(ctx, "dropbox_selection", "v2"))

	got, err := mirror.Get(ctx, "dropbox_selection")
	require.NoError(t, err)
	assert.Equal(t, "v2", got)

	primary.fail["put"] = false
	require.NoError(t, mirror.Flush(ctx))
	stored, err := primary.Get(ctx, "dropbox_selection")
	require.NoError(t, err)
	assert.Equal(t, "v2", stored)
}

func TestNewMirrorRejectsNilStores(t *testing.T) {
	t.Parallel()

	_, err := NewMirror(nil, filestore.NewStore(t.TempDir()), nil)
	require.Error(t, err)
	_, err = NewMirror(filestore.NewStore(t.TempDir()), nil, nil)
	require.Error(t, err)
}
