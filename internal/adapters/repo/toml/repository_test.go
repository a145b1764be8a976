package toml

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bnema/primedictation-export/internal/domain"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T, settingsPath string) *Repository {
	t.Helper()

	config := viper.New()
	config.Set("paths.settings", settingsPath)

	repo, err := NewRepository(config)
	require.NoError(t, err)
	return repo
}

func TestRepositoryRoundTrip(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t, filepath.Join(t.TempDir(), "settings.toml"))
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, "selected_destination", "dropbox"))
	require.NoError(t, repo.Put(ctx, "dropbox_selection", `{"folderId":"id:abc","path":"/Recordings"}`))

	got, err := repo.Get(ctx, "dropbox_selection")
	require.NoError(t, err)
	assert.Equal(t, `{"folderId":"id:abc","path":"/Recordings"}`, got)

	doc, err := repo.load()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"selected_destination": "dropbox",
		"dropbox_selection":    `{"folderId":"id:abc","path":"/Recordings"}`,
	}, doc.Values)
	assert.Equal(t, currentSchemaVersion, doc.Version)
	assert.NotEmpty(t, doc.UpdatedAt)

	require.NoError(t, repo.Delete(ctx, "dropbox_selection"))
	_, err = repo.Get(ctx, "dropbox_selection")
	require.ErrorIs(t, err, domain.ErrKeyNotFound)
}

func TestRepositorySaveCreatesDefaultPathAndEnforcesPermissions(t *testing.T) {
	homeDir := t.TempDir()
	t.Setenv("HOME", homeDir)

	repo, err := NewRepository(viper.New())
	require.NoError(t, err)

	require.NoError(t, repo.Put(context.Background(), "selected_destination", "email"))

	settingsPath := filepath.Join(homeDir, ".primedictation", "settings.toml")
	assert.Equal(t, settingsPath, repo.Path())
	info, err := os.Stat(settingsPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestRepositoryMissingFileBehaviors(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t, filepath.Join(t.TempDir(), "missing", "settings.toml"))

	doc, err := repo.load()
	require.NoError(t, err)
	assert.Empty(t, doc.Values)

	_, err = repo.Get(context.Background(), "gdrive_selection")
	require.ErrorIs(t, err, domain.ErrKeyNotFound)

	require.NoError(t, repo.Delete(context.Background(), "gdrive_selection"))
	_, err = os.Stat(repo.Path())
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestRepositoryMalformedTOMLReturnsError(t *testing.T) {
	t.Parallel()

	settingsPath := filepath.Join(t.TempDir(), "settings.toml")
	require.NoError(t, os.WriteFile(settingsPath, []byte("values = ["), 0o600))

	repo := newTestRepository(t, settingsPath)

	_, err := repo.Get(context.Background(), "any")
	require.Error(t, err)
	assert.ErrorContains(t, err, "decode settings file")
}

func TestRepositoryUnchangedPutDoesNotRewriteFile(t *testing.T) {
	t.Parallel()

	settingsPath := filepath.Join(t.TempDir(), "settings.toml")
	repo := newTestRepository(t, settingsPath)
	repo.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	require.NoError(t, repo.Put(context.Background(), "selected_destination", "dropbox"))
	first, err := os.ReadFile(settingsPath)
	require.NoError(t, err)

	repo.now = func() time.Time { return time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC) }
	require.NoError(t, repo.Put(context.Background(), "selected_destination", "dropbox"))
	require.NoError(t, repo.Delete(context.Background(), "never_set"))

	second, err := os.ReadFile(settingsPath)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
	assert.Contains(t, string(second), "2026-01-02T03:04:05Z")
}

func TestRepositoryPutCanceledContextReturnsContextError(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t, filepath.Join(t.TempDir(), "settings.toml"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := repo.Put(ctx, "selected_destination", "dropbox")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRepositoryConcurrentPutsAcrossInstancesPreserveAllKeys(t *testing.T) {
	t.Parallel()

	settingsPath := filepath.Join(t.TempDir(), "settings.toml")
	repoA := newTestRepository(t, settingsPath)
	repoB := newTestRepository(t, settingsPath)

	const perRepoWrites = 50
	start := make(chan struct{})
	errCh := make(chan error, perRepoWrites*2)
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		<-start
		for i := 0; i < perRepoWrites; i++ {
			errCh <- repoA.Put(context.Background(), "a-"+strconv.Itoa(i), "A")
		}
	}()

	go func() {
		defer wg.Done()
		<-start
		for i := 0; i < perRepoWrites; i++ {
			errCh <- repoB.Put(context.Background(), "b-"+strconv.Itoa(i), "B")
		}
	}()

	close(start)
	wg.Wait()
	close(errCh)

	for err := range errCh {
		require.NoError(t, err)
	}

	doc, err := repoA.load()
	require.NoError(t, err)
	assert.Len(t, doc.Values, perRepoWrites*2)
}

func TestRepositorySerializedTOMLIncludesVersion(t *testing.T) {
	t.Parallel()

	settingsPath := filepath.Join(t.TempDir(), "settings.toml")
	repo := newTestRepository(t, settingsPath)

	require.NoError(t, repo.Put(context.Background(), "selected_destination", "onedrive"))

	data, err := os.ReadFile(settingsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "version = 1")
	assert.Contains(t, string(data), "selected_destination")
	assert.Contains(t, string(data), "onedrive")
}

func TestRepositoryFutureSchemaVersionReturnsError(t *testing.T) {
	t.Parallel()

	settingsPath := filepath.Join(t.TempDir(), "settings.toml")
	require.NoError(t, os.WriteFile(settingsPath, []byte(strings.Join([]string{
		"version = 999",
		"",
		"[values]",
		"",
	}, "\n")), 0o600))

	repo := newTestRepository(t, settingsPath)

	_, err := repo.Get(context.Background(), "selected_destination")
	require.Error(t, err)
	assert.ErrorContains(t, err, "unsupported settings schema version")
}
