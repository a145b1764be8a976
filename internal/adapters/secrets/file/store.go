package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bnema/primedictation-export/internal/atomicfile"
	"github.com/bnema/primedictation-export/internal/domain"
	"github.com/bnema/primedictation-export/internal/ports"
)

const entryMode = 0o600

// Store keeps one file per key below root, so "dropbox/oauth_tokens" lives
// at <root>/dropbox/oauth_tokens.
type Store struct {
	root string
	mu   sync.RWMutex
}

var _ ports.KeyValueStore = (*Store)(nil)

func NewStore(root string) *Store {
	return &Store{root: filepath.Clean(root)}
}

func (s *Store) Root() string {
	return s.root
}

func (s *Store) Put(ctx context.Context, key string, value string) error {
	path, err := s.locate(ctx, key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := atomicfile.Write(path, []byte(value), entryMode); err != nil {
		return fmt.Errorf("write file entry %q: %w", key, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	path, err := s.locate(ctx, key)
	if err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("file entry %q: %w", key, domain.ErrKeyNotFound)
	case err != nil:
		return "", fmt.Errorf("read file entry %q: %w", key, err)
	}
	return string(data), nil
}

// Delete removes the entry and any directories it leaves empty below root.
// Deleting a missing entry succeeds.
func (s *Store) Delete(ctx context.Context, key string) error {
	path, err := s.locate(ctx, key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete file entry %q: %w", key, err)
	}
	s.pruneEmptyParents(filepath.Dir(path))
	return nil
}

func (s *Store) pruneEmptyParents(dir string) {
	for dir != s.root && strings.HasPrefix(dir, s.root+string(filepath.Separator)) {
		if os.Remove(dir) != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// locate maps key to its file path after checking ctx. Keys are relative,
// slash-separated and must stay below root.
func (s *Store) locate(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return "", errors.New("store key is empty")
	}
	cleaned := filepath.Clean(filepath.FromSlash(trimmed))
	if !filepath.IsLocal(cleaned) {
		return "", fmt.Errorf("invalid store key %q", key)
	}
	return filepath.Join(s.root, cleaned), nil
}
