package toml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bnema/primedictation-export/internal/atomicfile"
	"github.com/bnema/primedictation-export/internal/domain"
	"github.com/bnema/primedictation-export/internal/ports"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	settingsPathKey  = "paths.settings"
	settingsFileMode = 0o600
	defaultDirName   = ".primedictation"
	defaultFileName  = "settings.toml"
)

// Repository is the primary settings channel: one versioned TOML file of
// small string values such as folder selections and the selected
// destination.
type Repository struct {
	path string
	mu   *sync.RWMutex
	now  func() time.Time
}

var _ ports.KeyValueStore = (*Repository)(nil)

// fileLocks serializes every Repository that points at the same file.
var fileLocks sync.Map

func NewRepository(cfg *viper.Viper) (*Repository, error) {
	if cfg == nil {
		cfg = viper.New()
	}
	if !cfg.IsSet(settingsPathKey) {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		cfg.SetDefault(settingsPathKey, filepath.Join(home, defaultDirName, defaultFileName))
	}

	raw := cfg.GetString(settingsPathKey)
	if raw == "" {
		return nil, errors.New("settings path is empty")
	}
	path, err := filepath.Abs(raw)
	if err != nil {
		return nil, fmt.Errorf("resolve settings path: %w", err)
	}

	mu, _ := fileLocks.LoadOrStore(path, &sync.RWMutex{})
	return &Repository{path: path, mu: mu.(*sync.RWMutex), now: time.Now}, nil
}

func (r *Repository) Path() string {
	return r.path
}

func (r *Repository) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, err := r.load()
	if err != nil {
		return "", err
	}
	value, ok := doc.Values[key]
	if !ok {
		return "", fmt.Errorf("get setting %q: %w", key, domain.ErrKeyNotFound)
	}
	return value, nil
}

func (r *Repository) Put(ctx context.Context, key string, value string) error {
	return r.modify(ctx, func(values map[string]string) bool {
		if current, ok := values[key]; ok && current == value {
			return false
		}
		values[key] = value
		return true
	})
}

// Delete of an absent key leaves the file untouched.
func (r *Repository) Delete(ctx context.Context, key string) error {
	return r.modify(ctx, func(values map[string]string) bool {
		_, ok := values[key]
		delete(values, key)
		return ok
	})
}

// modify applies change under the write lock and rewrites the file only
// when change reports a difference.
func (r *Repository) modify(ctx context.Context, change func(map[string]string) bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.load()
	if err != nil {
		return err
	}
	if !change(doc.Values) {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	doc.UpdatedAt = r.now().UTC().Format(time.RFC3339)
	data, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode settings file: %w", err)
	}
	if err := atomicfile.Write(r.path, data, settingsFileMode); err != nil {
		return fmt.Errorf("save settings file: %w", err)
	}
	return nil
}

// load reads the settings file. A missing file is an empty document.
func (r *Repository) load() (fileSchema, error) {
	var doc fileSchema

	data, err := os.ReadFile(r.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return fileSchema{}, fmt.Errorf("read settings file: %w", err)
	default:
		if err := toml.Unmarshal(data, &doc); err != nil {
			return fileSchema{}, fmt.Errorf("decode settings file: %w", err)
		}
		if err := doc.validateVersion(); err != nil {
			return fileSchema{}, err
		}
	}

	doc.applyDefaults()
	return doc, nil
}
