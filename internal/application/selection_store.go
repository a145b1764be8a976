package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bnema/primedictation-export/internal/domain"
	"github.com/bnema/primedictation-export/internal/ports"
)

// selectionRecord is the persisted layout of a FolderSelection.
type selectionRecord struct {
	FolderID  string `json:"folderId"`
	Path      string `json:"path,omitempty"`
	Name      string `json:"name,omitempty"`
	AccountID string `json:"accountId,omitempty"`
	DriveID   string `json:"driveId,omitempty"`
}

// SelectionStore persists one provider's folder selection under a fixed key.
// Durability across channels is the job of the underlying store.
type SelectionStore struct {
	store ports.KeyValueStore
	key   string
}

func NewSelectionStore(store ports.KeyValueStore, key string) *SelectionStore {
	return &SelectionStore{store: store, key: key}
}

func (s *SelectionStore) Key() string {
	return s.key
}

func (s *SelectionStore) Save(ctx context.Context, selection domain.FolderSelection) error {
	if selection.IsZero() {
		return fmt.Errorf("save selection %q: empty folder id", s.key)
	}

	raw, err := json.Marshal(selectionRecord{
		FolderID:  selection.FolderID,
		Path:      selection.LastKnownPath,
		Name:      selection.DisplayName,
		AccountID: selection.OwnerAccountID,
		DriveID:   selection.DriveID,
	})
	if err != nil {
		return fmt.Errorf("encode selection %q: %w", s.key, err)
	}

	if err := s.store.Put(ctx, s.key, string(raw)); err != nil {
		return fmt.Errorf("save selection %q: %w", s.key, err)
	}
	return nil
}

// Load returns the saved selection and whether one exists. A record that
// no longer decodes is reported as absent.
func (s *SelectionStore) Load(ctx context.Context) (domain.FolderSelection, bool, error) {
	raw, err := s.store.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, domain.ErrKeyNotFound) {
			return domain.FolderSelection{}, false, nil
		}
		return domain.FolderSelection{}, false, fmt.Errorf("load selection %q: %w", s.key, err)
	}

	var record selectionRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil || strings.TrimSpace(record.FolderID) == "" {
		return domain.FolderSelection{}, false, nil
	}

	return domain.FolderSelection{
		FolderID:       record.FolderID,
		LastKnownPath:  record.Path,
		DisplayName:    record.Name,
		OwnerAccountID: record.AccountID,
		DriveID:        record.DriveID,
	}, true, nil
}

func (s *SelectionStore) Clear(ctx context.Context) error {
	if err := s.store.Delete(ctx, s.key); err != nil && !errors.Is(err, domain.ErrKeyNotFound) {
		return fmt.Errorf("clear selection %q: %w", s.key, err)
	}
	return nil
}

// Flush asks the underlying store to persist buffered writes, if it buffers.
func (s *SelectionStore) Flush(ctx context.Context) error {
	flusher, ok := s.store.(ports.Flusher)
	if !ok {
		return nil
	}
	if err := flusher.Flush(ctx); err != nil {
		return fmt.Errorf("flush selection %q: %w", s.key, err)
	}
	return nil
}
