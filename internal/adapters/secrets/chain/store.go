package chain

import (
	"context"
	"errors"
	"fmt"

	filestore "github.com/bnema/primedictation-export/internal/adapters/secrets/file"
	passstore "github.com/bnema/primedictation-export/internal/adapters/secrets/pass"
	"github.com/bnema/primedictation-export/internal/domain"
	"github.com/bnema/primedictation-export/internal/ports"
)

// Store keeps provider tokens in the first backend that accepts them and
// reads them back in the same order. Delete clears every backend, so a copy
// parked in the fallback after a pass outage cannot revive a signed-out
// provider.
type Store struct {
	tiers []tier
}

type tier struct {
	name  string
	store ports.KeyValueStore
}

var _ ports.KeyValueStore = (*Store)(nil)

var (
	errNilPrimaryStore  = errors.New("primary store is nil")
	errNilFallbackStore = errors.New("fallback store is nil")
)

func NewStore(primary ports.KeyValueStore, fallback ports.KeyValueStore) (*Store, error) {
	return newNamedStore("primary", primary, "fallback", fallback)
}

// NewPassFirstWithFileFallback prefers the user's pass vault and falls back to
// 0600 files under fileRoot.
func NewPassFirstWithFileFallback(fileRoot string) (*Store, error) {
	return newNamedStore("pass", passstore.NewStore(), "file", filestore.NewStore(fileRoot))
}

func newNamedStore(primaryName string, primary ports.KeyValueStore, fallbackName string, fallback ports.KeyValueStore) (*Store, error) {
	if primary == nil {
		return nil, errNilPrimaryStore
	}
	if fallback == nil {
		return nil, errNilFallbackStore
	}

	return &Store{tiers: []tier{
		{name: primaryName, store: primary},
		{name: fallbackName, store: fallback},
	}}, nil
}

func (s *Store) Put(ctx context.Context, key string, value string) error {
	var errs []error
	for _, t := range s.tiers {
		err := t.store.Put(ctx, key, value)
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s put: %w", t.name, err))
		if shouldSkipFallback(err) {
			break
		}
	}

	return errors.Join(errs...)
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var errs []error
	for _, t := range s.tiers {
		value, err := t.store.Get(ctx, key)
		if err == nil {
			return value, nil
		}
		errs = append(errs, fmt.Errorf("%s get: %w", t.name, err))
		if shouldSkipFallback(err) {
			break
		}
	}

	return "", errors.Join(errs...)
}

// Delete removes key from every backend. A backend that never held the key
// counts as cleared.
func (s *Store) Delete(ctx context.Context, key string) error {
	var errs []error
	for _, t := range s.tiers {
		err := t.store.Delete(ctx, key)
		if err == nil || errors.Is(err, domain.ErrKeyNotFound) {
			continue
		}
		errs = append(errs, fmt.Errorf("%s delete: %w", t.name, err))
		if shouldSkipFallback(err) {
			break
		}
	}

	return errors.Join(errs...)
}

func shouldSkipFallback(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
