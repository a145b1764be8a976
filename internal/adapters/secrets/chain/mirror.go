package chain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/bnema/primedictation-export/internal/domain"
	"github.com/bnema/primedictation-export/internal/logging"
	"github.com/bnema/primedictation-export/internal/ports"
)

// Mirror writes every value to both channels and reads primary first. A
// value only found in the backup is copied back into primary. Writes that
// reached one channel but not the other are remembered and replayed by Flush.
type Mirror struct {
	primary ports.KeyValueStore
	backup  ports.KeyValueStore
	log     logging.Logger

	mu      sync.Mutex
	pending map[string]pendingWrite
}

type pendingWrite struct {
	value   string
	deleted bool
	primary bool
	backup  bool
}

var (
	_ ports.KeyValueStore = (*Mirror)(nil)
	_ ports.Flusher       = (*Mirror)(nil)
)

func NewMirror(primary ports.KeyValueStore, backup ports.KeyValueStore, log logging.Logger) (*Mirror, error) {
	if primary == nil {
		return nil, errNilPrimaryStore
	}
	if backup == nil {
		return nil, errNilFallbackStore
	}
	if log == nil {
		log = logging.NewNop()
	}

	return &Mirror{
		primary: primary,
		backup:  backup,
		log:     log,
		pending: map[string]pendingWrite{},
	}, nil
}

func (m *Mirror) Put(ctx context.Context, key string, value string) error {
	primaryErr := m.primary.Put(ctx, key, value)
	if shouldSkipFallback(primaryErr) {
		return primaryErr
	}
	backupErr := m.backup.Put(ctx, key, value)

	m.track(key, pendingWrite{value: value, primary: primaryErr != nil, backup: backupErr != nil})
	return m.combine(ctx, "put", key, primaryErr, backupErr)
}

// Get answers a key with an unflushed write from that write, so a channel
// that missed it cannot serve or repair an older value.
func (m *Mirror) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if write, ok := m.pendingFor(key); ok {
		if write.deleted {
			return "", fmt.Errorf("mirror get %q: %w", key, domain.ErrKeyNotFound)
		}
		return write.value, nil
	}

	value, err := m.primary.Get(ctx, key)
	if err == nil {
		return value, nil
	}
	if shouldSkipFallback(err) {
		return "", err
	}
	if !errors.Is(err, domain.ErrKeyNotFound) {
		m.log.Warn(ctx, "primary channel read failed", "key", key, "error", err)
	}

	value, backupErr := m.backup.Get(ctx, key)
	if backupErr != nil {
		if errors.Is(err, domain.ErrKeyNotFound) && errors.Is(backupErr, domain.ErrKeyNotFound) {
			return "", fmt.Errorf("mirror get %q: %w", key, domain.ErrKeyNotFound)
		}
		return "", fmt.Errorf("primary backend get failed: %w; fallback backend get failed: %w", err, backupErr)
	}

	if repairErr := m.primary.Put(ctx, key, value); repairErr != nil {
		m.log.Warn(ctx, "read-repair of primary channel failed", "key", key, "error", repairErr)
		m.track(key, pendingWrite{value: value, primary: true})
	} else {
		m.log.Info(ctx, "restored value from backup channel", "key", key)
	}

	return value, nil
}

func (m *Mirror) Delete(ctx context.Context, key string) error {
	primaryErr := m.primary.Delete(ctx, key)
	if shouldSkipFallback(primaryErr) {
		return primaryErr
	}
	backupErr := m.backup.Delete(ctx, key)

	m.track(key, pendingWrite{deleted: true, primary: primaryErr != nil, backup: backupErr != nil})
	return m.combine(ctx, "delete", key, primaryErr, backupErr)
}

// Flush replays writes that only reached one channel.
func (m *Mirror) Flush(ctx context.Context) error {
	m.mu.Lock()
	keys := make([]string, 0, len(m.pending))
	for key := range m.pending {
		keys = append(keys, key)
	}
	m.mu.Unlock()
	sort.Strings(keys)

	var errs []error
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}

		m.mu.Lock()
		write, ok := m.pending[key]
		m.mu.Unlock()
		if !ok {
			continue
		}

		if write.primary {
			if err := apply(ctx, m.primary, key, write); err != nil {
				errs = append(errs, fmt.Errorf("flush primary %q: %w", key, err))
			} else {
				write.primary = false
			}
		}
		if write.backup {
			if err := apply(ctx, m.backup, key, write); err != nil {
				errs = append(errs, fmt.Errorf("flush backup %q: %w", key, err))
			} else {
				write.backup = false
			}
		}

		m.mu.Lock()
		if current, ok := m.pending[key]; ok && sameWrite(current, write) {
			if write.primary || write.backup {
				m.pending[key] = write
			} else {
				delete(m.pending, key)
			}
		}
		m.mu.Unlock()
	}

	return errors.Join(errs...)
}

// Pending reports how many keys still differ between channels.
func (m *Mirror) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *Mirror) pendingFor(key string) (pendingWrite, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	write, ok := m.pending[key]
	return write, ok
}

func (m *Mirror) track(key string, write pendingWrite) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !write.primary && !write.backup {
		delete(m.pending, key)
		return
	}
	m.pending[key] = write
}

func (m *Mirror) combine(ctx context.Context, op string, key string, primaryErr error, backupErr error) error {
	switch {
	case primaryErr == nil && backupErr == nil:
		return nil
	case primaryErr != nil && backupErr != nil:
		return fmt.Errorf("primary backend %s failed: %w; fallback backend %s failed: %w", op, primaryErr, op, backupErr)
	case primaryErr != nil:
		m.log.Warn(ctx, "primary channel write failed", "op", op, "key", key, "error", primaryErr)
	default:
		m.log.Warn(ctx, "backup channel write failed", "op", op, "key", key, "error", backupErr)
	}
	return nil
}

// sameWrite ignores the channel flags so a newer write made during Flush is
// kept.
func sameWrite(a pendingWrite, b pendingWrite) bool {
	return a.value == b.value && a.deleted == b.deleted
}

func apply(ctx context.Context, store ports.KeyValueStore, key string, write pendingWrite) error {
	if write.deleted {
		return store.Delete(ctx, key)
	}
	return store.Put(ctx, key, write.value)
}
