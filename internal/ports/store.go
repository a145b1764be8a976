package ports

import "context"

// KeyValueStore persists small string values by key. Get returns an error
// wrapping domain.ErrKeyNotFound for missing keys.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
}

// Flusher is implemented by stores that buffer or defer writes.
type Flusher interface {
	Flush(ctx context.Context) error
}
