package chain

import (
	"context"
	"errors"
	"testing"

	"github.com/bnema/primedictation-export/internal/domain"
	portmocks "github.com/bnema/primedictation-export/internal/ports/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const tokenKey = "dropbox/oauth_tokens"

func newTestStore(t *testing.T) (*Store, *portmocks.MockKeyValueStore, *portmocks.MockKeyValueStore) {
	t.Helper()

	primary := portmocks.NewMockKeyValueStore(t)
	fallback := portmocks.NewMockKeyValueStore(t)
	store, err := NewStore(primary, fallback)
	require.NoError(t, err)
	return store, primary, fallback
}

func TestNewStoreRejectsMissingBackends(t *testing.T) {
	t.Parallel()

	_, err := NewStore(nil, portmocks.NewMockKeyValueStore(t))
	require.ErrorIs(t, err, errNilPrimaryStore)

	_, err = NewStore(portmocks.NewMockKeyValueStore(t), nil)
	require.ErrorIs(t, err, errNilFallbackStore)
}

func TestStoreGet(t *testing.T) {
	t.Parallel()

	t.Run("primary hit skips fallback", func(t *testing.T) {
		t.Parallel()
		store, primary, _ := newTestStore(t)
		primary.EXPECT().Get(mock.Anything, tokenKey).Return("from-pass", nil).Once()

		value, err := store.Get(context.Background(), tokenKey)
		require.NoError(t, err)
		assert.Equal(t, "from-pass", value)
	})

	t.Run("primary failure reads fallback", func(t *testing.T) {
		t.Parallel()
		store, primary, fallback := newTestStore(t)
		primary.EXPECT().Get(mock.Anything, tokenKey).Return("", errors.New("gpg agent locked")).Once()
		fallback.EXPECT().Get(mock.Anything, tokenKey).Return("from-file", nil).Once()

		value, err := store.Get(context.Background(), tokenKey)
		require.NoError(t, err)
		assert.Equal(t, "from-file", value)
	})

	t.Run("both failing reports each backend", func(t *testing.T) {
		t.Parallel()
		store, primary, fallback := newTestStore(t)
		primary.EXPECT().Get(mock.Anything, tokenKey).Return("", errors.New("gpg agent locked")).Once()
		fallback.EXPECT().Get(mock.Anything, tokenKey).Return("", errors.New("permission denied")).Once()

		_, err := store.Get(context.Background(), tokenKey)
		require.Error(t, err)
		assert.ErrorContains(t, err, "primary get: gpg agent locked")
		assert.ErrorContains(t, err, "fallback get: permission denied")
	})

	t.Run("missing everywhere is key not found", func(t *testing.T) {
		t.Parallel()
		store, primary, fallback := newTestStore(t)
		primary.EXPECT().Get(mock.Anything, tokenKey).Return("", domain.ErrKeyNotFound).Once()
		fallback.EXPECT().Get(mock.Anything, tokenKey).Return("", domain.ErrKeyNotFound).Once()

		_, err := store.Get(context.Background(), tokenKey)
		require.ErrorIs(t, err, domain.ErrKeyNotFound)
	})

	t.Run("cancellation stops at primary", func(t *testing.T) {
		t.Parallel()
		store, primary, _ := newTestStore(t)
		primary.EXPECT().Get(mock.Anything, tokenKey).Return("", context.Canceled).Once()

		_, err := store.Get(context.Background(), tokenKey)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestStorePut(t *testing.T) {
	t.Parallel()

	t.Run("primary success skips fallback", func(t *testing.T) {
		t.Parallel()
		store, primary, _ := newTestStore(t)
		primary.EXPECT().Put(mock.Anything, tokenKey, "secret").Return(nil).Once()

		require.NoError(t, store.Put(context.Background(), tokenKey, "secret"))
	})

	t.Run("primary failure writes fallback", func(t *testing.T) {
		t.Parallel()
		store, primary, fallback := newTestStore(t)
		primary.EXPECT().Put(mock.Anything, tokenKey, "secret").Return(errors.New("pass not installed")).Once()
		fallback.EXPECT().Put(mock.Anything, tokenKey, "secret").Return(nil).Once()

		require.NoError(t, store.Put(context.Background(), tokenKey, "secret"))
	})

	t.Run("deadline stops at primary", func(t *testing.T) {
		t.Parallel()
		store, primary, _ := newTestStore(t)
		primary.EXPECT().Put(mock.Anything, tokenKey, "secret").Return(context.DeadlineExceeded).Once()

		err := store.Put(context.Background(), tokenKey, "secret")
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestStoreDeleteClearsEveryBackend(t *testing.T) {
	t.Parallel()

	store, primary, fallback := newTestStore(t)
	primary.EXPECT().Delete(mock.Anything, tokenKey).Return(nil).Once()
	fallback.EXPECT().Delete(mock.Anything, tokenKey).Return(nil).Once()

	require.NoError(t, store.Delete(context.Background(), tokenKey))
}

func TestStoreDeleteTreatsMissingKeyAsCleared(t *testing.T) {
	t.Parallel()

	store, primary, fallback := newTestStore(t)
	primary.EXPECT().Delete(mock.Anything, tokenKey).Return(domain.ErrKeyNotFound).Once()
	fallback.EXPECT().Delete(mock.Anything, tokenKey).Return(nil).Once()

	require.NoError(t, store.Delete(context.Background(), tokenKey))
}

func TestStoreDeleteStillClearsFallbackWhenPrimaryFails(t *testing.T) {
	t.Parallel()

	store, primary, fallback := newTestStore(t)
	primary.EXPECT().Delete(mock.Anything, tokenKey).Return(errors.New("gpg agent locked")).Once()
	fallback.EXPECT().Delete(mock.Anything, tokenKey).Return(nil).Once()

	err := store.Delete(context.Background(), tokenKey)
	require.Error(t, err)
	assert.ErrorContains(t, err, "primary delete: gpg agent locked")
}
