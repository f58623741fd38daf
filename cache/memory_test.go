package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorageLRUEvictsLeastRecentlyUsed(t *testing.T) {
	store := NewMemoryStorage(MemoryOptions{MaxBytes: 15, Policy: EvictLRU})
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "a", []byte("12345"), time.Minute))
	require.NoError(t, store.Set(ctx, "b", []byte("12345"), time.Minute))
	require.NoError(t, store.Set(ctx, "c", []byte("12345"), time.Minute))

	// touch "a" so it's most-recently-used before the next insert evicts.
	_, err := store.Get(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, "d", []byte("12345"), time.Minute))

	_, err = store.Get(ctx, "a")
	assert.NoError(t, err, "a was touched and should survive eviction")
}

func TestMemoryStorageRejectsOversizedItem(t *testing.T) {
	store := NewMemoryStorage(MemoryOptions{MaxBytes: 4, Policy: EvictFIFO})
	err := store.Set(context.Background(), "big", []byte("12345"), time.Minute)
	assert.Error(t, err)
}

func TestMemoryStorageTTLExpiry(t *testing.T) {
	store := NewMemoryStorage(MemoryOptions{})
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "k", []byte("v"), 10*time.Millisecond))
	_, err := store.Get(ctx, "k")
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStorageCompressionRoundTrips(t *testing.T) {
	store := NewMemoryStorage(MemoryOptions{CompressThreshold: 4})
	ctx := context.Background()
	payload := []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	require.NoError(t, store.Set(ctx, "k", payload, time.Minute))

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestMemoryStorageSetReplacesAccounting(t *testing.T) {
	store := NewMemoryStorage(MemoryOptions{MaxBytes: 10, Policy: EvictFIFO})
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "k", []byte("12345"), time.Minute))
	require.NoError(t, store.Set(ctx, "k", []byte("67890"), time.Minute))

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "67890", string(got))
}

func TestMemoryStorageClearAndKeys(t *testing.T) {
	store := NewMemoryStorage(MemoryOptions{})
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, store.Set(ctx, "b", []byte("2"), time.Minute))

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	require.NoError(t, store.Clear(ctx))
	keys, err = store.Keys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 0)
}

func TestMemoryStorageDeleteIsIdempotent(t *testing.T) {
	store := NewMemoryStorage(MemoryOptions{})
	ctx := context.Background()
	require.NoError(t, store.Delete(ctx, "missing"))
	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, store.Delete(ctx, "k"))
	require.NoError(t, store.Delete(ctx, "k"))
	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}
