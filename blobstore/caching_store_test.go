package blobstore

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/hupe1980/steparena/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore wraps a MemoryStore and counts reads issued to its blobs.
type countingStore struct {
	*MemoryStore
	counter Counter
}

func (s *countingStore) Open(ctx context.Context, name string) (Blob, error) {
	b, err := s.MemoryStore.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return Metered(b, &s.counter), nil
}

func newCounting(t *testing.T, name string, data []byte) *countingStore {
	t.Helper()
	s := &countingStore{MemoryStore: NewMemoryStore()}
	require.NoError(t, s.Put(context.Background(), name, data))
	return s
}

func TestCachingStore_ReadAt(t *testing.T) {
	data := make([]byte, 1024)
	for i := range data {
		data[i] = byte(i % 251)
	}
	inner := newCounting(t, "input", data)
	store := NewCachingStore(inner, cache.NewLRUBlockCache(1<<20, nil), 256, nil)

	blob, err := store.Open(context.Background(), "input")
	require.NoError(t, err)
	ctx := context.Background()

	buf := make([]byte, 100)
	n, err := blob.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.Equal(t, data[:100], buf)
	assert.Equal(t, 1, inner.counter.Reads)
	assert.Equal(t, 256, inner.counter.ReadBytes)

	_, err = blob.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.counter.Reads, "second read is served from cache")

	_, err = blob.ReadAt(ctx, buf, 200)
	require.NoError(t, err)
	assert.Equal(t, data[200:300], buf)
	assert.Equal(t, 2, inner.counter.Reads)
	assert.Equal(t, 512, inner.counter.ReadBytes)

	big := make([]byte, 700)
	_, err = blob.ReadAt(ctx, big, 300)
	require.NoError(t, err)
	assert.Equal(t, data[300:1000], big)
	assert.Equal(t, 3, inner.counter.Reads, "blocks 2 and 3 are fetched as one run")
}

func TestCachingStore_ShortTail(t *testing.T) {
	inner := newCounting(t, "small", []byte("hello"))
	store := NewCachingStore(inner, cache.NewLRUBlockCache(1024, nil), 256, nil)

	blob, err := store.Open(context.Background(), "small")
	require.NoError(t, err)

	buf := make([]byte, 10)
	n, err := blob.ReadAt(context.Background(), buf, 0)
	assert.Equal(t, 5, n)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "hello", string(buf[:n]))

	n, err = blob.ReadAt(context.Background(), buf, 5)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestCachingStore_WriteInvalidates(t *testing.T) {
	ctx := context.Background()
	inner := newCounting(t, "seg", make([]byte, 512))
	c := cache.NewLRUBlockCache(1<<20, nil)
	store := NewCachingStore(inner, c, 256, nil)

	blob, err := store.Open(ctx, "seg")
	require.NoError(t, err)

	buf := make([]byte, 512)
	_, err = blob.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	_, err = blob.WriteAt(ctx, []byte{9}, 300)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len(), "only the written block is dropped")

	_, err = blob.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, byte(9), buf[300])

	require.NoError(t, store.Put(ctx, "seg", []byte("new")))
	assert.Equal(t, 0, c.Len())
}

func TestCachingStore_CacheRefusesBlocks(t *testing.T) {
	inner := newCounting(t, "input", []byte("0123456789"))
	store := NewCachingStore(inner, cache.NewLRUBlockCache(1, nil), 4, nil)

	blob, err := store.Open(context.Background(), "input")
	require.NoError(t, err)

	buf := make([]byte, 10)
	n, err := blob.ReadAt(context.Background(), buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, "0123456789", string(buf))
}

func TestCachingStore_Passthrough(t *testing.T) {
	ctx := context.Background()
	store := NewCachingStore(NewMemoryStore(), cache.NewLRUBlockCache(1024, nil), 0, nil)
	storeContract(t, store)

	_, err := store.Open(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}
