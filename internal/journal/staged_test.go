package journal

import (
	"context"
	"testing"

	"github.com/hupe1980/steparena/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBase(t *testing.T, content string) blobstore.Blob {
	t.Helper()
	store := blobstore.NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), "work", []byte(content)))
	b, err := store.Open(context.Background(), "work")
	require.NoError(t, err)
	return b
}

func read(t *testing.T, b blobstore.Blob, off int64, n int) string {
	t.Helper()
	p := make([]byte, n)
	got, err := b.ReadAt(context.Background(), p, off)
	require.NoError(t, err)
	return string(p[:got])
}

func TestStaged_Overlay(t *testing.T) {
	ctx := context.Background()
	base := newBase(t, "abcdefghij")
	s := NewStaged(base)

	_, err := s.WriteAt(ctx, []byte("XY"), 2)
	require.NoError(t, err)
	_, err = s.WriteAt(ctx, []byte("Z"), 8)
	require.NoError(t, err)

	assert.Equal(t, "abXYefghZj", read(t, s, 0, 10))
	assert.Equal(t, "XY", read(t, s, 2, 2))
	assert.Equal(t, "Yef", read(t, s, 3, 3))
	assert.Equal(t, "abcdefghij", read(t, base, 0, 10), "base untouched")
	assert.Equal(t, int64(3), s.PendingBytes())
}

func TestStaged_Merge(t *testing.T) {
	ctx := context.Background()
	s := NewStaged(newBase(t, "0123456789"))

	tests := []struct {
		off  int64
		data string
		want []Write
	}{
		{4, "aa", []Write{{4, []byte("aa")}}},
		{0, "b", []Write{{0, []byte("b")}, {4, []byte("aa")}}},
		{6, "c", []Write{{0, []byte("b")}, {4, []byte("aac")}}},
		{3, "dd", []Write{{0, []byte("b")}, {3, []byte("ddac")}}},
		{1, "ee", []Write{{0, []byte("beeddac")}}},
	}
	for _, tt := range tests {
		_, err := s.WriteAt(ctx, []byte(tt.data), tt.off)
		require.NoError(t, err)
		assert.Equal(t, tt.want, s.Pending())
	}
	assert.Equal(t, "beeddac789", read(t, s, 0, 10))
}

func TestStaged_BoundsAndDiscard(t *testing.T) {
	ctx := context.Background()
	s := NewStaged(newBase(t, "0123"))

	_, err := s.WriteAt(ctx, []byte("xx"), 3)
	assert.ErrorIs(t, err, blobstore.ErrOutOfRange)
	_, err = s.WriteAt(ctx, []byte("x"), -1)
	assert.ErrorIs(t, err, blobstore.ErrOutOfRange)

	_, err = s.WriteAt(ctx, []byte("x"), 0)
	require.NoError(t, err)
	s.Discard()
	assert.Empty(t, s.Pending())
	assert.Equal(t, "0123", read(t, s, 0, 4))
	assert.Equal(t, int64(4), s.Size())
}
