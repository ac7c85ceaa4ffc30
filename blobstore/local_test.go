package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	ifs "github.com/hupe1980/steparena/internal/fs"
	"github.com/hupe1980/steparena/internal/mmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore(t *testing.T) {
	storeContract(t, NewLocalStore(t.TempDir()))
}

func TestLocalStore_Mmap(t *testing.T) {
	if !mmap.Supported {
		t.Skip("shared mappings not supported on this platform")
	}
	dir := t.TempDir()
	storeContract(t, NewLocalStore(dir, WithMmap(true)))

	data, err := os.ReadFile(filepath.Join(dir, "inst", "work"))
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(data[4:8]))
}

func TestLocalStore_PutIsAtomic(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	ffs := ifs.NewFaultyFS(nil)
	s := NewLocalStore(dir, WithFileSystem(ffs))

	require.NoError(t, s.Put(ctx, "inst/scalars", []byte("v1")))

	ffs.AddRule("scalars.tmp", ifs.Fault{FailAfterBytes: 0})
	err := s.Put(ctx, "inst/scalars", []byte("v2"))
	assert.ErrorIs(t, err, ifs.ErrInjected)

	data, err := ReadAll(ctx, s, "inst/scalars")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data), "failed Put leaves the previous blob")

	names, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"inst/scalars"}, names)
}

func TestLocalStore_FailingWrite(t *testing.T) {
	ctx := context.Background()
	ffs := ifs.NewFaultyFS(nil)
	ffs.AddRule("work", ifs.Fault{FailAfterBytes: 4})
	s := NewLocalStore(t.TempDir(), WithFileSystem(ffs))

	b, err := s.Create(ctx, "work", 8)
	require.NoError(t, err)
	defer b.Close()

	_, err = b.WriteAt(ctx, []byte("1234"), 0)
	require.NoError(t, err)
	_, err = b.WriteAt(ctx, []byte("5"), 4)
	assert.ErrorIs(t, err, ifs.ErrInjected)
}
