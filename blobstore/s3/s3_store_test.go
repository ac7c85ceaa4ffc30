package s3

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/hupe1980/steparena/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a real bucket named by STEPARENA_S3_BUCKET with credentials
// from the default AWS chain.
func TestLive_SegmentLifecycle(t *testing.T) {
	bucket := os.Getenv("STEPARENA_S3_BUCKET")
	if bucket == "" {
		t.Skip("STEPARENA_S3_BUCKET not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, err := New(ctx, bucket, WithPrefix(fmt.Sprintf("live-%d/", time.Now().UnixNano())))
	require.NoError(t, err)

	input := []byte("1,2\n3,4\n")
	require.NoError(t, store.Put(ctx, "inst/input", input))
	work, err := store.Create(ctx, "inst/work", 16)
	require.NoError(t, err)
	_, err = work.WriteAt(ctx, []byte{0, 0, 0, 0, 0, 0, 0, 4}, 8)
	require.NoError(t, err)
	require.NoError(t, work.Close())

	_, err = store.Create(ctx, "inst/work", 16)
	assert.ErrorIs(t, err, blobstore.ErrExists)

	got, err := blobstore.ReadAll(ctx, store, "inst/work")
	require.NoError(t, err)
	assert.Equal(t, byte(4), got[15])

	in, err := store.Open(ctx, "inst/input")
	require.NoError(t, err)
	line := make([]byte, 4)
	_, err = in.ReadAt(ctx, line, 4)
	require.NoError(t, err)
	assert.Equal(t, "3,4\n", string(line))

	names, err := store.List(ctx, "inst/")
	require.NoError(t, err)
	assert.Equal(t, []string{"inst/input", "inst/work"}, names)

	for _, name := range names {
		require.NoError(t, store.Delete(ctx, name))
	}
	_, err = store.Open(ctx, "inst/input")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}
