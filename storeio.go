package steparena

import (
	"context"
	"errors"
	"io"

	"github.com/hupe1980/steparena/blobstore"
)

// storeIOBlob reports failures of the external store as StoreIOError, so
// they stay distinguishable from budget and bounds errors raised above it.
type storeIOBlob struct {
	blobstore.Blob
	segment string
}

func (b *storeIOBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	n, err := b.Blob.ReadAt(ctx, p, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, &StoreIOError{Op: "read", Segment: b.segment, cause: err}
	}
	return n, err
}

func (b *storeIOBlob) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	n, err := b.Blob.WriteAt(ctx, p, off)
	if err != nil {
		return n, &StoreIOError{Op: "write", Segment: b.segment, cause: err}
	}
	return n, nil
}

// emptyInput stands in for a computation that never created an input.
type emptyInput struct{}

func (emptyInput) ReadAt(context.Context, []byte, int64) (int, error) { return 0, io.EOF }

func (emptyInput) WriteAt(context.Context, []byte, int64) (int, error) {
	return 0, blobstore.ErrOutOfRange
}

func (emptyInput) Size() int64  { return 0 }
func (emptyInput) Close() error { return nil }
