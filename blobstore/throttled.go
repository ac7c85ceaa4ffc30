package blobstore

import (
	"context"

	"github.com/hupe1980/steparena/internal/resource"
)

// ThrottledStore waits on the controller's IO rate limit before each call.
type ThrottledStore struct {
	inner BlobStore
	rc    *resource.Controller
}

// NewThrottledStore wraps inner. A nil controller disables throttling.
func NewThrottledStore(inner BlobStore, rc *resource.Controller) *ThrottledStore {
	return &ThrottledStore{inner: inner, rc: rc}
}

func (s *ThrottledStore) Open(ctx context.Context, name string) (Blob, error) {
	b, err := s.inner.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &throttledBlob{Blob: b, rc: s.rc}, nil
}

func (s *ThrottledStore) Create(ctx context.Context, name string, size int64) (Blob, error) {
	b, err := s.inner.Create(ctx, name, size)
	if err != nil {
		return nil, err
	}
	return &throttledBlob{Blob: b, rc: s.rc}, nil
}

func (s *ThrottledStore) Put(ctx context.Context, name string, data []byte) error {
	if err := s.rc.WaitIO(ctx, len(data)); err != nil {
		return err
	}
	return s.inner.Put(ctx, name, data)
}

func (s *ThrottledStore) Delete(ctx context.Context, name string) error {
	return s.inner.Delete(ctx, name)
}

func (s *ThrottledStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

type throttledBlob struct {
	Blob
	rc *resource.Controller
}

func (b *throttledBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := b.rc.WaitIO(ctx, len(p)); err != nil {
		return 0, err
	}
	return b.Blob.ReadAt(ctx, p, off)
}

func (b *throttledBlob) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := b.rc.WaitIO(ctx, len(p)); err != nil {
		return 0, err
	}
	return b.Blob.WriteAt(ctx, p, off)
}
