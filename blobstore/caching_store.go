package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/steparena/internal/cache"
	"github.com/hupe1980/steparena/internal/resource"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// DefaultBlockSize is the CachingStore block size when none is given.
const DefaultBlockSize = 4096

// CachingStore wraps a BlobStore and serves reads from a shared block cache.
// Writes go straight to the inner store and invalidate the blocks they touch.
type CachingStore struct {
	inner     BlobStore
	cache     cache.BlockCache
	blockSize int64
	rc        *resource.Controller
	group     singleflight.Group
}

// NewCachingStore creates a new CachingStore. blockSize defaults to
// DefaultBlockSize if <= 0. rc bounds concurrent fills and may be nil.
func NewCachingStore(inner BlobStore, c cache.BlockCache, blockSize int64, rc *resource.Controller) *CachingStore {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &CachingStore{
		inner:     inner,
		cache:     c,
		blockSize: blockSize,
		rc:        rc,
	}
}

func (s *CachingStore) Open(ctx context.Context, name string) (Blob, error) {
	b, err := s.inner.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &CachingBlob{inner: b, store: s, name: name}, nil
}

func (s *CachingStore) Create(ctx context.Context, name string, size int64) (Blob, error) {
	s.cache.Invalidate(cache.ForBlob(name))
	b, err := s.inner.Create(ctx, name, size)
	if err != nil {
		return nil, err
	}
	return &CachingBlob{inner: b, store: s, name: name}, nil
}

func (s *CachingStore) Put(ctx context.Context, name string, data []byte) error {
	s.cache.Invalidate(cache.ForBlob(name))
	return s.inner.Put(ctx, name, data)
}

func (s *CachingStore) Delete(ctx context.Context, name string) error {
	s.cache.Invalidate(cache.ForBlob(name))
	return s.inner.Delete(ctx, name)
}

func (s *CachingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

// CachingBlob reads through the block cache.
type CachingBlob struct {
	inner Blob
	store *CachingStore
	name  string
}

func (b *CachingBlob) Close() error { return b.inner.Close() }

func (b *CachingBlob) Size() int64 { return b.inner.Size() }

func (b *CachingBlob) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	n, err := b.inner.WriteAt(ctx, p, off)
	b.store.cache.Invalidate(cache.Overlapping(b.name, off, int64(len(p)), b.store.blockSize))
	return n, err
}

func (b *CachingBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, ErrOutOfRange
	}

	size := b.Size()
	if off >= size {
		return 0, io.EOF
	}
	end := min(off+int64(len(p)), size)
	bs := b.store.blockSize
	first, last := off/bs, (end-1)/bs

	if err := b.fill(ctx, first, last); err != nil {
		return 0, err
	}

	total := 0
	for blk := first; blk <= last; blk++ {
		data, err := b.block(ctx, blk)
		if err != nil {
			return total, err
		}
		blkStart := blk * bs
		from := max(off, blkStart)
		to := min(end, blkStart+int64(len(data)))
		if to <= from {
			break
		}
		total += copy(p[from-off:to-off], data[from-blkStart:to-blkStart])
	}

	if total < len(p) {
		return total, io.EOF
	}
	return total, nil
}

// fill loads missing blocks in [first, last], fetching each contiguous run
// of misses with one inner read.
func (b *CachingBlob) fill(ctx context.Context, first, last int64) error {
	type run struct{ start, count int64 }
	var runs []run

	for blk := first; blk <= last; blk++ {
		if _, ok := b.store.cache.Get(ctx, cache.Key{Blob: b.name, Block: blk}); ok {
			continue
		}
		if n := len(runs); n > 0 && runs[n-1].start+runs[n-1].count == blk {
			runs[n-1].count++
		} else {
			runs = append(runs, run{start: blk, count: 1})
		}
	}
	if len(runs) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.store.rc.Fanout())
	for _, r := range runs {
		g.Go(func() error {
			key := fmt.Sprintf("%s\x00%d\x00%d", b.name, r.start, r.count)
			_, err, _ := b.store.group.Do(key, func() (any, error) {
				return nil, b.fetchRun(gctx, r.start, r.count)
			})
			return err
		})
	}
	return g.Wait()
}

func (b *CachingBlob) fetchRun(ctx context.Context, start, count int64) error {
	if err := b.store.rc.AcquireSlot(ctx); err != nil {
		return err
	}
	defer b.store.rc.ReleaseSlot()

	bs := b.store.blockSize
	byteStart := start * bs
	byteLen := min(count*bs, b.Size()-byteStart)
	if byteLen <= 0 {
		return nil
	}

	buf := make([]byte, byteLen)
	n, err := b.inner.ReadAt(ctx, buf, byteStart)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	buf = buf[:n]

	for i := int64(0); i < count; i++ {
		lo := i * bs
		if lo >= int64(len(buf)) {
			break
		}
		hi := min(lo+bs, int64(len(buf)))
		blockCopy := make([]byte, hi-lo)
		copy(blockCopy, buf[lo:hi])
		b.store.cache.Set(ctx, cache.Key{Blob: b.name, Block: start + i}, blockCopy)
	}
	return nil
}

// block returns one block from the cache, reading it directly when the cache
// refused to hold it.
func (b *CachingBlob) block(ctx context.Context, blk int64) ([]byte, error) {
	if data, ok := b.store.cache.Get(ctx, cache.Key{Blob: b.name, Block: blk}); ok {
		return data, nil
	}
	bs := b.store.blockSize
	buf := make([]byte, min(bs, b.Size()-blk*bs))
	n, err := b.inner.ReadAt(ctx, buf, blk*bs)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:n], nil
}
