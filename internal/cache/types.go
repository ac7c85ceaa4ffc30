package cache

import "context"

// Key identifies one cached block of a blob.
type Key struct {
	// Blob is the blob name within its store.
	Blob string
	// Block is the block index (byte offset / block size).
	Block int64
}

// BlockCache is a byte-oriented cache for blob blocks.
// Returned slices must be treated as read-only.
type BlockCache interface {
	Get(ctx context.Context, key Key) (b []byte, ok bool)
	// Set caches a block. The cache retains b; callers must not mutate it.
	Set(ctx context.Context, key Key, b []byte)
	// Invalidate removes entries matching the predicate.
	Invalidate(predicate func(key Key) bool)
	Close() error
	Stats() (hits, misses int64)
}

// ForBlob matches every block of the named blob.
func ForBlob(name string) func(Key) bool {
	return func(k Key) bool { return k.Blob == name }
}

// Overlapping matches the blocks of name that intersect [off, off+n).
func Overlapping(name string, off, n, blockSize int64) func(Key) bool {
	if n <= 0 {
		return func(Key) bool { return false }
	}
	first := off / blockSize
	last := (off + n - 1) / blockSize
	return func(k Key) bool {
		return k.Blob == name && k.Block >= first && k.Block <= last
	}
}
