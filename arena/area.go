package arena

import (
	"context"
	"fmt"
)

// Mode is the access mode of an area within the current step.
type Mode uint8

const (
	// ModeDirect sends every access to the segment.
	ModeDirect Mode = iota
	// ModeCached serves accesses from the local cache until Flush.
	ModeCached
)

func (m Mode) String() string {
	if m == ModeCached {
		return "cached"
	}
	return "direct"
}

// Area is a fixed byte range of the segment.
type Area struct {
	arena *Arena
	id    uint32
	name  string
	off   int64
	size  int64
	auto  bool

	mode  Mode
	cache []byte
}

// Name returns the area name.
func (ar *Area) Name() string { return ar.name }

// Offset returns the area offset within the segment.
func (ar *Area) Offset() int64 { return ar.off }

// Len returns the area length in bytes.
func (ar *Area) Len() int64 { return ar.size }

// Mode returns the current access mode.
func (ar *Area) Mode() Mode { return ar.mode }

func (ar *Area) check(off, n int64) error {
	if off < 0 || n < 0 || off+n > ar.size {
		return &BoundsError{Area: ar.name, Offset: off, Length: n, Limit: ar.size}
	}
	return nil
}

func (ar *Area) touch(ctx context.Context) error {
	if ar.auto && ar.mode == ModeDirect && !ar.arena.direct.Contains(ar.id) {
		return ar.Cache(ctx)
	}
	return nil
}

// read returns n bytes at off. A cached area returns a sub-slice of its
// cache, which callers must not retain or modify.
func (ar *Area) read(ctx context.Context, off, n int64) ([]byte, error) {
	if err := ar.check(off, n); err != nil {
		return nil, err
	}
	if err := ar.touch(ctx); err != nil {
		return nil, err
	}
	if ar.mode == ModeCached {
		return ar.cache[off : off+n], nil
	}
	if ar.arena.blob == nil {
		return nil, ErrDetached
	}
	buf := make([]byte, n)
	if n == 0 {
		return buf, nil
	}
	if _, err := ar.arena.blob.ReadAt(ctx, buf, ar.off+off); err != nil {
		return nil, fmt.Errorf("arena: read %q: %w", ar.name, err)
	}
	return buf, nil
}

func (ar *Area) write(ctx context.Context, off int64, p []byte) error {
	if err := ar.check(off, int64(len(p))); err != nil {
		return err
	}
	if err := ar.touch(ctx); err != nil {
		return err
	}
	if ar.mode == ModeCached {
		copy(ar.cache[off:], p)
		ar.arena.dirty.Add(ar.id)
		return nil
	}
	if ar.arena.blob == nil {
		return ErrDetached
	}
	if len(p) == 0 {
		return nil
	}
	if _, err := ar.arena.blob.WriteAt(ctx, p, ar.off+off); err != nil {
		return fmt.Errorf("arena: write %q: %w", ar.name, err)
	}
	ar.arena.direct.Add(ar.id)
	return nil
}

// Extract returns a copy of n bytes at off. An uncached area issues one
// external read and does not populate the cache.
func (ar *Area) Extract(ctx context.Context, off, n int64) ([]byte, error) {
	b, err := ar.read(ctx, off, n)
	if err != nil {
		return nil, err
	}
	if ar.mode == ModeCached {
		return append([]byte(nil), b...), nil
	}
	return b, nil
}

// Replace writes p at off, into the cache when present and to the segment
// otherwise.
func (ar *Area) Replace(ctx context.Context, off int64, p []byte) error {
	return ar.write(ctx, off, p)
}

// Cache reads the whole area into local memory with one external read.
// It is a no-op on a cached area.
func (ar *Area) Cache(ctx context.Context) error {
	if ar.mode == ModeCached {
		return nil
	}
	if ar.arena.direct.Contains(ar.id) {
		return fmt.Errorf("%w: %q", ErrMixedAccess, ar.name)
	}
	if ar.arena.blob == nil {
		return ErrDetached
	}
	if !ar.arena.rc.ReserveMemory(ar.size) {
		return fmt.Errorf("arena: cache %q: memory limit of %d bytes reached", ar.name, ar.arena.rc.MemoryLimit())
	}
	buf := make([]byte, ar.size)
	if _, err := ar.arena.blob.ReadAt(ctx, buf, ar.off); err != nil {
		ar.arena.rc.ReleaseMemory(ar.size)
		return fmt.Errorf("arena: cache %q: %w", ar.name, err)
	}
	ar.cache = buf
	ar.mode = ModeCached
	return nil
}

// Flush writes the cache back with one external write. It is a no-op when
// the area is uncached or has no writes since the last flush.
func (ar *Area) Flush(ctx context.Context) error {
	if ar.mode != ModeCached || !ar.arena.dirty.Contains(ar.id) {
		return nil
	}
	if _, err := ar.arena.blob.WriteAt(ctx, ar.cache, ar.off); err != nil {
		return fmt.Errorf("arena: flush %q: %w", ar.name, err)
	}
	ar.arena.dirty.Remove(ar.id)
	return nil
}

// Copy overwrites the start of ar with the current contents of src.
// src must not be longer than ar.
func (ar *Area) Copy(ctx context.Context, src *Area) error {
	if src.size > ar.size {
		return &BoundsError{Area: ar.name, Offset: 0, Length: src.size, Limit: ar.size}
	}
	data, err := src.read(ctx, 0, src.size)
	if err != nil {
		return err
	}
	if src == ar {
		return nil
	}
	return ar.write(ctx, 0, data)
}

func (ar *Area) drop() {
	if ar.cache != nil {
		ar.arena.rc.ReleaseMemory(ar.size)
	}
	ar.cache = nil
	ar.mode = ModeDirect
}
