package arena

import (
	"context"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/steparena/blobstore"
	"github.com/hupe1980/steparena/internal/conv"
	"github.com/hupe1980/steparena/internal/hash"
	"github.com/hupe1980/steparena/internal/resource"
)

// BoundsMode selects whether view index checks are performed.
type BoundsMode uint8

const (
	// BoundsChecked rejects out-of-range view indices with a BoundsError.
	BoundsChecked BoundsMode = iota
	// BoundsUnchecked skips view index checks. Area byte ranges are still
	// checked, so an unchecked access never leaves its area.
	BoundsUnchecked
)

func (m BoundsMode) String() string {
	if m == BoundsUnchecked {
		return "unchecked"
	}
	return "checked"
}

// Option configures an Arena.
type Option func(*Arena)

// WithBoundsMode sets the view bounds policy. Default is BoundsChecked.
func WithBoundsMode(m BoundsMode) Option {
	return func(a *Arena) { a.bounds = m }
}

// WithMemoryController accounts area caches against rc.
func WithMemoryController(rc *resource.Controller) Option {
	return func(a *Arena) { a.rc = rc }
}

// Arena allocates areas over one segment. It is not safe for concurrent use.
type Arena struct {
	areas  []*Area
	size   int64
	bounds BoundsMode
	rc     *resource.Controller

	blob   blobstore.Blob
	sealed bool

	dirty  *roaring.Bitmap
	direct *roaring.Bitmap
}

// New creates an empty arena.
func New(opts ...Option) *Arena {
	a := &Arena{
		dirty:  roaring.New(),
		direct: roaring.New(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AreaOption configures one allocation.
type AreaOption func(*Area)

// WithName names the area in errors and logs.
func WithName(name string) AreaOption {
	return func(ar *Area) { ar.name = name }
}

// AutoCache makes the area cache itself on its first access in a step.
func AutoCache() AreaOption {
	return func(ar *Area) { ar.auto = true }
}

// Alloc reserves the next size bytes of the segment.
func (a *Arena) Alloc(size int64, opts ...AreaOption) (*Area, error) {
	id, err := conv.Index("area", len(a.areas))
	if err != nil {
		return nil, &LayoutError{Reason: "too many areas"}
	}
	ar := &Area{
		arena: a,
		id:    id,
		name:  fmt.Sprintf("area%d", id),
		off:   a.size,
		size:  size,
	}
	for _, opt := range opts {
		opt(ar)
	}
	if a.sealed {
		return nil, &LayoutError{Area: ar.name, Reason: "allocation after the segment was attached"}
	}
	if size <= 0 {
		return nil, &LayoutError{Area: ar.name, Reason: fmt.Sprintf("invalid size %d", size)}
	}
	a.areas = append(a.areas, ar)
	a.size += size
	return ar, nil
}

// Size returns the segment size the layout requires.
func (a *Arena) Size() int64 { return a.size }

// Areas returns the areas in allocation order.
func (a *Arena) Areas() []*Area { return a.areas }

// Bounds returns the view bounds policy.
func (a *Arena) Bounds() BoundsMode { return a.bounds }

// Fingerprint identifies the layout: the ordered list of area sizes.
func (a *Arena) Fingerprint() uint32 {
	sizes := make([]int64, len(a.areas))
	for i, ar := range a.areas {
		sizes[i] = ar.size
	}
	return hash.Sizes(sizes)
}

// Attach seals the layout and binds it to a segment of exactly Size bytes.
func (a *Arena) Attach(b blobstore.Blob) error {
	if b.Size() != a.size {
		return &LayoutError{Reason: fmt.Sprintf("segment has %d bytes, layout needs %d", b.Size(), a.size)}
	}
	a.Detach()
	a.blob = b
	a.sealed = true
	return nil
}

// Detach drops every cache without flushing and forgets the segment. The
// layout stays sealed.
func (a *Arena) Detach() {
	for _, ar := range a.areas {
		ar.drop()
	}
	a.dirty.Clear()
	a.direct.Clear()
	a.blob = nil
}

// Attached reports whether a segment is attached.
func (a *Arena) Attached() bool { return a.blob != nil }

// FlushAll flushes every cached area with unflushed writes, in allocation
// order.
func (a *Arena) FlushAll(ctx context.Context) error {
	it := a.dirty.Clone().Iterator()
	for it.HasNext() {
		if err := a.areas[it.Next()].Flush(ctx); err != nil {
			return err
		}
	}
	return nil
}

// PendingFlushes returns the number of cached areas FlushAll would write.
func (a *Arena) PendingFlushes() int {
	return int(a.dirty.GetCardinality())
}

// CacheBytes returns the bytes held by area caches.
func (a *Arena) CacheBytes() int64 {
	var n int64
	for _, ar := range a.areas {
		if ar.cache != nil {
			n += ar.size
		}
	}
	return n
}
