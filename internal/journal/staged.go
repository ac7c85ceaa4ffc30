package journal

import (
	"context"
	"slices"
	"sync"

	"github.com/hupe1980/steparena/blobstore"
)

// Write is one pending extent.
type Write struct {
	Off  int64
	Data []byte
}

func (w Write) end() int64 { return w.Off + int64(len(w.Data)) }

// Staged is a blobstore.Blob that keeps writes in memory on top of a base
// blob. Reads see the pending writes. Nothing reaches the base until the
// caller commits Pending.
type Staged struct {
	base blobstore.Blob

	mu  sync.RWMutex
	ext []Write // sorted by Off, disjoint, non-adjacent
}

var _ blobstore.Blob = (*Staged)(nil)

// NewStaged stages writes over base.
func NewStaged(base blobstore.Blob) *Staged {
	return &Staged{base: base}
}

// Base returns the wrapped blob.
func (s *Staged) Base() blobstore.Blob { return s.base }

func (s *Staged) Size() int64 { return s.base.Size() }

// Close does not close the base.
func (s *Staged) Close() error { return nil }

func (s *Staged) WriteAt(_ context.Context, p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > s.base.Size() {
		return 0, blobstore.ErrOutOfRange
	}
	if len(p) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	s.insert(off, p)
	s.mu.Unlock()
	return len(p), nil
}

// insert merges [off, off+len(p)) into the extent list; callers hold mu.
func (s *Staged) insert(off int64, p []byte) {
	end := off + int64(len(p))
	// First extent whose end reaches off (adjacent extents merge too).
	lo, _ := slices.BinarySearchFunc(s.ext, off, func(w Write, t int64) int {
		if w.end() < t {
			return -1
		}
		return 1
	})
	hi := lo
	for hi < len(s.ext) && s.ext[hi].Off <= end {
		hi++
	}
	if lo == hi {
		s.ext = slices.Insert(s.ext, lo, Write{Off: off, Data: slices.Clone(p)})
		return
	}

	start := min(off, s.ext[lo].Off)
	stop := max(end, s.ext[hi-1].end())
	buf := make([]byte, stop-start)
	for _, w := range s.ext[lo:hi] {
		copy(buf[w.Off-start:], w.Data)
	}
	copy(buf[off-start:], p)
	s.ext = slices.Replace(s.ext, lo, hi, Write{Off: start, Data: buf})
}

func (s *Staged) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, blobstore.ErrOutOfRange
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	end := off + int64(len(p))
	i, _ := slices.BinarySearchFunc(s.ext, off, func(w Write, t int64) int {
		if w.end() <= t {
			return -1
		}
		return 1
	})
	if i < len(s.ext) && s.ext[i].Off <= off && s.ext[i].end() >= end {
		return copy(p, s.ext[i].Data[off-s.ext[i].Off:]), nil
	}

	n, err := s.base.ReadAt(ctx, p, off)
	if n == 0 {
		return n, err
	}
	end = off + int64(n)
	for ; i < len(s.ext) && s.ext[i].Off < end; i++ {
		w := s.ext[i]
		from := max(w.Off, off)
		to := min(w.end(), end)
		copy(p[from-off:to-off], w.Data[from-w.Off:])
	}
	return n, err
}

// Pending returns the staged extents in offset order. The slices are
// owned by s until Discard.
func (s *Staged) Pending() []Write {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.ext)
}

// PendingBytes is the total size of the staged extents.
func (s *Staged) PendingBytes() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, w := range s.ext {
		n += int64(len(w.Data))
	}
	return n
}

// Discard drops every staged write.
func (s *Staged) Discard() {
	s.mu.Lock()
	s.ext = nil
	s.mu.Unlock()
}
