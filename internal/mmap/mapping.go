package mmap

import (
	"io"
	"os"
	"sync/atomic"
)

// Mapping is a whole segment file mapped shared and writable. Stores through
// WriteAt land in the page cache immediately and reach the disk on Sync.
// The file cannot grow while mapped.
type Mapping struct {
	data   []byte
	closed atomic.Bool
	ops    mapOps
}

type mapOps struct {
	unmap  func([]byte) error
	sync   func([]byte) error
	advise func([]byte, AccessPattern) error
}

// OpenRW maps the segment at path. Empty files yield a Mapping with no
// backing memory.
func OpenRW(path string) (*Mapping, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()
	if int64(int(size)) != size {
		return nil, ErrInvalidSize
	}
	m := &Mapping{}
	if size > 0 {
		if m.data, m.ops, err = osMapShared(f, int(size)); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// region returns the mapped bytes, or ErrClosed.
func (m *Mapping) region() ([]byte, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	return m.data, nil
}

// Size is the segment length in bytes.
func (m *Mapping) Size() int { return len(m.data) }

// Close unmaps the segment. Later calls are no-ops.
func (m *Mapping) Close() error {
	if m.closed.Swap(true) || m.data == nil || m.ops.unmap == nil {
		return nil
	}
	return m.ops.unmap(m.data)
}

// Sync writes dirty pages back to the file and waits for completion.
func (m *Mapping) Sync() error {
	data, err := m.region()
	if err != nil || data == nil || m.ops.sync == nil {
		return err
	}
	return m.ops.sync(data)
}

// Advise passes an access hint to the kernel.
func (m *Mapping) Advise(pattern AccessPattern) error {
	data, err := m.region()
	if err != nil || data == nil || m.ops.advise == nil {
		return err
	}
	return m.ops.advise(data, pattern)
}

func (m *Mapping) ReadAt(p []byte, off int64) (int, error) {
	data, err := m.region()
	if err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, ErrInvalidOffset
	}
	if off >= int64(len(data)) {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt stores p at off. Writes that would run past the end fail with
// ErrOutOfBounds and leave the segment untouched.
func (m *Mapping) WriteAt(p []byte, off int64) (int, error) {
	data, err := m.region()
	if err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, ErrInvalidOffset
	}
	if off+int64(len(p)) > int64(len(data)) {
		return 0, ErrOutOfBounds
	}
	return copy(data[off:], p), nil
}
