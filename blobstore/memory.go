package blobstore

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory BlobStore.
// Blobs opened from it share storage with the store, so writes through one
// handle are visible to every other handle and to later Opens.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]*memoryData
}

type memoryData struct {
	mu   sync.RWMutex
	data []byte
}

// NewMemoryStore creates a new in-memory blob store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string]*memoryData)}
}

func (m *MemoryStore) Open(_ context.Context, name string) (Blob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.blobs[name]
	if !ok {
		return nil, ErrNotFound
	}
	return &memoryBlob{d: d}, nil
}

func (m *MemoryStore) Create(_ context.Context, name string, size int64) (Blob, error) {
	if size < 0 {
		return nil, ErrOutOfRange
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.blobs[name]; ok {
		return nil, ErrExists
	}
	d := &memoryData{data: make([]byte, size)}
	m.blobs[name] = d
	return &memoryBlob{d: d}, nil
}

func (m *MemoryStore) Put(_ context.Context, name string, data []byte) error {
	copied := make([]byte, len(data))
	copy(copied, data)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[name] = &memoryData{data: copied}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, name)
	return nil
}

func (m *MemoryStore) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	for name := range m.blobs {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Bytes returns a copy of blob name, for tests and debugging.
func (m *MemoryStore) Bytes(name string) ([]byte, bool) {
	m.mu.RLock()
	d, ok := m.blobs[name]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]byte, len(d.data))
	copy(out, d.data)
	return out, true
}

type memoryBlob struct {
	d *memoryData
}

func (b *memoryBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, ErrOutOfRange
	}
	b.d.mu.RLock()
	defer b.d.mu.RUnlock()

	if off >= int64(len(b.d.data)) {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, b.d.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (b *memoryBlob) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.d.mu.Lock()
	defer b.d.mu.Unlock()

	if err := checkWrite(int64(len(b.d.data)), p, off); err != nil {
		return 0, err
	}
	return copy(b.d.data[off:], p), nil
}

func (b *memoryBlob) Size() int64 {
	b.d.mu.RLock()
	defer b.d.mu.RUnlock()
	return int64(len(b.d.data))
}

func (b *memoryBlob) Close() error { return nil }
