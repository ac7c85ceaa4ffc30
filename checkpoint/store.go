package checkpoint

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// DefaultCapacity is the number of keys a store holds when none is given.
const DefaultCapacity = 32

// Store is a capacity-bounded scalar map.
type Store interface {
	// Load returns the value of key and whether it exists.
	Load(ctx context.Context, key string) (Value, bool, error)
	// LoadAll returns every stored value.
	LoadAll(ctx context.Context) (map[string]Value, error)
	// Save stores v under key.
	Save(ctx context.Context, key string, v Value) error
	// Delete removes key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error
	// Clear removes every key.
	Clear(ctx context.Context) error
	// Capacity returns the maximum number of keys.
	Capacity() int
}

// Batcher is implemented by stores that apply many changes in one call.
type Batcher interface {
	Apply(ctx context.Context, set map[string]Value, del []string) error
}

// Apply saves set and deletes del, in one call when s is a Batcher.
func Apply(ctx context.Context, s Store, set map[string]Value, del []string) error {
	for _, v := range set {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	if b, ok := s.(Batcher); ok {
		return b.Apply(ctx, set, del)
	}
	for _, k := range del {
		if err := s.Delete(ctx, k); err != nil {
			return err
		}
	}
	for _, k := range slices.Sorted(maps.Keys(set)) {
		if err := s.Save(ctx, k, set[k]); err != nil {
			return err
		}
	}
	return nil
}

// CheckCapacity reports whether the keys of existing, changed by set and
// del, fit capacity. Store implementations outside this package use it.
func CheckCapacity(capacity int, keys map[string]Value, set map[string]Value, del []string) error {
	n := len(keys)
	gone := make(map[string]bool, len(del))
	for _, k := range del {
		if _, ok := keys[k]; ok && !gone[k] {
			gone[k] = true
			n--
		}
	}
	for k := range set {
		if _, ok := keys[k]; !ok || gone[k] {
			n++
		}
	}
	if n > capacity {
		return fmt.Errorf("%w: %d keys, capacity %d", ErrCapacityExceeded, n, capacity)
	}
	return nil
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu       sync.Mutex
	capacity int
	values   map[string]Value
}

// NewMemoryStore returns an empty store. capacity <= 0 uses DefaultCapacity.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{capacity: capacity, values: make(map[string]Value)}
}

func (m *MemoryStore) Capacity() int { return m.capacity }

func (m *MemoryStore) Load(_ context.Context, key string) (Value, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if ok && v.Kind == KindBytes {
		v = Bytes(v.Bytes)
	}
	return v, ok, nil
}

func (m *MemoryStore) LoadAll(_ context.Context) (map[string]Value, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Value, len(m.values))
	for k, v := range m.values {
		if v.Kind == KindBytes {
			v = Bytes(v.Bytes)
		}
		out[k] = v
	}
	return out, nil
}

func (m *MemoryStore) Save(ctx context.Context, key string, v Value) error {
	return m.Apply(ctx, map[string]Value{key: v}, nil)
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	return m.Apply(ctx, nil, []string{key})
}

// Apply implements Batcher. It changes nothing when the result would not fit.
func (m *MemoryStore) Apply(_ context.Context, set map[string]Value, del []string) error {
	for _, v := range set {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := CheckCapacity(m.capacity, m.values, set, del); err != nil {
		return err
	}
	for _, k := range del {
		delete(m.values, k)
	}
	for k, v := range set {
		if v.Kind == KindBytes {
			v = Bytes(v.Bytes)
		}
		m.values[k] = v
	}
	return nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.values)
	return nil
}

// Len returns the number of stored keys.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.values)
}
