package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/steparena/blobstore"
	"github.com/hupe1980/steparena/codec"
)

// BlobStore keeps all scalars of one instance in a single document blob,
// rewritten with one Put per change set.
type BlobStore struct {
	store    blobstore.BlobStore
	name     string
	capacity int
	codec    codec.Codec

	mu     sync.Mutex
	values map[string]Value
}

type document struct {
	Codec  string              `json:"codec"`
	Values map[string]docValue `json:"values"`
}

type docValue struct {
	Kind  Kind   `json:"k"`
	Num   uint64 `json:"n,omitempty"`
	Bytes []byte `json:"b,omitempty"`
}

// NewBlobStore returns a store backed by the blob name. capacity <= 0 uses
// DefaultCapacity.
func NewBlobStore(store blobstore.BlobStore, name string, capacity int) *BlobStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &BlobStore{store: store, name: name, capacity: capacity, codec: codec.Default}
}

// Name returns the document blob name.
func (s *BlobStore) Name() string { return s.name }

func (s *BlobStore) Capacity() int { return s.capacity }

// load reads the document once; callers hold mu.
func (s *BlobStore) load(ctx context.Context) error {
	if s.values != nil {
		return nil
	}
	data, err := blobstore.ReadAll(ctx, s.store, s.name)
	if errors.Is(err, blobstore.ErrNotFound) {
		s.values = make(map[string]Value)
		return nil
	}
	if err != nil {
		return err
	}

	var doc document
	if err := codec.Default.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("checkpoint: decode %s: %w", s.name, err)
	}
	c, ok := codec.Lookup(doc.Codec)
	if !ok {
		return fmt.Errorf("checkpoint: %s: unknown codec %q", s.name, doc.Codec)
	}
	s.codec = c

	s.values = make(map[string]Value, len(doc.Values))
	for k, v := range doc.Values {
		if v.Kind == KindBytes {
			s.values[k] = Bytes(v.Bytes)
		} else {
			s.values[k] = Uint(v.Num)
		}
	}
	return nil
}

func (s *BlobStore) Load(ctx context.Context, key string) (Value, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(ctx); err != nil {
		return Value{}, false, err
	}
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *BlobStore) LoadAll(ctx context.Context) (map[string]Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	out := make(map[string]Value, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out, nil
}

func (s *BlobStore) Save(ctx context.Context, key string, v Value) error {
	return s.Apply(ctx, map[string]Value{key: v}, nil)
}

func (s *BlobStore) Delete(ctx context.Context, key string) error {
	return s.Apply(ctx, nil, []string{key})
}

// Apply implements Batcher with one document write.
func (s *BlobStore) Apply(ctx context.Context, set map[string]Value, del []string) error {
	for _, v := range set {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(ctx); err != nil {
		return err
	}
	if err := CheckCapacity(s.capacity, s.values, set, del); err != nil {
		return err
	}

	next := make(map[string]Value, len(s.values)+len(set))
	for k, v := range s.values {
		next[k] = v
	}
	for _, k := range del {
		delete(next, k)
	}
	for k, v := range set {
		next[k] = v
	}

	if err := s.write(ctx, next); err != nil {
		return err
	}
	s.values = next
	return nil
}

func (s *BlobStore) write(ctx context.Context, values map[string]Value) error {
	doc := document{Codec: s.codec.Name(), Values: make(map[string]docValue, len(values))}
	for k, v := range values {
		doc.Values[k] = docValue{Kind: v.Kind, Num: v.Num, Bytes: v.Bytes}
	}
	data, err := s.codec.Marshal(doc)
	if err != nil {
		return err
	}
	return s.store.Put(ctx, s.name, data)
}

// Clear deletes the document blob.
func (s *BlobStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Delete(ctx, s.name); err != nil {
		return err
	}
	s.values = make(map[string]Value)
	return nil
}

// Invalidate drops the in-memory copy so the next call rereads the blob.
func (s *BlobStore) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = nil
}
