package blobstore

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrInjected is returned by a Fault with no explicit Err.
var ErrInjected = errors.New("blobstore: injected fault")

// Fault describes failures injected for blobs whose name contains a pattern.
// Counters are shared by every handle of the matching blobs.
type Fault struct {
	// ReadsBeforeFailure lets that many ReadAt calls succeed, then fails
	// every later one. Negative disables.
	ReadsBeforeFailure int
	// WritesBeforeFailure is the WriteAt counterpart.
	WritesBeforeFailure int
	FailOpen            bool
	FailPut             bool
	FailDelete          bool
	Err                 error
}

// NoFault returns a Fault that injects nothing; set fields on the result.
func NoFault() Fault {
	return Fault{ReadsBeforeFailure: -1, WritesBeforeFailure: -1}
}

func (f *Fault) err() error {
	if f.Err != nil {
		return f.Err
	}
	return ErrInjected
}

// FaultyStore wraps a BlobStore and injects failures by blob name.
type FaultyStore struct {
	inner BlobStore
	mu    sync.Mutex
	rules map[string]*rule
}

type rule struct {
	fault  Fault
	reads  int
	writes int
}

// NewFaultyStore wraps inner.
func NewFaultyStore(inner BlobStore) *FaultyStore {
	return &FaultyStore{inner: inner, rules: make(map[string]*rule)}
}

// Inject registers a fault for names containing pattern, resetting its counters.
func (s *FaultyStore) Inject(pattern string, f Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[pattern] = &rule{fault: f}
}

// Heal removes every rule.
func (s *FaultyStore) Heal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = make(map[string]*rule)
}

func (s *FaultyStore) check(name string, pick func(r *rule) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for pattern, r := range s.rules {
		if strings.Contains(name, pattern) && pick(r) {
			return r.fault.err()
		}
	}
	return nil
}

func (s *FaultyStore) Open(ctx context.Context, name string) (Blob, error) {
	if err := s.check(name, func(r *rule) bool { return r.fault.FailOpen }); err != nil {
		return nil, err
	}
	b, err := s.inner.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &faultyBlob{Blob: b, s: s, name: name}, nil
}

func (s *FaultyStore) Create(ctx context.Context, name string, size int64) (Blob, error) {
	if err := s.check(name, func(r *rule) bool { return r.fault.FailOpen }); err != nil {
		return nil, err
	}
	b, err := s.inner.Create(ctx, name, size)
	if err != nil {
		return nil, err
	}
	return &faultyBlob{Blob: b, s: s, name: name}, nil
}

func (s *FaultyStore) Put(ctx context.Context, name string, data []byte) error {
	if err := s.check(name, func(r *rule) bool { return r.fault.FailPut }); err != nil {
		return err
	}
	return s.inner.Put(ctx, name, data)
}

func (s *FaultyStore) Delete(ctx context.Context, name string) error {
	if err := s.check(name, func(r *rule) bool { return r.fault.FailDelete }); err != nil {
		return err
	}
	return s.inner.Delete(ctx, name)
}

func (s *FaultyStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

type faultyBlob struct {
	Blob
	s    *FaultyStore
	name string
}

func (b *faultyBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	err := b.s.check(b.name, func(r *rule) bool {
		if r.fault.ReadsBeforeFailure < 0 {
			return false
		}
		r.reads++
		return r.reads > r.fault.ReadsBeforeFailure
	})
	if err != nil {
		return 0, err
	}
	return b.Blob.ReadAt(ctx, p, off)
}

func (b *faultyBlob) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	err := b.s.check(b.name, func(r *rule) bool {
		if r.fault.WritesBeforeFailure < 0 {
			return false
		}
		r.writes++
		return r.writes > r.fault.WritesBeforeFailure
	})
	if err != nil {
		return 0, err
	}
	return b.Blob.WriteAt(ctx, p, off)
}
