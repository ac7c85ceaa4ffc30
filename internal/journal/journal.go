package journal

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/hupe1980/steparena/blobstore"
	"github.com/hupe1980/steparena/checkpoint"
	"github.com/hupe1980/steparena/internal/compress"
)

// ErrNoBase is returned when a journal holds range pre-images but no work
// segment was supplied to restore them into.
var ErrNoBase = errors.New("journal: range records without a work segment")

// Journal is the undo journal of one computation.
type Journal struct {
	store       blobstore.BlobStore
	name        string
	compression compress.Type
	disabled    bool
}

// Option configures a Journal.
type Option func(*Journal)

// WithCompression sets the codec used for range pre-images. Default LZ4.
func WithCompression(t compress.Type) Option {
	return func(j *Journal) { j.compression = t }
}

// WithDisabled applies commits directly, without an undo record. A failure
// part way through a commit then leaves the step half applied.
func WithDisabled(disabled bool) Option {
	return func(j *Journal) { j.disabled = disabled }
}

// New returns the journal stored as blob name in store.
func New(store blobstore.BlobStore, name string, opts ...Option) *Journal {
	j := &Journal{store: store, name: name, compression: compress.LZ4}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

func (j *Journal) Name() string { return j.name }

func (j *Journal) Enabled() bool { return !j.disabled }

// Commit describes the effects of one step.
type Commit struct {
	// Writes are the staged extents of the work segment.
	Writes []Write
	// Set and Delete are the scalar changes.
	Set    map[string]checkpoint.Value
	Delete []string
	// Prior is the scalar state the step started from.
	Prior map[string]checkpoint.Value
}

func (c *Commit) keys() []string {
	seen := make(map[string]struct{}, len(c.Set)+len(c.Delete))
	for k := range c.Set {
		seen[k] = struct{}{}
	}
	for _, k := range c.Delete {
		seen[k] = struct{}{}
	}
	return slices.Sorted(maps.Keys(seen))
}

// Commit applies c to base and scalars. Either every effect is applied or,
// on error, none is visible to the next Recover.
func (j *Journal) Commit(ctx context.Context, base blobstore.Blob, scalars checkpoint.Store, c Commit) error {
	if j.disabled {
		return apply(ctx, base, scalars, c)
	}

	records, err := j.preImages(ctx, base, c)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	var buf []byte
	for i := range records {
		if buf, err = appendRecord(buf, &records[i], j.compression); err != nil {
			return err
		}
	}
	if err := j.store.Put(ctx, j.name, buf); err != nil {
		return fmt.Errorf("journal: write: %w", err)
	}

	err = apply(ctx, base, scalars, c)
	if err == nil {
		if err = j.store.Delete(ctx, j.name); err == nil {
			return nil
		}
		err = fmt.Errorf("journal: remove: %w", err)
	}

	// The journal is still present, so a failed rollback is retried by the
	// next Recover.
	if rbErr := rollback(ctx, base, scalars, records); rbErr != nil {
		return errors.Join(err, fmt.Errorf("journal: rollback: %w", rbErr))
	}
	_ = j.store.Delete(ctx, j.name)
	return err
}

func (j *Journal) preImages(ctx context.Context, base blobstore.Blob, c Commit) ([]record, error) {
	var out []record
	seq := uint64(0)
	for _, w := range c.Writes {
		pre := make([]byte, len(w.Data))
		if _, err := base.ReadAt(ctx, pre, w.Off); err != nil {
			return nil, fmt.Errorf("journal: read pre-image at %d: %w", w.Off, err)
		}
		out = append(out, record{typ: RecordRange, seq: seq, off: w.Off, data: pre})
		seq++
	}
	for _, k := range c.keys() {
		v, ok := c.Prior[k]
		out = append(out, record{typ: RecordScalar, seq: seq, key: k, present: ok, value: v})
		seq++
	}
	return out, nil
}

func apply(ctx context.Context, base blobstore.Blob, scalars checkpoint.Store, c Commit) error {
	for _, w := range c.Writes {
		if _, err := base.WriteAt(ctx, w.Data, w.Off); err != nil {
			return fmt.Errorf("journal: apply write at %d: %w", w.Off, err)
		}
	}
	if len(c.Set) == 0 && len(c.Delete) == 0 {
		return nil
	}
	if err := checkpoint.Apply(ctx, scalars, c.Set, c.Delete); err != nil {
		return fmt.Errorf("journal: apply scalars: %w", err)
	}
	return nil
}

func rollback(ctx context.Context, base blobstore.Blob, scalars checkpoint.Store, records []record) error {
	set := make(map[string]checkpoint.Value)
	var del []string
	for _, r := range records {
		switch r.typ {
		case RecordRange:
			if base == nil {
				return ErrNoBase
			}
			if _, err := base.WriteAt(ctx, r.data, r.off); err != nil {
				return err
			}
		case RecordScalar:
			if r.present {
				set[r.key] = r.value
			} else {
				del = append(del, r.key)
			}
		}
	}
	if len(set) == 0 && len(del) == 0 {
		return nil
	}
	return checkpoint.Apply(ctx, scalars, set, del)
}

// Recover rolls back a journal left by an interrupted commit. It reports
// whether one was found. base may be nil when the work segment does not
// exist.
func (j *Journal) Recover(ctx context.Context, base blobstore.Blob, scalars checkpoint.Store) (bool, error) {
	buf, err := blobstore.ReadAll(ctx, j.store, j.name)
	if errors.Is(err, blobstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("journal: read: %w", err)
	}
	records, err := decodeRecords(buf)
	if err != nil {
		return false, err
	}
	if err := rollback(ctx, base, scalars, records); err != nil {
		return false, fmt.Errorf("journal: rollback: %w", err)
	}
	if err := j.store.Delete(ctx, j.name); err != nil {
		return true, fmt.Errorf("journal: remove: %w", err)
	}
	return true, nil
}

// Remove deletes the journal blob.
func (j *Journal) Remove(ctx context.Context) error {
	return j.store.Delete(ctx, j.name)
}
