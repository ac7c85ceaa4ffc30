package steparena

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/steparena/blobstore"
	"github.com/hupe1980/steparena/checkpoint"
	"github.com/hupe1980/steparena/internal/conv"
	"golang.org/x/sync/errgroup"
)

// CreateInput declares the input size and creates the input segment.
// Bytes are then appended with AppendInput until the declared size is
// reached; Step refuses to run before that.
func (c *Computation) CreateInput(ctx context.Context, size int64) error {
	if err := c.acquire(); err != nil {
		return err
	}
	defer c.release()
	return c.createInput(ctx, size)
}

func (c *Computation) createInput(ctx context.Context, size int64) error {
	if size < 0 {
		return fmt.Errorf("steparena: invalid input size %d", size)
	}
	prior, err := c.scalars.LoadAll(ctx)
	if err != nil {
		return storeErr("load", "scalars", err)
	}
	if _, ok := prior[keyArena]; ok {
		return ErrInputSealed
	}
	if _, ok := prior[keySize]; ok {
		return fmt.Errorf("%w: input already created", ErrInputSealed)
	}

	name := c.InputSegment()
	b, err := c.input.Create(ctx, name, size)
	if err != nil {
		return storeErr("create", name, err)
	}
	_ = b.Close()

	err = checkpoint.Apply(ctx, c.scalars, map[string]checkpoint.Value{
		keySize:   checkpoint.Uint(uint64(size)),
		keyWriter: checkpoint.Uint(0),
	}, nil)
	if err != nil && !errors.Is(err, ErrCapacityExceeded) {
		err = storeErr("save", "scalars", err)
	}
	return err
}

// AppendInput writes chunk at the end of the appended input and returns
// the new write index.
func (c *Computation) AppendInput(ctx context.Context, chunk []byte) (int64, error) {
	if err := c.acquire(); err != nil {
		return 0, err
	}
	defer c.release()

	n, size, err := c.appendInput(ctx, chunk)
	c.metrics.RecordIngest(len(chunk), err)
	c.logger.LogIngest(ctx, n, size, err)
	return n, err
}

func (c *Computation) appendInput(ctx context.Context, chunk []byte) (int64, int64, error) {
	prior, err := c.scalars.LoadAll(ctx)
	if err != nil {
		return 0, 0, storeErr("load", "scalars", err)
	}
	if _, ok := prior[keyArena]; ok {
		return 0, 0, ErrInputSealed
	}
	sv, ok := prior[keySize]
	if !ok {
		return 0, 0, ErrNoInput
	}
	size, err := conv.Offset("input size", sv.Num)
	if err != nil {
		return 0, 0, err
	}
	w, err := conv.Offset("input writer", prior[keyWriter].Num)
	if err != nil {
		return 0, size, err
	}
	if w+int64(len(chunk)) > size {
		return w, size, fmt.Errorf("%w: %d + %d > %d", ErrInputOverflow, w, len(chunk), size)
	}
	if len(chunk) == 0 {
		return w, size, nil
	}

	name := c.InputSegment()
	b, err := c.input.Open(ctx, name)
	if err != nil {
		return w, size, storeErr("open", name, err)
	}
	defer func() { _ = b.Close() }()
	if _, err := b.WriteAt(ctx, chunk, w); err != nil {
		return w, size, storeErr("write", name, err)
	}

	// A crash before this save repeats the same write on retry.
	next := w + int64(len(chunk))
	if err := c.scalars.Save(ctx, keyWriter, checkpoint.Uint(uint64(next))); err != nil {
		return w, size, storeErr("save", "scalars", err)
	}
	return next, size, nil
}

// IngestInput creates the input from data and appends it in chunks of at
// most the configured maximum chunk size.
func (c *Computation) IngestInput(ctx context.Context, data []byte) error {
	if c.opts.requireNewline && len(data) > 0 && data[len(data)-1] != '\n' {
		return &ParseError{Pos: int64(len(data)), Reason: "input must end with a newline"}
	}
	if err := c.CreateInput(ctx, int64(len(data))); err != nil {
		return err
	}
	for off := 0; off < len(data); off += c.opts.maxChunkSize {
		end := min(off+c.opts.maxChunkSize, len(data))
		if _, err := c.AppendInput(ctx, data[off:end]); err != nil {
			return err
		}
	}
	return nil
}

// InputProgress returns the appended and declared input sizes.
func (c *Computation) InputProgress(ctx context.Context) (written, size int64, err error) {
	all, err := c.scalars.LoadAll(ctx)
	if err != nil {
		return 0, 0, storeErr("load", "scalars", err)
	}
	if written, err = conv.Offset("input writer", all[keyWriter].Num); err != nil {
		return 0, 0, err
	}
	size, err = conv.Offset("input size", all[keySize].Num)
	return written, size, err
}

// Teardown deletes the segments and scalars of the computation and
// returns the number of segment bytes reclaimed.
func (c *Computation) Teardown(ctx context.Context) (int64, error) {
	if err := c.acquire(); err != nil {
		return 0, err
	}
	defer c.release()

	n, err := c.teardown(ctx)
	c.metrics.RecordTeardown(n, err)
	c.logger.LogTeardown(ctx, n, err)
	return n, err
}

func (c *Computation) teardown(ctx context.Context) (int64, error) {
	segments := []struct {
		store blobstore.BlobStore
		name  string
	}{
		{c.input, c.InputSegment()},
		{c.store, c.WorkSegment()},
		{c.store, c.JournalSegment()},
	}

	sizes := make([]int64, len(segments))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.rc.Fanout())
	for i, seg := range segments {
		g.Go(func() error {
			n, err := blobstore.SizeOf(gctx, seg.store, seg.name)
			if err != nil {
				return storeErr("stat", seg.name, err)
			}
			if err := seg.store.Delete(gctx, seg.name); err != nil {
				return storeErr("delete", seg.name, err)
			}
			sizes[i] = n
			return nil
		})
	}
	err := g.Wait()

	var reclaimed int64
	for _, n := range sizes {
		reclaimed += n
	}
	if err != nil {
		return reclaimed, err
	}
	if err := c.scalars.Clear(ctx); err != nil {
		return reclaimed, storeErr("clear", "scalars", err)
	}
	c.arena.Detach()
	return reclaimed, nil
}
