package steparena

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/steparena/arena"
	"github.com/hupe1980/steparena/blobstore"
	"github.com/hupe1980/steparena/budget"
	"github.com/hupe1980/steparena/checkpoint"
	"github.com/hupe1980/steparena/internal/cache"
	"github.com/hupe1980/steparena/internal/compress"
	"github.com/hupe1980/steparena/internal/conv"
	"github.com/hupe1980/steparena/internal/journal"
	"github.com/hupe1980/steparena/internal/resource"
	"github.com/hupe1980/steparena/reader"
)

// Reserved scalar keys. Program bindings cannot use the "_" prefix.
const (
	keyArena     = "_arena"
	keyReader    = "_reader"
	keySteps     = "_steps"
	keyDone      = "_done"
	keySize      = "_size"
	keyWriter    = "_writer"
	resultPrefix = "_out:"

	// reservedPerStep counts the reserved keys a step may save.
	reservedPerStep = 4
)

// Computation is one resumable run of a Program over a blob store.
//
// Its persisted state is three segments named after the instance ID
// ("<id>/input", "<id>/work", "<id>/journal") plus the scalar checkpoint
// store. A Computation value holds no state between steps; any process
// that constructs one with the same ID, program and store resumes it.
type Computation struct {
	id      string
	prog    Program
	store   blobstore.BlobStore
	input   blobstore.BlobStore
	scalars checkpoint.Store
	journal *journal.Journal
	arena   *arena.Arena
	binding *checkpoint.Binding
	rc      *resource.Controller

	opts    options
	logger  *Logger
	metrics MetricsCollector

	inflight atomic.Bool
}

// New prepares a computation of prog over store. It runs the program's
// Layout and Bind, so layout errors surface here, before any store I/O.
func New(prog Program, store blobstore.BlobStore, optFns ...Option) (*Computation, error) {
	o := applyOptions(optFns)
	if o.budget.Limit <= 0 {
		return nil, fmt.Errorf("steparena: step budget must be positive, got %d", o.budget.Limit)
	}
	ct, err := compress.ParseType(o.journalCodec)
	if err != nil {
		return nil, fmt.Errorf("steparena: journal compression: %w", err)
	}

	id := o.instanceID
	if id == "" {
		id = uuid.NewString()
	}

	rc := resource.NewController(resource.Config{
		MemoryBytes:   o.memoryLimit,
		IOFanout:      o.ioFanout,
		IOBytesPerSec: o.ioLimit,
	})
	if o.ioLimit > 0 {
		store = blobstore.NewThrottledStore(store, rc)
	}
	input := store
	if o.blockCacheBytes > 0 {
		input = blobstore.NewCachingStore(store, cache.NewLRUBlockCache(o.blockCacheBytes, rc), o.blockSize, rc)
	}

	a := arena.New(arena.WithBoundsMode(o.bounds), arena.WithMemoryController(rc))
	if err := prog.Layout(a); err != nil {
		return nil, translateError(err)
	}
	binding := checkpoint.NewBinding()
	prog.Bind(binding)
	if err := binding.Err(); err != nil {
		return nil, fmt.Errorf("steparena: %s: %w", prog.Name(), err)
	}

	scalars := o.scalars
	if scalars == nil {
		scalars = checkpoint.NewBlobStore(store, id+"/scalars", o.scalarCapacity)
	}

	return &Computation{
		id:      id,
		prog:    prog,
		store:   store,
		input:   input,
		scalars: scalars,
		journal: journal.New(store, id+"/journal", journal.WithCompression(ct), journal.WithDisabled(!o.journal)),
		arena:   a,
		binding: binding,
		rc:      rc,
		opts:    o,
		logger:  o.logger.WithInstance(id).WithProgram(prog.Name()),
		metrics: o.metricsCollector,
	}, nil
}

// ID returns the instance ID.
func (c *Computation) ID() string { return c.id }

// Program returns the program being run.
func (c *Computation) Program() Program { return c.prog }

// Arena returns the program's layout.
func (c *Computation) Arena() *arena.Arena { return c.arena }

// InputSegment returns the name of the input blob.
func (c *Computation) InputSegment() string { return c.id + "/input" }

// WorkSegment returns the name of the persistent segment holding the areas.
func (c *Computation) WorkSegment() string { return c.id + "/work" }

// JournalSegment returns the name of the undo journal blob.
func (c *Computation) JournalSegment() string { return c.journal.Name() }

// Scalars returns the scalar checkpoint store.
func (c *Computation) Scalars() checkpoint.Store { return c.scalars }

func (c *Computation) acquire() error {
	if !c.inflight.CompareAndSwap(false, true) {
		return ErrStepInFlight
	}
	return nil
}

func (c *Computation) release() { c.inflight.Store(false) }

// Step runs one step with the configured budget.
func (c *Computation) Step(ctx context.Context) (Status, error) {
	return c.StepWithBudget(ctx, c.opts.budget.Limit)
}

// StepWithBudget runs one step with a budget of limit units.
//
// The step either commits every area flush and scalar it produced or, on
// error, leaves the segments and scalars as they were before it began.
// Running out of budget is not an error: the step checkpoints and returns
// Done=false.
func (c *Computation) StepWithBudget(ctx context.Context, limit int64) (Status, error) {
	if err := c.acquire(); err != nil {
		return Status{}, err
	}
	defer c.release()

	start := time.Now()
	st, number, err := c.step(ctx, limit)
	err = translateError(err)
	d := time.Since(start)

	c.metrics.RecordStep(st.Cost, st.Done, d, err)
	c.logger.LogStep(ctx, number, st, d, err)
	return st, err
}

func (c *Computation) step(ctx context.Context, limit int64) (_ Status, _ uint64, stepErr error) {
	base, err := c.openWork(ctx)
	if err != nil {
		return Status{}, 0, err
	}
	if base != nil {
		defer func() { _ = base.Close() }()
	}

	if err := c.recover(ctx, base); err != nil {
		return Status{}, 0, err
	}

	prior, err := c.scalars.LoadAll(ctx)
	if err != nil {
		return Status{}, 0, storeErr("load", "scalars", err)
	}
	if _, done := prior[keyDone]; done {
		if c.opts.strictDone {
			return Status{Done: true}, 0, ErrDone
		}
		return Status{Done: true}, 0, nil
	}

	size, sized := prior[keySize]
	if sized && prior[keyWriter].Num < size.Num {
		return Status{}, 0, fmt.Errorf("%w: %d of %d bytes", ErrInputIncomplete, prior[keyWriter].Num, size.Num)
	}

	fp, started := prior[keyArena]
	if started && fp.Num != uint64(c.arena.Fingerprint()) {
		return Status{}, 0, &LayoutError{Reason: "allocation order differs from the one the computation started with"}
	}
	if base == nil {
		if base, err = c.createWork(ctx); err != nil {
			return Status{}, 0, err
		}
		defer func() {
			_ = base.Close()
			if stepErr != nil && !c.journalPending(ctx) {
				// Nothing was committed into the fresh segment.
				_ = c.store.Delete(ctx, c.WorkSegment())
			}
		}()
	}

	cfg := c.opts.budget
	cfg.Limit = limit
	b := budget.New(cfg)
	number := prior[keySteps].Num + 1

	if err := b.ChargeScalarLoads(len(prior)); err != nil {
		return Status{Cost: b.Used()}, number, ErrBudgetTooSmall
	}

	in, closeInput, err := c.openInput(ctx, sized)
	if err != nil {
		return Status{Cost: b.Used()}, number, err
	}
	defer closeInput()

	staged := journal.NewStaged(base)
	if err := c.arena.Attach(blobstore.Metered(staged, b)); err != nil {
		return Status{Cost: b.Used()}, number, err
	}
	defer c.arena.Detach()

	rd := reader.New(blobstore.Metered(in, b), reader.WithWindow(c.opts.readerWindow))
	if err := c.binding.Restore(prior); err != nil {
		return Status{Cost: b.Used()}, number, fmt.Errorf("steparena: restore scalars: %w", err)
	}
	pos, err := conv.Offset("reader position", prior[keyReader].Num)
	if err != nil {
		return Status{Cost: b.Used()}, number, err
	}
	if err := rd.Seek(pos); err != nil {
		return Status{Cost: b.Used()}, number, err
	}

	s := &Step{
		c:       c,
		budget:  b,
		reader:  rd,
		number:  number,
		first:   !started,
		results: make(map[string]checkpoint.Value),
	}
	b.SetCommitEstimator(func() int64 {
		costs := b.Costs()
		saves := len(c.binding.Keys()) + reservedPerStep + len(s.results)
		return int64(c.arena.PendingFlushes())*costs.Write + int64(saves)*costs.ScalarSave
	})
	if b.Low() {
		return Status{Cost: b.Used()}, number, ErrBudgetTooSmall
	}
	b.Mark()

	ctx = budget.WithBudget(ctx, b)
	done, err := c.run(ctx, s)
	if err != nil {
		staged.Discard()
		return Status{Cost: b.Used()}, number, err
	}

	if err := c.arena.FlushAll(ctx); err != nil {
		staged.Discard()
		return Status{Cost: b.Used()}, number, err
	}
	set := c.changes(prior, s, done)
	if err := b.ChargeScalarSaves(len(set)); err != nil {
		staged.Discard()
		return Status{Cost: b.Used()}, number, err
	}
	err = c.journal.Commit(ctx, base, c.scalars, journal.Commit{
		Writes: staged.Pending(),
		Set:    set,
		Prior:  prior,
	})
	staged.Discard()
	if err != nil {
		if !errors.Is(err, ErrCapacityExceeded) {
			err = storeErr("commit", c.WorkSegment(), err)
		}
		return Status{Cost: b.Used()}, number, err
	}

	st := Status{Done: done, Cost: b.Used()}
	if !done {
		c.metrics.RecordYield(st.Cost)
		c.logger.LogYield(ctx, number, st.Cost, b.Remaining())
	}
	return st, number, nil
}

func (c *Computation) run(ctx context.Context, s *Step) (bool, error) {
	if s.first {
		if err := c.prog.Init(ctx, s); err != nil {
			return false, err
		}
	}
	return c.prog.Run(ctx, s)
}

// changes returns the scalars the step must save.
func (c *Computation) changes(prior map[string]checkpoint.Value, s *Step, done bool) map[string]checkpoint.Value {
	next := c.binding.Snapshot()
	next[keyArena] = checkpoint.Uint(uint64(c.arena.Fingerprint()))
	next[keyReader] = checkpoint.Uint(uint64(s.reader.Pos()))
	next[keySteps] = checkpoint.Uint(s.number)
	if done {
		next[keyDone] = checkpoint.Uint(1)
		for k, v := range s.results {
			next[resultPrefix+k] = v
		}
	}

	set := make(map[string]checkpoint.Value, len(next))
	for k, v := range next {
		if pv, ok := prior[k]; !ok || !pv.Equal(v) {
			set[k] = v
		}
	}
	return set
}

func (c *Computation) recover(ctx context.Context, base blobstore.Blob) error {
	found, err := c.journal.Recover(ctx, base, c.scalars)
	if !found && err == nil {
		return nil
	}
	c.metrics.RecordRecovery(err)
	c.logger.LogRecovery(ctx, c.journal.Name(), err)
	if err != nil {
		return storeErr("recover", c.journal.Name(), err)
	}
	return nil
}

// journalPending reports whether an undo journal may still exist. The
// work segment it refers to must then be kept for the next recovery.
func (c *Computation) journalPending(ctx context.Context) bool {
	b, err := c.store.Open(ctx, c.JournalSegment())
	if err != nil {
		return !errors.Is(err, blobstore.ErrNotFound)
	}
	_ = b.Close()
	return true
}

func (c *Computation) openWork(ctx context.Context) (blobstore.Blob, error) {
	name := c.WorkSegment()
	b, err := c.store.Open(ctx, name)
	if errors.Is(err, blobstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("open", name, err)
	}
	return &storeIOBlob{Blob: b, segment: name}, nil
}

func (c *Computation) createWork(ctx context.Context) (blobstore.Blob, error) {
	name := c.WorkSegment()
	b, err := c.store.Create(ctx, name, c.arena.Size())
	if errors.Is(err, blobstore.ErrExists) {
		b, err = c.store.Open(ctx, name)
	}
	if err != nil {
		return nil, storeErr("create", name, err)
	}
	return &storeIOBlob{Blob: b, segment: name}, nil
}

// openInput returns the input segment, or an empty input when none was
// ever created.
func (c *Computation) openInput(ctx context.Context, declared bool) (blobstore.Blob, func(), error) {
	name := c.InputSegment()
	b, err := c.input.Open(ctx, name)
	if errors.Is(err, blobstore.ErrNotFound) && !declared {
		return emptyInput{}, func() {}, nil
	}
	if err != nil {
		return nil, nil, storeErr("open", name, err)
	}
	return &storeIOBlob{Blob: b, segment: name}, func() { _ = b.Close() }, nil
}

// Done reports whether the computation has completed.
func (c *Computation) Done(ctx context.Context) (bool, error) {
	_, ok, err := c.scalars.Load(ctx, keyDone)
	if err != nil {
		return false, storeErr("load", "scalars", err)
	}
	return ok, nil
}

// Steps returns the number of committed steps.
func (c *Computation) Steps(ctx context.Context) (uint64, error) {
	v, _, err := c.scalars.Load(ctx, keySteps)
	if err != nil {
		return 0, storeErr("load", "scalars", err)
	}
	return v.Num, nil
}

// Results returns every output field. It fails with ErrNotDone before
// completion.
func (c *Computation) Results(ctx context.Context) (map[string]checkpoint.Value, error) {
	all, err := c.scalars.LoadAll(ctx)
	if err != nil {
		return nil, storeErr("load", "scalars", err)
	}
	if _, ok := all[keyDone]; !ok {
		return nil, ErrNotDone
	}
	out := make(map[string]checkpoint.Value)
	for k, v := range all {
		if name, ok := strings.CutPrefix(k, resultPrefix); ok {
			out[name] = v
		}
	}
	return out, nil
}

// Result returns a numeric output field.
func (c *Computation) Result(ctx context.Context, name string) (uint64, error) {
	v, err := c.result(ctx, name)
	if err != nil {
		return 0, err
	}
	if v.Kind != checkpoint.KindUint {
		return 0, fmt.Errorf("%w: result %q is %s", checkpoint.ErrKindMismatch, name, v.Kind)
	}
	return v.Num, nil
}

// ResultBytes returns a byte-string output field.
func (c *Computation) ResultBytes(ctx context.Context, name string) ([]byte, error) {
	v, err := c.result(ctx, name)
	if err != nil {
		return nil, err
	}
	if v.Kind != checkpoint.KindBytes {
		return nil, fmt.Errorf("%w: result %q is %s", checkpoint.ErrKindMismatch, name, v.Kind)
	}
	return v.Bytes, nil
}

func (c *Computation) result(ctx context.Context, name string) (checkpoint.Value, error) {
	done, err := c.Done(ctx)
	if err != nil {
		return checkpoint.Value{}, err
	}
	if !done {
		return checkpoint.Value{}, ErrNotDone
	}
	v, ok, err := c.scalars.Load(ctx, resultPrefix+name)
	if err != nil {
		return checkpoint.Value{}, storeErr("load", "scalars", err)
	}
	if !ok {
		return checkpoint.Value{}, fmt.Errorf("%w: result %q", ErrNotFound, name)
	}
	return v, nil
}
