package steparena

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/hupe1980/steparena/blobstore"
	"github.com/hupe1980/steparena/budget"
	"github.com/hupe1980/steparena/checkpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterBudget() budget.Config {
	return budget.Config{Limit: 200, Reserve: 110, Costs: budget.DefaultCostModel()}
}

func snapshot(t *testing.T, s blobstore.BlobStore) map[string][]byte {
	t.Helper()
	ctx := context.Background()
	names, err := s.List(ctx, "")
	require.NoError(t, err)
	out := make(map[string][]byte, len(names))
	for _, name := range names {
		data, err := blobstore.ReadAll(ctx, s, name)
		require.NoError(t, err)
		out[name] = data
	}
	return out
}

func pairsInput(n int) []byte {
	var b strings.Builder
	for i := range n {
		fmt.Fprintf(&b, "%d,%d\n", i*3+1, i*7+2)
	}
	return []byte(b.String())
}

func TestStep_Counters(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	c, err := New(&counterProgram{}, store, WithInstanceID("cnt"), WithBudget(counterBudget()))
	require.NoError(t, err)

	st, err := c.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, Status{Done: false, Cost: 128}, st)

	work, ok := store.Bytes(c.WorkSegment())
	require.True(t, ok)
	require.Len(t, work, 16)
	assert.Equal(t, uint64(5), binary.BigEndian.Uint64(work[0:]))
	assert.Equal(t, uint64(0), binary.BigEndian.Uint64(work[8:]))

	_, err = c.Results(ctx)
	require.ErrorIs(t, err, ErrNotDone)

	st, err = c.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, Status{Done: true, Cost: 138}, st)

	res, err := c.Results(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]checkpoint.Value{
		"c0": checkpoint.Uint(5),
		"c1": checkpoint.Uint(7),
	}, res)

	steps, err := c.Steps(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), steps)

	st, err = c.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, Status{Done: true}, st)

	strict, err := New(&counterProgram{}, store, WithInstanceID("cnt"), WithStrictDone())
	require.NoError(t, err)
	_, err = strict.Step(ctx)
	require.ErrorIs(t, err, ErrDone)
}

func TestStep_Pairs(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	c, err := New(&pairsProgram{}, store, WithInstanceID("pairs"))
	require.NoError(t, err)
	require.NoError(t, c.IngestInput(ctx, []byte("12,7\n3,400\n")))

	sum, err := c.Solve(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Steps)
	assert.Equal(t, checkpoint.Uint(2), sum.Results["n"])
	assert.Equal(t, checkpoint.Uint(15), sum.Results["sum_a"])
	assert.Equal(t, checkpoint.Uint(407), sum.Results["sum_b"])

	work, ok := store.Bytes(c.WorkSegment())
	require.True(t, ok)
	require.Len(t, work, 64*16)
	want := []uint64{12, 7, 3, 400}
	for i, v := range want {
		assert.Equal(t, v, binary.BigEndian.Uint64(work[i*8:]), "word %d", i)
	}
	assert.Equal(t, make([]byte, len(work)-32), work[32:])
}

func TestStep_ResumesAcrossBudgets(t *testing.T) {
	ctx := context.Background()
	input := pairsInput(20)

	solve := func(limit int64) (map[string]checkpoint.Value, []byte, int) {
		store := blobstore.NewMemoryStore()
		cfg := budget.Config{Limit: limit, Reserve: 60, Costs: budget.DefaultCostModel()}
		c, err := New(&pairsProgram{}, store, WithInstanceID("sweep"), WithBudget(cfg))
		require.NoError(t, err)
		require.NoError(t, c.IngestInput(ctx, input))

		steps := 0
		for {
			// Every step runs in a fresh process image.
			c, err := New(&pairsProgram{}, store, WithInstanceID("sweep"), WithBudget(cfg))
			require.NoError(t, err)
			st, err := c.Step(ctx)
			require.NoError(t, err, "limit %d step %d", limit, steps)
			require.LessOrEqual(t, st.Cost, limit)
			steps++
			if st.Done {
				res, err := c.Results(ctx)
				require.NoError(t, err)
				work, _ := store.Bytes(c.WorkSegment())
				return res, work, steps
			}
			require.Less(t, steps, 1000)
		}
	}

	want, wantWork, wantSteps := solve(100_000)
	assert.Equal(t, 1, wantSteps)
	assert.Equal(t, checkpoint.Uint(20), want["n"])

	for limit := int64(150); limit <= 600; limit += 7 {
		got, work, steps := solve(limit)
		assert.Equal(t, want, got, "limit %d", limit)
		assert.Equal(t, wantWork, work, "limit %d", limit)
		if limit < 200 {
			assert.Greater(t, steps, 1, "limit %d", limit)
		}
	}
}

func TestStep_FailureLeavesStoreUntouched(t *testing.T) {
	ctx := context.Background()

	t.Run("ParseError", func(t *testing.T) {
		store := blobstore.NewMemoryStore()
		c, err := New(&pairsProgram{}, store, WithInstanceID("bad"))
		require.NoError(t, err)
		require.NoError(t, c.IngestInput(ctx, []byte("1,2\n3,x\n")))

		before := snapshot(t, store)
		_, err = c.Step(ctx)
		var pe *ParseError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, int64(6), pe.Pos)
		assert.Equal(t, before, snapshot(t, store))
	})

	t.Run("BoundsError", func(t *testing.T) {
		store := blobstore.NewMemoryStore()
		cfg := budget.Config{Limit: 300, Reserve: 60, Costs: budget.DefaultCostModel()}
		c, err := New(&pairsProgram{}, store, WithInstanceID("big"), WithBudget(cfg))
		require.NoError(t, err)
		require.NoError(t, c.IngestInput(ctx, pairsInput(65)))

		for i := 0; ; i++ {
			require.Less(t, i, 1000)
			before := snapshot(t, store)
			st, err := c.Step(ctx)
			if err != nil {
				var be *BoundsError
				require.ErrorAs(t, err, &be)
				assert.Equal(t, int64(64), be.Offset)
				assert.Equal(t, before, snapshot(t, store))
				return
			}
			require.False(t, st.Done)
		}
	})
}

func TestStep_RecoversFromWorkWriteFailure(t *testing.T) {
	ctx := context.Background()
	faulty := blobstore.NewFaultyStore(blobstore.NewMemoryStore())
	mc := &BasicMetricsCollector{}
	c, err := New(&counterProgram{}, faulty, WithInstanceID("wf"), WithBudget(counterBudget()), WithMetricsCollector(mc))
	require.NoError(t, err)

	st, err := c.Step(ctx)
	require.NoError(t, err)
	require.False(t, st.Done)
	before := snapshot(t, faulty)

	f := blobstore.NoFault()
	f.WritesBeforeFailure = 0
	faulty.Inject("/work", f)

	_, err = c.Step(ctx)
	var se *StoreIOError
	require.ErrorAs(t, err, &se)
	require.ErrorIs(t, err, blobstore.ErrInjected)

	faulty.Heal()
	after := snapshot(t, faulty)
	require.Contains(t, after, c.JournalSegment())
	delete(after, c.JournalSegment())
	assert.Equal(t, before, after)

	c2, err := New(&counterProgram{}, faulty, WithInstanceID("wf"), WithBudget(counterBudget()), WithMetricsCollector(mc))
	require.NoError(t, err)
	st, err = c2.Step(ctx)
	require.NoError(t, err)
	assert.True(t, st.Done)
	assert.Equal(t, int64(1), mc.GetStats().Recoveries)
	res, err := c2.Results(ctx)
	require.NoError(t, err)
	assert.Equal(t, checkpoint.Uint(7), res["c1"])
}

func TestStep_RecoversFromScalarWriteFailure(t *testing.T) {
	ctx := context.Background()
	faulty := blobstore.NewFaultyStore(blobstore.NewMemoryStore())
	mc := &BasicMetricsCollector{}
	opts := []Option{WithInstanceID("sf"), WithBudget(counterBudget()), WithMetricsCollector(mc)}
	c, err := New(&counterProgram{}, faulty, opts...)
	require.NoError(t, err)

	_, err = c.Step(ctx)
	require.NoError(t, err)
	workBefore, err := blobstore.ReadAll(ctx, faulty, c.WorkSegment())
	require.NoError(t, err)

	f := blobstore.NoFault()
	f.FailPut = true
	faulty.Inject("/scalars", f)

	_, err = c.Step(ctx)
	var se *StoreIOError
	require.ErrorAs(t, err, &se)

	// The rollback failed as well, so the journal is still there.
	_, err = blobstore.ReadAll(ctx, faulty, c.JournalSegment())
	require.NoError(t, err)

	faulty.Heal()
	c2, err := New(&counterProgram{}, faulty, opts...)
	require.NoError(t, err)
	st, err := c2.Step(ctx)
	require.NoError(t, err)
	assert.True(t, st.Done)
	assert.Equal(t, int64(1), mc.GetStats().Recoveries)

	_, err = blobstore.ReadAll(ctx, faulty, c2.JournalSegment())
	require.ErrorIs(t, err, blobstore.ErrNotFound)
	workAfter, err := blobstore.ReadAll(ctx, faulty, c2.WorkSegment())
	require.NoError(t, err)
	assert.Equal(t, workBefore[:8], workAfter[:8])
	assert.Equal(t, uint64(7), binary.BigEndian.Uint64(workAfter[8:]))
}

func TestStep_InFlight(t *testing.T) {
	ctx := context.Background()
	p := &blockingProgram{entered: make(chan struct{}), release: make(chan struct{})}
	c, err := New(p, blobstore.NewMemoryStore())
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := c.Step(ctx)
		errc <- err
	}()
	<-p.entered

	_, err = c.Step(ctx)
	require.ErrorIs(t, err, ErrStepInFlight)
	require.ErrorIs(t, c.CreateInput(ctx, 4), ErrStepInFlight)
	_, err = c.Teardown(ctx)
	require.ErrorIs(t, err, ErrStepInFlight)

	close(p.release)
	require.NoError(t, <-errc)

	done, err := c.Done(ctx)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestStep_LayoutMismatch(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	c, err := New(&counterProgram{}, store, WithInstanceID("lm"), WithBudget(counterBudget()))
	require.NoError(t, err)
	_, err = c.Step(ctx)
	require.NoError(t, err)

	other, err := New(&sizedProgram{sizes: []int64{8, 8}}, store, WithInstanceID("lm"))
	require.NoError(t, err)
	_, err = other.Step(ctx)
	var le *LayoutError
	require.ErrorAs(t, err, &le)
}

func TestNew_Errors(t *testing.T) {
	store := blobstore.NewMemoryStore()

	_, err := New(&sizedProgram{sizes: []int64{0}}, store)
	var le *LayoutError
	require.ErrorAs(t, err, &le)

	_, err = New(&sizedProgram{sizes: []int64{8}, key: "_hidden"}, store)
	require.Error(t, err)

	_, err = New(&counterProgram{}, store, WithStepBudget(0))
	require.Error(t, err)

	_, err = New(&counterProgram{}, store, WithJournalCompression("brotli"))
	require.Error(t, err)
}

func TestStep_BudgetTooSmall(t *testing.T) {
	ctx := context.Background()
	c, err := New(&counterProgram{}, blobstore.NewMemoryStore(),
		WithBudget(budget.Config{Limit: 50, Reserve: 110, Costs: budget.DefaultCostModel()}))
	require.NoError(t, err)

	st, err := c.Step(ctx)
	require.ErrorIs(t, err, ErrBudgetTooSmall)
	assert.False(t, st.Done)

	done, err := c.Done(ctx)
	require.NoError(t, err)
	assert.False(t, done)
}

func TestStep_BudgetOverrunIsFatal(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	// Without a reserve the program spends past the limit before it can yield.
	c, err := New(&counterProgram{}, store,
		WithBudget(budget.Config{Limit: 105, Costs: budget.DefaultCostModel()}))
	require.NoError(t, err)

	_, err = c.Step(ctx)
	require.ErrorIs(t, err, ErrBudgetExceeded)
	assert.Empty(t, snapshot(t, store))
}

func TestStep_WithoutJournal(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	c, err := New(&counterProgram{}, store, WithInstanceID("nj"), WithJournal(false), WithBudget(counterBudget()))
	require.NoError(t, err)

	sum, err := c.Solve(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Steps)
	assert.Equal(t, int64(128+138), sum.Cost)

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"nj/scalars", "nj/work"}, names)
}

func TestSolve_StepLimit(t *testing.T) {
	ctx := context.Background()
	c, err := New(&counterProgram{}, blobstore.NewMemoryStore(), WithBudget(counterBudget()), WithMaxSteps(1))
	require.NoError(t, err)

	sum, err := c.Solve(ctx)
	require.ErrorIs(t, err, ErrStepLimit)
	assert.Equal(t, 1, sum.Steps)
}

func TestResults(t *testing.T) {
	ctx := context.Background()
	c, err := New(&counterProgram{}, blobstore.NewMemoryStore())
	require.NoError(t, err)

	_, err = c.Result(ctx, "c0")
	require.ErrorIs(t, err, ErrNotDone)

	_, err = c.Solve(ctx)
	require.NoError(t, err)

	v, err := c.Result(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), v)

	_, err = c.ResultBytes(ctx, "c1")
	require.ErrorIs(t, err, checkpoint.ErrKindMismatch)

	_, err = c.Result(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTeardown(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	mc := &BasicMetricsCollector{}
	c, err := New(&pairsProgram{}, store, WithMetricsCollector(mc))
	require.NoError(t, err)
	input := []byte("1,2\n")
	require.NoError(t, c.IngestInput(ctx, input))
	_, err = c.Solve(ctx)
	require.NoError(t, err)

	n, err := c.Teardown(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(len(input))+64*16, n)
	assert.Empty(t, snapshot(t, store))

	stats := mc.GetStats()
	assert.Equal(t, int64(1), stats.TeardownCount)
	assert.Equal(t, n, stats.ReclaimedBytes)
	assert.Equal(t, int64(1), stats.Completions)
}

func TestBasicMetricsCollector(t *testing.T) {
	mc := &BasicMetricsCollector{}
	mc.RecordStep(10, false, 4, nil)
	mc.RecordStep(20, true, 8, nil)
	mc.RecordStep(5, false, 0, errors.New("boom"))
	mc.RecordYield(10)
	mc.RecordIngest(7, nil)
	mc.RecordRecovery(nil)

	s := mc.GetStats()
	assert.Equal(t, int64(3), s.StepCount)
	assert.Equal(t, int64(1), s.StepErrors)
	assert.Equal(t, int64(30), s.StepTotalCost)
	assert.Equal(t, int64(1), s.Completions)
	assert.Equal(t, int64(1), s.YieldCount)
	assert.Equal(t, int64(7), s.IngestBytes)
	assert.Equal(t, int64(1), s.Recoveries)
	assert.Equal(t, int64(4), s.StepAvgNanos)
}

func TestLogger(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	c, err := New(&counterProgram{}, blobstore.NewMemoryStore(),
		WithInstanceID("logged"), WithBudget(counterBudget()), WithLogger(NewLogger(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))))
	require.NoError(t, err)

	_, err = c.Solve(ctx)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"instance":"logged"`)
	assert.Contains(t, buf.String(), `"program":"counters"`)
}
