// Package budget meters the execution cost of one step.
//
// A Budget is created fresh for every step and never carried over. Every
// external store call is charged a fixed cost regardless of its length, and
// consumers charge their own work with Charge. The budget is checked between
// units of work: Low reports when the remaining units no longer cover the
// reserve plus the estimated cost of committing the step.
package budget

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/steparena/blobstore"
)

const (
	// DefaultLimit is the per-step budget when none is configured.
	DefaultLimit int64 = 256 * 700
	// DefaultReserve is kept back for the commit of a yielding step.
	DefaultReserve int64 = 700
)

// ErrExceeded is returned by Charge once the limit is overrun. It is fatal
// for the step: a consumer that checks Low between units never sees it.
var ErrExceeded = errors.New("budget exceeded")

// CostModel assigns units to external operations.
type CostModel struct {
	// Read is charged per external segment read call.
	Read int64 `yaml:"read"`
	// Write is charged per external segment write call.
	Write int64 `yaml:"write"`
	// ScalarLoad is charged per scalar loaded from the checkpoint store.
	ScalarLoad int64 `yaml:"scalar_load"`
	// ScalarSave is charged per scalar saved or deleted.
	ScalarSave int64 `yaml:"scalar_save"`
}

// DefaultCostModel returns the default per-call costs.
func DefaultCostModel() CostModel {
	return CostModel{
		Read:       10,
		Write:      10,
		ScalarLoad: 2,
		ScalarSave: 2,
	}
}

// Config configures a Budget.
type Config struct {
	// Limit is the total number of units available to the step.
	Limit int64
	// Reserve is kept back so a yielding step can still commit.
	Reserve int64
	Costs   CostModel
}

// DefaultConfig returns the default step budget.
func DefaultConfig() Config {
	return Config{
		Limit:   DefaultLimit,
		Reserve: DefaultReserve,
		Costs:   DefaultCostModel(),
	}
}

// Budget tracks the units consumed by one step.
// Charge and ChargeIO are safe for concurrent use.
type Budget struct {
	limit   int64
	reserve int64
	costs   CostModel
	started time.Time

	used atomic.Int64
	mark atomic.Int64

	estimate func() int64

	mu      sync.Mutex
	regions map[string]int64
}

// New creates a budget from cfg.
func New(cfg Config) *Budget {
	return &Budget{
		limit:   cfg.Limit,
		reserve: cfg.Reserve,
		costs:   cfg.Costs,
		started: time.Now(),
	}
}

// Charge consumes units. It fails with ErrExceeded once usage passes the limit.
func (b *Budget) Charge(units int64) error {
	if b == nil || units <= 0 {
		return nil
	}
	used := b.used.Add(units)
	if used > b.limit {
		return fmt.Errorf("%w: used %d of %d", ErrExceeded, used, b.limit)
	}
	return nil
}

// ChargeIO implements blobstore.Meter.
func (b *Budget) ChargeIO(op blobstore.Op, _ int) error {
	if b == nil {
		return nil
	}
	if op == blobstore.OpWrite {
		return b.Charge(b.costs.Write)
	}
	return b.Charge(b.costs.Read)
}

// ChargeScalarLoads charges n scalar loads.
func (b *Budget) ChargeScalarLoads(n int) error {
	if b == nil {
		return nil
	}
	return b.Charge(int64(n) * b.costs.ScalarLoad)
}

// ChargeScalarSaves charges n scalar saves or deletes.
func (b *Budget) ChargeScalarSaves(n int) error {
	if b == nil {
		return nil
	}
	return b.Charge(int64(n) * b.costs.ScalarSave)
}

// Costs returns the cost model.
func (b *Budget) Costs() CostModel { return b.costs }

// Limit returns the configured limit.
func (b *Budget) Limit() int64 { return b.limit }

// Used returns the units consumed so far.
func (b *Budget) Used() int64 { return b.used.Load() }

// Remaining returns the units left, never negative.
func (b *Budget) Remaining() int64 {
	return max(b.limit-b.used.Load(), 0)
}

// SetCommitEstimator installs the function Low uses to price the commit.
func (b *Budget) SetCommitEstimator(fn func() int64) { b.estimate = fn }

// CommitEstimate returns the current commit estimate, or 0.
func (b *Budget) CommitEstimate() int64 {
	if b.estimate == nil {
		return 0
	}
	return b.estimate()
}

// Low reports whether the remaining units no longer cover the reserve and
// the commit estimate.
func (b *Budget) Low() bool {
	return b.Remaining() < b.reserve+b.CommitEstimate()
}

// Affords reports whether units can be charged with the reserve and the
// commit estimate still covered afterwards.
func (b *Budget) Affords(units int64) bool {
	return b.Remaining()-max(units, 0) >= b.reserve+b.CommitEstimate()
}

// Mark records the current usage as the start of a run.
func (b *Budget) Mark() { b.mark.Store(b.used.Load()) }

// SinceMark returns the units consumed since the last Mark.
func (b *Budget) SinceMark() int64 { return b.used.Load() - b.mark.Load() }

// Measure runs fn and records its cost under name. Repeated measurements of
// the same region keep the maximum.
func (b *Budget) Measure(name string, fn func() error) (int64, error) {
	before := b.used.Load()
	err := fn()
	cost := b.used.Load() - before

	b.mu.Lock()
	if b.regions == nil {
		b.regions = make(map[string]int64)
	}
	if cost > b.regions[name] {
		b.regions[name] = cost
	}
	b.mu.Unlock()
	return cost, err
}

// Stats returns budget usage statistics.
func (b *Budget) Stats() Stats {
	if b == nil {
		return Stats{}
	}
	b.mu.Lock()
	regions := make(map[string]int64, len(b.regions))
	for k, v := range b.regions {
		regions[k] = v
	}
	b.mu.Unlock()

	return Stats{
		Used:           b.used.Load(),
		Limit:          b.limit,
		Reserve:        b.reserve,
		CommitEstimate: b.CommitEstimate(),
		Elapsed:        time.Since(b.started),
		Regions:        regions,
	}
}

// Stats contains budget usage statistics.
type Stats struct {
	Used           int64
	Limit          int64
	Reserve        int64
	CommitEstimate int64
	Elapsed        time.Duration
	// Regions holds the maximum cost of each measured region.
	Regions map[string]int64
}

// UtilizationPercent returns Used as a percentage of Limit.
func (s Stats) UtilizationPercent() float64 {
	if s.Limit <= 0 {
		return 0
	}
	return float64(s.Used) / float64(s.Limit) * 100
}

type budgetKey struct{}

// WithBudget attaches a budget to a context.
func WithBudget(ctx context.Context, b *Budget) context.Context {
	return context.WithValue(ctx, budgetKey{}, b)
}

// FromContext retrieves the budget from context, or nil if none.
func FromContext(ctx context.Context) *Budget {
	if b, ok := ctx.Value(budgetKey{}).(*Budget); ok {
		return b
	}
	return nil
}
