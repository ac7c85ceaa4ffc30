package steparena

import (
	"context"

	"github.com/hupe1980/steparena/arena"
	"github.com/hupe1980/steparena/budget"
	"github.com/hupe1980/steparena/checkpoint"
	"github.com/hupe1980/steparena/reader"
)

// Program is the consumer logic a Computation drives.
//
// Layout and Bind run once, when the Computation is constructed: Layout
// allocates every area the program uses (the same ordered sizes on every
// run) and Bind declares the scalars carried from one step to the next.
// Init runs on the first step only and writes initial area contents. Run
// does the work of a step; it returns done=true on completion, or
// done=false after checking Step.ShouldYield between units of work.
type Program interface {
	Name() string
	Layout(a *arena.Arena) error
	Bind(b *checkpoint.Binding)
	Init(ctx context.Context, s *Step) error
	Run(ctx context.Context, s *Step) (done bool, err error)
}

// Status is the outcome of one step.
type Status struct {
	Done bool
	// Cost is the budget the step consumed, commit included.
	Cost int64
}

// Step is the view a Program has of the step in progress. It is valid only
// during Init and Run.
type Step struct {
	c       *Computation
	budget  *budget.Budget
	reader  *reader.Reader
	number  uint64
	first   bool
	results map[string]checkpoint.Value
}

// Number is the 1-based index of this step among committed steps.
func (s *Step) Number() uint64 { return s.number }

// First reports whether this is the step that initialized the computation.
func (s *Step) First() bool { return s.first }

// Reader returns the input cursor, positioned where the previous step left it.
func (s *Step) Reader() *reader.Reader { return s.reader }

// Budget returns the step budget.
func (s *Step) Budget() *budget.Budget { return s.budget }

// ShouldYield reports whether the program must stop and return done=false.
// It is false until the step has made progress, so every step advances.
func (s *Step) ShouldYield() bool {
	return s.budget.Low() && s.budget.SinceMark() > 0
}

// ShouldYieldBefore is ShouldYield for a unit of work priced at units: it
// also reports true when that unit would leave too little for the commit.
func (s *Step) ShouldYieldBefore(units int64) bool {
	return !s.budget.Affords(units) && s.budget.SinceMark() > 0
}

// Spend charges units of consumer work.
func (s *Step) Spend(units int64) error {
	return s.budget.Charge(units)
}

// SetResult records a numeric output field. Results are persisted only by
// the step that returns done=true.
func (s *Step) SetResult(name string, v uint64) {
	s.results[name] = checkpoint.Uint(v)
}

// SetResultBytes records a byte-string output field.
func (s *Step) SetResultBytes(name string, b []byte) error {
	v := checkpoint.Bytes(b)
	if err := v.Validate(); err != nil {
		return err
	}
	s.results[name] = v
	return nil
}

// Measure runs fn and logs the budget it consumed. The maximum per region
// over the step is kept in the budget stats.
func (s *Step) Measure(ctx context.Context, region string, fn func() error) error {
	cost, err := s.budget.Measure(region, fn)
	s.c.logger.LogMeasure(ctx, region, cost)
	return err
}
