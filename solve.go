package steparena

import (
	"context"
	"fmt"

	"github.com/hupe1980/steparena/checkpoint"
)

// Summary is the outcome of Solve.
type Summary struct {
	// Steps is the number of steps Solve ran.
	Steps int
	// Cost is the budget consumed over those steps.
	Cost    int64
	Results map[string]checkpoint.Value
}

// Solve steps the computation until it is done and returns its results.
// It stops with ErrStepLimit after WithMaxSteps steps.
func (c *Computation) Solve(ctx context.Context) (Summary, error) {
	var sum Summary
	done, err := c.Done(ctx)
	if err != nil {
		return sum, err
	}
	for !done {
		if c.opts.maxSteps > 0 && sum.Steps >= c.opts.maxSteps {
			return sum, fmt.Errorf("%w: %d steps", ErrStepLimit, sum.Steps)
		}
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		st, err := c.Step(ctx)
		if err != nil {
			return sum, err
		}
		sum.Steps++
		sum.Cost += st.Cost
		done = st.Done
	}
	sum.Results, err = c.Results(ctx)
	return sum, err
}
