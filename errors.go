package steparena

import (
	"errors"
	"fmt"

	"github.com/hupe1980/steparena/arena"
	"github.com/hupe1980/steparena/blobstore"
	"github.com/hupe1980/steparena/budget"
	"github.com/hupe1980/steparena/checkpoint"
	"github.com/hupe1980/steparena/reader"
)

var (
	// ErrDone is returned by Step after completion when WithStrictDone is set.
	ErrDone = errors.New("computation is done")
	// ErrNotDone is returned by result accessors before completion.
	ErrNotDone = errors.New("computation is not done")

	// ErrInputSealed is returned when the input is changed after the first step.
	ErrInputSealed = errors.New("input is sealed")
	// ErrInputIncomplete is returned by Step while fewer bytes were appended
	// than CreateInput declared.
	ErrInputIncomplete = errors.New("input is incomplete")
	// ErrInputOverflow is returned when an append passes the declared size.
	ErrInputOverflow = errors.New("input overflows its declared size")
	// ErrNoInput is returned by AppendInput before CreateInput.
	ErrNoInput = errors.New("input was not created")

	// ErrStepInFlight is returned when a second operation starts while a
	// step of the same computation is running.
	ErrStepInFlight = errors.New("a step is already in flight")

	// ErrBudgetExceeded is returned when consumer logic overruns the step
	// budget instead of yielding.
	ErrBudgetExceeded = budget.ErrExceeded
	// ErrBudgetTooSmall is returned when a step budget cannot cover one unit
	// of work plus its commit.
	ErrBudgetTooSmall = errors.New("step budget too small to make progress")
	// ErrStepLimit is returned by Solve when WithMaxSteps is reached.
	ErrStepLimit = errors.New("step limit reached")

	ErrMixedAccess      = arena.ErrMixedAccess
	ErrCapacityExceeded = checkpoint.ErrCapacityExceeded
	ErrNotFound         = blobstore.ErrNotFound
)

// LayoutError reports an arena layout that is invalid or differs from the
// layout the computation was started with. It is raised before store I/O.
//
// The wrapped error, if any, is available through errors.Unwrap.
type LayoutError struct {
	Area   string
	Reason string
	cause  error
}

func (e *LayoutError) Error() string {
	if e.Area == "" {
		return "layout: " + e.Reason
	}
	return fmt.Sprintf("layout of %q: %s", e.Area, e.Reason)
}

func (e *LayoutError) Unwrap() error { return e.cause }

// BoundsError reports an index or byte range outside an area or view.
//
// The wrapped error, if any, is available through errors.Unwrap.
type BoundsError struct {
	Area   string
	Offset int64
	Length int64
	Limit  int64
	cause  error
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("out of bounds: %q range [%d, %d) outside [0, %d)",
		e.Area, e.Offset, e.Offset+e.Length, e.Limit)
}

func (e *BoundsError) Unwrap() error { return e.cause }

// ParseError reports malformed input.
//
// The wrapped error, if any, is available through errors.Unwrap.
type ParseError struct {
	Pos    int64
	Reason string
	cause  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at %d: %s", e.Pos, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.cause }

// StoreIOError reports a failure of the external segment or scalar store.
// A step that fails with it has not advanced.
type StoreIOError struct {
	Op      string
	Segment string
	cause   error
}

func (e *StoreIOError) Error() string {
	if e.Segment == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.cause)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Segment, e.cause)
}

func (e *StoreIOError) Unwrap() error { return e.cause }

func storeErr(op, segment string, err error) error {
	if err == nil {
		return nil
	}
	var sio *StoreIOError
	if errors.As(err, &sio) {
		return err
	}
	return &StoreIOError{Op: op, Segment: segment, cause: err}
}

func translateError(err error) error {
	if err == nil {
		return nil
	}

	var (
		le  *LayoutError
		be  *BoundsError
		pe  *ParseError
		sio *StoreIOError
	)
	if errors.As(err, &le) || errors.As(err, &be) || errors.As(err, &pe) || errors.As(err, &sio) {
		return err
	}

	var ale *arena.LayoutError
	if errors.As(err, &ale) {
		return &LayoutError{Area: ale.Area, Reason: ale.Reason, cause: err}
	}
	var abe *arena.BoundsError
	if errors.As(err, &abe) {
		return &BoundsError{Area: abe.Area, Offset: abe.Offset, Length: abe.Length, Limit: abe.Limit, cause: err}
	}
	var rpe *reader.ParseError
	if errors.As(err, &rpe) {
		return &ParseError{Pos: rpe.Pos, Reason: rpe.Reason, cause: err}
	}

	return err
}
