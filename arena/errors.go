package arena

import (
	"errors"
	"fmt"
)

var (
	// ErrMixedAccess is returned by Cache when the area was written directly
	// earlier in the same step.
	ErrMixedAccess = errors.New("arena: cache after direct write")

	// ErrDetached is returned for I/O on an arena with no attached segment.
	ErrDetached = errors.New("arena: no segment attached")
)

// LayoutError reports an invalid layout: a view that does not fit its area,
// an allocation after the layout was sealed, or a segment of the wrong size.
// It is raised before any store I/O.
type LayoutError struct {
	Area   string
	Reason string
}

func (e *LayoutError) Error() string {
	if e.Area == "" {
		return "arena: layout: " + e.Reason
	}
	return fmt.Sprintf("arena: layout of %q: %s", e.Area, e.Reason)
}

// BoundsError reports an index or byte range outside an area or view. With
// Value set it reports a value of Length bytes written to an element of
// Limit bytes.
type BoundsError struct {
	Area   string
	Offset int64
	Length int64
	Limit  int64
	Value  bool
}

func (e *BoundsError) Error() string {
	if e.Value {
		return fmt.Sprintf("arena: %q: value of %d bytes does not fill element of %d", e.Area, e.Length, e.Limit)
	}
	return fmt.Sprintf("arena: %q: range [%d, %d) outside [0, %d)",
		e.Area, e.Offset, e.Offset+e.Length, e.Limit)
}
