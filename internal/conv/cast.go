package conv

import (
	"fmt"
	"math"
)

// RangeError reports a value that does not fit the target type.
type RangeError struct {
	What  string
	Value string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("conv: %s %s out of range", e.What, e.Value)
}

// Offset decodes a persisted cursor, size or write position.
func Offset(what string, v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, &RangeError{What: what, Value: fmt.Sprint(v)}
	}
	return int64(v), nil
}

// Persisted encodes a non-negative offset for a checkpoint store.
func Persisted(what string, v int64) (uint64, error) {
	if v < 0 {
		return 0, &RangeError{What: what, Value: fmt.Sprint(v)}
	}
	return uint64(v), nil
}

// Index narrows a slice index to the 32-bit ids used in segment layouts.
func Index(what string, v int) (uint32, error) {
	if v < 0 || uint64(v) > math.MaxUint32 {
		return 0, &RangeError{What: what, Value: fmt.Sprint(v)}
	}
	return uint32(v), nil
}

// Length narrows a length to the 16-bit prefixes used for names and keys.
func Length(what string, v int) (uint16, error) {
	if v < 0 || v > math.MaxUint16 {
		return 0, &RangeError{What: what, Value: fmt.Sprint(v)}
	}
	return uint16(v), nil
}
