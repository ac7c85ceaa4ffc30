package checkpoint

import (
	"bytes"
	"errors"
	"fmt"
)

// MaxBytes is the longest byte-string value a Store accepts.
const MaxBytes = 128

var (
	// ErrCapacityExceeded is returned when a save would exceed the store capacity.
	ErrCapacityExceeded = errors.New("checkpoint: capacity exceeded")
	// ErrValueTooLarge is returned for byte strings longer than MaxBytes.
	ErrValueTooLarge = errors.New("checkpoint: value too large")
	// ErrKindMismatch is returned when a stored value has the wrong kind.
	ErrKindMismatch = errors.New("checkpoint: kind mismatch")
)

// Kind is the type of a Value.
type Kind uint8

const (
	KindUint Kind = iota
	KindBytes
)

func (k Kind) String() string {
	switch k {
	case KindUint:
		return "uint"
	case KindBytes:
		return "bytes"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a scalar: an unsigned integer or a byte string.
type Value struct {
	Kind  Kind
	Num   uint64
	Bytes []byte
}

// Uint returns an integer value.
func Uint(v uint64) Value { return Value{Kind: KindUint, Num: v} }

// Bytes returns a byte-string value holding a copy of b.
func Bytes(b []byte) Value { return Value{Kind: KindBytes, Bytes: bytes.Clone(b)} }

// Equal reports whether v and o hold the same scalar.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	if v.Kind == KindBytes {
		return bytes.Equal(v.Bytes, o.Bytes)
	}
	return v.Num == o.Num
}

// Validate checks the value size.
func (v Value) Validate() error {
	if v.Kind == KindBytes && len(v.Bytes) > MaxBytes {
		return fmt.Errorf("%w: %d bytes, max %d", ErrValueTooLarge, len(v.Bytes), MaxBytes)
	}
	if v.Kind != KindUint && v.Kind != KindBytes {
		return fmt.Errorf("%w: %s", ErrKindMismatch, v.Kind)
	}
	return nil
}

func (v Value) String() string {
	if v.Kind == KindBytes {
		return fmt.Sprintf("%q", v.Bytes)
	}
	return fmt.Sprintf("%d", v.Num)
}
