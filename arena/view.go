package arena

import (
	"context"
	"fmt"

	"github.com/hupe1980/steparena/codec"
)

// checkValue rejects values that would not round-trip through c.
func checkValue[T any](area string, c codec.Element[T], v T) error {
	s, ok := c.(codec.Sized[T])
	if !ok {
		return nil
	}
	if n := s.Len(v); n != c.Width() {
		return &BoundsError{Area: area, Length: int64(n), Limit: int64(c.Width()), Value: true}
	}
	return nil
}

// Slot is a single value at a fixed offset of an area.
type Slot[T any] struct {
	area  *Area
	off   int64
	codec codec.Element[T]
}

// NewSlot overlays one value at off.
func NewSlot[T any](ar *Area, off int64, c codec.Element[T]) (*Slot[T], error) {
	w := int64(c.Width())
	if off < 0 || w <= 0 || off+w > ar.size {
		return nil, &LayoutError{Area: ar.name, Reason: fmt.Sprintf("slot [%d, %d) does not fit %d bytes", off, off+w, ar.size)}
	}
	return &Slot[T]{area: ar, off: off, codec: c}, nil
}

// AllocSlot allocates an area sized for one value and overlays a slot.
func AllocSlot[T any](a *Arena, c codec.Element[T], opts ...AreaOption) (*Slot[T], error) {
	ar, err := a.Alloc(int64(c.Width()), opts...)
	if err != nil {
		return nil, err
	}
	return NewSlot(ar, 0, c)
}

// Area returns the underlying area.
func (s *Slot[T]) Area() *Area { return s.area }

// Get decodes the value.
func (s *Slot[T]) Get(ctx context.Context) (T, error) {
	b, err := s.area.read(ctx, s.off, int64(s.codec.Width()))
	if err != nil {
		var zero T
		return zero, err
	}
	return s.codec.Get(b), nil
}

// Set encodes v.
func (s *Slot[T]) Set(ctx context.Context, v T) error {
	if err := checkValue(s.area.name, s.codec, v); err != nil {
		return err
	}
	buf := make([]byte, s.codec.Width())
	s.codec.Put(buf, v)
	return s.area.write(ctx, s.off, buf)
}

// Array is a fixed-capacity sequence of values over an area.
type Array[T any] struct {
	area     *Area
	codec    codec.Element[T]
	width    int64
	capacity int64
}

// NewArray overlays capacity values on ar.
func NewArray[T any](ar *Area, c codec.Element[T], capacity int64) (*Array[T], error) {
	w := int64(c.Width())
	if w <= 0 || capacity < 0 || capacity*w > ar.size {
		return nil, &LayoutError{Area: ar.name, Reason: fmt.Sprintf("%d elements of width %d do not fit %d bytes", capacity, w, ar.size)}
	}
	return &Array[T]{area: ar, codec: c, width: w, capacity: capacity}, nil
}

// AllocArray allocates an area sized for capacity values and overlays an array.
func AllocArray[T any](a *Arena, c codec.Element[T], capacity int64, opts ...AreaOption) (*Array[T], error) {
	ar, err := a.Alloc(capacity*int64(c.Width()), opts...)
	if err != nil {
		return nil, err
	}
	return NewArray(ar, c, capacity)
}

// Area returns the underlying area.
func (v *Array[T]) Area() *Area { return v.area }

// Len returns the capacity.
func (v *Array[T]) Len() int64 { return v.capacity }

func (v *Array[T]) index(i, n int64) error {
	if v.area.arena.bounds == BoundsUnchecked {
		return nil
	}
	if i < 0 || n < 0 || i+n > v.capacity {
		return &BoundsError{Area: v.area.name, Offset: i, Length: n, Limit: v.capacity}
	}
	return nil
}

// Get decodes element i.
func (v *Array[T]) Get(ctx context.Context, i int64) (T, error) {
	var zero T
	if err := v.index(i, 1); err != nil {
		return zero, err
	}
	b, err := v.area.read(ctx, i*v.width, v.width)
	if err != nil {
		return zero, err
	}
	return v.codec.Get(b), nil
}

// Set encodes x as element i.
func (v *Array[T]) Set(ctx context.Context, i int64, x T) error {
	if err := v.index(i, 1); err != nil {
		return err
	}
	if err := checkValue(v.area.name, v.codec, x); err != nil {
		return err
	}
	buf := make([]byte, v.width)
	v.codec.Put(buf, x)
	return v.area.write(ctx, i*v.width, buf)
}

// Load decodes elements [from, to) with one area read.
func (v *Array[T]) Load(ctx context.Context, from, to int64) ([]T, error) {
	if err := v.index(from, to-from); err != nil {
		return nil, err
	}
	b, err := v.area.read(ctx, from*v.width, (to-from)*v.width)
	if err != nil {
		return nil, err
	}
	out := make([]T, to-from)
	for i := range out {
		out[i] = v.codec.Get(b[int64(i)*v.width:])
	}
	return out, nil
}

// Store encodes xs starting at element from with one area write.
func (v *Array[T]) Store(ctx context.Context, from int64, xs []T) error {
	n := int64(len(xs))
	if err := v.index(from, n); err != nil {
		return err
	}
	buf := make([]byte, n*v.width)
	for i, x := range xs {
		if err := checkValue(v.area.name, v.codec, x); err != nil {
			return err
		}
		v.codec.Put(buf[int64(i)*v.width:], x)
	}
	return v.area.write(ctx, from*v.width, buf)
}
