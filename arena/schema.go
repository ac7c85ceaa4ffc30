package arena

import (
	"context"
	"fmt"

	"github.com/hupe1980/steparena/codec"
)

// Schema is the ordered field table of a struct element. Build it once with
// AddField and reuse it: its width decides every area sized from it.
type Schema struct {
	names  map[string]int64
	order  []string
	width  int64
	sealed bool
	err    error
}

// NewSchema starts an empty schema.
func NewSchema() *Schema {
	return &Schema{names: make(map[string]int64)}
}

// Field is a typed field of a Schema.
type Field[T any] struct {
	schema *Schema
	name   string
	off    int64
	codec  codec.Element[T]
}

// AddField appends a field. Errors (duplicate or empty names, fields added
// after use) are reported by Err and by every view built from the schema.
func AddField[T any](s *Schema, name string, c codec.Element[T]) Field[T] {
	f := Field[T]{schema: s, name: name, off: s.width, codec: c}
	switch {
	case s.sealed:
		s.fail("field %q added after the schema was used", name)
	case name == "":
		s.fail("empty field name")
	case c.Width() <= 0:
		s.fail("field %q has width %d", name, c.Width())
	default:
		if _, dup := s.names[name]; dup {
			s.fail("duplicate field %q", name)
			break
		}
		s.names[name] = s.width
		s.order = append(s.order, name)
		s.width += int64(c.Width())
	}
	return f
}

func (s *Schema) fail(format string, args ...any) {
	if s.err == nil {
		s.err = &LayoutError{Reason: fmt.Sprintf(format, args...)}
	}
}

// Err returns the first schema construction error.
func (s *Schema) Err() error { return s.err }

// Width returns the element width: the sum of the field widths.
func (s *Schema) Width() int64 { return s.width }

// Fields returns the field names in declaration order.
func (s *Schema) Fields() []string { return s.order }

// Name returns the field name.
func (f Field[T]) Name() string { return f.name }

// Offset returns the field offset within an element.
func (f Field[T]) Offset() int64 { return f.off }

// Decode reads the field from a raw element as returned by Elem.Bytes.
func (f Field[T]) Decode(elem []byte) T {
	return f.codec.Get(elem[f.off:])
}

func (f Field[T]) check(e Elem) error {
	if f.schema != e.rows.schema {
		return &LayoutError{Area: e.rows.area.name, Reason: fmt.Sprintf("field %q is not part of this schema", f.name)}
	}
	return e.rows.index(e.i, 1)
}

// Get decodes the field of element e.
func (f Field[T]) Get(ctx context.Context, e Elem) (T, error) {
	var zero T
	if err := f.check(e); err != nil {
		return zero, err
	}
	b, err := e.rows.area.read(ctx, e.i*e.rows.schema.width+f.off, int64(f.codec.Width()))
	if err != nil {
		return zero, err
	}
	return f.codec.Get(b), nil
}

// Set encodes v into the field of element e.
func (f Field[T]) Set(ctx context.Context, e Elem, v T) error {
	if err := f.check(e); err != nil {
		return err
	}
	if err := checkValue(e.rows.area.name, f.codec, v); err != nil {
		return err
	}
	buf := make([]byte, f.codec.Width())
	f.codec.Put(buf, v)
	return e.rows.area.write(ctx, e.i*e.rows.schema.width+f.off, buf)
}

// StructArray is a fixed-capacity sequence of schema elements over an area.
type StructArray struct {
	area     *Area
	schema   *Schema
	capacity int64
}

// NewStructArray overlays capacity elements of s on ar.
func NewStructArray(ar *Area, s *Schema, capacity int64) (*StructArray, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.sealed = true
	if s.width == 0 || capacity < 0 || capacity*s.width > ar.size {
		return nil, &LayoutError{Area: ar.name, Reason: fmt.Sprintf("%d elements of width %d do not fit %d bytes", capacity, s.width, ar.size)}
	}
	return &StructArray{area: ar, schema: s, capacity: capacity}, nil
}

// AllocStructArray allocates an area for capacity elements of s and overlays
// a struct array.
func AllocStructArray(a *Arena, s *Schema, capacity int64, opts ...AreaOption) (*StructArray, error) {
	if s.err != nil {
		return nil, s.err
	}
	ar, err := a.Alloc(capacity*s.width, opts...)
	if err != nil {
		return nil, err
	}
	return NewStructArray(ar, s, capacity)
}

// Area returns the underlying area.
func (sa *StructArray) Area() *Area { return sa.area }

// Schema returns the element schema.
func (sa *StructArray) Schema() *Schema { return sa.schema }

// Len returns the capacity.
func (sa *StructArray) Len() int64 { return sa.capacity }

// At returns element i. The index is checked on access.
func (sa *StructArray) At(i int64) Elem { return Elem{rows: sa, i: i} }

func (sa *StructArray) index(i, n int64) error {
	if sa.area.arena.bounds == BoundsUnchecked {
		return nil
	}
	if i < 0 || n < 0 || i+n > sa.capacity {
		return &BoundsError{Area: sa.area.name, Offset: i, Length: n, Limit: sa.capacity}
	}
	return nil
}

// Elem is one element of a StructArray.
type Elem struct {
	rows *StructArray
	i    int64
}

// Index returns the element index.
func (e Elem) Index() int64 { return e.i }

// Bytes returns a copy of the raw element.
func (e Elem) Bytes(ctx context.Context) ([]byte, error) {
	if err := e.rows.index(e.i, 1); err != nil {
		return nil, err
	}
	w := e.rows.schema.width
	b, err := e.rows.area.read(ctx, e.i*w, w)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

// SetBytes overwrites the raw element.
func (e Elem) SetBytes(ctx context.Context, raw []byte) error {
	if err := e.rows.index(e.i, 1); err != nil {
		return err
	}
	w := e.rows.schema.width
	if int64(len(raw)) != w {
		return &BoundsError{Area: e.rows.area.name, Offset: 0, Length: int64(len(raw)), Limit: w}
	}
	return e.rows.area.write(ctx, e.i*w, raw)
}

// Record is a single schema element over its own area. It packs scalar
// state that does not fit the checkpoint store.
type Record struct {
	Elem
}

// AllocRecord allocates a cached area for one element of s.
func AllocRecord(a *Arena, s *Schema, opts ...AreaOption) (*Record, error) {
	rows, err := AllocStructArray(a, s, 1, append([]AreaOption{AutoCache()}, opts...)...)
	if err != nil {
		return nil, err
	}
	return &Record{Elem: rows.At(0)}, nil
}
