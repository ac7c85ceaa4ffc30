package checkpoint

import (
	"bytes"
	"fmt"
	"slices"
	"strings"
)

// Binder declares the scalar variables a consumer carries between steps.
type Binder interface {
	Bind(b *Binding)
}

// ReservedPrefix marks keys owned by the step runtime.
const ReservedPrefix = "_"

// Binding maps declared variables to checkpoint keys.
type Binding struct {
	vars []variable
	err  error
}

type variable struct {
	key   string
	get   func() Value
	set   func(Value) error
	reset func()
}

// NewBinding collects the variables declared by binders.
func NewBinding(binders ...Binder) *Binding {
	b := &Binding{}
	for _, bd := range binders {
		bd.Bind(b)
	}
	return b
}

func (b *Binding) add(v variable) {
	switch {
	case v.key == "":
		b.fail("empty key")
	case strings.HasPrefix(v.key, ReservedPrefix):
		b.fail("key %q uses the reserved prefix %q", v.key, ReservedPrefix)
	case slices.ContainsFunc(b.vars, func(o variable) bool { return o.key == v.key }):
		b.fail("duplicate key %q", v.key)
	default:
		b.vars = append(b.vars, v)
	}
}

func (b *Binding) fail(format string, args ...any) {
	if b.err == nil {
		b.err = fmt.Errorf("checkpoint: binding: "+format, args...)
	}
}

// Err returns the first declaration error.
func (b *Binding) Err() error { return b.err }

// Keys returns the declared keys in declaration order.
func (b *Binding) Keys() []string {
	keys := make([]string, len(b.vars))
	for i, v := range b.vars {
		keys[i] = v.key
	}
	return keys
}

// Uint64 binds p to key.
func (b *Binding) Uint64(key string, p *uint64) {
	b.add(variable{
		key: key,
		get: func() Value { return Uint(*p) },
		set: func(v Value) error {
			if v.Kind != KindUint {
				return fmt.Errorf("%w: %q is %s", ErrKindMismatch, key, v.Kind)
			}
			*p = v.Num
			return nil
		},
		reset: func() { *p = 0 },
	})
}

// Int64 binds p to key, stored as its two's complement bits.
func (b *Binding) Int64(key string, p *int64) {
	b.add(variable{
		key: key,
		get: func() Value { return Uint(uint64(*p)) },
		set: func(v Value) error {
			if v.Kind != KindUint {
				return fmt.Errorf("%w: %q is %s", ErrKindMismatch, key, v.Kind)
			}
			*p = int64(v.Num)
			return nil
		},
		reset: func() { *p = 0 },
	})
}

// Bool binds p to key.
func (b *Binding) Bool(key string, p *bool) {
	b.add(variable{
		key: key,
		get: func() Value {
			if *p {
				return Uint(1)
			}
			return Uint(0)
		},
		set: func(v Value) error {
			if v.Kind != KindUint {
				return fmt.Errorf("%w: %q is %s", ErrKindMismatch, key, v.Kind)
			}
			*p = v.Num != 0
			return nil
		},
		reset: func() { *p = false },
	})
}

// Bytes binds p to key.
func (b *Binding) Bytes(key string, p *[]byte) {
	b.add(variable{
		key: key,
		get: func() Value { return Bytes(*p) },
		set: func(v Value) error {
			if v.Kind != KindBytes {
				return fmt.Errorf("%w: %q is %s", ErrKindMismatch, key, v.Kind)
			}
			*p = bytes.Clone(v.Bytes)
			return nil
		},
		reset: func() { *p = nil },
	})
}

// Phase binds an enumeration to key.
func Phase[T ~uint8 | ~uint16 | ~uint32 | ~uint64](b *Binding, key string, p *T) {
	b.add(variable{
		key: key,
		get: func() Value { return Uint(uint64(*p)) },
		set: func(v Value) error {
			if v.Kind != KindUint || uint64(T(v.Num)) != v.Num {
				return fmt.Errorf("%w: %q does not hold a phase", ErrKindMismatch, key)
			}
			*p = T(v.Num)
			return nil
		},
		reset: func() { *p = 0 },
	})
}

// Restore sets every variable from values. Variables without a value are
// reset to their zero value.
func (b *Binding) Restore(values map[string]Value) error {
	for _, v := range b.vars {
		val, ok := values[v.key]
		if !ok {
			v.reset()
			continue
		}
		if err := v.set(val); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot returns the current value of every variable.
func (b *Binding) Snapshot() map[string]Value {
	out := make(map[string]Value, len(b.vars))
	for _, v := range b.vars {
		out[v.key] = v.get()
	}
	return out
}
