// Package programs bundles ready-made steparena programs. Each parses its
// input through the step reader, keeps its state in arena areas and bound
// scalars, and yields whenever the step budget runs low.
package programs

import (
	"context"
	"fmt"
	"slices"

	"github.com/hupe1980/steparena"
	"github.com/hupe1980/steparena/reader"
)

var registry = map[string]func() steparena.Program{
	"calories": func() steparena.Program { return NewCalories() },
	"overlap":  func() steparena.Program { return NewOverlap() },
	"beacons":  func() steparena.Program { return NewBeacons(DefaultBeaconRow) },
}

// Lookup returns a fresh instance of the named program.
func Lookup(name string) (steparena.Program, bool) {
	fn, ok := registry[name]
	if !ok {
		return nil, false
	}
	return fn(), true
}

// Names returns the registered program names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func parseErr(rd *reader.Reader, format string, args ...any) error {
	return &reader.ParseError{Pos: rd.Pos(), Reason: fmt.Sprintf(format, args...)}
}

func uint64At(ctx context.Context, rd *reader.Reader) (uint64, error) {
	v, ok, err := rd.NextUint(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, parseErr(rd, "expected an unsigned integer")
	}
	return v, nil
}

func int64At(ctx context.Context, rd *reader.Reader) (int64, error) {
	s, ok, err := rd.NextInt(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, parseErr(rd, "expected an integer")
	}
	v, ok := s.Int64()
	if !ok {
		return 0, parseErr(rd, "integer overflows int64")
	}
	return v, nil
}

func literal(ctx context.Context, rd *reader.Reader, lit string) error {
	for i := range len(lit) {
		if err := rd.Expect(ctx, lit[i]); err != nil {
			return err
		}
	}
	return nil
}

// endOfLine consumes a newline unless the input is exhausted.
func endOfLine(ctx context.Context, rd *reader.Reader) error {
	if !rd.Available() {
		return nil
	}
	return rd.Expect(ctx, '\n')
}
