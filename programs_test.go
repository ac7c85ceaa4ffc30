package steparena

import (
	"context"
	"fmt"

	"github.com/hupe1980/steparena/arena"
	"github.com/hupe1980/steparena/checkpoint"
	"github.com/hupe1980/steparena/codec"
	"github.com/hupe1980/steparena/reader"
)

// counterProgram writes two counters, one per unit of work.
type counterProgram struct {
	counters *arena.Array[uint64]
	phase    uint8
}

var counterValues = [2]uint64{5, 7}

func (p *counterProgram) Name() string { return "counters" }

func (p *counterProgram) Layout(a *arena.Arena) error {
	var err error
	p.counters, err = arena.AllocArray(a, codec.Uint64{}, 2, arena.AutoCache(), arena.WithName("counters"))
	return err
}

func (p *counterProgram) Bind(b *checkpoint.Binding) { checkpoint.Phase(b, "phase", &p.phase) }

func (p *counterProgram) Init(context.Context, *Step) error { return nil }

func (p *counterProgram) Run(ctx context.Context, s *Step) (bool, error) {
	for p.phase < 2 {
		if s.ShouldYield() {
			return false, nil
		}
		if err := p.counters.Set(ctx, int64(p.phase), counterValues[p.phase]); err != nil {
			return false, err
		}
		p.phase++
		if err := s.Spend(100); err != nil {
			return false, err
		}
	}
	for i := range int64(2) {
		v, err := p.counters.Get(ctx, i)
		if err != nil {
			return false, err
		}
		s.SetResult(fmt.Sprintf("c%d", i), v)
	}
	return true, nil
}

// pairsProgram parses "a,b\n" lines into a struct array and sums them.
type pairsProgram struct {
	rows *arena.StructArray
	a, b arena.Field[uint64]

	n, sumA, sumB uint64
}

func (p *pairsProgram) Name() string { return "pairs" }

func (p *pairsProgram) Layout(a *arena.Arena) error {
	s := arena.NewSchema()
	p.a = arena.AddField(s, "a", codec.Uint64{})
	p.b = arena.AddField(s, "b", codec.Uint64{})
	var err error
	p.rows, err = arena.AllocStructArray(a, s, 64, arena.AutoCache(), arena.WithName("rows"))
	return err
}

func (p *pairsProgram) Bind(b *checkpoint.Binding) {
	b.Uint64("n", &p.n)
	b.Uint64("sum_a", &p.sumA)
	b.Uint64("sum_b", &p.sumB)
}

func (p *pairsProgram) Init(context.Context, *Step) error { return nil }

func (p *pairsProgram) number(ctx context.Context, rd *reader.Reader) (uint64, error) {
	v, ok, err := rd.NextUint(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, &reader.ParseError{Pos: rd.Pos(), Reason: "expected a digit"}
	}
	return v, nil
}

func (p *pairsProgram) Run(ctx context.Context, s *Step) (bool, error) {
	rd := s.Reader()
	for rd.Available() {
		if s.ShouldYield() {
			return false, nil
		}
		x, err := p.number(ctx, rd)
		if err != nil {
			return false, err
		}
		if err := rd.Expect(ctx, ','); err != nil {
			return false, err
		}
		y, err := p.number(ctx, rd)
		if err != nil {
			return false, err
		}
		if err := rd.Expect(ctx, '\n'); err != nil {
			return false, err
		}
		row := p.rows.At(int64(p.n))
		if err := p.a.Set(ctx, row, x); err != nil {
			return false, err
		}
		if err := p.b.Set(ctx, row, y); err != nil {
			return false, err
		}
		p.n++
		p.sumA += x
		p.sumB += y
		if err := s.Spend(5); err != nil {
			return false, err
		}
	}
	if s.ShouldYield() {
		return false, nil
	}
	s.SetResult("n", p.n)
	s.SetResult("sum_a", p.sumA)
	s.SetResult("sum_b", p.sumB)
	return true, nil
}

// blockingProgram parks in Run until released.
type blockingProgram struct {
	entered chan struct{}
	release chan struct{}
}

func (p *blockingProgram) Name() string                      { return "blocking" }
func (p *blockingProgram) Layout(a *arena.Arena) error       { _, err := a.Alloc(8); return err }
func (p *blockingProgram) Bind(*checkpoint.Binding)          {}
func (p *blockingProgram) Init(context.Context, *Step) error { return nil }

func (p *blockingProgram) Run(ctx context.Context, _ *Step) (bool, error) {
	close(p.entered)
	select {
	case <-p.release:
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// sizedProgram allocates the given areas and finishes immediately.
type sizedProgram struct {
	sizes []int64
	key   string
	n     uint64
}

func (p *sizedProgram) Name() string { return "sized" }

func (p *sizedProgram) Layout(a *arena.Arena) error {
	for _, size := range p.sizes {
		if _, err := a.Alloc(size); err != nil {
			return err
		}
	}
	return nil
}

func (p *sizedProgram) Bind(b *checkpoint.Binding) {
	if p.key != "" {
		b.Uint64(p.key, &p.n)
	}
}

func (p *sizedProgram) Init(context.Context, *Step) error { return nil }

func (p *sizedProgram) Run(context.Context, *Step) (bool, error) { return true, nil }
