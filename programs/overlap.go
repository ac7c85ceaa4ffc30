package programs

import (
	"context"

	"github.com/hupe1980/steparena"
	"github.com/hupe1980/steparena/arena"
	"github.com/hupe1980/steparena/checkpoint"
	"github.com/hupe1980/steparena/codec"
)

// Overlap reads lines "a-b,c-d" and counts the pairs where one range
// contains the other ("contained") and the pairs that overlap at all
// ("overlapping"). The line count and the widest range seen are packed
// into an arena record.
type Overlap struct {
	stats  *arena.Record
	lines  arena.Field[uint64]
	widest arena.Field[uint64]

	contained   uint64
	overlapping uint64
}

// NewOverlap returns the program.
func NewOverlap() *Overlap { return &Overlap{} }

func (p *Overlap) Name() string { return "overlap" }

func (p *Overlap) Layout(a *arena.Arena) error {
	s := arena.NewSchema()
	p.lines = arena.AddField(s, "lines", codec.Uint64{})
	p.widest = arena.AddField(s, "widest", codec.Uint64{})
	var err error
	p.stats, err = arena.AllocRecord(a, s, arena.WithName("stats"))
	return err
}

func (p *Overlap) Bind(b *checkpoint.Binding) {
	b.Uint64("contained", &p.contained)
	b.Uint64("overlapping", &p.overlapping)
}

func (p *Overlap) Init(context.Context, *steparena.Step) error { return nil }

func (p *Overlap) pair(ctx context.Context, s *steparena.Step) (lo1, hi1, lo2, hi2 uint64, err error) {
	rd := s.Reader()
	if lo1, err = uint64At(ctx, rd); err != nil {
		return
	}
	if err = rd.Expect(ctx, '-'); err != nil {
		return
	}
	if hi1, err = uint64At(ctx, rd); err != nil {
		return
	}
	if err = rd.Expect(ctx, ','); err != nil {
		return
	}
	if lo2, err = uint64At(ctx, rd); err != nil {
		return
	}
	if err = rd.Expect(ctx, '-'); err != nil {
		return
	}
	if hi2, err = uint64At(ctx, rd); err != nil {
		return
	}
	err = endOfLine(ctx, rd)
	return
}

func (p *Overlap) Run(ctx context.Context, s *steparena.Step) (bool, error) {
	for s.Reader().Available() {
		if s.ShouldYield() {
			return false, nil
		}
		lo1, hi1, lo2, hi2, err := p.pair(ctx, s)
		if err != nil {
			return false, err
		}
		if lo1 > hi1 || lo2 > hi2 {
			return false, parseErr(s.Reader(), "range bounds out of order")
		}
		if (lo1 <= lo2 && hi1 >= hi2) || (lo2 <= lo1 && hi2 >= hi1) {
			p.contained++
		}
		if hi1 >= lo2 && hi2 >= lo1 {
			p.overlapping++
		}

		n, err := p.lines.Get(ctx, p.stats.Elem)
		if err != nil {
			return false, err
		}
		if err := p.lines.Set(ctx, p.stats.Elem, n+1); err != nil {
			return false, err
		}
		w, err := p.widest.Get(ctx, p.stats.Elem)
		if err != nil {
			return false, err
		}
		if widest := max(hi1-lo1, hi2-lo2) + 1; widest > w {
			if err := p.widest.Set(ctx, p.stats.Elem, widest); err != nil {
				return false, err
			}
		}
		if err := s.Spend(4); err != nil {
			return false, err
		}
	}

	n, err := p.lines.Get(ctx, p.stats.Elem)
	if err != nil {
		return false, err
	}
	w, err := p.widest.Get(ctx, p.stats.Elem)
	if err != nil {
		return false, err
	}
	s.SetResult("contained", p.contained)
	s.SetResult("overlapping", p.overlapping)
	s.SetResult("lines", n)
	s.SetResult("widest", w)
	return true, nil
}
