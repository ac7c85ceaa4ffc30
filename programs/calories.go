package programs

import (
	"context"

	"github.com/hupe1980/steparena"
	"github.com/hupe1980/steparena/arena"
	"github.com/hupe1980/steparena/checkpoint"
	"github.com/hupe1980/steparena/codec"
)

// MaxCalorieGroups bounds the number of blank-line separated groups.
const MaxCalorieGroups = 4096

type caloriesPhase uint8

const (
	caloriesSumming caloriesPhase = iota
	caloriesRanking
	caloriesFinished
)

// Calories sums groups of numbers separated by blank lines and reports the
// largest group ("top") and the sum of the three largest ("top3").
type Calories struct {
	groups *arena.Array[uint64]

	phase   caloriesPhase
	n       uint64
	current uint64
	open    bool
	next    uint64
	top     [3]uint64
}

// NewCalories returns the program.
func NewCalories() *Calories { return &Calories{} }

func (p *Calories) Name() string { return "calories" }

func (p *Calories) Layout(a *arena.Arena) error {
	var err error
	p.groups, err = arena.AllocArray(a, codec.Uint64{}, MaxCalorieGroups, arena.AutoCache(), arena.WithName("groups"))
	return err
}

func (p *Calories) Bind(b *checkpoint.Binding) {
	checkpoint.Phase(b, "phase", &p.phase)
	b.Uint64("groups", &p.n)
	b.Uint64("current", &p.current)
	b.Bool("open", &p.open)
	b.Uint64("next", &p.next)
	b.Uint64("top1", &p.top[0])
	b.Uint64("top2", &p.top[1])
	b.Uint64("top3", &p.top[2])
}

func (p *Calories) Init(context.Context, *steparena.Step) error { return nil }

func (p *Calories) closeGroup(ctx context.Context) error {
	if !p.open {
		return nil
	}
	if err := p.groups.Set(ctx, int64(p.n), p.current); err != nil {
		return err
	}
	p.n++
	p.current = 0
	p.open = false
	return nil
}

func (p *Calories) Run(ctx context.Context, s *steparena.Step) (bool, error) {
	rd := s.Reader()
	for p.phase == caloriesSumming {
		if s.ShouldYield() {
			return false, nil
		}
		if !rd.Available() {
			if err := p.closeGroup(ctx); err != nil {
				return false, err
			}
			p.phase = caloriesRanking
			break
		}
		c, err := rd.Byte(ctx)
		if err != nil {
			return false, err
		}
		if c == '\n' {
			if err := rd.Expect(ctx, '\n'); err != nil {
				return false, err
			}
			if err := p.closeGroup(ctx); err != nil {
				return false, err
			}
		} else {
			v, err := uint64At(ctx, rd)
			if err != nil {
				return false, err
			}
			if err := endOfLine(ctx, rd); err != nil {
				return false, err
			}
			p.current += v
			p.open = true
		}
		if err := s.Spend(2); err != nil {
			return false, err
		}
	}

	for p.phase == caloriesRanking {
		if s.ShouldYield() {
			return false, nil
		}
		if p.next == p.n {
			p.phase = caloriesFinished
			break
		}
		v, err := p.groups.Get(ctx, int64(p.next))
		if err != nil {
			return false, err
		}
		p.rank(v)
		p.next++
		if err := s.Spend(1); err != nil {
			return false, err
		}
	}

	var sum uint64
	for _, v := range p.top {
		sum += v
	}
	s.SetResult("top", p.top[0])
	s.SetResult("top3", sum)
	s.SetResult("groups", p.n)
	return true, nil
}

// rank inserts v into the descending top three.
func (p *Calories) rank(v uint64) {
	for i := range p.top {
		if v > p.top[i] {
			copy(p.top[i+1:], p.top[i:len(p.top)-1])
			p.top[i] = v
			return
		}
	}
}
