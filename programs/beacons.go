package programs

import (
	"cmp"
	"context"

	"github.com/hupe1980/steparena"
	"github.com/hupe1980/steparena/arena"
	"github.com/hupe1980/steparena/checkpoint"
	"github.com/hupe1980/steparena/codec"
)

const (
	// DefaultBeaconRow is the row Lookup("beacons") inspects.
	DefaultBeaconRow = 2_000_000
	// MaxSensors bounds the number of input lines.
	MaxSensors = 64
)

type beaconsPhase uint8

const (
	beaconsParsing beaconsPhase = iota
	beaconsSorting
	beaconsSweeping
	beaconsDeduplicating
	beaconsFinished
)

// Beacons reads sensor reports of the form
//
//	Sensor at x=2, y=18: closest beacon is at x=-2, y=15
//
// and counts the positions of one row that no beacon can occupy
// ("covered"). Each sensor excludes a Manhattan-distance diamond; the row
// slices of the diamonds are merged by sorting their endpoints.
type Beacons struct {
	row int64

	sensors *arena.StructArray
	sx, sy  arena.Field[int64]
	bx, by  arena.Field[int64]

	// endpoints holds interval ends in input order, sorted a copy of it.
	endpoints *arena.StructArray
	sorted    *arena.StructArray
	pos       arena.Field[int64]
	closing   arena.Field[bool]

	phase   beaconsPhase
	ns, ne  uint64
	index   uint64
	open    uint64
	last    int64
	covered uint64
}

// NewBeacons returns the program for row.
func NewBeacons(row int64) *Beacons { return &Beacons{row: row} }

func (p *Beacons) Name() string { return "beacons" }

func (p *Beacons) Layout(a *arena.Arena) error {
	ss := arena.NewSchema()
	p.sx = arena.AddField(ss, "sx", codec.Int64{})
	p.sy = arena.AddField(ss, "sy", codec.Int64{})
	p.bx = arena.AddField(ss, "bx", codec.Int64{})
	p.by = arena.AddField(ss, "by", codec.Int64{})

	es := arena.NewSchema()
	p.pos = arena.AddField(es, "pos", codec.Int64{})
	p.closing = arena.AddField(es, "closing", codec.Bool{})

	var err error
	if p.sensors, err = arena.AllocStructArray(a, ss, MaxSensors, arena.AutoCache(), arena.WithName("sensors")); err != nil {
		return err
	}
	if p.endpoints, err = arena.AllocStructArray(a, es, 2*MaxSensors, arena.AutoCache(), arena.WithName("endpoints")); err != nil {
		return err
	}
	p.sorted, err = arena.AllocStructArray(a, es, 2*MaxSensors, arena.AutoCache(), arena.WithName("sorted"))
	return err
}

func (p *Beacons) Bind(b *checkpoint.Binding) {
	checkpoint.Phase(b, "phase", &p.phase)
	b.Uint64("sensors", &p.ns)
	b.Uint64("endpoints", &p.ne)
	b.Uint64("index", &p.index)
	b.Uint64("open", &p.open)
	b.Int64("last", &p.last)
	b.Uint64("covered", &p.covered)
}

func (p *Beacons) Init(context.Context, *steparena.Step) error { return nil }

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func (p *Beacons) parse(ctx context.Context, s *steparena.Step) error {
	rd := s.Reader()
	var v [4]int64
	for i, lit := range []string{"Sensor at x=", ", y=", ": closest beacon is at x=", ", y="} {
		if err := literal(ctx, rd, lit); err != nil {
			return err
		}
		n, err := int64At(ctx, rd)
		if err != nil {
			return err
		}
		v[i] = n
	}
	if err := endOfLine(ctx, rd); err != nil {
		return err
	}

	sensor := p.sensors.At(int64(p.ns))
	for i, f := range []arena.Field[int64]{p.sx, p.sy, p.bx, p.by} {
		if err := f.Set(ctx, sensor, v[i]); err != nil {
			return err
		}
	}
	p.ns++

	r := abs(v[0]-v[2]) + abs(v[1]-v[3])
	if d := abs(v[1] - p.row); d <= r {
		w := r - d
		lo, hi := p.endpoints.At(int64(p.ne)), p.endpoints.At(int64(p.ne)+1)
		if err := p.pos.Set(ctx, lo, v[0]-w); err != nil {
			return err
		}
		if err := p.pos.Set(ctx, hi, v[0]+w); err != nil {
			return err
		}
		if err := p.closing.Set(ctx, hi, true); err != nil {
			return err
		}
		p.ne += 2
	}
	return nil
}

// sweep processes one sorted endpoint.
func (p *Beacons) sweep(ctx context.Context) error {
	e := p.sorted.At(int64(p.index))
	pos, err := p.pos.Get(ctx, e)
	if err != nil {
		return err
	}
	closing, err := p.closing.Get(ctx, e)
	if err != nil {
		return err
	}
	if !closing {
		if p.open == 0 {
			p.last = pos
		}
		p.open++
		return nil
	}
	p.open--
	if p.open == 0 {
		p.covered += uint64(pos - p.last + 1)
	}
	return nil
}

// dedup subtracts the beacon of sensor index if it lies on the row and no
// earlier sensor reported it.
func (p *Beacons) dedup(ctx context.Context) error {
	i := int64(p.index)
	bx, err := p.bx.Get(ctx, p.sensors.At(i))
	if err != nil {
		return err
	}
	by, err := p.by.Get(ctx, p.sensors.At(i))
	if err != nil {
		return err
	}
	if by != p.row {
		return nil
	}
	for j := range i {
		x, err := p.bx.Get(ctx, p.sensors.At(j))
		if err != nil {
			return err
		}
		y, err := p.by.Get(ctx, p.sensors.At(j))
		if err != nil {
			return err
		}
		if x == bx && y == by {
			return nil
		}
	}
	p.covered--
	return nil
}

func (p *Beacons) Run(ctx context.Context, s *steparena.Step) (bool, error) {
	for p.phase != beaconsFinished {
		if s.ShouldYield() {
			return false, nil
		}
		switch p.phase {
		case beaconsParsing:
			if !s.Reader().Available() {
				p.phase = beaconsSorting
				continue
			}
			if err := p.parse(ctx, s); err != nil {
				return false, err
			}
			if err := s.Spend(8); err != nil {
				return false, err
			}

		case beaconsSorting:
			costs := s.Budget().Costs()
			if s.ShouldYieldBefore(int64(p.ne) + 1 + 2*(costs.Read+costs.Write)) {
				return false, nil
			}
			err := s.Measure(ctx, "sort", func() error {
				if err := p.sorted.Area().Copy(ctx, p.endpoints.Area()); err != nil {
					return err
				}
				return arena.SortRecords(ctx, p.sorted, int64(p.ne), func(a, b []byte) int {
					if c := cmp.Compare(p.pos.Decode(a), p.pos.Decode(b)); c != 0 {
						return c
					}
					// Openings first, so touching intervals merge.
					return cmp.Compare(a[p.closing.Offset()], b[p.closing.Offset()])
				})
			})
			if err != nil {
				return false, err
			}
			if err := s.Spend(int64(p.ne) + 1); err != nil {
				return false, err
			}
			p.phase, p.index = beaconsSweeping, 0

		case beaconsSweeping:
			if p.index == p.ne {
				p.phase, p.index = beaconsDeduplicating, 0
				continue
			}
			if err := p.sweep(ctx); err != nil {
				return false, err
			}
			p.index++
			if err := s.Spend(2); err != nil {
				return false, err
			}

		case beaconsDeduplicating:
			if p.index == p.ns {
				p.phase = beaconsFinished
				continue
			}
			if err := p.dedup(ctx); err != nil {
				return false, err
			}
			p.index++
			if err := s.Spend(int64(p.index)); err != nil {
				return false, err
			}
		}
	}

	s.SetResult("covered", p.covered)
	s.SetResult("sensors", p.ns)
	return true, nil
}
