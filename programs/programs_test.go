package programs

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/hupe1980/steparena"
	"github.com/hupe1980/steparena/blobstore"
	"github.com/hupe1980/steparena/budget"
	"github.com/hupe1980/steparena/checkpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const caloriesInput = `1000
2000
3000

4000

5000
6000

7000
8000
9000

10000
`

const overlapInput = `2-4,6-8
2-3,4-5
5-7,7-9
2-8,3-7
6-6,4-6
2-6,4-8
`

const beaconsInput = `Sensor at x=2, y=18: closest beacon is at x=-2, y=15
Sensor at x=9, y=16: closest beacon is at x=10, y=16
Sensor at x=13, y=2: closest beacon is at x=15, y=3
Sensor at x=12, y=14: closest beacon is at x=10, y=16
Sensor at x=10, y=20: closest beacon is at x=10, y=16
Sensor at x=14, y=17: closest beacon is at x=10, y=16
Sensor at x=8, y=7: closest beacon is at x=2, y=10
Sensor at x=2, y=0: closest beacon is at x=2, y=10
Sensor at x=0, y=11: closest beacon is at x=2, y=10
Sensor at x=20, y=14: closest beacon is at x=25, y=17
Sensor at x=17, y=20: closest beacon is at x=21, y=22
Sensor at x=16, y=7: closest beacon is at x=15, y=3
Sensor at x=14, y=3: closest beacon is at x=15, y=3
Sensor at x=20, y=1: closest beacon is at x=15, y=3
`

// run drives a computation to completion, rebuilding it before every step.
func run(t *testing.T, newProg func() steparena.Program, input string, opts ...steparena.Option) (map[string]checkpoint.Value, int) {
	t.Helper()
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	opts = append([]steparena.Option{steparena.WithInstanceID("run")}, opts...)

	c, err := steparena.New(newProg(), store, opts...)
	require.NoError(t, err)
	require.NoError(t, c.IngestInput(ctx, []byte(input)))

	for steps := 1; steps < 10_000; steps++ {
		c, err := steparena.New(newProg(), store, opts...)
		require.NoError(t, err)
		st, err := c.Step(ctx)
		require.NoError(t, err)
		if st.Done {
			res, err := c.Results(ctx)
			require.NoError(t, err)
			return res, steps
		}
	}
	t.Fatal("computation did not finish")
	return nil, 0
}

func uints(m map[string]uint64) map[string]checkpoint.Value {
	out := make(map[string]checkpoint.Value, len(m))
	for k, v := range m {
		out[k] = checkpoint.Uint(v)
	}
	return out
}

func TestPrograms(t *testing.T) {
	tests := []struct {
		name    string
		newProg func() steparena.Program
		input   string
		want    map[string]uint64
	}{
		{
			name:    "calories",
			newProg: func() steparena.Program { return NewCalories() },
			input:   caloriesInput,
			want:    map[string]uint64{"top": 24000, "top3": 45000, "groups": 5},
		},
		{
			name:    "calories without trailing newline",
			newProg: func() steparena.Program { return NewCalories() },
			input:   "5\n\n7\n1",
			want:    map[string]uint64{"top": 8, "top3": 13, "groups": 2},
		},
		{
			name:    "calories empty",
			newProg: func() steparena.Program { return NewCalories() },
			input:   "",
			want:    map[string]uint64{"top": 0, "top3": 0, "groups": 0},
		},
		{
			name:    "overlap",
			newProg: func() steparena.Program { return NewOverlap() },
			input:   overlapInput,
			want:    map[string]uint64{"contained": 2, "overlapping": 4, "lines": 6, "widest": 7},
		},
		{
			name:    "beacons",
			newProg: func() steparena.Program { return NewBeacons(10) },
			input:   beaconsInput,
			want:    map[string]uint64{"covered": 26, "sensors": 14},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, steps := run(t, tt.newProg, tt.input)
			assert.Equal(t, uints(tt.want), got)
			assert.Equal(t, 1, steps)
		})
	}
}

func TestPrograms_Resumable(t *testing.T) {
	var calories strings.Builder
	for g := range 200 {
		for i := range g%4 + 1 {
			fmt.Fprintf(&calories, "%d\n", (g*37+i*11)%1000+1)
		}
		calories.WriteString("\n")
	}

	tests := []struct {
		name    string
		newProg func() steparena.Program
		input   string
	}{
		{"calories", func() steparena.Program { return NewCalories() }, calories.String()},
		{"overlap", func() steparena.Program { return NewOverlap() }, strings.Repeat(overlapInput, 60)},
		{"beacons", func() steparena.Program { return NewBeacons(10) }, strings.Repeat(beaconsInput, 4)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want, _ := run(t, tt.newProg, tt.input)
			for _, limit := range []int64{700, 900, 1300} {
				cfg := budget.Config{Limit: limit, Reserve: 400, Costs: budget.DefaultCostModel()}
				got, steps := run(t, tt.newProg, tt.input, steparena.WithBudget(cfg))
				assert.Equal(t, want, got, "limit %d", limit)
				assert.Greater(t, steps, 1, "limit %d", limit)
			}
		})
	}
}

func TestCalories_ManyGroups(t *testing.T) {
	var input strings.Builder
	var top [3]uint64
	for g := range 3000 {
		v := uint64((g*7919)%100_000 + 1)
		fmt.Fprintf(&input, "%d\n\n", v)
		switch {
		case v > top[0]:
			top = [3]uint64{v, top[0], top[1]}
		case v > top[1]:
			top = [3]uint64{top[0], v, top[1]}
		case v > top[2]:
			top[2] = v
		}
	}
	want := uints(map[string]uint64{"top": top[0], "top3": top[0] + top[1] + top[2], "groups": 3000})

	for _, limit := range []int64{2000, 4750, 7750, 12000} {
		t.Run(fmt.Sprintf("limit %d", limit), func(t *testing.T) {
			cfg := budget.Config{Limit: limit, Reserve: 400, Costs: budget.DefaultCostModel()}
			got, steps := run(t, func() steparena.Program { return NewCalories() }, input.String(), steparena.WithBudget(cfg))
			assert.Equal(t, want, got)
			assert.Greater(t, steps, 1)
		})
	}
}

func TestPrograms_ParseErrors(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		prog  steparena.Program
		input string
	}{
		{"calories", NewCalories(), "12\nabc\n"},
		{"overlap", NewOverlap(), "1-2,3\n"},
		{"overlap reversed", NewOverlap(), "5-2,3-4\n"},
		{"beacons", NewBeacons(10), "Sensor at y=1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := steparena.New(tt.prog, blobstore.NewMemoryStore())
			require.NoError(t, err)
			require.NoError(t, c.IngestInput(ctx, []byte(tt.input)))
			_, err = c.Step(ctx)
			var pe *steparena.ParseError
			require.ErrorAs(t, err, &pe)
		})
	}
}

func TestLookup(t *testing.T) {
	assert.Equal(t, []string{"beacons", "calories", "overlap"}, Names())
	for _, name := range Names() {
		p, ok := Lookup(name)
		require.True(t, ok)
		assert.Equal(t, name, p.Name())
	}
	_, ok := Lookup("missing")
	assert.False(t, ok)
}
