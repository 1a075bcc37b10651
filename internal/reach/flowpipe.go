package reach

import (
	"fmt"
	"math"

	"github.com/san-kum/flowpipe/internal/convex"
	"github.com/san-kum/flowpipe/internal/dynamo"
)

// Flowpipe is the ordered sequence of polytopes covering the reachable set;
// polytope i covers the time interval [t0+iτ, t0+(i+1)τ].
type Flowpipe struct {
	Polytopes   []*convex.HPolytope
	InitialTime float64
	TimeStep    float64
	Directions  []dynamo.Vector
	Ring        convex.Ring

	// Alpha and Beta are the bloating radii used, zero when unknown.
	Alpha float64
	Beta  float64
}

// Assemble builds a flowpipe from a table of support values, one row per
// time step and one column per direction.
func Assemble(dirs []dynamo.Vector, table [][]float64, t0, tau float64, ring convex.Ring) (*Flowpipe, error) {
	if len(table) == 0 {
		return nil, fmt.Errorf("flowpipe without time steps: %w", dynamo.ErrInvalidInput)
	}

	polys := make([]*convex.HPolytope, len(table))
	errs := make([]error, len(table))
	dynamo.ParallelFor(len(table), 16, func(start, end int) {
		for i := start; i < end; i++ {
			polys[i], errs[i] = BuildPolytope(dirs, table[i], ring)
		}
	})
	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("time step %d: %w", i, err)
		}
	}

	return &Flowpipe{
		Polytopes:   polys,
		InitialTime: t0,
		TimeStep:    tau,
		Directions:  dirs,
		Ring:        ring,
	}, nil
}

func (f *Flowpipe) Len() int { return len(f.Polytopes) }

func (f *Flowpipe) Dim() int {
	if len(f.Directions) == 0 {
		return 0
	}
	return len(f.Directions[0])
}

// Interval returns the time span covered by polytope i.
func (f *Flowpipe) Interval(i int) (start, end float64) {
	start = f.InitialTime + float64(i)*f.TimeStep
	return start, start + f.TimeStep
}

// At returns the polytope whose interval contains t. Interval boundaries
// belong to the earlier polytope, except t0 itself.
func (f *Flowpipe) At(t float64) (*convex.HPolytope, int, bool) {
	if f.TimeStep <= 0 || len(f.Polytopes) == 0 {
		return nil, -1, false
	}
	q := (t - f.InitialTime) / f.TimeStep
	i := int(math.Ceil(q)) - 1
	if r := math.Round(q); math.Abs(q-r) < 1e-9 {
		i = int(r) - 1
	}
	if i < 0 {
		i = 0
	}
	if q < -1e-9 || i >= len(f.Polytopes) {
		return nil, -1, false
	}
	return f.Polytopes[i], i, true
}

// Support returns ρ_i(d_j), the stored offset of direction j at step i.
func (f *Flowpipe) Support(i, j int) float64 {
	return f.Polytopes[i].B[j]
}

// Table returns a copy of all offsets, one row per time step.
func (f *Flowpipe) Table() [][]float64 {
	out := make([][]float64, len(f.Polytopes))
	for i, p := range f.Polytopes {
		out[i] = p.Offsets()
	}
	return out
}
