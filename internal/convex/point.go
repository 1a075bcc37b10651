package convex

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/flowpipe/internal/dynamo"
)

// PointSet is the convex hull of finitely many points. A single point is the
// degenerate polytope used for point initial conditions.
type PointSet struct {
	Points []dynamo.Vector
}

func NewPoint(p dynamo.Vector) *PointSet {
	return &PointSet{Points: []dynamo.Vector{p.Clone()}}
}

func NewPointSet(points ...dynamo.Vector) (*PointSet, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("empty point set: %w", dynamo.ErrInvalidInput)
	}
	n := len(points[0])
	ps := &PointSet{Points: make([]dynamo.Vector, len(points))}
	for i, p := range points {
		if len(p) != n {
			return nil, fmt.Errorf("point %d has dimension %d, want %d: %w", i, len(p), n, dynamo.ErrInvalidInput)
		}
		ps.Points[i] = p.Clone()
	}
	return ps, nil
}

func (p *PointSet) Dim() int {
	if len(p.Points) == 0 {
		return 0
	}
	return len(p.Points[0])
}

func (p *PointSet) Support(_ context.Context, _ Oracle, d dynamo.Vector) (float64, error) {
	if err := checkDim(p, d); err != nil {
		return 0, err
	}
	best := math.Inf(-1)
	for _, x := range p.Points {
		best = math.Max(best, d.Dot(x))
	}
	return best, nil
}
