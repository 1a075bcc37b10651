package audit

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/san-kum/flowpipe/internal/convex"
	"github.com/san-kum/flowpipe/internal/dynamo"
)

// Boxes up to maxBoxDim dimensions have their corners enumerated; larger
// ones are sampled with maxBoxVertices random corners.
const (
	maxBoxDim      = 10
	maxBoxVertices = 1 << maxBoxDim
)

// Vertices returns points of s that span it, or a subset of them when the
// full vertex set is too large to enumerate.
func Vertices(ctx context.Context, o convex.Oracle, s convex.Set, rng *rand.Rand) ([]dynamo.Vector, error) {
	switch s := s.(type) {
	case *convex.PointSet:
		out := make([]dynamo.Vector, len(s.Points))
		for i, p := range s.Points {
			out[i] = p.Clone()
		}
		return out, nil

	case *convex.Box:
		if s.Dim() <= maxBoxDim {
			return s.Vertices(), nil
		}
		out := make([]dynamo.Vector, 0, maxBoxVertices)
		for len(out) < maxBoxVertices {
			v := s.Center.Clone()
			for i, r := range s.Radius {
				if rng.Intn(2) == 0 {
					r = -r
				}
				v[i] += r
			}
			out = append(out, v)
		}
		return out, nil

	case *convex.HPolytope:
		return polytopeVertices(ctx, o, s, rng)

	default:
		return nil, fmt.Errorf("cannot sample a %T: %w", s, dynamo.ErrInvalidInput)
	}
}

// polytopeVertices collects the extreme points of p along ±e_i and as many
// random directions again.
func polytopeVertices(ctx context.Context, o convex.Oracle, p *convex.HPolytope, rng *rand.Rand) ([]dynamo.Vector, error) {
	if o == nil {
		return nil, fmt.Errorf("sampling an H-polytope without oracle: %w", dynamo.ErrMissingInput)
	}
	n := p.Dim()
	dirs := make([]dynamo.Vector, 0, 4*n)
	for i := 0; i < n; i++ {
		dirs = append(dirs, dynamo.Basis(n, i, 1), dynamo.Basis(n, i, -1))
	}
	for i := 0; i < 2*n; i++ {
		d := make(dynamo.Vector, n)
		for j := range d {
			d[j] = rng.NormFloat64()
		}
		dirs = append(dirs, d)
	}

	out := make([]dynamo.Vector, 0, len(dirs))
	for _, d := range dirs {
		x, err := o.ExtremePoint(ctx, p.A, p.B, d)
		if err != nil {
			return nil, dynamo.WrapOracle("audit", d, err)
		}
		if !contains(out, x) {
			out = append(out, x)
		}
	}
	return out, nil
}

func contains(pts []dynamo.Vector, x dynamo.Vector) bool {
	for _, p := range pts {
		if p.Sub(x).NormInf() < 1e-12 {
			return true
		}
	}
	return false
}

// Mix returns count points of the convex hull of vertices: every vertex
// first, then random convex combinations.
func Mix(vertices []dynamo.Vector, count int, rng *rand.Rand) []dynamo.Vector {
	if len(vertices) == 0 {
		return nil
	}
	out := make([]dynamo.Vector, 0, count)
	for _, v := range vertices {
		if len(out) == count {
			return out
		}
		out = append(out, v.Clone())
	}

	n := len(vertices[0])
	w := make([]float64, len(vertices))
	for len(out) < count {
		total := 0.0
		for i := range w {
			w[i] = rng.ExpFloat64()
			total += w[i]
		}
		x := make(dynamo.Vector, n)
		for i, v := range vertices {
			for j := range x {
				x[j] += w[i] / total * v[j]
			}
		}
		out = append(out, x)
	}
	return out
}
