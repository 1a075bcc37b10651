// Package lotov projects an implicit polytope {x : A·x ≤ b} onto a plane
// with Lotov's adaptive refinement.
//
// The projection is bracketed by two polygons. Inner vertices are extreme
// points returned by the oracle, so the inner polygon lies inside the true
// projection. Outer vertices are intersections of adjacent supporting lines,
// so the outer polygon contains it. Each refinement splits the edge whose
// outer vertex is farthest from the inner chord, until every such gap is
// within tolerance.
package lotov

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/flowpipe/internal/convex"
	"github.com/san-kum/flowpipe/internal/dynamo"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

const DefaultMaxIterations = 10000

// Observer is notified after initialization (iteration 0) and after every
// refinement.
type Observer interface {
	OnRefine(iteration int, maxGap float64, vertices int)
}

type ObserverFunc func(iteration int, maxGap float64, vertices int)

func (f ObserverFunc) OnRefine(iteration int, maxGap float64, vertices int) {
	f(iteration, maxGap, vertices)
}

type Options struct {
	// Relative scales the tolerance by the larger side of the initial
	// bounding box.
	Relative      bool
	MaxIterations int
	Observer      Observer
}

func DefaultOptions() Options {
	return Options{
		Relative:      true,
		MaxIterations: DefaultMaxIterations,
	}
}

// Result holds the two bracketing polygons in counterclockwise order,
// starting at the northern extreme point. Gaps[i] is the distance from
// Outer[i] to the chord Inner[i] → Inner[i+1].
type Result struct {
	Outer      []Point2
	Inner      []Point2
	Gaps       []float64
	Iterations int
	Tolerance  float64
}

func (r *Result) MaxGap() float64 {
	m := 0.0
	for _, g := range r.Gaps {
		m = math.Max(m, g)
	}
	return m
}

// compass holds the initial query directions north, west, south, east.
var compass = []Point2{{0, 1}, {-1, 0}, {0, -1}, {1, 0}}

type projector struct {
	oracle convex.Oracle
	lex    convex.LexicographicOracle
	A      mat.Matrix
	b      []float64
	v1, v2 dynamo.Vector
}

// Project brackets the projection of {x : A·x ≤ b} onto span(v1, v2).
// Oracle failures and the iteration cap abort without a partial result.
func Project(ctx context.Context, o convex.Oracle, A mat.Matrix, b []float64, v1, v2 dynamo.Vector, tol float64, opts Options) (*Result, error) {
	if o == nil {
		return nil, fmt.Errorf("extreme-point oracle: %w", dynamo.ErrMissingInput)
	}
	if A == nil {
		return nil, fmt.Errorf("constraint matrix: %w", dynamo.ErrMissingInput)
	}
	k, n := A.Dims()
	if len(b) != k {
		return nil, fmt.Errorf("%d constraint rows but %d offsets: %w", k, len(b), dynamo.ErrInvalidInput)
	}
	if len(v1) != n || len(v2) != n {
		return nil, fmt.Errorf("basis vectors of length %d and %d for dimension %d: %w", len(v1), len(v2), n, dynamo.ErrInvalidInput)
	}
	if !(tol > 0) || math.IsInf(tol, 0) {
		return nil, fmt.Errorf("tolerance must be positive, got %v: %w", tol, dynamo.ErrInvalidInput)
	}
	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	p := &projector{oracle: o, A: A, b: b, v1: v1, v2: v2}
	p.lex, _ = o.(convex.LexicographicOracle)

	pts := make([]Point2, len(compass))
	for i, d := range compass {
		x, err := p.extreme(ctx, d)
		if err != nil {
			return nil, err
		}
		pts[i] = x
	}
	north, west, south, east := pts[0], pts[1], pts[2], pts[3]
	if opts.Relative {
		tol *= math.Max(east.X-west.X, north.Y-south.Y)
	}

	r := newRing(pts, compass)
	r.each(func(e *edge) {
		e.outer = IntersectLines(e.normal, e.p1, e.next.normal, e.p2())
		e.gap = PointLineDistance(e.p1, e.p2(), e.outer)
		r.push(e)
	})
	notify(opts.Observer, 0, r)

	iterations := 0
	for {
		w := r.widest()
		if w.gap <= tol {
			break
		}
		if iterations >= maxIter {
			return nil, fmt.Errorf("projection: %d refinements, max gap %g above %g: %w", iterations, w.gap, tol, dynamo.ErrIterationLimit)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p1, p2 := w.p1, w.p2()
		d := NormalVector(p2.Sub(p1))
		if d.IsZero() {
			// Coincident end points bound nothing further.
			w.gap = 0
			r.fix(w)
			continue
		}
		x, err := p.extreme(ctx, d)
		if err != nil {
			return nil, err
		}

		succ := w.next
		f := r.split(w, x, d)
		w.outer = IntersectLines(w.normal, p1, d, x)
		f.outer = IntersectLines(succ.normal, p2, d, x)
		w.gap = PointLineDistance(p1, x, w.outer)
		f.gap = PointLineDistance(p2, x, f.outer)
		r.fix(w)
		r.push(f)

		iterations++
		notify(opts.Observer, iterations, r)
	}

	res := &Result{
		Outer:      make([]Point2, 0, r.size),
		Inner:      make([]Point2, 0, r.size),
		Gaps:       make([]float64, 0, r.size),
		Iterations: iterations,
		Tolerance:  tol,
	}
	r.each(func(e *edge) {
		res.Outer = append(res.Outer, e.outer)
		res.Inner = append(res.Inner, e.p1)
		res.Gaps = append(res.Gaps, e.gap)
	})
	return res, nil
}

func notify(obs Observer, iteration int, r *ring) {
	if obs != nil {
		obs.OnRefine(iteration, r.widest().gap, r.size)
	}
}

// extreme lifts the planar direction d, solves for an extreme point and
// projects it back. Lexicographic oracles break ties by d rotated +90°.
func (p *projector) extreme(ctx context.Context, d Point2) (Point2, error) {
	dn := p.lift(d)
	var x dynamo.Vector
	var err error
	if p.lex != nil {
		x, err = p.lex.ExtremePointLex(ctx, p.A, p.b, dn, p.lift(d.Rotate90()))
	} else {
		x, err = p.oracle.ExtremePoint(ctx, p.A, p.b, dn)
	}
	if err != nil {
		return Point2{}, dynamo.WrapOracle("projection", dn, err)
	}
	q := Point2{p.v1.Dot(x), p.v2.Dot(x)}
	if math.IsNaN(q.X) || math.IsNaN(q.Y) || math.IsInf(q.X, 0) || math.IsInf(q.Y, 0) {
		return Point2{}, &dynamo.OracleError{Op: "projection", Direction: dn, Wrapped: fmt.Errorf("non-finite extreme point %v", x)}
	}
	return q, nil
}

// lift maps a planar direction to d.X·v1 + d.Y·v2.
func (p *projector) lift(d Point2) dynamo.Vector {
	return p.v1.Scale(d.X).Add(p.v2.Scale(d.Y))
}

// ProjectPolytope projects p onto coordinate axes i and j.
func ProjectPolytope(ctx context.Context, o convex.Oracle, p *convex.HPolytope, i, j int, tol float64, opts Options) (*Result, error) {
	if p == nil {
		return nil, fmt.Errorf("polytope: %w", dynamo.ErrMissingInput)
	}
	n := p.Dim()
	if i < 0 || j < 0 || i >= n || j >= n || i == j {
		return nil, fmt.Errorf("projection axes (%d, %d) in dimension %d: %w", i, j, n, dynamo.ErrInvalidInput)
	}
	return Project(ctx, o, p.A, p.B, dynamo.Basis(n, i, 1), dynamo.Basis(n, j, 1), tol, opts)
}

// Request names one projection of a ProjectAll batch.
type Request struct {
	Polytope *convex.HPolytope
	I, J     int
}

// ProjectAll runs independent projections concurrently, at most workers at a
// time (unbounded when workers ≤ 0). Results are in request order. A shared
// Observer must be safe for concurrent use.
func ProjectAll(ctx context.Context, o convex.Oracle, reqs []Request, tol float64, opts Options, workers int) ([]*Result, error) {
	out := make([]*Result, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for k, req := range reqs {
		g.Go(func() error {
			res, err := ProjectPolytope(gctx, o, req.Polytope, req.I, req.J, tol, opts)
			if err != nil {
				return fmt.Errorf("projection %d onto (%d, %d): %w", k, req.I, req.J, err)
			}
			out[k] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
