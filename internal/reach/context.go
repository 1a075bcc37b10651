package reach

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"github.com/san-kum/flowpipe/internal/convex"
	"github.com/san-kum/flowpipe/internal/dynamo"
	"github.com/san-kum/flowpipe/internal/templates"
	"gonum.org/v1/gonum/mat"
)

// LinearSystem is dx/dt = A·x (+ B·u, u ∈ U).
type LinearSystem struct {
	A *mat.Dense
	B *mat.Dense
	U convex.Set
}

func (s LinearSystem) Dim() int {
	n, _ := s.A.Dims()
	return n
}

func (s LinearSystem) Homogeneous() bool { return s.B == nil }

// computation is built once per flowpipe request and shared read-only by
// every direction worker.
type computation struct {
	sys   LinearSystem
	x0    convex.Set
	n     int
	tau   float64
	t0    float64
	steps int
	ring  convex.Ring

	phi   *mat.Dense
	phiT  mat.Matrix
	expX0 *convex.Image

	alphaBox *convex.Box
	tauV     *convex.Image // nil for homogeneous systems
	betaBox  *convex.Box   // nil for homogeneous systems
	bloat    bloating

	dirs    []dynamo.Vector
	oracle  convex.Oracle
	workers int
	log     *slog.Logger
}

// newComputation validates every input in a fixed order and only then
// evaluates the matrix exponential and the bloating radii.
func newComputation(ctx context.Context, A *mat.Dense, X0 any, B *mat.Dense, U any, opts Options) (*computation, error) {
	if A == nil {
		return nil, fmt.Errorf("state matrix A: %w", dynamo.ErrMissingInput)
	}
	n, cols := A.Dims()
	if n != cols {
		return nil, fmt.Errorf("state matrix A is %d×%d, want square: %w", n, cols, dynamo.ErrInvalidInput)
	}

	x0, err := convex.Promote(X0)
	if err != nil {
		return nil, fmt.Errorf("initial set X0: %w", err)
	}
	if x0.Dim() != n {
		return nil, fmt.Errorf("initial set X0 has dimension %d, want %d: %w", x0.Dim(), n, dynamo.ErrInvalidInput)
	}

	sys := LinearSystem{A: A}
	if B != nil {
		if U == nil {
			return nil, fmt.Errorf("input set U required with input matrix B: %w", dynamo.ErrMissingInput)
		}
		rows, m := B.Dims()
		if rows != n {
			return nil, fmt.Errorf("input matrix B has %d rows, want %d: %w", rows, n, dynamo.ErrInvalidInput)
		}
		u, err := convex.Promote(U)
		if err != nil {
			return nil, fmt.Errorf("input set U: %w", err)
		}
		if u.Dim() != m {
			return nil, fmt.Errorf("input set U has dimension %d, want %d: %w", u.Dim(), m, dynamo.ErrInvalidInput)
		}
		sys.B, sys.U = B, u
	}

	steps, err := opts.Steps()
	if err != nil {
		return nil, err
	}
	ring, err := convex.ParseRing(opts.BaseRing)
	if err != nil {
		return nil, err
	}
	dirs, err := templates.Generate(n, opts.Directions, rand.New(rand.NewSource(opts.Seed)))
	if err != nil {
		return nil, fmt.Errorf("template directions: %w", err)
	}
	o, err := opts.oracle()
	if err != nil {
		return nil, err
	}

	c := &computation{
		sys:     sys,
		x0:      x0,
		n:       n,
		tau:     opts.TimeStep,
		t0:      opts.InitialTime,
		steps:   steps,
		ring:    ring,
		dirs:    dirs,
		oracle:  o,
		workers: opts.workers(),
		log:     opts.logger(),
	}
	if err := c.prepare(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *computation) prepare(ctx context.Context) error {
	var aTau mat.Dense
	aTau.Scale(c.tau, c.sys.A)
	c.phi = mat.NewDense(c.n, c.n, nil)
	c.phi.Exp(&aTau)
	c.phiT = c.phi.T()

	var err error
	c.expX0, err = convex.NewImage(c.phi, c.x0)
	if err != nil {
		return err
	}

	rx, err := convex.Radius(ctx, c.oracle, c.x0)
	if err != nil {
		return fmt.Errorf("initial set X0: %w", err)
	}

	rv := 0.0
	if !c.sys.Homogeneous() {
		v, err := convex.NewImage(c.sys.B, c.sys.U)
		if err != nil {
			return err
		}
		if rv, err = convex.Radius(ctx, c.oracle, v); err != nil {
			return fmt.Errorf("input set U: %w", err)
		}
		var tauB mat.Dense
		tauB.Scale(c.tau, c.sys.B)
		if c.tauV, err = convex.NewImage(&tauB, c.sys.U); err != nil {
			return err
		}
	}

	ainf := mat.Norm(c.sys.A, math.Inf(1))
	c.bloat = newBloating(c.tau, ainf, rx, rv, c.ring)
	c.alphaBox = convex.NewBall(c.n, c.bloat.Alpha)
	if !c.sys.Homogeneous() {
		c.betaBox = convex.NewBall(c.n, c.bloat.Beta)
	}

	c.log.Info("flowpipe prepared",
		"dim", c.n,
		"tau", c.tau,
		"steps", c.steps,
		"directions", len(c.dirs),
		"ring", c.ring,
		"norm_inf", ainf,
		"alpha", c.bloat.Alpha,
		"beta", c.bloat.Beta,
		"homogeneous", c.sys.Homogeneous(),
	)
	return nil
}
