// Package audit checks a flowpipe against simulated trajectories. Every
// sampled state must lie in the polytope covering its time; a violation
// means the over-approximation is unsound or the sampling left X0 or U.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/flowpipe/internal/convex"
	"github.com/san-kum/flowpipe/internal/dynamo"
	"github.com/san-kum/flowpipe/internal/reach"
)

const (
	DefaultTrajectories = 32
	DefaultSubsteps     = 20
	DefaultTolerance    = 1e-6
)

type Options struct {
	Trajectories int
	// Substeps is the number of RK4 steps per flowpipe time step.
	Substeps  int
	Tolerance float64
	Seed      int64
	Workers   int
	Oracle    convex.Oracle
	Logger    *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		Trajectories: DefaultTrajectories,
		Substeps:     DefaultSubsteps,
		Tolerance:    DefaultTolerance,
		Seed:         1,
	}
}

type Violation struct {
	Trajectory int
	Step       int
	Time       float64
	State      dynamo.Vector
	Excess     float64
}

type Report struct {
	Samples    int
	Checks     int
	Violations []Violation
	// WorstExcess is the largest constraint violation seen, negative when
	// every checked state is strictly inside its polytope.
	WorstExcess float64
}

func (r *Report) Sound() bool { return len(r.Violations) == 0 }

type trajectory struct {
	x0     dynamo.Vector
	inputs []dynamo.Vector
}

// Run simulates sys from sampled initial states under piecewise constant
// inputs, one input per flowpipe step, and checks every state visited.
func Run(ctx context.Context, sys reach.LinearSystem, x0 convex.Set, fp *reach.Flowpipe, opts Options) (*Report, error) {
	if sys.A == nil || x0 == nil || fp == nil || fp.Len() == 0 {
		return nil, fmt.Errorf("audit needs a system, an initial set and a flowpipe: %w", dynamo.ErrMissingInput)
	}
	if x0.Dim() != fp.Dim() || sys.Dim() != fp.Dim() {
		return nil, fmt.Errorf("audit dimensions: system %d, x0 %d, flowpipe %d: %w", sys.Dim(), x0.Dim(), fp.Dim(), dynamo.ErrInvalidInput)
	}
	if opts.Trajectories <= 0 {
		opts.Trajectories = DefaultTrajectories
	}
	if opts.Substeps <= 0 {
		opts.Substeps = DefaultSubsteps
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultTolerance
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	trajs, err := sampleTrajectories(ctx, sys, x0, fp.Len(), opts)
	if err != nil {
		return nil, err
	}

	field := LinearField{A: sys.A, B: sys.B}
	if sys.Homogeneous() {
		field.B = nil
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	report := &Report{Samples: len(trajs), WorstExcess: math.Inf(-1)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for k, tr := range trajs {
		g.Go(func() error {
			r, err := check(gctx, field, fp, k, tr, opts)
			if err != nil {
				return err
			}
			mu.Lock()
			report.Checks += r.Checks
			report.Violations = append(report.Violations, r.Violations...)
			report.WorstExcess = math.Max(report.WorstExcess, r.WorstExcess)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Info("audit finished", "trajectories", report.Samples, "checks", report.Checks,
		"violations", len(report.Violations), "worst_excess", report.WorstExcess)
	return report, nil
}

func sampleTrajectories(ctx context.Context, sys reach.LinearSystem, x0 convex.Set, steps int, opts Options) ([]trajectory, error) {
	rng := rand.New(rand.NewSource(opts.Seed))

	verts, err := Vertices(ctx, opts.Oracle, x0, rng)
	if err != nil {
		return nil, fmt.Errorf("sampling x0: %w", err)
	}
	starts := Mix(verts, opts.Trajectories, rng)

	var inputVerts []dynamo.Vector
	if !sys.Homogeneous() {
		if sys.U == nil {
			return nil, fmt.Errorf("input set: %w", dynamo.ErrMissingInput)
		}
		if inputVerts, err = Vertices(ctx, opts.Oracle, sys.U, rng); err != nil {
			return nil, fmt.Errorf("sampling u: %w", err)
		}
	}

	trajs := make([]trajectory, len(starts))
	for k, x := range starts {
		trajs[k].x0 = x
		if inputVerts == nil {
			continue
		}
		// Alternate between bang-bang inputs and interior ones.
		trajs[k].inputs = make([]dynamo.Vector, steps)
		for i := range trajs[k].inputs {
			if k%2 == 0 {
				trajs[k].inputs[i] = inputVerts[rng.Intn(len(inputVerts))].Clone()
			} else {
				trajs[k].inputs[i] = Mix(inputVerts, len(inputVerts)+1, rng)[len(inputVerts)]
			}
		}
	}
	return trajs, nil
}

func check(ctx context.Context, f Field, fp *reach.Flowpipe, k int, tr trajectory, opts Options) (*Report, error) {
	r := &Report{WorstExcess: math.Inf(-1)}
	rk := NewRK4()
	h := fp.TimeStep / float64(opts.Substeps)

	observe := func(step int, t float64, x dynamo.Vector) error {
		if !x.IsValid() {
			return fmt.Errorf("trajectory %d diverged at t = %v: %w", k, t, dynamo.ErrInvalidInput)
		}
		excess := fp.Polytopes[step].Violation(x)
		r.Checks++
		r.WorstExcess = math.Max(r.WorstExcess, excess)
		if excess > opts.Tolerance {
			r.Violations = append(r.Violations, Violation{Trajectory: k, Step: step, Time: t, State: x.Clone(), Excess: excess})
		}
		return nil
	}

	x := tr.x0.Clone()
	if err := observe(0, fp.InitialTime, x); err != nil {
		return nil, err
	}
	for i := 0; i < fp.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var u dynamo.Vector
		if tr.inputs != nil {
			u = tr.inputs[i]
		}
		start, _ := fp.Interval(i)
		for s := 1; s <= opts.Substeps; s++ {
			x = rk.Step(f, x, u, h)
			if err := observe(i, start+float64(s)*h, x); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}
