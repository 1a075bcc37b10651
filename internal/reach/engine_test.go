package reach_test

import (
	"context"
	"errors"
	"math"
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/flowpipe/internal/convex"
	"github.com/san-kum/flowpipe/internal/dynamo"
	"github.com/san-kum/flowpipe/internal/oracle"
	"github.com/san-kum/flowpipe/internal/reach"
	"github.com/san-kum/flowpipe/internal/templates"
)

const containTol = 1e-7

// flow returns exp(A·t)·x.
func flow(A *mat.Dense, t float64, x dynamo.Vector) dynamo.Vector {
	n, _ := A.Dims()
	var at mat.Dense
	at.Scale(t, A)
	phi := mat.NewDense(n, n, nil)
	phi.Exp(&at)
	return convex.Mul(phi, x)
}

// expectTrajectoriesContained propagates every start point through the exact
// flow and checks each sampled state against the polytope of its interval.
func expectTrajectoriesContained(fp *reach.Flowpipe, A *mat.Dense, starts []dynamo.Vector) {
	for i, p := range fp.Polytopes {
		lo, hi := fp.Interval(i)
		for k := 0; k <= 6; k++ {
			t := lo + (hi-lo)*float64(k)/6
			for _, x0 := range starts {
				x := flow(A, t-fp.InitialTime, x0)
				Expect(p.Violation(x)).To(BeNumerically("<=", containTol),
					"step %d, t=%.4f, x0=%v, x=%v", i, t, x0, x)
			}
		}
	}
}

func floatOptions(tau float64, steps int, sel string) reach.Options {
	opts := reach.DefaultOptions()
	opts.TimeStep = tau
	opts.NumberOfTimeSteps = steps
	opts.Directions = templates.Config{Select: sel}
	opts.BaseRing = string(convex.RingFloat)
	return opts
}

type failingOracle struct{}

func (failingOracle) ExtremePoint(_ context.Context, _ mat.Matrix, _ []float64, d dynamo.Vector) (dynamo.Vector, error) {
	return nil, &dynamo.OracleError{Op: "extreme point", Direction: d, Wrapped: dynamo.ErrInfeasible}
}

// crashingOracle fails with an unclassified error.
type crashingOracle struct{}

func (crashingOracle) ExtremePoint(context.Context, mat.Matrix, []float64, dynamo.Vector) (dynamo.Vector, error) {
	return nil, errors.New("solver crashed")
}

var _ = Describe("ComputeFlowpipe", func() {
	var ctx context.Context
	rotation := mat.NewDense(2, 2, []float64{0, 1, -1, 0})

	BeforeEach(func() {
		ctx = context.Background()
	})

	Context("pure rotation from a single point", func() {
		It("covers the true trajectory on the first interval", func() {
			fp, err := reach.ComputeFlowpipe(ctx, rotation, dynamo.Vector{1, 0}, nil, nil, floatOptions(0.1, 10, templates.SelectBox))
			Expect(err).NotTo(HaveOccurred())
			Expect(fp.Len()).To(Equal(10))
			Expect(fp.Directions).To(HaveLen(4))

			Expect(fp.Polytopes[0].Contains(dynamo.Vector{math.Cos(0.1), -math.Sin(0.1)}, containTol)).To(BeTrue())
			Expect(fp.Alpha).To(BeNumerically("~", math.Exp(0.1)-1.1, 1e-12))
			Expect(fp.Beta).To(BeZero())
		})

		It("covers every interval", func() {
			fp, err := reach.ComputeFlowpipe(ctx, rotation, []float64{1, 0}, nil, nil, floatOptions(0.1, 10, templates.SelectOctagon))
			Expect(err).NotTo(HaveOccurred())
			expectTrajectoriesContained(fp, rotation, []dynamo.Vector{{1, 0}})
		})
	})

	Context("damped oscillator from a box", func() {
		A := mat.NewDense(2, 2, []float64{0, 1, -2, -0.3})

		It("is sound for sampled initial states", func() {
			box, err := convex.NewBox(dynamo.Vector{1, 0}, dynamo.Vector{0.1, 0.05})
			Expect(err).NotTo(HaveOccurred())

			fp, err := reach.ComputeFlowpipe(ctx, A, box, nil, nil, floatOptions(0.05, 40, templates.SelectOctagon))
			Expect(err).NotTo(HaveOccurred())

			starts := box.Vertices()
			rng := rand.New(rand.NewSource(3))
			for s := 0; s < 10; s++ {
				starts = append(starts, dynamo.Vector{
					1 + 0.1*(2*rng.Float64()-1),
					0.05 * (2*rng.Float64() - 1),
				})
			}
			expectTrajectoriesContained(fp, A, starts)
		})

		It("never starts below the initial support", func() {
			box, _ := convex.NewBox(dynamo.Vector{1, 0}, dynamo.Vector{0.1, 0.05})
			for _, sel := range []string{templates.SelectBox, templates.SelectOctagon, templates.SelectRandom} {
				opts := floatOptions(0.05, 3, sel)
				opts.Seed = 11
				fp, err := reach.ComputeFlowpipe(ctx, A, box, nil, nil, opts)
				Expect(err).NotTo(HaveOccurred())
				for j, d := range fp.Directions {
					h, _ := box.Support(ctx, nil, d)
					Expect(fp.Support(0, j)).To(BeNumerically(">=", h-1e-12), "selector %s, direction %v", sel, d)
				}
			}
		})
	})

	Context("H-polytope initial set through the LP oracle", func() {
		It("is sound with the rational ring", func() {
			A := mat.NewDense(2, 2, []float64{-0.5, 1, -1, -0.5})
			diamond, err := convex.NewHPolytope([]dynamo.Vector{
				{1, 1}, {1, -1}, {-1, 1}, {-1, -1},
			}, []float64{1.1, 1.1, -0.9, -0.9}, convex.RingRational)
			Expect(err).NotTo(HaveOccurred())

			counted := oracle.NewCounting(oracle.NewSimplex())
			opts := reach.DefaultOptions()
			opts.TimeStep = 0.05
			opts.NumberOfTimeSteps = 20
			opts.Directions = templates.Config{Select: templates.SelectOctagon}
			opts.Oracle = counted

			fp, err := reach.ComputeFlowpipe(ctx, A, diamond, nil, nil, opts)
			Expect(err).NotTo(HaveOccurred())
			Expect(counted.Calls()).To(BeNumerically(">", 0))
			Expect(fp.Ring).To(Equal(convex.RingRational))
			Expect(fp.Polytopes[0].RationalOffsets()).To(HaveLen(8))

			starts := []dynamo.Vector{{1.1, 0}, {0.9, 0}, {1, 0.1}, {1, -0.1}, {1, 0}, {1.05, 0.02}}
			expectTrajectoriesContained(fp, A, starts)
		})
	})

	Context("input-driven systems", func() {
		It("covers bang-bang trajectories of a double integrator", func() {
			A := mat.NewDense(2, 2, []float64{0, 1, 0, 0})
			B := mat.NewDense(2, 1, []float64{0, 1})
			U, _ := convex.NewBox(dynamo.Vector{0}, dynamo.Vector{1})

			fp, err := reach.ComputeFlowpipe(ctx, A, dynamo.Vector{0, 0}, B, U, floatOptions(0.05, 20, templates.SelectOctagon))
			Expect(err).NotTo(HaveOccurred())
			Expect(fp.Beta).To(BeNumerically(">", 0))

			rng := rand.New(rand.NewSource(5))
			const h = 0.0125
			for trial := 0; trial < 20; trial++ {
				x, v := 0.0, 0.0
				for k := 0; k < 80; k++ {
					u := 1.0
					if rng.Intn(2) == 0 {
						u = -1
					}
					x += v*h + u*h*h/2
					v += u * h
					t := float64(k+1) * h
					p, i, ok := fp.At(t)
					Expect(ok).To(BeTrue())
					Expect(p.Violation(dynamo.Vector{x, v})).To(BeNumerically("<=", containTol), "step %d t=%.4f", i, t)
				}
			}
		})

		It("reduces to exact input accumulation when A is zero", func() {
			A := mat.NewDense(2, 2, nil)
			B := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
			U := convex.NewBall(2, 1)

			fp, err := reach.ComputeFlowpipe(ctx, A, dynamo.Vector{0, 0}, B, U, floatOptions(0.1, 5, templates.SelectBox))
			Expect(err).NotTo(HaveOccurred())
			Expect(fp.Alpha).To(BeZero())
			Expect(fp.Beta).To(BeZero())
			for i := 0; i < fp.Len(); i++ {
				for j := range fp.Directions {
					Expect(fp.Support(i, j)).To(BeNumerically("~", 0.1*float64(i+1), 1e-12))
				}
			}
		})
	})

	Context("time discretization", func() {
		It("derives the step count from the horizon", func() {
			opts := floatOptions(0.1, 0, templates.SelectBox)
			opts.InitialTime = 2
			opts.TimeHorizon = 1
			fp, err := reach.ComputeFlowpipe(ctx, rotation, dynamo.Vector{1, 0}, nil, nil, opts)
			Expect(err).NotTo(HaveOccurred())
			Expect(fp.Len()).To(Equal(10))

			lo, hi := fp.Interval(9)
			Expect(lo).To(BeNumerically("~", 2.9, 1e-12))
			Expect(hi).To(BeNumerically("~", 3.0, 1e-12))

			_, i, ok := fp.At(2.95)
			Expect(ok).To(BeTrue())
			Expect(i).To(Equal(9))
			_, _, ok = fp.At(3.5)
			Expect(ok).To(BeFalse())
		})
	})

	Context("preconditions", func() {
		It("reports a missing X0 before any oracle call", func() {
			counted := oracle.NewCounting(oracle.NewSimplex())
			opts := reach.DefaultOptions()
			opts.Oracle = counted

			_, err := reach.ComputeFlowpipe(ctx, rotation, nil, nil, nil, opts)
			Expect(errors.Is(err, dynamo.ErrMissingInput)).To(BeTrue())
			Expect(counted.Calls()).To(BeZero())
		})

		It("rejects octagonal directions in three dimensions", func() {
			A := mat.NewDense(3, 3, nil)
			opts := reach.DefaultOptions()
			opts.Directions = templates.Config{Select: templates.SelectOctagon}

			_, err := reach.ComputeFlowpipe(ctx, A, dynamo.Vector{1, 0, 0}, nil, nil, opts)
			Expect(errors.Is(err, dynamo.ErrUnsupportedDimension)).To(BeTrue())
		})

		DescribeTable("invalid requests",
			func(A *mat.Dense, X0 any, B *mat.Dense, U any, mutate func(*reach.Options), want error) {
				opts := reach.DefaultOptions()
				if mutate != nil {
					mutate(&opts)
				}
				_, err := reach.ComputeFlowpipe(ctx, A, X0, B, U, opts)
				Expect(errors.Is(err, want)).To(BeTrue(), "got %v", err)
			},
			Entry("nil A", nil, dynamo.Vector{1, 0}, nil, nil, nil, dynamo.ErrMissingInput),
			Entry("non-square A", mat.NewDense(2, 3, nil), dynamo.Vector{1, 0}, nil, nil, nil, dynamo.ErrInvalidInput),
			Entry("unrecognized X0", rotation, "origin", nil, nil, nil, dynamo.ErrInvalidInput),
			Entry("X0 dimension", rotation, dynamo.Vector{1, 0, 0}, nil, nil, nil, dynamo.ErrInvalidInput),
			Entry("B without U", rotation, dynamo.Vector{1, 0}, mat.NewDense(2, 1, nil), nil, nil, dynamo.ErrMissingInput),
			Entry("B rows", rotation, dynamo.Vector{1, 0}, mat.NewDense(3, 1, nil), dynamo.Vector{0}, nil, dynamo.ErrInvalidInput),
			Entry("U dimension", rotation, dynamo.Vector{1, 0}, mat.NewDense(2, 1, nil), dynamo.Vector{0, 0}, nil, dynamo.ErrInvalidInput),
			Entry("zero step", rotation, dynamo.Vector{1, 0}, nil, nil, func(o *reach.Options) { o.TimeStep = 0 }, dynamo.ErrInvalidInput),
			Entry("negative steps", rotation, dynamo.Vector{1, 0}, nil, nil, func(o *reach.Options) { o.NumberOfTimeSteps = -2 }, dynamo.ErrInvalidInput),
			Entry("empty horizon", rotation, dynamo.Vector{1, 0}, nil, nil, func(o *reach.Options) { o.TimeHorizon = 0 }, dynamo.ErrInvalidInput),
			Entry("ring", rotation, dynamo.Vector{1, 0}, nil, nil, func(o *reach.Options) { o.BaseRing = "ZZ" }, dynamo.ErrInvalidInput),
			Entry("solver", rotation, dynamo.Vector{1, 0}, nil, nil, func(o *reach.Options) { o.Solver = "cplex" }, dynamo.ErrInvalidInput),
		)
	})

	Context("failures during the recurrence", func() {
		It("propagates oracle errors without a partial flowpipe", func() {
			tri, _ := convex.NewHPolytope([]dynamo.Vector{{1, 0}, {0, 1}, {-1, -1}}, []float64{1, 1, 0}, convex.RingFloat)
			opts := floatOptions(0.1, 5, templates.SelectBox)
			opts.Oracle = failingOracle{}

			fp, err := reach.ComputeFlowpipe(ctx, rotation, tri, nil, nil, opts)
			Expect(fp).To(BeNil())
			Expect(errors.Is(err, dynamo.ErrOracle)).To(BeTrue())
			Expect(errors.Is(err, dynamo.ErrInfeasible)).To(BeTrue())

			var oe *dynamo.OracleError
			Expect(errors.As(err, &oe)).To(BeTrue())
		})

		It("classifies plain solver failures as oracle errors", func() {
			tri, _ := convex.NewHPolytope([]dynamo.Vector{{1, 0}, {0, 1}, {-1, -1}}, []float64{1, 1, 0}, convex.RingFloat)
			opts := floatOptions(0.1, 5, templates.SelectBox)
			opts.Oracle = crashingOracle{}

			fp, err := reach.ComputeFlowpipe(ctx, rotation, tri, nil, nil, opts)
			Expect(fp).To(BeNil())
			Expect(errors.Is(err, dynamo.ErrOracle)).To(BeTrue(), "got %v", err)

			var oe *dynamo.OracleError
			Expect(errors.As(err, &oe)).To(BeTrue())
			Expect(oe.Op).To(Equal("support"))
			Expect(oe.Wrapped).To(MatchError("solver crashed"))
		})

		It("reports an empty initial polytope as infeasible", func() {
			empty, _ := convex.NewHPolytope([]dynamo.Vector{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}, []float64{-1, -1, 1, 1}, convex.RingFloat)
			_, err := reach.ComputeFlowpipe(ctx, rotation, empty, nil, nil, floatOptions(0.1, 5, templates.SelectBox))
			Expect(errors.Is(err, dynamo.ErrInfeasible)).To(BeTrue())
		})

		It("stops on a canceled context", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := reach.ComputeFlowpipe(cctx, rotation, dynamo.Vector{1, 0}, nil, nil, floatOptions(0.1, 5, templates.SelectBox))
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
		})
	})
})

var _ = Describe("BuildPolytope", func() {
	It("pairs directions with offsets row by row", func() {
		dirs := []dynamo.Vector{{1, 0}, {0, 1}}
		p, err := reach.BuildPolytope(dirs, []float64{2, 3}, convex.RingFloat)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Normal(1)).To(Equal(dynamo.Vector{0, 1}))
		Expect(p.Offsets()).To(Equal([]float64{2, 3}))
	})

	It("rejects mismatched lengths", func() {
		_, err := reach.BuildPolytope([]dynamo.Vector{{1, 0}}, []float64{1, 2}, convex.RingFloat)
		Expect(errors.Is(err, dynamo.ErrInvalidInput)).To(BeTrue())
	})

	It("does not check feasibility", func() {
		p, err := reach.BuildPolytope([]dynamo.Vector{{1}, {-1}}, []float64{-1, -1}, convex.RingRational)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.NumConstraints()).To(Equal(2))
	})
})
