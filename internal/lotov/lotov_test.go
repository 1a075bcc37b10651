package lotov_test

import (
	"context"
	"errors"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/flowpipe/internal/convex"
	"github.com/san-kum/flowpipe/internal/dynamo"
	"github.com/san-kum/flowpipe/internal/lotov"
	"github.com/san-kum/flowpipe/internal/oracle"
)

// plainOracle hides the lexicographic capability of the simplex.
type plainOracle struct {
	convex.Oracle
}

type brokenOracle struct{}

func (brokenOracle) ExtremePoint(context.Context, mat.Matrix, []float64, dynamo.Vector) (dynamo.Vector, error) {
	return nil, errors.New("solver crashed")
}

// regularPolygon returns the H-representation of the regular k-gon with
// vertices on the unit circle at angles 2πi/k.
func regularPolygon(k int) (*mat.Dense, []float64) {
	A := mat.NewDense(k, 2, nil)
	b := make([]float64, k)
	half := math.Pi / float64(k)
	for i := 0; i < k; i++ {
		s, c := math.Sincos(2*math.Pi*float64(i)/float64(k) + half)
		A.Set(i, 0, c)
		A.Set(i, 1, s)
		b[i] = math.Cos(half)
	}
	return A, b
}

func box(n int) (*mat.Dense, []float64) {
	A := mat.NewDense(2*n, n, nil)
	b := make([]float64, 2*n)
	for i := 0; i < n; i++ {
		A.Set(i, i, 1)
		A.Set(n+i, i, -1)
		b[i], b[n+i] = 1, 1
	}
	return A, b
}

func diamond() (*mat.Dense, []float64) {
	return mat.NewDense(4, 2, []float64{1, 1, -1, 1, -1, -1, 1, -1}), []float64{1, 1, 1, 1}
}

// expectBracket checks that every inner vertex satisfies every outer edge's
// halfplane (counterclockwise, so inside is on the left).
func expectBracket(res *lotov.Result) {
	Expect(res.Outer).To(HaveLen(len(res.Inner)))
	Expect(res.Gaps).To(HaveLen(len(res.Inner)))
	Expect(len(res.Inner)).To(BeNumerically(">=", 4))

	k := len(res.Outer)
	for i := 0; i < k; i++ {
		a, b := res.Outer[i], res.Outer[(i+1)%k]
		edge := b.Sub(a)
		if edge.Norm() < 1e-12 {
			continue
		}
		for _, p := range res.Inner {
			Expect(edge.Cross(p.Sub(a)) / edge.Norm()).To(BeNumerically(">=", -1e-7),
				"inner %v outside outer edge %v → %v", p, a, b)
		}
	}
}

func gapTrace() (*[]float64, lotov.Observer) {
	var trace []float64
	return &trace, lotov.ObserverFunc(func(_ int, maxGap float64, _ int) {
		trace = append(trace, maxGap)
	})
}

func expectNonIncreasing(trace []float64) {
	for i := 1; i < len(trace); i++ {
		Expect(trace[i]).To(BeNumerically("<=", trace[i-1]+1e-12), "max gap rose at refinement %d: %v", i, trace)
	}
}

var _ = Describe("Project", func() {
	var (
		ctx  context.Context
		lp   *oracle.Simplex
		e1   = dynamo.Vector{1, 0}
		e2   = dynamo.Vector{0, 1}
		opts lotov.Options
	)

	BeforeEach(func() {
		ctx = context.Background()
		lp = oracle.NewSimplex()
		opts = lotov.DefaultOptions()
	})

	It("stops at the initial approximation for the unit square", func() {
		A, b := box(2)
		res, err := lotov.Project(ctx, lp, A, b, e1, e2, 0.01, opts)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Iterations).To(BeZero())
		Expect(res.Tolerance).To(BeNumerically("~", 0.02, 1e-12))
		Expect(res.MaxGap()).To(BeNumerically("~", 0, 1e-9))

		corners := []lotov.Point2{{X: -1, Y: 1}, {X: -1, Y: -1}, {X: 1, Y: -1}, {X: 1, Y: 1}}
		Expect(res.Inner).To(HaveLen(4))
		for i, c := range corners {
			Expect(res.Inner[i].Equal(c, 1e-9)).To(BeTrue(), "inner %d = %v, want %v", i, res.Inner[i], c)
			Expect(res.Outer[i].Equal(c, 1e-9)).To(BeTrue(), "outer %d = %v, want %v", i, res.Outer[i], c)
		}
	})

	It("projects a cube onto its first two axes without refinement", func() {
		A, b := box(3)
		res, err := lotov.Project(ctx, lp, A, b, dynamo.Vector{1, 0, 0}, dynamo.Vector{0, 1, 0}, 0.01, opts)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Iterations).To(BeZero())
		expectBracket(res)
	})

	It("converges on a diamond whose chords are faces", func() {
		A, b := diamond()
		trace, obs := gapTrace()
		opts.Observer = obs

		res, err := lotov.Project(ctx, lp, A, b, e1, e2, 0.01, opts)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Iterations).To(Equal(4))
		Expect(res.MaxGap()).To(BeNumerically("<=", res.Tolerance))
		Expect(*trace).To(HaveLen(5))
		Expect((*trace)[0]).To(BeNumerically("~", math.Sqrt2/2, 1e-9))
		expectNonIncreasing(*trace)
		expectBracket(res)
	})

	It("refines a regular polygon with a non-increasing gap", func() {
		A, b := regularPolygon(16)
		trace, obs := gapTrace()
		opts.Observer = obs

		res, err := lotov.Project(ctx, lp, A, b, e1, e2, 0.01, opts)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Iterations).To(BeNumerically(">", 0))
		Expect(res.MaxGap()).To(BeNumerically("<=", res.Tolerance))
		expectNonIncreasing(*trace)
		expectBracket(res)

		for _, p := range res.Inner {
			Expect(p.Norm()).To(BeNumerically("~", 1, 1e-7), "inner vertex %v off the boundary", p)
		}
	})

	It("converges through a plain oracle with an absolute tolerance", func() {
		A := mat.NewDense(3, 2, []float64{-1, 0, 0, -1, 1, 2})
		b := []float64{0, 0, 2}
		opts.Relative = false

		res, err := lotov.Project(ctx, plainOracle{lp}, A, b, e1, e2, 1e-3, opts)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Tolerance).To(Equal(1e-3))
		Expect(res.MaxGap()).To(BeNumerically("<=", 1e-3))
		expectBracket(res)

		for _, p := range res.Inner {
			Expect(p.X).To(BeNumerically(">=", -1e-9))
			Expect(p.Y).To(BeNumerically(">=", -1e-9))
			Expect(p.X + 2*p.Y).To(BeNumerically("<=", 2+1e-9))
		}
	})

	It("projects onto a rotated basis", func() {
		A, b := box(3)
		v1 := dynamo.Vector{1, 1, 0}.Scale(1 / math.Sqrt2)
		v2 := dynamo.Vector{0, 0, 1}

		res, err := lotov.Project(ctx, lp, A, b, v1, v2, 0.01, opts)
		Expect(err).NotTo(HaveOccurred())
		for _, p := range res.Inner {
			Expect(math.Abs(p.X)).To(BeNumerically("<=", math.Sqrt2+1e-9))
			Expect(math.Abs(p.Y)).To(BeNumerically("<=", 1+1e-9))
		}
		expectBracket(res)
	})

	It("returns ErrIterationLimit instead of a partial polygon", func() {
		A, b := regularPolygon(64)
		opts.MaxIterations = 2

		res, err := lotov.Project(ctx, lp, A, b, e1, e2, 1e-9, opts)
		Expect(res).To(BeNil())
		Expect(errors.Is(err, dynamo.ErrIterationLimit)).To(BeTrue())
	})

	It("propagates oracle failures", func() {
		A := mat.NewDense(2, 2, []float64{1, 0, -1, 0})
		_, err := lotov.Project(ctx, lp, A, []float64{-1, -1}, e1, e2, 0.01, opts)
		Expect(errors.Is(err, dynamo.ErrOracle)).To(BeTrue())

		A, b := box(2)
		_, err = lotov.Project(ctx, brokenOracle{}, A, b, e1, e2, 0.01, opts)
		var oe *dynamo.OracleError
		Expect(errors.As(err, &oe)).To(BeTrue())
		Expect(oe.Op).To(Equal("projection"))
	})

	It("honors cancellation", func() {
		A, b := box(2)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := lotov.Project(cctx, lp, A, b, e1, e2, 0.01, opts)
		Expect(errors.Is(err, context.Canceled)).To(BeTrue())
	})

	DescribeTable("rejects invalid requests",
		func(o convex.Oracle, v1 dynamo.Vector, tol float64, want error) {
			A, b := box(2)
			_, err := lotov.Project(ctx, o, A, b, v1, dynamo.Vector{0, 1}, tol, opts)
			Expect(errors.Is(err, want)).To(BeTrue(), "got %v", err)
		},
		Entry("nil oracle", nil, dynamo.Vector{1, 0}, 0.01, dynamo.ErrMissingInput),
		Entry("zero tolerance", oracle.NewSimplex(), dynamo.Vector{1, 0}, 0.0, dynamo.ErrInvalidInput),
		Entry("negative tolerance", oracle.NewSimplex(), dynamo.Vector{1, 0}, -1.0, dynamo.ErrInvalidInput),
		Entry("basis length", oracle.NewSimplex(), dynamo.Vector{1, 0, 0}, 0.01, dynamo.ErrInvalidInput),
	)
})

var _ = Describe("ProjectPolytope and ProjectAll", func() {
	cube := func() *convex.HPolytope {
		A, b := box(3)
		p, err := convex.FromDense(A, b, convex.RingFloat)
		Expect(err).NotTo(HaveOccurred())
		return p
	}

	It("projects onto coordinate axes", func() {
		res, err := lotov.ProjectPolytope(context.Background(), oracle.NewSimplex(), cube(), 0, 2, 0.01, lotov.DefaultOptions())
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Iterations).To(BeZero())
	})

	It("rejects degenerate axis pairs", func() {
		_, err := lotov.ProjectPolytope(context.Background(), oracle.NewSimplex(), cube(), 1, 1, 0.01, lotov.DefaultOptions())
		Expect(errors.Is(err, dynamo.ErrInvalidInput)).To(BeTrue())
		_, err = lotov.ProjectPolytope(context.Background(), oracle.NewSimplex(), cube(), 0, 3, 0.01, lotov.DefaultOptions())
		Expect(errors.Is(err, dynamo.ErrInvalidInput)).To(BeTrue())
	})

	It("runs independent requests concurrently in order", func() {
		p := cube()
		reqs := []lotov.Request{{Polytope: p, I: 0, J: 1}, {Polytope: p, I: 1, J: 2}, {Polytope: p, I: 0, J: 2}}
		counted := oracle.NewCounting(oracle.NewSimplex())

		results, err := lotov.ProjectAll(context.Background(), counted, reqs, 0.01, lotov.DefaultOptions(), 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(3))
		for _, r := range results {
			Expect(r.Inner).To(HaveLen(4))
		}
		Expect(counted.Calls()).To(Equal(int64(12)))
	})

	It("fails the batch on the first error", func() {
		reqs := []lotov.Request{{Polytope: cube(), I: 0, J: 1}, {Polytope: nil, I: 0, J: 1}}
		_, err := lotov.ProjectAll(context.Background(), oracle.NewSimplex(), reqs, 0.01, lotov.DefaultOptions(), 0)
		Expect(errors.Is(err, dynamo.ErrMissingInput)).To(BeTrue())
	})
})
