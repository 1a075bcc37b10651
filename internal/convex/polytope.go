package convex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/san-kum/flowpipe/internal/dynamo"
	"gonum.org/v1/gonum/mat"
)

// Ring selects the numeric domain of polytope coefficients.
type Ring string

const (
	RingFloat    Ring = "float"
	RingRational Ring = "rational"
)

func ParseRing(s string) (Ring, error) {
	switch s {
	case "", string(RingRational), "QQ":
		return RingRational, nil
	case string(RingFloat), "RDF":
		return RingFloat, nil
	default:
		return "", fmt.Errorf("base ring %q: %w", s, dynamo.ErrInvalidInput)
	}
}

// HPolytope is {x : A·x ≤ B}. Row i of A is the i-th constraint normal.
// Rational polytopes keep exact copies of every coefficient.
type HPolytope struct {
	A    *mat.Dense
	B    []float64
	Ring Ring

	ratA [][]*big.Rat
	ratB []*big.Rat
}

// NewHPolytope assembles the constraint system row by row. No feasibility
// check is performed; an empty polytope surfaces as ErrInfeasible on the
// first oracle query.
func NewHPolytope(normals []dynamo.Vector, offsets []float64, ring Ring) (*HPolytope, error) {
	if len(normals) != len(offsets) {
		return nil, fmt.Errorf("%d normals but %d offsets: %w", len(normals), len(offsets), dynamo.ErrInvalidInput)
	}
	if len(normals) == 0 {
		return nil, fmt.Errorf("polytope without constraints: %w", dynamo.ErrInvalidInput)
	}
	n := len(normals[0])
	if n == 0 {
		return nil, fmt.Errorf("zero-dimensional normal: %w", dynamo.ErrInvalidInput)
	}
	A := mat.NewDense(len(normals), n, nil)
	for i, row := range normals {
		if len(row) != n {
			return nil, fmt.Errorf("normal %d has dimension %d, want %d: %w", i, len(row), n, dynamo.ErrInvalidInput)
		}
		A.SetRow(i, row)
	}
	b := make([]float64, len(offsets))
	copy(b, offsets)
	return newHPolytope(A, b, ring), nil
}

// FromDense wraps an existing constraint matrix; A is copied.
func FromDense(A mat.Matrix, b []float64, ring Ring) (*HPolytope, error) {
	if A == nil {
		return nil, fmt.Errorf("constraint matrix: %w", dynamo.ErrMissingInput)
	}
	k, _ := A.Dims()
	if k != len(b) {
		return nil, fmt.Errorf("%d constraint rows but %d offsets: %w", k, len(b), dynamo.ErrInvalidInput)
	}
	bb := make([]float64, len(b))
	copy(bb, b)
	return newHPolytope(mat.DenseCopyOf(A), bb, ring), nil
}

func newHPolytope(A *mat.Dense, b []float64, ring Ring) *HPolytope {
	if ring == "" {
		ring = RingFloat
	}
	p := &HPolytope{A: A, B: b, Ring: ring}
	if ring == RingRational {
		k, n := A.Dims()
		p.ratA = make([][]*big.Rat, k)
		p.ratB = make([]*big.Rat, k)
		for i := 0; i < k; i++ {
			p.ratA[i] = make([]*big.Rat, n)
			for j := 0; j < n; j++ {
				p.ratA[i][j] = exactRat(A.At(i, j))
			}
			p.ratB[i] = exactRat(b[i])
		}
	}
	return p
}

func exactRat(x float64) *big.Rat {
	r := new(big.Rat)
	if r.SetFloat64(x) == nil {
		return new(big.Rat)
	}
	return r
}

func (p *HPolytope) Dim() int {
	_, n := p.A.Dims()
	return n
}

func (p *HPolytope) NumConstraints() int {
	k, _ := p.A.Dims()
	return k
}

// Normal returns a copy of constraint row i.
func (p *HPolytope) Normal(i int) dynamo.Vector {
	return mat.Row(nil, i, p.A)
}

func (p *HPolytope) Normals() []dynamo.Vector {
	out := make([]dynamo.Vector, p.NumConstraints())
	for i := range out {
		out[i] = p.Normal(i)
	}
	return out
}

func (p *HPolytope) Offsets() []float64 {
	out := make([]float64, len(p.B))
	copy(out, p.B)
	return out
}

// RationalOffsets returns exact offsets; nil unless Ring is RingRational.
func (p *HPolytope) RationalOffsets() []*big.Rat { return p.ratB }

// RationalNormals returns exact normals; nil unless Ring is RingRational.
func (p *HPolytope) RationalNormals() [][]*big.Rat { return p.ratA }

// Contains reports whether every constraint holds within tol.
func (p *HPolytope) Contains(x dynamo.Vector, tol float64) bool {
	return p.Violation(x) <= tol
}

// Violation returns max_i (A_i·x - B_i), zero or negative inside.
func (p *HPolytope) Violation(x dynamo.Vector) float64 {
	worst := 0.0
	first := true
	for i := range p.B {
		v := dynamo.Vector(mat.Row(nil, i, p.A)).Dot(x) - p.B[i]
		if first || v > worst {
			worst = v
			first = false
		}
	}
	return worst
}

func (p *HPolytope) Support(ctx context.Context, o Oracle, d dynamo.Vector) (float64, error) {
	if err := checkDim(p, d); err != nil {
		return 0, err
	}
	if o == nil {
		return 0, fmt.Errorf("support of H-polytope without oracle: %w", dynamo.ErrMissingInput)
	}
	x, err := o.ExtremePoint(ctx, p.A, p.B, d)
	if err != nil {
		return 0, dynamo.WrapOracle("support", d, err)
	}
	return d.Dot(x), nil
}
