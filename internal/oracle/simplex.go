// Package oracle provides extreme-point oracles backed by linear programming.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/flowpipe/internal/dynamo"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

const DefaultTolerance = 1e-10

// Simplex solves max d·x s.t. A·x ≤ b, x free, with gonum's simplex method.
// It is stateless and safe for concurrent use.
type Simplex struct {
	Tol float64
}

func NewSimplex() *Simplex {
	return &Simplex{Tol: DefaultTolerance}
}

func (s *Simplex) ExtremePoint(ctx context.Context, A mat.Matrix, b []float64, d dynamo.Vector) (dynamo.Vector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkShape(A, b, d); err != nil {
		return nil, err
	}
	x, err := s.maximize(A, b, d)
	if err != nil {
		return nil, &dynamo.OracleError{Op: "extreme point", Direction: d.Clone(), Wrapped: err}
	}
	return x, nil
}

// ExtremePointLex maximizes d·x and then w·x over the face of maximizers.
// If the second program fails numerically the first maximizer is returned.
func (s *Simplex) ExtremePointLex(ctx context.Context, A mat.Matrix, b []float64, d, w dynamo.Vector) (dynamo.Vector, error) {
	x, err := s.ExtremePoint(ctx, A, b, d)
	if err != nil {
		return nil, err
	}
	if len(w) != len(d) {
		return x, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	k, n := A.Dims()
	face := mat.NewDense(k+1, n, nil)
	face.Slice(0, k, 0, n).(*mat.Dense).Copy(A)
	for j := 0; j < n; j++ {
		face.Set(k, j, -d[j])
	}
	h := make([]float64, k+1)
	copy(h, b)
	h[k] = -d.Dot(x)

	x2, err := s.maximize(face, h, w)
	if err != nil {
		return x, nil
	}
	return x2, nil
}

func (s *Simplex) maximize(A mat.Matrix, b []float64, c dynamo.Vector) (dynamo.Vector, error) {
	k, n := A.Dims()

	// Variables that appear in no constraint make the standard form
	// singular; they are fixed at zero, or unbounded if c moves them.
	active := make([]int, 0, n)
	for j := 0; j < n; j++ {
		used := false
		for i := 0; i < k; i++ {
			if A.At(i, j) != 0 {
				used = true
				break
			}
		}
		if used {
			active = append(active, j)
		} else if c[j] != 0 {
			return nil, dynamo.ErrUnbounded
		}
	}

	x := make(dynamo.Vector, n)
	if len(active) == 0 {
		for _, bi := range b {
			if bi < 0 {
				return nil, dynamo.ErrInfeasible
			}
		}
		return x, nil
	}

	m := len(active)
	g := mat.NewDense(k, m, nil)
	cost := make([]float64, m)
	for jj, j := range active {
		cost[jj] = -c[j]
		for i := 0; i < k; i++ {
			g.Set(i, jj, A.At(i, j))
		}
	}

	cNew, aNew, bNew := lp.Convert(cost, g, b, nil, nil)
	_, optX, err := lp.Simplex(cNew, aNew, bNew, s.tol(), nil)
	if err != nil {
		return nil, translate(err)
	}

	for jj, j := range active {
		x[j] = optX[jj] - optX[m+jj]
	}
	if !x.IsValid() {
		return nil, fmt.Errorf("simplex returned %v", x)
	}
	return x, nil
}

func (s *Simplex) tol() float64 {
	if s.Tol <= 0 || math.IsNaN(s.Tol) {
		return DefaultTolerance
	}
	return s.Tol
}

func translate(err error) error {
	switch {
	case errors.Is(err, lp.ErrInfeasible):
		return dynamo.ErrInfeasible
	case errors.Is(err, lp.ErrUnbounded):
		return dynamo.ErrUnbounded
	default:
		return fmt.Errorf("simplex: %w", err)
	}
}

func checkShape(A mat.Matrix, b []float64, d dynamo.Vector) error {
	if A == nil {
		return fmt.Errorf("constraint matrix: %w", dynamo.ErrMissingInput)
	}
	k, n := A.Dims()
	if len(b) != k {
		return fmt.Errorf("%d constraint rows but %d offsets: %w", k, len(b), dynamo.ErrInvalidInput)
	}
	if len(d) != n {
		return fmt.Errorf("direction of length %d for %d variables: %w", len(d), n, dynamo.ErrInvalidInput)
	}
	if !d.IsValid() {
		return fmt.Errorf("direction %v: %w", d, dynamo.ErrInvalidInput)
	}
	return nil
}
