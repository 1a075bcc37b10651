// Package convex implements the convex-set variants consumed by the
// reachability and projection engines.
//
// Every set answers support-function queries: Support(d) = max{d·x : x ∈ S}.
// Point sets and boxes answer in closed form; H-polytopes delegate to an
// injected extreme-point [Oracle]; [Image] expresses M·S lazily through
// supp(M·S, d) = supp(S, Mᵀd).
package convex

import (
	"context"
	"fmt"

	"github.com/san-kum/flowpipe/internal/dynamo"
	"gonum.org/v1/gonum/mat"
)

// Oracle returns a maximizer of d·x subject to A·x ≤ b.
type Oracle interface {
	ExtremePoint(ctx context.Context, A mat.Matrix, b []float64, d dynamo.Vector) (dynamo.Vector, error)
}

// LexicographicOracle additionally breaks ties among maximizers of d·x by
// maximizing w·x over the optimal face.
type LexicographicOracle interface {
	Oracle
	ExtremePointLex(ctx context.Context, A mat.Matrix, b []float64, d, w dynamo.Vector) (dynamo.Vector, error)
}

type Set interface {
	Dim() int
	Support(ctx context.Context, o Oracle, d dynamo.Vector) (float64, error)
}

// Radius returns the sup-norm radius of s about the origin,
// max_i max(supp(s, e_i), supp(s, -e_i)).
func Radius(ctx context.Context, o Oracle, s Set) (float64, error) {
	n := s.Dim()
	r := 0.0
	for i := 0; i < n; i++ {
		for _, sign := range []float64{1, -1} {
			h, err := s.Support(ctx, o, dynamo.Basis(n, i, sign))
			if err != nil {
				return 0, fmt.Errorf("radius: %w", err)
			}
			if h > r {
				r = h
			}
		}
	}
	return r, nil
}

func checkDim(s Set, d dynamo.Vector) error {
	if len(d) != s.Dim() {
		return fmt.Errorf("direction of length %d for set of dimension %d: %w", len(d), s.Dim(), dynamo.ErrInvalidInput)
	}
	return nil
}
