// Package reach computes flowpipes of linear systems with the Le Guernic–Girard
// support-function recurrence.
//
// For dx/dt = A·x (+ B·u, u ∈ U), a step τ, N steps and template directions
// d_1..d_k, polytope i of the result is
//
//	{x : d_j·x ≤ ρ_i(d_j) for all j}
//
// and contains every state reachable from X0 during [t0+iτ, t0+(i+1)τ].
// The k direction recurrences run concurrently; every other value of the
// computation is built once and shared read-only.
package reach

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// ComputeFlowpipe over-approximates the reachable set of dx/dt = A·x + B·u.
// X0 and U accept anything convex.Promote does; B and U may both be nil for
// a homogeneous system. No partial flowpipe is returned on error.
//
// With inputs Ω0 also contains τV, so offsets are larger than the bare
// recurrence over CH(X0, ΦX0 ⊕ αB).
func ComputeFlowpipe(ctx context.Context, A *mat.Dense, X0 any, B *mat.Dense, U any, opts Options) (*Flowpipe, error) {
	start := time.Now()

	c, err := newComputation(ctx, A, X0, B, U, opts)
	if err != nil {
		return nil, err
	}

	columns, err := c.run(ctx)
	if err != nil {
		return nil, err
	}

	table := make([][]float64, c.steps)
	for i := range table {
		row := make([]float64, len(c.dirs))
		for j := range row {
			row[j] = columns[j][i]
		}
		table[i] = row
	}

	fp, err := Assemble(c.dirs, table, c.t0, c.tau, c.ring)
	if err != nil {
		return nil, err
	}
	fp.Alpha = c.bloat.Alpha
	fp.Beta = c.bloat.Beta

	c.log.Info("flowpipe computed", "polytopes", fp.Len(), "elapsed", time.Since(start))
	return fp, nil
}

// Compute is ComputeFlowpipe for a prepared LinearSystem.
func Compute(ctx context.Context, sys LinearSystem, X0 any, opts Options) (*Flowpipe, error) {
	var u any
	if sys.U != nil {
		u = sys.U
	}
	return ComputeFlowpipe(ctx, sys.A, X0, sys.B, u, opts)
}

// run evaluates one ρ column per direction on a bounded worker group. The
// first failure cancels the remaining directions.
func (c *computation) run(ctx context.Context) ([][]float64, error) {
	columns := make([][]float64, len(c.dirs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for j, d := range c.dirs {
		g.Go(func() error {
			col, err := c.column(gctx, d)
			if err != nil {
				return fmt.Errorf("direction %d %v: %w", j, d, err)
			}
			columns[j] = col
			c.log.Debug("direction done", "index", j, "direction", d, "rho_0", col[0], "rho_last", col[len(col)-1])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return columns, nil
}
