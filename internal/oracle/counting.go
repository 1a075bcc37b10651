package oracle

import (
	"context"
	"sync/atomic"

	"github.com/san-kum/flowpipe/internal/convex"
	"github.com/san-kum/flowpipe/internal/dynamo"
	"gonum.org/v1/gonum/mat"
)

// Counting forwards to an inner oracle and counts queries.
type Counting struct {
	Inner convex.Oracle
	calls atomic.Int64
}

func NewCounting(inner convex.Oracle) *Counting {
	return &Counting{Inner: inner}
}

func (c *Counting) ExtremePoint(ctx context.Context, A mat.Matrix, b []float64, d dynamo.Vector) (dynamo.Vector, error) {
	c.calls.Add(1)
	return c.Inner.ExtremePoint(ctx, A, b, d)
}

// ExtremePointLex forwards to the inner oracle when it supports tie-breaking.
func (c *Counting) ExtremePointLex(ctx context.Context, A mat.Matrix, b []float64, d, w dynamo.Vector) (dynamo.Vector, error) {
	c.calls.Add(1)
	if lex, ok := c.Inner.(convex.LexicographicOracle); ok {
		return lex.ExtremePointLex(ctx, A, b, d, w)
	}
	return c.Inner.ExtremePoint(ctx, A, b, d)
}

func (c *Counting) Calls() int64 { return c.calls.Load() }

func (c *Counting) Reset() { c.calls.Store(0) }
