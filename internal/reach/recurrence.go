package reach

import (
	"context"
	"math"

	"github.com/san-kum/flowpipe/internal/convex"
	"github.com/san-kum/flowpipe/internal/dynamo"
)

// sequence yields ρ_0(d), ρ_1(d), ... for one template direction. Only the
// current pulled-back direction r_i and input offset s_i are held; the
// sequence is finite and cannot be restarted.
type sequence struct {
	c *computation
	r dynamo.Vector
	s float64
	i int
}

func (c *computation) sequence(d dynamo.Vector) *sequence {
	return &sequence{c: c, r: d.Clone()}
}

// Next returns ρ_i and advances to i+1. ok is false once N values have
// been produced.
func (q *sequence) Next(ctx context.Context) (rho float64, ok bool, err error) {
	if q.i >= q.c.steps {
		return 0, false, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}

	h, err := q.c.omega0(ctx, q.r)
	if err != nil {
		return 0, false, err
	}
	rho = q.s + h

	q.i++
	if q.i < q.c.steps {
		if !q.c.sys.Homogeneous() {
			psi, err := q.c.inputStep(ctx, q.r)
			if err != nil {
				return 0, false, err
			}
			q.s += psi
		}
		q.r = convex.Mul(q.c.phiT, q.r)
	}
	return rho, true, nil
}

// omega0 is the support of Ω0 = CH(X0, Φ·X0 ⊕ τV ⊕ αB), the enclosure of
// every trajectory over the first interval.
func (c *computation) omega0(ctx context.Context, d dynamo.Vector) (float64, error) {
	h0, err := c.x0.Support(ctx, c.oracle, d)
	if err != nil {
		return 0, err
	}
	h1, err := c.expX0.Support(ctx, c.oracle, d)
	if err != nil {
		return 0, err
	}
	ha, _ := c.alphaBox.Support(ctx, nil, d)
	h1 += ha
	if c.tauV != nil {
		hv, err := c.tauV.Support(ctx, c.oracle, d)
		if err != nil {
			return 0, err
		}
		h1 += hv
	}
	return math.Max(h0, h1), nil
}

// inputStep is supp(τV, r) + supp(βB, r), the input contribution added
// once per step.
func (c *computation) inputStep(ctx context.Context, r dynamo.Vector) (float64, error) {
	hv, err := c.tauV.Support(ctx, c.oracle, r)
	if err != nil {
		return 0, err
	}
	hb, _ := c.betaBox.Support(ctx, nil, r)
	return hv + hb, nil
}

// column drains the sequence for d into ρ_0..ρ_{N-1}.
func (c *computation) column(ctx context.Context, d dynamo.Vector) ([]float64, error) {
	seq := c.sequence(d)
	out := make([]float64, 0, c.steps)
	for {
		rho, ok, err := seq.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, rho)
	}
}
