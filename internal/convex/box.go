package convex

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/flowpipe/internal/dynamo"
)

// Box is the axis-aligned hyperrectangle {x : |x_i - Center_i| ≤ Radius_i}.
type Box struct {
	Center dynamo.Vector
	Radius dynamo.Vector
}

func NewBox(center, radius dynamo.Vector) (*Box, error) {
	if len(center) != len(radius) {
		return nil, fmt.Errorf("box center has dimension %d, radius %d: %w", len(center), len(radius), dynamo.ErrInvalidInput)
	}
	for i, r := range radius {
		if r < 0 || math.IsNaN(r) {
			return nil, fmt.Errorf("box radius[%d] = %v: %w", i, r, dynamo.ErrInvalidInput)
		}
	}
	return &Box{Center: center.Clone(), Radius: radius.Clone()}, nil
}

// NewBall returns the origin-centered sup-norm ball of radius r in R^n.
func NewBall(n int, r float64) *Box {
	radius := make(dynamo.Vector, n)
	for i := range radius {
		radius[i] = r
	}
	return &Box{Center: make(dynamo.Vector, n), Radius: radius}
}

func (b *Box) Dim() int { return len(b.Center) }

func (b *Box) Support(_ context.Context, _ Oracle, d dynamo.Vector) (float64, error) {
	if err := checkDim(b, d); err != nil {
		return 0, err
	}
	h := d.Dot(b.Center)
	for i, r := range b.Radius {
		h += math.Abs(d[i]) * r
	}
	return h, nil
}

// Vertices enumerates the 2^n corners of the box.
func (b *Box) Vertices() []dynamo.Vector {
	n := b.Dim()
	out := make([]dynamo.Vector, 0, 1<<n)
	for mask := 0; mask < 1<<n; mask++ {
		v := b.Center.Clone()
		for i := 0; i < n; i++ {
			if mask&(1<<i) != 0 {
				v[i] += b.Radius[i]
			} else {
				v[i] -= b.Radius[i]
			}
		}
		out = append(out, v)
	}
	return out
}
