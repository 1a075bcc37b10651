package reach

import (
	"math"
	"math/big"

	"github.com/ALTree/bigfloat"
	"github.com/san-kum/flowpipe/internal/convex"
)

// bigPrec is the mantissa size used for rational-ring coefficients.
const bigPrec = 256

// bloating holds the two LGG discretization coefficients for one step:
//
//	g(x) = eˣ − 1 − x,  x = τ‖A‖∞
//	α = g(x)·R(X0) + (g(x)/‖A‖∞)·R(V)
//	β = (g(x)/‖A‖∞)·R(V)
//
// g(x)/‖A‖∞ is evaluated as τ·g(x)/x, whose limit at x = 0 is zero, so a
// zero state matrix contributes no bloating and needs no division.
type bloating struct {
	G       float64 // g(x)
	GOverA  float64 // g(x)/‖A‖∞
	Alpha   float64
	Beta    float64
	RadiusX float64
	RadiusV float64
}

func newBloating(tau, ainf, rx, rv float64, ring convex.Ring) bloating {
	x := tau * ainf
	var g, gOverX float64
	if ring == convex.RingRational {
		g, gOverX = remainderBig(x)
	} else {
		g, gOverX = remainder(x)
	}
	b := bloating{
		G:       g,
		GOverA:  tau * gOverX,
		RadiusX: rx,
		RadiusV: rv,
	}
	b.Alpha = b.G*rx + b.GOverA*rv
	b.Beta = b.GOverA * rv
	return b
}

// remainder returns g(x) and g(x)/x in double precision.
func remainder(x float64) (g, gOverX float64) {
	if x == 0 {
		return 0, 0
	}
	if x < 1e-3 {
		// Taylor tail; expm1(x) - x cancels badly here.
		gOverX = x * (1.0/2 + x*(1.0/6+x*(1.0/24+x*(1.0/120+x/720))))
		return gOverX * x, gOverX
	}
	g = math.Expm1(x) - x
	return g, g / x
}

// remainderBig evaluates g(x) at bigPrec bits and rounds both results up
// to the next float64, so the bloating never undershoots.
func remainderBig(x float64) (g, gOverX float64) {
	if x == 0 {
		return 0, 0
	}
	bx := new(big.Float).SetPrec(bigPrec).SetFloat64(x)
	one := new(big.Float).SetPrec(bigPrec).SetInt64(1)

	e := bigfloat.Exp(bx)
	bg := new(big.Float).SetPrec(bigPrec).Sub(e, one)
	bg.Sub(bg, bx)
	q := new(big.Float).SetPrec(bigPrec).Quo(bg, bx)

	return roundUp(bg), roundUp(q)
}

func roundUp(f *big.Float) float64 {
	v, acc := f.Float64()
	if acc == big.Below {
		v = math.Nextafter(v, math.Inf(1))
	}
	return v
}
