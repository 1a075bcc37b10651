package audit

import (
	"github.com/san-kum/flowpipe/internal/dynamo"
	"gonum.org/v1/gonum/mat"
)

// Field is a time-invariant vector field ẋ = f(x, u).
type Field interface {
	Derive(x, u dynamo.Vector) dynamo.Vector
}

// LinearField is ẋ = A·x + B·u. B may be nil.
type LinearField struct {
	A *mat.Dense
	B *mat.Dense
}

func (f LinearField) Derive(x, u dynamo.Vector) dynamo.Vector {
	n, _ := f.A.Dims()
	out := mat.NewVecDense(n, nil)
	out.MulVec(f.A, mat.NewVecDense(len(x), x))
	if f.B != nil && len(u) > 0 {
		var bu mat.VecDense
		bu.MulVec(f.B, mat.NewVecDense(len(u), u))
		out.AddVec(out, &bu)
	}
	return dynamo.Vector(out.RawVector().Data)
}

type RK4 struct {
	k1, k2, k3, k4 dynamo.Vector
	scratch        dynamo.Vector
}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) ensureScratch(n int) {
	if len(r.k1) != n {
		r.k1 = make(dynamo.Vector, n)
		r.k2 = make(dynamo.Vector, n)
		r.k3 = make(dynamo.Vector, n)
		r.k4 = make(dynamo.Vector, n)
		r.scratch = make(dynamo.Vector, n)
	}
}

// Step advances x by dt holding u constant.
func (r *RK4) Step(f Field, x, u dynamo.Vector, dt float64) dynamo.Vector {
	n := len(x)
	r.ensureScratch(n)

	copy(r.k1, f.Derive(x, u))

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*0.5*r.k1[i]
	}
	copy(r.k2, f.Derive(r.scratch, u))

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*0.5*r.k2[i]
	}
	copy(r.k3, f.Derive(r.scratch, u))

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*r.k3[i]
	}
	copy(r.k4, f.Derive(r.scratch, u))

	result := make(dynamo.Vector, n)
	dt6 := dt / 6.0
	for i := 0; i < n; i++ {
		result[i] = x[i] + dt6*(r.k1[i]+2*r.k2[i]+2*r.k3[i]+r.k4[i])
	}
	return result
}
