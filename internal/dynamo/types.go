package dynamo

import (
	"math"
)

type Vector []float64

func (v Vector) Clone() Vector {
	c := make(Vector, len(v))
	copy(c, v)
	return c
}

func (v Vector) IsValid() bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func (v Vector) Dot(other Vector) float64 {
	sum := 0.0
	for i := range v {
		if i < len(other) {
			sum += v[i] * other[i]
		}
	}
	return sum
}

func (v Vector) Norm() float64 {
	return math.Sqrt(v.Dot(v))
}

// NormInf returns max_i |v_i|.
func (v Vector) NormInf() float64 {
	m := 0.0
	for _, x := range v {
		m = math.Max(m, math.Abs(x))
	}
	return m
}

func (v Vector) Add(other Vector) Vector {
	result := make(Vector, len(v))
	for i := range v {
		if i < len(other) {
			result[i] = v[i] + other[i]
		} else {
			result[i] = v[i]
		}
	}
	return result
}

func (v Vector) Scale(factor float64) Vector {
	result := make(Vector, len(v))
	for i := range v {
		result[i] = v[i] * factor
	}
	return result
}

func (v Vector) Sub(other Vector) Vector {
	result := make(Vector, len(v))
	for i := range v {
		if i < len(other) {
			result[i] = v[i] - other[i]
		} else {
			result[i] = v[i]
		}
	}
	return result
}

// Basis returns the i-th standard basis vector of R^n scaled by sign.
func Basis(n, i int, sign float64) Vector {
	e := make(Vector, n)
	e[i] = sign
	return e
}
