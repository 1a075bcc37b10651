package convex

import (
	"context"
	"fmt"

	"github.com/san-kum/flowpipe/internal/dynamo"
	"gonum.org/v1/gonum/mat"
)

// Image is the set M·S, never materialized.
type Image struct {
	M mat.Matrix
	S Set
}

func NewImage(m mat.Matrix, s Set) (*Image, error) {
	if m == nil || s == nil {
		return nil, fmt.Errorf("linear image: %w", dynamo.ErrMissingInput)
	}
	_, c := m.Dims()
	if c != s.Dim() {
		return nil, fmt.Errorf("matrix with %d columns applied to set of dimension %d: %w", c, s.Dim(), dynamo.ErrInvalidInput)
	}
	return &Image{M: m, S: s}, nil
}

func (im *Image) Dim() int {
	r, _ := im.M.Dims()
	return r
}

func (im *Image) Support(ctx context.Context, o Oracle, d dynamo.Vector) (float64, error) {
	if err := checkDim(im, d); err != nil {
		return 0, err
	}
	return im.S.Support(ctx, o, MulTrans(im.M, d))
}

// MulTrans returns Mᵀ·d.
func MulTrans(m mat.Matrix, d dynamo.Vector) dynamo.Vector {
	_, c := m.Dims()
	out := mat.NewVecDense(c, nil)
	out.MulVec(m.T(), mat.NewVecDense(len(d), d))
	return dynamo.Vector(out.RawVector().Data)
}

// Mul returns M·x.
func Mul(m mat.Matrix, x dynamo.Vector) dynamo.Vector {
	r, _ := m.Dims()
	out := mat.NewVecDense(r, nil)
	out.MulVec(m, mat.NewVecDense(len(x), x))
	return dynamo.Vector(out.RawVector().Data)
}
