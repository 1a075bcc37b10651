package convex

import (
	"fmt"

	"github.com/san-kum/flowpipe/internal/dynamo"
	"gonum.org/v1/gonum/mat"
)

// Promote resolves a caller-supplied initial or input set once, at entry.
// Bare vectors become single-point sets, lists of vectors become point sets,
// and values that already implement Set are returned unchanged.
func Promote(v any) (Set, error) {
	switch x := v.(type) {
	case nil:
		return nil, fmt.Errorf("set: %w", dynamo.ErrMissingInput)
	case *PointSet:
		if x == nil {
			return nil, fmt.Errorf("set: %w", dynamo.ErrMissingInput)
		}
		return x, nil
	case *Box:
		if x == nil {
			return nil, fmt.Errorf("set: %w", dynamo.ErrMissingInput)
		}
		return x, nil
	case *HPolytope:
		if x == nil {
			return nil, fmt.Errorf("set: %w", dynamo.ErrMissingInput)
		}
		return x, nil
	case Set:
		return x, nil
	case dynamo.Vector:
		return promotePoint(x)
	case []float64:
		return promotePoint(x)
	case *mat.VecDense:
		if x == nil {
			return nil, fmt.Errorf("set: %w", dynamo.ErrMissingInput)
		}
		return promotePoint(mat.Col(nil, 0, x))
	case []dynamo.Vector:
		return NewPointSet(x...)
	case [][]float64:
		pts := make([]dynamo.Vector, len(x))
		for i := range x {
			pts[i] = x[i]
		}
		return NewPointSet(pts...)
	default:
		return nil, fmt.Errorf("set of type %T not understood: %w", v, dynamo.ErrInvalidInput)
	}
}

func promotePoint(p dynamo.Vector) (Set, error) {
	if len(p) == 0 {
		return nil, fmt.Errorf("empty point: %w", dynamo.ErrInvalidInput)
	}
	if !p.IsValid() {
		return nil, fmt.Errorf("point %v: %w", p, dynamo.ErrInvalidInput)
	}
	return NewPoint(p), nil
}
