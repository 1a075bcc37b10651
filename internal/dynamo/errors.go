package dynamo

import (
	"context"
	"errors"
	"fmt"
)

// Domain errors for reachability and projection operations.
var (
	// ErrMissingInput indicates a required matrix or set was not supplied.
	ErrMissingInput = errors.New("dynamo: missing required input")

	// ErrInvalidInput indicates an input of unrecognized shape, type or value.
	ErrInvalidInput = errors.New("dynamo: invalid input")

	// ErrUnsupportedDimension indicates a direction scheme that is not defined for the ambient dimension.
	ErrUnsupportedDimension = errors.New("dynamo: unsupported dimension")

	// ErrOracle indicates a failed support-function or extreme-point query.
	ErrOracle = errors.New("dynamo: oracle failure")

	// ErrInfeasible indicates the constraint system of a linear program has no solution.
	ErrInfeasible = errors.New("dynamo: linear program infeasible")

	// ErrUnbounded indicates the objective of a linear program is unbounded.
	ErrUnbounded = errors.New("dynamo: linear program unbounded")

	// ErrIterationLimit indicates a refinement loop hit its iteration cap.
	ErrIterationLimit = errors.New("dynamo: iteration limit reached")
)

// OracleError wraps a failed oracle query with the query context.
type OracleError struct {
	Op        string
	Direction Vector
	Wrapped   error
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("%s: %s along %v: %v", ErrOracle, e.Op, e.Direction, e.Wrapped)
}

func (e *OracleError) Unwrap() error {
	return e.Wrapped
}

func (e *OracleError) Is(target error) bool {
	return target == ErrOracle
}

// WrapOracle classifies a failed oracle query as an *OracleError. Context
// errors and errors that already are an *OracleError pass through.
func WrapOracle(op string, d Vector, err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var oe *OracleError
	if errors.As(err, &oe) {
		return err
	}
	return &OracleError{Op: op, Direction: d.Clone(), Wrapped: err}
}
