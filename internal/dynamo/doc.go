// Package dynamo provides the shared primitives of the reachability toolkit.
//
// The package defines the small vocabulary every other package speaks:
//
//   - [Vector]: a point or a direction in R^n
//   - the error taxonomy ([ErrMissingInput], [ErrInvalidInput],
//     [ErrUnsupportedDimension], [ErrOracle] and friends)
//   - [ParallelFor]: chunked fan-out over an index range
//
// # Example
//
//	d := dynamo.Vector{1, 0}
//	h := d.Dot(x)
//	if !d.IsValid() {
//	    return fmt.Errorf("direction %v: %w", d, dynamo.ErrInvalidInput)
//	}
//
// # Thread Safety
//
// Vector values are plain slices. Methods never mutate the receiver, so a
// vector may be shared read-only between goroutines.
package dynamo
