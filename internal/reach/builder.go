package reach

import (
	"fmt"

	"github.com/san-kum/flowpipe/internal/convex"
	"github.com/san-kum/flowpipe/internal/dynamo"
)

// BuildPolytope assembles {x : dirs[j]·x ≤ offsets[j] for all j}. The result
// may be empty; that is only detected by a later oracle query.
func BuildPolytope(dirs []dynamo.Vector, offsets []float64, ring convex.Ring) (*convex.HPolytope, error) {
	if len(dirs) != len(offsets) {
		return nil, fmt.Errorf("%d directions but %d offsets: %w", len(dirs), len(offsets), dynamo.ErrInvalidInput)
	}
	return convex.NewHPolytope(dirs, offsets, ring)
}
