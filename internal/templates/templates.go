// Package templates generates the template directions along which every
// flowpipe polytope is bounded.
package templates

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/san-kum/flowpipe/internal/dynamo"
)

const (
	SelectBox     = "box"
	SelectOctagon = "oct"
	SelectRandom  = "random"
	SelectCustom  = "custom"

	DefaultRandomOrder = 12
)

type Config struct {
	Select string          `yaml:"select" json:"select"`
	Order  int             `yaml:"order,omitempty" json:"order,omitempty"`
	List   []dynamo.Vector `yaml:"list,omitempty" json:"list,omitempty"`
}

func DefaultConfig() Config {
	return Config{Select: SelectBox}
}

// Generate returns the ordered direction set for ambient dimension n.
// rng is consumed only by the random scheme and may be nil otherwise.
func Generate(n int, cfg Config, rng *rand.Rand) ([]dynamo.Vector, error) {
	if n < 1 {
		return nil, fmt.Errorf("ambient dimension %d: %w", n, dynamo.ErrInvalidInput)
	}

	switch cfg.Select {
	case SelectBox, "":
		return box(n), nil

	case SelectOctagon, "octagon":
		if n != 2 {
			return nil, fmt.Errorf("octagonal directions need n = 2, got n = %d: %w", n, dynamo.ErrUnsupportedDimension)
		}
		return polar(8, func(i int) float64 { return float64(i) * math.Pi / 4 }), nil

	case SelectRandom:
		if n != 2 {
			return nil, fmt.Errorf("random directions need n = 2, got n = %d: %w", n, dynamo.ErrUnsupportedDimension)
		}
		order := cfg.Order
		if order == 0 {
			order = DefaultRandomOrder
		}
		if order < 0 {
			return nil, fmt.Errorf("random order %d: %w", order, dynamo.ErrInvalidInput)
		}
		if rng == nil {
			rng = rand.New(rand.NewSource(1))
		}
		return polar(order, func(int) float64 { return rng.Float64() * 2 * math.Pi }), nil

	case SelectCustom:
		if len(cfg.List) == 0 {
			return nil, fmt.Errorf("custom directions without a list: %w", dynamo.ErrInvalidInput)
		}
		for i, d := range cfg.List {
			if len(d) != n {
				return nil, fmt.Errorf("custom direction %d has dimension %d, want %d: %w", i, len(d), n, dynamo.ErrInvalidInput)
			}
		}
		return cfg.List, nil

	default:
		return nil, fmt.Errorf("template directions %q not understood: %w", cfg.Select, dynamo.ErrInvalidInput)
	}
}

// box returns the normals of an n-dimensional hyperrectangle. In the plane
// they are ordered by angle 0, π/2, π, 3π/2; otherwise -e_1..-e_n, +e_1..+e_n.
func box(n int) []dynamo.Vector {
	if n == 2 {
		return []dynamo.Vector{{1, 0}, {0, 1}, {-1, 0}, {0, -1}}
	}
	dirs := make([]dynamo.Vector, 0, 2*n)
	for i := 0; i < n; i++ {
		dirs = append(dirs, dynamo.Basis(n, i, -1))
	}
	for i := 0; i < n; i++ {
		dirs = append(dirs, dynamo.Basis(n, i, 1))
	}
	return dirs
}

func polar(k int, angle func(i int) float64) []dynamo.Vector {
	dirs := make([]dynamo.Vector, k)
	for i := range dirs {
		s, c := math.Sincos(angle(i))
		dirs[i] = dynamo.Vector{c, s}
	}
	return dirs
}
