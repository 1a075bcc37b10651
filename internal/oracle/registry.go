package oracle

import (
	"fmt"
	"sort"

	"github.com/san-kum/flowpipe/internal/convex"
	"github.com/san-kum/flowpipe/internal/dynamo"
)

const DefaultSolver = "simplex"

type Registry struct {
	solvers map[string]func() convex.Oracle
}

func NewRegistry() *Registry {
	r := &Registry{
		solvers: make(map[string]func() convex.Oracle),
	}

	r.solvers["simplex"] = func() convex.Oracle { return NewSimplex() }
	// Configurations written for a GLPK backend resolve to the simplex.
	r.solvers["glpk"] = r.solvers["simplex"]

	return r
}

// Register adds or replaces a named backend.
func (r *Registry) Register(name string, fn func() convex.Oracle) {
	r.solvers[name] = fn
}

func (r *Registry) Get(name string) (convex.Oracle, error) {
	if name == "" {
		name = DefaultSolver
	}
	fn, ok := r.solvers[name]
	if !ok {
		return nil, fmt.Errorf("unknown solver %q (available: %v): %w", name, r.List(), dynamo.ErrInvalidInput)
	}
	return fn(), nil
}

func (r *Registry) List() []string {
	names := make([]string, 0, len(r.solvers))
	for name := range r.solvers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var defaultRegistry = NewRegistry()

// Lookup resolves a solver name against the built-in backends.
func Lookup(name string) (convex.Oracle, error) {
	return defaultRegistry.Get(name)
}
