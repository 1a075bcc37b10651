package config

import (
	"fmt"
	"os"

	"github.com/san-kum/flowpipe/internal/convex"
	"github.com/san-kum/flowpipe/internal/dynamo"
	"github.com/san-kum/flowpipe/internal/reach"
	"github.com/san-kum/flowpipe/internal/templates"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

const (
	DefaultTimeStep    = 0.01
	DefaultTimeHorizon = 1.0
	DefaultSolver      = "simplex"
	DefaultBaseRing    = "rational"
)

// Problem is a reachability request as written in a YAML problem file.
type Problem struct {
	Name    string      `yaml:"name" json:"name" validate:"required"`
	A       [][]float64 `yaml:"a" json:"a" validate:"required,min=1,dive,min=1"`
	B       [][]float64 `yaml:"b,omitempty" json:"b,omitempty" validate:"omitempty,dive,min=1"`
	X0      SetSpec     `yaml:"x0" json:"x0"`
	U       *SetSpec    `yaml:"u,omitempty" json:"u,omitempty"`
	Options OptionsSpec `yaml:"options" json:"options"`
}

// SetSpec describes a convex set; exactly one field is set.
type SetSpec struct {
	Point    []float64     `yaml:"point,omitempty" json:"point,omitempty"`
	Box      *BoxSpec      `yaml:"box,omitempty" json:"box,omitempty"`
	Polytope *PolytopeSpec `yaml:"polytope,omitempty" json:"polytope,omitempty"`
	Points   [][]float64   `yaml:"points,omitempty" json:"points,omitempty"`
}

type BoxSpec struct {
	Center []float64 `yaml:"center" json:"center" validate:"required"`
	Radius []float64 `yaml:"radius" json:"radius" validate:"required,dive,gte=0"`
}

// PolytopeSpec is {x : A·x ≤ B}.
type PolytopeSpec struct {
	A [][]float64 `yaml:"a" json:"a" validate:"required,min=1"`
	B []float64   `yaml:"b" json:"b" validate:"required,min=1"`
}

type OptionsSpec struct {
	TimeStep          float64        `yaml:"time_step" json:"time_step" validate:"gt=0"`
	InitialTime       float64        `yaml:"initial_time" json:"initial_time"`
	TimeHorizon       float64        `yaml:"time_horizon" json:"time_horizon" validate:"gte=0"`
	NumberOfTimeSteps int            `yaml:"number_of_time_steps,omitempty" json:"number_of_time_steps,omitempty" validate:"gte=0"`
	Directions        DirectionsSpec `yaml:"directions" json:"directions"`
	Solver            string         `yaml:"solver" json:"solver"`
	BaseRing          string         `yaml:"base_ring" json:"base_ring" validate:"omitempty,oneof=float rational QQ RDF"`
	Workers           int            `yaml:"workers,omitempty" json:"workers,omitempty" validate:"gte=0"`
	Seed              int64          `yaml:"seed,omitempty" json:"seed,omitempty"`
}

type DirectionsSpec struct {
	Select string      `yaml:"select" json:"select" validate:"omitempty,oneof=box oct octagon random custom"`
	Order  int         `yaml:"order,omitempty" json:"order,omitempty" validate:"gte=0"`
	List   [][]float64 `yaml:"list,omitempty" json:"list,omitempty"`
}

func DefaultOptions() OptionsSpec {
	return OptionsSpec{
		TimeStep:    DefaultTimeStep,
		TimeHorizon: DefaultTimeHorizon,
		Directions:  DirectionsSpec{Select: templates.SelectBox},
		Solver:      DefaultSolver,
		BaseRing:    DefaultBaseRing,
	}
}

// DefaultProblem is a pure rotation started from (1, 0).
func DefaultProblem() *Problem {
	return &Problem{
		Name:    "default",
		A:       [][]float64{{0, 1}, {-1, 0}},
		X0:      SetSpec{Point: []float64{1, 0}},
		Options: DefaultOptions(),
	}
}

func Load(path string) (*Problem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a problem over DefaultOptions and validates it.
func Parse(data []byte) (*Problem, error) {
	p := &Problem{Options: DefaultOptions()}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, err
	}
	if err := Validate(p); err != nil {
		return nil, err
	}
	return p, nil
}

func Save(path string, p *Problem) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Clone returns a deep copy.
func (p *Problem) Clone() *Problem {
	data, err := yaml.Marshal(p)
	if err != nil {
		panic(fmt.Sprintf("config: marshal problem: %v", err))
	}
	c := &Problem{}
	if err := yaml.Unmarshal(data, c); err != nil {
		panic(fmt.Sprintf("config: unmarshal problem: %v", err))
	}
	return c
}

func (p *Problem) Dim() int { return len(p.A) }

// System returns the state and input matrices; B is nil when absent.
func (p *Problem) System() (A, B *mat.Dense, err error) {
	if A, err = dense("a", p.A); err != nil {
		return nil, nil, err
	}
	if len(p.B) > 0 {
		if B, err = dense("b", p.B); err != nil {
			return nil, nil, err
		}
	}
	return A, B, nil
}

func (p *Problem) Ring() convex.Ring {
	r, err := convex.ParseRing(p.Options.BaseRing)
	if err != nil {
		return convex.RingRational
	}
	return r
}

func (p *Problem) Initial() (convex.Set, error) {
	s, err := p.X0.Set(p.Ring())
	if err != nil {
		return nil, fmt.Errorf("x0: %w", err)
	}
	return s, nil
}

// Input returns the input set, or nil for a homogeneous problem.
func (p *Problem) Input() (convex.Set, error) {
	if p.U == nil {
		return nil, nil
	}
	s, err := p.U.Set(p.Ring())
	if err != nil {
		return nil, fmt.Errorf("u: %w", err)
	}
	return s, nil
}

// LinearSystem bundles A, B and U for the engine and the audit.
func (p *Problem) LinearSystem() (reach.LinearSystem, error) {
	A, B, err := p.System()
	if err != nil {
		return reach.LinearSystem{}, err
	}
	U, err := p.Input()
	if err != nil {
		return reach.LinearSystem{}, err
	}
	return reach.LinearSystem{A: A, B: B, U: U}, nil
}

func (p *Problem) ReachOptions() reach.Options {
	o := reach.DefaultOptions()
	spec := p.Options
	o.TimeStep = spec.TimeStep
	o.InitialTime = spec.InitialTime
	o.TimeHorizon = spec.TimeHorizon
	o.NumberOfTimeSteps = spec.NumberOfTimeSteps
	o.Solver = spec.Solver
	o.BaseRing = spec.BaseRing
	o.Workers = spec.Workers
	o.Seed = spec.Seed

	o.Directions = templates.Config{Select: spec.Directions.Select, Order: spec.Directions.Order}
	for _, d := range spec.Directions.List {
		o.Directions.List = append(o.Directions.List, dynamo.Vector(d))
	}
	return o
}

// Set builds the convex set this spec describes.
func (s *SetSpec) Set(ring convex.Ring) (convex.Set, error) {
	switch s.variant() {
	case "point":
		if len(s.Point) == 0 {
			return nil, fmt.Errorf("empty point: %w", dynamo.ErrInvalidInput)
		}
		return convex.NewPoint(s.Point), nil
	case "box":
		return convex.NewBox(s.Box.Center, s.Box.Radius)
	case "polytope":
		normals := make([]dynamo.Vector, len(s.Polytope.A))
		for i, row := range s.Polytope.A {
			normals[i] = row
		}
		return convex.NewHPolytope(normals, s.Polytope.B, ring)
	case "points":
		pts := make([]dynamo.Vector, len(s.Points))
		for i, row := range s.Points {
			pts[i] = row
		}
		return convex.NewPointSet(pts...)
	case "":
		return nil, fmt.Errorf("set without a variant: %w", dynamo.ErrMissingInput)
	default:
		return nil, fmt.Errorf("set with more than one variant: %w", dynamo.ErrInvalidInput)
	}
}

func (s *SetSpec) variant() string {
	name, count := "", 0
	if s.Point != nil {
		name, count = "point", count+1
	}
	if s.Box != nil {
		name, count = "box", count+1
	}
	if s.Polytope != nil {
		name, count = "polytope", count+1
	}
	if s.Points != nil {
		name, count = "points", count+1
	}
	if count > 1 {
		return "ambiguous"
	}
	return name
}

func dense(name string, rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("matrix %s: %w", name, dynamo.ErrMissingInput)
	}
	cols := len(rows[0])
	m := mat.NewDense(len(rows), cols, nil)
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("matrix %s row %d has %d entries, want %d: %w", name, i, len(row), cols, dynamo.ErrInvalidInput)
		}
		m.SetRow(i, row)
	}
	return m, nil
}
