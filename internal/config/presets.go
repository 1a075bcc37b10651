package config

import "sort"

func options(tau, horizon float64, sel string) OptionsSpec {
	o := DefaultOptions()
	o.TimeStep = tau
	o.TimeHorizon = horizon
	o.Directions = DirectionsSpec{Select: sel}
	return o
}

var Presets = map[string]*Problem{
	"rotation": {
		Name:    "rotation",
		A:       [][]float64{{0, 1}, {-1, 0}},
		X0:      SetSpec{Point: []float64{1, 0}},
		Options: options(0.1, 1, "box"),
	},
	"damped_oscillator": {
		Name:    "damped_oscillator",
		A:       [][]float64{{0, 1}, {-2, -0.3}},
		X0:      SetSpec{Box: &BoxSpec{Center: []float64{1, 0}, Radius: []float64{0.1, 0.05}}},
		Options: options(0.05, 4, "oct"),
	},
	"double_integrator": {
		Name:    "double_integrator",
		A:       [][]float64{{0, 1}, {0, 0}},
		B:       [][]float64{{0}, {1}},
		X0:      SetSpec{Box: &BoxSpec{Center: []float64{0, 0}, Radius: []float64{0.05, 0.05}}},
		U:       &SetSpec{Box: &BoxSpec{Center: []float64{0}, Radius: []float64{1}}},
		Options: options(0.05, 2, "oct"),
	},
	"harmonic_3d": {
		Name: "harmonic_3d",
		A:    [][]float64{{0, 1, 0}, {-1, 0, 0}, {0, 0, -0.5}},
		X0: SetSpec{Polytope: &PolytopeSpec{
			A: [][]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}, {-1, 0, 0}, {0, -1, 0}, {0, 0, -1}},
			B: []float64{1.1, 0.1, 1.1, -0.9, 0.1, -0.9},
		}},
		Options: options(0.05, 1, "box"),
	},
	"decay": {
		Name:    "decay",
		A:       [][]float64{{-1, 0}, {0, -2}},
		X0:      SetSpec{Points: [][]float64{{1, 1}, {1.2, 0.8}, {0.9, 1.1}}},
		Options: decayOptions(),
	},
	"frozen": {
		Name:    "frozen",
		A:       [][]float64{{0, 0}, {0, 0}},
		B:       [][]float64{{1, 0}, {0, 1}},
		X0:      SetSpec{Point: []float64{0, 0}},
		U:       &SetSpec{Box: &BoxSpec{Center: []float64{0, 0}, Radius: []float64{0.5, 0.5}}},
		Options: options(0.1, 1, "box"),
	},
}

func decayOptions() OptionsSpec {
	o := options(0.1, 3, "random")
	o.Directions.Order = 16
	o.Seed = 7
	o.BaseRing = "float"
	return o
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(name string) *Problem {
	p, ok := Presets[name]
	if !ok {
		return nil
	}
	return p.Clone()
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
