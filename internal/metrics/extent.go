package metrics

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
	"github.com/san-kum/flowpipe/internal/convex"
	"github.com/san-kum/flowpipe/internal/dynamo"
	"github.com/san-kum/flowpipe/internal/reach"
)

// Metric accumulates a scalar over the polytopes of a flowpipe.
type Metric interface {
	Name() string
	Observe(i int, p *convex.HPolytope)
	Value() float64
	Reset()
}

// Extent returns the widest slab of p spanned by an antipodal pair of
// constraint normals, (ρ(d)+ρ(-d))/|d|. Without antipodal pairs it falls
// back to the largest normalized offset.
func Extent(p *convex.HPolytope) float64 {
	normals := p.Normals()
	width, paired := 0.0, false
	for i := range normals {
		ni := normals[i].Norm()
		if ni == 0 {
			continue
		}
		for j := i + 1; j < len(normals); j++ {
			if !antipodal(normals[i], normals[j]) {
				continue
			}
			paired = true
			width = math.Max(width, (p.B[i]+p.B[j])/ni)
		}
	}
	if paired {
		return width
	}

	for i, d := range normals {
		if n := d.Norm(); n > 0 {
			width = math.Max(width, math.Abs(p.B[i])/n)
		}
	}
	return width
}

func antipodal(a, b dynamo.Vector) bool {
	na, nb := a.Norm(), b.Norm()
	if na == 0 || nb == 0 {
		return false
	}
	return math.Abs(a.Dot(b)/(na*nb)+1) < 1e-9
}

type MaxExtent struct {
	max     float64
	samples int
}

func NewMaxExtent() *MaxExtent { return &MaxExtent{} }

func (m *MaxExtent) Name() string { return "max_extent" }

func (m *MaxExtent) Observe(_ int, p *convex.HPolytope) {
	m.max = math.Max(m.max, Extent(p))
	m.samples++
}

func (m *MaxExtent) Value() float64 { return m.max }

func (m *MaxExtent) Reset() {
	m.max = 0
	m.samples = 0
}

type MeanExtent struct {
	total   float64
	samples int
}

func NewMeanExtent() *MeanExtent { return &MeanExtent{} }

func (m *MeanExtent) Name() string { return "mean_extent" }

func (m *MeanExtent) Observe(_ int, p *convex.HPolytope) {
	m.total += Extent(p)
	m.samples++
}

func (m *MeanExtent) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return m.total / float64(m.samples)
}

func (m *MeanExtent) Reset() {
	m.total = 0
	m.samples = 0
}

// Observe feeds every polytope of fp to each metric in order.
func Observe(fp *reach.Flowpipe, ms ...Metric) map[string]float64 {
	for _, m := range ms {
		m.Reset()
	}
	for i, p := range fp.Polytopes {
		for _, m := range ms {
			m.Observe(i, p)
		}
	}
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		out[m.Name()] = m.Value()
	}
	return out
}

// Envelope returns ρ_i(d_j) for every time step i.
func Envelope(fp *reach.Flowpipe, j int) ([]float64, error) {
	if j < 0 || j >= len(fp.Directions) {
		return nil, fmt.Errorf("direction %d of %d: %w", j, len(fp.Directions), dynamo.ErrInvalidInput)
	}
	out := make([]float64, fp.Len())
	for i := range out {
		out[i] = fp.Support(i, j)
	}
	return out, nil
}

// Summary describes how the flowpipe extent evolves over time.
type Summary struct {
	Steps  int     `json:"steps"`
	Mean   float64 `json:"mean_extent"`
	Median float64 `json:"median_extent"`
	Max    float64 `json:"max_extent"`
	StdDev float64 `json:"stddev_extent"`
	// Growth is the last extent over the first, zero when the first is zero.
	Growth float64 `json:"growth"`
}

func Summarize(fp *reach.Flowpipe) (Summary, error) {
	if fp == nil || fp.Len() == 0 {
		return Summary{}, fmt.Errorf("summary of an empty flowpipe: %w", dynamo.ErrMissingInput)
	}
	extents := make(stats.Float64Data, fp.Len())
	for i, p := range fp.Polytopes {
		extents[i] = Extent(p)
	}

	var s Summary
	var err error
	s.Steps = len(extents)
	if s.Mean, err = stats.Mean(extents); err != nil {
		return Summary{}, err
	}
	if s.Median, err = stats.Median(extents); err != nil {
		return Summary{}, err
	}
	if s.Max, err = stats.Max(extents); err != nil {
		return Summary{}, err
	}
	if s.StdDev, err = stats.StandardDeviation(extents); err != nil {
		return Summary{}, err
	}
	if first := extents[0]; first != 0 {
		s.Growth = extents[len(extents)-1] / first
	}
	return s, nil
}

// Map flattens the summary for run metadata.
func (s Summary) Map() map[string]float64 {
	return map[string]float64{
		"mean_extent":   s.Mean,
		"median_extent": s.Median,
		"max_extent":    s.Max,
		"stddev_extent": s.StdDev,
		"growth":        s.Growth,
	}
}
