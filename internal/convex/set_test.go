package convex

import (
	"context"
	"errors"
	"math"
	"math/big"
	"testing"

	"github.com/san-kum/flowpipe/internal/dynamo"
	"gonum.org/v1/gonum/mat"
)

// vertexOracle answers extreme-point queries from a known vertex list.
type vertexOracle struct {
	vertices []dynamo.Vector
	calls    int
}

func (v *vertexOracle) ExtremePoint(_ context.Context, _ mat.Matrix, _ []float64, d dynamo.Vector) (dynamo.Vector, error) {
	v.calls++
	best := v.vertices[0]
	for _, x := range v.vertices[1:] {
		if d.Dot(x) > d.Dot(best) {
			best = x
		}
	}
	return best.Clone(), nil
}

func TestPointSetSupport(t *testing.T) {
	ps, err := NewPointSet(dynamo.Vector{1, 0}, dynamo.Vector{0, 2}, dynamo.Vector{-1, -1})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		d    dynamo.Vector
		want float64
	}{
		{dynamo.Vector{1, 0}, 1},
		{dynamo.Vector{0, 1}, 2},
		{dynamo.Vector{-1, 0}, 1},
		{dynamo.Vector{1, 1}, 2},
	}
	for _, tt := range tests {
		got, err := ps.Support(context.Background(), nil, tt.d)
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("supp(%v) = %v, want %v", tt.d, got, tt.want)
		}
	}

	if _, err := NewPointSet(); !errors.Is(err, dynamo.ErrInvalidInput) {
		t.Errorf("empty point set: expected ErrInvalidInput, got %v", err)
	}
	if _, err := NewPointSet(dynamo.Vector{1}, dynamo.Vector{1, 2}); !errors.Is(err, dynamo.ErrInvalidInput) {
		t.Errorf("ragged point set: expected ErrInvalidInput, got %v", err)
	}
}

func TestBoxSupport(t *testing.T) {
	b, err := NewBox(dynamo.Vector{1, -1}, dynamo.Vector{0.5, 2})
	if err != nil {
		t.Fatal(err)
	}

	got, err := b.Support(context.Background(), nil, dynamo.Vector{1, -1})
	if err != nil {
		t.Fatal(err)
	}
	// d·c + |d|·r = 2 + 2.5
	if math.Abs(got-4.5) > 1e-12 {
		t.Errorf("supp = %v, want 4.5", got)
	}

	if len(b.Vertices()) != 4 {
		t.Errorf("expected 4 vertices, got %d", len(b.Vertices()))
	}

	if _, err := NewBox(dynamo.Vector{0}, dynamo.Vector{-1}); !errors.Is(err, dynamo.ErrInvalidInput) {
		t.Errorf("negative radius: expected ErrInvalidInput, got %v", err)
	}

	ball := NewBall(3, 0.25)
	r, err := Radius(context.Background(), nil, ball)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(r-0.25) > 1e-12 {
		t.Errorf("ball radius = %v, want 0.25", r)
	}
}

func TestImageSupport(t *testing.T) {
	// Rotation by 90 degrees applied to the point (1, 0).
	m := mat.NewDense(2, 2, []float64{0, -1, 1, 0})
	im, err := NewImage(m, NewPoint(dynamo.Vector{1, 0}))
	if err != nil {
		t.Fatal(err)
	}

	up, _ := im.Support(context.Background(), nil, dynamo.Vector{0, 1})
	right, _ := im.Support(context.Background(), nil, dynamo.Vector{1, 0})
	if math.Abs(up-1) > 1e-12 || math.Abs(right) > 1e-12 {
		t.Errorf("image of (1,0) should be (0,1): supp up=%v right=%v", up, right)
	}

	// Non-square image R^1 -> R^2.
	col := mat.NewDense(2, 1, []float64{2, -1})
	seg, _ := NewBox(dynamo.Vector{0}, dynamo.Vector{1})
	im2, err := NewImage(col, seg)
	if err != nil {
		t.Fatal(err)
	}
	if im2.Dim() != 2 {
		t.Errorf("image dim = %d, want 2", im2.Dim())
	}
	h, _ := im2.Support(context.Background(), nil, dynamo.Vector{1, 0})
	if math.Abs(h-2) > 1e-12 {
		t.Errorf("supp = %v, want 2", h)
	}

	if _, err := NewImage(col, NewPoint(dynamo.Vector{1, 2})); !errors.Is(err, dynamo.ErrInvalidInput) {
		t.Errorf("dimension mismatch: expected ErrInvalidInput, got %v", err)
	}
}

func TestHPolytope(t *testing.T) {
	p, err := NewHPolytope([]dynamo.Vector{
		{1, 0}, {0, 1}, {-1, 0}, {0, -1},
	}, []float64{1, 2, 1, 0.5}, RingRational)
	if err != nil {
		t.Fatal(err)
	}

	if p.Dim() != 2 || p.NumConstraints() != 4 {
		t.Errorf("dims = (%d, %d)", p.Dim(), p.NumConstraints())
	}
	if !p.Contains(dynamo.Vector{0.5, 1.5}, 0) {
		t.Error("expected interior point to be contained")
	}
	if p.Contains(dynamo.Vector{0, -1}, 1e-9) {
		t.Error("expected exterior point to be rejected")
	}
	if got := p.Violation(dynamo.Vector{2, 0}); math.Abs(got-1) > 1e-12 {
		t.Errorf("violation = %v, want 1", got)
	}

	rb := p.RationalOffsets()
	if len(rb) != 4 || rb[3].Cmp(big.NewRat(1, 2)) != 0 {
		t.Errorf("rational offsets = %v", rb)
	}

	o := &vertexOracle{vertices: []dynamo.Vector{{1, 2}, {-1, 2}, {-1, -0.5}, {1, -0.5}}}
	h, err := p.Support(context.Background(), o, dynamo.Vector{0, -1})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(h-0.5) > 1e-12 || o.calls != 1 {
		t.Errorf("supp = %v (calls %d), want 0.5", h, o.calls)
	}

	if _, err := p.Support(context.Background(), nil, dynamo.Vector{1, 0}); !errors.Is(err, dynamo.ErrMissingInput) {
		t.Errorf("nil oracle: expected ErrMissingInput, got %v", err)
	}

	fl, err := FromDense(p.A, p.B, RingFloat)
	if err != nil {
		t.Fatal(err)
	}
	if fl.RationalOffsets() != nil {
		t.Error("float polytope should not carry rational offsets")
	}

	if _, err := NewHPolytope([]dynamo.Vector{{1, 0}}, []float64{1, 2}, RingFloat); !errors.Is(err, dynamo.ErrInvalidInput) {
		t.Errorf("length mismatch: expected ErrInvalidInput, got %v", err)
	}
}

func TestPromote(t *testing.T) {
	box, _ := NewBox(dynamo.Vector{0, 0}, dynamo.Vector{1, 1})

	tests := []struct {
		name    string
		in      any
		dim     int
		wantErr error
	}{
		{"vector", dynamo.Vector{1, 2}, 2, nil},
		{"float slice", []float64{1, 2, 3}, 3, nil},
		{"vecdense", mat.NewVecDense(2, []float64{1, 0}), 2, nil},
		{"point list", [][]float64{{0, 0}, {1, 1}}, 2, nil},
		{"box", box, 2, nil},
		{"nil", nil, 0, dynamo.ErrMissingInput},
		{"empty vector", dynamo.Vector{}, 0, dynamo.ErrInvalidInput},
		{"string", "x0", 0, dynamo.ErrInvalidInput},
		{"NaN point", []float64{math.NaN()}, 0, dynamo.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Promote(tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Promote failed: %v", err)
			}
			if s.Dim() != tt.dim {
				t.Errorf("dim = %d, want %d", s.Dim(), tt.dim)
			}
		})
	}
}

func TestParseRing(t *testing.T) {
	for in, want := range map[string]Ring{"": RingRational, "QQ": RingRational, "rational": RingRational, "float": RingFloat, "RDF": RingFloat} {
		got, err := ParseRing(in)
		if err != nil || got != want {
			t.Errorf("ParseRing(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseRing("ZZ"); !errors.Is(err, dynamo.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
