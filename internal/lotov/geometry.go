package lotov

import "math"

// Point2 is a point or direction in the projection plane.
type Point2 struct {
	X, Y float64
}

func (p Point2) Add(q Point2) Point2 { return Point2{p.X + q.X, p.Y + q.Y} }
func (p Point2) Sub(q Point2) Point2 { return Point2{p.X - q.X, p.Y - q.Y} }
func (p Point2) Scale(s float64) Point2 { return Point2{p.X * s, p.Y * s} }
func (p Point2) Dot(q Point2) float64 { return p.X*q.X + p.Y*q.Y }
func (p Point2) Cross(q Point2) float64 { return p.X*q.Y - p.Y*q.X }
func (p Point2) Norm() float64 { return math.Hypot(p.X, p.Y) }
func (p Point2) IsZero() bool { return p.X == 0 && p.Y == 0 }
func (p Point2) Rotate90() Point2 { return Point2{-p.Y, p.X} }
func (p Point2) Slice() []float64 { return []float64{p.X, p.Y} }
func (p Point2) Dist(q Point2) float64 { return p.Sub(q).Norm() }
func (p Point2) Equal(q Point2, tol float64) bool {
	return math.Abs(p.X-q.X) <= tol && math.Abs(p.Y-q.Y) <= tol
}

// NormalVector rotates v by -90°, (v.Y, -v.X). For a counterclockwise
// chord this is the outward normal.
func NormalVector(v Point2) Point2 {
	return Point2{v.Y, -v.X}
}

// IntersectLines solves a1·x = a1·p1, a2·x = a2·p2. When the normals are
// parallel the system is singular and p2 is returned unchanged.
func IntersectLines(a1, p1, a2, p2 Point2) Point2 {
	det := a1.Cross(a2)
	if det == 0 {
		return p2
	}
	b1 := a1.Dot(p1)
	b2 := a2.Dot(p2)
	return Point2{
		X: (b1*a2.Y - a1.Y*b2) / det,
		Y: (a1.X*b2 - b1*a2.X) / det,
	}
}

// PointLineDistance is the distance from p to the line through a and b,
// or to a itself when the segment has zero length.
func PointLineDistance(a, b, p Point2) float64 {
	n := NormalVector(b.Sub(a))
	if l := n.Norm(); l != 0 {
		return math.Abs(n.Dot(p.Sub(a))) / l
	}
	return p.Dist(a)
}
