package lotov

import "container/heap"

// edge joins inner vertex p1 to the p1 of its successor. normal is the
// outward normal of the supporting line through p1, outer the intersection
// of that line with the successor's supporting line.
type edge struct {
	p1     Point2
	normal Point2
	outer  Point2
	gap    float64

	serial     int
	prev, next *edge
	slot       int // position in the gap heap
}

func (e *edge) p2() Point2 { return e.next.p1 }

// ring is a cyclic doubly-linked list of edges with a max-heap on gap.
// Splitting an edge never moves any other edge.
type ring struct {
	head   *edge
	size   int
	serial int
	gaps   gapHeap
}

// newRing links the vertices in order; the last edge closes the cycle.
func newRing(points, normals []Point2) *ring {
	r := &ring{}
	var prev *edge
	for i := range points {
		e := r.alloc(points[i], normals[i])
		if prev == nil {
			r.head = e
		} else {
			prev.next, e.prev = e, prev
		}
		prev = e
	}
	prev.next, r.head.prev = r.head, prev
	return r
}

func (r *ring) alloc(p, n Point2) *edge {
	e := &edge{p1: p, normal: n, serial: r.serial, slot: -1}
	r.serial++
	r.size++
	return e
}

// split inserts a vertex after e and returns the new edge, which runs
// from the inserted vertex to e's old end point.
func (r *ring) split(e *edge, p, n Point2) *edge {
	f := r.alloc(p, n)
	f.prev, f.next = e, e.next
	e.next.prev = f
	e.next = f
	return f
}

func (r *ring) each(fn func(e *edge)) {
	e := r.head
	for i := 0; i < r.size; i++ {
		fn(e)
		e = e.next
	}
}

func (r *ring) push(e *edge) { heap.Push(&r.gaps, e) }
func (r *ring) fix(e *edge) { heap.Fix(&r.gaps, e.slot) }
func (r *ring) widest() *edge {
	if len(r.gaps) == 0 {
		return nil
	}
	return r.gaps[0]
}

// gapHeap orders edges by decreasing gap, older edges first on ties.
type gapHeap []*edge

func (h gapHeap) Len() int { return len(h) }

func (h gapHeap) Less(i, j int) bool {
	if h[i].gap != h[j].gap {
		return h[i].gap > h[j].gap
	}
	return h[i].serial < h[j].serial
}

func (h gapHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].slot = i
	h[j].slot = j
}

func (h *gapHeap) Push(x any) {
	e := x.(*edge)
	e.slot = len(*h)
	*h = append(*h, e)
}

func (h *gapHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.slot = -1
	*h = old[:n-1]
	return e
}
