package locator

import "gonum.org/v1/gonum/spatial/kdtree"

// place is a graph node position in the kd-tree.
type place struct {
	id   int64
	x, y float64
}

// Compare implements kdtree.Comparable.
func (p place) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(place)
	if d == 0 {
		return p.x - q.x
	}
	return p.y - q.y
}

// Dims implements kdtree.Comparable.
func (p place) Dims() int { return 2 }

// Distance returns the squared planar distance.
func (p place) Distance(c kdtree.Comparable) float64 {
	q := c.(place)
	dx, dy := p.x-q.x, p.y-q.y
	return dx*dx + dy*dy
}

// places implements kdtree.Interface.
type places []place

func (p places) Index(i int) kdtree.Comparable         { return p[i] }
func (p places) Len() int                              { return len(p) }
func (p places) Pivot(d kdtree.Dim) int                { return plane{Dim: d, places: p}.Pivot() }
func (p places) Slice(start, end int) kdtree.Interface { return p[start:end] }

// plane sorts places along one dimension.
type plane struct {
	kdtree.Dim
	places
}

func (p plane) Less(i, j int) bool {
	if p.Dim == 0 {
		return p.places[i].x < p.places[j].x
	}
	return p.places[i].y < p.places[j].y
}
func (p plane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.places = p.places[start:end]
	return p
}
func (p plane) Swap(i, j int) { p.places[i], p.places[j] = p.places[j], p.places[i] }
