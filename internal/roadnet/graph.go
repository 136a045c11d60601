// Package roadnet builds, simplifies, projects and caches the road network
// graph used for station distance routing.
package roadnet

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/afd-analytics/stationdist/internal/projection"
)

// Node is an intersection or shape point of the road network.
type Node struct {
	ID  int64   `json:"id"`
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
}

// Point returns the projected position of the node.
func (n Node) Point() projection.Point {
	return projection.Point{X: n.X, Y: n.Y}
}

// Edge is a directed road segment with its length in meters.
type Edge struct {
	From   int64   `json:"from"`
	To     int64   `json:"to"`
	Length float64 `json:"length"`
}

// Graph is a directed road graph. It is mutated only while being built and
// is safe for concurrent reads afterwards.
type Graph struct {
	g         *simple.WeightedDirectedGraph
	nodes     map[int64]*Node
	projected bool
	crs       string
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		g:     simple.NewWeightedDirectedGraph(0, math.Inf(1)),
		nodes: make(map[int64]*Node),
	}
}

// AddNode inserts n or updates its position if the id already exists.
func (g *Graph) AddNode(n Node) {
	if existing, ok := g.nodes[n.ID]; ok {
		*existing = n
		return
	}
	cp := n
	g.nodes[n.ID] = &cp
	g.g.AddNode(simple.Node(n.ID))
}

// AddEdge inserts a directed edge. Self loops are dropped and parallel edges
// keep the shortest length. Both endpoints must already exist.
func (g *Graph) AddEdge(from, to int64, length float64) error {
	if length < 0 || math.IsNaN(length) {
		return eris.Errorf("roadnet: edge %d->%d has invalid length %v", from, to, length)
	}
	if _, ok := g.nodes[from]; !ok {
		return eris.Errorf("roadnet: edge %d->%d references unknown node %d", from, to, from)
	}
	if _, ok := g.nodes[to]; !ok {
		return eris.Errorf("roadnet: edge %d->%d references unknown node %d", from, to, to)
	}
	if from == to {
		return nil
	}
	if e := g.g.WeightedEdge(from, to); e != nil && e.Weight() <= length {
		return nil
	}
	g.g.SetWeightedEdge(g.g.NewWeightedEdge(simple.Node(from), simple.Node(to), length))
	return nil
}

// Node returns the node with the given id.
func (g *Graph) Node(id int64) (Node, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Length returns the length of the edge from -> to.
func (g *Graph) Length(from, to int64) (float64, bool) {
	e := g.g.WeightedEdge(from, to)
	if e == nil {
		return 0, false
	}
	return e.Weight(), true
}

// NumNodes returns the node count.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// NumEdges returns the directed edge count.
func (g *Graph) NumEdges() int {
	return g.g.WeightedEdges().Len()
}

// Nodes returns all nodes ordered by id.
func (g *Graph) Nodes() []Node {
	out := make([]Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Edges returns all edges ordered by (from, to).
func (g *Graph) Edges() []Edge {
	it := g.g.WeightedEdges()
	out := make([]Edge, 0, it.Len())
	for it.Next() {
		e := it.WeightedEdge()
		out = append(out, Edge{From: e.From().ID(), To: e.To().ID(), Length: e.Weight()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

// Successors returns the ids reachable by one edge from id, sorted.
func (g *Graph) Successors(id int64) []int64 {
	return sortedIDs(g.g.From(id))
}

// Predecessors returns the ids with an edge into id, sorted.
func (g *Graph) Predecessors(id int64) []int64 {
	return sortedIDs(g.g.To(id))
}

// Projected reports whether X/Y are populated and in which reference system.
func (g *Graph) Projected() (bool, string) { return g.projected, g.crs }

// Project computes X/Y for every node with p.
func (g *Graph) Project(p projection.Projector) error {
	for id, n := range g.nodes {
		pt, err := p.Forward(n.Lon, n.Lat)
		if err != nil {
			return eris.Wrapf(err, "roadnet: project node %d", id)
		}
		n.X, n.Y = pt.X, pt.Y
	}
	g.projected = true
	g.crs = p.Code()
	return nil
}

// PathTree holds single-source shortest path lengths from one node.
type PathTree struct {
	source  int64
	present bool
	tree    path.Shortest
}

// ShortestFrom runs Dijkstra from source over edge lengths.
func (g *Graph) ShortestFrom(source int64) PathTree {
	if _, ok := g.nodes[source]; !ok {
		return PathTree{source: source}
	}
	return PathTree{
		source:  source,
		present: true,
		tree:    path.DijkstraFrom(simple.Node(source), g.g),
	}
}

// Source returns the tree's origin node.
func (t PathTree) Source() int64 { return t.source }

// MetersTo returns the shortest path length to target, or false when no path exists.
func (t PathTree) MetersTo(target int64) (float64, bool) {
	if !t.present {
		return 0, false
	}
	if target == t.source {
		return 0, true
	}
	w := t.tree.WeightTo(target)
	if math.IsInf(w, 1) || math.IsNaN(w) {
		return 0, false
	}
	return w, true
}

func sortedIDs(it graph.Nodes) []int64 {
	ids := make([]int64, 0, it.Len())
	for it.Next() {
		ids = append(ids, it.Node().ID())
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
