package roadnet

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// neighbours returns the distinct predecessors, successors and their union.
func neighbours(g *Graph, id int64) (preds, succs []int64, all map[int64]bool) {
	preds = g.Predecessors(id)
	succs = g.Successors(id)
	all = make(map[int64]bool, len(preds)+len(succs))
	for _, p := range preds {
		all[p] = true
	}
	for _, s := range succs {
		all[s] = true
	}
	return preds, succs, all
}

// isEndpoint reports whether id must survive simplification. Interstitial
// nodes either pass a one-way street straight through or sit in the middle of
// a two-way street; everything else is an intersection, a dead end or a
// direction change.
func isEndpoint(g *Graph, id int64) bool {
	preds, succs, all := neighbours(g, id)
	if len(all) != 2 || len(preds) == 0 || len(succs) == 0 {
		return true
	}
	if len(preds) == 1 && len(succs) == 1 {
		return preds[0] == succs[0]
	}
	return !(len(preds) == 2 && len(succs) == 2)
}

// Simplify removes interstitial nodes, replacing each chain of segments with a
// single edge whose length is the sum of the chain. Path lengths between
// surviving nodes are preserved.
func Simplify(g *Graph) (*Graph, error) {
	nodes := g.Nodes()
	endpoint := make(map[int64]bool, len(nodes))
	for _, n := range nodes {
		endpoint[n.ID] = isEndpoint(g, n.ID)
	}

	out := New()
	for _, n := range nodes {
		if endpoint[n.ID] {
			out.AddNode(n)
		}
	}

	visited := make(map[int64]bool)
	for _, n := range nodes {
		if !endpoint[n.ID] {
			continue
		}
		for _, first := range g.Successors(n.ID) {
			length, _ := g.Length(n.ID, first)
			prev, cur := n.ID, first

			for steps := 0; !endpoint[cur] && steps < len(nodes); steps++ {
				visited[cur] = true
				next, ok := continuation(g, prev, cur)
				if !ok {
					break
				}
				l, _ := g.Length(cur, next)
				length += l
				prev, cur = cur, next
			}

			if !endpoint[cur] {
				// Chain ran off into a cycle with no endpoint; keep the interstitial node.
				node, _ := g.Node(cur)
				out.AddNode(node)
				endpoint[cur] = true
			}
			if err := out.AddEdge(n.ID, cur, length); err != nil {
				return nil, eris.Wrap(err, "roadnet: simplify")
			}
		}
	}

	// Rings made only of interstitial nodes are kept verbatim.
	isolated := make(map[int64]bool)
	for _, n := range nodes {
		if !endpoint[n.ID] && !visited[n.ID] {
			isolated[n.ID] = true
			out.AddNode(n)
		}
	}
	for _, e := range g.Edges() {
		if isolated[e.From] && isolated[e.To] {
			if err := out.AddEdge(e.From, e.To, e.Length); err != nil {
				return nil, eris.Wrap(err, "roadnet: simplify")
			}
		}
	}

	out.projected, out.crs = g.projected, g.crs

	zap.L().Debug("roadnet: simplified graph",
		zap.Int("nodes_before", len(nodes)),
		zap.Int("nodes_after", out.NumNodes()),
		zap.Int("edges_after", out.NumEdges()),
	)
	return out, nil
}

// continuation picks the edge leaving cur that does not lead back to prev.
func continuation(g *Graph, prev, cur int64) (int64, bool) {
	for _, s := range g.Successors(cur) {
		if s != prev {
			return s, true
		}
	}
	return 0, false
}

// ConsolidateOptions tunes intersection consolidation.
type ConsolidateOptions struct {
	// Tolerance is the buffer radius in projected units; nodes whose
	// buffers overlap (distance <= 2*Tolerance) are merged transitively.
	Tolerance float64
	// MergeDeadEnds also merges nodes with a single neighbour.
	MergeDeadEnds bool
}

// Consolidate merges clusters of nearby intersection nodes into one node at
// the cluster centroid and rebuilds edges between clusters. A cluster whose
// members are not all connected by edges inside it is split into its
// connected pieces. The graph must be projected. Each merged node is
// identified by its smallest member id.
func Consolidate(g *Graph, opts ConsolidateOptions) (*Graph, error) {
	if !g.projected {
		return nil, eris.New("roadnet: consolidate requires a projected graph")
	}
	if opts.Tolerance <= 0 {
		return g, nil
	}

	nodes := g.Nodes()
	uf := newUnionFind(nodes)

	candidates := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		if !opts.MergeDeadEnds {
			_, _, all := neighbours(g, n.ID)
			if len(all) <= 1 {
				continue
			}
		}
		candidates = append(candidates, n)
	}

	reach := 2 * opts.Tolerance
	grid := make(map[[2]int64][]Node)
	cellOf := func(n Node) [2]int64 {
		return [2]int64{int64(math.Floor(n.X / reach)), int64(math.Floor(n.Y / reach))}
	}
	for _, n := range candidates {
		c := cellOf(n)
		grid[c] = append(grid[c], n)
	}
	for _, n := range candidates {
		c := cellOf(n)
		for dx := int64(-1); dx <= 1; dx++ {
			for dy := int64(-1); dy <= 1; dy++ {
				for _, m := range grid[[2]int64{c[0] + dx, c[1] + dy}] {
					if m.ID <= n.ID {
						continue
					}
					if math.Hypot(n.X-m.X, n.Y-m.Y) <= reach {
						uf.union(n.ID, m.ID)
					}
				}
			}
		}
	}

	// A cluster only becomes one node where its members are joined by roads
	// inside the cluster; unconnected pieces stay separate nodes.
	parts := newUnionFind(nodes)
	for _, e := range g.Edges() {
		if uf.find(e.From) == uf.find(e.To) {
			parts.union(e.From, e.To)
		}
	}

	members := make(map[int64][]Node)
	for _, n := range nodes {
		root := parts.find(n.ID)
		members[root] = append(members[root], n)
	}

	out := New()
	roots := make([]int64, 0, len(members))
	for root := range members {
		roots = append(roots, root)
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })

	for _, root := range roots {
		out.AddNode(centroid(root, members[root]))
	}

	for _, e := range g.Edges() {
		from, to := parts.find(e.From), parts.find(e.To)
		if from == to {
			continue
		}
		if err := out.AddEdge(from, to, e.Length); err != nil {
			return nil, eris.Wrap(err, "roadnet: consolidate")
		}
	}

	out.projected, out.crs = g.projected, g.crs

	zap.L().Debug("roadnet: consolidated intersections",
		zap.Float64("tolerance", opts.Tolerance),
		zap.Int("nodes_before", len(nodes)),
		zap.Int("nodes_after", out.NumNodes()),
	)
	return out, nil
}

func centroid(id int64, ns []Node) Node {
	if len(ns) == 1 {
		n := ns[0]
		n.ID = id
		return n
	}
	c := Node{ID: id}
	for _, n := range ns {
		c.Lon += n.Lon
		c.Lat += n.Lat
		c.X += n.X
		c.Y += n.Y
	}
	k := float64(len(ns))
	c.Lon /= k
	c.Lat /= k
	c.X /= k
	c.Y /= k
	return c
}

// unionFind keeps the smallest id as each set's representative.
type unionFind struct {
	parent map[int64]int64
}

func newUnionFind(nodes []Node) *unionFind {
	uf := &unionFind{parent: make(map[int64]int64, len(nodes))}
	for _, n := range nodes {
		uf.parent[n.ID] = n.ID
	}
	return uf
}

func (u *unionFind) find(id int64) int64 {
	root := id
	for u.parent[root] != root {
		root = u.parent[root]
	}
	for u.parent[id] != root {
		next := u.parent[id]
		u.parent[id] = root
		id = next
	}
	return root
}

func (u *unionFind) union(a, b int64) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if ra < rb {
		u.parent[rb] = ra
	} else {
		u.parent[ra] = rb
	}
}
