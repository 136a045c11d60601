package roadnet

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddEdge_Rules(t *testing.T) {
	g := New()
	g.AddNode(Node{ID: 1})
	g.AddNode(Node{ID: 2})

	require.Error(t, g.AddEdge(1, 2, -1))
	require.Error(t, g.AddEdge(1, 2, math.NaN()))
	require.Error(t, g.AddEdge(1, 9, 5))
	require.Error(t, g.AddEdge(9, 1, 5))

	require.NoError(t, g.AddEdge(1, 1, 5))
	assert.Equal(t, 0, g.NumEdges())

	require.NoError(t, g.AddEdge(1, 2, 30))
	require.NoError(t, g.AddEdge(1, 2, 10))
	require.NoError(t, g.AddEdge(1, 2, 20))
	l, ok := g.Length(1, 2)
	require.True(t, ok)
	assert.Equal(t, 10.0, l)

	_, ok = g.Length(2, 1)
	assert.False(t, ok)
}

func TestAddNode_Upserts(t *testing.T) {
	g := New()
	g.AddNode(Node{ID: 7, Lon: 1})
	g.AddNode(Node{ID: 7, Lon: 2})
	assert.Equal(t, 1, g.NumNodes())
	n, ok := g.Node(7)
	require.True(t, ok)
	assert.Equal(t, 2.0, n.Lon)
}

func TestNodesAndEdgesSorted(t *testing.T) {
	g := New()
	for _, id := range []int64{5, 1, 3} {
		g.AddNode(Node{ID: id})
	}
	require.NoError(t, g.AddEdge(5, 1, 1))
	require.NoError(t, g.AddEdge(1, 5, 1))
	require.NoError(t, g.AddEdge(1, 3, 1))

	var ids []int64
	for _, n := range g.Nodes() {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []int64{1, 3, 5}, ids)
	assert.Equal(t, []Edge{{1, 3, 1}, {1, 5, 1}, {5, 1, 1}}, g.Edges())
	assert.Equal(t, []int64{3, 5}, g.Successors(1))
	assert.Equal(t, []int64{5}, g.Predecessors(1))
}

func TestShortestFrom(t *testing.T) {
	g := New()
	for id := int64(1); id <= 4; id++ {
		g.AddNode(Node{ID: id})
	}
	require.NoError(t, g.AddEdge(1, 2, 100))
	require.NoError(t, g.AddEdge(2, 3, 50))
	require.NoError(t, g.AddEdge(1, 3, 200))

	tree := g.ShortestFrom(1)
	assert.Equal(t, int64(1), tree.Source())

	d, ok := tree.MetersTo(3)
	require.True(t, ok)
	assert.Equal(t, 150.0, d)

	d, ok = tree.MetersTo(1)
	require.True(t, ok)
	assert.Zero(t, d)

	_, ok = tree.MetersTo(4)
	assert.False(t, ok, "isolated node is unreachable")

	_, ok = g.ShortestFrom(3).MetersTo(1)
	assert.False(t, ok, "edges are directed")

	_, ok = g.ShortestFrom(99).MetersTo(1)
	assert.False(t, ok, "unknown source")
}

func TestProject(t *testing.T) {
	g := blockGraph(t)
	ok, _ := g.Projected()
	assert.False(t, ok)

	require.NoError(t, g.Project(planar{}))
	ok, crs := g.Projected()
	assert.True(t, ok)
	assert.Equal(t, "planar", crs)

	n, _ := g.Node(1)
	assert.Equal(t, n.Lon, n.X)
	assert.Equal(t, n.Lat, n.Point().Y)
}
