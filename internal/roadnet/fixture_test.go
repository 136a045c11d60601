package roadnet

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/afd-analytics/stationdist/internal/projection"
)

// planar treats lon/lat as meters so fixtures can be laid out by hand.
type planar struct{}

func (planar) Forward(lon, lat float64) (projection.Point, error) {
	return projection.Point{X: lon, Y: lat}, nil
}
func (planar) UnitsPerMeter() float64 { return 1 }
func (planar) Code() string           { return "planar" }

// pflugervilleBlock is a small block near downtown Pflugerville: a two-way
// street 1-2-3, two-way 3-4 and 5-1, a one-way 4->5 and a footway 2-4.
func pflugervilleBlock() (map[int64]Coord, []Way) {
	coords := map[int64]Coord{
		1: {Lon: -97.6200, Lat: 30.4400},
		2: {Lon: -97.6190, Lat: 30.4400},
		3: {Lon: -97.6180, Lat: 30.4400},
		4: {Lon: -97.6180, Lat: 30.4410},
		5: {Lon: -97.6200, Lat: 30.4410},
	}
	ways := []Way{
		{ID: 100, Nodes: []int64{1, 2, 3}, Highway: "residential"},
		{ID: 101, Nodes: []int64{3, 4}, Highway: "residential"},
		{ID: 102, Nodes: []int64{4, 5}, Highway: "residential", Direction: Forward},
		{ID: 103, Nodes: []int64{5, 1}, Highway: "tertiary"},
		{ID: 104, Nodes: []int64{2, 4}, Highway: "footway"},
	}
	return coords, ways
}

func blockGraph(t *testing.T) *Graph {
	t.Helper()
	coords, ways := pflugervilleBlock()
	g, _, err := FromWays(coords, ways)
	require.NoError(t, err)
	return g
}

// planarGraph builds a projected graph from explicit meter positions and
// undirected edges whose length is the straight-line distance.
func planarGraph(t *testing.T, pos map[int64][2]float64, edges [][2]int64) *Graph {
	t.Helper()
	g := New()
	for id, p := range pos {
		g.AddNode(Node{ID: id, Lon: p[0], Lat: p[1]})
	}
	for _, e := range edges {
		a, b := pos[e[0]], pos[e[1]]
		l := projection.Distance(projection.Point{X: a[0], Y: a[1]}, projection.Point{X: b[0], Y: b[1]})
		require.NoError(t, g.AddEdge(e[0], e[1], l))
		require.NoError(t, g.AddEdge(e[1], e[0], l))
	}
	require.NoError(t, g.Project(planar{}))
	return g
}
