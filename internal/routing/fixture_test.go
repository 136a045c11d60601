package routing

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/afd-analytics/stationdist/internal/locator"
	"github.com/afd-analytics/stationdist/internal/projection"
	"github.com/afd-analytics/stationdist/internal/roadnet"
	"github.com/afd-analytics/stationdist/internal/station"
)

// scaled maps one degree to 100 km so fixtures read as small decimals.
type scaled struct{}

func (scaled) Forward(lon, lat float64) (projection.Point, error) {
	if math.IsNaN(lon) || math.IsNaN(lat) {
		return projection.Point{}, projection.ErrInvalidCoordinate
	}
	return projection.Point{X: lon * 100000, Y: lat * 100000}, nil
}
func (scaled) UnitsPerMeter() float64 { return 1 }
func (scaled) Code() string           { return "scaled" }

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// fixture is a straight road 1-2-3-4 with 1 km segments and a disconnected
// two-node island 5-6.
type fixture struct {
	graph *roadnet.Graph
	loc   *locator.Locator
	reg   *station.Registry
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	g := roadnet.New()
	pos := map[int64][2]float64{
		1: {0, 0}, 2: {0.01, 0}, 3: {0.02, 0}, 4: {0.03, 0},
		5: {0.5, 0.5}, 6: {0.5001, 0.5},
	}
	for id, p := range pos {
		g.AddNode(roadnet.Node{ID: id, Lon: p[0], Lat: p[1]})
	}
	for _, e := range []struct {
		a, b int64
		l    float64
	}{{1, 2, 1000}, {2, 3, 1000}, {3, 4, 1000}, {5, 6, 10}} {
		require.NoError(t, g.AddEdge(e.a, e.b, e.l))
		require.NoError(t, g.AddEdge(e.b, e.a, e.l))
	}
	require.NoError(t, g.Project(scaled{}))

	loc, err := locator.New(g, scaled{}, locator.Options{CacheSize: 64})
	require.NoError(t, err)

	reg, err := station.NewRegistry([]station.Station{
		{ID: "A", Lon: 0, Lat: 0, HasEMS: true, HasFire: true, ActiveFrom: date(2000, 1, 1)},
		{ID: "B", Lon: 0.02, Lat: 0, HasFire: true, ActiveFrom: date(2022, 1, 1)},
		{ID: "C", Lon: 0.5, Lat: 0.5, HasEMS: true, HasFire: true},
	})
	require.NoError(t, err)

	return fixture{graph: g, loc: loc, reg: reg}
}

func miles(meters float64) float64 { return meters * MetersToMiles }
