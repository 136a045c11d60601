package locator

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afd-analytics/stationdist/internal/projection"
	"github.com/afd-analytics/stationdist/internal/roadnet"
	"github.com/afd-analytics/stationdist/internal/station"
)

type planar struct{}

func (planar) Forward(lon, lat float64) (projection.Point, error) {
	if math.Abs(lon) > 1e6 {
		return projection.Point{}, projection.ErrInvalidCoordinate
	}
	return projection.Point{X: lon, Y: lat}, nil
}
func (planar) UnitsPerMeter() float64 { return 1 }
func (planar) Code() string           { return "planar" }

func graphAt(t *testing.T, pos map[int64][2]float64) *roadnet.Graph {
	t.Helper()
	g := roadnet.New()
	for id, p := range pos {
		g.AddNode(roadnet.Node{ID: id, Lon: p[0], Lat: p[1]})
	}
	require.NoError(t, g.Project(planar{}))
	return g
}

func TestNearest(t *testing.T) {
	g := graphAt(t, map[int64][2]float64{1: {0, 0}, 2: {100, 0}, 3: {0, 100}, 4: {100, 100}})
	l, err := New(g, planar{}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 4, l.Len())

	ref, ok := l.Nearest(projection.Point{X: 90, Y: 20})
	require.True(t, ok)
	assert.Equal(t, int64(2), ref.ID)
	assert.InDelta(t, math.Hypot(10, 20), ref.Offset, 1e-9)

	ref, ok = l.Nearest(projection.Point{X: 50, Y: 50})
	require.True(t, ok)
	assert.Equal(t, int64(1), ref.ID, "ties go to the lowest id")

	_, ok = l.Nearest(projection.Point{X: math.NaN(), Y: 0})
	assert.False(t, ok)
}

func TestNearest_MatchesLinearScan(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	pos := make(map[int64][2]float64)
	for id := int64(1); id <= 300; id++ {
		pos[id] = [2]float64{rng.Float64() * 5000, rng.Float64() * 5000}
	}
	l, err := New(graphAt(t, pos), planar{}, Options{})
	require.NoError(t, err)

	for range 100 {
		q := projection.Point{X: rng.Float64() * 5000, Y: rng.Float64() * 5000}
		best := math.Inf(1)
		for _, p := range pos {
			best = math.Min(best, math.Hypot(p[0]-q.X, p[1]-q.Y))
		}
		ref, ok := l.Nearest(q)
		require.True(t, ok)
		assert.InDelta(t, best, ref.Offset, 1e-9)
	}
}

func TestNew_Validation(t *testing.T) {
	g := roadnet.New()
	g.AddNode(roadnet.Node{ID: 1})
	_, err := New(g, planar{}, Options{})
	assert.Error(t, err, "unprojected")

	require.NoError(t, g.Project(planar{}))
	_, err = New(g, projection.TexasCentral(), Options{})
	assert.Error(t, err, "reference system mismatch")
}

func TestSnapCoord_NullGuards(t *testing.T) {
	l, err := New(graphAt(t, map[int64][2]float64{1: {0, 0}}), planar{}, Options{})
	require.NoError(t, err)

	assert.False(t, l.SnapCoord(math.NaN(), 5).Valid)
	assert.False(t, l.SnapCoord(5, math.Inf(1)).Valid)
	assert.False(t, l.SnapCoord(2e6, 0).Valid, "projection failure")
	assert.True(t, l.SnapCoord(3, 4).Valid)

	empty, err := New(graphAt(t, nil), planar{}, Options{})
	require.NoError(t, err)
	assert.False(t, empty.SnapCoord(0, 0).Valid)
}

func TestSnap_Bucket(t *testing.T) {
	l, err := New(graphAt(t, map[int64][2]float64{7: {0, 0}}), planar{}, Options{})
	require.NoError(t, err)

	assert.Equal(t, NodeRef{ID: 7, Valid: true, Offset: 5}, l.Snap(3, 4, station.Medical))
	assert.True(t, l.Snap(3, 4, station.Engine).Valid)
	assert.False(t, l.Snap(3, 4, station.Bucket("HAZMAT")).Valid)
}

func TestSnap_MaxDistance(t *testing.T) {
	l, err := New(graphAt(t, map[int64][2]float64{1: {0, 0}}), planar{}, Options{MaxSnapMeters: 5})
	require.NoError(t, err)

	assert.True(t, l.SnapCoord(3, 4).Valid)
	assert.False(t, l.SnapCoord(30, 40).Valid)
	assert.Equal(t, 1, l.Stats().Rejected)
}

func TestSnap_Cache(t *testing.T) {
	l, err := New(graphAt(t, map[int64][2]float64{1: {0, 0}, 2: {10, 0}}), planar{}, Options{CacheSize: 8})
	require.NoError(t, err)

	first := l.SnapCoord(9, 0)
	second := l.SnapCoord(9, 0)
	assert.Equal(t, first, second)

	st := l.Stats()
	assert.Equal(t, uint64(1), st.Hits)
	assert.Equal(t, uint64(1), st.Misses)
}

func TestSnap_TexasCentral(t *testing.T) {
	proj := projection.TexasCentral()
	g := roadnet.New()
	g.AddNode(roadnet.Node{ID: 10, Lon: -97.6200, Lat: 30.4400})
	g.AddNode(roadnet.Node{ID: 11, Lon: -97.6100, Lat: 30.4400})
	require.NoError(t, g.Project(proj))

	l, err := New(g, proj, Options{MaxSnapMeters: 100})
	require.NoError(t, err)

	ref := l.SnapCoord(-97.6198, 30.4401)
	require.True(t, ref.Valid)
	assert.Equal(t, int64(10), ref.ID)
	// about 22 m, reported in US survey feet
	assert.InDelta(t, 22*projection.USSurveyFootPerMeter, ref.Offset, 10)

	assert.False(t, l.SnapCoord(-97.6150, 30.4500).Valid, "over 100 m from any node")
}
