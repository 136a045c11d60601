package routing

import (
	"math"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afd-analytics/stationdist/internal/locator"
	"github.com/afd-analytics/stationdist/internal/station"
)

func evaluatorFor(t *testing.T, f fixture, id string) *Evaluator {
	t.Helper()
	st, ok := f.reg.Get(id)
	require.True(t, ok)
	active := Activate(st, f.loc)
	ev, err := NewEvaluator(f.graph, &active)
	require.NoError(t, err)
	return ev
}

func TestNewEvaluator_NoActiveStation(t *testing.T) {
	f := newFixture(t)
	_, err := NewEvaluator(f.graph, nil)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNoActiveStation))
}

func TestActivate(t *testing.T) {
	f := newFixture(t)
	st, _ := f.reg.Get("B")
	active := Activate(st, f.loc)
	assert.True(t, active.Node.Valid)
	assert.Equal(t, int64(3), active.Node.ID)
	assert.Equal(t, "B", active.Station.ID)
}

func TestEvaluate_DistanceInMiles(t *testing.T) {
	f := newFixture(t)
	ev := evaluatorFor(t, f, "A")

	r := ev.Evaluate(locator.NodeRef{ID: 4, Valid: true}, station.Engine, date(2023, 5, 1))
	got, ok := r.Miles()
	require.True(t, ok)
	assert.InDelta(t, 3000*0.000621371, got, 1e-12)
	assert.Equal(t, KindDistance, r.Kind())
}

func TestEvaluate_NullTarget(t *testing.T) {
	ev := evaluatorFor(t, newFixture(t), "A")
	r := ev.Evaluate(locator.NodeRef{}, station.Medical, date(2023, 5, 1))
	assert.Equal(t, KindUnreachable, r.Kind())
	assert.Nil(t, r.Value())
}

func TestEvaluate_MissingCapabilityIsIneligible(t *testing.T) {
	ev := evaluatorFor(t, newFixture(t), "B")
	for _, node := range []int64{1, 2, 3, 4, 5} {
		r := ev.Evaluate(locator.NodeRef{ID: node, Valid: true}, station.Medical, date(2023, 5, 1))
		assert.Equal(t, KindIneligible, r.Kind(), "node %d", node)
		assert.Equal(t, station.NoCapability, r.Reason())
		v, ok := r.Sortable()
		assert.True(t, ok)
		assert.True(t, math.IsInf(v, 1))
	}
}

func TestEvaluate_BeforeActivationIsIneligible(t *testing.T) {
	ev := evaluatorFor(t, newFixture(t), "B")
	r := ev.Evaluate(locator.NodeRef{ID: 4, Valid: true}, station.Engine, date(2021, 12, 31))
	assert.Equal(t, KindIneligible, r.Kind())
	assert.Equal(t, station.NotYetActive, r.Reason())

	r = ev.Evaluate(locator.NodeRef{ID: 4, Valid: true}, station.Engine, date(2022, 1, 1))
	assert.Equal(t, KindDistance, r.Kind())
}

func TestEvaluate_DisconnectedIsUnreachable(t *testing.T) {
	ev := evaluatorFor(t, newFixture(t), "C")
	r := ev.Evaluate(locator.NodeRef{ID: 2, Valid: true}, station.Engine, date(2023, 5, 1))
	assert.Equal(t, KindUnreachable, r.Kind())
	_, ok := r.Sortable()
	assert.False(t, ok)

	r = ev.Evaluate(locator.NodeRef{ID: 6, Valid: true}, station.Engine, date(2023, 5, 1))
	got, ok := r.Miles()
	require.True(t, ok)
	assert.InDelta(t, miles(10), got, 1e-12)
}

func TestEvaluate_UnsnappedStation(t *testing.T) {
	f := newFixture(t)
	ev, err := NewEvaluator(f.graph, &Active{Station: station.Station{ID: "X", HasFire: true}})
	require.NoError(t, err)
	r := ev.Evaluate(locator.NodeRef{ID: 1, Valid: true}, station.Engine, date(2023, 1, 1))
	assert.Equal(t, KindUnreachable, r.Kind())
}

func TestResult(t *testing.T) {
	assert.Equal(t, KindUnreachable, Result{}.Kind())
	assert.Equal(t, "unreachable", Unreachable().String())
	assert.Equal(t, "ineligible(no_capability)", Ineligible(station.NoCapability).String())
	assert.Equal(t, "1.5", Distance(1.5).String())

	v := Distance(2.25).Value()
	require.NotNil(t, v)
	assert.Equal(t, 2.25, *v)
	assert.Nil(t, Ineligible(station.NotYetActive).Value())
}
