package routing

import (
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/afd-analytics/stationdist/internal/locator"
	"github.com/afd-analytics/stationdist/internal/roadnet"
	"github.com/afd-analytics/stationdist/internal/station"
)

// ErrNoActiveStation is returned when distances are requested without an
// active station.
var ErrNoActiveStation = eris.New("routing: no active station; call Activate for a station before evaluating distances")

// Active is a station resolved onto the road network.
type Active struct {
	Station station.Station
	Node    locator.NodeRef
}

// Activate snaps s to its nearest road node.
func Activate(s station.Station, loc *locator.Locator) Active {
	node := loc.SnapCoord(s.Lon, s.Lat)
	if !node.Valid {
		zap.L().Warn("routing: station did not snap to the road network; it will be unreachable",
			zap.String("station", s.ID),
			zap.Float64("lat", s.Lat),
			zap.Float64("lon", s.Lon),
		)
	}
	return Active{Station: s, Node: node}
}

// Evaluator answers distance queries for one active station. It runs a
// single shortest-path search from the station node up front, so each
// (station, target) pair costs one lookup.
type Evaluator struct {
	active Active
	tree   roadnet.PathTree
}

// NewEvaluator prepares shortest paths from active's node over g.
func NewEvaluator(g *roadnet.Graph, active *Active) (*Evaluator, error) {
	if active == nil {
		return nil, ErrNoActiveStation
	}
	e := &Evaluator{active: *active}
	if active.Node.Valid {
		e.tree = g.ShortestFrom(active.Node.ID)
	}
	return e, nil
}

// Station returns the evaluator's station.
func (e *Evaluator) Station() station.Station { return e.active.Station }

// Evaluate returns the road distance from the station to target. A null
// target is Unreachable, then capability and activation date are checked,
// then the path.
func (e *Evaluator) Evaluate(target locator.NodeRef, bucket station.Bucket, at time.Time) Result {
	if !target.Valid {
		return Unreachable()
	}
	if reason := e.active.Station.Eligibility(bucket, at); reason != station.Eligible {
		return Ineligible(reason)
	}
	if !e.active.Node.Valid {
		return Unreachable()
	}
	meters, ok := e.tree.MetersTo(target.ID)
	if !ok {
		return Unreachable()
	}
	return Distance(meters * MetersToMiles)
}
