package roadnet

import (
	"math"
	"strings"

	"github.com/golang/geo/s2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// EarthRadiusMeters is the mean earth radius used for edge lengths.
const EarthRadiusMeters = 6371009.0

// Coord is a WGS84 position in degrees.
type Coord struct {
	Lon float64
	Lat float64
}

// Direction controls which way traffic may travel along a way.
type Direction int

const (
	// BothWays adds edges in both directions.
	BothWays Direction = iota
	// Forward adds edges in node order only.
	Forward
	// Backward adds edges against node order only.
	Backward
)

// Way is an ordered run of node references with a travel direction.
type Way struct {
	ID        int64
	Nodes     []int64
	Highway   string
	Direction Direction
}

// nonDrivable lists highway values that fire apparatus cannot use.
var nonDrivable = map[string]bool{
	"footway":      true,
	"path":         true,
	"cycleway":     true,
	"steps":        true,
	"pedestrian":   true,
	"bridleway":    true,
	"corridor":     true,
	"elevator":     true,
	"escalator":    true,
	"proposed":     true,
	"construction": true,
	"abandoned":    true,
	"platform":     true,
	"raceway":      true,
	"bus_guideway": true,
}

// Drivable reports whether a highway classification belongs in the routing graph.
func Drivable(highway string) bool {
	return highway != "" && !nonDrivable[highway]
}

// ParseOneway derives a travel direction from OSM tags.
func ParseOneway(tags map[string]string) Direction {
	switch strings.ToLower(tags["oneway"]) {
	case "yes", "true", "1":
		return Forward
	case "-1", "reverse":
		return Backward
	case "no", "false", "0":
		return BothWays
	}
	if tags["junction"] == "roundabout" || tags["highway"] == "motorway" {
		return Forward
	}
	return BothWays
}

// GreatCircle returns the distance in meters between two coordinates.
func GreatCircle(a, b Coord) float64 {
	angle := s2.LatLngFromDegrees(a.Lat, a.Lon).Distance(s2.LatLngFromDegrees(b.Lat, b.Lon))
	return angle.Radians() * EarthRadiusMeters
}

// BuildStats summarizes a graph build.
type BuildStats struct {
	Ways        int
	SkippedWays int
	Nodes       int
	Edges       int
}

// FromWays builds an unsimplified graph with one edge per consecutive node pair.
// Ways referencing unknown nodes have those references skipped.
func FromWays(coords map[int64]Coord, ways []Way) (*Graph, BuildStats, error) {
	g := New()
	var stats BuildStats

	for _, w := range ways {
		if !Drivable(w.Highway) || len(w.Nodes) < 2 {
			stats.SkippedWays++
			continue
		}

		refs := make([]int64, 0, len(w.Nodes))
		for _, id := range w.Nodes {
			c, ok := coords[id]
			if !ok || math.IsNaN(c.Lon) || math.IsNaN(c.Lat) {
				continue
			}
			g.AddNode(Node{ID: id, Lon: c.Lon, Lat: c.Lat})
			refs = append(refs, id)
		}
		if len(refs) < 2 {
			stats.SkippedWays++
			continue
		}

		for i := 0; i+1 < len(refs); i++ {
			a, b := refs[i], refs[i+1]
			length := GreatCircle(coords[a], coords[b])
			if w.Direction != Backward {
				if err := g.AddEdge(a, b, length); err != nil {
					return nil, stats, eris.Wrapf(err, "roadnet: way %d", w.ID)
				}
			}
			if w.Direction != Forward {
				if err := g.AddEdge(b, a, length); err != nil {
					return nil, stats, eris.Wrapf(err, "roadnet: way %d", w.ID)
				}
			}
		}
		stats.Ways++
	}

	stats.Nodes = g.NumNodes()
	stats.Edges = g.NumEdges()

	zap.L().Debug("roadnet: built graph from ways",
		zap.Int("ways", stats.Ways),
		zap.Int("skipped_ways", stats.SkippedWays),
		zap.Int("nodes", stats.Nodes),
		zap.Int("edges", stats.Edges),
	)

	return g, stats, nil
}

// Polyline is an untagged line with coordinates only (e.g. a TIGER road).
type Polyline struct {
	Points    []Coord
	Highway   string
	Direction Direction
}

// FromPolylines builds a graph from lines that share vertices by coordinate.
// Vertices are keyed on coordinates rounded to 1e-7 degrees and numbered in
// first-seen order, so identical input yields identical ids.
func FromPolylines(lines []Polyline) (*Graph, BuildStats, error) {
	ids := make(map[[2]int64]int64)
	coords := make(map[int64]Coord)
	ways := make([]Way, 0, len(lines))
	var next int64 = 1

	for i, line := range lines {
		w := Way{ID: int64(i + 1), Highway: line.Highway, Direction: line.Direction}
		for _, c := range line.Points {
			key := [2]int64{int64(math.Round(c.Lon * 1e7)), int64(math.Round(c.Lat * 1e7))}
			id, ok := ids[key]
			if !ok {
				id = next
				next++
				ids[key] = id
				coords[id] = c
			}
			w.Nodes = append(w.Nodes, id)
		}
		ways = append(ways, w)
	}

	return FromWays(coords, ways)
}
