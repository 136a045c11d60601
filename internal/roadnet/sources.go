package roadnet

import (
	"context"
	"path/filepath"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/afd-analytics/stationdist/internal/fetcher"
	"github.com/afd-analytics/stationdist/internal/tiger"
	"github.com/afd-analytics/stationdist/pkg/osm"
)

// Source fetches the raw road network around a place.
type Source interface {
	Name() string
	Fetch(ctx context.Context, place string, bufferMeters float64) (*Graph, error)
}

// Geocoder resolves a place name to its boundary.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (*osm.Place, error)
}

// FromOSM builds a graph from an Overpass response.
func FromOSM(resp *osm.Response) (*Graph, BuildStats, error) {
	coords := make(map[int64]Coord)
	var ways []Way
	for _, e := range resp.Elements {
		switch e.Type {
		case "node":
			coords[e.ID] = Coord{Lon: e.Lon, Lat: e.Lat}
		case "way":
			ways = append(ways, Way{
				ID:        e.ID,
				Nodes:     e.Nodes,
				Highway:   e.Tags["highway"],
				Direction: ParseOneway(e.Tags),
			})
		}
	}
	return FromWays(coords, ways)
}

// OSMSource downloads drivable roads from Overpass inside the buffered
// Nominatim boundary of the place.
type OSMSource struct {
	client *osm.Client
}

// NewOSMSource returns a Source backed by c.
func NewOSMSource(c *osm.Client) *OSMSource {
	return &OSMSource{client: c}
}

// Name implements Source.
func (s *OSMSource) Name() string { return "osm" }

// Fetch implements Source.
func (s *OSMSource) Fetch(ctx context.Context, place string, bufferMeters float64) (*Graph, error) {
	p, err := s.client.Geocode(ctx, place)
	if err != nil {
		return nil, err
	}
	bound := osm.BufferedBound(p.Bound, bufferMeters)

	resp, err := s.client.Roads(ctx, bound)
	if err != nil {
		return nil, err
	}
	g, _, err := FromOSM(resp)
	return g, err
}

// FromTIGER builds a graph from TIGER roads. When clip is non-nil, road parts
// that do not touch it are dropped.
func FromTIGER(roads []tiger.Road, clip *orb.Bound) (*Graph, BuildStats, error) {
	var lines []Polyline
	for _, r := range roads {
		for _, part := range r.Parts {
			if clip != nil && !clip.Intersects(part.Bound()) {
				continue
			}
			pts := make([]Coord, len(part))
			for i, p := range part {
				pts[i] = Coord{Lon: p.Lon(), Lat: p.Lat()}
			}
			lines = append(lines, Polyline{Points: pts, Highway: r.Highway()})
		}
	}
	return FromPolylines(lines)
}

// TIGERSource builds the network from Census county road shapefiles. TIGER
// carries no one-way information, so every road is two-way.
type TIGERSource struct {
	fetcher  fetcher.Fetcher
	geocoder Geocoder
	urls     []string
	dir      string
}

// NewTIGERSource returns a Source reading the county ZIPs at urls. The
// geocoder may be nil, in which case whole counties are used.
func NewTIGERSource(f fetcher.Fetcher, geocoder Geocoder, urls []string, dir string) *TIGERSource {
	return &TIGERSource{fetcher: f, geocoder: geocoder, urls: urls, dir: dir}
}

// Name implements Source.
func (s *TIGERSource) Name() string { return "tiger" }

// Fetch implements Source.
func (s *TIGERSource) Fetch(ctx context.Context, place string, bufferMeters float64) (*Graph, error) {
	if len(s.urls) == 0 {
		return nil, eris.New("roadnet: no TIGER road files configured")
	}

	var clip *orb.Bound
	if s.geocoder != nil {
		p, err := s.geocoder.Geocode(ctx, place)
		if err != nil {
			return nil, err
		}
		b := osm.BufferedBound(p.Bound, bufferMeters)
		clip = &b
	}

	var roads []tiger.Road
	for _, u := range s.urls {
		shpPath, err := tiger.Download(ctx, s.fetcher, u, filepath.Join(s.dir, "tiger"))
		if err != nil {
			return nil, err
		}
		rs, err := tiger.ParseRoads(shpPath)
		if err != nil {
			return nil, err
		}
		roads = append(roads, rs...)
	}

	g, stats, err := FromTIGER(roads, clip)
	if err != nil {
		return nil, err
	}
	zap.L().Info("roadnet: built graph from TIGER roads",
		zap.Int("files", len(s.urls)),
		zap.Int("roads", len(roads)),
		zap.Int("nodes", stats.Nodes),
		zap.Int("edges", stats.Edges),
	)
	return g, nil
}
