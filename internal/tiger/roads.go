package tiger

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Road is one TIGER/Line road feature. A feature may have several parts.
type Road struct {
	LinearID string
	Name     string
	MTFCC    string
	Parts    []orb.LineString
}

// mtfccHighway maps MAF/TIGER feature class codes onto OSM highway values so
// both sources share one drivability filter.
var mtfccHighway = map[string]string{
	"S1100": "motorway",
	"S1200": "primary",
	"S1400": "residential",
	"S1500": "track",
	"S1630": "motorway_link",
	"S1640": "service",
	"S1710": "footway",
	"S1720": "steps",
	"S1730": "service",
	"S1740": "service",
	"S1750": "service",
	"S1780": "service",
	"S1820": "cycleway",
	"S1830": "bridleway",
}

// Highway returns the OSM-style highway class for the road's MTFCC.
func (r Road) Highway() string {
	if h, ok := mtfccHighway[r.MTFCC]; ok {
		return h
	}
	return "unclassified"
}

// ParseRoads reads a TIGER roads shapefile. Records without polyline geometry
// are skipped.
func ParseRoads(shpPath string) ([]Road, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "tiger: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fieldIdx := make(map[string]int)
	for i, f := range reader.Fields() {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToUpper(name)] = i
	}
	attr := func(name string) string {
		idx, ok := fieldIdx[name]
		if !ok {
			return ""
		}
		return strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
	}

	var roads []Road
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		pl, ok := shape.(*shp.PolyLine)
		if !ok || pl == nil {
			skipped++
			continue
		}
		parts := polylineParts(pl)
		if len(parts) == 0 {
			skipped++
			continue
		}
		roads = append(roads, Road{
			LinearID: attr("LINEARID"),
			Name:     attr("FULLNAME"),
			MTFCC:    attr("MTFCC"),
			Parts:    parts,
		})
	}

	zap.L().Debug("tiger: parsed roads",
		zap.String("path", shpPath),
		zap.Int("roads", len(roads)),
		zap.Int("skipped", skipped),
	)
	return roads, nil
}

// polylineParts splits a shapefile polyline into its parts, dropping any
// part with fewer than two points.
func polylineParts(pl *shp.PolyLine) []orb.LineString {
	var out []orb.LineString
	for i := int32(0); i < pl.NumParts; i++ {
		start := pl.Parts[i]
		end := int32(len(pl.Points))
		if i+1 < pl.NumParts {
			end = pl.Parts[i+1]
		}
		if end-start < 2 {
			continue
		}
		ls := make(orb.LineString, 0, end-start)
		for _, p := range pl.Points[start:end] {
			ls = append(ls, orb.Point{p.X, p.Y})
		}
		out = append(out, ls)
	}
	return out
}
