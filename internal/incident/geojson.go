package incident

import (
	"encoding/json"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
)

// WriteGeoJSON writes one point feature per row with a usable location.
// Every column becomes a property; distance columns are numbers, the
// walk-up flag is a boolean and empty cells are null.
func WriteGeoJSON(w io.Writer, t *Table, cols Columns) error {
	lon, lat := t.Index(cols.Lon), t.Index(cols.Lat)
	if lon < 0 || lat < 0 {
		return eris.Errorf("incident: geojson output needs %q and %q columns", cols.Lon, cols.Lat)
	}

	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, t.Len())}
	skipped := 0
	for i := range t.Rows {
		x, y := parseCoord(t.Cell(i, lon)), parseCoord(t.Cell(i, lat))
		if math.IsNaN(x) || math.IsNaN(y) {
			skipped++
			continue
		}
		props := make(map[string]interface{}, len(t.Header))
		for j, h := range t.Header {
			props[h] = propertyValue(h, t.Cell(i, j))
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         strconv.Itoa(i),
			Geometry:   geom.NewPointFlat(geom.XY, []float64{x, y}),
			Properties: props,
		})
	}
	if skipped > 0 {
		zap.L().Warn("rows without a location left out of geojson",
			zap.String("component", "incident"),
			zap.Int("rows", skipped),
		)
	}

	enc := json.NewEncoder(w)
	return eris.Wrap(enc.Encode(&fc), "geojson: encode")
}

func propertyValue(column, cell string) interface{} {
	if cell == "" {
		return nil
	}
	switch {
	case column == WalkupColumn:
		if b, err := strconv.ParseBool(cell); err == nil {
			return b
		}
	case strings.HasPrefix(column, "Distance to ") && strings.HasSuffix(column, " in miles"):
		if v, err := strconv.ParseFloat(cell, 64); err == nil {
			return v
		}
	}
	return cell
}
