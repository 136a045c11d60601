package incident

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/afd-analytics/stationdist/internal/routing"
)

// Columns names the input columns read by Requests.
type Columns struct {
	Lon    string `mapstructure:"lon_column"`
	Lat    string `mapstructure:"lat_column"`
	Bucket string `mapstructure:"bucket_column"`
	Time   string `mapstructure:"time_column"`
	// TimeLayout is tried before the built-in fallbacks.
	TimeLayout string `mapstructure:"time_layout"`
}

// DefaultColumns returns the column names used by the dispatch export.
func DefaultColumns() Columns {
	return Columns{
		Lon:        "X-Long",
		Lat:        "Y_Lat",
		Bucket:     "Bucket Type",
		Time:       "Earliest Time Phone Pickup AFD or EMS",
		TimeLayout: "2006-01-02 15:04:05",
	}
}

var fallbackLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"01/02/2006 15:04:05",
	"1/2/2006",
	"2006-01-02",
}

// ParseTime parses an incident timestamp with layout first, then common
// export layouts. Empty or unparseable input yields the zero time, which
// skips the activation-date check.
func ParseTime(s, layout string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if layout != "" {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	for _, l := range fallbackLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseCoord(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// Requests converts every row into a routing request. Unparseable
// coordinates become NaN so the row snaps to the null node. The location and
// bucket columns are required; the time column is optional.
func (t *Table) Requests(cols Columns) ([]routing.Request, error) {
	lon, lat, bucket := t.Index(cols.Lon), t.Index(cols.Lat), t.Index(cols.Bucket)
	for name, idx := range map[string]int{cols.Lon: lon, cols.Lat: lat, cols.Bucket: bucket} {
		if idx < 0 {
			return nil, eris.Errorf("incident: input has no %q column", name)
		}
	}

	log := zap.L().With(zap.String("component", "incident"))
	at := t.Index(cols.Time)
	if at < 0 {
		log.Warn("input has no time column; activation dates will not be checked",
			zap.String("column", cols.Time))
	}

	out := make([]routing.Request, t.Len())
	badTimes := 0
	for i := range t.Rows {
		r := routing.Request{
			Lon:    parseCoord(t.Cell(i, lon)),
			Lat:    parseCoord(t.Cell(i, lat)),
			Bucket: strings.ToUpper(strings.TrimSpace(t.Cell(i, bucket))),
		}
		if at >= 0 {
			raw := t.Cell(i, at)
			ts, ok := ParseTime(raw, cols.TimeLayout)
			if !ok && strings.TrimSpace(raw) != "" {
				badTimes++
			}
			r.At = ts
		}
		out[i] = r
	}
	if badTimes > 0 {
		log.Warn("unparseable incident times treated as missing", zap.Int("rows", badTimes))
	}
	return out, nil
}
