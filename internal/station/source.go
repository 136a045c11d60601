package station

import (
	"context"
	"os"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Source loads the station registry.
type Source interface {
	Load(ctx context.Context) (*Registry, error)
}

// fileRecord mirrors one entry of the station file.
type fileRecord struct {
	GPS          []float64 `yaml:"gps"`
	HasEMS       bool      `yaml:"hasEMS"`
	HasFire      bool      `yaml:"hasFire"`
	DateIncluded string    `yaml:"DateIncluded"`
}

// FileSource reads a YAML mapping of station id to record:
//
//	S01:
//	  gps: [30.4521, -97.6200]   # lat, lon
//	  hasEMS: true
//	  hasFire: true
//	  DateIncluded: 01-01-2000
//
// Stations keep the order they are written in.
type FileSource struct {
	Path string
}

// Load implements Source.
func (f FileSource) Load(_ context.Context) (*Registry, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "station: read %s", f.Path)
	}
	stations, err := ParseYAML(data)
	if err != nil {
		return nil, eris.Wrapf(err, "station: parse %s", f.Path)
	}
	reg, err := NewRegistry(stations)
	if err != nil {
		return nil, err
	}
	zap.L().Info("station: loaded registry", zap.String("path", f.Path), zap.Int("stations", reg.Len()))
	return reg, nil
}

// ParseYAML decodes the station file format, preserving document order.
func ParseYAML(data []byte) ([]Station, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "station: decode yaml")
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, eris.New("station: expected a mapping of station id to record")
	}

	out := make([]Station, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		id := root.Content[i].Value
		var rec fileRecord
		if err := root.Content[i+1].Decode(&rec); err != nil {
			return nil, eris.Wrapf(err, "station: decode %s", id)
		}
		if len(rec.GPS) != 2 {
			return nil, eris.Errorf("station: %s gps must be [lat, lon]", id)
		}
		activeFrom, err := ParseDate(rec.DateIncluded)
		if err != nil {
			return nil, eris.Wrapf(err, "station: %s", id)
		}
		out = append(out, Station{
			ID:         id,
			Lat:        rec.GPS[0],
			Lon:        rec.GPS[1],
			HasEMS:     rec.HasEMS,
			HasFire:    rec.HasFire,
			ActiveFrom: activeFrom,
		})
	}
	return out, nil
}

// Pool is the subset of pgxpool.Pool used by PostgresSource.
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresSource reads stations from a table with columns id, lat, lon,
// has_ems, has_fire and date_included (a date). Rows are ordered by id.
type PostgresSource struct {
	pool  Pool
	table string
}

// NewPostgresSource returns a PostgresSource over table, which may be
// schema-qualified.
func NewPostgresSource(pool Pool, table string) *PostgresSource {
	if table == "" {
		table = "stations"
	}
	return &PostgresSource{pool: pool, table: table}
}

// Load implements Source.
func (p *PostgresSource) Load(ctx context.Context) (*Registry, error) {
	table := pgx.Identifier(strings.Split(p.table, ".")).Sanitize()
	query := `SELECT id, lat, lon, has_ems, has_fire, COALESCE(to_char(date_included, 'MM-DD-YYYY'), '')
		FROM ` + table + ` ORDER BY id`

	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "station: query stations")
	}
	defer rows.Close()

	var stations []Station
	for rows.Next() {
		var s Station
		var date string
		if err := rows.Scan(&s.ID, &s.Lat, &s.Lon, &s.HasEMS, &s.HasFire, &date); err != nil {
			return nil, eris.Wrap(err, "station: scan station")
		}
		if s.ActiveFrom, err = ParseDate(date); err != nil {
			return nil, eris.Wrapf(err, "station: %s", s.ID)
		}
		stations = append(stations, s)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "station: iterate stations")
	}

	reg, err := NewRegistry(stations)
	if err != nil {
		return nil, err
	}
	zap.L().Info("station: loaded registry", zap.String("table", p.table), zap.Int("stations", reg.Len()))
	return reg, nil
}
