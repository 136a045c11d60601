package roadnet

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Cache file names under the cache directory.
const (
	RawFile   = "roads.db"
	FinalFile = "roadsProjected.db"
)

// Meta describes how a cached graph was produced.
type Meta struct {
	Place        string    `json:"place"`
	BufferMeters float64   `json:"buffer_meters"`
	Source       string    `json:"source"`
	Stage        string    `json:"stage"`
	BuiltAt      time.Time `json:"built_at"`
}

// Cache persists graphs as SQLite files with EWKB node geometry.
type Cache struct {
	dir string
}

// NewCache returns a cache rooted at dir.
func NewCache(dir string) *Cache {
	return &Cache{dir: dir}
}

// Path returns the absolute location of a cache file.
func (c *Cache) Path(name string) string {
	return filepath.Join(c.dir, name)
}

// Exists reports whether a non-empty cache file is present.
func (c *Cache) Exists(name string) bool {
	info, err := os.Stat(c.Path(name))
	return err == nil && info.Size() > 0
}

const cacheSchema = `
CREATE TABLE meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE nodes (
	id   INTEGER PRIMARY KEY,
	geom BLOB NOT NULL
);

CREATE TABLE edges (
	src    INTEGER NOT NULL,
	dst    INTEGER NOT NULL,
	length REAL NOT NULL,
	PRIMARY KEY (src, dst)
);
`

// Save writes g to the named cache file, replacing any previous file
// atomically. Only geographic positions are stored; callers reproject on load.
func (c *Cache) Save(ctx context.Context, name string, g *Graph, meta Meta) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return eris.Wrap(err, "roadnet: create cache dir")
	}

	final := c.Path(name)
	tmp := final + ".tmp"
	_ = os.Remove(tmp)

	db, err := sql.Open("sqlite", tmp)
	if err != nil {
		return eris.Wrap(err, "roadnet: open cache")
	}

	if err := writeGraph(ctx, db, g, meta); err != nil {
		_ = db.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := db.Close(); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrap(err, "roadnet: close cache")
	}

	if err := os.Rename(tmp, final); err != nil {
		return eris.Wrap(err, "roadnet: publish cache")
	}

	zap.L().Info("roadnet: saved graph",
		zap.String("path", final),
		zap.String("stage", meta.Stage),
		zap.Int("nodes", g.NumNodes()),
		zap.Int("edges", g.NumEdges()),
	)
	return nil
}

func writeGraph(ctx context.Context, db *sql.DB, g *Graph, meta Meta) error {
	if _, err := db.ExecContext(ctx, cacheSchema); err != nil {
		return eris.Wrap(err, "roadnet: create cache schema")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "roadnet: begin cache tx")
	}
	defer tx.Rollback() //nolint:errcheck

	for k, v := range map[string]string{
		"place":         meta.Place,
		"buffer_meters": strconv.FormatFloat(meta.BufferMeters, 'f', -1, 64),
		"source":        meta.Source,
		"stage":         meta.Stage,
		"built_at":      meta.BuiltAt.UTC().Format(time.RFC3339),
	} {
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return eris.Wrapf(err, "roadnet: insert meta %s", k)
		}
	}

	nodeStmt, err := tx.PrepareContext(ctx, `INSERT INTO nodes (id, geom) VALUES (?, ?)`)
	if err != nil {
		return eris.Wrap(err, "roadnet: prepare node insert")
	}
	defer nodeStmt.Close() //nolint:errcheck

	for _, n := range g.Nodes() {
		pt := geom.NewPointFlat(geom.XY, []float64{n.Lon, n.Lat}).SetSRID(4326)
		data, err := ewkb.Marshal(pt, ewkb.NDR)
		if err != nil {
			return eris.Wrapf(err, "roadnet: encode node %d", n.ID)
		}
		if _, err := nodeStmt.ExecContext(ctx, n.ID, data); err != nil {
			return eris.Wrapf(err, "roadnet: insert node %d", n.ID)
		}
	}

	edgeStmt, err := tx.PrepareContext(ctx, `INSERT INTO edges (src, dst, length) VALUES (?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "roadnet: prepare edge insert")
	}
	defer edgeStmt.Close() //nolint:errcheck

	for _, e := range g.Edges() {
		if _, err := edgeStmt.ExecContext(ctx, e.From, e.To, e.Length); err != nil {
			return eris.Wrapf(err, "roadnet: insert edge %d->%d", e.From, e.To)
		}
	}

	return eris.Wrap(tx.Commit(), "roadnet: commit cache")
}

// Load reads the named cache file. The returned graph is unprojected.
func (c *Cache) Load(ctx context.Context, name string) (*Graph, Meta, error) {
	path := c.Path(name)
	if !c.Exists(name) {
		return nil, Meta{}, eris.Errorf("roadnet: cache file %s not found", path)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, Meta{}, eris.Wrap(err, "roadnet: open cache")
	}
	defer db.Close() //nolint:errcheck

	meta, err := readMeta(ctx, db)
	if err != nil {
		return nil, Meta{}, err
	}

	g := New()

	rows, err := db.QueryContext(ctx, `SELECT id, geom FROM nodes ORDER BY id`)
	if err != nil {
		return nil, Meta{}, eris.Wrap(err, "roadnet: query nodes")
	}
	for rows.Next() {
		var id int64
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			_ = rows.Close()
			return nil, Meta{}, eris.Wrap(err, "roadnet: scan node")
		}
		t, err := ewkb.Unmarshal(data)
		if err != nil {
			_ = rows.Close()
			return nil, Meta{}, eris.Wrapf(err, "roadnet: decode node %d", id)
		}
		pt, ok := t.(*geom.Point)
		if !ok {
			_ = rows.Close()
			return nil, Meta{}, eris.Errorf("roadnet: node %d geometry is %T, want point", id, t)
		}
		g.AddNode(Node{ID: id, Lon: pt.X(), Lat: pt.Y()})
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, Meta{}, eris.Wrap(err, "roadnet: iterate nodes")
	}
	_ = rows.Close()

	erows, err := db.QueryContext(ctx, `SELECT src, dst, length FROM edges ORDER BY src, dst`)
	if err != nil {
		return nil, Meta{}, eris.Wrap(err, "roadnet: query edges")
	}
	defer erows.Close() //nolint:errcheck
	for erows.Next() {
		var e Edge
		if err := erows.Scan(&e.From, &e.To, &e.Length); err != nil {
			return nil, Meta{}, eris.Wrap(err, "roadnet: scan edge")
		}
		if err := g.AddEdge(e.From, e.To, e.Length); err != nil {
			return nil, Meta{}, err
		}
	}
	if err := erows.Err(); err != nil {
		return nil, Meta{}, eris.Wrap(err, "roadnet: iterate edges")
	}

	return g, meta, nil
}

// ReadMeta returns only the metadata of the named cache file.
func (c *Cache) ReadMeta(ctx context.Context, name string) (Meta, error) {
	if !c.Exists(name) {
		return Meta{}, eris.Errorf("roadnet: cache file %s not found", c.Path(name))
	}
	db, err := sql.Open("sqlite", c.Path(name))
	if err != nil {
		return Meta{}, eris.Wrap(err, "roadnet: open cache")
	}
	defer db.Close() //nolint:errcheck
	return readMeta(ctx, db)
}

func readMeta(ctx context.Context, db *sql.DB) (Meta, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return Meta{}, eris.Wrap(err, "roadnet: query meta")
	}
	defer rows.Close() //nolint:errcheck

	var m Meta
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return Meta{}, eris.Wrap(err, "roadnet: scan meta")
		}
		switch k {
		case "place":
			m.Place = v
		case "buffer_meters":
			m.BufferMeters, _ = strconv.ParseFloat(v, 64)
		case "source":
			m.Source = v
		case "stage":
			m.Stage = v
		case "built_at":
			m.BuiltAt, _ = time.Parse(time.RFC3339, v)
		}
	}
	return m, eris.Wrap(rows.Err(), "roadnet: iterate meta")
}
