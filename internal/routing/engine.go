package routing

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/afd-analytics/stationdist/internal/locator"
	"github.com/afd-analytics/stationdist/internal/roadnet"
	"github.com/afd-analytics/stationdist/internal/station"
)

// Options configures an Engine.
type Options struct {
	WalkupMiles   float64
	Concurrency   int
	ProgressEvery int64
}

// Request is one incident location before snapping.
type Request struct {
	Lon    float64
	Lat    float64
	Bucket string
	At     time.Time
}

// Summary counts the outcome of a run.
type Summary struct {
	Rows       int `json:"rows"`
	Stations   int `json:"stations"`
	Unmatched  int `json:"unmatched"`
	Assigned   int `json:"assigned"`
	Walkups    int `json:"walkups"`
	Unassigned int `json:"unassigned"`
}

// Report is the result of a batch run.
type Report struct {
	Matrix     *Matrix
	Selections []Selection
	Summary    Summary
	// Bypassed reports a run that skipped routing; every output cell is null.
	Bypassed bool
}

// Engine bundles the road graph, locator and registry for one run or one
// server lifetime. It replaces any process-wide state: tests build an Engine
// per fixture.
type Engine struct {
	graph *roadnet.Graph
	loc   *locator.Locator
	reg   *station.Registry
	opts  Options

	mu    sync.Mutex
	evals map[string]*Evaluator
}

// NewEngine returns an Engine. Zero options take defaults.
func NewEngine(g *roadnet.Graph, loc *locator.Locator, reg *station.Registry, opts Options) *Engine {
	if opts.WalkupMiles <= 0 {
		opts.WalkupMiles = DefaultWalkupMiles
	}
	return &Engine{graph: g, loc: loc, reg: reg, opts: opts, evals: make(map[string]*Evaluator)}
}

// Registry returns the station registry.
func (e *Engine) Registry() *station.Registry { return e.reg }

// Snap resolves every request to a road node. Rows with an unrecognized
// bucket or unusable coordinate get the null node.
func (e *Engine) Snap(reqs []Request) []Record {
	out := make([]Record, len(reqs))
	for i, r := range reqs {
		bucket, _ := station.ParseBucket(r.Bucket)
		out[i] = Record{
			Node:   e.loc.Snap(r.Lon, r.Lat, bucket),
			Bucket: bucket,
			At:     r.At,
		}
	}
	return out
}

// Run snaps the requests, builds the distance matrix and selects the closest
// station for every row.
func (e *Engine) Run(ctx context.Context, reqs []Request) (*Report, error) {
	log := zap.L().With(zap.String("component", "routing.engine"))
	records := e.Snap(reqs)

	log.Info("routing all stations",
		zap.Int("rows", len(records)),
		zap.Int("stations", e.reg.Len()),
		zap.Int("concurrency", max(e.opts.Concurrency, 1)),
	)
	m, err := BuildMatrix(ctx, e.graph, e.loc, e.reg, records, MatrixOptions{
		Concurrency:   e.opts.Concurrency,
		ProgressEvery: e.opts.ProgressEvery,
	})
	if err != nil {
		return nil, err
	}

	sel := SelectClosest(m, e.opts.WalkupMiles)
	rep := &Report{Matrix: m, Selections: sel, Summary: summarize(records, sel, e.reg.Len())}
	log.Info("routing complete",
		zap.Int("assigned", rep.Summary.Assigned),
		zap.Int("walkups", rep.Summary.Walkups),
		zap.Int("unmatched", rep.Summary.Unmatched),
	)
	return rep, nil
}

// BypassReport returns an empty report for n rows: distance columns exist
// but every value is null.
func BypassReport(reg *station.Registry, n int) *Report {
	m := &Matrix{Stations: reg.IDs(), Cells: make([][]Result, n)}
	for i := range m.Cells {
		m.Cells[i] = make([]Result, reg.Len())
	}
	return &Report{
		Matrix:     m,
		Selections: make([]Selection, n),
		Summary:    Summary{Rows: n, Stations: reg.Len(), Unassigned: n},
		Bypassed:   true,
	}
}

func summarize(records []Record, sel []Selection, stations int) Summary {
	s := Summary{Rows: len(records), Stations: stations}
	for i, r := range records {
		if !r.Node.Valid {
			s.Unmatched++
		}
		switch {
		case sel[i].Closest == nil:
			s.Unassigned++
		case sel[i].IsWalkup:
			s.Walkups++
			s.Assigned++
		default:
			s.Assigned++
		}
	}
	return s
}

// StationDistance is one station's result for a point query.
type StationDistance struct {
	StationID string
	Result    Result
}

// PointResult answers a single-location query.
type PointResult struct {
	Node      locator.NodeRef
	Distances []StationDistance
	Selection Selection
}

// PointQuery computes the distance from every station to one location.
// Shortest-path trees are built once per station and reused across calls.
func (e *Engine) PointQuery(ctx context.Context, lon, lat float64, bucket station.Bucket, at time.Time) (*PointResult, error) {
	evals, err := e.evaluators(ctx)
	if err != nil {
		return nil, err
	}

	target := e.loc.SnapCoord(lon, lat)
	res := &PointResult{Node: target, Distances: make([]StationDistance, len(evals))}
	row := make([]Result, len(evals))
	for j, ev := range evals {
		row[j] = ev.Evaluate(target, bucket, at)
		res.Distances[j] = StationDistance{StationID: ev.Station().ID, Result: row[j]}
	}
	res.Selection = selectRow(e.reg.IDs(), row, e.opts.WalkupMiles)
	return res, nil
}

// Warm builds every station's shortest-path tree ahead of the first query.
func (e *Engine) Warm(ctx context.Context) error {
	_, err := e.evaluators(ctx)
	return err
}

func (e *Engine) evaluators(ctx context.Context) ([]*Evaluator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stations := e.reg.All()

	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*Evaluator, len(stations))
	var eg errgroup.Group
	eg.SetLimit(max(e.opts.Concurrency, 1))
	for j, st := range stations {
		if ev, ok := e.evals[st.ID]; ok {
			out[j] = ev
			continue
		}
		eg.Go(func() error {
			active := Activate(st, e.loc)
			ev, err := NewEvaluator(e.graph, &active)
			if err != nil {
				return err
			}
			out[j] = ev
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	for j, st := range stations {
		e.evals[st.ID] = out[j]
	}
	return out, nil
}
