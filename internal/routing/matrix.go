package routing

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/afd-analytics/stationdist/internal/locator"
	"github.com/afd-analytics/stationdist/internal/roadnet"
	"github.com/afd-analytics/stationdist/internal/station"
)

// Record is one incident already snapped to the road network.
type Record struct {
	Node   locator.NodeRef
	Bucket station.Bucket
	At     time.Time
}

// ColumnName returns the output column for a station.
func ColumnName(stationID string) string {
	return fmt.Sprintf("Distance to %s in miles", stationID)
}

// Matrix holds one result per (row, station). Stations are in registry
// declaration order.
type Matrix struct {
	Stations []string
	Cells    [][]Result
}

// Rows returns the number of incident rows.
func (m *Matrix) Rows() int { return len(m.Cells) }

// Column returns every row's result for station index j.
func (m *Matrix) Column(j int) []Result {
	out := make([]Result, len(m.Cells))
	for i, row := range m.Cells {
		out[i] = row[j]
	}
	return out
}

// MatrixOptions tunes BuildMatrix.
type MatrixOptions struct {
	// Concurrency is the number of station columns computed at once.
	Concurrency int
	// ProgressEvery logs progress after this many cells. Zero picks a
	// cadence of roughly one line per station.
	ProgressEvery int64
	// OnProgress, if set, is called after every cell.
	OnProgress func(done, total int64)
}

// Progress counts evaluated cells across the whole station by row space.
type Progress struct {
	total int64
	every int64
	done  atomic.Int64
	log   *zap.Logger
	hook  func(done, total int64)
}

// NewProgress returns a counter over total cells that logs every n.
func NewProgress(total, every int64, hook func(done, total int64)) *Progress {
	if every <= 0 {
		every = max(total/10, 1)
	}
	return &Progress{
		total: total,
		every: every,
		log:   zap.L().With(zap.String("component", "routing.matrix")),
		hook:  hook,
	}
}

// Add advances the counter by n and returns the new count.
func (p *Progress) Add(n int64) int64 {
	done := p.done.Add(n)
	if p.hook != nil {
		p.hook(done, p.total)
	}
	if done%p.every == 0 || done == p.total {
		p.log.Info("progress",
			zap.Int64("processed", done),
			zap.Int64("total", p.total),
		)
	}
	return done
}

// Done returns the cells evaluated so far.
func (p *Progress) Done() int64 { return p.done.Load() }

// BuildMatrix fills one column per station: each station is activated, its
// shortest-path tree built, and every record evaluated against it. Columns
// may be computed concurrently; the output does not depend on Concurrency.
func BuildMatrix(
	ctx context.Context,
	g *roadnet.Graph,
	loc *locator.Locator,
	reg *station.Registry,
	records []Record,
	opts MatrixOptions,
) (*Matrix, error) {
	stations := reg.All()
	m := &Matrix{
		Stations: reg.IDs(),
		Cells:    make([][]Result, len(records)),
	}
	for i := range m.Cells {
		m.Cells[i] = make([]Result, len(stations))
	}
	if len(stations) == 0 || len(records) == 0 {
		return m, nil
	}

	progress := NewProgress(int64(len(stations)*len(records)), opts.ProgressEvery, opts.OnProgress)

	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(max(opts.Concurrency, 1))
	for j, st := range stations {
		eg.Go(func() error {
			active := Activate(st, loc)
			ev, err := NewEvaluator(g, &active)
			if err != nil {
				return err
			}
			for i, rec := range records {
				if i%1024 == 0 && ectx.Err() != nil {
					return eris.Wrapf(ectx.Err(), "routing: station %s", st.ID)
				}
				m.Cells[i][j] = ev.Evaluate(rec.Node, rec.Bucket, rec.At)
				progress.Add(1)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return m, nil
}
