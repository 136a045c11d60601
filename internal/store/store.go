// Package store records batch routing runs.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/afd-analytics/stationdist/internal/routing"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

// Run states.
const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one batch routing invocation.
type Run struct {
	ID         string           `json:"id"`
	Input      string           `json:"input"`
	Output     string           `json:"output"`
	Status     RunStatus        `json:"status"`
	Bypassed   bool             `json:"bypassed"`
	Summary    *routing.Summary `json:"summary,omitempty"`
	Error      string           `json:"error,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
}

// NewRun describes a run about to start.
type NewRun struct {
	Input    string
	Output   string
	Bypassed bool
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status RunStatus `json:"status,omitempty"`
	Limit  int       `json:"limit,omitempty"`
	Offset int       `json:"offset,omitempty"`
}

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = eris.New("store: run not found")

// Store persists the run ledger.
type Store interface {
	CreateRun(ctx context.Context, in NewRun) (*Run, error)
	CompleteRun(ctx context.Context, runID string, summary routing.Summary) error
	FailRun(ctx context.Context, runID string, cause error) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the ledger for driver ("sqlite" or "postgres") and
// applies the schema.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	var (
		s   Store
		err error
	)
	switch driver {
	case "", "sqlite":
		s, err = NewSQLite(dsn)
	case "postgres":
		s, err = NewPostgres(ctx, dsn, nil)
	default:
		return nil, eris.Errorf("store: unsupported driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func listLimit(f RunFilter) int {
	if f.Limit <= 0 {
		return 100
	}
	return f.Limit
}
