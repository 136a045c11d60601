package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/afd-analytics/stationdist/internal/routing"
)

// Pool is the subset of pgxpool.Pool used by PostgresStore.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	input       TEXT NOT NULL,
	output      TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	bypassed    BOOLEAN NOT NULL DEFAULT false,
	summary     JSONB,
	error       TEXT,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC);
`

// Migrate creates the runs table.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, in NewRun) (*Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, input, output, status, bypassed, started_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, in.Input, in.Output, string(RunStatusRunning), in.Bypassed, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return &Run{
		ID:        id,
		Input:     in.Input,
		Output:    in.Output,
		Status:    RunStatusRunning,
		Bypassed:  in.Bypassed,
		StartedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, summary routing.Summary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summary")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET summary = $1, status = $2, finished_at = $3 WHERE id = $4`,
		summaryJSON, string(RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	return checkTag(tag, runID)
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET error = $1, status = $2, finished_at = $3 WHERE id = $4`,
		msg, string(RunStatusFailed), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	return checkTag(tag, runID)
}

const postgresRunColumns = `id, input, output, status, bypassed, summary, COALESCE(error, ''), started_at, finished_at`

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+postgresRunColumns+` FROM runs WHERE id = $1`, runID)
	r, err := scanPostgresRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrRunNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT ` + postgresRunColumns + ` FROM runs WHERE ($1 = '' OR status = $1) ORDER BY started_at DESC LIMIT $2 OFFSET $3`
	rows, err := s.pool.Query(ctx, query, string(filter.Status), listLimit(filter), max(filter.Offset, 0))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func checkTag(tag pgconn.CommandTag, id string) error {
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrRunNotFound, "run %s", id)
	}
	return nil
}

func scanPostgresRun(row pgx.Row) (*Run, error) {
	var r Run
	var status string
	var summaryJSON []byte
	if err := row.Scan(&r.ID, &r.Input, &r.Output, &status, &r.Bypassed,
		&summaryJSON, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
		return nil, err
	}
	r.Status = RunStatus(status)
	if len(summaryJSON) > 0 {
		r.Summary = &routing.Summary{}
		if err := json.Unmarshal(summaryJSON, r.Summary); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal summary")
		}
	}
	return &r, nil
}
