package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/coa-cli/internal/db"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
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
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := db.Open(ctx, pgxCfg, db.DefaultRetryConfig())
	if err != nil {
		return nil, eris.Wrap(err, "postgres: open pool")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Close does not close it.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS coa_runs (
	id         TEXT PRIMARY KEY,
	location   TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	failed     INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS coa_run_pairs (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL REFERENCES coa_runs(id),
	travel_time TEXT NOT NULL,
	land_use    TEXT NOT NULL,
	output      TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'running',
	row_count   INTEGER NOT NULL DEFAULT 0,
	error       TEXT,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_coa_runs_status ON coa_runs(status);
CREATE INDEX IF NOT EXISTS idx_coa_run_pairs_run_id ON coa_run_pairs(run_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) BeginRun(ctx context.Context, runID, location string) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO coa_runs (id, location, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		runID, location, string(StatusRunning), now, now,
	)
	return eris.Wrapf(err, "postgres: insert run %s", runID)
}

func (s *PostgresStore) EndRun(ctx context.Context, runID string, failed int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE coa_runs SET status = $1, failed = $2, updated_at = $3 WHERE id = $4`,
		string(runStatus(failed)), failed, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: end run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) BeginPair(ctx context.Context, runID, travelTime, landUse, output string) (string, error) {
	id := uuid.New().String()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO coa_run_pairs (id, run_id, travel_time, land_use, output, status, started_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, runID, travelTime, landUse, output, string(StatusRunning), time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrapf(err, "postgres: insert pair for run %s", runID)
	}
	return id, nil
}

func (s *PostgresStore) EndPair(ctx context.Context, pairID string, rows int, pairErr error) error {
	status, msg := pairOutcome(pairErr)
	tag, err := s.pool.Exec(ctx,
		`UPDATE coa_run_pairs SET status = $1, row_count = $2, error = $3, finished_at = $4 WHERE id = $5`,
		string(status), rows, msg, time.Now().UTC(), pairID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: end pair %s", pairID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("pair not found: %s", pairID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	var r Run
	err := s.pool.QueryRow(ctx,
		`SELECT id, location, status, failed, created_at, updated_at FROM coa_runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &r.Location, &r.Status, &r.Failed, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get run")
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT id, location, status, failed, created_at, updated_at FROM coa_runs`
	args := []any{limitOrDefault(filter.Limit), filter.Offset}
	if filter.Status != "" {
		query += ` WHERE status = $3`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Location, &r.Status, &r.Failed, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) ListPairs(ctx context.Context, filter PairFilter) ([]Pair, error) {
	query := `SELECT id, run_id, travel_time, land_use, output, status, row_count, error, started_at, finished_at
		FROM coa_run_pairs
		WHERE ($2 = '' OR run_id = $2) AND ($3 = '' OR status = $3)
		ORDER BY started_at DESC, travel_time, land_use LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limitOrDefault(filter.Limit), filter.RunID, string(filter.Status))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pairs")
	}
	defer rows.Close()

	var pairs []Pair
	for rows.Next() {
		var p Pair
		var msg *string
		if err := rows.Scan(&p.ID, &p.RunID, &p.TravelTime, &p.LandUse, &p.Output, &p.Status, &p.Rows, &msg, &p.StartedAt, &p.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan pair")
		}
		if msg != nil {
			p.Error = *msg
		}
		pairs = append(pairs, p)
	}
	return pairs, eris.Wrap(rows.Err(), "postgres: list pairs iterate")
}
