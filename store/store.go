// Package store persists finished runs in a SQLite database so sweeps can be
// queried after the fact.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/pthm-cable/multilevel/config"
	"github.com/pthm-cable/multilevel/telemetry"
)

// ErrNotFound is returned when a run ID is not in the store.
var ErrNotFound = errors.New("run not found")

// Run is one simulation run and its round history.
type Run struct {
	ID      string
	Label   string
	Seed    uint64
	Params  string // Effective config as YAML
	Created time.Time

	Rounds []telemetry.RoundStats
}

// NewRun wraps a finished run's history with a fresh ID.
func NewRun(label string, cfg *config.Config, rounds []telemetry.RoundStats) (Run, error) {
	params, err := yaml.Marshal(cfg)
	if err != nil {
		return Run{}, fmt.Errorf("marshaling params: %w", err)
	}
	return Run{
		ID:      uuid.NewString(),
		Label:   label,
		Seed:    cfg.Run.Seed,
		Params:  string(params),
		Created: time.Now(),
		Rounds:  rounds,
	}, nil
}

// Store is a SQLite-backed run store. It is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite allows one writer; serialize at the pool.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := createTables(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		label TEXT NOT NULL,
		seed INTEGER NOT NULL,
		params TEXT NOT NULL,
		created INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS rounds (
		run_id TEXT NOT NULL REFERENCES runs(id),
		round INTEGER NOT NULL,
		population INTEGER NOT NULL,
		group_count INTEGER NOT NULL,
		prosocial INTEGER NOT NULL,
		selfish INTEGER NOT NULL,
		births INTEGER NOT NULL,
		deaths INTEGER NOT NULL,
		prosocial_proportion REAL NOT NULL,
		prosocial_stddev REAL NOT NULL,
		group_prop_p10 REAL NOT NULL,
		group_prop_p50 REAL NOT NULL,
		group_prop_p90 REAL NOT NULL,
		empty_groups INTEGER NOT NULL,
		mean_group_size REAL NOT NULL,
		PRIMARY KEY (run_id, round)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_label ON runs(label);
	`)
	return err
}

// SaveRun stores the run and all its rounds in one transaction.
func (s *Store) SaveRun(ctx context.Context, run Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, label, seed, params, created) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Label, int64(run.Seed), run.Params, run.Created.UnixNano())
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO rounds (
			run_id, round, population, group_count, prosocial, selfish, births, deaths,
			prosocial_proportion, prosocial_stddev, group_prop_p10, group_prop_p50, group_prop_p90,
			empty_groups, mean_group_size
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare rounds: %w", err)
	}
	defer stmt.Close()

	for _, r := range run.Rounds {
		_, err := stmt.ExecContext(ctx,
			run.ID, r.Round, r.Population, r.Groups, r.Prosocial, r.Selfish, r.Births, r.Deaths,
			r.ProsocialProportion, r.ProsocialStdDev, r.GroupPropP10, r.GroupPropP50, r.GroupPropP90,
			r.EmptyGroups, r.MeanGroupSize)
		if err != nil {
			return fmt.Errorf("insert round %d: %w", r.Round, err)
		}
	}

	return tx.Commit()
}

// Rounds returns a run's rounds in order.
func (s *Store) Rounds(ctx context.Context, runID string) ([]telemetry.RoundStats, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, runID).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT round, population, group_count, prosocial, selfish, births, deaths,
			prosocial_proportion, prosocial_stddev, group_prop_p10, group_prop_p50, group_prop_p90,
			empty_groups, mean_group_size
		FROM rounds WHERE run_id = ? ORDER BY round`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []telemetry.RoundStats
	for rows.Next() {
		var r telemetry.RoundStats
		if err := rows.Scan(
			&r.Round, &r.Population, &r.Groups, &r.Prosocial, &r.Selfish, &r.Births, &r.Deaths,
			&r.ProsocialProportion, &r.ProsocialStdDev, &r.GroupPropP10, &r.GroupPropP50, &r.GroupPropP90,
			&r.EmptyGroups, &r.MeanGroupSize,
		); err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Runs lists stored runs, oldest first, without their rounds.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, label, seed, params, created FROM runs ORDER BY created, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r       Run
			seed    int64
			created int64
		)
		if err := rows.Scan(&r.ID, &r.Label, &seed, &r.Params, &created); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Seed = uint64(seed)
		r.Created = time.Unix(0, created)
		out = append(out, r)
	}
	return out, rows.Err()
}
