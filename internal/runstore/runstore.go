// Package runstore persists scenario runs and per-stage outcomes in SQLite.
// The orchestrator writes a row per run plus one per executed stage; the CLI
// reads them back for status and run listings. The JSONL history remains the
// lightweight event journal; this store is the queryable record.
package runstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"sorapipe/internal/config"
)

// Status values for runs and stage results.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusCanceled  = "canceled"
)

// Run is one scenario invocation.
type Run struct {
	ID         int64
	RunID      string
	Steps      []string
	Status     string
	StartedAt  time.Time
	FinishedAt time.Time
	Error      string
}

// StageResult is the outcome of one stage within a run.
type StageResult struct {
	ID         int64
	RunID      string
	Stage      string
	Status     string
	StartedAt  time.Time
	FinishedAt time.Time
	Error      string
}

// Store manages run persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the run database and applies the schema.
func Open(cfg *config.Config) (*Store, error) {
	return OpenPath(cfg.RunDBPath())
}

// OpenPath opens the store at an explicit database path.
func OpenPath(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applySchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) applySchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS scenario_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL UNIQUE,
    steps TEXT NOT NULL,
    status TEXT NOT NULL,
    started_at TEXT NOT NULL,
    finished_at TEXT,
    error TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS stage_results (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    stage TEXT NOT NULL,
    status TEXT NOT NULL,
    started_at TEXT NOT NULL,
    finished_at TEXT,
    error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_stage_results_run ON stage_results(run_id);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// BeginRun records the start of a scenario run.
func (s *Store) BeginRun(ctx context.Context, runID string, steps []string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scenario_runs (run_id, steps, status, started_at) VALUES (?, ?, ?, ?)`,
		runID, strings.Join(steps, ","), StatusRunning, stamp(time.Now()))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun records the terminal status of a scenario run.
func (s *Store) FinishRun(ctx context.Context, runID, status, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scenario_runs SET status = ?, finished_at = ?, error = ? WHERE run_id = ?`,
		status, stamp(time.Now()), errMsg, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// BeginStage records the start of one stage and returns its row id.
func (s *Store) BeginStage(ctx context.Context, runID, stageName string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO stage_results (run_id, stage, status, started_at) VALUES (?, ?, ?, ?)`,
		runID, stageName, StatusRunning, stamp(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("insert stage result: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("stage result id: %w", err)
	}
	return id, nil
}

// FinishStage records the terminal status of one stage result.
func (s *Store) FinishStage(ctx context.Context, id int64, status, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE stage_results SET status = ?, finished_at = ?, error = ? WHERE id = ?`,
		status, stamp(time.Now()), errMsg, id)
	if err != nil {
		return fmt.Errorf("finish stage result: %w", err)
	}
	return nil
}

// RecentRuns returns the most recent runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, steps, status, started_at, finished_at, error
         FROM scenario_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run      Run
			steps    string
			started  string
			finished sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.RunID, &steps, &run.Status, &started, &finished, &run.Error); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if steps != "" {
			run.Steps = strings.Split(steps, ",")
		}
		run.StartedAt = parseStamp(started)
		if finished.Valid {
			run.FinishedAt = parseStamp(finished.String)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// StagesForRun returns the stage results of one run in execution order.
func (s *Store) StagesForRun(ctx context.Context, runID string) ([]StageResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, stage, status, started_at, finished_at, error
         FROM stage_results WHERE run_id = ? ORDER BY id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query stage results: %w", err)
	}
	defer rows.Close()

	var results []StageResult
	for rows.Next() {
		var (
			result   StageResult
			started  string
			finished sql.NullString
		)
		if err := rows.Scan(&result.ID, &result.RunID, &result.Stage, &result.Status, &started, &finished, &result.Error); err != nil {
			return nil, fmt.Errorf("scan stage result: %w", err)
		}
		result.StartedAt = parseStamp(started)
		if finished.Valid {
			result.FinishedAt = parseStamp(finished.String)
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseStamp(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
