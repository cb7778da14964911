// Package history records application runs in a local SQLite database so
// past prompts, outcomes and live URLs survive restarts.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// ErrNotFound reports a run id with no recorded row.
var ErrNotFound = errors.New("run not found")

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// newRunID mints lexicographically time-ordered run ids.
var newRunID = func() string { return ulid.Make().String() }

var timeNow = time.Now

// ─── Types ───────────────────────────────────────────────────────────────────

// RunState is the lifecycle state of a recorded run.
type RunState string

const (
	RunRunning   RunState = "running"
	RunSucceeded RunState = "succeeded"
	RunFailed    RunState = "failed"
)

// Run is one recorded application run. Error holds the sanitized failure
// message shown to the user, never the raw error.
type Run struct {
	ID         string   `json:"id"`
	Prompt     string   `json:"prompt"`
	State      RunState `json:"state"`
	AppKey     string   `json:"appKey,omitempty"`
	URL        string   `json:"url,omitempty"`
	Error      string   `json:"error,omitempty"`
	StartedAt  string   `json:"startedAt"`
	FinishedAt *string  `json:"finishedAt,omitempty"`
}

// Stats holds aggregate run counts.
type Stats struct {
	Total     int `json:"total"`
	Running   int `json:"running"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// ─── Config ──────────────────────────────────────────────────────────────────

// Config holds history store configuration.
type Config struct {
	DataDir string
}

// DefaultConfig returns the default configuration for the history store.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{DataDir: filepath.Join(home, ".appforge")}
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store is the run history, backed by SQLite.
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given configuration. It creates the data
// directory if needed, opens SQLite with WAL mode, and runs migrations.
func New(cfg Config) (*Store, error) {
	if cfg.DataDir == "" {
		cfg = DefaultConfig()
	}
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("history: create data dir: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "history.db")
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("history: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("history: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id          TEXT PRIMARY KEY,
			prompt      TEXT NOT NULL,
			state       TEXT NOT NULL DEFAULT 'running',
			app_key     TEXT,
			url         TEXT,
			error       TEXT,
			started_at  TEXT NOT NULL,
			finished_at TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);
		CREATE INDEX IF NOT EXISTS idx_runs_state   ON runs(state);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ─── Runs ────────────────────────────────────────────────────────────────────

// StartRun records a new run in the running state and returns its id.
func (s *Store) StartRun(prompt string) (string, error) {
	id := newRunID()
	_, err := s.db.Exec(
		`INSERT INTO runs (id, prompt, state, started_at) VALUES (?, ?, ?, ?)`,
		id, prompt, RunRunning, now(),
	)
	if err != nil {
		return "", fmt.Errorf("history: start run: %w", err)
	}
	return id, nil
}

// FinishRun records a run's terminal state. errMsg must already be
// sanitized by the caller.
func (s *Store) FinishRun(id string, state RunState, appKey, url, errMsg string) error {
	res, err := s.db.Exec(
		`UPDATE runs
		 SET state = ?, app_key = ?, url = ?, error = ?, finished_at = ?
		 WHERE id = ?`,
		state, nullableString(appKey), nullableString(url), nullableString(errMsg), now(), id,
	)
	if err != nil {
		return fmt.Errorf("history: finish run: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("history: finish run %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetRun retrieves a run by id.
func (s *Store) GetRun(id string) (*Run, error) {
	row := s.db.QueryRow(
		`SELECT id, prompt, state, COALESCE(app_key, ''), COALESCE(url, ''), COALESCE(error, ''), started_at, finished_at
		 FROM runs WHERE id = ?`, id,
	)
	var r Run
	if err := row.Scan(&r.ID, &r.Prompt, &r.State, &r.AppKey, &r.URL, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("history: run %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &r, nil
}

// RecentRuns returns the newest runs first.
func (s *Store) RecentRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT id, prompt, state, COALESCE(app_key, ''), COALESCE(url, ''), COALESCE(error, ''), started_at, finished_at
		 FROM runs
		 ORDER BY started_at DESC, id DESC
		 LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Prompt, &r.State, &r.AppKey, &r.URL, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// Prune deletes all but the newest keep runs.
func (s *Store) Prune(keep int) error {
	if keep <= 0 {
		keep = 100
	}
	_, err := s.db.Exec(
		`DELETE FROM runs
		 WHERE id NOT IN (
			SELECT id FROM runs ORDER BY started_at DESC, id DESC LIMIT ?
		 )`, keep,
	)
	return err
}

// Stats returns aggregate run counts.
func (s *Store) Stats() (*Stats, error) {
	stats := &Stats{}
	rows, err := s.db.Query(`SELECT state, COUNT(*) FROM runs GROUP BY state`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var state RunState
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		stats.Total += n
		switch state {
		case RunRunning:
			stats.Running = n
		case RunSucceeded:
			stats.Succeeded = n
		case RunFailed:
			stats.Failed = n
		}
	}
	return stats, rows.Err()
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func now() string {
	return timeNow().UTC().Format(time.RFC3339)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
