// Package store persists finished runs in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/botirk38/llmtopics/reduce"
)

// ErrRunNotFound is returned by LoadRun for unknown ids.
var ErrRunNotFound = errors.New("run not found")

// Run is one completed fit.
type Run struct {
	ID          string
	CreatedAt   time.Time
	Strategy    string
	Model       string
	Topics      []string
	Assignments []int
	Names       []string
	History     reduce.History
}

// Summary is the listing view of a Run.
type Summary struct {
	ID         string
	CreatedAt  time.Time
	Strategy   string
	Model      string
	TopicCount int
	Documents  int
	Unresolved int
}

// Store manages run persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    created_at  TEXT NOT NULL,
    strategy    TEXT NOT NULL,
    model       TEXT NOT NULL,
    topic_count INTEGER NOT NULL,
    documents   INTEGER NOT NULL,
    unresolved  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS topics (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    idx    INTEGER NOT NULL,
    name   TEXT NOT NULL,
    PRIMARY KEY (run_id, idx)
);
CREATE TABLE IF NOT EXISTS assignments (
    run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    doc_index   INTEGER NOT NULL,
    topic_index INTEGER NOT NULL,
    topic_name  TEXT NOT NULL,
    PRIMARY KEY (run_id, doc_index)
);
CREATE TABLE IF NOT EXISTS history (
    run_id  TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    step    INTEGER NOT NULL,
    payload TEXT NOT NULL,
    PRIMARY KEY (run_id, step)
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

// Open initializes or connects to the run database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
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

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveRun inserts run in a single transaction. A missing ID or CreatedAt is
// filled in on run.
func (s *Store) SaveRun(ctx context.Context, run *Run) error {
	if run == nil {
		return errors.New("run cannot be nil")
	}
	if len(run.Names) != len(run.Assignments) {
		return fmt.Errorf("run has %d assignments but %d names", len(run.Assignments), len(run.Names))
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	unresolved := 0
	for _, a := range run.Assignments {
		if a < 0 {
			unresolved++
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, created_at, strategy, model, topic_count, documents, unresolved)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.CreatedAt.UTC().Format(time.RFC3339Nano),
		run.Strategy,
		run.Model,
		len(run.Topics),
		len(run.Assignments),
		unresolved,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for i, name := range run.Topics {
		if _, err := tx.ExecContext(ctx, `INSERT INTO topics (run_id, idx, name) VALUES (?, ?, ?)`, run.ID, i, name); err != nil {
			return fmt.Errorf("insert topic %d: %w", i, err)
		}
	}

	for i, idx := range run.Assignments {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO assignments (run_id, doc_index, topic_index, topic_name) VALUES (?, ?, ?, ?)`,
			run.ID, i, idx, run.Names[i],
		); err != nil {
			return fmt.Errorf("insert assignment %d: %w", i, err)
		}
	}

	for _, entry := range run.History {
		payload, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("encode history step %d: %w", entry.Step, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO history (run_id, step, payload) VALUES (?, ?, ?)`, run.ID, entry.Step, string(payload)); err != nil {
			return fmt.Errorf("insert history step %d: %w", entry.Step, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

// LoadRun reads a complete run.
func (s *Store) LoadRun(ctx context.Context, id string) (*Run, error) {
	run := &Run{ID: id}
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at, strategy, model FROM runs WHERE id = ?`, id,
	).Scan(&createdAt, &run.Strategy, &run.Model)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	if run.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	if err := s.queryEach(ctx, `SELECT name FROM topics WHERE run_id = ? ORDER BY idx`, func(rows *sql.Rows) error {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		run.Topics = append(run.Topics, name)
		return nil
	}, id); err != nil {
		return nil, fmt.Errorf("query topics: %w", err)
	}

	if err := s.queryEach(ctx, `SELECT topic_index, topic_name FROM assignments WHERE run_id = ? ORDER BY doc_index`, func(rows *sql.Rows) error {
		var idx int
		var name string
		if err := rows.Scan(&idx, &name); err != nil {
			return err
		}
		run.Assignments = append(run.Assignments, idx)
		run.Names = append(run.Names, name)
		return nil
	}, id); err != nil {
		return nil, fmt.Errorf("query assignments: %w", err)
	}

	if err := s.queryEach(ctx, `SELECT payload FROM history WHERE run_id = ? ORDER BY step`, func(rows *sql.Rows) error {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return err
		}
		var entry reduce.HistoryEntry
		if err := json.Unmarshal([]byte(payload), &entry); err != nil {
			return err
		}
		run.History = append(run.History, entry)
		return nil
	}, id); err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}

	return run, nil
}

// ListRuns returns every stored run, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]Summary, error) {
	var out []Summary
	err := s.queryEach(ctx,
		`SELECT id, created_at, strategy, model, topic_count, documents, unresolved FROM runs ORDER BY created_at DESC`,
		func(rows *sql.Rows) error {
			var sum Summary
			var createdAt string
			if err := rows.Scan(&sum.ID, &createdAt, &sum.Strategy, &sum.Model, &sum.TopicCount, &sum.Documents, &sum.Unresolved); err != nil {
				return err
			}
			parsed, err := time.Parse(time.RFC3339Nano, createdAt)
			if err != nil {
				return err
			}
			sum.CreatedAt = parsed
			out = append(out, sum)
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

// DeleteRun removes a run and everything attached to it.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"history", "assignments", "topics"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE run_id = ?`, id); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return tx.Commit()
}

func (s *Store) queryEach(ctx context.Context, query string, fn func(*sql.Rows) error, args ...any) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}
