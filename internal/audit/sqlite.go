package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

type migration struct {
	version int
	name    string
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		name:    "create audit tables",
		sql: `
CREATE TABLE IF NOT EXISTS goal_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	workflow_id TEXT NOT NULL,
	goal_id TEXT NOT NULL,
	sequence INTEGER NOT NULL,
	goal_type TEXT NOT NULL,
	strategy TEXT NOT NULL,
	outcome TEXT NOT NULL,
	duration_ms INTEGER NOT NULL,
	error_kind TEXT NOT NULL DEFAULT '',
	attempts INTEGER NOT NULL DEFAULT 0,
	fallback_attempted INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_goal_records_run ON goal_records(run_id);

CREATE TABLE IF NOT EXISTS run_summaries (
	run_id TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL,
	workflow_name TEXT NOT NULL,
	goals_total INTEGER NOT NULL,
	goals_succeeded INTEGER NOT NULL,
	success INTEGER NOT NULL,
	cancelled INTEGER NOT NULL,
	failed_goal TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL,
	created_at TEXT NOT NULL
);
`,
	},
}

// SQLiteStore keeps audit data in a SQLite database.
type SQLiteStore struct {
	conn *sql.DB
}

// OpenSQLite opens (creating if needed) the audit database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory %q: %w", dir, err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %q: %w", path, err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := runMigrations(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &SQLiteStore{conn: conn}, nil
}

func runMigrations(ctx context.Context, conn *sql.DB) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start migration transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS _meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		return fmt.Errorf("failed to ensure _meta table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO _meta (key, value) VALUES ('schema_version', '0')`); err != nil {
		return fmt.Errorf("failed to initialize schema version: %w", err)
	}
	var currentRaw string
	if err := tx.QueryRowContext(ctx, `SELECT value FROM _meta WHERE key = 'schema_version'`).Scan(&currentRaw); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	current, err := strconv.Atoi(currentRaw)
	if err != nil {
		return fmt.Errorf("invalid schema version %q: %w", currentRaw, err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("failed migration %03d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE _meta SET value = ? WHERE key = 'schema_version'`, strconv.Itoa(m.version)); err != nil {
			return fmt.Errorf("failed to set schema version %03d: %w", m.version, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) RecordGoal(ctx context.Context, r Record) error {
	_, err := s.conn.ExecContext(ctx, `
INSERT INTO goal_records (run_id, workflow_id, goal_id, sequence, goal_type, strategy, outcome,
	duration_ms, error_kind, attempts, fallback_attempted, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.WorkflowID, r.GoalID, r.Sequence, r.GoalType, r.Strategy, r.Outcome,
		r.DurationMs, r.ErrorKind, r.Attempts, boolInt(r.FallbackAttempted), r.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert goal record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecordRun(ctx context.Context, sum Summary) error {
	_, err := s.conn.ExecContext(ctx, `
INSERT OR REPLACE INTO run_summaries (run_id, workflow_id, workflow_name, goals_total, goals_succeeded,
	success, cancelled, failed_goal, duration_ms, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.RunID, sum.WorkflowID, sum.WorkflowName, sum.GoalsTotal, sum.GoalsSucceeded,
		boolInt(sum.Success), boolInt(sum.Cancelled), sum.FailedGoal, sum.DurationMs,
		sum.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert run summary: %w", err)
	}
	return nil
}

// GoalRecords returns the records of one run in insertion order.
func (s *SQLiteStore) GoalRecords(ctx context.Context, runID string) ([]Record, error) {
	rows, err := s.conn.QueryContext(ctx, `
SELECT run_id, workflow_id, goal_id, sequence, goal_type, strategy, outcome, duration_ms,
	error_kind, attempts, fallback_attempted, created_at
FROM goal_records WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query goal records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var fallback int
		var created string
		if err := rows.Scan(&r.RunID, &r.WorkflowID, &r.GoalID, &r.Sequence, &r.GoalType, &r.Strategy,
			&r.Outcome, &r.DurationMs, &r.ErrorKind, &r.Attempts, &fallback, &created); err != nil {
			return nil, fmt.Errorf("failed to scan goal record: %w", err)
		}
		r.FallbackAttempted = fallback != 0
		r.Timestamp, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// RunSummary returns the summary of one run.
func (s *SQLiteStore) RunSummary(ctx context.Context, runID string) (Summary, error) {
	var sum Summary
	var success, cancelled int
	var created string
	err := s.conn.QueryRowContext(ctx, `
SELECT run_id, workflow_id, workflow_name, goals_total, goals_succeeded, success, cancelled,
	failed_goal, duration_ms, created_at
FROM run_summaries WHERE run_id = ?`, runID).Scan(&sum.RunID, &sum.WorkflowID, &sum.WorkflowName,
		&sum.GoalsTotal, &sum.GoalsSucceeded, &success, &cancelled, &sum.FailedGoal, &sum.DurationMs, &created)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to read run summary: %w", err)
	}
	sum.Success = success != 0
	sum.Cancelled = cancelled != 0
	sum.Timestamp, _ = time.Parse(time.RFC3339Nano, created)
	return sum, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
