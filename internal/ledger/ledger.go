// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ledger records per-run counters in a local SQLite database so
// past runs can be listed and compared. Content items are never stored.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const dbFile = "runs.db"

// StageRecord is the stored form of one acquisition stage report.
type StageRecord struct {
	Stage   string `json:"stage"`
	Fetched int    `json:"fetched"`
	Kept    int    `json:"kept"`
	Failed  int    `json:"failed"`
	Skipped bool   `json:"skipped"`
	Error   string `json:"error,omitempty"`
}

// Run is the stored summary of one pipeline run. BudgetLimit 0 means the
// run was unlimited.
type Run struct {
	ID            string        `json:"id"`
	Topic         string        `json:"topic"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`
	BudgetLimit   int           `json:"budget_limit"`
	ItemsAcquired int           `json:"items_acquired"`
	ItemsScored   int           `json:"items_scored"`
	ItemsAccepted int           `json:"items_accepted"`
	Method        string        `json:"method"`
	FellBack      bool          `json:"fell_back"`
	Degraded      bool          `json:"degraded"`
	Error         string        `json:"error,omitempty"`
	Stages        []StageRecord `json:"stages,omitempty"`
}

// Duration returns the wall time of the run.
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Ledger manages the run database.
type Ledger struct {
	db *sql.DB
}

// Open opens or creates dir/runs.db and its schema.
func Open(dir string) (*Ledger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dir, dbFile)+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	l := &Ledger{db: db}
	if err := l.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return l, nil
}

// Close releases the database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			topic TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			budget_limit INTEGER NOT NULL,
			items_acquired INTEGER NOT NULL,
			items_scored INTEGER NOT NULL,
			items_accepted INTEGER NOT NULL,
			method TEXT,
			fell_back INTEGER NOT NULL,
			degraded INTEGER NOT NULL,
			error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
		`CREATE TABLE IF NOT EXISTS stages (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			stage TEXT NOT NULL,
			fetched INTEGER NOT NULL,
			kept INTEGER NOT NULL,
			failed INTEGER NOT NULL DEFAULT 0,
			skipped INTEGER NOT NULL,
			error TEXT,
			PRIMARY KEY (run_id, stage)
		)`,
	}
	for _, stmt := range statements {
		if _, err := l.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return l.addColumn("stages", "failed", "INTEGER NOT NULL DEFAULT 0")
}

// addColumn adds column to table when a database created by an older
// version lacks it.
func (l *Ledger) addColumn(table, column, decl string) error {
	var n int
	err := l.db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&n)
	if err != nil {
		return fmt.Errorf("inspecting table %s: %w", table, err)
	}
	if n > 0 {
		return nil
	}
	if _, err := l.db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl)); err != nil {
		return fmt.Errorf("adding column %s.%s: %w", table, column, err)
	}
	return nil
}

// Record inserts run and its stages in one transaction. An empty run.ID is
// replaced by a new UUID; the stored ID is returned.
func (l *Ledger) Record(ctx context.Context, run Run) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, topic, started_at, finished_at, budget_limit, items_acquired,
			items_scored, items_accepted, method, fell_back, degraded, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Topic,
		run.StartedAt.UTC().Format(time.RFC3339Nano), run.FinishedAt.UTC().Format(time.RFC3339Nano),
		run.BudgetLimit, run.ItemsAcquired, run.ItemsScored, run.ItemsAccepted,
		run.Method, run.FellBack, run.Degraded, run.Error,
	)
	if err != nil {
		return "", fmt.Errorf("inserting run: %w", err)
	}

	if len(run.Stages) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO stages (run_id, stage, fetched, kept, failed, skipped, error) VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return "", fmt.Errorf("preparing stage insert: %w", err)
		}
		defer stmt.Close()

		for _, s := range run.Stages {
			if _, err := stmt.ExecContext(ctx, run.ID, s.Stage, s.Fetched, s.Kept, s.Failed, s.Skipped, s.Error); err != nil {
				return "", fmt.Errorf("inserting stage %s: %w", s.Stage, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing run: %w", err)
	}
	return run.ID, nil
}

// Recent returns up to n runs, newest first, with their stages.
func (l *Ledger) Recent(ctx context.Context, n int) ([]Run, error) {
	if n <= 0 {
		n = 10
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, topic, started_at, finished_at, budget_limit, items_acquired,
			items_scored, items_accepted, method, fell_back, degraded, error
		 FROM runs ORDER BY started_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished string
		var method, errText sql.NullString
		if err := rows.Scan(&r.ID, &r.Topic, &started, &finished, &r.BudgetLimit, &r.ItemsAcquired,
			&r.ItemsScored, &r.ItemsAccepted, &method, &r.FellBack, &r.Degraded, &errText); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		r.Method = method.String
		r.Error = errText.String
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	rows.Close()

	for i := range runs {
		stages, err := l.stages(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Stages = stages
	}
	return runs, nil
}

func (l *Ledger) stages(ctx context.Context, runID string) ([]StageRecord, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT stage, fetched, kept, failed, skipped, error FROM stages WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying stages for run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []StageRecord
	for rows.Next() {
		var s StageRecord
		var errText sql.NullString
		if err := rows.Scan(&s.Stage, &s.Fetched, &s.Kept, &s.Failed, &s.Skipped, &errText); err != nil {
			return nil, fmt.Errorf("scanning stage: %w", err)
		}
		s.Error = errText.String
		out = append(out, s)
	}
	return out, rows.Err()
}
