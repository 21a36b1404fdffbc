// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ledger records run history in a SQLite database under the staging
// root. The ledger is an audit trail only: resume decisions come from
// filesystem state, never from here, so deleting the database loses nothing
// but history.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/volmill/volmill/pkg/types"
)

// Store manages the run history database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the ledger database at path, creating the parent
// directory and schema as needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening ledger database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			mode TEXT NOT NULL,
			force INTEGER NOT NULL DEFAULT 0,
			started TEXT NOT NULL,
			elapsed_ms INTEGER NOT NULL,
			discovered INTEGER NOT NULL,
			already_done INTEGER NOT NULL,
			expanded INTEGER NOT NULL,
			cleaned INTEGER NOT NULL,
			failed INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS failures (
			run_id TEXT NOT NULL REFERENCES runs(id),
			volume_id TEXT NOT NULL,
			stage TEXT NOT NULL,
			cause TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_failures_run_id ON failures(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_failures_volume_id ON failures(volume_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// RecordRun stores a completed run and its failures in one transaction.
func (s *Store) RecordRun(ctx context.Context, sum types.RunSummary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, mode, force, started, elapsed_ms, discovered, already_done, expanded, cleaned, failed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.RunID, sum.Mode, sum.Force,
		sum.Started.UTC().Format(time.RFC3339), sum.Elapsed.Milliseconds(),
		sum.Discovered, sum.AlreadyDone, sum.Expanded, sum.Cleaned, sum.Failed,
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", sum.RunID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO failures (run_id, volume_id, stage, cause) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing failure insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range sum.Failures {
		if _, err := stmt.ExecContext(ctx, sum.RunID, f.ID, f.Stage, f.Cause); err != nil {
			return fmt.Errorf("inserting failure for %s: %w", f.ID, err)
		}
	}

	return tx.Commit()
}

// History returns the most recent runs, newest first. Failures are not
// loaded; fetch them per run with Failures.
func (s *Store) History(ctx context.Context, limit int) ([]types.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, mode, force, started, elapsed_ms, discovered, already_done, expanded, cleaned, failed
		 FROM runs ORDER BY started DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []types.RunSummary
	for rows.Next() {
		var (
			sum       types.RunSummary
			force     int
			started   string
			elapsedMs int64
		)
		if err := rows.Scan(&sum.RunID, &sum.Mode, &force, &started, &elapsedMs,
			&sum.Discovered, &sum.AlreadyDone, &sum.Expanded, &sum.Cleaned, &sum.Failed); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		sum.Force = force != 0
		if t, parseErr := time.Parse(time.RFC3339, started); parseErr == nil {
			sum.Started = t
		}
		sum.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		runs = append(runs, sum)
	}
	return runs, rows.Err()
}

// Failures returns the recorded failures of one run, in insertion order.
func (s *Store) Failures(ctx context.Context, runID string) ([]types.ItemFailure, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT volume_id, stage, cause FROM failures WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying failures: %w", err)
	}
	defer rows.Close()

	var failures []types.ItemFailure
	for rows.Next() {
		var f types.ItemFailure
		if err := rows.Scan(&f.ID, &f.Stage, &f.Cause); err != nil {
			return nil, fmt.Errorf("scanning failure row: %w", err)
		}
		failures = append(failures, f)
	}
	return failures, rows.Err()
}
