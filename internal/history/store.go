// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package history records every delivery run in a SQLite database so that
// failed mornings can be inspected after the fact.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/morning-paper/pkg/types"
)

const defaultLimit = 20

// Store manages the run history database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the history database at path and ensures the schema
// exists.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
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
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			recipe TEXT NOT NULL,
			output_path TEXT NOT NULL,
			outcome TEXT NOT NULL,
			kept INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS deliveries (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			recipient TEXT NOT NULL,
			ok INTEGER NOT NULL,
			exit_code INTEGER NOT NULL,
			error TEXT,
			PRIMARY KEY (run_id, position)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Record stores rec and its deliveries in one transaction.
func (s *Store) Record(ctx context.Context, rec types.RunRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, finished_at, recipe, output_path, outcome, kept)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		rec.FinishedAt.UTC().Format(time.RFC3339Nano),
		rec.Recipe,
		rec.OutputPath,
		string(rec.Outcome),
		rec.Kept,
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", rec.ID, err)
	}

	for i, d := range rec.Deliveries {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO deliveries (run_id, position, recipient, ok, exit_code, error)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			rec.ID, i, d.Recipient, d.OK, d.ExitCode, d.Error,
		)
		if err != nil {
			return fmt.Errorf("inserting delivery to %s: %w", d.Recipient, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run %s: %w", rec.ID, err)
	}
	return nil
}

// Recent returns up to limit runs, newest first, with their deliveries in
// send order. A non-positive limit uses the default of 20.
func (s *Store) Recent(ctx context.Context, limit int) ([]types.RunRecord, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, recipe, output_path, outcome, kept
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []types.RunRecord
	for rows.Next() {
		var (
			rec               types.RunRecord
			started, finished string
			outcome           string
		)
		if err := rows.Scan(&rec.ID, &started, &finished, &rec.Recipe, &rec.OutputPath, &outcome, &rec.Kept); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		rec.Outcome = types.Outcome(outcome)
		var err error
		if rec.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("scanning run %s: started_at: %w", rec.ID, err)
		}
		if rec.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
			return nil, fmt.Errorf("scanning run %s: finished_at: %w", rec.ID, err)
		}
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}

	for i := range runs {
		d, err := s.deliveries(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Deliveries = d
	}
	return runs, nil
}

func (s *Store) deliveries(ctx context.Context, runID string) ([]types.Delivery, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT recipient, ok, exit_code, COALESCE(error, '')
		 FROM deliveries WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying deliveries for %s: %w", runID, err)
	}
	defer rows.Close()

	var out []types.Delivery
	for rows.Next() {
		var d types.Delivery
		if err := rows.Scan(&d.Recipient, &d.OK, &d.ExitCode, &d.Error); err != nil {
			return nil, fmt.Errorf("scanning delivery: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// WriteYAML writes runs to w as a YAML sequence.
func WriteYAML(w io.Writer, runs []types.RunRecord) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(runs); err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}
	return enc.Close()
}

// WriteText writes one summary line per run followed by its failed
// deliveries.
func WriteText(w io.Writer, runs []types.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %-17s  %d/%d delivered  %s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Outcome,
			len(r.Deliveries)-r.Failed(), len(r.Deliveries),
			r.ID,
		)
		for _, d := range r.Deliveries {
			if !d.OK {
				fmt.Fprintf(w, "    failed: %s (%s)\n", d.Recipient, d.Error)
			}
		}
	}
}
