// Package diagnostics provides an optional SQLite-backed audit sink
// recording malformed-query and internal-error diagnostics (and,
// optionally, every outcome) for a batch run.
package diagnostics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nblibris/libris-match/internal/matcherr"
)

// Sink records per-query diagnostics to a SQLite database for later
// inspection. It is optional: engines may run with a nil *Sink and skip
// all recording.
type Sink struct {
	db    *sql.DB
	runID string
}

// Open creates (or reuses) the SQLite database at path and starts a new
// run, identified by a fresh UUID.
func Open(ctx context.Context, path string) (*Sink, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, matcherr.Wrap("diagnostics.Open", matcherr.KindInternal, fmt.Errorf("open database: %w", err))
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(2 * time.Hour)

	if err := createTables(ctx, db); err != nil {
		db.Close()
		return nil, matcherr.Wrap("diagnostics.Open", matcherr.KindInternal, err)
	}

	runID := uuid.NewString()
	if _, err := db.ExecContext(ctx, `INSERT INTO runs (id, started_at) VALUES (?, ?)`, runID, time.Now().UTC()); err != nil {
		db.Close()
		return nil, matcherr.Wrap("diagnostics.Open", matcherr.KindInternal, fmt.Errorf("insert run: %w", err))
	}

	return &Sink{db: db, runID: runID}, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS diagnostics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		source_file TEXT NOT NULL,
		edition INTEGER NOT NULL,
		kind TEXT NOT NULL,
		detail TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_diagnostics_run_id ON diagnostics(run_id);
	`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// Record writes one diagnostic row: the query it concerns, a short kind
// tag (e.g. "empty-embedding", "internal-error"), and an optional detail
// string.
func (s *Sink) Record(ctx context.Context, sourceFile string, edition int, kind, detail string) error {
	if s == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO diagnostics (run_id, source_file, edition, kind, detail) VALUES (?, ?, ?, ?, ?)`,
		s.runID, sourceFile, edition, kind, detail)
	if err != nil {
		return matcherr.Wrap("diagnostics.Record", matcherr.KindInternal, err)
	}
	return nil
}

// RunID returns this sink's run identifier.
func (s *Sink) RunID() string {
	if s == nil {
		return ""
	}
	return s.runID
}

// Close releases the underlying database connection.
func (s *Sink) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}
