// Package journal provides a SQLite-backed journal of index sync runs.
// Every bootstrap and refresh attempt is recorded with its outcome,
// fingerprint, and chunk counts so operators can reconstruct what the sync
// engine did and when — the in-memory fingerprint alone leaves no trace
// after a restart.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Outcome classifies how a sync run ended.
type Outcome string

const (
	// OutcomeBootstrapped means the collection was created from scratch.
	OutcomeBootstrapped Outcome = "bootstrapped"
	// OutcomeRefreshed means the corpus changed and the index was rebuilt.
	OutcomeRefreshed Outcome = "refreshed"
	// OutcomeUpToDate means the fingerprint matched and nothing was written.
	OutcomeUpToDate Outcome = "up_to_date"
	// OutcomeFailed means the run aborted with an error.
	OutcomeFailed Outcome = "failed"
)

// Entry is a single recorded sync run.
type Entry struct {
	// Outcome classifies how the run ended.
	Outcome Outcome
	// Fingerprint is the corpus fingerprint recorded by the run. Empty for
	// failed and up-to-date runs.
	Fingerprint string
	// Documents is the number of canonical documents after dedupe.
	Documents int
	// Chunks is the number of chunks written to the index.
	Chunks int
	// Error is the failure reason for failed runs. Empty otherwise.
	Error string
	// Duration is the wall-clock time the run took.
	Duration time.Duration
	// CreatedAt is when the entry was persisted.
	CreatedAt time.Time
}

// Journal persists and lists sync runs. Implementations must be safe for
// concurrent use.
type Journal interface {
	// Record persists a single sync run entry.
	Record(ctx context.Context, e Entry) error
	// Recent returns the most recent n entries, newest first.
	Recent(ctx context.Context, n int) ([]Entry, error)
	// Close releases any resources held by the journal.
	Close() error
}

// SQLiteJournal is a Journal backed by a local SQLite database.
type SQLiteJournal struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the sync journal database.
// It resolves to ~/.kbchat/journal.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("journal: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".kbchat")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("journal: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "journal.db"), nil
}

// Open opens (or creates) a SQLiteJournal at the given path and runs the
// schema migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteJournal, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	j := &SQLiteJournal{db: db}
	if err := j.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

// migrate creates the schema if it does not already exist.
func (j *SQLiteJournal) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS sync_runs (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    outcome      TEXT    NOT NULL CHECK(outcome IN ('bootstrapped','refreshed','up_to_date','failed')),
    fingerprint  TEXT    NOT NULL DEFAULT '',
    documents    INTEGER NOT NULL DEFAULT 0,
    chunks       INTEGER NOT NULL DEFAULT 0,
    error        TEXT    NOT NULL DEFAULT '',
    duration_ms  INTEGER NOT NULL DEFAULT 0,
    created_at   INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_sync_runs_created
    ON sync_runs (created_at);
`
	if _, err := j.db.Exec(ddl); err != nil {
		return fmt.Errorf("journal: migrate: %w", err)
	}
	return nil
}

// Record persists a single sync run entry.
func (j *SQLiteJournal) Record(ctx context.Context, e Entry) error {
	const q = `INSERT INTO sync_runs (outcome, fingerprint, documents, chunks, error, duration_ms, created_at)
               VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := j.db.ExecContext(ctx, q,
		string(e.Outcome), e.Fingerprint, e.Documents, e.Chunks, e.Error,
		e.Duration.Milliseconds(), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("journal: record: %w", err)
	}
	return nil
}

// Recent returns the most recent n entries, newest first.
func (j *SQLiteJournal) Recent(ctx context.Context, n int) ([]Entry, error) {
	const q = `SELECT outcome, fingerprint, documents, chunks, error, duration_ms, created_at
               FROM sync_runs ORDER BY id DESC LIMIT ?`
	rows, err := j.db.QueryContext(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("journal: recent: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var outcome string
		var durationMS, createdAt int64
		if err := rows.Scan(&outcome, &e.Fingerprint, &e.Documents, &e.Chunks, &e.Error, &durationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		e.Outcome = Outcome(outcome)
		e.Duration = time.Duration(durationMS) * time.Millisecond
		e.CreatedAt = time.Unix(createdAt, 0)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: rows: %w", err)
	}
	return entries, nil
}

// Close closes the underlying database.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
