package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tokenwarden/tokenwarden/internal/domain/audit"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS decisions (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp     TEXT    NOT NULL,
	request_id    TEXT    NOT NULL,
	outcome       TEXT    NOT NULL,
	policy_index  INTEGER NOT NULL,
	failed_checks TEXT    NOT NULL DEFAULT '',
	block_count   INTEGER NOT NULL,
	fact_count    INTEGER NOT NULL,
	duration_ms   INTEGER NOT NULL,
	cached        INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_decisions_timestamp ON decisions (timestamp);
CREATE INDEX IF NOT EXISTS idx_decisions_outcome   ON decisions (outcome);
`

// SQLiteStore implements audit.Store on an embedded SQLite database so
// operators can query decision history with plain SQL.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and applies the
// schema. Use ":memory:" for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY on concurrent appends.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply decision log schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Append inserts records inside one transaction.
func (s *SQLiteStore) Append(ctx context.Context, records ...audit.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin decision insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO decisions
			(timestamp, request_id, outcome, policy_index, failed_checks, block_count, fact_count, duration_ms, cached)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare decision insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, rec := range records {
		cached := 0
		if rec.Cached {
			cached = 1
		}
		_, err := stmt.ExecContext(ctx,
			rec.Timestamp.UTC().Format(time.RFC3339Nano),
			rec.RequestID,
			rec.Outcome,
			rec.PolicyIndex,
			strings.Join(rec.FailedChecks, "\n"),
			rec.BlockCount,
			rec.FactCount,
			rec.DurationMs,
			cached,
		)
		if err != nil {
			return fmt.Errorf("insert decision record: %w", err)
		}
	}
	return tx.Commit()
}

// Recent returns the last n records, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, n int) ([]audit.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, request_id, outcome, policy_index, failed_checks, block_count, fact_count, duration_ms, cached
		FROM decisions ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query recent decisions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []audit.Record
	for rows.Next() {
		var rec audit.Record
		var ts, failed string
		var cached int
		if err := rows.Scan(&ts, &rec.RequestID, &rec.Outcome, &rec.PolicyIndex,
			&failed, &rec.BlockCount, &rec.FactCount, &rec.DurationMs, &cached); err != nil {
			return nil, fmt.Errorf("scan decision record: %w", err)
		}
		rec.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse decision timestamp: %w", err)
		}
		if failed != "" {
			rec.FailedChecks = strings.Split(failed, "\n")
		}
		rec.Cached = cached == 1
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountByOutcome aggregates decision counts per outcome.
func (s *SQLiteStore) CountByOutcome(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM decisions GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("count decisions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int64)
	for rows.Next() {
		var outcome string
		var n int64
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan decision count: %w", err)
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}

// Flush is a no-op: appends commit synchronously.
func (s *SQLiteStore) Flush(context.Context) error { return nil }

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Compile-time interface verification.
var _ audit.Store = (*SQLiteStore)(nil)
