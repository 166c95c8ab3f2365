package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ RunStore = (*SQLiteStore)(nil)

// SQLiteStore implements RunStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	strategy      TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	state         TEXT NOT NULL,
	fail_reason   TEXT NOT NULL DEFAULT '',
	start_date    TEXT NOT NULL DEFAULT '',
	end_date      TEXT NOT NULL DEFAULT '',
	final_equity  REAL NOT NULL DEFAULT 0,
	result        BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun inserts a run record.
func (s *SQLiteStore) SaveRun(ctx context.Context, rec *RunRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, strategy, created_at, state, fail_reason, start_date, end_date, final_equity, result)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Strategy, rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		rec.State, rec.FailReason, rec.StartDate, rec.EndDate, rec.FinalEquity, rec.Result,
	)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", rec.ID, err)
	}
	return nil
}

// GetRun retrieves a single run by ID, including its result payload.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, strategy, created_at, state, fail_reason, start_date, end_date, final_equity, result
		 FROM runs WHERE id = ?`, id)

	rec, err := scanRun(row.Scan, true)
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", id, err)
	}
	return rec, nil
}

// ListRuns returns up to limit run records, newest first, without result
// payloads.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, strategy, created_at, state, fail_reason, start_date, end_date, final_equity
		 FROM runs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows.Scan, false)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// DeleteRun removes a run by ID.
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRunNotFound
	}
	return nil
}

func scanRun(scan func(dest ...any) error, withResult bool) (*RunRecord, error) {
	var rec RunRecord
	var createdAt string

	dest := []any{&rec.ID, &rec.Strategy, &createdAt, &rec.State, &rec.FailReason,
		&rec.StartDate, &rec.EndDate, &rec.FinalEquity}
	if withResult {
		dest = append(dest, &rec.Result)
	}
	if err := scan(dest...); err != nil {
		return nil, err
	}

	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at %q: %w", createdAt, err)
	}
	rec.CreatedAt = t
	return &rec, nil
}
