package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"stockchat/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ QueryLog = (*SQLiteLog)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS queries (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	query_id     TEXT    NOT NULL,
	text         TEXT    NOT NULL,
	description  TEXT    NOT NULL DEFAULT '',
	actions      INTEGER NOT NULL DEFAULT 0,
	succeeded    INTEGER NOT NULL DEFAULT 0,
	failed       INTEGER NOT NULL DEFAULT 0,
	status       TEXT    NOT NULL,
	error        TEXT    NOT NULL DEFAULT '',
	submitted_at INTEGER NOT NULL,
	duration_ms  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS queries_submitted_at ON queries (submitted_at);
`

// SQLiteLog implements QueryLog backed by a SQLite database.
type SQLiteLog struct {
	db *sql.DB
}

// NewSQLiteLog opens (or creates) a SQLite database at dbPath and ensures
// the schema exists.
func NewSQLiteLog(dbPath string) (*SQLiteLog, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteLog{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteLog) Close() error {
	return s.db.Close()
}

// Record inserts one query.
func (s *SQLiteLog) Record(ctx context.Context, rec domain.QueryRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO queries (query_id, text, description, actions, succeeded, failed, status, error, submitted_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.QueryID, rec.Text, rec.Description, rec.Actions, rec.Succeeded, rec.Failed,
		rec.Status, rec.Error, rec.SubmittedAt.UnixMilli(), rec.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("recording query %s: %w", rec.QueryID, err)
	}
	return nil
}

// Recent returns up to limit queries, newest first.
func (s *SQLiteLog) Recent(ctx context.Context, limit int) ([]domain.QueryRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT query_id, text, description, actions, succeeded, failed, status, error, submitted_at, duration_ms
		FROM queries ORDER BY submitted_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing queries: %w", err)
	}
	defer rows.Close()

	out := []domain.QueryRecord{}
	for rows.Next() {
		var (
			rec         domain.QueryRecord
			submittedAt int64
			durationMS  int64
		)
		if err := rows.Scan(&rec.QueryID, &rec.Text, &rec.Description, &rec.Actions, &rec.Succeeded,
			&rec.Failed, &rec.Status, &rec.Error, &submittedAt, &durationMS); err != nil {
			return nil, err
		}
		rec.SubmittedAt = time.UnixMilli(submittedAt).UTC()
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteBefore removes queries submitted before t and returns the count.
func (s *SQLiteLog) DeleteBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM queries WHERE submitted_at < ?`, t.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
