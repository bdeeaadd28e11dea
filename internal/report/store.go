// Package report provides PostgreSQL-backed audit storage for moderation
// reports. Every report filed in the chat is appended with the reporter,
// the target, the target's running count and whether it triggered a ban.
// The table is an audit trail only; ban state is never restored from it.
package report

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // postgres driver
)

// Store manages moderation reports in PostgreSQL.
type Store struct {
	db *sql.DB
}

// Report is one persisted moderation report.
type Report struct {
	ID        int64
	Reporter  string
	Target    string
	Count     int
	Banned    bool
	CreatedAt time.Time
}

// Open connects to the database at dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("report: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("report: ping: %w", err)
	}
	return db, nil
}

// NewStore creates a new report store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// RecordReport inserts one report.
func (s *Store) RecordReport(ctx context.Context, reporter, target string, count int, banned bool) error {
	if target == "" {
		return fmt.Errorf("report: empty target")
	}

	const query = `
		INSERT INTO moderation_reports (reporter, target, report_count, banned)
		VALUES ($1, $2, $3, $4)`

	if _, err := s.db.ExecContext(ctx, query, reporter, target, count, banned); err != nil {
		return fmt.Errorf("report: insert: %w", err)
	}
	return nil
}

// CountRecent returns the number of reports filed against target within the
// given time window.
func (s *Store) CountRecent(ctx context.Context, target string, window time.Duration) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM moderation_reports
		WHERE target = $1
		  AND created_at >= NOW() - $2::interval`

	var count int
	err := s.db.QueryRowContext(ctx, query, target, window.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("report: count recent: %w", err)
	}
	return count, nil
}

// Recent returns up to limit reports against target, newest first.
func (s *Store) Recent(ctx context.Context, target string, limit int) ([]Report, error) {
	const query = `
		SELECT id, reporter, target, report_count, banned, created_at
		FROM moderation_reports
		WHERE target = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, target, limit)
	if err != nil {
		return nil, fmt.Errorf("report: recent: %w", err)
	}
	defer rows.Close()

	var out []Report
	for rows.Next() {
		var r Report
		if err := rows.Scan(&r.ID, &r.Reporter, &r.Target, &r.Count, &r.Banned, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("report: scan: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("report: recent rows: %w", err)
	}
	return out, nil
}
