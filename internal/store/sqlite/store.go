// Package sqlite is an embedded alternative to the postgres mirror for
// single-host deployments. It keeps hedge positions and the audit log in
// a local database file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alanyoungcy/updownarb/internal/domain"
)

// DefaultPath is used when Open is given an empty path.
const DefaultPath = "data/updownarb.db"

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS hedge_positions (
		id                TEXT PRIMARY KEY,
		market_id         TEXT NOT NULL,
		venue_a_market_id TEXT NOT NULL,
		venue_b_market_id TEXT NOT NULL,
		title             TEXT NOT NULL DEFAULT '',
		action            TEXT NOT NULL,
		venue_a_up        REAL NOT NULL DEFAULT 0,
		venue_a_down      REAL NOT NULL DEFAULT 0,
		venue_b_up        REAL NOT NULL DEFAULT 0,
		venue_b_down      REAL NOT NULL DEFAULT 0,
		total_cost        REAL NOT NULL DEFAULT 0,
		expected_profit   REAL NOT NULL DEFAULT 0,
		status            TEXT NOT NULL,
		end_time          TEXT NOT NULL,
		opened_at         TEXT NOT NULL,
		closed_at         TEXT,
		note              TEXT NOT NULL DEFAULT '',
		updated_at        TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_hedge_positions_status ON hedge_positions (status)`,
	`CREATE INDEX IF NOT EXISTS idx_hedge_positions_opened_at ON hedge_positions (opened_at)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		event      TEXT NOT NULL,
		detail     TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_log_created_at ON audit_log (created_at)`,
}

// Store wraps a SQLite database handle.
type Store struct {
	path string
	db   *sql.DB
	now  func() time.Time
}

// Open creates the database file if needed, enables WAL and applies the
// schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite: ensure data dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &Store{path: path, db: db, now: time.Now}
	if err := s.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: apply schema: %w", err)
		}
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// nullTime maps a nil time to SQL NULL.
func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

// appendListOpts appends the time window, ordering and paging of opts.
func appendListOpts(query string, args []any, col string, opts domain.ListOpts) (string, []any) {
	if opts.Since != nil {
		query += fmt.Sprintf(" AND %s >= ?", col)
		args = append(args, formatTime(*opts.Since))
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND %s <= ?", col)
		args = append(args, formatTime(*opts.Until))
	}

	var b strings.Builder
	b.WriteString(query)
	fmt.Fprintf(&b, " ORDER BY %s DESC", col)
	switch {
	case opts.Limit > 0:
		b.WriteString(" LIMIT ?")
		args = append(args, opts.Limit)
	case opts.Offset > 0:
		// OFFSET requires a LIMIT clause in SQLite.
		b.WriteString(" LIMIT -1")
	}
	if opts.Offset > 0 {
		b.WriteString(" OFFSET ?")
		args = append(args, opts.Offset)
	}
	return b.String(), args
}
