package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/danielpatrickdp/adaptive-triage/internal/patterns"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS telemetry_events (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	type       TEXT NOT NULL,
	timestamp  TEXT NOT NULL,
	payload    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_telemetry_events_type_ts
ON telemetry_events(type, timestamp);
`

// timestampLayout is fixed-width so timestamps compare correctly as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// #endregion schema

// #region sqlite-sink

// SQLiteSink appends events to the telemetry_events table. Rows are never
// updated or deleted.
type SQLiteSink struct {
	db     *sql.DB
	owned  bool
	closed atomic.Bool
}

// OpenSQLiteSink opens (or creates) a telemetry database at path.
func OpenSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := patterns.OpenDB(path)
	if err != nil {
		return nil, err
	}
	s, err := NewSQLiteSink(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// NewSQLiteSink migrates db and writes to it. The caller keeps ownership of
// db; Close on the sink leaves it open. This lets the sink share a file with
// the pattern store.
func NewSQLiteSink(db *sql.DB) (*SQLiteSink, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate telemetry: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

// Write inserts one event. Duplicate IDs are ignored so a retried write is harmless.
func (s *SQLiteSink) Write(ctx context.Context, e Event) error {
	if s.closed.Load() {
		return ErrSinkClosed
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO telemetry_events (id, type, timestamp, payload)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		e.ID,
		string(e.Type),
		e.Timestamp.UTC().Format(timestampLayout),
		string(e.Payload),
	)
	if err != nil {
		return fmt.Errorf("write telemetry event: %w", err)
	}
	return nil
}

// Close stops further writes and closes the database if the sink opened it.
func (s *SQLiteSink) Close() error {
	if s.closed.Swap(true) || !s.owned {
		return nil
	}
	return s.db.Close()
}

// #endregion sqlite-sink

// #region reader

// Filter narrows an Events query. Zero values mean no constraint.
type Filter struct {
	Type  EventType
	Since time.Time
	Limit int
}

// Events returns recorded events in insertion order.
func (s *SQLiteSink) Events(ctx context.Context, f Filter) ([]Event, error) {
	var (
		where []string
		args  []any
	)
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}
	if !f.Since.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, f.Since.UTC().Format(timestampLayout))
	}

	q := "SELECT id, type, timestamp, payload FROM telemetry_events"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY seq ASC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query telemetry events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e       Event
			typ, ts string
			payload string
		)
		if err := rows.Scan(&e.ID, &typ, &ts, &payload); err != nil {
			return nil, fmt.Errorf("scan telemetry event: %w", err)
		}
		e.Type = EventType(typ)
		e.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse telemetry timestamp: %w", err)
		}
		e.Payload = []byte(payload)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate telemetry events: %w", err)
	}
	return out, nil
}

// Count returns the number of recorded events of type typ, or of all types
// when typ is empty.
func (s *SQLiteSink) Count(ctx context.Context, typ EventType) (int, error) {
	q := "SELECT COUNT(*) FROM telemetry_events"
	var args []any
	if typ != "" {
		q += " WHERE type = ?"
		args = append(args, string(typ))
	}
	var n int
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count telemetry events: %w", err)
	}
	return n, nil
}

// #endregion reader
