package patterns

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS pattern_entries (
	id             TEXT PRIMARY KEY,
	embedding      BLOB NOT NULL,
	dims           INTEGER NOT NULL,
	source_text    TEXT NOT NULL,
	response_text  TEXT NOT NULL,
	outcome        TEXT NOT NULL DEFAULT 'unknown',
	created_at     TEXT NOT NULL,
	superseded_by  TEXT
);

CREATE INDEX IF NOT EXISTS idx_pattern_entries_live
ON pattern_entries(superseded_by, dims);
`

// #endregion schema

// #region store-struct

// SQLiteStore keeps pattern entries in a local SQLite file and scores
// similarity in process. Suitable for the single-host deployment.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// #endregion store-struct

// #region constructor

// OpenSQLite opens (or creates) the pattern database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	s, err := NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenDB opens a SQLite handle with the busy timeout set on every pooled
// connection. Shared with the telemetry sink.
func OpenDB(path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if path == ":memory:" {
		// each pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// NewSQLiteStore runs migrations on an already-open database.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	for _, p := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB so the telemetry sink can share the file.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// #endregion constructor

// #region upsert

// Upsert writes e, filling in ID and CreatedAt when empty. Last writer wins.
func (s *SQLiteStore) Upsert(ctx context.Context, e Entry) error {
	_, err := s.upsert(ctx, s.db, e)
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) upsert(ctx context.Context, db execer, e Entry) (Entry, error) {
	if len(e.Embedding) == 0 {
		return Entry{}, ErrNoEmbedding
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	if e.Outcome == "" {
		e.Outcome = OutcomeUnknown
	}

	var superseded any
	if e.SupersededBy != "" {
		superseded = e.SupersededBy
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO pattern_entries
		 (id, embedding, dims, source_text, response_text, outcome, created_at, superseded_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   embedding = excluded.embedding,
		   dims = excluded.dims,
		   source_text = excluded.source_text,
		   response_text = excluded.response_text,
		   outcome = excluded.outcome,
		   created_at = excluded.created_at,
		   superseded_by = excluded.superseded_by`,
		e.ID, encodeVector(e.Embedding), len(e.Embedding), e.SourceText, e.ResponseText,
		string(e.Outcome), e.CreatedAt.Format(time.RFC3339Nano), superseded,
	)
	if err != nil {
		return Entry{}, fmt.Errorf("upsert pattern %s: %w", e.ID, err)
	}
	return e, nil
}

// #endregion upsert

// #region supersede

// Supersede appends corrected as a new entry and marks oldID as replaced by it,
// atomically. The corrected entry inherits the old embedding when it has none.
func (s *SQLiteStore) Supersede(ctx context.Context, oldID string, corrected Entry) (Entry, error) {
	old, err := s.Get(ctx, oldID)
	if err != nil {
		return Entry{}, err
	}
	if len(corrected.Embedding) == 0 {
		corrected.Embedding = old.Embedding
	}
	if corrected.SourceText == "" {
		corrected.SourceText = old.SourceText
	}
	if corrected.ResponseText == "" {
		corrected.ResponseText = old.ResponseText
	}
	corrected.ID = ""
	corrected.CreatedAt = time.Time{}
	corrected.SupersededBy = ""

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	written, err := s.upsert(ctx, tx, corrected)
	if err != nil {
		return Entry{}, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE pattern_entries SET superseded_by = ? WHERE id = ?`, written.ID, oldID,
	); err != nil {
		return Entry{}, fmt.Errorf("mark superseded: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Entry{}, fmt.Errorf("commit: %w", err)
	}
	return written, nil
}

// #endregion supersede

// #region query-similar

// QuerySimilar scores every live entry with a matching dimension against
// embedding and returns the best k. An empty store yields an empty slice.
func (s *SQLiteStore) QuerySimilar(ctx context.Context, embedding []float32, k int) ([]Match, error) {
	if k <= 0 || len(embedding) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, embedding, source_text, response_text, outcome, created_at, superseded_by
		 FROM pattern_entries WHERE superseded_by IS NULL AND dims = ?`, len(embedding),
	)
	if err != nil {
		return nil, fmt.Errorf("query patterns: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, Match{Entry: e, Similarity: Cosine(embedding, e.Embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate patterns: %w", err)
	}
	return topK(matches, k), nil
}

// #endregion query-similar

// #region get

// Get returns one entry by ID, live or superseded.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, embedding, source_text, response_text, outcome, created_at, superseded_by
		 FROM pattern_entries WHERE id = ?`, id,
	)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("get pattern %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get pattern %s: %w", id, err)
	}
	return e, nil
}

// Count returns the number of live (non-superseded) entries.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pattern_entries WHERE superseded_by IS NULL`,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count patterns: %w", err)
	}
	return n, nil
}

// OutcomeRow is the slice of an entry the tuning report needs.
type OutcomeRow struct {
	SourceText string
	Outcome    Outcome
	CreatedAt  time.Time
}

// Outcomes lists every live entry with a known outcome, oldest first.
func (s *SQLiteStore) Outcomes(ctx context.Context) ([]OutcomeRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_text, outcome, created_at FROM pattern_entries
		 WHERE superseded_by IS NULL AND outcome != 'unknown'
		 ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var out []OutcomeRow
	for rows.Next() {
		var r OutcomeRow
		var outcome, createdStr string
		if err := rows.Scan(&r.SourceText, &outcome, &createdStr); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		r.Outcome = ParseOutcome(outcome)
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, r)
	}
	return out, rows.Err()
}

// #endregion get

// #region scan

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (Entry, error) {
	var e Entry
	var vecBlob []byte
	var outcome, createdStr string
	var superseded sql.NullString
	if err := sc.Scan(&e.ID, &vecBlob, &e.SourceText, &e.ResponseText, &outcome, &createdStr, &superseded); err != nil {
		return Entry{}, err
	}
	e.Embedding = decodeVector(vecBlob)
	e.Outcome = ParseOutcome(outcome)
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	if superseded.Valid {
		e.SupersededBy = superseded.String
	}
	return e, nil
}

// #endregion scan
