package patterns

import (
	"context"
	"errors"
	"time"
)

// #region outcome

// Outcome labels whether a remembered answer held up.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeUnknown Outcome = "unknown"
)

// ParseOutcome maps free text to an Outcome; anything unrecognised is unknown.
func ParseOutcome(s string) Outcome {
	switch Outcome(s) {
	case OutcomeSuccess, OutcomeFailure:
		return Outcome(s)
	default:
		return OutcomeUnknown
	}
}

// #endregion

// #region entry

// Entry is one remembered query/response pair. Entries are append-only:
// a correction is stored as a new entry and the old one is marked superseded.
type Entry struct {
	ID           string    `json:"id"`
	Embedding    []float32 `json:"-"`
	SourceText   string    `json:"source_text"`
	ResponseText string    `json:"response_text"`
	Outcome      Outcome   `json:"outcome"`
	CreatedAt    time.Time `json:"created_at"`
	SupersededBy string    `json:"superseded_by,omitempty"`
}

// Match pairs an entry with its similarity to the probe, in [0,1].
type Match struct {
	Entry      Entry   `json:"entry"`
	Similarity float64 `json:"similarity"`
}

// #endregion

// #region store

// Store is a similarity index over pattern entries.
// Implementations must allow concurrent readers and writers.
type Store interface {
	// Upsert writes e; a second write with the same ID replaces the first.
	Upsert(ctx context.Context, e Entry) error
	// QuerySimilar returns up to k live entries ordered by similarity
	// descending, newer first on ties.
	QuerySimilar(ctx context.Context, embedding []float32, k int) ([]Match, error)
	Close() error
}

var (
	ErrNotFound    = errors.New("pattern not found")
	ErrNoEmbedding = errors.New("pattern has no embedding")
	ErrUnavailable = errors.New("pattern store unavailable")
)

// #endregion
