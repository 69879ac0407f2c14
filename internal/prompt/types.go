// Package prompt assembles the retrieval-augmented prompt sent to a model
// tier: the user's query plus a few-shot block of similar past answers.
package prompt

import (
	"time"

	"github.com/danielpatrickdp/adaptive-triage/internal/patterns"
)

// #region query

// Query is one user request. It is not modified after construction.
type Query struct {
	Text         string    `json:"text"`
	ContextHints []string  `json:"context_hints,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewQuery stamps text with the current time.
func NewQuery(text string, hints ...string) Query {
	return Query{Text: text, ContextHints: hints, Timestamp: time.Now().UTC()}
}

// #endregion query

// #region config

// Config holds limits for the retrieval gates.
type Config struct {
	TopK            int     `yaml:"top_k" validate:"gte=1,lte=10"`
	SimilarityFloor float64 `yaml:"similarity_floor" validate:"gte=0,lte=1"`
	MaxEntryLen     int     `yaml:"max_entry_len" validate:"gte=0"`
}

// DefaultConfig returns the stock retrieval limits.
func DefaultConfig() Config {
	return Config{
		TopK:            4,
		SimilarityFloor: 0.3,
		MaxEntryLen:     2000,
	}
}

// #endregion config

// #region prompt

// GateResult records how many candidates survived each retrieval gate.
type GateResult struct {
	Searched   int    `json:"searched"`
	AboveFloor int    `json:"above_floor"`
	Consistent int    `json:"consistent"`
	Reason     string `json:"reason"`
}

// Prompt is the rendered text plus the context that went into it.
type Prompt struct {
	Text              string           `json:"text"`
	Context           []patterns.Match `json:"context"`
	RetrievalDegraded bool             `json:"retrieval_degraded"`
	Gates             GateResult       `json:"gates"`
	// Embedding is the query vector, nil when embedding failed.
	Embedding []float32 `json:"-"`
}

// #endregion prompt
