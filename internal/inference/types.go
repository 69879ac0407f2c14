// Package inference wraps the fast and deep model tiers behind a common
// Backend interface and enforces per-tier single-flight access.
package inference

import "context"

// #region tier

// Tier names a model tier.
type Tier string

const (
	TierFast Tier = "fast"
	TierDeep Tier = "deep"
)

// #endregion

// #region output

// Output is one model completion. Certainty is the backend's own estimate
// in [0,1] when it reports one (e.g. from token log-probabilities).
type Output struct {
	Text      string
	Certainty *float64
	Entropy   *float64
	Model     string
}

// #endregion

// #region interfaces

// Backend produces a completion for a fully rendered prompt.
type Backend interface {
	Generate(ctx context.Context, prompt string) (Output, error)
}

// Embedder turns text into a vector for pattern retrieval.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, prompt string) (Output, error)

func (f BackendFunc) Generate(ctx context.Context, prompt string) (Output, error) {
	return f(ctx, prompt)
}

// EmbedderFunc adapts a function to Embedder.
type EmbedderFunc func(ctx context.Context, text string) ([]float32, error)

func (f EmbedderFunc) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

// #endregion
