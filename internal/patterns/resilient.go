package patterns

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// #region resilient

// Resilient wraps a Store so retrieval failures degrade to an empty result
// instead of failing the request. Warnings are throttled.
type Resilient struct {
	inner  Store
	logger *slog.Logger
	warn   *rate.Sometimes
}

// NewResilient wraps inner. A nil logger uses slog.Default().
func NewResilient(inner Store, logger *slog.Logger) *Resilient {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resilient{
		inner:  inner,
		logger: logger.With("component", "patterns"),
		warn:   &rate.Sometimes{First: 1, Interval: 30 * time.Second},
	}
}

// Search returns the best k matches and whether retrieval was degraded.
// It never returns an error.
func (r *Resilient) Search(ctx context.Context, embedding []float32, k int) ([]Match, bool) {
	if r.inner == nil {
		return nil, true
	}
	ms, err := r.inner.QuerySimilar(ctx, embedding, k)
	if err != nil {
		r.warn.Do(func() {
			r.logger.Warn("retrieval unavailable, continuing with empty context", "error", err)
		})
		return nil, true
	}
	return ms, false
}

// QuerySimilar satisfies Store; errors are swallowed as in Search.
func (r *Resilient) QuerySimilar(ctx context.Context, embedding []float32, k int) ([]Match, error) {
	ms, _ := r.Search(ctx, embedding, k)
	return ms, nil
}

// Upsert passes through; write failures are the caller's to log.
func (r *Resilient) Upsert(ctx context.Context, e Entry) error {
	if r.inner == nil {
		return ErrUnavailable
	}
	return r.inner.Upsert(ctx, e)
}

// Close closes the wrapped store.
func (r *Resilient) Close() error {
	if r.inner == nil {
		return nil
	}
	return r.inner.Close()
}

// Unwrap returns the wrapped store.
func (r *Resilient) Unwrap() Store {
	return r.inner
}

// #endregion
