package inference

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// CachedEmbedder collapses concurrent embeds of identical text into one
// backend call. The returned slice is shared between callers and must not
// be modified.
type CachedEmbedder struct {
	inner Embedder
	group singleflight.Group
}

// NewCachedEmbedder wraps inner.
func NewCachedEmbedder(inner Embedder) *CachedEmbedder {
	return &CachedEmbedder{inner: inner}
}

// Embed implements Embedder.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err, _ := c.group.Do(text, func() (any, error) {
		return c.inner.Embed(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	return v.([]float32), nil
}
