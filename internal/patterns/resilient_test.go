package patterns

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct {
	Store
	err error
}

func (f failingStore) QuerySimilar(context.Context, []float32, int) ([]Match, error) {
	return nil, f.err
}

func TestResilient_DegradesToEmpty(t *testing.T) {
	r := NewResilient(failingStore{err: errors.New("connection refused")}, nil)

	ms, degraded := r.Search(context.Background(), []float32{1}, 3)
	assert.Empty(t, ms)
	assert.True(t, degraded)

	ms, err := r.QuerySimilar(context.Background(), []float32{1}, 3)
	assert.NoError(t, err)
	assert.Empty(t, ms)
}

func TestResilient_PassesThrough(t *testing.T) {
	s := tempStore(t)
	r := NewResilient(s, nil)
	ctx := context.Background()
	require.NoError(t, r.Upsert(ctx, Entry{Embedding: []float32{1, 0}, SourceText: "q", ResponseText: "a"}))

	ms, degraded := r.Search(ctx, []float32{1, 0}, 3)
	assert.False(t, degraded)
	assert.Len(t, ms, 1)
	assert.Same(t, s, r.Unwrap())
}

func TestResilient_NilInner(t *testing.T) {
	r := NewResilient(nil, nil)
	_, degraded := r.Search(context.Background(), []float32{1}, 3)
	assert.True(t, degraded)
	assert.ErrorIs(t, r.Upsert(context.Background(), Entry{}), ErrUnavailable)
	assert.NoError(t, r.Close())
}
