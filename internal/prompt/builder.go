package prompt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/danielpatrickdp/adaptive-triage/internal/inference"
	"github.com/danielpatrickdp/adaptive-triage/internal/patterns"
)

var tracer = otel.Tracer("adaptive-triage.prompt")

// #region builder

// Searcher is the retrieval side of the pattern store; *patterns.Resilient
// satisfies it. degraded is true when the store could not be queried.
type Searcher interface {
	Search(ctx context.Context, embedding []float32, k int) (matches []patterns.Match, degraded bool)
}

// Builder turns a Query into a Prompt.
type Builder struct {
	embedder inference.Embedder
	searcher Searcher
	cfg      Config
	logger   *slog.Logger
}

// NewBuilder wires an embedder and a searcher. Either may be nil, in which
// case every prompt is built without context and marked degraded.
func NewBuilder(embedder inference.Embedder, searcher Searcher, cfg Config, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		embedder: embedder,
		searcher: searcher,
		cfg:      cfg,
		logger:   logger.With("component", "prompt"),
	}
}

// #endregion builder

// #region build

// Build retrieves similar past answers and renders the prompt. Retrieval
// problems never fail the build; only caller cancellation does.
//
// Gates:
//  1. Similarity: drop matches below SimilarityFloor
//  2. Consistency: non-empty, within MaxEntryLen, not failed, not superseded, no duplicates
//  3. Top-K: keep the best TopK
func (b *Builder) Build(ctx context.Context, q Query) (Prompt, error) {
	ctx, span := tracer.Start(ctx, "prompt.Build")
	defer span.End()

	p := Prompt{}
	vec, matches, degraded, reason := b.retrieve(ctx, q)
	if err := ctx.Err(); err != nil {
		return Prompt{}, fmt.Errorf("build prompt: %w", err)
	}
	p.RetrievalDegraded = degraded
	p.Embedding = vec
	p.Gates.Searched = len(matches)

	above := b.similarityGate(matches)
	p.Gates.AboveFloor = len(above)

	consistent := b.consistencyGate(above)
	if len(consistent) > b.cfg.TopK {
		consistent = consistent[:b.cfg.TopK]
	}
	p.Gates.Consistent = len(consistent)
	p.Context = consistent

	switch {
	case reason != "":
		p.Gates.Reason = reason
	case p.Gates.Searched == 0:
		p.Gates.Reason = "no similar patterns"
	case p.Gates.AboveFloor == 0:
		p.Gates.Reason = "no patterns above similarity floor"
	case p.Gates.Consistent == 0:
		p.Gates.Reason = "all patterns failed consistency check"
	default:
		p.Gates.Reason = fmt.Sprintf("retrieved %d patterns (searched=%d, above_floor=%d)",
			p.Gates.Consistent, p.Gates.Searched, p.Gates.AboveFloor)
	}

	span.SetAttributes(
		attribute.Int("prompt.context", len(p.Context)),
		attribute.Bool("prompt.retrieval_degraded", p.RetrievalDegraded),
	)
	p.Text = Render(q, p.Context)
	return p, nil
}

func (b *Builder) retrieve(ctx context.Context, q Query) ([]float32, []patterns.Match, bool, string) {
	if b.embedder == nil {
		return nil, nil, true, "retrieval not configured"
	}
	vec, err := b.embedder.Embed(ctx, q.Text)
	if err != nil {
		if ctx.Err() == nil {
			b.logger.Warn("embed failed, building prompt without context", "error", err)
		}
		return nil, nil, true, "embedding unavailable"
	}
	if b.searcher == nil {
		return vec, nil, true, "retrieval not configured"
	}
	// over-fetch so the consistency gate does not starve top-K
	matches, degraded := b.searcher.Search(ctx, vec, b.cfg.TopK*2)
	if degraded {
		return vec, nil, true, "pattern store unavailable"
	}
	return vec, matches, false, ""
}

// #endregion build

// #region gates

func (b *Builder) similarityGate(ms []patterns.Match) []patterns.Match {
	var out []patterns.Match
	for _, m := range ms {
		if m.Similarity >= b.cfg.SimilarityFloor {
			out = append(out, m)
		}
	}
	return out
}

func (b *Builder) consistencyGate(ms []patterns.Match) []patterns.Match {
	seenID := make(map[string]bool)
	seenSource := make(map[string]bool)
	var out []patterns.Match
	for _, m := range ms {
		e := m.Entry
		if strings.TrimSpace(e.SourceText) == "" || strings.TrimSpace(e.ResponseText) == "" {
			continue
		}
		if b.cfg.MaxEntryLen > 0 && len(e.SourceText)+len(e.ResponseText) > b.cfg.MaxEntryLen {
			continue
		}
		if e.Outcome == patterns.OutcomeFailure || e.SupersededBy != "" {
			continue
		}
		source := strings.ToLower(strings.TrimSpace(e.SourceText))
		if (e.ID != "" && seenID[e.ID]) || seenSource[source] {
			continue
		}
		seenID[e.ID] = true
		seenSource[source] = true
		out = append(out, m)
	}
	return out
}

// #endregion gates
