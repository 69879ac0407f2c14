package router

import (
	"fmt"
	"strings"

	"github.com/danielpatrickdp/adaptive-triage/internal/patterns"
)

// DegradedMarker prefixes every answer assembled without a model.
const DegradedMarker = "[degraded: deep tier unavailable; answer assembled from retrieved context only]"

// fallbackConfidenceScale keeps context-only answers well below any
// escalation threshold.
const fallbackConfidenceScale = 0.25

// Fallback builds a deterministic answer from retrieved context alone.
// Confidence is a quarter of the best similarity, or 0 with no context.
func Fallback(ragContext []patterns.Match) (string, float64) {
	var b strings.Builder
	b.WriteString(DegradedMarker)
	b.WriteString("\n")
	if len(ragContext) == 0 {
		b.WriteString("No retrieved context matched this query.")
		return b.String(), 0
	}

	var top float64
	b.WriteString("Closest past answers:\n")
	for i, m := range ragContext {
		top = max(top, m.Similarity)
		fmt.Fprintf(&b, "\n%d. (similarity %.2f) Q: %s\n   A: %s\n",
			i+1, m.Similarity, strings.TrimSpace(m.Entry.SourceText), strings.TrimSpace(m.Entry.ResponseText))
	}
	return b.String(), clamp01(top * fallbackConfidenceScale)
}
