package prompt

import (
	"fmt"
	"strings"

	"github.com/danielpatrickdp/adaptive-triage/internal/patterns"
)

// Render lays out hints, few-shot examples and the question. With no hints
// and no context the query text is returned unchanged.
func Render(q Query, examples []patterns.Match) string {
	if len(examples) == 0 && len(q.ContextHints) == 0 {
		return q.Text
	}

	var b strings.Builder
	if len(q.ContextHints) > 0 {
		b.WriteString("### Context\n")
		for _, h := range q.ContextHints {
			fmt.Fprintf(&b, "- %s\n", h)
		}
		b.WriteString("\n")
	}
	if len(examples) > 0 {
		b.WriteString("### Similar past questions\n")
		for i, m := range examples {
			fmt.Fprintf(&b, "\nExample %d (similarity %.2f)\nQ: %s\nA: %s\n",
				i+1, m.Similarity, strings.TrimSpace(m.Entry.SourceText), strings.TrimSpace(m.Entry.ResponseText))
		}
		b.WriteString("\n")
	}
	b.WriteString("### Question\n")
	b.WriteString(q.Text)
	return b.String()
}
