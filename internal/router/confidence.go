package router

import (
	"strings"
	"unicode"

	"github.com/danielpatrickdp/adaptive-triage/internal/inference"
)

// #region estimator

// ConfidenceEstimator scores a model answer in [0,1].
type ConfidenceEstimator interface {
	EstimateConfidence(query string, out inference.Output) float64
}

// HeuristicEstimator prefers the backend's own certainty and otherwise
// scores the answer text. Detected failure patterns cap the score below
// any sensible escalation threshold.
type HeuristicEstimator struct {
	// EntropyCeiling is the entropy treated as maximally uncertain.
	EntropyCeiling float64
}

// NewHeuristicEstimator returns an estimator with the default entropy ceiling.
func NewHeuristicEstimator() HeuristicEstimator {
	return HeuristicEstimator{EntropyCeiling: 4.0}
}

// failureCap bounds confidence once a failure pattern is found.
const failureCap = 0.35

// EstimateConfidence implements ConfidenceEstimator.
func (h HeuristicEstimator) EstimateConfidence(query string, out inference.Output) float64 {
	trimmed := strings.TrimSpace(out.Text)
	lower := strings.ToLower(trimmed)

	var conf float64
	if out.Certainty != nil {
		conf = clamp01(*out.Certainty)
	} else {
		conf = scoreAnswer(query, trimmed, lower)
		if out.Entropy != nil && h.EntropyCeiling > 0 {
			conf *= 1 - 0.5*min(max(*out.Entropy, 0)/h.EntropyCeiling, 1)
		}
	}

	if detectFailure(trimmed, lower) != failureNone {
		conf = min(conf, failureCap)
	}
	return clamp01(conf)
}

// #endregion estimator

// #region failure-patterns

type failureKind string

const (
	failureNone       failureKind = ""
	failureEmpty      failureKind = "empty"
	failureRepetition failureKind = "repetition"
	failureRefusal    failureKind = "refusal"
	failureDeflection failureKind = "deflection"
	failureHedge      failureKind = "hedge"
)

var refusalPatterns = []string{
	"i cannot", "i can't", "as an ai", "as a language model",
	"i'm not able to", "i am not able to", "beyond my capabilities",
	"i don't have access",
}

var deflectionPatterns = []string{
	"how can i help", "what would you like", "let me know how i can",
	"is there anything else", "feel free to ask", "could you clarify",
	"can you provide more",
}

var hedgePatterns = []string{
	"i'm not sure", "i am not sure", "i don't know", "i do not know",
	"it depends", "hard to say", "not certain", "unclear", "possibly",
	"might be", "may or may not", "i think", "probably",
}

func detectFailure(trimmed, lower string) failureKind {
	if len(strings.TrimFunc(trimmed, unicode.IsSpace)) == 0 {
		return failureEmpty
	}
	if hasRepetition(lower) {
		return failureRepetition
	}
	if countPatterns(lower, refusalPatterns) >= 1 && len(strings.Fields(lower)) < 40 {
		return failureRefusal
	}
	if countPatterns(lower, deflectionPatterns) > 0 && len(strings.Fields(lower)) < 30 {
		return failureDeflection
	}
	if countPatterns(lower, hedgePatterns) >= 2 {
		return failureHedge
	}
	return failureNone
}

func countPatterns(lower string, pats []string) int {
	n := 0
	for _, p := range pats {
		if strings.Contains(lower, p) {
			n++
		}
	}
	return n
}

// hasRepetition reports three or more identical sentences.
func hasRepetition(lower string) bool {
	sentences := strings.FieldsFunc(lower, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
	if len(sentences) < 3 {
		return false
	}
	counts := make(map[string]int)
	for _, s := range sentences {
		s = strings.TrimSpace(s)
		if len(s) > 10 {
			counts[s]++
			if counts[s] >= 3 {
				return true
			}
		}
	}
	return false
}

// #endregion failure-patterns

// #region answer-score

// scoreAnswer mixes length adequacy, engagement with the query, absence of
// hedging and novelty (not an echo of the query).
func scoreAnswer(query, trimmed, lower string) float64 {
	words := strings.Fields(trimmed)
	wc := len(words)

	var length float64
	switch {
	case wc < 5:
		length = float64(wc) / 10
	case wc <= 30:
		length = 0.5 + 0.5*float64(wc-5)/25
	default:
		length = 1
	}

	queryWords := strings.Fields(strings.ToLower(query))
	answerSet := make(map[string]bool, wc)
	for _, w := range strings.Fields(lower) {
		answerSet[strings.Trim(w, ".,:;!?()`\"'")] = true
	}
	var significant, shared int
	for _, qw := range queryWords {
		qw = strings.Trim(qw, ".,:;!?()`\"'")
		if len(qw) <= 3 {
			continue
		}
		significant++
		if answerSet[qw] {
			shared++
		}
	}
	engagement := 1.0
	if significant > 0 {
		engagement = min(float64(shared)/float64(significant)*2, 1)
	}

	hedging := float64(countPatterns(lower, hedgePatterns)) / 3
	novelty := 1.0
	queryLower := strings.ToLower(strings.TrimSpace(query))
	if len(queryLower) > 10 && strings.Contains(lower, queryLower) && wc < 2*len(queryWords) {
		novelty = 0.3
	}

	return clamp01(0.35*length + 0.25*engagement + 0.2*(1-min(hedging, 1)) + 0.2*novelty)
}

func clamp01(v float64) float64 {
	return max(0, min(1, v))
}

// #endregion answer-score
