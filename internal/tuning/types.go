// Package tuning replays recorded routing decisions against candidate
// escalation thresholds and summarises pattern outcomes per complexity
// bucket. It runs offline; nothing here touches a live router.
package tuning

import (
	"github.com/danielpatrickdp/adaptive-triage/internal/complexity"
	"github.com/danielpatrickdp/adaptive-triage/internal/router"
)

// #region sample

// Sample is one recorded routing decision reduced to what threshold replay needs.
type Sample struct {
	Bucket complexity.Bucket `json:"bucket" yaml:"bucket"`
	Reason router.Reason     `json:"reason" yaml:"reason"`
	// FastConfidence is the fast tier's score when the fast tier answered.
	// Nil for decisions the threshold could not have changed.
	FastConfidence *float64 `json:"fast_confidence,omitempty" yaml:"fast_confidence,omitempty"`
}

// Gated reports whether the escalation threshold decided this sample.
func (s Sample) Gated() bool {
	return s.FastConfidence != nil
}

// #endregion sample

// #region results

// ThresholdResult is the replay outcome for one candidate threshold.
type ThresholdResult struct {
	Threshold      float64 `json:"threshold"`
	Total          int     `json:"total"`
	Gated          int     `json:"gated"`
	FastResolved   int     `json:"fast_resolved"`
	Escalated      int     `json:"escalated"`
	FastShare      float64 `json:"fast_share"`
	EscalationRate float64 `json:"escalation_rate"`
}

// Recommendation is the threshold suggested for a fast-share target.
type Recommendation struct {
	Threshold float64 `json:"threshold"`
	FastShare float64 `json:"fast_share"`
	Target    float64 `json:"target"`
	// Met is false when no candidate reaches the target; Threshold is then
	// the candidate with the highest fast share.
	Met bool `json:"met"`
}

// BucketStat is the decay-weighted acceptance of remembered answers in one bucket.
type BucketStat struct {
	Bucket     complexity.Bucket `json:"bucket"`
	Samples    int               `json:"samples"`
	Acceptance float64           `json:"acceptance"`
	// Sufficient is false below MinSamples; Acceptance is then not reported.
	Sufficient bool `json:"sufficient"`
}

// Report bundles a full tuning run.
type Report struct {
	Samples        int               `json:"samples"`
	Skipped        int               `json:"skipped"`
	Thresholds     []ThresholdResult `json:"thresholds"`
	Recommendation Recommendation    `json:"recommendation"`
	Buckets        []BucketStat      `json:"buckets,omitempty"`
	Advice         []string          `json:"advice,omitempty"`
}

// #endregion results
