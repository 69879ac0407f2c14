// Package router picks the model tier for each query, judges the fast
// tier's answer and escalates to the deep tier when it is not good enough.
package router

import (
	"errors"

	"github.com/danielpatrickdp/adaptive-triage/internal/complexity"
	"github.com/danielpatrickdp/adaptive-triage/internal/inference"
)

// ErrNoInferenceAvailable is returned when neither tier can answer.
var ErrNoInferenceAvailable = errors.New("no inference available")

// #region policy

// MediumPolicy controls how medium-bucket queries are routed.
type MediumPolicy string

const (
	// MediumDeep sends medium queries straight to the deep tier.
	MediumDeep MediumPolicy = "deep"
	// MediumGated tries the fast tier first and escalates on low confidence.
	MediumGated MediumPolicy = "gated"
)

// Policy holds the routing knobs.
type Policy struct {
	EscalationThreshold float64      `yaml:"escalation_threshold" validate:"gte=0,lte=1"`
	MediumPolicy        MediumPolicy `yaml:"medium_policy" validate:"oneof=deep gated"`
}

// DefaultPolicy escalates below 0.7 and sends medium queries to the deep tier.
func DefaultPolicy() Policy {
	return Policy{EscalationThreshold: 0.7, MediumPolicy: MediumDeep}
}

// #endregion policy

// #region decision

// Reason explains why a query ended on the tier it did.
type Reason string

const (
	ReasonConfident       Reason = "confident"
	ReasonBucket          Reason = "bucket"
	ReasonLowConfidence   Reason = "low_confidence"
	ReasonFastUnavailable Reason = "fast_unavailable"
	ReasonFastTimeout     Reason = "fast_timeout"
	ReasonFastBusy        Reason = "fast_busy"
	ReasonDeepUnavailable Reason = "deep_unavailable"
	ReasonDeepTimeout     Reason = "deep_timeout"
	ReasonNoInference     Reason = "no_inference"
)

// Decision is the routing record written to telemetry.
type Decision struct {
	TierUsed   inference.Tier    `json:"tier_used"`
	Escalated  bool              `json:"escalated"`
	Confidence float64           `json:"confidence"`
	LatencyMS  int64             `json:"latency_ms"`
	Bucket     complexity.Bucket `json:"bucket"`
	Reason     Reason            `json:"reason"`
	// FastConfidence is the discarded fast-tier score when the query escalated
	// on low confidence.
	FastConfidence *float64 `json:"fast_confidence,omitempty"`
}

// Result is what Route hands back to the caller.
type Result struct {
	Response    string   `json:"response"`
	Model       string   `json:"model,omitempty"`
	Decision    Decision `json:"decision"`
	Degraded    bool     `json:"degraded"`
	NoInference bool     `json:"no_inference"`
}

// #endregion decision
