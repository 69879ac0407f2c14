// Package triage is the service facade: it classifies and routes queries,
// arbitrates findings, records telemetry and remembers answers.
package triage

import (
	"errors"

	"github.com/danielpatrickdp/adaptive-triage/internal/arbitration"
	"github.com/danielpatrickdp/adaptive-triage/internal/complexity"
	"github.com/danielpatrickdp/adaptive-triage/internal/inference"
	"github.com/danielpatrickdp/adaptive-triage/internal/router"
)

// ErrOutcomesUnsupported is returned by RecordOutcome when the pattern store
// cannot append corrections.
var ErrOutcomesUnsupported = errors.New("pattern store does not support outcome corrections")

// #region route-response

// RouteResponse is the answer to classify_and_route.
type RouteResponse struct {
	Response   string            `json:"response"`
	TierUsed   inference.Tier    `json:"tier_used,omitempty"`
	Escalated  bool              `json:"escalated"`
	Confidence float64           `json:"confidence"`
	Degraded   bool              `json:"degraded"`
	Reason     router.Reason     `json:"reason"`
	Bucket     complexity.Bucket `json:"bucket"`
	LatencyMS  int64             `json:"latency_ms"`
	Model      string            `json:"model,omitempty"`

	NoInference       bool `json:"no_inference,omitempty"`
	ContextCount      int  `json:"context_count"`
	RetrievalDegraded bool `json:"retrieval_degraded"`
	// PatternID identifies the remembered answer for later outcome reports.
	PatternID string `json:"pattern_id,omitempty"`
}

func newRouteResponse(res router.Result) RouteResponse {
	return RouteResponse{
		Response:    res.Response,
		TierUsed:    res.Decision.TierUsed,
		Escalated:   res.Decision.Escalated,
		Confidence:  res.Decision.Confidence,
		Degraded:    res.Degraded,
		Reason:      res.Decision.Reason,
		Bucket:      res.Decision.Bucket,
		LatencyMS:   res.Decision.LatencyMS,
		Model:       res.Model,
		NoInference: res.NoInference,
	}
}

// #endregion route-response

// #region arbitration-response

// Scores are the four MPS dimensions.
type Scores struct {
	Complexity   int `json:"complexity"`
	Importance   int `json:"importance"`
	Deferability int `json:"deferability"`
	Impact       int `json:"impact"`
}

// ArbitrationResponse is the answer to score_and_arbitrate.
type ArbitrationResponse struct {
	FindingID    string               `json:"finding_id"`
	Category     arbitration.Category `json:"category"`
	Scores       Scores               `json:"scores"`
	Total        int                  `json:"total"`
	PriorityTier arbitration.Priority `json:"priority_tier"`
	Action       arbitration.Action   `json:"action"`
	Reasoning    string               `json:"reasoning"`
	TableVersion string               `json:"table_version"`
	Malformed    bool                 `json:"malformed,omitempty"`
}

func newArbitrationResponse(d arbitration.Decision) ArbitrationResponse {
	return ArbitrationResponse{
		FindingID: d.FindingID,
		Category:  d.Category,
		Scores: Scores{
			Complexity:   d.Score.Complexity,
			Importance:   d.Score.Importance,
			Deferability: d.Score.Deferability,
			Impact:       d.Score.Impact,
		},
		Total:        d.Score.Total,
		PriorityTier: d.Score.Tier,
		Action:       d.Action,
		Reasoning:    d.Reasoning,
		TableVersion: d.TableVersion,
		Malformed:    d.Malformed,
	}
}

// #endregion arbitration-response
