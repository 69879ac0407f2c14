// Package arbitration scores detected code findings on four dimensions and
// maps the total to a priority tier and a scheduling action.
package arbitration

import (
	"strings"
)

// #region category

// Category is the closed set of finding kinds the score table knows.
type Category string

const (
	CategoryDuplication  Category = "duplication-without-search"
	CategoryDependency   Category = "dependency-issue"
	CategoryDeadCode     Category = "dead-code"
	CategoryProtocol     Category = "protocol-violation"
	CategoryOrphanedFile Category = "orphaned-file"
	CategoryUnknown      Category = "unknown"
)

// Categories lists every category, unknown last.
func Categories() []Category {
	return []Category{
		CategoryDuplication, CategoryDependency, CategoryDeadCode,
		CategoryProtocol, CategoryOrphanedFile, CategoryUnknown,
	}
}

// ParseCategory normalises case, spacing and underscores. Anything outside
// the closed set maps to CategoryUnknown.
func ParseCategory(s string) Category {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("_", "-", " ", "-").Replace(norm)
	for _, c := range Categories() {
		if Category(norm) == c {
			return c
		}
	}
	return CategoryUnknown
}

// #endregion category

// #region finding

// Finding is one issue reported by a detector.
type Finding struct {
	ID          string `json:"id,omitempty"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Evidence    string `json:"evidence,omitempty"`
	// DetectorConfidence is optional; nil means the detector did not say.
	DetectorConfidence *float64 `json:"detector_confidence,omitempty"`
}

// #endregion finding

// #region priority

// Priority is the tier derived from a score total.
type Priority string

const (
	P0 Priority = "P0"
	P1 Priority = "P1"
	P2 Priority = "P2"
	P3 Priority = "P3"
	P4 Priority = "P4"
)

// Index returns 0 for P0 through 4 for P4.
func (p Priority) Index() int {
	switch p {
	case P0:
		return 0
	case P1:
		return 1
	case P2:
		return 2
	case P3:
		return 3
	default:
		return 4
	}
}

// TierFor maps a total in [4,20] to its priority tier.
func TierFor(total int) Priority {
	switch {
	case total >= 16:
		return P0
	case total >= 13:
		return P1
	case total >= 10:
		return P2
	case total >= 7:
		return P3
	default:
		return P4
	}
}

// Action is what the scheduler should do with a finding.
type Action string

const (
	ActionExecuteNow     Action = "execute_now"
	ActionBatchSession   Action = "batch_session"
	ActionScheduleSprint Action = "schedule_sprint"
	ActionDefer          Action = "defer"
	ActionBacklog        Action = "backlog"
)

// ActionFor maps a tier to its action.
func ActionFor(p Priority) Action {
	switch p {
	case P0:
		return ActionExecuteNow
	case P1:
		return ActionBatchSession
	case P2:
		return ActionScheduleSprint
	case P3:
		return ActionDefer
	default:
		return ActionBacklog
	}
}

// #endregion priority

// #region score

// Score is the four-dimension MPS score. Each dimension is in [1,5].
type Score struct {
	Complexity   int      `json:"complexity"`
	Importance   int      `json:"importance"`
	Deferability int      `json:"deferability"`
	Impact       int      `json:"impact"`
	Total        int      `json:"total"`
	Tier         Priority `json:"priority_tier"`
}

// Decision is the arbitration outcome for one finding. Decisions are final;
// nothing re-arbitrates a finding automatically.
type Decision struct {
	FindingID    string   `json:"finding_id"`
	Category     Category `json:"category"`
	Score        Score    `json:"scores"`
	Action       Action   `json:"action"`
	Reasoning    string   `json:"reasoning"`
	TableVersion string   `json:"table_version"`
	Malformed    bool     `json:"malformed,omitempty"`
}

// #endregion score
