package arbitration

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/danielpatrickdp/adaptive-triage/internal/stats"
)

var tracer = otel.Tracer("adaptive-triage.arbitration")

// #region markers

var importanceMarkers = []string{"circular", "security", "data loss", "breaking"}

var impactMarkers = []string{"production", "crash", "outage", "widespread"}

// lowDetectorConfidence is the detector confidence below which impact drops by one.
const lowDetectorConfidence = 0.3

// #endregion markers

// #region metrics

// Metrics holds arbitration collectors. A nil *Metrics records nothing.
type Metrics struct {
	decisions *prometheus.CounterVec
	malformed prometheus.Counter
}

// NewMetrics registers the arbitration collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "triage",
			Subsystem: "arbitration",
			Name:      "decisions_total",
			Help:      "Arbitration decisions by priority tier and category",
		}, []string{"priority", "category"}),
		malformed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "triage",
			Subsystem: "arbitration",
			Name:      "malformed_findings_total",
			Help:      "Findings missing a category, location or description",
		}),
	}
}

// #endregion metrics

// #region arbitrator

// Options carries the arbitrator's optional collaborators.
type Options struct {
	Stats   *stats.Aggregator
	Metrics *Metrics
	Logger  *slog.Logger
}

// Arbitrator scores findings against a Table. It is stateless apart from
// counters and safe for concurrent use.
type Arbitrator struct {
	table   Table
	stats   *stats.Aggregator
	metrics *Metrics
	logger  *slog.Logger
}

// New builds an arbitrator over table.
func New(table Table, opts Options) *Arbitrator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Arbitrator{
		table:   table,
		stats:   opts.Stats,
		metrics: opts.Metrics,
		logger:  opts.Logger.With("component", "arbitration"),
	}
}

// Table returns the active score table.
func (a *Arbitrator) Table() Table { return a.table }

// #endregion arbitrator

// #region score

// Score computes the MPS score for f. Identical findings always score
// identically.
func (a *Arbitrator) Score(f Finding) Score {
	s, _ := a.score(f)
	return s
}

func (a *Arbitrator) score(f Finding) (Score, []string) {
	c := effectiveCategory(f)
	base := a.table.Tuple(c)
	s := Score{
		Complexity:   base.Complexity,
		Importance:   base.Importance,
		Deferability: base.Deferability,
		Impact:       base.Impact,
	}
	notes := []string{fmt.Sprintf("%s base %d/%d/%d/%d", c,
		base.Complexity, base.Importance, base.Deferability, base.Impact)}

	text := strings.ToLower(f.Description + " " + f.Evidence)
	if m := firstMarker(text, importanceMarkers); m != "" && s.Importance < 5 {
		s.Importance++
		notes = append(notes, fmt.Sprintf("importance +1 (%s)", m))
	}
	if m := firstMarker(text, impactMarkers); m != "" && s.Impact < 5 {
		s.Impact++
		notes = append(notes, fmt.Sprintf("impact +1 (%s)", m))
	}
	if f.DetectorConfidence != nil && *f.DetectorConfidence < lowDetectorConfidence && s.Impact > 1 {
		s.Impact--
		notes = append(notes, fmt.Sprintf("impact -1 (detector confidence %.2f)", *f.DetectorConfidence))
	}

	s.Total = s.Complexity + s.Importance + s.Deferability + s.Impact
	s.Tier = TierFor(s.Total)
	return s, notes
}

func firstMarker(text string, markers []string) string {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return m
		}
	}
	return ""
}

// effectiveCategory applies the malformed-finding rule: a finding missing its
// category, location or description is unknown.
func effectiveCategory(f Finding) Category {
	if malformed(f) {
		return CategoryUnknown
	}
	return ParseCategory(f.Category)
}

func malformed(f Finding) bool {
	return strings.TrimSpace(f.Category) == "" ||
		strings.TrimSpace(f.Location) == "" ||
		strings.TrimSpace(f.Description) == ""
}

// #endregion score

// #region decide

// Decide turns a score into a decision for f.
func (a *Arbitrator) Decide(f Finding, s Score) Decision {
	return Decision{
		FindingID:    FindingID(f),
		Category:     effectiveCategory(f),
		Score:        s,
		Action:       ActionFor(s.Tier),
		Reasoning:    fmt.Sprintf("total %d -> %s -> %s", s.Total, s.Tier, ActionFor(s.Tier)),
		TableVersion: a.table.Version(),
		Malformed:    malformed(f),
	}
}

// ScoreAndArbitrate scores f and returns its decision. It never fails:
// malformed findings are arbitrated as unknown.
func (a *Arbitrator) ScoreAndArbitrate(ctx context.Context, f Finding) Decision {
	_, span := tracer.Start(ctx, "arbitration.ScoreAndArbitrate")
	defer span.End()

	s, notes := a.score(f)
	d := a.Decide(f, s)
	d.Reasoning = strings.Join(notes, "; ") + "; " + d.Reasoning

	if d.Malformed {
		a.logger.Warn("malformed finding arbitrated as unknown",
			"finding_id", d.FindingID, "category", f.Category, "location", f.Location)
		if a.metrics != nil {
			a.metrics.malformed.Inc()
		}
	}
	if a.metrics != nil {
		a.metrics.decisions.WithLabelValues(string(s.Tier), string(d.Category)).Inc()
	}
	a.stats.ObserveArbitration(s.Tier.Index())

	span.SetAttributes(
		attribute.String("arbitration.category", string(d.Category)),
		attribute.Int("arbitration.total", s.Total),
		attribute.String("arbitration.priority", string(s.Tier)),
	)
	return d
}

// FindingID returns f.ID, or a stable ID derived from the finding's content
// when the detector did not assign one.
func FindingID(f Finding) string {
	if f.ID != "" {
		return f.ID
	}
	key := strings.Join([]string{f.Category, f.Location, f.Description, f.Evidence}, "\x00")
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}

// #endregion decide
