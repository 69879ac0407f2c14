package tuning

import (
	"math"
	"sort"

	"github.com/danielpatrickdp/adaptive-triage/internal/router"
	"github.com/danielpatrickdp/adaptive-triage/internal/telemetry"
)

// #region samples

// SampleFromRecord reduces a routing record to a replay sample. The fast
// tier's score is the final confidence when it answered, or the discarded
// score when the query escalated on low confidence.
func SampleFromRecord(rec telemetry.RoutingRecord) Sample {
	s := Sample{Bucket: rec.Decision.Bucket, Reason: rec.Decision.Reason}
	switch rec.Decision.Reason {
	case router.ReasonConfident:
		c := rec.Decision.Confidence
		s.FastConfidence = &c
	case router.ReasonLowConfidence:
		if rec.Decision.FastConfidence != nil {
			c := *rec.Decision.FastConfidence
			s.FastConfidence = &c
		}
	}
	return s
}

// SamplesFromEvents decodes routing events. Events of other types or with an
// undecodable payload are counted as skipped.
func SamplesFromEvents(events []telemetry.Event) (samples []Sample, skipped int) {
	for _, e := range events {
		if e.Type != telemetry.EventRouting {
			skipped++
			continue
		}
		rec, err := e.Routing()
		if err != nil {
			skipped++
			continue
		}
		samples = append(samples, SampleFromRecord(rec))
	}
	return samples, skipped
}

// #endregion samples

// #region replay

// DefaultCandidates returns thresholds from 0.50 to 0.90 in steps of 0.05.
func DefaultCandidates() []float64 {
	var out []float64
	for i := 0; i <= 8; i++ {
		out = append(out, math.Round((0.5+0.05*float64(i))*100)/100)
	}
	return out
}

// Replay re-decides every gated sample at each candidate threshold. A sample
// is fast-resolved at t when its fast confidence is at least t. Samples the
// threshold could not have changed count toward Total only. Results are
// ordered by ascending threshold.
func Replay(samples []Sample, candidates []float64) []ThresholdResult {
	ts := append([]float64(nil), candidates...)
	sort.Float64s(ts)

	out := make([]ThresholdResult, 0, len(ts))
	for _, t := range ts {
		r := ThresholdResult{Threshold: t, Total: len(samples)}
		for _, s := range samples {
			if !s.Gated() {
				continue
			}
			r.Gated++
			if *s.FastConfidence >= t {
				r.FastResolved++
			} else {
				r.Escalated++
			}
		}
		if r.Total > 0 {
			r.FastShare = float64(r.FastResolved) / float64(r.Total)
		}
		if r.Gated > 0 {
			r.EscalationRate = float64(r.Escalated) / float64(r.Gated)
		}
		out = append(out, r)
	}
	return out
}

// Recommend picks the highest threshold whose fast share meets target. When
// none does, it falls back to the threshold with the best fast share, the
// lowest such threshold on ties.
func Recommend(results []ThresholdResult, target float64) Recommendation {
	rec := Recommendation{Target: target, FastShare: -1}
	for _, r := range results {
		if r.FastShare >= target && (!rec.Met || r.Threshold > rec.Threshold) {
			rec = Recommendation{Threshold: r.Threshold, FastShare: r.FastShare, Target: target, Met: true}
		}
	}
	if rec.Met {
		return rec
	}
	for _, r := range results {
		if r.FastShare > rec.FastShare || (r.FastShare == rec.FastShare && r.Threshold < rec.Threshold) {
			rec.Threshold = r.Threshold
			rec.FastShare = r.FastShare
		}
	}
	if rec.FastShare < 0 {
		rec.FastShare = 0
	}
	return rec
}

// #endregion replay

// #region analyze

// Options configures Analyze.
type Options struct {
	Candidates      []float64
	FastShareTarget float64
}

// Analyze replays samples and recommends a threshold.
func Analyze(samples []Sample, opts Options) Report {
	candidates := opts.Candidates
	if len(candidates) == 0 {
		candidates = DefaultCandidates()
	}
	results := Replay(samples, candidates)
	return Report{
		Samples:        len(samples),
		Thresholds:     results,
		Recommendation: Recommend(results, opts.FastShareTarget),
	}
}

// #endregion analyze
