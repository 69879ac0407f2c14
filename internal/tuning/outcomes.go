package tuning

import (
	"fmt"
	"math"
	"time"

	"github.com/danielpatrickdp/adaptive-triage/internal/complexity"
	"github.com/danielpatrickdp/adaptive-triage/internal/patterns"
)

const (
	// HalfLife is the age at which an outcome counts half as much as a fresh one.
	HalfLife = 7 * 24 * time.Hour
	// MinSamples is the fewest outcomes a bucket needs before acceptance is reported.
	MinSamples = 3

	lowSimpleAcceptance  = 0.6
	highMediumAcceptance = 0.9
)

// #region bucket-acceptance

// BucketAcceptance re-classifies each remembered question and computes the
// decay-weighted share of successful outcomes per bucket. Rows with an
// unknown outcome are ignored.
func BucketAcceptance(rows []patterns.OutcomeRow, cls *complexity.Classifier, now time.Time) []BucketStat {
	type accum struct {
		weighted, total float64
		count           int
	}
	acc := map[complexity.Bucket]*accum{}
	for _, row := range rows {
		if row.Outcome == patterns.OutcomeUnknown {
			continue
		}
		b := cls.Classify(row.SourceText).Bucket
		a, ok := acc[b]
		if !ok {
			a = &accum{}
			acc[b] = a
		}
		age := now.Sub(row.CreatedAt).Hours()
		if age < 0 {
			age = 0
		}
		w := math.Exp2(-age / HalfLife.Hours())
		if row.Outcome == patterns.OutcomeSuccess {
			a.weighted += w
		}
		a.total += w
		a.count++
	}

	var out []BucketStat
	for _, b := range []complexity.Bucket{complexity.BucketSimple, complexity.BucketMedium, complexity.BucketComplex} {
		a, ok := acc[b]
		if !ok {
			continue
		}
		st := BucketStat{Bucket: b, Samples: a.count}
		if a.count >= MinSamples && a.total > 0 {
			st.Sufficient = true
			st.Acceptance = a.weighted / a.total
		}
		out = append(out, st)
	}
	return out
}

// Advise turns bucket acceptance into classifier and policy suggestions.
func Advise(stats []BucketStat, cfg complexity.Config) []string {
	var advice []string
	for _, st := range stats {
		if !st.Sufficient {
			continue
		}
		switch {
		case st.Bucket == complexity.BucketSimple && st.Acceptance < lowSimpleAcceptance:
			advice = append(advice, fmt.Sprintf(
				"simple-bucket acceptance %.2f is below %.2f: consider lowering classifier.simple_below from %.2f to %.2f",
				st.Acceptance, lowSimpleAcceptance, cfg.SimpleBelow, math.Max(0.05, cfg.SimpleBelow-0.05)))
		case st.Bucket == complexity.BucketMedium && st.Acceptance >= highMediumAcceptance:
			advice = append(advice, fmt.Sprintf(
				"medium-bucket acceptance %.2f is at least %.2f: consider router.medium_policy=gated",
				st.Acceptance, highMediumAcceptance))
		}
	}
	return advice
}

// #endregion bucket-acceptance
