package main

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-triage/internal/complexity"
	"github.com/danielpatrickdp/adaptive-triage/internal/config"
	"github.com/danielpatrickdp/adaptive-triage/internal/patterns"
	"github.com/danielpatrickdp/adaptive-triage/internal/telemetry"
	"github.com/danielpatrickdp/adaptive-triage/internal/tuning"
)

// errFixtureMismatch makes a regression run exit non-zero.
var errFixtureMismatch = errors.New("recommendation differs from fixture expectation")

type tuneFlags struct {
	fixture string
	export  string
	target  float64
	since   time.Duration
	jsonOut bool
}

func newTuneCmd(root *rootFlags) *cobra.Command {
	f := &tuneFlags{}
	cmd := &cobra.Command{
		Use:   "tune",
		Short: "Replay recorded routing decisions against candidate escalation thresholds",
		Long: `Replays routing telemetry (or a fixture with --fixture) against candidate
escalation thresholds and recommends the highest threshold that still meets
the fast-share target. With a SQLite pattern store, recorded outcomes are
summarised per complexity bucket with bucket-boundary advice.

--export freezes the replayed samples and the current recommendation as a
YAML fixture for regression runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("target") {
				f.target = cfg.Tuning.FastShareTarget
			}
			if f.fixture != "" {
				return runTuneFixture(cmd.OutOrStdout(), f)
			}
			return runTuneTelemetry(cmd, cfg, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.fixture, "fixture", "", "replay a fixture file instead of recorded telemetry")
	fl.StringVar(&f.export, "export", "", "write the replayed samples as a fixture to this path")
	fl.Float64Var(&f.target, "target", 0, "fast-share target (default from config)")
	fl.DurationVar(&f.since, "since", 0, "only replay decisions newer than this, e.g. 168h")
	fl.BoolVar(&f.jsonOut, "json", false, "output as JSON")
	return cmd
}

// #region fixture-mode

func runTuneFixture(w io.Writer, f *tuneFlags) error {
	fx, err := tuning.LoadFixture(f.fixture)
	if err != nil {
		return err
	}
	report := tuning.Analyze(fx.Samples, fx.Options())
	if err := printReport(w, report, f.jsonOut); err != nil {
		return err
	}

	got := report.Recommendation
	if math.Abs(got.Threshold-fx.Expected.Threshold) > 1e-9 || got.Met != fx.Expected.Met {
		fmt.Fprintf(w, "\nFAIL %s: got threshold %.2f met=%v, want %.2f met=%v\n",
			fx.Description, got.Threshold, got.Met, fx.Expected.Threshold, fx.Expected.Met)
		return errFixtureMismatch
	}
	fmt.Fprintf(w, "\nPASS %s\n", fx.Description)
	return nil
}

// #endregion fixture-mode

// #region telemetry-mode

func runTuneTelemetry(cmd *cobra.Command, cfg *config.Config, f *tuneFlags) error {
	if cfg.Telemetry.Path == "" {
		return errors.New("telemetry.path is not configured; nothing to replay")
	}
	ctx := cmd.Context()
	sink, err := telemetry.OpenSQLiteSink(cfg.Telemetry.Path)
	if err != nil {
		return err
	}
	defer sink.Close()

	filter := telemetry.Filter{Type: telemetry.EventRouting}
	if f.since > 0 {
		filter.Since = time.Now().Add(-f.since)
	}
	events, err := sink.Events(ctx, filter)
	if err != nil {
		return err
	}
	samples, skipped := tuning.SamplesFromEvents(events)
	report := tuning.Analyze(samples, tuning.Options{FastShareTarget: f.target})
	report.Skipped = skipped

	if cfg.Patterns.Backend == "sqlite" {
		store, err := patterns.OpenSQLite(cfg.Patterns.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		rows, err := store.Outcomes(ctx)
		if err != nil {
			return err
		}
		report.Buckets = tuning.BucketAcceptance(rows, complexity.NewClassifier(cfg.Classifier), time.Now())
		report.Advice = tuning.Advise(report.Buckets, cfg.Classifier)
	}

	if f.export != "" {
		fx := &tuning.Fixture{
			Description:     fmt.Sprintf("exported %s from %s", time.Now().UTC().Format(time.RFC3339), cfg.Telemetry.Path),
			FastShareTarget: f.target,
			Samples:         samples,
			Expected: tuning.FixtureExpected{
				Threshold: report.Recommendation.Threshold,
				Met:       report.Recommendation.Met,
			},
		}
		if err := tuning.WriteFixture(f.export, fx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d samples to %s\n", len(samples), f.export)
	}
	return printReport(cmd.OutOrStdout(), report, f.jsonOut)
}

// #endregion telemetry-mode

// #region output

func printReport(w io.Writer, r tuning.Report, jsonOut bool) error {
	if jsonOut {
		return printJSON(w, r)
	}
	fmt.Fprintf(w, "Samples: %d (skipped %d)\n\n", r.Samples, r.Skipped)
	fmt.Fprintf(w, "%9s  %6s  %5s  %9s  %9s  %10s\n", "Threshold", "Total", "Gated", "Fast", "Escalated", "Fast Share")
	fmt.Fprintf(w, "%9s+-%6s+-%5s+-%9s+-%9s+-%10s\n", "---------", "------", "-----", "---------", "---------", "----------")
	for _, t := range r.Thresholds {
		fmt.Fprintf(w, "%9.2f  %6d  %5d  %9d  %9d  %10.3f\n",
			t.Threshold, t.Total, t.Gated, t.FastResolved, t.Escalated, t.FastShare)
	}

	rec := r.Recommendation
	status := "meets"
	if !rec.Met {
		status = "misses"
	}
	fmt.Fprintf(w, "\nRecommended threshold: %.2f (fast share %.3f %s target %.2f)\n",
		rec.Threshold, rec.FastShare, status, rec.Target)

	if len(r.Buckets) > 0 {
		fmt.Fprintf(w, "\nOutcome acceptance by bucket:\n")
		for _, b := range r.Buckets {
			acc := "—"
			if b.Sufficient {
				acc = fmt.Sprintf("%.3f", b.Acceptance)
			}
			fmt.Fprintf(w, "  %-8s %4d samples  %s\n", b.Bucket, b.Samples, acc)
		}
	}
	for _, a := range r.Advice {
		fmt.Fprintf(w, "advice: %s\n", a)
	}
	return nil
}

// #endregion output
