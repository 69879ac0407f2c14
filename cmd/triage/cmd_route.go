package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-triage/internal/arbitration"
	"github.com/danielpatrickdp/adaptive-triage/internal/patterns"
	"github.com/danielpatrickdp/adaptive-triage/internal/router"
	"github.com/danielpatrickdp/adaptive-triage/internal/triage"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// #region route

func newRouteCmd(root *rootFlags) *cobra.Command {
	var (
		hints   []string
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "route QUESTION...",
		Short: "Answer one question through the tiered router",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), root.configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.service.ClassifyAndRoute(cmd.Context(), strings.Join(args, " "), hints...)
			if err != nil && !errors.Is(err, router.ErrNoInferenceAvailable) {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				if perr := printJSON(out, resp); perr != nil {
					return perr
				}
			} else {
				printRoute(out, resp)
			}
			return err
		},
	}
	cmd.Flags().StringArrayVar(&hints, "hint", nil, "context line such as a file name or error (repeatable)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	return cmd
}

func printRoute(w io.Writer, r triage.RouteResponse) {
	fmt.Fprintln(w, r.Response)
	fmt.Fprintln(w)
	tier := string(r.TierUsed)
	if tier == "" {
		tier = "-"
	}
	fmt.Fprintf(w, "tier=%s bucket=%s confidence=%.2f reason=%s latency=%dms context=%d\n",
		tier, r.Bucket, r.Confidence, r.Reason, r.LatencyMS, r.ContextCount)
	if r.Escalated {
		fmt.Fprintln(w, "escalated from the fast tier")
	}
	if r.Degraded {
		fmt.Fprintln(w, "degraded: answer assembled from past patterns")
	}
	if r.PatternID != "" {
		fmt.Fprintf(w, "pattern: %s\n", r.PatternID)
	}
}

// #endregion route

// #region arbitrate

func newArbitrateCmd(root *rootFlags) *cobra.Command {
	var (
		f          arbitration.Finding
		confidence float64
	)
	cmd := &cobra.Command{
		Use:   "arbitrate",
		Short: "Score a code-quality finding and assign a priority tier",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("confidence") {
				f.DetectorConfidence = &confidence
			}
			a, err := loadApp(cmd.Context(), root.configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			return printJSON(cmd.OutOrStdout(), a.service.ScoreAndArbitrate(cmd.Context(), f))
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.Category, "category", "", "finding category, e.g. dead-code")
	fl.StringVar(&f.Description, "description", "", "what the detector found")
	fl.StringVar(&f.Location, "location", "", "file and line")
	fl.StringVar(&f.Evidence, "evidence", "", "supporting excerpt")
	fl.StringVar(&f.ID, "id", "", "finding ID; derived from the finding when empty")
	fl.Float64Var(&confidence, "confidence", 0, "detector confidence in [0, 1]")
	return cmd
}

// #endregion arbitrate

// #region outcome

func newOutcomeCmd(root *rootFlags) *cobra.Command {
	var correction string
	cmd := &cobra.Command{
		Use:       "outcome PATTERN_ID success|failure",
		Short:     "Record whether a remembered answer worked",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{string(patterns.OutcomeSuccess), string(patterns.OutcomeFailure)},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), root.configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			e, err := a.service.RecordOutcome(cmd.Context(), args[0], patterns.Outcome(args[1]), correction)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recorded %s for %s; new pattern %s\n", e.Outcome, args[0], e.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&correction, "correction", "", "corrected answer to remember instead")
	return cmd
}

// #endregion outcome
