package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-triage/internal/config"
	"github.com/danielpatrickdp/adaptive-triage/internal/telemetry"
)

type inspectFlags struct {
	typ     string
	last    int
	since   time.Duration
	journal bool
	jsonOut bool
}

func newInspectCmd(root *rootFlags) *cobra.Command {
	f := &inspectFlags{}
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List recorded routing and arbitration telemetry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			events, err := loadEvents(cmd.Context(), cfg, f)
			if err != nil {
				return err
			}
			if f.typ != "" || f.since > 0 {
				events = filterEvents(events, telemetry.EventType(f.typ), f.since)
			}
			if f.last > 0 && len(events) > f.last {
				events = events[len(events)-f.last:]
			}

			rows, err := buildRows(events)
			if err != nil {
				return err
			}
			if f.jsonOut {
				return printJSON(cmd.OutOrStdout(), rows)
			}
			printRows(cmd.OutOrStdout(), rows)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.typ, "type", "", "only this event type: routing or arbitration")
	fl.IntVar(&f.last, "last", 20, "show the N most recent events (0 for all)")
	fl.DurationVar(&f.since, "since", 0, "only events newer than this, e.g. 24h")
	fl.BoolVar(&f.journal, "journal", false, "read the Badger journal instead of the SQLite log")
	fl.BoolVar(&f.jsonOut, "json", false, "output as JSON instead of a table")
	return cmd
}

// #region load

func loadEvents(ctx context.Context, cfg *config.Config, f *inspectFlags) ([]telemetry.Event, error) {
	if f.journal {
		bc := cfg.Telemetry.Badger.BadgerConfig
		bc.InMemory = false
		journal, err := telemetry.OpenBadgerSink(bc, nil)
		if err != nil {
			return nil, err
		}
		defer journal.Close()
		var out []telemetry.Event
		err = journal.Replay(ctx, func(e telemetry.Event) error {
			out = append(out, e)
			return nil
		})
		return out, err
	}

	if cfg.Telemetry.Path == "" {
		return nil, fmt.Errorf("telemetry.path is not configured")
	}
	sink, err := telemetry.OpenSQLiteSink(cfg.Telemetry.Path)
	if err != nil {
		return nil, err
	}
	defer sink.Close()
	return sink.Events(ctx, telemetry.Filter{})
}

func filterEvents(events []telemetry.Event, typ telemetry.EventType, since time.Duration) []telemetry.Event {
	var cutoff time.Time
	if since > 0 {
		cutoff = time.Now().Add(-since)
	}
	out := events[:0]
	for _, e := range events {
		if typ != "" && e.Type != typ {
			continue
		}
		if !cutoff.IsZero() && e.Timestamp.Before(cutoff) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// #endregion load

// #region rows

type eventRow struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`

	// routing
	Bucket     string   `json:"bucket,omitempty"`
	Tier       string   `json:"tier,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	LatencyMS  int64    `json:"latency_ms,omitempty"`
	Context    int      `json:"context,omitempty"`

	// arbitration
	Category string `json:"category,omitempty"`
	Priority string `json:"priority,omitempty"`
	Total    int    `json:"total,omitempty"`
	Action   string `json:"action,omitempty"`
}

func buildRows(events []telemetry.Event) ([]eventRow, error) {
	rows := make([]eventRow, 0, len(events))
	for _, e := range events {
		r := eventRow{ID: e.ID, Type: string(e.Type), Timestamp: e.Timestamp.Format(time.RFC3339)}
		switch e.Type {
		case telemetry.EventRouting:
			rec, err := e.Routing()
			if err != nil {
				return nil, err
			}
			d := rec.Decision
			conf := d.Confidence
			r.Bucket, r.Tier, r.Reason = string(d.Bucket), string(d.TierUsed), string(d.Reason)
			r.Confidence, r.LatencyMS, r.Context = &conf, d.LatencyMS, rec.ContextCount
		case telemetry.EventArbitration:
			d, err := e.Arbitration()
			if err != nil {
				return nil, err
			}
			r.Category, r.Priority, r.Total, r.Action = string(d.Category), string(d.Score.Tier), d.Score.Total, string(d.Action)
		}
		rows = append(rows, r)
	}
	return rows, nil
}

func printRows(w io.Writer, rows []eventRow) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "no events found")
		return
	}
	fmt.Fprintf(w, "%-8s  %-11s  %-20s  %s\n", "ID", "Type", "Time", "Detail")
	fmt.Fprintf(w, "%-8s+-%-11s+-%-20s+-%s\n", "--------", "-----------", "--------------------", "------")
	for _, r := range rows {
		var detail string
		switch r.Type {
		case string(telemetry.EventRouting):
			tier := r.Tier
			if tier == "" {
				tier = "-"
			}
			detail = fmt.Sprintf("%-7s %-5s %.2f %-20s %dms ctx=%d", r.Bucket, tier, *r.Confidence, r.Reason, r.LatencyMS, r.Context)
		default:
			detail = fmt.Sprintf("%-27s %s %2d %s", r.Category, r.Priority, r.Total, r.Action)
		}
		fmt.Fprintf(w, "%-8s  %-11s  %-20s  %s\n", shortID(r.ID), r.Type, r.Timestamp, detail)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion rows
