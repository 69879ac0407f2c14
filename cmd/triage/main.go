// Command triage routes code questions between a fast and a deep model tier,
// scores code-quality findings, and tunes the escalation threshold from
// recorded telemetry.
//
// Usage:
//
//	triage serve              # MCP server over stdio
//	triage route "question"   # answer one question
//	triage arbitrate ...      # prioritize one finding
//	triage tune               # replay telemetry against candidate thresholds
//	triage inspect            # list recorded telemetry
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-triage/internal/mcpserver"
)

// version is set at build time via -ldflags.
var version = "dev"

type rootFlags struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "triage",
		Short: "Adaptive multi-tier inference router with pattern memory",
		Long: "triage answers code questions on a fast local model, escalates low-confidence\n" +
			"answers to a deeper model, reuses similar past answers as context, and scores\n" +
			"code-quality findings into priority tiers.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", os.Getenv("TRIAGE_CONFIG"),
		"YAML config file (env TRIAGE_CONFIG); defaults apply when empty")

	root.AddCommand(
		newServeCmd(flags),
		newRouteCmd(flags),
		newArbitrateCmd(flags),
		newOutcomeCmd(flags),
		newTuneCmd(flags),
		newInspectCmd(flags),
		newConfigCmd(flags),
	)
	return root
}

func main() {
	mcpserver.Version = version
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
