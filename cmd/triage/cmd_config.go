package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/adaptive-triage/internal/config"
)

const redactedKey = "<redacted>"

func newConfigCmd(root *rootFlags) *cobra.Command {
	var write string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration, or write it with --write",
		Long: `Loads defaults, the config file and TRIAGE_* environment variables, validates
the result and prints it as YAML. --write saves it instead, which is a quick
way to start a config file. API keys are never printed or written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			if write != "" {
				if err := cfg.Redacted("").Save(write); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", write)
				return nil
			}
			out, err := yaml.Marshal(cfg.Redacted(redactedKey))
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().StringVar(&write, "write", "", "save the effective configuration to this path")
	return cmd
}
