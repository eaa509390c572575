package main

import (
	"fmt"
	"log/slog"

	"github.com/shpitdev/inbound-lead-agent/internal/app"
	"github.com/shpitdev/inbound-lead-agent/internal/config"
	"github.com/shpitdev/inbound-lead-agent/internal/version"
	"github.com/spf13/cobra"
)

type rootFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:           "leadagent",
		Short:         "Research, qualify and answer inbound sales leads",
		Long:          "leadagent accepts contact-form submissions, researches the lead with Gemini and Exa,\nqualifies it, drafts and sends a reply and asks a Slack channel for approval.",
		Version:       version.Current,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
	}
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "YAML config file (env: "+config.EnvConfigFile+")")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")

	cmd.AddCommand(
		newServeCmd(flags),
		newLocalCmd(flags),
		newSlackCheckCmd(flags),
		newSecretCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), version.Current)
				return err
			},
		},
	)
	return cmd
}

// load reads configuration and builds the process logger.
func (f *rootFlags) load() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(config.Source{Path: f.configPath})
	if err != nil {
		return config.Config{}, nil, err
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	logger, err := app.NewLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}
