package main

import (
	"fmt"

	"github.com/shpitdev/inbound-lead-agent/internal/app"
	"github.com/spf13/cobra"
)

func newSlackCheckCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "slack-check",
		Short: "Verify the Slack bot token and approval channel",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := flags.load()
			if err != nil {
				return err
			}
			res, err := app.NewNotifier(cfg, logger).Check(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "team=%s bot=%s channel=%s (#%s)\n", res.Team, res.BotUser, res.ChannelID, res.ChannelName)
			return err
		},
	}
}
