package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/shpitdev/inbound-lead-agent/internal/app"
	"github.com/shpitdev/inbound-lead-agent/internal/config"
	"github.com/shpitdev/inbound-lead-agent/internal/version"
	"github.com/spf13/cobra"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the intake HTTP server and the workflow workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := flags.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			comps, err := app.Build(ctx, cfg, nil, logger)
			if err != nil {
				return err
			}
			logger.InfoContext(ctx, "starting leadagent", "version", version.Current, "addr", cfg.Server.Addr)
			app.LogStartup(ctx, cfg, comps, logger)
			return app.Serve(ctx, cfg, comps, logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address override (env: "+config.EnvAddr+")")
	return cmd
}
