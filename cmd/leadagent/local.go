package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/shpitdev/inbound-lead-agent/internal/app"
	"github.com/shpitdev/inbound-lead-agent/internal/pipeline"
	"github.com/shpitdev/inbound-lead-agent/internal/workflow"
	"github.com/spf13/cobra"
)

func newLocalCmd(flags *rootFlags) *cobra.Command {
	var (
		inputPath  string
		outputPath string
		workers    int
		failFast   bool
	)
	cmd := &cobra.Command{
		Use:   "local",
		Short: "Run every lead in a CSV through the workflow and write outcomes to a CSV",
		Long: `Reads a CSV with email and name columns (company, phone and message are
optional), runs the full workflow for each valid row and writes one outcome row
per input. Without SMTP credentials, deliveries are simulated.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if inputPath == "" || outputPath == "" {
				return errors.New("local requires --input and --output")
			}
			cfg, logger, err := flags.load()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("workers") {
				workers = cfg.Dispatch.Workers
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			comps, err := app.Build(ctx, cfg, nil, logger)
			if err != nil {
				return err
			}
			app.LogStartup(ctx, cfg, comps, logger)
			runner, err := workflow.NewRunner(comps.Steps, workflow.Options{Timeout: cfg.Dispatch.RunTimeout}, logger)
			if err != nil {
				return err
			}
			return app.RunLocal(ctx, inputPath, outputPath, pipeline.Options{
				Workers:      workers,
				RateLimitRPS: cfg.Dispatch.RateLimitRPS,
				FailFast:     failFast,
			}, runner, logger)
		},
	}
	cmd.Flags().StringVar(&inputPath, "input", "", "Input CSV file path")
	cmd.Flags().StringVar(&outputPath, "output", "", "Output CSV file path")
	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent workflow runs (default from config)")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "Stop at the first failed run")
	return cmd
}
