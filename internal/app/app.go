// Package app wires configuration into the workflow components and runs the
// service and batch modes.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/shpitdev/inbound-lead-agent/internal/config"
	"github.com/shpitdev/inbound-lead-agent/internal/delivery"
	"github.com/shpitdev/inbound-lead-agent/internal/dispatch"
	"github.com/shpitdev/inbound-lead-agent/internal/draft"
	"github.com/shpitdev/inbound-lead-agent/internal/exa"
	"github.com/shpitdev/inbound-lead-agent/internal/fetch"
	"github.com/shpitdev/inbound-lead-agent/internal/gemini"
	"github.com/shpitdev/inbound-lead-agent/internal/intake"
	"github.com/shpitdev/inbound-lead-agent/internal/notify"
	"github.com/shpitdev/inbound-lead-agent/internal/pipeline"
	"github.com/shpitdev/inbound-lead-agent/internal/qualify"
	"github.com/shpitdev/inbound-lead-agent/internal/research"
	"github.com/shpitdev/inbound-lead-agent/internal/server"
	"github.com/shpitdev/inbound-lead-agent/internal/workflow"
	"golang.org/x/sync/errgroup"
)

// NewLogger returns the process logger: text on stderr at the configured
// level.
func NewLogger(level string) (*slog.Logger, error) {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}

// Components are the constructed collaborators of one process.
type Components struct {
	Model    gemini.Model
	Steps    workflow.Steps
	Notifier *notify.Notifier
	Mailer   *delivery.Mailer
}

// Build constructs every workflow step from cfg. A nil model means the
// Gemini client is created from cfg.Gemini.
func Build(ctx context.Context, cfg config.Config, model gemini.Model, logger *slog.Logger) (*Components, error) {
	if model == nil {
		c, err := gemini.New(ctx, gemini.Config{
			APIKey:  cfg.Gemini.APIKey,
			Model:   cfg.Gemini.Model,
			BaseURL: cfg.Gemini.BaseURL,
		})
		switch {
		case err == nil:
			model = c
		case strings.TrimSpace(cfg.Gemini.APIKey) == "":
			model = gemini.Unavailable(cfg.Gemini.Model, err)
		default:
			return nil, err
		}
	}

	var search research.Searcher = exa.Unconfigured{}
	if strings.TrimSpace(cfg.Exa.APIKey) != "" {
		c, err := exa.NewClient(exa.Config{APIKey: cfg.Exa.APIKey, BaseURL: cfg.Exa.BaseURL})
		if err != nil {
			return nil, err
		}
		search = c
	}
	fetcher := fetch.New(fetch.Options{MaxChars: cfg.Research.FetchMaxChars, PerHostRPS: cfg.Research.FetchHostRPS})

	agent, err := research.New(model,
		research.DefaultTools(search, fetcher, cfg.Research.NumResults),
		research.Config{
			MaxSteps:   cfg.Research.MaxSteps,
			SellerName: cfg.Research.SellerName,
			SellerURL:  cfg.Research.SellerURL,
		},
		logger,
	)
	if err != nil {
		return nil, err
	}

	mailer := delivery.New(delivery.Config{
		Host:        cfg.SMTP.Host,
		Port:        cfg.SMTP.Port,
		Username:    cfg.SMTP.Username,
		Password:    cfg.SMTP.Password,
		FromName:    cfg.SMTP.FromName,
		FromAddress: cfg.SMTP.FromAddress,
		RedirectTo:  cfg.SMTP.RedirectTo,
	}, logger)
	notifier := NewNotifier(cfg, logger)

	return &Components{
		Model: model,
		Steps: workflow.Steps{
			Research: agent,
			Qualify:  qualify.New(model, qualify.Config{SellerName: cfg.Research.SellerName}, logger),
			Draft:    draft.New(model, draft.Config{SellerName: cfg.Research.SellerName, SellerURL: cfg.Research.SellerURL}, logger),
			Deliver:  mailer,
			Notify:   notifier,
		},
		Notifier: notifier,
		Mailer:   mailer,
	}, nil
}

func NewNotifier(cfg config.Config, logger *slog.Logger) *notify.Notifier {
	return notify.New(notify.Config{
		BotToken:      cfg.Slack.BotToken,
		SigningSecret: cfg.Slack.SigningSecret,
		ChannelID:     cfg.Slack.ChannelID,
		APIURL:        cfg.Slack.APIURL,
		PreviewLimit:  cfg.Slack.PreviewLimit,
	}, logger)
}

// LogStartup reports which optional integrations are degraded.
func LogStartup(ctx context.Context, cfg config.Config, comps *Components, logger *slog.Logger) {
	logger.InfoContext(ctx, "lead agent configured",
		"model", comps.Model.Name(),
		"max_steps", cfg.Research.MaxSteps,
		"workers", cfg.Dispatch.Workers,
		"smtp_configured", comps.Mailer.Configured(),
		"slack_channel", cfg.Slack.ChannelID,
		"mail_redirect", cfg.SMTP.RedirectTo != "",
	)
	if strings.TrimSpace(cfg.Gemini.APIKey) == "" {
		logger.WarnContext(ctx, "gemini api key missing; every run will fail at the research step")
	}
	if strings.TrimSpace(cfg.Exa.APIKey) == "" {
		logger.WarnContext(ctx, "exa api key missing; the search tool will report errors to the agent")
	}
	if !comps.Mailer.Configured() {
		logger.WarnContext(ctx, "smtp credentials missing; deliveries will be simulated")
	}
	if cfg.Slack.ChannelID == "" || cfg.Slack.BotToken == "" || cfg.Slack.SigningSecret == "" {
		logger.WarnContext(ctx, "slack is not fully configured; qualifying runs will fail at the approval step")
	}
}

// Serve runs the HTTP server and the dispatcher until ctx is cancelled, then
// drains in-flight runs within the shutdown timeout.
func Serve(ctx context.Context, cfg config.Config, comps *Components, logger *slog.Logger) error {
	registry := dispatch.NewRegistry(cfg.Dispatch.RegistrySize)
	runner, err := workflow.NewRunner(comps.Steps, workflow.Options{
		Timeout:      cfg.Dispatch.RunTimeout,
		OnTransition: registry.Observe,
	}, logger)
	if err != nil {
		return err
	}
	dispatcher := dispatch.New(runner, registry, dispatch.Options{
		Workers:      cfg.Dispatch.Workers,
		QueueSize:    cfg.Dispatch.QueueSize,
		RateLimitRPS: cfg.Dispatch.RateLimitRPS,
	}, logger)

	detector := &intake.HeuristicDetector{
		RatePerIP:      cfg.Bot.RatePerIP,
		Burst:          cfg.Bot.Burst,
		TrustForwarded: cfg.Bot.TrustForwarded,
	}
	handler := server.NewHandler(server.Deps{
		Intake:        intake.NewHandler(dispatcher, registry, detector, logger),
		Decisions:     registry,
		SigningSecret: cfg.Slack.SigningSecret,
		Ready:         dispatcher,
	}, logger)
	srv := server.New(cfg.Server.Addr, handler, cfg.Server.ShutdownTimeout, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := dispatcher.Close(drainCtx); err != nil {
			return fmt.Errorf("drain dispatcher: %w", err)
		}
		return nil
	})
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// RunLocal reads a local CSV of leads and writes a CSV of outcomes.
func RunLocal(ctx context.Context, inputPath, outputPath string, opts pipeline.Options, runner pipeline.Runner, logger *slog.Logger) error {
	inF, err := os.Open(inputPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = inF.Close()
	}()

	inputs, err := pipeline.ReadLeadsCSV(inF)
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, "local run start", "input", inputPath, "leads", len(inputs), "workers", opts.Workers, "fail_fast", opts.FailFast)

	start := time.Now()
	rows, err := pipeline.RunLeads(ctx, inputs, newTracedRunner(runner, logger), opts)
	if err != nil {
		return err
	}

	outF, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = outF.Close()
	}()

	if err := pipeline.WriteCSV(outF, rows); err != nil {
		return err
	}
	logger.InfoContext(ctx, "local run complete", "output", outputPath, "rows", len(rows), "elapsed", time.Since(start).Round(time.Millisecond))
	return outF.Close()
}
