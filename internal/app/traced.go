package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/shpitdev/inbound-lead-agent/internal/lead"
	"github.com/shpitdev/inbound-lead-agent/internal/pipeline"
	"github.com/shpitdev/inbound-lead-agent/internal/workflow"
)

// tracedRunner logs one request/response pair per lead in batch mode.
type tracedRunner struct {
	next   pipeline.Runner
	logger *slog.Logger
}

func newTracedRunner(next pipeline.Runner, logger *slog.Logger) *tracedRunner {
	return &tracedRunner{next: next, logger: logger.With("component", "local")}
}

func (t *tracedRunner) Run(ctx context.Context, runID string, l lead.Lead) (workflow.Outcome, error) {
	deadlineIn := "none"
	if d, ok := ctx.Deadline(); ok {
		deadlineIn = time.Until(d).Round(time.Millisecond).String()
	}
	t.logger.DebugContext(ctx, "lead request", "run_id", runID, "lead", l.Email, "deadline_in", deadlineIn)

	start := time.Now()
	out, err := t.next.Run(ctx, runID, l)
	elapsed := time.Since(start).Round(time.Millisecond)

	var category lead.Category
	if out.Qualification != nil {
		category = out.Qualification.Category
	}
	if err != nil {
		t.logger.WarnContext(ctx, "lead response",
			"run_id", runID,
			"lead", l.Email,
			"status", "error",
			"state", out.State,
			"duration", elapsed,
			"error", out.Error(),
		)
		return out, err
	}
	t.logger.InfoContext(ctx, "lead response",
		"run_id", runID,
		"lead", l.Email,
		"status", "ok",
		"category", category,
		"drafted", out.Draft != nil,
		"duration", elapsed,
	)
	return out, nil
}
