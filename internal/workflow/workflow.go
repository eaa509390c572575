// Package workflow sequences research, qualification, drafting, delivery and
// approval for a single lead.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shpitdev/inbound-lead-agent/internal/delivery"
	"github.com/shpitdev/inbound-lead-agent/internal/draft"
	"github.com/shpitdev/inbound-lead-agent/internal/lead"
	"github.com/shpitdev/inbound-lead-agent/internal/notify"
	"github.com/shpitdev/inbound-lead-agent/internal/research"
	"github.com/shpitdev/inbound-lead-agent/internal/util"
)

// ErrStep wraps every step failure that fails a run.
var ErrStep = errors.New("workflow step failed")

type Researcher interface {
	Research(ctx context.Context, l lead.Lead) (research.Report, error)
}

type Qualifier interface {
	Qualify(ctx context.Context, l lead.Lead, research string) (lead.Qualification, error)
}

type Drafter interface {
	Write(ctx context.Context, research string, q lead.Qualification) (draft.Draft, error)
}

type Sender interface {
	Send(ctx context.Context, draftText, recipientEmail, recipientName string) delivery.Result
}

type Approver interface {
	RequestApproval(ctx context.Context, runID, research, email string, q lead.Qualification) (notify.Receipt, error)
}

// Steps bundles the collaborators of a run.
type Steps struct {
	Research Researcher
	Qualify  Qualifier
	Draft    Drafter
	Deliver  Sender
	Notify   Approver
}

type Options struct {
	// Timeout bounds a whole run. Zero disables it.
	Timeout time.Duration
	// OnTransition observes every state change, including the final one.
	OnTransition func(runID string, s State, o Outcome)
	// OnDisqualified runs for non-qualifying categories. Its error is logged.
	OnDisqualified func(ctx context.Context, runID string, l lead.Lead, q lead.Qualification) error
}

// Outcome is everything a run produced.
type Outcome struct {
	RunID         string              `json:"runId"`
	State         State               `json:"state"`
	Qualification *lead.Qualification `json:"qualification,omitempty"`
	ResearchChars int                 `json:"researchChars"`
	StepCapHit    bool                `json:"stepCapHit,omitempty"`
	Draft         *draft.Draft        `json:"draft,omitempty"`
	Delivery      *delivery.Result    `json:"delivery,omitempty"`
	Notification  *notify.Receipt     `json:"notification,omitempty"`
	Err           error               `json:"-"`
}

// Error returns the redacted failure message, or "".
func (o Outcome) Error() string {
	if o.Err == nil {
		return ""
	}
	return util.RedactSecrets(o.Err.Error())
}

type Runner struct {
	steps  Steps
	opts   Options
	logger *slog.Logger
}

func NewRunner(steps Steps, opts Options, logger *slog.Logger) (*Runner, error) {
	if steps.Research == nil || steps.Qualify == nil || steps.Draft == nil || steps.Deliver == nil || steps.Notify == nil {
		return nil, errors.New("workflow: all steps are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{steps: steps, opts: opts, logger: logger.With("component", "workflow")}, nil
}

// Run executes one lead through the workflow. The returned error is non-nil
// exactly when the outcome state is StateFailed.
func (r *Runner) Run(ctx context.Context, runID string, l lead.Lead) (Outcome, error) {
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}
	logger := r.logger.With("run_id", runID, "lead", l.Email)
	start := time.Now()
	out := Outcome{RunID: runID}

	move := func(s State) {
		out.State = s
		logger.DebugContext(ctx, "state", "state", s)
		if r.opts.OnTransition != nil {
			r.opts.OnTransition(runID, s, out)
		}
	}
	fail := func(step State, err error) (Outcome, error) {
		out.Err = fmt.Errorf("%w: %s: %w", ErrStep, step, err)
		logger.ErrorContext(ctx, "run failed",
			"step", step,
			"error", util.RedactSecrets(err.Error()),
			"transient", lead.IsTransient(err),
			"elapsed", time.Since(start).Round(time.Millisecond),
		)
		move(StateFailed)
		return out, out.Err
	}

	move(StateReceived)
	logger.InfoContext(ctx, "run started", "company", l.Company)

	move(StateResearching)
	report, err := r.steps.Research.Research(ctx, l)
	if err != nil {
		return fail(StateResearching, err)
	}
	out.ResearchChars = len(report.Text)
	out.StepCapHit = report.StepCapHit

	move(StateQualifying)
	q, err := r.steps.Qualify.Qualify(ctx, l, report.Text)
	if err != nil {
		return fail(StateQualifying, err)
	}
	out.Qualification = &q

	if !q.Category.Qualifying() {
		move(StateDisqualified)
		if r.opts.OnDisqualified != nil {
			if err := r.opts.OnDisqualified(ctx, runID, l, q); err != nil {
				logger.WarnContext(ctx, "disqualified hook failed", "error", util.RedactSecrets(err.Error()))
			}
		}
		return r.complete(ctx, logger, start, &out, move)
	}

	move(StateDrafting)
	d, err := r.steps.Draft.Write(ctx, report.Text, q)
	if err != nil {
		return fail(StateDrafting, err)
	}
	out.Draft = &d

	move(StateSending)
	res := r.steps.Deliver.Send(ctx, d.Text, l.Email, l.Name)
	out.Delivery = &res
	if !res.Success {
		logger.WarnContext(ctx, "delivery failed, continuing to approval", "error", res.Error)
	}

	move(StateNotifying)
	receipt, err := r.steps.Notify.RequestApproval(ctx, runID, report.Text, d.Text, q)
	if err != nil {
		return fail(StateNotifying, err)
	}
	out.Notification = &receipt

	return r.complete(ctx, logger, start, &out, move)
}

func (r *Runner) complete(ctx context.Context, logger *slog.Logger, start time.Time, out *Outcome, move func(State)) (Outcome, error) {
	var category lead.Category
	if out.Qualification != nil {
		category = out.Qualification.Category
	}
	move(StateCompleted)
	logger.InfoContext(ctx, "run completed",
		"category", category,
		"drafted", out.Draft != nil,
		"delivered", out.Delivery != nil && out.Delivery.Success,
		"simulated", out.Delivery != nil && out.Delivery.Simulated,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return *out, nil
}
