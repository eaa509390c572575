// Package pipeline runs the workflow over a batch of leads and maps outcomes
// to a stable row schema.
package pipeline

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shpitdev/inbound-lead-agent/internal/dispatch"
	"github.com/shpitdev/inbound-lead-agent/internal/lead"
	"github.com/shpitdev/inbound-lead-agent/internal/util"
	"github.com/shpitdev/inbound-lead-agent/internal/workflow"
)

const (
	StatusOK           = "ok"
	StatusDisqualified = "disqualified"
	StatusError        = "error"
	StatusInvalid      = "invalid"
)

// Row is the stable output schema for one lead.
type Row struct {
	Email        string
	Name         string
	Status       string
	Category     string
	Reason       string
	DraftSubject string
	Delivery     string
	Simulated    bool
	MessageID    string
	SlackTS      string
	Error        string
	RunID        string
}

type Options struct {
	Workers      int
	RateLimitRPS float64
	FailFast     bool
}

// Header returns the stable CSV header for Row.
func Header() []string {
	return []string{
		"email",
		"name",
		"status",
		"category",
		"reason",
		"draft_subject",
		"delivery",
		"simulated",
		"message_id",
		"slack_ts",
		"error",
		"run_id",
	}
}

// Runner executes one workflow run.
type Runner interface {
	Run(ctx context.Context, runID string, l lead.Lead) (workflow.Outcome, error)
}

// Input is one parsed CSV record: a lead or the reason it is invalid.
type Input struct {
	Lead lead.Lead
	Err  error
}

type runResult struct {
	runID   string
	outcome workflow.Outcome
}

// RunLeads runs every valid input through the workflow. Step failures are
// recorded per row and do not fail the batch unless FailFast is set.
func RunLeads(ctx context.Context, inputs []Input, runner Runner, opts Options) ([]Row, error) {
	policy := dispatch.FailurePolicyPartialOutput
	if opts.FailFast {
		policy = dispatch.FailurePolicyFailFast
	}

	process := func(ctx context.Context, in Input) (runResult, error) {
		if in.Err != nil {
			return runResult{}, nil
		}
		runID := uuid.NewString()
		out, err := runner.Run(ctx, runID, in.Lead)
		return runResult{runID: runID, outcome: out}, err
	}

	results, err := dispatch.ProcessAll(ctx, inputs, process, dispatch.BatchOptions{
		Workers:       opts.Workers,
		RateLimitRPS:  opts.RateLimitRPS,
		FailurePolicy: policy,
	})
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(results))
	for _, item := range results {
		rows = append(rows, toRow(item.Input, item.Output, item.Err))
	}
	return rows, nil
}

func toRow(in Input, res runResult, err error) Row {
	row := Row{
		RunID: res.runID,
		Email: strings.TrimSpace(in.Lead.Email),
		Name:  strings.TrimSpace(in.Lead.Name),
	}
	if in.Err != nil {
		row.Status = StatusInvalid
		row.Error = in.Err.Error()
		return row
	}

	out := res.outcome
	if q := out.Qualification; q != nil {
		row.Category = string(q.Category)
		row.Reason = q.Reason
	}
	if out.Draft != nil {
		row.DraftSubject = out.Draft.Subject()
	}
	if d := out.Delivery; d != nil {
		row.Simulated = d.Simulated
		row.MessageID = d.MessageID
		switch {
		case !d.Success:
			row.Delivery = "failed"
			row.Error = d.Error
		case d.Simulated:
			row.Delivery = "simulated"
		default:
			row.Delivery = "sent"
		}
	}
	if out.Notification != nil {
		row.SlackTS = out.Notification.MessageTS
	}

	switch {
	case err != nil:
		row.Status = StatusError
		row.Error = util.RedactSecrets(err.Error())
	case out.Draft == nil:
		row.Status = StatusDisqualified
	default:
		row.Status = StatusOK
	}
	return row
}
