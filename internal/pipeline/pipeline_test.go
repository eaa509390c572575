package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/shpitdev/inbound-lead-agent/internal/delivery"
	"github.com/shpitdev/inbound-lead-agent/internal/draft"
	"github.com/shpitdev/inbound-lead-agent/internal/lead"
	"github.com/shpitdev/inbound-lead-agent/internal/notify"
	"github.com/shpitdev/inbound-lead-agent/internal/pipeline"
	"github.com/shpitdev/inbound-lead-agent/internal/workflow"
)

// scriptedRunner picks an outcome by lead email.
type scriptedRunner map[string]func(runID string) (workflow.Outcome, error)

func (s scriptedRunner) Run(_ context.Context, runID string, l lead.Lead) (workflow.Outcome, error) {
	fn, ok := s[l.Email]
	if !ok {
		return workflow.Outcome{}, fmt.Errorf("unexpected lead %q", l.Email)
	}
	return fn(runID)
}

func qualified(runID string) (workflow.Outcome, error) {
	q := lead.Qualification{Category: lead.CategoryQualified, Reason: "fit"}
	d := draft.Draft{Text: "Subject: Hello\n\nHi"}
	res := delivery.Result{Success: true, Simulated: true}
	rec := notify.Receipt{Channel: "C0LEADS", MessageTS: "1.000001"}
	return workflow.Outcome{RunID: runID, State: workflow.StateCompleted, Qualification: &q, Draft: &d, Delivery: &res, Notification: &rec}, nil
}

func unqualified(runID string) (workflow.Outcome, error) {
	q := lead.Qualification{Category: lead.CategoryUnqualified, Reason: "student"}
	return workflow.Outcome{RunID: runID, State: workflow.StateCompleted, Qualification: &q}, nil
}

func failed(runID string) (workflow.Outcome, error) {
	err := fmt.Errorf("%w: qualifying: bad output api_key=abc123", workflow.ErrStep)
	return workflow.Outcome{RunID: runID, State: workflow.StateFailed, Err: err}, err
}

func TestReadLeadsCSV(t *testing.T) {
	in := "Email,NAME,Company,extra\nana@acme.com,Ana,Acme,x\nnot-an-email,Bob,,y\n"
	got, err := pipeline.ReadLeadsCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 inputs, got %d", len(got))
	}
	if got[0].Err != nil || got[0].Lead != (lead.Lead{Email: "ana@acme.com", Name: "Ana", Company: "Acme"}) {
		t.Fatalf("unexpected first input: %#v", got[0])
	}
	var ve *lead.ValidationError
	if !errors.As(got[1].Err, &ve) {
		t.Fatalf("expected validation error, got %v", got[1].Err)
	}

	if _, err := pipeline.ReadLeadsCSV(strings.NewReader("email\nx@y.z\n")); err == nil {
		t.Fatalf("expected missing name column error")
	}
}

func TestRunLeads(t *testing.T) {
	t.Parallel()

	runner := scriptedRunner{
		"ana@acme.com": qualified,
		"bob@corp.com": unqualified,
		"cat@corp.com": failed,
	}
	inputs := []pipeline.Input{
		{Lead: lead.Lead{Email: "ana@acme.com", Name: "Ana"}},
		{Lead: lead.Lead{Email: "bob@corp.com", Name: "Bob"}},
		{Lead: lead.Lead{Email: "cat@corp.com", Name: "Cat"}},
		{Lead: lead.Lead{Email: "bad", Name: "Dan"}, Err: errors.New("email: invalid email address")},
	}

	rows, err := pipeline.RunLeads(context.Background(), inputs, runner, pipeline.Options{Workers: 2})
	if err != nil {
		t.Fatalf("run leads: %v", err)
	}
	want := []pipeline.Row{
		{Email: "ana@acme.com", Name: "Ana", Status: pipeline.StatusOK, Category: "QUALIFIED", Reason: "fit", DraftSubject: "Hello", Delivery: "simulated", Simulated: true, SlackTS: "1.000001"},
		{Email: "bob@corp.com", Name: "Bob", Status: pipeline.StatusDisqualified, Category: "UNQUALIFIED", Reason: "student"},
		{Email: "cat@corp.com", Name: "Cat", Status: pipeline.StatusError, Error: "workflow step failed: qualifying: bad output <redacted_kv>"},
		{Email: "bad", Name: "Dan", Status: pipeline.StatusInvalid, Error: "email: invalid email address"},
	}
	if diff := cmp.Diff(want, rows, cmpopts.IgnoreFields(pipeline.Row{}, "RunID")); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
	for i, r := range rows[:3] {
		if r.RunID == "" {
			t.Fatalf("row %d missing run id", i)
		}
	}
	if rows[3].RunID != "" {
		t.Fatalf("invalid row must not get a run id")
	}
}

func TestRunLeads_FailFast(t *testing.T) {
	t.Parallel()

	runner := scriptedRunner{"cat@corp.com": failed}
	inputs := []pipeline.Input{{Lead: lead.Lead{Email: "cat@corp.com", Name: "Cat"}}}
	if _, err := pipeline.RunLeads(context.Background(), inputs, runner, pipeline.Options{Workers: 1, FailFast: true}); !errors.Is(err, workflow.ErrStep) {
		t.Fatalf("expected step error, got %v", err)
	}
}

func TestCSVRoundTrip(t *testing.T) {
	rows := []pipeline.Row{
		{Email: "ana@acme.com", Name: "Ana", Status: "ok", Category: "QUALIFIED", Reason: "- fit,\n- budget", DraftSubject: "Hello", Delivery: "sent", MessageID: "<id@x>", SlackTS: "1.0", RunID: "r1"},
		{Email: "bob@corp.com", Status: "invalid", Error: "name: required"},
	}
	var buf bytes.Buffer
	if err := pipeline.WriteCSV(&buf, rows); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.HasPrefix(buf.String(), strings.Join(pipeline.Header(), ",")+"\n") {
		t.Fatalf("unexpected header line: %q", strings.SplitN(buf.String(), "\n", 2)[0])
	}
	got, err := pipeline.ReadCSV(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if diff := cmp.Diff(rows, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}
