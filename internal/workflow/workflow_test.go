package workflow_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shpitdev/inbound-lead-agent/internal/delivery"
	"github.com/shpitdev/inbound-lead-agent/internal/draft"
	"github.com/shpitdev/inbound-lead-agent/internal/gemini/geminitest"
	"github.com/shpitdev/inbound-lead-agent/internal/lead"
	"github.com/shpitdev/inbound-lead-agent/internal/mockproviders"
	"github.com/shpitdev/inbound-lead-agent/internal/notify"
	"github.com/shpitdev/inbound-lead-agent/internal/qualify"
	"github.com/shpitdev/inbound-lead-agent/internal/research"
	"github.com/shpitdev/inbound-lead-agent/internal/workflow"
)

var testLead = lead.Lead{Email: "a@b.com", Name: "A", Message: "need analytics"}

type fakeResearcher struct {
	text string
	err  error
}

func (f fakeResearcher) Research(context.Context, lead.Lead) (research.Report, error) {
	return research.Report{Text: f.text, Steps: 1}, f.err
}

type countingSender struct {
	mu     sync.Mutex
	calls  int
	result delivery.Result
}

func (c *countingSender) Send(context.Context, string, string, string) delivery.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.result
}

type harness struct {
	steps    workflow.Steps
	classify *geminitest.Model
	writer   *geminitest.Model
	slack    *mockproviders.Server
	sender   *countingSender
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T, category string, notifyCfg notify.Config) *harness {
	t.Helper()
	srv := mockproviders.New()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	notifyCfg.APIURL = ts.URL + "/slack/api/"

	h := &harness{
		classify: &geminitest.Model{Steps: []geminitest.Step{
			geminitest.Text(`{"category":"` + category + `","reason":"because"}`),
		}},
		writer: &geminitest.Model{Steps: []geminitest.Step{
			geminitest.Text("Subject: Analytics for A\n\nHi A,\nLet's talk."),
		}},
		slack:  srv,
		sender: &countingSender{result: delivery.Result{Success: true, MessageID: "<m@x>"}},
	}
	h.steps = workflow.Steps{
		Research: fakeResearcher{text: "A runs a small analytics team."},
		Qualify:  qualify.New(h.classify, qualify.Config{}, discardLogger()),
		Draft:    draft.New(h.writer, draft.Config{}, discardLogger()),
		Deliver:  h.sender,
		Notify:   notify.New(notifyCfg, discardLogger()),
	}
	return h
}

var slackCfg = notify.Config{BotToken: "xoxb-test", SigningSecret: "s", ChannelID: "C0LEADS"}

func run(t *testing.T, steps workflow.Steps, opts workflow.Options) (workflow.Outcome, error) {
	t.Helper()
	r, err := workflow.NewRunner(steps, opts, discardLogger())
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	return r.Run(context.Background(), "run-1", testLead)
}

func TestRun_QualifiedRunsEveryStep(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "QUALIFIED", slackCfg)
	var states []workflow.State
	out, err := run(t, h.steps, workflow.Options{
		OnTransition: func(_ string, s workflow.State, _ workflow.Outcome) { states = append(states, s) },
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.State != workflow.StateCompleted || out.Draft == nil || out.Delivery == nil || out.Notification == nil {
		t.Fatalf("unexpected outcome: %#v", out)
	}
	if h.sender.calls != 1 || len(h.writer.Calls()) != 1 || len(h.slack.Posts()) != 1 {
		t.Fatalf("expected draft, delivery and notification once each")
	}
	want := []workflow.State{
		workflow.StateReceived,
		workflow.StateResearching,
		workflow.StateQualifying,
		workflow.StateDrafting,
		workflow.StateSending,
		workflow.StateNotifying,
		workflow.StateCompleted,
	}
	if diff := cmp.Diff(want, states); diff != "" {
		t.Fatalf("transitions mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_NonQualifyingCategoriesStop(t *testing.T) {
	t.Parallel()

	for _, category := range []string{"UNQUALIFIED", "SUPPORT", "SOMETHING_NEW"} {
		t.Run(category, func(t *testing.T) {
			h := newHarness(t, category, slackCfg)
			var hooked lead.Qualification
			out, err := run(t, h.steps, workflow.Options{
				OnDisqualified: func(_ context.Context, _ string, _ lead.Lead, q lead.Qualification) error {
					hooked = q
					return errors.New("hook failures are not fatal")
				},
			})
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if out.State != workflow.StateCompleted || out.Draft != nil || out.Delivery != nil || out.Notification != nil {
				t.Fatalf("unexpected outcome: %#v", out)
			}
			if len(h.writer.Calls()) != 0 || h.sender.calls != 0 || len(h.slack.Posts()) != 0 {
				t.Fatalf("non-qualifying lead reached the send branch")
			}
			if string(hooked.Category) != category {
				t.Fatalf("hook saw %q", hooked.Category)
			}
		})
	}
}

func TestRun_SimulatedDeliveryWithoutCredentials(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "FOLLOW_UP", slackCfg)
	h.steps.Deliver = delivery.New(delivery.Config{}, discardLogger())
	out, err := run(t, h.steps, workflow.Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Delivery == nil || !out.Delivery.Success || !out.Delivery.Simulated {
		t.Fatalf("expected simulated delivery, got %#v", out.Delivery)
	}
}

func TestRun_DeliveryFailureDoesNotStopNotification(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "QUALIFIED", slackCfg)
	h.sender.result = delivery.Result{Error: "535 auth failed"}
	out, err := run(t, h.steps, workflow.Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.State != workflow.StateCompleted || out.Notification == nil || out.Delivery.Success {
		t.Fatalf("unexpected outcome: %#v", out)
	}
}

func TestRun_MissingChannelFailsRun(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "QUALIFIED", notify.Config{BotToken: "xoxb-test", SigningSecret: "s"})
	out, err := run(t, h.steps, workflow.Options{})
	if !errors.Is(err, workflow.ErrStep) || !errors.Is(err, notify.ErrChannelNotConfigured) {
		t.Fatalf("expected channel configuration error, got %v", err)
	}
	if out.State != workflow.StateFailed || out.Delivery == nil || out.Error() == "" {
		t.Fatalf("unexpected outcome: %#v", out)
	}
}

func TestRun_StepErrorsFailRun(t *testing.T) {
	t.Parallel()

	t.Run("research", func(t *testing.T) {
		h := newHarness(t, "QUALIFIED", slackCfg)
		h.steps.Research = fakeResearcher{err: research.ErrToolFailed}
		out, err := run(t, h.steps, workflow.Options{})
		if !errors.Is(err, research.ErrToolFailed) || out.State != workflow.StateFailed {
			t.Fatalf("expected research failure, got %v (%s)", err, out.State)
		}
		if len(h.classify.Calls()) != 0 {
			t.Fatalf("qualification ran after research failure")
		}
	})

	t.Run("qualify_decode", func(t *testing.T) {
		h := newHarness(t, "QUALIFIED", slackCfg)
		h.classify.Steps = []geminitest.Step{geminitest.Text("not json")}
		out, err := run(t, h.steps, workflow.Options{})
		if !errors.Is(err, qualify.ErrDecode) || out.Qualification != nil {
			t.Fatalf("expected decode failure, got %v (%#v)", err, out)
		}
		if h.sender.calls != 0 {
			t.Fatalf("delivery ran after qualification failure")
		}
	})
}

func TestNewRunner_RequiresSteps(t *testing.T) {
	if _, err := workflow.NewRunner(workflow.Steps{}, workflow.Options{}, nil); err == nil {
		t.Fatalf("expected error for missing steps")
	}
}
