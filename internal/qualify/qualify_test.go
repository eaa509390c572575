package qualify_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shpitdev/inbound-lead-agent/internal/gemini/geminitest"
	"github.com/shpitdev/inbound-lead-agent/internal/lead"
	"github.com/shpitdev/inbound-lead-agent/internal/qualify"
	"google.golang.org/genai"
)

func newQualifier(model *geminitest.Model) *qualify.Qualifier {
	return qualify.New(model, qualify.Config{SellerName: "Datapelago"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestQualify(t *testing.T) {
	t.Parallel()

	model := &geminitest.Model{Steps: []geminitest.Step{
		geminitest.Text(`{"category":"QUALIFIED","reason":"- clear analytics need"}`),
	}}
	l := lead.Lead{Email: "a@b.com", Name: "A", Message: "need analytics"}

	got, err := newQualifier(model).Qualify(context.Background(), l, "Acme sells shoes")
	if err != nil {
		t.Fatalf("qualify: %v", err)
	}
	want := lead.Qualification{Category: lead.CategoryQualified, Reason: "- clear analytics need"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("qualification mismatch (-want +got):\n%s", diff)
	}

	calls := model.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	cfg := calls[0].Config
	if cfg.ResponseMIMEType != "application/json" || cfg.ResponseSchema == nil {
		t.Fatalf("expected structured output config, got %#v", cfg)
	}
	enum := cfg.ResponseSchema.Properties["category"].Enum
	if diff := cmp.Diff(lead.CategoryStrings(), enum); diff != "" {
		t.Fatalf("category enum mismatch (-want +got):\n%s", diff)
	}
	prompt := calls[0].Contents[0].Parts[0].Text
	for _, want := range []string{"Datapelago", "a@b.com", "need analytics", "Acme sells shoes"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
}

func TestQualify_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		step geminitest.Step
		want error
	}{
		{name: "model_error", step: geminitest.Fail(genai.APIError{Code: 500}), want: qualify.ErrModel},
		{name: "not_json", step: geminitest.Text("QUALIFIED because reasons"), want: qualify.ErrDecode},
		{name: "empty_category", step: geminitest.Text(`{"category":"","reason":"x"}`), want: qualify.ErrDecode},
		{name: "empty_output", step: geminitest.Text(""), want: qualify.ErrDecode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &geminitest.Model{Steps: []geminitest.Step{tt.step}}
			_, err := newQualifier(model).Qualify(context.Background(), lead.Lead{Email: "a@b.com", Name: "A"}, "")
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want lead.Qualification
	}{
		{name: "canonical", in: `{"category":"FOLLOW_UP","reason":"unclear"}`, want: lead.Qualification{Category: lead.CategoryFollowUp, Reason: "unclear"}},
		{name: "title_case", in: `{"category":"Follow-up","reason":" r "}`, want: lead.Qualification{Category: lead.CategoryFollowUp, Reason: "r"}},
		{name: "fenced", in: "```json\n{\"category\":\"SUPPORT\",\"reason\":\"ticket\"}\n```", want: lead.Qualification{Category: lead.CategorySupport, Reason: "ticket"}},
		{name: "unknown_passthrough", in: `{"category":"MAYBE","reason":"?"}`, want: lead.Qualification{Category: lead.Category("MAYBE"), Reason: "?"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := qualify.Decode(tt.in)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
