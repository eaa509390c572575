package draft_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shpitdev/inbound-lead-agent/internal/draft"
	"github.com/shpitdev/inbound-lead-agent/internal/gemini/geminitest"
	"github.com/shpitdev/inbound-lead-agent/internal/lead"
)

func TestSplitSubject(t *testing.T) {
	tests := []struct {
		name        string
		in          string
		wantSubject string
		wantBody    string
	}{
		{name: "leading_subject", in: "Subject: Faster analytics\n\nHi Ana,\nBody", wantSubject: "Faster analytics", wantBody: "Hi Ana,\nBody"},
		{name: "case_insensitive", in: "subject:   hello there  \nbody", wantSubject: "hello there", wantBody: "body"},
		{name: "leading_blank_lines", in: "\n\nSUBJECT: x\ny", wantSubject: "x", wantBody: "y"},
		{name: "subject_only", in: "Subject: only", wantSubject: "only", wantBody: ""},
		{name: "missing", in: "Hi Ana,\nBody", wantSubject: draft.DefaultSubject, wantBody: "Hi Ana,\nBody"},
		{name: "not_first_line", in: "Hello\nSubject: late", wantSubject: draft.DefaultSubject, wantBody: "Hello\nSubject: late"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subject, body := draft.SplitSubject(tt.in)
			if subject != tt.wantSubject || body != tt.wantBody {
				t.Fatalf("SplitSubject(%q) = (%q, %q), want (%q, %q)", tt.in, subject, body, tt.wantSubject, tt.wantBody)
			}
		})
	}
}

func TestWrite(t *testing.T) {
	t.Parallel()

	model := &geminitest.Model{Steps: []geminitest.Step{
		geminitest.Text("  Subject: Cut your reporting time\n\nHi {FirstName},\n...  "),
	}}
	w := draft.New(model, draft.Config{SellerName: "Datapelago", SellerURL: "https://www.datapelago.ai/"}, nil)
	q := lead.Qualification{Category: lead.CategoryQualified, Reason: "clear need"}

	d, err := w.Write(context.Background(), "Acme needs dashboards", q)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.HasPrefix(d.Text, "Subject: Cut your reporting time") {
		t.Fatalf("unexpected draft text: %q", d.Text)
	}
	if d.Subject() != "Cut your reporting time" {
		t.Fatalf("unexpected subject: %q", d.Subject())
	}

	prompt := model.Calls()[0].Contents[0].Parts[0].Text
	for _, want := range []string{"QUALIFIED lead", "Datapelago", "https://www.datapelago.ai/", "Acme needs dashboards", "Qualification reason: clear need", "Proposal at a glance:", "Hi {FirstName},"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
}

func TestWrite_Errors(t *testing.T) {
	t.Parallel()

	q := lead.Qualification{Category: lead.CategoryFollowUp}

	failing := &geminitest.Model{Steps: []geminitest.Step{geminitest.Fail(errors.New("boom"))}}
	if _, err := draft.New(failing, draft.Config{}, nil).Write(context.Background(), "", q); !errors.Is(err, draft.ErrModel) {
		t.Fatalf("expected ErrModel, got %v", err)
	}

	empty := &geminitest.Model{Steps: []geminitest.Step{geminitest.Text("   ")}}
	if _, err := draft.New(empty, draft.Config{}, nil).Write(context.Background(), "", q); !errors.Is(err, draft.ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}
