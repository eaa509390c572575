// Package draft writes the outreach email for a qualifying lead.
package draft

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/shpitdev/inbound-lead-agent/internal/gemini"
	"github.com/shpitdev/inbound-lead-agent/internal/lead"
	"google.golang.org/genai"
)

// DefaultSubject is used when the draft has no leading Subject: line.
const DefaultSubject = "Re: Your Inquiry"

var (
	ErrModel = errors.New("draft model call failed")
	ErrEmpty = errors.New("draft model returned no text")
)

// Draft is the free-text email, subject line included.
type Draft struct {
	Text string
}

var subjectLine = regexp.MustCompile(`(?i)^Subject:\s*(.+?)(\n|$)`)

// SplitSubject separates a leading "Subject:" line from the body. When the
// line is missing, the subject is DefaultSubject and the body is the whole
// text.
func SplitSubject(text string) (subject, body string) {
	trimmed := strings.TrimLeft(text, " \t\r\n")
	m := subjectLine.FindStringSubmatchIndex(trimmed)
	if m == nil {
		return DefaultSubject, text
	}
	subject = strings.TrimSpace(trimmed[m[2]:m[3]])
	if subject == "" {
		subject = DefaultSubject
	}
	return subject, strings.TrimSpace(trimmed[m[1]:])
}

// Subject returns the draft's subject line.
func (d Draft) Subject() string {
	s, _ := SplitSubject(d.Text)
	return s
}

type Config struct {
	SellerName string
	SellerURL  string
}

type Writer struct {
	model  gemini.Model
	cfg    Config
	logger *slog.Logger
}

func New(model gemini.Model, cfg Config, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{model: model, cfg: cfg, logger: logger.With("component", "draft")}
}

func (w *Writer) Write(ctx context.Context, research string, q lead.Qualification) (Draft, error) {
	resp, err := w.model.GenerateContent(ctx,
		genai.Text(buildPrompt(w.cfg, research, q)),
		&genai.GenerateContentConfig{CandidateCount: 1},
	)
	if err != nil {
		return Draft{}, fmt.Errorf("%w: %w", ErrModel, err)
	}
	text := strings.TrimSpace(gemini.ResponseText(resp))
	if text == "" {
		return Draft{}, ErrEmpty
	}
	d := Draft{Text: text}
	w.logger.InfoContext(ctx, "email drafted",
		"category", q.Category,
		"subject", d.Subject(),
		"chars", len(text),
	)
	return d, nil
}

func buildPrompt(cfg Config, research string, q lead.Qualification) string {
	seller := strings.TrimSpace(cfg.SellerName)
	if seller == "" {
		seller = "our company"
	}
	source := ""
	if u := strings.TrimSpace(cfg.SellerURL); u != "" {
		source = "\n- Ground the offer in how " + seller + " (" + u + ") works and what it sells"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are writing a professional, concise sales email for a %s lead on behalf of %s.\n\n", q.Category, seller)
	b.WriteString(`Based on the research below, write an email that is:
- Direct and action-oriented
- Focused on their specific pain points and goals
- Includes a clear value proposition
- Has a strong call-to-action
- Professional but conversational tone` + source + `

Use this structure:

Subject: [Compelling subject line related to their pain point or goal]

Hi {FirstName},

[Opening paragraph: Reference their specific pain point or goal mentioned in their inquiry]

[Value proposition paragraph: Briefly explain how we can help them achieve their desired outcome]

Quick recap:
- Your goal: [Their specific goal/metric from research]
- Our approach: [Brief solution summary addressing their pain point]
- Expected impact: [Realistic metric or outcome]
- Implementation: [Timeline and what's involved]

Proposal at a glance:
- Package: [Recommended tier/plan]
- Pricing: [Pricing structure]
- Terms: [Contract details, pilot if applicable]
- Target start: [Proposed start date]

Thanks,
[Your Name]
[Your Title]
[Your Company]
[Contact details]

---

Research and lead information:
`)
	b.WriteString(research)
	b.WriteString("\n\nQualification reason: ")
	b.WriteString(q.Reason)
	b.WriteString(`

IMPORTANT:
- Keep the email concise (under 250 words for the body)
- Use specific details from the research
- Make it feel personalized, not templated
- Focus on action and next steps
- Include placeholders like {FirstName}, [calendar link], etc. for fields we don't have`)
	return b.String()
}
