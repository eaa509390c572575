// Package qualify classifies a researched lead into a closed category set.
package qualify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shpitdev/inbound-lead-agent/internal/gemini"
	"github.com/shpitdev/inbound-lead-agent/internal/lead"
	"google.golang.org/genai"
)

var (
	// ErrDecode is returned when the model output does not match the schema.
	// The step fails; the category is never defaulted.
	ErrDecode = errors.New("qualification decode failed")
	ErrModel  = errors.New("qualification model call failed")
)

type responseSchema struct {
	Category string `json:"category"`
	Reason   string `json:"reason"`
}

func outputSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"category": {
				Type:   genai.TypeString,
				Format: "enum",
				Enum:   lead.CategoryStrings(),
			},
			"reason": {Type: genai.TypeString},
		},
		Required: []string{"category", "reason"},
	}
}

type Config struct {
	SellerName string
}

type Qualifier struct {
	model  gemini.Model
	seller string
	logger *slog.Logger
}

func New(model gemini.Model, cfg Config, logger *slog.Logger) *Qualifier {
	if logger == nil {
		logger = slog.Default()
	}
	seller := strings.TrimSpace(cfg.SellerName)
	if seller == "" {
		seller = "our company"
	}
	return &Qualifier{model: model, seller: seller, logger: logger.With("component", "qualify")}
}

// Qualify asks the model for a category and reason. Unknown category labels
// are passed through; the orchestrator treats them as non-qualifying.
func (q *Qualifier) Qualify(ctx context.Context, l lead.Lead, research string) (lead.Qualification, error) {
	q.logger.InfoContext(ctx, "qualifying lead",
		"lead", l.Email,
		"company", l.Company,
		"research_chars", len(research),
	)

	resp, err := q.model.GenerateContent(ctx,
		genai.Text(buildPrompt(q.seller, l, research)),
		&genai.GenerateContentConfig{
			CandidateCount:   1,
			ResponseMIMEType: "application/json",
			ResponseSchema:   outputSchema(),
		},
	)
	if err != nil {
		return lead.Qualification{}, fmt.Errorf("%w: %w", ErrModel, err)
	}

	out, err := Decode(gemini.ResponseText(resp))
	if err != nil {
		return lead.Qualification{}, err
	}

	q.logger.InfoContext(ctx, "qualification result",
		"lead", l.Email,
		"category", out.Category,
		"known", out.Category.Known(),
		"reason", out.Reason,
	)
	return out, nil
}

// Decode parses model output into a Qualification. Empty or unparseable
// output is an error.
func Decode(text string) (lead.Qualification, error) {
	parsed, err := gemini.ParseJSON[responseSchema](text)
	if err != nil {
		return lead.Qualification{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if strings.TrimSpace(parsed.Category) == "" {
		return lead.Qualification{}, fmt.Errorf("%w: empty category", ErrDecode)
	}
	return lead.Qualification{
		Category: lead.ParseCategory(parsed.Category),
		Reason:   strings.TrimSpace(parsed.Reason),
	}, nil
}

func buildPrompt(seller string, l lead.Lead, research string) string {
	return strings.TrimSpace(`
You are a lead qualification assistant for ` + seller + `.

Classify the lead into exactly one of these categories:
- QUALIFIED: strong match to the ideal customer profile, clear need and intent to purchase
- FOLLOW_UP: partial fit or unclear intent; needs nurturing
- SUPPORT: an existing customer or a support request rather than a sales inquiry
- UNQUALIFIED: not a target market or no business value

Return a JSON object:
{
  "category": "<QUALIFIED | FOLLOW_UP | SUPPORT | UNQUALIFIED>",
  "reason": "<1-3 short bullet points explaining the classification>"
}

Rules:
- Base your decision ONLY on the provided information
- Be concise and business-focused
- Do not invent facts that are not in the data

LEAD DATA:
` + l.JSON() + `

RESEARCH:
` + research + `
`)
}
