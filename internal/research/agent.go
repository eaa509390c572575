// Package research runs the tool-calling agent that investigates a lead.
//
// Tool selection and ordering are chosen by the model and are not
// deterministic across runs. The only hard guarantee is the step cap.
package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shpitdev/inbound-lead-agent/internal/gemini"
	"github.com/shpitdev/inbound-lead-agent/internal/lead"
	"github.com/shpitdev/inbound-lead-agent/internal/util"
	"google.golang.org/genai"
)

const DefaultMaxSteps = 20

var (
	ErrModel        = errors.New("research model call failed")
	ErrToolFailed   = errors.New("research tool failed")
	ErrNoCandidates = errors.New("research model returned no candidates")
)

// Report is the research output. Only Text is consumed downstream.
type Report struct {
	Text       string
	Steps      int
	ToolCalls  int
	StepCapHit bool
}

type Config struct {
	// MaxSteps caps model turns. Zero means DefaultMaxSteps.
	MaxSteps   int
	SellerName string
	SellerURL  string
}

type Agent struct {
	model    gemini.Model
	tools    map[string]Tool
	decls    []*genai.FunctionDeclaration
	maxSteps int
	system   string
	logger   *slog.Logger
}

func New(model gemini.Model, tools []Tool, cfg Config, logger *slog.Logger) (*Agent, error) {
	if model == nil {
		return nil, fmt.Errorf("research: model is required")
	}
	if len(tools) == 0 {
		return nil, fmt.Errorf("research: at least one tool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}

	a := &Agent{
		model:    model,
		tools:    make(map[string]Tool, len(tools)),
		maxSteps: maxSteps,
		system:   systemPrompt(cfg.SellerName, cfg.SellerURL),
		logger:   logger.With("component", "research"),
	}
	for _, t := range tools {
		name := t.Declaration.Name
		if _, dup := a.tools[name]; dup {
			return nil, fmt.Errorf("research: duplicate tool %q", name)
		}
		a.tools[name] = t
		a.decls = append(a.decls, t.Declaration)
	}
	return a, nil
}

// MaxSteps returns the configured hard cap.
func (a *Agent) MaxSteps() int { return a.maxSteps }

// Research runs the agent loop until the model answers without tool calls or
// the step cap is reached. Reaching the cap stops the loop immediately, even
// with tool calls pending, and returns whatever text the model produced.
func (a *Agent) Research(ctx context.Context, l lead.Lead) (Report, error) {
	start := time.Now()
	contents := []*genai.Content{
		genai.NewContentFromText("Research the lead: "+l.JSON(), genai.RoleUser),
	}
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(a.system, genai.RoleUser),
		Tools:             []*genai.Tool{{FunctionDeclarations: a.decls}},
		CandidateCount:    1,
	}

	var report Report
	var lastToolErr error
	for report.Steps < a.maxSteps {
		resp, err := a.model.GenerateContent(ctx, contents, cfg)
		report.Steps++
		if err != nil {
			return report, fmt.Errorf("%w: step %d: %w", ErrModel, report.Steps, err)
		}
		if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
			return report, fmt.Errorf("%w: step %d", ErrNoCandidates, report.Steps)
		}
		content := resp.Candidates[0].Content

		if text := contentText(content); text != "" {
			report.Text = text
		}
		calls := functionCalls(content)
		if len(calls) == 0 {
			return a.finish(l, report, lastToolErr, start)
		}

		contents = append(contents, content)
		parts := make([]*genai.Part, 0, len(calls))
		lastToolErr = nil
		for _, fc := range calls {
			report.ToolCalls++
			out, err := a.invoke(ctx, fc)
			if err != nil {
				lastToolErr = fmt.Errorf("%s: %w", fc.Name, err)
			}
			parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       fc.ID,
				Name:     fc.Name,
				Response: out,
			}})
		}
		contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
	}

	report.StepCapHit = true
	a.logger.WarnContext(ctx, "research step cap reached",
		"lead", l.Email,
		"max_steps", a.maxSteps,
		"tool_calls", report.ToolCalls,
	)
	return a.finish(l, report, lastToolErr, start)
}

func (a *Agent) finish(l lead.Lead, report Report, lastToolErr error, start time.Time) (Report, error) {
	if report.Text == "" && lastToolErr != nil {
		return report, fmt.Errorf("%w: %w", ErrToolFailed, lastToolErr)
	}
	a.logger.Info("research completed",
		"lead", l.Email,
		"steps", report.Steps,
		"tool_calls", report.ToolCalls,
		"step_cap_hit", report.StepCapHit,
		"chars", len(report.Text),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return report, nil
}

// invoke runs one tool call. Failures are reported back to the model as an
// error payload so it can choose another tool.
func (a *Agent) invoke(ctx context.Context, fc *genai.FunctionCall) (map[string]any, error) {
	tool, ok := a.tools[fc.Name]
	if !ok {
		err := fmt.Errorf("unknown tool %q", fc.Name)
		a.logger.WarnContext(ctx, "research tool unknown", "tool", fc.Name)
		return map[string]any{"error": err.Error()}, err
	}

	start := time.Now()
	out, err := tool.Run(ctx, fc.Args)
	if err != nil {
		msg := util.RedactSecrets(err.Error())
		a.logger.WarnContext(ctx, "research tool failed",
			"tool", fc.Name,
			"args", argsForLog(fc.Args),
			"transient", gemini.IsTransient(err),
			"error", msg,
			"duration", time.Since(start).Round(time.Millisecond),
		)
		return map[string]any{"error": msg}, err
	}
	a.logger.DebugContext(ctx, "research tool executed",
		"tool", fc.Name,
		"args", argsForLog(fc.Args),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return toResponse(out), nil
}

func contentText(c *genai.Content) string {
	var sb strings.Builder
	for _, p := range c.Parts {
		if p == nil || p.Text == "" || p.Thought {
			continue
		}
		sb.WriteString(p.Text)
	}
	return strings.TrimSpace(sb.String())
}

func functionCalls(c *genai.Content) []*genai.FunctionCall {
	var out []*genai.FunctionCall
	for _, p := range c.Parts {
		if p != nil && p.FunctionCall != nil {
			out = append(out, p.FunctionCall)
		}
	}
	return out
}

func toResponse(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	b, err := json.Marshal(v)
	if err != nil {
		return map[string]any{"error": "unencodable tool output"}
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err == nil && m != nil {
		return m
	}
	var raw any
	_ = json.Unmarshal(b, &raw)
	return map[string]any{"output": raw}
}

func argsForLog(args map[string]any) string {
	b, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return util.Truncate(string(b), 200)
}
