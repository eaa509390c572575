// Package geminitest provides a scripted gemini.Model for tests.
package geminitest

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/genai"
)

// Call records one GenerateContent invocation.
type Call struct {
	Contents []*genai.Content
	Config   *genai.GenerateContentConfig
}

// Step produces the response for one call. Returning an error fails the call.
type Step func(call Call) (*genai.GenerateContentResponse, error)

// Model replays Steps in order. When the script runs out, the last step is
// repeated.
type Model struct {
	ModelName string
	Steps     []Step

	mu    sync.Mutex
	calls []Call
}

func (m *Model) Name() string {
	if m.ModelName == "" {
		return "fake-model"
	}
	return m.ModelName
}

func (m *Model) GenerateContent(_ context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	m.mu.Lock()
	copied := make([]*genai.Content, len(contents))
	copy(copied, contents)
	call := Call{Contents: copied, Config: cfg}
	m.calls = append(m.calls, call)
	idx := len(m.calls) - 1
	m.mu.Unlock()

	if len(m.Steps) == 0 {
		return nil, fmt.Errorf("geminitest: no steps scripted")
	}
	if idx >= len(m.Steps) {
		idx = len(m.Steps) - 1
	}
	return m.Steps[idx](call)
}

// Calls returns a snapshot of calls made so far.
func (m *Model) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// Text returns a step answering with plain text.
func Text(s string) Step {
	return func(Call) (*genai.GenerateContentResponse, error) {
		return TextResponse(s), nil
	}
}

// Fail returns a step failing with err.
func Fail(err error) Step {
	return func(Call) (*genai.GenerateContentResponse, error) {
		return nil, err
	}
}

// FunctionCalls returns a step requesting the given tool calls.
func FunctionCalls(calls ...*genai.FunctionCall) Step {
	return func(Call) (*genai.GenerateContentResponse, error) {
		parts := make([]*genai.Part, 0, len(calls))
		for _, fc := range calls {
			parts = append(parts, &genai.Part{FunctionCall: fc})
		}
		return response(parts), nil
	}
}

// TextResponse builds a single-candidate response with one text part.
func TextResponse(s string) *genai.GenerateContentResponse {
	return response([]*genai.Part{{Text: s}})
}

func response(parts []*genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: genai.RoleModel, Parts: parts},
		}},
	}
}
