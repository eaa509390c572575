// Package gemini wraps the genai client used by the research, qualification
// and drafting steps.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/shpitdev/inbound-lead-agent/internal/lead"
	"google.golang.org/genai"
)

type Config struct {
	APIKey string
	Model  string

	// BaseURL overrides the Gemini API base URL. Useful for proxies/testing.
	BaseURL string
}

// Model is the single call every step needs. *Client satisfies it; tests use fakes.
type Model interface {
	GenerateContent(ctx context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	Name() string
}

// ErrNotConfigured is returned by every call on a model built without
// credentials.
var ErrNotConfigured = errors.New("gemini is not configured")

// Unavailable returns a Model whose calls fail with ErrNotConfigured wrapping
// reason. The process still starts; each run fails at its first model step.
func Unavailable(model string, reason error) Model {
	return unavailable{model: strings.TrimSpace(model), reason: reason}
}

type unavailable struct {
	model  string
	reason error
}

func (u unavailable) Name() string { return u.model }

func (u unavailable) GenerateContent(context.Context, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	if u.reason == nil {
		return nil, ErrNotConfigured
	}
	return nil, fmt.Errorf("%w: %w", ErrNotConfigured, u.reason)
}

type Client struct {
	client *genai.Client
	model  string
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("GEMINI_MODEL is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &Client{
		client: client,
		model:  strings.TrimSpace(cfg.Model),
	}, nil
}

func (c *Client) Name() string { return c.model }

func (c *Client) GenerateContent(ctx context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return nil, ClassifyErr(err)
	}
	return resp, nil
}

// ClassifyErr wraps rate-limit, 5xx and temporary network failures in
// lead.TransientError so logs can tell them apart from permanent failures.
func ClassifyErr(err error) error {
	if err == nil {
		return nil
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Code/100 == 5 {
			return &lead.TransientError{Err: err}
		}
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && (ne.Timeout() || ne.Temporary()) {
		return &lead.TransientError{Err: err}
	}
	return err
}

// IsTransient reports whether err was marked by ClassifyErr.
func IsTransient(err error) bool {
	return lead.IsTransient(err)
}
