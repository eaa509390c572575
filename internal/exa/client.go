// Package exa is a minimal client for the Exa search API used by the research
// agent's search tool.
package exa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shpitdev/inbound-lead-agent/internal/lead"
)

const DefaultBaseURL = "https://api.exa.ai"

// Categories accepted by the search endpoint's category filter.
var Categories = []string{
	"company",
	"research paper",
	"news",
	"pdf",
	"github",
	"tweet",
	"personal site",
	"linkedin profile",
	"financial report",
}

type Config struct {
	APIKey  string
	BaseURL string

	// HTTPClient overrides the default client (60s timeout).
	HTTPClient *http.Client
}

// Client is a minimal HTTP client for the Exa endpoints used by this module.
type Client struct {
	baseURL *url.URL
	apiKey  string
	http    *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("EXA_API_KEY is required")
	}
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		raw = DefaultBaseURL
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse Exa base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("Exa base URL must include a host (got %q)", cfg.BaseURL)
	}
	u.Path = strings.TrimRight(u.Path, "/")

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		baseURL: u,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		http:    hc,
	}, nil
}

// ErrNotConfigured is returned by Unconfigured searches.
var ErrNotConfigured = errors.New("exa search is not configured")

// Unconfigured stands in for a Client when no API key is set. Every search
// fails with ErrNotConfigured; the research agent sees it as a tool error.
type Unconfigured struct{}

func (Unconfigured) Search(context.Context, SearchRequest) (SearchResponse, error) {
	return SearchResponse{}, fmt.Errorf("%w: EXA_API_KEY is not set", ErrNotConfigured)
}

type SearchRequest struct {
	Query      string
	Category   string
	NumResults int
	// Type is the search type: "keyword", "neural" or "auto".
	Type string
}

type Result struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	PublishedDate string  `json:"publishedDate,omitempty"`
	Author        string  `json:"author,omitempty"`
	Score         float64 `json:"score,omitempty"`
	Summary       string  `json:"summary,omitempty"`
	Text          string  `json:"text,omitempty"`
}

type SearchResponse struct {
	RequestID string   `json:"requestId"`
	Results   []Result `json:"results"`
}

type searchBody struct {
	Query      string          `json:"query"`
	Type       string          `json:"type,omitempty"`
	Category   string          `json:"category,omitempty"`
	NumResults int             `json:"numResults,omitempty"`
	Contents   *contentsOption `json:"contents,omitempty"`
}

type contentsOption struct {
	Summary bool `json:"summary,omitempty"`
}

// Search runs a search and asks Exa to attach a summary to each result.
func (c *Client) Search(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return SearchResponse{}, fmt.Errorf("search query is required")
	}
	n := req.NumResults
	if n <= 0 {
		n = 2
	}
	typ := strings.TrimSpace(req.Type)
	if typ == "" {
		typ = "keyword"
	}

	body := searchBody{
		Query:      query,
		Type:       typ,
		Category:   strings.TrimSpace(req.Category),
		NumResults: n,
		Contents:   &contentsOption{Summary: true},
	}

	var out SearchResponse
	if err := c.postJSON(ctx, "search", "search", body, &out); err != nil {
		return SearchResponse{}, err
	}
	return out, nil
}

func (c *Client) postJSON(ctx context.Context, op, path string, in any, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", op, err)
	}

	u := c.resolve(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		herr := newHTTPError(op, resp, b)
		if he, ok := herr.(*HTTPError); ok && he.Transient() {
			return &lead.TransientError{Err: herr}
		}
		return herr
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("parse %s response: %w", op, err)
	}
	return nil
}

func (c *Client) resolve(p string) *url.URL {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(p, "/")
	return &u
}

// ValidCategory reports whether s is an accepted category filter.
func ValidCategory(s string) bool {
	for _, c := range Categories {
		if c == s {
			return true
		}
	}
	return false
}
