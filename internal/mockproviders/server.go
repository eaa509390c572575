// Package mockproviders implements a local stand-in for the Exa search API,
// the Slack Web API and arbitrary HTML pages. It backs the package tests and
// cmd/mock-providers.
package mockproviders

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Call records a request made to the mock service.
type Call struct {
	Method string
	Path   string
}

// SearchQuery records one Exa search request body.
type SearchQuery struct {
	Query      string
	Category   string
	Type       string
	NumResults int
	Summary    bool
}

// SlackPost records one chat.postMessage request.
type SlackPost struct {
	Channel string
	Text    string
	Blocks  string
	TS      string
}

// Server implements the minimal provider surface used by the lead agent.
type Server struct {
	mu    sync.Mutex
	calls []Call

	expectedAPIKey     string
	expectedSlackToken string

	searches   []SearchQuery
	posts      []SlackPost
	pages      map[string]string
	channels   map[string]string
	searchFail int
	slackFail  string
	nextTS     int
}

// New constructs a new mock server with one known channel (C0LEADS, "leads").
func New() *Server {
	return &Server{
		pages:    make(map[string]string),
		channels: map[string]string{"C0LEADS": "leads"},
		nextTS:   1,
	}
}

// RequireAPIKey enforces the x-api-key header on search endpoints.
// If key is empty, it is not enforced.
func (s *Server) RequireAPIKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expectedAPIKey = strings.TrimSpace(key)
}

// RequireSlackToken enforces the bot token on Slack endpoints.
// If token is empty, it is not enforced.
func (s *Server) RequireSlackToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expectedSlackToken = strings.TrimSpace(token)
}

// FailSearch makes every search request return the given HTTP status.
// Zero restores normal behavior.
func (s *Server) FailSearch(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchFail = status
}

// FailSlack makes every Slack call answer ok=false with the given error code.
// Empty restores normal behavior.
func (s *Server) FailSlack(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slackFail = code
}

// SetPage serves html at /pages/{name}.
func (s *Server) SetPage(name, html string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[name] = html
}

// AddChannel registers a channel for conversations.info and chat.postMessage.
func (s *Server) AddChannel(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[id] = name
}

// Handler returns an http.Handler that serves the mock API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/slack/api/", s.handleSlack)
	mux.HandleFunc("/pages/", s.handlePage)
	return mux
}

// Calls returns a snapshot of calls made to the server.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Searches returns a snapshot of search requests.
func (s *Server) Searches() []SearchQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SearchQuery, len(s.searches))
	copy(out, s.searches)
	return out
}

// Posts returns a snapshot of Slack messages posted.
func (s *Server) Posts() []SlackPost {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SlackPost, len(s.posts))
	copy(out, s.posts)
	return out
}

func (s *Server) recordCall(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path})
}

type searchRequest struct {
	Query      string `json:"query"`
	Type       string `json:"type"`
	Category   string `json:"category"`
	NumResults int    `json:"numResults"`
	Contents   *struct {
		Summary bool `json:"summary"`
	} `json:"contents"`
}

type exaResult struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Score   float64 `json:"score"`
	Summary string  `json:"summary,omitempty"`
	Text    string  `json:"text,omitempty"`
}

func (s *Server) authorizeExa(w http.ResponseWriter, r *http.Request) bool {
	s.mu.Lock()
	expected := s.expectedAPIKey
	fail := s.searchFail
	s.mu.Unlock()

	if expected != "" && r.Header.Get("x-api-key") != expected {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid api key", "requestId": "req-unauthorized"})
		return false
	}
	if fail != 0 {
		writeJSON(w, fail, map[string]string{"error": "forced failure", "requestId": "req-forced"})
		return false
	}
	return true
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	s.recordCall(r)
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.authorizeExa(w, r) {
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}
	n := req.NumResults
	if n <= 0 {
		n = 10
	}

	s.mu.Lock()
	s.searches = append(s.searches, SearchQuery{
		Query:      req.Query,
		Category:   req.Category,
		Type:       req.Type,
		NumResults: req.NumResults,
		Summary:    req.Contents != nil && req.Contents.Summary,
	})
	s.mu.Unlock()

	slug := url.PathEscape(strings.ToLower(strings.ReplaceAll(strings.TrimSpace(req.Query), " ", "-")))
	results := make([]exaResult, 0, n)
	for i := 1; i <= n; i++ {
		res := exaResult{
			ID:    fmt.Sprintf("%s-%d", slug, i),
			Title: fmt.Sprintf("%s result %d", req.Query, i),
			URL:   fmt.Sprintf("https://example.com/%s/%d", slug, i),
			Score: 1 / float64(i),
		}
		if req.Contents != nil && req.Contents.Summary {
			res.Summary = fmt.Sprintf("Summary of %s (%s) #%d", req.Query, req.Category, i)
		}
		results = append(results, res)
	}
	writeJSON(w, http.StatusOK, map[string]any{"requestId": "req-" + slug, "results": results})
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	s.recordCall(r)
	name := strings.TrimPrefix(r.URL.Path, "/pages/")
	s.mu.Lock()
	html, ok := s.pages[name]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, html)
}

func (s *Server) handleSlack(w http.ResponseWriter, r *http.Request) {
	s.recordCall(r)
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": "invalid_form_data"})
		return
	}

	s.mu.Lock()
	expected := s.expectedSlackToken
	fail := s.slackFail
	s.mu.Unlock()

	if expected != "" {
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if got == "" {
			got = r.Form.Get("token")
		}
		if got != expected {
			writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": "invalid_auth"})
			return
		}
	}
	if fail != "" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": fail})
		return
	}

	method := strings.TrimPrefix(r.URL.Path, "/slack/api/")
	switch method {
	case "auth.test":
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":      true,
			"url":     "https://mock.slack.test/",
			"team":    "Mock Team",
			"user":    "lead-agent",
			"team_id": "T0MOCK",
			"user_id": "U0MOCK",
		})
	case "conversations.info":
		id := r.Form.Get("channel")
		s.mu.Lock()
		name, ok := s.channels[id]
		s.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": "channel_not_found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "channel": map[string]any{"id": id, "name": name}})
	case "chat.postMessage":
		channel := r.Form.Get("channel")
		s.mu.Lock()
		if _, ok := s.channels[channel]; !ok {
			s.mu.Unlock()
			writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": "channel_not_found"})
			return
		}
		ts := fmt.Sprintf("%d.%06d", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Unix(), s.nextTS)
		s.nextTS++
		s.posts = append(s.posts, SlackPost{
			Channel: channel,
			Text:    r.Form.Get("text"),
			Blocks:  r.Form.Get("blocks"),
			TS:      ts,
		})
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "channel": channel, "ts": ts})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": "unknown_method"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
