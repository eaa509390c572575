package exa

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/shpitdev/inbound-lead-agent/internal/util"
)

// errorEnvelope is the error body shape returned by the Exa API.
type errorEnvelope struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId"`
}

// HTTPError is a sanitized summary of a non-2xx Exa API response.
//
// Important: do not include raw response bodies here (can leak PII/tokens).
type HTTPError struct {
	Op         string
	StatusCode int
	Status     string
	Message    string
	RequestID  string

	// Snippet is a redacted, truncated hint for responses without an error envelope.
	Snippet string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "exa http error"
	}
	parts := []string{
		fmt.Sprintf("exa api error: op=%s status=%s", strings.TrimSpace(e.Op), strings.TrimSpace(e.Status)),
	}
	if strings.TrimSpace(e.Message) != "" {
		parts = append(parts, "message="+strings.TrimSpace(e.Message))
	}
	if strings.TrimSpace(e.RequestID) != "" {
		parts = append(parts, "request="+strings.TrimSpace(e.RequestID))
	}
	if strings.TrimSpace(e.Snippet) != "" {
		parts = append(parts, "body="+strings.TrimSpace(e.Snippet))
	}
	return strings.Join(parts, " ")
}

// Transient reports whether the status is worth surfacing as a retryable failure.
func (e *HTTPError) Transient() bool {
	return e != nil && (e.StatusCode == http.StatusTooManyRequests || e.StatusCode/100 == 5)
}

func newHTTPError(op string, resp *http.Response, body []byte) error {
	h := &HTTPError{Op: op}
	if resp != nil {
		h.StatusCode = resp.StatusCode
		h.Status = resp.Status
	}

	var env errorEnvelope
	if len(body) > 0 && json.Unmarshal(body, &env) == nil {
		h.Message = util.RedactSecrets(strings.TrimSpace(env.Error))
		h.RequestID = strings.TrimSpace(env.RequestID)
		if h.Message != "" || h.RequestID != "" {
			return h
		}
	}

	h.Snippet = redactAndTruncate(body)
	return h
}

func redactAndTruncate(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	// Keep this small: response bodies can contain sensitive data.
	const max = 256
	b := body
	if len(b) > max {
		b = b[:max]
	}
	s := util.RedactSecrets(string(b))
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if len(body) > max {
		return s + "..."
	}
	return s
}
