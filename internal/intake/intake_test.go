package intake_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shpitdev/inbound-lead-agent/internal/dispatch"
	"github.com/shpitdev/inbound-lead-agent/internal/intake"
	"github.com/shpitdev/inbound-lead-agent/internal/lead"
	"github.com/shpitdev/inbound-lead-agent/internal/workflow"
)

const browserUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0) AppleWebKit/605.1.15 Safari/605.1.15"

type fakeSubmitter struct {
	mu    sync.Mutex
	leads []lead.Lead
	err   error
}

func (f *fakeSubmitter) Submit(l lead.Lead) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.leads = append(f.leads, l)
	return "run-1", nil
}

func newMux(sub intake.Submitter, reg *dispatch.Registry, det intake.Detector) *http.ServeMux {
	mux := http.NewServeMux()
	intake.NewHandler(sub, reg, det, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(mux)
	return mux
}

func post(t *testing.T, h http.Handler, path, body, ua string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return rr, out
}

func TestSubmit_Accepted(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{}
	mux := newMux(sub, dispatch.NewRegistry(0), &intake.HeuristicDetector{})

	for _, path := range []string{"/api/submit", "/api/leads"} {
		rr, body := post(t, mux, path, `{"email":" a@b.com ","name":"A","message":"need analytics"}`, browserUA)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: status = %d, body %v", path, rr.Code, body)
		}
		if body["message"] != "Form submitted successfully" || body["runId"] != "run-1" {
			t.Fatalf("%s: unexpected body %v", path, body)
		}
	}
	want := lead.Lead{Email: "a@b.com", Name: "A", Message: "need analytics"}
	if diff := cmp.Diff(want, sub.leads[0]); diff != "" {
		t.Fatalf("submitted lead mismatch (-want +got):\n%s", diff)
	}
}

func TestSubmit_Rejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		ua         string
		wantStatus int
		wantError  string
	}{
		{name: "curl", body: `{"email":"a@b.com","name":"A"}`, ua: "curl/8.4.0", wantStatus: http.StatusForbidden, wantError: "Access denied"},
		{name: "no_user_agent", body: `{"email":"a@b.com","name":"A"}`, wantStatus: http.StatusForbidden, wantError: "Access denied"},
		{name: "honeypot", body: `{"email":"a@b.com","name":"A","website":"http://spam.example"}`, ua: browserUA, wantStatus: http.StatusForbidden, wantError: "Access denied"},
		{name: "bot_before_validation", body: `not json`, ua: "python-requests/2.31", wantStatus: http.StatusForbidden, wantError: "Access denied"},
		{name: "missing_name", body: `{"email":"a@b.com"}`, ua: browserUA, wantStatus: http.StatusBadRequest, wantError: "Invalid form data"},
		{name: "bad_email", body: `{"email":"not-an-email","name":"A"}`, ua: browserUA, wantStatus: http.StatusBadRequest, wantError: "Invalid form data"},
		{name: "malformed_json", body: `{"email":`, ua: browserUA, wantStatus: http.StatusBadRequest, wantError: "Invalid form data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &fakeSubmitter{}
			mux := newMux(sub, dispatch.NewRegistry(0), &intake.HeuristicDetector{})
			rr, body := post(t, mux, "/api/submit", tt.body, tt.ua)
			if rr.Code != tt.wantStatus || body["error"] != tt.wantError {
				t.Fatalf("got %d %v, want %d %q", rr.Code, body, tt.wantStatus, tt.wantError)
			}
			if len(sub.leads) != 0 {
				t.Fatalf("rejected submission started a run")
			}
		})
	}
}

func TestSubmit_ValidationFieldsReported(t *testing.T) {
	t.Parallel()

	mux := newMux(&fakeSubmitter{}, dispatch.NewRegistry(0), nil)
	_, body := post(t, mux, "/api/submit", `{"email":"","name":""}`, browserUA)
	fields, _ := body["fields"].([]any)
	if len(fields) != 2 {
		t.Fatalf("expected 2 field errors, got %v", body)
	}
}

func TestSubmit_RateLimitedPerIP(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{}
	mux := newMux(sub, dispatch.NewRegistry(0), &intake.HeuristicDetector{RatePerIP: 0.001, Burst: 1})
	body := `{"email":"a@b.com","name":"A"}`

	if rr, _ := post(t, mux, "/api/submit", body, browserUA); rr.Code != http.StatusOK {
		t.Fatalf("first submission status = %d", rr.Code)
	}
	if rr, _ := post(t, mux, "/api/submit", body, browserUA); rr.Code != http.StatusForbidden {
		t.Fatalf("second submission status = %d, want 403", rr.Code)
	}
	if len(sub.leads) != 1 {
		t.Fatalf("expected 1 run, got %d", len(sub.leads))
	}
}

func TestSubmit_QueueFull(t *testing.T) {
	t.Parallel()

	mux := newMux(&fakeSubmitter{err: dispatch.ErrQueueFull}, dispatch.NewRegistry(0), nil)
	rr, _ := post(t, mux, "/api/submit", `{"email":"a@b.com","name":"A"}`, browserUA)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
}

func TestSubmit_BodyTooLarge(t *testing.T) {
	t.Parallel()

	mux := newMux(&fakeSubmitter{}, dispatch.NewRegistry(0), nil)
	big := `{"email":"a@b.com","name":"A","message":"` + strings.Repeat("x", intake.MaxBodyBytes) + `"}`
	rr, _ := post(t, mux, "/api/submit", big, browserUA)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rr.Code)
	}
}

func TestRunStatus(t *testing.T) {
	t.Parallel()

	reg := dispatch.NewRegistry(0)
	reg.Add("run-9")
	reg.Observe("run-9", workflow.StateQualifying, workflow.Outcome{})
	mux := newMux(&fakeSubmitter{}, reg, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/runs/run-9", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var st dispatch.Status
	if err := json.Unmarshal(rr.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.RunID != "run-9" || st.State != workflow.StateQualifying {
		t.Fatalf("unexpected status: %#v", st)
	}

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/runs/missing", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}
