// Package intake serves the lead form endpoint and the run status lookup.
package intake

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/shpitdev/inbound-lead-agent/internal/dispatch"
	"github.com/shpitdev/inbound-lead-agent/internal/lead"
)

// MaxBodyBytes caps a submission body.
const MaxBodyBytes = 64 << 10

// Submitter starts a workflow run without waiting for it.
type Submitter interface {
	Submit(l lead.Lead) (string, error)
}

// StatusLookup resolves run ids.
type StatusLookup interface {
	Get(runID string) (dispatch.Status, bool)
}

type Handler struct {
	submitter Submitter
	runs      StatusLookup
	detector  Detector
	logger    *slog.Logger
}

func NewHandler(submitter Submitter, runs StatusLookup, detector Detector, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		submitter: submitter,
		runs:      runs,
		detector:  detector,
		logger:    logger.With("component", "intake"),
	}
}

// Register mounts the intake routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/submit", h.Submit)
	mux.HandleFunc("POST /api/leads", h.Submit)
	mux.HandleFunc("GET /api/runs/{id}", h.RunStatus)
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error  string       `json:"error"`
	Fields []fieldError `json:"fields,omitempty"`
}

type submitResponse struct {
	Message string `json:"message"`
	RunID   string `json:"runId"`
}

// Submit checks for bots first, then validates, then dispatches. The reply
// never waits for the workflow.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "could not read request body"})
		return
	}

	if h.detector != nil {
		if bot, reason := h.detector.IsBot(r, body); bot {
			h.logger.WarnContext(r.Context(), "submission rejected as automated",
				"reason", reason,
				"addr", r.RemoteAddr,
				"user_agent", r.UserAgent(),
			)
			writeJSON(w, http.StatusForbidden, errorResponse{Error: "Access denied"})
			return
		}
	}

	l, err := lead.Decode(body)
	if err != nil {
		resp := errorResponse{Error: "Invalid form data"}
		var ve *lead.ValidationError
		if errors.As(err, &ve) {
			for _, f := range ve.Fields {
				resp.Fields = append(resp.Fields, fieldError{Field: f.Field, Message: f.Message})
			}
		}
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	runID, err := h.submitter.Submit(l)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, dispatch.ErrQueueFull) || errors.Is(err, dispatch.ErrClosed) {
			status = http.StatusServiceUnavailable
		}
		h.logger.ErrorContext(r.Context(), "submission not dispatched", "lead", l.Email, "error", err)
		writeJSON(w, status, errorResponse{Error: "Service busy, try again later"})
		return
	}

	h.logger.InfoContext(r.Context(), "lead accepted", "run_id", runID, "lead", l.Email, "company", l.Company)
	writeJSON(w, http.StatusOK, submitResponse{Message: "Form submitted successfully", RunID: runID})
}

func (h *Handler) RunStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, ok := h.runs.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "run not found"})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
