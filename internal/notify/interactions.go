package notify

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/slack-go/slack"
)

const maxInteractionBody = 1 << 20

// Decision is a reviewer's verdict on a drafted email.
type Decision struct {
	RunID    string    `json:"runId"`
	Approved bool      `json:"approved"`
	UserID   string    `json:"userId,omitempty"`
	UserName string    `json:"userName,omitempty"`
	At       time.Time `json:"at"`
}

// Recorder stores decisions. ErrUnknownRun-style failures surface as 404.
type Recorder interface {
	RecordDecision(d Decision) error
}

// ErrUnknownRun is returned by recorders that do not know the run id.
var ErrUnknownRun = errors.New("unknown run")

// InteractionHandler verifies Slack's request signature and records
// approve/reject button clicks.
func InteractionHandler(signingSecret string, rec Recorder, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "slack-interactions")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if signingSecret == "" {
			writeError(w, http.StatusServiceUnavailable, ErrCredentialsMissing.Error())
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxInteractionBody))
		if err != nil {
			writeError(w, http.StatusBadRequest, "read body")
			return
		}

		sv, err := slack.NewSecretsVerifier(r.Header, signingSecret)
		if err != nil {
			logger.WarnContext(r.Context(), "slack signature headers rejected", "error", err)
			writeError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
		if _, err := sv.Write(body); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
		if err := sv.Ensure(); err != nil {
			logger.WarnContext(r.Context(), "slack signature mismatch", "error", err)
			writeError(w, http.StatusUnauthorized, "invalid signature")
			return
		}

		form, err := url.ParseQuery(string(body))
		if err != nil || form.Get("payload") == "" {
			writeError(w, http.StatusBadRequest, "missing payload")
			return
		}
		var cb slack.InteractionCallback
		if err := json.Unmarshal([]byte(form.Get("payload")), &cb); err != nil {
			writeError(w, http.StatusBadRequest, "malformed payload")
			return
		}
		if cb.Type != slack.InteractionTypeBlockActions {
			w.WriteHeader(http.StatusOK)
			return
		}

		for _, action := range cb.ActionCallback.BlockActions {
			if action == nil || (action.ActionID != ActionApprove && action.ActionID != ActionReject) {
				continue
			}
			d := Decision{
				RunID:    action.Value,
				Approved: action.ActionID == ActionApprove,
				UserID:   cb.User.ID,
				UserName: cb.User.Name,
				At:       time.Now().UTC(),
			}
			if err := rec.RecordDecision(d); err != nil {
				status := http.StatusInternalServerError
				if errors.Is(err, ErrUnknownRun) {
					status = http.StatusNotFound
				}
				logger.WarnContext(r.Context(), "decision not recorded", "run_id", d.RunID, "error", err)
				writeError(w, status, err.Error())
				return
			}
			logger.InfoContext(r.Context(), "decision recorded",
				"run_id", d.RunID,
				"approved", d.Approved,
				"user", d.UserName,
			)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
