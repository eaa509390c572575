package dispatch

import (
	"sync"
	"time"

	"github.com/shpitdev/inbound-lead-agent/internal/lead"
	"github.com/shpitdev/inbound-lead-agent/internal/notify"
	"github.com/shpitdev/inbound-lead-agent/internal/workflow"
)

const DefaultRegistrySize = 1000

type Approval string

const (
	ApprovalNone     Approval = ""
	ApprovalPending  Approval = "pending"
	ApprovalApproved Approval = "approved"
	ApprovalRejected Approval = "rejected"
)

// Status is the externally visible state of a run.
type Status struct {
	RunID     string          `json:"runId"`
	State     workflow.State  `json:"state"`
	Category  lead.Category   `json:"category,omitempty"`
	Approval  Approval        `json:"approval,omitempty"`
	DecidedBy string          `json:"decidedBy,omitempty"`
	Delivery  *DeliveryStatus `json:"delivery,omitempty"`
	Error     string          `json:"error,omitempty"`
	Created   time.Time       `json:"created"`
	Updated   time.Time       `json:"updated"`
}

type DeliveryStatus struct {
	Success   bool `json:"success"`
	Simulated bool `json:"simulated"`
}

// Registry is a bounded in-memory map of run status. When full, the oldest
// finished run is evicted. In-flight runs are never evicted; their number
// is bounded by the dispatcher queue and worker count.
type Registry struct {
	mu    sync.Mutex
	max   int
	runs  map[string]*Status
	order []string
	now   func() time.Time
}

func NewRegistry(max int) *Registry {
	if max <= 0 {
		max = DefaultRegistrySize
	}
	return &Registry{max: max, runs: make(map[string]*Status), now: time.Now}
}

// Add registers a new run in StateReceived.
func (r *Registry) Add(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now().UTC()
	r.runs[runID] = &Status{RunID: runID, State: workflow.StateReceived, Created: now, Updated: now}
	r.order = append(r.order, runID)
	r.evictLocked()
}

// Remove forgets a run, e.g. one that was never queued.
func (r *Registry) Remove(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[runID]; !ok {
		return
	}
	delete(r.runs, runID)
	for i, id := range r.order {
		if id == runID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Observe records a workflow transition. Unknown runs are ignored.
func (r *Registry) Observe(runID string, s workflow.State, o workflow.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.runs[runID]
	if !ok {
		return
	}
	st.State = s
	st.Updated = r.now().UTC()
	if o.Qualification != nil {
		st.Category = o.Qualification.Category
	}
	if o.Delivery != nil {
		st.Delivery = &DeliveryStatus{Success: o.Delivery.Success, Simulated: o.Delivery.Simulated}
	}
	if o.Notification != nil && st.Approval == ApprovalNone {
		st.Approval = ApprovalPending
	}
	if msg := o.Error(); msg != "" {
		st.Error = msg
	}
	if s.Terminal() {
		r.evictLocked()
	}
}

// Fail marks a run failed outside the workflow (e.g. shutdown before start).
func (r *Registry) Fail(runID string, err error) {
	r.Observe(runID, workflow.StateFailed, workflow.Outcome{RunID: runID, Err: err})
}

// RecordDecision implements notify.Recorder.
func (r *Registry) RecordDecision(d notify.Decision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.runs[d.RunID]
	if !ok {
		return notify.ErrUnknownRun
	}
	st.Approval = ApprovalRejected
	if d.Approved {
		st.Approval = ApprovalApproved
	}
	st.DecidedBy = d.UserName
	if st.DecidedBy == "" {
		st.DecidedBy = d.UserID
	}
	st.Updated = r.now().UTC()
	return nil
}

// Get returns a copy of the run's status.
func (r *Registry) Get(runID string) (Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.runs[runID]
	if !ok {
		return Status{}, false
	}
	out := *st
	if st.Delivery != nil {
		d := *st.Delivery
		out.Delivery = &d
	}
	return out, true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

func (r *Registry) evictLocked() {
	for len(r.runs) > r.max {
		idx := -1
		for i, id := range r.order {
			if r.runs[id].State.Terminal() {
				idx = i
				break
			}
		}
		if idx < 0 {
			return
		}
		delete(r.runs, r.order[idx])
		r.order = append(r.order[:idx], r.order[idx+1:]...)
	}
}
