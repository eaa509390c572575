package workflow

// State is a run's position in the workflow.
type State string

const (
	StateReceived     State = "received"
	StateResearching  State = "researching"
	StateQualifying   State = "qualifying"
	StateDrafting     State = "drafting"
	StateSending      State = "sending"
	StateNotifying    State = "notifying"
	StateDisqualified State = "disqualified"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
)

// Terminal reports whether no further transitions follow.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}
