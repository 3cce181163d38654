package automation

import "context"

// Outcome is how a run ended, as reported by the engine.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// Terminal marks the last update of a run.
type Terminal struct {
	Outcome Outcome `json:"outcome"`
	Detail  string  `json:"detail,omitempty"`
}

// Update is one progress event pushed by the engine.
// An empty Message leaves the previous agent message in place.
type Update struct {
	Message  string    `json:"message,omitempty"`
	History  []Entry   `json:"history,omitempty"`
	Terminal *Terminal `json:"terminal,omitempty"`
}

// StartRequest is the engine invocation for one run.
type StartRequest struct {
	RunID       string `json:"run_id"`
	Instruction string `json:"instruction"`
	Mode        string `json:"mode"`
}

// Engine is the external automation engine.
//
// Start returns once the engine acknowledged the run. The returned channel
// carries the run's updates in emission order and is closed by the engine after
// the terminal update, or once the run has actually stopped after Stop.
// Stop returns once the engine acknowledged the cancellation request; it is an
// acknowledged no-op when nothing runs.
type Engine interface {
	Start(ctx context.Context, req StartRequest) (<-chan Update, error)
	Stop(ctx context.Context) error
}
