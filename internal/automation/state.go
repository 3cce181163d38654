// Package automation owns the automation session lifecycle: starting a run on
// the engine, consuming its streamed progress, and cancelling it.
package automation

import (
	"slices"
	"time"

	"github.com/agiopen-org/lux-desktop/internal/events"
)

// Status is the lifecycle state of the session.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Entry is one timeline entry emitted by the engine during a run.
type Entry struct {
	Action string    `json:"action"`
	Detail string    `json:"detail,omitempty"`
	Ts     time.Time `json:"ts"`
}

// State is a read-only snapshot of the session.
type State struct {
	RunID        string    `json:"run_id,omitempty"`
	Status       Status    `json:"status"`
	Instruction  string    `json:"instruction"`
	Mode         string    `json:"mode"`
	History      []Entry   `json:"history,omitempty"`
	AgentMessage string    `json:"agent_message,omitempty"`
	Error        string    `json:"error,omitempty"`
	Loading      bool      `json:"loading"`
	StartedAt    time.Time `json:"started_at,omitzero"`
	EndedAt      time.Time `json:"ended_at,omitzero"`
}

// Running reports whether a run is in progress.
func (s State) Running() bool { return s.Status == StatusRunning }

// Started reports whether any run was ever acknowledged.
func (s State) Started() bool { return s.RunID != "" }

func (s State) clone() State {
	s.History = slices.Clone(s.History)
	return s
}

func toTimeline(entries []Entry) []events.TimelineEntry {
	out := make([]events.TimelineEntry, len(entries))
	for i, e := range entries {
		out[i] = events.TimelineEntry{Action: e.Action, Detail: e.Detail, Ts: e.Ts}
	}
	return out
}

// FromTimeline converts bus timeline entries back into history entries.
func FromTimeline(entries []events.TimelineEntry) []Entry {
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = Entry{Action: e.Action, Detail: e.Detail, Ts: e.Ts}
	}
	return out
}
