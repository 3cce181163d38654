// Package runs archives automation runs: one record per run with its
// metadata and the full timeline the engine produced.
package runs

import (
	"time"

	"github.com/agiopen-org/lux-desktop/internal/events"
	"github.com/agiopen-org/lux-desktop/internal/storage/dirstore"
)

// ErrNotFound is returned when no run carries the requested ID.
var ErrNotFound = dirstore.ErrNotFound

// Run holds the metadata of one archived run.
type Run struct {
	ID           string    `json:"id"`
	Instruction  string    `json:"instruction"`
	Mode         string    `json:"mode"`
	Status       string    `json:"status"`
	Error        string    `json:"error,omitempty"`
	AgentMessage string    `json:"agent_message,omitempty"`
	EntryCount   int       `json:"entry_count"`
	StartedAt    time.Time `json:"started_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	EndedAt      time.Time `json:"ended_at,omitzero"`
}

// Finished reports whether the run reached a final status.
func (r *Run) Finished() bool { return !r.EndedAt.IsZero() }

// Store defines the persistence interface for runs.
type Store interface {
	Create(r *Run) error
	Get(id string) (*Run, error)
	List() ([]*Run, error)
	UpdateMeta(r *Run) error
	AppendEntries(id string, entries []events.TimelineEntry) error
	LoadHistory(id string) ([]events.TimelineEntry, error)
	Delete(id string) error
}
