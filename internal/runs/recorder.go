package runs

import (
	"log/slog"

	"github.com/agiopen-org/lux-desktop/internal/events"
)

// Recorder archives every run observed on the event bus into a Store.
type Recorder struct {
	store       Store
	unsubscribe func()
}

// NewRecorder subscribes a Recorder to the run lifecycle events of bus.
func NewRecorder(store Store, bus *events.Bus) *Recorder {
	r := &Recorder{store: store}
	r.unsubscribe = bus.Subscribe(r.handleEvent,
		events.EventRunStarted,
		events.EventAgentMessage,
		events.EventHistoryAppend,
		events.EventRunFinished,
	)
	return r
}

// Close unsubscribes the recorder from the event bus.
func (r *Recorder) Close() {
	if r.unsubscribe != nil {
		r.unsubscribe()
	}
}

func (r *Recorder) handleEvent(e events.Event) {
	if e.RunID == "" {
		return
	}
	if err := r.record(e); err != nil {
		slog.Warn("run archive write failed", "run_id", e.RunID, "event", e.Type, "error", err)
	}
}

func (r *Recorder) record(e events.Event) error {
	switch e.Type {
	case events.EventRunStarted:
		p, ok := events.GetRunStartedPayload(e)
		if !ok {
			return nil
		}
		return r.store.Create(&Run{
			ID:          e.RunID,
			Instruction: p.Instruction,
			Mode:        p.Mode,
			Status:      "running",
			StartedAt:   e.Timestamp,
		})

	case events.EventHistoryAppend:
		p, ok := events.GetHistoryAppendPayload(e)
		if !ok {
			return nil
		}
		return r.store.AppendEntries(e.RunID, p.Entries)

	case events.EventAgentMessage:
		p, ok := events.GetAgentMessagePayload(e)
		if !ok {
			return nil
		}
		return r.update(e.RunID, func(run *Run) { run.AgentMessage = p.Message })

	case events.EventRunFinished:
		p, ok := events.GetRunFinishedPayload(e)
		if !ok {
			return nil
		}
		return r.update(e.RunID, func(run *Run) {
			run.Status = p.Status
			run.Error = p.Error
			run.EndedAt = e.Timestamp
		})
	}
	return nil
}

func (r *Recorder) update(id string, fn func(*Run)) error {
	run, err := r.store.Get(id)
	if err != nil {
		return err
	}
	fn(run)
	return r.store.UpdateMeta(run)
}
