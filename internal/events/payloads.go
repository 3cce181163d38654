package events

import (
	"encoding/json"
	"time"
)

// EventPayload is the interface all typed payloads implement.
type EventPayload interface {
	EventType() EventType
}

// =============================================================================
// AUTOMATION EVENTS
// =============================================================================

// TimelineEntry mirrors one history entry of a run on the wire.
type TimelineEntry struct {
	Action string    `json:"action"`
	Detail string    `json:"detail,omitempty"`
	Ts     time.Time `json:"ts"`
}

type RunStartedPayload struct {
	Instruction string `json:"instruction"`
	Mode        string `json:"mode"`
}

func (RunStartedPayload) EventType() EventType { return EventRunStarted }

type StatusChangedPayload struct {
	Status   string `json:"status"`
	Previous string `json:"previous"`
	Error    string `json:"error,omitempty"`
}

func (StatusChangedPayload) EventType() EventType { return EventStatusChanged }

type LoadingChangedPayload struct {
	Loading bool `json:"loading"`
}

func (LoadingChangedPayload) EventType() EventType { return EventLoadingChanged }

type AgentMessagePayload struct {
	Message string `json:"message"`
}

func (AgentMessagePayload) EventType() EventType { return EventAgentMessage }

type HistoryAppendPayload struct {
	Entries []TimelineEntry `json:"entries"`
	Total   int             `json:"total"`
}

func (HistoryAppendPayload) EventType() EventType { return EventHistoryAppend }

type RunFinishedPayload struct {
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	Instruction string `json:"instruction"`
	Mode        string `json:"mode"`
	HistoryLen  int    `json:"history_len"`
}

func (RunFinishedPayload) EventType() EventType { return EventRunFinished }

// =============================================================================
// PREFERENCE EVENTS
// =============================================================================

type PreferenceChangedPayload struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	Persisted bool   `json:"persisted"`
}

func (PreferenceChangedPayload) EventType() EventType { return EventPreferenceChanged }

// =============================================================================
// TYPED EVENT CONSTRUCTORS
// =============================================================================

func NewTypedEvent(source EventSource, payload EventPayload) Event {
	return Event{
		ID:        generateEventID(),
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

func NewTypedEventWithRun(source EventSource, payload EventPayload, runID string) Event {
	e := NewTypedEvent(source, payload)
	e.RunID = runID
	return e
}

func toMap(v any) map[string]any {
	var result map[string]any
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

// =============================================================================
// TYPED PAYLOAD EXTRACTORS
// =============================================================================

func ExtractPayload[T EventPayload](e Event) (T, bool) {
	var result T
	if e.Type != result.EventType() {
		return result, false
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return result, false
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, false
	}
	return result, true
}

func GetStatusChangedPayload(e Event) (StatusChangedPayload, bool) {
	return ExtractPayload[StatusChangedPayload](e)
}

func GetAgentMessagePayload(e Event) (AgentMessagePayload, bool) {
	return ExtractPayload[AgentMessagePayload](e)
}

func GetHistoryAppendPayload(e Event) (HistoryAppendPayload, bool) {
	return ExtractPayload[HistoryAppendPayload](e)
}

func GetRunStartedPayload(e Event) (RunStartedPayload, bool) {
	return ExtractPayload[RunStartedPayload](e)
}

func GetRunFinishedPayload(e Event) (RunFinishedPayload, bool) {
	return ExtractPayload[RunFinishedPayload](e)
}
