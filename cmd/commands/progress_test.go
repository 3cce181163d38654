package commands

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agiopen-org/lux-desktop/internal/events"
)

func ev(p events.EventPayload) events.Event {
	return events.NewTypedEventWithRun(events.SourceController, p, "run_1")
}

func TestProgressPrinterPlain(t *testing.T) {
	var buf bytes.Buffer
	p := &progressPrinter{out: &buf}

	p.handle(ev(events.RunStartedPayload{Instruction: "book an appointment", Mode: "actor"}))
	p.handle(ev(events.AgentMessagePayload{Message: "searching"}))
	p.handle(ev(events.HistoryAppendPayload{Entries: []events.TimelineEntry{
		{Action: "open browser", Detail: "chrome"},
		{Action: "search"},
	}}))
	p.handle(ev(events.RunFinishedPayload{Status: "failed", Error: "network lost", HistoryLen: 2}))

	assert.Equal(t, "run run_1 started (mode actor)\n"+
		"> searching\n"+
		"  - open browser: chrome\n"+
		"  - search\n"+
		"failed after 2 steps: network lost\n", buf.String())
}

func TestProgressPrinterTerminal(t *testing.T) {
	var buf bytes.Buffer
	p := &progressPrinter{out: &buf, tty: true, width: 12}

	p.handle(ev(events.AgentMessagePayload{Message: "a rather long message"}))
	p.handle(ev(events.RunFinishedPayload{Status: "completed", HistoryLen: 3}))

	assert.Equal(t, "\r\033[2K> a rather \ncompleted (3 steps)\n", buf.String())
}

func TestSummaryStopped(t *testing.T) {
	assert.Equal(t, "stopped after 0 steps", summary(events.RunFinishedPayload{Status: "idle"}))
}
