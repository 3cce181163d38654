package automation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agiopen-org/lux-desktop/internal/events"
)

// fakeEngine is a scriptable Engine. Each Start opens a fresh buffered stream.
type fakeEngine struct {
	mu          sync.Mutex
	startErr    error
	stopErr     error
	startGate   chan struct{}
	keepOnStop  bool // when false, Stop closes the live stream
	requests    []StartRequest
	current     chan Update
	stopCalls   int
	closedCount int
}

func newFakeEngine() *fakeEngine { return &fakeEngine{} }

func (f *fakeEngine) Start(ctx context.Context, req StartRequest) (<-chan Update, error) {
	f.mu.Lock()
	gate := f.startGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	ch := make(chan Update, 32)
	f.current = ch
	f.requests = append(f.requests, req)
	return ch, nil
}

func (f *fakeEngine) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	if f.stopErr != nil {
		return f.stopErr
	}
	if !f.keepOnStop {
		f.closeLocked()
	}
	return nil
}

func (f *fakeEngine) push(u Update) {
	f.mu.Lock()
	ch := f.current
	f.mu.Unlock()
	ch <- u
}

func (f *fakeEngine) finish(outcome Outcome, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current <- Update{Terminal: &Terminal{Outcome: outcome, Detail: detail}}
	f.closeLocked()
}

func (f *fakeEngine) closeStream() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeLocked()
}

func (f *fakeEngine) closeLocked() {
	if f.current != nil {
		close(f.current)
		f.current = nil
		f.closedCount++
	}
}

func (f *fakeEngine) stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalls
}

func entry(action string) Entry {
	return Entry{Action: action, Ts: time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)}
}

func waitFor(t *testing.T, c *Controller, cond func(State) bool) State {
	t.Helper()
	var last State
	require.Eventually(t, func() bool {
		last = c.Snapshot()
		return cond(last)
	}, 2*time.Second, 2*time.Millisecond, "last state: %+v", last)
	return last
}

func TestStartStreamComplete(t *testing.T) {
	ctx := context.Background()
	engine := newFakeEngine()
	bus := events.NewBus(256)
	defer bus.Close()

	var mu sync.Mutex
	var loading []bool
	bus.Subscribe(func(e events.Event) {
		p, ok := events.ExtractPayload[events.LoadingChangedPayload](e)
		if ok {
			mu.Lock()
			loading = append(loading, p.Loading)
			mu.Unlock()
		}
	}, events.EventLoadingChanged)

	c := NewController(engine, WithBus(bus))
	assert.Equal(t, StatusIdle, c.Snapshot().Status)
	assert.Empty(t, c.Snapshot().Instruction)

	require.NoError(t, c.Start(ctx, "book an appointment", "actor"))

	s := c.Snapshot()
	assert.Equal(t, StatusRunning, s.Status)
	assert.Equal(t, "book an appointment", s.Instruction)
	assert.Equal(t, "actor", s.Mode)
	assert.False(t, s.Loading, "loading ends with the acknowledgment")
	assert.NotEmpty(t, s.RunID)
	require.Len(t, engine.requests, 1)
	assert.Equal(t, StartRequest{RunID: s.RunID, Instruction: "book an appointment", Mode: "actor"}, engine.requests[0])

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(loading) == 2
	}, time.Second, 2*time.Millisecond)
	assert.Equal(t, []bool{true, false}, loading)

	engine.push(Update{Message: "searching", History: []Entry{entry("open browser"), entry("search")}})
	s = waitFor(t, c, func(s State) bool { return len(s.History) == 2 })
	assert.Equal(t, "searching", s.AgentMessage)

	engine.push(Update{Message: "booking", History: []Entry{entry("click slot")}})
	s = waitFor(t, c, func(s State) bool { return len(s.History) == 3 })
	assert.Equal(t, "booking", s.AgentMessage, "agent message is replaced, not appended")
	assert.Equal(t, "click slot", s.History[2].Action)

	engine.finish(OutcomeCompleted, "")
	s = waitFor(t, c, func(s State) bool { return s.Status == StatusCompleted })
	assert.Empty(t, s.Error)
	assert.Len(t, s.History, 3)
	assert.False(t, s.EndedAt.IsZero())
}

func TestMidRunFailureKeepsHistory(t *testing.T) {
	ctx := context.Background()
	engine := newFakeEngine()
	c := NewController(engine)

	require.NoError(t, c.Start(ctx, "book an appointment", "actor"))
	engine.push(Update{Message: "searching", History: []Entry{entry("open browser")}})
	waitFor(t, c, func(s State) bool { return len(s.History) == 1 })

	engine.finish(OutcomeFailed, "network lost")
	s := waitFor(t, c, func(s State) bool { return !s.Running() })
	assert.Equal(t, StatusFailed, s.Status)
	assert.Equal(t, "network lost", s.Error)
	require.Len(t, s.History, 1)
	assert.Equal(t, "open browser", s.History[0].Action)
}

func TestFailureWithoutDetail(t *testing.T) {
	engine := newFakeEngine()
	c := NewController(engine)

	require.NoError(t, c.Start(context.Background(), "x", "actor"))
	engine.finish(OutcomeFailed, "  ")
	s := waitFor(t, c, func(s State) bool { return !s.Running() })
	assert.Equal(t, StatusFailed, s.Status)
	assert.Equal(t, defaultFailure, s.Error)
}

func TestStopWhenNotRunningIsNoop(t *testing.T) {
	ctx := context.Background()
	engine := newFakeEngine()
	c := NewController(engine)

	before := c.Snapshot()
	require.NoError(t, c.Stop(ctx))
	assert.Equal(t, before, c.Snapshot())

	require.NoError(t, c.Start(ctx, "x", "actor"))
	engine.push(Update{Message: "m", History: []Entry{entry("a")}})
	engine.finish(OutcomeFailed, "boom")
	before = waitFor(t, c, func(s State) bool { return s.Status == StatusFailed })

	require.NoError(t, c.Stop(ctx))
	assert.Equal(t, before, c.Snapshot())
	assert.Equal(t, 0, engine.stops(), "engine is not asked to stop an idle session")
}

func TestStopRunning(t *testing.T) {
	ctx := context.Background()
	engine := newFakeEngine()
	c := NewController(engine)

	require.NoError(t, c.Start(ctx, "x", "actor"))
	engine.push(Update{Message: "working", History: []Entry{entry("a")}})
	waitFor(t, c, func(s State) bool { return len(s.History) == 1 })

	require.NoError(t, c.Stop(ctx))

	s := c.Snapshot()
	assert.Equal(t, StatusIdle, s.Status)
	assert.Equal(t, StoppedMessage, s.AgentMessage)
	assert.Empty(t, s.Error)
	assert.False(t, s.Loading)
	assert.Len(t, s.History, 1)
	assert.Equal(t, 1, engine.stops())
}

func TestStopFailureKeepsRunning(t *testing.T) {
	ctx := context.Background()
	engine := newFakeEngine()
	c := NewController(engine)

	require.NoError(t, c.Start(ctx, "x", "actor"))
	engine.stopErr = errors.New("engine unreachable")

	err := c.Stop(ctx)
	require.ErrorIs(t, err, ErrStopFailed)
	s := c.Snapshot()
	assert.Equal(t, StatusRunning, s.Status)
	assert.False(t, s.Loading)

	// Updates keep flowing into the still-live run.
	engine.push(Update{Message: "still going"})
	waitFor(t, c, func(s State) bool { return s.AgentMessage == "still going" })
}

func TestStopWaitsForStreamEnd(t *testing.T) {
	engine := newFakeEngine()
	engine.keepOnStop = true
	c := NewController(engine)

	require.NoError(t, c.Start(context.Background(), "x", "actor"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.Stop(ctx)
	require.ErrorIs(t, err, ErrStopFailed)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StatusRunning, c.Snapshot().Status, "status is not cleared before the run ends")

	// A late update from the winding-down run is still part of this run.
	engine.push(Update{History: []Entry{entry("late")}})
	engine.closeStream()

	s := waitFor(t, c, func(s State) bool { return !s.Running() })
	assert.Equal(t, StatusIdle, s.Status)
	assert.Len(t, s.History, 1)
}

func TestStartRejected(t *testing.T) {
	engine := newFakeEngine()
	engine.startErr = errors.New("engine busy")
	c := NewController(engine)

	err := c.Start(context.Background(), "x", "actor")
	require.ErrorIs(t, err, ErrStartRejected)
	assert.Contains(t, err.Error(), "engine busy")

	s := c.Snapshot()
	assert.Equal(t, StatusIdle, s.Status)
	assert.False(t, s.Started())
	assert.False(t, s.Loading)
}

func TestStartWhileRunningStopsPreviousRun(t *testing.T) {
	ctx := context.Background()
	engine := newFakeEngine()
	c := NewController(engine)

	require.NoError(t, c.Start(ctx, "first", "actor"))
	first := c.Snapshot().RunID
	engine.push(Update{Message: "first message", History: []Entry{entry("first-1")}})
	waitFor(t, c, func(s State) bool { return len(s.History) == 1 })

	require.NoError(t, c.Start(ctx, "", "tasker:software_qa"))
	assert.Equal(t, 1, engine.stops())
	assert.Equal(t, 1, engine.closedCount, "previous stream ended before the new run started")
	require.Len(t, engine.requests, 2)

	s := c.Snapshot()
	assert.NotEqual(t, first, s.RunID)
	assert.Equal(t, StatusRunning, s.Status)
	assert.Empty(t, s.History, "history resets for the new run")
	assert.Empty(t, s.AgentMessage)
	assert.Equal(t, "tasker:software_qa", s.Mode)

	engine.push(Update{History: []Entry{entry("second-1")}})
	s = waitFor(t, c, func(s State) bool { return len(s.History) == 1 })
	assert.Equal(t, "second-1", s.History[0].Action)
}

func TestStartAfterFailureClearsError(t *testing.T) {
	ctx := context.Background()
	engine := newFakeEngine()
	c := NewController(engine)

	require.NoError(t, c.Start(ctx, "x", "actor"))
	engine.push(Update{History: []Entry{entry("a")}})
	engine.finish(OutcomeFailed, "boom")
	waitFor(t, c, func(s State) bool { return s.Status == StatusFailed })

	require.NoError(t, c.Start(ctx, "y", "actor"))
	s := c.Snapshot()
	assert.Empty(t, s.Error)
	assert.Empty(t, s.History)
	assert.Equal(t, 0, engine.stops(), "finished runs are not stopped again")
}

func TestConcurrentRequestsAreRejected(t *testing.T) {
	engine := newFakeEngine()
	engine.startGate = make(chan struct{})
	c := NewController(engine)

	errCh := make(chan error, 1)
	go func() { errCh <- c.Start(context.Background(), "first", "actor") }()

	waitFor(t, c, func(s State) bool { return s.Loading })
	assert.ErrorIs(t, c.Start(context.Background(), "second", "actor"), ErrBusy)
	assert.NoError(t, c.Stop(context.Background()), "nothing is running yet")

	close(engine.startGate)
	require.NoError(t, <-errCh)

	s := c.Snapshot()
	assert.Equal(t, "first", s.Instruction)
	assert.False(t, s.Loading)
	assert.Len(t, engine.requests, 1)
}

func TestStreamClosedWithoutTerminal(t *testing.T) {
	engine := newFakeEngine()
	c := NewController(engine)

	require.NoError(t, c.Start(context.Background(), "x", "actor"))
	engine.push(Update{History: []Entry{entry("a")}})
	engine.closeStream()

	s := waitFor(t, c, func(s State) bool { return !s.Running() })
	assert.Equal(t, StatusFailed, s.Status)
	assert.Equal(t, ErrStreamClosed.Error(), s.Error)
	assert.Len(t, s.History, 1)
}

func TestUpdatesAfterTerminalAreIgnored(t *testing.T) {
	engine := newFakeEngine()
	c := NewController(engine)

	require.NoError(t, c.Start(context.Background(), "x", "actor"))
	engine.push(Update{Message: "done soon", History: []Entry{entry("a")}})
	engine.push(Update{Terminal: &Terminal{Outcome: OutcomeCompleted}})
	engine.push(Update{Message: "ghost", History: []Entry{entry("ghost")}})
	engine.closeStream()

	s, err := c.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, s.Status)
	assert.Equal(t, "done soon", s.AgentMessage)
	assert.Len(t, s.History, 1)
}

func TestCancelledOutcomeReturnsToIdle(t *testing.T) {
	engine := newFakeEngine()
	c := NewController(engine)

	require.NoError(t, c.Start(context.Background(), "x", "actor"))
	engine.finish(OutcomeCancelled, "")

	s, err := c.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, s.Status)
	assert.Equal(t, StoppedMessage, s.AgentMessage)
}

func TestSnapshotIsACopy(t *testing.T) {
	engine := newFakeEngine()
	c := NewController(engine)

	require.NoError(t, c.Start(context.Background(), "x", "actor"))
	engine.push(Update{History: []Entry{entry("a")}})
	s := waitFor(t, c, func(s State) bool { return len(s.History) == 1 })

	s.History[0].Action = "mutated"
	assert.Equal(t, "a", c.Snapshot().History[0].Action)
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	engine := newFakeEngine()
	c := NewController(engine)

	require.NoError(t, c.Start(ctx, "x", "actor"))
	require.NoError(t, c.Close(ctx))
	assert.Equal(t, StatusIdle, c.Snapshot().Status)
	assert.Equal(t, 1, engine.stops())

	assert.ErrorIs(t, c.Start(ctx, "y", "actor"), ErrClosed)
	assert.NoError(t, c.Close(ctx))
}

func TestCloseDuringStartCancelsRun(t *testing.T) {
	ctx := context.Background()
	engine := newFakeEngine()
	engine.startGate = make(chan struct{})
	c := NewController(engine)

	started := make(chan error, 1)
	go func() { started <- c.Start(ctx, "x", "actor") }()
	waitFor(t, c, func(s State) bool { return s.Loading })

	require.NoError(t, c.Close(ctx))
	close(engine.startGate)

	select {
	case err := <-started:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("start did not return")
	}

	s := c.Snapshot()
	assert.Equal(t, StatusIdle, s.Status)
	assert.False(t, s.Loading)
	assert.Empty(t, s.RunID)
	assert.Equal(t, 1, engine.stops())
}

func TestEventsFollowRunLifecycle(t *testing.T) {
	engine := newFakeEngine()
	bus := events.NewBus(256)
	ch, unsub := bus.SubscribeChan(64,
		events.EventRunStarted, events.EventStatusChanged, events.EventAgentMessage,
		events.EventHistoryAppend, events.EventRunFinished)
	defer unsub()

	c := NewController(engine, WithBus(bus))
	require.NoError(t, c.Start(context.Background(), "book", "actor"))
	runID := c.Snapshot().RunID
	engine.push(Update{Message: "searching", History: []Entry{entry("a")}})
	engine.finish(OutcomeCompleted, "")
	_, err := c.Wait(context.Background())
	require.NoError(t, err)
	bus.Close()

	var types []events.EventType
	for e := range drain(ch) {
		assert.Equal(t, runID, e.RunID)
		types = append(types, e.Type)
	}
	assert.Equal(t, []events.EventType{
		events.EventRunStarted,
		events.EventStatusChanged,
		events.EventAgentMessage,
		events.EventHistoryAppend,
		events.EventStatusChanged,
		events.EventRunFinished,
	}, types)
}

// drain yields the events already buffered in ch without blocking.
func drain(ch <-chan events.Event) chan events.Event {
	out := make(chan events.Event, cap(ch))
	for {
		select {
		case e := <-ch:
			out <- e
		default:
			close(out)
			return out
		}
	}
}
