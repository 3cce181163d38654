package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agiopen-org/lux-desktop/internal/events"
)

var (
	// ErrBusy is returned while a previous Start or Stop is still awaiting acknowledgment.
	ErrBusy = errors.New("automation request already in flight")
	// ErrStartRejected wraps an engine refusal to begin a run.
	ErrStartRejected = errors.New("automation start rejected")
	// ErrStopFailed wraps a cancellation that did not reach the engine or did not complete.
	ErrStopFailed = errors.New("automation stop failed")
	// ErrStreamClosed is recorded when the engine stream ends without a terminal update.
	ErrStreamClosed = errors.New("engine stream closed before the run finished")
	// ErrClosed is returned once the controller has been closed.
	ErrClosed = errors.New("automation controller closed")
)

// StoppedMessage replaces the agent message once a run has been stopped.
const StoppedMessage = "Stopped"

const defaultFailure = "automation failed"

// run tracks the engine stream of one acknowledged run.
type run struct {
	id       string
	done     chan struct{} // closed when the stream has been fully consumed
	stopping bool
}

// Controller is the single authority on the automation session.
//
// Starting while a run is in progress stops that run first (engine
// acknowledgment plus end of its stream) and only then starts the new one.
// A Start or Stop issued while another request awaits acknowledgment fails
// with ErrBusy.
type Controller struct {
	engine Engine
	bus    *events.Bus

	mu     sync.Mutex
	state  State
	run    *run
	closed bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithBus publishes every session change on bus.
func WithBus(bus *events.Bus) Option {
	return func(c *Controller) { c.bus = bus }
}

// NewController creates an idle controller bound to engine.
func NewController(engine Engine, opts ...Option) *Controller {
	c := &Controller{
		engine: engine,
		state:  State{Status: StatusIdle},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Snapshot returns a copy of the current session state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Start begins a new run and returns once the engine acknowledged it.
// Failures during the run are reported through the session state, not here.
//
// When a run is in progress it is stopped first. If the engine then rejects
// the new run, the session is left in the state the stopped run produced
// (idle), not running. A controller closed while Start awaited the engine
// cancels the freshly started run and returns ErrClosed.
func (c *Controller) Start(ctx context.Context, instruction, mode string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state.Loading {
		c.mu.Unlock()
		return ErrBusy
	}
	c.setLoadingLocked(true)
	prev := c.run
	prevRunning := c.state.Running()
	c.mu.Unlock()
	defer c.setLoading(false)

	if prev != nil && prevRunning {
		slog.Info("stopping current run before starting a new one", "run_id", prev.id)
		if err := c.stopRun(ctx, prev); err != nil {
			return fmt.Errorf("stop previous run: %w", err)
		}
	}

	req := StartRequest{
		RunID:       newRunID(),
		Instruction: instruction,
		Mode:        mode,
	}
	updates, err := c.engine.Start(ctx, req)
	if err != nil {
		slog.Warn("automation start rejected", "run_id", req.RunID, "mode", mode, "error", err)
		return fmt.Errorf("%w: %w", ErrStartRejected, err)
	}

	r := &run{id: req.RunID, done: make(chan struct{})}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		slog.Info("controller closed during start, cancelling run", "run_id", req.RunID)
		go func() {
			for range updates {
			}
		}()
		if err := c.engine.Stop(ctx); err != nil {
			slog.Warn("automation stop failed", "run_id", req.RunID, "error", err)
		}
		return ErrClosed
	}
	previous := c.state.Status
	c.run = r
	c.state = State{
		RunID:       req.RunID,
		Status:      StatusRunning,
		Instruction: instruction,
		Mode:        mode,
		Loading:     true,
		StartedAt:   time.Now(),
	}
	c.publish(events.RunStartedPayload{Instruction: instruction, Mode: mode})
	c.publish(events.StatusChangedPayload{Status: string(StatusRunning), Previous: string(previous)})
	c.mu.Unlock()

	slog.Info("automation started", "run_id", req.RunID, "mode", mode)
	go c.consume(r, updates)
	return nil
}

// Stop requests cancellation of the live run and returns once the engine
// acknowledged it and the run's stream has ended. It is a no-op when no run
// is in progress. On failure the session stays running.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.state.Running() || c.run == nil {
		c.mu.Unlock()
		return nil
	}
	if c.state.Loading {
		c.mu.Unlock()
		return ErrBusy
	}
	c.setLoadingLocked(true)
	r := c.run
	c.mu.Unlock()
	defer c.setLoading(false)

	return c.stopRun(ctx, r)
}

// Wait blocks until the current run's stream has been fully consumed and
// returns the resulting state. It returns immediately when nothing was started.
func (c *Controller) Wait(ctx context.Context) (State, error) {
	c.mu.Lock()
	r := c.run
	c.mu.Unlock()

	if r != nil {
		select {
		case <-r.done:
		case <-ctx.Done():
			return c.Snapshot(), ctx.Err()
		}
	}
	return c.Snapshot(), nil
}

// Close stops the live run, if any, and rejects further starts.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	r := c.run
	running := c.state.Running()
	c.mu.Unlock()

	if r == nil || !running {
		return nil
	}
	return c.stopRun(ctx, r)
}

func (c *Controller) stopRun(ctx context.Context, r *run) error {
	c.mu.Lock()
	r.stopping = true
	c.mu.Unlock()

	if err := c.engine.Stop(ctx); err != nil {
		c.mu.Lock()
		r.stopping = false
		c.mu.Unlock()
		slog.Warn("automation stop failed", "run_id", r.id, "error", err)
		return fmt.Errorf("%w: %w", ErrStopFailed, err)
	}

	// The run is only over once its stream ended; a late update must not
	// land in a session that already reports it stopped.
	select {
	case <-r.done:
	case <-ctx.Done():
		slog.Warn("automation stop acknowledged but run still streaming", "run_id", r.id)
		return fmt.Errorf("%w: %w", ErrStopFailed, ctx.Err())
	}

	slog.Info("automation stopped", "run_id", r.id)
	return nil
}

func (c *Controller) consume(r *run, updates <-chan Update) {
	defer close(r.done)

	for u := range updates {
		c.mu.Lock()
		if c.run == r && c.state.Running() {
			c.applyLocked(u)
		}
		c.mu.Unlock()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run != r || !c.state.Running() {
		return
	}
	if r.stopping {
		c.finishLocked(StatusIdle, "", StoppedMessage)
		return
	}
	slog.Warn("engine stream closed mid-run", "run_id", r.id)
	c.finishLocked(StatusFailed, ErrStreamClosed.Error(), "")
}

func (c *Controller) applyLocked(u Update) {
	if u.Message != "" {
		c.state.AgentMessage = u.Message
		c.publish(events.AgentMessagePayload{Message: u.Message})
	}

	if len(u.History) > 0 {
		c.state.History = append(c.state.History, u.History...)
		c.publish(events.HistoryAppendPayload{
			Entries: toTimeline(u.History),
			Total:   len(c.state.History),
		})
	}

	if u.Terminal == nil {
		return
	}
	switch u.Terminal.Outcome {
	case OutcomeCompleted:
		c.finishLocked(StatusCompleted, "", "")
	case OutcomeCancelled:
		c.finishLocked(StatusIdle, "", StoppedMessage)
	default:
		detail := strings.TrimSpace(u.Terminal.Detail)
		if detail == "" {
			detail = defaultFailure
		}
		c.finishLocked(StatusFailed, detail, "")
	}
}

func (c *Controller) finishLocked(status Status, errMsg, message string) {
	previous := c.state.Status
	c.state.Status = status
	c.state.Error = errMsg
	if message != "" {
		c.state.AgentMessage = message
		c.publish(events.AgentMessagePayload{Message: message})
	}
	c.state.EndedAt = time.Now()

	c.publish(events.StatusChangedPayload{Status: string(status), Previous: string(previous), Error: errMsg})
	c.publish(events.RunFinishedPayload{
		Status:      string(status),
		Error:       errMsg,
		Instruction: c.state.Instruction,
		Mode:        c.state.Mode,
		HistoryLen:  len(c.state.History),
	})

	slog.Info("automation finished", "run_id", c.state.RunID, "status", status, "error", errMsg)
}

func (c *Controller) setLoading(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLoadingLocked(v)
}

func (c *Controller) setLoadingLocked(v bool) {
	if c.state.Loading == v {
		return
	}
	c.state.Loading = v
	c.publish(events.LoadingChangedPayload{Loading: v})
}

// publish emits payload for the current run. Caller holds mu.
func (c *Controller) publish(payload events.EventPayload) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(events.NewTypedEventWithRun(events.SourceController, payload, c.state.RunID))
}

func newRunID() string {
	u := uuid.New().String()
	return "run_" + strings.ReplaceAll(u[:8], "-", "")
}
