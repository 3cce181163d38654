package sim

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agiopen-org/lux-desktop/internal/automation"
	"github.com/agiopen-org/lux-desktop/internal/modes"
)

// Engine replays scenarios as automation runs. At most one run is live:
// starting while another run plays stops it first.
type Engine struct {
	scenarios map[string]*Scenario
	stepDelay time.Duration

	startMu sync.Mutex // serializes Start
	mu      sync.Mutex
	active  *playback
}

type playback struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

var _ automation.Engine = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithStepDelay sets the pause before each step without its own delay.
func WithStepDelay(d time.Duration) Option {
	return func(e *Engine) { e.stepDelay = d }
}

// New creates an engine replaying scenarios keyed by name.
func New(scenarios map[string]*Scenario, opts ...Option) *Engine {
	e := &Engine{
		scenarios: scenarios,
		stepDelay: 500 * time.Millisecond,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Scenario picks the scenario for an engine mode: "tasker:<key>" selects
// scenario <key>, anything else the default scenario.
func (e *Engine) Scenario(mode string) (*Scenario, error) {
	name := DefaultScenario
	if key, ok := modes.TaskerWorkflow(mode); ok {
		if key == "" {
			return nil, fmt.Errorf("no workflow selected")
		}
		name = key
	}
	s, ok := e.scenarios[name]
	if !ok {
		return nil, fmt.Errorf("unknown workflow %q", name)
	}
	return s, nil
}

// Start begins replaying the scenario selected by req.Mode.
func (e *Engine) Start(ctx context.Context, req automation.StartRequest) (<-chan automation.Update, error) {
	s, err := e.Scenario(req.Mode)
	if err != nil {
		return nil, err
	}

	e.startMu.Lock()
	defer e.startMu.Unlock()

	e.mu.Lock()
	prev := e.active
	e.mu.Unlock()
	if prev != nil {
		prev.cancel()
		select {
		case <-prev.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	p := &playback{id: req.RunID, cancel: cancel, done: make(chan struct{})}
	updates := make(chan automation.Update, 16)

	e.mu.Lock()
	e.active = p
	e.mu.Unlock()

	slog.Info("sim run started", "run_id", req.RunID, "scenario", s.Name)
	go e.play(runCtx, p, s, updates)
	return updates, nil
}

// Stop cancels the live run. The run's stream ends with a cancelled update.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	p := e.active
	e.mu.Unlock()

	if p != nil {
		slog.Info("sim run stop requested", "run_id", p.id)
		p.cancel()
	}
	return nil
}

func (e *Engine) play(ctx context.Context, p *playback, s *Scenario, updates chan<- automation.Update) {
	defer func() {
		close(updates)
		e.mu.Lock()
		if e.active == p {
			e.active = nil
		}
		e.mu.Unlock()
		close(p.done)
	}()

	cancelled := func() {
		updates <- automation.Update{Terminal: &automation.Terminal{Outcome: automation.OutcomeCancelled}}
		slog.Info("sim run cancelled", "run_id", p.id)
	}

	for _, step := range s.Steps {
		delay := step.Delay
		if delay <= 0 {
			delay = e.stepDelay
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			cancelled()
			return
		}

		u := automation.Update{Message: step.Message}
		now := time.Now()
		for _, a := range step.Actions {
			u.History = append(u.History, automation.Entry{Action: a.Action, Detail: a.Detail, Ts: now})
		}

		select {
		case updates <- u:
		case <-ctx.Done():
			cancelled()
			return
		}
	}

	updates <- automation.Update{Terminal: &automation.Terminal{Outcome: s.Outcome, Detail: s.Detail}}
	slog.Info("sim run finished", "run_id", p.id, "outcome", s.Outcome)
}
