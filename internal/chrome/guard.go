// Package chrome keeps window content protection in step with the automation session.
package chrome

import (
	"log/slog"
	"sync"

	"github.com/agiopen-org/lux-desktop/internal/automation"
	"github.com/agiopen-org/lux-desktop/internal/events"
)

// Protector toggles content protection on the hosting window.
type Protector interface {
	SetContentProtected(protected bool) error
}

// Guard enables content protection while a run is in progress and disables it
// once the run leaves the running state. Protector failures are logged only.
type Guard struct {
	protector   Protector
	unsubscribe func()

	mu        sync.Mutex
	protected bool
}

// NewGuard subscribes a Guard to status changes on bus.
func NewGuard(bus *events.Bus, protector Protector) *Guard {
	g := &Guard{protector: protector}
	g.unsubscribe = bus.Subscribe(g.handleEvent, events.EventStatusChanged)
	return g
}

// Protected reports the last state successfully applied to the protector.
func (g *Guard) Protected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.protected
}

// Close unsubscribes the guard from the event bus.
func (g *Guard) Close() {
	if g.unsubscribe != nil {
		g.unsubscribe()
	}
}

func (g *Guard) handleEvent(e events.Event) {
	p, ok := events.GetStatusChangedPayload(e)
	if !ok {
		return
	}
	g.apply(automation.Status(p.Status) == automation.StatusRunning)
}

func (g *Guard) apply(protected bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.protected == protected {
		return
	}
	if err := g.protector.SetContentProtected(protected); err != nil {
		slog.Warn("content protection toggle failed", "protected", protected, "error", err)
		return
	}
	g.protected = protected
}

// LogProtector records protection changes in the log. It stands in for a
// window when the controller runs headless.
type LogProtector struct{}

func (LogProtector) SetContentProtected(protected bool) error {
	slog.Debug("content protection", "protected", protected)
	return nil
}
