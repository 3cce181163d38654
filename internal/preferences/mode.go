package preferences

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/agiopen-org/lux-desktop/internal/events"
	"github.com/agiopen-org/lux-desktop/internal/modes"
)

// ErrPersist wraps failures to write a preference. The in-memory value still
// takes effect for the current process.
var ErrPersist = errors.New("preference not persisted")

// ModeSetting is the process-wide mode selection. It is loaded once at startup
// and passed explicitly to whoever needs it.
type ModeSetting struct {
	mu      sync.RWMutex
	store   Store
	bus     *events.Bus
	current modes.Mode
}

// LoadModeSetting reads the stored mode. Absence, read errors and values outside
// the enumeration all fall back to modes.Default. bus may be nil.
func LoadModeSetting(ctx context.Context, store Store, bus *events.Bus) *ModeSetting {
	ms := &ModeSetting{store: store, bus: bus, current: modes.Default}

	raw, ok, err := store.Get(ctx, ModeKey)
	switch {
	case err != nil:
		slog.Warn("load mode preference, using default", "error", err, "default", modes.Default)
	case !ok:
		slog.Debug("no mode preference stored, using default", "default", modes.Default)
	default:
		m, perr := modes.Parse(raw)
		if perr != nil {
			slog.Warn("stored mode preference is invalid, using default", "value", raw, "default", modes.Default)
			break
		}
		ms.current = m
	}
	return ms
}

// Current returns the selected mode.
func (ms *ModeSetting) Current() modes.Mode {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.current
}

// Select switches the mode and persists it immediately. The selection takes
// effect even when persisting fails; the returned error then wraps ErrPersist.
func (ms *ModeSetting) Select(ctx context.Context, m modes.Mode) error {
	if !m.Valid() {
		return fmt.Errorf("select mode: unknown mode %q", m)
	}

	ms.mu.Lock()
	ms.current = m
	ms.mu.Unlock()

	err := ms.store.Set(ctx, ModeKey, string(m))
	if err != nil {
		slog.Warn("persist mode preference", "mode", m, "error", err)
	}

	if ms.bus != nil {
		ms.bus.Publish(events.NewTypedEvent(events.SourcePreferences, events.PreferenceChangedPayload{
			Key:       ModeKey,
			Value:     string(m),
			Persisted: err == nil,
		}))
	}

	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}
