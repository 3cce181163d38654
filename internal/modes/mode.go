// Package modes defines the user-selectable automation modes, the workflow
// catalog, and the mapping from a user submission to the engine invocation.
package modes

import (
	"fmt"
	"strings"
)

// Mode is a user-selectable behavior profile for the automation engine.
type Mode string

const (
	// Actor runs the instruction autonomously.
	Actor Mode = "actor"
	// Tasker runs a scripted workflow named by the instruction text.
	Tasker Mode = "tasker"
)

// Default is the mode used when no preference has been stored.
const Default = Actor

var all = []Mode{Actor, Tasker}

// All returns the known modes in display order.
func All() []Mode {
	out := make([]Mode, len(all))
	copy(out, all)
	return out
}

// Valid reports whether m belongs to the enumeration.
func (m Mode) Valid() bool {
	for _, k := range all {
		if k == m {
			return true
		}
	}
	return false
}

// Label returns the display label of the mode.
func (m Mode) Label() string {
	switch m {
	case Actor:
		return "Actor"
	case Tasker:
		return "Tasker"
	}
	return string(m)
}

func (m Mode) String() string { return string(m) }

// Parse converts a raw string into a known Mode. Matching is case-insensitive.
func Parse(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("unknown mode %q", s)
	}
	return m, nil
}
