// Package sim implements an automation engine that replays scripted scenarios.
package sim

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/agiopen-org/lux-desktop/internal/automation"
)

// DefaultScenario is replayed for every non-tasker mode.
const DefaultScenario = "default"

// Scenario is a scripted run.
type Scenario struct {
	Name    string             `yaml:"name"`
	Steps   []Step             `yaml:"steps"`
	Outcome automation.Outcome `yaml:"outcome"` // completed (default) or failed
	Detail  string             `yaml:"detail"`  // failure detail
}

// Step is one progress update of a scenario.
type Step struct {
	Message string        `yaml:"message"`
	Actions []Action      `yaml:"actions"`
	Delay   time.Duration `yaml:"delay"` // overrides the engine step delay
}

// Action is one history entry emitted by a step.
type Action struct {
	Action string `yaml:"action"`
	Detail string `yaml:"detail"`
}

// Validate checks the scenario can be replayed.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario name cannot be empty")
	}
	switch s.Outcome {
	case automation.OutcomeCompleted, automation.OutcomeFailed:
	default:
		return fmt.Errorf("scenario %s: outcome must be completed or failed, got %q", s.Name, s.Outcome)
	}
	for i, step := range s.Steps {
		for j, a := range step.Actions {
			if a.Action == "" {
				return fmt.Errorf("scenario %s: step %d action %d: action cannot be empty", s.Name, i, j)
			}
		}
	}
	return nil
}

// LoadScenario reads and parses one scenario file. The name defaults to the
// file name without extension.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if s.Outcome == "" {
		s.Outcome = automation.OutcomeCompleted
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &s, nil
}

// LoadScenarios loads every file matching the doublestar patterns on top of
// the built-in scenarios. Later files override earlier ones of the same name.
func LoadScenarios(patterns []string) (map[string]*Scenario, error) {
	out := Builtin()
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("glob %s: %w", pattern, err)
		}
		for _, path := range matches {
			s, err := LoadScenario(path)
			if err != nil {
				return nil, err
			}
			out[s.Name] = s
		}
	}
	return out, nil
}

// Builtin returns the scenarios available without any scenario file: one per
// catalog workflow plus the default.
func Builtin() map[string]*Scenario {
	return map[string]*Scenario{
		DefaultScenario: {
			Name: DefaultScenario,
			Steps: []Step{
				{Message: "Reading the instruction", Actions: []Action{{Action: "plan"}}},
				{Message: "Working on the desktop", Actions: []Action{{Action: "screenshot"}, {Action: "click"}}},
				{Message: "Checking the result", Actions: []Action{{Action: "screenshot"}}},
			},
			Outcome: automation.OutcomeCompleted,
		},
		"software_qa": {
			Name: "software_qa",
			Steps: []Step{
				{Message: "Launching the application under test", Actions: []Action{{Action: "launch", Detail: "app"}}},
				{Message: "Running the smoke checklist", Actions: []Action{{Action: "click", Detail: "login"}, {Action: "type", Detail: "credentials"}}},
				{Message: "Recording findings", Actions: []Action{{Action: "report"}}},
			},
			Outcome: automation.OutcomeCompleted,
		},
		"cvs_appointment": {
			Name: "cvs_appointment",
			Steps: []Step{
				{Message: "Opening the pharmacy site", Actions: []Action{{Action: "open_browser", Detail: "cvs.com"}}},
				{Message: "Searching for available slots", Actions: []Action{{Action: "search", Detail: "vaccination appointment"}}},
				{Message: "Booking the first slot", Actions: []Action{{Action: "click", Detail: "first available"}}},
			},
			Outcome: automation.OutcomeCompleted,
		},
	}
}
