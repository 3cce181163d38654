package config

import "time"

// Config is the root configuration for Lux.
type Config struct {
	Engine      EngineConfig      `json:"engine"`
	Gateway     GatewayConfig     `json:"gateway"`
	Events      EventsConfig      `json:"events"`
	Preferences PreferencesConfig `json:"preferences"`
	Runs        RunsConfig        `json:"runs"`
	Sim         SimConfig         `json:"sim"`
}

// EngineConfig configures how the controller reaches the automation engine.
type EngineConfig struct {
	URL            string   `json:"url"`             // WebSocket endpoint of the engine gateway
	StartTimeout   Duration `json:"start_timeout"`   // max wait for a start acknowledgment
	StopTimeout    Duration `json:"stop_timeout"`    // max wait for a stop acknowledgment + stream close
	RequestTimeout Duration `json:"request_timeout"` // per-request deadline on the wire
}

// GatewayConfig holds the engine gateway server settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BufferSize int `json:"buffer_size"`
}

// PreferencesConfig selects the preference store backend.
type PreferencesConfig struct {
	Driver string `json:"driver"` // "file" or "sqlite"
	Path   string `json:"path"`   // default: $LUX_PATH/preferences.json or preferences.db
}

// RunsConfig configures the run archive.
type RunsConfig struct {
	Dir     string `json:"dir"`     // default: $LUX_PATH/runs
	Disable bool   `json:"disable"` // skip archiving runs
}

// SimConfig configures the simulated engine served by `lux engine`.
type SimConfig struct {
	Scenarios []string `json:"scenarios"`  // doublestar globs of YAML scenario files
	StepDelay Duration `json:"step_delay"` // default delay between scripted steps
}

// Duration wraps time.Duration for JSON unmarshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}
