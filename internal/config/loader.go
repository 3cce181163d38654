package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/tailscale/hujson"
)

var envTemplateRe = regexp.MustCompile(`\$\{\{\s*\.Env\.(\w+)\s*\}\}`)

// Load reads a JSONC config file, expands ${{ .Env.VAR }} templates,
// standardizes it to plain JSON, unmarshals it into Config and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Templates live inside strings, expand before standardizing.
	expanded := expandEnvTemplates(string(data))

	std, err := hujson.Standardize([]byte(expanded))
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(std, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a Config with every default applied, used when no file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// LoadOrDefault loads path, falling back to defaults when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// expandEnvTemplates replaces ${{ .Env.VAR }} with the env var value.
func expandEnvTemplates(s string) string {
	return envTemplateRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envTemplateRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		return os.Getenv(parts[1])
	})
}

// applyDefaults fills in zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = "127.0.0.1"
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 18430
	}
	if cfg.Engine.URL == "" {
		cfg.Engine.URL = fmt.Sprintf("ws://%s:%d/api/ws", cfg.Gateway.Host, cfg.Gateway.Port)
	}
	if cfg.Engine.StartTimeout == 0 {
		cfg.Engine.StartTimeout = Duration(30 * time.Second)
	}
	if cfg.Engine.StopTimeout == 0 {
		cfg.Engine.StopTimeout = Duration(30 * time.Second)
	}
	if cfg.Engine.RequestTimeout == 0 {
		cfg.Engine.RequestTimeout = Duration(10 * time.Second)
	}
	if cfg.Events.BufferSize == 0 {
		cfg.Events.BufferSize = 1024
	}
	if cfg.Preferences.Driver == "" {
		cfg.Preferences.Driver = "file"
	}
	if cfg.Preferences.Path == "" {
		name := "preferences.json"
		if cfg.Preferences.Driver == "sqlite" {
			name = "preferences.db"
		}
		cfg.Preferences.Path = filepath.Join(LuxPath(), name)
	}
	if cfg.Runs.Dir == "" {
		cfg.Runs.Dir = filepath.Join(LuxPath(), "runs")
	}
	if len(cfg.Sim.Scenarios) == 0 {
		cfg.Sim.Scenarios = []string{filepath.Join(LuxPath(), "scenarios", "**", "*.yaml")}
	}
	if cfg.Sim.StepDelay == 0 {
		cfg.Sim.StepDelay = Duration(500 * time.Millisecond)
	}
}
