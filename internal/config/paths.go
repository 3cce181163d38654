package config

import (
	"os"
	"path/filepath"
)

// LuxPath returns the root directory for Lux data.
// It uses $LUX_PATH if set, otherwise defaults to ~/.lux.
func LuxPath() string {
	if v := os.Getenv("LUX_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".lux")
	}
	return filepath.Join(home, ".lux")
}

// ConfigPath returns the path to the Lux config file.
func ConfigPath() string {
	return filepath.Join(LuxPath(), "config.jsonc")
}

// DotenvPath returns the path to the Lux .env file.
func DotenvPath() string {
	return filepath.Join(LuxPath(), ".env")
}

// HeartbeatPath returns the path of the engine gateway heartbeat file.
func HeartbeatPath() string {
	return filepath.Join(LuxPath(), "heartbeat.json")
}
