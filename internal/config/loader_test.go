package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `{
	// engine gateway reached by `+"`lux run`"+`
	"engine": {
		"url": "ws://${{ .Env.LUX_TEST_HOST }}:9000/api/ws",
		"start_timeout": "5s",
	},
	"gateway": {
		"host": "0.0.0.0",
		"port": 9999
	},
	"preferences": { "driver": "sqlite" },
	"sim": { "scenarios": ["/tmp/scenarios/*.yaml"], "step_delay": "10ms" }
}`)
	t.Setenv("LUX_TEST_HOST", "engine.local")
	t.Setenv("LUX_PATH", "/tmp/lux-test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ws://engine.local:9000/api/ws", cfg.Engine.URL)
	assert.Equal(t, 5*time.Second, cfg.Engine.StartTimeout.Duration())
	assert.Equal(t, "0.0.0.0", cfg.Gateway.Host)
	assert.Equal(t, 9999, cfg.Gateway.Port)
	assert.Equal(t, "sqlite", cfg.Preferences.Driver)
	assert.Equal(t, "/tmp/lux-test/preferences.db", cfg.Preferences.Path)
	assert.Equal(t, []string{"/tmp/scenarios/*.yaml"}, cfg.Sim.Scenarios)
	assert.Equal(t, 10*time.Millisecond, cfg.Sim.StepDelay.Duration())
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LUX_PATH", "/tmp/lux-test")
	cfg, err := Load(writeConfig(t, `{}`))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Gateway.Host)
	assert.Equal(t, 18430, cfg.Gateway.Port)
	assert.Equal(t, "ws://127.0.0.1:18430/api/ws", cfg.Engine.URL)
	assert.Equal(t, 30*time.Second, cfg.Engine.StopTimeout.Duration())
	assert.Equal(t, 1024, cfg.Events.BufferSize)
	assert.Equal(t, "file", cfg.Preferences.Driver)
	assert.Equal(t, "/tmp/lux-test/preferences.json", cfg.Preferences.Path)
	assert.Equal(t, "/tmp/lux-test/runs", cfg.Runs.Dir)
}

func TestLoadEngineURLFollowsGateway(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{"gateway": {"port": 7000}}`))
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:7000/api/ws", cfg.Engine.URL)
}

func TestLoadInvalid(t *testing.T) {
	_, err := Load(writeConfig(t, `{"gateway": `))
	require.Error(t, err)

	_, err = Load(writeConfig(t, `{"engine": {"start_timeout": "soon"}}`))
	require.Error(t, err)
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.jsonc"))
	require.NoError(t, err)
	assert.Equal(t, 18430, cfg.Gateway.Port)

	_, err = LoadOrDefault(writeConfig(t, `not json`))
	require.Error(t, err)
}

func TestExpandEnvTemplates(t *testing.T) {
	t.Setenv("TEST_KEY", "my-secret")
	assert.Equal(t, `{"key": "my-secret"}`, expandEnvTemplates(`{"key": "${{ .Env.TEST_KEY }}"}`))
}
