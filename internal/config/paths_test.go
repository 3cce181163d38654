package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLuxPath_Default(t *testing.T) {
	t.Setenv("LUX_PATH", "")

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".lux"), LuxPath())
}

func TestLuxPath_EnvOverride(t *testing.T) {
	t.Setenv("LUX_PATH", "/tmp/custom-lux")
	assert.Equal(t, "/tmp/custom-lux", LuxPath())
}

func TestDerivedPaths(t *testing.T) {
	t.Setenv("LUX_PATH", "/tmp/test-lux")

	assert.Equal(t, "/tmp/test-lux/config.jsonc", ConfigPath())
	assert.Equal(t, "/tmp/test-lux/.env", DotenvPath())
	assert.Equal(t, "/tmp/test-lux/heartbeat.json", HeartbeatPath())
}
