package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/agiopen-org/lux-desktop/internal/config"
	"github.com/agiopen-org/lux-desktop/internal/events"
	"github.com/agiopen-org/lux-desktop/internal/preferences"
)

// loadConfig reads the file named by --config, falling back to defaults when
// it does not exist.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	path := cmd.String("config")
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	slog.Debug("config loaded", "path", path, "engine", cfg.Engine.URL)
	return cfg, nil
}

// openModeSetting opens the preference store and loads the mode selection.
// The returned close func releases the store.
func openModeSetting(ctx context.Context, cfg *config.Config, bus *events.Bus) (*preferences.ModeSetting, func(), error) {
	store, err := preferences.Open(cfg.Preferences.Driver, cfg.Preferences.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open preferences: %w", err)
	}
	closeStore := func() {
		if err := store.Close(); err != nil {
			slog.Warn("close preferences", "error", err)
		}
	}
	return preferences.LoadModeSetting(ctx, store, bus), closeStore, nil
}
