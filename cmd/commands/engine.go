package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/agiopen-org/lux-desktop/internal/config"
	"github.com/agiopen-org/lux-desktop/internal/engine/sim"
	"github.com/agiopen-org/lux-desktop/internal/gateway"
	"github.com/agiopen-org/lux-desktop/internal/heartbeat"
)

// NewEngineCommand returns the engine subcommand.
func NewEngineCommand() *cli.Command {
	return &cli.Command{
		Name:  "engine",
		Usage: "Serve the simulated automation engine over WebSocket",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to listen on",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on",
			},
		},
		Action: runEngine,
	}
}

func runEngine(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// CLI flags override config
	if cmd.IsSet("host") {
		cfg.Gateway.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Gateway.Port = int(cmd.Int("port"))
	}

	scenarios, err := sim.LoadScenarios(cfg.Sim.Scenarios)
	if err != nil {
		return fmt.Errorf("load scenarios: %w", err)
	}
	slog.Info("scenarios loaded", "count", len(scenarios))

	engine := sim.New(scenarios, sim.WithStepDelay(cfg.Sim.StepDelay.Duration()))
	server := gateway.NewServer(engine, cfg.Gateway.Host, cfg.Gateway.Port)

	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port))
	if err != nil {
		return err
	}

	hb := heartbeat.NewWriter(config.HeartbeatPath(), ln.Addr().String(), heartbeat.DefaultInterval)
	hb.Start()
	defer hb.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := engine.Stop(shutdownCtx); err != nil {
			slog.Warn("stop simulated run", "error", err)
		}
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
