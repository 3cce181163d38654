package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	wsclient "github.com/agiopen-org/lux-desktop/clients/ws"
	"github.com/agiopen-org/lux-desktop/internal/automation"
	"github.com/agiopen-org/lux-desktop/internal/chrome"
	"github.com/agiopen-org/lux-desktop/internal/config"
	"github.com/agiopen-org/lux-desktop/internal/engine/sim"
	"github.com/agiopen-org/lux-desktop/internal/events"
	"github.com/agiopen-org/lux-desktop/internal/modes"
	"github.com/agiopen-org/lux-desktop/internal/preferences"
	"github.com/agiopen-org/lux-desktop/internal/runs"
)

// NewRunCommand returns the run subcommand.
func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Start an automation run and follow its progress (Ctrl-C stops it)",
		ArgsUsage: "<instruction>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "mode",
				Aliases: []string{"m"},
				Usage:   "Select and remember the mode (actor, tasker)",
			},
			&cli.StringFlag{
				Name:  "engine",
				Usage: "Engine gateway WebSocket URL (overrides config)",
			},
			&cli.BoolFlag{
				Name:  "sim",
				Usage: "Use the in-process simulated engine",
			},
		},
		Action: runRun,
	}
}

func runRun(ctx context.Context, cmd *cli.Command) error {
	raw := strings.Join(cmd.Args().Slice(), " ")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	bus := events.NewBus(cfg.Events.BufferSize)
	defer bus.Close()

	setting, closePrefs, err := openModeSetting(ctx, cfg, bus)
	if err != nil {
		return err
	}
	defer closePrefs()

	if cmd.IsSet("mode") {
		m, err := modes.Parse(cmd.String("mode"))
		if err != nil {
			return err
		}
		if err := setting.Select(ctx, m); err != nil {
			if !errors.Is(err, preferences.ErrPersist) {
				return err
			}
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
	}

	mode := setting.Current()
	if mode != modes.Tasker && strings.TrimSpace(raw) == "" {
		return fmt.Errorf("usage: lux run [--mode m] <instruction>")
	}
	sub := modes.Resolve(mode, raw)

	engine, closeEngine, err := openEngine(ctx, cmd, cfg)
	if err != nil {
		return err
	}
	defer closeEngine()

	guard := chrome.NewGuard(bus, chrome.LogProtector{})
	defer guard.Close()

	var recorder *runs.Recorder
	if !cfg.Runs.Disable {
		recorder = runs.NewRecorder(runs.NewFileStore(cfg.Runs.Dir), bus)
	}

	printer := newProgressPrinter(os.Stdout)
	bus.Subscribe(printer.handle,
		events.EventRunStarted,
		events.EventAgentMessage,
		events.EventHistoryAppend,
		events.EventRunFinished,
	)

	ctrl := automation.NewController(engine, automation.WithBus(bus))

	startCtx, cancel := context.WithTimeout(ctx, cfg.Engine.StartTimeout.Duration())
	err = ctrl.Start(startCtx, sub.Instruction, sub.Mode)
	cancel()
	if err != nil {
		return fmt.Errorf("start automation: %w", err)
	}

	state, err := ctrl.Wait(ctx)
	if err != nil {
		// Interrupted: cancel the run and wait for the engine to wind it down.
		fmt.Fprintln(os.Stderr)
		slog.Info("stopping automation", "run_id", state.RunID)
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Engine.StopTimeout.Duration())
		defer cancel()
		if err := ctrl.Stop(stopCtx); err != nil {
			return fmt.Errorf("stop automation: %w", err)
		}
		state = ctrl.Snapshot()
	}

	closeCtx, cancelClose := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelClose()
	if err := ctrl.Close(closeCtx); err != nil {
		slog.Warn("close controller", "error", err)
	}

	// Drain queued events into the printer and the archive.
	bus.Close()
	if recorder != nil {
		recorder.Close()
	}

	if state.Status == automation.StatusFailed {
		return fmt.Errorf("automation failed: %s", state.Error)
	}
	return nil
}

// openEngine connects to the engine gateway, or builds the simulated engine
// when --sim is set.
func openEngine(ctx context.Context, cmd *cli.Command, cfg *config.Config) (automation.Engine, func(), error) {
	if cmd.Bool("sim") {
		scenarios, err := sim.LoadScenarios(cfg.Sim.Scenarios)
		if err != nil {
			return nil, nil, fmt.Errorf("load scenarios: %w", err)
		}
		return sim.New(scenarios, sim.WithStepDelay(cfg.Sim.StepDelay.Duration())), func() {}, nil
	}

	url := cfg.Engine.URL
	if cmd.IsSet("engine") {
		url = cmd.String("engine")
	}

	timeout := cfg.Engine.RequestTimeout.Duration()
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := wsclient.Dial(dialCtx, url, wsclient.WithRequestTimeout(timeout))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to engine at %s (is `lux engine` running?): %w", url, err)
	}
	return client, func() { client.Close() }, nil
}
