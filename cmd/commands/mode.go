package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/agiopen-org/lux-desktop/internal/modes"
	"github.com/agiopen-org/lux-desktop/internal/preferences"
)

// NewModeCommand returns the mode subcommand.
func NewModeCommand() *cli.Command {
	return &cli.Command{
		Name:  "mode",
		Usage: "Show or change the remembered automation mode",
		Commands: []*cli.Command{
			{
				Name:   "get",
				Usage:  "Print the selected mode",
				Action: runModeGet,
			},
			{
				Name:      "set",
				Usage:     "Select a mode and remember it",
				ArgsUsage: "<mode>",
				Action:    runModeSet,
			},
			{
				Name:   "list",
				Usage:  "List the available modes",
				Action: runModeList,
			},
		},
		DefaultCommand: "get",
	}
}

func runModeGet(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setting, closePrefs, err := openModeSetting(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer closePrefs()

	fmt.Println(setting.Current())
	return nil
}

func runModeSet(ctx context.Context, cmd *cli.Command) error {
	arg := cmd.Args().First()
	if arg == "" {
		return fmt.Errorf("usage: lux mode set <mode>")
	}
	m, err := modes.Parse(arg)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setting, closePrefs, err := openModeSetting(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer closePrefs()

	if err := setting.Select(ctx, m); err != nil {
		if errors.Is(err, preferences.ErrPersist) {
			return fmt.Errorf("mode %s selected but not remembered: %w", m, err)
		}
		return err
	}
	fmt.Printf("Mode set to %s\n", m.Label())
	return nil
}

func runModeList(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setting, closePrefs, err := openModeSetting(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer closePrefs()

	current := setting.Current()
	for _, m := range modes.All() {
		marker := " "
		if m == current {
			marker = "*"
		}
		fmt.Printf("%s %-8s %s\n", marker, m, m.Label())
	}
	return nil
}
