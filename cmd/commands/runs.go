package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/agiopen-org/lux-desktop/internal/runs"
)

// NewRunsCommand returns the runs subcommand.
func NewRunsCommand() *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "Inspect archived automation runs",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List archived runs",
				Action: runRunsList,
			},
			{
				Name:      "show",
				Usage:     "Show the timeline of a run",
				ArgsUsage: "<run_id>",
				Action:    runRunsShow,
			},
			{
				Name:      "rm",
				Usage:     "Delete an archived run",
				ArgsUsage: "<run_id>",
				Action:    runRunsRemove,
			},
		},
		DefaultCommand: "list",
	}
}

func openRunStore(cmd *cli.Command) (*runs.FileStore, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return runs.NewFileStore(cfg.Runs.Dir), nil
}

func runRunsList(_ context.Context, cmd *cli.Command) error {
	store, err := openRunStore(cmd)
	if err != nil {
		return err
	}

	list, err := store.List()
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No runs found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tSTEPS\tSTARTED\tMODE\tINSTRUCTION")
	for _, r := range list {
		instruction := r.Instruction
		if instruction == "" {
			instruction = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			r.ID,
			r.Status,
			r.EntryCount,
			r.StartedAt.Format("2006-01-02 15:04"),
			r.Mode,
			instruction,
		)
	}
	return w.Flush()
}

func runRunsShow(_ context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("usage: lux runs show <run_id>")
	}

	store, err := openRunStore(cmd)
	if err != nil {
		return err
	}

	r, err := store.Get(id)
	if err != nil {
		if errors.Is(err, runs.ErrNotFound) {
			return fmt.Errorf("no run %s", id)
		}
		return err
	}
	history, err := store.LoadHistory(id)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	fmt.Printf("Run %s (%s, mode %s)\n", r.ID, r.Status, r.Mode)
	if r.Instruction != "" {
		fmt.Printf("Instruction: %s\n", r.Instruction)
	}
	if r.Error != "" {
		fmt.Printf("Error: %s\n", r.Error)
	}
	if r.AgentMessage != "" {
		fmt.Printf("Last message: %s\n", r.AgentMessage)
	}

	if len(history) == 0 {
		fmt.Println("No timeline entries.")
		return nil
	}
	fmt.Println()
	for _, e := range history {
		if e.Detail != "" {
			fmt.Printf("[%s] %s: %s\n", e.Ts.Format("15:04:05"), e.Action, e.Detail)
		} else {
			fmt.Printf("[%s] %s\n", e.Ts.Format("15:04:05"), e.Action)
		}
	}
	return nil
}

func runRunsRemove(_ context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("usage: lux runs rm <run_id>")
	}

	store, err := openRunStore(cmd)
	if err != nil {
		return err
	}
	if err := store.Delete(id); err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	fmt.Printf("Deleted %s\n", id)
	return nil
}
