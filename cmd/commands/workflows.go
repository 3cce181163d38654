package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/agiopen-org/lux-desktop/internal/modes"
)

// NewWorkflowsCommand returns the workflows subcommand.
func NewWorkflowsCommand() *cli.Command {
	return &cli.Command{
		Name:  "workflows",
		Usage: "List the workflows available in tasker mode",
		Action: func(_ context.Context, _ *cli.Command) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tLABEL")
			for _, wf := range modes.Workflows {
				fmt.Fprintf(w, "%s\t%s\n", wf.Key, wf.Label)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Println("\nRun one with: lux run --mode tasker /<key>")
			return nil
		},
	}
}
