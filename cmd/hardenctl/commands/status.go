package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hardenctl/hardenctl/pkg/engine"
)

func newStatusCommand() *cobra.Command {
	var (
		runID string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recorded runs and their outcomes",
		Long: `Read the ledger and print past runs.

Without arguments the most recent run is shown in full. With --run a
specific run is shown; with --list the run history is listed.`,
		Example: `  # Show the latest run
  hardenctl status

  # Show a specific run
  hardenctl status --run 2f1c...

  # List the last 20 runs
  hardenctl status --list`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			rt, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			if listRuns, _ := cmd.Flags().GetBool("list"); listRuns {
				runs, err := rt.ledger.ListRuns(ctx, limit, 0)
				if err != nil {
					return err
				}
				if jsonOutput {
					printJSON(out, runs)
					return nil
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "RUN\tMODE\tSTATUS\tVERSION\tSTARTED")
				for i := range runs {
					r := &runs[i]
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
						r.ID, r.Flags.Mode, r.Status, r.ToolVersion,
						r.StartedAt.Format("2006-01-02 15:04:05"))
				}
				tw.Flush()
				return nil
			}

			var run *engine.Run
			if runID != "" {
				run, err = rt.ledger.GetRun(ctx, runID)
			} else {
				run, err = rt.ledger.LatestRun(ctx)
			}
			if err != nil {
				return err
			}
			if run == nil {
				fmt.Fprintln(out, "no runs recorded")
				return nil
			}

			printReport(out, "", &engine.RunReport{Run: run})
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "show a specific run by ID")
	cmd.Flags().Bool("list", false, "list run history instead of one run")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")

	return cmd
}
