package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newBackupCommand() *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "List snapshots taken before mutations",
		Long: `List the backup records the engine took before overwriting files.

Snapshots are never deleted by the engine; this command shows what exists
so an operator can restore or clean up deliberately.`,
		Example: `  # Snapshots from the latest run
  hardenctl backup

  # Snapshots from a specific run
  hardenctl backup --run 2f1c...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			rt, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			id := runID
			if id == "" {
				run, err := rt.ledger.LatestRun(ctx)
				if err != nil {
					return err
				}
				if run == nil {
					fmt.Fprintln(out, "no runs recorded")
					return nil
				}
				id = run.ID
			}

			recs, err := rt.ledger.BackupsForRun(ctx, id)
			if err != nil {
				return err
			}
			if jsonOutput {
				printJSON(out, recs)
				return nil
			}
			if len(recs) == 0 {
				fmt.Fprintf(out, "no snapshots recorded for run %s\n", id)
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "UNIT\tORIGINAL\tSNAPSHOT\tTAKEN")
			for i := range recs {
				r := &recs[i]
				snapshot := r.BackupPath
				if snapshot == "" {
					snapshot = "(did not exist)"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
					r.UnitID, r.OriginalPath, snapshot,
					r.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			tw.Flush()
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "list snapshots for a specific run")

	return cmd
}
