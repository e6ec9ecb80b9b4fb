package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hardenctl/hardenctl/pkg/probes"
)

func newBaselineCommand() *cobra.Command {
	var compare bool

	cmd := &cobra.Command{
		Use:   "baseline",
		Short: "Measure the machine's aggregate state",
		Long: `Take the same aggregate measurement a run records at its start:
free disk space, installed package count and active service count.

With --compare the measurement is diffed against the baseline of the most
recent recorded run.`,
		Example: `  # Measure now
  hardenctl baseline

  # Diff against the latest run's starting point
  hardenctl baseline --compare`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			measurer := &probes.SystemMeasurer{}
			now, err := measurer.Measure(ctx)
			if err != nil {
				return err
			}

			if !compare {
				if jsonOutput {
					printJSON(out, now)
					return nil
				}
				fmt.Fprintf(out, "free disk: %d KiB\npackages: %d\nactive services: %d\n",
					now.FreeDiskKB, now.PackageCount, now.ActiveServiceCount)
				return nil
			}

			rt, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			run, err := rt.ledger.LatestRun(ctx)
			if err != nil {
				return err
			}
			if run == nil || run.Baseline == nil {
				return fmt.Errorf("no recorded baseline to compare against")
			}

			delta := run.Baseline.Delta(now)
			if jsonOutput {
				printJSON(out, delta)
				return nil
			}
			fmt.Fprintf(out, "since run %s (%s):\n", run.ID,
				run.Baseline.CapturedAt.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "free disk: %+d KiB\npackages: %+d\nactive services: %+d\n",
				delta.FreeDiskDeltaKB, delta.PackageDelta, delta.ServiceDelta)
			return nil
		},
	}

	cmd.Flags().BoolVar(&compare, "compare", false, "diff against the latest run's baseline")

	return cmd
}
