package commands

import (
	"github.com/spf13/cobra"

	"github.com/hardenctl/hardenctl/pkg/engine"
)

func newPlanCommand() *cobra.Command {
	var skipLongOps bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what apply would do, without changing anything",
		Long: `Probe every unit and record the decisions a real run would make.

Simulation uses the same probes, the same ledger history and the same
decision rules as apply, so the printed actions are exactly what apply
would resolve. Nothing is gated, backed up or mutated.`,
		Example: `  # Preview the built-in catalog
  hardenctl plan

  # Preview a custom catalog
  hardenctl plan --catalog hardening.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			catalog, err := loadCatalog(ctx)
			if err != nil {
				return err
			}

			rt, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			flags := engine.RunFlags{
				Mode:          engine.ModeSimulate,
				Interactivity: engine.NonInteractive,
				SkipLongOps:   skipLongOps,
			}

			report, runErr := rt.sequencer(false).Execute(ctx, catalog.Units, flags)
			if report != nil {
				printReport(cmd.OutOrStdout(), catalog.Name, report)
			}
			return runErr
		},
	}

	cmd.Flags().BoolVar(&skipLongOps, "skip-long-ops", false, "skip units flagged as long-running")

	return cmd
}
