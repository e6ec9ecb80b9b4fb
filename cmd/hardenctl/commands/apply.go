package commands

import (
	"github.com/spf13/cobra"

	"github.com/hardenctl/hardenctl/pkg/engine"
)

func newApplyCommand() *cobra.Command {
	var (
		nonInteractive bool
		destructive    bool
		skipLongOps    bool
		force          bool
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Converge the machine toward the catalog",
		Long: `Probe every unit, decide its action, and apply the changes.

Conflicted units (state this tool did not write) are skipped unless an
operator confirms the overwrite. Non-interactive runs resolve every
confirmation with the unit's declared default, so re-running the same
command yields the same sequence of actions.`,
		Example: `  # Converge interactively with the built-in catalog
  hardenctl apply

  # Unattended run; destructive units still refuse to apply
  hardenctl apply --non-interactive

  # Unattended run including destructive units
  hardenctl apply --non-interactive --destructive`,
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
				Mode:                   engine.ModeApply,
				Interactivity:          engine.Interactive,
				SkipLongOps:            skipLongOps,
				DestructiveModeEnabled: destructive,
				Force:                  force,
			}
			if nonInteractive {
				flags.Interactivity = engine.NonInteractive
			}

			report, runErr := rt.sequencer(!nonInteractive).Execute(ctx, catalog.Units, flags)
			if report != nil {
				printReport(cmd.OutOrStdout(), catalog.Name, report)
			}
			return runErr
		},
	}

	cmd.Flags().BoolVar(&nonInteractive, "non-interactive", false, "resolve all confirmations with declared defaults")
	cmd.Flags().BoolVar(&destructive, "destructive", false, "allow destructive units to apply non-interactively")
	cmd.Flags().BoolVar(&skipLongOps, "skip-long-ops", false, "skip units flagged as long-running")
	cmd.Flags().BoolVar(&force, "force", false, "re-apply units that already probe as converged")

	return cmd
}
