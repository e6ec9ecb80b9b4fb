package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	catalogPath string
	stateDir    string
	verbose     bool
	jsonOutput  bool

	// toolVersion is stamped onto runs and outcomes.
	toolVersion = "dev"
)

// usageError marks errors raised by flag and argument parsing, so the
// caller can report them distinctly from runtime failures.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }

func (e *usageError) Unwrap() error { return e.err }

// IsUsageError reports whether err came from command-line parsing.
func IsUsageError(err error) bool {
	var ue *usageError
	return errors.As(err, &ue)
}

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	toolVersion = version
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hardenctl",
		Short: "hardenctl - Idempotent host hardening engine",
		Long: `hardenctl converges a machine toward a declared hardening catalog and
refuses to touch anything it cannot prove is safe to touch.

Every run probes the live system, decides per unit whether to apply, skip
or flag a conflict, snapshots files before overwriting them, and records
each outcome to a local ledger the moment the unit completes. Re-running
after an interruption skips everything already converged.

Conflicts never resolve silently: state this tool did not write is
preserved unless an operator confirms the overwrite.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&catalogPath, "catalog", "c", "", "catalog file (built-in catalog when empty)")
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", "/var/lib/hardenctl", "directory for the ledger and backups")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newApplyCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newBaselineCommand())
	rootCmd.AddCommand(newBackupCommand())
	rootCmd.AddCommand(newRestoreCommand())

	// Parse failures are usage errors; everything a RunE returns is a
	// runtime failure.
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})
	for _, sub := range rootCmd.Commands() {
		if sub.Args != nil {
			sub.Args = markUsageErrors(sub.Args)
		}
	}

	return rootCmd
}

func markUsageErrors(args cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, raw []string) error {
		if err := args(cmd, raw); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}
