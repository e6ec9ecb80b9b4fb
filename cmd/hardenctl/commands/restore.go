package commands

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRestoreCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "restore <path>",
		Short: "Restore a file from its most recent snapshot",
		Long: `Put a file back the way it was before this tool last overwrote it.

The most recent snapshot of the path is located in the ledger and copied
back. A snapshot recorded for a file that did not exist before the
mutation removes the file again. The snapshot itself is kept.

If the file no longer matches what the engine last wrote, someone edited
it after the run. The restore is refused so those edits are not silently
thrown away. Pass --force to restore anyway.`,
		Example: `  # Undo the last sshd hardening write
  hardenctl restore /etc/ssh/sshd_config.d/99-hardening.conf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path := args[0]

			rt, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			rec, err := rt.ledger.LatestBackup(ctx, path)
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("no snapshot recorded for %s", path)
			}

			if !force {
				last, err := rt.ledger.LastApplied(ctx, rec.UnitID)
				if err != nil {
					return err
				}
				if last != nil && last.AppliedHash != "" {
					current, err := hashFileContent(path)
					if err != nil {
						return err
					}
					if current != "" && current != last.AppliedHash {
						return fmt.Errorf("%s was edited after the last run (content no longer matches what was written); use --force to restore anyway", path)
					}
				}
			}

			if err := rt.backups.Restore(ctx, rec); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "restored %s from snapshot taken %s (run %s, unit %s)\n",
				path, rec.CreatedAt.Format("2006-01-02 15:04:05"), rec.RunID, rec.UnitID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "restore even if the file was edited since the last run")

	return cmd
}

// hashFileContent returns the hex sha256 of the file at path, or "" when
// the file does not exist.
func hashFileContent(path string) (string, error) {
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:]), nil
}
