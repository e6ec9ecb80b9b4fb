package mutators

import (
	"context"
	"fmt"

	"github.com/hardenctl/hardenctl/pkg/engine"
	"github.com/hardenctl/hardenctl/pkg/probes"
)

// MountMutator remounts filesystems with hardened option sets. It changes
// the live mount only; making the options survive a reboot is a separate
// file unit against /etc/fstab, kept apart so the fstab edit gets its own
// backup and conflict detection.
type MountMutator struct {
	// MountsFile overrides /proc/self/mounts, for tests.
	MountsFile string
}

// Kind returns "mount".
func (m *MountMutator) Kind() string { return "mount" }

// Apply remounts the unit's target with the policy's option set.
func (m *MountMutator) Apply(ctx context.Context, unit engine.Unit) (engine.MutationResult, error) {
	if unit.Policy.Target != engine.StatePresent {
		return engine.MutationResult{}, fmt.Errorf("unmounting is not supported")
	}
	if unit.Policy.Value == "" {
		return engine.MutationResult{}, fmt.Errorf("mount unit %s has no option set", unit.ID)
	}

	mountsFile := m.MountsFile
	if mountsFile == "" {
		mountsFile = "/proc/self/mounts"
	}
	if converged, err := probes.MountConverged(mountsFile, unit.Target, unit.Policy.Value); err == nil && converged {
		return engine.MutationResult{
			Changed: false,
			Detail:  fmt.Sprintf("%s already mounted with %s", unit.Target, unit.Policy.Value),
		}, nil
	}

	opts := "remount," + unit.Policy.Value
	if err := runCmd(ctx, "mount", "-o", opts, unit.Target); err != nil {
		return engine.MutationResult{}, err
	}

	return engine.MutationResult{
		Changed: true,
		Detail:  fmt.Sprintf("remounted %s with %s", unit.Target, unit.Policy.Value),
	}, nil
}
