package mutators

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/hardenctl/hardenctl/pkg/engine"
)

// PackageMutator installs and removes packages. It implements
// engine.ProgressPoller so long-running installs (packages with heavy
// post-install steps, like an integrity database build) can report
// liveness while the sequencer waits.
type PackageMutator struct {
	// Manager overrides package manager detection. Empty means detect.
	Manager string

	mu      sync.Mutex
	current string
}

// Kind returns "package".
func (m *PackageMutator) Kind() string { return "package" }

// Progress reports the package currently being changed.
func (m *PackageMutator) Progress() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == "" {
		return "", false
	}
	return fmt.Sprintf("package operation on %s in progress", m.current), true
}

func (m *PackageMutator) setCurrent(name string) {
	m.mu.Lock()
	m.current = name
	m.mu.Unlock()
}

// Apply drives the package toward the unit's policy. Destructive removals
// purge configuration where the package manager distinguishes purge from
// remove.
func (m *PackageMutator) Apply(ctx context.Context, unit engine.Unit) (engine.MutationResult, error) {
	manager := m.Manager
	if manager == "" {
		var err error
		manager, err = detectPackageManager()
		if err != nil {
			return engine.MutationResult{}, err
		}
	}

	installed := m.isInstalled(ctx, manager, unit.Target)

	switch unit.Policy.Target {
	case engine.StatePresent:
		if installed {
			return engine.MutationResult{Changed: false, Detail: "already installed"}, nil
		}
		m.setCurrent(unit.Target)
		defer m.setCurrent("")
		if err := runCmd(ctx, manager, "install", "-y", unit.Target); err != nil {
			return engine.MutationResult{}, err
		}
		return engine.MutationResult{Changed: true, Detail: fmt.Sprintf("installed %s", unit.Target)}, nil

	case engine.StateAbsent:
		if !installed {
			return engine.MutationResult{Changed: false, Detail: "already absent"}, nil
		}
		m.setCurrent(unit.Target)
		defer m.setCurrent("")
		verb := "remove"
		if unit.Destructive && manager == "apt" {
			verb = "purge"
		}
		if err := runCmd(ctx, manager, verb, "-y", unit.Target); err != nil {
			return engine.MutationResult{}, err
		}
		return engine.MutationResult{Changed: true, Detail: fmt.Sprintf("removed %s", unit.Target)}, nil

	default:
		return engine.MutationResult{}, fmt.Errorf("unsupported policy target: %s", unit.Policy.Target)
	}
}

func (m *PackageMutator) isInstalled(ctx context.Context, manager, name string) bool {
	var cmd *exec.Cmd
	switch manager {
	case "apt":
		cmd = exec.CommandContext(ctx, "dpkg-query", "-W", "-f=${Version}", name)
	default:
		cmd = exec.CommandContext(ctx, "rpm", "-q", name)
	}
	return cmd.Run() == nil
}
