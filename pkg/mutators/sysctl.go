package mutators

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hardenctl/hardenctl/pkg/engine"
)

// DefaultDropInPath is the persisted sysctl configuration file written by
// the sysctl mutator. Sysctl units declare it in Overwrites so it is
// snapshotted before the first write of a run.
const DefaultDropInPath = "/etc/sysctl.d/90-hardenctl.conf"

// SysctlMutator sets kernel parameters. The live value is written through
// /proc/sys so it takes effect immediately; persistence across reboots is
// the sysctl drop-in file's job and is written in the same apply.
type SysctlMutator struct {
	// ProcRoot overrides the /proc/sys mount point, for tests.
	ProcRoot string

	// DropInPath overrides DefaultDropInPath.
	DropInPath string
}

// Kind returns "sysctl".
func (m *SysctlMutator) Kind() string { return "sysctl" }

// Apply sets the unit's target key to the policy value.
func (m *SysctlMutator) Apply(_ context.Context, unit engine.Unit) (engine.MutationResult, error) {
	if unit.Policy.Target != engine.StatePresent {
		return engine.MutationResult{}, fmt.Errorf("sysctl keys cannot be made absent")
	}

	root := m.ProcRoot
	if root == "" {
		root = "/proc/sys"
	}
	keyPath := filepath.Join(root, strings.ReplaceAll(unit.Target, ".", "/"))

	current, err := os.ReadFile(keyPath)
	if err != nil {
		return engine.MutationResult{}, fmt.Errorf("sysctl key %s not readable: %w", unit.Target, err)
	}
	liveMatches := strings.TrimSpace(string(current)) == unit.Policy.Value

	if !liveMatches {
		if err := os.WriteFile(keyPath, []byte(unit.Policy.Value), 0o644); err != nil {
			return engine.MutationResult{}, fmt.Errorf("failed to set %s: %w", unit.Target, err)
		}
	}

	persisted, err := m.persist(unit.Target, unit.Policy.Value)
	if err != nil {
		return engine.MutationResult{}, err
	}

	if liveMatches && !persisted {
		return engine.MutationResult{Changed: false, Detail: "already set"}, nil
	}
	return engine.MutationResult{
		Changed: true,
		Detail:  fmt.Sprintf("set %s = %s", unit.Target, unit.Policy.Value),
	}, nil
}

// persist merges the key into the drop-in file, replacing any previous
// line for the same key. Returns whether the file changed.
func (m *SysctlMutator) persist(key, value string) (bool, error) {
	path := m.DropInPath
	if path == "" {
		path = DefaultDropInPath
	}

	wantLine := fmt.Sprintf("%s = %s", key, value)

	var lines []string
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err == nil {
		lines = strings.Split(strings.TrimRight(string(existing), "\n"), "\n")
	}

	replaced := false
	changed := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, key) {
			fields := strings.SplitN(trimmed, "=", 2)
			if strings.TrimSpace(fields[0]) == key {
				if line != wantLine {
					lines[i] = wantLine
					changed = true
				}
				replaced = true
				break
			}
		}
	}
	if !replaced {
		lines = append(lines, wantLine)
		changed = true
	}
	if !changed {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}

	return true, nil
}
