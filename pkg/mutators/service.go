package mutators

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/hardenctl/hardenctl/pkg/engine"
)

// ServiceMutator starts, stops, enables and disables systemd units.
type ServiceMutator struct{}

// Kind returns "service".
func (m *ServiceMutator) Kind() string { return "service" }

// Apply drives the service toward the unit's policy: present means enabled
// and active, absent means disabled and stopped.
func (m *ServiceMutator) Apply(ctx context.Context, unit engine.Unit) (engine.MutationResult, error) {
	if _, err := exec.LookPath("systemctl"); err != nil {
		return engine.MutationResult{}, fmt.Errorf("systemctl not found: %w", err)
	}

	active := m.isActive(ctx, unit.Target)
	enabled := m.isEnabled(ctx, unit.Target)

	var actions []string
	switch unit.Policy.Target {
	case engine.StatePresent:
		if !enabled {
			if err := runCmd(ctx, "systemctl", "enable", unit.Target); err != nil {
				return engine.MutationResult{}, err
			}
			actions = append(actions, "enabled")
		}
		if !active {
			if err := runCmd(ctx, "systemctl", "start", unit.Target); err != nil {
				return engine.MutationResult{}, err
			}
			actions = append(actions, "started")
		}

	case engine.StateAbsent:
		if active {
			if err := runCmd(ctx, "systemctl", "stop", unit.Target); err != nil {
				return engine.MutationResult{}, err
			}
			actions = append(actions, "stopped")
		}
		if enabled {
			if err := runCmd(ctx, "systemctl", "disable", unit.Target); err != nil {
				return engine.MutationResult{}, err
			}
			actions = append(actions, "disabled")
		}

	default:
		return engine.MutationResult{}, fmt.Errorf("unsupported policy target: %s", unit.Policy.Target)
	}

	if len(actions) == 0 {
		return engine.MutationResult{Changed: false, Detail: "already in target state"}, nil
	}
	return engine.MutationResult{
		Changed: true,
		Detail:  fmt.Sprintf("%s %s", strings.Join(actions, " and "), unit.Target),
	}, nil
}

func (m *ServiceMutator) isActive(ctx context.Context, name string) bool {
	return exec.CommandContext(ctx, "systemctl", "is-active", "--quiet", name).Run() == nil
}

func (m *ServiceMutator) isEnabled(ctx context.Context, name string) bool {
	return exec.CommandContext(ctx, "systemctl", "is-enabled", "--quiet", name).Run() == nil
}
