package probes

import (
	"context"
	"os/exec"
	"time"

	"github.com/hardenctl/hardenctl/pkg/engine"
)

// ServiceProbe reports whether a systemd unit is active and enabled.
type ServiceProbe struct{}

// Kind returns "service".
func (p *ServiceProbe) Kind() string { return "service" }

// Evaluate asks systemd for the unit's activation state. Present means
// active; anything systemd reports as inactive, failed or not-found is
// absent. A missing systemctl binary is unknown.
func (p *ServiceProbe) Evaluate(ctx context.Context, unit engine.Unit) engine.ObservedState {
	state := engine.ObservedState{CheckedAt: time.Now()}

	if _, err := exec.LookPath("systemctl"); err != nil {
		state.Code = engine.StateUnknown
		state.Detail = "systemctl not found"
		return state
	}

	// is-active exits non-zero for every non-active state and still prints
	// the state name, so the output matters more than the exit code.
	out, _ := runOutput(ctx, "systemctl", "is-active", unit.Target)
	switch out {
	case "active", "activating":
		state.Code = engine.StatePresent
		state.Value = "active"
	case "":
		state.Code = engine.StateUnknown
		state.Detail = "systemctl returned no state"
	default:
		state.Code = engine.StateAbsent
		state.Value = out
	}

	return state
}
