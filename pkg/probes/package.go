package probes

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/hardenctl/hardenctl/pkg/engine"
)

// PackageProbe reports whether a package is installed.
type PackageProbe struct {
	// Manager overrides package manager detection ("apt", "dnf", "yum",
	// "zypper"). Empty means detect.
	Manager string
}

// Kind returns "package".
func (p *PackageProbe) Kind() string { return "package" }

// Evaluate queries the package database for the unit's target package.
func (p *PackageProbe) Evaluate(ctx context.Context, unit engine.Unit) engine.ObservedState {
	state := engine.ObservedState{CheckedAt: time.Now()}

	manager := p.Manager
	if manager == "" {
		var err error
		manager, err = detectPackageManager()
		if err != nil {
			state.Code = engine.StateUnknown
			state.Detail = err.Error()
			return state
		}
	}

	var cmd *exec.Cmd
	switch manager {
	case "apt":
		cmd = exec.CommandContext(ctx, "dpkg-query", "-W", "-f=${Version}", unit.Target)
	case "dnf", "yum", "zypper":
		cmd = exec.CommandContext(ctx, "rpm", "-q", "--queryformat", "%{VERSION}-%{RELEASE}", unit.Target)
	default:
		state.Code = engine.StateUnknown
		state.Detail = fmt.Sprintf("unsupported package manager: %s", manager)
		return state
	}

	output, err := cmd.Output()
	if err != nil {
		// A non-zero exit means not installed for both dpkg-query and
		// rpm. Anything else (query binary missing, context cancelled)
		// leaves the state undeterminable.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			state.Code = engine.StateAbsent
			return state
		}
		state.Code = engine.StateUnknown
		state.Detail = fmt.Sprintf("package query failed: %v", err)
		return state
	}

	state.Code = engine.StatePresent
	state.Value = strings.TrimSpace(string(output))
	return state
}
