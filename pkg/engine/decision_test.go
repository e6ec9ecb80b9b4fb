package engine

import (
	"strings"
	"testing"
	"time"
)

func TestDecideUnknownStateNeverApplies(t *testing.T) {
	d := NewDecisionEngine()
	observed := ObservedState{Code: StateUnknown, Detail: "systemctl not found", CheckedAt: time.Now()}

	unit := Unit{ID: "svc.auditd", Kind: "service", Target: "auditd",
		Policy: Policy{Target: StatePresent}}
	decision := d.Decide(unit, observed, nil, RunFlags{Mode: ModeApply})

	if decision.Action != ActionSkip {
		t.Errorf("Expected skip for unknown state, got %s", decision.Action)
	}
	if !strings.Contains(decision.Reason, "systemctl not found") {
		t.Errorf("Expected probe detail in reason, got %q", decision.Reason)
	}
}

func TestDecideUnknownPreconditionIsFatal(t *testing.T) {
	d := NewDecisionEngine()
	unit := Unit{ID: "disk.free-space", Kind: "disk", Target: "/",
		Precondition: true,
		Policy:       Policy{Target: StatePresent, Value: "524288"}}
	observed := ObservedState{Code: StateUnknown, Detail: "statfs failed"}

	decision := d.Decide(unit, observed, nil, RunFlags{Mode: ModeApply})
	if decision.Action != ActionFatal {
		t.Errorf("Expected fatal for unknown precondition, got %s", decision.Action)
	}
}

func TestDecideUnsatisfiedPreconditionIsFatal(t *testing.T) {
	d := NewDecisionEngine()
	unit := Unit{ID: "disk.free-space", Kind: "disk", Target: "/",
		Precondition: true,
		Policy:       Policy{Target: StatePresent, Value: "524288"}}
	observed := ObservedState{Code: StateAbsent, Value: "120000",
		Detail: "120000 KiB free on /, 524288 KiB required"}

	decision := d.Decide(unit, observed, nil, RunFlags{Mode: ModeApply})
	if decision.Action != ActionFatal {
		t.Errorf("Expected fatal for unsatisfied precondition, got %s", decision.Action)
	}
	if !strings.Contains(decision.Reason, "not satisfied") {
		t.Errorf("Unexpected reason: %q", decision.Reason)
	}
}

func TestDecideConvergedUnitSkips(t *testing.T) {
	d := NewDecisionEngine()

	tests := []struct {
		name     string
		unit     Unit
		observed ObservedState
	}{
		{
			name: "present package",
			unit: Unit{ID: "pkg.auditd", Kind: "package", Target: "auditd",
				Policy: Policy{Target: StatePresent}},
			observed: ObservedState{Code: StatePresent, Value: "1:3.0.9"},
		},
		{
			name: "absent package",
			unit: Unit{ID: "pkg.telnetd", Kind: "package", Target: "telnetd",
				Policy: Policy{Target: StateAbsent}},
			observed: ObservedState{Code: StateAbsent},
		},
		{
			name: "sysctl at desired value",
			unit: Unit{ID: "sysctl.kptr-restrict", Kind: "sysctl", Target: "kernel.kptr_restrict",
				Policy: Policy{Target: StatePresent, Value: "2"}},
			observed: ObservedState{Code: StatePresent, Value: "2"},
		},
		{
			name: "satisfied precondition",
			unit: Unit{ID: "disk.free-space", Kind: "disk", Target: "/",
				Precondition: true,
				Policy:       Policy{Target: StatePresent, Value: "524288"}},
			observed: ObservedState{Code: StatePresent, Value: "524288"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := d.Decide(tt.unit, tt.observed, nil, RunFlags{Mode: ModeApply})
			if decision.Action != ActionSkip {
				t.Errorf("Expected skip, got %s (%s)", decision.Action, decision.Reason)
			}
		})
	}
}

func TestDecideForcedRunReappliesConverged(t *testing.T) {
	d := NewDecisionEngine()
	flags := RunFlags{Mode: ModeApply, Force: true}

	unit := Unit{ID: "sysctl.kptr-restrict", Kind: "sysctl", Target: "kernel.kptr_restrict",
		Policy: Policy{Target: StatePresent, Value: "2"}}
	observed := ObservedState{Code: StatePresent, Value: "2"}

	decision := d.Decide(unit, observed, nil, flags)
	if decision.Action != ActionApply {
		t.Errorf("Expected forced re-apply, got %s (%s)", decision.Action, decision.Reason)
	}
	if !strings.Contains(decision.Reason, "forced") {
		t.Errorf("Reason should name the force, got %q", decision.Reason)
	}

	// A satisfied precondition stays a skip: preconditions have no
	// mutator path to force through.
	pre := Unit{ID: "disk.free-space", Kind: "disk", Target: "/",
		Precondition: true,
		Policy:       Policy{Target: StatePresent, Value: "524288"}}
	decision = d.Decide(pre, ObservedState{Code: StatePresent, Value: "524288"}, nil, flags)
	if decision.Action != ActionSkip {
		t.Errorf("Forced precondition must still skip, got %s (%s)", decision.Action, decision.Reason)
	}

	// Forcing a converged file whose content this engine never wrote is
	// still a conflict, not a silent overwrite.
	file := Unit{ID: "file.banner", Kind: "file", Target: "/etc/issue.net",
		Policy: Policy{Target: StatePresent, Value: "Authorized use only.\n"}}
	decision = d.Decide(file,
		ObservedState{Code: StatePresent, Value: "Authorized use only.\n", Hash: "operator-hash"},
		nil, flags)
	if decision.Action != ActionConflict {
		t.Errorf("Forced overwrite of operator content must conflict, got %s (%s)",
			decision.Action, decision.Reason)
	}
}

func TestDecideCustomizationConflicts(t *testing.T) {
	d := NewDecisionEngine()
	unit := Unit{ID: "file.banner", Kind: "file", Target: "/etc/issue.net",
		Policy: Policy{Target: StatePresent, Value: "Authorized use only.\n"}}

	tests := []struct {
		name  string
		hash  string
		prior *Outcome
		want  Action
	}{
		{
			name:  "content this tool never wrote",
			hash:  "aaaa",
			prior: nil,
			want:  ActionConflict,
		},
		{
			name:  "content changed since last write",
			hash:  "bbbb",
			prior: &Outcome{UnitID: "file.banner", Action: ActionApply, Applied: true, AppliedHash: "aaaa"},
			want:  ActionConflict,
		},
		{
			name:  "our own stale output, policy moved",
			hash:  "aaaa",
			prior: &Outcome{UnitID: "file.banner", Action: ActionApply, Applied: true, AppliedHash: "aaaa"},
			want:  ActionApply,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			observed := ObservedState{Code: StatePresent, Value: "something else", Hash: tt.hash}
			decision := d.Decide(unit, observed, tt.prior, RunFlags{Mode: ModeApply})
			if decision.Action != tt.want {
				t.Errorf("Expected %s, got %s (%s)", tt.want, decision.Action, decision.Reason)
			}
		})
	}
}

func TestDecideAbsentSubjectIsNotCustomized(t *testing.T) {
	d := NewDecisionEngine()
	unit := Unit{ID: "pkg.aide", Kind: "package", Target: "aide",
		Policy: Policy{Target: StatePresent}}
	observed := ObservedState{Code: StateAbsent}

	decision := d.Decide(unit, observed, nil, RunFlags{Mode: ModeApply})
	if decision.Action != ActionApply {
		t.Errorf("Expected apply for absent subject, got %s", decision.Action)
	}
}

func TestDecideExplicitCustomizedState(t *testing.T) {
	d := NewDecisionEngine()
	unit := Unit{ID: "file.sshd", Kind: "file", Target: "/etc/ssh/sshd_config.d/99-hardening.conf",
		Policy: Policy{Target: StatePresent, Value: "PermitRootLogin no\n"}}
	observed := ObservedState{Code: StateCustomized, Value: "PermitRootLogin yes\n"}

	decision := d.Decide(unit, observed, nil, RunFlags{Mode: ModeApply})
	if decision.Action != ActionConflict {
		t.Errorf("Expected conflict for customized state, got %s", decision.Action)
	}
}

func TestDecideConfirmationHolding(t *testing.T) {
	d := NewDecisionEngine()
	unit := Unit{ID: "mount.tmp", Kind: "mount", Target: "/tmp",
		RequiresConfirmation: true,
		Policy:               Policy{Target: StatePresent, Value: "nodev,nosuid,noexec"}}
	observed := ObservedState{Code: StatePresent, Value: "rw,relatime"}
	prior := &Outcome{Applied: true, AppliedHash: ""}

	interactive := d.Decide(unit, observed, prior, RunFlags{Interactivity: Interactive})
	if interactive.Action != ActionApply || !interactive.PendingConfirmation {
		t.Errorf("Expected pending apply in interactive run, got %s pending=%v",
			interactive.Action, interactive.PendingConfirmation)
	}

	batch := d.Decide(unit, observed, prior, RunFlags{Interactivity: NonInteractive})
	if batch.Action != ActionApply || batch.PendingConfirmation {
		t.Errorf("Expected non-pending apply in non-interactive run, got %s pending=%v",
			batch.Action, batch.PendingConfirmation)
	}
}

func TestDecideIsDeterministic(t *testing.T) {
	d := NewDecisionEngine()
	unit := Unit{ID: "svc.telnet", Kind: "service", Target: "telnet.socket",
		Policy: Policy{Target: StateAbsent}}
	observed := ObservedState{Code: StatePresent, Value: "active"}

	first := d.Decide(unit, observed, nil, RunFlags{Mode: ModeSimulate})
	second := d.Decide(unit, observed, nil, RunFlags{Mode: ModeApply})

	if first.Action != second.Action || first.Reason != second.Reason {
		t.Errorf("Simulate and apply decisions diverged: %+v vs %+v", first, second)
	}
}
