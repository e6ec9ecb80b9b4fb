package engine

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestDefaultGateSkipsByDefault(t *testing.T) {
	gate := NewDefaultGate()
	unit := Unit{ID: "file.sshd", Kind: "file", RequiresConfirmation: true,
		Policy: Policy{Target: StatePresent, Value: "x"}}
	decision := Decision{UnitID: unit.ID, Action: ActionApply, PendingConfirmation: true}

	res, err := gate.Resolve(context.Background(), decision, unit, RunFlags{Interactivity: NonInteractive})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Approved {
		t.Error("Expected undeclared default to skip")
	}
}

func TestDefaultGateHonorsDeclaredApply(t *testing.T) {
	gate := NewDefaultGate()
	unit := Unit{ID: "file.banner", Kind: "file",
		NonInteractiveDefault: DefaultApply,
		Policy:                Policy{Target: StatePresent, Value: "x"}}
	decision := Decision{UnitID: unit.ID, Action: ActionApply, PendingConfirmation: true}

	res, err := gate.Resolve(context.Background(), decision, unit, RunFlags{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !res.Approved {
		t.Errorf("Expected declared apply default to proceed, got %q", res.Reason)
	}
}

func TestDefaultGateRefusesDestructiveWithoutFlag(t *testing.T) {
	gate := NewDefaultGate()
	unit := Unit{ID: "pkg.telnetd", Kind: "package", Destructive: true,
		NonInteractiveDefault: DefaultApply,
		Policy:                Policy{Target: StateAbsent}}
	decision := Decision{UnitID: unit.ID, Action: ActionApply}

	res, err := gate.Resolve(context.Background(), decision, unit, RunFlags{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Approved {
		t.Error("Expected destructive unit to be withheld without destructive mode")
	}

	res, err = gate.Resolve(context.Background(), decision, unit,
		RunFlags{DestructiveModeEnabled: true})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !res.Approved {
		t.Errorf("Expected destructive unit to proceed with destructive mode, got %q", res.Reason)
	}
}

func TestDefaultGateConflictAlwaysPreserves(t *testing.T) {
	gate := NewDefaultGate()
	unit := Unit{ID: "file.banner", Kind: "file",
		NonInteractiveDefault: DefaultApply,
		Policy:                Policy{Target: StatePresent, Value: "x"}}
	decision := Decision{UnitID: unit.ID, Action: ActionConflict,
		Reason: "content changed since this tool last wrote it"}

	res, err := gate.Resolve(context.Background(), decision, unit, RunFlags{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Approved {
		t.Error("Expected conflict to preserve operator state despite apply default")
	}
}

func TestTerminalGateAnswers(t *testing.T) {
	unit := Unit{ID: "file.sshd", Kind: "file", RequiresConfirmation: true,
		Policy: Policy{Target: StatePresent, Value: "x"}}
	decision := Decision{UnitID: unit.ID, Action: ActionApply, PendingConfirmation: true}

	tests := []struct {
		name     string
		input    string
		approved bool
	}{
		{"yes", "y\n", true},
		{"yes long", "yes\n", true},
		{"no", "n\n", false},
		{"no long", "no\n", false},
		{"garbage", "maybe\n", false},
		{"empty falls to default skip", "\n", false},
		{"eof falls to default skip", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			gate := NewTerminalGate(strings.NewReader(tt.input), &out)
			res, err := gate.Resolve(context.Background(), decision, unit, RunFlags{Interactivity: Interactive})
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if res.Approved != tt.approved {
				t.Errorf("Input %q: expected approved=%v, got %v (%s)",
					tt.input, tt.approved, res.Approved, res.Reason)
			}
			if !strings.Contains(out.String(), unit.ID) {
				t.Errorf("Prompt should name the unit, got %q", out.String())
			}
		})
	}
}

func TestTerminalGateEmptyAnswerUsesDeclaredDefault(t *testing.T) {
	unit := Unit{ID: "file.banner", Kind: "file",
		NonInteractiveDefault: DefaultApply,
		RequiresConfirmation:  true,
		Policy:                Policy{Target: StatePresent, Value: "x"}}
	decision := Decision{UnitID: unit.ID, Action: ActionApply, PendingConfirmation: true}

	var out bytes.Buffer
	gate := NewTerminalGate(strings.NewReader("\n"), &out)
	res, err := gate.Resolve(context.Background(), decision, unit, RunFlags{Interactivity: Interactive})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !res.Approved {
		t.Errorf("Expected empty answer to follow declared apply default, got %q", res.Reason)
	}
	if !strings.Contains(out.String(), "Y/n") {
		t.Errorf("Prompt should state the apply default, got %q", out.String())
	}
}

func TestTerminalGateDestructiveConflictNeedsFlag(t *testing.T) {
	unit := Unit{ID: "pkg.rsh", Kind: "package", Destructive: true,
		Policy: Policy{Target: StateAbsent}}
	decision := Decision{UnitID: unit.ID, Action: ActionConflict}

	var out bytes.Buffer
	gate := NewTerminalGate(strings.NewReader("y\n"), &out)
	res, err := gate.Resolve(context.Background(), decision, unit, RunFlags{Interactivity: Interactive})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Approved {
		t.Error("Expected destructive overwrite to be refused without destructive mode")
	}
}
