package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// DefaultGate resolves every question to the unit's declared deterministic
// default. It never selects the destructive branch for a destructive unit
// unless the run was started with destructive mode enabled.
type DefaultGate struct{}

// NewDefaultGate creates the non-interactive gate.
func NewDefaultGate() *DefaultGate {
	return &DefaultGate{}
}

// Resolve implements Gate.
func (g *DefaultGate) Resolve(_ context.Context, decision Decision, unit Unit, flags RunFlags) (Resolution, error) {
	return resolveDefault(decision, unit, flags), nil
}

// resolveDefault is the deterministic answer shared by the non-interactive
// gate and the interactive gate's empty/EOF path.
func resolveDefault(decision Decision, unit Unit, flags RunFlags) Resolution {
	answer := unit.NonInteractiveDefault
	if answer == "" {
		answer = DefaultSkip
	}

	// Conflicts default to preserving the operator's state regardless of
	// the unit's declared answer; an apply default only covers the
	// confirmation question, not overwriting customization.
	if decision.Action == ActionConflict {
		answer = DefaultSkip
	}

	if answer == DefaultApply && unit.Destructive && !flags.DestructiveModeEnabled {
		return Resolution{
			Approved: false,
			Reason:   "destructive unit requires explicit destructive mode",
		}
	}

	if answer == DefaultApply {
		return Resolution{Approved: true, Reason: "non-interactive default: apply"}
	}
	return Resolution{Approved: false, Reason: "non-interactive default: skip"}
}

// TerminalGate blocks on a human yes/no read from in, with the stated
// default shown. An empty or EOF response resolves to the stated default,
// never to an undefined state.
type TerminalGate struct {
	in  *bufio.Reader
	out io.Writer
}

// NewTerminalGate creates the interactive gate.
func NewTerminalGate(in io.Reader, out io.Writer) *TerminalGate {
	return &TerminalGate{in: bufio.NewReader(in), out: out}
}

// Resolve implements Gate.
func (g *TerminalGate) Resolve(ctx context.Context, decision Decision, unit Unit, flags RunFlags) (Resolution, error) {
	fallthroughRes := resolveDefault(decision, unit, flags)

	prompt := "Apply change"
	if decision.Action == ActionConflict {
		prompt = "Overwrite local customization"
	}
	defaultHint := "y/N"
	if fallthroughRes.Approved {
		defaultHint = "Y/n"
	}
	fmt.Fprintf(g.out, "%s for %s (%s)? [%s] ", prompt, unit.ID, decision.Reason, defaultHint)

	line, err := g.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return Resolution{}, NewError(ClassPrecondition, "reading confirmation", err).WithUnit(unit.ID)
	}
	if ctx.Err() != nil {
		return Resolution{}, NewError(ClassInterrupted, "confirmation interrupted", ctx.Err()).WithUnit(unit.ID)
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		if unit.Destructive && !flags.DestructiveModeEnabled && decision.Action == ActionConflict {
			// A destructive overwrite of customized state still needs the
			// run-level flag, even with a human at the terminal.
			return Resolution{
				Approved: false,
				Reason:   "destructive overwrite requires explicit destructive mode",
			}, nil
		}
		return Resolution{Approved: true, Reason: "operator approved"}, nil
	case "n", "no":
		return Resolution{Approved: false, Reason: "operator declined"}, nil
	case "":
		// Empty answer or EOF: the stated default.
		return fallthroughRes, nil
	default:
		// An unparseable answer is treated as the safe side.
		return Resolution{Approved: false, Reason: "unrecognized answer, preserving current state"}, nil
	}
}
