package engine

import (
	"encoding/json"
	"fmt"
)

// StateCode classifies a probe's observed state. It is a closed set so the
// decision engine never parses strings out of command output.
type StateCode string

const (
	// StatePresent indicates the unit's subject exists / is enabled / holds
	// the observed value.
	StatePresent StateCode = "present"

	// StateAbsent indicates the unit's subject does not exist. Absence is a
	// valid observation, not a probe failure.
	StateAbsent StateCode = "absent"

	// StateUnknown indicates the probe could not determine the state (for
	// example, a required external command is missing). The decision engine
	// treats Unknown conservatively and never applies against it.
	StateUnknown StateCode = "unknown"

	// StateCustomized indicates the subject exists but differs from the
	// engine's own last-written output: something else changed it.
	StateCustomized StateCode = "customized"
)

// Validate checks if the state code is valid.
func (s StateCode) Validate() error {
	switch s {
	case StatePresent, StateAbsent, StateUnknown, StateCustomized:
		return nil
	default:
		return fmt.Errorf("invalid state code: %s", s)
	}
}

// Action is the decision engine's verdict for a unit.
type Action string

const (
	// ActionSkip indicates no work is required or the unit was withheld.
	ActionSkip Action = "skip"

	// ActionApply indicates the mutator should run.
	ActionApply Action = "apply"

	// ActionConflict indicates operator customization was detected; the
	// confirmation gate decides, the engine never silently overwrites.
	ActionConflict Action = "conflict"

	// ActionFatal indicates a failed precondition; the run cannot proceed.
	ActionFatal Action = "fatal"
)

// Validate checks if the action is valid.
func (a Action) Validate() error {
	switch a {
	case ActionSkip, ActionApply, ActionConflict, ActionFatal:
		return nil
	default:
		return fmt.Errorf("invalid action: %s", a)
	}
}

// RunMode selects simulation or real application.
type RunMode string

const (
	// ModeSimulate runs the full decision loop without invoking mutators.
	ModeSimulate RunMode = "simulate"

	// ModeApply runs the decision loop and applies approved changes.
	ModeApply RunMode = "apply"
)

// Validate checks if the run mode is valid.
func (m RunMode) Validate() error {
	switch m {
	case ModeSimulate, ModeApply:
		return nil
	default:
		return fmt.Errorf("invalid run mode: %s", m)
	}
}

// Interactivity selects how conflicts and confirmations are resolved.
type Interactivity string

const (
	// Interactive blocks on a human yes/no with a stated default.
	Interactive Interactivity = "interactive"

	// NonInteractive resolves every question to the unit's declared
	// deterministic default.
	NonInteractive Interactivity = "non-interactive"
)

// Validate checks if the interactivity setting is valid.
func (i Interactivity) Validate() error {
	switch i {
	case Interactive, NonInteractive:
		return nil
	default:
		return fmt.Errorf("invalid interactivity: %s", i)
	}
}

// RunStatus tracks the sequencer state machine for a run.
type RunStatus string

const (
	// RunStatusInit indicates the run is being set up.
	RunStatusInit RunStatus = "init"

	// RunStatusBaseline indicates baseline measurement is in progress.
	RunStatusBaseline RunStatus = "baseline"

	// RunStatusExecuting indicates phases are being processed.
	RunStatusExecuting RunStatus = "executing"

	// RunStatusVerifying indicates end-of-run verification is in progress.
	RunStatusVerifying RunStatus = "verifying"

	// RunStatusDone indicates the run completed.
	RunStatusDone RunStatus = "done"

	// RunStatusFatal indicates a precondition failure aborted the run.
	RunStatusFatal RunStatus = "fatal"

	// RunStatusInterrupted indicates an external signal halted the run
	// after the in-flight unit finished.
	RunStatusInterrupted RunStatus = "interrupted"
)

// IsTerminal returns true if the run status represents a final state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusDone || s == RunStatusFatal || s == RunStatusInterrupted
}

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusInit, RunStatusBaseline, RunStatusExecuting,
		RunStatusVerifying, RunStatusDone, RunStatusFatal, RunStatusInterrupted:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}

// UnitState tracks one unit through the per-phase state machine.
type UnitState string

const (
	// UnitPending indicates the unit has not been reached yet.
	UnitPending UnitState = "pending"

	// UnitEvaluating indicates the probe is running.
	UnitEvaluating UnitState = "evaluating"

	// UnitResolving indicates the decision is at the confirmation gate.
	UnitResolving UnitState = "resolving"

	// UnitApplying indicates the mutator is running.
	UnitApplying UnitState = "applying"

	// UnitRecorded indicates the outcome has been persisted to the ledger.
	UnitRecorded UnitState = "recorded"
)

// Validate checks if the unit state is valid.
func (s UnitState) Validate() error {
	switch s {
	case UnitPending, UnitEvaluating, UnitResolving, UnitApplying, UnitRecorded:
		return nil
	default:
		return fmt.Errorf("invalid unit state: %s", s)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (a Action) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(a))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (a *Action) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*a = Action(str)
	return a.Validate()
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s StateCode) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *StateCode) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = StateCode(str)
	return s.Validate()
}
