package engine

import (
	"fmt"
	"time"
)

// Unit is one atomic configuration target with a desired-state policy.
// Units are declared statically at run start and never mutated afterwards;
// only their run-time Outcome is recorded.
type Unit struct {
	// ID is the stable key for this unit (e.g., "firewall.default-policy").
	ID string `json:"id" yaml:"id" validate:"required"`

	// Phase is the ordered phase this unit executes in.
	Phase int `json:"phase" yaml:"phase" validate:"gte=0"`

	// DependsOn lists unit IDs that must reach a terminal, non-fatal state
	// before this unit is attempted.
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`

	// Policy is the desired state for this unit.
	Policy Policy `json:"policy" yaml:"policy" validate:"required"`

	// Kind selects the probe/mutator pair (e.g., "package", "service",
	// "file", "mount", "sysctl", "disk").
	Kind string `json:"kind" yaml:"kind" validate:"required"`

	// Target is the kind-specific subject: a package name, service name,
	// file path, mount point, or sysctl key.
	Target string `json:"target" yaml:"target" validate:"required"`

	// Destructive marks units whose apply is hard or impossible to reverse
	// (e.g., a package purge, as opposed to a systemd target switch).
	Destructive bool `json:"destructive,omitempty" yaml:"destructive,omitempty"`

	// RequiresConfirmation asks the gate before applying in interactive runs.
	RequiresConfirmation bool `json:"requires_confirmation,omitempty" yaml:"requires_confirmation,omitempty"`

	// Overwrites lists filesystem paths the mutator overwrites or removes.
	// Each path is snapshotted by the backup manager before the mutator runs.
	Overwrites []string `json:"overwrites,omitempty" yaml:"overwrites,omitempty"`

	// LongRunning marks mutators that take long enough to warrant detached
	// execution with progress polling (e.g., an integrity database build).
	LongRunning bool `json:"long_running,omitempty" yaml:"long_running,omitempty"`

	// Precondition marks units whose Unknown observed state aborts the run
	// instead of skipping (e.g., the disk-space check).
	Precondition bool `json:"precondition,omitempty" yaml:"precondition,omitempty"`

	// NonInteractiveDefault is the deterministic gate answer used when no
	// human is available: "skip" preserves current state, "apply" proceeds.
	NonInteractiveDefault GateDefault `json:"non_interactive_default,omitempty" yaml:"non_interactive_default,omitempty" validate:"omitempty,oneof=skip apply"`
}

// Validate checks unit fields the loader cannot express as struct tags.
func (u *Unit) Validate() error {
	if u.ID == "" {
		return NewError(ClassPrecondition, "unit has empty ID", nil).WithCode(CodeValidation)
	}
	for _, dep := range u.DependsOn {
		if dep == u.ID {
			return NewError(ClassPrecondition, "unit depends on itself", nil).
				WithCode(CodeValidation).WithUnit(u.ID)
		}
	}
	return u.Policy.Validate()
}

// GateDefault is the per-unit non-interactive confirmation answer.
type GateDefault string

const (
	// DefaultSkip preserves the current state when no human can answer.
	DefaultSkip GateDefault = "skip"

	// DefaultApply proceeds with the change when no human can answer.
	DefaultApply GateDefault = "apply"
)

// Policy describes the desired state of one unit.
type Policy struct {
	// Target is the desired state code: present or absent.
	Target StateCode `json:"target" yaml:"target" validate:"required,oneof=present absent"`

	// Value is the desired value where presence alone is not enough:
	// file content, sysctl value, mount option set.
	Value string `json:"value,omitempty" yaml:"value,omitempty"`
}

// Validate checks the policy target is one of the declarable codes.
func (p Policy) Validate() error {
	switch p.Target {
	case StatePresent, StateAbsent:
		return nil
	default:
		return NewError(ClassPrecondition,
			fmt.Sprintf("invalid policy target: %s", p.Target), nil).WithCode(CodeValidation)
	}
}

// Matches reports whether an observed state satisfies the policy.
func (p Policy) Matches(observed ObservedState) bool {
	if observed.Code != p.Target {
		return false
	}
	if p.Target == StatePresent && p.Value != "" {
		return observed.Value == p.Value
	}
	return true
}

// ObservedState is a probe's snapshot of a unit's current state.
type ObservedState struct {
	// Code classifies the state: present, absent, unknown, customized.
	Code StateCode `json:"code"`

	// Value is the kind-specific observed value, when determinable.
	Value string `json:"value,omitempty"`

	// Hash is the content hash for file-backed units, used for
	// customization detection against the ledger's last written hash.
	Hash string `json:"hash,omitempty"`

	// CheckedAt is when the probe ran.
	CheckedAt time.Time `json:"checked_at"`

	// Detail is an optional human-readable note (probe failures, etc.).
	Detail string `json:"detail,omitempty"`
}

// Decision is the decision engine's verdict for one unit, before the
// confirmation gate has resolved it.
type Decision struct {
	// UnitID is the unit this decision is for.
	UnitID string `json:"unit_id"`

	// Action is the verdict.
	Action Action `json:"action"`

	// PendingConfirmation holds an apply decision until the gate answers.
	PendingConfirmation bool `json:"pending_confirmation,omitempty"`

	// Reason is a human-readable explanation of the verdict.
	Reason string `json:"reason,omitempty"`
}

// Outcome is the recorded result of processing one unit in one run.
// Outcomes are append-only within a run and persisted as each unit
// completes, never batched.
type Outcome struct {
	// ID is the unique identifier of this outcome.
	ID string `json:"id"`

	// RunID is the run this outcome belongs to.
	RunID string `json:"run_id"`

	// UnitID is the unit this outcome records.
	UnitID string `json:"unit_id"`

	// Observed is the probe snapshot the decision was made against.
	Observed ObservedState `json:"observed"`

	// Action is the resolved action.
	Action Action `json:"action"`

	// Applied is true only when Action is apply and the mutator succeeded.
	Applied bool `json:"applied"`

	// AppliedHash is the content hash the engine wrote, for file-backed
	// units. Later runs compare against it to detect operator edits.
	AppliedHash string `json:"applied_hash,omitempty"`

	// Error carries the classified failure, if any.
	Error *OutcomeError `json:"error,omitempty"`

	// Reason explains skips and conflicts ("dependency failed", etc.).
	Reason string `json:"reason,omitempty"`

	// ToolVersion is the engine version that produced this outcome.
	ToolVersion string `json:"tool_version"`

	// Timestamp is when the outcome was recorded.
	Timestamp time.Time `json:"timestamp"`
}

// OutcomeError is the persisted form of a classified unit failure.
type OutcomeError struct {
	// Class is the error class (mutator, backup, probe_unknown, ...).
	Class ErrorClass `json:"class"`

	// Code is the machine-readable error code.
	Code string `json:"code,omitempty"`

	// Message is the human-readable failure description.
	Message string `json:"message"`

	// Remediation suggests the next step for the operator.
	Remediation string `json:"remediation,omitempty"`
}

// MutationResult is what a mutator reports back to the sequencer.
type MutationResult struct {
	// Changed is true when the mutator altered system state. A mutator
	// invoked against an already-converged unit reports Changed=false
	// with no error.
	Changed bool `json:"changed"`

	// Detail summarizes the side effects for the run report.
	Detail string `json:"detail,omitempty"`

	// NewHash is the content hash after mutation, for file-backed units.
	NewHash string `json:"new_hash,omitempty"`
}

// Baseline is a point-in-time aggregate measurement captured at run start
// and compared at run end. Immutable once captured; one per run.
type Baseline struct {
	// RunID identifies the run that owns this baseline.
	RunID string `json:"run_id"`

	// CapturedAt is when the measurement was taken.
	CapturedAt time.Time `json:"captured_at"`

	// FreeDiskKB is the free space on the root filesystem in KiB.
	FreeDiskKB int64 `json:"free_disk_kb"`

	// PackageCount is the number of installed packages.
	PackageCount int `json:"package_count"`

	// ActiveServiceCount is the number of active services.
	ActiveServiceCount int `json:"active_service_count"`
}

// BaselineDelta is the human-facing before/after comparison.
type BaselineDelta struct {
	Before Baseline `json:"before"`
	After  Baseline `json:"after"`

	FreeDiskDeltaKB int64 `json:"free_disk_delta_kb"`
	PackageDelta    int   `json:"package_delta"`
	ServiceDelta    int   `json:"service_delta"`
}

// Delta computes the before/after report against a later measurement.
func (b Baseline) Delta(after Baseline) BaselineDelta {
	return BaselineDelta{
		Before:          b,
		After:           after,
		FreeDiskDeltaKB: after.FreeDiskKB - b.FreeDiskKB,
		PackageDelta:    after.PackageCount - b.PackageCount,
		ServiceDelta:    after.ActiveServiceCount - b.ActiveServiceCount,
	}
}

// RunFlags are the operator-supplied switches for one run.
type RunFlags struct {
	// Mode selects simulation or real application.
	Mode RunMode `json:"mode"`

	// Interactivity selects human prompting or deterministic defaults.
	Interactivity Interactivity `json:"interactivity"`

	// SkipLongOps skips units flagged LongRunning.
	SkipLongOps bool `json:"skip_long_ops,omitempty"`

	// DestructiveModeEnabled allows the gate to choose the destructive
	// branch for destructive units in non-interactive runs.
	DestructiveModeEnabled bool `json:"destructive_mode_enabled,omitempty"`

	// Force re-applies units that probe as already converged, pushing
	// them back through the customization check and the mutator.
	// Preconditions stay check-only.
	Force bool `json:"force,omitempty"`
}

// Run is the top-level object for one invocation.
type Run struct {
	// ID is the unique run identifier.
	ID string `json:"id"`

	// Flags are the run switches.
	Flags RunFlags `json:"flags"`

	// Status is the sequencer state for this run.
	Status RunStatus `json:"status"`

	// Baseline is the start-of-run measurement.
	Baseline *Baseline `json:"baseline,omitempty"`

	// Outcomes are the per-unit results, in processing order.
	Outcomes []Outcome `json:"outcomes"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the run reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// ToolVersion is the engine version that executed the run.
	ToolVersion string `json:"tool_version"`
}

// Summary tallies outcomes by resolved action.
func (r *Run) Summary() RunSummary {
	s := RunSummary{Total: len(r.Outcomes)}
	for i := range r.Outcomes {
		switch o := &r.Outcomes[i]; o.Action {
		case ActionApply:
			if o.Applied {
				s.Applied++
			} else {
				s.Failed++
			}
		case ActionSkip:
			s.Skipped++
		case ActionConflict:
			s.Conflicts++
		case ActionFatal:
			s.Fatal++
		}
	}
	return s
}

// RunSummary provides statistics about a run.
type RunSummary struct {
	Total     int `json:"total"`
	Applied   int `json:"applied"`
	Skipped   int `json:"skipped"`
	Conflicts int `json:"conflicts"`
	Failed    int `json:"failed"`
	Fatal     int `json:"fatal"`
}
