package engine

import (
	"context"
	"time"
)

// Probe answers "what is true right now?" for one unit. Probes may read the
// OS but must never write it, and repeated calls with no intervening
// mutation return the same result. A probe never fails: a state it cannot
// determine is reported as StateUnknown with a detail message.
type Probe interface {
	// Evaluate inspects the unit's subject and returns its observed state.
	Evaluate(ctx context.Context, unit Unit) ObservedState

	// Kind returns the unit kind this probe handles.
	Kind() string
}

// Mutator applies one state transition. It is only invoked when the
// resolved action is apply, and must be written so that re-running against
// a unit already in the target state is a no-op success: that is what makes
// re-running the whole tool after an interruption safe even when the ledger
// missed an update.
type Mutator interface {
	// Apply drives the unit toward its policy and reports what changed.
	Apply(ctx context.Context, unit Unit) (MutationResult, error)

	// Kind returns the unit kind this mutator handles.
	Kind() string
}

// ProgressPoller is an optional mutator capability. Long-running mutators
// implement it so the sequencer can poll liveness for user feedback while
// the mutation runs detached. Polling never overlaps the next unit's probe;
// the phase blocks until the mutator completes.
type ProgressPoller interface {
	// Progress returns a human-readable progress note and whether the
	// operation is still running.
	Progress() (string, bool)
}

// Gate turns a conflict or confirmation-pending decision into a yes/no.
// Implementations are either a human-input adapter or a deterministic
// non-interactive default adapter, so the engine is testable without a
// terminal.
type Gate interface {
	// Resolve answers whether the decided action should proceed.
	Resolve(ctx context.Context, decision Decision, unit Unit, flags RunFlags) (Resolution, error)
}

// Resolution is a gate's answer.
type Resolution struct {
	// Approved is true when the action should proceed.
	Approved bool `json:"approved"`

	// Reason explains the answer ("operator declined", "non-interactive
	// default: skip", ...).
	Reason string `json:"reason"`
}

// BackupRecord ties a snapshot to the unit and run that required it. A
// record for a path must exist before that path's content is overwritten in
// the same run. Records are never auto-deleted by the engine.
type BackupRecord struct {
	// ID is the unique identifier of this record.
	ID string `json:"id"`

	// RunID is the run that took the snapshot.
	RunID string `json:"run_id"`

	// UnitID is the unit whose mutator required the snapshot.
	UnitID string `json:"unit_id"`

	// OriginalPath is the path that was snapshotted.
	OriginalPath string `json:"original_path"`

	// BackupPath is where the snapshot content lives.
	BackupPath string `json:"backup_path"`

	// ContentHash is the hash of the snapshotted content.
	ContentHash string `json:"content_hash,omitempty"`

	// CreatedAt is when the snapshot was written.
	CreatedAt time.Time `json:"created_at"`
}

// BackupManager snapshots mutable artifacts before a mutator overwrites
// them. A snapshot failure fails the unit; the engine never mutates
// unprotected state.
type BackupManager interface {
	// Snapshot copies the path's current content aside and returns the
	// record. A missing path returns a record with empty BackupPath so
	// restore knows the file did not exist.
	Snapshot(ctx context.Context, runID, unitID, path string) (*BackupRecord, error)
}

// Ledger persists cross-run facts: outcomes, baselines, backup records and
// the tool version, so re-invocation can detect already-converged units and
// before/after reporting is possible.
type Ledger interface {
	// BeginRun persists the run header before any unit is processed.
	BeginRun(ctx context.Context, run *Run) error

	// CompleteRun marks the run terminal with its final status.
	CompleteRun(ctx context.Context, runID string, status RunStatus) error

	// Record persists one outcome. Called as each unit completes, never
	// batched, so a crash mid-run leaves the ledger consistent with
	// everything actually done.
	Record(ctx context.Context, outcome *Outcome) error

	// PriorOutcome returns the most recent outcome for a unit from any
	// run, or nil when the unit has never been processed.
	PriorOutcome(ctx context.Context, unitID string) (*Outcome, error)

	// PriorOutcomes returns the unit's recorded history, newest first.
	PriorOutcomes(ctx context.Context, unitID string) ([]Outcome, error)

	// LastApplied returns the most recent outcome for a unit where the
	// mutator actually ran and succeeded, or nil when the engine has never
	// written this unit's subject. Its AppliedHash anchors customization
	// detection.
	LastApplied(ctx context.Context, unitID string) (*Outcome, error)

	// LastRunVersion returns the tool version marker of the most recent
	// run, or empty when no run is recorded. A version change triggers a
	// one-time re-evaluation pass: a skip recorded by an older version is
	// not trusted as converged.
	LastRunVersion(ctx context.Context) (string, error)

	// RecordBackup persists a backup record.
	RecordBackup(ctx context.Context, rec *BackupRecord) error

	// SaveBaseline persists a run's baseline measurement.
	SaveBaseline(ctx context.Context, baseline *Baseline) error
}

// Measurer captures the aggregate baseline measurement for a run.
type Measurer interface {
	// Measure collects the baseline numbers. Individual measurements that
	// cannot be taken are zero; Measure itself only fails when nothing at
	// all can be measured.
	Measure(ctx context.Context) (Baseline, error)
}

// Guard vets the planned action set before any mutator runs. It is how
// run-wide safety rules (no destructive non-interactive applies without the
// explicit flag, backups declared for overwriting units) are enforced
// independently of per-unit logic.
type Guard interface {
	// CheckPlan returns a ClassPrecondition error when the planned actions
	// violate a safety rule.
	CheckPlan(ctx context.Context, units []Unit, decisions []Decision, flags RunFlags) error
}
