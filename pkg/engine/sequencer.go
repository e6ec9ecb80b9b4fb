package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/hardenctl/hardenctl/pkg/telemetry"
)

// Sequencer drives the convergence loop: it orders units into phases,
// evaluates each unit through probe, decision engine, confirmation gate,
// backup manager and mutator, and records every outcome to the ledger as
// soon as the unit completes.
//
// Execution is strictly sequential. Probes and mutators observe and alter
// global machine state (package database, service manager, filesystem), so
// no two units ever run concurrently. The only goroutine the sequencer
// starts is the detached execution of a long-running mutator, and the phase
// blocks until that mutator confirms completion.
type Sequencer struct {
	probes   map[string]Probe
	mutators map[string]Mutator
	decider  *DecisionEngine
	gate     Gate
	backups  BackupManager
	ledger   Ledger
	guard    Guard
	measurer Measurer
	metrics  *telemetry.Metrics
	tracer   *telemetry.Tracer
	log      *telemetry.Logger

	version      string
	pollInterval time.Duration
}

// SequencerConfig wires the sequencer's collaborators.
type SequencerConfig struct {
	// Probes are the state inspectors, one per unit kind.
	Probes []Probe

	// Mutators are the state changers, one per unit kind.
	Mutators []Mutator

	// Gate resolves conflicts and confirmation-pending applies.
	Gate Gate

	// Backups snapshots paths before overwriting mutators run.
	Backups BackupManager

	// Ledger persists run headers, outcomes, baselines, backup records.
	Ledger Ledger

	// Guard vets planned actions before mutators run. Optional.
	Guard Guard

	// Measurer captures the run baseline. Optional.
	Measurer Measurer

	// Metrics records run and unit counters. Optional.
	Metrics *telemetry.Metrics

	// Tracer spans runs and units. Optional.
	Tracer *telemetry.Tracer

	// Logger is the structured logger. Optional; a default is used.
	Logger *telemetry.Logger

	// ToolVersion is stamped onto runs and outcomes.
	ToolVersion string

	// PollInterval is the liveness polling period for long-running
	// mutators. Defaults to 5s.
	PollInterval time.Duration
}

// RunReport is the result of one sequencer execution.
type RunReport struct {
	// Run is the completed run with all recorded outcomes.
	Run *Run `json:"run"`

	// Delta is the before/after baseline comparison, when measured.
	Delta *BaselineDelta `json:"delta,omitempty"`
}

// NewSequencer creates a run sequencer.
func NewSequencer(cfg SequencerConfig) *Sequencer {
	s := &Sequencer{
		probes:       make(map[string]Probe, len(cfg.Probes)),
		mutators:     make(map[string]Mutator, len(cfg.Mutators)),
		decider:      NewDecisionEngine(),
		gate:         cfg.Gate,
		backups:      cfg.Backups,
		ledger:       cfg.Ledger,
		guard:        cfg.Guard,
		measurer:     cfg.Measurer,
		metrics:      cfg.Metrics,
		tracer:       cfg.Tracer,
		log:          cfg.Logger,
		version:      cfg.ToolVersion,
		pollInterval: cfg.PollInterval,
	}
	for _, p := range cfg.Probes {
		s.probes[p.Kind()] = p
	}
	for _, m := range cfg.Mutators {
		s.mutators[m.Kind()] = m
	}
	if s.gate == nil {
		s.gate = NewDefaultGate()
	}
	if s.log == nil {
		s.log = telemetry.Nop()
	}
	if s.pollInterval <= 0 {
		s.pollInterval = 5 * time.Second
	}
	return s
}

// Execute runs the full convergence loop over the unit catalog.
//
// The returned error is non-nil only for run-level failures: a failed
// precondition, an interrupt, or a ledger write failure. Unit-local
// failures (mutator, backup, probe-unknown) are recorded in outcomes and do
// not error the run.
func (s *Sequencer) Execute(ctx context.Context, units []Unit, flags RunFlags) (*RunReport, error) {
	run := &Run{
		ID:          uuid.New().String(),
		Flags:       flags,
		Status:      RunStatusInit,
		StartedAt:   time.Now(),
		ToolVersion: s.version,
	}
	log := s.log.WithRunID(run.ID)

	var runSpan trace.Span
	if s.tracer != nil {
		ctx, runSpan = s.tracer.StartRunSpan(ctx, run.ID, string(flags.Mode))
		defer runSpan.End()
	}

	phases, err := NewUnitGraph().Order(units)
	if err != nil {
		return nil, err
	}

	if prevVersion, verr := s.ledger.LastRunVersion(ctx); verr == nil &&
		prevVersion != "" && prevVersion != s.version {
		// A policy may have changed between tool versions; nothing recorded
		// by the previous version is trusted as converged, every unit is
		// re-evaluated against the live system.
		log.Infof("tool version changed (%s -> %s), re-evaluating all units", prevVersion, s.version)
	}

	if err := s.ledger.BeginRun(ctx, run); err != nil {
		return nil, NewError(ClassPrecondition, "recording run start", err)
	}

	run.Status = RunStatusBaseline
	if s.measurer != nil {
		baseline, merr := s.measurer.Measure(ctx)
		if merr != nil {
			log.Warnf("baseline measurement unavailable: %v", merr)
		} else {
			baseline.RunID = run.ID
			run.Baseline = &baseline
			if err := s.ledger.SaveBaseline(ctx, &baseline); err != nil {
				log.Warnf("saving baseline: %v", merr)
			}
		}
	}

	run.Status = RunStatusExecuting
	runErr := s.executePhases(ctx, run, phases, log)

	report := &RunReport{Run: run}
	if runErr == nil {
		run.Status = RunStatusVerifying
		if s.measurer != nil && run.Baseline != nil {
			if after, merr := s.measurer.Measure(ctx); merr == nil {
				after.RunID = run.ID
				delta := run.Baseline.Delta(after)
				report.Delta = &delta
			}
		}
		run.Status = RunStatusDone
	} else if IsInterrupted(runErr) {
		run.Status = RunStatusInterrupted
	} else {
		run.Status = RunStatusFatal
	}

	now := time.Now()
	run.CompletedAt = &now
	if err := s.ledger.CompleteRun(ctx, run.ID, run.Status); err != nil {
		log.Errorf("recording run completion: %v", err)
	}
	if s.metrics != nil {
		s.metrics.ObserveRun(string(run.Status), now.Sub(run.StartedAt))
	}
	if runSpan != nil {
		if runErr != nil {
			telemetry.RecordError(runSpan, runErr)
		} else {
			telemetry.RecordSuccess(runSpan)
		}
	}

	return report, runErr
}

// executePhases walks phases in order, units in dependency order, checking
// for interruption between units only: an in-flight unit always finishes or
// fails on its own terms.
func (s *Sequencer) executePhases(ctx context.Context, run *Run, phases [][]Unit, log *telemetry.Logger) error {
	// satisfied tracks units that reached a successful or skip-equivalent
	// terminal state this run; dependents of anything else are forced to
	// skip.
	satisfied := make(map[string]bool)

	for _, phase := range phases {
		for i := range phase {
			unit := phase[i]

			if ctx.Err() != nil {
				// The ledger already holds every completed outcome; stop
				// before starting the next unit.
				log.Warn("interrupt received, halting before next unit")
				return NewError(ClassInterrupted, "run interrupted", ctx.Err())
			}

			outcome, err := s.processUnit(ctx, run, unit, satisfied, log)
			if err != nil {
				return err
			}

			run.Outcomes = append(run.Outcomes, *outcome)
			satisfied[unit.ID] = outcomeSatisfied(outcome)

			if outcome.Action == ActionFatal {
				return NewError(ClassPrecondition, outcome.Reason, nil).
					WithUnit(unit.ID).
					WithRemediation("resolve the failed precondition and re-run")
			}
		}
	}
	return nil
}

// outcomeSatisfied reports whether dependents of this unit may proceed.
func outcomeSatisfied(o *Outcome) bool {
	if o.Error != nil {
		return false
	}
	switch o.Action {
	case ActionSkip, ActionConflict:
		// Skips (including conflicts resolved to preserve) count as
		// terminal for dependency purposes.
		return true
	case ActionApply:
		return o.Applied
	default:
		return false
	}
}

// processUnit runs one unit through the full loop and records its outcome.
// The returned error is run-level only (ledger failure); every unit-local
// failure is folded into the outcome.
func (s *Sequencer) processUnit(ctx context.Context, run *Run, unit Unit, satisfied map[string]bool, log *telemetry.Logger) (*Outcome, error) {
	ulog := log.WithUnitID(unit.ID)

	if s.tracer != nil {
		var span trace.Span
		ctx, span = s.tracer.StartUnitSpan(ctx, unit.ID, unit.Kind)
		defer span.End()
	}

	outcome := &Outcome{
		ID:          uuid.New().String(),
		RunID:       run.ID,
		UnitID:      unit.ID,
		ToolVersion: s.version,
	}

	// Dependency short-circuit: a unit whose dependency failed is never
	// attempted, not even its probe-driven decision.
	for _, depID := range unit.DependsOn {
		if !satisfied[depID] {
			outcome.Action = ActionSkip
			outcome.Reason = fmt.Sprintf("dependency failed: %s", depID)
			// Never probed; the recorded state must still decode.
			outcome.Observed = ObservedState{Code: StateUnknown,
				CheckedAt: time.Now(), Detail: "unit not probed"}
			ulog.Warn(outcome.Reason)
			return s.record(ctx, outcome)
		}
	}

	// UnitEvaluating: probe.
	probe, ok := s.probes[unit.Kind]
	observed := ObservedState{Code: StateUnknown, CheckedAt: time.Now(),
		Detail: fmt.Sprintf("no probe for kind %q", unit.Kind)}
	if ok {
		observed = probe.Evaluate(ctx, unit)
	}
	outcome.Observed = observed

	prior, err := s.ledger.LastApplied(ctx, unit.ID)
	if err != nil {
		return nil, NewError(ClassPrecondition, "reading prior outcome", err).WithUnit(unit.ID)
	}

	decision := s.decider.Decide(unit, observed, prior, run.Flags)
	outcome.Action = decision.Action
	outcome.Reason = decision.Reason
	if s.metrics != nil {
		s.metrics.CountDecision(unit.Kind, string(decision.Action))
	}

	switch decision.Action {
	case ActionSkip:
		if observed.Code == StateUnknown {
			outcome.Error = NewError(ClassProbeUnknown, decision.Reason, nil).
				WithUnit(unit.ID).WithCode(CodeProbeFailed).
				WithRemediation("verify the probe's external command is available and re-run").
				Outcome()
			ulog.Warn(decision.Reason)
		} else {
			ulog.Debug(decision.Reason)
		}
		return s.record(ctx, outcome)

	case ActionFatal:
		outcome.Error = NewError(ClassPrecondition, decision.Reason, nil).
			WithUnit(unit.ID).Outcome()
		ulog.Error(decision.Reason)
		return s.record(ctx, outcome)
	}

	// Simulate mode stops here: the decision is recorded, no gate prompt,
	// no backup, no mutator. Decisions are identical to a real run because
	// Decide saw identical inputs.
	if run.Flags.Mode == ModeSimulate {
		ulog.Infof("would %s: %s", decision.Action, decision.Reason)
		return s.record(ctx, outcome)
	}

	// UnitResolving: confirmation gate for conflicts and held applies.
	if decision.Action == ActionConflict || decision.PendingConfirmation {
		resolution, gerr := s.gate.Resolve(ctx, decision, unit, run.Flags)
		if gerr != nil {
			if IsInterrupted(gerr) {
				return nil, gerr
			}
			return nil, NewError(ClassPrecondition, "confirmation gate failed", gerr).WithUnit(unit.ID)
		}
		outcome.Reason = resolution.Reason
		if !resolution.Approved {
			ulog.Infof("withheld: %s", resolution.Reason)
			return s.record(ctx, outcome)
		}
	}

	// Long-running work can be excluded wholesale by flag.
	if unit.LongRunning && run.Flags.SkipLongOps {
		outcome.Action = ActionSkip
		outcome.Reason = "long-running operation skipped by flag"
		ulog.Info(outcome.Reason)
		return s.record(ctx, outcome)
	}

	// Run-wide safety rules get the last word before any mutation.
	if s.guard != nil {
		if gerr := s.guard.CheckPlan(ctx, []Unit{unit}, []Decision{decision}, run.Flags); gerr != nil {
			outcome.Action = ActionSkip
			outcome.Reason = "denied by safety rule"
			outcome.Error = NewError(ClassPrecondition, gerr.Error(), nil).
				WithUnit(unit.ID).WithCode(CodeGuardDenied).Outcome()
			ulog.Warnf("denied by safety rule: %v", gerr)
			return s.record(ctx, outcome)
		}
	}

	// Backups precede mutation; a failed snapshot refuses the mutation for
	// this unit only.
	for _, path := range unit.Overwrites {
		rec, berr := s.backups.Snapshot(ctx, run.ID, unit.ID, path)
		if berr != nil {
			outcome.Applied = false
			outcome.Error = NewError(ClassBackup, fmt.Sprintf("snapshot of %s failed", path), berr).
				WithUnit(unit.ID).WithCode(CodeBackupFailed).
				WithRemediation("fix the backup destination and re-run").
				Outcome()
			ulog.Errorf("refusing to mutate without backup: %v", berr)
			return s.record(ctx, outcome)
		}
		if err := s.ledger.RecordBackup(ctx, rec); err != nil {
			return nil, NewError(ClassPrecondition, "recording backup", err).WithUnit(unit.ID)
		}
		ulog.Debugf("snapshotted %s -> %s", path, rec.BackupPath)
	}

	// UnitApplying: the mutator.
	result, merr := s.applyMutator(ctx, unit, ulog)
	if merr != nil {
		outcome.Error = NewError(ClassMutator, "mutation failed", merr).
			WithUnit(unit.ID).WithCode(CodeMutatorFailed).
			WithRemediation("re-run after addressing the failure; completed units will be skipped").
			Outcome()
		ulog.Errorf("mutation failed: %v", merr)
		if s.metrics != nil {
			s.metrics.CountUnitFailure(unit.Kind)
		}
		return s.record(ctx, outcome)
	}

	// A conflict the operator approved resolves to an apply; the reason
	// keeps the conflict wording so the ledger shows what was overwritten.
	outcome.Action = ActionApply
	outcome.Applied = true
	outcome.AppliedHash = result.NewHash
	if result.Changed {
		ulog.Infof("applied: %s", result.Detail)
	} else {
		ulog.Debug("already in target state, no change")
	}
	return s.record(ctx, outcome)
}

// applyMutator invokes the unit's mutator. Long-running mutators execute
// detached while the sequencer polls liveness on a fixed interval; the
// sequencer blocks here until completion, so polling can never race the
// next unit's probe.
//
// The mutator runs on a context that survives run cancellation: an
// interrupt lets the in-flight mutation finish or fail cleanly, and the
// sequencer stops before the next unit instead.
func (s *Sequencer) applyMutator(ctx context.Context, unit Unit, ulog *telemetry.Logger) (MutationResult, error) {
	mutator, ok := s.mutators[unit.Kind]
	if !ok {
		return MutationResult{}, fmt.Errorf("no mutator for kind %q", unit.Kind)
	}

	mutCtx := context.WithoutCancel(ctx)

	if !unit.LongRunning {
		return mutator.Apply(mutCtx, unit)
	}

	type applyResult struct {
		result MutationResult
		err    error
	}
	done := make(chan applyResult, 1)
	go func() {
		result, err := mutator.Apply(mutCtx, unit)
		done <- applyResult{result, err}
	}()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case r := <-done:
			return r.result, r.err
		case <-ticker.C:
			if poller, ok := mutator.(ProgressPoller); ok {
				if note, running := poller.Progress(); running {
					ulog.Infof("still running: %s", note)
				}
			} else {
				ulog.Info("long-running operation still in progress")
			}
		}
	}
}

// record persists the outcome immediately. A ledger write failure is a
// run-level error: continuing without a consistent ledger would break the
// resumption guarantee.
func (s *Sequencer) record(ctx context.Context, outcome *Outcome) (*Outcome, error) {
	outcome.Timestamp = time.Now()
	if err := s.ledger.Record(ctx, outcome); err != nil {
		return nil, NewError(ClassPrecondition, "recording outcome", err).WithUnit(outcome.UnitID)
	}
	return outcome, nil
}
