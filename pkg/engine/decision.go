package engine

import "fmt"

// DecisionEngine combines a probe result, the unit's desired-state policy,
// the unit's last recorded outcome, and the run flags into one action. It
// is a pure function of its inputs: simulate mode and apply mode see the
// same inputs and therefore produce the same decisions.
type DecisionEngine struct{}

// NewDecisionEngine creates a decision engine.
func NewDecisionEngine() *DecisionEngine {
	return &DecisionEngine{}
}

// Decide returns the action for one unit.
//
// The order of the rules is load-bearing:
//
//  1. Unknown state is never acted on. A precondition unit aborts the run;
//     any other unit is skipped with a warning.
//  2. A unit whose observed state matches its policy is skipped. A forced
//     run sends converged units back through the customization check and
//     the mutator instead. An unsatisfied precondition unit aborts the
//     run; preconditions are check-only and never reach a mutator, forced
//     or not.
//  3. A unit whose subject was changed by something other than this tool
//     since the engine last wrote it is a conflict. Conflict always wins
//     over apply.
//  4. Everything else is an apply, held at the confirmation gate when the
//     unit asks for confirmation and a human is available.
func (d *DecisionEngine) Decide(unit Unit, observed ObservedState, prior *Outcome, flags RunFlags) Decision {
	if observed.Code == StateUnknown {
		if unit.Precondition {
			return Decision{
				UnitID: unit.ID,
				Action: ActionFatal,
				Reason: fmt.Sprintf("precondition state undeterminable: %s", observed.Detail),
			}
		}
		return Decision{
			UnitID: unit.ID,
			Action: ActionSkip,
			Reason: fmt.Sprintf("state undeterminable, skipping: %s", observed.Detail),
		}
	}

	converged := unit.Policy.Matches(observed)
	if converged && (!flags.Force || unit.Precondition) {
		return Decision{
			UnitID: unit.ID,
			Action: ActionSkip,
			Reason: "already converged",
		}
	}

	// Precondition units are check-only: they assert something about the
	// machine and have no mutator path. A determinable-but-unsatisfied
	// precondition aborts the run the same way an undeterminable one does.
	if unit.Precondition {
		return Decision{
			UnitID: unit.ID,
			Action: ActionFatal,
			Reason: fmt.Sprintf("precondition not satisfied: %s", observed.Detail),
		}
	}

	if reason, customized := d.detectCustomization(unit, observed, prior); customized {
		return Decision{
			UnitID: unit.ID,
			Action: ActionConflict,
			Reason: reason,
		}
	}

	reason := "observed state differs from policy"
	if converged {
		reason = "re-applying converged unit (forced)"
	}
	return Decision{
		UnitID:              unit.ID,
		Action:              ActionApply,
		PendingConfirmation: unit.RequiresConfirmation && flags.Interactivity == Interactive,
		Reason:              reason,
	}
}

// detectCustomization decides whether the divergence from policy is the
// engine's own stale output (safe to overwrite) or someone else's edit
// (conflict). The strategy is content-hash comparison against the hash the
// engine recorded when it last wrote the subject.
func (d *DecisionEngine) detectCustomization(unit Unit, observed ObservedState, prior *Outcome) (string, bool) {
	// Probes that carry their own marker check can report customization
	// directly.
	if observed.Code == StateCustomized {
		return "subject was modified outside this tool", true
	}

	// Customization detection only applies to subjects with content: a
	// missing file or uninstalled package cannot carry operator edits.
	if observed.Code != StatePresent || observed.Hash == "" {
		return "", false
	}

	if prior == nil || prior.AppliedHash == "" {
		// Present with content this engine never wrote. Overwriting it
		// would destroy operator state.
		return "existing content was not written by this tool", true
	}

	if observed.Hash != prior.AppliedHash {
		return "content changed since this tool last wrote it", true
	}

	// Our own previous output; the policy itself moved. Safe to reapply.
	return "", false
}
