package engine

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// genStateCode generates any observable state code.
func genStateCode() gopter.Gen {
	return gen.OneConstOf(StatePresent, StateAbsent, StateUnknown, StateCustomized)
}

// genPolicyTarget generates any declarable policy target.
func genPolicyTarget() gopter.Gen {
	return gen.OneConstOf(StatePresent, StateAbsent)
}

func genObserved() gopter.Gen {
	return gopter.CombineGens(genStateCode(), gen.AlphaString(), gen.AlphaString()).
		Map(func(vals []interface{}) ObservedState {
			return ObservedState{
				Code:  vals[0].(StateCode),
				Value: vals[1].(string),
				Hash:  vals[2].(string),
			}
		})
}

func genUnit() gopter.Gen {
	return gopter.CombineGens(
		gen.Identifier(),
		genPolicyTarget(),
		gen.AlphaString(),
		gen.Bool(),
		gen.Bool(),
	).Map(func(vals []interface{}) Unit {
		return Unit{
			ID:                   vals[0].(string),
			Kind:                 "fake",
			Target:               vals[0].(string),
			Policy:               Policy{Target: vals[1].(StateCode), Value: vals[2].(string)},
			RequiresConfirmation: vals[3].(bool),
			Precondition:         vals[4].(bool),
		}
	})
}

func TestDecideNeverAppliesAgainstUnknown(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	d := NewDecisionEngine()

	properties.Property("unknown state never yields apply or conflict", prop.ForAll(
		func(unit Unit, detail string) bool {
			observed := ObservedState{Code: StateUnknown, Detail: detail}
			decision := d.Decide(unit, observed, nil, RunFlags{Mode: ModeApply})
			if unit.Precondition {
				return decision.Action == ActionFatal
			}
			return decision.Action == ActionSkip
		},
		genUnit(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestDecideConvergedAlwaysSkips(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	d := NewDecisionEngine()

	properties.Property("a policy-matching observation always skips an unforced run", prop.ForAll(
		func(unit Unit) bool {
			observed := ObservedState{Code: unit.Policy.Target, Value: unit.Policy.Value}
			decision := d.Decide(unit, observed, nil, RunFlags{Mode: ModeApply})
			return decision.Action == ActionSkip
		},
		genUnit(),
	))

	properties.TestingRun(t)
}

func TestDecideIgnoresRunMode(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	d := NewDecisionEngine()

	properties.Property("simulate and apply produce identical verdicts", prop.ForAll(
		func(unit Unit, observed ObservedState) bool {
			sim := d.Decide(unit, observed, nil, RunFlags{Mode: ModeSimulate, Interactivity: NonInteractive})
			app := d.Decide(unit, observed, nil, RunFlags{Mode: ModeApply, Interactivity: NonInteractive})
			return sim.Action == app.Action && sim.Reason == app.Reason &&
				sim.PendingConfirmation == app.PendingConfirmation
		},
		genUnit(),
		genObserved(),
	))

	properties.TestingRun(t)
}

func TestDecidePreconditionNeverApplies(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	d := NewDecisionEngine()

	properties.Property("precondition units only skip or abort", prop.ForAll(
		func(unit Unit, observed ObservedState) bool {
			unit.Precondition = true
			decision := d.Decide(unit, observed, nil, RunFlags{Mode: ModeApply})
			return decision.Action == ActionSkip || decision.Action == ActionFatal
		},
		genUnit(),
		genObserved(),
	))

	properties.TestingRun(t)
}

func TestResolveDefaultNeverDestructsWithoutFlag(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("destructive units are withheld without destructive mode", prop.ForAll(
		func(unit Unit, conflict bool) bool {
			unit.Destructive = true
			unit.NonInteractiveDefault = DefaultApply
			action := ActionApply
			if conflict {
				action = ActionConflict
			}
			decision := Decision{UnitID: unit.ID, Action: action}
			res := resolveDefault(decision, unit, RunFlags{Interactivity: NonInteractive})
			return !res.Approved
		},
		genUnit(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestPolicyMatchesIsConsistent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("matches implies equal code and satisfied value", prop.ForAll(
		func(target StateCode, value string, observed ObservedState) bool {
			p := Policy{Target: target, Value: value}
			if !p.Matches(observed) {
				return true
			}
			if observed.Code != target {
				return false
			}
			if target == StatePresent && value != "" && observed.Value != value {
				return false
			}
			return true
		},
		genPolicyTarget(),
		gen.AlphaString(),
		genObserved(),
	))

	properties.TestingRun(t)
}
