// Package mutators contains the state changers, one per unit kind. A
// mutator is only invoked when the resolved action is apply, and every
// mutator re-checks the live state first so that running against an
// already-converged unit is a no-op success. That property is what makes
// re-running the tool after an interruption safe.
package mutators
