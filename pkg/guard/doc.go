// Package guard enforces run-wide safety rules with Open Policy Agent.
//
// After every unit has been probed and decided but before any mutator
// runs, the guard evaluates the whole planned action set against Rego
// rules. Built-in rules deny destructive non-interactive applies made
// without the explicit destructive-mode flag and applies that overwrite
// files without declaring them for backup. Custom rules can be loaded
// from .rego files.
//
// A denial is a precondition error: the run records it and the engine
// mutates nothing.
package guard
