// Package policy loads and validates hardening catalogs.
//
// A catalog is a YAML document declaring the units a run converges: each
// unit names its kind, target, desired state and safety flags. The loader
// validates documents three ways before the engine sees them: CUE schema
// unification for structural correctness, struct-tag validation for field
// constraints, and per-unit semantic checks (self-dependencies, policy
// codes).
//
// The package also ships the built-in hardening catalog used when no
// catalog file is given.
package policy
