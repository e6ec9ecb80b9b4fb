// Package ledger provides the persistent run ledger for hardenctl.
// It stores runs, per-unit outcomes, backup records and baselines in
// SQLite with WAL mode, so a later invocation can detect already-converged
// units, recognize operator edits and report before/after deltas.
package ledger
