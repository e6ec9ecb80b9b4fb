// Package telemetry provides structured logging, Prometheus metrics and
// OpenTelemetry tracing for hardenctl. The logger wraps zerolog with
// convergence-specific field helpers (run_id, unit_id, component) so every
// log line from the engine carries consistent correlation fields.
package telemetry
