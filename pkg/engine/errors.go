// Package engine implements the idempotent convergence core: the decision
// engine, confirmation gate, run sequencer, and baseline reporting that
// drive a machine's observed state toward its declared policy.
package engine

import (
	"errors"
	"fmt"
)

// ErrorClass classifies a failure for propagation and reporting. Only
// ClassPrecondition aborts a run; every other class is local to one unit.
type ErrorClass string

const (
	// ClassPrecondition indicates a run-level precondition failed (e.g.,
	// insufficient disk space). The run aborts before any phase starts.
	ClassPrecondition ErrorClass = "precondition"

	// ClassProbeUnknown indicates a unit's state could not be determined.
	// The unit is skipped with a warning and the run continues.
	ClassProbeUnknown ErrorClass = "probe_unknown"

	// ClassConflict indicates operator customization was detected. The
	// confirmation gate resolves it; it is never silently overridden.
	ClassConflict ErrorClass = "conflict"

	// ClassMutator indicates the underlying action failed. The failure is
	// recorded, dependents are forced to skip, independent units proceed.
	ClassMutator ErrorClass = "mutator"

	// ClassBackup indicates a pre-mutation snapshot could not be written.
	// Mutation is refused for that unit only.
	ClassBackup ErrorClass = "backup"

	// ClassInterrupted indicates an external signal halted the run after
	// the in-flight unit, with the ledger flushed.
	ClassInterrupted ErrorClass = "interrupted"
)

// Error is a classified engine error with unit and operation context.
type Error struct {
	// Class is the error classification for propagation decisions.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Unit is the unit ID that caused the error, if applicable.
	Unit string `json:"unit,omitempty"`

	// Op is the operation being performed when the error occurred.
	Op string `json:"op,omitempty"`

	// Remediation suggests the operator's next step.
	Remediation string `json:"remediation,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Unit != "" {
		return fmt.Sprintf("[%s] %s (unit=%s)%s", e.Class, e.Message, e.Unit, e.causeSuffix())
	}
	return fmt.Sprintf("[%s] %s%s", e.Class, e.Message, e.causeSuffix())
}

func (e *Error) causeSuffix() string {
	if e.Err != nil {
		return ": " + e.Err.Error()
	}
	return ""
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class && (t.Code == "" || e.Code == t.Code)
}

// NewError creates a classified engine error.
func NewError(class ErrorClass, message string, err error) *Error {
	return &Error{Class: class, Message: message, Err: err}
}

// WithCode adds an error code.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// WithUnit adds unit context.
func (e *Error) WithUnit(unitID string) *Error {
	e.Unit = unitID
	return e
}

// WithOp adds operation context.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithRemediation adds a suggested operator next step.
func (e *Error) WithRemediation(hint string) *Error {
	e.Remediation = hint
	return e
}

// Outcome converts the error into its persisted form.
func (e *Error) Outcome() *OutcomeError {
	return &OutcomeError{
		Class:       e.Class,
		Code:        e.Code,
		Message:     e.Message + e.causeSuffix(),
		Remediation: e.Remediation,
	}
}

// ClassOf returns the class of a classified error, or ClassMutator for
// unclassified errors surfaced by a mutator boundary.
func ClassOf(err error) ErrorClass {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return ClassMutator
}

// IsPrecondition returns true if the error aborts the whole run.
func IsPrecondition(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Class == ClassPrecondition
}

// IsBackup returns true if the error came from the backup manager.
func IsBackup(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Class == ClassBackup
}

// IsInterrupted returns true if the error reports an external interrupt.
func IsInterrupted(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Class == ClassInterrupted
}

// Common error codes.
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodeDiskSpace        = "INSUFFICIENT_DISK"
	CodeProbeFailed      = "PROBE_FAILED"
	CodeMutatorFailed    = "MUTATOR_FAILED"
	CodeBackupFailed     = "BACKUP_FAILED"
	CodeDependencyFailed = "DEPENDENCY_FAILED"
	CodeGuardDenied      = "GUARD_DENIED"
	CodeInternal         = "INTERNAL_ERROR"
)
