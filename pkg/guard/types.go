package guard

import (
	"time"

	"github.com/hardenctl/hardenctl/pkg/engine"
)

// Severity classifies a rule violation.
type Severity string

const (
	// SeverityWarning marks violations that are logged but do not block.
	SeverityWarning Severity = "warning"

	// SeverityError marks violations that deny the run.
	SeverityError Severity = "error"
)

// Rule is one Rego safety rule.
type Rule struct {
	// Name is the unique rule name.
	Name string `json:"name"`

	// Description is a human-readable summary.
	Description string `json:"description"`

	// Rego is the rule body. Violations come from the deny set of the
	// rule's package.
	Rego string `json:"rego"`

	// Severity is the default severity for violations of this rule.
	Severity Severity `json:"severity"`

	// Enabled indicates whether the rule is evaluated.
	Enabled bool `json:"enabled"`
}

// Violation is one rule violation found in a planned action set.
type Violation struct {
	// Rule is the name of the violated rule.
	Rule string `json:"rule"`

	// UnitID is the offending unit, when the violation is unit-scoped.
	UnitID string `json:"unit_id,omitempty"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// Severity is the violation severity.
	Severity Severity `json:"severity"`

	// DetectedAt is when the violation was found.
	DetectedAt time.Time `json:"detected_at"`
}

// Input is the document rules evaluate against.
type Input struct {
	// Units are all declared units.
	Units []engine.Unit `json:"units"`

	// Decisions are the planned actions, one per unit, pre-gate.
	Decisions []engine.Decision `json:"decisions"`

	// Flags are the run switches.
	Flags engine.RunFlags `json:"flags"`
}
