package guard

// BuiltinRules returns the rules every engine starts with.
func BuiltinRules() []Rule {
	return []Rule{
		destructiveNonInteractiveRule(),
		backupDeclaredRule(),
		conflictNoticeRule(),
	}
}

// destructiveNonInteractiveRule denies plans that would apply a destructive
// unit in a non-interactive run without the explicit destructive-mode flag.
func destructiveNonInteractiveRule() Rule {
	return Rule{
		Name:        "destructive-noninteractive",
		Description: "Destructive units may not apply non-interactively without the destructive-mode flag",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package hardenctl.guard.destructive

import rego.v1

deny contains violation if {
	input.flags.interactivity == "non-interactive"
	not input.flags.destructive_mode_enabled

	some d in input.decisions
	d.action == "apply"
	not d.pending_confirmation

	some u in input.units
	u.id == d.unit_id
	u.destructive

	violation := {
		"message": sprintf("destructive unit %s cannot apply non-interactively without destructive mode", [u.id]),
		"severity": "error",
		"unit": u.id,
	}
}
`,
	}
}

// backupDeclaredRule denies applies that write a persistent file without
// declaring it for backup: file units must declare their target, sysctl
// units must declare their drop-in.
func backupDeclaredRule() Rule {
	return Rule{
		Name:        "backup-declared",
		Description: "Units that persist files must declare the written path for backup",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package hardenctl.guard.backups

import rego.v1

deny contains violation if {
	some u in input.units
	u.kind == "file"

	some d in input.decisions
	d.unit_id == u.id
	d.action == "apply"

	not overwrites_target(u)

	violation := {
		"message": sprintf("file unit %s applies to %s but does not declare it for backup", [u.id, u.target]),
		"severity": "error",
		"unit": u.id,
	}
}

deny contains violation if {
	some u in input.units
	u.kind == "sysctl"

	some d in input.decisions
	d.unit_id == u.id
	d.action == "apply"

	count(object.get(u, "overwrites", [])) == 0

	violation := {
		"message": sprintf("sysctl unit %s persists to a drop-in but does not declare it for backup", [u.id]),
		"severity": "error",
		"unit": u.id,
	}
}

overwrites_target(u) if {
	some p in u.overwrites
	p == u.target
}
`,
	}
}

// conflictNoticeRule surfaces conflicted units as warnings so operators see
// them even when the run otherwise proceeds.
func conflictNoticeRule() Rule {
	return Rule{
		Name:        "conflict-notice",
		Description: "Reports units decided as conflicts",
		Severity:    SeverityWarning,
		Enabled:     true,
		Rego: `package hardenctl.guard.conflicts

import rego.v1

deny contains violation if {
	some d in input.decisions
	d.action == "conflict"

	violation := {
		"message": sprintf("unit %s is in conflict: %s", [d.unit_id, d.reason]),
		"severity": "warning",
		"unit": d.unit_id,
	}
}
`,
	}
}
