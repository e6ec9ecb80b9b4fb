package guard

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"

	"github.com/hardenctl/hardenctl/pkg/engine"
	"github.com/hardenctl/hardenctl/pkg/telemetry"
)

// Engine evaluates Rego safety rules. It implements engine.Guard.
type Engine struct {
	mu     sync.RWMutex
	rules  map[string]*compiledRule
	logger *telemetry.Logger
}

type compiledRule struct {
	rule     *Rule
	module   *ast.Module
	compiled time.Time
}

// NewEngine creates a guard engine with the built-in rules loaded.
func NewEngine(logger *telemetry.Logger) (*Engine, error) {
	if logger == nil {
		logger = telemetry.Nop()
	}

	e := &Engine{
		rules:  make(map[string]*compiledRule),
		logger: logger.WithField("component", "guard"),
	}

	for _, rule := range BuiltinRules() {
		r := rule
		if err := e.compileAndStore(&r); err != nil {
			return nil, fmt.Errorf("failed to compile built-in rule %s: %w", r.Name, err)
		}
	}

	return e, nil
}

// CheckPlan evaluates every enabled rule against the planned action set.
// Error-severity violations deny the run with a precondition error;
// warning-severity violations are logged and allowed.
func (e *Engine) CheckPlan(ctx context.Context, units []engine.Unit, decisions []engine.Decision, flags engine.RunFlags) error {
	violations, err := e.Evaluate(ctx, Input{Units: units, Decisions: decisions, Flags: flags})
	if err != nil {
		return err
	}

	var denied []string
	for _, v := range violations {
		if v.Severity == SeverityError {
			denied = append(denied, v.Message)
			continue
		}
		e.logger.WithUnitID(v.UnitID).Warnf("guard warning (%s): %s", v.Rule, v.Message)
	}

	if len(denied) > 0 {
		return engine.NewError(engine.ClassPrecondition,
			fmt.Sprintf("guard denied the plan: %s", strings.Join(denied, "; ")), nil).
			WithCode(engine.CodeGuardDenied).
			WithRemediation("adjust the catalog or re-run with the flags the denial names")
	}

	return nil
}

// Evaluate returns every violation of every enabled rule without judging
// severity.
func (e *Engine) Evaluate(ctx context.Context, input Input) ([]Violation, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	// Round-trip through JSON so rules see the wire field names.
	var doc map[string]interface{}
	b, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode guard input: %w", err)
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode guard input: %w", err)
	}

	var violations []Violation
	for _, cr := range e.rules {
		if !cr.rule.Enabled {
			continue
		}

		found, err := e.evaluateRule(ctx, cr, doc)
		if err != nil {
			return nil, fmt.Errorf("rule %s evaluation failed: %w", cr.rule.Name, err)
		}
		violations = append(violations, found...)
	}

	return violations, nil
}

func (e *Engine) evaluateRule(ctx context.Context, cr *compiledRule, doc map[string]interface{}) ([]Violation, error) {
	query := fmt.Sprintf("data.%s.deny", packageName(cr.rule.Rego))

	r := rego.New(
		rego.Module(cr.rule.Name, cr.rule.Rego),
		rego.Query(query),
		rego.Input(doc),
	)

	results, err := r.Eval(ctx)
	if err != nil {
		return nil, err
	}

	var violations []Violation
	for _, result := range results {
		for _, expr := range result.Expressions {
			denySet, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, d := range denySet {
				violations = append(violations, e.toViolation(cr.rule, d))
			}
		}
	}

	return violations, nil
}

func (e *Engine) toViolation(rule *Rule, result interface{}) Violation {
	v := Violation{
		Rule:       rule.Name,
		Severity:   rule.Severity,
		DetectedAt: time.Now().UTC(),
	}

	switch r := result.(type) {
	case string:
		v.Message = r
	case map[string]interface{}:
		if msg, ok := r["message"].(string); ok {
			v.Message = msg
		}
		if sev, ok := r["severity"].(string); ok {
			v.Severity = Severity(sev)
		}
		if unit, ok := r["unit"].(string); ok {
			v.UnitID = unit
		}
	default:
		v.Message = fmt.Sprintf("%v", result)
	}

	return v
}

// LoadRules loads additional rules from .rego files or directories.
func (e *Engine) LoadRules(_ context.Context, paths []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("failed to stat rule path %s: %w", path, err)
		}

		var files []string
		if info.IsDir() {
			err := filepath.Walk(path, func(p string, fi os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if !fi.IsDir() && strings.HasSuffix(p, ".rego") {
					files = append(files, p)
				}
				return nil
			})
			if err != nil {
				return fmt.Errorf("failed to walk rule directory %s: %w", path, err)
			}
		} else {
			files = append(files, path)
		}

		for _, file := range files {
			content, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read rule file %s: %w", file, err)
			}

			rule := &Rule{
				Name:     strings.TrimSuffix(filepath.Base(file), ".rego"),
				Rego:     string(content),
				Severity: SeverityError,
				Enabled:  true,
			}
			if err := e.compileAndStore(rule); err != nil {
				return fmt.Errorf("failed to compile rule %s: %w", rule.Name, err)
			}
		}
	}

	return nil
}

// ListRules returns all loaded rules.
func (e *Engine) ListRules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]Rule, 0, len(e.rules))
	for _, cr := range e.rules {
		rules = append(rules, *cr.rule)
	}
	return rules
}

func (e *Engine) compileAndStore(rule *Rule) error {
	module, err := ast.ParseModule(rule.Name, rule.Rego)
	if err != nil {
		return fmt.Errorf("failed to parse rule: %w", err)
	}

	e.rules[rule.Name] = &compiledRule{
		rule:     rule,
		module:   module,
		compiled: time.Now(),
	}

	e.logger.Debugf("compiled guard rule %s", rule.Name)
	return nil
}

// packageName extracts the package name from Rego source.
func packageName(src string) string {
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			parts := strings.Fields(trimmed)
			if len(parts) >= 2 {
				return parts[1]
			}
		}
	}
	return "hardenctl.guard"
}
