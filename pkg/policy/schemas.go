package policy

import (
	"context"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas for catalog validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a registry with the built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	sr.RegisterSchema("catalog", builtinCatalogSchema)
	sr.RegisterSchema("unit", builtinUnitSchema)

	return sr
}

// RegisterSchema compiles and registers a CUE schema under the given name.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema validates data against a named schema by CUE
// unification.
func (sr *SchemaRegistry) ValidateAgainstSchema(_ context.Context, schemaName string, data interface{}) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	def := schema.LookupPath(cue.ParsePath("#" + capitalize(schemaName)))
	if !def.Exists() {
		return fmt.Errorf("schema %s has no definition", schemaName)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := def.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	return nil
}

// ListSchemas returns all registered schema names.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	return names
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}

// Built-in schema definitions

const builtinUnitSchema = `
// Unit schema for hardening catalog entries
#Unit: {
	// id is the stable key for this unit
	id: string & =~"^[a-z0-9][a-z0-9._-]*$"

	// phase is the ordered execution phase
	phase: int & >=0

	// depends_on lists unit IDs that must complete first
	depends_on?: [...string]

	// policy is the desired state
	policy: {
		target: "present" | "absent"
		value?: string
	}

	// kind selects the probe/mutator pair
	kind: "package" | "service" | "file" | "mount" | "sysctl" | "disk"

	// target is the kind-specific subject
	target: string & !=""

	destructive?:             bool
	requires_confirmation?:   bool
	overwrites?:              [...string]
	long_running?:            bool
	precondition?:            bool
	non_interactive_default?: "skip" | "apply"
}
`

const builtinCatalogSchema = `
// Catalog schema for hardening catalog documents
#Catalog: {
	version: int & >=1
	name:    string & !=""
	description?: string
	units: [...{...}] & [_, ...]
}
`
