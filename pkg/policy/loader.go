package policy

import (
	"context"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/hardenctl/hardenctl/pkg/engine"
)

// Loader parses and validates catalog documents.
type Loader struct {
	registry  *SchemaRegistry
	validator *validator.Validate
}

// NewLoader creates a loader with the built-in schemas.
func NewLoader() *Loader {
	return &Loader{
		registry:  NewSchemaRegistry(),
		validator: validator.New(),
	}
}

// LoadFile reads, parses and validates a catalog file.
func (l *Loader) LoadFile(ctx context.Context, path string) (*Catalog, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, engine.NewError(engine.ClassPrecondition,
			fmt.Sprintf("failed to read catalog %s", path), err).
			WithCode(engine.CodeNotFound)
	}
	return l.Load(ctx, content)
}

// Load parses and validates a catalog document.
func (l *Loader) Load(ctx context.Context, content []byte) (*Catalog, error) {
	// Schema unification first: it produces the clearest message for a
	// structurally malformed document.
	var raw map[string]interface{}
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return nil, engine.NewError(engine.ClassPrecondition,
			"failed to parse catalog YAML", err).WithCode(engine.CodeValidation)
	}
	if err := l.registry.ValidateAgainstSchema(ctx, "catalog", raw); err != nil {
		return nil, engine.NewError(engine.ClassPrecondition,
			"catalog failed schema validation", err).WithCode(engine.CodeValidation)
	}

	var catalog Catalog
	if err := yaml.Unmarshal(content, &catalog); err != nil {
		return nil, engine.NewError(engine.ClassPrecondition,
			"failed to decode catalog", err).WithCode(engine.CodeValidation)
	}

	for i := range catalog.Units {
		var unitRaw map[string]interface{}
		b, err := yaml.Marshal(catalog.Units[i])
		if err == nil {
			if err := yaml.Unmarshal(b, &unitRaw); err == nil {
				if err := l.registry.ValidateAgainstSchema(ctx, "unit", unitRaw); err != nil {
					return nil, engine.NewError(engine.ClassPrecondition,
						fmt.Sprintf("unit %s failed schema validation", catalog.Units[i].ID), err).
						WithCode(engine.CodeValidation).WithUnit(catalog.Units[i].ID)
				}
			}
		}
	}

	if err := l.validator.Struct(&catalog); err != nil {
		return nil, engine.NewError(engine.ClassPrecondition,
			"catalog failed field validation", err).WithCode(engine.CodeValidation)
	}

	if err := catalog.Validate(); err != nil {
		return nil, err
	}

	return &catalog, nil
}
