package policy

import (
	"fmt"

	"github.com/hardenctl/hardenctl/pkg/engine"
)

// Catalog is a declarative set of units to converge, loaded from YAML or
// built in.
type Catalog struct {
	// Version is the catalog format version.
	Version int `yaml:"version" json:"version" validate:"required,gte=1"`

	// Name identifies the catalog in logs and run output.
	Name string `yaml:"name" json:"name" validate:"required"`

	// Description is an optional human-readable summary.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Units are the configuration targets, in declaration order.
	// Declaration order breaks ties within a phase, so a catalog fully
	// determines its execution sequence.
	Units []engine.Unit `yaml:"units" json:"units" validate:"required,min=1,dive"`
}

// Validate runs the semantic checks struct tags cannot express.
func (c *Catalog) Validate() error {
	seen := make(map[string]struct{}, len(c.Units))
	for i := range c.Units {
		u := &c.Units[i]
		if _, dup := seen[u.ID]; dup {
			return engine.NewError(engine.ClassPrecondition,
				fmt.Sprintf("duplicate unit ID: %s", u.ID), nil).
				WithCode(engine.CodeValidation)
		}
		seen[u.ID] = struct{}{}

		if err := u.Validate(); err != nil {
			return err
		}
	}

	for i := range c.Units {
		u := &c.Units[i]
		for _, dep := range u.DependsOn {
			if _, ok := seen[dep]; !ok {
				return engine.NewError(engine.ClassPrecondition,
					fmt.Sprintf("unit %s depends on undeclared unit %s", u.ID, dep), nil).
					WithCode(engine.CodeValidation).WithUnit(u.ID)
			}
		}
	}

	return nil
}

// Unit returns the unit with the given ID, or nil.
func (c *Catalog) Unit(id string) *engine.Unit {
	for i := range c.Units {
		if c.Units[i].ID == id {
			return &c.Units[i]
		}
	}
	return nil
}
