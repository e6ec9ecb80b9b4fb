package engine

import (
	"fmt"
	"sort"
	"strings"
)

// UnitGraph orders a unit catalog for execution. Units are grouped into
// their declared phases, and within each phase sorted topologically by
// their dependencies. The ordering is deterministic for a given catalog:
// ties are broken by declaration order, so two runs over the same catalog
// always process units in the same sequence.
type UnitGraph struct {
	// units maps unit IDs to their definitions
	units map[string]*Unit

	// declOrder maps unit IDs to their position in the catalog
	declOrder map[string]int

	// dependents maps unit IDs to the IDs that depend on them
	dependents map[string][]string

	// inDegree tracks unresolved same-or-later dependencies per unit
	inDegree map[string]int
}

// NewUnitGraph creates an empty unit graph builder.
func NewUnitGraph() *UnitGraph {
	return &UnitGraph{
		units:      make(map[string]*Unit),
		declOrder:  make(map[string]int),
		dependents: make(map[string][]string),
		inDegree:   make(map[string]int),
	}
}

// Order validates the catalog and returns the phases in ascending order,
// each phase's units in dependency order.
func (g *UnitGraph) Order(units []Unit) ([][]Unit, error) {
	if err := g.initialize(units); err != nil {
		return nil, err
	}
	if err := g.detectCycles(); err != nil {
		return nil, err
	}
	return g.buildPhases(units)
}

// initialize indexes the catalog and validates dependency references.
func (g *UnitGraph) initialize(units []Unit) error {
	for i := range units {
		unit := &units[i]
		if unit.ID == "" {
			return NewError(ClassPrecondition, "unit has empty ID", nil).WithCode(CodeValidation)
		}
		if _, exists := g.units[unit.ID]; exists {
			return NewError(ClassPrecondition,
				fmt.Sprintf("duplicate unit ID: %s", unit.ID), nil).WithCode(CodeValidation)
		}
		g.units[unit.ID] = unit
		g.declOrder[unit.ID] = i
	}

	for _, unit := range g.units {
		for _, depID := range unit.DependsOn {
			dep, exists := g.units[depID]
			if !exists {
				return NewError(ClassPrecondition,
					fmt.Sprintf("unit %s depends on undeclared unit %s", unit.ID, depID), nil).
					WithCode(CodeValidation).WithUnit(unit.ID)
			}
			if dep.Phase > unit.Phase {
				return NewError(ClassPrecondition,
					fmt.Sprintf("unit %s (phase %d) depends on later-phase unit %s (phase %d)",
						unit.ID, unit.Phase, depID, dep.Phase), nil).
					WithCode(CodeValidation).WithUnit(unit.ID)
			}
			g.dependents[depID] = append(g.dependents[depID], unit.ID)
			if dep.Phase == unit.Phase {
				g.inDegree[unit.ID]++
			}
		}
	}

	return nil
}

// detectCycles walks the dependency edges depth-first looking for a cycle.
func (g *UnitGraph) detectCycles() error {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)

	var visit func(id string, path []string) error
	visit = func(id string, path []string) error {
		visited[id] = true
		onStack[id] = true
		path = append(path, id)

		for _, dependent := range g.dependents[id] {
			if onStack[dependent] {
				cycle := append(path, dependent)
				return NewError(ClassPrecondition,
					"circular dependency: "+strings.Join(cycle, " -> "), nil).
					WithCode(CodeValidation)
			}
			if !visited[dependent] {
				if err := visit(dependent, path); err != nil {
					return err
				}
			}
		}

		onStack[id] = false
		return nil
	}

	ids := make([]string, 0, len(g.units))
	for id := range g.units {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return g.declOrder[ids[i]] < g.declOrder[ids[j]] })

	for _, id := range ids {
		if !visited[id] {
			if err := visit(id, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// buildPhases groups units by phase and topologically sorts each phase
// with Kahn's algorithm, keeping declaration order among ready units.
func (g *UnitGraph) buildPhases(units []Unit) ([][]Unit, error) {
	byPhase := make(map[int][]*Unit)
	for i := range units {
		unit := &units[i]
		byPhase[unit.Phase] = append(byPhase[unit.Phase], unit)
	}

	phases := make([]int, 0, len(byPhase))
	for phase := range byPhase {
		phases = append(phases, phase)
	}
	sort.Ints(phases)

	ordered := make([][]Unit, 0, len(phases))
	for _, phase := range phases {
		sorted, err := g.sortPhase(byPhase[phase])
		if err != nil {
			return nil, err
		}
		ordered = append(ordered, sorted)
	}
	return ordered, nil
}

func (g *UnitGraph) sortPhase(members []*Unit) ([]Unit, error) {
	inDegree := make(map[string]int, len(members))
	for _, unit := range members {
		inDegree[unit.ID] = g.inDegree[unit.ID]
	}

	ready := make([]*Unit, 0, len(members))
	for _, unit := range members {
		if inDegree[unit.ID] == 0 {
			ready = append(ready, unit)
		}
	}

	sorted := make([]Unit, 0, len(members))
	for len(ready) > 0 {
		// Declaration order keeps the sequence stable across runs.
		sort.Slice(ready, func(i, j int) bool {
			return g.declOrder[ready[i].ID] < g.declOrder[ready[j].ID]
		})
		unit := ready[0]
		ready = ready[1:]
		sorted = append(sorted, *unit)

		for _, depID := range g.dependents[unit.ID] {
			if _, samePhase := inDegree[depID]; !samePhase {
				continue
			}
			inDegree[depID]--
			if inDegree[depID] == 0 {
				ready = append(ready, g.units[depID])
			}
		}
	}

	if len(sorted) != len(members) {
		return nil, NewError(ClassPrecondition, "failed to order all units in phase", nil).
			WithCode(CodeInternal)
	}
	return sorted, nil
}

// ToDOT renders the catalog's dependency graph in DOT format for
// visualization with Graphviz.
func (g *UnitGraph) ToDOT() string {
	var sb strings.Builder
	sb.WriteString("digraph UnitGraph {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n")

	ids := make([]string, 0, len(g.units))
	for id := range g.units {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return g.declOrder[ids[i]] < g.declOrder[ids[j]] })

	for _, id := range ids {
		unit := g.units[id]
		sb.WriteString(fmt.Sprintf("  %q [label=\"%s\\nphase %d\"];\n", id, id, unit.Phase))
	}
	for _, id := range ids {
		for _, depID := range g.units[id].DependsOn {
			sb.WriteString(fmt.Sprintf("  %q -> %q;\n", depID, id))
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}
