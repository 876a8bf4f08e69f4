package op

import (
	"fmt"
	"slices"
)

// DependencyTable maps a dependent category to the categories it depends on.
//
// Within one flushed batch, every operation of a dependency category starts
// before any operation of its dependent categories. The table must be
// acyclic; Validate enforces this.
type DependencyTable map[Category][]Category

// DefaultDependencies returns the built-in dependency table:
//
//	style-apply   <- style-init
//	data-add      <- style-init
//	data-update   <- style-init
//	layout-set    <- data-add
//	layout-update <- data-add
//	algorithm-run <- data-add
//	camera-update <- layout-set
//	render-update <- style-apply, data-add, layout-update
func DefaultDependencies() DependencyTable {
	return DependencyTable{
		StyleApply:   {StyleInit},
		DataAdd:      {StyleInit},
		DataUpdate:   {StyleInit},
		LayoutSet:    {DataAdd},
		LayoutUpdate: {DataAdd},
		AlgorithmRun: {DataAdd},
		CameraUpdate: {LayoutSet},
		RenderUpdate: {StyleApply, DataAdd, LayoutUpdate},
	}
}

// Clone returns a deep copy so callers cannot mutate a scheduler's table.
func (t DependencyTable) Clone() DependencyTable {
	out := make(DependencyTable, len(t))
	for dependent, deps := range t {
		out[dependent] = append([]Category(nil), deps...)
	}
	return out
}

// DependsOn returns the direct dependencies of c.
func (t DependencyTable) DependsOn(c Category) []Category {
	return append([]Category(nil), t[c]...)
}

// Validate checks that every category in the table is known, that no
// category depends on itself and that the table is acyclic.
func (t DependencyTable) Validate() error {
	for dependent, deps := range t {
		if !dependent.Valid() {
			return fmt.Errorf("dependency table: unknown category %q", dependent)
		}
		for _, dep := range deps {
			if !dep.Valid() {
				return fmt.Errorf("dependency table: %s depends on unknown category %q", dependent, dep)
			}
			if dep == dependent {
				return &CycleError{Categories: []Category{dependent}}
			}
		}
	}
	if _, err := t.Order(allCategories); err != nil {
		return err
	}
	return nil
}

// Dependents returns every category that transitively depends on any of
// roots, in declaration order. Roots themselves are not included unless
// they depend on another root.
func (t DependencyTable) Dependents(roots ...Category) []Category {
	reached := make(map[Category]bool)
	frontier := append([]Category(nil), roots...)
	for len(frontier) > 0 {
		next := frontier[0]
		frontier = frontier[1:]
		for dependent, deps := range t {
			if reached[dependent] || !slices.Contains(deps, next) {
				continue
			}
			reached[dependent] = true
			frontier = append(frontier, dependent)
		}
	}

	out := make([]Category, 0, len(reached))
	for _, c := range allCategories {
		if reached[c] {
			out = append(out, c)
		}
	}
	return out
}

// Order topologically sorts the categories in present using only the edges
// between present categories, directed dependency -> dependent.
//
// Duplicates in present are ignored. Among categories that are ready at the
// same time, the one appearing first in present wins, so independent
// categories keep their first-admission order.
//
// Returns a *CycleError naming the unsorted categories if the restricted
// graph has a cycle.
func (t DependencyTable) Order(present []Category) ([]Category, error) {
	position := make(map[Category]int, len(present))
	nodes := make([]Category, 0, len(present))
	for _, c := range present {
		if _, seen := position[c]; seen {
			continue
		}
		position[c] = len(nodes)
		nodes = append(nodes, c)
	}

	indegree := make([]int, len(nodes))
	dependents := make([][]int, len(nodes))
	for i, c := range nodes {
		for _, dep := range t[c] {
			j, ok := position[dep]
			if !ok {
				continue
			}
			// edge j -> i; a self-dependency never reaches indegree 0
			dependents[j] = append(dependents[j], i)
			indegree[i]++
		}
	}

	ready := make([]int, 0, len(nodes))
	for i, d := range indegree {
		if d == 0 {
			ready = append(ready, i)
		}
	}

	out := make([]Category, 0, len(nodes))
	for len(ready) > 0 {
		// ready is kept sorted by position; take the earliest.
		u := ready[0]
		ready = ready[1:]
		out = append(out, nodes[u])

		for _, v := range dependents[u] {
			indegree[v]--
			if indegree[v] == 0 {
				idx, _ := slices.BinarySearch(ready, v)
				ready = slices.Insert(ready, idx, v)
			}
		}
	}

	if len(out) != len(nodes) {
		var stuck []Category
		for i, d := range indegree {
			if d > 0 {
				stuck = append(stuck, nodes[i])
			}
		}
		return nil, &CycleError{Categories: stuck}
	}

	return out, nil
}
