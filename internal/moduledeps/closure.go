package moduledeps

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrCycle means the module graph is not acyclic.
var ErrCycle = errors.New("module dependency cycle")

const (
	unvisited = iota
	visiting
	done
)

// TopologicalOrder returns the modules with every module after all of its
// dependencies.
func TopologicalOrder(g *Graph) ([]ID, error) {
	state := make(map[ID]int, len(g.Modules))
	order := make([]ID, 0, len(g.Modules))
	var stack []ID

	var visit func(id ID) error
	visit = func(id ID) error {
		switch state[id] {
		case done:
			return nil
		case visiting:
			start := slices.Index(stack, id)
			return fmt.Errorf("%w: %s", ErrCycle, FormatPath(append(slices.Clone(stack[start:]), id)))
		}
		info, ok := g.Modules[id]
		if !ok {
			state[id] = done
			return nil
		}
		state[id] = visiting
		stack = append(stack, id)
		for _, dep := range info.edges() {
			if err := visit(dep); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		order = append(order, id)
		return nil
	}

	for _, id := range g.Modules.SortedIDs() {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// TransitiveClosure maps every module to all modules it depends on,
// directly or not, counting Swift overlay and bridging header
// dependencies as edges. A module is never in its own closure.
func TransitiveClosure(g *Graph) (map[ID]IDSet, error) {
	order, err := TopologicalOrder(g)
	if err != nil {
		return nil, err
	}

	closure := make(map[ID]IDSet, len(order))
	for _, id := range order {
		set := make(IDSet)
		for _, dep := range g.Modules[id].edges() {
			set.Add(dep)
			for d := range closure[dep] {
				set.Add(d)
			}
		}
		delete(set, id)
		closure[id] = set
	}
	return closure, nil
}

// ExplainDependency returns every simple path from the main module to a
// module named target, following direct and overlay edges. Paths are
// sorted; each starts at the main module and ends at the target.
func (g *Graph) ExplainDependency(target string) [][]ID {
	var paths [][]ID
	onPath := make(map[ID]bool)
	var path []ID

	var walk func(id ID)
	walk = func(id ID) {
		info, ok := g.Modules[id]
		if !ok || onPath[id] {
			return
		}
		onPath[id] = true
		path = append(path, id)
		defer func() {
			path = path[:len(path)-1]
			onPath[id] = false
		}()

		for _, dep := range explainEdges(info) {
			if dep.Name == target {
				if _, ok := g.Modules[dep]; ok && !onPath[dep] {
					paths = append(paths, append(slices.Clone(path), dep))
				}
				continue
			}
			walk(dep)
		}
	}

	main := g.MainModuleID()
	if main.Name == target {
		return nil
	}
	walk(main)

	slices.SortFunc(paths, func(a, b []ID) int {
		return slices.CompareFunc(a, b, ID.Compare)
	})
	return slices.CompactFunc(paths, func(a, b []ID) bool { return slices.Equal(a, b) })
}

func explainEdges(info *ModuleInfo) []ID {
	out := slices.Clone(info.DirectDependencies)
	if d, ok := info.Details.(*SwiftTextualDetails); ok {
		out = append(out, d.SwiftOverlayDependencies...)
	}
	return out
}

// FormatPath renders a dependency path as "A -> B -> C".
func FormatPath(path []ID) string {
	parts := make([]string, len(path))
	for i, id := range path {
		parts[i] = id.String()
	}
	return strings.Join(parts, " -> ")
}
