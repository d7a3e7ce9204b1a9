// # internal/engine/graph/detect.go
package graph

import (
	"sort"
	"strings"

	"pydeps/internal/engine/imports"
	"pydeps/internal/engine/namespace"
)

// Cycles returns the internal import cycles found by a depth-first walk. Each
// cycle starts at its smallest module id; the list is sorted.
func (g *Graph) Cycles() [][]namespace.ModuleID {
	var cycles [][]namespace.ModuleID
	visited := make(map[namespace.ModuleID]bool)
	seen := make(map[string]bool)

	for _, id := range g.order {
		if !visited[id] {
			cycles = g.findCycles(id, visited, seen, cycles)
		}
	}

	sort.Slice(cycles, func(i, j int) bool { return cycleKey(cycles[i]) < cycleKey(cycles[j]) })
	return cycles
}

type dfsFrame struct {
	id      namespace.ModuleID
	targets []namespace.ModuleID
	next    int
}

// findCycles walks from start with an explicit stack; path mirrors the stack.
func (g *Graph) findCycles(start namespace.ModuleID, visited map[namespace.ModuleID]bool, seen map[string]bool, cycles [][]namespace.ModuleID) [][]namespace.ModuleID {
	onStack := make(map[namespace.ModuleID]int)
	var stack []dfsFrame
	var path []namespace.ModuleID

	push := func(id namespace.ModuleID) {
		visited[id] = true
		onStack[id] = len(path)
		path = append(path, id)
		stack = append(stack, dfsFrame{id: id, targets: g.internalTargets(id)})
	}
	push(start)

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next == len(top.targets) {
			delete(onStack, top.id)
			path = path[:len(path)-1]
			stack = stack[:len(stack)-1]
			continue
		}
		next := top.targets[top.next]
		top.next++

		if at, ok := onStack[next]; ok {
			cycle := rotateCycle(append([]namespace.ModuleID(nil), path[at:]...))
			if key := cycleKey(cycle); !seen[key] {
				seen[key] = true
				cycles = append(cycles, cycle)
			}
		} else if !visited[next] {
			push(next)
		}
	}
	return cycles
}

func (g *Graph) internalTargets(id namespace.ModuleID) []namespace.ModuleID {
	set := make(map[namespace.ModuleID]bool)
	for _, e := range g.edges(id) {
		if e.Kind == imports.EdgeInternal {
			set[e.Target] = true
		}
	}
	return sortedIDs(set)
}

func rotateCycle(cycle []namespace.ModuleID) []namespace.ModuleID {
	lo := 0
	for i := range cycle {
		if cycle[i] < cycle[lo] {
			lo = i
		}
	}
	return append(cycle[lo:], cycle[:lo]...)
}

func cycleKey(cycle []namespace.ModuleID) string {
	var b strings.Builder
	for _, id := range cycle {
		b.WriteString(string(id))
		b.WriteByte(' ')
	}
	return b.String()
}

// Chain explains why a package is required: Modules runs from a root to the
// module holding Edge, the import of the package.
type Chain struct {
	Modules []namespace.ModuleID
	Edge    imports.Edge
}

// Trace finds the shortest internal import chain from any of roots to a module
// that imports pkg directly. Neighbours are expanded in sorted order, so the
// returned chain is deterministic.
func (g *Graph) Trace(roots []namespace.ModuleID, pkg imports.PackageKey, opts ResolveOptions) (Chain, bool, error) {
	queue := make([]namespace.ModuleID, 0, len(roots))
	prev := make(map[namespace.ModuleID]namespace.ModuleID)
	visited := make(map[namespace.ModuleID]bool)

	sorted := append([]namespace.ModuleID(nil), roots...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	for _, root := range sorted {
		if !g.Has(root) {
			return Chain{}, false, UnknownModuleError(root)
		}
		if !visited[root] {
			visited[root] = true
			queue = append(queue, root)
		}
	}

	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]

		for _, e := range g.edges(curr) {
			if opts.SkipLazy && e.Lazy {
				continue
			}
			if e.Kind == imports.EdgeExternal && e.Package == pkg {
				return Chain{Modules: walkBack(prev, curr), Edge: e}, true, nil
			}
		}

		for _, next := range g.internalTargets(curr) {
			if visited[next] || (opts.SkipLazy && g.onlyLazy(curr, next)) {
				continue
			}
			visited[next] = true
			prev[next] = curr
			queue = append(queue, next)
		}
	}
	return Chain{}, false, nil
}

func (g *Graph) onlyLazy(from, to namespace.ModuleID) bool {
	for _, e := range g.edges(from) {
		if e.Kind == imports.EdgeInternal && e.Target == to && !e.Lazy {
			return false
		}
	}
	return true
}

func walkBack(prev map[namespace.ModuleID]namespace.ModuleID, end namespace.ModuleID) []namespace.ModuleID {
	path := []namespace.ModuleID{end}
	for node := end; ; {
		p, ok := prev[node]
		if !ok {
			break
		}
		path = append(path, p)
		node = p
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
