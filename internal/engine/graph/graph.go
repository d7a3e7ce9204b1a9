// # internal/engine/graph/graph.go
package graph

import (
	"fmt"
	"sort"

	"pydeps/internal/core/errors"
	"pydeps/internal/engine/imports"
	"pydeps/internal/engine/namespace"
)

// Node is one discovered module and its outgoing classified edges.
type Node struct {
	Module namespace.DiscoveredModule
	Edges  []imports.Edge
}

// Graph maps every discovered module to its edges. It is immutable once
// returned by Builder.Build, so concurrent readers need no locking.
type Graph struct {
	nodes       map[namespace.ModuleID]*Node
	order       []namespace.ModuleID
	diagnostics []imports.Diagnostic
	edgeCount   int
}

// UnknownModuleError reports a module id that is not a node of the graph.
func UnknownModuleError(id namespace.ModuleID) error {
	err := errors.New(errors.CodeUnknownModule, fmt.Sprintf("unknown module %q", id))
	return errors.AddContext(err, errors.CtxModule, string(id))
}

func (g *Graph) Has(id namespace.ModuleID) bool {
	_, ok := g.nodes[id]
	return ok
}

// Node returns a copy of the node for id.
func (g *Graph) Node(id namespace.ModuleID) (Node, error) {
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, UnknownModuleError(id)
	}
	return Node{Module: n.Module, Edges: append([]imports.Edge(nil), n.Edges...)}, nil
}

// Edges returns the outgoing edges of id in source order.
func (g *Graph) Edges(id namespace.ModuleID) ([]imports.Edge, error) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, UnknownModuleError(id)
	}
	return append([]imports.Edge(nil), n.Edges...), nil
}

// edges is the non-copying accessor used by traversals inside the package.
func (g *Graph) edges(id namespace.ModuleID) []imports.Edge {
	if n, ok := g.nodes[id]; ok {
		return n.Edges
	}
	return nil
}

// Modules returns every module id in sorted order.
func (g *Graph) Modules() []namespace.ModuleID {
	return append([]namespace.ModuleID(nil), g.order...)
}

// Namespace returns the modules discovered under roots tagged name.
func (g *Graph) Namespace(name string) []namespace.ModuleID {
	var out []namespace.ModuleID
	for _, id := range g.order {
		if g.nodes[id].Module.Namespace == name {
			out = append(out, id)
		}
	}
	return out
}

func (g *Graph) Diagnostics() []imports.Diagnostic {
	return append([]imports.Diagnostic(nil), g.diagnostics...)
}

func (g *Graph) NodeCount() int { return len(g.nodes) }

func (g *Graph) EdgeCount() int { return g.edgeCount }

// InternalEdges lists deduplicated source->target pairs between modules,
// sorted, for graph renderers.
func (g *Graph) InternalEdges() [][2]namespace.ModuleID {
	var out [][2]namespace.ModuleID
	for _, id := range g.order {
		seen := make(map[namespace.ModuleID]bool)
		for _, e := range g.nodes[id].Edges {
			if e.Kind != imports.EdgeInternal || seen[e.Target] {
				continue
			}
			seen[e.Target] = true
			out = append(out, [2]namespace.ModuleID{id, e.Target})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i][0] == out[j][0] {
			return out[i][1] < out[j][1]
		}
		return out[i][0] < out[j][0]
	})
	return out
}

func newGraph(nodes map[namespace.ModuleID]*Node, diags []imports.Diagnostic) *Graph {
	g := &Graph{
		nodes:       nodes,
		order:       make([]namespace.ModuleID, 0, len(nodes)),
		diagnostics: diags,
	}
	for id := range nodes {
		g.order = append(g.order, id)
	}
	sort.Slice(g.order, func(i, j int) bool { return g.order[i] < g.order[j] })

	for _, n := range nodes {
		g.edgeCount += len(n.Edges)
	}

	sort.SliceStable(g.diagnostics, func(i, j int) bool {
		a, b := g.diagnostics[i], g.diagnostics[j]
		if a.Module != b.Module {
			return a.Module < b.Module
		}
		return a.Line < b.Line
	})
	return g
}
