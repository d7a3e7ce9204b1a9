// # internal/engine/graph/builder.go
package graph

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"pydeps/internal/core/errors"
	"pydeps/internal/engine/imports"
	"pydeps/internal/engine/namespace"
)

// ModuleImports is the parser output for one discovered module.
type ModuleImports struct {
	Module      namespace.DiscoveredModule
	Imports     []imports.RawImport
	Diagnostics []imports.Diagnostic
}

type Option func(*Builder)

// WithParentPackages adds an edge to every discovered ancestor package of an
// internal target, mirroring the interpreter running pkg/__init__.py before
// pkg.sub.
func WithParentPackages() Option {
	return func(b *Builder) { b.parentPackages = true }
}

func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

type Builder struct {
	registry       *namespace.Registry
	classifier     *imports.Classifier
	parentPackages bool
	logger         *slog.Logger
}

func NewBuilder(registry *namespace.Registry, opts ...Option) *Builder {
	b := &Builder{
		registry:   registry,
		classifier: imports.NewClassifier(registry),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build classifies every raw import of modules and returns the immutable graph.
// Only configuration-level problems (duplicate ids, modules outside every
// namespace) fail the build; everything else becomes a diagnostic.
func (b *Builder) Build(modules []ModuleImports) (*Graph, error) {
	nodes, inputs, err := b.index(modules)
	if err != nil {
		return nil, err
	}

	var diags []imports.Diagnostic
	ids := make([]namespace.ModuleID, 0, len(inputs))
	for id := range inputs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		in := inputs[id]
		node := nodes[id]
		diags = append(diags, in.Diagnostics...)
		importer := imports.Importer{ID: id, IsPackage: in.Module.IsPackage}

		for _, raw := range in.Imports {
			edges, edgeDiags := b.classify(raw, importer, in.Module.Path, nodes)
			node.Edges = append(node.Edges, edges...)
			diags = append(diags, edgeDiags...)
		}
		if b.parentPackages {
			node.Edges = b.withParents(node.Edges, nodes)
		}
	}

	g := newGraph(nodes, diags)
	b.logger.Debug("dependency graph built",
		"modules", g.NodeCount(),
		"edges", g.EdgeCount(),
		"diagnostics", len(diags))
	return g, nil
}

func (b *Builder) index(modules []ModuleImports) (map[namespace.ModuleID]*Node, map[namespace.ModuleID]ModuleImports, error) {
	nodes := make(map[namespace.ModuleID]*Node, len(modules))
	inputs := make(map[namespace.ModuleID]ModuleImports, len(modules))

	for _, m := range modules {
		id := m.Module.ID
		_, canonical, ok := b.registry.ClassifyPath(string(id))
		if !ok || canonical != id {
			err := errors.New(errors.CodeConfiguration, fmt.Sprintf("module %q is not under any registered namespace", id))
			err = errors.AddContext(err, errors.CtxModule, string(id))
			return nil, nil, errors.AddContext(err, errors.CtxPath, m.Module.Path)
		}

		if existing, dup := nodes[id]; dup {
			if samePath(existing.Module.Path, m.Module.Path) {
				continue
			}
			err := errors.New(errors.CodeDuplicateModule, fmt.Sprintf(
				"module %q is provided by both %s and %s", id, existing.Module.Path, m.Module.Path))
			return nil, nil, errors.AddContext(err, errors.CtxModule, string(id))
		}

		nodes[id] = &Node{Module: m.Module}
		inputs[id] = m
	}
	return nodes, inputs, nil
}

func samePath(a, b string) bool {
	return filepath.Clean(a) == filepath.Clean(b)
}

func (b *Builder) classify(raw imports.RawImport, from imports.Importer, path string, nodes map[namespace.ModuleID]*Node) ([]imports.Edge, []imports.Diagnostic) {
	edge, err := b.classifier.Classify(raw, from)
	if err != nil {
		return []imports.Edge{edge}, []imports.Diagnostic{imports.DiagnosticFromError(from.ID, path, raw.Line, err)}
	}
	if edge.Kind != imports.EdgeInternal {
		return []imports.Edge{edge}, nil
	}

	var out []imports.Edge
	var diags []imports.Diagnostic

	// from pkg import sub, where sub is itself a module
	var subs []imports.Edge
	if raw.From {
		for _, name := range raw.Names {
			if name == "*" {
				continue
			}
			child := edge.Target.Child(name)
			if _, ok := nodes[child]; !ok {
				continue
			}
			sub := edge
			sub.Target = child
			sub.Raw = string(child)
			sub.Names = []string{name}
			subs = append(subs, sub)
		}
	}

	switch {
	case nodes[edge.Target] != nil:
		out = append(out, edge)
	case len(subs) > 0:
		// namespace package without __init__.py; the submodules carry the edge
	default:
		if ancestor, ok := nearestDiscovered(edge.Target, nodes); ok {
			diags = append(diags, imports.Diagnostic{
				Module:  from.ID,
				Path:    path,
				Line:    raw.Line,
				Code:    errors.CodeUnknownModule,
				Message: fmt.Sprintf("import %q has no module file, attributed to %q", edge.Target, ancestor),
			})
			edge.Target = ancestor
			out = append(out, edge)
		} else {
			err := UnknownModuleError(edge.Target)
			err = errors.AddContext(err, errors.CtxImport, raw.String())
			diags = append(diags, imports.DiagnosticFromError(from.ID, path, raw.Line, err))
			edge.Kind = imports.EdgeUnresolved
			edge.Err = err
			edge.Target = ""
			out = append(out, edge)
		}
	}

	return append(out, subs...), diags
}

func nearestDiscovered(id namespace.ModuleID, nodes map[namespace.ModuleID]*Node) (namespace.ModuleID, bool) {
	for _, anc := range id.Ancestors() {
		if _, ok := nodes[anc]; ok {
			return anc, true
		}
	}
	return "", false
}

func (b *Builder) withParents(edges []imports.Edge, nodes map[namespace.ModuleID]*Node) []imports.Edge {
	seen := make(map[namespace.ModuleID]bool)
	for _, e := range edges {
		if e.Kind == imports.EdgeInternal {
			seen[e.Target] = true
		}
	}
	out := edges
	for _, e := range edges {
		if e.Kind != imports.EdgeInternal {
			continue
		}
		for _, anc := range e.Target.Ancestors() {
			if seen[anc] || nodes[anc] == nil {
				continue
			}
			seen[anc] = true
			parent := e
			parent.Target = anc
			parent.Raw = string(anc)
			parent.Names = nil
			out = append(out, parent)
		}
	}
	return out
}
