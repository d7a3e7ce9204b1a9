// # internal/engine/graph/resolver.go
package graph

import (
	"sort"

	"pydeps/internal/engine/imports"
	"pydeps/internal/engine/namespace"
)

type ResolveOptions struct {
	// SkipLazy stops traversal at imports inside functions and
	// TYPE_CHECKING blocks; their externals are not collected either.
	SkipLazy bool
}

// Resolver flattens the transitive external imports reachable from a set of
// root modules. A Resolver holds no per-call state.
type Resolver struct {
	opts ResolveOptions
}

func NewResolver(opts ResolveOptions) *Resolver {
	return &Resolver{opts: opts}
}

// Resolve runs with default options.
func Resolve(g *Graph, roots []namespace.ModuleID) (*Result, error) {
	return NewResolver(ResolveOptions{}).Resolve(g, roots)
}

// Resolve walks the graph breadth first from roots. Every internal module is
// expanded at most once, so cycles terminate and the result does not depend on
// edge order.
func (r *Resolver) Resolve(g *Graph, roots []namespace.ModuleID) (*Result, error) {
	res := newResult()

	frontier := make([]namespace.ModuleID, 0, len(roots))
	for _, root := range roots {
		if !g.Has(root) {
			return nil, UnknownModuleError(root)
		}
		if res.visited[root] {
			continue
		}
		res.visited[root] = true
		res.roots = append(res.roots, root)
		frontier = append(frontier, root)
	}

	for len(frontier) > 0 {
		m := frontier[0]
		frontier = frontier[1:]
		res.order = append(res.order, m)

		for _, e := range g.edges(m) {
			if r.opts.SkipLazy && e.Lazy {
				continue
			}
			switch e.Kind {
			case imports.EdgeInternal:
				if !res.visited[e.Target] {
					res.visited[e.Target] = true
					frontier = append(frontier, e.Target)
				}
			case imports.EdgeExternal:
				res.addExternal(e)
			case imports.EdgeUnresolved:
				res.unresolved = append(res.unresolved, e)
			}
		}
	}
	return res, nil
}

type packageUse struct {
	sources map[namespace.ModuleID]map[string]bool // source -> dotted targets
	imports map[string]bool
	eager   bool // at least one non-lazy edge
	guarded bool // every edge inside try
}

// Result is the outcome of one resolution.
type Result struct {
	roots      []namespace.ModuleID
	order      []namespace.ModuleID
	visited    map[namespace.ModuleID]bool
	packages   map[imports.PackageKey]*packageUse
	unresolved []imports.Edge
}

func newPackageUse() *packageUse {
	return &packageUse{
		sources: make(map[namespace.ModuleID]map[string]bool),
		imports: make(map[string]bool),
		guarded: true,
	}
}

func newResult() *Result {
	return &Result{
		visited:  make(map[namespace.ModuleID]bool),
		packages: make(map[imports.PackageKey]*packageUse),
	}
}

func (r *Result) addExternal(e imports.Edge) {
	use, ok := r.packages[e.Package]
	if !ok {
		use = newPackageUse()
		r.packages[e.Package] = use
	}
	if use.sources[e.Source] == nil {
		use.sources[e.Source] = make(map[string]bool)
	}
	use.sources[e.Source][e.Raw] = true
	use.imports[e.Raw] = true
	if !e.Lazy {
		use.eager = true
	}
	if !e.Guarded {
		use.guarded = false
	}
}

// Packages returns the external package keys in sorted order.
func (r *Result) Packages() []imports.PackageKey {
	out := make([]imports.PackageKey, 0, len(r.packages))
	for pkg := range r.packages {
		out = append(out, pkg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Result) HasPackage(pkg imports.PackageKey) bool {
	_, ok := r.packages[pkg]
	return ok
}

// Sources returns the visited modules that import pkg directly.
func (r *Result) Sources(pkg imports.PackageKey) []namespace.ModuleID {
	use, ok := r.packages[pkg]
	if !ok {
		return nil
	}
	out := make([]namespace.ModuleID, 0, len(use.sources))
	for id := range use.sources {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SourceImports returns the dotted targets of pkg imported by source.
func (r *Result) SourceImports(pkg imports.PackageKey, source namespace.ModuleID) []string {
	use, ok := r.packages[pkg]
	if !ok {
		return nil
	}
	return sortedKeys(use.sources[source])
}

// Imports returns the full dotted targets seen for pkg, e.g. numpy.linalg.
func (r *Result) Imports(pkg imports.PackageKey) []string {
	use, ok := r.packages[pkg]
	if !ok {
		return nil
	}
	return sortedKeys(use.imports)
}

// AllLazy reports whether pkg is only ever imported lazily.
func (r *Result) AllLazy(pkg imports.PackageKey) bool {
	use, ok := r.packages[pkg]
	return ok && !use.eager
}

// AllGuarded reports whether every import of pkg sits inside a try statement.
func (r *Result) AllGuarded(pkg imports.PackageKey) bool {
	use, ok := r.packages[pkg]
	return ok && use.guarded
}

func (r *Result) Roots() []namespace.ModuleID {
	return append([]namespace.ModuleID(nil), r.roots...)
}

// Visited returns every internal module reached, roots included, sorted.
func (r *Result) Visited() []namespace.ModuleID {
	return sortedIDs(r.visited)
}

// Reached returns visited modules that are not roots.
func (r *Result) Reached() []namespace.ModuleID {
	isRoot := make(map[namespace.ModuleID]bool, len(r.roots))
	for _, root := range r.roots {
		isRoot[root] = true
	}
	var out []namespace.ModuleID
	for _, id := range r.Visited() {
		if !isRoot[id] {
			out = append(out, id)
		}
	}
	return out
}

// Order is the BFS expansion order. Diagnostic only; it depends on edge order.
func (r *Result) Order() []namespace.ModuleID {
	return append([]namespace.ModuleID(nil), r.order...)
}

func (r *Result) Unresolved() []imports.Edge {
	return append([]imports.Edge(nil), r.unresolved...)
}

// Equal compares the package sets and visited sets of two results.
func (r *Result) Equal(other *Result) bool {
	if len(r.packages) != len(other.packages) || len(r.visited) != len(other.visited) {
		return false
	}
	for pkg := range r.packages {
		if _, ok := other.packages[pkg]; !ok {
			return false
		}
	}
	for id := range r.visited {
		if !other.visited[id] {
			return false
		}
	}
	return true
}

// Union merges results into a new one. Resolve(g, A∪B) equals
// Union(Resolve(g, A), Resolve(g, B)).
func Union(results ...*Result) *Result {
	out := newResult()
	seenUnresolved := make(map[string]bool)
	for _, r := range results {
		if r == nil {
			continue
		}
		for _, root := range r.roots {
			if !containsID(out.roots, root) {
				out.roots = append(out.roots, root)
			}
		}
		for _, id := range r.order {
			if !out.visited[id] {
				out.order = append(out.order, id)
			}
			out.visited[id] = true
		}
		for pkg, use := range r.packages {
			dst, ok := out.packages[pkg]
			if !ok {
				dst = newPackageUse()
				out.packages[pkg] = dst
			}
			for src, targets := range use.sources {
				if dst.sources[src] == nil {
					dst.sources[src] = make(map[string]bool)
				}
				for t := range targets {
					dst.sources[src][t] = true
				}
			}
			for imp := range use.imports {
				dst.imports[imp] = true
			}
			dst.eager = dst.eager || use.eager
			dst.guarded = dst.guarded && use.guarded
		}
		for _, e := range r.unresolved {
			key := e.String()
			if !seenUnresolved[key] {
				seenUnresolved[key] = true
				out.unresolved = append(out.unresolved, e)
			}
		}
	}
	return out
}

func containsID(ids []namespace.ModuleID, id namespace.ModuleID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func sortedIDs(set map[namespace.ModuleID]bool) []namespace.ModuleID {
	out := make([]namespace.ModuleID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
