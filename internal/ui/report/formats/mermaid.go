package formats

import (
	"fmt"
	"sort"
	"strings"

	"pydeps/internal/engine/graph"
	"pydeps/internal/engine/imports"
	"pydeps/internal/engine/namespace"
)

const (
	externalAggregationThreshold = 10
	externalAggregateNodeID      = "__external_aggregate__"
	mermaidInit                  = "%%{init: {'theme': 'base', 'themeVariables': {'textColor': '#000000', 'primaryTextColor': '#000000', 'lineColor': '#333333'}, 'flowchart': {'nodeSpacing': 80, 'rankSpacing': 110, 'curve': 'basis'}}}%%\n"
)

// MermaidGenerator draws the internal module graph, grouped by namespace,
// with external packages as leaf nodes.
type MermaidGenerator struct {
	graph     *graph.Graph
	scope     map[namespace.ModuleID]bool
	externals bool
}

func NewMermaidGenerator(g *graph.Graph) *MermaidGenerator {
	return &MermaidGenerator{graph: g, externals: true}
}

// SetScope limits the diagram to the modules a resolution visited.
func (m *MermaidGenerator) SetScope(res *graph.Result) {
	if res == nil {
		m.scope = nil
		return
	}
	m.scope = make(map[namespace.ModuleID]bool)
	for _, id := range res.Visited() {
		m.scope[id] = true
	}
}

func (m *MermaidGenerator) SetShowExternal(show bool) {
	m.externals = show
}

func (m *MermaidGenerator) inScope(id namespace.ModuleID) bool {
	return m.scope == nil || m.scope[id]
}

func (m *MermaidGenerator) Generate() (string, error) {
	var b strings.Builder
	b.WriteString(mermaidInit)
	b.WriteString("flowchart LR\n")

	var moduleNames []string
	byNamespace := make(map[string][]string)
	for _, id := range m.graph.Modules() {
		if !m.inScope(id) {
			continue
		}
		node, err := m.graph.Node(id)
		if err != nil {
			return "", err
		}
		moduleNames = append(moduleNames, string(id))
		byNamespace[node.Module.Namespace] = append(byNamespace[node.Module.Namespace], string(id))
	}

	type link struct{ from, to string }
	var internal []link
	for _, e := range m.graph.InternalEdges() {
		if m.inScope(e[0]) && m.inScope(e[1]) {
			internal = append(internal, link{string(e[0]), string(e[1])})
		}
	}

	externalEdges := make(map[string]map[string]bool)
	externalSet := make(map[string]bool)
	if m.externals {
		for _, from := range moduleNames {
			edges, _ := m.graph.Edges(namespace.ModuleID(from))
			for _, e := range edges {
				if e.Kind != imports.EdgeExternal {
					continue
				}
				if externalEdges[from] == nil {
					externalEdges[from] = make(map[string]bool)
				}
				externalEdges[from][string(e.Package)] = true
				externalSet[string(e.Package)] = true
			}
		}
	}
	externalNames := sortedSet(externalSet)
	aggregate := len(externalNames) > externalAggregationThreshold

	allNames := append(append([]string{}, moduleNames...), prefixAll("ext:", externalNames)...)
	if aggregate {
		allNames = append(allNames, externalAggregateNodeID)
	}
	ids := makeIDs(allNames)

	namespaces := make([]string, 0, len(byNamespace))
	for ns := range byNamespace {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)
	for _, ns := range namespaces {
		b.WriteString(fmt.Sprintf("  subgraph ns_%s[\"%s\"]\n", sanitizeID(ns), escapeLabel(ns)))
		for _, name := range byNamespace[ns] {
			b.WriteString(fmt.Sprintf("    %s[\"%s\"]\n", ids[name], escapeLabel(name)))
		}
		b.WriteString("  end\n")
	}
	if aggregate {
		b.WriteString(fmt.Sprintf("  %s[\"External\\n(%d packages)\"]\n", ids[externalAggregateNodeID], len(externalNames)))
	} else {
		for _, name := range externalNames {
			b.WriteString(fmt.Sprintf("  %s([\"%s\"])\n", ids["ext:"+name], escapeLabel(name)))
		}
	}

	b.WriteString("\n")
	if len(moduleNames) > 0 {
		b.WriteString("  classDef internalNode fill:#f7fbff,stroke:#4d6480,stroke-width:1px,color:#000000;\n")
		b.WriteString("  class " + strings.Join(toIDs(moduleNames, ids), ",") + " internalNode;\n")
	}
	if len(externalNames) > 0 {
		b.WriteString("  classDef externalNode fill:#efefef,stroke:#808080,stroke-dasharray:4 3,color:#000000;\n")
		if aggregate {
			b.WriteString(fmt.Sprintf("  class %s externalNode;\n", ids[externalAggregateNodeID]))
		} else {
			b.WriteString("  class " + strings.Join(toIDs(prefixAll("ext:", externalNames), ids), ",") + " externalNode;\n")
		}
	}

	cycleEdges, cycleModules := m.cycleSets()
	if cycleNames := intersectOrdered(moduleNames, cycleModules); len(cycleNames) > 0 {
		b.WriteString("  classDef cycleNode fill:#ffecec,stroke:#cc0000,stroke-width:2px,color:#000000;\n")
		b.WriteString("  class " + strings.Join(toIDs(cycleNames, ids), ",") + " cycleNode;\n")
	}

	b.WriteString("\n")
	linkIndex := 0
	var cycleLinks, externalLinks []int
	for _, l := range internal {
		label := ""
		if cycleEdges[l.from+"->"+l.to] {
			label = "|CYCLE|"
			cycleLinks = append(cycleLinks, linkIndex)
		}
		b.WriteString(fmt.Sprintf("  %s -->%s %s\n", ids[l.from], label, ids[l.to]))
		linkIndex++
	}
	for _, from := range moduleNames {
		targets := externalEdges[from]
		if len(targets) == 0 {
			continue
		}
		if aggregate {
			b.WriteString(fmt.Sprintf("  %s -.->|ext:%d| %s\n", ids[from], len(targets), ids[externalAggregateNodeID]))
			externalLinks = append(externalLinks, linkIndex)
			linkIndex++
			continue
		}
		for _, to := range sortedSet(targets) {
			b.WriteString(fmt.Sprintf("  %s -.-> %s\n", ids[from], ids["ext:"+to]))
			externalLinks = append(externalLinks, linkIndex)
			linkIndex++
		}
	}

	if len(cycleLinks) > 0 {
		b.WriteString(fmt.Sprintf("  linkStyle %s stroke:#cc0000,stroke-width:3px;\n", joinInts(cycleLinks)))
	}
	if len(externalLinks) > 0 {
		b.WriteString(fmt.Sprintf("  linkStyle %s stroke:#777777,stroke-dasharray:4 3;\n", joinInts(externalLinks)))
	}
	return b.String(), nil
}

func (m *MermaidGenerator) cycleSets() (map[string]bool, map[string]bool) {
	edges := make(map[string]bool)
	modules := make(map[string]bool)
	for _, cycle := range m.graph.Cycles() {
		for i, id := range cycle {
			next := cycle[(i+1)%len(cycle)]
			edges[string(id)+"->"+string(next)] = true
			modules[string(id)] = true
		}
	}
	return edges, modules
}

func prefixAll(prefix string, names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = prefix + n
	}
	return out
}

func sortedSet(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func toIDs(names []string, ids map[string]string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if id, ok := ids[name]; ok {
			out = append(out, id)
		}
	}
	return out
}

func intersectOrdered(ordered []string, set map[string]bool) []string {
	out := make([]string, 0)
	for _, name := range ordered {
		if set[name] {
			out = append(out, name)
		}
	}
	return out
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = fmt.Sprintf("%d", n)
	}
	return strings.Join(parts, ",")
}
