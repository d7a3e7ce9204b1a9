package report

import (
	"fmt"
	"sort"
	"strings"

	"pydeps/internal/engine/graph"
	"pydeps/internal/engine/requirements"
)

// SortedList returns the external package names of a result.
func SortedList(res *graph.Result) []string {
	pkgs := res.Packages()
	out := make([]string, 0, len(pkgs))
	for _, p := range pkgs {
		out = append(out, string(p))
	}
	return out
}

// Grouped maps each group name to its sorted package list.
func Grouped(results map[string]*graph.Result) map[string][]string {
	out := make(map[string][]string, len(results))
	for name, res := range results {
		out[name] = SortedList(res)
	}
	return out
}

// GroupNames returns the keys of a grouped result in order.
func GroupNames[V any](groups map[string]V) []string {
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type DiffResult struct {
	Missing []string `json:"missing"` // generated but not declared
	Unused  []string `json:"unused"`  // declared but never imported
	Changed []Change `json:"changed"` // same distribution, different specifier
	Matched []string `json:"matched"`
}

// Change is a requirement declared with another specifier than generated.
type Change struct {
	Name      string `json:"name"`
	Declared  string `json:"declared"`
	Generated string `json:"generated"`
}

func (d DiffResult) Clean() bool {
	return len(d.Missing) == 0 && len(d.Unused) == 0 && len(d.Changed) == 0
}

// specifier is the part of spec after the distribution name, without spaces.
func specifier(spec string) string {
	spec = strings.TrimSpace(spec)
	rest := strings.TrimPrefix(spec, requirements.RequirementName(spec))
	return strings.Join(strings.Fields(rest), "")
}

// Diff compares declared requirement specifiers against generated ones by
// normalized distribution name. Entries on both sides whose version
// constraints or extras differ are reported as changed.
func Diff(declared, generated []string) DiffResult {
	declaredByName := make(map[string]string, len(declared))
	for _, d := range declared {
		if name := requirements.NormalizeName(requirements.RequirementName(d)); name != "" {
			declaredByName[name] = d
		}
	}
	generatedByName := make(map[string]string, len(generated))
	for _, g := range generated {
		if name := requirements.NormalizeName(requirements.RequirementName(g)); name != "" {
			generatedByName[name] = g
		}
	}

	res := DiffResult{Missing: []string{}, Unused: []string{}, Changed: []Change{}, Matched: []string{}}
	for name, spec := range generatedByName {
		have, ok := declaredByName[name]
		switch {
		case !ok:
			res.Missing = append(res.Missing, spec)
		case specifier(have) != specifier(spec):
			res.Changed = append(res.Changed, Change{Name: name, Declared: have, Generated: spec})
		default:
			res.Matched = append(res.Matched, name)
		}
	}
	for name, spec := range declaredByName {
		if _, ok := generatedByName[name]; !ok {
			res.Unused = append(res.Unused, spec)
		}
	}
	sort.Strings(res.Missing)
	sort.Strings(res.Unused)
	sort.Strings(res.Matched)
	sort.Slice(res.Changed, func(i, j int) bool { return res.Changed[i].Name < res.Changed[j].Name })
	return res
}

// IncludedNames returns the specifiers a writer would emit as real entries.
func IncludedNames(reqs []requirements.Requirement) []string {
	var out []string
	for _, r := range reqs {
		if r.Mode == requirements.Include {
			out = append(out, r.Name)
		}
	}
	return out
}

// NewGroup builds the rendered view of one resolved group.
func NewGroup(name string, roots []string, res *graph.Result, reqs []requirements.Requirement) Group {
	g := Group{
		Name:         name,
		Roots:        roots,
		Visited:      len(res.Visited()),
		Packages:     SortedList(res),
		Requirements: reqs,
	}
	for _, e := range res.Unresolved() {
		g.Unresolved = append(g.Unresolved, fmt.Sprintf("%s: %s", e.Source, e.Raw))
	}
	return g
}
