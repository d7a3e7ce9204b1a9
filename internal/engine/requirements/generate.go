// # internal/engine/requirements/generate.go
package requirements

import (
	"fmt"
	"sort"
	"strings"

	"pydeps/internal/core/errors"
	"pydeps/internal/engine/graph"
	"pydeps/internal/engine/imports"
	"pydeps/internal/engine/namespace"
)

// WriteMode decides how a requirement appears in written outputs. Higher
// values win when rules combine.
type WriteMode int

const (
	Include WriteMode = iota
	Comment
	Exclude
)

func (m WriteMode) String() string {
	switch m {
	case Include:
		return "include"
	case Comment:
		return "comment"
	case Exclude:
		return "exclude"
	}
	return fmt.Sprintf("WriteMode(%d)", int(m))
}

func ParseWriteMode(s string) (WriteMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "include":
		return Include, nil
	case "comment":
		return Comment, nil
	case "exclude":
		return Exclude, nil
	}
	return Include, errors.New(errors.CodeConfiguration, fmt.Sprintf("unknown write mode %q, expected include, comment or exclude", s))
}

func maxMode(a, b WriteMode) WriteMode {
	if b > a {
		return b
	}
	return a
}

// Rules are the write modes applied to standard-library, lazy-only and
// try-guarded requirements.
type Rules struct {
	Builtin WriteMode
	Lazy    WriteMode
	Guarded WriteMode
}

func DefaultRules() Rules {
	return Rules{Builtin: Exclude, Lazy: Comment, Guarded: Include}
}

// Source is one module contributing to a requirement.
type Source struct {
	Module  namespace.ModuleID
	Imports []string
	AllLazy bool
	Mode    WriteMode
}

// Requirement is one output line with its provenance.
type Requirement struct {
	Name     string // requirement specifier as configured, or the import root
	Packages []imports.PackageKey
	Sources  []Source
	Builtin  bool
	AllLazy  bool
	// AllGuarded is set when every import sits in a try block, the usual
	// shape of an optional dependency.
	AllGuarded bool
	Mode       WriteMode
}

// Generate maps the packages of all to requirements. explicit is the same
// resolution with lazy imports skipped; requirements absent from it are
// lazy-only. A nil explicit treats everything as eager.
func Generate(all, explicit *graph.Result, mapper *Mapper, env string, rules Rules) ([]Requirement, error) {
	type sourceUse struct {
		imports map[string]bool
		eager   bool
	}
	type reqUse struct {
		packages map[imports.PackageKey]bool
		sources  map[namespace.ModuleID]*sourceUse
		builtin  bool
		eager    bool
		guarded  bool
	}
	byName := make(map[string]*reqUse)
	var unmapped []string

	for _, pkg := range all.Packages() {
		builtin := IsStdlib(pkg)
		for _, source := range all.Sources(pkg) {
			for _, imp := range all.SourceImports(pkg, source) {
				name := string(pkg)
				if !builtin {
					req, err := mapper.Map(imp, env)
					if err != nil {
						if errors.IsCode(err, errors.CodeUnmappedRequirement) {
							unmapped = append(unmapped, imp)
							continue
						}
						return nil, err
					}
					name = req
				}

				use, ok := byName[name]
				if !ok {
					use = &reqUse{
						packages: make(map[imports.PackageKey]bool),
						sources:  make(map[namespace.ModuleID]*sourceUse),
						builtin:  true,
						guarded:  true,
					}
					byName[name] = use
				}
				use.packages[pkg] = true
				use.builtin = use.builtin && builtin
				use.guarded = use.guarded && all.AllGuarded(pkg)

				src, ok := use.sources[source]
				if !ok {
					src = &sourceUse{imports: make(map[string]bool)}
					use.sources[source] = src
				}
				src.imports[imp] = true
				if explicit == nil || importedEagerly(explicit, pkg, source, imp) {
					src.eager = true
					use.eager = true
				}
			}
		}
	}

	if len(unmapped) > 0 {
		return nil, unmappedError(unmapped)
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := NormalizeName(RequirementName(names[i])), NormalizeName(RequirementName(names[j]))
		if a == b {
			return names[i] < names[j]
		}
		return a < b
	})

	out := make([]Requirement, 0, len(names))
	for _, name := range names {
		use := byName[name]
		req := Requirement{
			Name:       name,
			Builtin:    use.builtin,
			AllLazy:    !use.eager,
			AllGuarded: use.guarded,
		}
		for pkg := range use.packages {
			req.Packages = append(req.Packages, pkg)
		}
		sort.Slice(req.Packages, func(i, j int) bool { return req.Packages[i] < req.Packages[j] })

		for id, src := range use.sources {
			s := Source{Module: id, AllLazy: !src.eager}
			for imp := range src.imports {
				s.Imports = append(s.Imports, imp)
			}
			sort.Strings(s.Imports)
			s.Mode = applyRules(Include, req.Builtin, s.AllLazy, rules)
			req.Sources = append(req.Sources, s)
		}
		sort.Slice(req.Sources, func(i, j int) bool { return req.Sources[i].Module < req.Sources[j].Module })

		req.Mode = applyRules(Include, req.Builtin, req.AllLazy, rules)
		if req.AllGuarded {
			req.Mode = maxMode(req.Mode, rules.Guarded)
		}
		out = append(out, req)
	}
	return out, nil
}

func importedEagerly(explicit *graph.Result, pkg imports.PackageKey, source namespace.ModuleID, imp string) bool {
	for _, x := range explicit.SourceImports(pkg, source) {
		if x == imp {
			return true
		}
	}
	return false
}

func applyRules(mode WriteMode, builtin, lazy bool, rules Rules) WriteMode {
	if builtin {
		mode = maxMode(mode, rules.Builtin)
	}
	if lazy {
		mode = maxMode(mode, rules.Lazy)
	}
	return mode
}

func unmappedError(paths []string) error {
	sort.Strings(paths)
	roots := make(map[string]bool)
	uniq := paths[:0]
	for i, p := range paths {
		if i > 0 && p == paths[i-1] {
			continue
		}
		uniq = append(uniq, p)
		roots[string(imports.PackageKeyOf(p))] = true
	}
	rootList := make([]string, 0, len(roots))
	for r := range roots {
		rootList = append(rootList, r)
	}
	sort.Strings(rootList)
	err := errors.New(errors.CodeUnmappedRequirement, fmt.Sprintf(
		"could not find mapped requirements for roots %v, imports %v", rootList, uniq))
	return errors.AddContext(err, errors.CtxImport, strings.Join(uniq, ","))
}

// Visible filters out excluded requirements and excluded sources.
func Visible(reqs []Requirement) []Requirement {
	out := make([]Requirement, 0, len(reqs))
	for _, r := range reqs {
		if r.Mode == Exclude {
			continue
		}
		sources := make([]Source, 0, len(r.Sources))
		for _, s := range r.Sources {
			if s.Mode != Exclude {
				sources = append(sources, s)
			}
		}
		r.Sources = sources
		out = append(out, r)
	}
	return out
}
