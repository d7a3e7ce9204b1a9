package graph

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	"pydeps/internal/core/errors"
	"pydeps/internal/engine/namespace"
)

// Select expands root patterns into module ids. Patterns are globs over dotted
// ids: `*` stays within one component, `**` crosses dots. A literal pattern
// naming no module, or a glob matching nothing, yields an UnknownModuleError.
func (g *Graph) Select(patterns, excludes []string) ([]namespace.ModuleID, error) {
	excl := make([]glob.Glob, 0, len(excludes))
	for _, p := range excludes {
		m, err := compileModuleGlob(p)
		if err != nil {
			return nil, err
		}
		excl = append(excl, m)
	}

	selected := make(map[namespace.ModuleID]bool)
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if !hasGlobMeta(p) {
			id := namespace.ModuleID(p)
			if !g.Has(id) {
				return nil, UnknownModuleError(id)
			}
			if !excluded(string(id), excl) {
				selected[id] = true
			}
			continue
		}

		m, err := compileModuleGlob(p)
		if err != nil {
			return nil, err
		}
		matched := false
		for _, id := range g.order {
			if m.Match(string(id)) {
				matched = true
				if !excluded(string(id), excl) {
					selected[id] = true
				}
			}
		}
		if !matched {
			err := errors.New(errors.CodeUnknownModule, fmt.Sprintf("root pattern %q matched no modules", p))
			return nil, errors.AddContext(err, errors.CtxModule, p)
		}
	}
	return sortedIDs(selected), nil
}

func compileModuleGlob(pattern string) (glob.Glob, error) {
	m, err := glob.Compile(strings.TrimSpace(pattern), '.')
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeConfiguration, fmt.Sprintf("invalid module pattern %q", pattern))
	}
	return m, nil
}

func hasGlobMeta(p string) bool {
	return strings.ContainsAny(p, "*?[{")
}

func excluded(id string, excl []glob.Glob) bool {
	for _, m := range excl {
		if m.Match(id) {
			return true
		}
	}
	return false
}
