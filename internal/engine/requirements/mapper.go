// # internal/engine/requirements/mapper.go
package requirements

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	lru "github.com/hashicorp/golang-lru/v2"

	"pydeps/internal/core/errors"
	"pydeps/internal/engine/imports"
	"pydeps/internal/engine/namespace"
)

// DefaultEnv is the environment every lookup falls back to.
const DefaultEnv = "default"

const mappingCacheSize = 256

// Rule maps imports to a pip requirement.
type Rule struct {
	// Requirement is a pip specifier, e.g. "pyyaml>=6".
	Requirement string
	// Import selects import paths: "yaml.*" matches yaml and everything
	// below it, "yaml" matches exactly, other globs use '.' as separator.
	// Empty defaults to "<name>.*".
	Import string
	// Env restricts the rule to one requirements environment.
	Env string
}

type matcher struct {
	requirement string
	base        string
	wildcard    bool
	g           glob.Glob
}

func (m matcher) match(path string) bool {
	switch {
	case m.g != nil:
		return m.g.Match(path)
	case m.wildcard:
		return namespace.HasDottedPrefix(path, m.base)
	default:
		return path == m.base
	}
}

type cacheKey struct {
	path string
	env  string
}

// Mapper resolves import paths to requirement specifiers. Safe for
// concurrent use; lookups are memoized.
type Mapper struct {
	envs   map[string][]matcher
	strict bool
	cache  *lru.Cache[cacheKey, string]
	logger *slog.Logger
}

func NewMapper(rules []Rule, strict bool, logger *slog.Logger) (*Mapper, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cache, err := lru.New[cacheKey, string](mappingCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "create requirement cache")
	}

	m := &Mapper{
		envs:   make(map[string][]matcher),
		strict: strict,
		cache:  cache,
		logger: logger,
	}

	seen := make(map[string]bool)
	for _, rule := range rules {
		env := strings.TrimSpace(rule.Env)
		if env == "" {
			env = DefaultEnv
		}
		name := RequirementName(rule.Requirement)
		if name == "" {
			return nil, errors.New(errors.CodeConfiguration, fmt.Sprintf("invalid requirement %q", rule.Requirement))
		}
		key := NormalizeName(name) + "\x00" + env
		if seen[key] {
			return nil, errors.New(errors.CodeConfiguration, fmt.Sprintf(
				"requirement %q and env %q combination is defined multiple times", name, env))
		}
		seen[key] = true

		pattern := strings.TrimSpace(rule.Import)
		if pattern == "" {
			pattern = strings.ReplaceAll(name, "-", "_") + ".*"
		}
		mt, err := compileMatcher(pattern)
		if err != nil {
			return nil, err
		}
		mt.requirement = strings.TrimSpace(rule.Requirement)
		m.envs[env] = append(m.envs[env], mt)
	}
	return m, nil
}

func compileMatcher(pattern string) (matcher, error) {
	invalid := func(msg string) (matcher, error) {
		return matcher{}, errors.New(errors.CodeConfiguration, fmt.Sprintf("import glob %q: %s", pattern, msg))
	}

	if strings.HasSuffix(pattern, ".*") && !strings.ContainsAny(strings.TrimSuffix(pattern, ".*"), "*?[{") {
		base := strings.TrimSuffix(pattern, ".*")
		if err := namespace.ValidateImportName(base); err != nil {
			return invalid("parts are not valid identifiers")
		}
		return matcher{base: base, wildcard: true}, nil
	}
	if !strings.ContainsAny(pattern, "*?[{") {
		if err := namespace.ValidateImportName(pattern); err != nil {
			return invalid("parts are not valid identifiers")
		}
		return matcher{base: pattern}, nil
	}
	g, err := glob.Compile(pattern, '.')
	if err != nil {
		return invalid(err.Error())
	}
	return matcher{g: g}, nil
}

// Envs lists the environments that have at least one rule.
func (m *Mapper) Envs() []string {
	out := make([]string, 0, len(m.envs))
	for env := range m.envs {
		out = append(out, env)
	}
	sort.Strings(out)
	return out
}

// Map returns the requirement for importPath in env, trying env's rules
// before the default ones. Without a match, strict mappers fail with
// UNMAPPED_REQUIREMENT; otherwise the import root is returned.
func (m *Mapper) Map(importPath, env string) (string, error) {
	if env == "" {
		env = DefaultEnv
	}
	key := cacheKey{path: importPath, env: env}
	if req, ok := m.cache.Get(key); ok {
		return req, nil
	}
	// errors are rebuilt on every call since callers attach context to them
	req, err := m.lookup(importPath, env)
	if err != nil {
		return "", err
	}
	m.cache.Add(key, req)
	return req, nil
}

func (m *Mapper) lookup(importPath, env string) (string, error) {
	if env != DefaultEnv {
		rules, ok := m.envs[env]
		if !ok {
			return "", errors.New(errors.CodeConfiguration, fmt.Sprintf("env %q has not been defined for any requirement", env))
		}
		for _, mt := range rules {
			if mt.match(importPath) {
				return mt.requirement, nil
			}
		}
	}
	for _, mt := range m.envs[DefaultEnv] {
		if mt.match(importPath) {
			return mt.requirement, nil
		}
	}

	if m.strict {
		err := errors.New(errors.CodeUnmappedRequirement, fmt.Sprintf(
			"could not find a mapped requirement for import %q; add a [[versions]] entry or disable strict_requirements", importPath))
		return "", errors.AddContext(err, errors.CtxImport, importPath)
	}
	root := string(imports.PackageKeyOf(importPath))
	m.logger.Warn("no requirement mapping, using the import root", "import", importPath, "requirement", root)
	return root, nil
}

// RequirementName extracts the distribution name from a PEP 508 specifier.
func RequirementName(spec string) string {
	spec = strings.TrimSpace(spec)
	end := 0
	for end < len(spec) {
		c := spec[end]
		if c == '-' || c == '_' || c == '.' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			end++
			continue
		}
		break
	}
	return spec[:end]
}

// NormalizeName applies PEP 503 normalization: lowercase, runs of - _ .
// collapsed to a single dash.
func NormalizeName(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if r == '-' || r == '_' || r == '.' {
			if !dash {
				b.WriteByte('-')
			}
			dash = true
			continue
		}
		dash = false
		b.WriteRune(r)
	}
	return strings.Trim(b.String(), "-")
}
