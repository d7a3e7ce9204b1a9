package namespace

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"pydeps/internal/core/errors"
)

// Root is a declared search boundary. Immutable once registered.
type Root struct {
	// Name is the namespace tag; several roots may share one tag.
	Name string
	// Prefix is the canonical base module path, e.g. "pkg" or "pkg.sub".
	Prefix string
	// Paths are the filesystem locations the prefix maps to.
	Paths []string
	// Aliases are alternative import prefixes rewritten to Prefix.
	Aliases []string
}

func (r Root) sameMapping(other Root) bool {
	a := normalizePaths(r.Paths)
	b := normalizePaths(other.Paths)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func normalizePaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, filepath.Clean(p))
	}
	sort.Strings(out)
	return out
}

func cloneRoot(r Root) Root {
	r.Paths = append([]string(nil), r.Paths...)
	r.Aliases = append([]string(nil), r.Aliases...)
	return r
}

// Registry holds namespace roots keyed by canonical prefix. Append-only.
type Registry struct {
	mu      sync.RWMutex
	roots   map[string]Root
	aliases map[string]string // alias prefix -> canonical prefix
}

func NewRegistry() *Registry {
	return &Registry{
		roots:   make(map[string]Root),
		aliases: make(map[string]string),
	}
}

// Register adds root. Registering an identical root twice is a no-op.
func (r *Registry) Register(root Root) error {
	root.Prefix = strings.TrimSpace(root.Prefix)
	if err := ValidateImportName(root.Prefix); err != nil {
		return errors.Wrap(err, errors.CodeConfiguration, "invalid namespace prefix")
	}
	root.Paths = normalizePaths(root.Paths)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.roots[root.Prefix]; ok {
		if existing.sameMapping(root) {
			return nil
		}
		return errors.New(errors.CodeConfiguration, fmt.Sprintf(
			"namespace prefix %q is already registered with paths %v, cannot remap to %v",
			root.Prefix, existing.Paths, root.Paths,
		))
	}
	if canonical, ok := r.aliases[root.Prefix]; ok {
		return errors.New(errors.CodeConfiguration, fmt.Sprintf(
			"namespace prefix %q is already an alias of %q", root.Prefix, canonical,
		))
	}

	aliases := make([]string, 0, len(root.Aliases))
	for _, alias := range root.Aliases {
		alias = strings.TrimSpace(alias)
		if alias == "" || alias == root.Prefix {
			continue
		}
		if err := ValidateImportName(alias); err != nil {
			return errors.Wrap(err, errors.CodeConfiguration, "invalid namespace alias")
		}
		if _, ok := r.roots[alias]; ok {
			return errors.New(errors.CodeConfiguration, fmt.Sprintf(
				"alias %q of %q collides with a registered namespace prefix", alias, root.Prefix,
			))
		}
		if other, ok := r.aliases[alias]; ok && other != root.Prefix {
			return errors.New(errors.CodeConfiguration, fmt.Sprintf(
				"alias %q is claimed by both %q and %q", alias, other, root.Prefix,
			))
		}
		aliases = append(aliases, alias)
	}
	root.Aliases = aliases

	r.roots[root.Prefix] = cloneRoot(root)
	for _, alias := range aliases {
		r.aliases[alias] = root.Prefix
	}
	return nil
}

// ClassifyPath returns the root with the longest prefix matching path and the
// canonical ModuleID for path. Alias matches are rewritten to the canonical prefix.
func (r *Registry) ClassifyPath(path string) (Root, ModuleID, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Root{}, "", false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	candidate := path
	for {
		if root, ok := r.roots[candidate]; ok {
			return cloneRoot(root), ModuleID(path), true
		}
		if canonical, ok := r.aliases[candidate]; ok {
			root := r.roots[canonical]
			rest := strings.TrimPrefix(path, candidate)
			return cloneRoot(root), ModuleID(canonical + rest), true
		}
		idx := strings.LastIndexByte(candidate, '.')
		if idx < 0 {
			return Root{}, "", false
		}
		candidate = candidate[:idx]
	}
}

// Contains reports whether path belongs to any registered namespace.
func (r *Registry) Contains(path string) bool {
	_, _, ok := r.ClassifyPath(path)
	return ok
}

func (r *Registry) Lookup(prefix string) (Root, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	root, ok := r.roots[prefix]
	if !ok {
		return Root{}, false
	}
	return cloneRoot(root), true
}

// Roots returns all registered roots sorted by prefix.
func (r *Registry) Roots() []Root {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Root, 0, len(r.roots))
	for _, root := range r.roots {
		out = append(out, cloneRoot(root))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Prefix < out[j].Prefix })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.roots)
}
