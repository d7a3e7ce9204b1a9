// # internal/engine/discovery/discovery.go
package discovery

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"pydeps/internal/core/errors"
	"pydeps/internal/engine/namespace"
)

// Source is one configured namespace entry. Exactly one of Path and
// SearchPath is set.
type Source struct {
	Name string
	// Path is a package directory or a single .py module.
	Path string
	// SearchPath is a directory whose top-level packages and modules each
	// become a root under Name.
	SearchPath string
	// Prefix overrides the import prefix of Path; defaults to its base name.
	Prefix  string
	Aliases []string
}

type Options struct {
	ExcludeDirs  []string
	ExcludeFiles []string
	// ReachableOnly names the namespaces whose modules are dropped unless
	// every enclosing package was discovered, i.e. no directory on the way
	// lacks __init__.py.
	ReachableOnly []string
	Logger        *slog.Logger
}

// Discoverer maps configured sources to namespace roots and walks those roots
// for Python modules.
type Discoverer struct {
	dirGlobs      []glob.Glob
	fileGlobs     []glob.Glob
	reachableOnly map[string]bool
	logger        *slog.Logger
}

func New(opts Options) (*Discoverer, error) {
	dirGlobs, err := compileGlobs(opts.ExcludeDirs, "exclude dir")
	if err != nil {
		return nil, err
	}
	fileGlobs, err := compileGlobs(opts.ExcludeFiles, "exclude file")
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	d := &Discoverer{
		dirGlobs:      dirGlobs,
		fileGlobs:     fileGlobs,
		reachableOnly: make(map[string]bool, len(opts.ReachableOnly)),
		logger:        logger,
	}
	for _, name := range opts.ReachableOnly {
		d.reachableOnly[name] = true
	}
	return d, nil
}

func compileGlobs(patterns []string, label string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeConfiguration, fmt.Sprintf("invalid %s pattern %q", label, p))
		}
		out = append(out, g)
	}
	return out, nil
}

// Roots expands sources into namespace roots. Search paths contribute one
// root per top-level package directory (containing __init__.py) or module.
func (d *Discoverer) Roots(sources []Source) ([]namespace.Root, error) {
	var roots []namespace.Root
	for _, src := range sources {
		switch {
		case src.Path != "" && src.SearchPath != "":
			return nil, d.configError(src, "namespace sets both path and search_path")
		case src.Path != "":
			root, err := d.packageRoot(src)
			if err != nil {
				return nil, err
			}
			roots = append(roots, root)
		case src.SearchPath != "":
			found, err := d.searchRoots(src)
			if err != nil {
				return nil, err
			}
			roots = append(roots, found...)
		default:
			return nil, d.configError(src, "namespace needs a path or a search_path")
		}
	}
	return roots, nil
}

// Register expands sources and registers every root with reg.
func (d *Discoverer) Register(reg *namespace.Registry, sources []Source) ([]namespace.Root, error) {
	roots, err := d.Roots(sources)
	if err != nil {
		return nil, err
	}
	for _, root := range roots {
		if err := reg.Register(root); err != nil {
			return nil, errors.AddContext(err, errors.CtxNamespace, root.Name)
		}
	}
	return roots, nil
}

func (d *Discoverer) configError(src Source, msg string) error {
	err := errors.New(errors.CodeConfiguration, msg)
	return errors.AddContext(err, errors.CtxNamespace, src.Name)
}

func (d *Discoverer) packageRoot(src Source) (namespace.Root, error) {
	path, err := filepath.Abs(src.Path)
	if err != nil {
		return namespace.Root{}, errors.Wrap(err, errors.CodeConfiguration, "resolve package path")
	}
	info, err := os.Stat(path)
	if err != nil {
		err = errors.Wrap(err, errors.CodeConfiguration, fmt.Sprintf("package path does not exist: %s", path))
		return namespace.Root{}, errors.AddContext(err, errors.CtxNamespace, src.Name)
	}

	prefix := strings.TrimSpace(src.Prefix)
	if prefix == "" {
		prefix = filepath.Base(path)
		if !info.IsDir() {
			if !isPythonFile(path) {
				return namespace.Root{}, d.configError(src, fmt.Sprintf("package path is not a directory or .py file: %s", path))
			}
			prefix = strings.TrimSuffix(prefix, filepath.Ext(prefix))
		}
	}
	return namespace.Root{
		Name:    src.Name,
		Prefix:  prefix,
		Paths:   []string{path},
		Aliases: append([]string(nil), src.Aliases...),
	}, nil
}

func (d *Discoverer) searchRoots(src Source) ([]namespace.Root, error) {
	dir, err := filepath.Abs(src.SearchPath)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeConfiguration, "resolve search path")
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, d.configError(src, fmt.Sprintf("search path must be a directory, got: %s", dir))
	}
	if src.Prefix != "" || len(src.Aliases) > 0 {
		return nil, d.configError(src, "prefix and aliases apply to path entries only")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeConfiguration, "read search path")
	}

	var roots []namespace.Root
	for _, entry := range entries {
		name := entry.Name()
		full := filepath.Join(dir, name)
		var prefix string
		if entry.IsDir() {
			if d.excludedDir(name) {
				continue
			}
			if _, err := os.Stat(filepath.Join(full, "__init__.py")); err != nil {
				continue
			}
			prefix = name
		} else {
			if !isPythonFile(name) || d.excludedFile(name) {
				continue
			}
			prefix = strings.TrimSuffix(name, filepath.Ext(name))
		}
		if !namespace.IsIdentifier(prefix) {
			d.logger.Warn("skipping search path entry with a non-identifier name", "path", full)
			continue
		}
		roots = append(roots, namespace.Root{Name: src.Name, Prefix: prefix, Paths: []string{full}})
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].Prefix < roots[j].Prefix })
	return roots, nil
}

// Modules walks roots and returns every discovered module, sorted by id. The
// same file reached through nested roots is reported once; the same id coming
// from two different files is a DuplicateModule error.
func (d *Discoverer) Modules(roots []namespace.Root) ([]namespace.DiscoveredModule, error) {
	byID := make(map[namespace.ModuleID]namespace.DiscoveredModule)
	depth := make(map[namespace.ModuleID]int) // prefix length of the root that found the module
	for _, root := range roots {
		for _, path := range root.Paths {
			found, err := d.walkRoot(root, path)
			if err != nil {
				return nil, err
			}
			for _, m := range found {
				existing, ok := byID[m.ID]
				if !ok {
					byID[m.ID] = m
					depth[m.ID] = len(root.Prefix)
					continue
				}
				if filepath.Clean(existing.Path) == filepath.Clean(m.Path) {
					// nested roots: the innermost root owns the module
					if len(root.Prefix) > depth[m.ID] {
						byID[m.ID] = m
						depth[m.ID] = len(root.Prefix)
					}
					continue
				}
				err := errors.New(errors.CodeDuplicateModule, fmt.Sprintf(
					"duplicate module name %q, already exists as %s, tried to add %s", m.ID, existing.Path, m.Path))
				return nil, errors.AddContext(err, errors.CtxModule, string(m.ID))
			}
		}
	}

	out := make([]namespace.DiscoveredModule, 0, len(byID))
	for _, m := range byID {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(d.reachableOnly) > 0 {
		out = reachable(out, d.reachableOnly)
	}
	return out, nil
}

func (d *Discoverer) walkRoot(root namespace.Root, base string) ([]namespace.DiscoveredModule, error) {
	info, err := os.Stat(base)
	if err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeNotFound, "namespace path"), errors.CtxPath, base)
	}
	prefix := namespace.ModuleID(root.Prefix)

	if !info.IsDir() {
		if !isPythonFile(base) {
			return nil, nil
		}
		return []namespace.DiscoveredModule{{ID: prefix, Path: base, Namespace: root.Name}}, nil
	}

	var out []namespace.DiscoveredModule
	err = filepath.WalkDir(base, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := entry.Name()
		if entry.IsDir() {
			if path == base {
				return nil
			}
			if d.excludedDir(name) {
				return filepath.SkipDir
			}
			if !namespace.IsIdentifier(name) {
				d.logger.Debug("skipping directory with a non-identifier name", "path", path)
				return filepath.SkipDir
			}
			return nil
		}
		if !isPythonFile(name) || d.excludedFile(name) {
			return nil
		}

		id, isPkg, ok := moduleIDFor(prefix, base, path)
		if !ok {
			d.logger.Warn("skipping module with a non-identifier name", "path", path)
			return nil
		}
		out = append(out, namespace.DiscoveredModule{ID: id, Path: path, Namespace: root.Name, IsPackage: isPkg})
		return nil
	})
	if err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeInternal, "walk namespace"), errors.CtxPath, base)
	}
	return out, nil
}

// moduleIDFor maps a file below base to its dotted id under prefix.
func moduleIDFor(prefix namespace.ModuleID, base, path string) (namespace.ModuleID, bool, bool) {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return "", false, false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	last := strings.TrimSuffix(parts[len(parts)-1], filepath.Ext(parts[len(parts)-1]))
	isPkg := last == "__init__"
	if isPkg {
		parts = parts[:len(parts)-1]
	} else {
		parts[len(parts)-1] = last
	}
	for _, part := range parts {
		if !namespace.IsIdentifier(part) {
			return "", false, false
		}
	}
	return prefix.Child(strings.Join(parts, ".")), isPkg, true
}

// reachable keeps modules of the given namespaces only when every enclosing
// package, down to the top-level one, was discovered as a package.
func reachable(mods []namespace.DiscoveredModule, namespaces map[string]bool) []namespace.DiscoveredModule {
	packages := make(map[namespace.ModuleID]bool)
	for _, m := range mods {
		if m.IsPackage {
			packages[m.ID] = true
		}
	}
	out := mods[:0]
	for _, m := range mods {
		if !namespaces[m.Namespace] {
			out = append(out, m)
			continue
		}
		ok := true
		anc := m.ID.Ancestors()
		for _, a := range anc {
			if !packages[a] {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, m)
		}
	}
	return out
}

func isPythonFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".py")
}

func (d *Discoverer) excludedDir(name string) bool {
	for _, g := range d.dirGlobs {
		if g.Match(name) {
			return true
		}
	}
	return false
}

func (d *Discoverer) excludedFile(name string) bool {
	for _, g := range d.fileGlobs {
		if g.Match(name) {
			return true
		}
	}
	return false
}
