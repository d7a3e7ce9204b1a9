package imports

import (
	"fmt"
	"strings"

	"pydeps/internal/core/errors"
	"pydeps/internal/engine/namespace"
)

// Classifier turns raw import targets into classified edges.
// It holds no state beyond the registry it is given.
type Classifier struct {
	registry *namespace.Registry
}

func NewClassifier(registry *namespace.Registry) *Classifier {
	return &Classifier{registry: registry}
}

// Classify resolves raw against from and classifies it. Relative imports that
// climb out of every registered namespace return an EdgeUnresolved edge together
// with a CodeRelativeImportEscape error.
func (c *Classifier) Classify(raw RawImport, from Importer) (Edge, error) {
	edge := Edge{
		Source:  from.ID,
		Names:   append([]string(nil), raw.Names...),
		Line:    raw.Line,
		Lazy:    raw.Lazy,
		Guarded: raw.Guarded,
	}

	absolute, err := c.Absolute(raw, from)
	if err != nil {
		edge.Kind = EdgeUnresolved
		edge.Raw = raw.String()
		edge.Err = err
		return edge, err
	}
	edge.Raw = absolute

	if _, id, ok := c.registry.ClassifyPath(absolute); ok {
		edge.Kind = EdgeInternal
		edge.Target = id
		return edge, nil
	}

	edge.Kind = EdgeExternal
	edge.Package = PackageKeyOf(absolute)
	return edge, nil
}

// Absolute returns the absolute dotted path of raw as seen from the importer.
func (c *Classifier) Absolute(raw RawImport, from Importer) (string, error) {
	path := strings.Trim(strings.TrimSpace(raw.Path), ".")
	if raw.Level <= 0 {
		if path == "" {
			err := errors.New(errors.CodeValidationError, "absolute import without a module path")
			return "", errors.AddContext(err, errors.CtxModule, string(from.ID))
		}
		return path, nil
	}

	base := from.ID
	if !from.IsPackage {
		base = base.Parent()
	}
	for i := 1; i < raw.Level; i++ {
		if base == "" {
			break
		}
		base = base.Parent()
	}
	if base == "" {
		return "", escapeError(raw, from, "relative import ascends above the top-level package")
	}

	// With nested roots the base may leave the innermost root and still land
	// in an enclosing one; only leaving every registered root is an escape.
	root, _, ok := c.registry.ClassifyPath(string(from.ID))
	if ok && !base.HasPrefix(namespace.ModuleID(root.Prefix)) && !c.registry.Contains(string(base)) {
		return "", escapeError(raw, from, fmt.Sprintf("relative import ascends past namespace root %q", root.Prefix))
	}

	return string(base.Child(path)), nil
}

func escapeError(raw RawImport, from Importer, msg string) error {
	err := errors.New(errors.CodeRelativeImportEscape, msg)
	err = errors.AddContext(err, errors.CtxModule, string(from.ID))
	err = errors.AddContext(err, errors.CtxImport, raw.String())
	if raw.Line > 0 {
		err = errors.AddContext(err, errors.CtxLine, raw.Line)
	}
	return err
}
