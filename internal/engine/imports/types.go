// # internal/engine/imports/types.go
package imports

import (
	"fmt"
	"strings"

	"pydeps/internal/core/errors"
	"pydeps/internal/engine/namespace"
)

// RawImport is one import target as reported by the parser.
type RawImport struct {
	Path    string   // Dotted path as written, without leading dots
	Level   int      // Number of leading dots, 0 for absolute imports
	From    bool     // "from X import Y" form
	Names   []string // Names imported by the from form
	Line    int      // 1-based source line
	Lazy    bool     // Inside a function body or an `if TYPE_CHECKING:` block
	Guarded bool     // Inside a try statement (optional dependency pattern)
}

func (r RawImport) IsRelative() bool { return r.Level > 0 }

// String renders the import target the way it appears in the source.
func (r RawImport) String() string {
	return strings.Repeat(".", r.Level) + r.Path
}

// PackageKey is the top-level import name of an external distribution, e.g. "numpy".
type PackageKey string

// PackageKeyOf collapses a dotted external path to its first component.
func PackageKeyOf(path string) PackageKey {
	path = strings.TrimSpace(path)
	if idx := strings.IndexByte(path, '.'); idx >= 0 {
		return PackageKey(path[:idx])
	}
	return PackageKey(path)
}

type EdgeKind int

const (
	EdgeInternal EdgeKind = iota
	EdgeExternal
	EdgeUnresolved
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeInternal:
		return "internal"
	case EdgeExternal:
		return "external"
	case EdgeUnresolved:
		return "unresolved"
	}
	return fmt.Sprintf("EdgeKind(%d)", int(k))
}

// Edge is a classified import: Source -> Internal(Target) | External(Package) | Unresolved(Err).
type Edge struct {
	Source  namespace.ModuleID
	Kind    EdgeKind
	Target  namespace.ModuleID // set for EdgeInternal
	Package PackageKey         // set for EdgeExternal
	Raw     string             // absolute dotted target, or the relative form when unresolved
	Names   []string
	Line    int
	Lazy    bool
	Guarded bool
	Err     error // set for EdgeUnresolved
}

func (e Edge) String() string {
	switch e.Kind {
	case EdgeInternal:
		return fmt.Sprintf("%s -> internal(%s)", e.Source, e.Target)
	case EdgeExternal:
		return fmt.Sprintf("%s -> external(%s)", e.Source, e.Package)
	default:
		return fmt.Sprintf("%s -> unresolved(%s)", e.Source, e.Raw)
	}
}

// Importer identifies the module an import statement lives in.
type Importer struct {
	ID        namespace.ModuleID
	IsPackage bool // true for __init__.py modules
}

// Diagnostic is a recorded, non-fatal per-module problem.
type Diagnostic struct {
	Module  namespace.ModuleID
	Path    string
	Line    int
	Code    errors.ErrorCode
	Message string
}

func (d Diagnostic) String() string {
	loc := string(d.Module)
	if d.Path != "" {
		loc = d.Path
	}
	if d.Line > 0 {
		loc = fmt.Sprintf("%s:%d", loc, d.Line)
	}
	return fmt.Sprintf("%s [%s] %s", loc, d.Code, d.Message)
}

// DiagnosticFromError captures err as a diagnostic for module.
func DiagnosticFromError(module namespace.ModuleID, path string, line int, err error) Diagnostic {
	return Diagnostic{
		Module:  module,
		Path:    path,
		Line:    line,
		Code:    errors.CodeOf(err),
		Message: errors.MessageOf(err),
	}
}
