// # internal/engine/requirements/stdlib.go
package requirements

import (
	_ "embed"
	"strings"

	"pydeps/internal/engine/imports"
)

//go:embed stdlib/python.txt
var pythonStdlibData string

var pythonStdlib = map[string]bool{}

func init() {
	for _, line := range strings.Split(pythonStdlibData, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		pythonStdlib[line] = true
	}
}

// IsStdlib reports whether pkg is a standard-library top-level module.
func IsStdlib(pkg imports.PackageKey) bool {
	return pythonStdlib[string(pkg)]
}

// IsStdlibImport checks the first component of a dotted import.
func IsStdlibImport(path string) bool {
	return IsStdlib(imports.PackageKeyOf(path))
}
