// # internal/engine/parser/types.go
package parser

import (
	"time"

	"pydeps/internal/core/errors"
	"pydeps/internal/engine/imports"
)

// File is the import-level summary of one Python source file.
type File struct {
	Path        string
	Hash        string // sha256 of the content, hex encoded
	Imports     []imports.RawImport
	Diagnostics []imports.Diagnostic
	ParsedAt    time.Time
}

// Failed reports whether the file could not be parsed cleanly.
func (f *File) Failed() bool {
	for _, d := range f.Diagnostics {
		if d.Code == errors.CodeParseFailed {
			return true
		}
	}
	return false
}
