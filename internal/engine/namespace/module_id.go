package namespace

import (
	"fmt"
	"strings"
	"unicode"
)

// ModuleID is the canonical dotted name of a discovered Python module.
type ModuleID string

func (m ModuleID) String() string { return string(m) }

func (m ModuleID) Parts() []string {
	if m == "" {
		return nil
	}
	return strings.Split(string(m), ".")
}

// Parent returns the enclosing package, or "" for a top-level module.
func (m ModuleID) Parent() ModuleID {
	idx := strings.LastIndexByte(string(m), '.')
	if idx < 0 {
		return ""
	}
	return m[:idx]
}

// Top returns the first dotted component.
func (m ModuleID) Top() string {
	s := string(m)
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		return s[:idx]
	}
	return s
}

// Child appends a dotted suffix; an empty suffix returns m unchanged.
func (m ModuleID) Child(suffix string) ModuleID {
	if suffix == "" {
		return m
	}
	if m == "" {
		return ModuleID(suffix)
	}
	return ModuleID(string(m) + "." + suffix)
}

// HasPrefix reports whether m equals prefix or lives below it on a dot boundary.
func (m ModuleID) HasPrefix(prefix ModuleID) bool {
	return HasDottedPrefix(string(m), string(prefix))
}

// HasDottedPrefix is the string form of ModuleID.HasPrefix.
func HasDottedPrefix(path, prefix string) bool {
	if prefix == "" {
		return false
	}
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+".")
}

// Ancestors lists m's enclosing packages from the nearest outwards.
func (m ModuleID) Ancestors() []ModuleID {
	var out []ModuleID
	for p := m.Parent(); p != ""; p = p.Parent() {
		out = append(out, p)
	}
	return out
}

// ValidateImportName checks that every dotted part is a Python identifier.
func ValidateImportName(name string) error {
	if name == "" {
		return fmt.Errorf("import path must have at least one part")
	}
	for _, part := range strings.Split(name, ".") {
		if !IsIdentifier(part) {
			return fmt.Errorf("import part %q is not a valid identifier, obtained from %q", part, name)
		}
	}
	return nil
}

// IsIdentifier approximates str.isidentifier for module and package names.
func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) {
			continue
		}
		if i > 0 && unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return true
}
