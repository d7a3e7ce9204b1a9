package imports

import (
	"testing"

	"pydeps/internal/core/errors"
	"pydeps/internal/engine/namespace"
)

func testRegistry(t *testing.T) *namespace.Registry {
	t.Helper()
	r := namespace.NewRegistry()
	roots := []namespace.Root{
		{Name: "core", Prefix: "pkg", Paths: []string{"/src/pkg"}, Aliases: []string{"legacy_pkg"}},
		{Name: "plugins", Prefix: "plugins.extra", Paths: []string{"/src/plugins/extra"}},
	}
	for _, root := range roots {
		if err := r.Register(root); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	return r
}

func TestClassifier_Classify(t *testing.T) {
	c := NewClassifier(testRegistry(t))

	tests := []struct {
		name        string
		raw         RawImport
		from        Importer
		wantKind    EdgeKind
		wantTarget  namespace.ModuleID
		wantPackage PackageKey
		wantRaw     string
	}{
		{
			name:        "plain external",
			raw:         RawImport{Path: "requests", Line: 1},
			from:        Importer{ID: "pkg.cli"},
			wantKind:    EdgeExternal,
			wantPackage: "requests",
			wantRaw:     "requests",
		},
		{
			name:        "external submodule collapses",
			raw:         RawImport{Path: "numpy.linalg"},
			from:        Importer{ID: "pkg.cli"},
			wantKind:    EdgeExternal,
			wantPackage: "numpy",
			wantRaw:     "numpy.linalg",
		},
		{
			name:        "stdlib is external",
			raw:         RawImport{Path: "os.path"},
			from:        Importer{ID: "pkg"},
			wantKind:    EdgeExternal,
			wantPackage: "os",
		},
		{
			name:       "absolute internal",
			raw:        RawImport{Path: "pkg.core.io"},
			from:       Importer{ID: "pkg.cli"},
			wantKind:   EdgeInternal,
			wantTarget: "pkg.core.io",
		},
		{
			name:       "alias canonicalized",
			raw:        RawImport{Path: "legacy_pkg.core"},
			from:       Importer{ID: "pkg.cli"},
			wantKind:   EdgeInternal,
			wantTarget: "pkg.core",
		},
		{
			name:       "sibling relative from module",
			raw:        RawImport{Path: "utils", Level: 1, From: true},
			from:       Importer{ID: "pkg.sub.mod"},
			wantKind:   EdgeInternal,
			wantTarget: "pkg.sub.utils",
		},
		{
			name:       "relative from package init",
			raw:        RawImport{Path: "mod", Level: 1, From: true},
			from:       Importer{ID: "pkg.sub", IsPackage: true},
			wantKind:   EdgeInternal,
			wantTarget: "pkg.sub.mod",
		},
		{
			name:       "bare dot import",
			raw:        RawImport{Level: 1, From: true, Names: []string{"x"}},
			from:       Importer{ID: "pkg.sub.mod"},
			wantKind:   EdgeInternal,
			wantTarget: "pkg.sub",
		},
		{
			name:       "double dot",
			raw:        RawImport{Path: "core", Level: 2, From: true},
			from:       Importer{ID: "pkg.sub.mod"},
			wantKind:   EdgeInternal,
			wantTarget: "pkg.core",
		},
		{
			name:       "relative from top-level package init",
			raw:        RawImport{Level: 1, From: true, Names: []string{"x"}},
			from:       Importer{ID: "pkg", IsPackage: true},
			wantKind:   EdgeInternal,
			wantTarget: "pkg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			edge, err := c.Classify(tt.raw, tt.from)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if edge.Kind != tt.wantKind {
				t.Fatalf("kind = %s, expected %s", edge.Kind, tt.wantKind)
			}
			if edge.Source != tt.from.ID {
				t.Errorf("source = %s, expected %s", edge.Source, tt.from.ID)
			}
			if tt.wantTarget != "" && edge.Target != tt.wantTarget {
				t.Errorf("target = %s, expected %s", edge.Target, tt.wantTarget)
			}
			if tt.wantPackage != "" && edge.Package != tt.wantPackage {
				t.Errorf("package = %s, expected %s", edge.Package, tt.wantPackage)
			}
			if tt.wantRaw != "" && edge.Raw != tt.wantRaw {
				t.Errorf("raw = %s, expected %s", edge.Raw, tt.wantRaw)
			}
		})
	}
}

func TestClassifier_RelativeImportEscape(t *testing.T) {
	c := NewClassifier(testRegistry(t))

	tests := []struct {
		name string
		raw  RawImport
		from Importer
	}{
		{
			name: "double dot at namespace top",
			raw:  RawImport{Level: 2, From: true, Names: []string{"x"}, Line: 3},
			from: Importer{ID: "pkg", IsPackage: true},
		},
		{
			name: "dot from top-level plain module",
			raw:  RawImport{Level: 1, From: true, Names: []string{"x"}},
			from: Importer{ID: "pkg"},
		},
		{
			name: "climbs above nested namespace root",
			raw:  RawImport{Path: "other", Level: 2, From: true},
			from: Importer{ID: "plugins.extra.mod"},
		},
		{
			name: "far too many dots",
			raw:  RawImport{Path: "x", Level: 9, From: true},
			from: Importer{ID: "pkg.sub.mod"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			edge, err := c.Classify(tt.raw, tt.from)
			if !errors.IsCode(err, errors.CodeRelativeImportEscape) {
				t.Fatalf("expected RELATIVE_IMPORT_ESCAPE, got %v", err)
			}
			if edge.Kind != EdgeUnresolved {
				t.Errorf("expected unresolved edge, got %s", edge.Kind)
			}
			if edge.Err == nil {
				t.Error("expected edge to carry the error")
			}
			if edge.Raw != tt.raw.String() {
				t.Errorf("raw = %q, expected %q", edge.Raw, tt.raw.String())
			}
		})
	}
}

func TestClassifier_RelativeIntoEnclosingRoot(t *testing.T) {
	r := namespace.NewRegistry()
	for _, root := range []namespace.Root{
		{Name: "pkg", Prefix: "pkg", Paths: []string{"/src/pkg"}},
		{Name: "sub", Prefix: "pkg.sub", Paths: []string{"/src/pkg/sub"}},
	} {
		if err := r.Register(root); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	c := NewClassifier(r)

	edge, err := c.Classify(RawImport{Path: "util", Level: 2, From: true, Names: []string{"helper"}}, Importer{ID: "pkg.sub.x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if edge.Kind != EdgeInternal || edge.Target != "pkg.util" {
		t.Fatalf("expected internal edge to pkg.util, got %s %s", edge.Kind, edge.Target)
	}

	_, err = c.Classify(RawImport{Path: "x", Level: 3, From: true}, Importer{ID: "pkg.sub.x"})
	if !errors.IsCode(err, errors.CodeRelativeImportEscape) {
		t.Fatalf("leaving the outer root must still escape, got %v", err)
	}
}

func TestClassifier_CarriesAttribution(t *testing.T) {
	c := NewClassifier(testRegistry(t))
	raw := RawImport{Path: "click", From: true, Names: []string{"command", "option"}, Line: 12, Lazy: true, Guarded: true}
	edge, err := c.Classify(raw, Importer{ID: "pkg.cli"})
	if err != nil {
		t.Fatal(err)
	}
	if edge.Line != 12 || !edge.Lazy || !edge.Guarded || len(edge.Names) != 2 {
		t.Errorf("attribution not carried: %+v", edge)
	}
	raw.Names[0] = "mutated"
	if edge.Names[0] != "command" {
		t.Error("edge names must not alias the raw import slice")
	}
}

func TestPackageKeyOf(t *testing.T) {
	tests := map[string]PackageKey{
		"numpy":               "numpy",
		"numpy.linalg":        "numpy",
		"google.protobuf.any": "google",
		" yaml ":              "yaml",
	}
	for in, want := range tests {
		if got := PackageKeyOf(in); got != want {
			t.Errorf("PackageKeyOf(%q) = %s, expected %s", in, got, want)
		}
	}
}

func TestRawImport_String(t *testing.T) {
	if got := (RawImport{Path: "mod", Level: 2}).String(); got != "..mod" {
		t.Errorf("got %q", got)
	}
	if got := (RawImport{Level: 1}).String(); got != "." {
		t.Errorf("got %q", got)
	}
}
