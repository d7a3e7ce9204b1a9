package namespace

import (
	"testing"

	"pydeps/internal/core/errors"
)

func mustRegister(t *testing.T, r *Registry, root Root) {
	t.Helper()
	if err := r.Register(root); err != nil {
		t.Fatalf("register %q: %v", root.Prefix, err)
	}
}

func TestRegistry_ClassifyPathLongestPrefix(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, Root{Name: "core", Prefix: "pkg", Paths: []string{"/src/pkg"}})
	mustRegister(t, r, Root{Name: "plugins", Prefix: "pkg.sub", Paths: []string{"/plugins/sub"}})

	tests := []struct {
		path       string
		wantPrefix string
		wantID     ModuleID
		wantOK     bool
	}{
		{"pkg.sub.x", "pkg.sub", "pkg.sub.x", true},
		{"pkg.sub", "pkg.sub", "pkg.sub", true},
		{"pkg.other", "pkg", "pkg.other", true},
		{"pkg", "pkg", "pkg", true},
		{"pkgx.sub", "", "", false},
		{"numpy.linalg", "", "", false},
		{"", "", "", false},
	}

	for _, tt := range tests {
		root, id, ok := r.ClassifyPath(tt.path)
		if ok != tt.wantOK {
			t.Errorf("ClassifyPath(%q) ok = %v, expected %v", tt.path, ok, tt.wantOK)
			continue
		}
		if !ok {
			continue
		}
		if root.Prefix != tt.wantPrefix || id != tt.wantID {
			t.Errorf("ClassifyPath(%q) = (%s, %s), expected (%s, %s)", tt.path, root.Prefix, id, tt.wantPrefix, tt.wantID)
		}
	}
}

func TestRegistry_ClassifyPathIsOrderIndependent(t *testing.T) {
	forward := NewRegistry()
	mustRegister(t, forward, Root{Name: "a", Prefix: "pkg"})
	mustRegister(t, forward, Root{Name: "b", Prefix: "pkg.sub"})

	reverse := NewRegistry()
	mustRegister(t, reverse, Root{Name: "b", Prefix: "pkg.sub"})
	mustRegister(t, reverse, Root{Name: "a", Prefix: "pkg"})

	for _, path := range []string{"pkg.sub.deep.mod", "pkg.x", "pkg.sub"} {
		a, _, _ := forward.ClassifyPath(path)
		b, _, _ := reverse.ClassifyPath(path)
		if a.Prefix != b.Prefix {
			t.Errorf("ClassifyPath(%q) differs by registration order: %s vs %s", path, a.Prefix, b.Prefix)
		}
	}
}

func TestRegistry_AliasesCanonicalize(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, Root{
		Name:    "core",
		Prefix:  "pkg",
		Paths:   []string{"/src/pkg"},
		Aliases: []string{"vendored.pkg"},
	})

	root, id, ok := r.ClassifyPath("vendored.pkg.utils.io")
	if !ok {
		t.Fatal("expected alias path to classify")
	}
	if root.Prefix != "pkg" || id != "pkg.utils.io" {
		t.Errorf("expected (pkg, pkg.utils.io), got (%s, %s)", root.Prefix, id)
	}

	if _, _, ok := r.ClassifyPath("vendored.other"); ok {
		t.Error("expected sibling of alias to stay unclassified")
	}
}

func TestRegistry_RegisterConflicts(t *testing.T) {
	t.Run("SamePrefixDifferentPaths", func(t *testing.T) {
		r := NewRegistry()
		mustRegister(t, r, Root{Name: "a", Prefix: "pkg", Paths: []string{"/one/pkg"}})
		err := r.Register(Root{Name: "b", Prefix: "pkg", Paths: []string{"/two/pkg"}})
		if !errors.IsCode(err, errors.CodeConfiguration) {
			t.Fatalf("expected configuration error, got %v", err)
		}
	})

	t.Run("SamePrefixSamePathsIsNoop", func(t *testing.T) {
		r := NewRegistry()
		mustRegister(t, r, Root{Name: "a", Prefix: "pkg", Paths: []string{"/one/pkg/"}})
		if err := r.Register(Root{Name: "a", Prefix: "pkg", Paths: []string{"/one/pkg"}}); err != nil {
			t.Fatalf("expected idempotent registration, got %v", err)
		}
		if r.Len() != 1 {
			t.Errorf("expected 1 root, got %d", r.Len())
		}
	})

	t.Run("InvalidPrefix", func(t *testing.T) {
		r := NewRegistry()
		for _, prefix := range []string{"", "my-pkg", "pkg..sub", "1pkg"} {
			if err := r.Register(Root{Prefix: prefix}); !errors.IsCode(err, errors.CodeConfiguration) {
				t.Errorf("Register(%q) expected configuration error, got %v", prefix, err)
			}
		}
	})

	t.Run("AliasCollidesWithPrefix", func(t *testing.T) {
		r := NewRegistry()
		mustRegister(t, r, Root{Name: "a", Prefix: "other"})
		err := r.Register(Root{Name: "b", Prefix: "pkg", Aliases: []string{"other"}})
		if !errors.IsCode(err, errors.CodeConfiguration) {
			t.Fatalf("expected configuration error, got %v", err)
		}
	})

	t.Run("PrefixCollidesWithAlias", func(t *testing.T) {
		r := NewRegistry()
		mustRegister(t, r, Root{Name: "a", Prefix: "pkg", Aliases: []string{"legacy"}})
		err := r.Register(Root{Name: "b", Prefix: "legacy"})
		if !errors.IsCode(err, errors.CodeConfiguration) {
			t.Fatalf("expected configuration error, got %v", err)
		}
	})
}

func TestRegistry_RootsAndLookup(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, Root{Name: "tools", Prefix: "zeta"})
	mustRegister(t, r, Root{Name: "core", Prefix: "alpha"})
	mustRegister(t, r, Root{Name: "core", Prefix: "alpha.beta"})

	roots := r.Roots()
	if len(roots) != 3 || roots[0].Prefix != "alpha" || roots[2].Prefix != "zeta" {
		t.Errorf("unexpected root order: %+v", roots)
	}
	if _, ok := r.Lookup("alpha.beta"); !ok {
		t.Error("expected Lookup to find alpha.beta")
	}
}

func TestModuleID_Helpers(t *testing.T) {
	id := ModuleID("pkg.sub.mod")
	if id.Parent() != "pkg.sub" {
		t.Errorf("Parent() = %s", id.Parent())
	}
	if id.Top() != "pkg" {
		t.Errorf("Top() = %s", id.Top())
	}
	if ModuleID("pkg").Parent() != "" {
		t.Error("expected top-level module to have no parent")
	}
	if !id.HasPrefix("pkg.sub") || id.HasPrefix("pkg.su") {
		t.Error("HasPrefix must respect dot boundaries")
	}
	anc := id.Ancestors()
	if len(anc) != 2 || anc[0] != "pkg.sub" || anc[1] != "pkg" {
		t.Errorf("Ancestors() = %v", anc)
	}
	if ModuleID("").Child("x") != "x" || id.Child("") != id {
		t.Error("Child() edge cases failed")
	}
}

func TestValidateImportName(t *testing.T) {
	valid := []string{"pkg", "pkg.sub", "_private", "p2.v3", "ñame"}
	for _, name := range valid {
		if err := ValidateImportName(name); err != nil {
			t.Errorf("ValidateImportName(%q) unexpected error: %v", name, err)
		}
	}
	invalid := []string{"", "a..b", "a-b", "3d", "a.b."}
	for _, name := range invalid {
		if err := ValidateImportName(name); err == nil {
			t.Errorf("ValidateImportName(%q) expected error", name)
		}
	}
}
