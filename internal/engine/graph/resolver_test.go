package graph

import (
	"math/rand"
	"sync"
	"testing"

	"pydeps/internal/core/errors"
	"pydeps/internal/engine/imports"
	"pydeps/internal/engine/namespace"
)

func packagesOf(res *Result) []string {
	var out []string
	for _, p := range res.Packages() {
		out = append(out, string(p))
	}
	return out
}

func equalStrings(a, b []string) bool {
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

func TestResolve_SingleExternal(t *testing.T) {
	g := mustBuild(t, NewBuilder(testRegistry(t, "app")), mod("app.main", false, imp("requests")))
	res, err := Resolve(g, []namespace.ModuleID{"app.main"})
	if err != nil {
		t.Fatal(err)
	}
	if got := packagesOf(res); !equalStrings(got, []string{"requests"}) {
		t.Errorf("packages = %v, expected [requests]", got)
	}
	if src := res.Sources("requests"); len(src) != 1 || src[0] != "app.main" {
		t.Errorf("sources = %v", src)
	}
}

func TestResolve_CycleTerminates(t *testing.T) {
	g := mustBuild(t, NewBuilder(testRegistry(t, "app")),
		mod("app.a", false, imp("app.b")),
		mod("app.b", false, imp("app.a"), imp("click")),
	)
	res, err := Resolve(g, []namespace.ModuleID{"app.a"})
	if err != nil {
		t.Fatal(err)
	}
	if got := packagesOf(res); !equalStrings(got, []string{"click"}) {
		t.Errorf("packages = %v, expected [click]", got)
	}
	if order := res.Order(); len(order) != 2 {
		t.Errorf("each module should be expanded once, order = %v", order)
	}
	if reached := res.Reached(); len(reached) != 1 || reached[0] != "app.b" {
		t.Errorf("reached = %v", reached)
	}
}

func TestResolve_SubmoduleCollapse(t *testing.T) {
	g := mustBuild(t, NewBuilder(testRegistry(t, "app")),
		mod("app.x", false, imp("numpy.linalg"), imp("numpy"), imp("numpy.fft")),
	)
	res, _ := Resolve(g, []namespace.ModuleID{"app.x"})
	if got := packagesOf(res); !equalStrings(got, []string{"numpy"}) {
		t.Errorf("packages = %v, expected [numpy]", got)
	}
	if got := res.Imports("numpy"); !equalStrings(got, []string{"numpy", "numpy.fft", "numpy.linalg"}) {
		t.Errorf("imports = %v", got)
	}
}

func TestResolve_Idempotent(t *testing.T) {
	g := mustBuild(t, NewBuilder(testRegistry(t, "app")), sampleModules()...)
	roots := []namespace.ModuleID{"app.cli"}
	first, _ := Resolve(g, roots)
	second, _ := Resolve(g, roots)
	if !first.Equal(second) {
		t.Errorf("results differ: %v vs %v", packagesOf(first), packagesOf(second))
	}
}

func TestResolve_EdgeOrderIndependent(t *testing.T) {
	base := sampleModules()
	g := mustBuild(t, NewBuilder(testRegistry(t, "app")), base...)
	want, _ := Resolve(g, []namespace.ModuleID{"app.cli"})

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := make([]ModuleImports, len(base))
		for j, m := range base {
			m.Imports = append([]imports.RawImport(nil), m.Imports...)
			rng.Shuffle(len(m.Imports), func(a, b int) { m.Imports[a], m.Imports[b] = m.Imports[b], m.Imports[a] })
			shuffled[j] = m
		}
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		sg := mustBuild(t, NewBuilder(testRegistry(t, "app")), shuffled...)
		got, _ := Resolve(sg, []namespace.ModuleID{"app.cli"})
		if !got.Equal(want) {
			t.Fatalf("iteration %d: %v, expected %v", i, packagesOf(got), packagesOf(want))
		}
	}
}

func TestResolve_UnionLaw(t *testing.T) {
	g := mustBuild(t, NewBuilder(testRegistry(t, "app")), sampleModules()...)
	a := []namespace.ModuleID{"app.cli"}
	b := []namespace.ModuleID{"app.worker"}

	ra, _ := Resolve(g, a)
	rb, _ := Resolve(g, b)
	both, _ := Resolve(g, append(append([]namespace.ModuleID(nil), a...), b...))

	if !Union(ra, rb).Equal(both) {
		t.Errorf("union %v != combined %v", packagesOf(Union(ra, rb)), packagesOf(both))
	}
	if !Union(ra, ra).Equal(ra) {
		t.Error("union with itself must be a no-op")
	}
}

func TestResolve_UnknownRoot(t *testing.T) {
	g := mustBuild(t, NewBuilder(testRegistry(t, "app")), sampleModules()...)
	_, err := Resolve(g, []namespace.ModuleID{"app.cli", "app.ghost"})
	if !errors.IsCode(err, errors.CodeUnknownModule) {
		t.Fatalf("expected UNKNOWN_MODULE, got %v", err)
	}
}

func TestResolve_EmptyRootsAndDuplicates(t *testing.T) {
	g := mustBuild(t, NewBuilder(testRegistry(t, "app")), sampleModules()...)
	empty, err := Resolve(g, nil)
	if err != nil || len(empty.Packages()) != 0 {
		t.Errorf("expected empty result, got %v, %v", empty, err)
	}
	dup, _ := Resolve(g, []namespace.ModuleID{"app.cli", "app.cli"})
	if len(dup.Roots()) != 1 {
		t.Errorf("duplicate roots should collapse, got %v", dup.Roots())
	}
}

func TestResolve_SkipLazy(t *testing.T) {
	g := mustBuild(t, NewBuilder(testRegistry(t, "app")),
		mod("app.cli", false,
			imp("click"),
			imports.RawImport{Path: "rich", Line: 8, Lazy: true},
			imports.RawImport{Path: "app.heavy", Line: 9, Lazy: true},
		),
		mod("app.heavy", false, imp("torch")),
	)

	all, _ := Resolve(g, []namespace.ModuleID{"app.cli"})
	if got := packagesOf(all); !equalStrings(got, []string{"click", "rich", "torch"}) {
		t.Errorf("default packages = %v", got)
	}
	if !all.AllLazy("rich") || all.AllLazy("click") {
		t.Error("lazy bookkeeping is wrong")
	}

	eager, _ := NewResolver(ResolveOptions{SkipLazy: true}).Resolve(g, []namespace.ModuleID{"app.cli"})
	if got := packagesOf(eager); !equalStrings(got, []string{"click"}) {
		t.Errorf("skip-lazy packages = %v", got)
	}
}

func TestResolve_UnresolvedCollected(t *testing.T) {
	g := mustBuild(t, NewBuilder(testRegistry(t, "app")),
		mod("app", true, fromImp("", 3, "x")),
	)
	res, _ := Resolve(g, []namespace.ModuleID{"app"})
	if len(res.Unresolved()) != 1 {
		t.Errorf("expected one unresolved edge, got %v", res.Unresolved())
	}
}

func TestResolve_ConcurrentQueries(t *testing.T) {
	g := mustBuild(t, NewBuilder(testRegistry(t, "app")), sampleModules()...)
	want, _ := Resolve(g, []namespace.ModuleID{"app.cli"})

	var wg sync.WaitGroup
	errs := make(chan string, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := Resolve(g, []namespace.ModuleID{"app.cli"})
			if err != nil {
				errs <- err.Error()
				return
			}
			if !got.Equal(want) {
				errs <- "result mismatch"
			}
		}()
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}
}

func sampleModules() []ModuleImports {
	return []ModuleImports{
		mod("app", true, imp("logging")),
		mod("app.cli", false, imp("click"), imp("app.core"), fromImp("util", 1, "slugify")),
		mod("app.core", false, imp("requests"), imp("app.util"), imp("app.cli")),
		mod("app.util", false, imp("numpy.linalg"), imp("os")),
		mod("app.worker", false, imp("celery"), imp("app.util")),
	}
}

func TestResolve_RelativeImportIntoEnclosingRoot(t *testing.T) {
	g := mustBuild(t, NewBuilder(testRegistry(t, "pkg", "pkg.sub")),
		mod("pkg", true),
		mod("pkg.util", false, imp("requests")),
		mod("pkg.sub", true),
		mod("pkg.sub.x", false, fromImp("util", 2, "helper")),
	)
	if diags := g.Diagnostics(); len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}

	res, err := Resolve(g, []namespace.ModuleID{"pkg.sub.x"})
	if err != nil {
		t.Fatal(err)
	}
	if got := packagesOf(res); !equalStrings(got, []string{"requests"}) {
		t.Errorf("packages = %v, expected [requests] through pkg.util", got)
	}
	if reached := res.Reached(); len(reached) != 1 || reached[0] != "pkg.util" {
		t.Errorf("reached = %v, expected [pkg.util]", reached)
	}
}
