package formats

import (
	"encoding/json"
	"strings"
	"testing"

	"pydeps/internal/engine/graph"
	"pydeps/internal/engine/imports"
	"pydeps/internal/engine/namespace"
)

func sampleGraph(t *testing.T) *graph.Graph {
	t.Helper()
	reg := namespace.NewRegistry()
	if err := reg.Register(namespace.Root{Name: "core", Prefix: "app", Paths: []string{"/src/app"}}); err != nil {
		t.Fatal(err)
	}
	mod := func(id, path string, imps ...string) graph.ModuleImports {
		m := graph.ModuleImports{Module: namespace.DiscoveredModule{
			ID: namespace.ModuleID(id), Path: path, Namespace: "core", IsPackage: strings.HasSuffix(path, "__init__.py"),
		}}
		for i, p := range imps {
			m.Imports = append(m.Imports, imports.RawImport{Path: p, Line: i + 1})
		}
		return m
	}
	g, err := graph.NewBuilder(reg).Build([]graph.ModuleImports{
		mod("app", "/src/app/__init__.py", "app.a", "numpy"),
		mod("app.a", "/src/app/a.py", "app.b", "yaml"),
		mod("app.b", "/src/app/b.py", "app.a"),
		mod("app.c", "/src/app/c.py", "requests"),
	})
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestMarkdownGenerator_Groups(t *testing.T) {
	groups := []Group{
		{Name: "core", Roots: []string{"app"}, Visited: 3, Packages: []string{"numpy", "yaml"}, Requirements: sampleRequirements()},
		{Name: "empty", Roots: []string{"app.c"}, Visited: 1, Unresolved: []string{".missing"}},
	}
	out, err := NewMarkdownGenerator().Generate(groups, MarkdownReportOptions{TableOfContents: true, ProjectName: "demo"})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"project: demo\n",
		"- [core](#core)\n",
		"| core | 1 | 3 | 2 | 0 |\n",
		"| `numpy` | numpy | include | app, app.util |\n",
		"| `torch` | torch | comment [L] | app.cli |\n",
		"No external imports.\n",
		"- `.missing`\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "## Module Graph") {
		t.Error("module graph section requires a diagram")
	}
}

func TestRenderJSON(t *testing.T) {
	data, err := RenderJSON([]Group{{Name: "core", Roots: []string{"app"}, Requirements: sampleRequirements()[:1]}})
	if err != nil {
		t.Fatal(err)
	}
	var decoded []map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded[0]["name"] != "core" {
		t.Errorf("unexpected json: %s", data)
	}
	reqs := decoded[0]["requirements"].([]any)
	first := reqs[0].(map[string]any)
	if first["name"] != "numpy" || first["mode"] != "include" {
		t.Errorf("unexpected requirement: %v", first)
	}
	if pkgs, ok := decoded[0]["packages"].([]any); !ok || len(pkgs) != 0 {
		t.Errorf("packages should be an empty array, got %v", decoded[0]["packages"])
	}
}

func TestTSVGenerator(t *testing.T) {
	out, err := NewTSVGenerator().Generate([]Group{
		{Name: "core", Requirements: sampleRequirements()[:1]},
		{Name: "bare", Packages: []string{"numpy"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header and 3 rows, got %d:\n%s", len(lines), out)
	}
	if lines[2] != "core\tnumpy\tnumpy\tapp.util\t\tcomment\ttrue\tfalse" {
		t.Errorf("unexpected row %q", lines[2])
	}
	if !strings.HasPrefix(lines[3], "bare\t\tnumpy") {
		t.Errorf("unexpected row %q", lines[3])
	}
}

func TestMermaidGenerator(t *testing.T) {
	g := sampleGraph(t)
	out, err := NewMermaidGenerator(g).Generate()
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"flowchart LR\n",
		"  subgraph ns_core[\"core\"]\n",
		"    app_a[\"app.a\"]\n",
		"  ext_numpy([\"numpy\"])\n",
		"  app_a -->|CYCLE| app_b\n",
		"  app_b -->|CYCLE| app_a\n",
		"  app -->|",
		"  app -.-> ext_numpy\n",
		"cycleNode;",
	} {
		if want == "  app -->|" {
			if strings.Contains(out, want) {
				t.Errorf("app -> app.a is not part of a cycle:\n%s", out)
			}
			continue
		}
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}
}

func TestMermaidGenerator_ScopeAndExternals(t *testing.T) {
	g := sampleGraph(t)
	res, err := graph.Resolve(g, []namespace.ModuleID{"app.c"})
	if err != nil {
		t.Fatal(err)
	}
	gen := NewMermaidGenerator(g)
	gen.SetScope(res)
	gen.SetShowExternal(false)
	out, err := gen.Generate()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "app_c[\"app.c\"]") {
		t.Errorf("scoped module missing:\n%s", out)
	}
	if strings.Contains(out, "app_a") || strings.Contains(out, "ext_") {
		t.Errorf("out-of-scope nodes rendered:\n%s", out)
	}
}
