package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pydeps/internal/core/errors"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const sampleTOML = `
root = "."
strict_requirements = false
versions = [
  "pyyaml>=6",
  { requirement = "opencv-python", import = "cv2.*" },
  { requirement = "torch-cpu", import = "torch.*", env = "cpu" },
]

[write_rules]
lazy = "exclude"

[[namespaces]]
name = "app"
path = "src/app"
aliases = ["legacy_app"]

[[namespaces]]
name = "plugins"
search_path = "plugins"

[[resolvers]]
name = "core"
roots = ["app", "app.**"]
exclude = ["app.tests.**"]
output_mode = "requirements"
output_file = "requirements/core.txt"

[[resolvers]]
name = "gpu"
namespace = "plugins"
env = "cpu"
skip_lazy = true
output_mode = "optional-dependencies"

[scan]
workers = 3

[watch]
debounce = "1s"
`

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "pydeps.toml", sampleTOML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Strict() {
		t.Error("strict_requirements = false was not applied")
	}
	if cfg.Root != dir {
		t.Errorf("Root = %q, want %q", cfg.Root, dir)
	}
	if got := cfg.Namespaces[0].Path; got != filepath.Join(dir, "src", "app") {
		t.Errorf("namespace path = %q", got)
	}
	if len(cfg.Versions) != 3 || cfg.Versions[0].Requirement != "pyyaml>=6" || cfg.Versions[0].Env != DefaultEnv {
		t.Errorf("versions = %+v", cfg.Versions)
	}
	if cfg.Versions[1].Import != "cv2.*" || cfg.Versions[2].Env != "cpu" {
		t.Errorf("versions tables = %+v", cfg.Versions[1:])
	}

	core, ok := cfg.Resolver("core")
	if !ok {
		t.Fatal("resolver core missing")
	}
	if core.OutputFile != filepath.Join(dir, "requirements", "core.txt") {
		t.Errorf("core output file = %q", core.OutputFile)
	}
	if core.WriteRules.Builtin != "exclude" || core.WriteRules.Lazy != "exclude" {
		t.Errorf("core write rules = %+v", core.WriteRules)
	}

	gpu, _ := cfg.Resolver("gpu")
	if gpu.OutputName != "gpu" || gpu.OutputFile != filepath.Join(dir, PyprojectFile) || !gpu.SkipLazy {
		t.Errorf("gpu resolver = %+v", gpu)
	}
	if cfg.Scan.Workers != 3 || cfg.Watch.Debounce != time.Second {
		t.Errorf("scan/watch = %+v %+v", cfg.Scan, cfg.Watch)
	}
	if cfg.DB.Path != filepath.Join(dir, ".pydeps", "history.db") {
		t.Errorf("db path = %q", cfg.DB.Path)
	}
	if !cfg.CacheEnabled() {
		t.Error("cache should default to enabled")
	}
	if strings.Join(cfg.ResolverNames(), ",") != "core,gpu" {
		t.Errorf("ResolverNames = %v", cfg.ResolverNames())
	}
}

func TestLoadPyproject(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "pyproject.toml", `
[project]
name = "demo"
dependencies = []

[tool.ruff]
line-length = 100

[tool.pydeps]
root = "src"

[[tool.pydeps.namespaces]]
name = "demo"
path = "demo"

[[tool.pydeps.resolvers]]
name = "demo"
roots = ["demo"]
output_mode = "dependencies"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Root != filepath.Join(dir, "src") {
		t.Errorf("Root = %q", cfg.Root)
	}
	if cfg.Namespaces[0].Path != filepath.Join(dir, "src", "demo") {
		t.Errorf("namespace path = %q", cfg.Namespaces[0].Path)
	}
	if cfg.Resolvers[0].OutputFile != path {
		t.Errorf("dependencies output should default to the pyproject itself, got %q", cfg.Resolvers[0].OutputFile)
	}
	if !cfg.Strict() {
		t.Error("strict_requirements should default to true")
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "pydeps.yaml", `
namespaces:
  - name: app
    path: app
versions:
  - numpy
  - requirement: pyyaml
    import: yaml.*
resolvers:
  - name: all
    namespace: app
watch:
  debounce: 250ms
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.Versions) != 2 || cfg.Versions[0].Requirement != "numpy" || cfg.Versions[1].Import != "yaml.*" {
		t.Errorf("versions = %+v", cfg.Versions)
	}
	if cfg.Resolvers[0].OutputMode != OutputNone {
		t.Errorf("output mode = %q", cfg.Resolvers[0].OutputMode)
	}
	if cfg.Watch.Debounce != 250*time.Millisecond {
		t.Errorf("debounce = %v", cfg.Watch.Debounce)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	base := "[[namespaces]]\nname = \"app\"\npath = \"app\"\n"
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"no namespaces", "root = \".\"\n", "at least one"},
		{"path and search path", "[[namespaces]]\nname = \"a\"\npath = \"a\"\nsearch_path = \"b\"\n", "exactly one"},
		{"bad prefix", "[[namespaces]]\nname = \"a\"\npath = \"a\"\nprefix = \"1bad\"\n", "prefix"},
		{"unknown key", "colour = \"blue\"\n" + base, "unknown config keys: colour"},
		{"unknown version key", "versions = [{ requirement = \"a\", scope = \"b\" }]\n" + base, "unknown versions key"},
		{"duplicate version", "versions = [\"PyYAML\", \"pyyaml>=6\"]\n" + base, "defined multiple times"},
		{"bad write mode", base + "[write_rules]\nlazy = \"sometimes\"\n", "unknown write mode"},
		{"resolver without roots", base + "[[resolvers]]\nname = \"r\"\n", "needs roots or a namespace"},
		{"duplicate resolver", base + "[[resolvers]]\nname = \"r\"\nroots = [\"app\"]\n[[resolvers]]\nname = \"r\"\nroots = [\"app\"]\n", "not unique"},
		{"unknown namespace", base + "[[resolvers]]\nname = \"r\"\nnamespace = \"other\"\n", "not defined"},
		{"unknown env", base + "[[resolvers]]\nname = \"r\"\nroots = [\"app\"]\nenv = \"gpu\"\n", "env \"gpu\""},
		{"requirements needs file", base + "[[resolvers]]\nname = \"r\"\nroots = [\"app\"]\noutput_mode = \"requirements\"\n", "output_file is required"},
		{"unknown output mode", base + "[[resolvers]]\nname = \"r\"\nroots = [\"app\"]\noutput_mode = \"setup.py\"\n", "unknown output_mode"},
		{"same output twice", base +
			"[[resolvers]]\nname = \"a\"\nroots = [\"app\"]\noutput_mode = \"dependencies\"\n" +
			"[[resolvers]]\nname = \"b\"\nroots = [\"app\"]\noutput_mode = \"dependencies\"\n", "write the same output"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "pydeps.toml", tt.content)
			_, err := Load(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.IsCode(err, errors.CodeConfiguration) {
				t.Errorf("expected CONFIGURATION_ERROR, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadPyprojectWithoutTable(t *testing.T) {
	path := writeFile(t, t.TempDir(), "pyproject.toml", "[project]\nname = \"x\"\n")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "[tool.pydeps]") {
		t.Fatalf("expected missing table error, got %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.WriteRules.Builtin != "exclude" || cfg.WriteRules.Lazy != "comment" {
		t.Errorf("write rules = %+v", cfg.WriteRules)
	}
	if cfg.Scan.Workers <= 0 || len(cfg.Scan.ExcludeDirs) == 0 {
		t.Errorf("scan defaults = %+v", cfg.Scan)
	}
	if cfg.Watch.RescansPerSecond != 2 || cfg.Observability.ServiceName != "pydeps" {
		t.Errorf("watch/observability defaults = %+v %+v", cfg.Watch, cfg.Observability)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("PYDEPS_SCAN_WORKERS", "7")
	t.Setenv("PYDEPS_CACHE_ENABLED", "false")
	t.Setenv("PYDEPS_WATCH_DEBOUNCE", "2s")
	t.Setenv("PYDEPS_STRICT_REQUIREMENTS", "not-a-bool")

	cfg := DefaultConfig()
	ApplyEnvOverrides(cfg)
	if cfg.Scan.Workers != 7 || cfg.CacheEnabled() || cfg.Watch.Debounce != 2*time.Second {
		t.Errorf("overrides not applied: %+v %+v %+v", cfg.Scan, cfg.Cache, cfg.Watch)
	}
	if !cfg.Strict() {
		t.Error("unparseable override must be ignored")
	}
}

func TestFindConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pyproject.toml", "[project]\nname = \"x\"\n")
	nested := filepath.Join(dir, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	if _, err := FindConfig(nested); !errors.IsCode(err, errors.CodeNotFound) {
		t.Fatalf("pyproject without [tool.pydeps] must not match, got %v", err)
	}

	want := writeFile(t, dir, "pyproject.toml", "[tool.pydeps]\nroot = \".\"\n")
	got, err := FindConfig(nested)
	if err != nil || got != want {
		t.Fatalf("FindConfig = %q, %v; want %q", got, err, want)
	}

	preferred := writeFile(t, filepath.Join(dir, "a"), "pydeps.toml", "")
	if got, _ := FindConfig(nested); got != preferred {
		t.Fatalf("nearest config should win, got %q", got)
	}
}

func TestResolveRelative(t *testing.T) {
	if got := ResolveRelative("/base", "  "); got != "/base" {
		t.Errorf("empty = %q", got)
	}
	if got := ResolveRelative("/base", "/abs/x"); got != "/abs/x" {
		t.Errorf("absolute = %q", got)
	}
	if got := ResolveRelative("/base", "a/../b"); got != "/base/b" {
		t.Errorf("relative = %q", got)
	}
}
