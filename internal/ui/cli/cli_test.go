package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreapp "pydeps/internal/core/app"
	"pydeps/internal/core/config"
	"pydeps/internal/core/errors"
	"pydeps/internal/core/ports"
)

const testConfig = `
[[namespaces]]
name = "app"
path = "src/app"

[[versions]]
requirement = "pyyaml>=6"
import = "yaml.*"

[[versions]]
requirement = "numpy"

[[versions]]
requirement = "requests"

[[resolvers]]
name = "core"
roots = ["app.main"]
output_mode = "requirements"
output_file = "requirements.txt"

[[resolvers]]
name = "extras"
roots = ["app.plugins.*"]
output_mode = "optional-dependencies"

[db]
enabled = true
`

func writeTestProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"pydeps.toml":                 testConfig,
		"src/app/__init__.py":         "",
		"src/app/main.py":             "import os\nimport yaml\nfrom app import util\n",
		"src/app/util.py":             "def load():\n    import numpy\n    return numpy\n",
		"src/app/plugins/__init__.py": "",
		"src/app/plugins/web.py":      "import requests\nfrom app import util\n",
	}
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func execute(t *testing.T, root string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", filepath.Join(root, "pydeps.toml")}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, t.TempDir(), "version")
	require.NoError(t, err)
	assert.Equal(t, "pydeps v"+Version+"\n", out)
}

func TestResolveJSON(t *testing.T) {
	root := writeTestProject(t)
	out, err := execute(t, root, "resolve", "--format", "json")
	require.NoError(t, err)

	var groups []struct {
		Name         string `json:"name"`
		Requirements []struct {
			Name string `json:"name"`
			Mode string `json:"mode"`
		} `json:"requirements"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &groups))
	require.Len(t, groups, 2)
	assert.Equal(t, "core", groups[0].Name)
	assert.Equal(t, "extras", groups[1].Name)

	modes := map[string]string{}
	for _, r := range groups[0].Requirements {
		modes[r.Name] = r.Mode
	}
	assert.Equal(t, "include", modes["pyyaml>=6"])
	assert.Equal(t, "comment", modes["numpy"])
}

func TestResolveTextNamedGroup(t *testing.T) {
	root := writeTestProject(t)
	out, err := execute(t, root, "resolve", "extras")
	require.NoError(t, err)
	assert.Contains(t, out, "extras (")
	assert.Contains(t, out, "requests # app.plugins.web")
	assert.NotContains(t, out, "core (")
}

func TestResolveRejectsUnknownFormat(t *testing.T) {
	_, err := execute(t, writeTestProject(t), "resolve", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported --format")
}

func TestResolveInjectsMarkedBlock(t *testing.T) {
	root := writeTestProject(t)
	readme := filepath.Join(root, "README.md")
	require.NoError(t, os.WriteFile(readme, []byte("# demo\n<!-- pydeps:deps:start -->\nstale\n<!-- pydeps:deps:end -->\ntail\n"), 0o644))

	out, err := execute(t, root, "resolve", "core", "--inject", readme, "--marker", "deps")
	require.NoError(t, err)
	assert.Contains(t, out, "updated "+readme)

	data, err := os.ReadFile(readme)
	require.NoError(t, err)
	doc := string(data)
	assert.NotContains(t, doc, "stale")
	assert.Contains(t, doc, "| `pyyaml>=6` |")
	assert.True(t, strings.HasPrefix(doc, "# demo\n<!-- pydeps:deps:start -->\n"))
	assert.True(t, strings.HasSuffix(doc, "<!-- pydeps:deps:end -->\ntail\n"))

	_, err = execute(t, root, "resolve", "core", "--inject", readme, "--marker", "missing")
	assert.Error(t, err)
}

func TestCheckFailsUntilWritten(t *testing.T) {
	root := writeTestProject(t)

	out, err := execute(t, root, "check")
	assert.ErrorIs(t, err, errReported)
	assert.Contains(t, out, "+ pyyaml>=6")

	out, err = execute(t, root, "write")
	require.NoError(t, err)
	assert.Contains(t, out, "requirements.txt (core)")

	out, err = execute(t, root, "check")
	require.NoError(t, err)
	assert.NotContains(t, out, "stale")
}

func TestWhyCommand(t *testing.T) {
	root := writeTestProject(t)

	out, err := execute(t, root, "why", "core", "numpy")
	require.NoError(t, err)
	assert.Contains(t, out, "app.main -> app.util")
	assert.Contains(t, out, "app.util:2 imports numpy")
	assert.Contains(t, out, "(lazy)")

	out, err = execute(t, root, "why", "core", "requests")
	assert.ErrorIs(t, err, errReported)
	assert.Contains(t, out, "requests is not required by core")
}

func TestGraphCommand(t *testing.T) {
	out, err := execute(t, writeTestProject(t), "graph", "core", "--externals")
	require.NoError(t, err)
	assert.Contains(t, out, "flowchart LR")
}

func TestHistoryRecordThenShow(t *testing.T) {
	root := writeTestProject(t)

	out, err := execute(t, root, "history", "--record")
	require.NoError(t, err)
	assert.Contains(t, out, "recorded 2 snapshots")

	_, err = execute(t, root, "history", "--record")
	require.NoError(t, err)

	out, err = execute(t, root, "history", "core", "--format", "tsv")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "Group\t"))
	assert.True(t, strings.HasPrefix(lines[1], "core\t"))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 2, exitCode(errors.New(errors.CodeConfiguration, "bad config")))
	assert.Equal(t, 2, exitCode(fmt.Errorf("scan: %w", errors.New(errors.CodeDuplicateModule, "app.x found twice"))))
	assert.Equal(t, 1, exitCode(errors.New(errors.CodeNotFound, "missing")))
	assert.Equal(t, 1, exitCode(errReported))
}

func TestParseSince(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	got, err := parseSince("", now)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	got, err = parseSince("2026-03-01", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), got)

	got, err = parseSince("2026-03-01T08:30:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, 8, got.Hour())

	got, err = parseSince("48h", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-48*time.Hour), got)

	_, err = parseSince("last week", now)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeValidationError))
}

func TestBuildUpdateFromApp(t *testing.T) {
	root := writeTestProject(t)
	cfg, err := config.Load(filepath.Join(root, "pydeps.toml"))
	require.NoError(t, err)
	a, err := coreapp.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	ctx := context.Background()
	scan, err := a.Scan(ctx)
	require.NoError(t, err)
	groups, err := a.ResolveAll(ctx)
	require.NoError(t, err)
	g, err := a.Graph()
	require.NoError(t, err)

	msg := buildUpdate(g, ports.WatchUpdate{Scan: scan, Groups: groups})
	assert.Equal(t, 5, msg.moduleCount)
	assert.Zero(t, msg.cycles)
	require.Len(t, msg.groups, 2)

	var numpy *requirementView
	for i, r := range msg.groups[0].requirements {
		if r.name == "numpy" {
			numpy = &msg.groups[0].requirements[i]
		}
	}
	require.NotNil(t, numpy)
	require.Len(t, numpy.sources, 1)
	assert.Equal(t, "app.util", numpy.sources[0].module)
	assert.Equal(t, 2, numpy.sources[0].line)
	assert.Equal(t, "util.py", filepath.Base(numpy.sources[0].file))
}
