package config

import (
	"os"
	"path/filepath"
	"strings"

	"pydeps/internal/core/errors"
)

var configCandidates = []string{DefaultConfigFile, "pydeps.yaml", "pydeps.yml", PyprojectFile}

func ResolveRelative(base, value string) string {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return filepath.Clean(base)
	}
	if filepath.IsAbs(raw) {
		return filepath.Clean(raw)
	}
	return filepath.Clean(filepath.Join(base, raw))
}

// FindConfig walks up from start looking for a config file. A
// pyproject.toml only counts when it carries a [tool.pydeps] table.
func FindConfig(start string) (string, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeConfiguration, "resolve start directory")
	}
	dir := abs
	if info, err := os.Stat(abs); err == nil && !info.IsDir() {
		dir = filepath.Dir(abs)
	}

	for {
		for _, name := range configCandidates {
			candidate := filepath.Join(dir, name)
			data, err := os.ReadFile(candidate)
			if err != nil {
				continue
			}
			if name == PyprojectFile && !strings.Contains(string(data), "[tool.pydeps") {
				continue
			}
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	err = errors.New(errors.CodeNotFound, "no pydeps.toml, pydeps.yaml or pyproject.toml with [tool.pydeps] found")
	return "", errors.AddContext(err, errors.CtxPath, abs)
}

// StateDir is where pydeps keeps logs when the terminal is taken by the UI.
func StateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "pydeps")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "state", "pydeps")
	}
	return filepath.Join(os.TempDir(), "pydeps")
}
