package report

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"pydeps/internal/core/errors"
	"pydeps/internal/ui/report/formats"
)

// ReadDeclared loads the requirement specifiers a project already declares.
// TOML files are read at the pyproject target for optional (empty selects
// [project] dependencies); anything else is parsed as requirements.txt.
// A missing file declares nothing.
func ReadDeclared(path, optional string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeNotFound, "read declared requirements"), errors.CtxPath, path)
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return declaredFromTOML(path, data, formats.PyprojectTarget(optional))
	}
	return declaredFromRequirements(string(data)), nil
}

func declaredFromTOML(path string, data []byte, keys []string) ([]string, error) {
	var decoded map[string]any
	if _, err := toml.Decode(string(data), &decoded); err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeValidationError, "decode pyproject"), errors.CtxPath, path)
	}
	var node any = decoded
	for _, k := range keys {
		table, ok := node.(map[string]any)
		if !ok {
			return nil, nil
		}
		if node, ok = table[k]; !ok {
			return nil, nil
		}
	}
	values, ok := node.([]any)
	if !ok {
		return nil, errors.New(errors.CodeValidationError, fmt.Sprintf("%s: %s is not an array", path, strings.Join(keys, ".")))
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func declaredFromRequirements(content string) []string {
	var out []string
	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if idx := strings.Index(line, " #"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		out = append(out, line)
	}
	return out
}
