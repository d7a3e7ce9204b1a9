package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"pydeps/internal/core/errors"
)

// Load reads a pydeps.toml, a pyproject.toml with a [tool.pydeps] table, or
// a YAML file, then applies defaults, environment overrides and validation.
// Relative paths are resolved against the config file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, configError(errors.Wrap(err, errors.CodeConfiguration, "read config"), path)
	}

	cfg, err := decode(path, data)
	if err != nil {
		return nil, configError(err, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, configError(errors.Wrap(err, errors.CodeConfiguration, "resolve config path"), path)
	}
	cfg.File = abs

	applyDefaults(cfg)
	ApplyEnvOverrides(cfg)
	resolvePaths(cfg, filepath.Dir(abs))

	if err := validate(cfg); err != nil {
		return nil, configError(err, path)
	}
	return cfg, nil
}

func configError(err error, path string) error {
	if !errors.IsCode(err, errors.CodeConfiguration) {
		err = errors.Wrap(err, errors.CodeConfiguration, "invalid config")
	}
	return errors.AddContext(err, errors.CtxPath, path)
}

func decode(path string, data []byte) (*Config, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); {
	case ext == ".yaml" || ext == ".yml":
		return decodeYAML(data)
	case filepath.Base(path) == PyprojectFile:
		return decodePyproject(data)
	default:
		return decodeTOML(data)
	}
}

func decodeTOML(data []byte) (*Config, error) {
	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeConfiguration, "decode toml")
	}
	if err := checkUndecoded(md, ""); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type pyprojectDoc struct {
	Tool struct {
		Pydeps *Config `toml:"pydeps"`
	} `toml:"tool"`
}

func decodePyproject(data []byte) (*Config, error) {
	var doc pyprojectDoc
	md, err := toml.Decode(string(data), &doc)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeConfiguration, "decode pyproject.toml")
	}
	if doc.Tool.Pydeps == nil {
		return nil, errors.New(errors.CodeConfiguration, "pyproject.toml has no [tool.pydeps] table")
	}
	if err := checkUndecoded(md, "tool.pydeps"); err != nil {
		return nil, err
	}
	return doc.Tool.Pydeps, nil
}

// checkUndecoded rejects unknown keys below prefix. Version entries check
// their own keys.
func checkUndecoded(md toml.MetaData, prefix string) error {
	var unknown []string
	for _, key := range md.Undecoded() {
		parts := []string(key)
		if prefix != "" {
			want := strings.Split(prefix, ".")
			if len(parts) <= len(want) || strings.Join(parts[:len(want)], ".") != prefix {
				continue
			}
			parts = parts[len(want):]
		}
		if parts[0] == "versions" {
			continue
		}
		unknown = append(unknown, strings.Join(parts, "."))
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return errors.New(errors.CodeConfiguration, fmt.Sprintf("unknown config keys: %s", strings.Join(unknown, ", ")))
}

func decodeYAML(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if err == io.EOF {
			return &cfg, nil
		}
		return nil, errors.Wrap(err, errors.CodeConfiguration, "decode yaml")
	}
	return &cfg, nil
}

// UnmarshalTOML accepts either a requirement string or a table.
func (v *Version) UnmarshalTOML(data any) error {
	switch x := data.(type) {
	case string:
		*v = Version{Requirement: x}
		return nil
	case map[string]any:
		out := Version{}
		for key, raw := range x {
			s, ok := raw.(string)
			if !ok {
				return errors.New(errors.CodeConfiguration, fmt.Sprintf("versions.%s must be a string", key))
			}
			if err := out.set(key, s); err != nil {
				return err
			}
		}
		*v = out
		return nil
	}
	return errors.New(errors.CodeConfiguration, fmt.Sprintf("versions entry must be a string or a table, got %T", data))
}

func (v *Version) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*v = Version{Requirement: node.Value}
		return nil
	case yaml.MappingNode:
		out := Version{}
		for i := 0; i+1 < len(node.Content); i += 2 {
			if err := out.set(node.Content[i].Value, node.Content[i+1].Value); err != nil {
				return err
			}
		}
		*v = out
		return nil
	}
	return errors.New(errors.CodeConfiguration, fmt.Sprintf("versions entry must be a string or a mapping (line %d)", node.Line))
}

func (v *Version) set(key, value string) error {
	switch key {
	case "requirement":
		v.Requirement = value
	case "import":
		v.Import = value
	case "env":
		v.Env = value
	default:
		return errors.New(errors.CodeConfiguration, fmt.Sprintf("unknown versions key %q", key))
	}
	return nil
}

func resolvePaths(cfg *Config, configDir string) {
	cfg.Root = ResolveRelative(configDir, cfg.Root)
	for i := range cfg.Namespaces {
		ns := &cfg.Namespaces[i]
		if strings.TrimSpace(ns.Path) != "" {
			ns.Path = ResolveRelative(cfg.Root, ns.Path)
		}
		if strings.TrimSpace(ns.SearchPath) != "" {
			ns.SearchPath = ResolveRelative(cfg.Root, ns.SearchPath)
		}
	}
	for i := range cfg.Resolvers {
		r := &cfg.Resolvers[i]
		switch {
		case strings.TrimSpace(r.OutputFile) != "":
			r.OutputFile = ResolveRelative(cfg.Root, r.OutputFile)
		case r.OutputMode == OutputDependencies || r.OutputMode == OutputOptional:
			r.OutputFile = filepath.Join(configDir, PyprojectFile)
		}
	}
	cfg.DB.Path = ResolveRelative(cfg.Root, cfg.DB.Path)
	cfg.Cache.Path = ResolveRelative(cfg.Root, cfg.Cache.Path)
}
