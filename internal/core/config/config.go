package config

import (
	"runtime"
	"time"
)

const (
	DefaultEnv        = "default"
	DefaultConfigFile = "pydeps.toml"
	PyprojectFile     = "pyproject.toml"
)

// Output modes of a resolver.
const (
	OutputRequirements = "requirements"
	OutputDependencies = "dependencies"
	OutputOptional     = "optional-dependencies"
	OutputNone         = "none"
)

type Config struct {
	// Root is the base directory of every relative path below. It is itself
	// relative to the directory holding the config file.
	Root               string        `toml:"root" yaml:"root"`
	StrictRequirements *bool         `toml:"strict_requirements" yaml:"strict_requirements"`
	WriteRules         WriteRules    `toml:"write_rules" yaml:"write_rules"`
	Namespaces         []Namespace   `toml:"namespaces" yaml:"namespaces"`
	Versions           []Version     `toml:"versions" yaml:"versions"`
	Resolvers          []Resolver    `toml:"resolvers" yaml:"resolvers"`
	Graph              Graph         `toml:"graph" yaml:"graph"`
	Scan               Scan          `toml:"scan" yaml:"scan"`
	Watch              Watch         `toml:"watch" yaml:"watch"`
	DB                 Database      `toml:"db" yaml:"db"`
	Cache              Cache         `toml:"cache" yaml:"cache"`
	Observability      Observability `toml:"observability" yaml:"observability"`

	// File is the config file this was loaded from, empty for DefaultConfig.
	File string `toml:"-" yaml:"-"`
}

// WriteRules hold write modes by name: include, comment or exclude. Empty
// values inherit from the top-level rules.
type WriteRules struct {
	Builtin string `toml:"builtin" yaml:"builtin"`
	Lazy    string `toml:"lazy" yaml:"lazy"`
	Guarded string `toml:"guarded" yaml:"guarded"`
}

// Namespace is one [[namespaces]] entry. Exactly one of Path and SearchPath
// is set.
type Namespace struct {
	Name       string   `toml:"name" yaml:"name"`
	Path       string   `toml:"path" yaml:"path"`
	SearchPath string   `toml:"search_path" yaml:"search_path"`
	Prefix     string   `toml:"prefix" yaml:"prefix"`
	Aliases    []string `toml:"aliases" yaml:"aliases"`
	// ReachableOnly drops modules below directories without __init__.py.
	ReachableOnly bool `toml:"reachable_only" yaml:"reachable_only"`
}

// Version maps imports to a pip requirement. A bare string entry is the
// requirement with its default import glob.
type Version struct {
	Requirement string `toml:"requirement" yaml:"requirement"`
	Import      string `toml:"import" yaml:"import"`
	Env         string `toml:"env" yaml:"env"`
}

// Resolver is one requirement group: roots to resolve and where the
// generated requirements go.
type Resolver struct {
	Name string `toml:"name" yaml:"name"`
	// Roots are module globs; `*` stays within a component, `**` crosses dots.
	Roots []string `toml:"roots" yaml:"roots"`
	// Namespace selects every module of a namespace when Roots is empty.
	Namespace  string     `toml:"namespace" yaml:"namespace"`
	Exclude    []string   `toml:"exclude" yaml:"exclude"`
	SkipLazy   bool       `toml:"skip_lazy" yaml:"skip_lazy"`
	Env        string     `toml:"env" yaml:"env"`
	OutputMode string     `toml:"output_mode" yaml:"output_mode"`
	OutputFile string     `toml:"output_file" yaml:"output_file"`
	OutputName string     `toml:"output_name" yaml:"output_name"`
	WriteRules WriteRules `toml:"write_rules" yaml:"write_rules"`
}

type Graph struct {
	ParentPackages bool `toml:"parent_packages" yaml:"parent_packages"`
}

type Scan struct {
	Workers      int      `toml:"workers" yaml:"workers"`
	ExcludeDirs  []string `toml:"exclude_dirs" yaml:"exclude_dirs"`
	ExcludeFiles []string `toml:"exclude_files" yaml:"exclude_files"`
	// LazyCallables name helpers like lazy_import("pkg") whose string
	// argument is recorded as a lazy import.
	LazyCallables []string `toml:"lazy_callables" yaml:"lazy_callables"`
}

type Watch struct {
	Debounce         time.Duration `toml:"debounce" yaml:"debounce"`
	RescansPerSecond float64       `toml:"rescans_per_second" yaml:"rescans_per_second"`
}

type Database struct {
	Enabled     bool          `toml:"enabled" yaml:"enabled"`
	Path        string        `toml:"path" yaml:"path"`
	BusyTimeout time.Duration `toml:"busy_timeout" yaml:"busy_timeout"`
}

type Cache struct {
	Enabled *bool  `toml:"enabled" yaml:"enabled"`
	Path    string `toml:"path" yaml:"path"`
}

type Observability struct {
	MetricsAddr  string `toml:"metrics_addr" yaml:"metrics_addr"`
	OTLPEndpoint string `toml:"otlp_endpoint" yaml:"otlp_endpoint"`
	ServiceName  string `toml:"service_name" yaml:"service_name"`
}

var defaultExcludeDirs = []string{
	".git", ".hg", "__pycache__", ".venv", "venv", ".tox", ".nox",
	".mypy_cache", ".pytest_cache", "node_modules", "build", "dist", "*.egg-info",
}

// DefaultConfig returns a configuration with every default applied and no
// namespaces, rooted at the working directory.
func DefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Root == "" {
		cfg.Root = "."
	}
	if cfg.StrictRequirements == nil {
		strict := true
		cfg.StrictRequirements = &strict
	}
	if cfg.WriteRules.Builtin == "" {
		cfg.WriteRules.Builtin = "exclude"
	}
	if cfg.WriteRules.Lazy == "" {
		cfg.WriteRules.Lazy = "comment"
	}
	if cfg.WriteRules.Guarded == "" {
		cfg.WriteRules.Guarded = "include"
	}
	for i := range cfg.Versions {
		if cfg.Versions[i].Env == "" {
			cfg.Versions[i].Env = DefaultEnv
		}
	}
	for i := range cfg.Resolvers {
		r := &cfg.Resolvers[i]
		if r.Env == "" {
			r.Env = DefaultEnv
		}
		if r.OutputMode == "" {
			r.OutputMode = OutputNone
		}
		if r.WriteRules.Builtin == "" {
			r.WriteRules.Builtin = cfg.WriteRules.Builtin
		}
		if r.WriteRules.Lazy == "" {
			r.WriteRules.Lazy = cfg.WriteRules.Lazy
		}
		if r.WriteRules.Guarded == "" {
			r.WriteRules.Guarded = cfg.WriteRules.Guarded
		}
		if r.OutputMode == OutputOptional && r.OutputName == "" {
			r.OutputName = r.Name
		}
	}

	if cfg.Scan.Workers <= 0 {
		cfg.Scan.Workers = runtime.NumCPU()
	}
	if cfg.Scan.ExcludeDirs == nil {
		cfg.Scan.ExcludeDirs = append([]string(nil), defaultExcludeDirs...)
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 500 * time.Millisecond
	}
	if cfg.Watch.RescansPerSecond <= 0 {
		cfg.Watch.RescansPerSecond = 2
	}
	if cfg.DB.Path == "" {
		cfg.DB.Path = ".pydeps/history.db"
	}
	if cfg.DB.BusyTimeout <= 0 {
		cfg.DB.BusyTimeout = 5 * time.Second
	}
	if cfg.Cache.Enabled == nil {
		enabled := true
		cfg.Cache.Enabled = &enabled
	}
	if cfg.Cache.Path == "" {
		cfg.Cache.Path = ".pydeps/cache.db"
	}
	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "pydeps"
	}
}

// Strict reports whether unmapped imports fail requirement generation.
func (c *Config) Strict() bool {
	return c.StrictRequirements == nil || *c.StrictRequirements
}

func (c *Config) CacheEnabled() bool {
	return c.Cache.Enabled != nil && *c.Cache.Enabled
}

// Resolver returns the resolver named name.
func (c *Config) Resolver(name string) (Resolver, bool) {
	for _, r := range c.Resolvers {
		if r.Name == name {
			return r, true
		}
	}
	return Resolver{}, false
}

// ResolverNames lists resolvers in declaration order.
func (c *Config) ResolverNames() []string {
	out := make([]string, 0, len(c.Resolvers))
	for _, r := range c.Resolvers {
		out = append(out, r.Name)
	}
	return out
}
