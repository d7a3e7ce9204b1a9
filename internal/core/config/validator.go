package config

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	"pydeps/internal/core/errors"
	"pydeps/internal/engine/namespace"
	"pydeps/internal/engine/requirements"
)

func validate(cfg *Config) error {
	if err := validateWriteRules(cfg.WriteRules, "write_rules"); err != nil {
		return err
	}
	if err := validateNamespaces(cfg); err != nil {
		return err
	}
	if err := validateVersions(cfg); err != nil {
		return err
	}
	if err := validateResolvers(cfg); err != nil {
		return err
	}
	if err := validateScan(cfg); err != nil {
		return err
	}
	return validateWatch(cfg)
}

func invalid(format string, args ...any) error {
	return errors.New(errors.CodeConfiguration, fmt.Sprintf(format, args...))
}

func validateWriteRules(rules WriteRules, label string) error {
	if _, err := requirements.ParseWriteMode(rules.Builtin); err != nil {
		return errors.Wrap(err, errors.CodeConfiguration, label+".builtin")
	}
	if _, err := requirements.ParseWriteMode(rules.Lazy); err != nil {
		return errors.Wrap(err, errors.CodeConfiguration, label+".lazy")
	}
	if _, err := requirements.ParseWriteMode(rules.Guarded); err != nil {
		return errors.Wrap(err, errors.CodeConfiguration, label+".guarded")
	}
	return nil
}

func validateNamespaces(cfg *Config) error {
	if len(cfg.Namespaces) == 0 {
		return invalid("at least one [[namespaces]] entry is required")
	}
	for i, ns := range cfg.Namespaces {
		if strings.TrimSpace(ns.Name) == "" {
			return invalid("namespaces[%d].name must not be empty", i)
		}
		hasPath := strings.TrimSpace(ns.Path) != ""
		hasSearch := strings.TrimSpace(ns.SearchPath) != ""
		if hasPath == hasSearch {
			return invalid("namespace %q needs exactly one of path and search_path", ns.Name)
		}
		if hasSearch && ns.Prefix != "" {
			return invalid("namespace %q: prefix only applies to path entries", ns.Name)
		}
		if ns.Prefix != "" {
			if err := namespace.ValidateImportName(ns.Prefix); err != nil {
				return errors.Wrap(err, errors.CodeConfiguration, fmt.Sprintf("namespace %q prefix", ns.Name))
			}
		}
		for _, alias := range ns.Aliases {
			if err := namespace.ValidateImportName(alias); err != nil {
				return errors.Wrap(err, errors.CodeConfiguration, fmt.Sprintf("namespace %q alias", ns.Name))
			}
		}
	}
	return nil
}

func validateVersions(cfg *Config) error {
	seen := make(map[string]bool)
	for i, v := range cfg.Versions {
		name := requirements.RequirementName(v.Requirement)
		if name == "" {
			return invalid("versions[%d]: invalid requirement %q", i, v.Requirement)
		}
		if !namespace.IsIdentifier(strings.ReplaceAll(v.Env, "-", "_")) {
			return invalid("versions[%d]: env must be an identifier, hyphens allowed, got %q", i, v.Env)
		}
		key := requirements.NormalizeName(name) + "\x00" + v.Env
		if seen[key] {
			return invalid("requirement %q and env %q combination is defined multiple times", name, v.Env)
		}
		seen[key] = true
	}
	return nil
}

func validateResolvers(cfg *Config) error {
	names := make(map[string]bool)
	outputs := make(map[string]string)
	namespaces := make(map[string]bool)
	for _, ns := range cfg.Namespaces {
		namespaces[ns.Name] = true
	}
	envs := map[string]bool{DefaultEnv: true}
	for _, v := range cfg.Versions {
		envs[v.Env] = true
	}

	for i, r := range cfg.Resolvers {
		if strings.TrimSpace(r.Name) == "" {
			return invalid("resolvers[%d].name must not be empty", i)
		}
		if names[r.Name] {
			return invalid("resolver name %q is not unique", r.Name)
		}
		names[r.Name] = true

		if len(r.Roots) == 0 && r.Namespace == "" {
			return invalid("resolver %q needs roots or a namespace", r.Name)
		}
		if r.Namespace != "" && !namespaces[r.Namespace] {
			return invalid("resolver %q: namespace %q is not defined", r.Name, r.Namespace)
		}
		for _, p := range append(append([]string(nil), r.Roots...), r.Exclude...) {
			if _, err := glob.Compile(p, '.'); err != nil {
				return invalid("resolver %q: invalid module pattern %q: %v", r.Name, p, err)
			}
		}
		if !envs[r.Env] {
			return invalid("resolver %q: env %q has not been defined for any requirement", r.Name, r.Env)
		}
		if err := validateWriteRules(r.WriteRules, fmt.Sprintf("resolvers.%s.write_rules", r.Name)); err != nil {
			return err
		}

		switch r.OutputMode {
		case OutputNone:
			continue
		case OutputRequirements:
			if r.OutputFile == "" {
				return invalid("resolver %q: output_file is required for output_mode %q", r.Name, r.OutputMode)
			}
		case OutputDependencies, OutputOptional:
		default:
			return invalid("resolver %q: unknown output_mode %q, expected requirements, dependencies, optional-dependencies or none", r.Name, r.OutputMode)
		}

		target := r.OutputFile + "\x00" + r.OutputMode
		if r.OutputMode == OutputOptional {
			target += "\x00" + r.OutputName
		}
		if other, ok := outputs[target]; ok {
			return invalid("resolvers %q and %q write the same output", other, r.Name)
		}
		outputs[target] = r.Name
	}
	return nil
}

func validateScan(cfg *Config) error {
	for _, p := range append(append([]string(nil), cfg.Scan.ExcludeDirs...), cfg.Scan.ExcludeFiles...) {
		if _, err := glob.Compile(p); err != nil {
			return invalid("scan: invalid exclude pattern %q: %v", p, err)
		}
	}
	for _, name := range cfg.Scan.LazyCallables {
		if !namespace.IsIdentifier(strings.TrimSpace(name)) {
			return invalid("scan: lazy callable %q must be a plain function name", name)
		}
	}
	return nil
}

func validateWatch(cfg *Config) error {
	if cfg.Watch.Debounce < 0 {
		return invalid("watch.debounce must not be negative")
	}
	if cfg.DB.BusyTimeout < 0 {
		return invalid("db.busy_timeout must not be negative")
	}
	return nil
}
