package app

import (
	"bytes"
	"context"
	"os"

	"pydeps/internal/core/config"
	"pydeps/internal/core/errors"
	"pydeps/internal/core/ports"
	"pydeps/internal/ui/report"
	"pydeps/internal/ui/report/formats"
)

// renderOutput returns the new content of a resolver's output file.
func renderOutput(r config.Resolver, res ports.GroupResult) ([]byte, error) {
	opts := formats.DefaultRequirementsOptions()
	opts.Resolver = r.Name

	switch r.OutputMode {
	case config.OutputRequirements:
		return []byte(formats.RenderRequirementsTxt(res.Requirements, opts)), nil
	case config.OutputDependencies, config.OutputOptional:
		existing, err := os.ReadFile(r.OutputFile)
		if err != nil && !os.IsNotExist(err) {
			return nil, errors.AddContext(errors.Wrap(err, errors.CodeNotFound, "read pyproject"), errors.CtxPath, r.OutputFile)
		}
		out, err := formats.SplicePyproject(string(existing), formats.PyprojectTarget(optionalName(r)), res.Requirements, opts)
		if err != nil {
			return nil, errors.AddContext(err, errors.CtxPath, r.OutputFile)
		}
		return []byte(out), nil
	}
	return nil, errors.New(errors.CodeConfiguration, "unknown output mode "+r.OutputMode)
}

func optionalName(r config.Resolver) string {
	if r.OutputMode == config.OutputOptional {
		return r.OutputName
	}
	return ""
}

// WriteOutputs resolves every group and writes the ones with an output
// mode. Files whose content would not change are left alone.
func (a *App) WriteOutputs(ctx context.Context) ([]ports.OutputResult, error) {
	groups, err := a.ResolveAll(ctx)
	if err != nil {
		return nil, err
	}
	cfg, _ := a.config()

	var out []ports.OutputResult
	for _, res := range groups {
		r, _ := cfg.Resolver(res.Name)
		if r.OutputMode == config.OutputNone {
			continue
		}
		content, err := renderOutput(r, res)
		if err != nil {
			return out, errors.AddContext(err, errors.CtxResolver, r.Name)
		}
		result := ports.OutputResult{Group: r.Name, Path: r.OutputFile, Mode: r.OutputMode}
		if current, err := os.ReadFile(r.OutputFile); err == nil && bytes.Equal(current, content) {
			out = append(out, result)
			continue
		}
		if err := report.WriteFileAtomic(r.OutputFile, content); err != nil {
			return out, errors.AddContext(errors.Wrap(err, errors.CodeInternal, "write output"), errors.CtxPath, r.OutputFile)
		}
		result.Written = true
		a.logger.Info("wrote requirements", "group", r.Name, "path", r.OutputFile, "mode", r.OutputMode)
		out = append(out, result)
	}
	return out, nil
}

// Check compares each output file's declared requirements with what the
// resolver would generate. Resolvers without an output file are checked
// against nothing, so every generated requirement shows as missing.
func (a *App) Check(ctx context.Context) ([]ports.CheckResult, error) {
	groups, err := a.ResolveAll(ctx)
	if err != nil {
		return nil, err
	}
	cfg, _ := a.config()

	out := make([]ports.CheckResult, 0, len(groups))
	for _, res := range groups {
		r, _ := cfg.Resolver(res.Name)
		var declared []string
		if r.OutputMode != config.OutputNone {
			declared, err = report.ReadDeclared(r.OutputFile, optionalName(r))
			if err != nil {
				return nil, errors.AddContext(err, errors.CtxResolver, r.Name)
			}
		}
		out = append(out, ports.CheckResult{
			Group: r.Name,
			Path:  r.OutputFile,
			Diff:  report.Diff(declared, report.IncludedNames(res.Requirements)),
		})
	}
	return out, nil
}
