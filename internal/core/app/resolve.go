package app

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"pydeps/internal/core/config"
	"pydeps/internal/core/errors"
	"pydeps/internal/core/ports"
	"pydeps/internal/engine/graph"
	"pydeps/internal/engine/imports"
	"pydeps/internal/engine/namespace"
	"pydeps/internal/engine/requirements"
	"pydeps/internal/shared/observability"
)

func (a *App) resolver(name string) (config.Resolver, error) {
	cfg, _ := a.config()
	r, ok := cfg.Resolver(name)
	if !ok {
		err := errors.New(errors.CodeNotFound, fmt.Sprintf("no resolver named %q", name))
		return config.Resolver{}, errors.AddContext(err, errors.CtxResolver, name)
	}
	return r, nil
}

// selectRoots expands a resolver's root globs, or every module of its
// namespace, minus the exclude globs.
func selectRoots(g *graph.Graph, r config.Resolver) ([]namespace.ModuleID, error) {
	patterns := r.Roots
	if len(patterns) == 0 {
		ids := g.Namespace(r.Namespace)
		if len(ids) == 0 {
			return nil, errors.AddContext(
				errors.New(errors.CodeValidationError, fmt.Sprintf("namespace %q has no modules", r.Namespace)),
				errors.CtxNamespace, r.Namespace)
		}
		patterns = make([]string, len(ids))
		for i, id := range ids {
			patterns[i] = string(id)
		}
	}
	roots, err := g.Select(patterns, r.Exclude)
	if err != nil {
		return nil, err
	}
	if len(roots) == 0 {
		return nil, errors.New(errors.CodeValidationError, fmt.Sprintf("resolver %q excludes every root", r.Name))
	}
	return roots, nil
}

func writeRules(w config.WriteRules) (requirements.Rules, error) {
	builtin, err := requirements.ParseWriteMode(w.Builtin)
	if err != nil {
		return requirements.Rules{}, err
	}
	lazy, err := requirements.ParseWriteMode(w.Lazy)
	if err != nil {
		return requirements.Rules{}, err
	}
	guarded, err := requirements.ParseWriteMode(w.Guarded)
	if err != nil {
		return requirements.Rules{}, err
	}
	return requirements.Rules{Builtin: builtin, Lazy: lazy, Guarded: guarded}, nil
}

// ResolveGroup resolves one resolver against the current graph and maps
// its external packages to requirements.
func (a *App) ResolveGroup(ctx context.Context, name string) (ports.GroupResult, error) {
	_, span := observability.Tracer.Start(ctx, "App.ResolveGroup", trace.WithAttributes(attribute.String("group", name)))
	defer span.End()
	start := time.Now()

	g, err := a.Graph()
	if err != nil {
		return ports.GroupResult{}, err
	}
	r, err := a.resolver(name)
	if err != nil {
		return ports.GroupResult{}, err
	}
	_, mapper := a.config()

	roots, err := selectRoots(g, r)
	if err != nil {
		return ports.GroupResult{}, errors.AddContext(err, errors.CtxResolver, name)
	}
	all, err := graph.NewResolver(graph.ResolveOptions{SkipLazy: r.SkipLazy}).Resolve(g, roots)
	if err != nil {
		return ports.GroupResult{}, err
	}
	explicit := all
	if !r.SkipLazy {
		explicit, err = graph.NewResolver(graph.ResolveOptions{SkipLazy: true}).Resolve(g, roots)
		if err != nil {
			return ports.GroupResult{}, err
		}
	}

	rules, err := writeRules(r.WriteRules)
	if err != nil {
		return ports.GroupResult{}, err
	}
	reqs, err := requirements.Generate(all, explicit, mapper, r.Env, rules)
	if err != nil {
		return ports.GroupResult{}, errors.AddContext(err, errors.CtxResolver, name)
	}

	for _, e := range all.Unresolved() {
		a.logger.Debug("unresolved internal import", "group", name, "module", e.Source, "import", e.Raw)
	}
	observability.ResolvedPackages.WithLabelValues(name).Set(float64(len(all.Packages())))
	observability.AnalysisDuration.WithLabelValues("resolve").Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("packages", len(all.Packages())), attribute.Int("visited", len(all.Visited())))

	rootNames := make([]string, len(roots))
	for i, id := range roots {
		rootNames[i] = string(id)
	}
	return ports.GroupResult{
		Name:         name,
		Roots:        rootNames,
		All:          all,
		Explicit:     explicit,
		Requirements: reqs,
	}, nil
}

// ResolveAll resolves every configured resolver concurrently over the same
// graph. Results keep declaration order.
func (a *App) ResolveAll(ctx context.Context) ([]ports.GroupResult, error) {
	cfg, _ := a.config()
	names := cfg.ResolverNames()
	out := make([]ports.GroupResult, len(names))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, name := range names {
		eg.Go(func() error {
			res, err := a.ResolveGroup(egCtx, name)
			if err != nil {
				return err
			}
			out[i] = res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Why finds the shortest import chain from a group's roots to a module
// importing pkg.
func (a *App) Why(ctx context.Context, group, pkg string) (ports.WhyResult, error) {
	_, span := observability.Tracer.Start(ctx, "App.Why")
	defer span.End()

	g, err := a.Graph()
	if err != nil {
		return ports.WhyResult{}, err
	}
	r, err := a.resolver(group)
	if err != nil {
		return ports.WhyResult{}, err
	}
	roots, err := selectRoots(g, r)
	if err != nil {
		return ports.WhyResult{}, err
	}
	key := imports.PackageKeyOf(pkg)
	chain, found, err := g.Trace(roots, key, graph.ResolveOptions{SkipLazy: r.SkipLazy})
	if err != nil {
		return ports.WhyResult{}, err
	}
	return ports.WhyResult{Group: group, Package: string(key), Chain: chain, Found: found}, nil
}
