package app

import (
	"context"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"pydeps/internal/core/config"
	"pydeps/internal/core/errors"
	"pydeps/internal/core/ports"
	"pydeps/internal/engine/discovery"
	"pydeps/internal/engine/graph"
	"pydeps/internal/engine/imports"
	"pydeps/internal/engine/namespace"
	"pydeps/internal/engine/parser"
	"pydeps/internal/shared/observability"
)

func sourcesFromConfig(cfg *config.Config) []discovery.Source {
	out := make([]discovery.Source, 0, len(cfg.Namespaces))
	for _, ns := range cfg.Namespaces {
		out = append(out, discovery.Source{
			Name:       ns.Name,
			Path:       ns.Path,
			SearchPath: ns.SearchPath,
			Prefix:     ns.Prefix,
			Aliases:    append([]string(nil), ns.Aliases...),
		})
	}
	return out
}

func reachableNamespaces(cfg *config.Config) []string {
	var out []string
	for _, ns := range cfg.Namespaces {
		if ns.ReachableOnly {
			out = append(out, ns.Name)
		}
	}
	return out
}

// Scan discovers every configured namespace, parses all modules and
// replaces the current graph. The graph is only built once every module
// has been parsed.
func (a *App) Scan(ctx context.Context) (ports.ScanResult, error) {
	ctx, span := observability.Tracer.Start(ctx, "App.Scan")
	defer span.End()
	start := time.Now()
	cfg, _ := a.config()

	disc, err := discovery.New(discovery.Options{
		ExcludeDirs:   cfg.Scan.ExcludeDirs,
		ExcludeFiles:  cfg.Scan.ExcludeFiles,
		ReachableOnly: reachableNamespaces(cfg),
		Logger:        a.logger,
	})
	if err != nil {
		return ports.ScanResult{}, err
	}
	reg := namespace.NewRegistry()
	roots, err := disc.Register(reg, sourcesFromConfig(cfg))
	if err != nil {
		return ports.ScanResult{}, err
	}
	mods, err := disc.Modules(roots)
	if err != nil {
		return ports.ScanResult{}, err
	}

	parsed, files, hits, err := a.parseModules(ctx, cfg, mods)
	if err != nil {
		return ports.ScanResult{}, err
	}

	buildStart := time.Now()
	_, buildSpan := observability.Tracer.Start(ctx, "graph.Build", trace.WithAttributes(attribute.Int("modules", len(parsed))))
	opts := []graph.Option{graph.WithLogger(a.logger)}
	if cfg.Graph.ParentPackages {
		opts = append(opts, graph.WithParentPackages())
	}
	g, err := graph.NewBuilder(reg, opts...).Build(parsed)
	buildSpan.End()
	if err != nil {
		return ports.ScanResult{}, err
	}
	observability.AnalysisDuration.WithLabelValues("build").Observe(time.Since(buildStart).Seconds())

	a.mu.Lock()
	a.graph = g
	a.files = files
	a.mu.Unlock()

	a.syncCache(files)

	observability.GraphNodes.Set(float64(g.NodeCount()))
	observability.GraphEdges.Set(float64(g.EdgeCount()))
	observability.GraphDiagnostics.Set(float64(len(g.Diagnostics())))
	observability.AnalysisDuration.WithLabelValues("scan").Observe(time.Since(start).Seconds())

	res := ports.ScanResult{
		Files:       len(files),
		CacheHits:   hits,
		Modules:     g.NodeCount(),
		Edges:       g.EdgeCount(),
		Diagnostics: len(g.Diagnostics()),
		Duration:    time.Since(start),
	}
	span.SetAttributes(
		attribute.Int("files", res.Files),
		attribute.Int("modules", res.Modules),
		attribute.Int("cache_hits", res.CacheHits),
	)
	a.logger.Debug("scan complete",
		"files", res.Files, "modules", res.Modules, "edges", res.Edges,
		"diagnostics", res.Diagnostics, "cache_hits", res.CacheHits, "duration", res.Duration)
	return res, nil
}

// parseModules parses every distinct file behind mods using at most
// scan.workers goroutines. Modules sharing a file through nested roots
// share one parse.
func (a *App) parseModules(ctx context.Context, cfg *config.Config, mods []namespace.DiscoveredModule) ([]graph.ModuleImports, map[string]*parser.File, int, error) {
	paths := make([]string, 0, len(mods))
	seen := make(map[string]bool, len(mods))
	for _, m := range mods {
		if !seen[m.Path] {
			seen[m.Path] = true
			paths = append(paths, m.Path)
		}
	}
	sort.Strings(paths)

	a.mu.RLock()
	previous := a.files
	p := a.Parser
	a.mu.RUnlock()

	var (
		mu    sync.Mutex
		files = make(map[string]*parser.File, len(paths))
		hits  atomic.Int64
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(max(cfg.Scan.Workers, 1))
	for _, path := range paths {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			file, cached, err := a.parseFile(p, path, previous[path])
			if err != nil {
				return err
			}
			if cached {
				hits.Add(1)
			}
			mu.Lock()
			files[path] = file
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, nil, 0, err
	}

	out := make([]graph.ModuleImports, 0, len(mods))
	for _, m := range mods {
		f := files[m.Path]
		diags := make([]imports.Diagnostic, len(f.Diagnostics))
		for i, d := range f.Diagnostics {
			d.Module = m.ID
			diags[i] = d
		}
		out = append(out, graph.ModuleImports{
			Module:      m,
			Imports:     f.Imports,
			Diagnostics: diags,
		})
	}
	return out, files, int(hits.Load()), nil
}

// parseFile returns the parse of path, reusing prev or the parse cache when
// the content hash still matches. A file that vanished since discovery
// becomes a NOT_FOUND diagnostic.
func (a *App) parseFile(p ports.CodeParser, path string, prev *parser.File) (*parser.File, bool, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &parser.File{
				Path: path,
				Diagnostics: []imports.Diagnostic{{
					Path:    path,
					Code:    errors.CodeNotFound,
					Message: "file removed during scan",
				}},
			}, false, nil
		}
		return nil, false, errors.AddContext(errors.Wrap(err, errors.CodeNotFound, "read source"), errors.CtxPath, path)
	}
	hash := p.Hash(content)

	if prev != nil && prev.Hash == hash {
		observability.ParseCacheLookups.WithLabelValues("memory").Inc()
		return prev, true, nil
	}
	if a.cache != nil {
		file, ok, err := a.cache.Lookup(path, hash)
		switch {
		case err != nil:
			a.logger.Warn("parse cache lookup failed", "path", path, "error", err)
		case ok:
			observability.ParseCacheLookups.WithLabelValues("hit").Inc()
			return file, true, nil
		}
		observability.ParseCacheLookups.WithLabelValues("miss").Inc()
	}

	start := time.Now()
	file, err := p.ParseFile(path, content)
	observability.ParsingDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, false, errors.AddContext(err, errors.CtxPath, path)
	}
	if file.ParsedAt.IsZero() {
		file.ParsedAt = time.Now().UTC()
	}
	if file.Failed() {
		a.logger.Warn("syntax error, module has no imports", "path", path)
	}
	if a.cache != nil {
		a.cache.Submit(file)
	}
	return file, false, nil
}

// syncCache drops cache rows for files no longer discovered.
func (a *App) syncCache(files map[string]*parser.File) {
	if a.cache == nil {
		return
	}
	if err := a.cache.Flush(); err != nil {
		a.logger.Warn("flush parse cache", "error", err)
		return
	}
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	if err := a.cache.PruneToPaths(paths); err != nil {
		a.logger.Warn("prune parse cache", "error", err)
	}
}
