package app

import (
	"context"
	"path/filepath"
	"time"

	"pydeps/internal/core/config"
	"pydeps/internal/core/ports"
	"pydeps/internal/core/watcher"
	"pydeps/internal/shared/observability"
	"pydeps/internal/shared/util"
)

// watchPaths are the namespace directories (or single module files) to
// watch.
func watchPaths(cfg *config.Config) []string {
	seen := make(map[string]bool)
	var out []string
	for _, ns := range cfg.Namespaces {
		p := ns.Path
		if p == "" {
			p = ns.SearchPath
		}
		p = filepath.Clean(p)
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// Watch scans once, then rescans and re-resolves whenever watched sources
// or the config file change, until ctx is done. Rescans are rate limited
// by watch.rescans_per_second; changes arriving during a rescan coalesce
// into the next one.
func (a *App) Watch(ctx context.Context, onUpdate func(ports.WatchUpdate)) error {
	if onUpdate == nil {
		onUpdate = func(ports.WatchUpdate) {}
	}
	cfg, _ := a.config()

	if addr := cfg.Observability.MetricsAddr; addr != "" {
		srv, err := observability.StartMetricsServer(addr, a.logger)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	onUpdate(a.rescan(ctx, nil))

	changes := make(chan []string, 1)
	notify := func(paths []string) {
		select {
		case changes <- paths:
		default:
			// a rescan is already pending and will see these files too
		}
	}

	w, err := watcher.NewWatcher(cfg.Watch.Debounce, cfg.Scan.ExcludeDirs, cfg.Scan.ExcludeFiles, notify)
	if err != nil {
		return err
	}
	w.SetLogger(a.logger)
	if err := w.Watch(watchPaths(cfg)); err != nil {
		_ = w.Close()
		return err
	}
	defer func() { _ = w.Close() }()

	reloads := make(chan *config.Config, 1)
	if cfg.File != "" {
		cw := config.NewWatcher(cfg.File, a.logger, func(next *config.Config) {
			select {
			case reloads <- next:
			default:
			}
		})
		if err := cw.Start(ctx); err != nil {
			a.logger.Warn("config file not watched", "path", cfg.File, "error", err)
		} else {
			defer cw.Stop()
		}
	}

	limiter := util.NewLimiter(cfg.Watch.RescansPerSecond, 1)
	a.logger.Info("watching for changes", "paths", watchPaths(cfg), "debounce", cfg.Watch.Debounce)

	for {
		var changed []string
		select {
		case <-ctx.Done():
			return nil
		case changed = <-changes:
		case next := <-reloads:
			if err := a.Reconfigure(next); err != nil {
				a.logger.Error("reloaded config rejected", "error", err)
				continue
			}
			a.logger.Info("config reloaded", "path", next.File)
			changed = []string{next.File}
		}
		if err := limiter.Wait(ctx, 1); err != nil {
			return nil
		}
		onUpdate(a.rescan(ctx, changed))
	}
}

func (a *App) rescan(ctx context.Context, changed []string) ports.WatchUpdate {
	update := ports.WatchUpdate{Changed: changed}
	scan, err := a.Scan(ctx)
	if err == nil {
		update.Scan = scan
		update.Groups, err = a.ResolveAll(ctx)
	}
	if err != nil {
		observability.RescansTotal.WithLabelValues("error").Inc()
		a.logger.Error("rescan failed", "error", err)
		update.Err = err
		return update
	}
	observability.RescansTotal.WithLabelValues("ok").Inc()
	if len(changed) > 0 {
		a.logger.Info("rescanned", "changed", len(changed), "modules", scan.Modules, "cache_hits", scan.CacheHits)
	}
	return update
}
