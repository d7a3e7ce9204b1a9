package app

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"pydeps/internal/core/config"
	"pydeps/internal/core/errors"
	"pydeps/internal/core/ports"
	"pydeps/internal/data/history"
	"pydeps/internal/engine/graph"
	"pydeps/internal/engine/parser"
	"pydeps/internal/engine/requirements"
)

// App owns one project: its configuration, the last scanned graph and the
// stores backing incremental scans and history.
type App struct {
	Config *config.Config
	// Parser is replaced by Reconfigure when scan.lazy_callables change.
	Parser ports.CodeParser

	logger *slog.Logger
	mapper *requirements.Mapper

	cache      ports.ParseCache
	closeCache func() error

	historyMu   sync.Mutex
	history     ports.HistoryStore
	ownsHistory bool

	mu    sync.RWMutex
	graph *graph.Graph
	// files holds the last parse of every scanned path so rescans skip
	// unchanged content without touching the cache database.
	files map[string]*parser.File
}

type Option func(*App)

func WithLogger(logger *slog.Logger) Option {
	return func(a *App) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithHistoryStore replaces the sqlite store opened from [db].
func WithHistoryStore(store ports.HistoryStore) Option {
	return func(a *App) { a.history = store }
}

// WithParseCache replaces the sqlite parse cache opened from [cache].
func WithParseCache(cache ports.ParseCache) Option {
	return func(a *App) { a.cache = cache }
}

func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New(errors.CodeConfiguration, "config is required")
	}
	a := &App{
		Config: cfg,
		Parser: newParser(cfg),
		logger: slog.Default(),
		files:  make(map[string]*parser.File),
	}
	for _, opt := range opts {
		opt(a)
	}

	mapper, err := newMapper(cfg, a.logger)
	if err != nil {
		return nil, err
	}
	a.mapper = mapper

	if a.cache == nil && cfg.CacheEnabled() {
		c, closer, err := openParseCache(cfg.Cache.Path)
		if err != nil {
			// the cache only saves work; scans still run without it
			a.logger.Warn("parse cache unavailable", "path", cfg.Cache.Path, "error", err)
		} else {
			a.cache, a.closeCache = c, closer
		}
	}
	return a, nil
}

func newParser(cfg *config.Config) *parser.Parser {
	return parser.NewParser(parser.Options{LazyCallables: cfg.Scan.LazyCallables})
}

func newMapper(cfg *config.Config, logger *slog.Logger) (*requirements.Mapper, error) {
	rules := make([]requirements.Rule, 0, len(cfg.Versions))
	for _, v := range cfg.Versions {
		rules = append(rules, requirements.Rule{Requirement: v.Requirement, Import: v.Import, Env: v.Env})
	}
	return requirements.NewMapper(rules, cfg.Strict(), logger)
}

// Reconfigure swaps in a reloaded configuration. The graph is kept until
// the next scan.
func (a *App) Reconfigure(cfg *config.Config) error {
	mapper, err := newMapper(cfg, a.logger)
	if err != nil {
		return err
	}
	a.mu.Lock()
	if !slices.Equal(a.Config.Scan.LazyCallables, cfg.Scan.LazyCallables) {
		a.Parser = newParser(cfg)
	}
	a.Config = cfg
	a.mapper = mapper
	a.mu.Unlock()
	return nil
}

func (a *App) config() (*config.Config, *requirements.Mapper) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.Config, a.mapper
}

// Graph returns the graph built by the last scan.
func (a *App) Graph() (*graph.Graph, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.graph == nil {
		return nil, errors.New(errors.CodeValidationError, "no graph: run a scan first")
	}
	return a.graph, nil
}

func (a *App) Logger() *slog.Logger {
	return a.logger
}

// historyStore opens the sqlite history on first use.
func (a *App) historyStore() (ports.HistoryStore, error) {
	a.historyMu.Lock()
	defer a.historyMu.Unlock()
	if a.history != nil {
		return a.history, nil
	}
	cfg, _ := a.config()
	if !cfg.DB.Enabled {
		return nil, errors.New(errors.CodeConfiguration, "history is disabled, set [db] enabled = true")
	}
	store, err := history.OpenWithTimeout(cfg.DB.Path, cfg.DB.BusyTimeout)
	if err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeInternal, "open history store"), errors.CtxPath, cfg.DB.Path)
	}
	a.history = store
	a.ownsHistory = true
	return store, nil
}

// Close flushes pending cache writes and closes the stores the app opened.
func (a *App) Close(_ context.Context) error {
	var errs []error
	if a.cache != nil {
		if err := a.cache.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("flush parse cache: %w", err))
		}
	}
	if a.closeCache != nil {
		if err := a.closeCache(); err != nil {
			errs = append(errs, fmt.Errorf("close parse cache: %w", err))
		}
		a.closeCache = nil
	}

	a.historyMu.Lock()
	if a.ownsHistory && a.history != nil {
		if err := a.history.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close history: %w", err))
		}
		a.history = nil
		a.ownsHistory = false
	}
	a.historyMu.Unlock()

	return stderrors.Join(errs...)
}
