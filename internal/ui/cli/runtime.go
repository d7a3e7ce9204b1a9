package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	coreapp "pydeps/internal/core/app"
	"pydeps/internal/core/config"
	"pydeps/internal/core/errors"
	"pydeps/internal/core/ports"
	"pydeps/internal/shared/observability"
)

const logFileName = "pydeps.log"

// configureLogging sends logs to stderr, or to a file under the state
// directory when the terminal belongs to the UI.
func configureLogging(uiMode, verbose bool, stderr io.Writer) (*slog.Logger, func()) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	output := stderr
	closeFn := func() {}
	if uiMode {
		logPath := filepath.Join(config.StateDir(), logFileName)
		if f, err := openLogFile(logPath); err != nil {
			fmt.Fprintf(stderr, "warning: %v\n", err)
			output = io.Discard
		} else {
			output = f
			closeFn = func() { _ = f.Close() }
		}
	}

	logger := slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger, closeFn
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create log dir for %s: %w", path, err)
	}
	if fi, err := os.Lstat(path); err == nil && fi.Mode()&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("refusing to write logs to symlink path %s", path)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return f, nil
}

// loadConfig loads path, or the nearest config above the working directory
// when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeConfiguration, "resolve working directory")
		}
		found, err := config.FindConfig(cwd)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeConfiguration, "locate config")
		}
		path = found
	}
	return config.Load(path)
}

// runtime is everything a command needs once flags are parsed.
type runtime struct {
	app      *coreapp.App
	svc      ports.AnalysisService
	logger   *slog.Logger
	shutdown []func(context.Context) error
}

func newRuntime(ctx context.Context, opts *rootOptions, uiMode bool, stderr io.Writer) (*runtime, error) {
	logger, closeLogs := configureLogging(uiMode, opts.verbose, stderr)
	rt := &runtime{logger: logger}
	rt.shutdown = append(rt.shutdown, func(context.Context) error { closeLogs(); return nil })

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		rt.Close()
		return nil, err
	}

	if endpoint := cfg.Observability.OTLPEndpoint; endpoint != "" {
		stop, err := observability.InitTracing(ctx, endpoint, cfg.Observability.ServiceName)
		if err != nil {
			logger.Warn("tracing disabled", "endpoint", endpoint, "error", err)
		} else {
			rt.shutdown = append([]func(context.Context) error{stop}, rt.shutdown...)
		}
	}

	app, err := coreapp.New(cfg, coreapp.WithLogger(logger))
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.app = app
	rt.svc = app.AnalysisService()
	rt.shutdown = append([]func(context.Context) error{app.Close}, rt.shutdown...)
	return rt, nil
}

// Close releases resources in reverse order of acquisition.
func (rt *runtime) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, fn := range rt.shutdown {
		if err := fn(ctx); err != nil && rt.logger != nil {
			rt.logger.Warn("shutdown", "error", err)
		}
	}
	rt.shutdown = nil
}

// parseSince accepts an RFC 3339 timestamp, a YYYY-MM-DD date or a
// duration such as 72h counted back from now.
func parseSince(raw string, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return now.Add(-d), nil
	}
	return time.Time{}, errors.Newf(errors.CodeValidationError, "invalid --since %q: want RFC 3339, YYYY-MM-DD or a duration", raw)
}
