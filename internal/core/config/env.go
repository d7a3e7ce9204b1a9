package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Pattern: PYDEPS_[SECTION]_[KEY] (e.g., PYDEPS_SCAN_WORKERS).
func ApplyEnvOverrides(cfg *Config) {
	setEnvBoolPtr(&cfg.StrictRequirements, "PYDEPS_STRICT_REQUIREMENTS")

	setEnvInt(&cfg.Scan.Workers, "PYDEPS_SCAN_WORKERS")

	setEnvBool(&cfg.DB.Enabled, "PYDEPS_DB_ENABLED")
	setEnvString(&cfg.DB.Path, "PYDEPS_DB_PATH")
	setEnvDuration(&cfg.DB.BusyTimeout, "PYDEPS_DB_BUSY_TIMEOUT")

	setEnvBoolPtr(&cfg.Cache.Enabled, "PYDEPS_CACHE_ENABLED")
	setEnvString(&cfg.Cache.Path, "PYDEPS_CACHE_PATH")

	setEnvDuration(&cfg.Watch.Debounce, "PYDEPS_WATCH_DEBOUNCE")
	setEnvFloat64(&cfg.Watch.RescansPerSecond, "PYDEPS_WATCH_RESCANS_PER_SECOND")

	setEnvString(&cfg.Observability.MetricsAddr, "PYDEPS_OBSERVABILITY_METRICS_ADDR")
	setEnvString(&cfg.Observability.OTLPEndpoint, "PYDEPS_OBSERVABILITY_OTLP_ENDPOINT")
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key, "value", val)
		*target = val
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = i
		}
	}
}

func setEnvBool(target *bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(strings.ToLower(val))
		if err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = b
		}
	}
}

func setEnvBoolPtr(target **bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(strings.ToLower(val))
		if err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = &b
		}
	}
}

func setEnvFloat64(target *float64, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = f
		}
	}
}

func setEnvDuration(target *time.Duration, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = d
		}
	}
}
