package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Pattern: RTINFER_[SECTION]_[KEY] (e.g., RTINFER_ENGINE_MAX_DEPTH).
func ApplyEnvOverrides(cfg *Config) {
	// Engine
	setEnvInt(&cfg.Engine.MaxDepth, "RTINFER_ENGINE_MAX_DEPTH")
	setEnvInt(&cfg.Engine.RecursionPasses, "RTINFER_ENGINE_RECURSION_PASSES")
	setEnvInt(&cfg.Engine.MaxCombinations, "RTINFER_ENGINE_MAX_COMBINATIONS")
	setEnvInt(&cfg.Engine.MaxTupleLength, "RTINFER_ENGINE_MAX_TUPLE_LENGTH")
	setEnvInt(&cfg.Engine.CacheSize, "RTINFER_ENGINE_CACHE_SIZE")
	setEnvString(&cfg.Engine.FieldAssignmentValue, "RTINFER_ENGINE_FIELD_ASSIGNMENT_VALUE")

	// Database
	setEnvBool(&cfg.DB.Enabled, "RTINFER_DB_ENABLED")
	setEnvString(&cfg.DB.Path, "RTINFER_DB_PATH")
	setEnvDuration(&cfg.DB.BusyTimeout, "RTINFER_DB_BUSY_TIMEOUT")

	// Watch
	setEnvDuration(&cfg.Watch.Debounce, "RTINFER_WATCH_DEBOUNCE")
	setEnvFloat64(&cfg.Watch.RateLimit, "RTINFER_WATCH_RATE_LIMIT")

	// Output
	setEnvString(&cfg.Output.Format, "RTINFER_OUTPUT_FORMAT")
	setEnvString(&cfg.Output.Path, "RTINFER_OUTPUT_PATH")

	// Observability
	setEnvString(&cfg.Observability.MetricsAddr, "RTINFER_OBSERVABILITY_METRICS_ADDR")
	setEnvString(&cfg.Observability.OTLPEndpoint, "RTINFER_OBSERVABILITY_OTLP_ENDPOINT")
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
