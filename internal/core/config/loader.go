package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	domainerrors "rtinfer/internal/core/errors"

	"github.com/BurntSushi/toml"
)

// Load reads a TOML configuration file. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, domainerrors.AddContext(domainerrors.Wrap(err, domainerrors.CodeInternal, "read config"), domainerrors.CtxPath, path)
	default:
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, domainerrors.AddContext(domainerrors.Wrap(err, domainerrors.CodeValidationError, "decode config"), domainerrors.CtxPath, path)
		}
	}

	applyDefaults(&cfg)
	ApplyEnvOverrides(&cfg)

	for _, validate := range []func(*Config) error{
		validateVersion,
		validatePaths,
		validateExclude,
		validateEngine,
		validateContracts,
		validateGlobals,
		validateQueries,
		validateWatch,
		validateDatabase,
		validateOutput,
	} {
		if err := validate(&cfg); err != nil {
			return nil, domainerrors.AddContext(domainerrors.Wrap(err, domainerrors.CodeValidationError, "invalid config"), domainerrors.CtxPath, path)
		}
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}
	if len(cfg.Paths.Roots) == 0 {
		cfg.Paths.Roots = []string{"."}
	}
	if len(cfg.Exclude.Dirs) == 0 {
		cfg.Exclude.Dirs = []string{".git", "vendor", "node_modules", "tmp"}
	}

	if cfg.Engine.MaxDepth == 0 {
		cfg.Engine.MaxDepth = 64
	}
	if cfg.Engine.RecursionPasses == 0 {
		cfg.Engine.RecursionPasses = 3
	}
	if cfg.Engine.MaxCombinations == 0 {
		cfg.Engine.MaxCombinations = 64
	}
	if cfg.Engine.MaxTupleLength == 0 {
		cfg.Engine.MaxTupleLength = 1024
	}
	if cfg.Engine.CacheSize == 0 {
		cfg.Engine.CacheSize = 512
	}
	if strings.TrimSpace(cfg.Engine.FieldAssignmentValue) == "" {
		cfg.Engine.FieldAssignmentValue = "written"
	}

	globals := DefaultGlobals()
	for name, t := range cfg.Globals {
		globals[name] = t
	}
	cfg.Globals = globals

	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 500 * time.Millisecond
	}
	if cfg.Watch.RateLimit == 0 {
		cfg.Watch.RateLimit = 1
	}
	if cfg.Watch.RateBurst == 0 {
		cfg.Watch.RateBurst = 1
	}
	if len(cfg.Watch.Extensions) == 0 {
		cfg.Watch.Extensions = []string{".rb"}
	}

	if strings.TrimSpace(cfg.DB.Path) == "" {
		cfg.DB.Path = ".rtinfer/history.db"
	}
	if cfg.DB.BusyTimeout == 0 {
		cfg.DB.BusyTimeout = 5 * time.Second
	}
	if cfg.DB.Retention == 0 {
		cfg.DB.Retention = 100
	}

	if strings.TrimSpace(cfg.Output.Format) == "" {
		cfg.Output.Format = "text"
	}
}
