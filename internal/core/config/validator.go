package config

import (
	"fmt"
	"slices"
	"strings"

	"rtinfer/internal/core/config/helpers"
	"rtinfer/internal/engine/types"

	"github.com/gobwas/glob"
)

func validateVersion(cfg *Config) error {
	if cfg.Version != 1 {
		return fmt.Errorf("unsupported config version %d; supported version is 1", cfg.Version)
	}
	return nil
}

func validatePaths(cfg *Config) error {
	seen := make([]string, 0, len(cfg.Paths.Roots))
	for i, root := range cfg.Paths.Roots {
		root = strings.TrimSpace(root)
		if root == "" {
			return fmt.Errorf("paths.roots[%d] must not be empty", i)
		}
		if helpers.HasWildcard(root) {
			return fmt.Errorf("paths.roots[%d] %q must be a directory or file, not a pattern", i, root)
		}
		for _, prev := range seen {
			if helpers.IsPathOverlap(helpers.CleanPath(prev), helpers.CleanPath(root)) {
				return fmt.Errorf("paths.roots[%d] %q overlaps %q", i, root, prev)
			}
		}
		seen = append(seen, root)
	}
	return nil
}

func validateExclude(cfg *Config) error {
	for section, patterns := range map[string][]string{
		"exclude.dirs":  cfg.Exclude.Dirs,
		"exclude.files": cfg.Exclude.Files,
	} {
		for i, p := range patterns {
			if _, err := glob.Compile(p); err != nil {
				return fmt.Errorf("%s[%d] %q: %w", section, i, p, err)
			}
		}
	}
	return nil
}

func validateEngine(cfg *Config) error {
	e := cfg.Engine
	for name, v := range map[string]int{
		"engine.max_depth":        e.MaxDepth,
		"engine.recursion_passes": e.RecursionPasses,
		"engine.max_combinations": e.MaxCombinations,
		"engine.max_tuple_length": e.MaxTupleLength,
		"engine.cache_size":       e.CacheSize,
	} {
		if v < 1 {
			return fmt.Errorf("%s must be >= 1, got %d", name, v)
		}
	}
	switch e.FieldAssignmentValue {
	case "written", "accumulated":
	default:
		return fmt.Errorf("engine.field_assignment_value must be one of: written, accumulated")
	}
	return nil
}

func validateContracts(cfg *Config) error {
	for method, expr := range cfg.Contracts {
		if strings.TrimSpace(method) == "" {
			return fmt.Errorf("contracts: method name must not be empty")
		}
		if _, err := types.Parse(expr); err != nil {
			return fmt.Errorf("contracts.%s: %w", method, err)
		}
	}
	return nil
}

func validateGlobals(cfg *Config) error {
	for name, expr := range cfg.Globals {
		if !strings.HasPrefix(name, "$") {
			return fmt.Errorf("globals: %q is not a global variable name", name)
		}
		if _, err := types.Parse(expr); err != nil {
			return fmt.Errorf("globals.%s: %w", name, err)
		}
	}
	return nil
}

func validateQueries(cfg *Config) error {
	for i, q := range cfg.Queries {
		ref := fmt.Sprintf("queries[%d]", i)
		if _, _, _, err := SplitTarget(q.Target); err != nil {
			return fmt.Errorf("%s.target: %w", ref, err)
		}
		if q.Receiver != "" {
			if _, err := types.Parse(q.Receiver); err != nil {
				return fmt.Errorf("%s.receiver: %w", ref, err)
			}
		}
		for j, a := range q.Args {
			if _, err := types.Parse(a); err != nil {
				return fmt.Errorf("%s.args[%d]: %w", ref, j, err)
			}
		}
	}
	return nil
}

func validateWatch(cfg *Config) error {
	if cfg.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}
	if cfg.Watch.RateLimit < 0 {
		return fmt.Errorf("watch.rate_limit must not be negative")
	}
	if cfg.Watch.RateBurst < 1 {
		return fmt.Errorf("watch.rate_burst must be >= 1")
	}
	for i, ext := range cfg.Watch.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("watch.extensions[%d] %q must start with '.'", i, ext)
		}
	}
	return nil
}

func validateDatabase(cfg *Config) error {
	if !cfg.DB.Enabled {
		return nil
	}
	if strings.TrimSpace(cfg.DB.Path) == "" {
		return fmt.Errorf("db.path must not be empty")
	}
	if cfg.DB.BusyTimeout < 0 {
		return fmt.Errorf("db.busy_timeout must not be negative")
	}
	if cfg.DB.Retention < 0 {
		return fmt.Errorf("db.retention must not be negative")
	}
	return nil
}

func validateOutput(cfg *Config) error {
	if !slices.Contains(Formats, cfg.Output.Format) {
		return fmt.Errorf("output.format must be one of: %s", strings.Join(Formats, ", "))
	}
	return nil
}

// SplitTarget splits "Class#method" or "Class.method" into its class, method
// and whether the method is a singleton method. The last separator wins, so
// "A::B.c" and "A::B#c" both name class "A::B".
func SplitTarget(target string) (class, method string, singleton bool, err error) {
	target = strings.TrimSpace(target)
	i := strings.LastIndexAny(target, "#.")
	if i <= 0 || i == len(target)-1 {
		return "", "", false, fmt.Errorf("target %q must look like Class#method or Class.method", target)
	}
	return target[:i], target[i+1:], target[i] == '.', nil
}
