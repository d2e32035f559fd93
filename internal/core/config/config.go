package config

import (
	"time"
)

type Config struct {
	Version       int               `toml:"version"`
	Paths         Paths             `toml:"paths"`
	Exclude       Exclude           `toml:"exclude"`
	Engine        Engine            `toml:"engine"`
	Contracts     map[string]string `toml:"contracts"`
	Globals       map[string]string `toml:"globals"`
	Queries       []Query           `toml:"queries"`
	Watch         Watch             `toml:"watch"`
	DB            Database          `toml:"db"`
	Output        Output            `toml:"output"`
	Observability Observability     `toml:"observability"`
}

type Paths struct {
	ProjectRoot string   `toml:"project_root"`
	Roots       []string `toml:"roots"`
}

type Exclude struct {
	Dirs  []string `toml:"dirs"`
	Files []string `toml:"files"`
}

// Engine tunes inference. Zero values take the engine defaults.
type Engine struct {
	MaxDepth             int    `toml:"max_depth"`
	RecursionPasses      int    `toml:"recursion_passes"`
	MaxCombinations      int    `toml:"max_combinations"`
	MaxTupleLength       int    `toml:"max_tuple_length"`
	CacheSize            int    `toml:"cache_size"`
	FieldAssignmentValue string `toml:"field_assignment_value"`
}

// Query is a return-type question run after every analysis.
type Query struct {
	Target   string   `toml:"target"`
	Receiver string   `toml:"receiver"`
	Args     []string `toml:"args"`
}

type Watch struct {
	Debounce   time.Duration `toml:"debounce"`
	RateLimit  float64       `toml:"rate_limit"` // rebuilds per second
	RateBurst  int           `toml:"rate_burst"`
	Extensions []string      `toml:"extensions"`
}

type Database struct {
	Enabled     bool          `toml:"enabled"`
	Path        string        `toml:"path"`
	BusyTimeout time.Duration `toml:"busy_timeout"`
	Retention   int           `toml:"retention"`
}

type Output struct {
	Format string `toml:"format"`
	Path   string `toml:"path"`
}

type Observability struct {
	MetricsAddr  string `toml:"metrics_addr"`
	OTLPEndpoint string `toml:"otlp_endpoint"`
}

// Output formats understood by the report package.
var Formats = []string{"text", "json", "yaml", "sarif"}

// DefaultGlobals are the predeclared globals seeded into every field store.
func DefaultGlobals() map[string]string {
	return map[string]string{
		"$$":            "SmallInt",
		"$0":            "Text",
		"$PROGRAM_NAME": "Text",
	}
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}
