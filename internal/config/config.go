package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Config holds tunables for query execution, plan extraction, insights and logging.
type Config struct {
	Runner   RunnerConfig  `json:"runner" yaml:"runner"`
	Plan     PlanConfig    `json:"plan" yaml:"plan"`
	Insights InsightConfig `json:"insights" yaml:"insights"`
	Log      LogConfig     `json:"log" yaml:"log"`
	Store    StoreConfig   `json:"store" yaml:"store"`
}

// RunnerConfig controls how queries are sent to the database.
type RunnerConfig struct {
	// TimeoutSeconds bounds each statement; 0 disables the limit.
	TimeoutSeconds float64 `json:"timeout_seconds" yaml:"timeout_seconds"`
	// ExplainOptions are placed inside EXPLAIN ( ... ).
	ExplainOptions []string `json:"explain_options" yaml:"explain_options"`
	// ShapeSetting is the server setting that forces a join-tree shape.
	ShapeSetting string `json:"shape_setting" yaml:"shape_setting"`
}

// Timeout converts TimeoutSeconds into a duration.
func (r RunnerConfig) Timeout() time.Duration {
	if r.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(r.TimeoutSeconds * float64(time.Second))
}

// PlanConfig adds node types to the built-in join and skip families.
type PlanConfig struct {
	ExtraJoinNodeTypes []string `json:"extra_join_node_types" yaml:"extra_join_node_types"`
	ExtraSkipNodeTypes []string `json:"extra_skip_node_types" yaml:"extra_skip_node_types"`
}

// InsightConfig defines thresholds for insight generation.
type InsightConfig struct {
	QErrorWarning    float64 `json:"qerror_warning" yaml:"qerror_warning"`
	QErrorCritical   float64 `json:"qerror_critical" yaml:"qerror_critical"`
	SlowdownWarning  float64 `json:"slowdown_warning" yaml:"slowdown_warning"`
	SlowdownCritical float64 `json:"slowdown_critical" yaml:"slowdown_critical"`
	MaxItems         int     `json:"max_items" yaml:"max_items"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
	// SeqURL enables shipping logs to a Seq server when set.
	SeqURL string `json:"seq_url" yaml:"seq_url"`
}

// StoreConfig configures the results database.
type StoreConfig struct {
	Path string `json:"path" yaml:"path"`
}

var (
	mu     sync.RWMutex
	active = Default()
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Runner: RunnerConfig{
			ExplainOptions: []string{"ANALYZE", "COSTS", "VERBOSE", "BUFFERS", "FORMAT JSON"},
			ShapeSetting:   "pg_hint_plan.dp_tree_shape",
		},
		Insights: InsightConfig{
			QErrorWarning:    10,
			QErrorCritical:   100,
			SlowdownWarning:  2,
			SlowdownCritical: 10,
			MaxItems:         5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Store: StoreConfig{
			Path: filepath.Join("output", "query_results.db"),
		},
	}
}

// Active returns the currently applied configuration.
func Active() Config {
	mu.RLock()
	defer mu.RUnlock()
	return active
}

// Use replaces the active configuration.
func Use(cfg Config) {
	mu.Lock()
	active = cfg
	mu.Unlock()
}

// Apply loads configuration from the provided path. Files ending in .yaml or
// .yml are read as YAML, anything else as JSON. Empty path resets to default.
func Apply(path string) error {
	if path == "" {
		Use(Default())
		return nil
	}
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	Use(cfg)
	return nil
}

// Load reads a configuration file on top of the defaults without activating it.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return cfg, errors.Wrap(err, "parse config")
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	def := Default()
	if len(cfg.Runner.ExplainOptions) == 0 {
		cfg.Runner.ExplainOptions = def.Runner.ExplainOptions
	}
	if strings.TrimSpace(cfg.Runner.ShapeSetting) == "" {
		cfg.Runner.ShapeSetting = def.Runner.ShapeSetting
	}
	if cfg.Insights.MaxItems <= 0 {
		cfg.Insights.MaxItems = def.Insights.MaxItems
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = def.Log.Format
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = def.Store.Path
	}
}
