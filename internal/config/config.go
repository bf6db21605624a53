// Package config holds the testhive configuration: sharding behavior,
// coverage-watcher thresholds, and logging. Loaded from YAML with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all testhive configuration.
type Config struct {
	// Sharded test execution
	Sharding ShardingConfig `yaml:"sharding"`

	// Coverage trend watcher
	Watcher WatcherConfig `yaml:"watcher"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ShardingConfig configures parallel sharded execution.
type ShardingConfig struct {
	// ShardCount is the number of parallel shards.
	ShardCount int `yaml:"shard_count"`

	// MinFilesForSharding disables sharding for small suites.
	MinFilesForSharding int `yaml:"min_files_for_sharding"`

	// Timeout per shard, e.g. "120s".
	Timeout string `yaml:"timeout"`

	// DefaultRiskScore is assigned to tests with no source mapping.
	DefaultRiskScore float64 `yaml:"default_risk_score"`

	// MappingCacheSize bounds the test-to-source mapping cache.
	MappingCacheSize int `yaml:"mapping_cache_size"`
}

// WatcherConfig configures the coverage trend watcher.
type WatcherConfig struct {
	// CoverageThreshold is the minimum acceptable line coverage.
	CoverageThreshold float64 `yaml:"coverage_threshold"`

	// DropThreshold alerts when coverage drops by more than this many
	// percentage points between snapshots.
	DropThreshold float64 `yaml:"drop_threshold"`

	// HistoryLimit bounds the stored snapshot history.
	HistoryLimit int `yaml:"history_limit"`

	// HistoryPath is the JSON history file, relative to the project root.
	HistoryPath string `yaml:"history_path"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Sharding: ShardingConfig{
			ShardCount:          4,
			MinFilesForSharding: 8,
			Timeout:             "120s",
			DefaultRiskScore:    0.5,
			MappingCacheSize:    256,
		},
		Watcher: WatcherConfig{
			CoverageThreshold: 80.0,
			DropThreshold:     5.0,
			HistoryLimit:      100,
			HistoryPath:       ".testhive/coverage-history.json",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from a YAML file, falling back to defaults
// when the file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies TESTHIVE_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TESTHIVE_SHARD_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			c.Sharding.ShardCount = n
		}
	}
	if v := os.Getenv("TESTHIVE_MIN_FILES_FOR_SHARDING"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			c.Sharding.MinFilesForSharding = n
		}
	}
	if v := os.Getenv("TESTHIVE_SHARD_TIMEOUT"); v != "" {
		if _, err := time.ParseDuration(v); err == nil {
			c.Sharding.Timeout = v
		}
	}
	if v := os.Getenv("TESTHIVE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// ShardTimeout parses the sharding timeout, falling back to the default
// on a malformed value.
func (c *Config) ShardTimeout() time.Duration {
	d, err := time.ParseDuration(c.Sharding.Timeout)
	if err != nil || d <= 0 {
		return 120 * time.Second
	}
	return d
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Sharding.ShardCount < 1 {
		return fmt.Errorf("sharding.shard_count must be >= 1, got %d", c.Sharding.ShardCount)
	}
	if c.Sharding.MinFilesForSharding < 1 {
		return fmt.Errorf("sharding.min_files_for_sharding must be >= 1, got %d", c.Sharding.MinFilesForSharding)
	}
	if _, err := time.ParseDuration(c.Sharding.Timeout); err != nil {
		return fmt.Errorf("sharding.timeout is not a duration: %q", c.Sharding.Timeout)
	}
	if c.Sharding.DefaultRiskScore < 0 || c.Sharding.DefaultRiskScore > 1 {
		return fmt.Errorf("sharding.default_risk_score must be in [0,1], got %g", c.Sharding.DefaultRiskScore)
	}
	if c.Watcher.CoverageThreshold < 0 || c.Watcher.CoverageThreshold > 100 {
		return fmt.Errorf("watcher.coverage_threshold must be in [0,100], got %g", c.Watcher.CoverageThreshold)
	}
	return nil
}
