// Package config loads the engine's YAML configuration file (cache
// root, worker pool size, per-slot rate limits, prefix commands),
// mirroring the teacher's cmd/aleutian Config/yaml.v3 pattern
// (config_parsing.go) rather than anhnv's service (which reads its
// settings from plain env vars, not a file). Values are layered
// default < file < CLI flag, the ordering cmd/taskgraph applies by
// loading a Config first and then overwriting individual fields from
// whichever flags the user actually passed.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the engine's on-disk configuration shape.
type Config struct {
	// CacheRoot is the filesystem root a CacheStore opens against.
	CacheRoot string `yaml:"cache_root"`
	// Workers is the in-process executor's worker pool size.
	Workers int `yaml:"workers"`
	// RateLimits maps a task_name or channel to its max concurrency.
	RateLimits map[string]int `yaml:"rate_limits"`
	// Prefixes maps a task_name or channel to the prefix command tasks
	// in it run under, absent a task-level override.
	Prefixes map[string]string `yaml:"prefixes"`
	// CompressLevel is parsed from the file but is not passed on to
	// tasks: a task's compression level comes only from its own
	// TaskOptions.CompressLevel.
	CompressLevel int `yaml:"compress_level"`
}

// Default returns the engine's built-in defaults, used when no config
// file is present and no flag overrides a field.
func Default() Config {
	return Config{
		CacheRoot: ".taskgraph-cache",
		Workers:   4,
	}
}

// Load reads and parses a YAML config file at path, starting from
// Default() so a partial file only overrides the fields it sets.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOptional is Load, except a missing file at path is not an
// error — the caller proceeds on Default() plus whatever flags it
// applies afterward.
func LoadOptional(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// Validate reports a *UsageError if cfg cannot build a Scheduler
// (worker count and every rate limit must be positive).
func (c Config) Validate() error {
	if c.Workers < 1 {
		return &UsageError{Msg: fmt.Sprintf("workers must be >= 1, got %d", c.Workers)}
	}
	for slot, limit := range c.RateLimits {
		if limit < 1 {
			return &UsageError{Msg: fmt.Sprintf("rate_limits[%q] must be >= 1, got %d", slot, limit)}
		}
	}
	return nil
}

// UsageError reports a malformed or invalid configuration.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string { return "config: " + e.Msg }
