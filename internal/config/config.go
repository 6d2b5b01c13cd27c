// Package config loads ingestcore's runtime settings via a layered
// koanf pipeline: struct defaults, an optional YAML file, then
// environment variables, in that precedence order.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Config holds every runtime tunable the daemon reads at startup.
type Config struct {
	MaxPlaylistSizeMB int           `koanf:"max_playlist_size_mb"`
	FetchTimeoutMs    int           `koanf:"fetch_timeout_ms"`
	CacheTTLDays      int           `koanf:"cache_ttl_days"`
	CacheDir          string        `koanf:"cache_dir"`
	QueueDBPath       string        `koanf:"queue_db_path"`
	WorkerConcurrency int           `koanf:"worker_concurrency"`
	RateLimitMax      int           `koanf:"rate_limit_max"`
	RateLimitWindowMs int           `koanf:"rate_limit_window_ms"`
	LockTTLSeconds    int           `koanf:"lock_ttl_seconds"`
	HTTPAddr          string        `koanf:"http_addr"`

	BatchSizeTierTV      int `koanf:"batch_size_tier_tv"`
	BatchSizeTierMobile  int `koanf:"batch_size_tier_mobile"`
	BatchSizeTierDesktop int `koanf:"batch_size_tier_desktop"`

	FuzzySimilarityThreshold        float64 `koanf:"fuzzy_similarity_threshold"`
	FuzzyMaxComparisonsPerSingleton int     `koanf:"fuzzy_max_comparisons_per_singleton"`
	FuzzyMaxSingletons              int     `koanf:"fuzzy_max_singletons"`

	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`
}

// FetchTimeout is FetchTimeoutMs as a time.Duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutMs) * time.Millisecond
}

// CacheTTL is CacheTTLDays as a time.Duration.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLDays) * 24 * time.Hour
}

// LockTTL is LockTTLSeconds as a time.Duration.
func (c Config) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// RateLimitWindow is RateLimitWindowMs as a time.Duration.
func (c Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowMs) * time.Millisecond
}

func defaultConfig() *Config {
	return &Config{
		MaxPlaylistSizeMB: 1024,
		FetchTimeoutMs:    30 * 60 * 1000,
		CacheTTLDays:      7,
		CacheDir:          "/data/ingestcore/cache",
		QueueDBPath:       "/data/ingestcore/queue.db",
		WorkerConcurrency: 2,
		RateLimitMax:      10,
		RateLimitWindowMs: 60 * 1000,
		LockTTLSeconds:    30 * 60,
		HTTPAddr:          ":8080",

		BatchSizeTierTV:      250,
		BatchSizeTierMobile:  400,
		BatchSizeTierDesktop: 1000,

		FuzzySimilarityThreshold:        0.85,
		FuzzyMaxComparisonsPerSingleton: 50,
		FuzzyMaxSingletons:              5000,

		LogLevel:  "info",
		LogFormat: "json",
	}
}

// ConfigPathEnvVar overrides the YAML config file location.
const ConfigPathEnvVar = "INGESTCORE_CONFIG_PATH"

// DefaultConfigPaths are searched, in order, when ConfigPathEnvVar is unset.
var DefaultConfigPaths = []string{
	"ingestcore.yaml",
	"/etc/ingestcore/ingestcore.yaml",
}

// Load builds a Config from defaults, an optional YAML file, then
// environment variables (highest precedence), matching cartographus's
// LoadWithKoanf layering.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	envProvider := env.Provider("", ".", func(key string) string {
		return strings.ToLower(key)
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Validate rejects settings that would make the system misbehave
// rather than merely underperform.
func (c *Config) Validate() error {
	if c.MaxPlaylistSizeMB <= 0 {
		return fmt.Errorf("max_playlist_size_mb must be positive, got %d", c.MaxPlaylistSizeMB)
	}
	if c.WorkerConcurrency <= 0 {
		return fmt.Errorf("worker_concurrency must be positive, got %d", c.WorkerConcurrency)
	}
	if c.FuzzySimilarityThreshold <= 0 || c.FuzzySimilarityThreshold > 1 {
		return fmt.Errorf("fuzzy_similarity_threshold must be in (0, 1], got %f", c.FuzzySimilarityThreshold)
	}
	if c.CacheDir == "" {
		return fmt.Errorf("cache_dir must not be empty")
	}
	return nil
}
