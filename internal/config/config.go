// Package config provides configuration management for the dashboard service.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	GitHub      GitHubConfig      `mapstructure:"github"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Enrichment  EnrichmentConfig  `mapstructure:"enrichment"`
	RateLimiter RateLimiterConfig `mapstructure:"rate_limiter"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
}

// GitHubConfig holds GitHub API client configuration.
type GitHubConfig struct {
	BaseURL            string  `mapstructure:"base_url"`
	Token              string  `mapstructure:"token"`
	Org                string  `mapstructure:"org"`
	Username           string  `mapstructure:"username"`
	RateWarnThreshold  int     `mapstructure:"rate_warn_threshold"`
	RequestsPerSecond  float64 `mapstructure:"requests_per_second"`
}

// CacheConfig holds response cache configuration.
type CacheConfig struct {
	Backend            string        `mapstructure:"backend"` // "file" or "redis"
	FilePath           string        `mapstructure:"file_path"`
	FileMaxBytes       int           `mapstructure:"file_max_bytes"`
	BlobKey            string        `mapstructure:"blob_key"`
	Debounce           time.Duration `mapstructure:"debounce"`
	EvictFraction      float64       `mapstructure:"evict_fraction"`
	Compression        bool          `mapstructure:"compression"`
	DefaultTTL         time.Duration `mapstructure:"default_ttl"`
	RepoMetadataTTL    time.Duration `mapstructure:"repo_metadata_ttl"`
	CommitListTTL      time.Duration `mapstructure:"commit_list_ttl"`
	BranchListTTL      time.Duration `mapstructure:"branch_list_ttl"`
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// EnrichmentConfig holds concurrent enrichment configuration.
type EnrichmentConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	MaxItems    int `mapstructure:"max_items"`
}

// RateLimiterConfig holds inbound rate limiter configuration.
type RateLimiterConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/prboard/")
	}

	// Read environment variables
	v.SetEnvPrefix("PRBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found, use defaults/env)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.request_timeout", "55s")

	// GitHub defaults
	v.SetDefault("github.base_url", "https://api.github.com")
	v.SetDefault("github.token", "")
	v.SetDefault("github.org", "")
	v.SetDefault("github.username", "")
	v.SetDefault("github.rate_warn_threshold", 10)
	v.SetDefault("github.requests_per_second", 10.0)

	// Cache defaults
	v.SetDefault("cache.backend", "file")
	v.SetDefault("cache.file_path", "prboard-cache.json")
	v.SetDefault("cache.file_max_bytes", 10485760)
	v.SetDefault("cache.blob_key", "prboard:response-cache")
	v.SetDefault("cache.debounce", "2500ms")
	v.SetDefault("cache.evict_fraction", 0.75)
	v.SetDefault("cache.compression", true)
	v.SetDefault("cache.default_ttl", "10m")
	v.SetDefault("cache.repo_metadata_ttl", "60m")
	v.SetDefault("cache.commit_list_ttl", "5m")
	v.SetDefault("cache.branch_list_ttl", "5m")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Enrichment defaults
	v.SetDefault("enrichment.concurrency", 8)
	v.SetDefault("enrichment.max_items", 500)

	// Rate limiter defaults
	v.SetDefault("rate_limiter.enabled", true)
	v.SetDefault("rate_limiter.requests_per_second", 50.0)
	v.SetDefault("rate_limiter.burst_size", 100)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.GitHub.BaseURL == "" {
		return fmt.Errorf("github base URL is required")
	}

	if c.GitHub.Org == "" {
		return fmt.Errorf("github org is required")
	}

	if c.Cache.Backend != "file" && c.Cache.Backend != "redis" {
		return fmt.Errorf("invalid cache backend: %s", c.Cache.Backend)
	}

	if c.Cache.Backend == "file" && c.Cache.FilePath == "" {
		return fmt.Errorf("cache file path is required for the file backend")
	}

	if c.Cache.Backend == "redis" {
		if c.Redis.Host == "" {
			return fmt.Errorf("redis host is required for the redis backend")
		}
		if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
			return fmt.Errorf("invalid redis port: %d", c.Redis.Port)
		}
	}

	if c.Cache.EvictFraction <= 0 || c.Cache.EvictFraction > 1 {
		return fmt.Errorf("cache evict fraction must be in (0, 1]: %f", c.Cache.EvictFraction)
	}

	if c.Cache.Debounce < 0 {
		return fmt.Errorf("cache debounce must not be negative")
	}

	if c.Enrichment.Concurrency <= 0 {
		return fmt.Errorf("enrichment concurrency must be positive")
	}

	if c.RateLimiter.Enabled {
		if c.RateLimiter.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate limiter requests per second must be positive")
		}
		if c.RateLimiter.BurstSize <= 0 {
			return fmt.Errorf("rate limiter burst size must be positive")
		}
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port <= 0 || c.Metrics.Port > 65535 {
			return fmt.Errorf("invalid metrics port: %d", c.Metrics.Port)
		}
	}

	return nil
}
