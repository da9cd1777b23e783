// Package config loads and validates sneakerdb configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all knobs for a build run.
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Loader  LoaderConfig  `mapstructure:"loader"`
	Store   StoreConfig   `mapstructure:"store"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// APIConfig identifies the remote catalog provider and its limits.
type APIConfig struct {
	Host           string  `mapstructure:"host"`
	Key            string  `mapstructure:"key"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// CacheConfig sets where raw API responses are memoized.
type CacheConfig struct {
	Dir string `mapstructure:"dir"`
}

// LoaderConfig governs pagination behavior.
type LoaderConfig struct {
	PageSize       int `mapstructure:"page_size"`
	Concurrency    int `mapstructure:"concurrency"`
	PageRetries    int `mapstructure:"page_retries"`
	RetryBackoffMs int `mapstructure:"retry_backoff_ms"`
}

// StoreConfig controls the scratch store and the published artifact.
type StoreConfig struct {
	Output     string `mapstructure:"output"`
	SchemaPath string `mapstructure:"schema_path"`
}

// MetricsConfig optionally exposes Prometheus metrics during a run.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// maxConcurrency reflects the provider's ~5 req/sec rate limit; anything
// above 4 workers just queues on the limiter.
const maxConcurrency = 4

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SNEAKERDB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The provider hands out credentials under its own names.
	_ = v.BindEnv("api.host", "SNEAKERDB_API_HOST", "RAPIDAPI_HOST")
	_ = v.BindEnv("api.key", "SNEAKERDB_API_KEY", "RAPIDAPI_KEY")

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.timeout_seconds", 15)
	v.SetDefault("api.rate_limit_rps", 4.0)
	v.SetDefault("api.rate_limit_burst", 1)
	v.SetDefault("cache.dir", "_cache")
	v.SetDefault("loader.page_size", 100)
	v.SetDefault("loader.concurrency", 1)
	v.SetDefault("loader.page_retries", 0)
	v.SetDefault("loader.retry_backoff_ms", 500)
	v.SetDefault("store.output", "sneakers.db")
	v.SetDefault("metrics.listen_addr", "")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.API.Host == "" {
		return fmt.Errorf("api.host is required (RAPIDAPI_HOST)")
	}
	if c.API.Key == "" {
		return fmt.Errorf("api.key is required (RAPIDAPI_KEY)")
	}
	if c.API.TimeoutSeconds <= 0 {
		return fmt.Errorf("api.timeout_seconds must be > 0")
	}
	if c.Loader.PageSize <= 0 {
		return fmt.Errorf("loader.page_size must be > 0")
	}
	if c.Loader.Concurrency <= 0 {
		return fmt.Errorf("loader.concurrency must be > 0")
	}
	if c.Loader.Concurrency > maxConcurrency {
		return fmt.Errorf("loader.concurrency must be <= %d (provider rate limit)", maxConcurrency)
	}
	if c.Loader.PageRetries < 0 {
		return fmt.Errorf("loader.page_retries must be >= 0")
	}
	if c.Store.Output == "" {
		return fmt.Errorf("store.output is required")
	}
	return nil
}

// Timeout converts the HTTP timeout config into a duration.
func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RetryBackoff converts the retry backoff config into a duration.
func (c LoaderConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMs) * time.Millisecond
}
