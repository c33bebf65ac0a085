package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config represents the complete application configuration, merged from
// three layers:
// Layer 1: built-in defaults (see defaultValues)
// Layer 2: user overrides (~/.config/lumenhour/config.yaml)
// Layer 3: environment variables and runtime overrides
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Optimizer OptimizerConfig `mapstructure:"optimizer"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Report    ReportConfig    `mapstructure:"report"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Health    HealthConfig    `mapstructure:"health"`
	Debug     DebugConfig     `mapstructure:"debug"`
	Workers   int             `mapstructure:"workers"`

	// RateLimits overrides per-domain quotas in requests per minute.
	RateLimits      map[string]int `mapstructure:"rate_limits"`
	RateLimitMargin float64        `mapstructure:"rate_limit_margin"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// OptimizerConfig tunes the outbound request optimizer.
type OptimizerConfig struct {
	CacheMaxEntries  int           `mapstructure:"cache_max_entries"`
	SendGap          time.Duration `mapstructure:"send_gap"`
	DrainRetryDelay  time.Duration `mapstructure:"drain_retry_delay"`
	RetryBackoff     time.Duration `mapstructure:"retry_backoff"`
	BreakerThreshold int           `mapstructure:"breaker_threshold"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown"`
}

// ProvidersConfig holds upstream API credentials and endpoints.
type ProvidersConfig struct {
	// UserAgent is sent to every upstream; Nominatim rejects generic agents.
	UserAgent   string         `mapstructure:"user_agent"`
	OpenWeather ProviderConfig `mapstructure:"openweather"`
	Pexels      ProviderConfig `mapstructure:"pexels"`
	Unsplash    ProviderConfig `mapstructure:"unsplash"`
}

// ProviderConfig configures one keyed upstream API.
type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// ReportConfig controls report assembly defaults.
type ReportConfig struct {
	// DefaultTimezone applies when neither the request nor the location sets one.
	DefaultTimezone string `mapstructure:"default_timezone"`
	PhotoLimit      int    `mapstructure:"photo_limit"`
}

// LoggingConfig contains logging configuration
// Supports progressive logging profiles:
// - SIMPLE: Console output only, minimal configuration (CLI tools)
// - STRUCTURED: Structured sinks, correlation IDs (API services)
// - ENTERPRISE: Multiple sinks, middleware, throttling, policy enforcement (production)
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	// Valid values: SIMPLE, STRUCTURED, ENTERPRISE
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether metrics are exposed
	Enabled bool `mapstructure:"enabled"`

	// Port is the Prometheus exporter port. The main server proxies it at /metrics.
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	// Enabled controls whether health endpoints are exposed
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig contains debug and profiling configuration
type DebugConfig struct {
	// Enabled controls whether debug mode is active
	Enabled bool `mapstructure:"enabled"`

	// PprofEnabled mounts /debug/pprof when Enabled is also set.
	PprofEnabled bool `mapstructure:"pprof_enabled"`
}

// Validate reports every out-of-range setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.RateLimitMargin < 0 || c.RateLimitMargin > 1 {
		errs = append(errs, fmt.Errorf("rate_limit_margin %.2f must be between 0 and 1", c.RateLimitMargin))
	}
	for domain, perMinute := range c.RateLimits {
		if perMinute < 0 {
			errs = append(errs, fmt.Errorf("rate_limits.%s must not be negative", domain))
		}
	}
	if c.Optimizer.BreakerThreshold < 0 {
		errs = append(errs, errors.New("optimizer.breaker_threshold must not be negative"))
	}
	if c.Optimizer.CacheMaxEntries < 0 {
		errs = append(errs, errors.New("optimizer.cache_max_entries must not be negative"))
	}
	if c.Report.PhotoLimit < 0 {
		errs = append(errs, errors.New("report.photo_limit must not be negative"))
	}
	if tz := strings.TrimSpace(c.Report.DefaultTimezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("report.default_timezone: %w", err))
		}
	}
	switch strings.ToUpper(strings.TrimSpace(c.Logging.Profile)) {
	case "", "SIMPLE", "STRUCTURED", "ENTERPRISE":
	default:
		errs = append(errs, fmt.Errorf("logging.profile %q is not SIMPLE, STRUCTURED or ENTERPRISE", c.Logging.Profile))
	}
	return errors.Join(errs...)
}
