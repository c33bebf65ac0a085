// Package config provides centralized configuration management for lumenhour.
// It implements the three-layer config pattern:
// Layer 1: built-in defaults
// Layer 2: user overrides (XDG config path or --config)
// Layer 3: environment variables and runtime overrides
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/fulmenhq/gofulmen/appidentity"
	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/lumenhour/lumenhour/internal/appid"
)

var (
	// appConfig holds the current application configuration
	appConfig   *Config
	configMu    sync.RWMutex
	appIdentity *appidentity.Identity
)

// EnvVarSpec defines environment variable mappings for config fields
// following the pattern: {PREFIX}{NAME} maps to config path
type EnvVarSpec = gfconfig.EnvVarSpec

// Environment variable types
const (
	EnvString = gfconfig.EnvString
	EnvInt    = gfconfig.EnvInt
	EnvBool   = gfconfig.EnvBool
)

// Load loads configuration from defaults, the user config file at
// DefaultConfigPath (when present), the environment and runtime overrides.
//
// This function is safe to call multiple times (e.g., for config reload)
func Load(ctx context.Context, runtimeOverrides ...map[string]any) (*Config, error) {
	return LoadFile(ctx, "", runtimeOverrides...)
}

// LoadFile is Load with an explicit user config file. An explicit path must
// exist; the default path is optional.
func LoadFile(ctx context.Context, path string, runtimeOverrides ...map[string]any) (*Config, error) {
	if appIdentity == nil {
		identity, err := appid.Get(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load app identity: %w", err)
		}
		appIdentity = identity
	}

	// Domain names in rate_limits contain dots.
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	if err := v.MergeConfigMap(defaultValues()); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}

	userPath, required := strings.TrimSpace(path), true
	if userPath == "" {
		userPath, required = DefaultConfigPath(), false
	}
	if userPath != "" {
		if _, err := os.Stat(userPath); err == nil {
			v.SetConfigFile(userPath)
			if err := v.MergeInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config %s: %w", userPath, err)
			}
		} else if required {
			return nil, fmt.Errorf("config file %s: %w", userPath, err)
		}
	}

	envOverrides, err := gfconfig.LoadEnvOverrides(getEnvSpecs())
	if err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}
	if err := applyMarginEnvOverride(envOverrides); err != nil {
		return nil, err
	}

	allOverrides := []map[string]any{envOverrides}
	allOverrides = append(allOverrides, runtimeOverrides...)
	for _, overrides := range allOverrides {
		if len(overrides) == 0 {
			continue
		}
		if err := v.MergeConfigMap(overrides); err != nil {
			return nil, fmt.Errorf("failed to apply overrides: %w", err)
		}
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}
	if cfg.RateLimits == nil {
		cfg.RateLimits = map[string]int{}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Store the loaded config
	setConfig(cfg)

	return cfg, nil
}

// defaultValues is layer 1. Durations are strings so they decode the same way
// as file and env values.
func defaultValues() map[string]any {
	return map[string]any{
		"server": map[string]any{
			"host":             "localhost",
			"port":             8080,
			"read_timeout":     "30s",
			"write_timeout":    "30s",
			"idle_timeout":     "120s",
			"shutdown_timeout": "10s",
		},
		"store": map[string]any{
			"driver": "libsql",
		},
		"optimizer": map[string]any{
			"cache_max_entries": 100,
			"send_gap":          "100ms",
			"drain_retry_delay": "1s",
			"retry_backoff":     "200ms",
			"breaker_threshold": 5,
			"breaker_cooldown":  "60s",
		},
		"providers": map[string]any{
			"user_agent": "lumenhour/1.0 (+https://github.com/lumenhour/lumenhour)",
		},
		"report": map[string]any{
			"default_timezone": "",
			"photo_limit":      6,
		},
		"logging": map[string]any{
			"level":   "info",
			"profile": "SIMPLE",
		},
		"metrics": map[string]any{
			"enabled": true,
			"port":    9090,
		},
		"health": map[string]any{
			"enabled": true,
		},
		"debug": map[string]any{
			"enabled":       false,
			"pprof_enabled": false,
		},
		"workers":           4,
		"rate_limit_margin": 0.9,
		"rate_limits":       map[string]any{},
	}
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

func envPrefix() string {
	prefix := appid.EnvPrefix
	if appIdentity != nil && appIdentity.EnvPrefix != "" {
		prefix = appIdentity.EnvPrefix
	}
	if !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}
	return prefix
}

// envBindings maps environment variable suffixes (after the app prefix) to
// dotted config keys. Durations bind as strings and are decoded later.
var envBindings = []EnvVarSpec{
	envString("HOST", "server.host"),
	envInt("PORT", "server.port"),
	envString("READ_TIMEOUT", "server.read_timeout"),
	envString("WRITE_TIMEOUT", "server.write_timeout"),
	envString("IDLE_TIMEOUT", "server.idle_timeout"),
	envString("SHUTDOWN_TIMEOUT", "server.shutdown_timeout"),

	envString("LOG_LEVEL", "logging.level"),
	envString("LOG_PROFILE", "logging.profile"),

	envString("DB_DRIVER", "store.driver"),
	envString("DB_PATH", "store.path"),
	envString("DB_URL", "store.url"),
	envString("DB_AUTH_TOKEN", "store.auth_token"),

	envInt("CACHE_MAX_ENTRIES", "optimizer.cache_max_entries"),
	envString("SEND_GAP", "optimizer.send_gap"),
	envString("DRAIN_RETRY_DELAY", "optimizer.drain_retry_delay"),
	envString("RETRY_BACKOFF", "optimizer.retry_backoff"),
	envInt("BREAKER_THRESHOLD", "optimizer.breaker_threshold"),
	envString("BREAKER_COOLDOWN", "optimizer.breaker_cooldown"),

	envString("USER_AGENT", "providers.user_agent"),
	envString("OPENWEATHER_API_KEY", "providers.openweather.api_key"),
	envString("OPENWEATHER_BASE_URL", "providers.openweather.base_url"),
	envString("PEXELS_API_KEY", "providers.pexels.api_key"),
	envString("PEXELS_BASE_URL", "providers.pexels.base_url"),
	envString("UNSPLASH_ACCESS_KEY", "providers.unsplash.api_key"),
	envString("UNSPLASH_BASE_URL", "providers.unsplash.base_url"),

	envString("DEFAULT_TIMEZONE", "report.default_timezone"),
	envInt("PHOTO_LIMIT", "report.photo_limit"),

	envBool("METRICS_ENABLED", "metrics.enabled"),
	envInt("METRICS_PORT", "metrics.port"),
	envBool("HEALTH_ENABLED", "health.enabled"),
	envBool("DEBUG_ENABLED", "debug.enabled"),
	envBool("DEBUG_PPROF_ENABLED", "debug.pprof_enabled"),
	envInt("WORKERS", "workers"),
}

func envString(suffix, key string) EnvVarSpec {
	return EnvVarSpec{Name: suffix, Path: strings.Split(key, "."), Type: EnvString}
}

func envInt(suffix, key string) EnvVarSpec {
	return EnvVarSpec{Name: suffix, Path: strings.Split(key, "."), Type: EnvInt}
}

func envBool(suffix, key string) EnvVarSpec {
	return EnvVarSpec{Name: suffix, Path: strings.Split(key, "."), Type: EnvBool}
}

// getEnvSpecs returns envBindings under the current env prefix.
func getEnvSpecs() []EnvVarSpec {
	prefix := envPrefix()
	specs := make([]EnvVarSpec, len(envBindings))
	for i, spec := range envBindings {
		spec.Name = prefix + spec.Name
		specs[i] = spec
	}
	return specs
}

func applyMarginEnvOverride(envOverrides map[string]any) error {
	value := strings.TrimSpace(os.Getenv(envPrefix() + "RATE_LIMIT_MARGIN"))
	if value == "" {
		return nil
	}
	margin, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid rate limit margin: %w", err)
	}
	envOverrides["rate_limit_margin"] = margin
	return nil
}

// appNamesForPaths returns the config name and binary name from app identity,
// falling back to "lumenhour" if not set.
func appNamesForPaths() (configName string, binaryName string) {
	configName = appid.ConfigName
	binaryName = appid.BinaryName
	if appIdentity == nil {
		return configName, binaryName
	}

	if strings.TrimSpace(appIdentity.ConfigName) != "" {
		configName = appIdentity.ConfigName
	}
	if strings.TrimSpace(appIdentity.BinaryName) != "" {
		binaryName = appIdentity.BinaryName
	}
	return configName, binaryName
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configName, _ := appNamesForPaths()
	configDir := gfconfig.GetAppConfigDir(configName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultDataDir returns the XDG-compliant data directory for the app.
func DefaultDataDir() string {
	configName, _ := appNamesForPaths()
	return gfconfig.GetAppDataDir(configName)
}

// DefaultCacheDir returns the XDG-compliant cache directory for the app.
func DefaultCacheDir() string {
	configName, _ := appNamesForPaths()
	return gfconfig.GetAppCacheDir(configName)
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	configName, _ := appNamesForPaths()
	dataDir := gfconfig.GetAppDataDir(configName)
	if strings.TrimSpace(dataDir) == "" {
		return "./" + appid.BinaryName + ".db"
	}
	return filepath.Join(dataDir, appid.BinaryName+".db")
}
