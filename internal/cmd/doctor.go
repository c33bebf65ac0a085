package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lumenhour/lumenhour/internal/appid"
	"github.com/lumenhour/lumenhour/internal/config"
	"github.com/lumenhour/lumenhour/internal/core/store"
	"github.com/lumenhour/lumenhour/internal/observability"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long:  "Run diagnostic checks on the installation and suggest fixes for common issues.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		logger := observability.CLILogger
		bannerName := "doctor"
		if identity := GetAppIdentity(); identity != nil && identity.BinaryName != "" {
			bannerName = identity.BinaryName + " doctor"
		}
		logger.Info("=== " + bannerName + " ===")
		logger.Info("")

		const total = 7
		step := func(n int, label string) string { return fmt.Sprintf("[%d/%d] Checking %s...", n, total, label) }
		healthy := true

		goVersion := runtime.Version()
		logger.Info(step(1, "Go runtime")+" ✅ "+goVersion,
			zap.String("go_version", goVersion),
			zap.String("os", runtime.GOOS),
			zap.String("arch", runtime.GOARCH))

		libs := crucible.GetVersion()
		if libs.Gofulmen != "" {
			logger.Info(step(2, "Gofulmen")+" ✅ v"+libs.Gofulmen, zap.String("crucible_version", libs.Crucible))
		} else {
			logger.Warn(step(2, "Gofulmen") + " ⚠️  version unavailable")
			healthy = false
		}

		configPath := config.DefaultConfigPath()
		if cfgFile != "" {
			configPath = cfgFile
		}
		if fileExists(configPath) {
			logger.Info(step(3, "config file")+" ✅ "+configPath, zap.String("config_path", configPath))
		} else {
			logger.Info(step(3, "config file")+" ℹ️  "+configPath+" (not created; defaults apply)",
				zap.String("config_path", configPath))
		}

		cfg, cfgErr := currentConfig(ctx)
		if cfgErr == nil {
			cfgErr = cfg.Validate()
		}
		if cfgErr != nil {
			logger.Error(step(4, "configuration")+" ❌ invalid", zap.Error(cfgErr))
			logger.Info("")
			logger.Warn("⚠️  Fix the configuration and run doctor again.")
			return
		}
		logger.Info(step(4, "configuration") + " ✅ valid")

		if db, err := openStore(ctx, cfg); err != nil {
			logger.Warn(step(5, "location store")+" ⚠️  unavailable (built-in locations only)", zap.Error(err))
			healthy = false
		} else {
			records, listErr := db.ListLocations(ctx)
			mode := "local"
			if db.Remote() {
				mode = "remote"
			}
			_ = db.Close()
			if listErr != nil {
				logger.Warn(step(5, "location store")+" ⚠️  cannot list locations", zap.Error(listErr))
				healthy = false
			} else {
				logger.Info(fmt.Sprintf("%s ✅ %s [%s, schema v%d] (%d locations, %d saved)",
					step(5, "location store"), describeStore(cfg), mode, store.SchemaVersion, len(records), len(filterSaved(records))))
			}
		}

		if _, err := time.LoadLocation("America/New_York"); err != nil {
			logger.Error(step(6, "timezone database")+" ❌ unavailable", zap.Error(err))
			healthy = false
		} else {
			logger.Info(step(6, "timezone database") + " ✅ available")
		}

		providers := configuredProviders(cfg)
		if len(providers) == 0 {
			logger.Warn(step(7, "API keys") + " ⚠️  none set; reports omit weather and photos")
		} else {
			logger.Info(step(7, "API keys")+" ✅ "+strings.Join(providers, ", "), zap.Strings("providers", providers))
		}

		logger.Info("")
		if healthy {
			logger.Info("✅ All checks passed.")
		} else {
			logger.Warn("⚠️  Some checks failed. Review the output above for details.")
		}
	},
}

var (
	doctorInitForce      bool
	doctorInitWeatherKey string
	doctorResetConfig    bool
	doctorResetData      bool
	doctorResetAll       bool
)

var doctorInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		configPath := config.DefaultConfigPath()
		if configPath == "" {
			return fmt.Errorf("config path not resolved")
		}
		if fileExists(configPath) && !doctorInitForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", configPath)
		}

		weatherKey := strings.TrimSpace(doctorInitWeatherKey)
		if strings.EqualFold(weatherKey, "prompt") {
			key, err := promptForValue(cmd.InOrStdin(), cmd.OutOrStdout(), "OpenWeather API key (blank to skip): ")
			if err != nil {
				return err
			}
			weatherKey = key
		}

		if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
		mode := os.FileMode(0o644)
		if weatherKey != "" {
			mode = 0o600
		}
		if err := os.WriteFile(configPath, []byte(buildInitConfig(weatherKey)), mode); err != nil {
			return fmt.Errorf("write config file: %w", err)
		}

		observability.CLILogger.Info("Config initialized", zap.String("path", configPath))
		return nil
	},
}

var doctorConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration paths and effective settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger := observability.CLILogger
		configPath := config.DefaultConfigPath()
		dataDir := config.DefaultDataDir()
		cacheDir := config.DefaultCacheDir()

		logger.Info("Paths:")
		logger.Info(fmt.Sprintf("  Config file:     %s (%s)", configPath, existenceStatus(fileExists(configPath))))
		logger.Info(fmt.Sprintf("  Data directory:  %s (%s)", dataDir, existenceStatus(fileExists(dataDir))))
		logger.Info(fmt.Sprintf("  Cache directory: %s (%s)", cacheDir, existenceStatus(fileExists(cacheDir))))

		cfg, err := currentConfig(cmd.Context())
		if err != nil {
			logger.Warn("Config load failed", zap.Error(err))
			return nil
		}
		logger.Info(fmt.Sprintf("  Database:        %s", describeStore(cfg)))

		prefix := envPrefix()
		logger.Info("")
		logger.Info("Environment:")
		for _, name := range []string{"OPENWEATHER_API_KEY", "PEXELS_API_KEY", "UNSPLASH_ACCESS_KEY"} {
			logger.Info(fmt.Sprintf("  %s%s: %s", prefix, name, envStatus(prefix+name)))
		}

		logger.Info("")
		logger.Info("Effective settings:")
		logger.Info(fmt.Sprintf("  optimizer.cache_max_entries: %d", cfg.Optimizer.CacheMaxEntries))
		logger.Info(fmt.Sprintf("  optimizer.breaker_threshold: %d", cfg.Optimizer.BreakerThreshold))
		logger.Info(fmt.Sprintf("  optimizer.breaker_cooldown:  %s", cfg.Optimizer.BreakerCooldown))
		logger.Info(fmt.Sprintf("  rate_limit_margin:           %.2f", cfg.RateLimitMargin))
		logger.Info(fmt.Sprintf("  report.photo_limit:          %d", cfg.Report.PhotoLimit))
		return nil
	},
}

var doctorResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Remove the user config file and/or the local database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if doctorResetAll {
			doctorResetConfig, doctorResetData = true, true
		}
		if !doctorResetConfig && !doctorResetData {
			return fmt.Errorf("specify --config, --data, or --all")
		}

		if doctorResetConfig {
			if err := removeFile("Config", config.DefaultConfigPath()); err != nil {
				return err
			}
		}
		if doctorResetData {
			cfg, err := currentConfig(cmd.Context())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Store.URL != "" {
				return fmt.Errorf("remote store configured; database reset is not supported")
			}
			if err := removeFile("Database", localStorePath(cfg)); err != nil {
				return err
			}
		}
		return nil
	},
}

var doctorValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		configPath := cfgFile
		if configPath == "" {
			configPath = config.DefaultConfigPath()
		}
		if !fileExists(configPath) {
			return fmt.Errorf("config file not found: %s", configPath)
		}

		cfg, err := loadConfig(cmd.Context())
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		observability.CLILogger.Info("Config is valid", zap.String("path", configPath))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.AddCommand(doctorInitCmd, doctorConfigCmd, doctorResetCmd, doctorValidateCmd)

	doctorInitCmd.Flags().BoolVar(&doctorInitForce, "force", false, "overwrite existing config file")
	doctorInitCmd.Flags().StringVar(&doctorInitWeatherKey, "openweather-key", "", "set the OpenWeather API key or use 'prompt' to enter it")

	doctorResetCmd.Flags().BoolVar(&doctorResetConfig, "config", false, "remove user config file")
	doctorResetCmd.Flags().BoolVar(&doctorResetData, "data", false, "remove local database")
	doctorResetCmd.Flags().BoolVar(&doctorResetAll, "all", false, "remove config and data")
}

func localStorePath(cfg *config.Config) string {
	path := cfg.Store.Path
	if path == "" {
		path = config.DefaultStorePath()
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

func describeStore(cfg *config.Config) string {
	if cfg.Store.URL != "" {
		return cfg.Store.URL + " (remote)"
	}
	path := localStorePath(cfg)
	info, err := os.Stat(path)
	switch {
	case err == nil:
		return fmt.Sprintf("%s (%s)", path, formatFileSize(info.Size()))
	case os.IsNotExist(err):
		return path + " (not created yet)"
	default:
		return fmt.Sprintf("%s (error: %v)", path, err)
	}
}

func configuredProviders(cfg *config.Config) []string {
	var names []string
	for name, key := range map[string]string{
		"openweather": cfg.Providers.OpenWeather.APIKey,
		"pexels":      cfg.Providers.Pexels.APIKey,
		"unsplash":    cfg.Providers.Unsplash.APIKey,
	} {
		if strings.TrimSpace(key) != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func removeFile(label, path string) error {
	if path == "" {
		observability.CLILogger.Warn(label + " path not resolved; skipping")
		return nil
	}
	err := os.Remove(path)
	switch {
	case err == nil:
		observability.CLILogger.Info(label+" removed", zap.String("path", path))
	case os.IsNotExist(err):
		observability.CLILogger.Info(label+" already removed", zap.String("path", path))
	default:
		return fmt.Errorf("remove %s: %w", strings.ToLower(label), err)
	}
	return nil
}

// formatFileSize returns a human-readable file size
func formatFileSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}

func buildInitConfig(weatherKey string) string {
	lines := []string{
		"# lumenhour config - created by 'lumenhour doctor init'",
		"report:",
		"  photo_limit: 6",
		"  # default_timezone: Europe/London",
		"optimizer:",
		"  cache_max_entries: 100",
		"  breaker_threshold: 5",
		"  breaker_cooldown: 60s",
		"rate_limit_margin: 0.9",
		"providers:",
		"  openweather:",
	}
	if weatherKey != "" {
		lines = append(lines, fmt.Sprintf("    api_key: %q", weatherKey))
	} else {
		lines = append(lines, `    # api_key: ""  # or set LUMENHOUR_OPENWEATHER_API_KEY`)
	}
	lines = append(lines,
		"  pexels:",
		`    # api_key: ""  # or set LUMENHOUR_PEXELS_API_KEY`,
		"  unsplash:",
		`    # api_key: ""  # or set LUMENHOUR_UNSPLASH_ACCESS_KEY`,
	)
	return strings.Join(lines, "\n") + "\n"
}

func promptForValue(in io.Reader, out io.Writer, prompt string) (string, error) {
	if _, err := fmt.Fprint(out, prompt); err != nil {
		return "", err
	}
	value, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(value), nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func existenceStatus(exists bool) string {
	if exists {
		return "exists"
	}
	return "missing"
}

func envStatus(name string) string {
	if strings.TrimSpace(os.Getenv(name)) != "" {
		return "(set)"
	}
	return "(not set)"
}

func envPrefix() string {
	if identity := GetAppIdentity(); identity != nil && identity.EnvPrefix != "" {
		return identity.EnvPrefix
	}
	return appid.EnvPrefix
}
