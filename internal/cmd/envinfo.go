package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lumenhour/lumenhour/internal/config"
	"github.com/lumenhour/lumenhour/internal/observability"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display build, runtime, configuration, optimizer and provider settings.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		logger := observability.CLILogger
		sections := buildInfoSections()

		cfg, err := currentConfig(cmd.Context())
		if err != nil {
			logger.Warn("Config load failed", zap.Error(err))
		} else {
			sections = append(sections, configSections(cfg, cfgFile)...)
		}

		logger.Info("=== " + GetAppIdentity().BinaryName + " environment ===")
		for _, section := range sections {
			section.log(logger)
		}
	},
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}

// envRow is one labelled value. key, when set, is also attached as a
// structured field.
type envRow struct {
	label string
	value string
	key   string
}

type envSection struct {
	title string
	rows  []envRow
}

func (s envSection) log(logger *logging.Logger) {
	logger.Info("")
	logger.Info(s.title + ":")
	for _, row := range s.rows {
		line := fmt.Sprintf("  %-16s %s", row.label+":", row.value)
		if row.key != "" {
			logger.Info(line, zap.String(row.key, row.value))
			continue
		}
		logger.Info(line)
	}
}

func buildInfoSections() []envSection {
	versions := crucible.GetVersion()
	identity := GetAppIdentity()
	return []envSection{
		{title: "Application", rows: []envRow{
			{label: "Name", value: identity.BinaryName},
			{label: "Version", value: versionInfo.Version, key: "version"},
			{label: "Commit", value: versionInfo.Commit},
			{label: "Built", value: versionInfo.BuildDate},
			{label: "Gofulmen", value: versions.Gofulmen, key: "gofulmen_version"},
			{label: "Crucible", value: versions.Crucible, key: "crucible_version"},
		}},
		{title: "Runtime", rows: []envRow{
			{label: "Go", value: runtime.Version(), key: "go_version"},
			{label: "Platform", value: runtime.GOOS + "/" + runtime.GOARCH, key: "platform"},
			{label: "CPUs", value: fmt.Sprint(runtime.NumCPU())},
		}},
	}
}

// configSections describes cfg without printing secrets: API keys show only
// whether they are set.
func configSections(cfg *config.Config, configPath string) []envSection {
	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}
	storeRow := envRow{label: "Store path", value: cfg.Store.Path, key: "db_path"}
	if strings.TrimSpace(cfg.Store.URL) != "" {
		storeRow = envRow{label: "Store URL", value: redactURL(cfg.Store.URL), key: "db_url"}
	}
	defaultTZ := cfg.Report.DefaultTimezone
	if defaultTZ == "" {
		defaultTZ = "UTC"
	}

	return []envSection{
		{title: "Configuration", rows: []envRow{
			{label: "Config file", value: configPath, key: "config_file"},
			{label: "Listen", value: fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)},
			{label: "Logging", value: cfg.Logging.Level + " (" + cfg.Logging.Profile + ")"},
			{label: "Metrics", value: metricsStatus(cfg.Metrics)},
			{label: "Store driver", value: cfg.Store.Driver, key: "db_driver"},
			storeRow,
		}},
		{title: "Optimizer", rows: []envRow{
			{label: "Cache entries", value: fmt.Sprint(cfg.Optimizer.CacheMaxEntries)},
			{label: "Send gap", value: cfg.Optimizer.SendGap.String()},
			{label: "Retry backoff", value: cfg.Optimizer.RetryBackoff.String()},
			{label: "Breaker", value: fmt.Sprintf("%d failures, %s cooldown", cfg.Optimizer.BreakerThreshold, cfg.Optimizer.BreakerCooldown)},
			{label: "Limit margin", value: fmt.Sprintf("%.2f", cfg.RateLimitMargin)},
			{label: "Overrides", value: fmt.Sprint(len(cfg.RateLimits))},
		}},
		{title: "Providers", rows: []envRow{
			{label: "User agent", value: cfg.Providers.UserAgent},
			{label: "OpenWeather", value: keyStatus(cfg.Providers.OpenWeather.APIKey)},
			{label: "Pexels", value: keyStatus(cfg.Providers.Pexels.APIKey)},
			{label: "Unsplash", value: keyStatus(cfg.Providers.Unsplash.APIKey)},
			{label: "Photo limit", value: fmt.Sprint(cfg.Report.PhotoLimit)},
			{label: "Default TZ", value: defaultTZ},
		}},
	}
}

func metricsStatus(m config.MetricsConfig) string {
	if !m.Enabled {
		return "disabled"
	}
	return fmt.Sprintf("enabled on :%d", m.Port)
}

func keyStatus(key string) string {
	if strings.TrimSpace(key) == "" {
		return "(not set)"
	}
	return "(set)"
}

// redactURL drops any authToken query value from a libSQL URL.
func redactURL(raw string) string {
	base, query, found := strings.Cut(raw, "?")
	if !found || !strings.Contains(query, "authToken=") {
		return raw
	}
	return base + "?authToken=REDACTED"
}
