package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lumenhour/lumenhour/internal/core"
	"github.com/lumenhour/lumenhour/internal/core/solar"
	apperrors "github.com/lumenhour/lumenhour/internal/errors"
	"github.com/lumenhour/lumenhour/internal/observability"
)

type selfCheck struct {
	name string
	run  func(ctx context.Context) error
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Verify that version info, configuration, the location store and the solar calculator all work offline.",
	Run: func(cmd *cobra.Command, args []string) {
		logger := observability.CLILogger
		if logger == nil {
			ExitWithCodeStderr(foundry.ExitConfigInvalid, "Logger not initialized",
				apperrors.NewInternalError("logger not initialized"))
			return
		}
		logger.Info("Running health check...")

		for _, check := range selfChecks() {
			if err := check.run(cmd.Context()); err != nil {
				logger.Error("❌ FAIL: "+check.name, zap.Error(err))
				ExitWithCode(logger, foundry.ExitConfigInvalid, check.name+" failed",
					apperrors.Wrap(cmd.Context(), apperrors.CodeConfigInvalid, err, check.name+" failed"))
				return
			}
			logger.Info("✅ " + check.name)
		}

		logger.Info("")
		logger.Info("✅ All health checks passed")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func selfChecks() []selfCheck {
	return []selfCheck{
		{name: "Version information available", run: func(context.Context) error {
			if versionInfo.Version == "" {
				return errors.New("version information missing")
			}
			return nil
		}},
		{name: "Configuration valid", run: func(ctx context.Context) error {
			cfg, err := currentConfig(ctx)
			if err != nil {
				return err
			}
			return cfg.Validate()
		}},
		{name: "Location store reachable", run: func(ctx context.Context) error {
			cfg, err := currentConfig(ctx)
			if err != nil {
				return err
			}
			db, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close() // nolint:errcheck // best-effort cleanup
			return db.DB.PingContext(ctx)
		}},
		{name: "Solar calculator ready", run: func(context.Context) error {
			greenwich := core.Coordinates{Latitude: 51.4769, Longitude: 0}
			times, err := solar.NewCalculator().Times(greenwich, time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC), time.UTC)
			if err != nil {
				return err
			}
			if times.Sunrise.IsZero() || times.Sunset.IsZero() {
				return errors.New("equinox sunrise or sunset missing")
			}
			return nil
		}},
	}
}
