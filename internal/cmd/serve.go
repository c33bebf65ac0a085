package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	apperrors "github.com/lumenhour/lumenhour/internal/errors"
	"github.com/lumenhour/lumenhour/internal/metrics"
	"github.com/lumenhour/lumenhour/internal/observability"
	"github.com/lumenhour/lumenhour/internal/server"
	"github.com/lumenhour/lumenhour/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return apperrors.NewInternalError("telemetry system not initialized")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the HTTP API with graceful shutdown support.

Endpoints:
  GET    /api/v1/golden-hour?lat=&lon=&date=&tz=   (or ?location=<slug>)
  GET    /api/v1/locations[/{slug}]
  GET    /admin/optimizer                          optimizer stats
  DELETE /admin/optimizer/cache                    clear the response cache
  GET    /health, /health/{live,ready,startup}, /version, /metrics

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Reload the config file`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "", "server host (default from config)")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "server port (default from config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := currentConfig(ctx)
	if err != nil {
		return err
	}
	if serverHost == "" {
		serverHost = cfg.Server.Host
	}
	if serverPort == 0 {
		serverPort = cfg.Server.Port
	}

	identity := GetAppIdentity()
	namespace := identity.TelemetryNamespace()
	if err := observability.InitServerLogger(identity.BinaryName, cfg.Logging.Level, cfg.Logging.Profile, namespace); err != nil {
		return apperrors.Wrap(ctx, apperrors.CodeConfigInvalid, err, "logger initialization failed")
	}
	logger := observability.ServerLogger

	metricsPort := cfg.Metrics.Port
	if cfg.Metrics.Enabled {
		if err := observability.InitMetrics(namespace, metricsPort); err != nil {
			logger.Error("Failed to initialize metrics", zap.Error(err))
			return apperrors.Wrap(ctx, apperrors.CodeInternal, err, "metrics initialization failed")
		}
	}

	svc, err := openServices(ctx, logger)
	if err != nil {
		return apperrors.Wrap(ctx, apperrors.CodeConfigInvalid, err, "service wiring failed")
	}

	logger.Info("Initializing server",
		zap.String("service", identity.BinaryName),
		zap.String("namespace", namespace),
		zap.String("version", versionInfo.Version),
		zap.String("host", serverHost),
		zap.Int("port", serverPort),
		zap.Int("metrics_port", metricsPort))

	hm := handlers.InitHealthManager(versionInfo.Version)
	hm.RegisterChecker("upstreams", handlers.BreakerCheck(svc.optimizer))
	if svc.store != nil {
		hm.RegisterChecker("store", handlers.StoreCheck(svc.store.DB))
	}
	if cfg.Metrics.Enabled {
		hm.RegisterChecker("telemetry", telemetryHealthChecker{})
	}
	handlers.SetAppIdentity(identity)
	handlers.SetVersionInfo(versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)

	api := &handlers.API{
		Reports:   svc.orchestrator,
		Optimizer: svc.optimizer,
		Policies:  svc.policies,
	}
	if svc.store != nil {
		api.Locations = svc.store
	}
	srv := server.New(serverHost, serverPort, server.WithAPI(api), server.WithTimeouts(cfg.Server),
		server.WithDiagnostics(cfg.Health, cfg.Debug))

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 10 * time.Second
	}

	// Shutdown handlers run in reverse registration order.
	signals.OnShutdown(func(ctx context.Context) error {
		logger.Info("Flushing logger...")
		if err := logger.Sync(); err != nil {
			// Sync errors are often benign (stdout/stderr already closed)
			logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
		}
		return nil
	})

	signals.OnShutdown(func(ctx context.Context) error {
		if err := svc.Close(); err != nil {
			logger.Warn("Service cleanup failed", zap.Error(err))
		}
		return nil
	})

	signals.OnShutdown(func(ctx context.Context) error {
		logger.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return apperrors.Wrap(ctx, apperrors.CodeInternal, err, "server shutdown failed")
		}

		logger.Info("HTTP server stopped gracefully")
		return nil
	})

	signals.OnReload(func(ctx context.Context) error {
		logger.Info("Received SIGHUP: reloading config")

		reloaded, err := loadConfig(ctx)
		if err != nil {
			logger.Error("Failed to reload config", zap.Error(err))
			return apperrors.Wrap(ctx, apperrors.CodeConfigInvalid, err, "config reload failed")
		}

		// Optimizer and providers keep the settings they started with.
		logger.Info("Configuration reloaded; restart to apply optimizer and provider changes",
			zap.String("log_level", reloaded.Logging.Level),
			zap.Int("rate_limit_overrides", len(reloaded.RateLimits)))
		return nil
	})

	if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
		Window:  2 * time.Second,
		Message: "Press Ctrl+C again within 2 seconds to force quit",
	}); err != nil {
		logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
	}

	metrics.SetServerStartTime(time.Now().Unix())

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go func() {
		if err := signals.Listen(ctx); err != nil {
			logger.Error("Signal handler error", zap.Error(err))
			errChan <- err
		}
	}()

	if err := <-errChan; err != nil {
		_ = svc.Close()
		return apperrors.Wrap(ctx, apperrors.CodeInternal, err, "server error")
	}

	return nil
}
