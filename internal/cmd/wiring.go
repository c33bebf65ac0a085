package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/lumenhour/lumenhour/internal/config"
	"github.com/lumenhour/lumenhour/internal/core/engine"
	"github.com/lumenhour/lumenhour/internal/core/provider"
	"github.com/lumenhour/lumenhour/internal/core/solar"
	"github.com/lumenhour/lumenhour/internal/core/store"
	"github.com/lumenhour/lumenhour/internal/output"
)

// services is everything a report needs, built once per command.
type services struct {
	cfg          *config.Config
	store        *store.Store
	limiter      *engine.RateLimiter
	optimizer    *engine.Optimizer
	orchestrator *engine.Orchestrator
}

// buildServices wires the optimizer, providers and orchestrator from cfg.
// The store is optional: without it only built-in locations resolve.
func buildServices(cfg *config.Config, db *store.Store, logger *logging.Logger) (*services, error) {
	if cfg == nil {
		return nil, errors.New("config not loaded")
	}

	limiter := newRateLimiter(cfg)
	optimizer := engine.New(engine.Options{
		Limiter:         limiter,
		CacheMaxEntries: cfg.Optimizer.CacheMaxEntries,
		Breaker: engine.BreakerConfig{
			Threshold: cfg.Optimizer.BreakerThreshold,
			Cooldown:  cfg.Optimizer.BreakerCooldown,
		},
		SendGap:         cfg.Optimizer.SendGap,
		DrainRetryDelay: cfg.Optimizer.DrainRetryDelay,
		RetryBackoff:    cfg.Optimizer.RetryBackoff,
		UserAgent:       cfg.Providers.UserAgent,
		Logger:          logger,
	})

	defaultTZ := time.UTC
	if name := strings.TrimSpace(cfg.Report.DefaultTimezone); name != "" {
		loc, err := time.LoadLocation(name)
		if err != nil {
			_ = optimizer.Close()
			return nil, fmt.Errorf("report.default_timezone: %w", err)
		}
		defaultTZ = loc
	}

	orchestrator := &engine.Orchestrator{
		Sun:             solar.NewCalculator(),
		Geocoder:        provider.NewReverseGeocoder(optimizer, cfg.Providers.UserAgent),
		Locator:         provider.NewGeoIPProvider(optimizer),
		DefaultTimezone: defaultTZ,
		PhotoLimit:      cfg.Report.PhotoLimit,
	}
	if weather := newWeatherProvider(cfg, optimizer); weather != nil {
		orchestrator.Weather = weather
	}
	if photos := newPhotoSource(cfg, optimizer); photos != nil {
		orchestrator.Photos = photos
	}
	if db != nil {
		orchestrator.Locations = db
	}

	if logger != nil {
		logger.Debug("Services ready",
			zap.Bool("weather", orchestrator.Weather != nil),
			zap.Bool("photos", orchestrator.Photos != nil),
			zap.Bool("store", db != nil),
			zap.Float64("rate_limit_margin", cfg.RateLimitMargin))
	}

	return &services{
		cfg:          cfg,
		store:        db,
		limiter:      limiter,
		optimizer:    optimizer,
		orchestrator: orchestrator,
	}, nil
}

// Close stops the optimizer and closes the store.
func (s *services) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	if s.optimizer != nil {
		errs = append(errs, s.optimizer.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	return errors.Join(errs...)
}

// policies lists the effective per-domain limits and TTLs.
func (s *services) policies() []engine.DomainPolicy {
	return engine.Policies(s.limiter, nil)
}

// writeStats renders the optimizer state after a run.
func (s *services) writeStats(w io.Writer) error {
	rendered, err := output.NewFormatter(output.FormatTable).FormatStats(s.optimizer.Stats())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, strings.TrimRight(rendered, "\n"))
	return err
}

func newRateLimiter(cfg *config.Config) *engine.RateLimiter {
	limiter := engine.NewRateLimiter(nil)
	limiter.ApplyOverrides(cfg.RateLimits)
	limiter.ApplySafetyMargin(cfg.RateLimitMargin)
	return limiter
}

// newWeatherProvider returns nil when no API key is configured.
func newWeatherProvider(cfg *config.Config, optimizer *engine.Optimizer) *provider.WeatherProvider {
	key := strings.TrimSpace(cfg.Providers.OpenWeather.APIKey)
	if key == "" {
		return nil
	}
	weather := provider.NewWeatherProvider(optimizer, key)
	if base := strings.TrimSpace(cfg.Providers.OpenWeather.BaseURL); base != "" {
		weather.BaseURL = base
	}
	return weather
}

// newPhotoSource returns nil when neither photo API is configured.
func newPhotoSource(cfg *config.Config, optimizer *engine.Optimizer) *provider.MultiPhotoSource {
	var providers []provider.PhotoProvider
	if key := strings.TrimSpace(cfg.Providers.Pexels.APIKey); key != "" {
		pexels := &provider.PexelsProvider{Optimizer: optimizer, APIKey: key, BaseURL: provider.DefaultPexelsURL}
		if base := strings.TrimSpace(cfg.Providers.Pexels.BaseURL); base != "" {
			pexels.BaseURL = base
		}
		providers = append(providers, pexels)
	}
	if key := strings.TrimSpace(cfg.Providers.Unsplash.APIKey); key != "" {
		unsplash := &provider.UnsplashProvider{Optimizer: optimizer, AccessKey: key, BaseURL: provider.DefaultUnsplashURL}
		if base := strings.TrimSpace(cfg.Providers.Unsplash.BaseURL); base != "" {
			unsplash.BaseURL = base
		}
		providers = append(providers, unsplash)
	}
	if len(providers) == 0 {
		return nil
	}
	return &provider.MultiPhotoSource{Providers: providers}
}

// openStore opens, migrates and seeds the location store.
func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	db, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := db.SeedBuiltInLocations(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// openServices loads config, opens the store and wires services. A store
// that fails to open is logged and skipped so reports still work.
func openServices(ctx context.Context, logger *logging.Logger) (*services, error) {
	cfg, err := currentConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	db, err := openStore(ctx, cfg)
	if err != nil {
		if logger != nil {
			logger.Warn("Location store unavailable; using built-in locations only", zap.Error(err))
		}
		db = nil
	}

	svc, err := buildServices(cfg, db, logger)
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		return nil, err
	}
	return svc, nil
}
