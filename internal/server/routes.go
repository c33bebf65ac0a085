package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lumenhour/lumenhour/internal/appid"
	apperrors "github.com/lumenhour/lumenhour/internal/errors"
	"github.com/lumenhour/lumenhour/internal/observability"
	"github.com/lumenhour/lumenhour/internal/server/handlers"
)

const (
	signalRateLimit = 10 // per minute
	signalRateBurst = 5
)

func (s *Server) registerRoutes() {
	r := s.router
	if !s.noHealth {
		r.Get("/health", handlers.HealthHandler)
		r.Get("/health/live", handlers.LivenessHandler)
		r.Get("/health/ready", handlers.ReadinessHandler)
		r.Get("/health/startup", handlers.StartupHandler)
	}
	r.Get("/version", handlers.VersionHandler)
	r.Get("/metrics", MetricsHandler)

	if s.pprof {
		r.Mount("/debug", chimw.Profiler())
		if logger := observability.ServerLogger; logger != nil {
			logger.Warn("pprof endpoints enabled", zap.String("path", "/debug/pprof/"))
		}
	}

	token := adminToken()

	if s.api != nil {
		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/golden-hour", s.api.GoldenHour)
			r.Get("/locations", s.api.ListLocations)
			r.Get("/locations/{slug}", s.api.GetLocation)
		})
		r.Route("/admin/optimizer", func(r chi.Router) {
			if token != "" {
				r.Use(requireBearer(token))
			}
			r.Get("/", s.api.OptimizerStats)
			r.Get("/policies", s.api.DomainPolicies)
			r.Delete("/cache", s.api.ClearOptimizerCache)
		})
	}

	if token != "" {
		s.registerSignalEndpoint(token)
	} else if logger := observability.ServerLogger; logger != nil {
		logger.Debug("Admin token not set; optimizer admin routes are unauthenticated and /admin/signal is off")
	}
}

// adminToken reads <PREFIX>ADMIN_TOKEN. Setting it protects the optimizer
// admin routes and enables POST /admin/signal.
func adminToken() string {
	prefix := appid.EnvPrefix
	if identity, err := appid.Get(context.Background()); err == nil && identity.EnvPrefix != "" {
		prefix = identity.EnvPrefix
	}
	return strings.TrimSpace(os.Getenv(prefix + "ADMIN_TOKEN"))
}

// requireBearer rejects requests without "Authorization: Bearer <token>".
func requireBearer(token string) func(http.Handler) http.Handler {
	want := []byte("Bearer " + token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get("Authorization"))
			if subtle.ConstantTimeCompare(got, want) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="lumenhour-admin"`)
				apperrors.RespondWithError(w, r, apperrors.NewUnauthorizedError("admin token required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// registerSignalEndpoint exposes POST /admin/signal for reload and shutdown
// over HTTP, guarded by the admin token and a rate limit.
func (s *Server) registerSignalEndpoint(token string) {
	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: token,
		RateLimit: signalRateLimit,
		RateBurst: signalRateBurst,
	})
	s.router.Post("/admin/signal", handler.ServeHTTP)

	if logger := observability.ServerLogger; logger != nil {
		logger.Info("Admin signal endpoint enabled",
			zap.String("path", "/admin/signal"),
			zap.Int("rate_limit_per_min", signalRateLimit),
			zap.Int("rate_burst", signalRateBurst))
	}
}
