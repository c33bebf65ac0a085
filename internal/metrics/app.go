package metrics

import (
	"time"

	"github.com/lumenhour/lumenhour/internal/observability"
)

// Report and service lifecycle metrics
const (
	ReportsTotal        = "golden_hour_reports_total"
	ReportDuration      = "golden_hour_report_duration_ms"
	ReportWarningsTotal = "golden_hour_report_warnings_total"
	HealthCheckTotal    = "health_check_total"
	HealthCheckDuration = "health_check_duration_ms"
	ServerStartTime     = "server_start_time_seconds"
)

// RecordReport records one report build. source is how the location was
// resolved (coordinates, saved, builtin, geoip), or "error" when the build
// failed. Each degraded-data warning adds to the warnings counter.
func RecordReport(source string, warnings int, duration time.Duration) {
	sys := observability.TelemetrySystem
	if sys == nil {
		return
	}
	status := "success"
	if source == "error" {
		status = "failure"
	}
	_ = sys.Counter(ReportsTotal, 1, map[string]string{"source": source, "status": status})
	_ = sys.Histogram(ReportDuration, duration, map[string]string{"status": status})
	if warnings > 0 {
		_ = sys.Counter(ReportWarningsTotal, float64(warnings), map[string]string{"source": source})
	}
}

// RecordHealthCheck records one named health checker run.
func RecordHealthCheck(check string, healthy bool, duration time.Duration) {
	sys := observability.TelemetrySystem
	if sys == nil {
		return
	}
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	_ = sys.Counter(HealthCheckTotal, 1, map[string]string{"check": check, "status": status})
	_ = sys.Histogram(HealthCheckDuration, duration, map[string]string{"check": check})
}

// SetServerStartTime publishes when serve started, as a Unix timestamp.
func SetServerStartTime(unix int64) {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Gauge(ServerStartTime, float64(unix), nil)
	}
}
