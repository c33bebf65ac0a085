package metrics

import (
	"strconv"

	"github.com/lumenhour/lumenhour/internal/observability"
)

// Error metrics
const (
	ErrorsTotal      = "errors_total"
	ErrorsByEndpoint = "errors_by_endpoint"
	PanicsTotal      = "panics_total"
)

// RecordError counts an error response by code and status, and by endpoint
// when one is known. endpoint should be a route pattern, not a raw path.
func RecordError(code string, status int, endpoint string) {
	sys := observability.TelemetrySystem
	if sys == nil {
		return
	}
	_ = sys.Counter(ErrorsTotal, 1, map[string]string{
		"error_code":  code,
		"http_status": strconv.Itoa(status),
	})
	if endpoint != "" {
		_ = sys.Counter(ErrorsByEndpoint, 1, map[string]string{
			"endpoint":   endpoint,
			"error_code": code,
		})
	}
}

// RecordPanic counts a recovered handler panic.
func RecordPanic() {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Counter(PanicsTotal, 1, nil)
	}
}
