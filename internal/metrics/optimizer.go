package metrics

import (
	"time"

	"github.com/lumenhour/lumenhour/internal/observability"
)

// Optimizer metrics
const (
	UpstreamRequestsTotal   = "upstream_requests_total"
	UpstreamRequestDuration = "upstream_request_duration_ms"
	CacheLookupsTotal       = "optimizer_cache_lookups_total"
	QueueDepth              = "optimizer_queue_depth"
	BreakerOpensTotal       = "optimizer_breaker_opens_total"
	BreakerRejectionsTotal  = "optimizer_breaker_rejections_total"
)

// RecordUpstreamRequest records one outbound attempt and its outcome
// (success, http_error, timeout, error).
func RecordUpstreamRequest(domain string, outcome string, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	labels := map[string]string{
		"domain":  domain,
		"outcome": outcome,
	}
	_ = observability.TelemetrySystem.Counter(UpstreamRequestsTotal, 1, labels)
	_ = observability.TelemetrySystem.Histogram(UpstreamRequestDuration, duration, map[string]string{"domain": domain})
}

// RecordCacheLookup records a response cache hit or miss.
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(CacheLookupsTotal, 1, map[string]string{"result": result})
	}
}

// SetQueueDepth publishes the current optimizer queue length.
func SetQueueDepth(depth int) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(QueueDepth, float64(depth), nil)
	}
}

// RecordBreakerOpen records a circuit breaker transition to open.
func RecordBreakerOpen(domain string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(BreakerOpensTotal, 1, map[string]string{"domain": domain})
	}
}

// RecordBreakerRejection records a request refused by an open breaker.
func RecordBreakerRejection(domain string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(BreakerRejectionsTotal, 1, map[string]string{"domain": domain})
	}
}
