package engine

import (
	"context"
	"time"
)

// Stats is a point-in-time view of the optimizer.
type Stats struct {
	QueueDepth int                 `json:"queue_depth"`
	CacheSize  int                 `json:"cache_size"`
	RateLimits []RateLimitSnapshot `json:"rate_limits"`
	Breakers   []BreakerSnapshot   `json:"circuit_breakers"`
}

// RateLimitSnapshot reports a domain's usage of its current window.
type RateLimitSnapshot struct {
	Domain       string     `json:"domain"`
	Count        int        `json:"count"`
	Limit        int        `json:"limit,omitempty"`
	Window       string     `json:"window,omitempty"`
	ResetAt      *time.Time `json:"reset_at,omitempty"`
	BackoffUntil *time.Time `json:"backoff_until,omitempty"`
}

// Stats reports queue depth, cache size, and per-domain limiter and breaker state.
func (o *Optimizer) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.now()
	stats := Stats{
		QueueDepth: o.queue.Len(),
		CacheSize:  o.cache.Len(),
		RateLimits: []RateLimitSnapshot{},
		Breakers:   o.breakers.snapshot(now),
	}

	lister, ok := o.limiter.Store.(RateLimitLister)
	if !ok {
		return stats
	}
	entries, err := lister.ListRateLimits(context.Background())
	if err != nil {
		return stats
	}

	for _, entry := range entries {
		limit := o.limiter.Limit(entry.Endpoint)
		snap := RateLimitSnapshot{
			Domain:       entry.Endpoint,
			Count:        entry.State.RequestCount,
			BackoffUntil: entry.State.BackoffUntil,
		}
		if !limit.Unlimited() {
			snap.Limit = limit.RequestsPerWindow
			snap.Window = limit.WindowDuration.String()
			resetAt := entry.State.WindowStart.Add(limit.WindowDuration)
			if resetAt.After(now) {
				snap.ResetAt = &resetAt
			} else {
				snap.Count = 0
			}
		}
		stats.RateLimits = append(stats.RateLimits, snap)
	}
	return stats
}
