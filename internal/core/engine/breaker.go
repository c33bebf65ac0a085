package engine

import (
	"sort"
	"time"
)

// BreakerState is the derived state of a domain's circuit breaker.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half-open"
)

const (
	DefaultBreakerThreshold = 5
	DefaultBreakerCooldown  = 60 * time.Second
)

// BreakerConfig tunes when a domain's breaker opens and for how long.
type BreakerConfig struct {
	Threshold int
	Cooldown  time.Duration
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.Threshold <= 0 {
		c.Threshold = DefaultBreakerThreshold
	}
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultBreakerCooldown
	}
	return c
}

// breakerStateAt derives the state from the failure record alone.
func breakerStateAt(cfg BreakerConfig, failures int, lastFailure, now time.Time) BreakerState {
	if failures < cfg.Threshold {
		return BreakerClosed
	}
	if now.Sub(lastFailure) < cfg.Cooldown {
		return BreakerOpen
	}
	return BreakerHalfOpen
}

type breakerEntry struct {
	failures    int
	lastFailure time.Time
	probing     bool
}

// breakers tracks per-domain failure records. Callers serialize access.
type breakers struct {
	cfg     BreakerConfig
	entries map[string]*breakerEntry
}

func newBreakers(cfg BreakerConfig) *breakers {
	return &breakers{cfg: cfg.withDefaults(), entries: make(map[string]*breakerEntry)}
}

func (b *breakers) state(domain string, now time.Time) BreakerState {
	entry, ok := b.entries[domain]
	if !ok {
		return BreakerClosed
	}
	return breakerStateAt(b.cfg, entry.failures, entry.lastFailure, now)
}

func (b *breakers) retryAfter(domain string, now time.Time) time.Duration {
	entry, ok := b.entries[domain]
	if !ok {
		return 0
	}
	remaining := b.cfg.Cooldown - now.Sub(entry.lastFailure)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// probing reports whether a half-open trial is already in flight.
func (b *breakers) probing(domain string) bool {
	entry, ok := b.entries[domain]
	return ok && entry.probing
}

func (b *breakers) startTrial(domain string) {
	if entry, ok := b.entries[domain]; ok {
		entry.probing = true
	}
}

// abortTrial releases a trial that ended without a verdict.
func (b *breakers) abortTrial(domain string) {
	if entry, ok := b.entries[domain]; ok {
		entry.probing = false
	}
}

func (b *breakers) success(domain string) {
	delete(b.entries, domain)
}

// failure records one failed request and reports whether the breaker is now open.
func (b *breakers) failure(domain string, now time.Time) bool {
	if domain == UnknownDomain {
		return false
	}
	entry, ok := b.entries[domain]
	if !ok {
		entry = &breakerEntry{}
		b.entries[domain] = entry
	}
	entry.failures++
	entry.lastFailure = now
	entry.probing = false
	return entry.failures >= b.cfg.Threshold
}

// BreakerSnapshot is the externally visible breaker state for one domain.
type BreakerSnapshot struct {
	Domain      string       `json:"domain"`
	State       BreakerState `json:"state"`
	Failures    int          `json:"failures"`
	LastFailure time.Time    `json:"last_failure"`
	RetryAfter  string       `json:"retry_after,omitempty"`
}

func (b *breakers) snapshot(now time.Time) []BreakerSnapshot {
	out := make([]BreakerSnapshot, 0, len(b.entries))
	for domain, entry := range b.entries {
		snap := BreakerSnapshot{
			Domain:      domain,
			State:       breakerStateAt(b.cfg, entry.failures, entry.lastFailure, now),
			Failures:    entry.failures,
			LastFailure: entry.lastFailure,
		}
		if snap.State == BreakerOpen {
			snap.RetryAfter = b.retryAfter(domain, now).Round(time.Second).String()
		}
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out
}
