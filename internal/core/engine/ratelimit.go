package engine

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lumenhour/lumenhour/internal/core"
)

// RateLimiter enforces fixed-window per-domain rate limits.
type RateLimiter struct {
	Store  RateLimitStore
	Limits map[string]RateLimit
	Clock  func() time.Time
	Margin float64
}

// RateLimit represents a rate limit window. A zero RequestsPerWindow means unlimited.
type RateLimit struct {
	RequestsPerWindow int           `json:"requests_per_window"`
	WindowDuration    time.Duration `json:"window"`
}

// Unlimited reports whether the limit never blocks.
func (l RateLimit) Unlimited() bool {
	return l.RequestsPerWindow <= 0 || l.WindowDuration <= 0
}

// RateLimitStore stores rate limit state.
type RateLimitStore interface {
	GetRateLimit(ctx context.Context, domain string) (*core.RateLimitState, error)
	UpdateRateLimit(ctx context.Context, domain string, state *core.RateLimitState) error
}

// RateLimitEntry pairs a domain with its stored state.
type RateLimitEntry struct {
	Endpoint string              `json:"endpoint"`
	State    core.RateLimitState `json:"state"`
}

// RateLimitLister is implemented by stores that can enumerate their state.
type RateLimitLister interface {
	ListRateLimits(ctx context.Context) ([]RateLimitEntry, error)
}

// DefaultLimits provides the bundled per-domain quotas.
var DefaultLimits = map[string]RateLimit{
	"nominatim.openstreetmap.org": {RequestsPerWindow: 1, WindowDuration: time.Second},
	"api.bigdatacloud.net":        {RequestsPerWindow: 500, WindowDuration: time.Minute},
	"ipapi.co":                    {RequestsPerWindow: 1000, WindowDuration: 24 * time.Hour},
	"ip-api.com":                  {RequestsPerWindow: 45, WindowDuration: time.Minute},
	"api.openweathermap.org":      {RequestsPerWindow: 60, WindowDuration: time.Minute},
	"api.pexels.com":              {RequestsPerWindow: 200, WindowDuration: time.Hour},
	"api.unsplash.com":            {RequestsPerWindow: 50, WindowDuration: time.Hour},
}

// NewRateLimiter returns a limiter backed by an in-process store.
func NewRateLimiter(limits map[string]RateLimit) *RateLimiter {
	return &RateLimiter{
		Store:  NewMemoryRateStore(),
		Limits: limits,
	}
}

// Allow checks if a request is allowed and returns the wait duration if not.
func (r *RateLimiter) Allow(ctx context.Context, domain string) (bool, time.Duration, error) {
	if r == nil || r.Store == nil {
		return true, 0, nil
	}

	limit := r.getLimit(domain)

	state, err := r.Store.GetRateLimit(ctx, domain)
	if err != nil {
		return true, 0, err
	}
	if state == nil {
		return true, 0, nil
	}

	now := r.now()
	if state.BackoffUntil != nil && now.Before(*state.BackoffUntil) {
		return false, state.BackoffUntil.Sub(now), nil
	}

	if limit.Unlimited() {
		return true, 0, nil
	}

	windowEnd := state.WindowStart.Add(limit.WindowDuration)
	if now.After(windowEnd) {
		return true, 0, nil
	}

	if state.RequestCount >= limit.RequestsPerWindow {
		return false, windowEnd.Sub(now), nil
	}

	return true, 0, nil
}

// Record counts one admitted request, rolling the window forward when it has elapsed.
func (r *RateLimiter) Record(ctx context.Context, domain string) error {
	if r == nil || r.Store == nil {
		return nil
	}

	state, err := r.Store.GetRateLimit(ctx, domain)
	if err != nil {
		return err
	}

	now := r.now()
	if state == nil {
		state = &core.RateLimitState{WindowStart: now}
	}

	limit := r.getLimit(domain)
	if state.WindowStart.IsZero() || (!limit.Unlimited() && now.After(state.WindowStart.Add(limit.WindowDuration))) {
		state.RequestCount = 0
		state.WindowStart = now
	}
	state.RequestCount++

	return r.Store.UpdateRateLimit(ctx, domain, state)
}

// Record429 applies a backoff window from a 429 response.
func (r *RateLimiter) Record429(ctx context.Context, domain string, retryAfter time.Duration) error {
	if r == nil || r.Store == nil {
		return nil
	}

	state, err := r.Store.GetRateLimit(ctx, domain)
	if err != nil {
		return err
	}

	now := r.now()
	if state == nil {
		state = &core.RateLimitState{WindowStart: now}
	}

	state.Last429At = &now
	if retryAfter > 0 {
		until := now.Add(retryAfter)
		state.BackoffUntil = &until
	}

	return r.Store.UpdateRateLimit(ctx, domain, state)
}

// ApplyOverrides merges per-domain request overrides (per minute).
func (r *RateLimiter) ApplyOverrides(overrides map[string]int) {
	if r == nil || len(overrides) == 0 {
		return
	}

	if r.Limits == nil {
		r.Limits = make(map[string]RateLimit, len(DefaultLimits))
		for key, limit := range DefaultLimits {
			r.Limits[key] = limit
		}
	}

	for domain, value := range overrides {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain == "" || value <= 0 {
			continue
		}
		r.Limits[domain] = RateLimit{
			RequestsPerWindow: value,
			WindowDuration:    time.Minute,
		}
	}
}

// ApplySafetyMargin adjusts the effective request limits by a ratio (0-1].
func (r *RateLimiter) ApplySafetyMargin(margin float64) {
	if r == nil {
		return
	}
	if margin <= 0 || margin > 1 {
		return
	}
	r.Margin = margin
}

// Limit returns the effective limit for a domain.
func (r *RateLimiter) Limit(domain string) RateLimit {
	return r.getLimit(domain)
}

func (r *RateLimiter) getLimit(domain string) RateLimit {
	if r == nil || domain == UnknownDomain {
		return RateLimit{}
	}

	limits := r.Limits
	if limits == nil {
		limits = DefaultLimits
	}

	if limit, ok := limits[domain]; ok {
		return r.applyMargin(limit)
	}

	return RateLimit{}
}

func (r *RateLimiter) now() time.Time {
	if r != nil && r.Clock != nil {
		return r.Clock()
	}
	return time.Now().UTC()
}

func (r *RateLimiter) applyMargin(limit RateLimit) RateLimit {
	if r == nil || r.Margin <= 0 || r.Margin > 1 || limit.Unlimited() {
		return limit
	}
	adjusted := int(math.Floor(float64(limit.RequestsPerWindow) * r.Margin))
	if adjusted < 1 {
		adjusted = 1
	}
	limit.RequestsPerWindow = adjusted
	return limit
}

// MemoryRateStore keeps rate limit state in process memory.
type MemoryRateStore struct {
	mu    sync.Mutex
	state map[string]*core.RateLimitState
}

// NewMemoryRateStore returns an empty in-process store.
func NewMemoryRateStore() *MemoryRateStore {
	return &MemoryRateStore{state: make(map[string]*core.RateLimitState)}
}

func (m *MemoryRateStore) GetRateLimit(ctx context.Context, domain string) (*core.RateLimitState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return nil, nil
	}
	return m.state[domain].Clone(), nil
}

func (m *MemoryRateStore) UpdateRateLimit(ctx context.Context, domain string, state *core.RateLimitState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		m.state = make(map[string]*core.RateLimitState)
	}
	m.state[domain] = state.Clone()
	return nil
}

// ListRateLimits returns all tracked domains ordered by name.
func (m *MemoryRateStore) ListRateLimits(ctx context.Context) ([]RateLimitEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := make([]RateLimitEntry, 0, len(m.state))
	for domain, state := range m.state {
		if state == nil {
			continue
		}
		entries = append(entries, RateLimitEntry{Endpoint: domain, State: *state.Clone()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Endpoint < entries[j].Endpoint })
	return entries, nil
}

// Reset forgets all tracked state.
func (m *MemoryRateStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = make(map[string]*core.RateLimitState)
}
