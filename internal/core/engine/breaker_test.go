package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerStateAt(t *testing.T) {
	cfg := BreakerConfig{Threshold: 5, Cooldown: time.Minute}
	last := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		failures int
		elapsed  time.Duration
		want     BreakerState
	}{
		{name: "below threshold", failures: 4, elapsed: 0, want: BreakerClosed},
		{name: "threshold reached", failures: 5, elapsed: 30 * time.Second, want: BreakerOpen},
		{name: "cooldown boundary", failures: 5, elapsed: time.Minute, want: BreakerHalfOpen},
		{name: "cooldown elapsed", failures: 9, elapsed: 2 * time.Minute, want: BreakerHalfOpen},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, breakerStateAt(cfg, tc.failures, last, last.Add(tc.elapsed)))
		})
	}
}

func TestBreakersTrialLifecycle(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newBreakers(BreakerConfig{Threshold: 2, Cooldown: time.Minute})

	require.False(t, b.failure("api.example.test", now))
	require.True(t, b.failure("api.example.test", now))
	require.Equal(t, BreakerOpen, b.state("api.example.test", now))
	require.Equal(t, time.Minute, b.retryAfter("api.example.test", now))

	later := now.Add(time.Minute)
	require.Equal(t, BreakerHalfOpen, b.state("api.example.test", later))
	b.startTrial("api.example.test")
	require.True(t, b.probing("api.example.test"))

	b.abortTrial("api.example.test")
	require.False(t, b.probing("api.example.test"))

	b.success("api.example.test")
	require.Equal(t, BreakerClosed, b.state("api.example.test", later))
	require.Empty(t, b.snapshot(later))
}

func TestBreakersIgnoreUnknownDomain(t *testing.T) {
	now := time.Now()
	b := newBreakers(BreakerConfig{Threshold: 1})

	for i := 0; i < 10; i++ {
		require.False(t, b.failure(UnknownDomain, now))
	}
	require.Equal(t, BreakerClosed, b.state(UnknownDomain, now))
}

func TestBreakerConfigDefaults(t *testing.T) {
	cfg := BreakerConfig{}.withDefaults()
	assert.Equal(t, DefaultBreakerThreshold, cfg.Threshold)
	assert.Equal(t, DefaultBreakerCooldown, cfg.Cooldown)
}
