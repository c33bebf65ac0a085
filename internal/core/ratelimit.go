package core

import "time"

// RateLimitState captures per-domain rate limiting state.
type RateLimitState struct {
	RequestCount int        `json:"request_count"`
	WindowStart  time.Time  `json:"window_start"`
	BackoffUntil *time.Time `json:"backoff_until,omitempty"`
	Last429At    *time.Time `json:"last_429_at,omitempty"`
}

// Clone returns a deep copy so callers never share pointer fields with a store.
func (s *RateLimitState) Clone() *RateLimitState {
	if s == nil {
		return nil
	}
	copied := *s
	if s.BackoffUntil != nil {
		until := *s.BackoffUntil
		copied.BackoffUntil = &until
	}
	if s.Last429At != nil {
		at := *s.Last429At
		copied.Last429At = &at
	}
	return &copied
}
