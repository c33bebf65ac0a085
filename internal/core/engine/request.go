package engine

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Priority orders queued requests.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// ParsePriority maps user input onto a priority, defaulting to medium.
func ParsePriority(value string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", string(PriorityMedium):
		return PriorityMedium, nil
	case string(PriorityHigh):
		return PriorityHigh, nil
	case string(PriorityLow):
		return PriorityLow, nil
	default:
		return "", fmt.Errorf("unknown priority %q", value)
	}
}

const (
	DefaultTimeout = 10 * time.Second
	DefaultRetries = 3
)

// Request describes one outbound HTTP call.
type Request struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    any
	// Timeout bounds each attempt; zero means DefaultTimeout.
	Timeout time.Duration
	// Retries is the number of extra attempts after the first; nil means DefaultRetries.
	Retries   *int
	CacheKey  string
	Priority  Priority
	SkipCache bool
}

// Retries returns a pointer suitable for Request.Retries.
func Retries(n int) *int {
	return &n
}

func (r Request) method() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(r.Method)
}

func (r Request) timeout() time.Duration {
	if r.Timeout <= 0 {
		return DefaultTimeout
	}
	return r.Timeout
}

func (r Request) retries() int {
	if r.Retries == nil {
		return DefaultRetries
	}
	if *r.Retries < 0 {
		return 0
	}
	return *r.Retries
}

func (r Request) priority() Priority {
	switch r.Priority {
	case PriorityHigh, PriorityLow:
		return r.Priority
	default:
		return PriorityMedium
	}
}

func (r Request) validate() error {
	if strings.TrimSpace(r.URL) == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidRequest)
	}
	switch r.method() {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
		return nil
	default:
		return fmt.Errorf("%w: unsupported method %s", ErrInvalidRequest, r.Method)
	}
}
