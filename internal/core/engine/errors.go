package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrClosed is returned to callers once the optimizer has been closed.
	ErrClosed = errors.New("optimizer closed")
	// ErrInvalidRequest marks requests rejected before any network activity.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidPayload marks 2xx responses whose body is not JSON.
	ErrInvalidPayload = errors.New("response is not valid JSON")
)

// CircuitOpenError is returned when a domain's breaker is rejecting traffic.
type CircuitOpenError struct {
	Domain     string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("circuit breaker open for %s (retry in %s)", e.Domain, e.RetryAfter.Round(time.Second))
	}
	return fmt.Sprintf("circuit breaker open for %s", e.Domain)
}

// HTTPError reports a non-2xx upstream response.
type HTTPError struct {
	StatusCode int
	URL        string
	Body       string
	// RetryAfter is the backoff requested by a 429 response, if any.
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// IsCircuitOpen reports whether err came from an open breaker.
func IsCircuitOpen(err error) bool {
	var target *CircuitOpenError
	return errors.As(err, &target)
}

// StatusCode extracts the upstream status from an error chain, or 0.
func StatusCode(err error) int {
	var target *HTTPError
	if errors.As(err, &target) {
		return target.StatusCode
	}
	return 0
}

// isTerminal reports whether retrying err cannot help.
func isTerminal(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return true
	case errors.Is(err, ErrInvalidRequest):
		return true
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == http.StatusNotFound:
			return true
		case httpErr.StatusCode == http.StatusTooManyRequests && httpErr.RetryAfter > 0:
			return true
		}
	}
	return false
}
