package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/lumenhour/lumenhour/internal/core/engine"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// StoreCheck fails when the location store stops answering.
func StoreCheck(db Pinger) HealthChecker {
	return HealthCheckFunc(func(ctx context.Context) error {
		if db == nil {
			return fmt.Errorf("store not configured")
		}
		return db.PingContext(ctx)
	})
}

// BreakerCheck reports degraded while any upstream circuit is open. Reports
// still render without enrichment, so an open circuit never fails the check.
func BreakerCheck(stats StatsSource) HealthChecker {
	return HealthCheckFunc(func(context.Context) error {
		if stats == nil {
			return nil
		}
		var open []string
		for _, breaker := range stats.Stats().Breakers {
			if breaker.State == engine.BreakerOpen {
				open = append(open, breaker.Domain)
			}
		}
		if len(open) > 0 {
			return fmt.Errorf("%w: circuit open for %s", ErrDegraded, strings.Join(open, ", "))
		}
		return nil
	})
}
