package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sourcegraph/conc"
)

// BatchOutcome is the settled result of one request within a batch.
type BatchOutcome struct {
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data,omitempty"`
	Error      string          `json:"error,omitempty"`
	Err        error           `json:"-"`
	Duration   time.Duration   `json:"-"`
	DurationMs int64           `json:"duration_ms"`
	FromCache  bool            `json:"from_cache"`
}

// BatchRequests runs every request concurrently and returns one outcome per
// request, in input order. A failing request never affects the others.
func (o *Optimizer) BatchRequests(ctx context.Context, reqs []Request) []BatchOutcome {
	outcomes := make([]BatchOutcome, len(reqs))
	if len(reqs) == 0 {
		return outcomes
	}

	wg := conc.NewWaitGroup()
	for i, req := range reqs {
		wg.Go(func() {
			start := time.Now()
			payload, fromCache, err := o.request(ctx, req)
			elapsed := time.Since(start)
			outcome := BatchOutcome{
				Duration:   elapsed,
				DurationMs: elapsed.Milliseconds(),
				FromCache:  fromCache,
			}
			if err != nil {
				outcome.Err = err
				outcome.Error = err.Error()
			} else {
				outcome.Success = true
				outcome.Data = payload
			}
			outcomes[i] = outcome
		})
	}
	wg.Wait()

	return outcomes
}
