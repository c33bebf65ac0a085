package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const testURL = "https://api.example.test/data"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 21, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestOptimizer(t *testing.T, transport http.RoundTripper, opts Options) *Optimizer {
	t.Helper()
	opts.Client = &http.Client{Transport: transport}
	if opts.SendGap == 0 {
		opts.SendGap = time.Millisecond
	}
	if opts.DrainRetryDelay == 0 {
		opts.DrainRetryDelay = 20 * time.Millisecond
	}
	o := New(opts)
	t.Cleanup(func() { _ = o.Close() })
	return o
}

func callCount(transport *httpmock.MockTransport, method, url string) int {
	return transport.GetCallCountInfo()[method+" "+url]
}

func TestRequestCachesByKey(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, testURL, httpmock.NewStringResponder(200, `{"temp":21.5}`))
	o := newTestOptimizer(t, transport, Options{})
	ctx := context.Background()

	req := Request{URL: testURL, CacheKey: "weather:1"}
	first, err := o.Request(ctx, req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"temp":21.5}`, string(first))

	second, err := o.Request(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, callCount(transport, http.MethodGet, testURL))
	assert.Equal(t, 1, o.Stats().CacheSize)

	req.SkipCache = true
	_, err = o.Request(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 2, callCount(transport, http.MethodGet, testURL))

	o.ClearCache()
	assert.Zero(t, o.Stats().CacheSize)
	_, err = o.Request(ctx, Request{URL: testURL, CacheKey: "weather:1"})
	require.NoError(t, err)
	assert.Equal(t, 3, callCount(transport, http.MethodGet, testURL))
}

func TestRequestWithoutCacheKeyAlwaysFetches(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, testURL, httpmock.NewStringResponder(200, `[]`))
	o := newTestOptimizer(t, transport, Options{})

	for i := 0; i < 3; i++ {
		_, err := o.Request(context.Background(), Request{URL: testURL})
		require.NoError(t, err)
	}
	assert.Equal(t, 3, callCount(transport, http.MethodGet, testURL))
	assert.Zero(t, o.Stats().CacheSize)
}

func TestRequestCacheEntryExpires(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, testURL, httpmock.NewStringResponder(200, `{}`))
	o := newTestOptimizer(t, transport, Options{
		CacheTTLs: map[string]time.Duration{"api.example.test": 30 * time.Millisecond},
	})
	req := Request{URL: testURL, CacheKey: "short"}

	_, err := o.Request(context.Background(), req)
	require.NoError(t, err)
	time.Sleep(60 * time.Millisecond)
	_, err = o.Request(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 2, callCount(transport, http.MethodGet, testURL))
}

func TestRequestRetriesThenFails(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, testURL, httpmock.NewStringResponder(500, `{"error":"boom"}`))
	o := newTestOptimizer(t, transport, Options{})

	_, err := o.Request(context.Background(), Request{URL: testURL, Retries: Retries(2), CacheKey: "k"})
	require.Error(t, err)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 500, httpErr.StatusCode)
	assert.Equal(t, testURL, httpErr.URL)
	assert.Equal(t, 3, callCount(transport, http.MethodGet, testURL))
	assert.Zero(t, o.Stats().CacheSize)

	breakers := o.Stats().Breakers
	require.Len(t, breakers, 1)
	assert.Equal(t, 1, breakers[0].Failures, "one failure per failed request, not per attempt")
}

func TestRequestRecoversOnRetry(t *testing.T) {
	transport := httpmock.NewMockTransport()
	unavailable := httpmock.NewStringResponder(503, `unavailable`)
	transport.RegisterResponder(http.MethodGet, testURL,
		unavailable.Then(unavailable).Then(httpmock.NewStringResponder(200, `{"ok":true}`)))
	o := newTestOptimizer(t, transport, Options{})

	payload, err := o.Request(context.Background(), Request{URL: testURL})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(payload))
	assert.Equal(t, 3, callCount(transport, http.MethodGet, testURL))
	assert.Empty(t, o.Stats().Breakers)
}

func TestRequestNotFoundIsTerminal(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, testURL, httpmock.NewStringResponder(404, `missing`))
	o := newTestOptimizer(t, transport, Options{})

	_, err := o.Request(context.Background(), Request{URL: testURL})
	require.Error(t, err)
	assert.Equal(t, 404, StatusCode(err))
	assert.Equal(t, 1, callCount(transport, http.MethodGet, testURL))
}

func TestRequestTimeoutIsTerminal(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-r.Context().Done()
	}))
	defer server.Close()

	o := New(Options{Client: server.Client()})
	defer func() { _ = o.Close() }()

	_, err := o.Request(context.Background(), Request{URL: server.URL, Timeout: 30 * time.Millisecond})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), hits.Load())
}

func TestRequestRejectsInvalidInput(t *testing.T) {
	transport := httpmock.NewMockTransport()
	o := newTestOptimizer(t, transport, Options{})

	_, err := o.Request(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = o.Request(context.Background(), Request{URL: testURL, Method: http.MethodPatch})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	assert.Zero(t, transport.GetTotalCallCount())
}

func TestRequestSendsJSONBody(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodPost, testURL, func(req *http.Request) (*http.Response, error) {
		if req.Header.Get("Content-Type") != "application/json" {
			return httpmock.NewStringResponse(400, `bad content type`), nil
		}
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		return httpmock.NewStringResponse(200, string(body)), nil
	})
	o := newTestOptimizer(t, transport, Options{UserAgent: "lumenhour-test"})

	payload, err := o.Request(context.Background(), Request{
		URL:    testURL,
		Method: "post",
		Body:   map[string]any{"lat": 48.85},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"lat":48.85}`, string(payload))
}

func TestRequestJSONDecodes(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, testURL, httpmock.NewStringResponder(200, `{"name":"Paris"}`))
	o := newTestOptimizer(t, transport, Options{})

	out, err := RequestJSON[struct {
		Name string `json:"name"`
	}](context.Background(), o, Request{URL: testURL})
	require.NoError(t, err)
	assert.Equal(t, "Paris", out.Name)
}

func TestRequestRejectsNonJSONPayload(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, testURL, httpmock.NewStringResponder(200, `<html>`))
	o := newTestOptimizer(t, transport, Options{})

	_, err := o.Request(context.Background(), Request{URL: testURL, Retries: Retries(0)})
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	clock := newFakeClock()
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, testURL, httpmock.NewStringResponder(500, `fail`))
	o := newTestOptimizer(t, transport, Options{Clock: clock.Now})
	ctx := context.Background()
	req := Request{URL: testURL, Retries: Retries(0)}

	for i := 0; i < DefaultBreakerThreshold; i++ {
		_, err := o.Request(ctx, req)
		require.Error(t, err)
		require.False(t, IsCircuitOpen(err))
	}

	_, err := o.Request(ctx, req)
	var openErr *CircuitOpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, "api.example.test", openErr.Domain)
	assert.Equal(t, DefaultBreakerCooldown, openErr.RetryAfter)
	assert.Equal(t, DefaultBreakerThreshold, callCount(transport, http.MethodGet, testURL))

	clock.Advance(DefaultBreakerCooldown + time.Second)
	require.Equal(t, BreakerHalfOpen, o.Stats().Breakers[0].State)

	transport.RegisterResponder(http.MethodGet, testURL, httpmock.NewStringResponder(200, `{}`))
	_, err = o.Request(ctx, req)
	require.NoError(t, err)
	assert.Empty(t, o.Stats().Breakers)
}

func TestCircuitBreakerTrialFailureReopens(t *testing.T) {
	clock := newFakeClock()
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, testURL, httpmock.NewStringResponder(502, `fail`))
	o := newTestOptimizer(t, transport, Options{
		Clock:   clock.Now,
		Breaker: BreakerConfig{Threshold: 2, Cooldown: 10 * time.Second},
	})
	ctx := context.Background()
	req := Request{URL: testURL, Retries: Retries(0)}

	for i := 0; i < 2; i++ {
		_, _ = o.Request(ctx, req)
	}
	clock.Advance(11 * time.Second)

	_, err := o.Request(ctx, req)
	require.Error(t, err)
	assert.False(t, IsCircuitOpen(err), "half-open trial must reach the network")
	assert.Equal(t, 3, callCount(transport, http.MethodGet, testURL))

	_, err = o.Request(ctx, req)
	assert.True(t, IsCircuitOpen(err))
	snap := o.Stats().Breakers[0]
	assert.Equal(t, BreakerOpen, snap.State)
	assert.Equal(t, 3, snap.Failures)
}

func TestCallerCancellationDoesNotTripBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	o := New(Options{Client: server.Client(), Breaker: BreakerConfig{Threshold: 1}})
	defer func() { _ = o.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := o.Request(ctx, Request{URL: server.URL})
	require.Error(t, err)
	assert.Empty(t, o.Stats().Breakers)
}

func TestQueueOrdersByPriority(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	transport := httpmock.NewMockTransport()
	for _, path := range []string{"first", "low", "medium", "high"} {
		name := path
		transport.RegisterResponder(http.MethodGet, "https://api.example.test/"+name,
			func(*http.Request) (*http.Response, error) {
				mu.Lock()
				order = append(order, name)
				mu.Unlock()
				return httpmock.NewStringResponse(200, `{}`), nil
			})
	}

	o := newTestOptimizer(t, transport, Options{
		Limiter: NewRateLimiter(map[string]RateLimit{
			"api.example.test": {RequestsPerWindow: 1, WindowDuration: 300 * time.Millisecond},
		}),
	})
	ctx := context.Background()

	_, err := o.Request(ctx, Request{URL: "https://api.example.test/first"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	enqueue := func(name string, priority Priority, depth int) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.Request(ctx, Request{URL: "https://api.example.test/" + name, Priority: priority})
			assert.NoError(t, err)
		}()
		require.Eventually(t, func() bool { return o.Stats().QueueDepth == depth }, time.Second, 5*time.Millisecond)
	}
	enqueue("low", PriorityLow, 1)
	enqueue("medium", "", 2)
	enqueue("high", PriorityHigh, 3)

	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "high", "medium", "low"}, order)
	assert.Zero(t, o.Stats().QueueDepth)
}

func TestQueuedCallerWithdrawsOnCancel(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, testURL, httpmock.NewStringResponder(200, `{}`))
	o := newTestOptimizer(t, transport, Options{
		Limiter: NewRateLimiter(map[string]RateLimit{
			"api.example.test": {RequestsPerWindow: 1, WindowDuration: time.Hour},
		}),
	})

	_, err := o.Request(context.Background(), Request{URL: testURL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	_, err = o.Request(ctx, Request{URL: testURL})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, o.Stats().QueueDepth)
	assert.Equal(t, 1, callCount(transport, http.MethodGet, testURL))
}

func TestRetryAfterBacksOffDomain(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, testURL,
		httpmock.NewStringResponder(429, `slow down`).HeaderSet(http.Header{"Retry-After": {"120"}}))
	o := newTestOptimizer(t, transport, Options{})

	_, err := o.Request(context.Background(), Request{URL: testURL})
	require.Error(t, err)
	assert.Equal(t, 429, StatusCode(err))
	assert.Equal(t, 1, callCount(transport, http.MethodGet, testURL), "429 with Retry-After is not retried")

	stats := o.Stats()
	require.Len(t, stats.RateLimits, 1)
	require.NotNil(t, stats.RateLimits[0].BackoffUntil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = o.Request(ctx, Request{URL: testURL})
	assert.ErrorIs(t, err, context.DeadlineExceeded, "request queues while the domain backs off")
	assert.Equal(t, 1, callCount(transport, http.MethodGet, testURL))
}

func TestCloseRejectsQueuedCallers(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, testURL, httpmock.NewStringResponder(200, `{}`))
	o := New(Options{
		Client: &http.Client{Transport: transport},
		Limiter: NewRateLimiter(map[string]RateLimit{
			"api.example.test": {RequestsPerWindow: 1, WindowDuration: time.Hour},
		}),
	})

	_, err := o.Request(context.Background(), Request{URL: testURL})
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := o.Request(context.Background(), Request{URL: testURL})
		errCh <- err
	}()
	require.Eventually(t, func() bool { return o.Stats().QueueDepth == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, o.Close())
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("queued caller was not released")
	}

	_, err = o.Request(context.Background(), Request{URL: testURL})
	assert.ErrorIs(t, err, ErrClosed)
	require.NoError(t, o.Close())
}

func TestBatchRequestsPreservesOrder(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, "https://api.example.test/a", httpmock.NewStringResponder(200, `"a"`))
	transport.RegisterResponder(http.MethodGet, "https://api.example.test/b", httpmock.NewStringResponder(500, `fail`))
	transport.RegisterResponder(http.MethodGet, "https://other.example.test/c", httpmock.NewStringResponder(200, `"c"`))
	o := newTestOptimizer(t, transport, Options{})
	ctx := context.Background()

	_, err := o.Request(ctx, Request{URL: "https://other.example.test/c", CacheKey: "c"})
	require.NoError(t, err)

	outcomes := o.BatchRequests(ctx, []Request{
		{URL: "https://api.example.test/a"},
		{URL: "https://api.example.test/b", Retries: Retries(0)},
		{URL: "https://other.example.test/c", CacheKey: "c"},
	})
	require.Len(t, outcomes, 3)

	assert.True(t, outcomes[0].Success)
	assert.Equal(t, json.RawMessage(`"a"`), outcomes[0].Data)

	assert.False(t, outcomes[1].Success)
	assert.NotEmpty(t, outcomes[1].Error)
	assert.Equal(t, 500, StatusCode(outcomes[1].Err))

	assert.True(t, outcomes[2].Success)
	assert.True(t, outcomes[2].FromCache)

	encoded, err := json.Marshal(outcomes[0])
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(encoded, &fields))
	assert.Contains(t, fields, "duration_ms")
	assert.NotContains(t, fields, "duration")
	assert.Equal(t, outcomes[0].Duration.Milliseconds(), outcomes[0].DurationMs)
	assert.Equal(t, 1, callCount(transport, http.MethodGet, "https://other.example.test/c"))

	assert.Empty(t, o.BatchRequests(ctx, nil))
}

func TestBatchRequestsReportsInvalidEntries(t *testing.T) {
	o := newTestOptimizer(t, httpmock.NewMockTransport(), Options{})

	outcomes := o.BatchRequests(context.Background(), []Request{{URL: ""}})
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Success)
	assert.True(t, errors.Is(outcomes[0].Err, ErrInvalidRequest))
}

func TestRequestDefaultRetriesMakesFourAttempts(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, testURL, httpmock.NewStringResponder(503, `busy`))
	o := newTestOptimizer(t, transport, Options{})

	_, err := o.Request(context.Background(), Request{URL: testURL, CacheKey: "k"})
	require.Error(t, err)
	assert.Equal(t, 503, StatusCode(err))
	assert.Equal(t, DefaultRetries+1, callCount(transport, http.MethodGet, testURL))
}

func TestQueuedRequestWaitsForWindowReset(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, "https://api.example.test/a", httpmock.NewStringResponder(200, `"a"`))
	transport.RegisterResponder(http.MethodGet, "https://api.example.test/b", httpmock.NewStringResponder(200, `"b"`))
	o := newTestOptimizer(t, transport, Options{
		Limiter: NewRateLimiter(map[string]RateLimit{
			"api.example.test": {RequestsPerWindow: 1, WindowDuration: time.Second},
		}),
	})
	ctx := context.Background()

	start := time.Now()
	first, err := o.Request(ctx, Request{URL: "https://api.example.test/a", CacheKey: "a"})
	require.NoError(t, err)
	second, err := o.Request(ctx, Request{URL: "https://api.example.test/b", CacheKey: "b"})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), time.Second)
	assert.Equal(t, json.RawMessage(`"a"`), first)
	assert.Equal(t, json.RawMessage(`"b"`), second)
}

func TestHalfOpenTrialRespectsQuota(t *testing.T) {
	clock := newFakeClock()
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, testURL, httpmock.NewStringResponder(500, `fail`))
	o := newTestOptimizer(t, transport, Options{
		Clock:   clock.Now,
		Breaker: BreakerConfig{Threshold: 1, Cooldown: time.Second},
		Limiter: NewRateLimiter(map[string]RateLimit{
			"api.example.test": {RequestsPerWindow: 1, WindowDuration: time.Hour},
		}),
	})
	req := Request{URL: testURL, Retries: Retries(0)}

	_, err := o.Request(context.Background(), req)
	require.Error(t, err)
	clock.Advance(2 * time.Second)
	require.Equal(t, BreakerHalfOpen, o.Stats().Breakers[0].State)

	// The window is spent, so the trial waits in the queue instead of sending.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = o.Request(ctx, req)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, callCount(transport, http.MethodGet, testURL))

	stats := o.Stats()
	require.Len(t, stats.RateLimits, 1)
	assert.LessOrEqual(t, stats.RateLimits[0].Count, 1)
	assert.Equal(t, BreakerHalfOpen, stats.Breakers[0].State)

	clock.Advance(time.Hour)
	transport.RegisterResponder(http.MethodGet, testURL, httpmock.NewStringResponder(200, `{}`))
	_, err = o.Request(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, callCount(transport, http.MethodGet, testURL))
	assert.Empty(t, o.Stats().Breakers)
}

func TestRetryDelayDoublesAndCaps(t *testing.T) {
	assert.Equal(t, 200*time.Millisecond, retryDelay(200*time.Millisecond, 1))
	assert.Equal(t, 400*time.Millisecond, retryDelay(200*time.Millisecond, 2))
	assert.Equal(t, 800*time.Millisecond, retryDelay(200*time.Millisecond, 3))
	assert.Equal(t, maxRetryBackoff, retryDelay(200*time.Millisecond, 10))
	assert.Equal(t, maxRetryBackoff, retryDelay(time.Second, 64))
	assert.Equal(t, maxRetryBackoff, retryDelay(time.Second, 1<<20))
}

func TestCloseCancelsQueuedSendInFlight(t *testing.T) {
	entered := make(chan struct{})
	var once sync.Once
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow" {
			once.Do(func() { close(entered) })
			<-r.Context().Done()
			return
		}
		_, _ = io.WriteString(w, `{}`)
	}))
	defer server.Close()

	o := New(Options{
		Client:  server.Client(),
		SendGap: time.Millisecond,
		Limiter: NewRateLimiter(map[string]RateLimit{
			"127.0.0.1": {RequestsPerWindow: 1, WindowDuration: 300 * time.Millisecond},
		}),
	})

	_, err := o.Request(context.Background(), Request{URL: server.URL + "/fast"})
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := o.Request(context.Background(), Request{URL: server.URL + "/slow", Timeout: time.Minute})
		errCh <- err
	}()
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("queued request never reached the server")
	}

	closed := make(chan struct{})
	go func() {
		_ = o.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close waited on the in-flight upstream call")
	}
	assert.ErrorIs(t, <-errCh, ErrClosed)
	assert.Empty(t, o.Stats().Breakers, "shutdown is not an upstream failure")
}
