package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lumenhour/lumenhour/internal/metrics"
)

const (
	DefaultSendGap         = 100 * time.Millisecond
	DefaultDrainRetryDelay = time.Second

	maxResponseBytes = 10 << 20
	maxErrorSnippet  = 512
	minDrainWait     = 10 * time.Millisecond
	maxRetryBackoff  = 5 * time.Second
)

// Options configures an Optimizer. Zero values select the defaults.
type Options struct {
	Client          *http.Client
	Limiter         *RateLimiter
	CacheTTLs       map[string]time.Duration
	CacheMaxEntries int
	Breaker         BreakerConfig
	// SendGap is the minimum spacing between sends issued by the queue drain.
	SendGap         time.Duration
	DrainRetryDelay time.Duration
	// RetryBackoff is the base delay between attempts, doubled per retry. Zero retries immediately.
	RetryBackoff time.Duration
	UserAgent    string
	Logger       *logging.Logger
	Clock        func() time.Time
}

// Optimizer mediates outbound HTTP calls through a response cache, per-domain
// rate limits, per-domain circuit breakers and a priority queue.
type Optimizer struct {
	client          *http.Client
	limiter         *RateLimiter
	cache           *ResponseCache
	ttls            map[string]time.Duration
	breakers        *breakers
	pacer           *rate.Limiter
	drainRetryDelay time.Duration
	retryBackoff    time.Duration
	userAgent       string
	logger          *logging.Logger
	clock           func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	queue    requestQueue
	seq      uint64
	draining bool
	timer    *time.Timer
	closed   bool
}

// New builds an Optimizer. Call Close to release queued callers.
func New(opts Options) *Optimizer {
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = NewRateLimiter(nil)
	}
	if limiter.Store == nil {
		limiter.Store = NewMemoryRateStore()
	}
	if limiter.Clock == nil && opts.Clock != nil {
		limiter.Clock = opts.Clock
	}
	ttls := opts.CacheTTLs
	if ttls == nil {
		ttls = DefaultCacheTTLs
	}
	sendGap := opts.SendGap
	if sendGap <= 0 {
		sendGap = DefaultSendGap
	}
	drainRetryDelay := opts.DrainRetryDelay
	if drainRetryDelay <= 0 {
		drainRetryDelay = DefaultDrainRetryDelay
	}
	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Optimizer{
		client:          client,
		limiter:         limiter,
		cache:           NewResponseCache(opts.CacheMaxEntries),
		ttls:            ttls,
		breakers:        newBreakers(opts.Breaker),
		pacer:           rate.NewLimiter(rate.Every(sendGap), 1),
		drainRetryDelay: drainRetryDelay,
		retryBackoff:    opts.RetryBackoff,
		userAgent:       opts.UserAgent,
		logger:          opts.Logger,
		clock:           clock,
		ctx:             ctx,
		cancel:          cancel,
	}
}

// Request performs req, serving it from cache, sending it directly, or queueing
// it until its domain has quota again.
func (o *Optimizer) Request(ctx context.Context, req Request) (json.RawMessage, error) {
	payload, _, err := o.request(ctx, req)
	return payload, err
}

// RequestJSON performs req and decodes the payload into T.
func RequestJSON[T any](ctx context.Context, o *Optimizer, req Request) (T, error) {
	var out T
	payload, err := o.Request(ctx, req)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return out, fmt.Errorf("decode %s response: %w", DomainOf(req.URL), err)
	}
	return out, nil
}

func (o *Optimizer) request(ctx context.Context, req Request) (json.RawMessage, bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := req.validate(); err != nil {
		return nil, false, err
	}
	domain := DomainOf(req.URL)

	o.mu.Lock()
	closed := o.closed
	o.mu.Unlock()
	if closed {
		return nil, false, ErrClosed
	}

	if req.CacheKey != "" && !req.SkipCache {
		if payload, ok := o.cache.Get(req.CacheKey); ok {
			metrics.RecordCacheLookup(true)
			return payload, true, nil
		}
		metrics.RecordCacheLookup(false)
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, false, ErrClosed
	}

	now := o.now()
	state := o.breakers.state(domain, now)
	switch state {
	case BreakerOpen:
		retryAfter := o.breakers.retryAfter(domain, now)
		o.mu.Unlock()
		metrics.RecordBreakerRejection(domain)
		return nil, false, &CircuitOpenError{Domain: domain, RetryAfter: retryAfter}
	case BreakerHalfOpen:
		if o.breakers.probing(domain) {
			o.mu.Unlock()
			metrics.RecordBreakerRejection(domain)
			return nil, false, &CircuitOpenError{Domain: domain}
		}
	}

	// A half-open trial still needs quota; without it the request queues and
	// the drain starts the trial once the window allows.
	allowed, _, err := o.limiter.Allow(ctx, domain)
	if err != nil {
		o.warn("Rate limit lookup failed", zap.String("domain", domain), zap.Error(err))
	}
	if allowed {
		if state == BreakerHalfOpen {
			o.breakers.startTrial(domain)
		}
		o.recordAdmissionLocked(domain)
		o.mu.Unlock()
		if state == BreakerHalfOpen {
			o.debug("Circuit half-open, sending trial request", zap.String("domain", domain))
		}
		payload, err := o.send(ctx, req, domain)
		return payload, false, err
	}

	o.seq++
	item := &queuedRequest{
		ctx:        ctx,
		req:        req,
		domain:     domain,
		priority:   req.priority(),
		enqueuedAt: now,
		seq:        o.seq,
		done:       make(chan result, 1),
	}
	o.queue.push(item)
	depth := o.queue.Len()
	o.startDrainLocked()
	o.mu.Unlock()

	metrics.SetQueueDepth(depth)
	o.debug("Rate limit reached, request queued",
		zap.String("domain", domain),
		zap.String("priority", string(item.priority)),
		zap.Int("queue_depth", depth))

	select {
	case res := <-item.done:
		return res.payload, false, res.err
	case <-ctx.Done():
		o.mu.Lock()
		o.queue.withdraw(item)
		o.mu.Unlock()
		return nil, false, ctx.Err()
	}
}

// send performs up to Retries+1 attempts and settles the breaker for domain.
func (o *Optimizer) send(ctx context.Context, req Request, domain string) (json.RawMessage, error) {
	retries := req.retries()

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			if err := o.backoff(ctx, attempt); err != nil {
				lastErr = err
				break
			}
		}

		payload, err := o.attempt(ctx, req, domain)
		if err == nil {
			o.mu.Lock()
			o.breakers.success(domain)
			o.mu.Unlock()
			o.cache.Set(req.CacheKey, payload, o.cacheTTL(domain))
			return payload, nil
		}

		lastErr = err
		if isTerminal(err) {
			break
		}
		if attempt < retries {
			o.debug("Upstream attempt failed, retrying",
				zap.String("domain", domain),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
		}
	}

	o.mu.Lock()
	if ctx.Err() != nil || errors.Is(lastErr, ErrInvalidRequest) {
		o.breakers.abortTrial(domain)
		o.mu.Unlock()
		return nil, lastErr
	}
	opened := o.breakers.failure(domain, o.now())
	o.mu.Unlock()

	if opened {
		metrics.RecordBreakerOpen(domain)
		o.warn("Circuit breaker open", zap.String("domain", domain), zap.Error(lastErr))
	}
	return nil, lastErr
}

func (o *Optimizer) attempt(ctx context.Context, req Request, domain string) (json.RawMessage, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, req.timeout())
	defer cancel()

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: encode body: %v", ErrInvalidRequest, err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, req.method(), req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if o.userAgent != "" {
		httpReq.Header.Set("User-Agent", o.userAgent)
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := o.client.Do(httpReq)
	if err != nil {
		outcome := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		metrics.RecordUpstreamRequest(domain, outcome, time.Since(start))
		return nil, fmt.Errorf("request %s: %w", domain, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		metrics.RecordUpstreamRequest(domain, "error", time.Since(start))
		return nil, fmt.Errorf("read %s response: %w", domain, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RecordUpstreamRequest(domain, "http_error", time.Since(start))
		httpErr := &HTTPError{StatusCode: resp.StatusCode, URL: req.URL, Body: snippet(data)}
		if resp.StatusCode == http.StatusTooManyRequests {
			httpErr.RetryAfter = retryAfterHeader(resp)
			o.mu.Lock()
			if err := o.limiter.Record429(ctx, domain, httpErr.RetryAfter); err != nil {
				o.warn("Failed to record 429 backoff", zap.String("domain", domain), zap.Error(err))
			}
			o.mu.Unlock()
		}
		return nil, httpErr
	}
	metrics.RecordUpstreamRequest(domain, "success", time.Since(start))

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(trimmed) {
		return nil, fmt.Errorf("%s: %w", domain, ErrInvalidPayload)
	}
	return json.RawMessage(trimmed), nil
}

func (o *Optimizer) backoff(ctx context.Context, attempt int) error {
	if o.retryBackoff <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(retryDelay(o.retryBackoff, attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryDelay doubles base once per retry after the first, capped at
// maxRetryBackoff. Doubling stops before it can overflow.
func retryDelay(base time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt && delay <= maxRetryBackoff/2; i++ {
		delay *= 2
	}
	if delay > maxRetryBackoff {
		delay = maxRetryBackoff
	}
	return delay
}

func (o *Optimizer) recordAdmissionLocked(domain string) {
	if err := o.limiter.Record(o.ctx, domain); err != nil {
		o.warn("Failed to record rate limit usage", zap.String("domain", domain), zap.Error(err))
	}
}

// startDrainLocked launches the drain worker unless one is already running.
func (o *Optimizer) startDrainLocked() {
	if o.closed || o.draining {
		return
	}
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	o.draining = true
	o.wg.Add(1)
	go o.drain()
}

func (o *Optimizer) scheduleDrainLocked(after time.Duration) {
	if o.closed || o.timer != nil {
		return
	}
	if after < minDrainWait {
		after = minDrainWait
	}
	o.timer = time.AfterFunc(after, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.timer = nil
		o.startDrainLocked()
	})
}

// drain processes queued requests head first. It stops at the first head whose
// domain cannot send yet and schedules its own wake-up.
func (o *Optimizer) drain() {
	defer o.wg.Done()

	for {
		o.mu.Lock()
		if o.closed {
			o.draining = false
			o.mu.Unlock()
			return
		}

		item := o.queue.peek()
		if item == nil {
			o.draining = false
			o.mu.Unlock()
			metrics.SetQueueDepth(0)
			return
		}
		if item.ctx.Err() != nil {
			o.queue.pop()
			o.mu.Unlock()
			continue
		}

		wait, ok := o.admitQueuedLocked(item.domain)
		if !ok {
			o.draining = false
			o.scheduleDrainLocked(wait)
			o.mu.Unlock()
			return
		}
		o.queue.pop()
		depth := o.queue.Len()
		o.mu.Unlock()
		metrics.SetQueueDepth(depth)

		if err := o.pacer.Wait(o.ctx); err != nil {
			item.deliver(nil, ErrClosed)
			o.mu.Lock()
			o.draining = false
			o.mu.Unlock()
			return
		}

		o.debug("Sending queued request",
			zap.String("domain", item.domain),
			zap.Duration("queued_for", o.now().Sub(item.enqueuedAt)))
		payload, err := o.sendQueued(item)
		item.deliver(payload, err)
	}
}

// sendQueued sends a dequeued request on a context that Close also cancels,
// so shutdown never waits out a slow upstream.
func (o *Optimizer) sendQueued(item *queuedRequest) (json.RawMessage, error) {
	ctx, cancel := context.WithCancel(item.ctx)
	stop := context.AfterFunc(o.ctx, cancel)
	defer func() {
		stop()
		cancel()
	}()

	payload, err := o.send(ctx, item.req, item.domain)
	if err != nil && o.ctx.Err() != nil && item.ctx.Err() == nil {
		return nil, ErrClosed
	}
	return payload, err
}

// admitQueuedLocked admits the queue head when its domain can send, returning
// how long to wait otherwise.
func (o *Optimizer) admitQueuedLocked(domain string) (time.Duration, bool) {
	now := o.now()
	state := o.breakers.state(domain, now)
	switch state {
	case BreakerOpen:
		return o.drainRetryDelay, false
	case BreakerHalfOpen:
		if o.breakers.probing(domain) {
			return o.drainRetryDelay, false
		}
	}

	allowed, wait, err := o.limiter.Allow(o.ctx, domain)
	if err != nil {
		o.warn("Rate limit lookup failed", zap.String("domain", domain), zap.Error(err))
	}
	if !allowed {
		if wait <= 0 {
			wait = o.drainRetryDelay
		}
		return wait, false
	}

	if state == BreakerHalfOpen {
		o.breakers.startTrial(domain)
	}
	o.recordAdmissionLocked(domain)
	return 0, true
}

// ClearCache drops all cached responses.
func (o *Optimizer) ClearCache() {
	o.cache.Clear()
}

// Close stops the drain worker and fails every queued caller with ErrClosed.
func (o *Optimizer) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	pending := o.queue.drainAll()
	o.mu.Unlock()

	o.cancel()
	for _, item := range pending {
		item.deliver(nil, ErrClosed)
	}
	o.wg.Wait()
	metrics.SetQueueDepth(0)
	return nil
}

func (o *Optimizer) cacheTTL(domain string) time.Duration {
	if ttl, ok := o.ttls[domain]; ok && ttl > 0 {
		return ttl
	}
	return DefaultCacheTTL
}

func (o *Optimizer) now() time.Time {
	return o.clock()
}

func (o *Optimizer) debug(msg string, fields ...zap.Field) {
	if o.logger != nil {
		o.logger.Debug(msg, fields...)
	}
}

func (o *Optimizer) warn(msg string, fields ...zap.Field) {
	if o.logger != nil {
		o.logger.Warn(msg, fields...)
	}
}

func retryAfterHeader(resp *http.Response) time.Duration {
	if resp == nil || resp.Header == nil {
		return 0
	}

	retry := resp.Header.Get("Retry-After")
	if retry == "" {
		return 0
	}

	if seconds, err := time.ParseDuration(retry + "s"); err == nil {
		return seconds
	}
	if parsed, err := http.ParseTime(retry); err == nil {
		if wait := time.Until(parsed); wait > 0 {
			return wait
		}
	}
	return 0
}

func snippet(data []byte) string {
	data = bytes.TrimSpace(data)
	if len(data) > maxErrorSnippet {
		data = data[:maxErrorSnippet]
	}
	return string(data)
}
