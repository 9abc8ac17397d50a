package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/ayushshrivastv/SolanaOpenAPI/internal/cache"
)

// ---------------------------------------------------------------------------
// Cached fetch client — TTL-gated producer invocation plus a bounded retry
// POST helper. Every read path in the data service goes through here.
// ---------------------------------------------------------------------------

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 1000 * time.Millisecond
)

// Producer loads a payload on a cache miss.
type Producer func(ctx context.Context) (any, error)

// Client couples a TTL cache with an HTTP retry helper. The cache is
// borrowed, not owned: the data service decides its lifetime.
type Client struct {
	cache       *cache.Cache
	httpClient  *http.Client
	clock       clockwork.Clock
	maxAttempts int
	baseDelay   time.Duration
	headers     map[string]string
	latencyObs  func(ms float64)

	producerCalls  atomic.Int64
	producerErrors atomic.Int64
	requestCount   atomic.Int64
	retryCount     atomic.Int64
	failureCount   atomic.Int64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithClock replaces the wall clock, for deterministic backoff in tests.
func WithClock(clk clockwork.Clock) Option {
	return func(c *Client) { c.clock = clk }
}

// WithRetry overrides the attempt cap and the backoff base delay.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(c *Client) {
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
		if baseDelay > 0 {
			c.baseDelay = baseDelay
		}
	}
}

// WithHeader adds a header to every outbound request.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.headers[key] = value }
}

// WithLatencyObserver registers a callback that receives the elapsed wall
// time of every upstream attempt, in milliseconds. Used to feed a histogram.
func WithLatencyObserver(fn func(ms float64)) Option {
	return func(c *Client) { c.latencyObs = fn }
}

// New creates a Client around an existing cache.
func New(payloadCache *cache.Cache, opts ...Option) *Client {
	c := &Client{
		cache:       payloadCache,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		clock:       clockwork.NewRealClock(),
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		headers:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ---------------------------------------------------------------------------
// FetchWithCache
// ---------------------------------------------------------------------------

// FetchWithCache returns the cached payload for key when one exists within
// its TTL. Otherwise it invokes producer, stores a successful result, and
// returns it. Producer failures are returned unchanged and nothing is
// cached, so the next caller retries the producer.
//
// Concurrent misses on the same key each invoke their own producer; the
// last writer wins. Callers that need single-flight semantics must arrange
// it themselves.
func (c *Client) FetchWithCache(ctx context.Context, key string, producer Producer) (any, error) {
	if payload, ok := c.cache.Get(key); ok {
		log.Debug().Str("key", key).Msg("fetch: cache hit")
		return payload, nil
	}

	log.Debug().Str("key", key).Msg("fetch: cache miss")

	c.producerCalls.Add(1)
	payload, err := producer(ctx)
	if err != nil {
		c.producerErrors.Add(1)
		return nil, err
	}

	c.cache.Set(key, payload)
	return payload, nil
}

// Cached is the typed form of FetchWithCache. A cached payload of an
// unexpected type is treated as a miss and overwritten by the producer.
func Cached[T any](ctx context.Context, c *Client, key string, producer func(ctx context.Context) (T, error)) (T, error) {
	payload, err := c.FetchWithCache(ctx, key, func(ctx context.Context) (any, error) {
		return producer(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}

	typed, ok := payload.(T)
	if !ok {
		var zero T
		fresh, err := producer(ctx)
		if err != nil {
			return zero, err
		}
		c.cache.Set(key, fresh)
		return fresh, nil
	}
	return typed, nil
}

// ---------------------------------------------------------------------------
// RequestWithRetry
// ---------------------------------------------------------------------------

// RequestWithRetry POSTs payload as JSON to target and returns the response
// body. Failed attempts (transport errors and non-2xx statuses alike) are
// retried up to the attempt cap with a linear backoff of attempt × base
// delay between them. The terminal failure carries the attempt count and
// wraps the last error. Context cancellation aborts the wait immediately.
func (c *Client) RequestWithRetry(ctx context.Context, target string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("fetch: marshal payload: %w", err)
	}

	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			// Linear backoff: wait (attempt-1) × base before attempt N,
			// so three attempts wait 1× then 2× the base delay.
			wait := time.Duration(attempt-1) * c.baseDelay
			c.retryCount.Add(1)
			log.Warn().
				Str("target", target).
				Int("attempt", attempt).
				Dur("wait", wait).
				Err(lastErr).
				Msg("fetch: retrying request")

			select {
			case <-c.clock.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		c.requestCount.Add(1)

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("fetch: create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range c.headers {
			req.Header.Set(k, v)
		}

		// The injected clock only governs backoff; attempt latency is
		// real wall time.
		attemptStart := time.Now()
		resp, err := c.httpClient.Do(req)
		if c.latencyObs != nil {
			c.latencyObs(float64(time.Since(attemptStart).Microseconds()) / 1000.0)
		}
		if err != nil {
			lastErr = fmt.Errorf("fetch: http error: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("fetch: read response: %w", err)
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			lastErr = fmt.Errorf("fetch: http %d from %s", resp.StatusCode, target)
			continue
		}

		return respBody, nil
	}

	c.failureCount.Add(1)
	return nil, fmt.Errorf("fetch: request failed after %d attempts: %w", c.maxAttempts, lastErr)
}

// ---------------------------------------------------------------------------
// Stats
// ---------------------------------------------------------------------------

// Stats is a snapshot of the client's counters, cache counters included.
type Stats struct {
	CacheHits      int64 `json:"cache_hits"`
	CacheMisses    int64 `json:"cache_misses"`
	ProducerCalls  int64 `json:"producer_calls"`
	ProducerErrors int64 `json:"producer_errors"`
	Requests       int64 `json:"requests"`
	Retries        int64 `json:"retries"`
	Failures       int64 `json:"failures"`
}

func (c *Client) Stats() Stats {
	cacheStats := c.cache.Stats()
	return Stats{
		CacheHits:      cacheStats.Hits,
		CacheMisses:    cacheStats.Misses,
		ProducerCalls:  c.producerCalls.Load(),
		ProducerErrors: c.producerErrors.Load(),
		Requests:       c.requestCount.Load(),
		Retries:        c.retryCount.Load(),
		Failures:       c.failureCount.Load(),
	}
}
