package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ayushshrivastv/SolanaOpenAPI/internal/solana"
)

// ---------------------------------------------------------------------------
// Jupiter Price API client
// https://station.jup.ag/docs/apis/price-api
// ---------------------------------------------------------------------------

const (
	defaultPriceURL = "https://price.jup.ag/v6/price"

	maxRetries   = 2
	retryBackoff = 500 * time.Millisecond
)

// TokenQuote is one priced token.
type TokenQuote struct {
	Mint      solana.Pubkey   `json:"mint"`
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	VsToken   solana.Pubkey   `json:"vs_token"`
	Timestamp time.Time       `json:"timestamp"`
}

// PriceSource supplies token quotes.
// Implementations: PriceClient (Jupiter), StubPriceSource (testing).
type PriceSource interface {
	// Price fetches the current quote for a single mint.
	Price(ctx context.Context, mint solana.Pubkey) (*TokenQuote, error)

	// Prices fetches quotes for up to 100 mints in one call.
	Prices(ctx context.Context, mints []solana.Pubkey) (map[solana.Pubkey]TokenQuote, error)
}

// PriceClient is the Jupiter price API client.
type PriceClient struct {
	endpoint   string
	vsToken    solana.Pubkey
	httpClient *http.Client

	priceCount   atomic.Int64
	errorCount   atomic.Int64
	avgLatencyMs atomic.Int64

	// Circuit breaker.
	consecutiveErrors atomic.Int64
	circuitOpen       atomic.Bool
}

// PriceClientConfig configures the Jupiter client.
type PriceClientConfig struct {
	Endpoint string
	VsToken  string
	Timeout  time.Duration
}

// NewPriceClient creates a Jupiter price client.
func NewPriceClient(cfg PriceClientConfig) *PriceClient {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultPriceURL
	}
	if cfg.VsToken == "" {
		cfg.VsToken = string(solana.USDCMint)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &PriceClient{
		endpoint: cfg.Endpoint,
		vsToken:  solana.Pubkey(cfg.VsToken),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// priceResponse is the Jupiter price endpoint payload.
type priceResponse struct {
	Data map[string]struct {
		ID         string  `json:"id"`
		MintSymbol string  `json:"mintSymbol"`
		VSToken    string  `json:"vsToken"`
		Price      float64 `json:"price"`
	} `json:"data"`
	TimeTaken float64 `json:"timeTaken"`
}

// Price fetches the current quote for a single mint.
func (c *PriceClient) Price(ctx context.Context, mint solana.Pubkey) (*TokenQuote, error) {
	quotes, err := c.Prices(ctx, []solana.Pubkey{mint})
	if err != nil {
		return nil, err
	}
	quote, ok := quotes[mint]
	if !ok {
		return nil, fmt.Errorf("jupiter: price not found for %s", mint)
	}
	return &quote, nil
}

// Prices fetches quotes for a batch of mints in a single request.
func (c *PriceClient) Prices(ctx context.Context, mints []solana.Pubkey) (map[solana.Pubkey]TokenQuote, error) {
	if c.circuitOpen.Load() {
		return nil, fmt.Errorf("jupiter: circuit breaker open")
	}
	if len(mints) == 0 {
		return map[solana.Pubkey]TokenQuote{}, nil
	}

	ids := make([]string, len(mints))
	for i, m := range mints {
		ids[i] = string(m)
	}

	queryURL, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("jupiter: parse URL: %w", err)
	}
	q := queryURL.Query()
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vsToken", string(c.vsToken))
	queryURL.RawQuery = q.Encode()

	start := time.Now()

	var priceResp priceResponse
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryBackoff * time.Duration(1<<uint(attempt-1))):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, "GET", queryURL.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("jupiter: create price request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("jupiter: price HTTP error: %w", err)
			c.errorCount.Add(1)
			c.recordError()
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("jupiter: read price response: %w", err)
			c.errorCount.Add(1)
			c.recordError()
			continue
		}

		if resp.StatusCode == 429 {
			lastErr = fmt.Errorf("jupiter: rate limited (429)")
			c.errorCount.Add(1)
			continue
		}

		if resp.StatusCode != 200 {
			lastErr = fmt.Errorf("jupiter: price HTTP %d: %s", resp.StatusCode, string(body))
			c.errorCount.Add(1)
			c.recordError()
			continue
		}

		if err := json.Unmarshal(body, &priceResp); err != nil {
			return nil, fmt.Errorf("jupiter: parse price: %w", err)
		}

		c.resetErrors()
		lastErr = nil
		break
	}

	if lastErr != nil {
		return nil, fmt.Errorf("jupiter: price failed after %d attempts: %w", maxRetries+1, lastErr)
	}

	latency := time.Since(start).Milliseconds()
	c.priceCount.Add(1)
	c.avgLatencyMs.Store(latency)

	now := time.Now().UTC()
	quotes := make(map[solana.Pubkey]TokenQuote, len(priceResp.Data))
	for id, data := range priceResp.Data {
		price := decimal.NewFromFloat(data.Price)
		if !price.IsPositive() {
			log.Debug().Str("mint", id).Msg("jupiter: dropping zero/negative price")
			continue
		}
		quotes[solana.Pubkey(id)] = TokenQuote{
			Mint:      solana.Pubkey(id),
			Symbol:    data.MintSymbol,
			Price:     price,
			VsToken:   solana.Pubkey(data.VSToken),
			Timestamp: now,
		}
	}

	log.Debug().
		Int("requested", len(mints)).
		Int("priced", len(quotes)).
		Int64("latency_ms", latency).
		Msg("jupiter: prices received")

	return quotes, nil
}

// recordError increments consecutive errors and opens circuit breaker.
func (c *PriceClient) recordError() {
	count := c.consecutiveErrors.Add(1)
	if count >= 5 {
		if c.circuitOpen.CompareAndSwap(false, true) {
			log.Error().Int64("errors", count).Msg("jupiter: CIRCUIT BREAKER OPEN")
			go func() {
				time.Sleep(30 * time.Second)
				c.circuitOpen.Store(false)
				c.consecutiveErrors.Store(0)
				log.Info().Msg("jupiter: circuit breaker reset")
			}()
		}
	}
}

// resetErrors resets the consecutive error counter.
func (c *PriceClient) resetErrors() {
	c.consecutiveErrors.Store(0)
}

// PriceStats returns Jupiter client stats.
type PriceStats struct {
	PriceCount   int64 `json:"price_count"`
	ErrorCount   int64 `json:"error_count"`
	AvgLatencyMs int64 `json:"avg_latency_ms"`
	CircuitOpen  bool  `json:"circuit_open"`
}

func (c *PriceClient) Stats() PriceStats {
	return PriceStats{
		PriceCount:   c.priceCount.Load(),
		ErrorCount:   c.errorCount.Load(),
		AvgLatencyMs: c.avgLatencyMs.Load(),
		CircuitOpen:  c.circuitOpen.Load(),
	}
}

// ---------------------------------------------------------------------------
// Stub price source (for testing and mock deployments)
// ---------------------------------------------------------------------------

// StubPriceSource serves quotes from a fixed map.
type StubPriceSource struct {
	mu       sync.RWMutex
	quotes   map[solana.Pubkey]TokenQuote
	failNext bool
	calls    int
}

// NewStubPriceSource creates an empty stub.
func NewStubPriceSource() *StubPriceSource {
	return &StubPriceSource{quotes: make(map[solana.Pubkey]TokenQuote)}
}

// SetQuote registers a quote for the stub to return.
func (s *StubPriceSource) SetQuote(q TokenQuote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[q.Mint] = q
}

// SetFailNext makes the next call fail.
func (s *StubPriceSource) SetFailNext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = true
}

// Calls returns how many lookups the stub has served.
func (s *StubPriceSource) Calls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls
}

func (s *StubPriceSource) shouldFail() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failNext {
		s.failNext = false
		return true
	}
	return false
}

func (s *StubPriceSource) Price(_ context.Context, mint solana.Pubkey) (*TokenQuote, error) {
	if s.shouldFail() {
		return nil, fmt.Errorf("stub: simulated price failure")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if q, ok := s.quotes[mint]; ok {
		return &q, nil
	}
	return nil, fmt.Errorf("stub: price not found for %s", mint)
}

func (s *StubPriceSource) Prices(_ context.Context, mints []solana.Pubkey) (map[solana.Pubkey]TokenQuote, error) {
	if s.shouldFail() {
		return nil, fmt.Errorf("stub: simulated price failure")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[solana.Pubkey]TokenQuote)
	for _, m := range mints {
		if q, ok := s.quotes[m]; ok {
			out[m] = q
		}
	}
	return out, nil
}
