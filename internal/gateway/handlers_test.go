package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayushshrivastv/SolanaOpenAPI/internal/cache"
	"github.com/ayushshrivastv/SolanaOpenAPI/internal/config"
	"github.com/ayushshrivastv/SolanaOpenAPI/internal/events"
	"github.com/ayushshrivastv/SolanaOpenAPI/internal/fetch"
	"github.com/ayushshrivastv/SolanaOpenAPI/internal/openapi"
	"github.com/ayushshrivastv/SolanaOpenAPI/internal/solana"
)

const testWallet = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"

// failingProvider simulates an upstream that is down.
type failingProvider struct{}

var errUpstreamDown = errors.New("rpc node unavailable")

func (failingProvider) NFTEvents(context.Context, int) ([]openapi.NFTEvent, error) {
	return nil, errUpstreamDown
}

func (failingProvider) MarketplaceEvents(context.Context, int) ([]events.MarketplaceEvent, error) {
	return nil, errUpstreamDown
}

func (failingProvider) Balances(context.Context, string) ([]openapi.AccountBalance, error) {
	return nil, errUpstreamDown
}

func (failingProvider) Transactions(context.Context, string, int) ([]openapi.TransactionRecord, error) {
	return nil, errUpstreamDown
}

func (failingProvider) TokenPrice(context.Context, string) (*openapi.TokenPrice, error) {
	return nil, errUpstreamDown
}

func (failingProvider) Name() string { return "failing" }

func decodeData[T any](t *testing.T, body []byte) T {
	t.Helper()
	var resp struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp.Data
}

func TestNFTEventsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	w := doRequest(t, srv, http.MethodGet, "/api/nft/events?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)

	evs := decodeData[[]openapi.NFTEvent](t, w.Body.Bytes())
	require.Len(t, evs, 5)
	for _, ev := range evs {
		assert.NotEmpty(t, ev.ID)
		assert.NotEmpty(t, ev.TxSignature)
		assert.NotEmpty(t, ev.Collection)
	}
}

func TestNFTEventsEndpoint_DefaultLimit(t *testing.T) {
	srv := newTestServer(t, nil)

	w := doRequest(t, srv, http.MethodGet, "/api/nft/events", "")
	require.Equal(t, http.StatusOK, w.Code)

	evs := decodeData[[]openapi.NFTEvent](t, w.Body.Bytes())
	assert.Len(t, evs, openapi.DefaultEventLimit)
}

func TestMarketplaceEventsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	w := doRequest(t, srv, http.MethodGet, "/api/marketplace/events?limit=3", "")
	require.Equal(t, http.StatusOK, w.Code)

	evs := decodeData[[]events.MarketplaceEvent](t, w.Body.Bytes())
	require.Len(t, evs, 3)
	for _, ev := range evs {
		assert.NoError(t, ev.Validate())
	}
}

func TestLimitParamRejected(t *testing.T) {
	srv := newTestServer(t, nil)

	for _, target := range []string{
		"/api/nft/events?limit=abc",
		"/api/marketplace/events?limit=1.5",
		"/api/bridge/events?limit=x",
		"/api/account/" + testWallet + "/transactions?limit=ten",
	} {
		w := doRequest(t, srv, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
		assert.Contains(t, w.Body.String(), "invalid limit parameter", target)
	}
}

func TestBalancesEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	w := doRequest(t, srv, http.MethodGet, "/api/account/"+testWallet+"/balances", "")
	require.Equal(t, http.StatusOK, w.Code)

	bals := decodeData[[]openapi.AccountBalance](t, w.Body.Bytes())
	require.NotEmpty(t, bals)
	assert.Equal(t, testWallet, bals[0].Address)
	assert.Equal(t, "SOL", bals[0].TokenSymbol)
}

func TestBalancesEndpoint_InvalidAddress(t *testing.T) {
	srv := newTestServer(t, nil)

	w := doRequest(t, srv, http.MethodGet, "/api/account/not-a-pubkey!/balances", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid address")
}

func TestTransactionsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	w := doRequest(t, srv, http.MethodGet, "/api/account/"+testWallet+"/transactions?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)

	txs := decodeData[[]openapi.TransactionRecord](t, w.Body.Bytes())
	require.Len(t, txs, 5)
	for _, tx := range txs {
		assert.NotEmpty(t, tx.Signature)
		assert.NotZero(t, tx.Slot)
	}
}

func TestTokenPriceEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	mint := string(solana.SOLMint)
	w := doRequest(t, srv, http.MethodGet, "/api/market/price/"+mint, "")
	require.Equal(t, http.StatusOK, w.Code)

	price := decodeData[openapi.TokenPrice](t, w.Body.Bytes())
	assert.Equal(t, mint, price.Mint)
	assert.Equal(t, "SOL", price.Symbol)
	assert.True(t, price.Price.IsPositive())
}

func TestTokenPriceEndpoint_InvalidMint(t *testing.T) {
	srv := newTestServer(t, nil)

	w := doRequest(t, srv, http.MethodGet, "/api/market/price/nope", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid mint")
}

func TestUpstreamFailureMapsToBadGateway(t *testing.T) {
	srv := newTestServer(t, func(_ *config.Config, deps *Deps) {
		payloadCache := cache.New(time.Minute)
		t.Cleanup(payloadCache.Stop)
		deps.Service = openapi.NewService(fetch.New(payloadCache), failingProvider{})
	})

	w := doRequest(t, srv, http.MethodGet, "/api/nft/events?limit=5", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "rpc node unavailable")
}

func TestBridgeEventsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	w := doRequest(t, srv, http.MethodGet, "/api/bridge/events?limit=10", "")
	require.Equal(t, http.StatusOK, w.Code)

	evs := decodeData[[]events.BridgeEvent](t, w.Body.Bytes())
	require.Len(t, evs, 10)
	for _, ev := range evs {
		assert.NoError(t, ev.Validate())
	}
}

func TestBridgeEventsEndpoint_LimitClamped(t *testing.T) {
	srv := newTestServer(t, nil)

	w := doRequest(t, srv, http.MethodGet, "/api/bridge/events?limit=500", "")
	require.Equal(t, http.StatusOK, w.Code)
	evs := decodeData[[]events.BridgeEvent](t, w.Body.Bytes())
	assert.Len(t, evs, openapi.MaxEventLimit)

	w = doRequest(t, srv, http.MethodGet, "/api/bridge/events", "")
	require.Equal(t, http.StatusOK, w.Code)
	evs = decodeData[[]events.BridgeEvent](t, w.Body.Bytes())
	assert.Len(t, evs, openapi.DefaultEventLimit)
}

func TestBridgeEventsEndpoint_NoFeedConfigured(t *testing.T) {
	srv := newTestServer(t, func(_ *config.Config, deps *Deps) {
		deps.Bridge = nil
	})

	w := doRequest(t, srv, http.MethodGet, "/api/bridge/events", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "bridge feed not configured")
}
