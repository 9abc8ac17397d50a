package gateway

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ayushshrivastv/SolanaOpenAPI/internal/events"
	"github.com/ayushshrivastv/SolanaOpenAPI/internal/openapi"
)

// BridgeFeed is the optional source for the omnichain activity endpoint.
// The event store serves it in store mode, the mock provider in mock mode.
type BridgeFeed interface {
	RecentBridgeEvents(ctx context.Context, limit int) ([]events.BridgeEvent, error)
}

// API holds the REST handlers over the data service.
type API struct {
	svc    *openapi.Service
	bridge BridgeFeed
}

func NewAPI(svc *openapi.Service, bridge BridgeFeed) *API {
	return &API{svc: svc, bridge: bridge}
}

// limitParam parses the optional limit query. Absent means 0 and the
// service applies its default; junk is a client error.
func limitParam(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit parameter"})
		return 0, false
	}
	return limit, true
}

// respond maps service errors onto the envelope: validation failures are
// the client's fault, anything else is a failed upstream.
func respond(c *gin.Context, payload any, err error) {
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, openapi.ErrInvalidAddress) || errors.Is(err, openapi.ErrInvalidMint) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": payload})
}

func (a *API) nftEvents(c *gin.Context) {
	limit, ok := limitParam(c)
	if !ok {
		return
	}
	evs, err := a.svc.NFTEvents(c.Request.Context(), limit)
	respond(c, evs, err)
}

func (a *API) marketplaceEvents(c *gin.Context) {
	limit, ok := limitParam(c)
	if !ok {
		return
	}
	evs, err := a.svc.MarketplaceEvents(c.Request.Context(), limit)
	respond(c, evs, err)
}

func (a *API) bridgeEvents(c *gin.Context) {
	if a.bridge == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "bridge feed not configured"})
		return
	}
	limit, ok := limitParam(c)
	if !ok {
		return
	}
	if limit <= 0 {
		limit = openapi.DefaultEventLimit
	}
	if limit > openapi.MaxEventLimit {
		limit = openapi.MaxEventLimit
	}
	evs, err := a.bridge.RecentBridgeEvents(c.Request.Context(), limit)
	respond(c, evs, err)
}

func (a *API) balances(c *gin.Context) {
	bals, err := a.svc.Balances(c.Request.Context(), c.Param("address"))
	respond(c, bals, err)
}

func (a *API) transactions(c *gin.Context) {
	limit, ok := limitParam(c)
	if !ok {
		return
	}
	txs, err := a.svc.Transactions(c.Request.Context(), c.Param("address"), limit)
	respond(c, txs, err)
}

func (a *API) tokenPrice(c *gin.Context) {
	price, err := a.svc.TokenPrice(c.Request.Context(), c.Param("mint"))
	respond(c, price, err)
}
