package openapi

import (
	"context"

	"github.com/ayushshrivastv/SolanaOpenAPI/internal/events"
)

// Provider supplies the raw dashboard data. The service layer wraps every
// provider call in the cache, so implementations never cache themselves.
type Provider interface {
	// NFTEvents returns the most recent NFT activity, newest first.
	NFTEvents(ctx context.Context, limit int) ([]NFTEvent, error)

	// MarketplaceEvents returns the most recent marketplace events, newest first.
	MarketplaceEvents(ctx context.Context, limit int) ([]events.MarketplaceEvent, error)

	// Balances returns all token positions held by the address. An address
	// holding nothing yields an empty slice, not an error.
	Balances(ctx context.Context, address string) ([]AccountBalance, error)

	// Transactions returns the address's recent history, newest first.
	Transactions(ctx context.Context, address string, limit int) ([]TransactionRecord, error)

	// TokenPrice quotes one mint in the configured vs currency.
	TokenPrice(ctx context.Context, mint string) (*TokenPrice, error)

	// Name identifies the provider in logs and the health payload.
	Name() string
}
