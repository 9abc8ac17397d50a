package openapi

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayushshrivastv/SolanaOpenAPI/internal/events"
	"github.com/ayushshrivastv/SolanaOpenAPI/internal/fetch"
	"github.com/ayushshrivastv/SolanaOpenAPI/internal/solana"
)

// Feed limits. Requests outside the range are clamped, not rejected.
const (
	DefaultEventLimit = 50
	MaxEventLimit     = 100
	DefaultTxLimit    = 20
	MaxTxLimit        = 50
)

var (
	ErrInvalidAddress = errors.New("openapi: invalid address")
	ErrInvalidMint    = errors.New("openapi: invalid mint")
)

// Service is the cached data-access layer the gateway serves from. Every
// read goes through the fetch client, so identical requests inside the TTL
// window hit the cache instead of the provider.
type Service struct {
	fetcher  *fetch.Client
	provider Provider
}

func NewService(fetcher *fetch.Client, provider Provider) *Service {
	return &Service{fetcher: fetcher, provider: provider}
}

// ProviderName reports which provider backs the service, for health output.
func (s *Service) ProviderName() string { return s.provider.Name() }

func clampLimit(limit, def, max int) int {
	switch {
	case limit <= 0:
		return def
	case limit > max:
		return max
	}
	return limit
}

func (s *Service) NFTEvents(ctx context.Context, limit int) ([]NFTEvent, error) {
	limit = clampLimit(limit, DefaultEventLimit, MaxEventLimit)
	key := fmt.Sprintf("nft-events-%d", limit)
	return fetch.Cached(ctx, s.fetcher, key, func(ctx context.Context) ([]NFTEvent, error) {
		return s.provider.NFTEvents(ctx, limit)
	})
}

func (s *Service) MarketplaceEvents(ctx context.Context, limit int) ([]events.MarketplaceEvent, error) {
	limit = clampLimit(limit, DefaultEventLimit, MaxEventLimit)
	key := fmt.Sprintf("marketplace-events-%d", limit)
	return fetch.Cached(ctx, s.fetcher, key, func(ctx context.Context) ([]events.MarketplaceEvent, error) {
		return s.provider.MarketplaceEvents(ctx, limit)
	})
}

func (s *Service) Balances(ctx context.Context, address string) ([]AccountBalance, error) {
	if err := solana.ValidateAddress(address); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	key := "balances-" + address
	return fetch.Cached(ctx, s.fetcher, key, func(ctx context.Context) ([]AccountBalance, error) {
		return s.provider.Balances(ctx, address)
	})
}

func (s *Service) Transactions(ctx context.Context, address string, limit int) ([]TransactionRecord, error) {
	if err := solana.ValidateAddress(address); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	limit = clampLimit(limit, DefaultTxLimit, MaxTxLimit)
	key := fmt.Sprintf("transactions-%s-%d", address, limit)
	return fetch.Cached(ctx, s.fetcher, key, func(ctx context.Context) ([]TransactionRecord, error) {
		return s.provider.Transactions(ctx, address, limit)
	})
}

func (s *Service) TokenPrice(ctx context.Context, mint string) (*TokenPrice, error) {
	if err := solana.ValidateAddress(mint); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMint, err)
	}
	key := "price-" + mint
	return fetch.Cached(ctx, s.fetcher, key, func(ctx context.Context) (*TokenPrice, error) {
		return s.provider.TokenPrice(ctx, mint)
	})
}
