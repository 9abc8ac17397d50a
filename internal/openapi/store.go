package openapi

import (
	"context"

	"github.com/ayushshrivastv/SolanaOpenAPI/internal/events"
)

// EventStore reads back indexed marketplace events, newest first.
type EventStore interface {
	RecentMarketplaceEvents(ctx context.Context, limit int) ([]events.MarketplaceEvent, error)
}

// StoreProvider serves event feeds from the analytics store and delegates
// account data and quotes to a fallback provider, normally the live one.
type StoreProvider struct {
	store    EventStore
	fallback Provider
}

func NewStoreProvider(store EventStore, fallback Provider) *StoreProvider {
	return &StoreProvider{store: store, fallback: fallback}
}

func (p *StoreProvider) Name() string { return "store" }

func (p *StoreProvider) MarketplaceEvents(ctx context.Context, limit int) ([]events.MarketplaceEvent, error) {
	return p.store.RecentMarketplaceEvents(ctx, limit)
}

// NFTEvents projects the NFT activity feed out of indexed marketplace
// events. Bids and cancellations are marketplace bookkeeping, not NFT
// activity, so they are left out.
func (p *StoreProvider) NFTEvents(ctx context.Context, limit int) ([]NFTEvent, error) {
	evs, err := p.store.RecentMarketplaceEvents(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]NFTEvent, 0, len(evs))
	for _, ev := range evs {
		var kind NFTEventKind
		switch ev.Kind {
		case events.KindSale:
			kind = NFTEventSale
		case events.KindListing:
			kind = NFTEventList
		default:
			continue
		}
		out = append(out, NFTEvent{
			ID:          ev.ID,
			Kind:        kind,
			Collection:  ev.Collection,
			TokenMint:   ev.TokenMint,
			From:        ev.Seller,
			To:          ev.Buyer,
			Price:       ev.Price,
			Currency:    "SOL",
			TxSignature: ev.TxSignature,
			Slot:        ev.BlockNumber,
			BlockTime:   ev.BlockTime,
		})
	}
	return out, nil
}

func (p *StoreProvider) Balances(ctx context.Context, address string) ([]AccountBalance, error) {
	return p.fallback.Balances(ctx, address)
}

func (p *StoreProvider) Transactions(ctx context.Context, address string, limit int) ([]TransactionRecord, error) {
	return p.fallback.Transactions(ctx, address, limit)
}

func (p *StoreProvider) TokenPrice(ctx context.Context, mint string) (*TokenPrice, error) {
	return p.fallback.TokenPrice(ctx, mint)
}
