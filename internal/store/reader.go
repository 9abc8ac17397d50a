package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ayushshrivastv/SolanaOpenAPI/internal/events"
)

// RecentMarketplaceEvents returns the latest indexed marketplace events,
// newest first.
func (c *Client) RecentMarketplaceEvents(ctx context.Context, limit int) ([]events.MarketplaceEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf(`
		SELECT id, kind, marketplace, collection, token_mint, seller, buyer,
		       price, fee, tx_signature, block_number, block_hash, block_time
		FROM %s
		ORDER BY block_time DESC, block_number DESC
		LIMIT ?`, c.table("marketplace_events"))

	rows, err := c.conn.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query marketplace events: %w", err)
	}
	defer rows.Close()

	out := make([]events.MarketplaceEvent, 0, limit)
	for rows.Next() {
		var (
			ev          events.MarketplaceEvent
			kind        string
			price, fee  float64
			blockNumber uint64
			blockTime   time.Time
		)
		if err := rows.Scan(
			&ev.ID, &kind, &ev.Marketplace, &ev.Collection, &ev.TokenMint,
			&ev.Seller, &ev.Buyer, &price, &fee, &ev.TxSignature,
			&blockNumber, &ev.BlockHash, &blockTime,
		); err != nil {
			return nil, fmt.Errorf("scan marketplace event: %w", err)
		}
		ev.Kind = events.Kind(kind)
		ev.Price = decimal.NewFromFloat(price)
		ev.Fee = decimal.NewFromFloat(fee)
		ev.BlockNumber = blockNumber
		ev.BlockTime = blockTime.UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}

// RecentBridgeEvents returns the latest indexed bridge events, newest first.
func (c *Client) RecentBridgeEvents(ctx context.Context, limit int) ([]events.BridgeEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf(`
		SELECT id, direction, source_chain, destination_chain, token_mint,
		       sender, receiver, amount, fee, tx_signature, block_number,
		       block_hash, block_time
		FROM %s
		ORDER BY block_time DESC, block_number DESC
		LIMIT ?`, c.table("bridge_events"))

	rows, err := c.conn.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query bridge events: %w", err)
	}
	defer rows.Close()

	out := make([]events.BridgeEvent, 0, limit)
	for rows.Next() {
		var (
			ev          events.BridgeEvent
			direction   string
			amount, fee float64
			blockNumber uint64
			blockTime   time.Time
		)
		if err := rows.Scan(
			&ev.ID, &direction, &ev.SourceChain, &ev.DestinationChain, &ev.TokenMint,
			&ev.Sender, &ev.Receiver, &amount, &fee, &ev.TxSignature,
			&blockNumber, &ev.BlockHash, &blockTime,
		); err != nil {
			return nil, fmt.Errorf("scan bridge event: %w", err)
		}
		ev.Direction = events.Direction(direction)
		ev.Amount = decimal.NewFromFloat(amount)
		ev.Fee = decimal.NewFromFloat(fee)
		ev.BlockNumber = blockNumber
		ev.BlockTime = blockTime.UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}
