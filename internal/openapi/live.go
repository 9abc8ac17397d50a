package openapi

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ayushshrivastv/SolanaOpenAPI/internal/events"
	"github.com/ayushshrivastv/SolanaOpenAPI/internal/fetch"
	"github.com/ayushshrivastv/SolanaOpenAPI/internal/market"
	"github.com/ayushshrivastv/SolanaOpenAPI/internal/solana"
)

// ---------------------------------------------------------------------------
// Live provider. Event feeds come from the analytics GraphQL API, account
// data from Solana RPC, quotes from the price source.
// ---------------------------------------------------------------------------

const nftEventsQuery = `query NFTEvents($limit: Int!) {
  nftEvents(limit: $limit) {
    id kind collection token_mint token_name from to price currency tx_signature slot block_time
  }
}`

const marketplaceEventsQuery = `query MarketplaceEvents($limit: Int!) {
  marketplaceEvents(limit: $limit) {
    id kind marketplace collection token_mint seller buyer price fee tx_signature block_number block_hash block_time
  }
}`

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

// LiveProvider serves real upstream data.
type LiveProvider struct {
	fetcher      *fetch.Client
	rpc          solana.RPCClient
	prices       market.PriceSource
	analyticsURL string
}

// NewLiveProvider wires the upstream clients together. The fetch client
// carries the retry policy for analytics calls.
func NewLiveProvider(fetcher *fetch.Client, rpc solana.RPCClient, prices market.PriceSource, analyticsURL string) *LiveProvider {
	return &LiveProvider{
		fetcher:      fetcher,
		rpc:          rpc,
		prices:       prices,
		analyticsURL: analyticsURL,
	}
}

func (p *LiveProvider) Name() string { return "live" }

// query posts a GraphQL request to the analytics API and unmarshals the
// data envelope into out.
func (p *LiveProvider) query(ctx context.Context, query string, variables map[string]any, out any) error {
	raw, err := p.fetcher.RequestWithRetry(ctx, p.analyticsURL, graphqlRequest{
		Query:     query,
		Variables: variables,
	})
	if err != nil {
		return err
	}
	var resp struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphqlError  `json:"errors"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("openapi: decode analytics response: %w", err)
	}
	if len(resp.Errors) > 0 {
		return fmt.Errorf("openapi: analytics query failed: %s", resp.Errors[0].Message)
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("openapi: decode analytics data: %w", err)
	}
	return nil
}

func (p *LiveProvider) NFTEvents(ctx context.Context, limit int) ([]NFTEvent, error) {
	var data struct {
		NFTEvents []NFTEvent `json:"nftEvents"`
	}
	if err := p.query(ctx, nftEventsQuery, map[string]any{"limit": limit}, &data); err != nil {
		return nil, err
	}
	return data.NFTEvents, nil
}

func (p *LiveProvider) MarketplaceEvents(ctx context.Context, limit int) ([]events.MarketplaceEvent, error) {
	var data struct {
		MarketplaceEvents []json.RawMessage `json:"marketplaceEvents"`
	}
	if err := p.query(ctx, marketplaceEventsQuery, map[string]any{"limit": limit}, &data); err != nil {
		return nil, err
	}
	out := make([]events.MarketplaceEvent, 0, len(data.MarketplaceEvents))
	for _, raw := range data.MarketplaceEvents {
		ev, err := events.DecodeMarketplaceEvent(raw)
		if err != nil {
			log.Warn().Err(err).Msg("Skipping malformed marketplace event from analytics")
			continue
		}
		out = append(out, *ev)
	}
	return out, nil
}

func (p *LiveProvider) Balances(ctx context.Context, address string) ([]AccountBalance, error) {
	bal, err := p.rpc.GetWalletBalance(ctx, solana.Pubkey(address))
	if err != nil {
		return nil, err
	}

	mints := make([]solana.Pubkey, 0, len(bal.Tokens)+1)
	mints = append(mints, solana.SOLMint)
	for mint := range bal.Tokens {
		mints = append(mints, mint)
	}
	quotes, err := p.prices.Prices(ctx, mints)
	if err != nil {
		// Balances are still useful without USD values.
		log.Warn().Err(err).Str("address", address).Msg("Price lookup failed, omitting USD values")
		quotes = map[solana.Pubkey]market.TokenQuote{}
	}

	valueUSD := func(mint solana.Pubkey, amount decimal.Decimal) decimal.Decimal {
		quote, ok := quotes[mint]
		if !ok {
			return decimal.Zero
		}
		return amount.Mul(quote.Price).Round(2)
	}

	now := time.Now().UTC()
	out := []AccountBalance{{
		Address:     address,
		TokenSymbol: "SOL",
		TokenMint:   string(solana.SOLMint),
		Amount:      bal.SOL,
		ValueUSD:    valueUSD(solana.SOLMint, bal.SOL),
		UpdatedAt:   now,
	}}
	for mint, amount := range bal.Tokens {
		out = append(out, AccountBalance{
			Address:     address,
			TokenSymbol: solana.TokenSymbol(mint),
			TokenMint:   string(mint),
			Amount:      amount,
			ValueUSD:    valueUSD(mint, amount),
			UpdatedAt:   now,
		})
	}
	return out, nil
}

func (p *LiveProvider) Transactions(ctx context.Context, address string, limit int) ([]TransactionRecord, error) {
	sigs, err := p.rpc.GetSignaturesForAddress(ctx, solana.Pubkey(address), limit)
	if err != nil {
		return nil, err
	}
	out := make([]TransactionRecord, 0, len(sigs))
	for _, info := range sigs {
		detail, err := p.rpc.GetTransaction(ctx, info.Signature)
		if err != nil {
			log.Warn().Err(err).Str("signature", string(info.Signature)).Msg("Skipping unreadable transaction")
			continue
		}
		out = append(out, TransactionRecord{
			Signature: string(detail.Signature),
			Slot:      detail.Slot,
			BlockTime: detail.BlockTime,
			Sender:    string(detail.Sender),
			Receiver:  string(detail.Receiver),
			Amount:    detail.Amount,
			Fee:       detail.Fee,
			Status:    TxStatus(detail.Status),
			Kind:      kindForProgram(detail.Program),
			ProgramID: string(detail.Program),
		})
	}
	return out, nil
}

func (p *LiveProvider) TokenPrice(ctx context.Context, mint string) (*TokenPrice, error) {
	quote, err := p.prices.Price(ctx, solana.Pubkey(mint))
	if err != nil {
		return nil, err
	}
	// The quote endpoint carries no day statistics, so volume and change
	// stay zero on the live path.
	return &TokenPrice{
		Mint:      string(quote.Mint),
		Symbol:    quote.Symbol,
		Price:     quote.Price,
		Currency:  solana.TokenSymbol(quote.VsToken),
		Timestamp: quote.Timestamp,
	}, nil
}

func kindForProgram(program solana.Pubkey) string {
	switch program {
	case solana.SystemProgramID, solana.TokenProgramID:
		return "transfer"
	default:
		return "unknown"
	}
}
