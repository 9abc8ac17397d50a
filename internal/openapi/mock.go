package openapi

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ayushshrivastv/SolanaOpenAPI/internal/events"
	"github.com/ayushshrivastv/SolanaOpenAPI/internal/solana"
)

// ---------------------------------------------------------------------------
// Mock provider. Fabricates plausible dashboard data from a seeded RNG so
// the full surface works without any upstream. Same seed, same sequence.
// ---------------------------------------------------------------------------

var mockCollections = []string{
	"DeGods",
	"y00ts",
	"Mad Lads",
	"Okay Bears",
	"Claynosaurz",
	"Solana Monkey Business",
	"Famous Fox Federation",
	"Tensorians",
	"Lifinity Flares",
	"Froganas",
}

var mockMarketplaces = []string{
	"Magic Eden",
	"Tensor",
	"Hyperspace",
	"Solanart",
}

// mockToken is a fungible token the mock quotes and holds balances in.
type mockToken struct {
	symbol    string
	mint      string
	basePrice float64
}

var mockTokens = []mockToken{
	{"SOL", string(solana.SOLMint), 142.37},
	{"USDC", string(solana.USDCMint), 1.0},
	{"BONK", "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263", 0.000024},
	{"JUP", "JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN", 0.92},
	{"WIF", "EKpQGSJtjMFqKZ9KQanSqYXRcF8fBopzLHYxdM65zcjm", 2.41},
	{"PYTH", "HZ1JovNiVvGrGNiiYvEozEVgZ58xaU3RKwX8eACQBCt3", 0.38},
	{"JTO", "jtojtomepa8beP8AuQc6eXt5FriJwfFMwQx2v2f9mCL", 3.12},
	{"RAY", "4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R", 1.85},
}

var mockTxKinds = []string{"transfer", "swap", "nft_sale", "stake"}

var mockBridgeChains = []string{"ethereum", "polygon", "arbitrum", "base", "avalanche", "bnb"}

// MockProvider fabricates dashboard data deterministically from a seed.
type MockProvider struct {
	mu      sync.Mutex
	rand    *rand.Rand
	slot    uint64
	prices  map[string]float64 // mint -> last walked quote
	wallets []string
	mints   []string
}

// NewMockProvider seeds the generator and pre-builds the address pools.
func NewMockProvider(seed int64) *MockProvider {
	p := &MockProvider{
		rand:   rand.New(rand.NewSource(seed)),
		slot:   260_000_000 + uint64(seed%1000)*10_000,
		prices: make(map[string]float64),
	}
	for _, tok := range mockTokens {
		p.prices[tok.mint] = tok.basePrice
	}
	p.wallets = make([]string, 50)
	for i := range p.wallets {
		p.wallets[i] = p.pubkey()
	}
	p.mints = make([]string, 200)
	for i := range p.mints {
		p.mints[i] = p.pubkey()
	}
	return p
}

func (p *MockProvider) Name() string { return "mock" }

// pubkey fabricates a valid base58 address. Callers must hold p.mu, except
// during construction.
func (p *MockProvider) pubkey() string {
	var pk solanago.PublicKey
	p.rand.Read(pk[:])
	return pk.String()
}

func (p *MockProvider) signature() string {
	var sig solanago.Signature
	p.rand.Read(sig[:])
	return sig.String()
}

// hexAddress fabricates an EVM-style address for the far side of a bridge
// transfer.
func (p *MockProvider) hexAddress() string {
	var b [20]byte
	p.rand.Read(b[:])
	return fmt.Sprintf("0x%x", b)
}

func (p *MockProvider) id() string {
	u, err := uuid.NewRandomFromReader(p.rand)
	if err != nil {
		return uuid.NewString()
	}
	return u.String()
}

// walkPrice moves the mint's quote by up to ±5% and returns the new value.
// Unknown mints start at a fabricated base.
func (p *MockProvider) walkPrice(mint string) float64 {
	last, ok := p.prices[mint]
	if !ok {
		last = 0.1 + p.rand.Float64()*10
	}
	change := (p.rand.Float64() - 0.5) * 0.1
	next := last * (1 + change)
	if next < last*0.2 {
		next = last * 0.2
	}
	p.prices[mint] = next
	return next
}

func (p *MockProvider) solPrice(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(decimal.NewFromFloat(p.prices[string(solana.SOLMint)])).Round(2)
}

func (p *MockProvider) NFTEvents(_ context.Context, limit int) ([]NFTEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now().UTC()
	out := make([]NFTEvent, 0, limit)
	for i := 0; i < limit; i++ {
		collection := mockCollections[p.rand.Intn(len(mockCollections))]
		ev := NFTEvent{
			ID:          p.id(),
			Collection:  collection,
			TokenMint:   p.mints[p.rand.Intn(len(p.mints))],
			TokenName:   fmt.Sprintf("%s #%d", collection, 1+p.rand.Intn(9999)),
			Currency:    "SOL",
			TxSignature: p.signature(),
			Slot:        p.slot - uint64(i*3) - uint64(p.rand.Intn(3)),
			BlockTime:   now.Add(-time.Duration(i*7+p.rand.Intn(30)) * time.Second),
		}
		switch roll := p.rand.Intn(100); {
		case roll < 15:
			ev.Kind = NFTEventMint
			ev.To = p.wallets[p.rand.Intn(len(p.wallets))]
		case roll < 40:
			ev.Kind = NFTEventTransfer
			ev.From = p.wallets[p.rand.Intn(len(p.wallets))]
			ev.To = p.wallets[p.rand.Intn(len(p.wallets))]
		case roll < 70:
			ev.Kind = NFTEventList
			ev.From = p.wallets[p.rand.Intn(len(p.wallets))]
			ev.Price = decimal.NewFromFloat(0.1 + p.rand.Float64()*499).Round(3)
		default:
			ev.Kind = NFTEventSale
			ev.From = p.wallets[p.rand.Intn(len(p.wallets))]
			ev.To = p.wallets[p.rand.Intn(len(p.wallets))]
			ev.Price = decimal.NewFromFloat(0.1 + p.rand.Float64()*499).Round(3)
		}
		out = append(out, ev)
	}
	return out, nil
}

func (p *MockProvider) MarketplaceEvents(_ context.Context, limit int) ([]events.MarketplaceEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now().UTC()
	out := make([]events.MarketplaceEvent, 0, limit)
	for i := 0; i < limit; i++ {
		price := decimal.NewFromFloat(0.1 + p.rand.Float64()*499).Round(3)
		ev := events.MarketplaceEvent{
			ID:          p.id(),
			Marketplace: mockMarketplaces[p.rand.Intn(len(mockMarketplaces))],
			Collection:  mockCollections[p.rand.Intn(len(mockCollections))],
			TokenMint:   p.mints[p.rand.Intn(len(p.mints))],
			Price:       price,
			Fee:         price.Mul(decimal.NewFromFloat(0.02)).Round(4),
			TxSignature: p.signature(),
			BlockNumber: p.slot - uint64(i*3) - uint64(p.rand.Intn(3)),
			BlockHash:   p.pubkey(),
			BlockTime:   now.Add(-time.Duration(i*7+p.rand.Intn(30)) * time.Second),
		}
		switch roll := p.rand.Intn(100); {
		case roll < 25:
			ev.Kind = events.KindBid
			ev.Buyer = p.wallets[p.rand.Intn(len(p.wallets))]
		case roll < 55:
			ev.Kind = events.KindListing
			ev.Seller = p.wallets[p.rand.Intn(len(p.wallets))]
		case roll < 80:
			ev.Kind = events.KindSale
			ev.Seller = p.wallets[p.rand.Intn(len(p.wallets))]
			ev.Buyer = p.wallets[p.rand.Intn(len(p.wallets))]
		case roll < 90:
			ev.Kind = events.KindCancelBid
			ev.Buyer = p.wallets[p.rand.Intn(len(p.wallets))]
			ev.Price = decimal.Zero
			ev.Fee = decimal.Zero
		default:
			ev.Kind = events.KindCancelListing
			ev.Seller = p.wallets[p.rand.Intn(len(p.wallets))]
			ev.Price = decimal.Zero
			ev.Fee = decimal.Zero
		}
		out = append(out, ev)
	}
	return out, nil
}

// RecentBridgeEvents fabricates cross-chain transfers for the omnichain
// feed. Not part of the Provider interface; the gateway wires it directly.
func (p *MockProvider) RecentBridgeEvents(_ context.Context, limit int) ([]events.BridgeEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now().UTC()
	out := make([]events.BridgeEvent, 0, limit)
	for i := 0; i < limit; i++ {
		tok := mockTokens[p.rand.Intn(len(mockTokens))]
		amount := decimal.NewFromFloat(10 + p.rand.Float64()*50_000).Round(2)
		ev := events.BridgeEvent{
			ID:          p.id(),
			TokenMint:   tok.mint,
			Amount:      amount,
			Fee:         amount.Mul(decimal.NewFromFloat(0.001)).Round(4),
			TxSignature: p.signature(),
			BlockNumber: p.slot - uint64(i*4) - uint64(p.rand.Intn(4)),
			BlockHash:   p.pubkey(),
			BlockTime:   now.Add(-time.Duration(i*11+p.rand.Intn(30)) * time.Second),
		}
		other := mockBridgeChains[p.rand.Intn(len(mockBridgeChains))]
		if p.rand.Intn(2) == 0 {
			ev.Direction = events.DirectionOut
			ev.SourceChain = "solana"
			ev.DestinationChain = other
			ev.Sender = p.wallets[p.rand.Intn(len(p.wallets))]
			ev.Receiver = p.hexAddress()
		} else {
			ev.Direction = events.DirectionIn
			ev.SourceChain = other
			ev.DestinationChain = "solana"
			ev.Sender = p.hexAddress()
			ev.Receiver = p.wallets[p.rand.Intn(len(p.wallets))]
		}
		out = append(out, ev)
	}
	return out, nil
}

func (p *MockProvider) Balances(_ context.Context, address string) ([]AccountBalance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now().UTC()
	sol := decimal.NewFromFloat(0.5 + p.rand.Float64()*49.5).Round(4)
	out := []AccountBalance{{
		Address:     address,
		TokenSymbol: "SOL",
		TokenMint:   string(solana.SOLMint),
		Amount:      sol,
		ValueUSD:    p.solPrice(sol),
		UpdatedAt:   now,
	}}
	count := 2 + p.rand.Intn(3)
	seen := map[int]bool{0: true}
	for len(out) < 1+count {
		idx := p.rand.Intn(len(mockTokens))
		if seen[idx] {
			continue
		}
		seen[idx] = true
		tok := mockTokens[idx]
		amount := decimal.NewFromFloat(p.rand.Float64() * 10_000).Round(4)
		out = append(out, AccountBalance{
			Address:     address,
			TokenSymbol: tok.symbol,
			TokenMint:   tok.mint,
			Amount:      amount,
			ValueUSD:    amount.Mul(decimal.NewFromFloat(p.prices[tok.mint])).Round(2),
			UpdatedAt:   now,
		})
	}
	return out, nil
}

func (p *MockProvider) Transactions(_ context.Context, address string, limit int) ([]TransactionRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now().UTC()
	out := make([]TransactionRecord, 0, limit)
	for i := 0; i < limit; i++ {
		rec := TransactionRecord{
			Signature: p.signature(),
			Slot:      p.slot - uint64(i*5) - uint64(p.rand.Intn(5)),
			BlockTime: now.Add(-time.Duration(i*45+p.rand.Intn(40)) * time.Second),
			Amount:    decimal.NewFromFloat(p.rand.Float64() * 25).Round(6),
			Fee:       decimal.RequireFromString("0.000005"),
			Status:    TxSuccess,
			Kind:      mockTxKinds[p.rand.Intn(len(mockTxKinds))],
			ProgramID: string(solana.SystemProgramID),
		}
		if p.rand.Intn(2) == 0 {
			rec.Sender = address
			rec.Receiver = p.wallets[p.rand.Intn(len(p.wallets))]
		} else {
			rec.Sender = p.wallets[p.rand.Intn(len(p.wallets))]
			rec.Receiver = address
		}
		if p.rand.Intn(100) < 5 {
			rec.Status = TxFailed
			rec.Amount = decimal.Zero
		}
		out = append(out, rec)
	}
	return out, nil
}

func (p *MockProvider) TokenPrice(_ context.Context, mint string) (*TokenPrice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	symbol := solana.TokenSymbol(solana.Pubkey(mint))
	for _, tok := range mockTokens {
		if tok.mint == mint {
			symbol = tok.symbol
		}
	}
	price := p.walkPrice(mint)
	return &TokenPrice{
		Mint:      mint,
		Symbol:    symbol,
		Price:     decimal.NewFromFloat(price).Round(8),
		Currency:  "USDC",
		Volume24h: decimal.NewFromFloat(100_000 + p.rand.Float64()*49_900_000).Round(2),
		Change24h: decimal.NewFromFloat(-15 + p.rand.Float64()*30).Round(2),
		Timestamp: time.Now().UTC(),
	}, nil
}
