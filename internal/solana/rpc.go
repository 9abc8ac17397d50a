package solana

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// RPC Client Interface
// ---------------------------------------------------------------------------

// RPCClient is the interface for Solana RPC interactions.
// Implementations: LiveRPCClient (real Solana), StubRPCClient (testing).
type RPCClient interface {
	// GetWalletBalance returns SOL + SPL token balances for a wallet.
	GetWalletBalance(ctx context.Context, wallet Pubkey) (*WalletBalance, error)

	// GetSignaturesForAddress returns recent transaction signatures for an
	// address, newest first.
	GetSignaturesForAddress(ctx context.Context, address Pubkey, limit int) ([]SignatureInfo, error)

	// GetTransaction fetches and summarizes a confirmed transaction.
	GetTransaction(ctx context.Context, sig Signature) (*TransactionDetail, error)

	// Health returns the RPC endpoint health.
	Health(ctx context.Context) error
}

// RPCConfig configures the Solana RPC client.
type RPCConfig struct {
	Endpoint     string        `yaml:"endpoint"`       // e.g. https://api.mainnet-beta.solana.com
	WSEndpoint   string        `yaml:"ws_endpoint"`    // e.g. wss://api.mainnet-beta.solana.com
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RateLimitRPS float64       `yaml:"rate_limit_rps"` // requests per second limit
}

// DefaultRPCConfig returns development defaults.
func DefaultRPCConfig() RPCConfig {
	return RPCConfig{
		Endpoint:     "https://api.mainnet-beta.solana.com",
		WSEndpoint:   "wss://api.mainnet-beta.solana.com",
		Timeout:      10 * time.Second,
		MaxRetries:   3,
		RateLimitRPS: 10,
	}
}

// ---------------------------------------------------------------------------
// Stub RPC Client (for testing and development)
// ---------------------------------------------------------------------------

// StubRPCClient is a mock RPC client for testing.
type StubRPCClient struct {
	mu           sync.RWMutex
	balances     map[Pubkey]*WalletBalance
	signatures   map[Pubkey][]SignatureInfo
	transactions map[Signature]*TransactionDetail
	failNext     bool
	callCount    int
}

// NewStubRPCClient creates a stub RPC client for testing.
func NewStubRPCClient() *StubRPCClient {
	return &StubRPCClient{
		balances:     make(map[Pubkey]*WalletBalance),
		signatures:   make(map[Pubkey][]SignatureInfo),
		transactions: make(map[Signature]*TransactionDetail),
	}
}

// SetBalance registers a wallet balance for the stub to return.
func (s *StubRPCClient) SetBalance(wallet Pubkey, bal WalletBalance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[wallet] = &bal
}

// AddSignatures registers signature history for an address.
func (s *StubRPCClient) AddSignatures(address Pubkey, sigs []SignatureInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signatures[address] = sigs
}

// AddTransaction registers a transaction for the stub to return.
func (s *StubRPCClient) AddTransaction(detail TransactionDetail) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[detail.Signature] = &detail
}

// SetFailNext makes the next call fail.
func (s *StubRPCClient) SetFailNext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = true
}

// Calls returns how many RPC calls the stub has served.
func (s *StubRPCClient) Calls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.callCount
}

func (s *StubRPCClient) shouldFail() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callCount++
	if s.failNext {
		s.failNext = false
		return true
	}
	return false
}

// --- Interface implementation ---

func (s *StubRPCClient) GetWalletBalance(_ context.Context, wallet Pubkey) (*WalletBalance, error) {
	if s.shouldFail() {
		return nil, fmt.Errorf("stub: simulated RPC failure")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if bal, ok := s.balances[wallet]; ok {
		return bal, nil
	}
	return &WalletBalance{
		SOL:    decimal.Zero,
		Tokens: make(map[Pubkey]decimal.Decimal),
	}, nil
}

func (s *StubRPCClient) GetSignaturesForAddress(_ context.Context, address Pubkey, limit int) ([]SignatureInfo, error) {
	if s.shouldFail() {
		return nil, fmt.Errorf("stub: simulated RPC failure")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sigs := s.signatures[address]
	if len(sigs) > limit {
		sigs = sigs[:limit]
	}
	return sigs, nil
}

func (s *StubRPCClient) GetTransaction(_ context.Context, sig Signature) (*TransactionDetail, error) {
	if s.shouldFail() {
		return nil, fmt.Errorf("stub: simulated RPC failure")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if detail, ok := s.transactions[sig]; ok {
		return detail, nil
	}
	return nil, fmt.Errorf("stub: transaction %s not found", sig)
}

func (s *StubRPCClient) Health(_ context.Context) error {
	if s.shouldFail() {
		return fmt.Errorf("stub: simulated RPC failure")
	}
	return nil
}
