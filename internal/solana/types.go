package solana

import (
	"fmt"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// Pubkey is a Solana public key (base58 string).
type Pubkey string

// Signature is a Solana transaction signature.
type Signature string

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// ValidateAddress checks that s is a well-formed base58 Solana public key.
func ValidateAddress(s string) error {
	if _, err := solanago.PublicKeyFromBase58(s); err != nil {
		return fmt.Errorf("solana: invalid address %q: %w", s, err)
	}
	return nil
}

// LamportsToSOL converts a lamport amount to SOL.
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromUint64(lamports).Div(decimal.NewFromInt(LamportsPerSOL))
}

// ---------------------------------------------------------------------------
// Account types
// ---------------------------------------------------------------------------

// WalletBalance represents the balance of a wallet.
type WalletBalance struct {
	SOL    decimal.Decimal            `json:"sol"`
	Tokens map[Pubkey]decimal.Decimal `json:"tokens"` // mint -> ui amount
}

// SignatureInfo is one entry from getSignaturesForAddress.
type SignatureInfo struct {
	Signature Signature `json:"signature"`
	Slot      uint64    `json:"slot"`
	BlockTime time.Time `json:"block_time"`
	Failed    bool      `json:"failed"`
	Memo      string    `json:"memo,omitempty"`
}

// TransactionDetail is a decoded transaction summary. Sender and receiver
// follow the account-key convention of simple transfers: the fee payer
// first, the credited account second.
type TransactionDetail struct {
	Signature Signature       `json:"signature"`
	Slot      uint64          `json:"slot"`
	BlockTime time.Time       `json:"block_time"`
	Sender    Pubkey          `json:"sender"`
	Receiver  Pubkey          `json:"receiver"`
	Amount    decimal.Decimal `json:"amount"` // SOL credited to the receiver
	Fee       decimal.Decimal `json:"fee"`    // SOL
	Status    string          `json:"status"` // success|failed
	Program   Pubkey          `json:"program,omitempty"`
}

// Well-known mints.
const (
	SOLMint  Pubkey = "So11111111111111111111111111111111111111112"
	USDCMint Pubkey = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	USDTMint Pubkey = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
)

// Well-known program IDs.
const (
	SystemProgramID Pubkey = "11111111111111111111111111111111"
	TokenProgramID  Pubkey = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
)

// TokenSymbol returns the ticker for well-known mints, or a truncated mint
// string for everything else. On-chain accounts carry no symbol.
func TokenSymbol(mint Pubkey) string {
	switch mint {
	case SOLMint:
		return "SOL"
	case USDCMint:
		return "USDC"
	case USDTMint:
		return "USDT"
	}
	if len(mint) > 8 {
		return string(mint[:4]) + ".." + string(mint[len(mint)-4:])
	}
	return string(mint)
}
