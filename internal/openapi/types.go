package openapi

import (
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Dashboard record families. Monetary fields are decimals end to end and
// marshal as strings.
// ---------------------------------------------------------------------------

// NFTEventKind classifies an NFT activity feed entry.
type NFTEventKind string

const (
	NFTEventMint     NFTEventKind = "MINT"
	NFTEventTransfer NFTEventKind = "TRANSFER"
	NFTEventList     NFTEventKind = "LIST"
	NFTEventSale     NFTEventKind = "SALE"
)

// NFTEvent is one entry in the NFT activity feed.
type NFTEvent struct {
	ID          string          `json:"id"`
	Kind        NFTEventKind    `json:"kind"`
	Collection  string          `json:"collection"`
	TokenMint   string          `json:"token_mint"`
	TokenName   string          `json:"token_name,omitempty"`
	From        string          `json:"from,omitempty"`
	To          string          `json:"to,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
	TxSignature string          `json:"tx_signature"`
	Slot        uint64          `json:"slot"`
	BlockTime   time.Time       `json:"block_time"`
}

// AccountBalance is one token position held by an address.
type AccountBalance struct {
	Address     string          `json:"address"`
	TokenSymbol string          `json:"token_symbol"`
	TokenMint   string          `json:"token_mint"`
	Amount      decimal.Decimal `json:"amount"`
	ValueUSD    decimal.Decimal `json:"value_usd"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// TxStatus is the terminal state of a transaction.
type TxStatus string

const (
	TxSuccess TxStatus = "success"
	TxFailed  TxStatus = "failed"
)

// TransactionRecord is one entry in an address's transaction history.
type TransactionRecord struct {
	Signature string          `json:"signature"`
	Slot      uint64          `json:"slot"`
	BlockTime time.Time       `json:"block_time"`
	Sender    string          `json:"sender"`
	Receiver  string          `json:"receiver"`
	Amount    decimal.Decimal `json:"amount"`
	Fee       decimal.Decimal `json:"fee"`
	Status    TxStatus        `json:"status"`
	Kind      string          `json:"kind"` // transfer|swap|nft_sale|stake
	ProgramID string          `json:"program_id,omitempty"`
}

// TokenPrice is a point-in-time quote with day statistics.
type TokenPrice struct {
	Mint      string          `json:"mint"`
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency"`
	Volume24h decimal.Decimal `json:"volume_24h"`
	Change24h decimal.Decimal `json:"change_24h"` // percent
	Timestamp time.Time       `json:"timestamp"`
}
