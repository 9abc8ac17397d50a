package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Wire records published by the indexing pipeline. Monetary fields travel
// as decimal strings; shopspring handles both quoted and bare numbers on
// the way in.
// ---------------------------------------------------------------------------

// Kind classifies a marketplace event.
type Kind string

const (
	KindBid           Kind = "BID"
	KindListing       Kind = "LISTING"
	KindSale          Kind = "SALE"
	KindCancelBid     Kind = "CANCEL_BID"
	KindCancelListing Kind = "CANCEL_LISTING"
	KindUnknown       Kind = "UNKNOWN"
)

// NormalizeKind maps a raw kind string onto the known enum. Unrecognized
// kinds become UNKNOWN so new pipeline event types are recorded rather
// than dropped.
func NormalizeKind(raw string) Kind {
	switch Kind(strings.ToUpper(strings.TrimSpace(raw))) {
	case KindBid:
		return KindBid
	case KindListing:
		return KindListing
	case KindSale:
		return KindSale
	case KindCancelBid:
		return KindCancelBid
	case KindCancelListing:
		return KindCancelListing
	default:
		return KindUnknown
	}
}

// MarketplaceEvent is one NFT marketplace action.
type MarketplaceEvent struct {
	ID          string          `json:"id"`
	Kind        Kind            `json:"kind"`
	Marketplace string          `json:"marketplace"`
	Collection  string          `json:"collection"`
	TokenMint   string          `json:"token_mint"`
	Seller      string          `json:"seller,omitempty"`
	Buyer       string          `json:"buyer,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Fee         decimal.Decimal `json:"fee"`
	TxSignature string          `json:"tx_signature"`
	BlockNumber uint64          `json:"block_number"`
	BlockHash   string          `json:"block_hash"`
	BlockTime   time.Time       `json:"block_time"`
}

// Validate checks the fields every marketplace event must carry.
func (e *MarketplaceEvent) Validate() error {
	if e.TxSignature == "" {
		return fmt.Errorf("events: marketplace event missing tx_signature")
	}
	if e.TokenMint == "" && e.Collection == "" {
		return fmt.Errorf("events: marketplace event %s missing token and collection", e.TxSignature)
	}
	if e.Price.IsNegative() {
		return fmt.Errorf("events: marketplace event %s has negative price", e.TxSignature)
	}
	return nil
}

// Direction is the bridge transfer direction relative to Solana.
type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// BridgeEvent is one cross-chain token transfer.
type BridgeEvent struct {
	ID               string          `json:"id"`
	Direction        Direction       `json:"direction"`
	SourceChain      string          `json:"source_chain"`
	DestinationChain string          `json:"destination_chain"`
	TokenMint        string          `json:"token_mint"`
	Sender           string          `json:"sender"`
	Receiver         string          `json:"receiver"`
	Amount           decimal.Decimal `json:"amount"`
	Fee              decimal.Decimal `json:"fee"`
	TxSignature      string          `json:"tx_signature"`
	BlockNumber      uint64          `json:"block_number"`
	BlockHash        string          `json:"block_hash"`
	BlockTime        time.Time       `json:"block_time"`
}

// Validate checks the fields every bridge event must carry.
func (e *BridgeEvent) Validate() error {
	if e.TxSignature == "" {
		return fmt.Errorf("events: bridge event missing tx_signature")
	}
	switch e.Direction {
	case DirectionIn, DirectionOut:
	default:
		return fmt.Errorf("events: bridge event %s has unknown direction %q", e.TxSignature, e.Direction)
	}
	if e.Amount.IsNegative() {
		return fmt.Errorf("events: bridge event %s has negative amount", e.TxSignature)
	}
	return nil
}

// DecodeMarketplaceEvent parses and validates a pipeline message. Events
// without an id are assigned one, so replays of old topics stay usable.
func DecodeMarketplaceEvent(data []byte) (*MarketplaceEvent, error) {
	var ev MarketplaceEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("events: decode marketplace event: %w", err)
	}
	ev.Kind = NormalizeKind(string(ev.Kind))
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return &ev, nil
}

// DecodeBridgeEvent parses and validates a pipeline message.
func DecodeBridgeEvent(data []byte) (*BridgeEvent, error) {
	var ev BridgeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("events: decode bridge event: %w", err)
	}
	ev.Direction = Direction(strings.ToUpper(strings.TrimSpace(string(ev.Direction))))
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return &ev, nil
}

// ---------------------------------------------------------------------------
// Live stream envelope
// ---------------------------------------------------------------------------

// Stream channels for the live topic and the WebSocket hub.
const (
	ChannelMarketplace = "marketplace"
	ChannelBridge      = "bridge"
)

// StreamEnvelope wraps a decoded event for the live topic. The payload
// stays raw so the gateway can relay it without re-encoding.
type StreamEnvelope struct {
	Channel   string          `json:"channel"`
	EmittedAt time.Time       `json:"emitted_at"`
	Event     json.RawMessage `json:"event"`
}

// NewStreamEnvelope wraps an event for publication.
func NewStreamEnvelope(channel string, event any) (*StreamEnvelope, error) {
	raw, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("events: marshal envelope payload: %w", err)
	}
	return &StreamEnvelope{
		Channel:   channel,
		EmittedAt: time.Now().UTC(),
		Event:     raw,
	}, nil
}

// Marshal encodes the envelope for the wire.
func (e *StreamEnvelope) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("events: marshal envelope: %w", err)
	}
	return data, nil
}

// DecodeStreamEnvelope parses a live topic message.
func DecodeStreamEnvelope(data []byte) (*StreamEnvelope, error) {
	var env StreamEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("events: decode stream envelope: %w", err)
	}
	if env.Channel == "" {
		return nil, fmt.Errorf("events: stream envelope missing channel")
	}
	return &env, nil
}
