package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ayushshrivastv/SolanaOpenAPI/internal/events"
)

// FlushHook intercepts flushes for testing. When set, rows go to the hook
// instead of ClickHouse.
type FlushHook func(ctx context.Context, table string, rows [][]any) error

// EventWriter batches indexed events and flushes to ClickHouse when the
// combined buffers reach the batch size or the flush interval elapses.
type EventWriter struct {
	client        *Client
	database      string
	batchSize     int
	flushInterval time.Duration

	mu             sync.Mutex
	marketplaceBuf []events.MarketplaceEvent
	bridgeBuf      []events.BridgeEvent
	closed         bool
	flushCount     int64
	errorCount     int64

	flushHook FlushHook
	wg        sync.WaitGroup
}

// NewEventWriter creates a batch writer that flushes on size or interval.
func NewEventWriter(client *Client, database string, batchSize int, flushInterval time.Duration) *EventWriter {
	if batchSize <= 0 {
		batchSize = 500
	}
	if flushInterval <= 0 {
		flushInterval = 2 * time.Second
	}

	return &EventWriter{
		client:         client,
		database:       database,
		batchSize:      batchSize,
		flushInterval:  flushInterval,
		marketplaceBuf: make([]events.MarketplaceEvent, 0, batchSize),
		bridgeBuf:      make([]events.BridgeEvent, 0, batchSize),
	}
}

// SetFlushHook replaces the ClickHouse sink with a test hook.
func (w *EventWriter) SetFlushHook(hook FlushHook) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushHook = hook
}

func (w *EventWriter) tableName(base string) string {
	if w.database == "" {
		return base
	}
	return w.database + "." + base
}

// WriteMarketplaceEvent buffers an event, flushing if the batch is full.
func (w *EventWriter) WriteMarketplaceEvent(ctx context.Context, ev events.MarketplaceEvent) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return fmt.Errorf("writer is closed")
	}
	w.marketplaceBuf = append(w.marketplaceBuf, ev)
	marketplace, bridge, full := w.takeIfFull()
	w.mu.Unlock()

	if full {
		return w.flush(ctx, marketplace, bridge)
	}
	return nil
}

// WriteBridgeEvent buffers an event, flushing if the batch is full.
func (w *EventWriter) WriteBridgeEvent(ctx context.Context, ev events.BridgeEvent) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return fmt.Errorf("writer is closed")
	}
	w.bridgeBuf = append(w.bridgeBuf, ev)
	marketplace, bridge, full := w.takeIfFull()
	w.mu.Unlock()

	if full {
		return w.flush(ctx, marketplace, bridge)
	}
	return nil
}

// takeIfFull swaps out both buffers when their combined length reaches the
// batch size. Callers must hold w.mu.
func (w *EventWriter) takeIfFull() ([]events.MarketplaceEvent, []events.BridgeEvent, bool) {
	if len(w.marketplaceBuf)+len(w.bridgeBuf) < w.batchSize {
		return nil, nil, false
	}
	marketplace, bridge := w.marketplaceBuf, w.bridgeBuf
	w.marketplaceBuf = make([]events.MarketplaceEvent, 0, w.batchSize)
	w.bridgeBuf = make([]events.BridgeEvent, 0, w.batchSize)
	return marketplace, bridge, true
}

// Start launches the background interval flush loop. It returns immediately;
// cancel the context, then Close, to shut down cleanly.
func (w *EventWriter) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.flushInterval)
		defer ticker.Stop()

		log.Info().
			Int("batch_size", w.batchSize).
			Dur("flush_interval", w.flushInterval).
			Msg("event writer started")

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := w.Flush(ctx); err != nil {
					log.Error().Err(err).Msg("Periodic flush error")
				}
			}
		}
	}()
}

// Flush writes all buffered events out.
func (w *EventWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	marketplace, bridge := w.marketplaceBuf, w.bridgeBuf
	w.marketplaceBuf = make([]events.MarketplaceEvent, 0, w.batchSize)
	w.bridgeBuf = make([]events.BridgeEvent, 0, w.batchSize)
	w.mu.Unlock()

	return w.flush(ctx, marketplace, bridge)
}

func (w *EventWriter) flush(ctx context.Context, marketplace []events.MarketplaceEvent, bridge []events.BridgeEvent) error {
	if len(marketplace) == 0 && len(bridge) == 0 {
		return nil
	}

	var firstErr error

	if len(marketplace) > 0 {
		rows := make([][]any, len(marketplace))
		for i, ev := range marketplace {
			rows[i] = marketplaceRow(ev)
		}
		if err := w.sink(ctx, w.tableName("marketplace_events"), insertMarketplaceEvents, rows); err != nil {
			log.Error().Err(err).Int("count", len(marketplace)).Msg("Failed to flush marketplace events")
			w.bumpErrors()
			firstErr = err
		}
	}

	if len(bridge) > 0 {
		rows := make([][]any, len(bridge))
		for i, ev := range bridge {
			rows[i] = bridgeRow(ev)
		}
		if err := w.sink(ctx, w.tableName("bridge_events"), insertBridgeEvents, rows); err != nil {
			log.Error().Err(err).Int("count", len(bridge)).Msg("Failed to flush bridge events")
			w.bumpErrors()
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	w.mu.Lock()
	w.flushCount++
	w.mu.Unlock()

	log.Debug().
		Int("marketplace", len(marketplace)).
		Int("bridge", len(bridge)).
		Msg("event batch flushed")

	return firstErr
}

const (
	insertMarketplaceEvents = "INSERT INTO %s (id, kind, marketplace, collection, token_mint, seller, buyer, price, fee, tx_signature, block_number, block_hash, block_time)"
	insertBridgeEvents      = "INSERT INTO %s (id, direction, source_chain, destination_chain, token_mint, sender, receiver, amount, fee, tx_signature, block_number, block_hash, block_time)"
)

// sink delivers rows to the flush hook when set, otherwise to ClickHouse.
func (w *EventWriter) sink(ctx context.Context, table, insertStmt string, rows [][]any) error {
	w.mu.Lock()
	hook := w.flushHook
	w.mu.Unlock()

	if hook != nil {
		return hook(ctx, table, rows)
	}

	batch, err := w.client.Conn().PrepareBatch(ctx, fmt.Sprintf(insertStmt, table))
	if err != nil {
		return fmt.Errorf("prepare batch for %s: %w", table, err)
	}
	for _, row := range rows {
		if err := batch.Append(row...); err != nil {
			return fmt.Errorf("append row to %s: %w", table, err)
		}
	}
	return batch.Send()
}

func marketplaceRow(ev events.MarketplaceEvent) []any {
	return []any{
		ev.ID,
		string(ev.Kind),
		ev.Marketplace,
		ev.Collection,
		ev.TokenMint,
		ev.Seller,
		ev.Buyer,
		ev.Price.InexactFloat64(),
		ev.Fee.InexactFloat64(),
		ev.TxSignature,
		ev.BlockNumber,
		ev.BlockHash,
		ev.BlockTime,
	}
}

func bridgeRow(ev events.BridgeEvent) []any {
	return []any{
		ev.ID,
		string(ev.Direction),
		ev.SourceChain,
		ev.DestinationChain,
		ev.TokenMint,
		ev.Sender,
		ev.Receiver,
		ev.Amount.InexactFloat64(),
		ev.Fee.InexactFloat64(),
		ev.TxSignature,
		ev.BlockNumber,
		ev.BlockHash,
		ev.BlockTime,
	}
}

func (w *EventWriter) bumpErrors() {
	w.mu.Lock()
	w.errorCount++
	w.mu.Unlock()
}

// Close stops accepting writes, waits for the background loop started by
// Start to exit, and performs a final flush.
func (w *EventWriter) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	w.wg.Wait()

	err := w.Flush(context.Background())
	flushes, errs, _, _ := w.Stats()
	log.Info().
		Int64("total_flushes", flushes).
		Int64("errors", errs).
		Msg("event writer closed")
	return err
}

// Stats returns writer statistics.
func (w *EventWriter) Stats() (flushCount, errorCount int64, pendingMarketplace, pendingBridge int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushCount, w.errorCount, len(w.marketplaceBuf), len(w.bridgeBuf)
}
