package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayushshrivastv/SolanaOpenAPI/internal/bus"
	"github.com/ayushshrivastv/SolanaOpenAPI/internal/events"
	"github.com/ayushshrivastv/SolanaOpenAPI/internal/observability"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeWriter struct {
	mu          sync.Mutex
	marketplace []events.MarketplaceEvent
	bridge      []events.BridgeEvent
	failErr     error
	flushed     bool
	closed      bool
}

func (w *fakeWriter) WriteMarketplaceEvent(_ context.Context, ev events.MarketplaceEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failErr != nil {
		return w.failErr
	}
	w.marketplace = append(w.marketplace, ev)
	return nil
}

func (w *fakeWriter) WriteBridgeEvent(_ context.Context, ev events.BridgeEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failErr != nil {
		return w.failErr
	}
	w.bridge = append(w.bridge, ev)
	return nil
}

func (w *fakeWriter) Flush(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushed = true
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

// fakeConsumer delivers a fixed batch of messages, signals delivery, then
// blocks until the context is cancelled.
type fakeConsumer struct {
	msgs      []bus.Message
	delivered chan struct{}
	mu        sync.Mutex
	closed    bool
}

func newFakeConsumer(msgs ...bus.Message) *fakeConsumer {
	return &fakeConsumer{msgs: msgs, delivered: make(chan struct{})}
}

func (c *fakeConsumer) Consume(ctx context.Context, handler bus.MessageHandler) error {
	for _, msg := range c.msgs {
		if err := handler(ctx, msg); err != nil {
			return err
		}
	}
	close(c.delivered)
	<-ctx.Done()
	return ctx.Err()
}

func (c *fakeConsumer) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func marketplacePayload(t *testing.T) []byte {
	t.Helper()
	raw, err := json.Marshal(events.MarketplaceEvent{
		Kind:        events.Kind("sale"),
		Marketplace: "Magic Eden",
		Collection:  "Mad Lads",
		TokenMint:   "J1S9H3QjnRtBbbuD4HjPV6RpRhwuk4zKbxsnCHuTgh9w",
		Seller:      "86xCnPeV69n6t3DnyGvkKobf9FdN2H9oiVDdaMpo2MMY",
		Buyer:       "JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN",
		Price:       decimal.RequireFromString("12.5"),
		Fee:         decimal.RequireFromString("0.25"),
		TxSignature: "mkt-sig-1",
		BlockNumber: 265_000_101,
		BlockHash:   "hash-101",
		BlockTime:   time.Now().Add(-5 * time.Second).UTC(),
	})
	require.NoError(t, err)
	return raw
}

func bridgePayload(t *testing.T) []byte {
	t.Helper()
	raw, err := json.Marshal(events.BridgeEvent{
		Direction:        events.DirectionOut,
		SourceChain:      "solana",
		DestinationChain: "ethereum",
		TokenMint:        "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		Sender:           "86xCnPeV69n6t3DnyGvkKobf9FdN2H9oiVDdaMpo2MMY",
		Receiver:         "0x6b175474e89094c44da98b954eedeac495271d0f",
		Amount:           decimal.RequireFromString("250"),
		Fee:              decimal.RequireFromString("0.1"),
		TxSignature:      "bridge-sig-1",
		BlockNumber:      265_000_205,
		BlockHash:        "hash-205",
		BlockTime:        time.Now().Add(-3 * time.Second).UTC(),
	})
	require.NoError(t, err)
	return raw
}

// ---------------------------------------------------------------------------
// Handler tests
// ---------------------------------------------------------------------------

func TestHandleMarketplaceEvent(t *testing.T) {
	writer := &fakeWriter{}
	producer := bus.NewStubProducer()
	svc := NewService(nil, writer, producer, nil)

	err := svc.handleMessage(context.Background(), bus.Message{
		Topic: bus.TopicMarketplaceEvents,
		Value: marketplacePayload(t),
	})
	require.NoError(t, err)

	// Written to the store with the kind normalized.
	require.Len(t, writer.marketplace, 1)
	stored := writer.marketplace[0]
	assert.Equal(t, events.KindSale, stored.Kind)
	assert.Equal(t, "mkt-sig-1", stored.TxSignature)
	assert.NotEmpty(t, stored.ID)

	// Republished on the live topic, keyed by event id.
	require.Len(t, producer.Messages, 1)
	pub := producer.Messages[0]
	assert.Equal(t, bus.TopicLiveEvents, pub.Topic)
	assert.Equal(t, stored.ID, pub.Key)

	env, err := events.DecodeStreamEnvelope(pub.Value)
	require.NoError(t, err)
	assert.Equal(t, events.ChannelMarketplace, env.Channel)

	var relayed events.MarketplaceEvent
	require.NoError(t, json.Unmarshal(env.Event, &relayed))
	assert.Equal(t, stored.ID, relayed.ID)
	assert.True(t, relayed.Price.Equal(decimal.RequireFromString("12.5")))

	stats := svc.Stats()
	assert.Equal(t, int64(1), stats.Ingested)
	assert.Equal(t, int64(1), stats.Published)
	assert.Equal(t, int64(0), stats.Malformed)
}

func TestHandleBridgeEvent(t *testing.T) {
	writer := &fakeWriter{}
	producer := bus.NewStubProducer()
	svc := NewService(nil, writer, producer, nil)

	err := svc.handleMessage(context.Background(), bus.Message{
		Topic: bus.TopicBridgeEvents,
		Value: bridgePayload(t),
	})
	require.NoError(t, err)

	require.Len(t, writer.bridge, 1)
	assert.Equal(t, events.DirectionOut, writer.bridge[0].Direction)
	assert.Equal(t, "bridge-sig-1", writer.bridge[0].TxSignature)

	require.Len(t, producer.Messages, 1)
	env, err := events.DecodeStreamEnvelope(producer.Messages[0].Value)
	require.NoError(t, err)
	assert.Equal(t, events.ChannelBridge, env.Channel)
}

func TestMalformedEventsSkipped(t *testing.T) {
	writer := &fakeWriter{}
	producer := bus.NewStubProducer()
	svc := NewService(nil, writer, producer, nil)
	ctx := context.Background()

	// Broken JSON.
	err := svc.handleMessage(ctx, bus.Message{
		Topic: bus.TopicMarketplaceEvents,
		Value: []byte(`{"kind": "SALE",`),
	})
	require.NoError(t, err)

	// Valid JSON missing a required field.
	err = svc.handleMessage(ctx, bus.Message{
		Topic: bus.TopicBridgeEvents,
		Value: []byte(`{"direction": "IN", "amount": "5"}`),
	})
	require.NoError(t, err)

	assert.Empty(t, writer.marketplace)
	assert.Empty(t, writer.bridge)
	assert.Empty(t, producer.Messages)

	stats := svc.Stats()
	assert.Equal(t, int64(2), stats.Malformed)
	assert.Equal(t, int64(0), stats.Ingested)
}

func TestUnexpectedTopicIgnored(t *testing.T) {
	writer := &fakeWriter{}
	producer := bus.NewStubProducer()
	svc := NewService(nil, writer, producer, nil)

	err := svc.handleMessage(context.Background(), bus.Message{
		Topic: "md.ticks.kraken.SOLUSD",
		Value: []byte(`{}`),
	})
	require.NoError(t, err)

	assert.Empty(t, writer.marketplace)
	assert.Empty(t, producer.Messages)
	assert.Equal(t, int64(0), svc.Stats().Ingested)
}

func TestTopicOverrides(t *testing.T) {
	writer := &fakeWriter{}
	producer := bus.NewStubProducer()
	svc := NewService(nil, writer, producer, nil,
		WithTopics("custom.marketplace", "custom.bridge", "custom.live"))

	err := svc.handleMessage(context.Background(), bus.Message{
		Topic: "custom.marketplace",
		Value: marketplacePayload(t),
	})
	require.NoError(t, err)

	require.Len(t, writer.marketplace, 1)
	require.Len(t, producer.Messages, 1)
	assert.Equal(t, "custom.live", producer.Messages[0].Topic)

	// The default names no longer route once overridden.
	err = svc.handleMessage(context.Background(), bus.Message{
		Topic: bus.TopicMarketplaceEvents,
		Value: marketplacePayload(t),
	})
	require.NoError(t, err)
	require.Len(t, writer.marketplace, 1)
}

func TestWriterFailureStillPublishes(t *testing.T) {
	writer := &fakeWriter{failErr: errors.New("clickhouse down")}
	producer := bus.NewStubProducer()
	svc := NewService(nil, writer, producer, nil)

	err := svc.handleMessage(context.Background(), bus.Message{
		Topic: bus.TopicMarketplaceEvents,
		Value: marketplacePayload(t),
	})
	require.NoError(t, err)

	// The store write failed but the live republish still went out.
	require.Len(t, producer.Messages, 1)

	stats := svc.Stats()
	assert.Equal(t, int64(1), stats.WriteErrors)
	assert.Equal(t, int64(1), stats.Ingested)
	assert.Equal(t, int64(1), stats.Published)
}

func TestMetricsWired(t *testing.T) {
	registry := observability.OpenAPIMetrics()
	writer := &fakeWriter{}
	producer := bus.NewStubProducer()
	svc := NewService(nil, writer, producer, registry)
	ctx := context.Background()

	require.NoError(t, svc.handleMessage(ctx, bus.Message{
		Topic: bus.TopicMarketplaceEvents,
		Value: marketplacePayload(t),
	}))
	require.NoError(t, svc.handleMessage(ctx, bus.Message{
		Topic: bus.TopicMarketplaceEvents,
		Value: []byte(`not json`),
	}))

	assert.Equal(t, 1.0, registry.GetCounter("openapi_events_ingested_total").Value())
	assert.Equal(t, 1.0, registry.GetCounter("openapi_events_malformed_total").Value())
	assert.Equal(t, 1.0, registry.GetCounter("openapi_events_published_total").Value())
	assert.Greater(t, registry.GetGauge("openapi_ingest_lag_seconds").Value(), 0.0)
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func TestServiceLifecycle(t *testing.T) {
	consumer := newFakeConsumer(
		bus.Message{Topic: bus.TopicMarketplaceEvents, Value: marketplacePayload(t)},
		bus.Message{Topic: bus.TopicBridgeEvents, Value: bridgePayload(t)},
	)
	writer := &fakeWriter{}
	producer := bus.NewStubProducer()
	svc := NewService(consumer, writer, producer, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()

	select {
	case <-consumer.delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for messages to be delivered")
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Start to return")
	}

	require.NoError(t, svc.Stop())

	assert.Len(t, writer.marketplace, 1)
	assert.Len(t, writer.bridge, 1)
	assert.True(t, writer.flushed)
	assert.True(t, writer.closed)
	assert.True(t, consumer.closed)
	assert.Equal(t, int64(2), svc.Stats().Ingested)
}
