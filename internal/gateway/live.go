package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ayushshrivastv/SolanaOpenAPI/internal/bus"
	"github.com/ayushshrivastv/SolanaOpenAPI/internal/events"
	"github.com/ayushshrivastv/SolanaOpenAPI/internal/openapi"
)

// ---------------------------------------------------------------------------
// Stream feeds. The hub is fed either from the live Kafka topic (indexer
// deployments) or from a ticker that fabricates events (mock mode), never
// both.
// ---------------------------------------------------------------------------

// LiveFeed relays envelopes from the live topic into the hub.
type LiveFeed struct {
	consumer bus.Consumer
	hub      *Hub

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewLiveFeed(consumer bus.Consumer, hub *Hub) *LiveFeed {
	return &LiveFeed{consumer: consumer, hub: hub}
}

// Start spawns the consume loop and returns.
func (f *LiveFeed) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		if err := f.consumer.Consume(ctx, f.handleMessage); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Live feed consumer exited with error")
		}
	}()
	log.Info().Msg("Live feed started")
}

// Stop cancels the consume loop and closes the consumer.
func (f *LiveFeed) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
	f.wg.Wait()
	f.consumer.Close()
	log.Info().Msg("Live feed stopped")
}

// handleMessage relays one envelope. The raw bytes go out untouched so the
// gateway never re-encodes the pipeline's payload.
func (f *LiveFeed) handleMessage(_ context.Context, msg bus.Message) error {
	env, err := events.DecodeStreamEnvelope(msg.Value)
	if err != nil {
		log.Warn().Err(err).Str("topic", msg.Topic).Msg("Skipping malformed stream envelope")
		return nil
	}
	f.hub.Broadcast(env.Channel, msg.Value)
	return nil
}

// MockFeed fabricates a live stream from the mock provider, alternating
// marketplace and bridge events.
type MockFeed struct {
	provider *openapi.MockProvider
	hub      *Hub
	interval time.Duration

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewMockFeed(provider *openapi.MockProvider, hub *Hub, interval time.Duration) *MockFeed {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &MockFeed{provider: provider, hub: hub, interval: interval}
}

// Start spawns the ticker loop and returns.
func (f *MockFeed) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()

		bridgeTurn := false
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				f.emit(ctx, bridgeTurn)
				bridgeTurn = !bridgeTurn
			}
		}
	}()
	log.Info().Dur("interval", f.interval).Msg("Mock feed started")
}

// Stop cancels the ticker loop.
func (f *MockFeed) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
	f.wg.Wait()
	log.Info().Msg("Mock feed stopped")
}

func (f *MockFeed) emit(ctx context.Context, bridgeTurn bool) {
	var (
		channel string
		event   any
	)
	if bridgeTurn {
		evs, err := f.provider.RecentBridgeEvents(ctx, 1)
		if err != nil || len(evs) == 0 {
			return
		}
		channel, event = events.ChannelBridge, evs[0]
	} else {
		evs, err := f.provider.MarketplaceEvents(ctx, 1)
		if err != nil || len(evs) == 0 {
			return
		}
		channel, event = events.ChannelMarketplace, evs[0]
	}

	env, err := events.NewStreamEnvelope(channel, event)
	if err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("Failed to build mock envelope")
		return
	}
	data, err := env.Marshal()
	if err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("Failed to marshal mock envelope")
		return
	}
	f.hub.Broadcast(channel, data)
}
