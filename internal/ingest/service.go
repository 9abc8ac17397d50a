package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ayushshrivastv/SolanaOpenAPI/internal/bus"
	"github.com/ayushshrivastv/SolanaOpenAPI/internal/events"
	"github.com/ayushshrivastv/SolanaOpenAPI/internal/observability"
)

// Producer is the interface for publishing serialized messages to Kafka.
// Decoupled from the bus.Producer implementation so the service compiles
// independently of the real Kafka client.
type Producer interface {
	Produce(ctx context.Context, topic string, key []byte, value []byte) error
	Close()
}

// Writer is the interface for persisting decoded events.
// Decoupled so the service compiles independently of the real ClickHouse
// writer.
type Writer interface {
	WriteMarketplaceEvent(ctx context.Context, ev events.MarketplaceEvent) error
	WriteBridgeEvent(ctx context.Context, ev events.BridgeEvent) error
	Flush(ctx context.Context) error
	Close() error
}

// Service is the indexer orchestrator. It consumes raw pipeline messages
// from the substreams topics, decodes and validates them, batches them into
// the event store, and republishes each decoded event on the live topic for
// the gateway's stream.
type Service struct {
	consumer bus.Consumer
	writer   Writer
	producer Producer

	marketplaceTopic string
	bridgeTopic      string
	liveTopic        string

	ingested      *observability.Counter
	malformed     *observability.Counter
	published     *observability.Counter
	lag           *observability.Gauge
	ingestedCount atomic.Int64
	malformedN    atomic.Int64
	publishedN    atomic.Int64
	writeErrors   atomic.Int64
	publishErrors atomic.Int64

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// Option configures the service.
type Option func(*Service)

// WithTopics overrides the consumed and republish topic names. Empty values
// keep the defaults from the bus package. Must match the topics the consumer
// subscribes to, or every message lands in the unexpected-topic branch.
func WithTopics(marketplace, bridge, live string) Option {
	return func(s *Service) {
		if marketplace != "" {
			s.marketplaceTopic = marketplace
		}
		if bridge != "" {
			s.bridgeTopic = bridge
		}
		if live != "" {
			s.liveTopic = live
		}
	}
}

// NewService creates the indexer service. A nil registry gets a private one
// so metric lookups never fail.
func NewService(consumer bus.Consumer, writer Writer, producer Producer, registry *observability.Registry, opts ...Option) *Service {
	if registry == nil {
		registry = observability.NewRegistry()
	}
	s := &Service{
		consumer:         consumer,
		writer:           writer,
		producer:         producer,
		marketplaceTopic: bus.TopicMarketplaceEvents,
		bridgeTopic:      bus.TopicBridgeEvents,
		liveTopic:        bus.TopicLiveEvents,
		ingested: registry.NewCounter("openapi_events_ingested_total",
			"Events consumed and indexed", map[string]string{"topic": ""}),
		malformed: registry.NewCounter("openapi_events_malformed_total",
			"Events skipped because they failed to decode", map[string]string{"topic": ""}),
		published: registry.NewCounter("openapi_events_published_total",
			"Events re-published to the live stream topic", nil),
		lag: registry.NewGauge("openapi_ingest_lag_seconds",
			"Seconds between event block time and ingestion", map[string]string{"topic": ""}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins consuming. It blocks until the context is cancelled and the
// consumer loop has drained.
func (s *Service) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	log.Info().Msg("Starting indexer service")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.consumer.Consume(ctx, s.handleMessage); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Consumer loop exited with error")
		}
	}()

	<-ctx.Done()
	s.wg.Wait()
	log.Info().Msg("Indexer service: consumer loop stopped")
	return nil
}

// Stop triggers graceful shutdown: cancels the consume loop, flushes the
// writer, and closes the producer and consumer.
func (s *Service) Stop() error {
	log.Info().Msg("Indexer service stopping")

	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	if s.writer != nil {
		if err := s.writer.Flush(context.Background()); err != nil {
			log.Error().Err(err).Msg("Error flushing event writer")
		}
		if err := s.writer.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing event writer")
		}
	}

	if s.producer != nil {
		s.producer.Close()
	}

	if s.consumer != nil {
		s.consumer.Close()
	}

	log.Info().
		Int64("ingested", s.ingestedCount.Load()).
		Int64("malformed", s.malformedN.Load()).
		Int64("published", s.publishedN.Load()).
		Int64("write_errors", s.writeErrors.Load()).
		Msg("Indexer service stopped")
	return nil
}

// handleMessage routes one raw pipeline message by topic. Malformed
// payloads are counted and skipped; sink failures are logged and counted
// but never stop consumption.
func (s *Service) handleMessage(ctx context.Context, msg bus.Message) error {
	switch msg.Topic {
	case s.marketplaceTopic:
		s.handleMarketplace(ctx, msg)
	case s.bridgeTopic:
		s.handleBridge(ctx, msg)
	default:
		log.Warn().Str("topic", msg.Topic).Msg("Message on unexpected topic, skipping")
	}
	return nil
}

func (s *Service) handleMarketplace(ctx context.Context, msg bus.Message) {
	ev, err := events.DecodeMarketplaceEvent(msg.Value)
	if err != nil {
		s.recordMalformed(msg.Topic, err)
		return
	}

	s.recordLag(msg.Topic, ev.BlockTime)

	if s.writer != nil {
		if err := s.writer.WriteMarketplaceEvent(ctx, *ev); err != nil {
			s.writeErrors.Add(1)
			log.Error().Err(err).
				Str("event_id", ev.ID).
				Str("tx", ev.TxSignature).
				Msg("Failed to write marketplace event")
			// Log and continue; the live republish below is independent.
		}
	}

	s.ingested.Inc()
	s.ingestedCount.Add(1)
	s.republish(ctx, events.ChannelMarketplace, ev.ID, ev)
}

func (s *Service) handleBridge(ctx context.Context, msg bus.Message) {
	ev, err := events.DecodeBridgeEvent(msg.Value)
	if err != nil {
		s.recordMalformed(msg.Topic, err)
		return
	}

	s.recordLag(msg.Topic, ev.BlockTime)

	if s.writer != nil {
		if err := s.writer.WriteBridgeEvent(ctx, *ev); err != nil {
			s.writeErrors.Add(1)
			log.Error().Err(err).
				Str("event_id", ev.ID).
				Str("tx", ev.TxSignature).
				Msg("Failed to write bridge event")
		}
	}

	s.ingested.Inc()
	s.ingestedCount.Add(1)
	s.republish(ctx, events.ChannelBridge, ev.ID, ev)
}

// republish wraps a decoded event in a stream envelope and produces it on
// the live topic, keyed by event id.
func (s *Service) republish(ctx context.Context, channel, key string, event any) {
	if s.producer == nil {
		return
	}

	envelope, err := events.NewStreamEnvelope(channel, event)
	if err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("Failed to build stream envelope")
		return
	}

	data, err := envelope.Marshal()
	if err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("Failed to marshal stream envelope")
		return
	}

	if err := s.producer.Produce(ctx, s.liveTopic, []byte(key), data); err != nil {
		s.publishErrors.Add(1)
		log.Error().Err(err).
			Str("topic", s.liveTopic).
			Str("channel", channel).
			Msg("Failed to republish event to live topic")
		return
	}

	s.published.Inc()
	s.publishedN.Add(1)
}

func (s *Service) recordMalformed(topic string, err error) {
	s.malformed.Inc()
	s.malformedN.Add(1)
	log.Warn().Err(err).Str("topic", topic).Msg("Skipping malformed event")
}

// recordLag tracks how far behind the chain the pipeline is running. Events
// without a block time are ignored.
func (s *Service) recordLag(topic string, blockTime time.Time) {
	if blockTime.IsZero() {
		return
	}
	lag := time.Since(blockTime).Seconds()
	if lag < 0 {
		lag = 0
	}
	s.lag.Set(lag)
	log.Debug().Str("topic", topic).Float64("lag_seconds", lag).Msg("Ingest lag")
}

// Stats is a snapshot of the service counters.
type Stats struct {
	Ingested      int64 `json:"ingested"`
	Malformed     int64 `json:"malformed"`
	Published     int64 `json:"published"`
	WriteErrors   int64 `json:"write_errors"`
	PublishErrors int64 `json:"publish_errors"`
}

func (s *Service) Stats() Stats {
	return Stats{
		Ingested:      s.ingestedCount.Load(),
		Malformed:     s.malformedN.Load(),
		Published:     s.publishedN.Load(),
		WriteErrors:   s.writeErrors.Load(),
		PublishErrors: s.publishErrors.Load(),
	}
}
