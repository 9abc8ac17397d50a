package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ayushshrivastv/SolanaOpenAPI/internal/bus"
	"github.com/ayushshrivastv/SolanaOpenAPI/internal/config"
	"github.com/ayushshrivastv/SolanaOpenAPI/internal/ingest"
	"github.com/ayushshrivastv/SolanaOpenAPI/internal/observability"
	"github.com/ayushshrivastv/SolanaOpenAPI/internal/store"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// 1. Parse flags.
	configPath := flag.String("config", "config/config.yaml", "Path to configuration file")
	opsAddr := flag.String("ops-addr", ":9091", "Health and metrics listen address")
	flag.Parse()

	// 2. Load environment and configuration.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config from %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	// 3. Setup logging.
	setupLogging(cfg.General)

	log.Info().Msg("=============================================")
	log.Info().Msg("Solana OpenAPI Indexer - Starting")
	log.Info().Msg("Kafka -> decode -> ClickHouse -> live fan-out")
	log.Info().Msg("=============================================")

	log.Info().
		Str("instance_id", cfg.General.InstanceID).
		Str("environment", cfg.General.Environment).
		Strs("brokers", cfg.Kafka.Brokers).
		Str("marketplace_topic", cfg.Kafka.Topics.MarketplaceEvents).
		Str("bridge_topic", cfg.Kafka.Topics.BridgeEvents).
		Str("live_topic", cfg.Kafka.Topics.LiveEvents).
		Str("database", cfg.ClickHouse.Database).
		Int("batch_size", cfg.ClickHouse.BatchSize).
		Int("flush_interval_ms", cfg.ClickHouse.FlushIntervalMs).
		Msg("Configuration loaded")

	// 4. ClickHouse client. The indexer cannot run without its sink, so
	// connectivity and schema failures are fatal.
	chClient, err := store.NewClient(store.Config{
		DSN:          cfg.ClickHouse.DSN,
		Database:     cfg.ClickHouse.Database,
		MaxOpenConns: cfg.ClickHouse.MaxOpenConns,
		MaxIdleConns: cfg.ClickHouse.MaxIdleConns,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("ClickHouse client setup failed")
	}

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := chClient.Ping(bootCtx); err != nil {
		log.Fatal().Err(err).Msg("ClickHouse unreachable")
	}
	if err := chClient.EnsureSchema(bootCtx); err != nil {
		log.Fatal().Err(err).Msg("ClickHouse schema setup failed")
	}
	bootCancel()
	log.Info().Msg("ClickHouse connected, schema ensured")

	// 5. Batch writer.
	writer := store.NewEventWriter(chClient, cfg.ClickHouse.Database,
		cfg.ClickHouse.BatchSize,
		time.Duration(cfg.ClickHouse.FlushIntervalMs)*time.Millisecond)

	// 6. Kafka consumer and producer.
	consumerOpts := []bus.ConsumerOption{}
	if cfg.Kafka.ConsumerConfig.AutoOffsetReset != "" {
		consumerOpts = append(consumerOpts, bus.WithOffsetReset(cfg.Kafka.ConsumerConfig.AutoOffsetReset))
	}
	if cfg.Kafka.ConsumerConfig.MaxPollRecords > 0 {
		consumerOpts = append(consumerOpts, bus.WithMaxPollRecords(cfg.Kafka.ConsumerConfig.MaxPollRecords))
	}
	consumer, err := bus.NewConsumer(
		cfg.Kafka.Brokers,
		cfg.Kafka.ConsumerConfig.GroupIDPrefix+"-indexer",
		[]string{cfg.Kafka.Topics.MarketplaceEvents, cfg.Kafka.Topics.BridgeEvents},
		consumerOpts...,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Kafka consumer setup failed")
	}

	producerOpts := []bus.ProducerOption{
		bus.WithInstanceID(cfg.General.InstanceID),
		bus.WithSchemaVersion(cfg.Kafka.SchemaVersion),
	}
	if cfg.Kafka.ProducerConfig.LingerMs > 0 {
		producerOpts = append(producerOpts, bus.WithLinger(time.Duration(cfg.Kafka.ProducerConfig.LingerMs)*time.Millisecond))
	}
	if cfg.Kafka.ProducerConfig.BatchSize > 0 {
		producerOpts = append(producerOpts, bus.WithBatchMaxBytes(int32(cfg.Kafka.ProducerConfig.BatchSize)))
	}
	producer, err := bus.NewProducer(cfg.Kafka.Brokers, producerOpts...)
	if err != nil {
		log.Fatal().Err(err).Msg("Kafka producer setup failed")
	}

	// 7. Ingest service. Topic routing must follow whatever the consumer
	// subscribed to.
	registry := observability.OpenAPIMetrics()
	svc := ingest.NewService(consumer, writer, producer, registry,
		ingest.WithTopics(
			cfg.Kafka.Topics.MarketplaceEvents,
			cfg.Kafka.Topics.BridgeEvents,
			cfg.Kafka.Topics.LiveEvents,
		))

	// 8. Health monitor.
	monitor := observability.NewHealthMonitor(30 * time.Second)
	monitor.Register("clickhouse", func(ctx context.Context) observability.ComponentHealth {
		if err := chClient.Ping(ctx); err != nil {
			return observability.ComponentHealth{Status: observability.StatusUnhealthy, Message: err.Error()}
		}
		return observability.ComponentHealth{Status: observability.StatusHealthy}
	})
	monitor.Register("writer", func(_ context.Context) observability.ComponentHealth {
		flushes, flushErrors, pendingM, pendingB := writer.Stats()
		h := observability.ComponentHealth{
			Status: observability.StatusHealthy,
			Details: map[string]any{
				"flushes":      flushes,
				"pending_rows": pendingM + pendingB,
			},
		}
		if flushErrors > 0 && flushErrors >= flushes {
			h.Status = observability.StatusDegraded
			h.Message = "all recent flushes failing"
		}
		return h
	})

	// 9. Root context and signal handling.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Warn().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
	}()

	// 10. Start background services.
	var wg sync.WaitGroup

	writer.Start(ctx)

	wg.Add(1)
	go func() {
		defer wg.Done()
		monitor.Start(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case alert := <-monitor.Alerts():
				log.Warn().
					Str("component", alert.Component).
					Str("level", alert.Level).
					Str("message", alert.Message).
					Msg("Health alert")
			}
		}
	}()

	// Pending-rows gauge.
	pendingRows := registry.NewGauge("openapi_store_pending_rows",
		"Rows buffered in the store writer awaiting flush", nil)
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _, pendingM, pendingB := writer.Stats()
				pendingRows.Set(float64(pendingM + pendingB))
			}
		}
	}()

	// Periodic stats logging.
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st := svc.Stats()
				flushes, flushErrors, pendingM, pendingB := writer.Stats()
				log.Info().
					Int64("ingested", st.Ingested).
					Int64("malformed", st.Malformed).
					Int64("published", st.Published).
					Int64("write_errors", st.WriteErrors).
					Int64("publish_errors", st.PublishErrors).
					Int64("flushes", flushes).
					Int64("flush_errors", flushErrors).
					Int("pending_rows", pendingM+pendingB).
					Msg("[STATS]")
			}
		}
	}()

	// Ops HTTP endpoint: health, stats, metrics. Empty address disables it.
	if *opsAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runOpsServer(ctx, *opsAddr, monitor, registry, svc, writer)
		}()
	}

	log.Info().Msg("Solana OpenAPI Indexer - Running")

	// 11. Consume until shutdown. Start blocks; Stop drains and closes.
	if err := svc.Start(ctx); err != nil {
		log.Error().Err(err).Msg("Ingest service error")
		cancel()
	}

	// 12. Graceful shutdown.
	log.Info().Msg("Shutting down Indexer...")

	if err := svc.Stop(); err != nil {
		log.Error().Err(err).Msg("Ingest service shutdown error")
	}
	if err := chClient.Close(); err != nil {
		log.Error().Err(err).Msg("ClickHouse close error")
	}
	wg.Wait()

	flushes, flushErrors, _, _ := writer.Stats()
	log.Info().
		Int64("flushes", flushes).
		Int64("flush_errors", flushErrors).
		Msg("Solana OpenAPI Indexer - Final Statistics")

	log.Info().Msg("Solana OpenAPI Indexer - Shutdown complete")
}

// runOpsServer serves /healthz, /stats and /metrics until ctx is cancelled.
func runOpsServer(ctx context.Context, addr string, monitor *observability.HealthMonitor,
	registry *observability.Registry, svc *ingest.Service, writer *store.EventWriter) {

	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		health := monitor.Check(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if health.Status == observability.StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
		flushes, flushErrors, pendingM, pendingB := writer.Stats()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"ingest": svc.Stats(),
			"writer": map[string]any{
				"flushes":             flushes,
				"flush_errors":        flushErrors,
				"pending_marketplace": pendingM,
				"pending_bridge":      pendingB,
			},
		})
	})

	mux.Handle("/metrics", observability.NewPrometheusExporter(registry))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("Indexer ops server started (health + stats + metrics)")

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Ops server error")
	}
}

func setupLogging(general config.GeneralConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro
	level, err := zerolog.ParseLevel(general.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if general.LogFormat == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Str("service", "openapi-indexer").
			Str("instance", general.InstanceID).Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).
			With().Timestamp().Str("service", "openapi-indexer").
			Str("instance", general.InstanceID).Logger()
	}
}
