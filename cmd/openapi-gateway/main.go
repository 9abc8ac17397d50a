package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ayushshrivastv/SolanaOpenAPI/internal/bus"
	"github.com/ayushshrivastv/SolanaOpenAPI/internal/cache"
	"github.com/ayushshrivastv/SolanaOpenAPI/internal/config"
	"github.com/ayushshrivastv/SolanaOpenAPI/internal/fetch"
	"github.com/ayushshrivastv/SolanaOpenAPI/internal/gateway"
	"github.com/ayushshrivastv/SolanaOpenAPI/internal/market"
	"github.com/ayushshrivastv/SolanaOpenAPI/internal/observability"
	"github.com/ayushshrivastv/SolanaOpenAPI/internal/openapi"
	"github.com/ayushshrivastv/SolanaOpenAPI/internal/solana"
	"github.com/ayushshrivastv/SolanaOpenAPI/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// eventFeed pushes stream envelopes into the hub. Both the Kafka relay and
// the mock ticker satisfy it.
type eventFeed interface {
	Start(ctx context.Context)
	Stop()
}

func main() {
	// 1. Parse flags.
	configPath := flag.String("config", "config/config.yaml", "Path to configuration file")
	flag.Parse()

	// 2. Load environment and configuration. A .env file is optional; it
	// feeds the ${VAR} expansions inside the YAML.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config from %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	// 3. Setup logging.
	setupLogging(cfg.General)

	log.Info().Msg("=============================================")
	log.Info().Msg("Solana OpenAPI Gateway - Starting")
	log.Info().Msg("REST + GraphQL + WebSocket event stream")
	log.Info().Msg("=============================================")

	log.Info().
		Str("instance_id", cfg.General.InstanceID).
		Str("environment", cfg.General.Environment).
		Str("mode", cfg.DataSource.Mode).
		Str("listen_addr", cfg.Server.ListenAddr).
		Str("static_dir", cfg.Server.StaticDir).
		Int("cache_ttl_ms", cfg.Cache.TTLMs).
		Int("retry_attempts", cfg.Retry.MaxAttempts).
		Msg("Configuration loaded")

	if cfg.General.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 4. Payload cache.
	var cacheOpts []cache.Option
	if cfg.Cache.JanitorIntervalMs > 0 {
		cacheOpts = append(cacheOpts,
			cache.WithJanitor(time.Duration(cfg.Cache.JanitorIntervalMs)*time.Millisecond))
	}
	payloadCache := cache.New(time.Duration(cfg.Cache.TTLMs)*time.Millisecond, cacheOpts...)
	defer payloadCache.Stop()

	// 5. Metrics registry and fetch client.
	registry := observability.OpenAPIMetrics()
	upstreamLatency := registry.NewHistogram("openapi_upstream_latency_ms",
		"Upstream fetch latency in milliseconds", nil, observability.DefaultLatencyBuckets)

	fetchOpts := []fetch.Option{
		fetch.WithRetry(cfg.Retry.MaxAttempts, time.Duration(cfg.Retry.BaseDelayMs)*time.Millisecond),
		fetch.WithLatencyObserver(upstreamLatency.Observe),
	}
	if cfg.AnalyticsAPI.TimeoutMs > 0 {
		fetchOpts = append(fetchOpts, fetch.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.AnalyticsAPI.TimeoutMs) * time.Millisecond,
		}))
	}
	if cfg.AnalyticsAPI.APIKey != "" {
		fetchOpts = append(fetchOpts, fetch.WithHeader("x-api-key", cfg.AnalyticsAPI.APIKey))
	}
	fetcher := fetch.New(payloadCache, fetchOpts...)

	// 6. WebSocket hub.
	hub := gateway.NewHub(cfg.Stream.BroadcastBuffer, cfg.Stream.ClientBuffer,
		cfg.Server.CORSOrigin, registry)

	// 7. Data source. Load() already validated the mode.
	var (
		provider openapi.Provider
		bridge   gateway.BridgeFeed
		feed     eventFeed
		liveRPC  *solana.LiveRPCClient
		chClient *store.Client
	)
	switch cfg.DataSource.Mode {
	case "mock":
		mock := openapi.NewMockProvider(cfg.DataSource.MockSeed)
		provider = mock
		bridge = mock
		feed = gateway.NewMockFeed(mock, hub, time.Duration(cfg.Stream.MockTickMs)*time.Millisecond)
		log.Info().Int64("seed", cfg.DataSource.MockSeed).Msg("Data source: MOCK (deterministic fixtures)")

	case "live":
		chain, rpcClient := newChainProvider(cfg, fetcher)
		provider = chain
		liveRPC = rpcClient
		// No event store behind this mode, so /api/bridge/events serves 503.
		if len(cfg.Kafka.Brokers) > 0 {
			feed = newLiveFeed(cfg, hub)
		}
		log.Info().Str("rpc", cfg.RPC.Endpoint).Msg("Data source: LIVE (chain + analytics API)")

	case "store":
		chain, rpcClient := newChainProvider(cfg, fetcher)
		liveRPC = rpcClient

		client, err := store.NewClient(store.Config{
			DSN:          cfg.ClickHouse.DSN,
			Database:     cfg.ClickHouse.Database,
			MaxOpenConns: cfg.ClickHouse.MaxOpenConns,
			MaxIdleConns: cfg.ClickHouse.MaxIdleConns,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("ClickHouse client setup failed")
		}
		chClient = client
		provider = openapi.NewStoreProvider(client, chain)
		bridge = client
		if len(cfg.Kafka.Brokers) > 0 {
			feed = newLiveFeed(cfg, hub)
		}
		log.Info().Str("database", cfg.ClickHouse.Database).Msg("Data source: STORE (ClickHouse + chain fallback)")
	}

	if liveRPC != nil {
		defer liveRPC.Close()
		healthCtx, healthCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := liveRPC.Health(healthCtx); err != nil {
			log.Warn().Err(err).Str("endpoint", cfg.RPC.Endpoint).
				Msg("Solana RPC health check failed (continuing, may be rate-limited)")
		} else {
			log.Info().Str("endpoint", cfg.RPC.Endpoint).Msg("Solana RPC connected")
		}
		healthCancel()
	}
	if chClient != nil {
		defer chClient.Close()
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := chClient.Ping(pingCtx); err != nil {
			log.Warn().Err(err).Msg("ClickHouse ping failed (continuing, event reads will retry)")
		} else {
			log.Info().Msg("ClickHouse connected")
		}
		pingCancel()
	}

	// 8. Health monitor.
	monitor := observability.NewHealthMonitor(30 * time.Second)
	registerHealthChecks(monitor, payloadCache, liveRPC, chClient)

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

	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()

	if feed != nil {
		feed.Start(ctx)
	}

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
				fs := fetcher.Stats()
				hs := hub.Stats()
				log.Info().
					Int64("requests", fs.Requests).
					Int64("cache_hits", fs.CacheHits).
					Int64("cache_misses", fs.CacheMisses).
					Int64("retries", fs.Retries).
					Int64("failures", fs.Failures).
					Int("cache_entries", payloadCache.Len()).
					Int("ws_clients", hs.Clients).
					Int64("ws_broadcasts", hs.Broadcasts).
					Int64("ws_dropped", hs.Dropped).
					Msg("[STATS]")
			}
		}
	}()

	// 11. HTTP server. Run blocks until the context is cancelled.
	svc := openapi.NewService(fetcher, provider)
	srv, err := gateway.NewServer(cfg, gateway.Deps{
		Service:  svc,
		Bridge:   bridge,
		Hub:      hub,
		Fetcher:  fetcher,
		Cache:    payloadCache,
		Registry: registry,
		Monitor:  monitor,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Server setup failed")
	}

	log.Info().
		Str("addr", cfg.Server.ListenAddr).
		Str("provider", provider.Name()).
		Msg("Gateway listening")

	if err := srv.Run(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP server error")
		cancel()
	}

	// 12. Graceful shutdown.
	log.Info().Msg("Shutting down Gateway...")

	if feed != nil {
		feed.Stop()
	}
	monitor.Stop()
	wg.Wait()

	fs := fetcher.Stats()
	hs := hub.Stats()
	log.Info().
		Int64("requests", fs.Requests).
		Int64("cache_hits", fs.CacheHits).
		Int64("cache_misses", fs.CacheMisses).
		Int64("retries", fs.Retries).
		Int64("failures", fs.Failures).
		Int64("ws_broadcasts", hs.Broadcasts).
		Int64("ws_dropped", hs.Dropped).
		Msg("Solana OpenAPI Gateway - Final Statistics")

	log.Info().Msg("Solana OpenAPI Gateway - Shutdown complete")
}

// newChainProvider builds the live provider stack: Solana RPC for account
// reads, Jupiter for prices, the analytics API for event feeds.
func newChainProvider(cfg *config.Config, fetcher *fetch.Client) (*openapi.LiveProvider, *solana.LiveRPCClient) {
	rpcClient := solana.NewLiveRPCClient(solana.RPCConfig{
		Endpoint:     cfg.RPC.Endpoint,
		WSEndpoint:   cfg.RPC.WSEndpoint,
		Timeout:      time.Duration(cfg.RPC.TimeoutMs) * time.Millisecond,
		MaxRetries:   cfg.RPC.MaxRetries,
		RateLimitRPS: cfg.RPC.RateLimitRPS,
	})
	prices := market.NewPriceClient(market.PriceClientConfig{
		Endpoint: cfg.Price.Endpoint,
		VsToken:  cfg.Price.VsToken,
		Timeout:  time.Duration(cfg.Price.TimeoutMs) * time.Millisecond,
	})
	return openapi.NewLiveProvider(fetcher, rpcClient, prices, cfg.AnalyticsAPI.BaseURL), rpcClient
}

// newLiveFeed subscribes to the indexer's fan-out topic. Dashboards only
// want new events, so the group starts at the tip.
func newLiveFeed(cfg *config.Config, hub *gateway.Hub) *gateway.LiveFeed {
	consumer, err := bus.NewConsumer(
		cfg.Kafka.Brokers,
		cfg.Kafka.ConsumerConfig.GroupIDPrefix+"-gateway",
		[]string{cfg.Kafka.Topics.LiveEvents},
		bus.WithOffsetReset("latest"),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Kafka consumer setup failed")
	}
	return gateway.NewLiveFeed(consumer, hub)
}

func registerHealthChecks(monitor *observability.HealthMonitor, payloadCache *cache.Cache,
	liveRPC *solana.LiveRPCClient, chClient *store.Client) {

	monitor.Register("cache", func(_ context.Context) observability.ComponentHealth {
		return observability.ComponentHealth{
			Status:  observability.StatusHealthy,
			Details: map[string]any{"entries": payloadCache.Len()},
		}
	})
	if liveRPC != nil {
		monitor.Register("solana_rpc", func(ctx context.Context) observability.ComponentHealth {
			if err := liveRPC.Health(ctx); err != nil {
				return observability.ComponentHealth{Status: observability.StatusUnhealthy, Message: err.Error()}
			}
			return observability.ComponentHealth{Status: observability.StatusHealthy}
		})
	}
	if chClient != nil {
		monitor.Register("clickhouse", func(ctx context.Context) observability.ComponentHealth {
			if err := chClient.Ping(ctx); err != nil {
				return observability.ComponentHealth{Status: observability.StatusUnhealthy, Message: err.Error()}
			}
			return observability.ComponentHealth{Status: observability.StatusHealthy}
		})
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
			With().Timestamp().Str("service", "openapi-gateway").
			Str("instance", general.InstanceID).Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).
			With().Timestamp().Str("service", "openapi-gateway").
			Str("instance", general.InstanceID).Logger()
	}
}
