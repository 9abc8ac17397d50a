package gateway

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/ayushshrivastv/SolanaOpenAPI/internal/cache"
	"github.com/ayushshrivastv/SolanaOpenAPI/internal/config"
	"github.com/ayushshrivastv/SolanaOpenAPI/internal/fetch"
	"github.com/ayushshrivastv/SolanaOpenAPI/internal/observability"
	"github.com/ayushshrivastv/SolanaOpenAPI/internal/openapi"
)

// Deps bundles everything the HTTP server serves. Bridge, Hub, Monitor and
// the stats sources are optional; nil disables the matching surface.
type Deps struct {
	Service  *openapi.Service
	Bridge   BridgeFeed
	Hub      *Hub
	Fetcher  *fetch.Client
	Cache    *cache.Cache
	Registry *observability.Registry
	Monitor  *observability.HealthMonitor
}

// Server is the dashboard gateway: REST, GraphQL, the WebSocket stream and
// the operational endpoints, with an optional SPA bundle behind NoRoute.
type Server struct {
	cfg      *config.Config
	engine   *gin.Engine
	monitor  *observability.HealthMonitor
	exporter *observability.PrometheusExporter
	fetcher  *fetch.Client
	cache    *cache.Cache

	httpRequests  *observability.Counter
	latency       *observability.Histogram
	cacheHits     *observability.Counter
	cacheMisses   *observability.Counter
	fetchRetries  *observability.Counter
	fetchFailures *observability.Counter
	cacheEntries  *observability.Gauge

	statsMu   sync.Mutex
	lastStats fetch.Stats
}

func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	registry := deps.Registry
	if registry == nil {
		registry = observability.NewRegistry()
	}

	s := &Server{
		cfg:      cfg,
		monitor:  deps.Monitor,
		exporter: observability.NewPrometheusExporter(registry),
		fetcher:  deps.Fetcher,
		cache:    deps.Cache,
		httpRequests: registry.NewCounter("openapi_http_requests_total",
			"HTTP requests served", map[string]string{"route": ""}),
		latency: registry.NewHistogram("openapi_request_latency_ms",
			"Request latency in milliseconds", nil, observability.DefaultLatencyBuckets),
		cacheHits: registry.NewCounter("openapi_cache_hits_total",
			"Cache lookups answered within TTL", nil),
		cacheMisses: registry.NewCounter("openapi_cache_misses_total",
			"Cache lookups that went to the producer", nil),
		fetchRetries: registry.NewCounter("openapi_fetch_retries_total",
			"Upstream request retry attempts", nil),
		fetchFailures: registry.NewCounter("openapi_fetch_failures_total",
			"Upstream requests that exhausted all attempts", nil),
		cacheEntries: registry.NewGauge("openapi_cache_entries",
			"Entries currently cached", nil),
	}

	gql, err := NewGraphQLHandler(deps.Service, registry)
	if err != nil {
		return nil, err
	}
	api := NewAPI(deps.Service, deps.Bridge)

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(), s.metricsMiddleware(), corsMiddleware(cfg.Server.CORSOrigin))

	group := engine.Group("/api")
	group.GET("/nft/events", api.nftEvents)
	group.GET("/marketplace/events", api.marketplaceEvents)
	group.GET("/bridge/events", api.bridgeEvents)
	group.GET("/account/:address/balances", api.balances)
	group.GET("/account/:address/transactions", api.transactions)
	group.GET("/market/price/:mint", api.tokenPrice)

	engine.POST("/graphql", gql)
	if deps.Hub != nil {
		engine.GET("/ws", deps.Hub.ServeWS)
	}
	engine.GET("/healthz", s.healthz)
	engine.GET("/metrics", s.metrics)
	engine.NoRoute(s.spaFallback)

	s.engine = engine
	return s, nil
}

// Engine exposes the router for httptest servers.
func (s *Server) Engine() *gin.Engine { return s.engine }

// Run serves until the context is cancelled, then drains in-flight requests
// within the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Server.ListenAddr,
		Handler:      s.engine,
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeoutMs) * time.Millisecond,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeoutMs) * time.Millisecond,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Gateway listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(s.cfg.Server.ShutdownTimeoutMs)*time.Millisecond)
	defer cancel()
	log.Info().Msg("Gateway shutting down")
	return srv.Shutdown(shutdownCtx)
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("Request served")
	}
}

func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.httpRequests.Inc()
		s.latency.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}
}

func corsMiddleware(origin string) gin.HandlerFunc {
	if origin == "" {
		origin = "*"
	}
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// ---------------------------------------------------------------------------
// Operational endpoints
// ---------------------------------------------------------------------------

func (s *Server) healthz(c *gin.Context) {
	if s.monitor == nil {
		c.JSON(http.StatusOK, gin.H{"status": observability.StatusHealthy})
		return
	}
	health := s.monitor.Check(c.Request.Context())
	status := http.StatusOK
	if health.Status == observability.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, health)
}

func (s *Server) metrics(c *gin.Context) {
	s.syncStats()
	s.exporter.ServeHTTP(c.Writer, c.Request)
}

// syncStats folds the fetch client's own counters into the registry. The
// client keeps cumulative atomics, so each scrape adds only the delta since
// the previous one.
func (s *Server) syncStats() {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	if s.fetcher != nil {
		now := s.fetcher.Stats()
		s.cacheHits.Add(float64(now.CacheHits - s.lastStats.CacheHits))
		s.cacheMisses.Add(float64(now.CacheMisses - s.lastStats.CacheMisses))
		s.fetchRetries.Add(float64(now.Retries - s.lastStats.Retries))
		s.fetchFailures.Add(float64(now.Failures - s.lastStats.Failures))
		s.lastStats = now
	}
	if s.cache != nil {
		s.cacheEntries.Set(float64(s.cache.Len()))
	}
}

// ---------------------------------------------------------------------------
// SPA fallback
// ---------------------------------------------------------------------------

// spaFallback serves the dashboard bundle for anything that is not an API
// path: exact file when it exists, index.html otherwise so client-side
// routes deep-link.
func (s *Server) spaFallback(c *gin.Context) {
	p := c.Request.URL.Path
	if strings.HasPrefix(p, "/api/") || p == "/graphql" || p == "/ws" {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	dir := s.cfg.Server.StaticDir
	if dir == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	// Clean the request path so ".." cannot escape the bundle directory.
	name := filepath.Join(dir, filepath.Clean("/"+strings.TrimPrefix(p, "/")))
	if info, err := os.Stat(name); err == nil && !info.IsDir() {
		c.File(name)
		return
	}
	index := filepath.Join(dir, "index.html")
	if _, err := os.Stat(index); err == nil {
		c.File(index)
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
}
