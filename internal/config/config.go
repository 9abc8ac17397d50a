package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the OpenAPI backend.
type Config struct {
	General      GeneralConfig      `yaml:"general"`
	Server       ServerConfig       `yaml:"server"`
	DataSource   DataSourceConfig   `yaml:"data_source"`
	Cache        CacheConfig        `yaml:"cache"`
	Retry        RetryConfig        `yaml:"retry"`
	AnalyticsAPI AnalyticsAPIConfig `yaml:"analytics_api"`
	RPC          RPCConfig          `yaml:"rpc"`
	Price        PriceConfig        `yaml:"price"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	ClickHouse   ClickHouseConfig   `yaml:"clickhouse"`
	Stream       StreamConfig       `yaml:"stream"`
}

type GeneralConfig struct {
	InstanceID  string `yaml:"instance_id"`
	Environment string `yaml:"environment"` // production|staging|development
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"` // json|text
}

type ServerConfig struct {
	ListenAddr        string `yaml:"listen_addr"`
	StaticDir         string `yaml:"static_dir"` // SPA bundle; empty disables the fallback
	CORSOrigin        string `yaml:"cors_origin"`
	ReadTimeoutMs     int    `yaml:"read_timeout_ms"`
	WriteTimeoutMs    int    `yaml:"write_timeout_ms"`
	ShutdownTimeoutMs int    `yaml:"shutdown_timeout_ms"`
}

type DataSourceConfig struct {
	Mode     string `yaml:"mode"` // mock|live|store
	MockSeed int64  `yaml:"mock_seed"`
}

type CacheConfig struct {
	TTLMs             int `yaml:"ttl_ms"`
	JanitorIntervalMs int `yaml:"janitor_interval_ms"` // 0 disables the janitor
}

type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	BaseDelayMs int `yaml:"base_delay_ms"`
}

type AnalyticsAPIConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type RPCConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	WSEndpoint   string  `yaml:"ws_endpoint"`
	TimeoutMs    int     `yaml:"timeout_ms"`
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
	MaxRetries   int     `yaml:"max_retries"`
}

type PriceConfig struct {
	Endpoint  string `yaml:"endpoint"`
	VsToken   string `yaml:"vs_token"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	SchemaVersion string   `yaml:"schema_version"`
	Topics        struct {
		MarketplaceEvents string `yaml:"marketplace_events"`
		BridgeEvents      string `yaml:"bridge_events"`
		LiveEvents        string `yaml:"live_events"`
	} `yaml:"topics"`
	ProducerConfig struct {
		Acks            string `yaml:"acks"`             // all|1|0
		LingerMs        int    `yaml:"linger_ms"`
		BatchSize       int    `yaml:"batch_size"`
		CompressionType string `yaml:"compression_type"` // snappy|lz4|zstd|none
	} `yaml:"producer"`
	ConsumerConfig struct {
		GroupIDPrefix   string `yaml:"group_id_prefix"`
		AutoOffsetReset string `yaml:"auto_offset_reset"` // earliest|latest
		MaxPollRecords  int    `yaml:"max_poll_records"`
	} `yaml:"consumer"`
}

type ClickHouseConfig struct {
	DSN             string `yaml:"dsn"`
	Database        string `yaml:"database"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	BatchSize       int    `yaml:"batch_size"`
	FlushIntervalMs int    `yaml:"flush_interval_ms"`
}

type StreamConfig struct {
	BroadcastBuffer int `yaml:"broadcast_buffer"`
	ClientBuffer    int `yaml:"client_buffer"`
	MockTickMs      int `yaml:"mock_tick_ms"` // fabricated event interval in mock mode
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Apply defaults
	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.General.InstanceID == "" {
		cfg.General.InstanceID = "openapi-1"
	}
	if cfg.General.Environment == "" {
		cfg.General.Environment = "development"
	}
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if cfg.General.LogFormat == "" {
		cfg.General.LogFormat = "json"
	}
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.ReadTimeoutMs == 0 {
		cfg.Server.ReadTimeoutMs = 15000
	}
	if cfg.Server.WriteTimeoutMs == 0 {
		cfg.Server.WriteTimeoutMs = 30000
	}
	if cfg.Server.ShutdownTimeoutMs == 0 {
		cfg.Server.ShutdownTimeoutMs = 10000
	}
	if cfg.DataSource.Mode == "" {
		cfg.DataSource.Mode = "mock"
	}
	if cfg.DataSource.MockSeed == 0 {
		cfg.DataSource.MockSeed = 42
	}
	if cfg.Cache.TTLMs == 0 {
		cfg.Cache.TTLMs = 60000
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.BaseDelayMs == 0 {
		cfg.Retry.BaseDelayMs = 1000
	}
	if cfg.AnalyticsAPI.TimeoutMs == 0 {
		cfg.AnalyticsAPI.TimeoutMs = 10000
	}
	if cfg.RPC.Endpoint == "" {
		cfg.RPC.Endpoint = "https://api.mainnet-beta.solana.com"
	}
	if cfg.RPC.WSEndpoint == "" {
		cfg.RPC.WSEndpoint = "wss://api.mainnet-beta.solana.com"
	}
	if cfg.RPC.TimeoutMs == 0 {
		cfg.RPC.TimeoutMs = 15000
	}
	if cfg.RPC.RateLimitRPS == 0 {
		cfg.RPC.RateLimitRPS = 10
	}
	if cfg.RPC.MaxRetries == 0 {
		cfg.RPC.MaxRetries = 3
	}
	if cfg.Price.Endpoint == "" {
		cfg.Price.Endpoint = "https://price.jup.ag/v6/price"
	}
	if cfg.Price.VsToken == "" {
		cfg.Price.VsToken = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v" // USDC
	}
	if cfg.Price.TimeoutMs == 0 {
		cfg.Price.TimeoutMs = 10000
	}
	// An explicit `brokers: []` stays empty and disables Kafka wiring;
	// only an absent key gets the default.
	if cfg.Kafka.Brokers == nil {
		cfg.Kafka.Brokers = []string{"localhost:9092"}
	}
	if cfg.Kafka.Topics.MarketplaceEvents == "" {
		cfg.Kafka.Topics.MarketplaceEvents = "substreams.marketplace.events"
	}
	if cfg.Kafka.Topics.BridgeEvents == "" {
		cfg.Kafka.Topics.BridgeEvents = "substreams.bridge.events"
	}
	if cfg.Kafka.Topics.LiveEvents == "" {
		cfg.Kafka.Topics.LiveEvents = "openapi.events.live"
	}
	if cfg.Kafka.ProducerConfig.Acks == "" {
		cfg.Kafka.ProducerConfig.Acks = "all"
	}
	if cfg.Kafka.ProducerConfig.CompressionType == "" {
		cfg.Kafka.ProducerConfig.CompressionType = "snappy"
	}
	if cfg.Kafka.ConsumerConfig.GroupIDPrefix == "" {
		cfg.Kafka.ConsumerConfig.GroupIDPrefix = "openapi"
	}
	if cfg.Kafka.ConsumerConfig.AutoOffsetReset == "" {
		cfg.Kafka.ConsumerConfig.AutoOffsetReset = "earliest"
	}
	if cfg.ClickHouse.DSN == "" {
		cfg.ClickHouse.DSN = "clickhouse://localhost:9000/openapi"
	}
	if cfg.ClickHouse.Database == "" {
		cfg.ClickHouse.Database = "openapi"
	}
	if cfg.ClickHouse.MaxOpenConns == 0 {
		cfg.ClickHouse.MaxOpenConns = 10
	}
	if cfg.ClickHouse.MaxIdleConns == 0 {
		cfg.ClickHouse.MaxIdleConns = 5
	}
	if cfg.ClickHouse.BatchSize == 0 {
		cfg.ClickHouse.BatchSize = 500
	}
	if cfg.ClickHouse.FlushIntervalMs == 0 {
		cfg.ClickHouse.FlushIntervalMs = 2000
	}
	if cfg.Stream.BroadcastBuffer == 0 {
		cfg.Stream.BroadcastBuffer = 256
	}
	if cfg.Stream.ClientBuffer == 0 {
		cfg.Stream.ClientBuffer = 64
	}
	if cfg.Stream.MockTickMs == 0 {
		cfg.Stream.MockTickMs = 2000
	}
}

func validate(cfg *Config) error {
	switch cfg.DataSource.Mode {
	case "mock", "live", "store":
	default:
		return fmt.Errorf("config: unknown data_source mode %q", cfg.DataSource.Mode)
	}
	if cfg.Retry.MaxAttempts < 1 {
		return fmt.Errorf("config: retry max_attempts must be >= 1")
	}
	return nil
}
