package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Kucoinflow KucoinflowConfig `yaml:"kucoinflow"`
	Logging    LoggingConfig    `yaml:"logging"`
	Channels   ChannelsConfig   `yaml:"channels"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Rest       RestConfig       `yaml:"rest"`
	Stream     StreamConfig     `yaml:"stream"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type KucoinflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type LoggingConfig struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"`
	Output        string `yaml:"output"`
	MaxAge        int    `yaml:"max_age"`
	DashboardName string `yaml:"dashboard_name"`
}

type ChannelsConfig struct {
	SnapshotBuffer int `yaml:"snapshot_buffer"`
	DiffBuffer     int `yaml:"diff_buffer"`
	TradeBuffer    int `yaml:"trade_buffer"`
}

// CatalogConfig controls market discovery. Symbols, when set, pins the
// instrument list and bypasses discovery entirely.
type CatalogConfig struct {
	SymbolsURL string   `yaml:"symbols_url"`
	TickerURL  string   `yaml:"ticker_url"`
	TTLMinutes int      `yaml:"ttl_minutes"`
	Symbols    []string `yaml:"symbols"`
}

type RestConfig struct {
	DepthURL       string               `yaml:"depth_url"`
	TokenURL       string               `yaml:"token_url"`
	TimeoutMs      int                  `yaml:"timeout_ms"`
	FetchPacingMs  int                  `yaml:"fetch_pacing_ms"`
	FetchPenaltyMs int                  `yaml:"fetch_penalty_ms"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns      int `yaml:"max_idle_conns"`
	MaxConnsPerHost   int `yaml:"max_conns_per_host"`
	IdleConnTimeoutMs int `yaml:"idle_conn_timeout_ms"`
}

type StreamConfig struct {
	MessageTimeoutMs   int `yaml:"message_timeout_ms"`
	PingTimeoutMs      int `yaml:"ping_timeout_ms"`
	ReconnectBackoffMs int `yaml:"reconnect_backoff_ms"`
	SnapshotIntervalMs int `yaml:"snapshot_interval_ms"`
	SnapshotPenaltyMs  int `yaml:"snapshot_penalty_ms"`
	HandshakeTimeoutMs int `yaml:"handshake_timeout_ms"`
}

type MetricsConfig struct {
	CloudWatch bool   `yaml:"cloudwatch"`
	Region     string `yaml:"region"`
	Namespace  string `yaml:"namespace"`
}

// KuCoin endpoints and pacing used when the configuration file leaves them
// unset. The 400ms pacing keeps snapshot polling inside the published limit
// of 100 requests per 10 seconds.
const (
	defaultSymbolsURL = "https://api.kucoin.com/api/v1/symbols"
	defaultTickerURL  = "https://api.kucoin.com/api/v1/market/allTickers"
	defaultDepthURL   = "https://api.kucoin.com/api/v1/market/orderbook/level2_100"
	defaultTokenURL   = "https://api.kucoin.com/api/v1/bullet-public"
)

func LoadConfig(path string) (*Config, error) {
	path = resolveEnvSpecificPath(path, "config/config.yml", map[string]string{
		EnvironmentProduction: "config/config.production.yml",
		EnvironmentStaging:    "config/config.staging.yml",
	})

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&config)

	if v := os.Getenv("AWS_REGION"); v != "" {
		config.Metrics.Region = strings.TrimSpace(v)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Catalog.SymbolsURL == "" {
		cfg.Catalog.SymbolsURL = defaultSymbolsURL
	}
	if cfg.Catalog.TickerURL == "" {
		cfg.Catalog.TickerURL = defaultTickerURL
	}
	if cfg.Catalog.TTLMinutes <= 0 {
		cfg.Catalog.TTLMinutes = 30
	}
	if cfg.Rest.DepthURL == "" {
		cfg.Rest.DepthURL = defaultDepthURL
	}
	if cfg.Rest.TokenURL == "" {
		cfg.Rest.TokenURL = defaultTokenURL
	}
	if cfg.Rest.TimeoutMs <= 0 {
		cfg.Rest.TimeoutMs = 10000
	}
	if cfg.Rest.FetchPacingMs <= 0 {
		cfg.Rest.FetchPacingMs = 400
	}
	if cfg.Rest.FetchPenaltyMs <= 0 {
		cfg.Rest.FetchPenaltyMs = 10000
	}
	if cfg.Rest.ConnectionPool.MaxIdleConns <= 0 {
		cfg.Rest.ConnectionPool.MaxIdleConns = 10
	}
	if cfg.Rest.ConnectionPool.MaxConnsPerHost <= 0 {
		cfg.Rest.ConnectionPool.MaxConnsPerHost = 10
	}
	if cfg.Rest.ConnectionPool.IdleConnTimeoutMs <= 0 {
		cfg.Rest.ConnectionPool.IdleConnTimeoutMs = 90000
	}
	if cfg.Stream.MessageTimeoutMs <= 0 {
		cfg.Stream.MessageTimeoutMs = 30000
	}
	if cfg.Stream.PingTimeoutMs <= 0 {
		cfg.Stream.PingTimeoutMs = 10000
	}
	if cfg.Stream.ReconnectBackoffMs <= 0 {
		cfg.Stream.ReconnectBackoffMs = 30000
	}
	if cfg.Stream.SnapshotIntervalMs <= 0 {
		cfg.Stream.SnapshotIntervalMs = 5000
	}
	if cfg.Stream.SnapshotPenaltyMs <= 0 {
		cfg.Stream.SnapshotPenaltyMs = 5000
	}
	if cfg.Stream.HandshakeTimeoutMs <= 0 {
		cfg.Stream.HandshakeTimeoutMs = 10000
	}
	if cfg.Channels.SnapshotBuffer <= 0 {
		cfg.Channels.SnapshotBuffer = 10000
	}
	if cfg.Channels.DiffBuffer <= 0 {
		cfg.Channels.DiffBuffer = 10000
	}
	if cfg.Channels.TradeBuffer <= 0 {
		cfg.Channels.TradeBuffer = 10000
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "Kucoinflow"
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Kucoinflow.Name == "" {
		return fmt.Errorf("kucoinflow.name is required")
	}

	if cfg.Kucoinflow.Version == "" {
		return fmt.Errorf("kucoinflow.version is required")
	}

	if !strings.HasPrefix(cfg.Catalog.SymbolsURL, "http") {
		return fmt.Errorf("catalog.symbols_url '%s' is invalid", cfg.Catalog.SymbolsURL)
	}
	if !strings.HasPrefix(cfg.Catalog.TickerURL, "http") {
		return fmt.Errorf("catalog.ticker_url '%s' is invalid", cfg.Catalog.TickerURL)
	}
	if !strings.HasPrefix(cfg.Rest.DepthURL, "http") {
		return fmt.Errorf("rest.depth_url '%s' is invalid", cfg.Rest.DepthURL)
	}
	if !strings.HasPrefix(cfg.Rest.TokenURL, "http") {
		return fmt.Errorf("rest.token_url '%s' is invalid", cfg.Rest.TokenURL)
	}

	// The pong wait must fit inside the receive window, otherwise a probe
	// would outlive the next receive deadline.
	if cfg.Stream.PingTimeoutMs >= cfg.Stream.MessageTimeoutMs {
		return fmt.Errorf("stream.ping_timeout_ms must be smaller than stream.message_timeout_ms")
	}

	return nil
}

// CatalogTTL returns the market catalog cache window.
func (c *Config) CatalogTTL() time.Duration {
	return time.Duration(c.Catalog.TTLMinutes) * time.Minute
}

// RestTimeout returns the per-request HTTP timeout.
func (c *Config) RestTimeout() time.Duration {
	return time.Duration(c.Rest.TimeoutMs) * time.Millisecond
}

func (c *Config) FetchPacing() time.Duration {
	return time.Duration(c.Rest.FetchPacingMs) * time.Millisecond
}

func (c *Config) FetchPenalty() time.Duration {
	return time.Duration(c.Rest.FetchPenaltyMs) * time.Millisecond
}

func (c *Config) MessageTimeout() time.Duration {
	return time.Duration(c.Stream.MessageTimeoutMs) * time.Millisecond
}

func (c *Config) PingTimeout() time.Duration {
	return time.Duration(c.Stream.PingTimeoutMs) * time.Millisecond
}

func (c *Config) ReconnectBackoff() time.Duration {
	return time.Duration(c.Stream.ReconnectBackoffMs) * time.Millisecond
}

func (c *Config) SnapshotInterval() time.Duration {
	return time.Duration(c.Stream.SnapshotIntervalMs) * time.Millisecond
}

func (c *Config) SnapshotPenalty() time.Duration {
	return time.Duration(c.Stream.SnapshotPenaltyMs) * time.Millisecond
}

func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.Stream.HandshakeTimeoutMs) * time.Millisecond
}

func (c *Config) IdleConnTimeout() time.Duration {
	return time.Duration(c.Rest.ConnectionPool.IdleConnTimeoutMs) * time.Millisecond
}
