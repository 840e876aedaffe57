// Package config defines the top-level configuration for the vantage daemon
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by VANTAGE_* environment variables.
type Config struct {
	ExchangeA  ExchangeAConfig    `toml:"exchange_a"`
	ExchangeB  ExchangeBConfig    `toml:"exchange_b"`
	Batch      BatchConfig        `toml:"batch"`
	Reconnect  ReconnectConfig    `toml:"reconnect"`
	Arbitrage  ArbitrageConfig    `toml:"arbitrage"`
	Classifier ClassifierConfig   `toml:"classifier"`
	Scenario   ScenarioConfig     `toml:"scenario"`
	Analyst    AnalystConfig      `toml:"analyst"`
	Postgres   PostgresConfig     `toml:"postgres"`
	Redis      RedisConfig        `toml:"redis"`
	Archive    ArchiveConfig      `toml:"archive"`
	Server     ServerConfig       `toml:"server"`
	Notify     NotifyConfig       `toml:"notify"`
	DemoProbs  map[string]float64 `toml:"demo_probabilities"`
	Mode       string             `toml:"mode"`
	LogLevel   string             `toml:"log_level"`
}

// ExchangeAConfig holds the order-book venue subscription parameters.
type ExchangeAConfig struct {
	WsHost   string   `toml:"ws_host"`
	AssetIDs []string `toml:"asset_ids"`
	ApiKey   string   `toml:"api_key"`
}

// ExchangeBConfig holds the ticker venue subscription and signing parameters.
type ExchangeBConfig struct {
	WsURL            string   `toml:"ws_url"`
	Tickers          []string `toml:"tickers"`
	ApiKey           string   `toml:"api_key"`
	PrivateKeyBase64 string   `toml:"private_key_base64"`
	EncryptedKeyPath string   `toml:"encrypted_key_path"`
	KeyPassword      string   `toml:"key_password"`
}

// BatchConfig holds quote batch-writer parameters.
type BatchConfig struct {
	Size          int      `toml:"size"`
	FlushInterval duration `toml:"flush_interval"`
}

// ReconnectConfig holds the shared session backoff parameters.
type ReconnectConfig struct {
	BaseDelay duration `toml:"base_delay"`
	MaxDelay  duration `toml:"max_delay"`
}

// ArbitrageConfig holds scanner parameters.
type ArbitrageConfig struct {
	PollInterval          duration `toml:"poll_interval"`
	SpreadThresholdPct    float64  `toml:"spread_threshold_pct"`
	LiquidityThresholdUSD float64  `toml:"liquidity_threshold_usd"`
	SuppressWindow        duration `toml:"suppress_window"`
}

// ClassifierConfig holds relationship-classifier parameters.
type ClassifierConfig struct {
	Concurrency               int     `toml:"concurrency"`
	ArbitrageFlagThresholdPct float64 `toml:"arbitrage_flag_threshold_pct"`
	DivergenceThresholdPct    float64 `toml:"divergence_threshold_pct"`
	HubLinkThreshold          int     `toml:"hub_link_threshold"`
}

// ScenarioConfig holds scenario-engine traversal parameters.
type ScenarioConfig struct {
	MaxDepth          int     `toml:"max_depth"`
	MinPathConfidence float64 `toml:"min_path_confidence"`
}

// AnalystConfig holds the language-model endpoint parameters.
type AnalystConfig struct {
	Endpoint string `toml:"endpoint"`
	ApiKey   string `toml:"api_key"`
	Model    string `toml:"model"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// ArchiveConfig holds S3 cold-storage parameters for quote retention. The
// archiver is disabled when Bucket is empty.
type ArchiveConfig struct {
	Endpoint       string   `toml:"endpoint"`
	Region         string   `toml:"region"`
	Bucket         string   `toml:"bucket"`
	AccessKey      string   `toml:"access_key"`
	SecretKey      string   `toml:"secret_key"`
	ForcePathStyle bool     `toml:"force_path_style"`
	RetentionDays  int      `toml:"retention_days"`
	Interval       duration `toml:"interval"`
}

// ServerConfig holds HTTP server parameters. RateLimitPerMinute of zero
// disables per-client rate limiting.
type ServerConfig struct {
	Enabled            bool     `toml:"enabled"`
	Port               int      `toml:"port"`
	ApiKey             string   `toml:"api_key"`
	CORSOrigins        []string `toml:"cors_origins"`
	RateLimitPerMinute int      `toml:"rate_limit_per_minute"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		ExchangeA: ExchangeAConfig{
			WsHost: "wss://ws-subscriptions-clob.polymarket.com/ws/market",
		},
		ExchangeB: ExchangeBConfig{
			WsURL: "wss://api.elections.kalshi.com/trade-api/ws/v2",
		},
		Batch: BatchConfig{
			Size:          25,
			FlushInterval: duration{2 * time.Second},
		},
		Reconnect: ReconnectConfig{
			BaseDelay: duration{time.Second},
			MaxDelay:  duration{30 * time.Second},
		},
		Arbitrage: ArbitrageConfig{
			PollInterval:          duration{30 * time.Second},
			SpreadThresholdPct:    3.0,
			LiquidityThresholdUSD: 500,
			SuppressWindow:        duration{10 * time.Minute},
		},
		Classifier: ClassifierConfig{
			Concurrency:               5,
			ArbitrageFlagThresholdPct: 10,
			DivergenceThresholdPct:    5,
			HubLinkThreshold:          3,
		},
		Scenario: ScenarioConfig{
			MaxDepth:          2,
			MinPathConfidence: 0.05,
		},
		Analyst: AnalystConfig{
			Endpoint: "https://api.openai.com/v1/chat/completions",
			Model:    "gpt-4o-mini",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "vantage",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		Archive: ArchiveConfig{
			Region:        "us-east-1",
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:            true,
			Port:               8000,
			CORSOrigins:        []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimitPerMinute: 240,
		},
		Notify: NotifyConfig{
			Events: []string{"arb_detected", "scenario_complete", "error"},
		},
		DemoProbs: map[string]float64{},
		Mode:      "full",
		LogLevel:  "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"full":     true,
	"ingest":   true,
	"classify": true,
	"server":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: full, ingest, classify, server)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	needsIngest := c.Mode == "full" || c.Mode == "ingest"
	if needsIngest {
		if c.ExchangeA.WsHost == "" {
			errs = append(errs, "exchange_a: ws_host must not be empty")
		}
		if c.ExchangeB.WsURL == "" {
			errs = append(errs, "exchange_b: ws_url must not be empty")
		}
		// Venue B requires the full credential triple when subscribed.
		if len(c.ExchangeB.Tickers) > 0 {
			if c.ExchangeB.ApiKey == "" {
				errs = append(errs, "exchange_b: api_key is required when tickers are configured")
			}
			if c.ExchangeB.PrivateKeyBase64 == "" && c.ExchangeB.EncryptedKeyPath == "" {
				errs = append(errs, "exchange_b: either private_key_base64 or encrypted_key_path must be set when tickers are configured")
			}
			if c.ExchangeB.EncryptedKeyPath != "" && c.ExchangeB.KeyPassword == "" {
				errs = append(errs, "exchange_b: key_password is required when encrypted_key_path is set")
			}
		}
	}

	if c.Batch.Size < 1 {
		errs = append(errs, "batch: size must be >= 1")
	}
	if c.Batch.FlushInterval.Duration <= 0 {
		errs = append(errs, "batch: flush_interval must be positive")
	}

	if c.Reconnect.BaseDelay.Duration <= 0 {
		errs = append(errs, "reconnect: base_delay must be positive")
	}
	if c.Reconnect.MaxDelay.Duration < c.Reconnect.BaseDelay.Duration {
		errs = append(errs, "reconnect: max_delay must not be below base_delay")
	}

	if c.Arbitrage.PollInterval.Duration <= 0 {
		errs = append(errs, "arbitrage: poll_interval must be positive")
	}
	if c.Arbitrage.SpreadThresholdPct <= 0 {
		errs = append(errs, "arbitrage: spread_threshold_pct must be > 0")
	}
	if c.Arbitrage.LiquidityThresholdUSD < 0 {
		errs = append(errs, "arbitrage: liquidity_threshold_usd must be >= 0")
	}
	if c.Arbitrage.SuppressWindow.Duration < 0 {
		errs = append(errs, "arbitrage: suppress_window must be >= 0")
	}

	if c.Classifier.Concurrency < 1 {
		errs = append(errs, "classifier: concurrency must be >= 1")
	}
	if c.Classifier.HubLinkThreshold < 1 {
		errs = append(errs, "classifier: hub_link_threshold must be >= 1")
	}

	if c.Scenario.MaxDepth < 1 {
		errs = append(errs, "scenario: max_depth must be >= 1")
	}
	if c.Scenario.MinPathConfidence <= 0 || c.Scenario.MinPathConfidence >= 1 {
		errs = append(errs, fmt.Sprintf("scenario: min_path_confidence must be in (0,1), got %v", c.Scenario.MinPathConfidence))
	}

	if c.Mode == "classify" || c.Mode == "full" || c.Mode == "server" {
		if c.Analyst.Endpoint == "" {
			errs = append(errs, "analyst: endpoint must not be empty")
		}
		if c.Analyst.Model == "" {
			errs = append(errs, "analyst: model must not be empty")
		}
	}

	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.Archive.Bucket != "" {
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1 when a bucket is configured")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be positive when a bucket is configured")
		}
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimitPerMinute < 0 {
			errs = append(errs, "server: rate_limit_per_minute must be >= 0")
		}
	}

	for key, p := range c.DemoProbs {
		if p < 0 || p > 1 {
			errs = append(errs, fmt.Sprintf("demo_probabilities: %s must be in [0,1], got %v", key, p))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
