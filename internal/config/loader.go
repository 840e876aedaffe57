package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies VANTAGE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known VANTAGE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Exchange A ──
	setStr(&cfg.ExchangeA.WsHost, "VANTAGE_EXCHANGE_A_WS_HOST")
	setStringSlice(&cfg.ExchangeA.AssetIDs, "VANTAGE_EXCHANGE_A_ASSET_IDS")
	setStr(&cfg.ExchangeA.ApiKey, "VANTAGE_EXCHANGE_A_API_KEY")

	// ── Exchange B ──
	setStr(&cfg.ExchangeB.WsURL, "VANTAGE_EXCHANGE_B_WS_URL")
	setStringSlice(&cfg.ExchangeB.Tickers, "VANTAGE_EXCHANGE_B_TICKERS")
	setStr(&cfg.ExchangeB.ApiKey, "VANTAGE_EXCHANGE_B_API_KEY")
	setStr(&cfg.ExchangeB.PrivateKeyBase64, "VANTAGE_EXCHANGE_B_PRIVATE_KEY_BASE64")
	setStr(&cfg.ExchangeB.EncryptedKeyPath, "VANTAGE_EXCHANGE_B_ENCRYPTED_KEY_PATH")
	setStr(&cfg.ExchangeB.KeyPassword, "VANTAGE_EXCHANGE_B_KEY_PASSWORD")

	// ── Batch ──
	setInt(&cfg.Batch.Size, "VANTAGE_BATCH_SIZE")
	setDurationMs(&cfg.Batch.FlushInterval, "VANTAGE_BATCH_FLUSH_INTERVAL_MS")

	// ── Reconnect ──
	setDurationMs(&cfg.Reconnect.BaseDelay, "VANTAGE_RECONNECT_BASE_DELAY_MS")
	setDurationMs(&cfg.Reconnect.MaxDelay, "VANTAGE_RECONNECT_MAX_DELAY_MS")

	// ── Arbitrage ──
	setDurationMs(&cfg.Arbitrage.PollInterval, "VANTAGE_ARBITRAGE_POLL_INTERVAL_MS")
	setFloat64(&cfg.Arbitrage.SpreadThresholdPct, "VANTAGE_ARBITRAGE_SPREAD_THRESHOLD_PCT")
	setFloat64(&cfg.Arbitrage.LiquidityThresholdUSD, "VANTAGE_ARBITRAGE_LIQUIDITY_THRESHOLD_USD")

	// ── Classifier ──
	setInt(&cfg.Classifier.Concurrency, "VANTAGE_CLASSIFIER_CONCURRENCY")
	setFloat64(&cfg.Classifier.ArbitrageFlagThresholdPct, "VANTAGE_ARBITRAGE_FLAG_THRESHOLD_PCT")
	setFloat64(&cfg.Classifier.DivergenceThresholdPct, "VANTAGE_DIVERGENCE_THRESHOLD_PCT")
	setInt(&cfg.Classifier.HubLinkThreshold, "VANTAGE_HUB_LINK_THRESHOLD")

	// ── Scenario ──
	setInt(&cfg.Scenario.MaxDepth, "VANTAGE_SCENARIO_MAX_DEPTH")
	setFloat64(&cfg.Scenario.MinPathConfidence, "VANTAGE_SCENARIO_MIN_PATH_CONFIDENCE")

	// ── Analyst ──
	setStr(&cfg.Analyst.Endpoint, "VANTAGE_ANALYST_MODEL_ENDPOINT")
	setStr(&cfg.Analyst.ApiKey, "VANTAGE_ANALYST_MODEL_API_KEY")
	setStr(&cfg.Analyst.Model, "VANTAGE_ANALYST_MODEL_NAME")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "VANTAGE_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "VANTAGE_PERSISTENT_STORE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "VANTAGE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "VANTAGE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "VANTAGE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "VANTAGE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "VANTAGE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.Password, "VANTAGE_PERSISTENT_STORE_SERVICE_KEY") // compatibility alias
	setStr(&cfg.Postgres.SSLMode, "VANTAGE_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "VANTAGE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "VANTAGE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "VANTAGE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "VANTAGE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "VANTAGE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "VANTAGE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "VANTAGE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "VANTAGE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "VANTAGE_REDIS_TLS_ENABLED")

	// ── Archive ──
	setStr(&cfg.Archive.Endpoint, "VANTAGE_ARCHIVE_S3_ENDPOINT")
	setStr(&cfg.Archive.Region, "VANTAGE_ARCHIVE_S3_REGION")
	setStr(&cfg.Archive.Bucket, "VANTAGE_ARCHIVE_S3_BUCKET")
	setStr(&cfg.Archive.AccessKey, "VANTAGE_ARCHIVE_S3_ACCESS_KEY")
	setStr(&cfg.Archive.SecretKey, "VANTAGE_ARCHIVE_S3_SECRET_KEY")
	setBool(&cfg.Archive.ForcePathStyle, "VANTAGE_ARCHIVE_S3_FORCE_PATH_STYLE")
	setInt(&cfg.Archive.RetentionDays, "VANTAGE_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "VANTAGE_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "VANTAGE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "VANTAGE_SERVER_PORT")
	setStr(&cfg.Server.ApiKey, "VANTAGE_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "VANTAGE_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "VANTAGE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "VANTAGE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "VANTAGE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "VANTAGE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "VANTAGE_MODE")
	setStr(&cfg.LogLevel, "VANTAGE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

// setDurationMs reads a plain millisecond count, the unit the public
// environment contract uses for intervals and delays.
func setDurationMs(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			dst.Duration = time.Duration(n) * time.Millisecond
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
