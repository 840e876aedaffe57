package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	// Defaults carry no venue-B credentials, so leave tickers empty.
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Defaults should validate: %v", err)
	}
}

func TestValidateAccumulatesErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "bogus"
	cfg.LogLevel = "loud"
	cfg.Batch.Size = 0
	cfg.Redis.Addr = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"unknown mode", "unknown log_level", "batch: size", "redis: addr"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}

func TestValidateVenueBCredentials(t *testing.T) {
	cfg := Defaults()
	cfg.ExchangeB.Tickers = []string{"FED-25DEC-C400"}

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "exchange_b: api_key") {
		t.Fatalf("expected api_key error, got %v", err)
	}

	cfg.ExchangeB.ApiKey = "key-id"
	cfg.ExchangeB.PrivateKeyBase64 = "aGVsbG8="
	if err := cfg.Validate(); err != nil {
		t.Fatalf("credentials set, expected valid: %v", err)
	}
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "ingest"
log_level = "debug"

[batch]
size = 50
flush_interval = "5s"

[exchange_a]
asset_ids = ["1234", "5678"]

[demo_probabilities]
"btc-100k" = 0.62
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("VANTAGE_BATCH_SIZE", "75")
	t.Setenv("VANTAGE_BATCH_FLUSH_INTERVAL_MS", "1500")
	t.Setenv("VANTAGE_EXCHANGE_B_TICKERS", "AAA, BBB ,")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Mode != "ingest" || cfg.LogLevel != "debug" {
		t.Errorf("file values not applied: mode=%q level=%q", cfg.Mode, cfg.LogLevel)
	}
	if cfg.Batch.Size != 75 {
		t.Errorf("env override lost: size=%d", cfg.Batch.Size)
	}
	if cfg.Batch.FlushInterval.Duration != 1500*time.Millisecond {
		t.Errorf("ms override lost: %v", cfg.Batch.FlushInterval.Duration)
	}
	if len(cfg.ExchangeA.AssetIDs) != 2 || cfg.ExchangeA.AssetIDs[0] != "1234" {
		t.Errorf("asset ids = %v", cfg.ExchangeA.AssetIDs)
	}
	if got := cfg.ExchangeB.Tickers; len(got) != 2 || got[0] != "AAA" || got[1] != "BBB" {
		t.Errorf("ticker slice = %v", got)
	}
	if cfg.DemoProbs["btc-100k"] != 0.62 {
		t.Errorf("demo probabilities = %v", cfg.DemoProbs)
	}
	// Unset sections keep defaults.
	if cfg.Arbitrage.SpreadThresholdPct != 3.0 {
		t.Errorf("default lost: %v", cfg.Arbitrage.SpreadThresholdPct)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Analyst.ApiKey = "sk-secret"
	cfg.Postgres.Password = "hunter2"
	cfg.ExchangeB.PrivateKeyBase64 = "cGVt"

	red := RedactedConfig(&cfg)
	if red.Analyst.ApiKey != "***" || red.Postgres.Password != "***" || red.ExchangeB.PrivateKeyBase64 != "***" {
		t.Error("secrets not redacted")
	}
	if cfg.Analyst.ApiKey != "sk-secret" {
		t.Error("original mutated")
	}
	if red.Server.Port != cfg.Server.Port {
		t.Error("non-secret fields should be preserved")
	}
}
