package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	cfg.Polymarket.RPCURL = "http://localhost:8545"
	cfg.Kalshi.ApiKey = "key-id"
	cfg.Kalshi.RsaPrivateKeyPath = "/tmp/kalshi.pem"
	return cfg
}

func TestDefaultsValidateWithCredentials(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "paper"
	cfg.Arbitrage.Threshold = 120
	cfg.Arbitrage.MaxTradeAmount = 0.5
	cfg.Polymarket.OrderType = "GTC"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{
		`unknown mode "paper"`,
		"threshold must be in (0, 100)",
		"max_trade_amount must be >= min_trade_amount",
		"order_type must be FOK or FAK",
		"kalshi: api_key and rsa_private_key_path are required",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("error missing %q:\n%s", want, msg)
		}
	}
}

func TestValidateFractionalMinTradeAmount(t *testing.T) {
	cfg := validConfig()
	cfg.Arbitrage.MinTradeAmount = 0.5
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "min_trade_amount must be at least one contract") {
		t.Fatalf("expected min_trade_amount error, got %v", err)
	}
}

func TestValidateWalletOnlyForSigningModes(t *testing.T) {
	cfg := validConfig()
	cfg.Wallet.PrivateKey = ""
	cfg.Polymarket.RPCURL = ""

	cfg.Mode = ModeMonitor
	if err := cfg.Validate(); err != nil {
		t.Fatalf("monitor mode should not need a wallet: %v", err)
	}

	cfg.Mode = ModeRedeem
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "wallet") || !strings.Contains(err.Error(), "rpc_url") {
		t.Fatalf("redeem mode without wallet: got %v", err)
	}
}

func TestValidateOptionalBackends(t *testing.T) {
	cfg := validConfig()
	cfg.Supabase.Host = ""
	cfg.S3.Bucket = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled backends should not be validated: %v", err)
	}

	cfg.Supabase.Enabled = true
	cfg.S3.Enabled = true
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected errors for enabled backends")
	}
	if !strings.Contains(err.Error(), "supabase: host") || !strings.Contains(err.Error(), "s3: bucket") {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg.Supabase.DSN = "postgres://u:p@db:5432/app"
	cfg.S3.Bucket = "snapshots"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("dsn should replace host fields: %v", err)
	}

	cfg.SQLite.Enabled = true
	cfg.Kafka.Enabled = true
	cfg.Kafka.Brokers = nil
	err = cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "sqlite: cannot be enabled together with supabase") ||
		!strings.Contains(err.Error(), "kafka: brokers") {
		t.Fatalf("expected sqlite and kafka errors, got %v", err)
	}
}

func TestValidateRejectsBadAddress(t *testing.T) {
	cfg := validConfig()
	cfg.Polymarket.CTFAddress = "0x1234"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "ctf_address") {
		t.Fatalf("expected ctf_address error, got %v", err)
	}
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "monitor"

[arbitrage]
threshold = 95
scan_interval = "2s"

[server]
cors_origins = ["https://example.com"]
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("UPDOWNARB_ARBITRAGE_MAX_TRADE_AMOUNT", "25")
	t.Setenv("UPDOWNARB_SUPABASE_DSN", "postgres://localhost/db")
	t.Setenv("UPDOWNARB_NOTIFY_EVENTS", "hedge_failed, position_partial ,")
	t.Setenv("UPDOWNARB_ARBITRAGE_LOCK_TTL", "not-a-duration")
	t.Setenv("UPDOWNARB_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != ModeMonitor {
		t.Errorf("mode = %q", cfg.Mode)
	}
	if cfg.Arbitrage.Threshold != 95 || cfg.Arbitrage.ScanInterval.Duration != 2*time.Second {
		t.Errorf("file values not applied: %+v", cfg.Arbitrage)
	}
	if cfg.Arbitrage.MinTradeAmount != 1 {
		t.Errorf("default min_trade_amount lost: %v", cfg.Arbitrage.MinTradeAmount)
	}
	if cfg.Arbitrage.MaxTradeAmount != 25 {
		t.Errorf("env max_trade_amount = %v", cfg.Arbitrage.MaxTradeAmount)
	}
	if cfg.Arbitrage.LockTTL.Duration != time.Minute {
		t.Errorf("invalid env duration should be ignored, got %v", cfg.Arbitrage.LockTTL.Duration)
	}
	if !cfg.Supabase.Enabled || cfg.Supabase.DSN != "postgres://localhost/db" {
		t.Errorf("dsn env should enable supabase: %+v", cfg.Supabase)
	}
	if got := strings.Join(cfg.Notify.Events, "|"); got != "hedge_failed|position_partial" {
		t.Errorf("notify events = %q", got)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("kafka brokers = %v", cfg.Kafka.Brokers)
	}
	if len(cfg.Server.CORSOrigins) != 1 || cfg.Server.CORSOrigins[0] != "https://example.com" {
		t.Errorf("cors origins = %v", cfg.Server.CORSOrigins)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv("UPDOWNARB_MODE", "redeem")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != ModeRedeem {
		t.Fatalf("mode = %q", cfg.Mode)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Server.APIKey = "secret-key"
	cfg.Notify.TelegramToken = "tg"
	cfg.Notify.Events = []string{"hedge_failed"}

	out := RedactedConfig(&cfg)
	if out.Wallet.PrivateKey != redacted || out.Kalshi.ApiKey != redacted || out.Server.APIKey != redacted {
		t.Fatalf("secrets not redacted: %+v", out)
	}
	if out.Notify.DiscordWebhookURL != "" {
		t.Fatal("empty secret should stay empty")
	}
	if cfg.Wallet.PrivateKey == redacted {
		t.Fatal("original mutated")
	}
	out.Notify.Events[0] = "changed"
	if cfg.Notify.Events[0] != "hedge_failed" {
		t.Fatal("events slice shared with original")
	}
}
