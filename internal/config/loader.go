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
// built-in defaults, applies UPDOWNARB_* environment variable overrides, and
// returns the final Config. An empty path skips the file so a deployment can
// run from defaults and environment alone. The returned Config has NOT been
// validated; the caller should invoke Config.Validate() after Load.
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

// applyEnvOverrides reads well-known UPDOWNARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "UPDOWNARB_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "UPDOWNARB_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "UPDOWNARB_WALLET_KEY_PASSWORD")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.GammaHost, "UPDOWNARB_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.ClobHost, "UPDOWNARB_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.RPCURL, "UPDOWNARB_POLYMARKET_RPC_URL")
	setInt(&cfg.Polymarket.ChainID, "UPDOWNARB_POLYMARKET_CHAIN_ID")
	setStr(&cfg.Polymarket.SlugPrefix, "UPDOWNARB_POLYMARKET_SLUG_PREFIX")
	setInt(&cfg.Polymarket.Lookahead, "UPDOWNARB_POLYMARKET_LOOKAHEAD")
	setStr(&cfg.Polymarket.OrderType, "UPDOWNARB_POLYMARKET_ORDER_TYPE")
	setStr(&cfg.Polymarket.ExchangeAddress, "UPDOWNARB_POLYMARKET_EXCHANGE_ADDRESS")
	setStr(&cfg.Polymarket.CTFAddress, "UPDOWNARB_POLYMARKET_CTF_ADDRESS")
	setStr(&cfg.Polymarket.CollateralAddress, "UPDOWNARB_POLYMARKET_COLLATERAL_ADDRESS")
	setDuration(&cfg.Polymarket.RedeemTimeout, "UPDOWNARB_POLYMARKET_REDEEM_TIMEOUT")

	// ── Kalshi ──
	setStr(&cfg.Kalshi.ApiKey, "UPDOWNARB_KALSHI_API_KEY")
	setStr(&cfg.Kalshi.RsaPrivateKeyPath, "UPDOWNARB_KALSHI_RSA_PRIVATE_KEY_PATH")
	setStr(&cfg.Kalshi.BaseURL, "UPDOWNARB_KALSHI_BASE_URL")
	setStr(&cfg.Kalshi.SeriesTicker, "UPDOWNARB_KALSHI_SERIES_TICKER")

	// ── Supabase ──
	setBool(&cfg.Supabase.Enabled, "UPDOWNARB_SUPABASE_ENABLED")
	setStr(&cfg.Supabase.DSN, "UPDOWNARB_SUPABASE_DSN")
	setStr(&cfg.Supabase.Host, "UPDOWNARB_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "UPDOWNARB_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "UPDOWNARB_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "UPDOWNARB_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "UPDOWNARB_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "UPDOWNARB_SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "UPDOWNARB_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "UPDOWNARB_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "UPDOWNARB_SUPABASE_RUN_MIGRATIONS")
	if os.Getenv("UPDOWNARB_SUPABASE_DSN") != "" {
		cfg.Supabase.Enabled = true
	}

	// ── SQLite ──
	setBool(&cfg.SQLite.Enabled, "UPDOWNARB_SQLITE_ENABLED")
	setStr(&cfg.SQLite.Path, "UPDOWNARB_SQLITE_PATH")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "UPDOWNARB_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "UPDOWNARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "UPDOWNARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "UPDOWNARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "UPDOWNARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "UPDOWNARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "UPDOWNARB_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "UPDOWNARB_REDIS_KEY_PREFIX")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "UPDOWNARB_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "UPDOWNARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "UPDOWNARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "UPDOWNARB_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "UPDOWNARB_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "UPDOWNARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "UPDOWNARB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "UPDOWNARB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "UPDOWNARB_S3_FORCE_PATH_STYLE")

	// ── Kafka ──
	setBool(&cfg.Kafka.Enabled, "UPDOWNARB_KAFKA_ENABLED")
	setStringSlice(&cfg.Kafka.Brokers, "UPDOWNARB_KAFKA_BROKERS")
	setStr(&cfg.Kafka.Topic, "UPDOWNARB_KAFKA_TOPIC")

	// ── Arbitrage ──
	setDuration(&cfg.Arbitrage.ScanInterval, "UPDOWNARB_ARBITRAGE_SCAN_INTERVAL")
	setDuration(&cfg.Arbitrage.RedeemInterval, "UPDOWNARB_ARBITRAGE_REDEEM_INTERVAL")
	setFloat64(&cfg.Arbitrage.Threshold, "UPDOWNARB_ARBITRAGE_THRESHOLD")
	setFloat64(&cfg.Arbitrage.MinTradeAmount, "UPDOWNARB_ARBITRAGE_MIN_TRADE_AMOUNT")
	setFloat64(&cfg.Arbitrage.MaxTradeAmount, "UPDOWNARB_ARBITRAGE_MAX_TRADE_AMOUNT")
	setFloat64(&cfg.Arbitrage.TradePercentage, "UPDOWNARB_ARBITRAGE_TRADE_PERCENTAGE")
	setFloat64(&cfg.Arbitrage.AvailableBalance, "UPDOWNARB_ARBITRAGE_AVAILABLE_BALANCE")
	setDuration(&cfg.Arbitrage.MatchTolerance, "UPDOWNARB_ARBITRAGE_MATCH_TOLERANCE")
	setStr(&cfg.Arbitrage.SeriesTag, "UPDOWNARB_ARBITRAGE_SERIES_TAG")
	setFloat64(&cfg.Arbitrage.StaleTolerance, "UPDOWNARB_ARBITRAGE_STALE_TOLERANCE")
	setDuration(&cfg.Arbitrage.PerCallTimeout, "UPDOWNARB_ARBITRAGE_PER_CALL_TIMEOUT")
	setBool(&cfg.Arbitrage.UnwindEnabled, "UPDOWNARB_ARBITRAGE_UNWIND_ENABLED")
	setFloat64(&cfg.Arbitrage.UnwindSlippage, "UPDOWNARB_ARBITRAGE_UNWIND_SLIPPAGE")
	setDuration(&cfg.Arbitrage.ExpireAfter, "UPDOWNARB_ARBITRAGE_EXPIRE_AFTER")
	setDuration(&cfg.Arbitrage.SnapshotInterval, "UPDOWNARB_ARBITRAGE_SNAPSHOT_INTERVAL")
	setDuration(&cfg.Arbitrage.LockTTL, "UPDOWNARB_ARBITRAGE_LOCK_TTL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "UPDOWNARB_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "UPDOWNARB_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "UPDOWNARB_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "UPDOWNARB_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "UPDOWNARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "UPDOWNARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "UPDOWNARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "UPDOWNARB_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "UPDOWNARB_MODE")
	setStr(&cfg.LogLevel, "UPDOWNARB_LOG_LEVEL")
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
