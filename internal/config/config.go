// Package config defines the engine configuration, its defaults and
// validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then overridden by UPDOWNARB_* environment variables.
type Config struct {
	Wallet     WalletConfig     `toml:"wallet"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Kalshi     KalshiConfig     `toml:"kalshi"`
	Supabase   SupabaseConfig   `toml:"supabase"`
	SQLite     SQLiteConfig     `toml:"sqlite"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Kafka      KafkaConfig      `toml:"kafka"`
	Arbitrage  ArbitrageConfig  `toml:"arbitrage"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// WalletConfig holds the Polygon wallet used for Polymarket orders and CTF
// redemptions. Either PrivateKey or EncryptedKeyPath is set.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PolymarketConfig holds Polymarket endpoints, contracts and market naming.
type PolymarketConfig struct {
	GammaHost         string   `toml:"gamma_host"`
	ClobHost          string   `toml:"clob_host"`
	RPCURL            string   `toml:"rpc_url"`
	ChainID           int      `toml:"chain_id"`
	SlugPrefix        string   `toml:"slug_prefix"`
	Lookahead         int      `toml:"lookahead"`
	OrderType         string   `toml:"order_type"`
	ExchangeAddress   string   `toml:"exchange_address"`
	CTFAddress        string   `toml:"ctf_address"`
	CollateralAddress string   `toml:"collateral_address"`
	RedeemTimeout     duration `toml:"redeem_timeout"`
}

// KalshiConfig holds Kalshi API credentials and the listing series.
type KalshiConfig struct {
	ApiKey            string `toml:"api_key"`
	RsaPrivateKeyPath string `toml:"rsa_private_key_path"`
	BaseURL           string `toml:"base_url"`
	SeriesTicker      string `toml:"series_ticker"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters. The
// position mirror and audit log are skipped unless Enabled.
type SupabaseConfig struct {
	Enabled       bool   `toml:"enabled"`
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

// SQLiteConfig configures the embedded position mirror used instead of
// Supabase on single-host deployments.
type SQLiteConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// RedisConfig holds Redis connection parameters for the market lock and
// the event bus.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// S3Config holds object storage parameters for ledger snapshots.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// KafkaConfig holds the brokers and topic lifecycle events are exported to.
type KafkaConfig struct {
	Enabled bool     `toml:"enabled"`
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

// ArbitrageConfig holds the detection, sizing and scheduling parameters.
// Prices and the threshold are on the 0-100 scale.
type ArbitrageConfig struct {
	ScanInterval     duration `toml:"scan_interval"`
	RedeemInterval   duration `toml:"redeem_interval"`
	Threshold        float64  `toml:"threshold"`
	MinTradeAmount   float64  `toml:"min_trade_amount"`
	MaxTradeAmount   float64  `toml:"max_trade_amount"`
	TradePercentage  float64  `toml:"trade_percentage"`
	AvailableBalance float64  `toml:"available_balance"`
	MatchTolerance   duration `toml:"match_tolerance"`
	SeriesTag        string   `toml:"series_tag"`
	StaleTolerance   float64  `toml:"stale_tolerance"`
	PerCallTimeout   duration `toml:"per_call_timeout"`
	UnwindEnabled    bool     `toml:"unwind_enabled"`
	UnwindSlippage   float64  `toml:"unwind_slippage"`
	ExpireAfter      duration `toml:"expire_after"`
	SnapshotInterval duration `toml:"snapshot_interval"`
	LockTTL          duration `toml:"lock_ttl"`
}

// duration wraps time.Duration so TOML strings like "5s" decode.
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials and the event names
// worth a message.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Run modes.
const (
	ModeTrade   = "trade"
	ModeMonitor = "monitor"
	ModeRedeem  = "redeem"
)

// Defaults returns a Config populated with the values in
// configs/example.toml.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			GammaHost:     "https://gamma-api.polymarket.com",
			ClobHost:      "https://clob.polymarket.com",
			ChainID:       137,
			SlugPrefix:    "btc-updown-15m",
			Lookahead:     1,
			OrderType:     "FOK",
			RedeemTimeout: duration{2 * time.Minute},
		},
		Kalshi: KalshiConfig{
			BaseURL:      "https://api.elections.kalshi.com/trade-api/v2",
			SeriesTicker: "KXBTC15M",
		},
		Supabase: SupabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		SQLite: SQLiteConfig{
			Path: "data/updownarb.db",
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			KeyPrefix:  "updownarb:",
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "updownarb",
			ForcePathStyle: true,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "updownarb.events",
		},
		Arbitrage: ArbitrageConfig{
			ScanInterval:     duration{5 * time.Second},
			RedeemInterval:   duration{30 * time.Second},
			Threshold:        90,
			MinTradeAmount:   1,
			MaxTradeAmount:   50,
			TradePercentage:  0.1,
			AvailableBalance: 100,
			MatchTolerance:   duration{time.Minute},
			SeriesTag:        "BTC-15M",
			StaleTolerance:   2,
			PerCallTimeout:   duration{10 * time.Second},
			UnwindEnabled:    true,
			UnwindSlippage:   3,
			ExpireAfter:      duration{24 * time.Hour},
			SnapshotInterval: duration{15 * time.Minute},
			LockTTL:          duration{time.Minute},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events: []string{"position_opened", "position_partial", "position_redeemed", "position_expired", "hedge_failed"},
		},
		Mode:     ModeTrade,
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	ModeTrade:   true,
	ModeMonitor: true,
	ModeRedeem:  true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// NeedsWallet reports whether the mode signs Polymarket orders or
// redemption transactions.
func (c *Config) NeedsWallet() bool {
	m := strings.ToLower(c.Mode)
	return m == ModeTrade || m == ModeRedeem
}

// Validate checks Config for invalid or missing values and returns one
// error listing every problem found.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if !validModes[strings.ToLower(c.Mode)] {
		add("unknown mode %q (valid: trade, monitor, redeem)", c.Mode)
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		add("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}

	if c.NeedsWallet() {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			add("wallet: either private_key or encrypted_key_path must be set for mode %s", c.Mode)
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			add("wallet: key_password is required when encrypted_key_path is set")
		}
		if c.Polymarket.RPCURL == "" {
			add("polymarket: rpc_url is required for mode %s", c.Mode)
		}
	}

	if c.Polymarket.GammaHost == "" || c.Polymarket.ClobHost == "" {
		add("polymarket: gamma_host and clob_host must not be empty")
	}
	if c.Polymarket.ChainID <= 0 {
		add("polymarket: chain_id must be positive")
	}
	if c.Polymarket.SlugPrefix == "" {
		add("polymarket: slug_prefix must not be empty")
	}
	if c.Polymarket.Lookahead < 0 {
		add("polymarket: lookahead must be >= 0")
	}
	switch strings.ToUpper(c.Polymarket.OrderType) {
	case "FOK", "FAK":
	default:
		add("polymarket: order_type must be FOK or FAK, got %q", c.Polymarket.OrderType)
	}
	for name, addr := range map[string]string{
		"exchange_address":   c.Polymarket.ExchangeAddress,
		"ctf_address":        c.Polymarket.CTFAddress,
		"collateral_address": c.Polymarket.CollateralAddress,
	} {
		if addr != "" && !common.IsHexAddress(addr) {
			add("polymarket: %s %q is not a hex address", name, addr)
		}
	}

	if c.Kalshi.ApiKey == "" || c.Kalshi.RsaPrivateKeyPath == "" {
		add("kalshi: api_key and rsa_private_key_path are required")
	}
	if c.Kalshi.BaseURL == "" {
		add("kalshi: base_url must not be empty")
	}

	c.validateArbitrage(add)

	if c.Supabase.Enabled {
		if strings.TrimSpace(c.Supabase.DSN) == "" {
			if c.Supabase.Host == "" {
				add("supabase: host must not be empty (or set supabase.dsn)")
			}
			if c.Supabase.Port <= 0 || c.Supabase.Port > 65535 {
				add("supabase: port must be 1-65535, got %d", c.Supabase.Port)
			}
			if c.Supabase.Database == "" {
				add("supabase: database must not be empty")
			}
		}
		if c.Supabase.PoolMaxConns < 1 {
			add("supabase: pool_max_conns must be >= 1")
		}
		if c.Supabase.PoolMinConns < 0 || c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
			add("supabase: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	if c.SQLite.Enabled {
		if c.Supabase.Enabled {
			add("sqlite: cannot be enabled together with supabase")
		}
		if c.SQLite.Path == "" {
			add("sqlite: path must not be empty")
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			add("redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			add("redis: pool_size must be >= 1")
		}
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			add("s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			add("s3: region must not be empty")
		}
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			add("kafka: brokers must not be empty")
		}
		if c.Kafka.Topic == "" {
			add("kafka: topic must not be empty")
		}
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		add("server: port must be 1-65535, got %d", c.Server.Port)
	}

	if c.Notify.TelegramToken != "" && c.Notify.TelegramChatID == "" {
		add("notify: telegram_chat_id is required with telegram_token")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (c *Config) validateArbitrage(add func(string, ...any)) {
	a := c.Arbitrage
	if a.ScanInterval.Duration <= 0 || a.RedeemInterval.Duration <= 0 {
		add("arbitrage: scan_interval and redeem_interval must be > 0")
	}
	if a.Threshold <= 0 || a.Threshold >= 100 {
		add("arbitrage: threshold must be in (0, 100), got %v", a.Threshold)
	}
	if a.MinTradeAmount < 1 {
		add("arbitrage: min_trade_amount must be at least one contract, got %v", a.MinTradeAmount)
	}
	if a.MaxTradeAmount < a.MinTradeAmount {
		add("arbitrage: max_trade_amount must be >= min_trade_amount")
	}
	if a.TradePercentage <= 0 || a.TradePercentage > 1 {
		add("arbitrage: trade_percentage must be in (0, 1], got %v", a.TradePercentage)
	}
	if a.AvailableBalance <= 0 {
		add("arbitrage: available_balance must be > 0")
	}
	if a.MatchTolerance.Duration < 0 {
		add("arbitrage: match_tolerance must be >= 0")
	}
	if a.SeriesTag == "" {
		add("arbitrage: series_tag must not be empty")
	}
	if a.StaleTolerance < 0 || a.UnwindSlippage < 0 {
		add("arbitrage: stale_tolerance and unwind_slippage must be >= 0")
	}
	if a.PerCallTimeout.Duration <= 0 {
		add("arbitrage: per_call_timeout must be > 0")
	}
	if a.ExpireAfter.Duration < 0 || a.SnapshotInterval.Duration < 0 || a.LockTTL.Duration < 0 {
		add("arbitrage: expire_after, snapshot_interval and lock_ttl must be >= 0")
	}
}
