package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/updownarb/internal/arbitrage"
	s3blob "github.com/alanyoungcy/updownarb/internal/blob/s3"
	"github.com/alanyoungcy/updownarb/internal/cache/redis"
	"github.com/alanyoungcy/updownarb/internal/config"
	"github.com/alanyoungcy/updownarb/internal/crypto"
	"github.com/alanyoungcy/updownarb/internal/domain"
	"github.com/alanyoungcy/updownarb/internal/executor"
	"github.com/alanyoungcy/updownarb/internal/ledger"
	"github.com/alanyoungcy/updownarb/internal/matcher"
	"github.com/alanyoungcy/updownarb/internal/notify"
	"github.com/alanyoungcy/updownarb/internal/pipeline"
	"github.com/alanyoungcy/updownarb/internal/platform/kalshi"
	"github.com/alanyoungcy/updownarb/internal/platform/polymarket"
	kafkaqueue "github.com/alanyoungcy/updownarb/internal/queue/kafka"
	"github.com/alanyoungcy/updownarb/internal/server/handler"
	"github.com/alanyoungcy/updownarb/internal/server/ws"
	"github.com/alanyoungcy/updownarb/internal/service"
	"github.com/alanyoungcy/updownarb/internal/store/postgres"
	"github.com/alanyoungcy/updownarb/internal/store/sqlite"
)

// Dependencies bundles everything the run modes need. It is constructed by
// Wire and torn down by the returned cleanup function. Bus, Locks, Archiver
// and Hub are nil when their backends are not configured.
type Dependencies struct {
	// Venues
	Polymarket *polymarket.Adapter
	Kalshi     *kalshi.Adapter

	// Engine
	Ledger    *ledger.Ledger
	Resolver  *matcher.Resolver
	Evaluator *arbitrage.Evaluator
	Executor  *executor.Executor
	Monitor   *service.ResolutionMonitor
	Events    *service.Broadcaster
	Archiver  *pipeline.Archiver

	// Infrastructure
	Bus    domain.SignalBus
	Locks  domain.LockManager
	Hub    *ws.Hub
	Health map[string]handler.HealthCheck

	StartedAt time.Time
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{
		Health:    make(map[string]handler.HealthCheck),
		StartedAt: time.Now().UTC(),
	}

	// --- Polymarket ---
	pm, closePM, err := wirePolymarket(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closePM)
	deps.Polymarket = pm

	// --- Kalshi ---
	kalshiClient := kalshi.NewClient(cfg.Kalshi.BaseURL, cfg.Kalshi.ApiKey)
	if cfg.Kalshi.RsaPrivateKeyPath != "" {
		pemBytes, err := os.ReadFile(cfg.Kalshi.RsaPrivateKeyPath)
		if err != nil {
			return fail(fmt.Errorf("wire: read kalshi key: %w", err))
		}
		if err := kalshiClient.SetRSAPrivateKey(pemBytes); err != nil {
			return fail(fmt.Errorf("wire: kalshi key: %w", err))
		}
	}
	deps.Kalshi = kalshi.NewAdapter(kalshiClient, kalshi.AdapterConfig{
		SeriesTicker: cfg.Kalshi.SeriesTicker,
		SeriesTag:    cfg.Arbitrage.SeriesTag,
	}, logger)

	// --- PostgreSQL (optional mirror and audit log) ---
	var (
		positionStore domain.PositionStore
		auditStore    domain.AuditStore
	)
	if cfg.Supabase.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Supabase.DSN,
			Host:     cfg.Supabase.Host,
			Port:     cfg.Supabase.Port,
			Database: cfg.Supabase.Database,
			User:     cfg.Supabase.User,
			Password: cfg.Supabase.Password,
			SSLMode:  cfg.Supabase.SSLMode,
			MaxConns: cfg.Supabase.PoolMaxConns,
			MinConns: cfg.Supabase.PoolMinConns,
		}, logger)
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Supabase.RunMigrations {
			if _, err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		pool := pgClient.Pool()
		positionStore = postgres.NewPositionStore(pool)
		auditStore = postgres.NewAuditStore(pool)
		deps.Health["postgres"] = pgClient.Ping
	}

	// --- SQLite (embedded mirror when postgres is off) ---
	if cfg.SQLite.Enabled {
		db, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return fail(fmt.Errorf("wire: %w", err))
		}
		closers = append(closers, func() { _ = db.Close() })

		positionStore = sqlite.NewPositionStore(db)
		auditStore = sqlite.NewAuditStore(db)
		deps.Health["sqlite"] = db.Ping
		logger.Info("sqlite position mirror opened", slog.String("path", db.Path()))
	}

	// --- Redis (optional lock and event bus) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Locks = redis.NewLockManager(redisClient)
		deps.Bus = redis.NewSignalBus(redisClient)
		deps.Health["redis"] = redisClient.Ping
	}

	// --- S3 blob storage (optional ledger snapshots) ---
	var (
		blobWriter domain.BlobWriter
		blobReader domain.BlobReader
	)
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			Prefix:         cfg.S3.Prefix,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		blobWriter = s3blob.NewWriter(s3Client)
		blobReader = s3blob.NewReader(s3Client)
		deps.Health["s3"] = s3Client.Health
	}

	// --- Ledger ---
	deps.Ledger = ledger.New(positionStore, logger)
	if err := restoreLedger(ctx, deps.Ledger, positionStore, blobReader, logger); err != nil {
		return fail(err)
	}
	if blobWriter != nil {
		deps.Archiver = pipeline.NewArchiver(blobWriter, deps.Ledger, cfg.Arbitrage.SnapshotInterval.Duration, logger)
	}

	// --- Dashboard hub ---
	if cfg.Server.Enabled {
		l := deps.Ledger
		deps.Hub = ws.NewHub(ws.Config{
			Mode:          cfg.Mode,
			StartedAt:     deps.StartedAt,
			OpenPositions: func() int { return len(l.ListActive()) },
		}, logger)
	}

	// --- Notifications and events ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	var notifier service.EventNotifier
	if len(senders) > 0 {
		notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	}
	// With a bus the hub relays the events channel, so the broadcaster
	// only feeds it directly when there is no bus.
	var hub service.EventHub
	if deps.Hub != nil && deps.Bus == nil {
		hub = deps.Hub
	}
	deps.Events = service.NewBroadcaster(deps.Bus, auditStore, notifier, hub, logger)
	if cfg.Kafka.Enabled {
		exporter, err := kafkaqueue.New(kafkaqueue.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		}, logger)
		if err != nil {
			return fail(fmt.Errorf("wire: %w", err))
		}
		closers = append(closers, func() { _ = exporter.Close() })
		deps.Events.WithExporter(exporter)
		deps.Health["kafka"] = exporter.Ping
	}
	closers = append(closers, deps.Events.Wait)

	// --- Engine ---
	deps.Resolver = matcher.NewResolver(matcher.Config{
		VenueA:    deps.Polymarket,
		VenueB:    deps.Kalshi,
		SeriesA:   cfg.Polymarket.SlugPrefix,
		SeriesB:   cfg.Kalshi.SeriesTicker,
		SeriesTag: cfg.Arbitrage.SeriesTag,
		Tolerance: cfg.Arbitrage.MatchTolerance.Duration,
	}, logger)
	deps.Evaluator = arbitrage.NewEvaluator(cfg.Arbitrage.Threshold, cfg.Arbitrage.StaleTolerance)
	deps.Executor = executor.New(deps.Polymarket, deps.Kalshi, executor.Config{
		MinTradeAmount: cfg.Arbitrage.MinTradeAmount,
		MaxTradeAmount: cfg.Arbitrage.MaxTradeAmount,
		PerCallTimeout: cfg.Arbitrage.PerCallTimeout.Duration,
		UnwindEnabled:  cfg.Arbitrage.UnwindEnabled,
		UnwindSlippage: cfg.Arbitrage.UnwindSlippage,
	}, logger)
	deps.Monitor = service.NewResolutionMonitor(deps.Polymarket, deps.Kalshi, deps.Ledger, deps.Events, service.MonitorConfig{
		CallTimeout: cfg.Arbitrage.PerCallTimeout.Duration,
		ExpireAfter: cfg.Arbitrage.ExpireAfter.Duration,
	}, logger)

	return deps, cleanup, nil
}

// wirePolymarket builds the Polymarket adapter. Without a wallet the
// adapter is read-only: quotes work but orders and redemptions fail with
// domain.ErrUnauthorized.
func wirePolymarket(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*polymarket.Adapter, func(), error) {
	closeFn := func() {}

	exchange := polymarket.DefaultExchangeAddress
	if cfg.Polymarket.ExchangeAddress != "" {
		exchange = common.HexToAddress(cfg.Polymarket.ExchangeAddress)
	}

	gamma := polymarket.NewGammaClient(cfg.Polymarket.GammaHost)

	hasKey := cfg.Wallet.PrivateKey != "" || cfg.Wallet.EncryptedKeyPath != ""
	if !hasKey {
		clob := polymarket.NewClobClient(cfg.Polymarket.ClobHost, nil)
		return polymarket.NewAdapter(gamma, clob, nil, nil, adapterConfig(cfg, exchange), logger), closeFn, nil
	}

	key, err := crypto.LoadKey(crypto.KeySource{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wire: wallet: %w", err)
	}
	signer := crypto.NewSigner(key, int64(cfg.Polymarket.ChainID), exchange)
	logger.Info("wallet loaded", slog.String("address", signer.Address().Hex()))

	clob := polymarket.NewClobClient(cfg.Polymarket.ClobHost, signer)
	if _, err := clob.DeriveAPIKey(ctx); err != nil {
		if cfg.NeedsWallet() {
			return nil, nil, fmt.Errorf("wire: derive clob api key: %w", err)
		}
		logger.Warn("derive clob api key failed, orders disabled", slog.String("error", err.Error()))
	}

	var redeemer polymarket.Redeemer
	if cfg.Polymarket.RPCURL != "" {
		ctfCfg := polymarket.CTFConfig{
			RPCURL:      cfg.Polymarket.RPCURL,
			ChainID:     int64(cfg.Polymarket.ChainID),
			CTF:         polymarket.DefaultCTFAddress,
			Collateral:  polymarket.DefaultCollateralAddress,
			WaitTimeout: cfg.Polymarket.RedeemTimeout.Duration,
		}
		if cfg.Polymarket.CTFAddress != "" {
			ctfCfg.CTF = common.HexToAddress(cfg.Polymarket.CTFAddress)
		}
		if cfg.Polymarket.CollateralAddress != "" {
			ctfCfg.Collateral = common.HexToAddress(cfg.Polymarket.CollateralAddress)
		}
		ctf, err := polymarket.DialCTF(ctx, ctfCfg, key, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("wire: %w", err)
		}
		redeemer = ctf
		closeFn = ctf.Close
	}

	return polymarket.NewAdapter(gamma, clob, signer, redeemer, adapterConfig(cfg, exchange), logger), closeFn, nil
}

func adapterConfig(cfg *config.Config, exchange common.Address) polymarket.AdapterConfig {
	return polymarket.AdapterConfig{
		SlugPrefix: cfg.Polymarket.SlugPrefix,
		SeriesTag:  cfg.Arbitrage.SeriesTag,
		Lookahead:  cfg.Polymarket.Lookahead,
		Exchange:   exchange,
		OrderType:  cfg.Polymarket.OrderType,
		Retention:  cfg.Arbitrage.ExpireAfter.Duration,
	}
}

// restoreLedger reloads positions from the mirror store (postgres or
// sqlite) or, without one, from the newest ledger snapshot in object
// storage.
func restoreLedger(ctx context.Context, l *ledger.Ledger, store domain.PositionStore, reader domain.BlobReader, logger *slog.Logger) error {
	switch {
	case store != nil:
		n, err := l.Restore(ctx)
		if err != nil {
			return fmt.Errorf("wire: %w", err)
		}
		logger.Info("ledger restored from mirror store", slog.Int("positions", n))
	case reader != nil:
		snap, err := pipeline.LoadLatestSnapshot(ctx, reader)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("wire: load ledger snapshot: %w", err)
		}
		n := l.Load(snap.Positions)
		logger.Info("ledger restored from snapshot",
			slog.Int("positions", n),
			slog.Time("taken_at", snap.TakenAt),
		)
	}
	return nil
}
