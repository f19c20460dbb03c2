package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rileytg/puglies/internal/book"
	"github.com/rileytg/puglies/internal/bridge"
	"github.com/rileytg/puglies/internal/cache/redis"
	"github.com/rileytg/puglies/internal/config"
	"github.com/rileytg/puglies/internal/crypto"
	"github.com/rileytg/puglies/internal/domain"
	"github.com/rileytg/puglies/internal/feed"
	"github.com/rileytg/puglies/internal/platform/polymarket"
	"github.com/rileytg/puglies/internal/service"
	"github.com/rileytg/puglies/internal/store/postgres"
	"github.com/rileytg/puglies/internal/wsconn"
)

// Dependencies bundles everything the application lifecycle needs: the two
// feed managers, the consumer facade, and the optional collaborators. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Bridge   *bridge.Bridge
	Registry *book.Registry

	BooksFeed    *feed.Manager
	ActivityFeed *feed.Manager
	MarketData   *service.MarketData

	Metadata domain.MetadataService

	// Optional write-through sinks; nil when their backend is disabled.
	PriceCache domain.PriceCache
	BookCache  domain.BookCache
	History    domain.PriceHistoryStore
	Mirror     *Mirror
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

	deps := &Dependencies{}

	// --- Sync core ---
	transport := wsconn.NewWebsocketTransport()
	deps.Bridge = bridge.New()
	closers = append(closers, deps.Bridge.Close)
	deps.Registry = book.NewRegistry()

	connCfg := wsconn.Config{
		BackoffBase: cfg.Feeds.BackoffBase.Duration,
		BackoffCap:  cfg.Feeds.BackoffCap.Duration,
		MaxAttempts: cfg.Feeds.MaxAttempts,
		PingPeriod:  cfg.Feeds.PingPeriod.Duration,
	}

	// The order-book feed authenticates only when a wallet is configured;
	// public markets work without one.
	var auth feed.AuthProvider
	if cfg.Wallet.PrivateKey != "" || cfg.Wallet.EncryptedKeyPath != "" {
		key, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: load wallet key: %w", err)
		}
		signer, err := crypto.NewSigner(key, cfg.Polymarket.ChainID)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: wallet signer: %w", err)
		}
		auth = polymarket.NewClobClient(cfg.Polymarket.ClobHost, signer)
	}

	booksConn := connCfg
	booksConn.URL = cfg.Polymarket.ClobWsURL
	deps.BooksFeed = feed.NewManager(feed.OrderBookFeed, feed.ClobCodec{}, transport, deps.Bridge, feed.Options{
		Conn:           booksConn,
		Books:          deps.Registry,
		Auth:           auth,
		CoalesceWindow: cfg.Feeds.CoalesceWindow.Duration,
	}, logger)

	activityConn := connCfg
	activityConn.URL = cfg.Polymarket.RtdsWsURL
	deps.ActivityFeed = feed.NewManager(feed.ActivityFeed, feed.RtdsCodec{}, transport, deps.Bridge, feed.Options{
		Conn: activityConn,
	}, logger)

	deps.MarketData = service.NewMarketData(deps.BooksFeed, deps.ActivityFeed, deps.Registry, deps.Bridge, logger)

	// --- Metadata ---
	deps.Metadata = polymarket.NewGammaClient(cfg.Polymarket.GammaHost)

	// --- Redis mirror (optional) ---
	if cfg.Redis.Addr != "" {
		rdb, err := redis.Dial(ctx, redis.Config{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = rdb.Close() })

		deps.PriceCache = redis.NewPriceCache(rdb)
		deps.BookCache = redis.NewBookCache(rdb, 0)
	}

	// --- PostgreSQL price history (optional) ---
	if cfg.Postgres.Enabled() {
		pgClient, err := postgres.New(ctx, postgres.Config{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}

		deps.History = postgres.NewPriceHistoryStore(pgClient.Pool())
	}

	// The mirror drains bridge events into whichever sinks are enabled,
	// keeping storage out of the feed goroutines.
	if deps.PriceCache != nil || deps.BookCache != nil || deps.History != nil {
		deps.Mirror = NewMirror(MirrorSinks{
			Prices:  deps.PriceCache,
			Books:   deps.BookCache,
			History: deps.History,
		}, deps.Registry, logger)
		off := deps.Mirror.Attach(deps.Bridge)
		closers = append(closers, off)
	}

	return deps, cleanup, nil
}
