// Package app wires the market-data backend together: the two feed managers,
// the consumer facade, the optional Redis mirror and price-history recorder,
// and the configured watchlist. It owns the application lifecycle from wiring
// to shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/rileytg/puglies/internal/config"
)

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, starts the feed
// managers and the mirror worker, registers the configured watchlist, and
// blocks until the context is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting market-data backend",
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return deps.BooksFeed.Run(gctx) })
	g.Go(func() error { return deps.ActivityFeed.Run(gctx) })
	if deps.Mirror != nil {
		g.Go(func() error { return deps.Mirror.Run(gctx) })
	}

	release := BootstrapWatchlist(gctx, a.cfg.Watchlist, deps.Metadata, deps.MarketData, a.logger)
	defer release()

	return g.Wait()
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
