package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/rileytg/puglies/internal/config"
	"github.com/rileytg/puglies/internal/domain"
	"github.com/rileytg/puglies/internal/service"
)

// BootstrapWatchlist registers the configured standing interest: token ids
// subscribe directly, slugs are resolved through the metadata service first.
// Resolution failures are logged and skipped so one renamed market cannot
// keep the rest of the watchlist dark. The returned release drops the
// watchlist interest again.
func BootstrapWatchlist(ctx context.Context, cfg config.WatchlistConfig, meta domain.MetadataService, md *service.MarketData, logger *slog.Logger) (release func()) {
	logger = logger.With(slog.String("component", "watchlist"))

	tokens := append([]string(nil), cfg.TokenIDs...)
	for _, slug := range cfg.Slugs {
		ids, err := resolveSlug(ctx, meta, slug, cfg.ResolveTTL.Duration)
		if err != nil {
			logger.Warn("resolve watchlist slug",
				slog.String("slug", slug),
				slog.String("error", err.Error()))
			continue
		}
		tokens = append(tokens, ids...)
	}

	var releases []func()
	if len(tokens) > 0 {
		releases = append(releases, md.WatchBooks(tokens...))
		logger.Info("watching books", slog.Int("tokens", len(tokens)))
	}
	if len(cfg.MarketIDs) > 0 {
		releases = append(releases, md.WatchMarkets(cfg.MarketIDs...))
		logger.Info("watching market activity", slog.Int("markets", len(cfg.MarketIDs)))
	}

	return func() {
		for _, r := range releases {
			r()
		}
	}
}

func resolveSlug(ctx context.Context, meta domain.MetadataService, slug string, timeout time.Duration) ([]string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	mkt, err := meta.GetMarketBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, id := range mkt.TokenIDs {
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
