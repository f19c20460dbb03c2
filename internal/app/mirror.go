package app

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rileytg/puglies/internal/book"
	"github.com/rileytg/puglies/internal/bridge"
	"github.com/rileytg/puglies/internal/domain"
)

const (
	// mirrorDepth bounds how many levels per side are mirrored to the book
	// cache.
	mirrorDepth = 10

	// mirrorQueueSize bounds the backlog between the feed goroutines and the
	// mirror worker. Events beyond it are dropped, never blocked on.
	mirrorQueueSize = 1024

	// mirrorWriteTimeout caps a single sink write.
	mirrorWriteTimeout = 2 * time.Second
)

// MirrorSinks lists the optional write-through targets. Nil fields are
// skipped.
type MirrorSinks struct {
	Prices  domain.PriceCache
	Books   domain.BookCache
	History domain.PriceHistoryStore
}

// Mirror drains market-data events from the bridge into external sinks
// (Redis caches, the price-history database). Bridge handlers run on the feed
// goroutines, so the mirror only enqueues there and does all I/O on its own
// worker; when the queue is full it drops rather than stall the feed.
type Mirror struct {
	sinks    MirrorSinks
	registry *book.Registry
	logger   *slog.Logger

	events  chan domain.Event
	dropped atomic.Int64
}

// NewMirror creates a Mirror writing to the given sinks. Book-delta events
// are mirrored by re-reading the registry, so the registry must be the one
// the feeds write to.
func NewMirror(sinks MirrorSinks, registry *book.Registry, logger *slog.Logger) *Mirror {
	return &Mirror{
		sinks:    sinks,
		registry: registry,
		logger:   logger.With(slog.String("component", "mirror")),
		events:   make(chan domain.Event, mirrorQueueSize),
	}
}

// Attach subscribes the mirror to the bridge and returns the unsubscribe
// function.
func (m *Mirror) Attach(br *bridge.Bridge) (off func()) {
	classes := []domain.EventClass{
		domain.EventBookSnapshot,
		domain.EventBookDelta,
		domain.EventPriceUpdate,
	}
	return br.SubscribeAll(classes, m.enqueue)
}

func (m *Mirror) enqueue(ev domain.Event) {
	select {
	case m.events <- ev:
	default:
		if n := m.dropped.Add(1); n%1000 == 1 {
			m.logger.Warn("mirror queue full, dropping events",
				slog.Int64("dropped_total", n))
		}
	}
}

// Dropped reports how many events were discarded because the queue was full.
func (m *Mirror) Dropped() int64 {
	return m.dropped.Load()
}

// Run processes queued events until the context is cancelled.
func (m *Mirror) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-m.events:
			m.apply(ctx, ev)
		}
	}
}

func (m *Mirror) apply(ctx context.Context, ev domain.Event) {
	ctx, cancel := context.WithTimeout(ctx, mirrorWriteTimeout)
	defer cancel()

	switch e := ev.(type) {
	case *domain.BookSnapshot:
		m.mirrorTop(ctx, e.AssetID, e.Timestamp)
	case *domain.BookDelta:
		m.mirrorTop(ctx, e.AssetID, e.Timestamp)
	case *domain.PriceUpdate:
		m.mirrorPrice(ctx, e)
	}
}

func (m *Mirror) mirrorTop(ctx context.Context, assetID string, ts time.Time) {
	if m.sinks.Books == nil {
		return
	}
	b, ok := m.registry.Get(assetID)
	if !ok {
		return
	}
	bids, asks := b.Top(mirrorDepth)
	if err := m.sinks.Books.SetTop(ctx, assetID, bids, asks, ts); err != nil {
		m.logger.Warn("mirror top-of-book",
			slog.String("asset_id", assetID),
			slog.String("error", err.Error()))
	}
}

func (m *Mirror) mirrorPrice(ctx context.Context, upd *domain.PriceUpdate) {
	key := upd.AssetID
	if key == "" {
		key = upd.Market
	}
	if key == "" {
		return
	}

	if m.sinks.Prices != nil {
		if err := m.sinks.Prices.SetPrice(ctx, key, *upd); err != nil {
			m.logger.Warn("mirror price",
				slog.String("asset_id", key),
				slog.String("error", err.Error()))
		}
	}

	// History keeps only best-bid/ask observations; last-price ticks from
	// the activity feed have no book context worth charting against.
	if m.sinks.History != nil && upd.AssetID != "" && (upd.BestBid != "" || upd.BestAsk != "") {
		pt := domain.PricePoint{
			AssetID:    upd.AssetID,
			BestBid:    upd.BestBid,
			BestAsk:    upd.BestAsk,
			ObservedAt: upd.Timestamp,
		}
		if err := m.sinks.History.Append(ctx, pt); err != nil {
			m.logger.Warn("record price history",
				slog.String("asset_id", upd.AssetID),
				slog.String("error", err.Error()))
		}
	}
}
