// Package service exposes the consumer-facing market-data API: watch
// instruments, read books, register event handlers. Presentation-layer state
// holders talk to this facade and never see feeds or connections directly.
package service

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/rileytg/puglies/internal/book"
	"github.com/rileytg/puglies/internal/bridge"
	"github.com/rileytg/puglies/internal/domain"
	"github.com/rileytg/puglies/internal/feed"
)

// MarketData is the facade over the two feed managers and the shared book
// registry. Construct it once in the composition root.
type MarketData struct {
	books    *feed.Manager
	activity *feed.Manager
	registry *book.Registry
	bridge   *bridge.Bridge
	logger   *slog.Logger
}

func NewMarketData(books, activity *feed.Manager, registry *book.Registry, br *bridge.Bridge, logger *slog.Logger) *MarketData {
	return &MarketData{
		books:    books,
		activity: activity,
		registry: registry,
		bridge:   br,
		logger:   logger.With(slog.String("component", "marketdata")),
	}
}

// WatchBooks registers interest in orderbooks for the given outcome token
// ids. The returned release drops that interest; calling it more than once
// is a no-op.
func (s *MarketData) WatchBooks(tokenIDs ...string) (release func()) {
	s.books.Subscribe(tokenIDs...)
	var once sync.Once
	return func() {
		once.Do(func() { s.books.Unsubscribe(tokenIDs...) })
	}
}

// WatchMarkets registers interest in price/trade activity for the given
// market ids on the unauthenticated activity feed.
func (s *MarketData) WatchMarkets(marketIDs ...string) (release func()) {
	s.activity.Subscribe(marketIDs...)
	var once sync.Once
	return func() {
		once.Do(func() { s.activity.Unsubscribe(marketIDs...) })
	}
}

// On registers a handler for the given event classes and returns its
// unsubscribe function. Pass domain.AllEventClasses to hear everything.
func (s *MarketData) On(classes []domain.EventClass, fn bridge.Handler) (off func()) {
	return s.bridge.SubscribeAll(classes, fn)
}

// Top returns up to maxLevels levels per side of a token's book, plus
// whether the values are stale (feed disconnected since last update). ok is
// false when no snapshot has arrived for the token.
func (s *MarketData) Top(tokenID string, maxLevels int) (bids, asks []domain.PriceLevel, stale, ok bool) {
	b, found := s.registry.Get(tokenID)
	if !found {
		return nil, nil, false, false
	}
	bids, asks = b.Top(maxLevels)
	return bids, asks, b.Stale(), true
}

// States reports the current connection state of every feed.
func (s *MarketData) States() map[string]domain.ConnState {
	return map[string]domain.ConnState{
		feed.OrderBookFeed: s.books.State(),
		feed.ActivityFeed:  s.activity.State(),
	}
}

// Reset asks a feed that has given up (Failed) to start a fresh connect
// cycle. Resets in any other state are dropped by the connection machine.
func (s *MarketData) Reset(feedName string) error {
	switch feedName {
	case feed.OrderBookFeed:
		s.books.Reset()
	case feed.ActivityFeed:
		s.activity.Reset()
	default:
		return fmt.Errorf("service: reset %q: %w", feedName, domain.ErrNotFound)
	}
	s.logger.Info("reset requested", slog.String("feed", feedName))
	return nil
}
