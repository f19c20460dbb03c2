package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rileytg/puglies/internal/book"
	"github.com/rileytg/puglies/internal/bridge"
	"github.com/rileytg/puglies/internal/config"
	"github.com/rileytg/puglies/internal/domain"
	"github.com/rileytg/puglies/internal/feed"
	"github.com/rileytg/puglies/internal/service"
	"github.com/rileytg/puglies/internal/wsconn"
)

type fakeMetadata struct {
	markets map[string]domain.Market
}

func (f *fakeMetadata) GetMarket(_ context.Context, id string) (domain.Market, error) {
	m, ok := f.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (f *fakeMetadata) GetMarketBySlug(_ context.Context, slug string) (domain.Market, error) {
	for _, m := range f.markets {
		if m.Slug == slug {
			return m, nil
		}
	}
	return domain.Market{}, domain.ErrNotFound
}

// quietConn blocks reads until closed.
type quietConn struct {
	closed chan struct{}
	once   sync.Once
}

func (c *quietConn) ReadMessage() ([]byte, error) {
	<-c.closed
	return nil, errors.New("closed")
}
func (c *quietConn) WriteJSON(any) error { return nil }
func (c *quietConn) Ping() error         { return nil }
func (c *quietConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type quietTransport struct{}

func (quietTransport) Dial(context.Context, string) (wsconn.Conn, error) {
	return &quietConn{closed: make(chan struct{})}, nil
}

func newTestFacade(t *testing.T) (*service.MarketData, *feed.Manager, *feed.Manager) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	br := bridge.New()
	registry := book.NewRegistry()
	connCfg := wsconn.Config{URL: "wss://feed.test/ws", BackoffBase: time.Millisecond}

	books := feed.NewManager(feed.OrderBookFeed, feed.ClobCodec{}, quietTransport{}, br,
		feed.Options{Conn: connCfg, Books: registry}, logger)
	activity := feed.NewManager(feed.ActivityFeed, feed.RtdsCodec{}, quietTransport{}, br,
		feed.Options{Conn: connCfg}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	for _, m := range []*feed.Manager{books, activity} {
		m := m
		go func() { _ = m.Run(ctx) }()
	}
	t.Cleanup(cancel)

	return service.NewMarketData(books, activity, registry, br, logger), books, activity
}

func TestBootstrapWatchlistResolvesSlugs(t *testing.T) {
	md, books, activity := newTestFacade(t)

	meta := &fakeMetadata{markets: map[string]domain.Market{
		"m1": {
			ID:       "m1",
			Slug:     "will-it-rain",
			TokenIDs: [2]string{"tok-yes", "tok-no"},
		},
	}}

	release := BootstrapWatchlist(context.Background(), config.WatchlistConfig{
		Slugs:     []string{"will-it-rain", "no-such-market"},
		TokenIDs:  []string{"tok-extra"},
		MarketIDs: []string{"m1"},
	}, meta, md, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer release()

	assert.ElementsMatch(t, []string{"tok-yes", "tok-no", "tok-extra"}, books.Interest())
	assert.ElementsMatch(t, []string{"m1"}, activity.Interest())

	release()
	assert.Empty(t, books.Interest())
	assert.Empty(t, activity.Interest())
}

func TestBootstrapWatchlistEmptyConfig(t *testing.T) {
	md, books, activity := newTestFacade(t)

	release := BootstrapWatchlist(context.Background(), config.WatchlistConfig{},
		&fakeMetadata{}, md, slog.New(slog.NewTextHandler(io.Discard, nil)))
	release()

	assert.Empty(t, books.Interest())
	assert.Empty(t, activity.Interest())
}
