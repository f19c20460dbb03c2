package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileytg/puglies/internal/book"
	"github.com/rileytg/puglies/internal/bridge"
	"github.com/rileytg/puglies/internal/domain"
	"github.com/rileytg/puglies/internal/feed"
	"github.com/rileytg/puglies/internal/wsconn"
)

// idleConn blocks reads until closed; enough for facade-level tests.
type idleConn struct {
	closed chan struct{}
	once   sync.Once
}

func (c *idleConn) ReadMessage() ([]byte, error) {
	<-c.closed
	return nil, errors.New("closed")
}
func (c *idleConn) WriteJSON(any) error { return nil }
func (c *idleConn) Ping() error         { return nil }
func (c *idleConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type idleTransport struct{}

func (idleTransport) Dial(context.Context, string) (wsconn.Conn, error) {
	return &idleConn{closed: make(chan struct{})}, nil
}

func newFacade(t *testing.T) (*MarketData, *book.Registry) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	br := bridge.New()
	registry := book.NewRegistry()
	cfg := wsconn.Config{URL: "wss://feed.test/ws", BackoffBase: time.Millisecond}

	books := feed.NewManager(feed.OrderBookFeed, feed.ClobCodec{}, idleTransport{}, br,
		feed.Options{Conn: cfg, Books: registry}, logger)
	activity := feed.NewManager(feed.ActivityFeed, feed.RtdsCodec{}, idleTransport{}, br,
		feed.Options{Conn: cfg}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	for _, m := range []*feed.Manager{books, activity} {
		m := m
		go func() { _ = m.Run(ctx) }()
	}
	t.Cleanup(cancel)

	return NewMarketData(books, activity, registry, br, logger), registry
}

func TestTopForUnknownToken(t *testing.T) {
	md, _ := newFacade(t)
	_, _, _, ok := md.Top("tok-a", 5)
	assert.False(t, ok)
}

func TestTopReflectsRegistry(t *testing.T) {
	md, registry := newFacade(t)

	b := registry.GetOrCreate("tok-a")
	require.NoError(t, b.ApplySnapshot(
		[]domain.PriceLevel{{Price: "0.50", Size: "100"}, {Price: "0.49", Size: "50"}},
		[]domain.PriceLevel{{Price: "0.51", Size: "80"}},
		time.UnixMilli(1000),
	))

	bids, asks, stale, ok := md.Top("tok-a", 1)
	require.True(t, ok)
	assert.False(t, stale)
	assert.Equal(t, []domain.PriceLevel{{Price: "0.50", Size: "100"}}, bids)
	assert.Equal(t, []domain.PriceLevel{{Price: "0.51", Size: "80"}}, asks)

	b.MarkStale()
	_, _, stale, ok = md.Top("tok-a", 1)
	require.True(t, ok)
	assert.True(t, stale)
}

func TestWatchBooksReleaseIsIdempotent(t *testing.T) {
	md, _ := newFacade(t)

	release := md.WatchBooks("tok-a")
	releaseDup := md.WatchBooks("tok-a")

	release()
	release() // second call is a no-op, not a double-unsubscribe
	releaseDup()
}

func TestOnDeliversStatusEvents(t *testing.T) {
	md, _ := newFacade(t)

	statuses := make(chan domain.ConnState, 16)
	off := md.On([]domain.EventClass{domain.EventConnectionStatus}, func(ev domain.Event) {
		statuses <- ev.(*domain.ConnStatus).State
	})
	defer off()

	release := md.WatchBooks("tok-a")
	defer release()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case st := <-statuses:
			if st == domain.StateConnected {
				assert.Equal(t, domain.StateConnected, md.States()[feed.OrderBookFeed])
				return
			}
		case <-deadline:
			t.Fatal("never saw Connected status")
		}
	}
}

func TestResetUnknownFeed(t *testing.T) {
	md, _ := newFacade(t)
	err := md.Reset("nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, md.Reset(feed.OrderBookFeed))
}
