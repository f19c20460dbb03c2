package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileytg/puglies/internal/book"
	"github.com/rileytg/puglies/internal/bridge"
	"github.com/rileytg/puglies/internal/domain"
)

type topWrite struct {
	assetID string
	bids    []domain.PriceLevel
	asks    []domain.PriceLevel
}

type fakeBookCache struct {
	writes chan topWrite
}

func (f *fakeBookCache) SetTop(_ context.Context, assetID string, bids, asks []domain.PriceLevel, _ time.Time) error {
	f.writes <- topWrite{assetID: assetID, bids: bids, asks: asks}
	return nil
}

func (f *fakeBookCache) GetTop(context.Context, string) ([]domain.PriceLevel, []domain.PriceLevel, time.Time, error) {
	return nil, nil, time.Time{}, domain.ErrNotFound
}

type priceWrite struct {
	key string
	upd domain.PriceUpdate
}

type fakePriceCache struct {
	writes chan priceWrite
}

func (f *fakePriceCache) SetPrice(_ context.Context, assetID string, upd domain.PriceUpdate) error {
	f.writes <- priceWrite{key: assetID, upd: upd}
	return nil
}

func (f *fakePriceCache) GetPrice(context.Context, string) (domain.PriceUpdate, error) {
	return domain.PriceUpdate{}, domain.ErrNotFound
}

type fakeHistory struct {
	points chan domain.PricePoint
}

func (f *fakeHistory) Append(_ context.Context, pt domain.PricePoint) error {
	f.points <- pt
	return nil
}

func (f *fakeHistory) Range(context.Context, string, time.Time, time.Time, int) ([]domain.PricePoint, error) {
	return nil, nil
}

func startMirror(t *testing.T, sinks MirrorSinks, registry *book.Registry) *bridge.Bridge {
	t.Helper()

	br := bridge.New()
	t.Cleanup(br.Close)

	m := NewMirror(sinks, registry, slog.New(slog.NewTextHandler(io.Discard, nil)))
	off := m.Attach(br)
	t.Cleanup(off)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = m.Run(ctx) }()

	return br
}

func recvWithin[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for mirror write")
		panic("unreachable")
	}
}

func TestMirrorWritesTopOfBookFromRegistry(t *testing.T) {
	registry := book.NewRegistry()
	b := registry.GetOrCreate("tok-a")
	require.NoError(t, b.ApplySnapshot(
		[]domain.PriceLevel{{Price: "0.40", Size: "10"}, {Price: "0.39", Size: "5"}},
		[]domain.PriceLevel{{Price: "0.42", Size: "7"}},
		time.Now(),
	))

	books := &fakeBookCache{writes: make(chan topWrite, 4)}
	br := startMirror(t, MirrorSinks{Books: books}, registry)

	br.Emit(&domain.BookDelta{AssetID: "tok-a", Side: domain.SideBid, Price: "0.40", Size: "10", Timestamp: time.Now()})

	w := recvWithin(t, books.writes)
	assert.Equal(t, "tok-a", w.assetID)
	require.Len(t, w.bids, 2)
	assert.Equal(t, "0.40", w.bids[0].Price)
	require.Len(t, w.asks, 1)
}

func TestMirrorSkipsUnknownBook(t *testing.T) {
	registry := book.NewRegistry()
	books := &fakeBookCache{writes: make(chan topWrite, 4)}
	prices := &fakePriceCache{writes: make(chan priceWrite, 4)}
	br := startMirror(t, MirrorSinks{Books: books, Prices: prices}, registry)

	br.Emit(&domain.BookDelta{AssetID: "unknown", Side: domain.SideBid, Price: "0.5", Size: "1", Timestamp: time.Now()})
	// A price update afterwards proves the worker is still draining.
	br.Emit(&domain.PriceUpdate{Market: "mkt-1", Price: "0.61", Timestamp: time.Now()})

	w := recvWithin(t, prices.writes)
	assert.Equal(t, "mkt-1", w.key)

	select {
	case got := <-books.writes:
		t.Fatalf("unexpected book write for %q", got.assetID)
	default:
	}
}

func TestMirrorRecordsHistoryForBestQuotes(t *testing.T) {
	registry := book.NewRegistry()
	history := &fakeHistory{points: make(chan domain.PricePoint, 4)}
	br := startMirror(t, MirrorSinks{History: history}, registry)

	// Activity-feed last-price ticks carry no best quotes and are not stored.
	br.Emit(&domain.PriceUpdate{Market: "mkt-1", Price: "0.61", Timestamp: time.Now()})
	br.Emit(&domain.PriceUpdate{AssetID: "tok-a", BestBid: "0.40", BestAsk: "0.42", Timestamp: time.Now()})

	pt := recvWithin(t, history.points)
	assert.Equal(t, "tok-a", pt.AssetID)
	assert.Equal(t, "0.40", pt.BestBid)
	assert.Equal(t, "0.42", pt.BestAsk)

	select {
	case extra := <-history.points:
		t.Fatalf("unexpected history point for %q", extra.AssetID)
	default:
	}
}
