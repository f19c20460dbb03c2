package feed

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileytg/puglies/internal/book"
	"github.com/rileytg/puglies/internal/bridge"
	"github.com/rileytg/puglies/internal/domain"
	"github.com/rileytg/puglies/internal/wsconn"
)

type fakeConn struct {
	in      chan []byte
	errs    chan error
	writeCh chan string

	mu        sync.Mutex
	writes    []string
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:      make(chan []byte, 16),
		errs:    make(chan error, 1),
		writeCh: make(chan string, 16),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case msg := <-c.in:
		return msg, nil
	case err := <-c.errs:
		return nil, err
	case <-c.closed:
		return nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) WriteJSON(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.writes = append(c.writes, string(raw))
	c.mu.Unlock()
	c.writeCh <- string(raw)
	return nil
}

func (c *fakeConn) Ping() error { return nil }

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

type fakeTransport struct {
	conns chan *fakeConn
	dials atomic.Int32
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{conns: make(chan *fakeConn, 8)}
}

func (t *fakeTransport) Dial(_ context.Context, _ string) (wsconn.Conn, error) {
	t.dials.Add(1)
	c := newFakeConn()
	t.conns <- c
	return c, nil
}

func waitConn(t *testing.T, ft *fakeTransport) *fakeConn {
	t.Helper()
	select {
	case c := <-ft.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dial")
		return nil
	}
}

func waitWrite(t *testing.T, c *fakeConn) string {
	t.Helper()
	select {
	case w := <-c.writeCh:
		return w
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for write")
		return ""
	}
}

func expectNoWrite(t *testing.T, c *fakeConn) {
	t.Helper()
	select {
	case w := <-c.writeCh:
		t.Fatalf("unexpected write: %s", w)
	case <-time.After(100 * time.Millisecond):
	}
}

type managerFixture struct {
	mgr    *Manager
	ft     *fakeTransport
	bridge *bridge.Bridge
	books  *book.Registry
	cancel context.CancelFunc
	done   chan struct{}
}

func startManager(t *testing.T, opts Options) *managerFixture {
	t.Helper()
	ft := newFakeTransport()
	br := bridge.New()
	if opts.Books == nil {
		opts.Books = book.NewRegistry()
	}
	if opts.Conn.URL == "" {
		opts.Conn = wsconn.Config{
			URL:         "wss://feed.test/ws",
			BackoffBase: 5 * time.Millisecond,
			BackoffCap:  20 * time.Millisecond,
		}
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr := NewManager(OrderBookFeed, ClobCodec{}, ft, br, opts, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = mgr.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("manager did not stop")
		}
	})
	return &managerFixture{mgr: mgr, ft: ft, bridge: br, books: opts.Books, cancel: cancel, done: done}
}

func waitState(t *testing.T, mgr *Manager, want domain.ConnState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if mgr.State() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("state %v never reached, currently %v", want, mgr.State())
}

func TestManagerConnectsOnFirstSubscribe(t *testing.T) {
	fx := startManager(t, Options{})

	// No interest means no socket.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), fx.ft.dials.Load())
	assert.Equal(t, domain.StateDisconnected, fx.mgr.State())

	fx.mgr.Subscribe("tok-a", "tok-b")
	conn := waitConn(t, fx.ft)

	// The queued interest set is flushed as one batched subscribe.
	sub := waitWrite(t, conn)
	assert.Contains(t, sub, `"type":"subscribe"`)
	assert.Contains(t, sub, "tok-a")
	assert.Contains(t, sub, "tok-b")
	waitState(t, fx.mgr, domain.StateConnected)
}

func TestManagerIncrementalSubscribe(t *testing.T) {
	fx := startManager(t, Options{})
	fx.mgr.Subscribe("tok-a")
	conn := waitConn(t, fx.ft)
	waitWrite(t, conn)
	waitState(t, fx.mgr, domain.StateConnected)

	fx.mgr.Subscribe("tok-b")
	incr := waitWrite(t, conn)
	assert.Contains(t, incr, "tok-b")
	assert.NotContains(t, incr, "tok-a", "already-subscribed ids are not re-sent")

	// A second reference to a held id is bookkeeping only.
	fx.mgr.Subscribe("tok-a")
	expectNoWrite(t, conn)
	assert.Equal(t, []string{"tok-a", "tok-b"}, fx.mgr.Interest())
}

func TestManagerLastUnsubscribeTearsDown(t *testing.T) {
	fx := startManager(t, Options{})
	fx.mgr.Subscribe("tok-a")
	fx.mgr.Subscribe("tok-a")
	conn := waitConn(t, fx.ft)
	waitWrite(t, conn)
	waitState(t, fx.mgr, domain.StateConnected)
	fx.books.GetOrCreate("tok-a")

	// First release: still referenced, nothing happens.
	fx.mgr.Unsubscribe("tok-a")
	expectNoWrite(t, conn)
	_, ok := fx.books.Get("tok-a")
	assert.True(t, ok)

	// Last release: venue told, book discarded, socket torn down.
	fx.mgr.Unsubscribe("tok-a")
	unsub := waitWrite(t, conn)
	assert.Contains(t, unsub, `"type":"unsubscribe"`)
	waitState(t, fx.mgr, domain.StateDisconnected)
	_, ok = fx.books.Get("tok-a")
	assert.False(t, ok)
	assert.Empty(t, fx.mgr.Interest())
}

func TestManagerRoutesSnapshotLazily(t *testing.T) {
	fx := startManager(t, Options{})

	var mu sync.Mutex
	var got []*domain.BookSnapshot
	fx.bridge.Subscribe(domain.EventBookSnapshot, func(ev domain.Event) {
		mu.Lock()
		got = append(got, ev.(*domain.BookSnapshot))
		mu.Unlock()
	})

	fx.mgr.Subscribe("tok-a")
	conn := waitConn(t, fx.ft)
	waitWrite(t, conn)

	conn.in <- []byte(`{"event_type":"book","asset_id":"tok-a","timestamp":"1000",
		"bids":[{"price":"0.48","size":"100"}],"asks":[{"price":"0.52","size":"80"}]}`)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 2*time.Second, 5*time.Millisecond)

	b, ok := fx.books.Get("tok-a")
	require.True(t, ok, "snapshot creates the book")
	bids, asks := b.Top(0)
	assert.Equal(t, []domain.PriceLevel{{Price: "0.48", Size: "100"}}, bids)
	assert.Equal(t, []domain.PriceLevel{{Price: "0.52", Size: "80"}}, asks)
}

func TestManagerDropsUnwantedSnapshotAndUnknownDelta(t *testing.T) {
	fx := startManager(t, Options{})

	var events atomic.Int32
	fx.bridge.SubscribeAll([]domain.EventClass{domain.EventBookSnapshot, domain.EventBookDelta},
		func(domain.Event) { events.Add(1) })

	fx.mgr.Subscribe("tok-a")
	conn := waitConn(t, fx.ft)
	waitWrite(t, conn)

	// Snapshot for an asset nobody asked for: ignored entirely.
	conn.in <- []byte(`{"event_type":"book","asset_id":"tok-x","timestamp":"1000","bids":[],"asks":[]}`)
	// Delta with no snapshot to patch: dropped.
	conn.in <- []byte(`{"event_type":"price_change","price_changes":[
		{"asset_id":"tok-a","price":"0.50","size":"5","side":"BUY"}]}`)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), events.Load())
	_, ok := fx.books.Get("tok-x")
	assert.False(t, ok)
}

func TestManagerSurvivesMalformedMessage(t *testing.T) {
	fx := startManager(t, Options{})

	var snaps atomic.Int32
	fx.bridge.Subscribe(domain.EventBookSnapshot, func(domain.Event) { snaps.Add(1) })

	fx.mgr.Subscribe("tok-a")
	conn := waitConn(t, fx.ft)
	waitWrite(t, conn)

	conn.in <- []byte(`{"event_type":`)
	conn.in <- []byte(`{"event_type":"book","asset_id":"tok-a","timestamp":"1000","bids":[],"asks":[]}`)

	require.Eventually(t, func() bool { return snaps.Load() == 1 },
		2*time.Second, 5*time.Millisecond)
	waitState(t, fx.mgr, domain.StateConnected)
}

func TestManagerResubscribesAfterReconnect(t *testing.T) {
	fx := startManager(t, Options{})
	fx.mgr.Subscribe("tok-a", "tok-b")
	conn := waitConn(t, fx.ft)
	waitWrite(t, conn)
	waitState(t, fx.mgr, domain.StateConnected)

	conn.in <- []byte(`{"event_type":"book","asset_id":"tok-a","timestamp":"1000",
		"bids":[{"price":"0.48","size":"1"}],"asks":[]}`)
	b, err := waitBook(fx.books, "tok-a")
	require.NoError(t, err)

	// Drop the connection; the retained book goes stale until fresh data.
	conn.errs <- errors.New("connection reset by peer")
	conn2 := waitConn(t, fx.ft)
	assert.True(t, b.Stale())

	resub := waitWrite(t, conn2)
	assert.Contains(t, resub, "tok-a")
	assert.Contains(t, resub, "tok-b")
	waitState(t, fx.mgr, domain.StateConnected)
}

func waitBook(r *book.Registry, assetID string) (*book.Book, error) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b, ok := r.Get(assetID); ok {
			return b, nil
		}
		time.Sleep(2 * time.Millisecond)
	}
	return nil, errors.New("book never appeared: " + assetID)
}

func TestManagerCoalescesDeltaNotifications(t *testing.T) {
	fx := startManager(t, Options{CoalesceWindow: 50 * time.Millisecond})

	var mu sync.Mutex
	var deltas []*domain.BookDelta
	fx.bridge.Subscribe(domain.EventBookDelta, func(ev domain.Event) {
		mu.Lock()
		deltas = append(deltas, ev.(*domain.BookDelta))
		mu.Unlock()
	})

	fx.mgr.Subscribe("tok-a")
	conn := waitConn(t, fx.ft)
	waitWrite(t, conn)

	conn.in <- []byte(`{"event_type":"book","asset_id":"tok-a","timestamp":"1000","bids":[],"asks":[]}`)
	for _, size := range []string{"1", "2", "3"} {
		conn.in <- []byte(`{"event_type":"price_change","timestamp":"2000",
			"price_changes":[{"asset_id":"tok-a","price":"0.50","size":"` + size + `","side":"BUY"}]}`)
	}

	// Every delta lands in the book immediately; subscribers hear once.
	require.Eventually(t, func() bool {
		b, ok := fx.books.Get("tok-a")
		if !ok {
			return false
		}
		bids, _ := b.Top(0)
		return len(bids) == 1 && bids[0].Size == "3"
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(deltas) == 1
	}, 2*time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, "3", deltas[0].Size)
	mu.Unlock()
}

type staticAuth struct{ token string }

func (a staticAuth) SubscriptionAuth(context.Context) (string, error) { return a.token, nil }

func TestManagerAttachesAuthToSubscribe(t *testing.T) {
	fx := startManager(t, Options{Auth: staticAuth{token: "session-token"}})
	fx.mgr.Subscribe("tok-a")
	conn := waitConn(t, fx.ft)

	sub := waitWrite(t, conn)
	assert.True(t, strings.Contains(sub, `"auth":"session-token"`), "subscribe carries the session token: %s", sub)
}
