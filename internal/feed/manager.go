package feed

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rileytg/puglies/internal/book"
	"github.com/rileytg/puglies/internal/bridge"
	"github.com/rileytg/puglies/internal/domain"
	"github.com/rileytg/puglies/internal/wsconn"
)

const authTimeout = 10 * time.Second

// AuthProvider supplies the session token for feeds that require one. The
// manager asks for a fresh token on every (re)connect so expired credentials
// never get replayed.
type AuthProvider interface {
	SubscriptionAuth(ctx context.Context) (string, error)
}

// Options carries the per-feed wiring that varies between feed dialects.
type Options struct {
	// Conn configures the underlying connection machine.
	Conn wsconn.Config

	// Books receives snapshots and deltas. Nil for feeds without orderbooks.
	Books *book.Registry

	// Auth supplies subscription credentials. Nil for public feeds.
	Auth AuthProvider

	// CoalesceWindow throttles delta notifications per asset. Zero forwards
	// every delta synchronously.
	CoalesceWindow time.Duration
}

// Manager multiplexes consumer interest onto one feed connection. It
// refcounts instrument ids, connects only while someone is interested,
// re-issues the full interest set after every reconnect, and routes parsed
// events into the book registry and the bridge.
type Manager struct {
	feed    string
	codec   Codec
	machine *wsconn.Machine
	bridge  *bridge.Bridge
	books   *book.Registry
	auth    AuthProvider
	co      *coalescer
	logger  *slog.Logger

	mu       sync.Mutex
	interest map[string]int
	wake     chan struct{}
	stopConn context.CancelFunc

	runCtx context.Context
}

func NewManager(feed string, codec Codec, transport wsconn.Transport, br *bridge.Bridge, opts Options, logger *slog.Logger) *Manager {
	m := &Manager{
		feed:     feed,
		codec:    codec,
		bridge:   br,
		books:    opts.Books,
		auth:     opts.Auth,
		logger:   logger.With(slog.String("component", "feed"), slog.String("feed", feed)),
		interest: make(map[string]int),
		wake:     make(chan struct{}, 1),
	}
	m.co = newCoalescer(opts.CoalesceWindow, func(d *domain.BookDelta) { br.Emit(d) })
	m.machine = wsconn.NewMachine(feed, opts.Conn, transport, logger)
	m.machine.OnConnected(m.resubscribe)
	m.machine.OnMessage(m.handleMessage)
	m.machine.OnStateChange(m.handleState)
	return m
}

// Run drives the feed until ctx is cancelled. The connection exists only
// while the interest set is non-empty: the first subscription dials, the
// last unsubscription tears down the socket and any pending reconnect timer.
func (m *Manager) Run(ctx context.Context) error {
	m.runCtx = ctx
	defer m.co.Stop()
	for {
		m.mu.Lock()
		demand := len(m.interest) > 0
		m.mu.Unlock()

		if !demand {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-m.wake:
				continue
			}
		}

		connCtx, cancel := context.WithCancel(ctx)
		m.mu.Lock()
		m.stopConn = cancel
		m.mu.Unlock()

		err := m.machine.Run(connCtx)
		cancel()
		m.mu.Lock()
		m.stopConn = nil
		m.mu.Unlock()

		if ctx.Err() != nil {
			return err
		}
	}
}

// Subscribe registers interest in the given instrument ids. Ids already held
// by another consumer only gain a reference; new ids are subscribed on the
// live connection, or queued until the next connect when there is none.
func (m *Manager) Subscribe(ids ...string) {
	m.mu.Lock()
	var added []string
	for _, id := range ids {
		m.interest[id]++
		if m.interest[id] == 1 {
			added = append(added, id)
		}
	}
	m.mu.Unlock()

	if len(added) == 0 {
		return
	}
	select {
	case m.wake <- struct{}{}:
	default:
	}
	if m.machine.State() == domain.StateConnected {
		m.send(m.codec.SubscribeCmds(added, m.authToken()))
	}
}

// Unsubscribe releases one reference per id. When the last reference to an
// id drops, its book is discarded and the venue is told; when the whole
// interest set empties, the connection is torn down.
func (m *Manager) Unsubscribe(ids ...string) {
	m.mu.Lock()
	var removed []string
	for _, id := range ids {
		n, ok := m.interest[id]
		if !ok {
			continue
		}
		if n <= 1 {
			delete(m.interest, id)
			removed = append(removed, id)
		} else {
			m.interest[id] = n - 1
		}
	}
	empty := len(m.interest) == 0
	stop := m.stopConn
	m.mu.Unlock()

	if len(removed) == 0 {
		return
	}
	if m.books != nil {
		for _, id := range removed {
			m.books.Delete(id)
		}
	}
	if m.machine.State() == domain.StateConnected {
		m.send(m.codec.UnsubscribeCmds(removed))
	}
	if empty && stop != nil {
		stop()
	}
}

// Interest returns the current interest set, sorted.
func (m *Manager) Interest() []string {
	m.mu.Lock()
	ids := make([]string, 0, len(m.interest))
	for id := range m.interest {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// State reports the connection machine's current state.
func (m *Manager) State() domain.ConnState { return m.machine.State() }

// Reset requests a fresh connect cycle after the machine gave up (Failed).
func (m *Manager) Reset() { m.machine.Reset() }

// resubscribe replays the whole interest set after a connect. Runs on the
// machine goroutine, before any inbound message is handled.
func (m *Manager) resubscribe() {
	ids := m.Interest()
	if len(ids) == 0 {
		return
	}
	m.send(m.codec.SubscribeCmds(ids, m.authToken()))
	m.logger.Info("resubscribed", slog.Int("instruments", len(ids)))
}

func (m *Manager) authToken() string {
	if m.auth == nil {
		return ""
	}
	ctx := m.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()
	token, err := m.auth.SubscriptionAuth(ctx)
	if err != nil {
		m.logger.Error("subscription auth failed", slog.Any("error", err))
		return ""
	}
	return token
}

func (m *Manager) send(cmds []any) {
	for _, cmd := range cmds {
		if err := m.machine.Send(cmd); err != nil {
			if errors.Is(err, domain.ErrNotConnected) {
				// Interest is already recorded; the next connect replays it.
				return
			}
			m.logger.Warn("send failed", slog.Any("error", err))
			return
		}
	}
}

// handleState marks every book stale whenever the feed leaves Connected and
// republishes the status to subscribers.
func (m *Manager) handleState(st domain.ConnStatus) {
	if st.State != domain.StateConnected && m.books != nil {
		m.books.MarkAllStale()
	}
	m.bridge.Emit(&st)
}

// handleMessage parses one raw frame and routes its events. Snapshots create
// their book lazily; deltas for unknown assets are dropped, since without a
// snapshot there is nothing consistent to patch. Malformed input is logged
// and skipped without touching any book.
func (m *Manager) handleMessage(raw []byte) {
	events, err := m.codec.Parse(raw)
	if err != nil {
		m.logger.Debug("dropping malformed message", slog.Any("error", err))
		return
	}
	for _, ev := range events {
		switch ev := ev.(type) {
		case *domain.BookSnapshot:
			m.applySnapshot(ev)
		case *domain.BookDelta:
			m.applyDelta(ev)
		default:
			m.bridge.Emit(ev)
		}
	}
}

func (m *Manager) applySnapshot(snap *domain.BookSnapshot) {
	if m.books == nil {
		return
	}
	m.mu.Lock()
	_, wanted := m.interest[snap.AssetID]
	m.mu.Unlock()
	if !wanted {
		return
	}
	b := m.books.GetOrCreate(snap.AssetID)
	if err := b.ApplySnapshot(snap.Bids, snap.Asks, snap.Timestamp); err != nil {
		if errors.Is(err, domain.ErrStaleSnapshot) {
			m.logger.Debug("dropping stale snapshot",
				slog.String("asset_id", snap.AssetID))
			return
		}
		m.logger.Debug("dropping snapshot", slog.Any("error", err))
		return
	}
	// Subscribers see the normalized book, not the raw wire levels.
	snap.Bids, snap.Asks = b.Top(0)
	m.bridge.Emit(snap)
}

func (m *Manager) applyDelta(d *domain.BookDelta) {
	if m.books == nil {
		return
	}
	b, ok := m.books.Get(d.AssetID)
	if !ok {
		return
	}
	if err := b.ApplyDelta(d.Side, d.Price, d.Size, d.Timestamp); err != nil {
		m.logger.Debug("dropping delta",
			slog.String("asset_id", d.AssetID), slog.Any("error", err))
		return
	}
	m.co.Add(d)
}
