package wsconn

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/rileytg/puglies/internal/domain"
)

const (
	defaultBackoffBase = 1 * time.Second
	defaultBackoffCap  = 30 * time.Second
	defaultPingPeriod  = (pongWait * 9) / 10
)

// Config holds the per-feed connection parameters.
type Config struct {
	// URL is the feed endpoint.
	URL string

	// BackoffBase is the delay before the first reconnect attempt.
	BackoffBase time.Duration

	// BackoffCap bounds the exponential backoff.
	BackoffCap time.Duration

	// MaxAttempts is the reconnect ceiling before giving up (Failed state).
	// Zero retries forever.
	MaxAttempts int

	// PingPeriod is the keepalive interval. Must be shorter than the
	// transport's pong wait.
	PingPeriod time.Duration
}

func (c Config) withDefaults() Config {
	if c.BackoffBase <= 0 {
		c.BackoffBase = defaultBackoffBase
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = defaultBackoffCap
	}
	if c.PingPeriod <= 0 {
		c.PingPeriod = defaultPingPeriod
	}
	return c
}

// Machine drives one feed connection through the Disconnected / Connecting /
// Connected / Reconnecting / Failed lifecycle. All I/O happens on the single
// goroutine running Run; callbacks fire on that goroutine.
type Machine struct {
	feed      string
	cfg       Config
	transport Transport
	logger    *slog.Logger

	onState     func(domain.ConnStatus)
	onMessage   func([]byte)
	onConnected func()

	mu       sync.Mutex
	state    domain.ConnState
	attempts int
	conn     Conn

	resetCh chan struct{}
}

// NewMachine creates a machine for one named feed. Callbacks are registered
// with the On* setters before Run is started.
func NewMachine(feed string, cfg Config, transport Transport, logger *slog.Logger) *Machine {
	return &Machine{
		feed:      feed,
		cfg:       cfg.withDefaults(),
		transport: transport,
		logger:    logger.With(slog.String("component", "wsconn"), slog.String("feed", feed)),
		state:     domain.StateDisconnected,
		resetCh:   make(chan struct{}, 1),
	}
}

// OnStateChange registers the status callback, fired on every transition.
func (m *Machine) OnStateChange(fn func(domain.ConnStatus)) { m.onState = fn }

// OnMessage registers the raw inbound message callback.
func (m *Machine) OnMessage(fn func([]byte)) { m.onMessage = fn }

// OnConnected registers a callback fired after each successful connect,
// before any message is read. The feed manager re-issues its subscriptions
// here, which is what makes reconnects invisible to consumers.
func (m *Machine) OnConnected(fn func()) { m.onConnected = fn }

// State returns the current lifecycle state.
func (m *Machine) State() domain.ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Send writes one JSON command on the live connection.
func (m *Machine) Send(v any) error {
	m.mu.Lock()
	conn := m.conn
	state := m.state
	m.mu.Unlock()

	if state != domain.StateConnected || conn == nil {
		return fmt.Errorf("wsconn %s: send: %w", m.feed, domain.ErrNotConnected)
	}
	return conn.WriteJSON(v)
}

// Reset requests a fresh connect cycle from the Failed state. It is the only
// way out of Failed short of teardown; calls in any other state are dropped.
func (m *Machine) Reset() {
	if m.State() != domain.StateFailed {
		return
	}
	select {
	case m.resetCh <- struct{}{}:
	default:
	}
}

// Run connects and keeps the feed connected until ctx is cancelled, which is
// the explicit, intentional teardown: any pending backoff timer is abandoned
// and the state lands on Disconnected.
func (m *Machine) Run(ctx context.Context) error {
	defer m.setState(domain.StateDisconnected)

	for {
		m.setState(domain.StateConnecting)

		err := m.connectAndRun(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if IsTerminal(err) {
			m.logger.Error("connection rejected, not retrying", slog.String("error", err.Error()))
			m.setState(domain.StateFailed)
			if !m.awaitReset(ctx) {
				return ctx.Err()
			}
			continue
		}

		m.mu.Lock()
		m.attempts++
		attempt := m.attempts
		m.mu.Unlock()

		if m.cfg.MaxAttempts > 0 && attempt > m.cfg.MaxAttempts {
			m.logger.Error("reconnect ceiling reached", slog.Int("attempts", attempt-1))
			m.setState(domain.StateFailed)
			if !m.awaitReset(ctx) {
				return ctx.Err()
			}
			continue
		}

		m.setState(domain.StateReconnecting)
		delay := BackoffDelay(m.cfg.BackoffBase, m.cfg.BackoffCap, attempt)
		m.logger.Warn("disconnected, reconnecting",
			slog.String("error", errString(err)),
			slog.Duration("delay", delay),
			slog.Int("attempt", attempt),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// connectAndRun performs one dial + read-loop cycle. It returns the error
// that ended the connection (nil when the server closed it cleanly).
func (m *Machine) connectAndRun(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	conn, err := m.transport.Dial(dialCtx, m.cfg.URL)
	cancel()
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.conn = conn
	m.attempts = 0
	m.mu.Unlock()
	m.setState(domain.StateConnected)

	if m.onConnected != nil {
		m.onConnected()
	}

	// Closing the connection from a helper goroutine is what unblocks the
	// read loop on teardown, bounding how long Stop can wait.
	readDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-readDone:
		}
	}()

	pingStop := make(chan struct{})
	go m.pingLoop(conn, pingStop)

	defer func() {
		close(pingStop)
		close(readDone)
		m.mu.Lock()
		m.conn = nil
		m.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if m.onMessage != nil {
			m.onMessage(data)
		}
	}
}

func (m *Machine) pingLoop(conn Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(m.cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.Ping(); err != nil {
				return
			}
		}
	}
}

// awaitReset parks in Failed until an explicit Reset or teardown. Returns
// false when ctx ended the wait.
func (m *Machine) awaitReset(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-m.resetCh:
		m.mu.Lock()
		m.attempts = 0
		m.mu.Unlock()
		return true
	}
}

func (m *Machine) setState(next domain.ConnState) {
	m.mu.Lock()
	cur := m.state
	if cur == next {
		m.mu.Unlock()
		return
	}
	if !cur.CanTransition(next) {
		m.mu.Unlock()
		m.logger.Error("illegal state transition dropped",
			slog.String("from", cur.String()),
			slog.String("to", next.String()),
		)
		return
	}
	m.state = next
	attempt := m.attempts
	m.mu.Unlock()

	m.logger.Info("state change",
		slog.String("from", cur.String()),
		slog.String("to", next.String()),
	)
	if m.onState != nil {
		m.onState(domain.ConnStatus{Feed: m.feed, State: next, Attempt: attempt})
	}
}

// BackoffDelay computes the wait before reconnect attempt n (1-based):
// min(base * 2^(n-1), cap) plus up to 10% random jitter so a crowd of
// clients does not stampede the venue in lockstep.
func BackoffDelay(base, cap time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= cap {
			delay = cap
			break
		}
	}
	if delay > cap {
		delay = cap
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/10 + 1))
	return delay + jitter
}

func errString(err error) string {
	if err == nil {
		return "connection closed by server"
	}
	return err.Error()
}
