package feed

import (
	"sort"
	"sync"
	"time"

	"github.com/rileytg/puglies/internal/domain"
)

// coalescer rate-limits delta notifications. Every delta is applied to its
// book immediately; the coalescer only throttles how often subscribers hear
// about it, keeping at most one pending notification per asset per window.
type coalescer struct {
	window time.Duration
	emit   func(*domain.BookDelta)

	mu      sync.Mutex
	pending map[string]*domain.BookDelta
	timer   *time.Timer
	stopped bool
}

func newCoalescer(window time.Duration, emit func(*domain.BookDelta)) *coalescer {
	return &coalescer{
		window:  window,
		emit:    emit,
		pending: make(map[string]*domain.BookDelta),
	}
}

// Add schedules a notification for the delta's asset. With a zero window the
// delta is forwarded synchronously.
func (c *coalescer) Add(d *domain.BookDelta) {
	if c.window <= 0 {
		c.emit(d)
		return
	}
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.pending[d.AssetID] = d
	if c.timer == nil {
		c.timer = time.AfterFunc(c.window, c.flush)
	}
	c.mu.Unlock()
}

func (c *coalescer) flush() {
	c.mu.Lock()
	batch := c.pending
	c.pending = make(map[string]*domain.BookDelta)
	c.timer = nil
	c.mu.Unlock()

	// Map order is random; sort for a stable notification order.
	ids := make([]string, 0, len(batch))
	for id := range batch {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		c.emit(batch[id])
	}
}

// Stop flushes anything pending and rejects further deltas.
func (c *coalescer) Stop() {
	c.mu.Lock()
	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()
	c.flush()
}
