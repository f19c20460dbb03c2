// Package bridge fans typed market-data events out to registered consumers.
// Feed managers normalize every transport's messages into the same payload
// types before emitting, so consumer code never branches on where an update
// came from.
package bridge

import (
	"sync"

	"github.com/google/uuid"

	"github.com/rileytg/puglies/internal/domain"
)

// Handler receives one event. Handlers run synchronously on the emitting
// goroutine in registration order; a slow handler delays later ones, so
// consumers that do real work should hand off to their own goroutine.
type Handler func(domain.Event)

type subscription struct {
	id uuid.UUID
	fn Handler
}

// Bridge is the fan-out point between feed managers and consumers. Delivery
// is at-most-once per Emit; there is no queueing or replay.
type Bridge struct {
	mu     sync.RWMutex
	subs   map[domain.EventClass][]subscription
	closed bool
}

// New creates an empty bridge.
func New() *Bridge {
	return &Bridge{subs: make(map[domain.EventClass][]subscription)}
}

// Subscribe registers a handler for one event class and returns an
// unsubscribe function. Unsubscribing is idempotent and safe after Close.
func (b *Bridge) Subscribe(class domain.EventClass, fn Handler) func() {
	return b.SubscribeAll([]domain.EventClass{class}, fn)
}

// SubscribeAll registers a handler for several event classes atomically. The
// returned function removes every registration; calling it more than once, or
// after the bridge has been closed, is a no-op.
func (b *Bridge) SubscribeAll(classes []domain.EventClass, fn Handler) func() {
	id := uuid.New()

	b.mu.Lock()
	if !b.closed {
		for _, class := range classes {
			b.subs[class] = append(b.subs[class], subscription{id: id, fn: fn})
		}
	}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

// Emit delivers ev to every handler registered for its class, synchronously,
// in registration order. Emitting on a closed bridge is a no-op.
func (b *Bridge) Emit(ev domain.Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	// Snapshot the slice so handlers may unsubscribe (or subscribe) during
	// delivery without invalidating this emission.
	handlers := b.subs[ev.Class()]
	snapshot := make([]subscription, len(handlers))
	copy(snapshot, handlers)
	b.mu.RUnlock()

	for _, sub := range snapshot {
		sub.fn(ev)
	}
}

// Close tears the bridge down. Subsequent Emit and Subscribe calls are no-ops
// and outstanding unsubscribe functions stay safe to call.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[domain.EventClass][]subscription)
}

func (b *Bridge) remove(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for class, subs := range b.subs {
		kept := subs[:0]
		for _, s := range subs {
			if s.id != id {
				kept = append(kept, s)
			}
		}
		if len(kept) == 0 {
			delete(b.subs, class)
		} else {
			b.subs[class] = kept
		}
	}
}
