package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rileytg/puglies/internal/domain"
)

func TestEmitInRegistrationOrder(t *testing.T) {
	b := New()

	var order []string
	b.Subscribe(domain.EventPriceUpdate, func(domain.Event) { order = append(order, "first") })
	b.Subscribe(domain.EventPriceUpdate, func(domain.Event) { order = append(order, "second") })
	b.Subscribe(domain.EventPriceUpdate, func(domain.Event) { order = append(order, "third") })

	b.Emit(domain.PriceUpdate{AssetID: "tok-1", BestBid: "0.50", BestAsk: "0.51"})

	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestEmitOnlyMatchingClass(t *testing.T) {
	b := New()

	var got []domain.EventClass
	b.Subscribe(domain.EventTradeUpdate, func(ev domain.Event) { got = append(got, ev.Class()) })

	b.Emit(domain.PriceUpdate{AssetID: "tok-1"})
	b.Emit(domain.Trade{AssetID: "tok-1", Price: "0.42", Size: "10"})
	b.Emit(domain.ConnStatus{Feed: "orderbook", State: domain.StateConnected})

	assert.Equal(t, []domain.EventClass{domain.EventTradeUpdate}, got)
}

func TestSubscribeAllAndPayloadDispatch(t *testing.T) {
	b := New()

	var snaps, deltas int
	b.SubscribeAll([]domain.EventClass{domain.EventBookSnapshot, domain.EventBookDelta}, func(ev domain.Event) {
		switch ev.(type) {
		case domain.BookSnapshot:
			snaps++
		case domain.BookDelta:
			deltas++
		default:
			t.Fatalf("unexpected payload %T", ev)
		}
	})

	b.Emit(domain.BookSnapshot{AssetID: "tok-1", Timestamp: time.Unix(1, 0)})
	b.Emit(domain.BookDelta{AssetID: "tok-1", Side: domain.SideBid, Price: "0.50", Size: "1"})
	b.Emit(domain.BookDelta{AssetID: "tok-1", Side: domain.SideAsk, Price: "0.51", Size: "2"})

	assert.Equal(t, 1, snaps)
	assert.Equal(t, 2, deltas)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := New()

	var calls int
	unsub := b.Subscribe(domain.EventPriceUpdate, func(domain.Event) { calls++ })

	b.Emit(domain.PriceUpdate{AssetID: "tok-1"})
	unsub()
	unsub() // second call is a no-op
	b.Emit(domain.PriceUpdate{AssetID: "tok-1"})

	assert.Equal(t, 1, calls)
}

func TestUnsubscribeRemovesAllBatchRegistrations(t *testing.T) {
	b := New()

	var calls int
	unsub := b.SubscribeAll(domain.AllEventClasses, func(domain.Event) { calls++ })
	unsub()

	b.Emit(domain.PriceUpdate{AssetID: "tok-1"})
	b.Emit(domain.Trade{AssetID: "tok-1"})

	assert.Zero(t, calls)
}

func TestUnsubscribeDuringDelivery(t *testing.T) {
	b := New()

	var unsub func()
	var calls int
	unsub = b.Subscribe(domain.EventPriceUpdate, func(domain.Event) {
		calls++
		unsub()
	})

	b.Emit(domain.PriceUpdate{AssetID: "tok-1"})
	b.Emit(domain.PriceUpdate{AssetID: "tok-1"})

	assert.Equal(t, 1, calls)
}

func TestCloseStopsDeliveryAndKeepsHandlesSafe(t *testing.T) {
	b := New()

	var calls int
	unsub := b.Subscribe(domain.EventConnectionStatus, func(domain.Event) { calls++ })

	b.Close()
	b.Emit(domain.ConnStatus{Feed: "activity", State: domain.StateFailed})
	unsub() // safe after teardown

	assert.Zero(t, calls)

	// Subscribing after close never fires.
	b.Subscribe(domain.EventConnectionStatus, func(domain.Event) { calls++ })
	b.Emit(domain.ConnStatus{Feed: "activity", State: domain.StateFailed})
	assert.Zero(t, calls)
}
