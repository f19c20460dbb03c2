package domain

// EventClass enumerates the event kinds delivered through the bridge. The set
// is closed: adding a class means adding a payload type below and updating
// every exhaustive switch.
type EventClass int

const (
	EventConnectionStatus EventClass = iota
	EventBookSnapshot
	EventBookDelta
	EventPriceUpdate
	EventTradeUpdate
)

// String returns the consumer-facing event name.
func (c EventClass) String() string {
	switch c {
	case EventConnectionStatus:
		return "connection_status"
	case EventBookSnapshot:
		return "orderbook_snapshot"
	case EventBookDelta:
		return "orderbook_delta"
	case EventPriceUpdate:
		return "price_update"
	case EventTradeUpdate:
		return "trade_update"
	default:
		return "unknown"
	}
}

// AllEventClasses lists every event class, for batch subscriptions.
var AllEventClasses = []EventClass{
	EventConnectionStatus,
	EventBookSnapshot,
	EventBookDelta,
	EventPriceUpdate,
	EventTradeUpdate,
}

// Event is the tagged-variant payload delivered by the bridge. Each payload
// type reports its own class so dispatch never goes through string lookup.
// The interface is sealed to the five payload types in this package.
type Event interface {
	Class() EventClass
}

func (ConnStatus) Class() EventClass   { return EventConnectionStatus }
func (BookSnapshot) Class() EventClass { return EventBookSnapshot }
func (BookDelta) Class() EventClass    { return EventBookDelta }
func (PriceUpdate) Class() EventClass  { return EventPriceUpdate }
func (Trade) Class() EventClass        { return EventTradeUpdate }
