// Package domain defines the shared types for the puglies market-data
// backend: price levels, book events, connection states, and the interfaces
// implemented by the cache and store layers.
package domain

import "time"

// Side identifies which half of the book a level or trade belongs to.
type Side int

const (
	SideBid Side = iota
	SideAsk
)

// String returns the wire representation used by the CLOB feed.
func (s Side) String() string {
	if s == SideBid {
		return "BUY"
	}
	return "SELL"
}

// PriceLevel is a single price+size entry in an orderbook. Prices and sizes
// stay decimal strings end-to-end; numeric parsing happens only at
// presentation boundaries so repeated merges never accumulate float drift.
type PriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// BookSnapshot is a full, atomic replacement of an asset's orderbook.
type BookSnapshot struct {
	AssetID   string       `json:"asset_id"`
	Market    string       `json:"market,omitempty"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp time.Time    `json:"timestamp"`
}

// BookDelta is an incremental level update. Size "0" removes the level at
// Price; any other size upserts it.
type BookDelta struct {
	AssetID   string    `json:"asset_id"`
	Market    string    `json:"market,omitempty"`
	Side      Side      `json:"side"`
	Price     string    `json:"price"`
	Size      string    `json:"size"`
	Timestamp time.Time `json:"timestamp"`
}

// Trade is an execution reported by either feed.
type Trade struct {
	AssetID   string    `json:"asset_id"`
	Market    string    `json:"market,omitempty"`
	Price     string    `json:"price"`
	Size      string    `json:"size"`
	Side      Side      `json:"side"`
	Timestamp time.Time `json:"timestamp"`
}

// PriceUpdate carries refreshed pricing for an asset or market. The CLOB
// feed fills BestBid/BestAsk after a book change; the activity feed fills
// Price with the market's last price.
type PriceUpdate struct {
	AssetID   string    `json:"asset_id,omitempty"`
	Market    string    `json:"market,omitempty"`
	Price     string    `json:"price,omitempty"`
	BestBid   string    `json:"best_bid,omitempty"`
	BestAsk   string    `json:"best_ask,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
