// Package book implements the per-asset depth book: an in-memory bid/ask
// ladder merged from one full snapshot plus a stream of incremental deltas.
package book

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rileytg/puglies/internal/domain"
)

// Book holds both ladders for a single asset. Bids are strictly descending by
// price, asks strictly ascending, no duplicate prices per side, and no
// zero-size levels. Writes come from the single goroutine owning the feed
// that delivers this asset; reads go through the RWMutex so a query never
// observes a half-applied delta.
type Book struct {
	assetID string

	mu         sync.RWMutex
	bids       []domain.PriceLevel
	asks       []domain.PriceLevel
	lastUpdate time.Time
	stale      bool
}

// New creates an empty book for the given asset (outcome token) id.
func New(assetID string) *Book {
	return &Book{assetID: assetID}
}

// AssetID returns the asset this book tracks.
func (b *Book) AssetID() string { return b.assetID }

// ApplySnapshot replaces both ladders wholesale. A snapshot older than the
// book's last update is rejected with domain.ErrStaleSnapshot so a
// late-arriving snapshot after a fast reconnect cannot regress the book.
// Input levels are normalized: zero sizes dropped, each side re-sorted.
func (b *Book) ApplySnapshot(bids, asks []domain.PriceLevel, ts time.Time) error {
	nb, err := normalize(bids, domain.SideBid)
	if err != nil {
		return err
	}
	na, err := normalize(asks, domain.SideAsk)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.lastUpdate.IsZero() && ts.Before(b.lastUpdate) {
		return fmt.Errorf("book %s: snapshot at %s behind %s: %w",
			b.assetID, ts.Format(time.RFC3339Nano), b.lastUpdate.Format(time.RFC3339Nano), domain.ErrStaleSnapshot)
	}

	b.bids = nb
	b.asks = na
	b.lastUpdate = ts
	b.stale = false
	return nil
}

// ApplyDelta merges one incremental update. Size zero removes the level at
// the given price (no-op when absent); any other size replaces a matching
// level in place or inserts at the sorted position. The last-update timestamp
// advances on every successful delta.
func (b *Book) ApplyDelta(side domain.Side, price, size string, ts time.Time) error {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return fmt.Errorf("book %s: price %q: %w", b.assetID, price, domain.ErrInvalidDecimal)
	}
	s, err := decimal.NewFromString(size)
	if err != nil {
		return fmt.Errorf("book %s: size %q: %w", b.assetID, size, domain.ErrInvalidDecimal)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ladder := &b.bids
	if side == domain.SideAsk {
		ladder = &b.asks
	}

	idx := -1
	insertAt := len(*ladder)
	for i, lvl := range *ladder {
		q, err := decimal.NewFromString(lvl.Price)
		if err != nil {
			// A malformed resident level cannot happen via this API; skip it
			// rather than wedge the whole ladder.
			continue
		}
		cmp := p.Cmp(q)
		if cmp == 0 {
			idx = i
			break
		}
		// Bids descend, asks ascend; the first level "past" the new price is
		// the insertion point.
		if (side == domain.SideBid && cmp > 0) || (side == domain.SideAsk && cmp < 0) {
			insertAt = i
			break
		}
	}

	switch {
	case idx >= 0 && s.IsZero():
		*ladder = append((*ladder)[:idx], (*ladder)[idx+1:]...)
	case idx >= 0:
		(*ladder)[idx].Size = size
	case s.IsZero():
		// Removal of a level we never had. Stale subscription noise.
	default:
		lvl := domain.PriceLevel{Price: price, Size: size}
		*ladder = append(*ladder, domain.PriceLevel{})
		copy((*ladder)[insertAt+1:], (*ladder)[insertAt:])
		(*ladder)[insertAt] = lvl
	}

	b.lastUpdate = ts
	return nil
}

// Top returns up to maxLevels levels per side without mutating the book.
// maxLevels <= 0 returns both full ladders.
func (b *Book) Top(maxLevels int) (bids, asks []domain.PriceLevel) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	nb, na := len(b.bids), len(b.asks)
	if maxLevels > 0 {
		if nb > maxLevels {
			nb = maxLevels
		}
		if na > maxLevels {
			na = maxLevels
		}
	}
	bids = make([]domain.PriceLevel, nb)
	copy(bids, b.bids[:nb])
	asks = make([]domain.PriceLevel, na)
	copy(asks, b.asks[:na])
	return bids, asks
}

// LastUpdate returns the timestamp of the most recent applied message.
func (b *Book) LastUpdate() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUpdate
}

// MarkStale flags the book as disconnected-but-retained. The values stay
// readable; the next snapshot (after reconnect) clears the flag.
func (b *Book) MarkStale() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stale = true
}

// Stale reports whether the owning feed has disconnected since the last
// applied message.
func (b *Book) Stale() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stale
}

// normalize drops zero-size levels, rejects malformed decimals, and sorts the
// side into its canonical order (bids descending, asks ascending).
func normalize(levels []domain.PriceLevel, side domain.Side) ([]domain.PriceLevel, error) {
	type parsed struct {
		lvl   domain.PriceLevel
		price decimal.Decimal
	}
	out := make([]parsed, 0, len(levels))
	for _, lvl := range levels {
		p, err := decimal.NewFromString(lvl.Price)
		if err != nil {
			return nil, fmt.Errorf("book: level price %q: %w", lvl.Price, domain.ErrInvalidDecimal)
		}
		s, err := decimal.NewFromString(lvl.Size)
		if err != nil {
			return nil, fmt.Errorf("book: level size %q: %w", lvl.Size, domain.ErrInvalidDecimal)
		}
		if s.IsZero() {
			continue
		}
		out = append(out, parsed{lvl: lvl, price: p})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if side == domain.SideBid {
			return out[i].price.GreaterThan(out[j].price)
		}
		return out[i].price.LessThan(out[j].price)
	})

	res := make([]domain.PriceLevel, len(out))
	for i, p := range out {
		res[i] = p.lvl
	}
	return res, nil
}
