package domain

import (
	"context"
	"time"
)

// PriceCache is the hot cache of latest prices, written through from the
// event bridge so presentation layers can read without touching a feed.
type PriceCache interface {
	SetPrice(ctx context.Context, assetID string, upd PriceUpdate) error
	GetPrice(ctx context.Context, assetID string) (PriceUpdate, error)
}

// BookCache mirrors the current top-of-book per asset.
type BookCache interface {
	SetTop(ctx context.Context, assetID string, bids, asks []PriceLevel, ts time.Time) error
	GetTop(ctx context.Context, assetID string) (bids, asks []PriceLevel, ts time.Time, err error)
}

// PricePoint is one stored historical price observation.
type PricePoint struct {
	AssetID    string
	BestBid    string
	BestAsk    string
	ObservedAt time.Time
}

// PriceHistoryStore persists price observations for charting. Storage is a
// collaborator of the sync core, never in its hot path.
type PriceHistoryStore interface {
	Append(ctx context.Context, pt PricePoint) error
	Range(ctx context.Context, assetID string, from, to time.Time, limit int) ([]PricePoint, error)
}

// MetadataService resolves human-readable market info. The sync core itself
// never calls it; the composition root uses it to turn configured market
// slugs into token ids.
type MetadataService interface {
	GetMarket(ctx context.Context, id string) (Market, error)
	GetMarketBySlug(ctx context.Context, slug string) (Market, error)
}
