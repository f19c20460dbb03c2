package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rileytg/puglies/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each asset's
// latest pricing is stored at key "price:{assetID}" with the decimal strings
// kept verbatim, so readers in other processes see exactly what the feed
// sent.
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache over the given client.
func NewPriceCache(rdb *redis.Client) *PriceCache {
	return &PriceCache{rdb: rdb}
}

func priceKey(assetID string) string {
	return "price:" + assetID
}

// SetPrice stores the latest price update for an asset.
func (pc *PriceCache) SetPrice(ctx context.Context, assetID string, upd domain.PriceUpdate) error {
	key := priceKey(assetID)
	fields := map[string]interface{}{
		"market":   upd.Market,
		"price":    upd.Price,
		"best_bid": upd.BestBid,
		"best_ask": upd.BestAsk,
		"ts":       strconv.FormatInt(upd.Timestamp.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("redis: set price %s: %w", assetID, err)
	}
	return nil
}

// GetPrice retrieves the latest price update for an asset.
// It returns domain.ErrNotFound when the key does not exist.
func (pc *PriceCache) GetPrice(ctx context.Context, assetID string) (domain.PriceUpdate, error) {
	key := priceKey(assetID)
	vals, err := pc.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return domain.PriceUpdate{}, fmt.Errorf("redis: get price %s: %w", assetID, err)
	}
	if len(vals) == 0 {
		return domain.PriceUpdate{}, domain.ErrNotFound
	}

	upd := domain.PriceUpdate{
		AssetID: assetID,
		Market:  vals["market"],
		Price:   vals["price"],
		BestBid: vals["best_bid"],
		BestAsk: vals["best_ask"],
	}
	if tsNano, err := strconv.ParseInt(vals["ts"], 10, 64); err == nil {
		upd.Timestamp = time.Unix(0, tsNano)
	}
	return upd, nil
}

// GetPrices retrieves the latest price updates for multiple assets using a
// pipeline. Assets whose keys do not exist are silently omitted from the
// result map.
func (pc *PriceCache) GetPrices(ctx context.Context, assetIDs []string) (map[string]domain.PriceUpdate, error) {
	if len(assetIDs) == 0 {
		return map[string]domain.PriceUpdate{}, nil
	}

	pipe := pc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(assetIDs))
	for _, id := range assetIDs {
		cmds[id] = pipe.HGetAll(ctx, priceKey(id))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get prices pipeline: %w", err)
	}

	result := make(map[string]domain.PriceUpdate, len(assetIDs))
	for id, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		upd := domain.PriceUpdate{
			AssetID: id,
			Market:  vals["market"],
			Price:   vals["price"],
			BestBid: vals["best_bid"],
			BestAsk: vals["best_ask"],
		}
		if tsNano, err := strconv.ParseInt(vals["ts"], 10, 64); err == nil {
			upd.Timestamp = time.Unix(0, tsNano)
		}
		result[id] = upd
	}

	return result, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
