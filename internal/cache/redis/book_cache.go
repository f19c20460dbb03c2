package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rileytg/puglies/internal/domain"
)

// BookCache implements domain.BookCache, mirroring the top of each asset's
// book into a Redis hash at "book:{assetID}:top". Levels are stored as JSON
// arrays of decimal-string pairs; a stale mirror is better than a reformatted
// one, so nothing is reparsed on the way through.
type BookCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewBookCache creates a BookCache over the given client. Entries expire
// after ttl so a crashed writer does not leave a permanently frozen book;
// ttl <= 0 disables expiry.
func NewBookCache(rdb *redis.Client, ttl time.Duration) *BookCache {
	return &BookCache{rdb: rdb, ttl: ttl}
}

func bookTopKey(assetID string) string {
	return "book:" + assetID + ":top"
}

// SetTop replaces the mirrored top-of-book for an asset.
func (bc *BookCache) SetTop(ctx context.Context, assetID string, bids, asks []domain.PriceLevel, ts time.Time) error {
	bidsJSON, err := json.Marshal(bids)
	if err != nil {
		return fmt.Errorf("redis: encode bids %s: %w", assetID, err)
	}
	asksJSON, err := json.Marshal(asks)
	if err != nil {
		return fmt.Errorf("redis: encode asks %s: %w", assetID, err)
	}

	key := bookTopKey(assetID)
	pipe := bc.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"bids": string(bidsJSON),
		"asks": string(asksJSON),
		"ts":   strconv.FormatInt(ts.UnixNano(), 10),
	})
	if bc.ttl > 0 {
		pipe.Expire(ctx, key, bc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set top %s: %w", assetID, err)
	}
	return nil
}

// GetTop retrieves the mirrored top-of-book for an asset. It returns
// domain.ErrNotFound when nothing has been mirrored (or the entry expired).
func (bc *BookCache) GetTop(ctx context.Context, assetID string) (bids, asks []domain.PriceLevel, ts time.Time, err error) {
	vals, err := bc.rdb.HGetAll(ctx, bookTopKey(assetID)).Result()
	if err != nil {
		return nil, nil, time.Time{}, fmt.Errorf("redis: get top %s: %w", assetID, err)
	}
	if len(vals) == 0 {
		return nil, nil, time.Time{}, domain.ErrNotFound
	}

	if err := json.Unmarshal([]byte(vals["bids"]), &bids); err != nil {
		return nil, nil, time.Time{}, fmt.Errorf("redis: decode bids %s: %w", assetID, err)
	}
	if err := json.Unmarshal([]byte(vals["asks"]), &asks); err != nil {
		return nil, nil, time.Time{}, fmt.Errorf("redis: decode asks %s: %w", assetID, err)
	}
	if tsNano, perr := strconv.ParseInt(vals["ts"], 10, 64); perr == nil {
		ts = time.Unix(0, tsNano)
	}
	return bids, asks, ts, nil
}

// Compile-time interface check.
var _ domain.BookCache = (*BookCache)(nil)
