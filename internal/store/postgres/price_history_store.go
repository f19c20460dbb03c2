package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rileytg/puglies/internal/domain"
)

// PriceHistoryStore implements domain.PriceHistoryStore using PostgreSQL.
type PriceHistoryStore struct {
	pool *pgxpool.Pool
}

var _ domain.PriceHistoryStore = (*PriceHistoryStore)(nil)

// NewPriceHistoryStore creates a new PriceHistoryStore backed by the given
// connection pool.
func NewPriceHistoryStore(pool *pgxpool.Pool) *PriceHistoryStore {
	return &PriceHistoryStore{pool: pool}
}

func scanPricePointRows(rows pgx.Rows) ([]domain.PricePoint, error) {
	var points []domain.PricePoint
	for rows.Next() {
		var pt domain.PricePoint
		if err := rows.Scan(&pt.AssetID, &pt.BestBid, &pt.BestAsk, &pt.ObservedAt); err != nil {
			return nil, err
		}
		points = append(points, pt)
	}
	return points, rows.Err()
}

// Append stores a single price observation.
func (s *PriceHistoryStore) Append(ctx context.Context, pt domain.PricePoint) error {
	const query = `
		INSERT INTO price_history (asset_id, best_bid, best_ask, observed_at)
		VALUES ($1, $2, $3, $4)`

	if _, err := s.pool.Exec(ctx, query,
		pt.AssetID, nullIfEmpty(pt.BestBid), nullIfEmpty(pt.BestAsk), pt.ObservedAt,
	); err != nil {
		return fmt.Errorf("postgres: append price point: %w", err)
	}
	return nil
}

// AppendBatch inserts multiple observations efficiently using pgx Batch.
func (s *PriceHistoryStore) AppendBatch(ctx context.Context, points []domain.PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO price_history (asset_id, best_bid, best_ask, observed_at)
		VALUES ($1, $2, $3, $4)`

	for _, pt := range points {
		batch.Queue(query,
			pt.AssetID, nullIfEmpty(pt.BestBid), nullIfEmpty(pt.BestAsk), pt.ObservedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range points {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: append price point batch item %d: %w", i, err)
		}
	}
	return nil
}

// Range returns observations for an asset within [from, to], oldest first.
// A limit of zero or less means no limit.
func (s *PriceHistoryStore) Range(ctx context.Context, assetID string, from, to time.Time, limit int) ([]domain.PricePoint, error) {
	query := `
		SELECT asset_id, COALESCE(best_bid::text, ''), COALESCE(best_ask::text, ''), observed_at
		FROM price_history
		WHERE asset_id = $1 AND observed_at >= $2 AND observed_at <= $3
		ORDER BY observed_at ASC`

	args := []any{assetID, from, to}
	if limit > 0 {
		query += ` LIMIT $4`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: range price history: %w", err)
	}
	defer rows.Close()

	points, err := scanPricePointRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan price history: %w", err)
	}
	return points, nil
}

// PruneBefore deletes observations older than the cutoff and reports how many
// rows were removed.
func (s *PriceHistoryStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM price_history WHERE observed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: prune price history: %w", err)
	}
	return tag.RowsAffected(), nil
}

// nullIfEmpty maps the empty string to a SQL NULL so numeric columns accept
// updates that carry only one side of the book.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
