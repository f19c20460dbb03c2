package feed

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/rileytg/puglies/internal/domain"
)

// OrderBookFeed is the feed name for the CLOB market channel.
const OrderBookFeed = "clob"

// clobCommand is the subscription envelope for the CLOB websocket. The
// endpoint expects both id fields even when one is empty.
type clobCommand struct {
	Type     string   `json:"type"`
	AssetIDs []string `json:"assets_ids"`
	Markets  []string `json:"markets"`
	Auth     string   `json:"auth,omitempty"`
}

type clobEnvelope struct {
	EventType string   `json:"event_type"`
	AssetID   string   `json:"asset_id"`
	Market    string   `json:"market"`
	Timestamp wireTime `json:"timestamp"`

	// book / initial snapshot
	Bids []wireLevel `json:"bids"`
	Asks []wireLevel `json:"asks"`

	// price_change
	PriceChanges []clobPriceChange `json:"price_changes"`

	// last_trade_price
	Price string `json:"price"`
	Size  string `json:"size"`
	Side  string `json:"side"`
}

type clobPriceChange struct {
	AssetID string `json:"asset_id"`
	Price   string `json:"price"`
	Size    string `json:"size"`
	Side    string `json:"side"`
	BestBid string `json:"best_bid"`
	BestAsk string `json:"best_ask"`
}

// ClobCodec speaks the CLOB market-channel dialect: batched subscriptions by
// asset id, snapshots as "book" events (or a bare JSON array right after
// subscribing), deltas as "price_change", trades as "last_trade_price".
type ClobCodec struct{}

func (ClobCodec) SubscribeCmds(ids []string, auth string) []any {
	return []any{clobCommand{Type: "subscribe", AssetIDs: ids, Markets: []string{}, Auth: auth}}
}

func (ClobCodec) UnsubscribeCmds(ids []string) []any {
	return []any{clobCommand{Type: "unsubscribe", AssetIDs: ids, Markets: []string{}}}
}

func (c ClobCodec) Parse(raw []byte) ([]domain.Event, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		// Initial snapshots arrive as an array of books with no event_type.
		var envs []clobEnvelope
		if err := json.Unmarshal(trimmed, &envs); err != nil {
			return nil, fmt.Errorf("feed: clob array: %w: %v", domain.ErrMalformed, err)
		}
		var events []domain.Event
		for _, env := range envs {
			ev, err := c.snapshot(env)
			if err != nil {
				return nil, err
			}
			events = append(events, ev)
		}
		return events, nil
	}

	var env clobEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("feed: clob message: %w: %v", domain.ErrMalformed, err)
	}

	switch env.EventType {
	case "book":
		ev, err := c.snapshot(env)
		if err != nil {
			return nil, err
		}
		return []domain.Event{ev}, nil

	case "price_change":
		ts := env.Timestamp.orNow()
		var events []domain.Event
		for _, pc := range env.PriceChanges {
			side, err := parseSide(pc.Side)
			if err != nil {
				return nil, err
			}
			assetID := pc.AssetID
			if assetID == "" {
				assetID = env.AssetID
			}
			if assetID == "" {
				return nil, fmt.Errorf("feed: price_change missing asset id: %w", domain.ErrMalformed)
			}
			events = append(events, &domain.BookDelta{
				AssetID:   assetID,
				Market:    env.Market,
				Side:      side,
				Price:     pc.Price,
				Size:      pc.Size,
				Timestamp: ts,
			})
			if pc.BestBid != "" || pc.BestAsk != "" {
				events = append(events, &domain.PriceUpdate{
					AssetID:   assetID,
					Market:    env.Market,
					BestBid:   pc.BestBid,
					BestAsk:   pc.BestAsk,
					Timestamp: ts,
				})
			}
		}
		return events, nil

	case "last_trade_price", "trade":
		if env.AssetID == "" || env.Price == "" {
			return nil, fmt.Errorf("feed: trade missing fields: %w", domain.ErrMalformed)
		}
		side, err := parseSide(env.Side)
		if err != nil {
			return nil, err
		}
		return []domain.Event{&domain.Trade{
			AssetID:   env.AssetID,
			Market:    env.Market,
			Price:     env.Price,
			Size:      env.Size,
			Side:      side,
			Timestamp: env.Timestamp.orNow(),
		}}, nil

	case "tick_size_change":
		// Not book-affecting; nothing downstream consumes it.
		return nil, nil

	default:
		return nil, fmt.Errorf("feed: clob event_type %q: %w", env.EventType, domain.ErrMalformed)
	}
}

func (ClobCodec) snapshot(env clobEnvelope) (domain.Event, error) {
	if env.AssetID == "" {
		return nil, fmt.Errorf("feed: book missing asset id: %w", domain.ErrMalformed)
	}
	return &domain.BookSnapshot{
		AssetID:   env.AssetID,
		Market:    env.Market,
		Bids:      toLevels(env.Bids),
		Asks:      toLevels(env.Asks),
		Timestamp: env.Timestamp.orNow(),
	}, nil
}
