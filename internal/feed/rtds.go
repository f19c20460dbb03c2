package feed

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rileytg/puglies/internal/domain"
)

// ActivityFeed is the feed name for the real-time data service market channel.
const ActivityFeed = "rtds"

// rtdsCommand registers or drops interest in one market. The endpoint has no
// batch form, so the codec emits one command per id.
type rtdsCommand struct {
	Action  string `json:"action"`
	Channel string `json:"channel"`
	Market  string `json:"market"`
}

// rtdsEnvelope covers both message shapes the channel emits: price updates
// (market, price, timestamp) and trades (adds size and side). Prices arrive
// as JSON numbers; json.Number keeps the venue's exact decimal text.
type rtdsEnvelope struct {
	Type      string      `json:"type"`
	Market    string      `json:"market"`
	Price     json.Number `json:"price"`
	Size      json.Number `json:"size"`
	Side      string      `json:"side"`
	Timestamp *int64      `json:"timestamp"`
}

// RtdsCodec speaks the market-activity channel dialect. It carries no
// orderbooks; the manager routes its events straight to the bridge.
type RtdsCodec struct{}

func (RtdsCodec) SubscribeCmds(ids []string, _ string) []any {
	cmds := make([]any, len(ids))
	for i, id := range ids {
		cmds[i] = rtdsCommand{Action: "subscribe", Channel: "market", Market: id}
	}
	return cmds
}

func (RtdsCodec) UnsubscribeCmds(ids []string) []any {
	cmds := make([]any, len(ids))
	for i, id := range ids {
		cmds[i] = rtdsCommand{Action: "unsubscribe", Channel: "market", Market: id}
	}
	return cmds
}

func (RtdsCodec) Parse(raw []byte) ([]domain.Event, error) {
	var env rtdsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("feed: rtds message: %w: %v", domain.ErrMalformed, err)
	}
	if env.Market == "" || env.Price == "" {
		return nil, fmt.Errorf("feed: rtds message missing market or price: %w", domain.ErrMalformed)
	}

	ts := time.Now().UTC()
	if env.Timestamp != nil {
		ts = time.UnixMilli(*env.Timestamp)
	}

	// Trades carry size and side; everything else is a price update.
	if env.Side != "" && env.Size != "" {
		side, err := parseSide(env.Side)
		if err != nil {
			return nil, err
		}
		return []domain.Event{&domain.Trade{
			Market:    env.Market,
			Price:     env.Price.String(),
			Size:      env.Size.String(),
			Side:      side,
			Timestamp: ts,
		}}, nil
	}

	return []domain.Event{&domain.PriceUpdate{
		Market:    env.Market,
		Price:     env.Price.String(),
		Timestamp: ts,
	}}, nil
}
