// Package feed multiplexes subscriber interest onto one transport connection
// per feed, parses raw venue messages into typed events, and re-issues
// subscriptions after every reconnect.
package feed

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rileytg/puglies/internal/domain"
)

// Codec translates between one feed's wire protocol and typed events. Each
// feed endpoint speaks a slightly different dialect; everything behind the
// codec is shared.
type Codec interface {
	// SubscribeCmds builds the command(s) registering interest in ids. auth
	// is the session token for authenticated feeds, empty otherwise.
	SubscribeCmds(ids []string, auth string) []any

	// UnsubscribeCmds builds the command(s) dropping interest in ids.
	UnsubscribeCmds(ids []string) []any

	// Parse turns one raw message into typed events. A malformed message
	// returns an error and is dropped by the caller; it never alters state.
	Parse(raw []byte) ([]domain.Event, error)
}

// wireLevel is a price level as the venue sends it. Some message paths
// abbreviate the keys to "p"/"s"; both spellings map to the canonical fields.
type wireLevel struct {
	Price string
	Size  string
}

func (l *wireLevel) UnmarshalJSON(data []byte) error {
	var aux struct {
		Price string `json:"price"`
		P     string `json:"p"`
		Size  string `json:"size"`
		S     string `json:"s"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	l.Price = aux.Price
	if l.Price == "" {
		l.Price = aux.P
	}
	l.Size = aux.Size
	if l.Size == "" {
		l.Size = aux.S
	}
	if l.Price == "" {
		return fmt.Errorf("feed: level missing price: %w", domain.ErrMalformed)
	}
	if l.Size == "" {
		return fmt.Errorf("feed: level missing size: %w", domain.ErrMalformed)
	}
	return nil
}

// wireTime accepts the venue's millisecond timestamps whether they arrive as
// a JSON number or a decimal string (both occur in the wild).
type wireTime struct {
	time.Time
}

func (t *wireTime) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("feed: timestamp %q: %w", s, domain.ErrMalformed)
	}
	t.Time = time.UnixMilli(ms)
	return nil
}

// orTime substitutes now for messages that carry no timestamp.
func (t wireTime) orNow() time.Time {
	if t.Time.IsZero() {
		return time.Now().UTC()
	}
	return t.Time
}

func parseSide(s string) (domain.Side, error) {
	switch strings.ToUpper(s) {
	case "BUY", "BID":
		return domain.SideBid, nil
	case "SELL", "ASK":
		return domain.SideAsk, nil
	default:
		return 0, fmt.Errorf("feed: side %q: %w", s, domain.ErrMalformed)
	}
}

func toLevels(in []wireLevel) []domain.PriceLevel {
	out := make([]domain.PriceLevel, len(in))
	for i, l := range in {
		out[i] = domain.PriceLevel{Price: l.Price, Size: l.Size}
	}
	return out
}
