package domain

import "time"

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusActive  MarketStatus = "active"
	MarketStatusClosed  MarketStatus = "closed"
	MarketStatusSettled MarketStatus = "settled"
)

// Market is the metadata for one Polymarket prediction market. Books are
// keyed by the per-outcome token id, not the condition id; a Market exists to
// map human-readable info onto those token ids.
type Market struct {
	ID          string
	Question    string
	Slug        string
	Outcomes    [2]string // e.g. ["Yes","No"]
	TokenIDs    [2]string // ERC-1155 token IDs (76-digit strings)
	ConditionID string
	Status      MarketStatus
	Volume      float64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
