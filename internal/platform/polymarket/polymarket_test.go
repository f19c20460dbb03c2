package polymarket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileytg/puglies/internal/domain"
)

func TestToDomainMarketDecodesNestedArrays(t *testing.T) {
	api := APIMarket{
		ID:           "12345",
		Question:     "Will it rain tomorrow?",
		Slug:         "will-it-rain-tomorrow",
		ConditionID:  "0xcond",
		Active:       true,
		Outcomes:     `["Yes","No"]`,
		ClobTokenIDs: `["111","222"]`,
		Volume:       "98765.43",
		CreatedAt:    "2026-01-02T15:04:05Z",
	}

	m := api.ToDomainMarket()
	assert.Equal(t, "12345", m.ID)
	assert.Equal(t, [2]string{"Yes", "No"}, m.Outcomes)
	assert.Equal(t, [2]string{"111", "222"}, m.TokenIDs)
	assert.Equal(t, domain.MarketStatusActive, m.Status)
	assert.InDelta(t, 98765.43, m.Volume, 0.001)
	assert.False(t, m.CreatedAt.IsZero())
}

func TestToDomainMarketClosedWinsOverActive(t *testing.T) {
	api := APIMarket{ID: "1", Active: true, Closed: true}
	assert.Equal(t, domain.MarketStatusClosed, api.ToDomainMarket().Status)
}

func TestFlexBoolAcceptsStringForms(t *testing.T) {
	var m APIMarket
	require.NoError(t, unmarshal(`{"id":"1","active":"true"}`, &m))
	assert.True(t, bool(m.Active))
	require.NoError(t, unmarshal(`{"id":"1","active":false}`, &m))
	assert.False(t, bool(m.Active))
	assert.Error(t, unmarshal(`{"id":"1","active":7}`, &m))
}

func unmarshal(raw string, v any) error { return json.Unmarshal([]byte(raw), v) }

func TestGammaGetMarketBySlug(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets", r.URL.Path)
		assert.Equal(t, "will-it-rain-tomorrow", r.URL.Query().Get("slug"))
		w.Write([]byte(`[{"id":"12345","question":"Will it rain tomorrow?",
			"slug":"will-it-rain-tomorrow","active":true,
			"outcomes":"[\"Yes\",\"No\"]","clobTokenIds":"[\"111\",\"222\"]"}]`))
	}))
	defer srv.Close()

	g := NewGammaClient(srv.URL)
	m, err := g.GetMarketBySlug(context.Background(), "will-it-rain-tomorrow")
	require.NoError(t, err)
	assert.Equal(t, "12345", m.ID)
	assert.Equal(t, [2]string{"111", "222"}, m.TokenIDs)
}

func TestGammaSlugNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	_, err := NewGammaClient(srv.URL).GetMarketBySlug(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCheckHTTPStatusMapping(t *testing.T) {
	assert.NoError(t, checkHTTPStatus(200, nil))
	assert.ErrorIs(t, checkHTTPStatus(404, []byte("missing")), domain.ErrNotFound)
	assert.ErrorIs(t, checkHTTPStatus(401, nil), domain.ErrUnauthorized)
	assert.ErrorIs(t, checkHTTPStatus(403, nil), domain.ErrUnauthorized)
	assert.ErrorIs(t, checkHTTPStatus(429, nil), domain.ErrRateLimited)
	assert.Error(t, checkHTTPStatus(500, []byte("boom")))
}
