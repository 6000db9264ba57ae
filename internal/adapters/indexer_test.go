package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/71220903/coredev-finance-flow-sub001/internal/market"
)

func indexerFixture(id string) market.LoanMarket {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	return market.LoanMarket{
		ID:              id,
		ContractAddress: "0xmarket" + id,
		Borrower:        "0xborrower" + id,
		LoanAmount:      25000,
		InterestRateBps: 950,
		TenorSeconds:    90 * 24 * 3600,
		TotalDeposited:  5000,
		State:           market.StateFunding,
		CreatedAt:       now,
		FundingDeadline: now.Add(14 * 24 * time.Hour),
	}
}

func TestFetchMarketsDecodesEnvelope(t *testing.T) {
	var gotAuth, gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		assert.Equal(t, "/v1/markets", r.URL.Path)
		assert.Equal(t, "50", r.URL.Query().Get("limit"))

		resp := IndexerMarketsResponse{
			Data: []market.LoanMarket{indexerFixture("m-1"), indexerFixture("m-2")},
			Meta: IndexerMeta{ResultCount: 2},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	adapter := NewIndexerAdapter(server.URL, "test-key")
	defer adapter.Close()

	markets, meta, err := adapter.FetchMarkets(context.Background(), 50, 0)
	require.NoError(t, err)

	assert.Len(t, markets, 2)
	assert.Equal(t, "m-1", markets[0].ID)
	assert.Equal(t, 2, meta.ResultCount)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "application/json", gotAccept)
}

func TestFetchMarketsClampsPageSize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		json.NewEncoder(w).Encode(IndexerMarketsResponse{})
	}))
	defer server.Close()

	adapter := NewIndexerAdapter(server.URL, "")
	defer adapter.Close()

	_, _, err := adapter.FetchMarkets(context.Background(), 5000, 0)
	require.NoError(t, err)
}

func TestFetchMarketsPropagatesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"indexer catching up"}`))
	}))
	defer server.Close()

	adapter := NewIndexerAdapter(server.URL, "")
	defer adapter.Close()

	_, _, err := adapter.FetchMarkets(context.Background(), 10, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestFetchMarketByID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/markets/m-42", r.URL.Path)
		json.NewEncoder(w).Encode(IndexerMarketResponse{Data: indexerFixture("m-42")})
	}))
	defer server.Close()

	adapter := NewIndexerAdapter(server.URL, "")
	defer adapter.Close()

	m, err := adapter.FetchMarket(context.Background(), "m-42")
	require.NoError(t, err)
	assert.Equal(t, "m-42", m.ID)
	assert.Equal(t, 950, m.InterestRateBps)
}

func TestLoadCataloguePagesUntilExhausted(t *testing.T) {
	pages := map[string]IndexerMarketsResponse{
		"0": {Data: []market.LoanMarket{indexerFixture("m-1"), indexerFixture("m-2")}, Meta: IndexerMeta{ResultCount: 2, NextOffset: 2}},
		"2": {Data: []market.LoanMarket{indexerFixture("m-3")}, Meta: IndexerMeta{ResultCount: 1, NextOffset: 2}},
	}

	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		resp, ok := pages[r.URL.Query().Get("offset")]
		if !ok {
			json.NewEncoder(w).Encode(IndexerMarketsResponse{})
			return
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	adapter := NewIndexerAdapter(server.URL, "")
	defer adapter.Close()

	all, err := adapter.LoadCatalogue(context.Background())
	require.NoError(t, err)

	assert.Len(t, all, 3)
	assert.Equal(t, 2, requests, "pagination must stop once next_offset stops advancing")
}

func TestLoadCatalogueSurfacesPageErrors(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			json.NewEncoder(w).Encode(IndexerMarketsResponse{
				Data: []market.LoanMarket{indexerFixture("m-1")},
				Meta: IndexerMeta{ResultCount: 1, NextOffset: 1},
			})
			return
		}
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	adapter := NewIndexerAdapter(server.URL, "")
	defer adapter.Close()

	_, err := adapter.LoadCatalogue(context.Background())
	require.Error(t, err)
}

func TestIndexerPoolStats(t *testing.T) {
	adapter := NewIndexerAdapter("http://localhost:0", "")
	defer adapter.Close()

	stats := adapter.GetPoolStats()
	require.NotNil(t, stats)
	assert.Contains(t, stats, "in_flight_requests")
	assert.Contains(t, stats, "circuit_breaker_state")
}
