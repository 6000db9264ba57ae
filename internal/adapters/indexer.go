package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/71220903/coredev-finance-flow-sub001/internal/market"
	"github.com/71220903/coredev-finance-flow-sub001/internal/resilience"
)

// IndexerMeta carries pagination info returned by the indexer
type IndexerMeta struct {
	ResultCount int `json:"result_count"`
	NextOffset  int `json:"next_offset"`
}

// IndexerMarketsResponse is the envelope for market listings
type IndexerMarketsResponse struct {
	Data []market.LoanMarket `json:"data"`
	Meta IndexerMeta         `json:"meta"`
}

// IndexerMarketResponse is the envelope for a single market
type IndexerMarketResponse struct {
	Data market.LoanMarket `json:"data"`
}

// IndexerAdapter fetches loan market records from the chain indexer API
type IndexerAdapter struct {
	apiKey  string
	baseURL string
	pool    *resilience.ConnectionPool

	// PageSize bounds each listing request; the indexer caps pages at 100
	PageSize int
}

// NewIndexerAdapter creates a new indexer adapter with connection pooling
func NewIndexerAdapter(baseURL, apiKey string) *IndexerAdapter {
	// Registry-backed so the breaker shows up in /health/services
	cb := resilience.GetCircuitBreaker("chain-indexer", resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 3,
	})

	// Create connection pool
	pool := resilience.NewConnectionPool(10, 20, 30*time.Second, cb)

	return &IndexerAdapter{
		apiKey:   apiKey,
		baseURL:  baseURL,
		pool:     pool,
		PageSize: 100,
	}
}

// FetchMarkets fetches one page of market records
func (a *IndexerAdapter) FetchMarkets(ctx context.Context, limit, offset int) ([]market.LoanMarket, IndexerMeta, error) {
	if limit <= 0 {
		limit = a.PageSize
	}
	if limit > 100 {
		limit = 100
	}

	params := url.Values{}
	params.Set("limit", fmt.Sprintf("%d", limit))
	params.Set("offset", fmt.Sprintf("%d", offset))

	endpoint := fmt.Sprintf("%s/v1/markets?%s", a.baseURL, params.Encode())

	resp, err := a.makeRequest(ctx, "GET", endpoint)
	if err != nil {
		return nil, IndexerMeta{}, fmt.Errorf("failed to fetch markets: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, IndexerMeta{}, fmt.Errorf("indexer API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var response IndexerMarketsResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, IndexerMeta{}, fmt.Errorf("failed to decode markets response: %w", err)
	}

	return response.Data, response.Meta, nil
}

// FetchMarket fetches a single market record by ID
func (a *IndexerAdapter) FetchMarket(ctx context.Context, id string) (market.LoanMarket, error) {
	endpoint := fmt.Sprintf("%s/v1/markets/%s", a.baseURL, url.PathEscape(id))

	resp, err := a.makeRequest(ctx, "GET", endpoint)
	if err != nil {
		return market.LoanMarket{}, fmt.Errorf("failed to fetch market %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return market.LoanMarket{}, fmt.Errorf("indexer API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var response IndexerMarketResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return market.LoanMarket{}, fmt.Errorf("failed to decode market response: %w", err)
	}

	return response.Data, nil
}

// LoadCatalogue pages through the indexer until the listing is exhausted.
// This satisfies the catalogue source contract.
func (a *IndexerAdapter) LoadCatalogue(ctx context.Context) ([]market.LoanMarket, error) {
	var all []market.LoanMarket
	offset := 0

	for {
		page, meta, err := a.FetchMarkets(ctx, a.PageSize, offset)
		if err != nil {
			return nil, err
		}

		all = append(all, page...)

		if len(page) == 0 || meta.NextOffset <= offset {
			break
		}
		offset = meta.NextOffset
	}

	return all, nil
}

// makeRequest makes an HTTP request to the indexer API using the connection pool
func (a *IndexerAdapter) makeRequest(ctx context.Context, method, url string) (*http.Response, error) {
	headers := map[string]string{
		"Accept":     "application/json",
		"User-Agent": "coredev-finance/1.0",
	}

	// Add authorization if an API key is configured
	if a.apiKey != "" {
		headers["Authorization"] = "Bearer " + a.apiKey
	}

	return a.pool.DoRequest(ctx, method, url, headers)
}

// GetPoolStats returns connection pool statistics
func (a *IndexerAdapter) GetPoolStats() map[string]interface{} {
	return a.pool.GetStats()
}

// Close closes the connection pool
func (a *IndexerAdapter) Close() error {
	return a.pool.Close()
}
