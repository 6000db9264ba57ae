package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/71220903/coredev-finance-flow-sub001/internal/pricing"
	"github.com/71220903/coredev-finance-flow-sub001/internal/resilience"
)

// OracleAuthConfig holds rates oracle authentication configuration
type OracleAuthConfig struct {
	APIKey    string
	APISecret string
}

// OracleAdapter fetches market conditions from the rates oracle API
type OracleAdapter struct {
	config  OracleAuthConfig
	pool    *resilience.ConnectionPool
	baseURL string
}

// NewOracleAdapter creates a new oracle adapter with authentication and connection pooling
func NewOracleAdapter(baseURL string, config OracleAuthConfig) *OracleAdapter {
	// Registry-backed so the breaker shows up in /health/services
	cb := resilience.GetCircuitBreaker("rates-oracle", resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 3,
	})

	// Create connection pool
	pool := resilience.NewConnectionPool(10, 20, 30*time.Second, cb)

	return &OracleAdapter{
		config:  config,
		pool:    pool,
		baseURL: baseURL,
	}
}

// NewOracleAdapterWithKey creates a new oracle adapter with an API key only
func NewOracleAdapterWithKey(baseURL, apiKey string) *OracleAdapter {
	return NewOracleAdapter(baseURL, OracleAuthConfig{APIKey: apiKey})
}

// oracleRatesResponse mirrors the oracle's /v1/rates/current payload
type oracleRatesResponse struct {
	BaseRate            float64   `json:"base_rate"`
	RiskPremium         float64   `json:"risk_premium"`
	LiquidityMultiplier float64   `json:"liquidity_multiplier"`
	VolatilityIndex     float64   `json:"volatility_index"`
	DemandSupplyRatio   float64   `json:"demand_supply_ratio"`
	AsOf                time.Time `json:"as_of"`
}

// IsAuthenticated checks if the adapter has valid authentication
func (o *OracleAdapter) IsAuthenticated() bool {
	return o.config.APIKey != ""
}

// ValidateCredentials tests the authentication with a simple API call
func (o *OracleAdapter) ValidateCredentials(ctx context.Context) error {
	if !o.IsAuthenticated() {
		return fmt.Errorf("no authentication configured")
	}

	// Make a simple request to test credentials
	if _, err := o.fetchRates(ctx); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	return nil
}

// FetchConditions returns the current market conditions. When the oracle
// is unreachable or returns an invalid snapshot, deterministic synthetic
// conditions are substituted so rate suggestion keeps working.
func (o *OracleAdapter) FetchConditions(ctx context.Context) (pricing.Conditions, error) {
	rates, err := o.fetchRates(ctx)
	if err != nil {
		// Fallback to synthetic data if the API fails
		return o.SyntheticConditions(time.Now().Unix() / 3600), nil
	}

	conditions := pricing.Conditions{
		BaseRate:            rates.BaseRate,
		RiskPremium:         rates.RiskPremium,
		LiquidityMultiplier: rates.LiquidityMultiplier,
		MarketVolatility:    rates.VolatilityIndex,
		DemandSupplyRatio:   rates.DemandSupplyRatio,
		LastUpdated:         rates.AsOf,
	}

	if err := conditions.Validate(); err != nil {
		// Oracle returned an out-of-range snapshot; use synthetic data
		return o.SyntheticConditions(time.Now().Unix() / 3600), nil
	}

	return conditions, nil
}

// fetchRates performs an authenticated request to the oracle API
func (o *OracleAdapter) fetchRates(ctx context.Context) (oracleRatesResponse, error) {
	headers := map[string]string{
		"Accept":       "application/json",
		"Content-Type": "application/json",
	}
	if o.config.APIKey != "" {
		headers["Authorization"] = "Bearer " + o.config.APIKey
	}

	resp, err := o.pool.DoRequest(ctx, "GET", o.baseURL+"/v1/rates/current", headers)
	if err != nil {
		return oracleRatesResponse{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return oracleRatesResponse{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return oracleRatesResponse{}, fmt.Errorf("oracle API error %d: %s", resp.StatusCode, string(body))
	}

	var rates oracleRatesResponse
	if err := json.Unmarshal(body, &rates); err != nil {
		return oracleRatesResponse{}, fmt.Errorf("failed to parse rates response: %w", err)
	}

	return rates, nil
}

// SyntheticConditions generates plausible market conditions seeded by the
// given value. The same seed always yields the same snapshot, which keeps
// fallback pricing stable within an hour.
func (o *OracleAdapter) SyntheticConditions(seed int64) pricing.Conditions {
	r := rand.New(rand.NewSource(seed))

	return pricing.Conditions{
		BaseRate:            4.0 + r.Float64()*4.0, // 4-8% base rate
		RiskPremium:         1.0 + r.Float64()*2.0, // 1-3% premium
		LiquidityMultiplier: 0.8 + r.Float64()*0.4, // 0.8-1.2
		MarketVolatility:    0.1 + r.Float64()*0.5, // 0.1-0.6
		DemandSupplyRatio:   0.6 + r.Float64()*0.8, // 0.6-1.4
		LastUpdated:         time.Now(),
	}
}

// GetPoolStats returns connection pool statistics
func (o *OracleAdapter) GetPoolStats() map[string]interface{} {
	return o.pool.GetStats()
}

// Close closes the connection pool
func (o *OracleAdapter) Close() error {
	return o.pool.Close()
}
