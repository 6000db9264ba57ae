package catalog

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/71220903/coredev-finance-flow-sub001/internal/market"
	"github.com/71220903/coredev-finance-flow-sub001/internal/pricing"
	"github.com/71220903/coredev-finance-flow-sub001/internal/risk"
	"github.com/71220903/coredev-finance-flow-sub001/internal/trust"
)

type stubSource struct {
	markets []market.LoanMarket
	err     error
	calls   int
}

func (s *stubSource) LoadCatalogue(_ context.Context) ([]market.LoanMarket, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.markets, nil
}

func testMarket(id string, trustScore int) market.LoanMarket {
	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	return market.LoanMarket{
		ID:              id,
		Borrower:        "0x" + id,
		LoanAmount:      50_000,
		InterestRateBps: 1200,
		TenorSeconds:    90 * 86400,
		TotalDeposited:  10_000,
		State:           market.StateFunding,
		CreatedAt:       created,
		FundingDeadline: created.AddDate(0, 1, 0),
		Conditions: pricing.Conditions{
			BaseRate:            8.0,
			RiskPremium:         4.0,
			LiquidityMultiplier: 1.0,
			MarketVolatility:    0.2,
			DemandSupplyRatio:   1.0,
			LastUpdated:         created,
		},
		RiskAssessment: risk.Assessment{
			OverallRisk: risk.LevelMedium,
			RiskScore:   40,
			LastUpdated: created,
		},
		BorrowerProfile: market.DeveloperProfile{
			Address:    "0x" + id,
			TrustScore: trustScore,
			IsActive:   true,
		},
		Project: market.ProjectData{Title: "Test market " + id},
	}
}

func TestSeedSourceIsDeterministic(t *testing.T) {
	first, err := NewSeedSource(42, 12).LoadCatalogue(context.Background())
	require.NoError(t, err)
	second, err := NewSeedSource(42, 12).LoadCatalogue(context.Background())
	require.NoError(t, err)

	require.Len(t, first, 12)
	assert.Equal(t, first, second, "same seed must reproduce the same catalogue")

	other, err := NewSeedSource(7, 12).LoadCatalogue(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first, other, "different seeds should diverge")
}

func TestSeedSourceProducesValidMarkets(t *testing.T) {
	markets, err := NewSeedSource(99, 30).LoadCatalogue(context.Background())
	require.NoError(t, err)
	require.Len(t, markets, 30)

	for _, m := range markets {
		assert.NoError(t, m.Validate(), "market %s", m.ID)
		assert.GreaterOrEqual(t, m.BorrowerProfile.TrustScore, 0)
		assert.LessOrEqual(t, m.BorrowerProfile.TrustScore, 100)
		assert.Equal(t, trust.CategoryFromScore(m.BorrowerProfile.TrustScore), m.BorrowerProfile.RiskCategory)
		assert.GreaterOrEqual(t, m.SuggestedRate, m.Conditions.BaseRate*pricing.MinRateFraction)
	}
}

func TestSeedFactorsCoverEveryTrustKey(t *testing.T) {
	factors := seedFactors(rand.New(rand.NewSource(1)))
	require.Len(t, factors, len(trust.AllFactorKeys))

	sum := 0.0
	for _, key := range trust.AllFactorKeys {
		f, ok := factors[key]
		require.True(t, ok, "no factor generated for %s", key)
		assert.Greater(t, f.Weight, 0.0, "factor %s carries no weight", key)
		sum += f.Weight
	}
	assert.InDelta(t, 1.0, sum, 1e-9, "seed weights must form a full distribution")
}

func TestRefreshPopulatesSnapshot(t *testing.T) {
	src := &stubSource{markets: []market.LoanMarket{
		testMarket("m1", 90),
		testMarket("m2", 55),
	}}
	svc := NewService(src)

	require.NoError(t, svc.Refresh(context.Background()))
	assert.Equal(t, 2, svc.Size())
	assert.False(t, svc.RefreshedAt().IsZero())

	got, err := svc.Get("m1")
	require.NoError(t, err)
	assert.Equal(t, "m1", got.ID)

	_, err = svc.Get("missing")
	assert.Error(t, err)
}

func TestRefreshDerivesEmbeddedValues(t *testing.T) {
	m := testMarket("m1", 85)
	m.RiskScore = 999                    // stale, must be rederived
	m.SuggestedRate = 0                  // stale
	m.BorrowerProfile.RiskCategory = " " // drifted

	src := &stubSource{markets: []market.LoanMarket{m}}
	svc := NewService(src)
	require.NoError(t, svc.Refresh(context.Background()))

	got, err := svc.Get("m1")
	require.NoError(t, err)

	assert.Equal(t, 40.0, got.RiskScore, "risk score comes from the assessment")
	assert.Equal(t, trust.RiskLow, got.BorrowerProfile.RiskCategory)

	want, err := pricing.SuggestRate(got.Conditions, 85, 40)
	require.NoError(t, err)
	assert.InDelta(t, want, got.SuggestedRate, 1e-9)
}

func TestRefreshDropsInvalidRecords(t *testing.T) {
	bad := testMarket("m2", 70)
	bad.LoanAmount = -1

	src := &stubSource{markets: []market.LoanMarket{testMarket("m1", 70), bad}}
	svc := NewService(src)

	require.NoError(t, svc.Refresh(context.Background()))
	assert.Equal(t, 1, svc.Size())
	_, err := svc.Get("m2")
	assert.Error(t, err)
}

func TestFailedRefreshKeepsPreviousSnapshot(t *testing.T) {
	src := &stubSource{markets: []market.LoanMarket{testMarket("m1", 70)}}
	svc := NewService(src)
	require.NoError(t, svc.Refresh(context.Background()))

	src.err = assert.AnError
	err := svc.Refresh(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, svc.Size(), "old snapshot keeps serving after a failed reload")

	got, getErr := svc.Get("m1")
	require.NoError(t, getErr)
	assert.Equal(t, "m1", got.ID)
}

func TestQueryAppliesFiltersToSnapshot(t *testing.T) {
	m1 := testMarket("m1", 95)
	m2 := testMarket("m2", 50)
	src := &stubSource{markets: []market.LoanMarket{m1, m2}}
	svc := NewService(src)
	require.NoError(t, svc.Refresh(context.Background()))

	f := market.DefaultFilters()
	f.MinTrustScore = 80
	results := svc.Query(f)

	require.Len(t, results, 1)
	assert.Equal(t, "m1", results[0].ID)
}

func TestStatsAggregatesSnapshot(t *testing.T) {
	src := &stubSource{markets: []market.LoanMarket{
		testMarket("m1", 90),
		testMarket("m2", 70),
	}}
	svc := NewService(src)
	require.NoError(t, svc.Refresh(context.Background()))

	stats := svc.Stats()
	assert.Equal(t, 2, stats.ActiveMarkets)
	assert.Equal(t, 100_000.0, stats.TotalRequested)
	assert.Equal(t, 80.0, stats.AvgTrustScore)
}
