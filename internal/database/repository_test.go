package database

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/71220903/coredev-finance-flow-sub001/internal/market"
	"github.com/71220903/coredev-finance-flow-sub001/internal/trust"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()

	db, err := NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewRepository(db)
}

func storedMarket(id string, created time.Time) market.LoanMarket {
	return market.LoanMarket{
		ID:              id,
		Borrower:        "0x" + id,
		LoanAmount:      75_000,
		InterestRateBps: 1350,
		TenorSeconds:    180 * 86400,
		TotalDeposited:  20_000,
		State:           market.StateFunding,
		CreatedAt:       created,
		FundingDeadline: created.AddDate(0, 1, 0),
		RiskScore:       38.5,
		BorrowerProfile: market.DeveloperProfile{
			Address:    "0x" + id,
			TrustScore: 72,
			IsActive:   true,
		},
	}
}

func TestMarketRoundTrip(t *testing.T) {
	repo := newTestRepository(t)
	created := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	m := storedMarket("mkt-1", created)
	require.NoError(t, repo.UpsertMarket(m))

	loaded, err := repo.GetMarket(context.Background(), "mkt-1")
	require.NoError(t, err)
	assert.Equal(t, m.ID, loaded.ID)
	assert.Equal(t, m.LoanAmount, loaded.LoanAmount)
	assert.Equal(t, m.State, loaded.State)
	assert.Equal(t, m.BorrowerProfile.TrustScore, loaded.BorrowerProfile.TrustScore)
	assert.True(t, m.CreatedAt.Equal(loaded.CreatedAt))
}

func TestUpsertMarketReplacesExisting(t *testing.T) {
	repo := newTestRepository(t)
	created := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	m := storedMarket("mkt-1", created)
	require.NoError(t, repo.UpsertMarket(m))

	m.TotalDeposited = 75_000
	m.State = market.StateActive
	require.NoError(t, repo.UpsertMarket(m))

	loaded, err := repo.GetMarket(context.Background(), "mkt-1")
	require.NoError(t, err)
	assert.Equal(t, market.StateActive, loaded.State)
	assert.Equal(t, 75_000.0, loaded.TotalDeposited)

	all, err := repo.ListMarkets(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUpsertMarketRejectsInvalid(t *testing.T) {
	repo := newTestRepository(t)

	m := storedMarket("", time.Now())
	assert.Error(t, repo.UpsertMarket(m))
}

func TestListMarketsNewestFirst(t *testing.T) {
	repo := newTestRepository(t)
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		m := storedMarket(fmt.Sprintf("mkt-%d", i), base.AddDate(0, 0, i))
		require.NoError(t, repo.UpsertMarket(m))
	}

	all, err := repo.ListMarkets(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "mkt-2", all[0].ID)
	assert.Equal(t, "mkt-0", all[2].ID)
}

func TestListMarketsStopsOnCancelledContext(t *testing.T) {
	repo := newTestRepository(t)
	require.NoError(t, repo.UpsertMarket(storedMarket("mkt-1", time.Now())))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.ListMarkets(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGetMarketMissing(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.GetMarket(context.Background(), "unknown")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestBorrowerProfilesOrderedByTrust(t *testing.T) {
	repo := newTestRepository(t)

	scores := []int{55, 90, 72}
	for i, score := range scores {
		p := market.DeveloperProfile{
			Address:      fmt.Sprintf("0xdev%d", i),
			GitHubHandle: fmt.Sprintf("dev%d", i),
			TrustScore:   score,
			RiskCategory: trust.CategoryFromScore(score),
			IsActive:     true,
		}
		require.NoError(t, repo.UpsertBorrowerProfile(p))
	}

	profiles, err := repo.ListBorrowerProfiles(10)
	require.NoError(t, err)
	require.Len(t, profiles, 3)
	assert.Equal(t, 90, profiles[0].TrustScore)
	assert.Equal(t, 55, profiles[2].TrustScore)

	limited, err := repo.ListBorrowerProfiles(1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
