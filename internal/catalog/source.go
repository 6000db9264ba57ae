package catalog

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/71220903/coredev-finance-flow-sub001/internal/database"
	"github.com/71220903/coredev-finance-flow-sub001/internal/market"
	"github.com/71220903/coredev-finance-flow-sub001/internal/pricing"
	"github.com/71220903/coredev-finance-flow-sub001/internal/risk"
	"github.com/71220903/coredev-finance-flow-sub001/internal/trust"
)

// Source supplies the raw market catalogue on each refresh cycle.
type Source interface {
	LoadCatalogue(ctx context.Context) ([]market.LoanMarket, error)
}

// StoreSource loads the catalogue from the sqlite-backed repository.
type StoreSource struct {
	repo *database.Repository
}

func NewStoreSource(repo *database.Repository) *StoreSource {
	return &StoreSource{repo: repo}
}

func (s *StoreSource) LoadCatalogue(ctx context.Context) ([]market.LoanMarket, error) {
	return s.repo.ListMarkets(ctx)
}

// SeedSource generates a deterministic catalogue for development and tests.
// The same seed always produces the same markets, so fixtures stay stable
// across runs without a database.
type SeedSource struct {
	seed  int64
	count int
}

func NewSeedSource(seed int64, count int) *SeedSource {
	if count <= 0 {
		count = 24
	}
	return &SeedSource{seed: seed, count: count}
}

var seedSectors = [][]string{
	{"defi", "infrastructure"},
	{"developer-tools", "open-source"},
	{"gaming", "nft"},
	{"payments", "fintech"},
	{"data", "analytics"},
	{"security", "auditing"},
}

var seedTitles = []string{
	"Protocol indexer rewrite",
	"Cross-chain settlement bridge",
	"On-call tooling platform",
	"Wallet SDK hardening",
	"Order book analytics engine",
	"Audit pipeline automation",
}

func (s *SeedSource) LoadCatalogue(_ context.Context) ([]market.LoanMarket, error) {
	rng := rand.New(rand.NewSource(s.seed))
	base := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

	markets := make([]market.LoanMarket, 0, s.count)
	for i := 0; i < s.count; i++ {
		factors := seedFactors(rng)
		score, err := trust.ComputeScore(factors)
		if err != nil {
			return nil, fmt.Errorf("seed trust score: %w", err)
		}

		assessment, err := risk.ComputeAssessment(seedRiskFactors(rng))
		if err != nil {
			return nil, fmt.Errorf("seed risk assessment: %w", err)
		}

		conditions := pricing.Conditions{
			BaseRate:            8.0 + rng.Float64()*2.0,
			RiskPremium:         3.0 + rng.Float64()*3.0,
			LiquidityMultiplier: 0.9 + rng.Float64()*0.3,
			MarketVolatility:    rng.Float64() * 0.6,
			DemandSupplyRatio:   0.7 + rng.Float64()*0.8,
			LastUpdated:         base,
		}

		rate, err := pricing.SuggestRate(conditions, float64(score.TotalScore), assessment.RiskScore)
		if err != nil {
			return nil, fmt.Errorf("seed rate suggestion: %w", err)
		}

		amount := float64(10_000 + rng.Intn(90)*1_000)
		deposited := amount * float64(rng.Intn(101)) / 100
		created := base.Add(time.Duration(i) * 6 * time.Hour)

		resolved := rng.Intn(12)
		successful := 0
		if resolved > 0 {
			successful = rng.Intn(resolved + 1)
		}

		borrower := fmt.Sprintf("0x%040x", rng.Int63())
		requiredStake := amount * 0.1

		m := market.LoanMarket{
			ID:              uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("seed-market-%d-%d", s.seed, i))).String(),
			ContractAddress: fmt.Sprintf("0x%040x", rng.Int63()),
			Borrower:        borrower,
			LoanAmount:      amount,
			InterestRateBps: pricing.RateToBps(rate),
			TenorSeconds:    int64(30*(1+rng.Intn(12))) * 86400,
			TotalDeposited:  deposited,
			State:           seedState(rng, deposited, amount),
			CreatedAt:       created,
			FundingDeadline: created.AddDate(0, 0, 14+rng.Intn(14)),
			RiskScore:       assessment.RiskScore,
			SuggestedRate:   rate,
			MinimumStake:    requiredStake,
			Staking: market.StakingInfo{
				RequiredStake: requiredStake,
				ActualStaked:  requiredStake * (0.5 + rng.Float64()*0.6),
				LockedUntil:   created.AddDate(0, 6, 0),
				SlashingRisk:  rng.Float64() * 0.2,
			},
			Conditions:     conditions,
			RiskAssessment: assessment,
			BorrowerProfile: market.DeveloperProfile{
				Address:           borrower,
				GitHubHandle:      fmt.Sprintf("builder-%02d", i),
				TrustScore:        score.TotalScore,
				CompletedProjects: resolved + rng.Intn(5),
				SuccessfulLoans:   successful,
				DefaultedLoans:    resolved - successful,
				TotalBorrowed:     amount * float64(1+resolved),
				TotalRepaid:       amount * float64(successful),
				IsVerified:        rng.Intn(4) != 0,
				IsActive:          true,
				LastActivityAt:    created,
			},
			Project: market.ProjectData{
				Title:       seedTitles[i%len(seedTitles)],
				Description: "Deterministic development market",
				Tags:        seedSectors[i%len(seedSectors)],
			},
		}
		m.BorrowerProfile.Normalize()
		markets = append(markets, m)
	}
	return markets, nil
}

func seedState(rng *rand.Rand, deposited, amount float64) market.State {
	if deposited >= amount {
		switch rng.Intn(4) {
		case 0:
			return market.StateRepaid
		case 1:
			return market.StateDefaulted
		default:
			return market.StateActive
		}
	}
	if rng.Intn(8) == 0 {
		return market.StateCancelled
	}
	return market.StateFunding
}

func seedFactors(rng *rand.Rand) map[trust.FactorKey]trust.Factor {
	weights := map[trust.FactorKey]float64{
		trust.FactorGitHubActivity:         0.20,
		trust.FactorCodeQuality:            0.15,
		trust.FactorCommunityEngagement:    0.10,
		trust.FactorProjectComplexity:      0.10,
		trust.FactorConsistencyReliability: 0.15,
		trust.FactorSecurityPractices:      0.10,
		trust.FactorOnChainHistory:         0.10,
		trust.FactorVerificationStatus:     0.10,
	}
	factors := make(map[trust.FactorKey]trust.Factor, len(trust.AllFactorKeys))
	for _, key := range trust.AllFactorKeys {
		factors[key] = trust.Factor{
			Key:      key,
			Score:    20 + rng.Float64()*80,
			MaxScore: 100,
			Weight:   weights[key],
		}
	}
	return factors
}

func seedRiskFactors(rng *rand.Rand) []risk.Factor {
	return []risk.Factor{
		{Name: "Repayment history", Category: risk.CategoryCredit, Value: rng.Float64() * 80, Weight: 0.35, Impact: risk.ImpactHigh, Description: "missed or late repayments on prior loans"},
		{Name: "Rate environment", Category: risk.CategoryMarket, Value: rng.Float64() * 70, Weight: 0.25, Impact: risk.ImpactMedium, Description: "sensitivity to benchmark rate moves"},
		{Name: "Delivery risk", Category: risk.CategoryTechnical, Value: rng.Float64() * 60, Weight: 0.20, Impact: risk.ImpactMedium, Description: "project slippage against milestones"},
		{Name: "Exit liquidity", Category: risk.CategoryLiquidity, Value: rng.Float64() * 90, Weight: 0.20, Impact: risk.ImpactHigh, Description: "depth available for early lender exits"},
	}
}
