package market

// PlatformStats is the platform-wide summary folded from a catalogue
// snapshot.
type PlatformStats struct {
	TotalRequested  float64 `json:"total_requested"`
	AvgInterestRate float64 `json:"avg_interest_rate"`
	AvgTrustScore   float64 `json:"avg_trust_score"`
	SuccessRate     float64 `json:"success_rate"`
	ActiveMarkets   int     `json:"active_markets"`
	FundingMarkets  int     `json:"funding_markets"`
	TotalStaked     float64 `json:"total_staked"`
}

// ComputeStats reduces a catalogue into platform totals and averages. An
// empty catalogue yields the zero value; nothing here can divide by zero.
// Borrower profiles are summed per market as given: a borrower appearing
// in several markets counts once per appearance, matching the raw data.
func ComputeStats(catalogue []LoanMarket) PlatformStats {
	stats := PlatformStats{ActiveMarkets: len(catalogue)}
	if len(catalogue) == 0 {
		return stats
	}

	rateSum := 0.0
	trustSum := 0.0
	successful := 0
	resolved := 0

	for _, m := range catalogue {
		stats.TotalRequested += m.LoanAmount
		stats.TotalStaked += m.Staking.ActualStaked
		rateSum += m.InterestRatePercent()
		trustSum += float64(m.BorrowerProfile.TrustScore)

		successful += m.BorrowerProfile.SuccessfulLoans
		resolved += m.BorrowerProfile.SuccessfulLoans + m.BorrowerProfile.DefaultedLoans

		if m.State == StateFunding {
			stats.FundingMarkets++
		}
	}

	n := float64(len(catalogue))
	stats.AvgInterestRate = rateSum / n
	stats.AvgTrustScore = trustSum / n
	if resolved > 0 {
		stats.SuccessRate = float64(successful) / float64(resolved)
	}

	return stats
}
