package trust

// RiskCategory buckets a trust score for display and filtering.
type RiskCategory string

const (
	RiskLow      RiskCategory = "low"
	RiskMedium   RiskCategory = "medium"
	RiskHigh     RiskCategory = "high"
	RiskCritical RiskCategory = "critical"
)

// Canonical trust-score boundaries. Every component that classifies a
// trust score must go through CategoryFromScore so UI, filters, and
// stored profiles agree.
const (
	LowRiskFloor    = 80
	MediumRiskFloor = 65
	HighRiskFloor   = 40
)

// CategoryFromScore maps a 0-100 trust score onto its risk category.
func CategoryFromScore(score int) RiskCategory {
	switch {
	case score >= LowRiskFloor:
		return RiskLow
	case score >= MediumRiskFloor:
		return RiskMedium
	case score >= HighRiskFloor:
		return RiskHigh
	default:
		return RiskCritical
	}
}
