package risk

import (
	"fmt"
	"math"
	"time"

	apperrors "github.com/71220903/coredev-finance-flow-sub001/internal/errors"
)

// Category identifies which slice of market health a factor measures.
type Category string

const (
	CategoryCredit    Category = "credit"
	CategoryMarket    Category = "market"
	CategoryTechnical Category = "technical"
	CategoryLiquidity Category = "liquidity"
)

// Impact grades how strongly a factor moves the overall assessment.
type Impact string

const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

// Level buckets a 0-100 risk score. Higher scores are riskier.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Canonical risk-score boundaries. LevelFromScore is the single
// classification point so badges, filters, and assessments agree.
const (
	MediumRiskFloor = 25.0
	HighRiskFloor   = 50.0
	CriticalFloor   = 75.0
)

// A factor value above this, combined with high impact, produces a
// warning insight.
const warningValueFloor = 70.0

var weightDriftTolerance = 1e-9

// Factor is one weighted input to a market risk assessment.
type Factor struct {
	Category    Category `json:"category"`
	Name        string   `json:"name"`
	Impact      Impact   `json:"impact"`
	Weight      float64  `json:"weight"`
	Value       float64  `json:"value"`
	Description string   `json:"description,omitempty"`
}

// Assessment is the per-market risk breakdown.
type Assessment struct {
	OverallRisk        Level     `json:"overall_risk"`
	RiskScore          float64   `json:"risk_score"`
	Factors            []Factor  `json:"factors"`
	Insights           []string  `json:"insights"`
	RecommendedActions []string  `json:"recommended_actions"`
	LastUpdated        time.Time `json:"last_updated"`
}

// LevelFromScore maps a 0-100 risk score onto its level.
func LevelFromScore(score float64) Level {
	switch {
	case score < MediumRiskFloor:
		return LevelLow
	case score < HighRiskFloor:
		return LevelMedium
	case score < CriticalFloor:
		return LevelHigh
	default:
		return LevelCritical
	}
}

// ComputeAssessment folds weighted factor values into a single 0-100 risk
// score. Weights are normalized when their sum drifts from 1.0, matching
// the trust-score policy.
func ComputeAssessment(factors []Factor) (Assessment, error) {
	if len(factors) == 0 {
		return Assessment{}, apperrors.NewValidationError("risk assessment requires at least one factor")
	}

	weightSum := 0.0
	for _, f := range factors {
		if f.Weight < 0 || f.Weight > 1 {
			return Assessment{}, apperrors.NewInvalidWeightError(f.Name, f.Weight)
		}
		if f.Value < 0 || f.Value > 100 {
			return Assessment{}, apperrors.NewOutOfRangeError(f.Name+".value", f.Value)
		}
		if !validCategory(f.Category) {
			return Assessment{}, apperrors.NewValidationError("unknown risk category", string(f.Category))
		}
		weightSum += f.Weight
	}

	if weightSum <= 0 {
		return Assessment{}, apperrors.NewInvalidWeightError("total", weightSum)
	}

	norm := 1.0
	if math.Abs(weightSum-1.0) > weightDriftTolerance {
		norm = 1.0 / weightSum
	}

	score := 0.0
	for _, f := range factors {
		score += f.Value * f.Weight * norm
	}
	score = clamp(score, 0, 100)

	return Assessment{
		OverallRisk:        LevelFromScore(score),
		RiskScore:          score,
		Factors:            factors,
		Insights:           buildInsights(factors),
		RecommendedActions: buildActions(factors),
		LastUpdated:        time.Now(),
	}, nil
}

func validCategory(c Category) bool {
	switch c {
	case CategoryCredit, CategoryMarket, CategoryTechnical, CategoryLiquidity:
		return true
	}
	return false
}

// buildInsights derives advisory strings from factor state. The output is
// deterministic: same factors in, same strings out.
func buildInsights(factors []Factor) []string {
	insights := make([]string, 0, len(factors))
	for _, f := range factors {
		if f.Impact == ImpactHigh && f.Value > warningValueFloor {
			insights = append(insights,
				fmt.Sprintf("%s risk is elevated: %s scored %.0f", f.Category, f.Name, f.Value))
		}
	}
	if len(insights) == 0 {
		insights = append(insights, "no high-impact risk factors above the warning threshold")
	}
	return insights
}

func buildActions(factors []Factor) []string {
	actions := make([]string, 0, len(factors))
	for _, f := range factors {
		if f.Value <= warningValueFloor {
			continue
		}
		switch f.Category {
		case CategoryCredit:
			actions = append(actions, fmt.Sprintf("require additional collateral to offset %s", f.Name))
		case CategoryMarket:
			actions = append(actions, fmt.Sprintf("widen rate spread to price in %s", f.Name))
		case CategoryTechnical:
			actions = append(actions, fmt.Sprintf("request an independent review of %s", f.Name))
		case CategoryLiquidity:
			actions = append(actions, fmt.Sprintf("reduce position size until %s recovers", f.Name))
		}
	}
	return actions
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
