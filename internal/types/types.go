package types

import (
	"github.com/71220903/coredev-finance-flow-sub001/internal/pricing"
	"github.com/71220903/coredev-finance-flow-sub001/internal/risk"
	"github.com/71220903/coredev-finance-flow-sub001/internal/trust"
)

// TrustScoreRequest carries the factor breakdown for a trust evaluation.
type TrustScoreRequest struct {
	Factors map[trust.FactorKey]trust.Factor `json:"factors" binding:"required"`
}

// RiskAssessRequest carries the weighted risk factors for an assessment.
type RiskAssessRequest struct {
	Factors []risk.Factor `json:"factors" binding:"required"`
}

// PricingSuggestRequest carries market conditions plus the borrower's
// derived scores for an interest rate suggestion.
type PricingSuggestRequest struct {
	Conditions pricing.Conditions `json:"conditions" binding:"required"`
	TrustScore int                `json:"trust_score"`
	RiskScore  float64            `json:"risk_score"`
}

// PricingSuggestResponse is the rate suggestion in both display units.
type PricingSuggestResponse struct {
	SuggestedRate float64 `json:"suggested_rate"`
	SuggestedBps  int     `json:"suggested_bps"`
}

// CreateUserRequest registers a platform user.
type CreateUserRequest struct {
	Email string `json:"email" binding:"required,email"`
	Role  string `json:"role"`
}
