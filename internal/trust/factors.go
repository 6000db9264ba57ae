package trust

import "time"

// FactorKey identifies one weighted component of a trust score.
type FactorKey string

const (
	FactorGitHubActivity         FactorKey = "githubActivity"
	FactorCodeQuality            FactorKey = "codeQuality"
	FactorCommunityEngagement    FactorKey = "communityEngagement"
	FactorProjectComplexity      FactorKey = "projectComplexity"
	FactorConsistencyReliability FactorKey = "consistencyReliability"
	FactorSecurityPractices      FactorKey = "securityPractices"
	FactorOnChainHistory         FactorKey = "onChainHistory"
	FactorVerificationStatus     FactorKey = "verificationStatus"
)

// AllFactorKeys lists every factor a complete score must carry, in display order.
var AllFactorKeys = []FactorKey{
	FactorGitHubActivity,
	FactorCodeQuality,
	FactorCommunityEngagement,
	FactorProjectComplexity,
	FactorConsistencyReliability,
	FactorSecurityPractices,
	FactorOnChainHistory,
	FactorVerificationStatus,
}

// Factor is one weighted component of a developer's trust score.
type Factor struct {
	Key          FactorKey `json:"key"`
	Score        float64   `json:"score"`
	MaxScore     float64   `json:"max_score"`
	Weight       float64   `json:"weight"`
	Description  string    `json:"description"`
	Evidence     []string  `json:"evidence,omitempty"`
	Improvements []string  `json:"improvements,omitempty"`
}

// Completion returns the factor's completion percentage in [0,100].
func (f Factor) Completion() float64 {
	if f.MaxScore <= 0 {
		return 0
	}
	return f.Score / f.MaxScore * 100
}

// Score is the composite trust score over all factors for one profile.
type Score struct {
	TotalScore      int                  `json:"total_score"`
	RiskCategory    RiskCategory         `json:"risk_category"`
	Factors         map[FactorKey]Factor `json:"factors"`
	Recommendations []string             `json:"recommendations"`
	LastUpdated     time.Time            `json:"last_updated"`
}
