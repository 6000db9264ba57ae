package market

import (
	"time"

	"github.com/71220903/coredev-finance-flow-sub001/internal/trust"
)

// DeveloperProfile is a borrower's reputation snapshot as embedded in a
// market record. Loan counters only ever grow once a loan resolves;
// profiles are deactivated, never deleted.
type DeveloperProfile struct {
	Address           string             `json:"address"`
	GitHubHandle      string             `json:"github_handle"`
	TrustScore        int                `json:"trust_score"`
	CompletedProjects int                `json:"completed_projects"`
	SuccessfulLoans   int                `json:"successful_loans"`
	DefaultedLoans    int                `json:"defaulted_loans"`
	TotalBorrowed     float64            `json:"total_borrowed"`
	TotalRepaid       float64            `json:"total_repaid"`
	IsVerified        bool               `json:"is_verified"`
	IsActive          bool               `json:"is_active"`
	VerifiedAt        time.Time          `json:"verified_at,omitempty"`
	LastActivityAt    time.Time          `json:"last_activity_at,omitempty"`
	RiskCategory      trust.RiskCategory `json:"risk_category"`
}

// SuccessRate returns resolved-loan success in [0,1], 0 when nothing has
// resolved yet.
func (p DeveloperProfile) SuccessRate() float64 {
	resolved := p.SuccessfulLoans + p.DefaultedLoans
	if resolved == 0 {
		return 0
	}
	return float64(p.SuccessfulLoans) / float64(resolved)
}

// Normalize rederives the fields that are functions of others. Call after
// any trust-score mutation so the stored category can never drift from the
// canonical thresholds.
func (p *DeveloperProfile) Normalize() {
	p.RiskCategory = trust.CategoryFromScore(p.TrustScore)
}
