package market

import (
	"time"

	apperrors "github.com/71220903/coredev-finance-flow-sub001/internal/errors"
	"github.com/71220903/coredev-finance-flow-sub001/internal/pricing"
	"github.com/71220903/coredev-finance-flow-sub001/internal/risk"
)

// State is a loan market's lifecycle position.
type State string

const (
	StateFunding   State = "FUNDING"
	StateActive    State = "ACTIVE"
	StateRepaid    State = "REPAID"
	StateDefaulted State = "DEFAULTED"
	StateCancelled State = "CANCELLED"
)

// transitions encodes FUNDING -> {ACTIVE, CANCELLED} and
// ACTIVE -> {REPAID, DEFAULTED}. Terminal states have no exits.
var transitions = map[State][]State{
	StateFunding: {StateActive, StateCancelled},
	StateActive:  {StateRepaid, StateDefaulted},
}

// CanTransition reports whether from -> to is a legal lifecycle move.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a state has no outgoing transitions.
func (s State) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// ValidState reports whether s is one of the five lifecycle states.
func ValidState(s State) bool {
	switch s {
	case StateFunding, StateActive, StateRepaid, StateDefaulted, StateCancelled:
		return true
	}
	return false
}

// Staking thresholds. A market below the critical ratio is flagged for
// lenders everywhere staking health is shown.
const CriticalStakeRatio = 0.8

// StakingStatus classifies collateral health.
type StakingStatus string

const (
	StakingFull     StakingStatus = "Full"
	StakingPartial  StakingStatus = "Partial"
	StakingCritical StakingStatus = "Critical"
)

// StakingInfo is the collateral posted against a market.
type StakingInfo struct {
	RequiredStake float64   `json:"required_stake"`
	ActualStaked  float64   `json:"actual_staked"`
	LockedUntil   time.Time `json:"locked_until,omitempty"`
	SlashingRisk  float64   `json:"slashing_risk"`
	Rewards       float64   `json:"rewards"`
}

// Ratio returns actual/required collateral, 0 when nothing is required.
func (s StakingInfo) Ratio() float64 {
	if s.RequiredStake <= 0 {
		return 0
	}
	return s.ActualStaked / s.RequiredStake
}

// FullyStaked reports whether the collateral target is met.
func (s StakingInfo) FullyStaked() bool {
	return s.ActualStaked >= s.RequiredStake
}

// Status classifies the staking ratio against the critical threshold.
func (s StakingInfo) Status() StakingStatus {
	if s.FullyStaked() {
		return StakingFull
	}
	if s.Ratio() < CriticalStakeRatio {
		return StakingCritical
	}
	return StakingPartial
}

// ProjectData is the off-chain project description attached to a market.
type ProjectData struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// LoanMarket is one loan opportunity with its derived scores embedded.
// The filter engine and stats reducer read these values and never
// recompute them.
type LoanMarket struct {
	ID              string             `json:"id"`
	ContractAddress string             `json:"contract_address"`
	Borrower        string             `json:"borrower"`
	LoanAmount      float64            `json:"loan_amount"`
	InterestRateBps int                `json:"interest_rate_bps"`
	TenorSeconds    int64              `json:"tenor_seconds"`
	TotalDeposited  float64            `json:"total_deposited"`
	State           State              `json:"current_state"`
	ProjectDataCID  string             `json:"project_data_cid,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	FundingDeadline time.Time          `json:"funding_deadline"`
	RiskScore       float64            `json:"risk_score"`
	SuggestedRate   float64            `json:"suggested_rate"`
	MinimumStake    float64            `json:"minimum_stake"`
	Staking         StakingInfo        `json:"staking_info"`
	Conditions      pricing.Conditions `json:"market_conditions"`
	BorrowerProfile DeveloperProfile   `json:"borrower_profile"`
	Project         ProjectData        `json:"project_data"`
	RiskAssessment  risk.Assessment    `json:"risk_assessment"`
}

// InterestRatePercent is the display-normalized rate, used by filtering
// and aggregation instead of raw basis points.
func (m LoanMarket) InterestRatePercent() float64 {
	return pricing.BpsToRate(m.InterestRateBps)
}

// Validate fails fast on records that break the market invariants.
func (m LoanMarket) Validate() error {
	if m.ID == "" {
		return apperrors.NewValidationError("market id is required")
	}
	if m.LoanAmount <= 0 {
		return apperrors.NewOutOfRangeError("loanAmount", m.LoanAmount)
	}
	if m.InterestRateBps < 0 {
		return apperrors.NewOutOfRangeError("interestRateBps", m.InterestRateBps)
	}
	if m.TenorSeconds <= 0 {
		return apperrors.NewOutOfRangeError("tenorSeconds", m.TenorSeconds)
	}
	if m.TotalDeposited < 0 || m.TotalDeposited > m.LoanAmount {
		return apperrors.NewOutOfRangeError("totalDeposited", m.TotalDeposited)
	}
	if !ValidState(m.State) {
		return apperrors.NewValidationError("unknown market state", string(m.State))
	}
	if !m.FundingDeadline.After(m.CreatedAt) {
		return apperrors.NewValidationError("funding deadline must be after creation time")
	}
	return nil
}
