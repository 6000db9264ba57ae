package pricing

import (
	"math"
	"time"

	apperrors "github.com/71220903/coredev-finance-flow-sub001/internal/errors"
)

// Conditions captures the platform-wide pricing inputs a market snapshots
// at creation time. All rates are percentages.
type Conditions struct {
	BaseRate            float64   `json:"base_rate"`
	RiskPremium         float64   `json:"risk_premium"`
	LiquidityMultiplier float64   `json:"liquidity_multiplier"`
	MarketVolatility    float64   `json:"market_volatility"`
	DemandSupplyRatio   float64   `json:"demand_supply_ratio"`
	LastUpdated         time.Time `json:"last_updated"`
}

// Pricing policy coefficients. These are deliberate policy choices pinned
// by tests, not derived constants.
const (
	// VolatilityCoefficient converts volatility*liquidityMultiplier into a
	// rate adjustment, in percentage points per unit.
	VolatilityCoefficient = 2.0
	// DemandCoefficient prices excess borrower demand: each unit of
	// demand/supply ratio above parity adds this many percentage points.
	DemandCoefficient = 1.5
	// MaxTrustDiscount is the rate reduction a perfect trust score earns,
	// in percentage points.
	MaxTrustDiscount = 3.0
	// MinRateFraction floors the suggestion at this fraction of the base
	// rate so a stacked discount can never suggest lending below cost.
	MinRateFraction = 0.5
)

// Validate fails fast on inputs outside their documented ranges.
func (c Conditions) Validate() error {
	if c.BaseRate < 0 {
		return apperrors.NewOutOfRangeError("baseRate", c.BaseRate)
	}
	if c.RiskPremium < 0 {
		return apperrors.NewOutOfRangeError("riskPremium", c.RiskPremium)
	}
	if c.LiquidityMultiplier <= 0 {
		return apperrors.NewOutOfRangeError("liquidityMultiplier", c.LiquidityMultiplier)
	}
	if c.MarketVolatility < 0 || c.MarketVolatility > 1 {
		return apperrors.NewOutOfRangeError("marketVolatility", c.MarketVolatility)
	}
	if c.DemandSupplyRatio <= 0 {
		return apperrors.NewOutOfRangeError("demandSupplyRatio", c.DemandSupplyRatio)
	}
	return nil
}

// SuggestRate computes the advisory interest rate (percent) for a market:
// base rate, plus the risk premium scaled by how risky the borrower looks,
// plus volatility and demand adjustments, minus a discount for trust.
//
// Monotonic by construction: higher trust never raises the rate; higher
// volatility or demand/supply ratio never lowers it.
func SuggestRate(c Conditions, trustScore, riskScore float64) (float64, error) {
	if err := c.Validate(); err != nil {
		return 0, err
	}
	if trustScore < 0 || trustScore > 100 {
		return 0, apperrors.NewOutOfRangeError("trustScore", trustScore)
	}
	if riskScore < 0 || riskScore > 100 {
		return 0, apperrors.NewOutOfRangeError("riskScore", riskScore)
	}

	riskFactor := riskScore / 100
	trustDiscount := MaxTrustDiscount * trustScore / 100
	volatilityAdjustment := VolatilityCoefficient * c.MarketVolatility * c.LiquidityMultiplier
	demandAdjustment := DemandCoefficient * (c.DemandSupplyRatio - 1)

	rate := c.BaseRate +
		c.RiskPremium*riskFactor +
		volatilityAdjustment +
		demandAdjustment -
		trustDiscount

	floor := c.BaseRate * MinRateFraction
	if rate < floor {
		rate = floor
	}
	if rate < 0 {
		rate = 0
	}

	return rate, nil
}

// RateToBps converts a display percentage to integer basis points.
func RateToBps(ratePercent float64) int {
	return int(math.Round(ratePercent * 100))
}

// BpsToRate converts integer basis points to a display percentage.
func BpsToRate(bps int) float64 {
	return float64(bps) / 100
}
