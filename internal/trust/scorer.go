package trust

import (
	"math"
	"sort"
	"time"

	apperrors "github.com/71220903/coredev-finance-flow-sub001/internal/errors"
)

var (
	// Factors with a completion percentage below this generate a recommendation.
	improvementThreshold = 70.0
	// At most this many recommendations, worst factors first.
	maxRecommendations = 5
	// Weight sums drifting from 1.0 by more than this are renormalized
	// before aggregation so the composite never overshoots from rounding
	// in the factor source.
	weightDriftTolerance = 1e-9
)

// ComputeScore folds the 8 weighted factors into a composite trust score.
// The composite is round(sum(score_i/maxScore_i * weight_i * 100)) clamped
// to [0,100]. Weights are normalized when their sum drifts from 1.0.
func ComputeScore(factors map[FactorKey]Factor) (Score, error) {
	if err := validateFactors(factors); err != nil {
		return Score{}, err
	}

	weightSum := 0.0
	for _, key := range AllFactorKeys {
		weightSum += factors[key].Weight
	}

	// All-zero weights cannot be normalized; reject rather than divide by zero.
	if weightSum <= 0 {
		return Score{}, apperrors.NewInvalidWeightError("total", weightSum)
	}

	norm := 1.0
	if math.Abs(weightSum-1.0) > weightDriftTolerance {
		norm = 1.0 / weightSum
	}

	total := 0.0
	for _, key := range AllFactorKeys {
		f := factors[key]
		completion := 0.0
		if f.MaxScore > 0 {
			completion = f.Score / f.MaxScore
		}
		total += completion * f.Weight * norm * 100
	}

	composite := int(math.Round(total))
	composite = clampInt(composite, 0, 100)

	return Score{
		TotalScore:      composite,
		RiskCategory:    CategoryFromScore(composite),
		Factors:         factors,
		Recommendations: buildRecommendations(factors),
		LastUpdated:     time.Now(),
	}, nil
}

func validateFactors(factors map[FactorKey]Factor) error {
	for _, key := range AllFactorKeys {
		f, ok := factors[key]
		if !ok {
			return apperrors.NewInvalidFactorSetError(string(key))
		}
		if f.Weight < 0 || f.Weight > 1 {
			return apperrors.NewInvalidWeightError(string(key), f.Weight)
		}
		if f.MaxScore <= 0 {
			return apperrors.NewOutOfRangeError(string(key)+".maxScore", f.MaxScore)
		}
		if f.Score < 0 || f.Score > f.MaxScore {
			return apperrors.NewOutOfRangeError(string(key)+".score", f.Score)
		}
	}

	// Reject keys outside the fixed model so unknown data never silently
	// skews the composite.
	if len(factors) != len(AllFactorKeys) {
		for key := range factors {
			if !isKnownKey(key) {
				return apperrors.NewInvalidFactorSetError(string(key))
			}
		}
	}

	return nil
}

func isKnownKey(key FactorKey) bool {
	for _, k := range AllFactorKeys {
		if k == key {
			return true
		}
	}
	return false
}

// buildRecommendations surfaces one improvement per underperforming factor,
// ordered worst-first so callers can cap the list without losing the
// factors that matter most.
func buildRecommendations(factors map[FactorKey]Factor) []string {
	type candidate struct {
		completion float64
		text       string
	}

	candidates := make([]candidate, 0, len(factors))
	for _, key := range AllFactorKeys {
		f := factors[key]
		if len(f.Improvements) == 0 {
			continue
		}
		if f.Completion() >= improvementThreshold {
			continue
		}
		candidates = append(candidates, candidate{
			completion: f.Completion(),
			text:       f.Improvements[0],
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].completion < candidates[j].completion
	})

	if len(candidates) > maxRecommendations {
		candidates = candidates[:maxRecommendations]
	}

	recs := make([]string, 0, len(candidates))
	for _, c := range candidates {
		recs = append(recs, c.text)
	}
	return recs
}

func clampInt(x, lo, hi int) int {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
