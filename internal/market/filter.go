package market

import (
	"sort"
	"strings"
)

// SortKey selects the ordering applied after filtering.
type SortKey string

const (
	SortNewest   SortKey = "newest"
	SortAmount   SortKey = "amount"
	SortInterest SortKey = "interest"
	SortTrust    SortKey = "trust"
	SortDeadline SortKey = "deadline"
)

// SortOrder is the direction of the sort.
type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

// Filters is the compound search criteria applied to a catalogue. All
// predicates combine with AND; zero-valued bounds and empty sets are
// no-ops. Query matches case-insensitively against borrower handle,
// project title, and tags (OR across the three).
type Filters struct {
	Query         string    `json:"query,omitempty" form:"query"`
	MinAmount     float64   `json:"min_amount,omitempty" form:"min_amount"`
	MaxAmount     float64   `json:"max_amount,omitempty" form:"max_amount"`
	MinRate       float64   `json:"min_rate,omitempty" form:"min_rate"`
	MaxRate       float64   `json:"max_rate,omitempty" form:"max_rate"`
	MinTrustScore float64   `json:"min_trust_score,omitempty" form:"min_trust_score"`
	Statuses      []string  `json:"statuses,omitempty" form:"status"`
	Sectors       []string  `json:"sectors,omitempty" form:"sector"`
	SortBy        SortKey   `json:"sort_by,omitempty" form:"sort_by"`
	SortOrder     SortOrder `json:"sort_order,omitempty" form:"sort_order"`
}

// DefaultFilters returns the identity filter: no constraints, newest first.
func DefaultFilters() Filters {
	return Filters{SortBy: SortNewest, SortOrder: OrderDesc}
}

// Filter applies the compound criteria to a catalogue snapshot and returns
// a new, deterministically sorted slice. The input is never mutated, so
// the same snapshot and filters always yield the same ordered output.
func Filter(catalogue []LoanMarket, f Filters) []LoanMarket {
	result := make([]LoanMarket, 0, len(catalogue))
	for _, m := range catalogue {
		if matches(m, f) {
			result = append(result, m)
		}
	}
	sortMarkets(result, f.SortBy, f.SortOrder)
	return result
}

func matches(m LoanMarket, f Filters) bool {
	if f.Query != "" && !matchesQuery(m, f.Query) {
		return false
	}
	if f.MinAmount > 0 && m.LoanAmount < f.MinAmount {
		return false
	}
	if f.MaxAmount > 0 && m.LoanAmount > f.MaxAmount {
		return false
	}

	// Rate bounds compare the display percentage, not raw basis points.
	rate := m.InterestRatePercent()
	if f.MinRate > 0 && rate < f.MinRate {
		return false
	}
	if f.MaxRate > 0 && rate > f.MaxRate {
		return false
	}

	if f.MinTrustScore > 0 && float64(m.BorrowerProfile.TrustScore) < f.MinTrustScore {
		return false
	}

	if len(f.Statuses) > 0 && !containsFold(f.Statuses, string(m.State)) {
		return false
	}

	if len(f.Sectors) > 0 && !intersectsFold(f.Sectors, m.Project.Tags) {
		return false
	}

	return true
}

func matchesQuery(m LoanMarket, query string) bool {
	q := strings.ToLower(query)
	if strings.Contains(strings.ToLower(m.BorrowerProfile.GitHubHandle), q) {
		return true
	}
	if strings.Contains(strings.ToLower(m.Project.Title), q) {
		return true
	}
	for _, tag := range m.Project.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

func containsFold(set []string, value string) bool {
	for _, s := range set {
		if strings.EqualFold(s, value) {
			return true
		}
	}
	return false
}

func intersectsFold(set, tags []string) bool {
	for _, s := range set {
		for _, tag := range tags {
			if strings.EqualFold(s, tag) {
				return true
			}
		}
	}
	return false
}

// sortMarkets orders the slice by the requested key and direction, always
// breaking ties by id ascending so output order is deterministic.
func sortMarkets(markets []LoanMarket, key SortKey, order SortOrder) {
	if key == "" {
		key = SortNewest
	}
	if order == "" {
		order = OrderDesc
	}

	less := lessFunc(key)
	desc := order == OrderDesc

	sort.SliceStable(markets, func(i, j int) bool {
		a, b := markets[i], markets[j]
		if desc {
			a, b = b, a
		}
		switch {
		case less(a, b):
			return true
		case less(b, a):
			return false
		default:
			return markets[i].ID < markets[j].ID
		}
	})
}

func lessFunc(key SortKey) func(a, b LoanMarket) bool {
	switch key {
	case SortAmount:
		return func(a, b LoanMarket) bool { return a.LoanAmount < b.LoanAmount }
	case SortInterest:
		return func(a, b LoanMarket) bool { return a.InterestRateBps < b.InterestRateBps }
	case SortTrust:
		return func(a, b LoanMarket) bool {
			return a.BorrowerProfile.TrustScore < b.BorrowerProfile.TrustScore
		}
	case SortDeadline:
		return func(a, b LoanMarket) bool { return a.FundingDeadline.Before(b.FundingDeadline) }
	default: // SortNewest
		return func(a, b LoanMarket) bool { return a.CreatedAt.Before(b.CreatedAt) }
	}
}
