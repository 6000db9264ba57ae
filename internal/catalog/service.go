package catalog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/71220903/coredev-finance-flow-sub001/internal/errors"
	"github.com/71220903/coredev-finance-flow-sub001/internal/market"
	"github.com/71220903/coredev-finance-flow-sub001/internal/pricing"
	"github.com/71220903/coredev-finance-flow-sub001/internal/resilience"
)

// Service holds the in-memory catalogue snapshot and answers all read
// queries against it. Refreshes replace the snapshot wholesale; readers
// always see a consistent catalogue and never block on a refresh.
type Service struct {
	source    Source
	breaker   *resilience.CircuitBreaker
	metrics   RefreshMetrics
	onRefresh func()

	mu          sync.RWMutex
	snapshot    []market.LoanMarket
	byID        map[string]market.LoanMarket
	refreshedAt time.Time
}

// RefreshMetrics counts successful snapshot refreshes.
type RefreshMetrics interface {
	IncrementSnapshotRefresh()
}

func NewService(source Source) *Service {
	return &Service{
		source: source,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  30 * time.Second,
			SuccessThreshold: 2,
		}),
		byID: make(map[string]market.LoanMarket),
	}
}

// SetMetrics attaches a refresh counter. Safe to skip; refreshes are
// simply uncounted without it.
func (s *Service) SetMetrics(m RefreshMetrics) {
	s.metrics = m
}

// OnRefresh registers a callback invoked after every successful
// snapshot swap, e.g. to invalidate HTTP response caches.
func (s *Service) OnRefresh(fn func()) {
	s.onRefresh = fn
}

// Refresh reloads the catalogue from the source, recomputes the derived
// values each record carries, and swaps the snapshot in atomically.
// A failing source leaves the previous snapshot serving.
func (s *Service) Refresh(ctx context.Context) error {
	var loaded []market.LoanMarket

	err := s.breaker.Call(func() error {
		return resilience.Retry(ctx, func() error {
			markets, loadErr := s.source.LoadCatalogue(ctx)
			if loadErr != nil {
				return apperrors.NewDataSourceError("catalogue load failed", loadErr)
			}
			loaded = markets
			return nil
		})
	})
	if err != nil {
		slog.Error("Catalogue refresh failed, keeping previous snapshot",
			"error", err, "markets", len(s.snapshotCopy()))
		return err
	}

	prepared := make([]market.LoanMarket, 0, len(loaded))
	byID := make(map[string]market.LoanMarket, len(loaded))
	for _, m := range loaded {
		if err := m.Validate(); err != nil {
			slog.Warn("Dropping invalid market record", "market_id", m.ID, "error", err)
			continue
		}
		deriveMarket(&m)
		prepared = append(prepared, m)
		byID[m.ID] = m
	}

	s.mu.Lock()
	s.snapshot = prepared
	s.byID = byID
	s.refreshedAt = time.Now()
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.IncrementSnapshotRefresh()
	}
	if s.onRefresh != nil {
		s.onRefresh()
	}

	slog.Info("Catalogue snapshot refreshed", "markets", len(prepared), "dropped", len(loaded)-len(prepared))
	return nil
}

// deriveMarket rederives every value that is a function of other fields,
// so stale inputs can never leak derived numbers into the query path.
func deriveMarket(m *market.LoanMarket) {
	m.BorrowerProfile.Normalize()
	m.RiskScore = m.RiskAssessment.RiskScore

	if m.Conditions.Validate() == nil {
		rate, err := pricing.SuggestRate(m.Conditions, float64(m.BorrowerProfile.TrustScore), m.RiskScore)
		if err == nil {
			m.SuggestedRate = rate
		}
	}
}

// Query filters and sorts the current snapshot. The snapshot itself is
// never handed out; callers get a fresh slice they are free to mutate.
func (s *Service) Query(f market.Filters) []market.LoanMarket {
	s.mu.RLock()
	snapshot := s.snapshot
	s.mu.RUnlock()

	return market.Filter(snapshot, f)
}

// Get returns a single market by ID from the current snapshot.
func (s *Service) Get(id string) (market.LoanMarket, error) {
	s.mu.RLock()
	m, ok := s.byID[id]
	s.mu.RUnlock()

	if !ok {
		return market.LoanMarket{}, apperrors.NewNotFoundError("market", id)
	}
	return m, nil
}

// Stats aggregates the whole current snapshot.
func (s *Service) Stats() market.PlatformStats {
	s.mu.RLock()
	snapshot := s.snapshot
	s.mu.RUnlock()

	return market.ComputeStats(snapshot)
}

// Size returns the number of markets currently served.
func (s *Service) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshot)
}

// RefreshedAt returns when the serving snapshot was last replaced.
func (s *Service) RefreshedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshedAt
}

// StartAutoRefresh refreshes the snapshot on a fixed interval until the
// context is cancelled.
func (s *Service) StartAutoRefresh(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.Refresh(ctx); err != nil {
					slog.Warn("Scheduled catalogue refresh failed", "error", err)
				}
			}
		}
	}()
}

func (s *Service) snapshotCopy() []market.LoanMarket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}
