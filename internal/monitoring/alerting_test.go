package monitoring

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu       sync.Mutex
	fired    []string
	resolved []string
}

func (n *recordingNotifier) SendAlert(_ context.Context, alert *Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fired = append(n.fired, alert.Name)
	return nil
}

func (n *recordingNotifier) ResolveAlert(_ context.Context, alert *Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resolved = append(n.resolved, alert.Name)
	return nil
}

func (n *recordingNotifier) firedNames() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.fired...)
}

func (n *recordingNotifier) resolvedNames() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.resolved...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func errorRateRule(threshold float64) AlertRule {
	return AlertRule{
		Name:        "HighErrorRate",
		Query:       "error_rate_percent",
		Threshold:   threshold,
		Operator:    "gt",
		Severity:    SeverityWarning,
		Service:     "api",
		Description: "API error rate too high",
	}
}

func TestAlertFiresWhenGaugeCrossesThreshold(t *testing.T) {
	metrics := NewMetrics()
	am := NewAlertManager(NewLogger(), metrics, time.Hour)
	notifier := &recordingNotifier{}
	am.AddNotifier(notifier)
	am.AddRule(errorRateRule(10.0))

	// 5 errors out of 10 requests, well above 10%
	for i := 0; i < 10; i++ {
		metrics.IncrementRequest()
	}
	for i := 0; i < 5; i++ {
		metrics.IncrementError()
	}

	am.evaluateRules(context.Background())

	waitFor(t, func() bool { return len(notifier.firedNames()) == 1 })

	active := am.GetActiveAlerts()
	require.Len(t, active, 1)
	for _, alert := range active {
		assert.Equal(t, "HighErrorRate", alert.Name)
		assert.Equal(t, StatusActive, alert.Status)
		assert.InDelta(t, 50.0, alert.Value, 0.01)
	}
}

func TestAlertDoesNotFireBelowThreshold(t *testing.T) {
	metrics := NewMetrics()
	am := NewAlertManager(NewLogger(), metrics, time.Hour)
	notifier := &recordingNotifier{}
	am.AddNotifier(notifier)
	am.AddRule(errorRateRule(10.0))

	for i := 0; i < 100; i++ {
		metrics.IncrementRequest()
	}
	metrics.IncrementError()

	am.evaluateRules(context.Background())

	assert.Empty(t, am.GetActiveAlerts())
	assert.Empty(t, notifier.firedNames())
}

func TestAlertResolvesAfterGracePeriod(t *testing.T) {
	metrics := NewMetrics()
	am := NewAlertManager(NewLogger(), metrics, time.Hour)
	notifier := &recordingNotifier{}
	am.AddNotifier(notifier)

	rule := errorRateRule(10.0)
	rule.For = 0 // resolve immediately once the condition clears
	am.AddRule(rule)

	metrics.IncrementRequest()
	metrics.IncrementError()
	am.evaluateRules(context.Background())
	waitFor(t, func() bool { return len(notifier.firedNames()) == 1 })

	// Drown the error in successful requests
	for i := 0; i < 100; i++ {
		metrics.IncrementRequest()
	}
	time.Sleep(time.Millisecond)
	am.evaluateRules(context.Background())

	waitFor(t, func() bool { return len(notifier.resolvedNames()) == 1 })
	assert.Empty(t, am.GetActiveAlerts())

	alerts := am.GetAlerts()
	require.Len(t, alerts, 1)
	for _, alert := range alerts {
		assert.Equal(t, StatusResolved, alert.Status)
		assert.NotNil(t, alert.ResolvedAt)
	}
}

func TestAlertRefiresAfterResolution(t *testing.T) {
	metrics := NewMetrics()
	am := NewAlertManager(NewLogger(), metrics, time.Hour)
	notifier := &recordingNotifier{}
	am.AddNotifier(notifier)

	rule := errorRateRule(10.0)
	rule.For = 0
	am.AddRule(rule)

	ctx := context.Background()

	metrics.IncrementRequest()
	metrics.IncrementError()
	am.evaluateRules(ctx)
	waitFor(t, func() bool { return len(notifier.firedNames()) == 1 })

	for i := 0; i < 100; i++ {
		metrics.IncrementRequest()
	}
	time.Sleep(time.Millisecond)
	am.evaluateRules(ctx)
	waitFor(t, func() bool { return len(notifier.resolvedNames()) == 1 })

	// Push the error rate back over the threshold
	for i := 0; i < 100; i++ {
		metrics.IncrementError()
	}
	am.evaluateRules(ctx)
	waitFor(t, func() bool { return len(notifier.firedNames()) == 2 })
}

func TestSilencedAlertStopsNotifyingUntilItResolves(t *testing.T) {
	metrics := NewMetrics()
	am := NewAlertManager(NewLogger(), metrics, time.Hour)
	notifier := &recordingNotifier{}
	am.AddNotifier(notifier)

	rule := errorRateRule(10.0)
	rule.For = 0
	am.AddRule(rule)

	metrics.IncrementRequest()
	metrics.IncrementError()
	am.evaluateRules(context.Background())
	waitFor(t, func() bool { return len(notifier.firedNames()) == 1 })

	am.SilenceAlert("api:HighErrorRate", time.Hour)
	assert.Empty(t, am.GetActiveAlerts(), "suppressed alerts are not active")

	// Still firing; no new notification while suppressed
	am.evaluateRules(context.Background())
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, notifier.firedNames(), 1)
}

func TestUpstreamErrorRateIsPerService(t *testing.T) {
	metrics := NewMetrics()
	am := NewAlertManager(NewLogger(), metrics, time.Hour)
	notifier := &recordingNotifier{}
	am.AddNotifier(notifier)
	am.AddRule(AlertRule{
		Name:      "IndexerErrors",
		Query:     "upstream_error_rate_percent",
		Threshold: 25.0,
		Operator:  "gt",
		Severity:  SeverityError,
		Service:   "chain-indexer",
	})

	// Oracle failures must not trip the indexer rule
	for i := 0; i < 10; i++ {
		metrics.RecordExternalAPIRequest("rates-oracle", false)
		metrics.RecordExternalAPIRequest("chain-indexer", true)
	}
	am.evaluateRules(context.Background())
	assert.Empty(t, am.GetActiveAlerts())

	for i := 0; i < 10; i++ {
		metrics.RecordExternalAPIRequest("chain-indexer", false)
	}
	am.evaluateRules(context.Background())
	waitFor(t, func() bool { return len(notifier.firedNames()) == 1 })
}

func TestUnknownQueryNeverFires(t *testing.T) {
	metrics := NewMetrics()
	am := NewAlertManager(NewLogger(), metrics, time.Hour)
	am.AddRule(AlertRule{
		Name:      "Bogus",
		Query:     "does_not_exist",
		Threshold: 0,
		Operator:  "gt",
		Service:   "api",
	})

	am.evaluateRules(context.Background())
	assert.Empty(t, am.GetAlerts())
}

func TestCheckConditionOperators(t *testing.T) {
	assert.True(t, checkCondition(5, "gt", 4))
	assert.False(t, checkCondition(4, "gt", 4))
	assert.True(t, checkCondition(4, "gte", 4))
	assert.True(t, checkCondition(3, "lt", 4))
	assert.True(t, checkCondition(4, "lte", 4))
	assert.False(t, checkCondition(1, "unknown", 0))
}

func TestDefaultAlertRulesQueriesResolve(t *testing.T) {
	metrics := NewMetrics()
	am := NewAlertManager(NewLogger(), metrics, time.Hour)

	for _, rule := range DefaultAlertRules {
		_, ok := am.queryGauge(rule.Query, rule.Service)
		assert.True(t, ok, "rule %s uses unknown query %s", rule.Name, rule.Query)
	}
}
