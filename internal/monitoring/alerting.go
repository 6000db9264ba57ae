package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// AlertSeverity represents the severity level of an alert
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityError    AlertSeverity = "error"
	SeverityCritical AlertSeverity = "critical"
)

// AlertStatus represents the status of an alert
type AlertStatus string

const (
	StatusActive     AlertStatus = "active"
	StatusResolved   AlertStatus = "resolved"
	StatusSuppressed AlertStatus = "suppressed"
)

// Alert represents a monitoring alert
type Alert struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Severity    AlertSeverity     `json:"severity"`
	Status      AlertStatus       `json:"status"`
	Service     string            `json:"service"`
	Labels      map[string]string `json:"labels,omitempty"`
	Value       float64           `json:"value,omitempty"`
	Threshold   float64           `json:"threshold,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	ResolvedAt  *time.Time        `json:"resolved_at,omitempty"`
	FiredAt     time.Time         `json:"fired_at"`
}

// AlertRule defines a threshold over one of the platform gauges. The
// gauge is identified by Query and evaluated against the bound Metrics
// on every tick.
type AlertRule struct {
	Name        string
	Query       string
	Threshold   float64
	Operator    string // "gt", "lt", "gte", "lte"
	Severity    AlertSeverity
	Service     string
	Description string
	Labels      map[string]string
	For         time.Duration // Grace period before an active alert may resolve
}

// AlertNotifier defines the interface for sending alert notifications
type AlertNotifier interface {
	SendAlert(ctx context.Context, alert *Alert) error
	ResolveAlert(ctx context.Context, alert *Alert) error
}

// SlackNotifier posts alerts to a Slack incoming-webhook URL.
type SlackNotifier struct {
	WebhookURL string
	client     *http.Client
}

// NewSlackNotifier creates a new Slack notifier
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		WebhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *SlackNotifier) post(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook returned %d", resp.StatusCode)
	}
	return nil
}

// SendAlert posts a firing alert to the webhook.
func (s *SlackNotifier) SendAlert(ctx context.Context, alert *Alert) error {
	text := fmt.Sprintf(":rotating_light: [%s] %s: %s (value %.2f, threshold %.2f)",
		alert.Severity, alert.Name, alert.Description, alert.Value, alert.Threshold)
	return s.post(ctx, text)
}

// ResolveAlert posts a resolution notice to the webhook.
func (s *SlackNotifier) ResolveAlert(ctx context.Context, alert *Alert) error {
	return s.post(ctx, fmt.Sprintf(":white_check_mark: Resolved: %s", alert.Name))
}

// LogNotifier writes alert transitions to the structured log. It is
// always registered so alerts are visible even without a webhook.
type LogNotifier struct{}

func (LogNotifier) SendAlert(_ context.Context, alert *Alert) error {
	slog.Warn("Alert fired",
		"alert", alert.Name,
		"service", alert.Service,
		"severity", alert.Severity,
		"value", alert.Value,
		"threshold", alert.Threshold)
	return nil
}

func (LogNotifier) ResolveAlert(_ context.Context, alert *Alert) error {
	slog.Info("Alert resolved", "alert", alert.Name, "service", alert.Service)
	return nil
}

// AlertManager evaluates rules against the bound metrics registry and
// fans out state transitions to its notifiers.
type AlertManager struct {
	rules         []AlertRule
	alerts        map[string]*Alert
	notifiers     []AlertNotifier
	logger        *Logger
	metrics       *Metrics
	checkInterval time.Duration
	mu            sync.RWMutex
}

// NewAlertManager creates a new alert manager bound to a metrics registry.
func NewAlertManager(logger *Logger, metrics *Metrics, checkInterval time.Duration) *AlertManager {
	return &AlertManager{
		rules:         []AlertRule{},
		alerts:        make(map[string]*Alert),
		notifiers:     []AlertNotifier{LogNotifier{}},
		logger:        logger,
		metrics:       metrics,
		checkInterval: checkInterval,
	}
}

// AddRule adds an alert rule
func (am *AlertManager) AddRule(rule AlertRule) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.rules = append(am.rules, rule)
}

// AddNotifier adds a notifier
func (am *AlertManager) AddNotifier(notifier AlertNotifier) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.notifiers = append(am.notifiers, notifier)
}

// Start begins the alert evaluation loop
func (am *AlertManager) Start(ctx context.Context) {
	ticker := time.NewTicker(am.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			am.evaluateRules(ctx)
		}
	}
}

func (am *AlertManager) evaluateRules(ctx context.Context) {
	am.mu.RLock()
	rules := make([]AlertRule, len(am.rules))
	copy(rules, am.rules)
	am.mu.RUnlock()

	for _, rule := range rules {
		am.evaluateRule(ctx, rule)
	}
}

func (am *AlertManager) evaluateRule(ctx context.Context, rule AlertRule) {
	currentValue, ok := am.queryGauge(rule.Query, rule.Service)
	if !ok {
		am.logger.SystemLogger("unknown_alert_query", fmt.Sprintf("Unknown query type: %s", rule.Query))
		return
	}

	alertKey := fmt.Sprintf("%s:%s", rule.Service, rule.Name)

	am.mu.Lock()
	alert, exists := am.alerts[alertKey]
	conditionMet := checkCondition(currentValue, rule.Operator, rule.Threshold)

	var toFire, toResolve *Alert
	switch {
	case conditionMet && !exists:
		alert = &Alert{
			ID:          alertKey,
			Name:        rule.Name,
			Description: rule.Description,
			Severity:    rule.Severity,
			Status:      StatusActive,
			Service:     rule.Service,
			Labels:      rule.Labels,
			Value:       currentValue,
			Threshold:   rule.Threshold,
			CreatedAt:   time.Now(),
			FiredAt:     time.Now(),
		}
		am.alerts[alertKey] = alert
		toFire = alert

	case conditionMet && alert.Status == StatusResolved:
		alert.Status = StatusActive
		alert.FiredAt = time.Now()
		alert.Value = currentValue
		toFire = alert

	case !conditionMet && exists && alert.Status != StatusResolved:
		if time.Since(alert.FiredAt) > rule.For {
			now := time.Now()
			alert.Status = StatusResolved
			alert.ResolvedAt = &now
			toResolve = alert
		}
	}
	am.mu.Unlock()

	if toFire != nil {
		am.fireAlert(ctx, toFire)
	}
	if toResolve != nil {
		am.resolveAlert(ctx, toResolve)
	}
}

// queryGauge resolves a rule query against the metrics registry. The
// returned bool is false for unknown query names.
func (am *AlertManager) queryGauge(query, service string) (float64, bool) {
	if am.metrics == nil {
		return 0, false
	}

	switch query {
	case "error_rate_percent":
		requests := atomic.LoadInt64(&am.metrics.RequestCount)
		if requests == 0 {
			return 0, true
		}
		errors := atomic.LoadInt64(&am.metrics.ErrorCount)
		return float64(errors) / float64(requests) * 100, true

	case "p95_response_ms":
		return float64(am.metrics.GetPercentileResponseTime(95).Milliseconds()), true

	case "upstream_error_rate_percent":
		am.metrics.ExternalAPIMutex.RLock()
		requests := am.metrics.ExternalAPIRequests[service]
		errors := am.metrics.ExternalAPIErrorCount[service]
		am.metrics.ExternalAPIMutex.RUnlock()
		if requests == 0 {
			return 0, true
		}
		return float64(errors) / float64(requests) * 100, true

	case "heap_usage_percent":
		heapSys := atomic.LoadInt64(&am.metrics.HeapSys)
		if heapSys == 0 {
			return 0, true
		}
		heapAlloc := atomic.LoadInt64(&am.metrics.HeapAlloc)
		return float64(heapAlloc) / float64(heapSys) * 100, true

	case "ratelimit_fallbacks":
		return float64(atomic.LoadInt64(&am.metrics.RateLimitFallbackCount)), true

	default:
		return 0, false
	}
}

func checkCondition(value float64, operator string, threshold float64) bool {
	switch operator {
	case "gt":
		return value > threshold
	case "lt":
		return value < threshold
	case "gte":
		return value >= threshold
	case "lte":
		return value <= threshold
	default:
		return false
	}
}

func (am *AlertManager) fireAlert(ctx context.Context, alert *Alert) {
	am.logger.SystemLogger("alert_fired", fmt.Sprintf("Alert %s fired with severity %s", alert.Name, alert.Severity))

	am.mu.RLock()
	notifiers := make([]AlertNotifier, len(am.notifiers))
	copy(notifiers, am.notifiers)
	am.mu.RUnlock()

	for _, notifier := range notifiers {
		go func(n AlertNotifier) {
			if err := n.SendAlert(ctx, alert); err != nil {
				am.logger.SystemLogger("alert_notification_failed", fmt.Sprintf("Failed to send alert %s: %v", alert.Name, err))
			}
		}(notifier)
	}
}

func (am *AlertManager) resolveAlert(ctx context.Context, alert *Alert) {
	am.logger.SystemLogger("alert_resolved", fmt.Sprintf("Alert %s resolved", alert.Name))

	am.mu.RLock()
	notifiers := make([]AlertNotifier, len(am.notifiers))
	copy(notifiers, am.notifiers)
	am.mu.RUnlock()

	for _, notifier := range notifiers {
		go func(n AlertNotifier) {
			if err := n.ResolveAlert(ctx, alert); err != nil {
				am.logger.SystemLogger("alert_resolution_failed", fmt.Sprintf("Failed to resolve alert %s: %v", alert.Name, err))
			}
		}(notifier)
	}
}

// GetAlerts returns all current alerts
func (am *AlertManager) GetAlerts() map[string]*Alert {
	am.mu.RLock()
	defer am.mu.RUnlock()

	alerts := make(map[string]*Alert, len(am.alerts))
	for k, v := range am.alerts {
		alerts[k] = v
	}
	return alerts
}

// GetActiveAlerts returns only active alerts
func (am *AlertManager) GetActiveAlerts() map[string]*Alert {
	am.mu.RLock()
	defer am.mu.RUnlock()

	activeAlerts := make(map[string]*Alert)
	for k, v := range am.alerts {
		if v.Status == StatusActive {
			activeAlerts[k] = v
		}
	}
	return activeAlerts
}

// SilenceAlert suppresses an alert until it next resolves and re-fires.
func (am *AlertManager) SilenceAlert(alertID string, duration time.Duration) {
	am.mu.Lock()
	defer am.mu.Unlock()

	if alert, exists := am.alerts[alertID]; exists {
		alert.Status = StatusSuppressed
		am.logger.SystemLogger("alert_silenced", fmt.Sprintf("Alert %s silenced for %v", alert.Name, duration))
	}
}

// DefaultAlertRules covers the gauges that matter for the aggregation
// service: request errors, scoring latency, the two upstreams, and the
// rate limiter's Redis dependency.
var DefaultAlertRules = []AlertRule{
	{
		Name:        "HighErrorRate",
		Query:       "error_rate_percent",
		Threshold:   10.0,
		Operator:    "gt",
		Severity:    SeverityWarning,
		Service:     "api",
		Description: "API error rate is above 10%",
		For:         5 * time.Minute,
		Labels:      map[string]string{"team": "platform"},
	},
	{
		Name:        "SlowResponses",
		Query:       "p95_response_ms",
		Threshold:   750.0,
		Operator:    "gt",
		Severity:    SeverityWarning,
		Service:     "api",
		Description: "p95 response time is above 750ms",
		For:         2 * time.Minute,
		Labels:      map[string]string{"team": "platform"},
	},
	{
		Name:        "IndexerErrors",
		Query:       "upstream_error_rate_percent",
		Threshold:   25.0,
		Operator:    "gt",
		Severity:    SeverityError,
		Service:     "chain-indexer",
		Description: "Chain indexer error rate is above 25%",
		For:         5 * time.Minute,
		Labels:      map[string]string{"team": "platform"},
	},
	{
		Name:        "OracleErrors",
		Query:       "upstream_error_rate_percent",
		Threshold:   25.0,
		Operator:    "gt",
		Severity:    SeverityError,
		Service:     "rates-oracle",
		Description: "Rates oracle error rate is above 25%",
		For:         5 * time.Minute,
		Labels:      map[string]string{"team": "platform"},
	},
	{
		Name:        "HighHeapUsage",
		Query:       "heap_usage_percent",
		Threshold:   90.0,
		Operator:    "gt",
		Severity:    SeverityCritical,
		Service:     "system",
		Description: "Heap usage is above 90% of the heap reserved from the OS",
		For:         1 * time.Minute,
		Labels:      map[string]string{"team": "platform"},
	},
	{
		Name:        "RateLimiterOnFallback",
		Query:       "ratelimit_fallbacks",
		Threshold:   0.0,
		Operator:    "gt",
		Severity:    SeverityWarning,
		Service:     "ratelimit",
		Description: "Rate limiter is running on the in-memory fallback instead of Redis",
		For:         10 * time.Minute,
		Labels:      map[string]string{"team": "platform"},
	},
}

// Global alert manager instance
var globalAlertManager *AlertManager

// InitGlobalAlertManager initializes the global alert manager with the
// default rule set.
func InitGlobalAlertManager(logger *Logger, metrics *Metrics, checkInterval time.Duration) {
	globalAlertManager = NewAlertManager(logger, metrics, checkInterval)

	for _, rule := range DefaultAlertRules {
		globalAlertManager.AddRule(rule)
	}
}

// GetGlobalAlertManager returns the global alert manager
func GetGlobalAlertManager() *AlertManager {
	return globalAlertManager
}

// StartGlobalAlerting starts the global alert manager
func StartGlobalAlerting(ctx context.Context) {
	if globalAlertManager != nil {
		go globalAlertManager.Start(ctx)
	}
}
