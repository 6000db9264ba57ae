package monitoring

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// TraceID represents a unique trace identifier
type TraceID string

// SpanID represents a unique span identifier
type SpanID string

// Span holds the timing and metadata of one traced operation. Spans
// nest through the request context, so a catalogue refresh triggered
// inside a request shares that request's trace id.
type Span struct {
	TraceID     TraceID           `json:"trace_id"`
	SpanID      SpanID            `json:"span_id"`
	ParentID    *SpanID           `json:"parent_id,omitempty"`
	ServiceName string            `json:"service_name"`
	Operation   string            `json:"operation"`
	StartTime   time.Time         `json:"start_time"`
	EndTime     *time.Time        `json:"end_time,omitempty"`
	Duration    *time.Duration    `json:"duration,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
	Error       string            `json:"error,omitempty"`
	Status      SpanStatus        `json:"status"`
}

// SpanStatus represents the status of a span
type SpanStatus string

const (
	SpanStatusOK    SpanStatus = "ok"
	SpanStatusError SpanStatus = "error"
)

type spanContextKey struct{}

// Tracer tracks in-flight spans and emits them to the structured log
// when they complete.
type Tracer struct {
	serviceName string
	logger      *Logger
	spans       map[SpanID]*Span
	spansMutex  sync.RWMutex
}

// NewTracer creates a new tracer instance
func NewTracer(serviceName string, logger *Logger) *Tracer {
	return &Tracer{
		serviceName: serviceName,
		logger:      logger,
		spans:       make(map[SpanID]*Span),
	}
}

// StartSpan starts a new span. If the context already carries a span,
// the new one joins its trace as a child.
func (t *Tracer) StartSpan(ctx context.Context, operation string, opts ...SpanOption) (*Span, context.Context) {
	span := &Span{
		SpanID:      t.generateID(8),
		ServiceName: t.serviceName,
		Operation:   operation,
		StartTime:   time.Now(),
		Tags:        make(map[string]string),
		Status:      SpanStatusOK,
	}

	if parent := spanFromContext(ctx); parent != nil {
		span.TraceID = parent.TraceID
		parentID := parent.SpanID
		span.ParentID = &parentID
	} else {
		span.TraceID = TraceID(t.generateID(16))
	}

	for _, opt := range opts {
		opt(span)
	}

	t.spansMutex.Lock()
	t.spans[span.SpanID] = span
	t.spansMutex.Unlock()

	return span, context.WithValue(ctx, spanContextKey{}, span)
}

// EndSpan completes a span, logs it, and drops it from the in-flight set.
func (t *Tracer) EndSpan(span *Span, err error) {
	endTime := time.Now()
	duration := endTime.Sub(span.StartTime)

	span.EndTime = &endTime
	span.Duration = &duration

	if err != nil {
		span.Error = err.Error()
		span.Status = SpanStatusError
	}

	t.logSpan(span)

	t.spansMutex.Lock()
	delete(t.spans, span.SpanID)
	t.spansMutex.Unlock()
}

// SetTag sets a tag on a span
func (t *Tracer) SetTag(span *Span, key, value string) {
	if span.Tags == nil {
		span.Tags = make(map[string]string)
	}
	span.Tags[key] = value
}

// SpanOption represents an option for configuring a span
type SpanOption func(*Span)

// WithTag sets a tag on the span
func WithTag(key, value string) SpanOption {
	return func(span *Span) {
		if span.Tags == nil {
			span.Tags = make(map[string]string)
		}
		span.Tags[key] = value
	}
}

// WithTraceID joins an existing trace, e.g. one propagated by a caller
// through the X-Trace-ID header.
func WithTraceID(traceID TraceID) SpanOption {
	return func(span *Span) {
		span.TraceID = traceID
		span.ParentID = nil
	}
}

func (t *Tracer) generateID(size int) SpanID {
	bytes := make([]byte, size)
	rand.Read(bytes)
	return SpanID(fmt.Sprintf("%x", bytes))
}

func spanFromContext(ctx context.Context) *Span {
	if span, ok := ctx.Value(spanContextKey{}).(*Span); ok {
		return span
	}
	return nil
}

func (t *Tracer) logSpan(span *Span) {
	logEntry := []any{
		"trace_id", span.TraceID,
		"span_id", span.SpanID,
		"service", span.ServiceName,
		"operation", span.Operation,
		"status", span.Status,
	}

	if span.ParentID != nil {
		logEntry = append(logEntry, "parent_id", *span.ParentID)
	}
	if span.Duration != nil {
		logEntry = append(logEntry, "duration_ms", span.Duration.Milliseconds())
	}
	if span.Error != "" {
		logEntry = append(logEntry, "error", span.Error)
	}
	for k, v := range span.Tags {
		logEntry = append(logEntry, fmt.Sprintf("tag_%s", k), v)
	}

	t.logger.Info("Trace span", logEntry...)
}

// TracingMiddleware traces every request and propagates the trace id
// back to the caller in X-Trace-ID.
func TracingMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		operation := fmt.Sprintf("%s %s", c.Request.Method, c.FullPath())
		if c.FullPath() == "" {
			operation = fmt.Sprintf("%s %s", c.Request.Method, c.Request.URL.Path)
		}

		opts := []SpanOption{
			WithTag("http.method", c.Request.Method),
			WithTag("http.url", c.Request.URL.String()),
			WithTag("client_ip", c.ClientIP()),
		}
		if incoming := c.GetHeader("X-Trace-ID"); incoming != "" {
			opts = append(opts, WithTraceID(TraceID(incoming)))
		}

		span, ctx := tracer.StartSpan(c.Request.Context(), operation, opts...)

		c.Header("X-Trace-ID", string(span.TraceID))
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		tracer.SetTag(span, "http.status_code", fmt.Sprintf("%d", c.Writer.Status()))

		var spanErr error
		if len(c.Errors) > 0 {
			spanErr = fmt.Errorf("request errors: %v", c.Errors)
		}
		tracer.EndSpan(span, spanErr)
	}
}

// Global tracer instance
var globalTracer *Tracer

// InitGlobalTracer initializes the global tracer
func InitGlobalTracer(serviceName string, logger *Logger) {
	globalTracer = NewTracer(serviceName, logger)
}

// GetGlobalTracer returns the global tracer
func GetGlobalTracer() *Tracer {
	return globalTracer
}

// GetSpans returns a copy of the in-flight spans for the debug surface.
func (t *Tracer) GetSpans() map[SpanID]*Span {
	t.spansMutex.RLock()
	defer t.spansMutex.RUnlock()

	spans := make(map[SpanID]*Span, len(t.spans))
	for id, span := range t.spans {
		spans[id] = span
	}
	return spans
}

// GetSpanCount returns the number of in-flight spans.
func (t *Tracer) GetSpanCount() int {
	t.spansMutex.RLock()
	defer t.spansMutex.RUnlock()
	return len(t.spans)
}

// TraceOperation runs fn inside a span named after the operation. Used
// for non-HTTP work such as the catalogue refresh loop.
func TraceOperation(ctx context.Context, tracer *Tracer, operation string, fn func(context.Context) error) error {
	span, spanCtx := tracer.StartSpan(ctx, operation)

	defer func() {
		if r := recover(); r != nil {
			tracer.SetTag(span, "panic", "true")
			tracer.EndSpan(span, fmt.Errorf("panic: %v", r))
			panic(r)
		}
	}()

	err := fn(spanCtx)
	tracer.EndSpan(span, err)

	return err
}
