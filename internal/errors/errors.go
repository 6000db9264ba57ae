package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/gin-gonic/gin"
)

// ErrorCategory drives HTTP status mapping, log level, and retryability.
type ErrorCategory string

const (
	CategoryValidation    ErrorCategory = "validation"
	CategoryNotFound      ErrorCategory = "not_found"
	CategoryDataSource    ErrorCategory = "data_source"
	CategoryTimeout       ErrorCategory = "timeout"
	CategoryRateLimit     ErrorCategory = "rate_limit"
	CategoryInternal      ErrorCategory = "internal"
	CategoryConfiguration ErrorCategory = "configuration"
)

func codeLabel(code interface{}) string {
	switch code {
	case errbuilder.CodeInvalidArgument:
		return "VALIDATION_ERROR"
	case errbuilder.CodeNotFound:
		return "NOT_FOUND"
	case errbuilder.CodeUnavailable:
		return "DATA_SOURCE_ERROR"
	case errbuilder.CodeDeadlineExceeded:
		return "TIMEOUT_ERROR"
	case errbuilder.CodeResourceExhausted:
		return "RATE_LIMIT_EXCEEDED"
	case errbuilder.CodeInternal:
		return "INTERNAL_ERROR"
	case errbuilder.CodeFailedPrecondition:
		return "CONFIGURATION_ERROR"
	default:
		return "UNKNOWN_ERROR"
	}
}

// AppError carries an errbuilder error plus the context the HTTP layer
// and the logger need.
type AppError struct {
	*errbuilder.ErrBuilder
	Category   ErrorCategory `json:"category"`
	HTTPStatus int           `json:"http_status"`
	Timestamp  time.Time     `json:"timestamp"`
	RequestID  string        `json:"request_id,omitempty"`
	StackTrace string        `json:"stack_trace,omitempty"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("[%s] %s", codeLabel(e.ErrBuilder.ErrCode()), e.ErrBuilder.Msg)
}

func (e *AppError) Unwrap() error {
	return e.ErrBuilder.Unwrap()
}

// NewAppError wraps an errbuilder error with category and status.
func NewAppError(builder *errbuilder.ErrBuilder, category ErrorCategory, httpStatus int) *AppError {
	return &AppError{
		ErrBuilder: builder,
		Category:   category,
		HTTPStatus: httpStatus,
		Timestamp:  time.Now(),
	}
}

// build assembles the common shape shared by every constructor below: an
// errbuilder error with optional keyed details and an optional cause.
func build(code errbuilder.ErrCode, msg string, details map[string]error, cause error) *errbuilder.ErrBuilder {
	builder := errbuilder.New().WithCode(code).WithMsg(msg)

	if len(details) > 0 {
		errorMap := errbuilder.ErrorMap{}
		for key, err := range details {
			errorMap.Set(key, err)
		}
		builder = builder.WithDetails(errbuilder.NewErrDetails(errorMap))
	}
	if cause != nil {
		builder = builder.WithCause(cause)
	}
	return builder
}

// NewValidationError reports a rejected request input.
func NewValidationError(message string, details ...interface{}) *AppError {
	var detailMap map[string]error
	if len(details) > 0 {
		detailMap = map[string]error{
			"validation_details": fmt.Errorf("%v", details[0]),
		}
	}
	builder := build(errbuilder.CodeInvalidArgument, message, detailMap, nil)
	return NewAppError(builder, CategoryValidation, http.StatusBadRequest)
}

// NewInvalidFactorSetError reports a trust-factor set that is missing a
// required key or carries one that is not part of the model.
func NewInvalidFactorSetError(key string) *AppError {
	builder := build(errbuilder.CodeInvalidArgument, "invalid trust factor set",
		map[string]error{"factor_key": errors.New(key)}, nil)
	return NewAppError(builder, CategoryValidation, http.StatusBadRequest)
}

// NewInvalidWeightError reports a factor weight outside [0,1].
func NewInvalidWeightError(key string, weight float64) *AppError {
	builder := build(errbuilder.CodeInvalidArgument, "invalid factor weight",
		map[string]error{key: fmt.Errorf("weight %v outside [0,1]", weight)}, nil)
	return NewAppError(builder, CategoryValidation, http.StatusBadRequest)
}

// NewOutOfRangeError reports a numeric input outside its documented range.
func NewOutOfRangeError(field string, value interface{}) *AppError {
	builder := build(errbuilder.CodeInvalidArgument, fmt.Sprintf("%s out of range", field),
		map[string]error{field: fmt.Errorf("value %v out of range", value)}, nil)
	return NewAppError(builder, CategoryValidation, http.StatusBadRequest)
}

// NewNotFoundError reports a missing resource by kind and identifier.
func NewNotFoundError(resource, id string) *AppError {
	builder := build(errbuilder.CodeNotFound, fmt.Sprintf("%s not found", resource),
		map[string]error{resource: errors.New(id)}, nil)
	return NewAppError(builder, CategoryNotFound, http.StatusNotFound)
}

// NewDataSourceError reports a failed catalogue source operation.
func NewDataSourceError(source string, cause error) *AppError {
	builder := build(errbuilder.CodeUnavailable, fmt.Sprintf("%s source error", source),
		map[string]error{"source": errors.New(source)}, cause)
	return NewAppError(builder, CategoryDataSource, http.StatusBadGateway)
}

// NewTimeoutError reports an operation that ran out of time.
func NewTimeoutError(message string, cause error) *AppError {
	builder := build(errbuilder.CodeDeadlineExceeded, message, nil, cause)
	return NewAppError(builder, CategoryTimeout, http.StatusGatewayTimeout)
}

// NewRateLimitError reports an exhausted rate limit budget.
func NewRateLimitError(retryAfter string) *AppError {
	builder := build(errbuilder.CodeResourceExhausted, "Rate limit exceeded",
		map[string]error{"retry_after": errors.New(retryAfter)}, nil)
	return NewAppError(builder, CategoryRateLimit, http.StatusTooManyRequests)
}

// NewInternalError reports an unexpected failure. Stack traces are only
// attached outside release mode.
func NewInternalError(message string, cause error) *AppError {
	builder := build(errbuilder.CodeInternal, "Internal server error",
		map[string]error{"internal_details": errors.New(message)}, cause)

	appErr := NewAppError(builder, CategoryInternal, http.StatusInternalServerError)
	if gin.Mode() == gin.DebugMode || gin.Mode() == gin.TestMode {
		appErr.StackTrace = captureStackTrace()
	}
	return appErr
}

// NewConfigurationError reports invalid or missing startup configuration.
func NewConfigurationError(message string, cause error) *AppError {
	builder := build(errbuilder.CodeFailedPrecondition, "Configuration error",
		map[string]error{"config_details": errors.New(message)}, cause)
	return NewAppError(builder, CategoryConfiguration, http.StatusInternalServerError)
}

// IsValidation reports whether err is a validation-category AppError.
func IsValidation(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Category == CategoryValidation
	}
	return false
}

func captureStackTrace() string {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// ErrorHandler converts errors attached to the Gin context into one
// structured JSON response.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		appErr := ToAppError(c.Errors.Last().Err)
		LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
	}
}

// RecoveryHandler turns panics into structured 500 responses.
func RecoveryHandler() gin.HandlerFunc {
	return gin.RecoveryWithWriter(nil, func(c *gin.Context, err interface{}) {
		appErr := NewInternalError(
			fmt.Sprintf("Panic recovered: %v", err),
			fmt.Errorf("%v", err),
		)
		appErr.StackTrace = captureStackTrace()

		LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
	})
}

// ToAppError coerces any error into an AppError, classifying common
// network and context failures along the way.
func ToAppError(err error) *AppError {
	if err == nil {
		return nil
	}

	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	if ebErr, ok := err.(*errbuilder.ErrBuilder); ok {
		return NewAppError(ebErr, CategoryInternal, http.StatusInternalServerError)
	}

	if errors.Is(err, context.Canceled) {
		return NewTimeoutError("Request cancelled", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError("Request deadline exceeded", err)
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "network is unreachable"):
		return NewDataSourceError("network", err)
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "deadline exceeded"):
		return NewTimeoutError("Request timeout", err)
	}

	return NewInternalError("An unexpected error occurred", err)
}

// LogError writes one log line per error at a level matching its
// category: client mistakes at warn, upstream trouble at info, the rest
// at error.
func LogError(c *gin.Context, err *AppError) {
	logEntry := slog.With(
		"error_category", err.Category,
		"error_code", err.ErrBuilder.ErrCode(),
		"http_status", err.HTTPStatus,
		"ip", c.ClientIP(),
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"request_id", c.GetHeader("X-Request-ID"),
	)

	msg := err.ErrBuilder.Msg
	cause := err.ErrBuilder.Unwrap()

	switch err.Category {
	case CategoryValidation, CategoryNotFound, CategoryRateLimit:
		if details := err.ErrBuilder.Details; len(details.Errors) > 0 {
			logEntry.Warn(msg, "details", details.Errors)
		} else {
			logEntry.Warn(msg)
		}
	case CategoryDataSource, CategoryTimeout:
		if cause != nil {
			logEntry.Info(msg, "cause", cause)
		} else {
			logEntry.Info(msg)
		}
	default:
		if cause != nil {
			logEntry.Error(msg, "cause", cause)
		} else {
			logEntry.Error(msg)
		}
	}

	if err.StackTrace != "" && (gin.Mode() == gin.DebugMode || gin.Mode() == gin.TestMode) {
		logEntry.Debug("stack_trace", "trace", err.StackTrace)
	}
}

// IsRetryableError reports whether the failure is transient enough that
// another attempt could succeed.
func IsRetryableError(err error) bool {
	switch ToAppError(err).Category {
	case CategoryDataSource, CategoryTimeout, CategoryRateLimit:
		return true
	default:
		return false
	}
}

// GetRetryDelay scales the wait between attempts by error category:
// rate limits back off quadratically, upstream failures exponentially.
func GetRetryDelay(err error, attempt int) time.Duration {
	baseDelay := time.Duration(100*attempt) * time.Millisecond

	switch ToAppError(err).Category {
	case CategoryRateLimit:
		return time.Duration(attempt*attempt) * time.Second
	case CategoryDataSource, CategoryTimeout:
		return baseDelay * time.Duration(1<<attempt)
	default:
		return baseDelay
	}
}

// WrapError adds formatted context while preserving the error chain.
func WrapError(err error, message string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(message, args...), err)
}

// SafeClose closes a resource and logs instead of propagating failures.
func SafeClose(closer interface{ Close() error }, resourceName string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		slog.Warn("Failed to close resource", "resource", resourceName, "error", err)
	}
}
