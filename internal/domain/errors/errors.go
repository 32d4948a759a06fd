package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorType groups errors by the layer that raised them
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeUpstream   ErrorType = "upstream"
	ErrorTypeModel      ErrorType = "model"
	ErrorTypeInternal   ErrorType = "internal"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeRateLimit  ErrorType = "rate_limit"
)

// Error codes of the dashboard pipeline.
const (
	CodeTransientFetch    = "TRANSIENT_FETCH"
	CodeRetryExhausted    = "RETRY_EXHAUSTED"
	CodeMalformedResponse = "MALFORMED_RESPONSE"
	CodeAnalysisFailed    = "ANALYSIS_FAILED"
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeInternal          = "INTERNAL_ERROR"
	CodeNotFound          = "RESOURCE_NOT_FOUND"
	CodeRateLimited       = "RATE_LIMIT_EXCEEDED"
)

// MalformedReason tells apart the ways a model reply can be unusable.
type MalformedReason string

const (
	ReasonNoJSON           MalformedReason = "no_json"
	ReasonInvalidJSON      MalformedReason = "invalid_json"
	ReasonIncompleteFields MalformedReason = "incomplete_fields"
	ReasonInvalidField     MalformedReason = "invalid_field"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	Retryable  bool                   `json:"retryable"`
	StatusCode int                    `json:"status_code"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches on Code so sentinel values work with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// NewTransientFetchError marks a failed data fetch that may succeed on retry.
func NewTransientFetchError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeUpstream,
		Code:       CodeTransientFetch,
		Message:    message,
		Retryable:  true,
		StatusCode: http.StatusBadGateway,
	}
}

// NewRetryExhaustedError is returned once every attempt allowed by a retry
// policy has failed. The last attempt's error is kept as the cause.
func NewRetryExhaustedError(attempts int, last error) *AppError {
	return &AppError{
		Type:       ErrorTypeUpstream,
		Code:       CodeRetryExhausted,
		Message:    fmt.Sprintf("giving up after %d attempts", attempts),
		Cause:      last,
		Retryable:  false,
		StatusCode: http.StatusServiceUnavailable,
		Details:    map[string]interface{}{"attempts": attempts},
	}
}

func NewMalformedResponseError(reason MalformedReason, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeModel,
		Code:       CodeMalformedResponse,
		Message:    message,
		Retryable:  false,
		StatusCode: http.StatusBadGateway,
		Details:    map[string]interface{}{"reason": string(reason)},
	}
}

// NewIncompleteFieldsError lists the required fields absent from a reply.
func NewIncompleteFieldsError(missing []string) *AppError {
	return NewMalformedResponseError(ReasonIncompleteFields,
		"incomplete analysis data: missing "+strings.Join(missing, ", ")).
		WithDetail("missing", missing)
}

func NewAnalysisFailedError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeModel,
		Code:       CodeAnalysisFailed,
		Message:    message,
		Retryable:  false,
		StatusCode: http.StatusBadGateway,
	}
}

func NewInvalidRequestError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       CodeInvalidRequest,
		Message:    message,
		Retryable:  false,
		StatusCode: http.StatusBadRequest,
	}
}

func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		Retryable:  false,
		StatusCode: http.StatusNotFound,
	}
}

func NewInternalError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       CodeInternal,
		Message:    message,
		Retryable:  true,
		StatusCode: http.StatusInternalServerError,
	}
}

func NewRateLimitError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeRateLimit,
		Code:       CodeRateLimited,
		Message:    message,
		Retryable:  true,
		StatusCode: http.StatusTooManyRequests,
	}
}

// Sentinels for errors.Is comparisons. Only the Code is compared.
var (
	ErrTransientFetch    = &AppError{Code: CodeTransientFetch}
	ErrRetryExhausted    = &AppError{Code: CodeRetryExhausted}
	ErrMalformedResponse = &AppError{Code: CodeMalformedResponse}
	ErrAnalysisFailed    = &AppError{Code: CodeAnalysisFailed}
	ErrInvalidRequest    = &AppError{Code: CodeInvalidRequest}
)

// As returns the outermost AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if appErr, ok := As(err); ok {
		return appErr.Retryable
	}
	return false
}

// Reason returns the malformed-response reason carried by err, if any.
func Reason(err error) MalformedReason {
	appErr, ok := As(err)
	if !ok || appErr.Code != CodeMalformedResponse {
		return ""
	}
	r, _ := appErr.Details["reason"].(string)
	return MalformedReason(r)
}

// GetStatusCode extracts HTTP status code from error
func GetStatusCode(err error) int {
	if appErr, ok := As(err); ok && appErr.StatusCode != 0 {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
