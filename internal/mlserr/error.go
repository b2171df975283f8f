package mlserr

import (
	"fmt"
	"time"
)

// Type buckets every failure the integration can produce. The retryable
// verdict is decided once, in Classify, and honored everywhere else.
type Type string

const (
	TypeAuthentication     Type = "AUTHENTICATION"
	TypeRateLimit          Type = "RATE_LIMIT"
	TypeNetwork            Type = "NETWORK"
	TypeAPI                Type = "API"
	TypeValidation         Type = "VALIDATION"
	TypeTimeout            Type = "TIMEOUT"
	TypeQuotaExceeded      Type = "QUOTA_EXCEEDED"
	TypeServiceUnavailable Type = "SERVICE_UNAVAILABLE"
	TypeDataFormat         Type = "DATA_FORMAT"
	TypeCache              Type = "CACHE"
)

// Error is the typed failure crossing every module boundary. Immutable once
// constructed; callers read fields, they never mutate them.
type Error struct {
	Type       Type          `json:"type"`
	Code       string        `json:"code"`
	Message    string        `json:"message"`
	Retryable  bool          `json:"retryable"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
	Endpoint   string        `json:"endpoint,omitempty"`
}

func (e *Error) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("%s/%s: %s (endpoint %s)", e.Type, e.Code, e.Message, e.Endpoint)
	}
	return fmt.Sprintf("%s/%s: %s", e.Type, e.Code, e.Message)
}

func New(t Type, code, msg string) *Error {
	return &Error{Type: t, Code: code, Message: msg, Timestamp: time.Now()}
}

func (e *Error) retry(after time.Duration) *Error {
	e.Retryable = true
	e.RetryAfter = after
	return e
}

func (e *Error) at(endpoint string) *Error {
	e.Endpoint = endpoint
	return e
}

// Validation builds the non-retryable error used for rejected input before
// any network call is attempted.
func Validation(code, msg string) *Error {
	return New(TypeValidation, code, msg)
}

// RateLimited builds the denial produced by the admission limiter.
func RateLimited(retryAfter time.Duration) *Error {
	e := New(TypeRateLimit, "RATE_LIMIT_EXCEEDED", "provider request quota exhausted")
	return e.retry(retryAfter)
}

// NotFound flags a provider record that does not exist. Not retryable.
func NotFound(listingID string) *Error {
	return New(TypeAPI, "PROPERTY_NOT_FOUND", "no property with listing id "+listingID)
}

// IsType reports whether err is an *Error of the given type.
func IsType(err error, t Type) bool {
	e, ok := err.(*Error)
	return ok && e.Type == t
}
