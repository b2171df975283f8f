package mlserr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
)

// statusCoder is implemented by provider wire errors carrying an HTTP status.
type statusCoder interface {
	HTTPStatus() int
}

// retryHinter exposes a server-suggested wait, e.g. a parsed Retry-After.
type retryHinter interface {
	RetryAfterHint() time.Duration
}

// Classify maps any raw failure to a typed Error with a retryability verdict.
// This is the single mapping every component relies on to decide whether to
// retry, fall back, or fail fast.
func Classify(err error, endpoint string) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		if typed.Endpoint == "" && endpoint != "" {
			// Errors are immutable once constructed; tag a copy instead.
			cp := *typed
			cp.Endpoint = endpoint
			return &cp
		}
		return typed
	}

	if sc, ok := statusOf(err); ok {
		return classifyStatus(sc, err, endpoint)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return New(TypeTimeout, "REQUEST_TIMEOUT", err.Error()).retry(5 * time.Second).at(endpoint)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return New(TypeTimeout, "REQUEST_TIMEOUT", err.Error()).retry(5 * time.Second).at(endpoint)
	}

	var se *json.SyntaxError
	var ute *json.UnmarshalTypeError
	if errors.As(err, &se) || errors.As(err, &ute) {
		return New(TypeDataFormat, "MALFORMED_PAYLOAD", err.Error()).at(endpoint)
	}

	var oe *net.OpError
	if errors.As(err, &oe) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return New(TypeNetwork, "CONNECTION_FAILED", err.Error()).retry(0).at(endpoint)
	}

	return New(TypeAPI, "UNEXPECTED", err.Error()).at(endpoint)
}

func statusOf(err error) (int, bool) {
	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatus(), true
	}
	return 0, false
}

func classifyStatus(status int, err error, endpoint string) *Error {
	hint := time.Duration(0)
	var rh retryHinter
	if errors.As(err, &rh) {
		hint = rh.RetryAfterHint()
	}

	switch {
	case status == 401:
		// Surfaces immediately so the auth manager can re-authenticate
		// instead of the executor blindly retrying bad credentials.
		return New(TypeAuthentication, "UNAUTHORIZED", err.Error()).at(endpoint)
	case status == 403:
		return New(TypeQuotaExceeded, "QUOTA_EXCEEDED", err.Error()).at(endpoint)
	case status == 429:
		if hint <= 0 {
			hint = 60 * time.Second
		}
		return New(TypeRateLimit, "PROVIDER_RATE_LIMIT", err.Error()).retry(hint).at(endpoint)
	case status == 400:
		return New(TypeValidation, "BAD_REQUEST", err.Error()).at(endpoint)
	case status == 404:
		return New(TypeAPI, "NOT_FOUND", err.Error()).at(endpoint)
	case status >= 500:
		if hint <= 0 {
			hint = 30 * time.Second
		}
		return New(TypeServiceUnavailable, fmt.Sprintf("HTTP_%d", status), err.Error()).retry(hint).at(endpoint)
	default:
		return New(TypeAPI, fmt.Sprintf("HTTP_%d", status), err.Error()).at(endpoint)
	}
}
