package mlserr

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wireErr struct {
	status int
	hint   time.Duration
}

func (e *wireErr) Error() string                 { return fmt.Sprintf("provider status %d", e.status) }
func (e *wireErr) HTTPStatus() int               { return e.status }
func (e *wireErr) RetryAfterHint() time.Duration { return e.hint }

func TestClassifyStatuses(t *testing.T) {
	tests := []struct {
		status    int
		wantType  Type
		retryable bool
	}{
		{401, TypeAuthentication, false},
		{403, TypeQuotaExceeded, false},
		{429, TypeRateLimit, true},
		{400, TypeValidation, false},
		{404, TypeAPI, false},
		{500, TypeServiceUnavailable, true},
		{503, TypeServiceUnavailable, true},
		{418, TypeAPI, false},
	}
	for _, tt := range tests {
		got := Classify(&wireErr{status: tt.status}, "/Property")
		require.NotNil(t, got, "status %d", tt.status)
		assert.Equal(t, tt.wantType, got.Type, "status %d", tt.status)
		assert.Equal(t, tt.retryable, got.Retryable, "status %d", tt.status)
		assert.Equal(t, "/Property", got.Endpoint)
	}
}

func TestClassifyRetryAfterHint(t *testing.T) {
	got := Classify(&wireErr{status: 429, hint: 17 * time.Second}, "")
	assert.Equal(t, 17*time.Second, got.RetryAfter)

	got = Classify(&wireErr{status: 429}, "")
	assert.Equal(t, 60*time.Second, got.RetryAfter, "missing hint falls back to a minute")

	got = Classify(&wireErr{status: 503}, "")
	assert.Equal(t, 30*time.Second, got.RetryAfter)
}

func TestClassifyTimeout(t *testing.T) {
	got := Classify(context.DeadlineExceeded, "/Property")
	assert.Equal(t, TypeTimeout, got.Type)
	assert.True(t, got.Retryable)
}

func TestClassifyPassesTypedThrough(t *testing.T) {
	orig := Validation("RANGE_INVERTED", "min above max")
	got := Classify(orig, "/Property")
	assert.Equal(t, "/Property", got.Endpoint)
	assert.Equal(t, orig.Code, got.Code)
	assert.Empty(t, orig.Endpoint, "the original error is never mutated")

	tagged := Validation("RANGE_INVERTED", "min above max").at("/Other")
	assert.Same(t, tagged, Classify(tagged, "/Property"))
	assert.Equal(t, "/Other", tagged.Endpoint)
}

func TestClassifyUnknown(t *testing.T) {
	got := Classify(errors.New("boom"), "")
	assert.Equal(t, TypeAPI, got.Type)
	assert.Equal(t, "UNEXPECTED", got.Code)
	assert.False(t, got.Retryable)
}

func TestIsType(t *testing.T) {
	err := RateLimited(time.Second)
	assert.True(t, IsType(err, TypeRateLimit))
	assert.False(t, IsType(err, TypeNetwork))
	assert.False(t, IsType(errors.New("plain"), TypeRateLimit))
}
