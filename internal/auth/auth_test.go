package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/mls-sync/internal/executor"
	"github.com/yourorg/mls-sync/internal/mlserr"
)

type fakeTokenAPI struct {
	responses [][]byte
	errs      []error
	calls     int
}

func (f *fakeTokenAPI) Token(context.Context) ([]byte, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return f.responses[len(f.responses)-1], nil
}

func newExec() *executor.Executor {
	return executor.New(executor.Options{Log: zerolog.Nop()}).
		WithSleep(func(context.Context, time.Duration) error { return nil }).
		WithJitter(func() time.Duration { return 0 })
}

func TestTokenReusedUntilExpiry(t *testing.T) {
	api := &fakeTokenAPI{responses: [][]byte{
		[]byte(`{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`),
		[]byte(`{"access_token":"tok-2","token_type":"Bearer","expires_in":3600}`),
	}}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := NewManager(api, newExec(), zerolog.Nop()).WithClock(func() time.Time { return now })

	tok, err := m.EnsureValidToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
	assert.True(t, m.Valid())

	tok, err = m.EnsureValidToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
	assert.Equal(t, 1, api.calls, "unexpired token must be reused")

	now = now.Add(time.Hour + time.Minute)
	assert.False(t, m.Valid())
	tok, err = m.EnsureValidToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok)
	assert.Equal(t, 2, api.calls)
}

func TestRefreshAheadOfExpiry(t *testing.T) {
	api := &fakeTokenAPI{responses: [][]byte{
		[]byte(`{"access_token":"tok-1","expires_in":60}`),
		[]byte(`{"access_token":"tok-2","expires_in":60}`),
	}}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := NewManager(api, newExec(), zerolog.Nop()).WithClock(func() time.Time { return now })

	_, err := m.EnsureValidToken(context.Background())
	require.NoError(t, err)

	// 35s in, the 60s token is within the 30s skew window.
	now = now.Add(35 * time.Second)
	tok, err := m.EnsureValidToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok)
}

func TestInvalidateForcesRefresh(t *testing.T) {
	api := &fakeTokenAPI{responses: [][]byte{
		[]byte(`{"access_token":"tok-1","expires_in":3600}`),
		[]byte(`{"access_token":"tok-2","expires_in":3600}`),
	}}
	m := NewManager(api, newExec(), zerolog.Nop())

	_, err := m.EnsureValidToken(context.Background())
	require.NoError(t, err)
	m.Invalidate()
	assert.False(t, m.Valid())

	tok, err := m.EnsureValidToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok)
}

func TestCredentialFailureIsTyped(t *testing.T) {
	api := &fakeTokenAPI{errs: []error{errors.New("invalid_client")}, responses: [][]byte{nil}}
	m := NewManager(api, newExec(), zerolog.Nop())

	_, err := m.EnsureValidToken(context.Background())
	require.Error(t, err)
	assert.True(t, mlserr.IsType(err, mlserr.TypeAuthentication))
	var typed *mlserr.Error
	require.ErrorAs(t, err, &typed)
	assert.False(t, typed.Retryable)
}

func TestEmptyTokenRejected(t *testing.T) {
	api := &fakeTokenAPI{responses: [][]byte{[]byte(`{"token_type":"Bearer"}`)}}
	m := NewManager(api, newExec(), zerolog.Nop())

	_, err := m.EnsureValidToken(context.Background())
	require.Error(t, err)
	assert.True(t, mlserr.IsType(err, mlserr.TypeAuthentication))
	assert.False(t, m.Valid())
}
