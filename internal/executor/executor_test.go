package executor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/mls-sync/internal/mlserr"
)

type wireErr struct {
	status int
}

func (e *wireErr) Error() string   { return fmt.Sprintf("provider status %d", e.status) }
func (e *wireErr) HTTPStatus() int { return e.status }

type hintedErr struct {
	status int
	hint   time.Duration
}

func (e *hintedErr) Error() string                 { return fmt.Sprintf("provider status %d", e.status) }
func (e *hintedErr) HTTPStatus() int               { return e.status }
func (e *hintedErr) RetryAfterHint() time.Duration { return e.hint }

func newTestExecutor(t *testing.T) (*Executor, *[]time.Duration) {
	t.Helper()
	var slept []time.Duration
	e := New(Options{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second, Log: zerolog.Nop()}).
		WithSleep(func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		}).
		WithJitter(func() time.Duration { return 0 })
	return e, &slept
}

func TestRetriesExhaustBudget(t *testing.T) {
	e, slept := newTestExecutor(t)
	calls := 0
	_, err := e.Execute(context.Background(), "search", "/Property", func(context.Context) ([]byte, error) {
		calls++
		return nil, &wireErr{status: 503}
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls, "one initial try plus three retries")
	assert.True(t, mlserr.IsType(err, mlserr.TypeServiceUnavailable))
	require.Len(t, *slept, 3)
	// 503 hints 30s which dominates the 1s/2s/4s backoff schedule.
	assert.Equal(t, 30*time.Second, (*slept)[0])
}

func TestRetryAfterHintHonoredPastCap(t *testing.T) {
	e, slept := newTestExecutor(t)
	calls := 0
	out, err := e.Execute(context.Background(), "search", "/Property", func(context.Context) ([]byte, error) {
		calls++
		if calls == 1 {
			return nil, &hintedErr{status: 429, hint: 2 * time.Minute}
		}
		return []byte("ok"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), out)
	require.Len(t, *slept, 1)
	// Only the backoff term is capped at 30s; the server wait stands.
	assert.Equal(t, 2*time.Minute, (*slept)[0])
}

func TestNonRetryableFailsFast(t *testing.T) {
	e, slept := newTestExecutor(t)
	calls := 0
	_, err := e.Execute(context.Background(), "search", "/Property", func(context.Context) ([]byte, error) {
		calls++
		return nil, &wireErr{status: 401}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, mlserr.IsType(err, mlserr.TypeAuthentication))
	assert.Empty(t, *slept)
}

func TestEventualSuccess(t *testing.T) {
	e, _ := newTestExecutor(t)
	calls := 0
	out, err := e.Execute(context.Background(), "search", "/Property", func(context.Context) ([]byte, error) {
		calls++
		if calls < 3 {
			return nil, &wireErr{status: 500}
		}
		return []byte("ok"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), out)
	assert.Equal(t, 3, calls)
}

func TestBackoffSchedule(t *testing.T) {
	e, _ := newTestExecutor(t)
	assert.Equal(t, time.Second, e.backoff(1))
	assert.Equal(t, 2*time.Second, e.backoff(2))
	assert.Equal(t, 4*time.Second, e.backoff(3))
}

func TestCanceledContext(t *testing.T) {
	e, _ := newTestExecutor(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	block := make(chan struct{})
	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_, _ = e.Execute(context.Background(), "hold", "/Property", func(context.Context) ([]byte, error) {
			close(started)
			<-block
			return nil, nil
		})
		close(done)
	}()
	<-started
	// Queue a second request behind the held slot; it must give up on cancel.
	_, err := e.Execute(ctx, "queued", "/Property", func(context.Context) ([]byte, error) {
		return []byte("never"), nil
	})
	require.Error(t, err)
	close(block)
	<-done
}

func TestSerializedExecution(t *testing.T) {
	e, _ := newTestExecutor(t)
	inFlight := 0
	maxInFlight := 0
	done := make(chan struct{}, 4)
	for i := 0; i < 4; i++ {
		go func() {
			_, _ = e.Execute(context.Background(), "probe", "/Property", func(context.Context) ([]byte, error) {
				inFlight++
				if inFlight > maxInFlight {
					maxInFlight = inFlight
				}
				time.Sleep(5 * time.Millisecond)
				inFlight--
				return nil, nil
			})
			done <- struct{}{}
		}()
	}
	for i := 0; i < 4; i++ {
		<-done
	}
	assert.Equal(t, 1, maxInFlight, "requests must run one at a time")
}
