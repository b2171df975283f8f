// Package executor serializes outbound provider calls and owns the retry
// policy. Every authenticated request, token refresh and probe passes through
// here; this is the single choke point on provider pressure.
package executor

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/yourorg/mls-sync/internal/metrics"
	"github.com/yourorg/mls-sync/internal/mlserr"
)

type Options struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Breaker    bool
	Log        zerolog.Logger
}

// Executor runs at most one provider request at a time. Callers block on the
// single-flight slot independently; only the network call itself is
// serialized. The retry loop is an explicit attempt/lastError state machine.
type Executor struct {
	sem        chan struct{}
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	breaker    *gobreaker.CircuitBreaker[[]byte]
	sleep      func(ctx context.Context, d time.Duration) error
	jitter     func() time.Duration
	log        zerolog.Logger
}

func New(opts Options) *Executor {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	e := &Executor{
		sem:        make(chan struct{}, 1),
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.BaseDelay,
		maxDelay:   opts.MaxDelay,
		sleep:      sleepCtx,
		jitter:     func() time.Duration { return time.Duration(rand.Int63n(int64(time.Second))) },
		log:        opts.Log,
	}
	if opts.Breaker {
		e.breaker = newBreaker(opts.Log)
	}
	return e
}

// WithSleep overrides the backoff sleep. Tests only.
func (e *Executor) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Executor {
	e.sleep = fn
	return e
}

// WithJitter overrides the jitter source. Tests only.
func (e *Executor) WithJitter(fn func() time.Duration) *Executor {
	e.jitter = fn
	return e
}

// Execute runs fn, classifying failures and retrying retryable ones up to the
// budget. A request failing maxRetries+1 times total is returned as the last
// classified error; non-retryable failures return immediately.
func (e *Executor) Execute(ctx context.Context, name, endpoint string, fn func(context.Context) ([]byte, error)) ([]byte, error) {
	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, mlserr.Classify(ctx.Err(), endpoint)
	}
	defer func() { <-e.sem }()

	var last *mlserr.Error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			delay := e.backoff(attempt)
			// Only the backoff term is capped; a server-supplied wait is
			// honored in full.
			if last.RetryAfter > delay {
				delay = last.RetryAfter
			}
			metrics.ProviderRetries.WithLabelValues(name).Inc()
			e.log.Debug().Str("request", name).Int("attempt", attempt).Dur("delay", delay).
				Str("cause", last.Code).Msg("retrying provider request")
			if err := e.sleep(ctx, delay); err != nil {
				return nil, mlserr.Classify(err, endpoint)
			}
		}

		out, err := e.call(ctx, fn)
		if err == nil {
			metrics.ProviderRequests.WithLabelValues(name, "success").Inc()
			return out, nil
		}
		last = mlserr.Classify(err, endpoint)
		metrics.ProviderRequests.WithLabelValues(name, "failure").Inc()
		if !last.Retryable {
			return nil, last
		}
	}
	return nil, last
}

func (e *Executor) call(ctx context.Context, fn func(context.Context) ([]byte, error)) ([]byte, error) {
	if e.breaker == nil {
		return fn(ctx)
	}
	out, err := e.breaker.Execute(func() ([]byte, error) { return fn(ctx) })
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		// Fail fast: retrying inside the budget while the circuit is open
		// would only burn attempts.
		return nil, mlserr.New(mlserr.TypeServiceUnavailable, "CIRCUIT_OPEN", "provider circuit breaker open")
	}
	return out, err
}

// backoff is baseDelay * 2^(attempt-1) plus up to one second of jitter.
func (e *Executor) backoff(attempt int) time.Duration {
	d := e.baseDelay * (1 << (attempt - 1))
	if d > e.maxDelay {
		d = e.maxDelay
	}
	return d + e.jitter()
}

func newBreaker(log zerolog.Logger) *gobreaker.CircuitBreaker[[]byte] {
	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:     "mls-provider",
		Interval: time.Minute,
		Timeout:  2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 8
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("provider circuit state change")
			metrics.CircuitBreakerState.Set(stateGauge(to))
		},
	})
}

func stateGauge(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 2
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 0
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
