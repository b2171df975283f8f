// Package metrics holds the Prometheus collectors for the integration.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mls_provider_requests_total",
		Help: "Outbound provider requests by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})

	ProviderRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mls_provider_retries_total",
		Help: "Retry attempts by endpoint.",
	}, []string{"endpoint"})

	RateLimitDenied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mls_rate_limit_denied_total",
		Help: "Requests denied by the local sliding-window limiter.",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mls_cache_hits_total",
		Help: "Cache hits by lookup kind.",
	}, []string{"kind"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mls_cache_misses_total",
		Help: "Cache misses by lookup kind.",
	}, []string{"kind"})

	StaleServed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mls_cache_stale_served_total",
		Help: "Stale cache entries served because a refresh failed.",
	})

	SyncRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mls_sync_records_total",
		Help: "Records handled by sync jobs, by result.",
	}, []string{"result"})

	SyncJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mls_sync_jobs_total",
		Help: "Sync jobs by type and terminal status.",
	}, []string{"type", "status"})

	CircuitBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mls_circuit_breaker_state",
		Help: "Provider circuit breaker state (0 closed, 1 half-open, 2 open).",
	})
)
