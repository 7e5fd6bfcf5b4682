// Package metrics provides performance tracking and observability for
// Stockpile using Prometheus metrics. It offers collectors for pool usage,
// bundle loading, and cache behavior.
//
// # Overview
//
// The metrics package provides:
//   - Prometheus-compatible metrics collection
//   - Pre-defined metrics for pool and bundle operations
//   - Latency tracking utilities
//   - Thread-safe metric recording
//   - Automatic metric registration
//
// # Basic Usage
//
//	// Record a pool acquire
//	metrics.PoolActive.WithLabelValues("bullet").Set(float64(stats.Active))
//
//	// Track bundle load latency
//	timer := metrics.NewTimer()
//	handle, err := loader.Load(ctx, "level-3")
//	metrics.BundleLoadDuration.WithLabelValues(outcome(err)).Observe(timer.Stop().Seconds())
//
// # Metric Types
//
// Counter: Monotonically increasing values (e.g., total bundle loads)
// Gauge: Values that can go up or down (e.g., active pool instances)
// Histogram: Distribution of values (e.g., load latency percentiles)
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PoolActive tracks the number of checked-out instances per pool.
	// Labels: pool (pool key)
	PoolActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stockpile_pool_active_instances",
			Help: "Number of checked-out pool instances",
		},
		[]string{"pool"},
	)

	// PoolAvailable tracks the number of idle instances per pool.
	// Labels: pool (pool key)
	PoolAvailable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stockpile_pool_available_instances",
			Help: "Number of idle pool instances",
		},
		[]string{"pool"},
	)

	// PoolPeak tracks the historical maximum of active instances per pool.
	// Labels: pool (pool key)
	PoolPeak = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stockpile_pool_peak_active_instances",
			Help: "Historical maximum of simultaneously active pool instances",
		},
		[]string{"pool"},
	)

	// PoolAcquireFailures counts acquires that found the pool exhausted.
	// Labels: pool (pool key)
	PoolAcquireFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockpile_pool_acquire_failures_total",
			Help: "Total acquires rejected because the pool was exhausted",
		},
		[]string{"pool"},
	)

	// BundleLoads counts bundle load completions by outcome.
	// Labels: outcome (success/failure)
	//
	// Example:
	//	metrics.BundleLoads.WithLabelValues("success").Inc()
	BundleLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockpile_bundle_loads_total",
			Help: "Total bundle load completions",
		},
		[]string{"outcome"},
	)

	// BundleLoadDuration tracks the distribution of bundle load latencies
	// in seconds, including dependency resolution and payload fetch.
	// Labels: outcome (success/failure)
	BundleLoadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "stockpile_bundle_load_duration_seconds",
			Help: "Bundle load latency in seconds",
			Buckets: []float64{
				0.001, // 1ms - cache hits
				0.01,  // 10ms - local disk
				0.05,  // 50ms - fast network
				0.1,   // 100ms
				0.5,   // 500ms
				1,     // 1s
				5,     // 5s - cold remote fetches
				30,    // 30s - worst-case timeouts
			},
		},
		[]string{"outcome"},
	)

	// BundleCacheHits counts loads served without a payload fetch.
	// Labels: source (loaded/hot)
	BundleCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockpile_bundle_cache_hits_total",
			Help: "Total bundle loads served from cache",
		},
		[]string{"source"},
	)

	// BundlesResident tracks the number of bundles currently loaded.
	BundlesResident = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stockpile_bundles_resident",
			Help: "Number of bundles currently resident in the cache",
		},
	)

	// BundleBytesFetched counts raw payload bytes retrieved by fetchers.
	// Labels: backend (file/http/s3/gcs)
	BundleBytesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockpile_bundle_bytes_fetched_total",
			Help: "Total raw payload bytes retrieved",
		},
		[]string{"backend"},
	)
)

// Timer measures elapsed time for latency histograms.
type Timer struct {
	start time.Time
}

// NewTimer starts a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed time since the timer started.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
