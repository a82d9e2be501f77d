// Package metrics defines the Prometheus instrumentation surfaced by a
// filter instance, adapted from the teacher's practice of threading a
// prometheus.Registerer through server construction (pkg/server.NewServer,
// cmd/kache/main.go).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels the cache_requests_total counter.
type Outcome string

const (
	OutcomeHit         Outcome = "hit"
	OutcomeMiss        Outcome = "miss"
	OutcomeRevalidated Outcome = "revalidated"
	OutcomeBypass      Outcome = "bypass"
	OutcomeUncacheable Outcome = "uncacheable"
)

// Metrics holds every counter/histogram/gauge a filter instance reports.
// All fields are safe for concurrent use, per the prometheus client
// library's own guarantees.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	ForwardedTotal   prometheus.Counter
	CoalescedTotal   prometheus.Counter
	EvictionsTotal   *prometheus.CounterVec
	EntryAge         prometheus.Histogram
	LookupLatency    prometheus.Histogram
	ForwardLatency   prometheus.Histogram
	StoredEntries    prometheus.Gauge
	StoredBytes      prometheus.Gauge
}

// New registers and returns the filter's metrics against reg. reg may be
// nil, in which case metrics are registered against a private registry
// that nothing ever scrapes -- useful in tests that don't care about
// instrumentation but exercise code paths that record it.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatekache",
			Name:      "cache_requests_total",
			Help:      "Total number of requests handled by the cache filter, by outcome.",
		}, []string{"outcome"}),

		ForwardedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: "gatekache",
			Name:      "forwarded_requests_total",
			Help:      "Total number of requests forwarded to an upstream.",
		}),

		CoalescedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: "gatekache",
			Name:      "coalesced_requests_total",
			Help:      "Total number of requests that joined an in-flight upstream fetch instead of starting their own.",
		}),

		EvictionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatekache",
			Name:      "store_evictions_total",
			Help:      "Total number of cache entries evicted from the store, by backend.",
		}, []string{"backend"}),

		EntryAge: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gatekache",
			Name:      "served_entry_age_seconds",
			Help:      "Age, per RFC 7234, of cache entries served to clients.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),

		LookupLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gatekache",
			Name:      "lookup_duration_seconds",
			Help:      "Time spent looking up a cache entry in the store.",
			Buckets:   prometheus.DefBuckets,
		}),

		ForwardLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gatekache",
			Name:      "forward_duration_seconds",
			Help:      "Time spent forwarding a request to an upstream and receiving its response headers.",
			Buckets:   prometheus.DefBuckets,
		}),

		StoredEntries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "gatekache",
			Name:      "store_entries",
			Help:      "Current number of entries held by the store backend.",
		}),

		StoredBytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "gatekache",
			Name:      "store_bytes",
			Help:      "Current estimated size, in bytes, of entries held by the store backend.",
		}),
	}
}

// RecordOutcome increments the request counter for outcome.
func (m *Metrics) RecordOutcome(outcome Outcome) {
	m.RequestsTotal.WithLabelValues(string(outcome)).Inc()
}

// RecordEviction increments the eviction counter for backend.
func (m *Metrics) RecordEviction(backend string) {
	m.EvictionsTotal.WithLabelValues(backend).Inc()
}
