// Package metrics provides Prometheus metrics for verification and claims
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Verification outcomes
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeFallback = "fallback"
)

// Metrics contains the workflow's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	verificationsTotal   *prometheus.CounterVec
	verificationDuration *prometheus.HistogramVec
	cacheLookupsTotal    *prometheus.CounterVec
	claimsTotal          prometheus.Counter
	claimFailuresTotal   *prometheus.CounterVec
	discoveries          prometheus.Gauge
}

// New creates the metrics and registers them on registry
func New(registry prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		verificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "virasat_verifications_total",
				Help: "Total number of photo verifications by outcome",
			},
			[]string{"provider", "outcome"},
		),
		verificationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "virasat_verification_duration_seconds",
				Help: "Time taken by the remote verification call",
				// 100ms .. ~51s
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
			},
			[]string{"provider"},
		),
		cacheLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "virasat_verdict_cache_lookups_total",
				Help: "Verdict cache lookups by result",
			},
			[]string{"result"}, // hit, miss
		),
		claimsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "virasat_claims_total",
			Help: "Total number of persisted discoveries",
		}),
		claimFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "virasat_claim_failures_total",
				Help: "Claims that returned to the accepted state",
			},
			[]string{"reason"}, // location, persistence
		),
		discoveries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "virasat_discoveries",
			Help: "Number of stored discoveries",
		}),
	}

	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Describe implements the Collector interface
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.verificationsTotal.Describe(ch)
	m.verificationDuration.Describe(ch)
	m.cacheLookupsTotal.Describe(ch)
	m.claimsTotal.Describe(ch)
	m.claimFailuresTotal.Describe(ch)
	m.discoveries.Describe(ch)
}

// Collect implements the Collector interface
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.verificationsTotal.Collect(ch)
	m.verificationDuration.Collect(ch)
	m.cacheLookupsTotal.Collect(ch)
	m.claimsTotal.Collect(ch)
	m.claimFailuresTotal.Collect(ch)
	m.discoveries.Collect(ch)
}

// RecordVerification records one verification outcome and its duration
func (m *Metrics) RecordVerification(provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.verificationsTotal.WithLabelValues(provider, outcome).Inc()
	m.verificationDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// RecordCacheLookup records a verdict cache hit or miss
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordClaim records a persisted discovery
func (m *Metrics) RecordClaim() {
	if m == nil {
		return
	}
	m.claimsTotal.Inc()
	m.discoveries.Inc()
}

// RecordClaimFailure records a claim that could not complete
func (m *Metrics) RecordClaimFailure(reason string) {
	if m == nil {
		return
	}
	m.claimFailuresTotal.WithLabelValues(reason).Inc()
}

// SetDiscoveries sets the stored discoveries gauge
func (m *Metrics) SetDiscoveries(count int) {
	if m == nil {
		return
	}
	m.discoveries.Set(float64(count))
}
