package observability

import (
	"math"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects application metrics.
type Metrics interface {
	RecordSelection(operation, provider string)
	RecordFailure(operation, provider string)
	RecordCacheLookup(cache, tier string, hit bool)
	SetQuotaRemaining(provider string, remaining int)
}

// PrometheusMetrics implements Metrics on a prometheus registry.
type PrometheusMetrics struct {
	selections     *prometheus.CounterVec
	failures       *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	quotaRemaining *prometheus.GaugeVec
}

// NewPrometheusMetrics registers the collectors on reg.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		selections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "market_gateway_provider_selections_total",
				Help: "Provider calls reserved, by operation and provider.",
			},
			[]string{"operation", "provider"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "market_gateway_provider_failures_total",
				Help: "Provider calls that failed, by operation and provider.",
			},
			[]string{"operation", "provider"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "market_gateway_cache_lookups_total",
				Help: "Cache lookups by cache, tier and result.",
			},
			[]string{"cache", "tier", "result"},
		),
		quotaRemaining: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "market_gateway_quota_remaining",
				Help: "Remaining calls in the finest configured quota window.",
			},
			[]string{"provider"},
		),
	}

	reg.MustRegister(m.selections, m.failures, m.cacheLookups, m.quotaRemaining)
	return m
}

func (m *PrometheusMetrics) RecordSelection(operation, provider string) {
	m.selections.WithLabelValues(operation, provider).Inc()
}

func (m *PrometheusMetrics) RecordFailure(operation, provider string) {
	m.failures.WithLabelValues(operation, provider).Inc()
}

func (m *PrometheusMetrics) RecordCacheLookup(cache, tier string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(cache, tier, result).Inc()
}

// SetQuotaRemaining ignores unbounded providers.
func (m *PrometheusMetrics) SetQuotaRemaining(provider string, remaining int) {
	if remaining == math.MaxInt {
		return
	}
	m.quotaRemaining.WithLabelValues(provider).Set(float64(remaining))
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) RecordSelection(string, string)         {}
func (NopMetrics) RecordFailure(string, string)           {}
func (NopMetrics) RecordCacheLookup(string, string, bool) {}
func (NopMetrics) SetQuotaRemaining(string, int)          {}
