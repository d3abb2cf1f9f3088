// Copyright 2026 The dreamscapes-sub008 Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metrics registers and exposes the Prometheus series the gateway
// publishes for requests, provider dispatches, cache behavior, and circuit
// state.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every series this gateway publishes, namespaced under
// "dreamscapes".
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RepairAttempts   *prometheus.CounterVec
	FallbackTier     *prometheus.CounterVec

	ProviderDispatches  *prometheus.CounterVec
	ProviderLatency     *prometheus.HistogramVec
	CircuitState        *prometheus.GaugeVec

	CacheHits      *prometheus.CounterVec
	CacheMisses    *prometheus.CounterVec
	CacheSize      prometheus.Gauge
	CacheEvictions prometheus.Counter

	ErrorsTotal *prometheus.CounterVec

	errMu     sync.Mutex
	errEvents []errorEvent
}

// errorEvent backs the rolling-window errors/summary surface; ErrorsTotal
// itself is monotonic and cannot answer "how many in the last 5 minutes".
type errorEvent struct {
	kind     string
	severity string
	at       time.Time
}

// New registers every series on reg (pass prometheus.NewRegistry() for an
// isolated registry in tests, or prometheus.DefaultRegisterer in
// production).
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dreamscapes", Name: "requests_total",
			Help: "Total generate requests by outcome.",
		}, []string{"outcome"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dreamscapes", Name: "request_duration_seconds",
			Help: "End-to-end request duration.", Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),

		RepairAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dreamscapes", Name: "repair_attempts_total",
			Help: "Repair pipeline attempts by final outcome.",
		}, []string{"outcome"}),

		FallbackTier: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dreamscapes", Name: "fallback_tier_total",
			Help: "Requests resolved at each fallback tier.",
		}, []string{"tier"}),

		ProviderDispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dreamscapes", Name: "provider_dispatches_total",
			Help: "Provider dispatch attempts by provider and result.",
		}, []string{"provider", "result"}),

		ProviderLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dreamscapes", Name: "provider_latency_seconds",
			Help: "Provider call latency.", Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),

		CircuitState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "dreamscapes", Name: "circuit_state",
			Help: "Circuit breaker phase per provider (0=closed, 1=half_open, 2=open).",
		}, []string{"provider"}),

		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dreamscapes", Name: "cache_hits_total", Help: "Cache hits.",
		}, []string{"tier"}),

		CacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dreamscapes", Name: "cache_misses_total", Help: "Cache misses.",
		}, []string{"tier"}),

		CacheSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "dreamscapes", Name: "cache_size", Help: "Current in-process cache entry count.",
		}),

		CacheEvictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "dreamscapes", Name: "cache_evictions_total", Help: "Total cache evictions.",
		}),

		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dreamscapes", Name: "errors_total",
			Help: "Classified errors by kind and severity.",
		}, []string{"kind", "severity"}),
	}
}

// ObserveRequest records one completed request's duration and outcome.
func (m *Metrics) ObserveRequest(outcome string, d time.Duration) {
	m.RequestsTotal.WithLabelValues(outcome).Inc()
	m.RequestDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveProviderDispatch records one provider call's latency and result.
func (m *Metrics) ObserveProviderDispatch(providerName, result string, d time.Duration) {
	m.ProviderDispatches.WithLabelValues(providerName, result).Inc()
	m.ProviderLatency.WithLabelValues(providerName).Observe(d.Seconds())
}

// circuitPhaseValue maps a circuit phase name to the gauge encoding
// documented on CircuitState.
func circuitPhaseValue(phase string) float64 {
	switch phase {
	case "half_open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}

// SetCircuitState publishes the current circuit phase for a provider.
func (m *Metrics) SetCircuitState(providerName, phase string) {
	m.CircuitState.WithLabelValues(providerName).Set(circuitPhaseValue(phase))
}

// maxErrorEvents bounds the in-memory rolling window so a sustained failure
// storm cannot grow it without limit; the oldest events are trimmed first.
const maxErrorEvents = 10000

// RecordClassifiedError increments the monotonic per-kind/severity counter
// and appends to the rolling window consulted by Summary.
func (m *Metrics) RecordClassifiedError(kind, severity string) {
	m.ErrorsTotal.WithLabelValues(kind, severity).Inc()

	m.errMu.Lock()
	defer m.errMu.Unlock()
	m.errEvents = append(m.errEvents, errorEvent{kind: kind, severity: severity, at: time.Now()})
	if len(m.errEvents) > maxErrorEvents {
		m.errEvents = m.errEvents[len(m.errEvents)-maxErrorEvents:]
	}
}

// ErrorSummary counts classified errors observed within the trailing
// window, broken down by kind and by severity.
type ErrorSummary struct {
	Window     time.Duration  `json:"windowSeconds"`
	Total      int            `json:"total"`
	ByKind     map[string]int `json:"byKind"`
	BySeverity map[string]int `json:"bySeverity"`
}

// Summary computes an ErrorSummary over the trailing window, discarding
// events older than the window as a side effect so the backing slice does
// not grow unbounded between requests.
func (m *Metrics) Summary(window time.Duration) ErrorSummary {
	cutoff := time.Now().Add(-window)

	m.errMu.Lock()
	defer m.errMu.Unlock()

	kept := m.errEvents[:0:0]
	summary := ErrorSummary{Window: window, ByKind: map[string]int{}, BySeverity: map[string]int{}}
	for _, ev := range m.errEvents {
		if ev.at.Before(cutoff) {
			continue
		}
		kept = append(kept, ev)
		summary.Total++
		summary.ByKind[ev.kind]++
		summary.BySeverity[ev.severity]++
	}
	m.errEvents = kept
	return summary
}
