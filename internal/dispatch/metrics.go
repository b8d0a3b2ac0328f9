package dispatch

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/quantfeed/strategyd/internal/rolling"
)

// Strategy execution results.
const (
	ResultSuccess  = "success"
	ResultFailure  = "failure"
	ResultNoSignal = "no_signal"
)

// Metrics tracks dispatcher counters. Prometheus collectors feed the
// /metrics endpoint; the atomic counters and rolling window feed the
// heartbeat without touching the registry.
type Metrics struct {
	messages      atomic.Int64
	decodeErrors  atomic.Int64
	strategyError atomic.Int64
	signals       atomic.Int64
	drops         atomic.Int64
	processing    *rolling.Window

	latency    *prometheus.HistogramVec
	executions *prometheus.CounterVec
	errors     *prometheus.CounterVec
}

// NewMetrics creates the dispatcher metrics and registers the collectors.
// reg may be nil for tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		processing: rolling.NewWindow(1000),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "strategy_latency_seconds",
			Help:    "Per-strategy execution latency.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"strategy"}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strategy_executions_total",
			Help: "Strategy executions by result.",
		}, []string{"strategy", "result"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strategy_errors_total",
			Help: "Strategy execution errors.",
		}, []string{"strategy"}),
	}
	if reg != nil {
		reg.MustRegister(m.latency, m.executions, m.errors)
	}
	return m
}

// ObserveMessage records one processed message and its processing time.
func (m *Metrics) ObserveMessage(d time.Duration) {
	m.messages.Add(1)
	m.processing.Observe(float64(d.Microseconds()) / 1000.0)
}

// DecodeError counts one dropped undecodable message.
func (m *Metrics) DecodeError() {
	m.decodeErrors.Add(1)
}

// ObserveStrategy records one strategy execution.
func (m *Metrics) ObserveStrategy(strategy string, d time.Duration, result string) {
	m.latency.WithLabelValues(strategy).Observe(d.Seconds())
	m.executions.WithLabelValues(strategy, result).Inc()
	if result == ResultFailure {
		m.errors.WithLabelValues(strategy).Inc()
		m.strategyError.Add(1)
	}
}

// SignalEmitted counts one signal accepted into egress.
func (m *Metrics) SignalEmitted() {
	m.signals.Add(1)
}

// SignalDropped counts one back-pressure drop.
func (m *Metrics) SignalDropped() {
	m.drops.Add(1)
}

// Messages returns the cumulative processed-message count.
func (m *Metrics) Messages() int64 { return m.messages.Load() }

// Errors returns decode plus strategy error counts.
func (m *Metrics) Errors() int64 { return m.decodeErrors.Load() + m.strategyError.Load() }

// Snapshot returns the counters for heartbeat and health reporting.
func (m *Metrics) Snapshot() map[string]any {
	return map[string]any{
		"message_count":         m.messages.Load(),
		"decode_error_count":    m.decodeErrors.Load(),
		"strategy_error_count":  m.strategyError.Load(),
		"signal_count":          m.signals.Load(),
		"signal_drop_count":     m.drops.Load(),
		"avg_processing_ms":     m.processing.Average(),
		"max_processing_ms":     m.processing.Max(),
		"processing_samples":    m.processing.Count(),
	}
}
