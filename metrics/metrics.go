// Package metrics exposes prometheus collectors for thumbnail generation and
// peer-to-peer transfers.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without a registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "thumbshare"

// Metrics holds every collector of a node.
type Metrics struct {
	generations        *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	transfers          *prometheus.CounterVec
	transferBytes      *prometheus.CounterVec
	activeTransfers    *prometheus.GaugeVec
	rejectedRequests   *prometheus.CounterVec
	throttledRequests  prometheus.Counter
	connectionsDropped prometheus.Counter
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		generations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "thumbnail_generations_total",
				Help:      "Thumbnail generation attempts by category and result",
			},
			[]string{"category", "result"},
		),
		generationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "thumbnail_generation_duration_seconds",
				Help:      "Wall time of thumbnail generation",
				Buckets: []float64{
					0.001, // cache hits
					0.01,
					0.1,
					1,
					10,
					60, // generation timeout
				},
			},
			[]string{"category"},
		),
		transfers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transfers_total",
				Help:      "Finished transfers by direction and outcome",
			},
			[]string{"direction", "outcome"},
		),
		transferBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transfer_bytes_total",
				Help:      "Payload bytes moved by transfers",
			},
			[]string{"direction"},
		),
		activeTransfers: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "transfers_active",
				Help:      "Transfers currently running",
			},
			[]string{"direction"},
		),
		rejectedRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_rejected_total",
				Help:      "Inbound requests rejected before framing, by reason",
			},
			[]string{"reason"},
		),
		throttledRequests: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "thumbnail_requests_throttled_total",
				Help:      "Single-thumbnail requests that waited on the throttle",
			},
		),
		connectionsDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connections_rate_limited_total",
				Help:      "Inbound connections closed by the rate limiter",
			},
		),
	}
}

// ObserveGeneration records one generation attempt.
func (m *Metrics) ObserveGeneration(category, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(category, result).Inc()
	m.generationDuration.WithLabelValues(category).Observe(elapsed.Seconds())
}

// TransferStarted increments the active gauge for direction.
func (m *Metrics) TransferStarted(direction string) {
	if m == nil {
		return
	}
	m.activeTransfers.WithLabelValues(direction).Inc()
}

// TransferFinished records a finished transfer and the bytes it moved.
func (m *Metrics) TransferFinished(direction, outcome string, bytes uint64) {
	if m == nil {
		return
	}
	m.activeTransfers.WithLabelValues(direction).Dec()
	m.transfers.WithLabelValues(direction, outcome).Inc()
	m.transferBytes.WithLabelValues(direction).Add(float64(bytes))
}

// RequestRejected records a request refused before any framing was sent.
func (m *Metrics) RequestRejected(reason string) {
	if m == nil {
		return
	}
	m.rejectedRequests.WithLabelValues(reason).Inc()
}

// Throttled records a single-thumbnail request that had to wait.
func (m *Metrics) Throttled() {
	if m == nil {
		return
	}
	m.throttledRequests.Inc()
}

// ConnectionDropped records an inbound connection refused by the limiter.
func (m *Metrics) ConnectionDropped() {
	if m == nil {
		return
	}
	m.connectionsDropped.Inc()
}
