package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the server's Prometheus collectors.
type Metrics struct {
	requests   *prometheus.CounterVec
	failures   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	storedSize prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "afhe",
				Name:      "operations_total",
				Help:      "Number of facade operations served",
			},
			[]string{"op"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "afhe",
				Name:      "operation_failures_total",
				Help:      "Number of facade operations that failed, by error kind",
			},
			[]string{"op", "kind"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "afhe",
				Name:      "operation_seconds",
				Help:      "Latency of facade operations",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
			},
			[]string{"op"},
		),
		storedSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "afhe",
				Name:      "stored_ciphertext_bytes",
				Help:      "Size of serialized ciphertexts written to storage",
				Buckets:   prometheus.ExponentialBuckets(1<<12, 2, 12),
			},
		),
	}

	registerer.MustRegister(m.requests)
	registerer.MustRegister(m.failures)
	registerer.MustRegister(m.latency)
	registerer.MustRegister(m.storedSize)

	return &m
}
