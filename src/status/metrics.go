// Copyright (c) 2026 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package status

import (
	"net/http"

	"github.com/H0llyW00dzZ/connectivity-checker/src/report"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exports diagnostic outcomes to Prometheus.
type Metrics struct {
	registry *prometheus.Registry

	results     *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
	lastRun     *prometheus.GaugeVec
	duration    *prometheus.HistogramVec
}

// NewMetrics registers the netdiag collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		results: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "netdiag_results_total",
			Help: "Diagnostic outcomes by kind and result.",
		}, []string{"kind", "result"}),
		lastSuccess: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "netdiag_last_success",
			Help: "1 if the latest run of the diagnostic succeeded.",
		}, []string{"kind"}),
		lastRun: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "netdiag_last_run_timestamp_seconds",
			Help: "Unix time of the latest run of the diagnostic.",
		}, []string{"kind"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "netdiag_duration_seconds",
			Help:    "Time taken by each diagnostic run.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~82s
		}, []string{"kind"}),
	}
}

// Observe records rec.
func (m *Metrics) Observe(rec report.Record) {
	kind := string(rec.Kind)
	m.results.WithLabelValues(kind, rec.Result).Inc()
	success := 0.0
	if rec.Success {
		success = 1
	}
	m.lastSuccess.WithLabelValues(kind).Set(success)
	m.lastRun.WithLabelValues(kind).Set(float64(rec.Time.Unix()))
	m.duration.WithLabelValues(kind).Observe(rec.Duration.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
