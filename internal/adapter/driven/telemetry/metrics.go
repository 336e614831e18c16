// Package telemetry holds the Prometheus metrics and OpenTelemetry tracing
// setup of the proxy.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ericfisherdev/blimp/internal/domain/model"
	"github.com/ericfisherdev/blimp/internal/domain/port/driven"
)

// OutcomeSuccess is the outcome label of a successful dispatch. Failures are
// labelled with their error kind.
const OutcomeSuccess = "success"

// unknownLabel replaces caller-supplied app and action names that did not
// resolve, so arbitrary input cannot grow the label set.
const unknownLabel = "unknown"

var _ driven.DispatchRecorder = (*Metrics)(nil)

// Metrics holds the Prometheus collectors of the proxy on a private registry.
type Metrics struct {
	dispatchTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics creates the collectors and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		dispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blimp_dispatch_total",
				Help: "Proxy dispatches by app, action and outcome",
			},
			[]string{"app", "action", "outcome"},
		),
		dispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "blimp_dispatch_duration_seconds",
				Help:    "Proxy dispatch latency in seconds, including the upstream call",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"app", "action"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.dispatchTotal,
		m.dispatchDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// RecordDispatch implements driven.DispatchRecorder.
func (m *Metrics) RecordDispatch(app, action string, kind model.ErrorKind, elapsed time.Duration) {
	switch kind {
	case model.KindUnsupportedApp:
		app, action = unknownLabel, unknownLabel
	case model.KindUnsupportedAction:
		action = unknownLabel
	}

	outcome := OutcomeSuccess
	if kind != "" {
		outcome = string(kind)
	}

	m.dispatchTotal.WithLabelValues(app, action, outcome).Inc()
	m.dispatchDuration.WithLabelValues(app, action).Observe(elapsed.Seconds())
}

// Registry returns the registry backing the metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
