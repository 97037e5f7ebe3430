// Package metrics exposes Prometheus counters and gauges for the restreamer.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jmylchreest/restreamer/internal/models"
	"github.com/jmylchreest/restreamer/internal/relay"
)

const namespace = "restreamer"

// Metrics holds the registry and every collector the service reports.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	eventsTotal     *prometheus.CounterVec
	sessionSeconds  prometheus.Histogram
	dispatchesTotal *prometheus.CounterVec
	activeStreams   prometheus.Gauge
}

// New creates a private registry with Go and process collectors attached.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method and status code",
		}, []string{"method", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_events_total",
			Help:      "Relay lifecycle events by kind",
		}, []string{"kind"}),
		sessionSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "relay_session_duration_seconds",
			Help:      "Duration of finished relay sessions",
			Buckets:   []float64{10, 60, 300, 900, 1800, 3600, 7200, 14400, 43200},
		}),
		dispatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedule_dispatches_total",
			Help:      "Scheduled stream starts by schedule type and result",
		}, []string{"schedule_type", "result"}),
		activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_streams",
			Help:      "Number of streams with a running relay session",
		}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestsTotal,
		m.requestDuration,
		m.eventsTotal,
		m.sessionSeconds,
		m.dispatchesTotal,
		m.activeStreams,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRequest records one completed HTTP request.
func (m *Metrics) ObserveRequest(method string, code int, seconds float64) {
	m.requestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.requestDuration.WithLabelValues(method).Observe(seconds)
}

// SetActiveStreams sets the active streams gauge.
func (m *Metrics) SetActiveStreams(n int) {
	m.activeStreams.Set(float64(n))
}

// Publish implements relay.EventSink.
func (m *Metrics) Publish(ev relay.Event) {
	m.eventsTotal.WithLabelValues(string(ev.Kind)).Inc()
	if ev.Kind.Terminal() {
		m.sessionSeconds.Observe(ev.Status.Uptime.Seconds())
	}
}

// RecordDispatch counts one schedule dispatch attempt.
func (m *Metrics) RecordDispatch(kind models.ScheduleKind, err error) {
	result := "started"
	if err != nil {
		result = "failed"
	}
	m.dispatchesTotal.WithLabelValues(string(kind), result).Inc()
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	inner := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		inner.ServeHTTP(w, r)
	})
}
