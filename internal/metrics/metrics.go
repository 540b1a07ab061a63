// Package metrics holds the Prometheus collectors shared by the HTTP API and
// the data-source decorators.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "carbonaware"

// Metrics is a set of collectors registered against a single registry.
type Metrics struct {
	registry *prometheus.Registry

	TotalRequests   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ActiveRequests  *prometheus.GaugeVec

	DataSourceCalls   *prometheus.CounterVec
	DataSourceLatency *prometheus.HistogramVec

	SciScoresComputed prometheus.Counter
}

// New creates the collectors and registers them on a fresh registry, along
// with the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		TotalRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		ActiveRequests: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_active",
				Help:      "Number of in-flight HTTP requests",
			},
			[]string{"method", "route"},
		),
		DataSourceCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "datasource_calls_total",
				Help:      "Total number of data source calls",
			},
			[]string{"source", "operation", "outcome"},
		),
		DataSourceLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "datasource_call_duration_seconds",
				Help:      "Data source call duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"source", "operation"},
		),
		SciScoresComputed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sci_scores_computed_total",
				Help:      "Total number of SCI scores successfully computed",
			},
		),
	}

	m.registry.MustRegister(
		m.TotalRequests,
		m.RequestDuration,
		m.ActiveRequests,
		m.DataSourceCalls,
		m.DataSourceLatency,
		m.SciScoresComputed,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveDataSourceCall records one data source call.
func (m *Metrics) ObserveDataSourceCall(source, operation string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.DataSourceCalls.WithLabelValues(source, operation, outcome).Inc()
	m.DataSourceLatency.WithLabelValues(source, operation).Observe(time.Since(start).Seconds())
}

// Middleware records request counts and latency per route template.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		route := routeTemplate(r)

		m.ActiveRequests.WithLabelValues(r.Method, route).Inc()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		m.ActiveRequests.WithLabelValues(r.Method, route).Dec()
		m.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		m.TotalRequests.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
	})
}

// routeTemplate keeps label cardinality bounded by using the mux route
// template instead of the raw path.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
