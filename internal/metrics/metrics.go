// Package metrics exposes Prometheus collectors for schedule mutations,
// document rendering, data-quality warnings and export jobs.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"cronograma/internal/core"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cronograma"

// Metrics owns its registry so tests and multiple binaries never collide
// on the global one. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	mutations      *prometheus.CounterVec
	renderDuration *prometheus.HistogramVec
	renderedPages  *prometheus.HistogramVec
	warnings       *prometheus.CounterVec
	exportJobs     *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedule_mutations_total",
			Help:      "Schedule writes by entity, operation and result.",
		}, []string{"entity", "operation", "result"}),
		renderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_duration_seconds",
			Help:      "Time spent laying out and encoding a document.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"format", "result"}),
		renderedPages: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rendered_pages",
			Help:      "Pages per rendered document.",
			Buckets:   prometheus.LinearBuckets(1, 2, 10),
		}, []string{"format"}),
		warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "data_quality_warnings_total",
			Help:      "Warnings raised while distributing a plan, by kind.",
		}, []string{"kind"}),
		exportJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "export_jobs_total",
			Help:      "Asynchronous export jobs by status.",
		}, []string{"status"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status class.",
		}, []string{"method", "class"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.mutations, m.renderDuration, m.renderedPages, m.warnings, m.exportJobs, m.httpRequests,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Result classifies an error for the result label.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case core.IsValidation(err):
		return "rejected"
	case errors.Is(err, core.ErrNotFound):
		return "not_found"
	case errors.Is(err, core.ErrConflict):
		return "conflict"
	case errors.Is(err, core.ErrPartialWrite):
		return "partial"
	}
	return "error"
}

func (m *Metrics) ObserveMutation(entity, operation string, err error) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(entity, operation, Result(err)).Inc()
}

func (m *Metrics) ObserveRender(format string, d time.Duration, pages int, err error) {
	if m == nil {
		return
	}
	m.renderDuration.WithLabelValues(format, Result(err)).Observe(d.Seconds())
	if err == nil && pages > 0 {
		m.renderedPages.WithLabelValues(format).Observe(float64(pages))
	}
}

func (m *Metrics) CountWarning(kind string) {
	if m == nil {
		return
	}
	m.warnings.WithLabelValues(kind).Inc()
}

func (m *Metrics) CountExportJob(status string) {
	if m == nil {
		return
	}
	m.exportJobs.WithLabelValues(status).Inc()
}

func (m *Metrics) CountHTTPRequest(method string, status int) {
	if m == nil {
		return
	}
	class := "5xx"
	switch {
	case status < 300:
		class = "2xx"
	case status < 400:
		class = "3xx"
	case status < 500:
		class = "4xx"
	}
	m.httpRequests.WithLabelValues(method, class).Inc()
}
