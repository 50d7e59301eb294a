// Package metrics holds the Prometheus collectors for the catalog.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Refresh results.
const (
	RefreshUpdated     = "updated"
	RefreshNotModified = "not_modified"
	RefreshFailed      = "error"
)

// Metrics owns a private registry so that several instances can coexist
// in one process.
type Metrics struct {
	registry *prometheus.Registry

	catalogSize     prometheus.Gauge
	selections      *prometheus.CounterVec
	refreshes       *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		catalogSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "catalog_servers",
			Help: "Number of logical servers in the published catalog snapshot",
		}),
		selections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_selections_total",
			Help: "Server selections by outcome",
		}, []string{"outcome"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_refreshes_total",
			Help: "Catalog refresh runs by result",
		}, []string{"result"}),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "catalog_refresh_duration_seconds",
			Help:    "Time taken by a catalog refresh run",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_http_requests_total",
			Help: "HTTP requests served by the read API",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "catalog_http_request_duration_seconds",
			Help:    "Read API latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
	m.registry.MustRegister(
		m.catalogSize,
		m.selections,
		m.refreshes,
		m.refreshDuration,
		m.httpRequests,
		m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// SetCatalogSize matches catalog.WithChangeHook.
func (m *Metrics) SetCatalogSize(n int) {
	m.catalogSize.Set(float64(n))
}

func (m *Metrics) ObserveSelection(outcome string) {
	m.selections.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveRefresh(result string, d time.Duration) {
	m.refreshes.WithLabelValues(result).Inc()
	m.refreshDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveRequest(route, status string, d time.Duration) {
	m.httpRequests.WithLabelValues(route, status).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
