package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes application metrics that are safe to scrape via Prometheus.
type Metrics struct {
	registry            *prometheus.Registry
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	positionUpdates     *prometheus.CounterVec
	renderDuration      *prometheus.HistogramVec
	importRunsTotal     *prometheus.CounterVec
	importRunDuration   prometheus.Histogram
	namesResolved       *prometheus.CounterVec
}

// New creates a fresh Metrics registry with HTTP, render and import metrics registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "netmap",
		Name:      "http_requests_total",
		Help:      "Count of HTTP requests processed by netmap",
	}, []string{"method", "path", "status"})

	httpRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "netmap",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests served by netmap",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	positionUpdates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "netmap",
		Name:      "position_updates_total",
		Help:      "Node position updates by result",
	}, []string{"result"})

	renderDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "netmap",
		Name:      "render_duration_seconds",
		Help:      "Time spent in Graphviz per diagram",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
	}, []string{"layout", "format", "result"})

	importRunsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "netmap",
		Name:      "import_runs_total",
		Help:      "Total number of topology imports by result",
	}, []string{"result"})

	importRunDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "netmap",
		Name:      "import_run_duration_seconds",
		Help:      "Duration of topology imports from start to finish",
		Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	})

	namesResolved := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "netmap",
		Name:      "names_resolved_total",
		Help:      "Router names stored by enrichment, by source",
	}, []string{"source"})

	registry.MustRegister(
		httpRequests,
		httpRequestDuration,
		positionUpdates,
		renderDuration,
		importRunsTotal,
		importRunDuration,
		namesResolved,
	)

	return &Metrics{
		registry:            registry,
		httpRequests:        httpRequests,
		httpRequestDuration: httpRequestDuration,
		positionUpdates:     positionUpdates,
		renderDuration:      renderDuration,
		importRunsTotal:     importRunsTotal,
		importRunDuration:   importRunDuration,
		namesResolved:       namesResolved,
	}
}

// ObserveHTTPRequest records a single HTTP request/response cycle.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	m.httpRequests.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(duration.Seconds())
}

// IncPositionUpdate counts one position update; result is "ok", "invalid", "not_found" or "error".
func (m *Metrics) IncPositionUpdate(result string) {
	if m == nil {
		return
	}
	m.positionUpdates.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveRender(layout, format string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.renderDuration.WithLabelValues(layout, format, result).Observe(duration.Seconds())
}

// ObserveImportRun records one import and how long it took.
func (m *Metrics) ObserveImportRun(err error, duration time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.importRunsTotal.WithLabelValues(result).Inc()
	m.importRunDuration.Observe(duration.Seconds())
}

func (m *Metrics) IncNameResolved(source string) {
	if m == nil {
		return
	}
	m.namesResolved.WithLabelValues(source).Inc()
}

// Handler exposes the Prometheus registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
