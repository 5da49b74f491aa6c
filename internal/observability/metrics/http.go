package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lmoreau/paperquery/internal/core/domain"
)

type ServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	queryTotal              *prometheus.CounterVec
	queryDuration           *prometheus.HistogramVec
	querySources            *prometheus.HistogramVec
	noContextTotal          *prometheus.CounterVec
	comparisonFallbackTotal prometheus.Counter
}

func NewServerMetrics(service string) *ServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paperquery",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "paperquery",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "paperquery",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queryTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paperquery",
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Total completed queries by intent.",
		},
		[]string{"service", "intent"},
	)
	queryDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "paperquery",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Query execution duration in seconds by intent.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "intent"},
	)
	querySources := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "paperquery",
			Subsystem: "query",
			Name:      "sources",
			Help:      "Distribution of deduplicated sources per response.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service", "intent"},
	)
	noContextTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paperquery",
			Subsystem: "query",
			Name:      "no_context_total",
			Help:      "Total queries answered with the no-information message.",
		},
		[]string{"service", "intent"},
	)
	comparisonFallbackTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "paperquery",
			Subsystem: "query",
			Name:      "comparison_fallback_total",
			Help:      "Total comparison queries that fell back to the standard strategy.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		queryTotal,
		queryDuration,
		querySources,
		noContextTotal,
		comparisonFallbackTotal,
	)

	return &ServerMetrics{
		registry:                registry,
		requestTotal:            requestTotal,
		requestDuration:         requestDuration,
		requestInFlight:         requestInFlight,
		queryTotal:              queryTotal,
		queryDuration:           queryDuration,
		querySources:            querySources,
		noContextTotal:          noContextTotal,
		comparisonFallbackTotal: comparisonFallbackTotal,
	}
}

func (m *ServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *ServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/papers/"):
		return "/v1/papers/{paper_id}"
	default:
		return path
	}
}

// QueryObserver satisfies the orchestrator's QueryMetrics contract.
type QueryObserver struct {
	service string
	metrics *ServerMetrics
}

func (m *ServerMetrics) QueryObserver(service string) *QueryObserver {
	return &QueryObserver{
		service: service,
		metrics: m,
	}
}

func (o *QueryObserver) ObserveQuery(intent domain.Intent, sources int, duration time.Duration) {
	o.metrics.queryTotal.WithLabelValues(o.service, string(intent)).Inc()
	o.metrics.querySources.WithLabelValues(o.service, string(intent)).Observe(float64(sources))
	o.metrics.queryDuration.WithLabelValues(o.service, string(intent)).Observe(duration.Seconds())
}

func (o *QueryObserver) IncNoContext(intent domain.Intent) {
	o.metrics.noContextTotal.WithLabelValues(o.service, string(intent)).Inc()
}

func (o *QueryObserver) IncComparisonFallback() {
	o.metrics.comparisonFallbackTotal.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
