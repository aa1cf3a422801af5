package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "h3cellstore_build_info",
			Help: "Build information of the H3 cell store",
		},
		[]string{"version", "commit", "date"},
	)

	InsertTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "h3cellstore_insert_total",
			Help: "Total number of insert pipeline runs",
		},
		[]string{"tableset", "status"},
	)

	InsertRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "h3cellstore_insert_rows_total",
			Help: "Total number of rows staged by the insert pipeline, after compaction",
		},
		[]string{"tableset"},
	)

	InsertStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "h3cellstore_insert_stage_duration_seconds",
			Help:    "Duration of insert pipeline stages",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 0.01s to ~82s
		},
		[]string{"stage"},
	)

	InsertStageErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "h3cellstore_insert_stage_errors_total",
			Help: "Total number of failed insert pipeline stages",
		},
		[]string{"stage"},
	)

	TraversalCellsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "h3cellstore_traversal_cells_total",
			Help: "Total number of traversal cells processed",
		},
		[]string{"status"},
	)

	TraversalFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "h3cellstore_traversal_fetch_duration_seconds",
			Help:    "Duration of fetching the data of one traversal cell",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 0.001s to ~8.2s
		},
	)

	TraversalQueryRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "h3cellstore_traversal_query_retries_total",
			Help: "Total number of retried traversal queries",
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "h3cellstore_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "h3cellstore_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Middleware returns a chi middleware that records HTTP metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// Use the route pattern if available, otherwise use the path
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}

		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
