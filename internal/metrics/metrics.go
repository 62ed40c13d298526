// Package metrics declares the Prometheus collectors of the batch pipeline
// and the HTTP layer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Row outcomes of a run.
const (
	RowGenerated = "generated"
	RowSkipped   = "skipped"
	RowFailed    = "failed"
)

var (
	CertificateRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "certsvc_certificate_rows_total",
		Help: "Dataset rows processed by runs, by outcome.",
	}, []string{"outcome"})

	RunsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "certsvc_runs_finished_total",
		Help: "Runs that reached a terminal status.",
	}, []string{"status"})

	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "certsvc_run_duration_seconds",
		Help:    "Wall time of a run execution.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
	})

	EmailsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "certsvc_emails_total",
		Help: "Campaign emails attempted, by result.",
	}, []string{"status"})

	CampaignsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "certsvc_campaigns_finished_total",
		Help: "Campaign sends that finished, by final status.",
	}, []string{"status"})

	DatasetCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "certsvc_dataset_cache_lookups_total",
		Help: "Decoded dataset cache lookups, by result.",
	}, []string{"result"})

	QueueJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "certsvc_queue_jobs_total",
		Help: "Queue jobs handled, by topic and result.",
	}, []string{"topic", "result"})

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "certsvc_http_requests_total",
		Help: "HTTP requests served.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "certsvc_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// Middleware records request counts and latency labelled by chi route
// pattern, so ids never become label values.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
