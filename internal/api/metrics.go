package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Reasons an analysis submission was turned away.
const (
	rejectInvalid     = "invalid"
	rejectUnavailable = "engine_unavailable"
	rejectSendFailed  = "send_failed"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "silky",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests handled, by route and status code.",
		},
		[]string{"method", "route", "code"},
	)

	// Result streams are excluded; they are measured by resultStreamSeconds.
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "silky",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency of non-streaming HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		},
		[]string{"method", "route"},
	)

	activeResultStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "silky",
			Subsystem: "http",
			Name:      "result_streams_active",
			Help:      "Result event streams currently open.",
		},
	)

	resultStreamSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "silky",
			Subsystem: "http",
			Name:      "result_stream_seconds",
			Help:      "How long result event streams stayed open.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 4, 8),
		},
	)

	resultEventsWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "silky",
			Subsystem: "http",
			Name:      "result_events_total",
			Help:      "Result events written to streaming clients.",
		},
	)

	analysesRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "silky",
			Subsystem: "http",
			Name:      "analyses_rejected_total",
			Help:      "Analysis submissions that were not forwarded to the engine, by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		activeResultStreams,
		resultStreamSeconds,
		resultEventsWritten,
		analysesRejected,
	)
	for _, reason := range []string{rejectInvalid, rejectUnavailable, rejectSendFailed} {
		analysesRejected.WithLabelValues(reason)
	}
}

// metricsMiddleware counts every request by chi route pattern, so correlation
// ids in paths never become label values.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		route := routeLabel(r)
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(code)).Inc()

		if ww.Header().Get("Content-Type") == "text/event-stream" {
			resultStreamSeconds.Observe(time.Since(start).Seconds())
			return
		}
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

func metricsHandler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
