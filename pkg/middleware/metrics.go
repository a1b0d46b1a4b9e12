package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type httpMetrics struct {
	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	responseBytes *prometheus.HistogramVec
	inFlight      *prometheus.GaugeVec
}

var requestLabels = []string{"service", "method", "route", "status"}

var httpStats = httpMetrics{
	requests: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "http",
		Name:      "requests_total",
		Help:      "HTTP requests served, by route pattern and status.",
	}, requestLabels),
	duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "http",
		Name:      "request_duration_seconds",
		Help:      "Time spent serving HTTP requests.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, requestLabels),
	responseBytes: promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "http",
		Name:      "response_size_bytes",
		Help:      "Size of HTTP response bodies.",
		Buckets:   prometheus.ExponentialBuckets(64, 4, 7),
	}, []string{"service", "route"}),
	inFlight: promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "http",
		Name:      "requests_in_flight",
		Help:      "Requests currently being served.",
	}, []string{"service"}),
}

// routeLabel keeps label cardinality bounded: /profile/{email} is one series
// no matter how many users hit it.
func routeLabel(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return "unknown"
	}
	if p := rctx.RoutePattern(); p != "" {
		return p
	}
	return "unknown"
}

// PrometheusMetrics instruments every request passing through it.
func PrometheusMetrics(service string) func(http.Handler) http.Handler {
	inFlight := httpStats.inFlight.WithLabelValues(service)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			inFlight.Inc()
			started := time.Now()
			rec := newStatusRecorder(w)
			defer func() {
				inFlight.Dec()
				route := routeLabel(r)
				labels := []string{service, r.Method, route, strconv.Itoa(rec.status)}
				httpStats.requests.WithLabelValues(labels...).Inc()
				httpStats.duration.WithLabelValues(labels...).Observe(time.Since(started).Seconds())
				httpStats.responseBytes.WithLabelValues(service, route).Observe(float64(rec.bytes))
			}()
			next.ServeHTTP(rec, r)
		})
	}
}
