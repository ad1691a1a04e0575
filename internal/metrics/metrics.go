package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Counter: chat API calls by backend and outcome (ok | http_error | error).
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aigc_upstream_requests_total",
			Help: "Total number of chat API calls by backend and outcome.",
		},
		[]string{"backend", "outcome"},
	)

	// Histogram: chat API latency in seconds, token fetch included.
	UpstreamLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aigc_upstream_latency_seconds",
			Help:    "Chat API call latency in seconds.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"backend", "model"},
	)

	// Counter: OAuth2 token exchanges by outcome (ok | error).
	TokenFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aigc_token_fetches_total",
			Help: "Total number of client-credentials token exchanges.",
		},
		[]string{"outcome"},
	)

	// Counter: replies replaced by the error sentinel.
	FallbackRepliesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aigc_fallback_replies_total",
			Help: "Total number of chat calls answered with the error sentinel.",
		},
	)

	// Histogram: bridge HTTP latency in seconds.
	BridgeLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aigc_bridge_latency_seconds",
			Help:    "HTTP request latency for the bridge server in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 600},
		},
		[]string{"path", "method", "status_code"},
	)
)

// Register is called once in main() to register metrics.
func Register() {
	prometheus.MustRegister(
		UpstreamRequestsTotal,
		UpstreamLatencySeconds,
		TokenFetchesTotal,
		FallbackRepliesTotal,
		BridgeLatencySeconds,
	)
}

// Handler exposes the /metrics endpoint for Prometheus to scrape.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveUpstream records one chat API call.
func ObserveUpstream(backend, model, outcome string, d time.Duration) {
	UpstreamRequestsTotal.WithLabelValues(backend, outcome).Inc()
	UpstreamLatencySeconds.WithLabelValues(backend, model).Observe(d.Seconds())
}

// Middleware measures bridge latency for each HTTP request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// capture status code
		rec := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rec, r)

		BridgeLatencySeconds.
			WithLabelValues(r.URL.Path, r.Method, strconv.Itoa(rec.statusCode)).
			Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}
