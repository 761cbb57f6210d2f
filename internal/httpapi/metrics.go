package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// requestMetrics holds the counters/histograms registered once per router
// ( ambient observability addition; dex wraps each route the same
// way via wrapWithMetrics, counting per-handler outcomes).
type requestMetrics struct {
	duration *prometheus.HistogramVec
	total *prometheus.CounterVec
}

var metricsByRegistry = map[*prometheus.Registry]*requestMetrics{}

func metricsFor(reg *prometheus.Registry) *requestMetrics {
	if m, ok := metricsByRegistry[reg]; ok {
		return m
	}
	m := &requestMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "authd_http_request_duration_seconds",
			Help: "Latency of authd HTTP handlers.",
		}, []string{"handler"}),
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authd_http_requests_total",
			Help: "Count of authd HTTP requests by handler and status code.",
		}, []string{"handler", "status"}),
	}
	reg.MustRegister(m.duration, m.total)
	metricsByRegistry[reg] = m
	return m
}

// instrumentMetrics wraps handler to record its latency and status code
// under name, mirroring dex's per-route wrapWithMetrics.
func instrumentMetrics(reg *prometheus.Registry, name string, handler http.Handler) http.Handler {
	m := metricsFor(reg)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		handler.ServeHTTP(rec, r)
		m.duration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		m.total.WithLabelValues(name, strconv.Itoa(rec.status)).Inc()
	})
}
