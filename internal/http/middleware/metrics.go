// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file exposes Prometheus instrumentation for the gate's HTTP traffic.
// The Metrics() middleware measures request counts, latencies, in-flight
// concurrency, and response sizes with careful attention to label
// cardinality:
//
//   - method: HTTP method verb (GET/POST)
//   - path:   the registered Gin route (e.g. /api/quota/:scope/:key);
//     falls back to the raw URL path when no route matched
//   - status: numeric status code as a string
//
// Gate-specific counters (blocked sends by tier, live watch connections)
// are exported alongside the HTTP metrics so dashboards can track the
// quota funnel without scraping logs.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// httpReqs counts requests by method, route path, and status code.
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	// httpLat records request duration in seconds by method and route path.
	// Status is omitted to keep histogram cardinality lower.
	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gate_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// httpInflight gauges the number of in-flight requests.
	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gate_http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	// blockedSends counts gate refusals by escalation tier.
	blockedSends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_blocked_sends_total",
			Help: "Total number of sends refused by the usage gate.",
		},
		[]string{"tier"},
	)

	// watchConns gauges currently open quota watch streams.
	watchConns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gate_watch_connections",
			Help: "Currently open quota watch streams.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, blockedSends, watchConns)
}

// ObserveBlockedSend records one gate refusal for the given tier label
// ("guest" or "final").
func ObserveBlockedSend(tier string) { blockedSends.WithLabelValues(tier).Inc() }

// WatchOpened and WatchClosed track the live watch connection gauge.
func WatchOpened() { watchConns.Inc() }

// WatchClosed decrements the live watch connection gauge.
func WatchClosed() { watchConns.Dec() }

// Metrics returns a Gin middleware that instruments requests with Prometheus.
//
// The "path" label uses the registered route (c.FullPath()) to avoid
// unbounded cardinality from raw URLs; when no route matched (404) it falls
// back to the raw path. The status label is the numeric code string.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		dur := time.Since(start).Seconds()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		httpReqs.WithLabelValues(method, path, status).Inc()
		httpLat.WithLabelValues(method, path).Observe(dur)
	}
}
