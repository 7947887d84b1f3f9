package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics request and response cache instrumentation
type HTTPMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	CacheHits       *prometheus.CounterVec
	CacheMisses     *prometheus.CounterVec
	CacheErrors     *prometheus.CounterVec
}

var httpMetrics = &HTTPMetrics{
	RequestsTotal: promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "currency_http_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	),
	RequestDuration: promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "currency_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	),
	CacheHits: promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "currency_cache_hits_total",
			Help: "Responses served from the response cache",
		},
		[]string{"route"},
	),
	CacheMisses: promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "currency_cache_misses_total",
			Help: "Cacheable requests that reached the handler",
		},
		[]string{"route"},
	),
	CacheErrors: promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "currency_cache_errors_total",
			Help: "Cache backend failures by operation",
		},
		[]string{"op"},
	),
}

// Metrics returns the package HTTP metrics
func Metrics() *HTTPMetrics {
	return httpMetrics
}

// Instrument records count and latency per matched route
func Instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpMetrics.RequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpMetrics.RequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
