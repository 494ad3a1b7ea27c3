package middlewares

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backoffice_http_requests_total",
			Help: "Admin API requests by back-office resource",
		},
		[]string{"resource", "method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backoffice_http_request_duration_seconds",
			Help:    "Admin API latency by back-office resource",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"resource", "method", "status"},
	)

	apiOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backoffice_api_operations_total",
			Help: "Admin operations on cached back-office data",
		},
		[]string{"resource", "operation", "status"},
	)
)

// Resource names the back-office data a route works on: the first segment
// under /api, except that orders nested under a customer count as "orders".
// Routes outside /api are "system"; unmatched ones are "unknown".
func Resource(route string) string {
	if route == "" {
		return "unknown"
	}
	rest, ok := strings.CutPrefix(route, "/api/")
	if !ok {
		return "system"
	}
	segs := strings.Split(rest, "/")
	if segs[0] == "" {
		return "unknown"
	}
	if segs[0] == "customers" && len(segs) > 2 && segs[2] == "orders" {
		return "orders"
	}
	return segs[0]
}

// PrometheusMiddleware records count and latency per resource. Requests
// that match no route share the "unmatched" route label.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		resource := Resource(route)
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		httpRequestsTotal.WithLabelValues(resource, c.Request.Method, route, status).Inc()
		httpRequestDuration.WithLabelValues(resource, c.Request.Method, status).Observe(time.Since(start).Seconds())
	}
}

// RecordOperation counts one admin operation on a resource, e.g.
// ("orders", "update_order_status").
func RecordOperation(resource, operation string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	apiOperations.WithLabelValues(resource, operation, status).Inc()
}
