package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Поверхности API: публичная для клиентов, внутренняя для хуков CRUD-сервиса, служебная для /metrics и /health
const (
	SurfacePublic   = "public"
	SurfaceInternal = "internal"
	SurfaceOps      = "ops"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "surface", "status", "service"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method", "endpoint", "surface", "service"},
	)

	// websocket-запросы держат соединение открытым, поэтому в гистограмму они не попадают
	httpInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests being served, websocket sessions included",
		},
		[]string{"surface", "service"},
	)

	httpDeniedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_access_denied_total",
			Help: "Requests rejected by identity or participant checks",
		},
		[]string{"endpoint", "status", "service"},
	)
)

func surfaceOf(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/"):
		return SurfacePublic
	case strings.HasPrefix(path, "/internal/"):
		return SurfaceInternal
	default:
		return SurfaceOps
	}
}

func isWebsocket(c *gin.Context) bool {
	return strings.EqualFold(c.GetHeader("Upgrade"), "websocket")
}

func PrometheusMiddleware(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		surface := surfaceOf(c.Request.URL.Path)

		inFlight := httpInFlight.WithLabelValues(surface, serviceName)
		inFlight.Inc()
		defer inFlight.Dec()

		c.Next()

		code := c.Writer.Status()
		status := strconv.Itoa(code)
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, surface, status, serviceName).Inc()
		if code == http.StatusUnauthorized || code == http.StatusForbidden {
			httpDeniedTotal.WithLabelValues(path, status, serviceName).Inc()
		}
		if !isWebsocket(c) {
			httpRequestDuration.WithLabelValues(c.Request.Method, path, surface, serviceName).Observe(time.Since(start).Seconds())
		}
	}
}
