package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	WsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "feed_ws_connections",
		Help: "Current number of websocket connections in the posts group",
	})
	BroadcastEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_broadcast_events_total",
		Help: "Total number of events queued for fan-out",
	}, []string{"message"})
	BroadcastDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feed_broadcast_dropped_connections_total",
		Help: "Connections dropped because their send buffer was full",
	})
	RegistrationsRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feed_registrations_rate_limited_total",
		Help: "Registrations rejected by the per-address guard",
	})
	HttpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HttpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(WsConnections, BroadcastEventsTotal, BroadcastDropped, RegistrationsRejected,
		HttpRequestsTotal, HttpRequestDuration)
}

// GinMiddleware 统计基础请求指标，供 Prometheus 拉取。
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		labels := prometheus.Labels{"method": c.Request.Method, "path": path, "status": status}
		HttpRequestsTotal.With(labels).Inc()
		HttpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}
