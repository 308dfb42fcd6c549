package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	WsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_ws_connections",
		Help: "Current number of authenticated websocket connections",
	})
	WsRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_ws_rooms",
		Help: "Current number of non-empty rooms in the membership index",
	})
	WsMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_ws_messages_total",
		Help: "Total number of chat messages sent",
	})
	WsEventsDispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_ws_events_dispatched_total",
		Help: "Events dispatched into rooms, by event kind",
	}, []string{"kind"})
	WsDeliveriesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_ws_deliveries_dropped_total",
		Help: "Per-recipient deliveries dropped because the connection was slow or gone",
	})
	WsEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_ws_evictions_total",
		Help: "Connections terminated by the server",
	})
	WsAuthFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_ws_auth_failures_total",
		Help: "Websocket handshakes rejected for missing or invalid credentials",
	})
	WsJoinDenied = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_ws_join_denied_total",
		Help: "Conversation joins dropped because the user is not a participant",
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
	prometheus.MustRegister(
		WsConnections, WsRooms, WsMessagesTotal, WsEventsDispatched, WsDeliveriesDropped,
		WsEvictions, WsAuthFailures, WsJoinDenied,
		HttpRequestsTotal, HttpRequestDuration,
	)
}

// GinMiddleware 统计基础请求指标，供 Prometheus 拉取。
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		labels := prometheus.Labels{"method": c.Request.Method, "path": path, "status": status}
		HttpRequestsTotal.With(labels).Inc()
		HttpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}
