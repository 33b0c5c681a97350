package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ashenguild",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ashenguild",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path"},
	)

	guildOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ashenguild",
			Subsystem: "guild",
			Name:      "operations_total",
			Help:      "Guild service operations by outcome code.",
		},
		[]string{"op", "code"},
	)

	guildDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ashenguild",
			Subsystem: "guild",
			Name:      "operation_duration_seconds",
			Help:      "Duration of guild service operations.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"op"},
	)

	characterOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ashenguild",
			Subsystem: "character",
			Name:      "operations_total",
			Help:      "Character and item operations by outcome code.",
		},
		[]string{"op", "code"},
	)

	auditRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ashenguild",
			Subsystem: "audit",
			Name:      "records_total",
			Help:      "Audit records by outcome: written, dropped or failed.",
		},
		[]string{"outcome"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		httpRequests,
		httpDuration,
		guildOperations,
		guildDuration,
		characterOperations,
		auditRecords,
	)
}

// RecordGuildOperation counts one guild service call.
func RecordGuildOperation(op, code string, d time.Duration) {
	guildOperations.WithLabelValues(op, code).Inc()
	guildDuration.WithLabelValues(op).Observe(d.Seconds())
}

// RecordCharacterOperation counts one character service call.
func RecordCharacterOperation(op, code string) {
	characterOperations.WithLabelValues(op, code).Inc()
}

// Audit record outcomes.
const (
	AuditWritten = "written"
	AuditDropped = "dropped"
	AuditFailed  = "failed"
)

// RecordAudit counts n audit records with the given outcome.
func RecordAudit(outcome string, n int) {
	auditRecords.WithLabelValues(outcome).Add(float64(n))
}

// Middleware records request counts and latency. Paths are the registered
// route patterns so ids do not explode label cardinality.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		httpRequests.WithLabelValues(c.Request.Method, path, status).Inc()
		httpDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
