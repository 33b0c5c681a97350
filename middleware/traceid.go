package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	TraceIDKey    = "trace_id"
	TraceIDHeader = "X-Trace-ID"
	// RequestIDHeader is accepted from proxies that do not speak X-Trace-ID.
	RequestIDHeader = "X-Request-ID"
)

// maxTraceIDLen matches the audit_logs.trace_id column.
const maxTraceIDLen = 36

// TraceID tags every request with a trace ID, echoed in the X-Trace-ID
// response header and carried into logs and audit rows. A caller-supplied ID
// is kept when it fits the audit column and uses only [A-Za-z0-9._-];
// anything else is replaced with a fresh UUID.
func TraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(TraceIDHeader)
		if id == "" {
			id = c.GetHeader(RequestIDHeader)
		}
		if !validTraceID(id) {
			id = uuid.NewString()
		}
		c.Set(TraceIDKey, id)
		c.Header(TraceIDHeader, id)
		c.Next()
	}
}

func validTraceID(id string) bool {
	if id == "" || len(id) > maxTraceIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		ch := id[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
		case ch == '-', ch == '_', ch == '.':
		default:
			return false
		}
	}
	return true
}

// GetTraceID returns the request's trace ID, or "" outside TraceID.
func GetTraceID(c *gin.Context) string {
	return c.GetString(TraceIDKey)
}
