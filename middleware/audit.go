package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/ashenguild/audit"
)

const auditKey = "audit_record"

// AuditRecord is what a handler reports about a mutation it served.
type AuditRecord struct {
	Action        string
	GuildID       *int64
	CharacterName string
	Request       interface{}
	Response      interface{}
	Error         string
}

// AuditLogger is satisfied by *audit.Service.
type AuditLogger interface {
	Log(entry audit.Entry)
}

// SetAudit tags the request for auditing. Requests that never call it are not
// audited.
func SetAudit(c *gin.Context, rec AuditRecord) {
	c.Set(auditKey, &rec)
}

// Audit returns a middleware that forwards tagged requests to the audit log
// once the handler has finished.
func Audit(log AuditLogger, transport string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		v, ok := c.Get(auditKey)
		if !ok || log == nil {
			return
		}
		rec := v.(*AuditRecord)
		log.Log(audit.Entry{
			TraceID:       GetTraceID(c),
			Transport:     transport,
			Action:        rec.Action,
			GuildID:       rec.GuildID,
			CharacterName: rec.CharacterName,
			Request:       rec.Request,
			Response:      rec.Response,
			Error:         rec.Error,
			IP:            c.ClientIP(),
			DurationMs:    int(time.Since(start).Milliseconds()),
		})
	}
}
