package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PanicResponder writes the error response for a request whose handler
// panicked. It is not called when the handler had already started writing.
type PanicResponder func(c *gin.Context)

// Recovery catches handler panics, logs them and answers with the JSON error
// shape used by the REST API.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	return RecoveryWith(log, jsonPanicResponse)
}

// RecoveryWith is Recovery with a transport-specific error response.
func RecoveryWith(log *zap.Logger, respond PanicResponder) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			// The client went away; let net/http drop the connection quietly.
			if err, ok := r.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(r)
			}
			log.Error("panic recovered",
				zap.Any("error", r),
				zap.String("trace_id", GetTraceID(c)),
				zap.String("method", c.Request.Method),
				zap.String("route", c.FullPath()),
				zap.Stack("stack"),
			)
			if c.Writer.Written() {
				c.Abort()
				return
			}
			respond(c)
			c.Abort()
		}()
		c.Next()
	}
}

func jsonPanicResponse(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": "internal server error",
		"code":  "Internal",
	})
}
