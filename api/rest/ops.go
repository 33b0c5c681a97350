package rest

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/ashenguild/audit"
	"github.com/kasuganosora/ashenguild/guild"
	"github.com/kasuganosora/ashenguild/metrics"
	mw "github.com/kasuganosora/ashenguild/middleware"
	"github.com/kasuganosora/ashenguild/model"
	"github.com/kasuganosora/ashenguild/scheduler"
	"go.uber.org/zap"
)

// Pinger reports store reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// AuditReader lists recorded guild mutations.
type AuditReader interface {
	Recent(ctx context.Context, f audit.Filter) ([]model.AuditLog, error)
}

// OpsHandler serves health and operator endpoints. Everything except Health
// should sit behind the IP whitelist.
type OpsHandler struct {
	store  Pinger
	svc    *guild.Service
	sched  *scheduler.Scheduler
	audit  AuditReader
	logger *zap.Logger
}

// NewOpsHandler creates an OpsHandler.
func NewOpsHandler(store Pinger, svc *guild.Service, sched *scheduler.Scheduler, auditR AuditReader, logger *zap.Logger) *OpsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpsHandler{store: store, svc: svc, sched: sched, audit: auditR, logger: logger}
}

// RegisterRoutes mounts the operator endpoints on rg (usually /ops).
func (h *OpsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/metrics", gin.WrapH(metrics.Handler()))
	rg.GET("/scheduler", h.ListSchedulerTasks)
	rg.GET("/consistency", h.Consistency)
	rg.GET("/audit", h.Audit)
}

// Health reports whether the store answers.
// GET /health
func (h *OpsHandler) Health(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		h.logger.Warn("health check: store unreachable", zap.Error(err))
		retry := 1
		if h.svc != nil {
			retry = mw.RetryAfterSeconds(h.svc.RetryAfter())
		}
		c.Header("Retry-After", strconv.Itoa(retry))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "store": "down"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "store": "up"})
}

// ListSchedulerTasks returns registered background tasks.
// GET /ops/scheduler
func (h *OpsHandler) ListSchedulerTasks(c *gin.Context) {
	tasks := h.sched.ListTasks()
	c.JSON(http.StatusOK, gin.H{"tasks": tasks, "count": len(tasks)})
}

// Consistency runs the member_count check now and returns any drift.
// GET /ops/consistency
func (h *OpsHandler) Consistency(c *gin.Context) {
	drifts, err := h.svc.CheckConsistency(c.Request.Context())
	if err != nil {
		writeError(c, err, h.svc.RetryAfter())
		return
	}
	c.JSON(http.StatusOK, gin.H{"consistent": len(drifts) == 0, "drift": drifts})
}

// Audit lists recent audit entries, newest first. Optional query parameters:
// guild_id, action, transport, trace_id and limit.
// GET /ops/audit
func (h *OpsHandler) Audit(c *gin.Context) {
	f := audit.Filter{
		Action:    c.Query("action"),
		Transport: c.Query("transport"),
		TraceID:   c.Query("trace_id"),
	}
	if v := c.Query("guild_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "guild_id must be a positive integer", "code": guild.CodeInvalidInput})
			return
		}
		f.GuildID = &id
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer", "code": guild.CodeInvalidInput})
			return
		}
		f.Limit = n
	}

	logs, err := h.audit.Recent(c.Request.Context(), f)
	if err != nil {
		h.logger.Error("audit query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "audit query failed", "code": guild.CodeInternal})
		return
	}
	if logs == nil {
		logs = []model.AuditLog{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": logs, "count": len(logs)})
}
