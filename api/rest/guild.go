package rest

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/ashenguild/audit"
	"github.com/kasuganosora/ashenguild/guild"
	mw "github.com/kasuganosora/ashenguild/middleware"
	"github.com/kasuganosora/ashenguild/model"
)

// GuildHandler handles guild REST endpoints.
type GuildHandler struct {
	svc *guild.Service
}

// NewGuildHandler creates a new GuildHandler.
func NewGuildHandler(svc *guild.Service) *GuildHandler {
	return &GuildHandler{svc: svc}
}

// RegisterRoutes mounts the guild endpoints on rg (usually /api/guilds).
func (h *GuildHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/:id", h.Detail)
	rg.POST("/:id/join", h.Join)
	rg.GET("/:id/members", h.Members)
}

type createGuildRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Leader      string `json:"leader"`
}

type joinGuildRequest struct {
	CharacterName string `json:"character_name"`
}

// List handles GET /api/guilds.
func (h *GuildHandler) List(c *gin.Context) {
	guilds, err := h.svc.ListGuilds(c.Request.Context())
	if err != nil {
		writeError(c, err, h.svc.RetryAfter())
		return
	}
	c.JSON(http.StatusOK, gin.H{"guilds": guilds})
}

// Detail handles GET /api/guilds/:id.
func (h *GuildHandler) Detail(c *gin.Context) {
	guildID, ok := paramID(c)
	if !ok {
		return
	}
	g, err := h.svc.GetGuild(c.Request.Context(), guildID)
	if err != nil {
		writeError(c, err, h.svc.RetryAfter())
		return
	}
	c.JSON(http.StatusOK, gin.H{"guild": g})
}

// Create handles POST /api/guilds.
func (h *GuildHandler) Create(c *gin.Context) {
	var req createGuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed JSON body", "code": guild.CodeInvalidInput})
		return
	}

	rec := mw.AuditRecord{Action: audit.ActionCreateGuild, CharacterName: req.Leader, Request: req}
	defer func() { mw.SetAudit(c, rec) }()

	g, err := h.svc.CreateGuild(c.Request.Context(), req.Name, req.Description, req.Leader)
	if err != nil {
		rec.Error = err.Error()
		writeError(c, err, h.svc.RetryAfter())
		return
	}
	rec.GuildID = &g.ID
	rec.Response = g
	c.JSON(http.StatusCreated, gin.H{"guild": g})
}

// Join handles POST /api/guilds/:id/join.
func (h *GuildHandler) Join(c *gin.Context) {
	guildID, ok := paramID(c)
	if !ok {
		return
	}
	var req joinGuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed JSON body", "code": guild.CodeInvalidInput})
		return
	}

	rec := mw.AuditRecord{Action: audit.ActionJoinGuild, GuildID: &guildID, CharacterName: req.CharacterName, Request: req}
	defer func() { mw.SetAudit(c, rec) }()

	res, err := h.svc.JoinGuild(c.Request.Context(), guildID, req.CharacterName)
	if err != nil {
		rec.Error = err.Error()
		writeError(c, err, h.svc.RetryAfter())
		return
	}
	rec.Response = res
	c.JSON(http.StatusOK, res)
}

// Members handles GET /api/guilds/:id/members.
func (h *GuildHandler) Members(c *gin.Context) {
	guildID, ok := paramID(c)
	if !ok {
		return
	}
	members, err := h.svc.ListMembers(c.Request.Context(), guildID)
	if err != nil {
		writeError(c, err, h.svc.RetryAfter())
		return
	}
	if members == nil {
		members = []model.GuildMember{}
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id", "code": guild.CodeInvalidInput})
		return 0, false
	}
	return id, true
}

// StatusFor maps a guild error code onto an HTTP status.
func StatusFor(code guild.Code) int {
	switch code {
	case guild.CodeInvalidInput:
		return http.StatusBadRequest
	case guild.CodeNotFound, guild.CodeGuildNotFound:
		return http.StatusNotFound
	case guild.CodeDuplicateName, guild.CodeAlreadyMember:
		return http.StatusConflict
	case guild.CodeStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as JSON. retryAfter feeds the Retry-After header on
// 503 responses.
func writeError(c *gin.Context, err error, retryAfter time.Duration) {
	code := guild.CodeOf(err)
	status := StatusFor(code)

	msg := "internal error"
	var ge *guild.Error
	if errors.As(err, &ge) && code != guild.CodeInternal {
		msg = ge.Message
	}
	if status == http.StatusServiceUnavailable && retryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(mw.RetryAfterSeconds(retryAfter)))
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": msg, "code": code})
}
