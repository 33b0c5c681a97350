package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/ashenguild/character"
	"github.com/kasuganosora/ashenguild/guild"
	"go.uber.org/zap"
)

// dashboardPreview caps how many entries each dashboard section lists.
const dashboardPreview = 5

// DashboardSection is one part of the dashboard. A section whose source
// failed carries only Error.
type DashboardSection struct {
	Count int         `json:"count"`
	List  interface{} `json:"list,omitempty"`
	Error string      `json:"error,omitempty"`
}

// DashboardHandler merges characters and guilds into one overview.
type DashboardHandler struct {
	guilds *guild.Service
	chars  *character.Service
	logger *zap.Logger
	now    func() time.Time
}

// NewDashboardHandler creates a DashboardHandler.
func NewDashboardHandler(guilds *guild.Service, chars *character.Service, logger *zap.Logger) *DashboardHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardHandler{guilds: guilds, chars: chars, logger: logger, now: time.Now}
}

// Dashboard handles GET /api/dashboard. Each section fails on its own, so a
// store hiccup on one side still returns the other.
func (h *DashboardHandler) Dashboard(c *gin.Context) {
	ctx := c.Request.Context()
	sources := []string{}

	chars := h.section(ctx, "characters", func(ctx context.Context) (interface{}, int, error) {
		list, err := h.chars.ListCharacters(ctx)
		if err != nil {
			return nil, 0, err
		}
		views := make([]characterView, 0, dashboardPreview)
		for _, ch := range list[:min(len(list), dashboardPreview)] {
			views = append(views, viewCharacter(ch))
		}
		return views, len(list), nil
	})
	if chars.Error == "" {
		sources = append(sources, "characters")
	}

	guilds := h.section(ctx, "guilds", func(ctx context.Context) (interface{}, int, error) {
		list, err := h.guilds.ListGuilds(ctx)
		if err != nil {
			return nil, 0, err
		}
		return list[:min(len(list), dashboardPreview)], len(list), nil
	})
	if guilds.Error == "" {
		sources = append(sources, "guilds")
	}

	c.JSON(http.StatusOK, gin.H{
		"timestamp": h.now().UTC().Format(time.RFC3339),
		"data":      gin.H{"characters": chars, "guilds": guilds},
		"sources":   sources,
		"links": []Link{
			{Rel: "self", Href: "/api/dashboard"},
			{Rel: "characters", Href: "/api/characters"},
			{Rel: "guilds", Href: "/api/guilds"},
			{Rel: "health", Href: "/health"},
		},
	})
}

func (h *DashboardHandler) section(ctx context.Context, name string, load func(context.Context) (interface{}, int, error)) DashboardSection {
	list, n, err := load(ctx)
	if err != nil {
		h.logger.Warn("dashboard section unavailable", zap.String("section", name), zap.Error(err))
		return DashboardSection{Error: name + " unavailable"}
	}
	return DashboardSection{Count: n, List: list}
}
