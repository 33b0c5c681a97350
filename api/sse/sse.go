package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/ashenguild/guild"
	"github.com/kasuganosora/ashenguild/pubsub"
	"go.uber.org/zap"
)

const defaultKeepalive = 30 * time.Second

// Handler streams committed guild events to HTTP clients.
type Handler struct {
	pubsub    pubsub.PubSub
	logger    *zap.Logger
	keepalive time.Duration
}

// NewHandler creates a new SSE Handler.
func NewHandler(ps pubsub.PubSub, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{pubsub: ps, logger: logger, keepalive: defaultKeepalive}
}

// ServeSSE handles GET /api/guilds/events.
// Each guild event is sent with its type as the SSE event name and the JSON
// event as data. Events published before the client connects are not
// replayed.
func (h *Handler) ServeSSE(c *gin.Context) {
	subCtx, subCancel := context.WithCancel(c.Request.Context())
	defer subCancel()

	msgCh, unsub, err := h.pubsub.Subscribe(subCtx, guild.EventsChannel)
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event stream unavailable", "code": guild.CodeStoreUnavailable})
		return
	}
	defer unsub()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	fmt.Fprintf(c.Writer, "event: connected\ndata: {}\n\n")
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			var head struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal([]byte(msg.Payload), &head); err != nil || head.Type == "" {
				h.logger.Warn("sse: skipping malformed event", zap.String("payload", msg.Payload))
				continue
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", head.Type, msg.Payload)
			c.Writer.Flush()

		case <-ticker.C:
			// Keepalive comment to prevent proxy timeouts.
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}
