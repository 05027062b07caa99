package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/jobrelay/internal/domain"
	"github.com/yungbote/jobrelay/internal/http/response"
	"github.com/yungbote/jobrelay/internal/platform/ctxutil"
	"github.com/yungbote/jobrelay/internal/platform/logger"
	"github.com/yungbote/jobrelay/internal/realtime"
	"github.com/yungbote/jobrelay/internal/registry"
)

const unregisterTimeout = 5 * time.Second

type RealtimeHandler struct {
	log      *logger.Logger
	hub      *realtime.SSEHub
	registry registry.Registry
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.SSEHub, reg registry.Registry) *RealtimeHandler {
	return &RealtimeHandler{
		log:      log.With("handler", "RealtimeHandler"),
		hub:      hub,
		registry: reg,
	}
}

// SSEStream registers the stream as a subscriber for as long as it stays open.
func (h *RealtimeHandler) SSEStream(c *gin.Context) {
	client := h.hub.NewSSEClient()
	sub := domain.Subscriber{
		ConnectionID: client.ID,
		Endpoint:     realtime.SSEEndpoint(client.ID),
		Metadata:     map[string]string{"userAgent": c.Request.UserAgent()},
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.registry.Add(c.Request.Context(), sub); err != nil {
		h.hub.CloseClient(client)
		h.log.Error("Register SSE subscriber failed", "connection_id", client.ID, "error", err)
		response.RespondError(c, http.StatusServiceUnavailable, "registry_unavailable", err)
		return
	}
	h.log.Info("SSE stream open", "connection_id", client.ID)

	defer func() {
		h.hub.CloseClient(client)
		ctx, cancel := context.WithTimeout(ctxutil.Detach(c.Request.Context()), unregisterTimeout)
		defer cancel()
		if err := h.registry.Remove(ctx, client.ID); err != nil {
			h.log.Warn("Unregister SSE subscriber failed", "connection_id", client.ID, "error", err)
		}
		h.log.Info("SSE stream closed", "connection_id", client.ID)
	}()

	h.hub.ServeHTTP(c.Writer, c.Request, client)
}
