package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/jobrelay/internal/domain"
	"github.com/yungbote/jobrelay/internal/http/response"
	"github.com/yungbote/jobrelay/internal/platform/logger"
	"github.com/yungbote/jobrelay/internal/realtime"
	"github.com/yungbote/jobrelay/internal/registry"
)

type SubscriberHandler struct {
	log      *logger.Logger
	registry registry.Registry
}

func NewSubscriberHandler(log *logger.Logger, reg registry.Registry) *SubscriberHandler {
	return &SubscriberHandler{
		log:      log.With("handler", "SubscriberHandler"),
		registry: reg,
	}
}

type subscribeRequest struct {
	ConnectionID string            `json:"connectionId"`
	Endpoint     string            `json:"endpoint"`
	Metadata     map[string]string `json:"metadata"`
}

var (
	errSubscriberTarget  = errors.New("connectionId or endpoint required")
	errSubscriberSSE     = errors.New("sse subscribers are registered by opening /api/sse/stream")
	errSubscriberWebhook = errors.New("endpoint must be an absolute http(s) url")
)

// Subscribe registers a webhook or API Gateway connection. A webhook without
// a connection id gets a generated one.
func (h *SubscriberHandler) Subscribe(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	req.ConnectionID = strings.TrimSpace(req.ConnectionID)
	req.Endpoint = strings.TrimSpace(req.Endpoint)
	if err := validateSubscribeRequest(req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_subscriber", err)
		return
	}
	if req.ConnectionID == "" {
		req.ConnectionID = uuid.New().String()
	}
	sub := domain.Subscriber{
		ConnectionID: req.ConnectionID,
		Endpoint:     req.Endpoint,
		Metadata:     req.Metadata,
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.registry.Add(c.Request.Context(), sub); err != nil {
		if errors.Is(err, registry.ErrInvalidSubscriber) {
			response.RespondError(c, http.StatusBadRequest, "invalid_subscriber", err)
			return
		}
		h.log.Error("Add subscriber failed", "connection_id", sub.ConnectionID, "error", err)
		response.RespondError(c, http.StatusServiceUnavailable, "registry_unavailable", err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

func validateSubscribeRequest(req subscribeRequest) error {
	if req.ConnectionID == "" && req.Endpoint == "" {
		return errSubscriberTarget
	}
	if strings.HasPrefix(req.Endpoint, realtime.SSEEndpointPrefix) {
		return errSubscriberSSE
	}
	if req.Endpoint == "" {
		return nil
	}
	u, err := url.Parse(req.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errSubscriberWebhook
	}
	return nil
}

// Unsubscribe is idempotent: unknown ids still answer 204.
func (h *SubscriberHandler) Unsubscribe(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_subscriber", registry.ErrInvalidSubscriber)
		return
	}
	if err := h.registry.Remove(c.Request.Context(), id); err != nil {
		h.log.Error("Remove subscriber failed", "connection_id", id, "error", err)
		response.RespondError(c, http.StatusServiceUnavailable, "registry_unavailable", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SubscriberHandler) List(c *gin.Context) {
	subs, err := h.registry.List(c.Request.Context())
	if err != nil {
		response.RespondError(c, http.StatusServiceUnavailable, "registry_unavailable", err)
		return
	}
	if subs == nil {
		subs = []domain.Subscriber{}
	}
	response.RespondOK(c, gin.H{"subscribers": subs})
}
