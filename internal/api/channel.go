package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/service"
	"go.uber.org/zap"
)

// ChannelHandler serves channels and direct messages.
type ChannelHandler struct {
	svc    *service.Channels
	logger *zap.Logger
}

func NewChannelHandler(svc *service.Channels, logger *zap.Logger) *ChannelHandler {
	return &ChannelHandler{svc: svc, logger: logger}
}

type createChannelRequest struct {
	Name string `json:"name" binding:"required"`
	Type string `json:"type"`
}

// Create handles POST /v1/workspaces/:id/channels
func (h *ChannelHandler) Create(c *gin.Context) {
	workspaceID, err := uuidParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	var req createChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, invalidBody(err))
		return
	}
	ch, err := h.svc.CreateChannel(c.Request.Context(), actor(c), workspaceID, req.Name, models.ChannelType(req.Type))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, ch)
}

// List handles GET /v1/workspaces/:id/channels
func (h *ChannelHandler) List(c *gin.Context) {
	workspaceID, err := uuidParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	channels, err := h.svc.ListChannels(c.Request.Context(), actor(c), workspaceID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, channels)
}

// GetByID handles GET /v1/channels/:id
func (h *ChannelHandler) GetByID(c *gin.Context) {
	channelID, err := uuidParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	ch, err := h.svc.GetChannel(c.Request.Context(), actor(c), channelID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

type openDMRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

// OpenDM handles POST /v1/workspaces/:id/dms. 201 when the DM was created
// by this call, 200 when it already existed.
func (h *ChannelHandler) OpenDM(c *gin.Context) {
	workspaceID, err := uuidParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	var req openDMRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, invalidBody(err))
		return
	}
	ch, created, err := h.svc.GetOrCreateDM(c.Request.Context(), actor(c), workspaceID, req.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, ch)
}
