package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/huddle/internal/service"
	"go.uber.org/zap"
)

type ReadStatusHandler struct {
	svc    *service.Messaging
	logger *zap.Logger
}

func NewReadStatusHandler(svc *service.Messaging, logger *zap.Logger) *ReadStatusHandler {
	return &ReadStatusHandler{svc: svc, logger: logger}
}

type setReadStatusRequest struct {
	MarkUnread bool `json:"mark_unread"`
}

// Set handles PUT /v1/messages/:id/read-status. An empty body marks the
// message read.
func (h *ReadStatusHandler) Set(c *gin.Context) {
	messageID, err := messageIDParam(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	var req setReadStatusRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, h.logger, invalidBody(err))
			return
		}
	}
	st, err := h.svc.SetReadStatus(c.Request.Context(), actor(c), messageID, req.MarkUnread)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// Get handles GET /v1/messages/:id/read-status
func (h *ReadStatusHandler) Get(c *gin.Context) {
	messageID, err := messageIDParam(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	st, err := h.svc.GetReadStatus(c.Request.Context(), actor(c), messageID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
