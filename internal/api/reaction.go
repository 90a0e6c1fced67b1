package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/huddle/internal/service"
	"go.uber.org/zap"
)

type ReactionHandler struct {
	svc    *service.Messaging
	logger *zap.Logger
}

func NewReactionHandler(svc *service.Messaging, logger *zap.Logger) *ReactionHandler {
	return &ReactionHandler{svc: svc, logger: logger}
}

type addReactionRequest struct {
	Emoji string `json:"emoji"`
}

// Add handles POST /v1/messages/:id/reactions. Re-adding the same emoji
// returns the existing reaction with 200.
func (h *ReactionHandler) Add(c *gin.Context) {
	messageID, err := messageIDParam(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	var req addReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, invalidBody(err))
		return
	}
	r, created, err := h.svc.AddReaction(c.Request.Context(), actor(c), messageID, req.Emoji)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, r)
}

// List handles GET /v1/messages/:id/reactions
func (h *ReactionHandler) List(c *gin.Context) {
	messageID, err := messageIDParam(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	rs, err := h.svc.ListReactions(c.Request.Context(), actor(c), messageID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, rs)
}

// Remove handles DELETE /v1/reactions/:id
func (h *ReactionHandler) Remove(c *gin.Context) {
	reactionID, err := uuidParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if err := h.svc.RemoveReaction(c.Request.Context(), actor(c), reactionID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
