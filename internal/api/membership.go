package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/huddle/internal/service"
	"go.uber.org/zap"
)

// MembershipHandler handles channel membership operations.
type MembershipHandler struct {
	svc    *service.Channels
	logger *zap.Logger
}

func NewMembershipHandler(svc *service.Channels, logger *zap.Logger) *MembershipHandler {
	return &MembershipHandler{svc: svc, logger: logger}
}

// Join handles POST /v1/channels/:id/join
//
// Joining is a user action on themselves and always grants MEMBER. Adding
// someone else, possibly as ADMIN, is POST /v1/channels/:id/members.
func (h *MembershipHandler) Join(c *gin.Context) {
	channelID, err := uuidParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	m, joined, err := h.svc.JoinChannel(c.Request.Context(), actor(c), channelID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	status := http.StatusOK
	if joined {
		status = http.StatusCreated
	}
	c.JSON(status, m)
}

// Leave handles POST /v1/channels/:id/leave
func (h *MembershipHandler) Leave(c *gin.Context) {
	channelID, err := uuidParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if err := h.svc.LeaveChannel(c.Request.Context(), actor(c), channelID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListMembers handles GET /v1/channels/:id/members
func (h *MembershipHandler) ListMembers(c *gin.Context) {
	channelID, err := uuidParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	members, err := h.svc.ListMembers(c.Request.Context(), actor(c), channelID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, members)
}

type addMemberRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
	Role   string    `json:"role"`
}

// AddMember handles POST /v1/channels/:id/members
func (h *MembershipHandler) AddMember(c *gin.Context) {
	channelID, err := uuidParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	var req addMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, invalidBody(err))
		return
	}
	m, err := h.svc.AddMember(c.Request.Context(), actor(c), channelID, req.UserID, req.Role)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// RemoveMember handles DELETE /v1/channels/:id/members/:userId
func (h *MembershipHandler) RemoveMember(c *gin.Context) {
	channelID, err := uuidParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	userID, err := uuidParam(c, "userId")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if err := h.svc.RemoveMember(c.Request.Context(), actor(c), channelID, userID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type changeRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// ChangeRole handles PATCH /v1/channels/:id/members/:userId
func (h *MembershipHandler) ChangeRole(c *gin.Context) {
	channelID, err := uuidParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	userID, err := uuidParam(c, "userId")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	var req changeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, invalidBody(err))
		return
	}
	m, err := h.svc.ChangeRole(c.Request.Context(), actor(c), channelID, userID, req.Role)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, m)
}
