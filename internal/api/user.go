package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/huddle/internal/apperr"
	"github.com/lalith-99/huddle/internal/middleware"
	"github.com/lalith-99/huddle/internal/repository"
	"go.uber.org/zap"
)

// UserHandler serves the caller's own profile. Profiles are written by
// the identity service; this side only reads them.
type UserHandler struct {
	repo   repository.UserRepository
	logger *zap.Logger
}

func NewUserHandler(repo repository.UserRepository, logger *zap.Logger) *UserHandler {
	return &UserHandler{repo: repo, logger: logger}
}

// GetMe handles GET /v1/users/me
func (h *UserHandler) GetMe(c *gin.Context) {
	user, err := h.repo.GetByID(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	// a valid token for a profile the identity service has not synced yet
	if user == nil {
		respondError(c, h.logger, apperr.NotFound(apperr.CodeUserNotFound, "user not found"))
		return
	}
	c.JSON(http.StatusOK, user)
}
