package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/huddle/internal/middleware"
	"github.com/lalith-99/huddle/internal/observ"
	"github.com/lalith-99/huddle/internal/realtime"
	"github.com/lalith-99/huddle/internal/repository"
	"github.com/lalith-99/huddle/internal/service"
	"go.uber.org/zap"
)

// Deps is everything the HTTP surface needs. Health, Metrics and
// RateLimiter are optional.
type Deps struct {
	Channels    *service.Channels
	Messaging   *service.Messaging
	Users       repository.UserRepository
	Hub         *realtime.Hub
	JWTSecret   string
	Health      func(ctx context.Context) error
	Metrics     *observ.Metrics
	RateLimiter *middleware.RateLimiter
	Logger      *zap.Logger
}

// NewRouter builds the gin engine. /v1/health and /metrics are public;
// everything else under /v1 requires a valid JWT.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.AccessLog(d.Logger, d.Metrics), gin.Recovery())

	r.GET("/v1/health", func(c *gin.Context) {
		if d.Health != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := d.Health(ctx); err != nil {
				d.Logger.Warn("health check failed", zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	channels := NewChannelHandler(d.Channels, d.Logger)
	members := NewMembershipHandler(d.Channels, d.Logger)
	messages := NewMessageHandler(d.Messaging, d.Logger)
	reactions := NewReactionHandler(d.Messaging, d.Logger)
	reads := NewReadStatusHandler(d.Messaging, d.Logger)
	users := NewUserHandler(d.Users, d.Logger)

	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware(d.JWTSecret), d.RateLimiter.Middleware())

	v1.GET("/users/me", users.GetMe)

	v1.GET("/workspaces/:id/channels", channels.List)
	v1.POST("/workspaces/:id/channels", channels.Create)
	v1.POST("/workspaces/:id/dms", channels.OpenDM)

	v1.GET("/channels/:id", channels.GetByID)
	v1.POST("/channels/:id/join", members.Join)
	v1.POST("/channels/:id/leave", members.Leave)
	v1.GET("/channels/:id/members", members.ListMembers)
	v1.POST("/channels/:id/members", members.AddMember)
	v1.DELETE("/channels/:id/members/:userId", members.RemoveMember)
	v1.PATCH("/channels/:id/members/:userId", members.ChangeRole)
	v1.GET("/channels/:id/messages", messages.List)
	v1.POST("/channels/:id/messages", messages.Create)
	v1.GET("/channels/:id/pins", messages.ListPinned)

	v1.PATCH("/messages/:id", messages.Edit)
	v1.DELETE("/messages/:id", messages.Delete)
	v1.POST("/messages/:id/pin", messages.Pin)
	v1.DELETE("/messages/:id/pin", messages.Unpin)
	v1.POST("/messages/:id/forward", messages.Forward)
	v1.GET("/messages/:id/reactions", reactions.List)
	v1.POST("/messages/:id/reactions", reactions.Add)
	v1.PUT("/messages/:id/read-status", reads.Set)
	v1.GET("/messages/:id/read-status", reads.Get)

	v1.DELETE("/reactions/:id", reactions.Remove)

	if d.Hub != nil {
		ws := NewWSHandler(d.Channels, d.Hub, d.Logger)
		v1.GET("/ws", ws.Subscribe)
	}
	return r
}
