package api

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/huddle/internal/apperr"
	"github.com/lalith-99/huddle/internal/realtime"
	"github.com/lalith-99/huddle/internal/service"
	"go.uber.org/zap"
)

const maxSubscriptions = 100

// WSHandler upgrades to a websocket that streams the events of the
// channels named in the query.
type WSHandler struct {
	channels *service.Channels
	hub      *realtime.Hub
	logger   *zap.Logger
}

func NewWSHandler(channels *service.Channels, hub *realtime.Hub, logger *zap.Logger) *WSHandler {
	return &WSHandler{channels: channels, hub: hub, logger: logger}
}

// Subscribe handles GET /v1/ws?channel_id=...&channel_id=...
// Every channel must be viewable; one that is not fails the whole upgrade.
func (h *WSHandler) Subscribe(c *gin.Context) {
	raw := c.QueryArray("channel_id")
	if len(raw) == 0 || len(raw) > maxSubscriptions {
		respondError(c, h.logger, apperr.InvalidInput(apperr.CodeInvalidID, "between 1 and 100 channel_id values are required"))
		return
	}
	a := actor(c)
	seen := make(map[uuid.UUID]bool, len(raw))
	channels := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			respondError(c, h.logger, apperr.InvalidInput(apperr.CodeInvalidID, "invalid channel_id"))
			return
		}
		if seen[id] {
			continue
		}
		if _, err := h.channels.GetChannel(c.Request.Context(), a, id); err != nil {
			respondError(c, h.logger, err)
			return
		}
		seen[id] = true
		channels = append(channels, id)
	}

	if err := h.hub.Serve(c.Writer, c.Request, a.UserID, channels); err != nil {
		// the upgrader has already written the HTTP error
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
	}
}
