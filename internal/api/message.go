package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/huddle/internal/apperr"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/service"
	"go.uber.org/zap"
)

type MessageHandler struct {
	svc    *service.Messaging
	logger *zap.Logger
}

func NewMessageHandler(svc *service.Messaging, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{svc: svc, logger: logger}
}

type createMessageRequest struct {
	Content     string          `json:"content"`
	Type        string          `json:"type"`
	ThreadID    *int64          `json:"thread_id"`
	Attachments json.RawMessage `json:"attachments"`
}

// Create handles POST /v1/channels/:id/messages
func (h *MessageHandler) Create(c *gin.Context) {
	channelID, err := uuidParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	var req createMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, invalidBody(err))
		return
	}
	msg, err := h.svc.SendMessage(c.Request.Context(), actor(c), service.SendMessageInput{
		ChannelID:   channelID,
		Content:     req.Content,
		Type:        models.MessageType(req.Type),
		ThreadID:    req.ThreadID,
		Attachments: req.Attachments,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// pageResponse carries the cursor as a string so clients never lose
// precision on large ids.
type pageResponse struct {
	Messages   []models.Message `json:"messages"`
	NextCursor *string          `json:"next_cursor"`
}

// List handles GET /v1/channels/:id/messages?cursor=123&limit=50&thread_id=7
//
//   - cursor: message id the page starts at (inclusive); from next_cursor.
//   - limit: page size, default 50, capped by MAX_PAGE_SIZE.
//   - thread_id: list the replies of that root instead of root messages.
func (h *MessageHandler) List(c *gin.Context) {
	channelID, err := uuidParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	cursor, err := optionalInt64(c, "cursor", apperr.CodeInvalidCursor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	threadID, err := optionalInt64(c, "thread_id", apperr.CodeInvalidThread)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	limit := 0
	if l := c.Query("limit"); l != "" {
		limit, err = strconv.Atoi(l)
		if err != nil || limit < 1 {
			respondError(c, h.logger, apperr.InvalidInput(apperr.CodeInvalidLimit, "invalid limit"))
			return
		}
	}

	page, err := h.svc.ListMessages(c.Request.Context(), actor(c), service.ListMessagesInput{
		ChannelID: channelID,
		ThreadID:  threadID,
		Cursor:    cursor,
		Limit:     limit,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	resp := pageResponse{Messages: page.Messages}
	if page.NextCursor != nil {
		next := strconv.FormatInt(*page.NextCursor, 10)
		resp.NextCursor = &next
	}
	c.JSON(http.StatusOK, resp)
}

// ListPinned handles GET /v1/channels/:id/pins
func (h *MessageHandler) ListPinned(c *gin.Context) {
	channelID, err := uuidParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	pins, err := h.svc.ListPinned(c.Request.Context(), actor(c), channelID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, pins)
}

type editMessageRequest struct {
	Content string `json:"content"`
}

// Edit handles PATCH /v1/messages/:id
func (h *MessageHandler) Edit(c *gin.Context) {
	messageID, err := messageIDParam(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	var req editMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, invalidBody(err))
		return
	}
	msg, err := h.svc.EditMessage(c.Request.Context(), actor(c), messageID, req.Content)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// Delete handles DELETE /v1/messages/:id
func (h *MessageHandler) Delete(c *gin.Context) {
	messageID, err := messageIDParam(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if err := h.svc.DeleteMessage(c.Request.Context(), actor(c), messageID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Pin handles POST /v1/messages/:id/pin
func (h *MessageHandler) Pin(c *gin.Context) {
	h.setPinned(c, true)
}

// Unpin handles DELETE /v1/messages/:id/pin
func (h *MessageHandler) Unpin(c *gin.Context) {
	h.setPinned(c, false)
}

func (h *MessageHandler) setPinned(c *gin.Context, pinned bool) {
	messageID, err := messageIDParam(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	var msg *models.Message
	if pinned {
		msg, err = h.svc.PinMessage(c.Request.Context(), actor(c), messageID)
	} else {
		msg, err = h.svc.UnpinMessage(c.Request.Context(), actor(c), messageID)
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

type forwardRequest struct {
	TargetChannelIDs []uuid.UUID `json:"target_channel_ids"`
	Comment          string      `json:"comment"`
}

// Forward handles POST /v1/messages/:id/forward. Either every target gets
// a copy or none does.
func (h *MessageHandler) Forward(c *gin.Context) {
	messageID, err := messageIDParam(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	var req forwardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, invalidBody(err))
		return
	}
	created, err := h.svc.ForwardMessage(c.Request.Context(), actor(c), service.ForwardInput{
		MessageID:        messageID,
		TargetChannelIDs: req.TargetChannelIDs,
		Comment:          req.Comment,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}
