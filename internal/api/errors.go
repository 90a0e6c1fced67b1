package api

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/huddle/internal/apperr"
	"github.com/lalith-99/huddle/internal/middleware"
	"github.com/lalith-99/huddle/internal/service"
	"go.uber.org/zap"
)

// errorBody is the JSON shape of every failed response:
//
//	{"error": {"code": "NOT_CHANNEL_MEMBER", "message": "...", "request_id": "..."}}
type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// respondError renders err with the status of its kind. Anything that is
// not an *apperr.Error becomes a 500 without its detail.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	e, ok := apperr.As(err)
	if !ok {
		e = apperr.Internal(err)
	}
	if e.Kind == apperr.KindInternal {
		logger.Error("request failed",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.String("route", c.FullPath()),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(e.Kind.Status(), gin.H{"error": errorBody{
		Code:      e.Code,
		Message:   e.Message,
		RequestID: middleware.GetRequestID(c),
	}})
}

func invalidBody(err error) error {
	return apperr.InvalidInput(apperr.CodeInvalidBody, "malformed request body: "+err.Error())
}

func actor(c *gin.Context) service.Actor {
	return service.Actor{UserID: middleware.GetUserID(c)}
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperr.InvalidInput(apperr.CodeInvalidID, "invalid "+name)
	}
	return id, nil
}

func messageIDParam(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, apperr.InvalidInput(apperr.CodeInvalidID, "invalid message id")
	}
	return id, nil
}

// optionalInt64 parses an optional positive query parameter.
func optionalInt64(c *gin.Context, name, code string) (*int64, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 1 {
		return nil, apperr.InvalidInput(code, "invalid "+name)
	}
	return &v, nil
}
