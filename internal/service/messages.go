package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lalith-99/huddle/internal/access"
	"github.com/lalith-99/huddle/internal/apperr"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/repository"
	"go.uber.org/zap"
)

// Messaging implements the message lifecycle, reactions, forwarding and
// read state.
type Messaging struct {
	core
}

func NewMessaging(store *repository.Store, notifier Notifier, limits Limits, logger *zap.Logger) *Messaging {
	return &Messaging{core: newCore(store, notifier, limits, logger)}
}

// ListMessagesInput selects one page. ThreadID nil lists root messages.
// Limit 0 means the default page size.
type ListMessagesInput struct {
	ChannelID uuid.UUID
	ThreadID  *int64
	Cursor    *int64
	Limit     int
}

// Page is one slice of history, newest first. NextCursor is nil on the
// last page.
type Page struct {
	Messages   []models.Message `json:"messages"`
	NextCursor *int64           `json:"next_cursor"`
}

func (s *Messaging) pageSize(limit int) (int, error) {
	switch {
	case limit < 0:
		return 0, apperr.InvalidInput(apperr.CodeInvalidLimit, "limit must be positive")
	case limit == 0:
		return s.limits.DefaultPageSize, nil
	case limit > s.limits.MaxPageSize:
		return s.limits.MaxPageSize, nil
	}
	return limit, nil
}

func (s *Messaging) ListMessages(ctx context.Context, actor Actor, in ListMessagesInput) (*Page, error) {
	size, err := s.pageSize(in.Limit)
	if err != nil {
		return nil, err
	}
	if in.ThreadID != nil && *in.ThreadID < 1 {
		return nil, apperr.InvalidInput(apperr.CodeInvalidThread, "thread id must be positive")
	}
	if in.Cursor != nil && *in.Cursor < 1 {
		return nil, apperr.InvalidInput(apperr.CodeInvalidCursor, "cursor must be a message id")
	}

	ch, subj, err := s.channelFor(ctx, actor, in.ChannelID)
	if err != nil {
		return nil, s.fail("list messages", err)
	}
	if err := access.CanView(subj, ch); err != nil {
		return nil, err
	}

	f := repository.MessageFilter{
		ChannelID: ch.ID,
		ThreadID:  in.ThreadID,
		Cursor:    in.Cursor,
		Limit:     size + 1,
	}
	if err := f.Validate(); err != nil {
		return nil, s.fail("list messages", err)
	}
	rows, err := s.store.Messages.List(ctx, f)
	if errors.Is(err, repository.ErrInvalidCursor) {
		return nil, apperr.InvalidInput(apperr.CodeInvalidCursor, "cursor does not belong to this channel or thread")
	}
	if err != nil {
		return nil, s.fail("list messages", err)
	}

	page := &Page{Messages: rows}
	if len(rows) > size {
		next := rows[size].ID
		page.Messages = rows[:size]
		page.NextCursor = &next
	}
	if page.Messages == nil {
		page.Messages = []models.Message{}
	}
	return page, nil
}

// SendMessageInput is a new message. Type defaults to TEXT.
type SendMessageInput struct {
	ChannelID   uuid.UUID
	Content     string
	Type        models.MessageType
	ThreadID    *int64
	Attachments json.RawMessage
}

func (s *Messaging) validContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", apperr.InvalidInput(apperr.CodeEmptyContent, "content is required")
	}
	if utf8.RuneCountInString(content) > s.limits.MaxContentLength {
		return "", apperr.InvalidInput(apperr.CodeContentTooLong,
			fmt.Sprintf("content is limited to %d characters", s.limits.MaxContentLength))
	}
	return content, nil
}

func validAttachments(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	if !json.Valid(raw) {
		return nil, apperr.InvalidInput(apperr.CodeInvalidAttachments, "attachments must be valid JSON")
	}
	return raw, nil
}

func (s *Messaging) SendMessage(ctx context.Context, actor Actor, in SendMessageInput) (*models.Message, error) {
	content, err := s.validContent(in.Content)
	if err != nil {
		return nil, err
	}
	typ := in.Type
	if typ == "" {
		typ = models.MessageText
	}
	// SYSTEM messages are written by the server, never by clients.
	if typ != models.MessageText && typ != models.MessageFile {
		return nil, apperr.InvalidInput(apperr.CodeInvalidMessageType, "type must be TEXT or FILE")
	}
	attachments, err := validAttachments(in.Attachments)
	if err != nil {
		return nil, err
	}

	ch, subj, err := s.channelFor(ctx, actor, in.ChannelID)
	if err != nil {
		return nil, s.fail("send message", err)
	}
	if err := access.CanPost(subj, ch); err != nil {
		return nil, err
	}

	if in.ThreadID != nil {
		parent, err := s.store.Messages.GetByID(ctx, *in.ThreadID)
		if err != nil {
			return nil, s.fail("send message", err)
		}
		if parent == nil || parent.ChannelID != ch.ID {
			return nil, apperr.InvalidInput(apperr.CodeInvalidThread, "thread root must be a message in this channel")
		}
	}

	msg, err := s.store.Messages.Create(ctx, repository.NewMessage{
		ChannelID:   ch.ID,
		AuthorID:    actor.UserID,
		Content:     content,
		Type:        typ,
		ThreadID:    in.ThreadID,
		Attachments: attachments,
	})
	if err != nil {
		return nil, s.fail("send message", err)
	}
	s.notify(ctx, models.EventMessageCreated, ch.ID, actor, *msg)
	return msg, nil
}

// EditMessage replaces the content and marks the message edited, even
// when the content is unchanged.
func (s *Messaging) EditMessage(ctx context.Context, actor Actor, messageID int64, content string) (*models.Message, error) {
	content, err := s.validContent(content)
	if err != nil {
		return nil, err
	}
	msg, _, _, err := s.messageFor(ctx, actor, messageID)
	if err != nil {
		return nil, s.fail("edit message", err)
	}
	if err := access.CanEditMessage(actor.UserID, msg); err != nil {
		return nil, err
	}
	updated, err := s.store.Messages.UpdateContent(ctx, msg.ID, content)
	if err != nil {
		return nil, s.fail("edit message", err)
	}
	if updated == nil {
		return nil, apperr.NotFound(apperr.CodeMessageNotFound, "message not found")
	}
	s.notify(ctx, models.EventMessageUpdated, updated.ChannelID, actor, *updated)
	return updated, nil
}

// DeleteMessage removes the message. Replies keep their thread id.
func (s *Messaging) DeleteMessage(ctx context.Context, actor Actor, messageID int64) error {
	msg, _, _, err := s.messageFor(ctx, actor, messageID)
	if err != nil {
		return s.fail("delete message", err)
	}
	if err := access.CanDeleteMessage(actor.UserID, msg); err != nil {
		return err
	}
	deleted, err := s.store.Messages.Delete(ctx, msg.ID)
	if err != nil {
		return s.fail("delete message", err)
	}
	if !deleted {
		return apperr.NotFound(apperr.CodeMessageNotFound, "message not found")
	}
	s.notify(ctx, models.EventMessageDeleted, msg.ChannelID, actor, models.MessageDeleted{
		ID:        msg.ID,
		ChannelID: msg.ChannelID,
		ThreadID:  msg.ThreadID,
	})
	return nil
}

func (s *Messaging) PinMessage(ctx context.Context, actor Actor, messageID int64) (*models.Message, error) {
	return s.setPinned(ctx, actor, messageID, true)
}

func (s *Messaging) UnpinMessage(ctx context.Context, actor Actor, messageID int64) (*models.Message, error) {
	return s.setPinned(ctx, actor, messageID, false)
}

// setPinned is idempotent: a message already in the wanted state is
// returned as is and no event goes out.
func (s *Messaging) setPinned(ctx context.Context, actor Actor, messageID int64, pinned bool) (*models.Message, error) {
	msg, ch, subj, err := s.messageFor(ctx, actor, messageID)
	if err != nil {
		return nil, s.fail("pin message", err)
	}
	if err := access.CanPost(subj, ch); err != nil {
		return nil, err
	}
	if msg.IsPinned == pinned {
		return msg, nil
	}
	updated, err := s.store.Messages.SetPinned(ctx, msg.ID, pinned)
	if err != nil {
		return nil, s.fail("pin message", err)
	}
	if updated == nil {
		return nil, apperr.NotFound(apperr.CodeMessageNotFound, "message not found")
	}
	kind := models.EventMessagePinned
	if !pinned {
		kind = models.EventMessageUnpinned
	}
	s.notify(ctx, kind, updated.ChannelID, actor, *updated)
	return updated, nil
}

func (s *Messaging) ListPinned(ctx context.Context, actor Actor, channelID uuid.UUID) ([]models.Message, error) {
	ch, subj, err := s.channelFor(ctx, actor, channelID)
	if err != nil {
		return nil, s.fail("list pinned", err)
	}
	if err := access.CanView(subj, ch); err != nil {
		return nil, err
	}
	pins, err := s.store.Messages.ListPinned(ctx, ch.ID)
	if err != nil {
		return nil, s.fail("list pinned", err)
	}
	if pins == nil {
		pins = []models.Message{}
	}
	return pins, nil
}
