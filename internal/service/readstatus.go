package service

import (
	"context"

	"github.com/lalith-99/huddle/internal/models"
)

// SetReadStatus marks a message read (now) or unread (the sentinel).
// Read markers are private to the user and are not broadcast.
func (s *Messaging) SetReadStatus(ctx context.Context, actor Actor, messageID int64, markUnread bool) (*models.MessageReadStatus, error) {
	msg, _, _, err := s.messageFor(ctx, actor, messageID)
	if err != nil {
		return nil, s.fail("set read status", err)
	}
	readAt := s.now()
	if markUnread {
		readAt = models.UnreadSentinel
	}
	st, err := s.store.ReadStatus.Upsert(ctx, msg.ID, actor.UserID, markUnread, readAt)
	if err != nil {
		return nil, s.fail("set read status", err)
	}
	return st, nil
}

// GetReadStatus returns the actor's marker. A message never marked is
// reported as unread.
func (s *Messaging) GetReadStatus(ctx context.Context, actor Actor, messageID int64) (*models.MessageReadStatus, error) {
	msg, _, _, err := s.messageFor(ctx, actor, messageID)
	if err != nil {
		return nil, s.fail("get read status", err)
	}
	st, err := s.store.ReadStatus.Get(ctx, msg.ID, actor.UserID)
	if err != nil {
		return nil, s.fail("get read status", err)
	}
	if st == nil {
		st = &models.MessageReadStatus{MessageID: msg.ID, UserID: actor.UserID, ReadAt: models.UnreadSentinel}
	}
	return st, nil
}
