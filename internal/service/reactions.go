package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lalith-99/huddle/internal/access"
	"github.com/lalith-99/huddle/internal/apperr"
	"github.com/lalith-99/huddle/internal/models"
)

const maxEmojiLength = 64

// AddReaction is idempotent per (message, user, emoji). created is false
// when the reaction already existed; only a new reaction is broadcast.
func (s *Messaging) AddReaction(ctx context.Context, actor Actor, messageID int64, emoji string) (*models.MessageReaction, bool, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || utf8.RuneCountInString(emoji) > maxEmojiLength {
		return nil, false, apperr.InvalidInput(apperr.CodeInvalidEmoji, "emoji is required")
	}
	msg, ch, subj, err := s.messageFor(ctx, actor, messageID)
	if err != nil {
		return nil, false, s.fail("add reaction", err)
	}
	if err := access.CanPost(subj, ch); err != nil {
		return nil, false, err
	}
	r, created, err := s.store.Reactions.Add(ctx, msg.ID, actor.UserID, emoji)
	if err != nil {
		return nil, false, s.fail("add reaction", err)
	}
	if created {
		s.notify(ctx, models.EventReactionAdded, msg.ChannelID, actor, *r)
	}
	return r, created, nil
}

// RemoveReaction deletes the actor's own reaction. Ownership is checked
// again by the delete itself, so a row that changed hands in between is
// left alone.
func (s *Messaging) RemoveReaction(ctx context.Context, actor Actor, reactionID uuid.UUID) error {
	r, err := s.store.Reactions.GetByID(ctx, reactionID)
	if err != nil {
		return s.fail("remove reaction", err)
	}
	if err := access.CanRemoveReaction(actor.UserID, r); err != nil {
		return err
	}
	msg, err := s.store.Messages.GetByID(ctx, r.MessageID)
	if err != nil {
		return s.fail("remove reaction", err)
	}
	if msg == nil {
		return apperr.NotFound(apperr.CodeReactionNotFound, "reaction not found")
	}

	deleted, err := s.store.Reactions.DeleteOwned(ctx, r.ID, actor.UserID)
	if err != nil {
		return s.fail("remove reaction", err)
	}
	if !deleted {
		current, err := s.store.Reactions.GetByID(ctx, r.ID)
		if err != nil {
			return s.fail("remove reaction", err)
		}
		return access.CanRemoveReaction(actor.UserID, current)
	}
	s.notify(ctx, models.EventReactionRemoved, msg.ChannelID, actor, *r)
	return nil
}

func (s *Messaging) ListReactions(ctx context.Context, actor Actor, messageID int64) ([]models.MessageReaction, error) {
	msg, _, _, err := s.messageFor(ctx, actor, messageID)
	if err != nil {
		return nil, s.fail("list reactions", err)
	}
	rs, err := s.store.Reactions.ListByMessage(ctx, msg.ID)
	if err != nil {
		return nil, s.fail("list reactions", err)
	}
	if rs == nil {
		rs = []models.MessageReaction{}
	}
	return rs, nil
}
