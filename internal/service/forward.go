package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lalith-99/huddle/internal/access"
	"github.com/lalith-99/huddle/internal/apperr"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/repository"
)

const forwardHeader = "---------- Forwarded message ----------"

// ForwardInput copies MessageID into every target channel.
type ForwardInput struct {
	MessageID        int64
	TargetChannelIDs []uuid.UUID
	Comment          string
}

// ForwardMessage creates one copy per distinct target, or none: every
// target is checked before anything is written, and the copies go to the
// store as a single batch that re-checks view access as it inserts.
func (s *Messaging) ForwardMessage(ctx context.Context, actor Actor, in ForwardInput) ([]models.Message, error) {
	targets := dedupe(in.TargetChannelIDs)
	if len(targets) == 0 {
		return nil, apperr.InvalidInput(apperr.CodeNoTargets, "at least one target channel is required")
	}
	if len(targets) > s.limits.MaxForwardTargets {
		return nil, apperr.InvalidInput(apperr.CodeTooManyTargets,
			fmt.Sprintf("a message can be forwarded to at most %d channels", s.limits.MaxForwardTargets))
	}
	comment := strings.TrimSpace(in.Comment)
	if utf8.RuneCountInString(comment) > s.limits.MaxContentLength {
		return nil, apperr.InvalidInput(apperr.CodeContentTooLong, "comment is too long")
	}

	src, srcChannel, _, err := s.messageFor(ctx, actor, in.MessageID)
	if err != nil {
		return nil, s.fail("forward message", err)
	}

	for _, id := range targets {
		ch, err := s.store.Channels.GetByID(ctx, id)
		if err != nil {
			return nil, s.fail("forward message", err)
		}
		if ch == nil {
			return nil, apperr.NotFound(apperr.CodeChannelNotFound, "channel not found")
		}
		subj, err := s.subjectFor(ctx, actor, ch)
		if err != nil {
			return nil, s.fail("forward message", err)
		}
		if err := access.CanForwardTo(subj, ch); err != nil {
			return nil, err
		}
	}

	author, err := s.authorName(ctx, src.AuthorID)
	if err != nil {
		return nil, s.fail("forward message", err)
	}
	content := forwardedContent(src.Content, author, srcChannel, comment)

	batch := make([]repository.NewMessage, 0, len(targets))
	for _, id := range targets {
		batch = append(batch, repository.NewMessage{
			ChannelID:       id,
			AuthorID:        actor.UserID,
			Content:         content,
			Type:            src.Type,
			Attachments:     src.Attachments,
			ForwardedFromID: &src.ID,
			RequireViewer:   true,
		})
	}
	created, err := s.store.Messages.CreateBatch(ctx, batch)
	if errors.Is(err, repository.ErrNotViewer) {
		return nil, apperr.NotFound(apperr.CodeChannelNotFound, "channel not found")
	}
	if err != nil {
		return nil, s.fail("forward message", err)
	}
	for _, m := range created {
		s.notify(ctx, models.EventMessageCreated, m.ChannelID, actor, m)
	}
	return created, nil
}

func (s *Messaging) authorName(ctx context.Context, userID uuid.UUID) (string, error) {
	u, err := s.store.Users.GetByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("get author: %w", err)
	}
	if u == nil || strings.TrimSpace(u.DisplayName) == "" {
		return userID.String(), nil
	}
	return u.DisplayName, nil
}

// forwardedContent renders the header, the source, the quoted original
// and the optional comment.
func forwardedContent(original, author string, from *models.Channel, comment string) string {
	var b strings.Builder
	b.WriteString(forwardHeader)
	b.WriteString("\nFrom: ")
	b.WriteString(author)
	if from.Type == models.ChannelDM {
		b.WriteString(" (direct message)")
	} else {
		b.WriteString(" (#" + from.Name + ")")
	}
	for _, line := range strings.Split(original, "\n") {
		b.WriteString("\n> ")
		b.WriteString(line)
	}
	if comment != "" {
		b.WriteString("\n\n")
		b.WriteString(comment)
	}
	return b.String()
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
