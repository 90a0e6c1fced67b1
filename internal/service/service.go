// Package service holds the messaging core. Every exported operation takes
// the caller as an explicit Actor, validates its input, loads what the
// guard needs, performs one atomic store mutation and only then notifies
// subscribers.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/huddle/internal/access"
	"github.com/lalith-99/huddle/internal/apperr"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/repository"
	"go.uber.org/zap"
)

// Actor is the authenticated caller.
type Actor struct {
	UserID uuid.UUID
}

// Notifier receives committed state changes. Notify has no error return:
// delivery is best effort and must never fail the operation that caused it.
type Notifier interface {
	Notify(ctx context.Context, ev models.Event)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, models.Event) {}

// Limits bounds request sizes.
type Limits struct {
	DefaultPageSize   int
	MaxPageSize       int
	MaxContentLength  int
	MaxForwardTargets int
}

func DefaultLimits() Limits {
	return Limits{
		DefaultPageSize:   50,
		MaxPageSize:       100,
		MaxContentLength:  4000,
		MaxForwardTargets: 20,
	}
}

// core is shared by Messaging and Channels.
type core struct {
	store    *repository.Store
	notifier Notifier
	limits   Limits
	logger   *zap.Logger
	now      func() time.Time
}

func newCore(store *repository.Store, notifier Notifier, limits Limits, logger *zap.Logger) core {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return core{
		store:    store,
		notifier: notifier,
		limits:   limits,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// fail passes *apperr.Error values through and turns anything else into
// an Internal error after logging the cause.
func (c *core) fail(op string, err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	c.logger.Error(op+" failed", zap.Error(err))
	return apperr.Internal(fmt.Errorf("%s: %w", op, err))
}

func (c *core) notify(ctx context.Context, kind models.EventKind, channelID uuid.UUID, actor Actor, payload any) {
	c.notifier.Notify(ctx, models.Event{
		Kind:      kind,
		ChannelID: channelID,
		ActorID:   actor.UserID,
		Payload:   payload,
	})
}

// subjectFor loads the actor's standing in ch.
func (c *core) subjectFor(ctx context.Context, actor Actor, ch *models.Channel) (access.Subject, error) {
	s := access.Subject{UserID: actor.UserID}
	m, err := c.store.Members.Get(ctx, ch.ID, actor.UserID)
	if err != nil {
		return s, fmt.Errorf("get membership: %w", err)
	}
	s.Membership = m
	s.InWorkspace, err = c.store.Workspaces.IsMember(ctx, ch.WorkspaceID, actor.UserID)
	if err != nil {
		return s, fmt.Errorf("check workspace membership: %w", err)
	}
	return s, nil
}

// channelFor loads a channel and the actor's standing in it. A missing
// channel is reported as CHANNEL_NOT_FOUND; visibility is left to the
// caller's guard check.
func (c *core) channelFor(ctx context.Context, actor Actor, channelID uuid.UUID) (*models.Channel, access.Subject, error) {
	ch, err := c.store.Channels.GetByID(ctx, channelID)
	if err != nil {
		return nil, access.Subject{}, fmt.Errorf("get channel: %w", err)
	}
	if ch == nil {
		return nil, access.Subject{}, apperr.NotFound(apperr.CodeChannelNotFound, "channel not found")
	}
	s, err := c.subjectFor(ctx, actor, ch)
	if err != nil {
		return nil, access.Subject{}, err
	}
	return ch, s, nil
}

// messageFor loads a message the actor can see. Messages in channels the
// actor cannot view are reported as missing.
func (c *core) messageFor(ctx context.Context, actor Actor, messageID int64) (*models.Message, *models.Channel, access.Subject, error) {
	errMissing := apperr.NotFound(apperr.CodeMessageNotFound, "message not found")
	if messageID < 1 {
		return nil, nil, access.Subject{}, errMissing
	}
	msg, err := c.store.Messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, nil, access.Subject{}, fmt.Errorf("get message: %w", err)
	}
	if msg == nil {
		return nil, nil, access.Subject{}, errMissing
	}
	ch, s, err := c.channelFor(ctx, actor, msg.ChannelID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, nil, access.Subject{}, errMissing
		}
		return nil, nil, access.Subject{}, err
	}
	if access.CanView(s, ch) != nil {
		return nil, nil, access.Subject{}, errMissing
	}
	return msg, ch, s, nil
}

func (c *core) requireWorkspaceMember(ctx context.Context, workspaceID, userID uuid.UUID) error {
	ok, err := c.store.Workspaces.IsMember(ctx, workspaceID, userID)
	if err != nil {
		return fmt.Errorf("check workspace membership: %w", err)
	}
	if !ok {
		return apperr.NotFound(apperr.CodeWorkspaceNotFound, "workspace not found")
	}
	return nil
}
