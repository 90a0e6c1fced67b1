package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lalith-99/huddle/internal/access"
	"github.com/lalith-99/huddle/internal/apperr"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/repository"
	"go.uber.org/zap"
)

const maxChannelName = 80

// Channels implements channel creation, membership and DMs.
type Channels struct {
	core
}

func NewChannels(store *repository.Store, notifier Notifier, limits Limits, logger *zap.Logger) *Channels {
	return &Channels{core: newCore(store, notifier, limits, logger)}
}

// CreateChannel creates a named channel with the actor as its only OWNER.
func (s *Channels) CreateChannel(ctx context.Context, actor Actor, workspaceID uuid.UUID, name string, typ models.ChannelType) (*models.Channel, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxChannelName {
		return nil, apperr.InvalidInput(apperr.CodeInvalidName, "name must be 1 to 80 characters")
	}
	typ = models.ChannelType(strings.ToUpper(string(typ)))
	if typ == "" {
		typ = models.ChannelPublic
	}
	if typ != models.ChannelPublic && typ != models.ChannelPrivate {
		return nil, apperr.InvalidInput(apperr.CodeInvalidChannelType, "type must be PUBLIC or PRIVATE")
	}
	if err := s.requireWorkspaceMember(ctx, workspaceID, actor.UserID); err != nil {
		return nil, s.fail("create channel", err)
	}
	ch, err := s.store.Channels.Create(ctx, models.Channel{
		WorkspaceID: workspaceID,
		Name:        name,
		Type:        typ,
		CreatedBy:   actor.UserID,
	})
	if err != nil {
		return nil, s.fail("create channel", err)
	}
	return ch, nil
}

func (s *Channels) GetChannel(ctx context.Context, actor Actor, channelID uuid.UUID) (*models.Channel, error) {
	ch, subj, err := s.channelFor(ctx, actor, channelID)
	if err != nil {
		return nil, s.fail("get channel", err)
	}
	if err := access.CanView(subj, ch); err != nil {
		return nil, err
	}
	return ch, nil
}

// ListChannels returns the workspace's PUBLIC channels plus every channel
// the actor belongs to.
func (s *Channels) ListChannels(ctx context.Context, actor Actor, workspaceID uuid.UUID) ([]models.Channel, error) {
	if err := s.requireWorkspaceMember(ctx, workspaceID, actor.UserID); err != nil {
		return nil, s.fail("list channels", err)
	}
	chs, err := s.store.Channels.ListForUser(ctx, workspaceID, actor.UserID)
	if err != nil {
		return nil, s.fail("list channels", err)
	}
	if chs == nil {
		chs = []models.Channel{}
	}
	return chs, nil
}

// JoinChannel adds the actor to a PUBLIC channel as MEMBER. Joining a
// channel the actor already belongs to returns the existing row with
// joined false. PRIVATE and DM channels cannot be joined and, to a
// non-member, do not exist.
func (s *Channels) JoinChannel(ctx context.Context, actor Actor, channelID uuid.UUID) (*models.ChannelMember, bool, error) {
	ch, subj, err := s.channelFor(ctx, actor, channelID)
	if err != nil {
		return nil, false, s.fail("join channel", err)
	}
	if subj.IsMember() {
		return subj.Membership, false, nil
	}
	if err := access.CanView(subj, ch); err != nil {
		return nil, false, err
	}

	added, err := s.store.Members.Add(ctx, models.ChannelMember{ChannelID: ch.ID, UserID: actor.UserID, Role: models.RoleMember})
	if err != nil {
		return nil, false, s.fail("join channel", err)
	}
	m, err := s.store.Members.Get(ctx, ch.ID, actor.UserID)
	if err != nil {
		return nil, false, s.fail("join channel", err)
	}
	if m == nil {
		return nil, false, apperr.NotFound(apperr.CodeMemberNotFound, "membership vanished")
	}
	if added {
		s.notify(ctx, models.EventMemberJoined, ch.ID, actor, *m)
	}
	return m, added, nil
}

// AddMember lets an OWNER or ADMIN bring another workspace member in.
// An empty role means MEMBER.
func (s *Channels) AddMember(ctx context.Context, actor Actor, channelID, userID uuid.UUID, role string) (*models.ChannelMember, error) {
	r := models.RoleMember
	if strings.TrimSpace(role) != "" {
		var ok bool
		if r, ok = models.ParseRole(role); !ok {
			return nil, apperr.InvalidInput(apperr.CodeInvalidRole, "role must be ADMIN or MEMBER")
		}
	}
	ch, subj, err := s.channelFor(ctx, actor, channelID)
	if err != nil {
		return nil, s.fail("add member", err)
	}
	if err := access.CanAddMember(subj, ch, r); err != nil {
		return nil, err
	}
	inWorkspace, err := s.store.Workspaces.IsMember(ctx, ch.WorkspaceID, userID)
	if err != nil {
		return nil, s.fail("add member", err)
	}
	if !inWorkspace {
		return nil, apperr.InvalidInput(apperr.CodeNotWorkspaceMember, "user is not a member of this workspace")
	}

	added, err := s.store.Members.Add(ctx, models.ChannelMember{ChannelID: ch.ID, UserID: userID, Role: r})
	if err != nil {
		return nil, s.fail("add member", err)
	}
	if !added {
		return nil, apperr.Conflict(apperr.CodeAlreadyMember, "user is already a member of this channel")
	}
	m, err := s.store.Members.Get(ctx, ch.ID, userID)
	if err != nil {
		return nil, s.fail("add member", err)
	}
	if m == nil {
		return nil, apperr.NotFound(apperr.CodeMemberNotFound, "member not found")
	}
	s.notify(ctx, models.EventMemberJoined, ch.ID, actor, *m)
	return m, nil
}

func (s *Channels) ListMembers(ctx context.Context, actor Actor, channelID uuid.UUID) ([]models.ChannelMember, error) {
	ch, subj, err := s.channelFor(ctx, actor, channelID)
	if err != nil {
		return nil, s.fail("list members", err)
	}
	if err := access.CanView(subj, ch); err != nil {
		return nil, err
	}
	members, err := s.store.Members.List(ctx, ch.ID)
	if err != nil {
		return nil, s.fail("list members", err)
	}
	if members == nil {
		members = []models.ChannelMember{}
	}
	return members, nil
}

var errDMFixed = apperr.Forbidden(apperr.CodeDMMembershipFixed, "direct message members cannot change")

// visibleGroupChannel loads a channel the actor can see and rejects DMs,
// whose membership never changes.
func (s *Channels) visibleGroupChannel(ctx context.Context, actor Actor, channelID uuid.UUID) (*models.Channel, error) {
	ch, subj, err := s.channelFor(ctx, actor, channelID)
	if err != nil {
		return nil, err
	}
	if err := access.CanView(subj, ch); err != nil {
		return nil, err
	}
	if ch.Type == models.ChannelDM {
		return nil, errDMFixed
	}
	return ch, nil
}

// LeaveChannel removes the actor. The OWNER cannot leave, and the last
// ADMIN cannot leave a channel without an OWNER.
func (s *Channels) LeaveChannel(ctx context.Context, actor Actor, channelID uuid.UUID) error {
	ch, err := s.visibleGroupChannel(ctx, actor, channelID)
	if err != nil {
		return s.fail("leave channel", err)
	}
	m, err := s.store.Members.Apply(ctx,
		repository.MemberMutation{ChannelID: ch.ID, UserID: actor.UserID, Remove: true},
		func(snapshot []models.ChannelMember) error {
			return access.CanLeave(actor.UserID, snapshot)
		})
	if err != nil {
		return s.fail("leave channel", err)
	}
	if m == nil {
		return apperr.NotFound(apperr.CodeMemberNotFound, "not a member of this channel")
	}
	s.notify(ctx, models.EventMemberLeft, ch.ID, actor, *m)
	return nil
}

func (s *Channels) RemoveMember(ctx context.Context, actor Actor, channelID, userID uuid.UUID) error {
	m, err := s.changeMember(ctx, actor, channelID, access.MemberChange{
		ActorID:  actor.UserID,
		TargetID: userID,
		Remove:   true,
	})
	if err != nil {
		return s.fail("remove member", err)
	}
	s.notify(ctx, models.EventMemberRemoved, channelID, actor, *m)
	return nil
}

func (s *Channels) ChangeRole(ctx context.Context, actor Actor, channelID, userID uuid.UUID, role string) (*models.ChannelMember, error) {
	r, ok := models.ParseRole(role)
	if !ok || r == models.RoleOwner {
		return nil, apperr.InvalidInput(apperr.CodeInvalidRole, "role must be ADMIN or MEMBER")
	}
	m, err := s.changeMember(ctx, actor, channelID, access.MemberChange{
		ActorID:  actor.UserID,
		TargetID: userID,
		NewRole:  r,
	})
	if err != nil {
		return nil, s.fail("change role", err)
	}
	s.notify(ctx, models.EventMemberRoleChanged, channelID, actor, *m)
	return m, nil
}

// changeMember runs the guard against the locked member snapshot, so two
// concurrent demotions cannot both pass the last-admin check.
func (s *Channels) changeMember(ctx context.Context, actor Actor, channelID uuid.UUID, change access.MemberChange) (*models.ChannelMember, error) {
	ch, err := s.visibleGroupChannel(ctx, actor, channelID)
	if err != nil {
		return nil, err
	}
	m, err := s.store.Members.Apply(ctx,
		repository.MemberMutation{
			ChannelID: ch.ID,
			UserID:    change.TargetID,
			Remove:    change.Remove,
			NewRole:   change.NewRole,
		},
		func(snapshot []models.ChannelMember) error {
			return access.AuthorizeMemberChange(change, snapshot)
		})
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, apperr.NotFound(apperr.CodeMemberNotFound, "member not found")
	}
	return m, nil
}

// GetOrCreateDM returns the DM between the actor and userID, creating it
// on first use. created reports whether this call made it.
func (s *Channels) GetOrCreateDM(ctx context.Context, actor Actor, workspaceID, userID uuid.UUID) (*models.Channel, bool, error) {
	if userID == actor.UserID {
		return nil, false, apperr.InvalidInput(apperr.CodeSelfDM, "cannot open a direct message with yourself")
	}
	if err := s.requireWorkspaceMember(ctx, workspaceID, actor.UserID); err != nil {
		return nil, false, s.fail("get or create dm", err)
	}
	ok, err := s.store.Workspaces.IsMember(ctx, workspaceID, userID)
	if err != nil {
		return nil, false, s.fail("get or create dm", err)
	}
	if !ok {
		return nil, false, apperr.NotFound(apperr.CodeUserNotFound, "user not found in this workspace")
	}
	ch, created, err := s.store.Channels.GetOrCreateDM(ctx, workspaceID, actor.UserID, userID)
	if err != nil {
		return nil, false, s.fail("get or create dm", err)
	}
	return ch, created, nil
}
