// Package access decides whether an actor may perform an operation.
//
// Every function here is pure: it looks only at the values passed in and
// never reads or writes a store. Callers load the membership rows first and,
// for member changes, pass a snapshot taken under the store's row lock.
// A nil return means allowed; otherwise the *apperr.Error carries the
// reason code.
package access

import (
	"github.com/google/uuid"
	"github.com/lalith-99/huddle/internal/apperr"
	"github.com/lalith-99/huddle/internal/models"
)

// MinAdmins is the number of OWNER/ADMIN members a channel must keep.
const MinAdmins = 1

// Subject is the actor as seen by one channel.
type Subject struct {
	UserID      uuid.UUID
	InWorkspace bool
	// Membership is nil when the actor has no row in the channel.
	Membership *models.ChannelMember
}

func (s Subject) IsMember() bool { return s.Membership != nil }

func (s Subject) Role() models.Role {
	if s.Membership == nil {
		return ""
	}
	return s.Membership.Role
}

var errChannelNotFound = apperr.NotFound(apperr.CodeChannelNotFound, "channel not found")

// CanView allows members of any channel and workspace members on PUBLIC
// channels. A channel the actor cannot see is reported as not found.
func CanView(s Subject, ch *models.Channel) error {
	if ch == nil {
		return errChannelNotFound
	}
	if s.IsMember() {
		return nil
	}
	if s.InWorkspace && ch.Type == models.ChannelPublic {
		return nil
	}
	return errChannelNotFound
}

// CanPost covers sending, reacting, pinning and unpinning: any role will do,
// but the actor has to hold a membership row.
func CanPost(s Subject, ch *models.Channel) error {
	if err := CanView(s, ch); err != nil {
		return err
	}
	if !s.IsMember() {
		return apperr.Forbidden(apperr.CodeNotChannelMember, "join the channel first")
	}
	return nil
}

// CanEditMessage allows only the author.
func CanEditMessage(actorID uuid.UUID, msg *models.Message) error {
	if msg == nil {
		return apperr.NotFound(apperr.CodeMessageNotFound, "message not found")
	}
	if msg.AuthorID != actorID {
		return apperr.Forbidden(apperr.CodeNotMessageAuthor, "only the author can change this message")
	}
	return nil
}

// CanDeleteMessage allows only the author.
func CanDeleteMessage(actorID uuid.UUID, msg *models.Message) error {
	return CanEditMessage(actorID, msg)
}

// CanRemoveReaction allows only the reaction's owner.
func CanRemoveReaction(actorID uuid.UUID, r *models.MessageReaction) error {
	if r == nil {
		return apperr.NotFound(apperr.CodeReactionNotFound, "reaction not found")
	}
	if r.UserID != actorID {
		return apperr.Forbidden(apperr.CodeNotReactionOwner, "only the reacting user can remove a reaction")
	}
	return nil
}

// CanForwardTo requires workspace access plus membership, or a PUBLIC
// target. Inaccessible targets look exactly like missing ones.
func CanForwardTo(s Subject, ch *models.Channel) error {
	if ch == nil || !s.InWorkspace {
		return errChannelNotFound
	}
	return CanView(s, ch)
}

// CanAddMember lets OWNER/ADMIN invite others. DM membership never changes.
func CanAddMember(s Subject, ch *models.Channel, role models.Role) error {
	if err := CanView(s, ch); err != nil {
		return err
	}
	if ch.Type == models.ChannelDM {
		return apperr.Forbidden(apperr.CodeDMMembershipFixed, "direct message members cannot change")
	}
	if !s.IsMember() {
		return apperr.Forbidden(apperr.CodeNotChannelMember, "join the channel first")
	}
	if !s.Role().CanAdminister() {
		return apperr.Forbidden(apperr.CodeInsufficientRole, "only owners and admins can add members")
	}
	if role == models.RoleOwner || !role.Valid() {
		return apperr.InvalidInput(apperr.CodeInvalidRole, "role must be ADMIN or MEMBER")
	}
	return nil
}

// CountAdmins counts members able to administer the channel (OWNER+ADMIN).
func CountAdmins(members []models.ChannelMember) int {
	n := 0
	for _, m := range members {
		if m.Role.CanAdminister() {
			n++
		}
	}
	return n
}

// Find returns the row for userID in members, or nil.
func Find(members []models.ChannelMember, userID uuid.UUID) *models.ChannelMember {
	for i := range members {
		if members[i].UserID == userID {
			m := members[i]
			return &m
		}
	}
	return nil
}

// MemberChange describes a removal (Remove) or a role change (NewRole)
// of TargetID requested by ActorID.
type MemberChange struct {
	ActorID  uuid.UUID
	TargetID uuid.UUID
	Remove   bool
	NewRole  models.Role
}

// AuthorizeMemberChange evaluates a removal or role change against a
// consistent snapshot of the channel's members.
//
//   - the actor must be OWNER or ADMIN;
//   - the OWNER row is immutable;
//   - an ADMIN demoting or removing themself may not drop the OWNER+ADMIN
//     count below MinAdmins.
func AuthorizeMemberChange(c MemberChange, snapshot []models.ChannelMember) error {
	actor := Find(snapshot, c.ActorID)
	if actor == nil {
		return apperr.Forbidden(apperr.CodeNotChannelMember, "join the channel first")
	}
	if !actor.Role.CanAdminister() {
		return apperr.Forbidden(apperr.CodeInsufficientRole, "only owners and admins can manage members")
	}
	target := Find(snapshot, c.TargetID)
	if target == nil {
		return apperr.NotFound(apperr.CodeMemberNotFound, "member not found")
	}
	if target.Role == models.RoleOwner {
		return apperr.Conflict(apperr.CodeOwnerImmutable, "the channel owner cannot be removed or re-roled")
	}
	if !c.Remove && (c.NewRole == models.RoleOwner || !c.NewRole.Valid()) {
		return apperr.InvalidInput(apperr.CodeInvalidRole, "role must be ADMIN or MEMBER")
	}
	losesAdmin := c.Remove || !c.NewRole.CanAdminister()
	if target.UserID == actor.UserID && target.Role == models.RoleAdmin && losesAdmin {
		if CountAdmins(snapshot)-1 < MinAdmins {
			return apperr.Conflict(apperr.CodeLastAdmin, "the channel needs at least one admin")
		}
	}
	return nil
}

// CanLeave lets any member except the OWNER leave. An ADMIN leaving is
// subject to the same MinAdmins rule as a self-demotion.
func CanLeave(userID uuid.UUID, snapshot []models.ChannelMember) error {
	m := Find(snapshot, userID)
	if m == nil {
		return apperr.NotFound(apperr.CodeMemberNotFound, "not a member of this channel")
	}
	switch m.Role {
	case models.RoleOwner:
		return apperr.Conflict(apperr.CodeOwnerCannotLeave, "the channel owner cannot leave")
	case models.RoleAdmin:
		if CountAdmins(snapshot)-1 < MinAdmins {
			return apperr.Conflict(apperr.CodeLastAdmin, "the channel needs at least one admin")
		}
	}
	return nil
}
