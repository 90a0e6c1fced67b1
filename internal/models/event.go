package models

import (
	"time"

	"github.com/google/uuid"
)

// EventKind names a state change pushed to channel subscribers.
type EventKind string

const (
	EventMessageCreated    EventKind = "message.created"
	EventMessageUpdated    EventKind = "message.updated"
	EventMessageDeleted    EventKind = "message.deleted"
	EventMessagePinned     EventKind = "message.pinned"
	EventMessageUnpinned   EventKind = "message.unpinned"
	EventReactionAdded     EventKind = "reaction.added"
	EventReactionRemoved   EventKind = "reaction.removed"
	EventMemberJoined      EventKind = "member.joined"
	EventMemberLeft        EventKind = "member.left"
	EventMemberRemoved     EventKind = "member.removed"
	EventMemberRoleChanged EventKind = "member.role_changed"
)

// Event is published after a mutation commits. Payload is one of the
// models in this package (Message, MessageReaction, ChannelMember,
// MessageDeleted) or, after crossing the Redis bus, its raw JSON.
type Event struct {
	Kind       EventKind `json:"kind"`
	ChannelID  uuid.UUID `json:"channel_id"`
	ActorID    uuid.UUID `json:"actor_id"`
	Payload    any       `json:"payload"`
	OccurredAt time.Time `json:"occurred_at"`
}

// MessageDeleted is the payload of message.deleted; the row itself is gone.
type MessageDeleted struct {
	ID        int64     `json:"id"`
	ChannelID uuid.UUID `json:"channel_id"`
	ThreadID  *int64    `json:"thread_id"`
}
