package models

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Workspace is the tenant boundary. Every channel and every channel member
// lives inside exactly one workspace.
type Workspace struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedBy uuid.UUID `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// WorkspaceMember gates whether a user may act inside a workspace at all
// (open a DM, create or join channels).
type WorkspaceMember struct {
	WorkspaceID uuid.UUID `json:"workspace_id"`
	UserID      uuid.UUID `json:"user_id"`
	JoinedAt    time.Time `json:"joined_at"`
}

// User is the read-only profile the messaging core needs. Accounts and
// credentials are owned by the identity service.
type User struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// ChannelType decides who can see a channel.
type ChannelType string

const (
	ChannelPublic  ChannelType = "PUBLIC"
	ChannelPrivate ChannelType = "PRIVATE"
	ChannelDM      ChannelType = "DM"
)

func (t ChannelType) Valid() bool {
	switch t {
	case ChannelPublic, ChannelPrivate, ChannelDM:
		return true
	}
	return false
}

// Channel is a message container inside a workspace.
//
// DMKey is only set for DM channels. It is the sorted pair of participant
// ids and is unique per workspace, which is what makes lazy DM creation
// safe under concurrent requests.
type Channel struct {
	ID          uuid.UUID   `json:"id"`
	WorkspaceID uuid.UUID   `json:"workspace_id"`
	Name        string      `json:"name"`
	Type        ChannelType `json:"type"`
	DMKey       *string     `json:"-"`
	CreatedBy   uuid.UUID   `json:"created_by"`
	CreatedAt   time.Time   `json:"created_at"`
}

// DMKey returns the internal key for the DM between a and b. The order of
// the arguments does not matter.
func DMKey(a, b uuid.UUID) string {
	ids := []string{a.String(), b.String()}
	sort.Strings(ids)
	return strings.Join(ids, "")
}

// Role is a channel member's role. Strength: OWNER > ADMIN > MEMBER.
type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
)

// Rank returns the role strength; unknown roles rank 0.
func (r Role) Rank() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleAdmin:
		return 2
	case RoleMember:
		return 1
	}
	return 0
}

func (r Role) Valid() bool { return r.Rank() > 0 }

// CanAdminister reports whether the role may manage other members.
func (r Role) CanAdminister() bool { return r.Rank() >= RoleAdmin.Rank() }

// ParseRole accepts any casing ("admin", "Admin", "ADMIN").
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	return r, r.Valid()
}

// ChannelMember is one (user, channel) row carrying the user's role.
type ChannelMember struct {
	ChannelID uuid.UUID `json:"channel_id"`
	UserID    uuid.UUID `json:"user_id"`
	Role      Role      `json:"role"`
	JoinedAt  time.Time `json:"joined_at"`
}

// MessageType enumerates message kinds.
type MessageType string

const (
	MessageText   MessageType = "TEXT"
	MessageFile   MessageType = "FILE"
	MessageSystem MessageType = "SYSTEM"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageFile, MessageSystem:
		return true
	}
	return false
}

// Message is a single chat message.
//
// ID is a bigserial: it grows with insertion order, so (CreatedAt, ID) is a
// total order within a channel and ID alone is a usable cursor.
//
// ThreadID is nil for root messages. When the root of a thread is deleted
// its replies keep the dangling ThreadID.
type Message struct {
	ID              int64           `json:"id"`
	ChannelID       uuid.UUID       `json:"channel_id"`
	AuthorID        uuid.UUID       `json:"author_id"`
	Content         string          `json:"content"`
	Type            MessageType     `json:"type"`
	ThreadID        *int64          `json:"thread_id"`
	IsPinned        bool            `json:"is_pinned"`
	IsEdited        bool            `json:"is_edited"`
	Attachments     json.RawMessage `json:"attachments"`
	ForwardedFromID *int64          `json:"forwarded_from_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// IsRoot reports whether the message starts a thread rather than replying
// to one.
func (m *Message) IsRoot() bool { return m.ThreadID == nil }

// MessageReaction is an emoji reaction owned by the reacting user.
type MessageReaction struct {
	ID        uuid.UUID `json:"id"`
	MessageID int64     `json:"message_id"`
	UserID    uuid.UUID `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

// UnreadSentinel is stored as ReadAt for messages marked unread. It sorts
// before any real read time.
var UnreadSentinel = time.Unix(0, 0).UTC()

// MessageReadStatus is the per-(message, user) read marker.
type MessageReadStatus struct {
	MessageID    int64     `json:"message_id"`
	UserID       uuid.UUID `json:"user_id"`
	MarkedUnread bool      `json:"marked_unread"`
	ReadAt       time.Time `json:"read_at"`
}

// IsRead reports whether the marker counts as read.
func (s *MessageReadStatus) IsRead() bool {
	return !s.MarkedUnread && s.ReadAt.After(UnreadSentinel)
}
