package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/huddle/internal/models"
)

// Conventions shared by every implementation:
//
//   - context.Context first: the request's deadline cancels the query.
//   - Lookups return nil, nil when the row does not exist. Callers turn
//     that into a NotFound with the right code.
//   - Every mutation is one atomic unit (one statement or one transaction),
//     so a cancelled request never leaves half a change behind.

// ErrInvalidCursor is returned by MessageRepository.List when the cursor
// message exists but belongs to a different channel or thread.
var ErrInvalidCursor = errors.New("cursor does not belong to this listing")

// ErrNotViewer is returned by MessageRepository.CreateBatch when a message
// with RequireViewer set targets a channel its author can no longer view.
var ErrNotViewer = errors.New("author can no longer view the channel")

// WorkspaceRepository handles workspaces and who belongs to them.
type WorkspaceRepository interface {
	// Create inserts the workspace and makes createdBy its first member.
	Create(ctx context.Context, name string, createdBy uuid.UUID) (*models.Workspace, error)
	GetByID(ctx context.Context, workspaceID uuid.UUID) (*models.Workspace, error)
	// AddMember is idempotent.
	AddMember(ctx context.Context, workspaceID, userID uuid.UUID) error
	IsMember(ctx context.Context, workspaceID, userID uuid.UUID) (bool, error)
}

// UserRepository reads profiles owned by the identity service.
type UserRepository interface {
	GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
}

// ChannelRepository handles channels.
type ChannelRepository interface {
	// Create inserts a PUBLIC or PRIVATE channel and its single OWNER row
	// (ch.CreatedBy) in one transaction.
	Create(ctx context.Context, ch models.Channel) (*models.Channel, error)

	GetByID(ctx context.Context, channelID uuid.UUID) (*models.Channel, error)

	// ListForUser returns the workspace's channels the user is a member of
	// plus every PUBLIC channel, newest first.
	ListForUser(ctx context.Context, workspaceID, userID uuid.UUID) ([]models.Channel, error)

	// GetOrCreateDM returns the DM channel for the unordered pair {a, b},
	// creating it with both users as MEMBER if it does not exist. The
	// existence check and the insert are atomic: concurrent callers for
	// the same pair get the same channel. created reports whether this
	// call inserted it.
	GetOrCreateDM(ctx context.Context, workspaceID, a, b uuid.UUID) (ch *models.Channel, created bool, err error)
}

// MemberMutation is a removal (Remove) or a role change (NewRole) of
// UserID in ChannelID.
type MemberMutation struct {
	ChannelID uuid.UUID
	UserID    uuid.UUID
	Remove    bool
	NewRole   models.Role
}

// MemberCheck inspects a locked snapshot of a channel's members and
// returns a non-nil error to abort the mutation.
type MemberCheck func(snapshot []models.ChannelMember) error

// MembershipRepository handles who belongs to which channel.
type MembershipRepository interface {
	// Get returns the user's row, or nil, nil when not a member. Hot path:
	// called by almost every operation.
	Get(ctx context.Context, channelID, userID uuid.UUID) (*models.ChannelMember, error)

	// List returns all members of a channel, oldest first.
	List(ctx context.Context, channelID uuid.UUID) ([]models.ChannelMember, error)

	// Add inserts the row; added is false when the user already belonged
	// to the channel (the existing row is left untouched).
	Add(ctx context.Context, m models.ChannelMember) (added bool, err error)

	// Apply locks the channel's member rows, runs check against that
	// snapshot, and only if it passes removes or re-roles the member, all
	// inside one transaction. check's error is returned unchanged. The
	// returned row is the member after the change (or the removed row).
	Apply(ctx context.Context, mut MemberMutation, check MemberCheck) (*models.ChannelMember, error)
}

// NewMessage is the input to MessageRepository.Create.
type NewMessage struct {
	ChannelID       uuid.UUID
	AuthorID        uuid.UUID
	Content         string
	Type            models.MessageType
	ThreadID        *int64
	Attachments     json.RawMessage
	ForwardedFromID *int64

	// RequireViewer makes the insert conditional on AuthorID still being
	// able to view ChannelID at write time: a channel member, or a
	// workspace member when the channel is PUBLIC.
	RequireViewer bool
}

// MessageFilter selects one page of a channel's history.
//
// Exactly one of two modes applies: roots (ThreadID == nil, only messages
// with no thread) or the replies of thread *ThreadID. Results are ordered
// created_at DESC, id DESC. Cursor, when set, is inclusive: the listing
// starts at that message.
type MessageFilter struct {
	ChannelID uuid.UUID
	ThreadID  *int64
	Cursor    *int64
	// Limit is the number of rows to fetch. The pagination engine asks
	// for one more than the page size to detect further pages.
	Limit int
}

// Validate rejects filters that would produce an unbounded or
// meaningless query.
func (f MessageFilter) Validate() error {
	if f.ChannelID == uuid.Nil {
		return errors.New("message filter: channel id is required")
	}
	if f.Limit < 1 {
		return errors.New("message filter: limit must be positive")
	}
	if f.Cursor != nil && *f.Cursor < 1 {
		return ErrInvalidCursor
	}
	return nil
}

// MessageRepository handles chat message persistence.
type MessageRepository interface {
	// Create persists a message and returns it with ID and timestamps set.
	Create(ctx context.Context, m NewMessage) (*models.Message, error)

	// CreateBatch persists all messages or none. It fails with
	// ErrNotViewer if any RequireViewer message lost its access.
	CreateBatch(ctx context.Context, ms []NewMessage) ([]models.Message, error)

	GetByID(ctx context.Context, messageID int64) (*models.Message, error)

	// UpdateContent replaces the content and sets is_edited. Returns nil,
	// nil if the message no longer exists.
	UpdateContent(ctx context.Context, messageID int64, content string) (*models.Message, error)

	// SetPinned sets is_pinned. Returns nil, nil if the message no longer
	// exists.
	SetPinned(ctx context.Context, messageID int64, pinned bool) (*models.Message, error)

	// Delete removes the message. Replies are left in place. deleted is
	// false if it was already gone.
	Delete(ctx context.Context, messageID int64) (deleted bool, err error)

	// List returns up to f.Limit messages matching f. See MessageFilter.
	List(ctx context.Context, f MessageFilter) ([]models.Message, error)

	// ListPinned returns the channel's pinned messages, newest first.
	ListPinned(ctx context.Context, channelID uuid.UUID) ([]models.Message, error)
}

// ReactionRepository handles emoji reactions.
type ReactionRepository interface {
	// Add is idempotent per (message, user, emoji); created is false when
	// the reaction already existed.
	Add(ctx context.Context, messageID int64, userID uuid.UUID, emoji string) (r *models.MessageReaction, created bool, err error)

	GetByID(ctx context.Context, reactionID uuid.UUID) (*models.MessageReaction, error)

	// DeleteOwned deletes the reaction only if userID still owns it at
	// delete time.
	DeleteOwned(ctx context.Context, reactionID, userID uuid.UUID) (deleted bool, err error)

	ListByMessage(ctx context.Context, messageID int64) ([]models.MessageReaction, error)
}

// ReadStatusRepository tracks per-(message, user) read markers.
type ReadStatusRepository interface {
	// Upsert writes the marker; repeated identical calls converge.
	Upsert(ctx context.Context, messageID int64, userID uuid.UUID, markedUnread bool, readAt time.Time) (*models.MessageReadStatus, error)

	Get(ctx context.Context, messageID int64, userID uuid.UUID) (*models.MessageReadStatus, error)
}

// Store bundles every repository the services need.
type Store struct {
	Workspaces WorkspaceRepository
	Users      UserRepository
	Channels   ChannelRepository
	Members    MembershipRepository
	Messages   MessageRepository
	Reactions  ReactionRepository
	ReadStatus ReadStatusRepository
}
