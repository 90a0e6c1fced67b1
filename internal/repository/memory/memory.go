// Package memory is an in-process implementation of every repository.
//
// All stores created from one State share a single mutex, so a multi-table
// operation (DM creation, channel + owner row, member mutation) is atomic
// the same way a Postgres transaction is. It backs the test suites and
// STORE_DRIVER=memory for local runs without a database.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/repository"
)

type memberKey struct {
	scope uuid.UUID
	user  uuid.UUID
}

type readKey struct {
	message int64
	user    uuid.UUID
}

type reactionKey struct {
	message int64
	user    uuid.UUID
	emoji   string
}

// State holds every table.
type State struct {
	mu sync.Mutex

	// now is replaceable so tests can force created_at ties.
	now func() time.Time

	workspaces   map[uuid.UUID]models.Workspace
	wsMembers    map[memberKey]models.WorkspaceMember
	users        map[uuid.UUID]models.User
	channels     map[uuid.UUID]models.Channel
	dmKeys       map[string]uuid.UUID
	members      map[memberKey]models.ChannelMember
	messages     map[int64]models.Message
	nextID       int64
	reactions    map[uuid.UUID]models.MessageReaction
	reactionKeys map[reactionKey]uuid.UUID
	readStatus   map[readKey]models.MessageReadStatus
}

func NewState() *State {
	return &State{
		now:          func() time.Time { return time.Now().UTC() },
		workspaces:   make(map[uuid.UUID]models.Workspace),
		wsMembers:    make(map[memberKey]models.WorkspaceMember),
		users:        make(map[uuid.UUID]models.User),
		channels:     make(map[uuid.UUID]models.Channel),
		dmKeys:       make(map[string]uuid.UUID),
		members:      make(map[memberKey]models.ChannelMember),
		messages:     make(map[int64]models.Message),
		reactions:    make(map[uuid.UUID]models.MessageReaction),
		reactionKeys: make(map[reactionKey]uuid.UUID),
		readStatus:   make(map[readKey]models.MessageReadStatus),
	}
}

// SetClock replaces the time source.
func (st *State) SetClock(now func() time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.now = now
}

// PutUser seeds a user profile. Users are owned by the identity service,
// so the repository itself is read-only.
func (st *State) PutUser(u models.User) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = st.now()
	}
	st.users[u.ID] = u
}

// NewStore returns a repository.Store whose stores all share one State.
func NewStore() (*repository.Store, *State) {
	st := NewState()
	return &repository.Store{
		Workspaces: &WorkspaceStore{st: st},
		Users:      &UserStore{st: st},
		Channels:   &ChannelStore{st: st},
		Members:    &MembershipStore{st: st},
		Messages:   &MessageStore{st: st},
		Reactions:  &ReactionStore{st: st},
		ReadStatus: &ReadStatusStore{st: st},
	}, st
}

// ---------- workspaces ----------

type WorkspaceStore struct{ st *State }

func (s *WorkspaceStore) Create(ctx context.Context, name string, createdBy uuid.UUID) (*models.Workspace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	now := s.st.now()
	ws := models.Workspace{ID: uuid.New(), Name: name, CreatedBy: createdBy, CreatedAt: now}
	s.st.workspaces[ws.ID] = ws
	s.st.wsMembers[memberKey{ws.ID, createdBy}] = models.WorkspaceMember{WorkspaceID: ws.ID, UserID: createdBy, JoinedAt: now}
	return &ws, nil
}

func (s *WorkspaceStore) GetByID(ctx context.Context, workspaceID uuid.UUID) (*models.Workspace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	ws, ok := s.st.workspaces[workspaceID]
	if !ok {
		return nil, nil
	}
	return &ws, nil
}

func (s *WorkspaceStore) AddMember(ctx context.Context, workspaceID, userID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if _, ok := s.st.workspaces[workspaceID]; !ok {
		return fmt.Errorf("add workspace member: workspace %s does not exist", workspaceID)
	}
	k := memberKey{workspaceID, userID}
	if _, ok := s.st.wsMembers[k]; !ok {
		s.st.wsMembers[k] = models.WorkspaceMember{WorkspaceID: workspaceID, UserID: userID, JoinedAt: s.st.now()}
	}
	return nil
}

func (s *WorkspaceStore) IsMember(ctx context.Context, workspaceID, userID uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	_, ok := s.st.wsMembers[memberKey{workspaceID, userID}]
	return ok, nil
}

// ---------- users ----------

type UserStore struct{ st *State }

func (s *UserStore) GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	u, ok := s.st.users[userID]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// ---------- channels ----------

type ChannelStore struct{ st *State }

func (s *ChannelStore) Create(ctx context.Context, ch models.Channel) (*models.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	ch.ID = uuid.New()
	ch.CreatedAt = s.st.now()
	ch.DMKey = nil
	s.st.channels[ch.ID] = ch
	s.st.members[memberKey{ch.ID, ch.CreatedBy}] = models.ChannelMember{
		ChannelID: ch.ID, UserID: ch.CreatedBy, Role: models.RoleOwner, JoinedAt: ch.CreatedAt,
	}
	return &ch, nil
}

func (s *ChannelStore) GetByID(ctx context.Context, channelID uuid.UUID) (*models.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	ch, ok := s.st.channels[channelID]
	if !ok {
		return nil, nil
	}
	return &ch, nil
}

func (s *ChannelStore) ListForUser(ctx context.Context, workspaceID, userID uuid.UUID) ([]models.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	out := make([]models.Channel, 0)
	for _, ch := range s.st.channels {
		if ch.WorkspaceID != workspaceID {
			continue
		}
		_, member := s.st.members[memberKey{ch.ID, userID}]
		if member || ch.Type == models.ChannelPublic {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() > out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *ChannelStore) GetOrCreateDM(ctx context.Context, workspaceID, a, b uuid.UUID) (*models.Channel, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	key := models.DMKey(a, b)

	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	if id, ok := s.st.dmKeys[workspaceID.String()+"/"+key]; ok {
		ch := s.st.channels[id]
		return &ch, false, nil
	}

	now := s.st.now()
	ch := models.Channel{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		Name:        key,
		Type:        models.ChannelDM,
		DMKey:       &key,
		CreatedBy:   a,
		CreatedAt:   now,
	}
	s.st.channels[ch.ID] = ch
	s.st.dmKeys[workspaceID.String()+"/"+key] = ch.ID
	for _, u := range []uuid.UUID{a, b} {
		s.st.members[memberKey{ch.ID, u}] = models.ChannelMember{
			ChannelID: ch.ID, UserID: u, Role: models.RoleMember, JoinedAt: now,
		}
	}
	return &ch, true, nil
}

// ---------- channel membership ----------

type MembershipStore struct{ st *State }

func (s *MembershipStore) Get(ctx context.Context, channelID, userID uuid.UUID) (*models.ChannelMember, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	m, ok := s.st.members[memberKey{channelID, userID}]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *MembershipStore) List(ctx context.Context, channelID uuid.UUID) ([]models.ChannelMember, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return s.st.channelMembers(channelID), nil
}

// channelMembers must be called with mu held.
func (st *State) channelMembers(channelID uuid.UUID) []models.ChannelMember {
	out := make([]models.ChannelMember, 0)
	for k, m := range st.members {
		if k.scope == channelID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].UserID.String() < out[j].UserID.String()
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

func (s *MembershipStore) Add(ctx context.Context, m models.ChannelMember) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	if _, ok := s.st.channels[m.ChannelID]; !ok {
		return false, fmt.Errorf("add member: channel %s does not exist", m.ChannelID)
	}
	k := memberKey{m.ChannelID, m.UserID}
	if _, ok := s.st.members[k]; ok {
		return false, nil
	}
	m.JoinedAt = s.st.now()
	s.st.members[k] = m
	return true, nil
}

func (s *MembershipStore) Apply(ctx context.Context, mut repository.MemberMutation, check repository.MemberCheck) (*models.ChannelMember, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	if check != nil {
		if err := check(s.st.channelMembers(mut.ChannelID)); err != nil {
			return nil, err
		}
	}
	k := memberKey{mut.ChannelID, mut.UserID}
	m, ok := s.st.members[k]
	if !ok {
		return nil, nil
	}
	if mut.Remove {
		delete(s.st.members, k)
		return &m, nil
	}
	m.Role = mut.NewRole
	s.st.members[k] = m
	return &m, nil
}

// ---------- messages ----------

type MessageStore struct{ st *State }

// insert must be called with mu held.
func (st *State) insertMessage(nm repository.NewMessage) models.Message {
	st.nextID++
	now := st.now()
	msg := models.Message{
		ID:              st.nextID,
		ChannelID:       nm.ChannelID,
		AuthorID:        nm.AuthorID,
		Content:         nm.Content,
		Type:            nm.Type,
		ThreadID:        nm.ThreadID,
		Attachments:     cloneRaw(nm.Attachments),
		ForwardedFromID: nm.ForwardedFromID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	st.messages[msg.ID] = msg
	return msg
}

func (s *MessageStore) Create(ctx context.Context, nm repository.NewMessage) (*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if _, ok := s.st.channels[nm.ChannelID]; !ok {
		return nil, fmt.Errorf("insert message: channel %s does not exist", nm.ChannelID)
	}
	msg := s.st.insertMessage(nm)
	return &msg, nil
}

// canView mirrors the SQL condition behind RequireViewer. Caller holds mu.
func (st *State) canView(ch models.Channel, userID uuid.UUID) bool {
	if _, ok := st.members[memberKey{ch.ID, userID}]; ok {
		return true
	}
	_, inWorkspace := st.wsMembers[memberKey{ch.WorkspaceID, userID}]
	return inWorkspace && ch.Type == models.ChannelPublic
}

func (s *MessageStore) CreateBatch(ctx context.Context, batch []repository.NewMessage) ([]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	for _, nm := range batch {
		ch, ok := s.st.channels[nm.ChannelID]
		if !ok {
			return nil, fmt.Errorf("insert message batch: channel %s does not exist", nm.ChannelID)
		}
		if nm.RequireViewer && !s.st.canView(ch, nm.AuthorID) {
			return nil, fmt.Errorf("insert message batch: channel %s: %w", nm.ChannelID, repository.ErrNotViewer)
		}
	}
	out := make([]models.Message, 0, len(batch))
	for _, nm := range batch {
		out = append(out, s.st.insertMessage(nm))
	}
	return out, nil
}

func (s *MessageStore) GetByID(ctx context.Context, messageID int64) (*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	msg, ok := s.st.messages[messageID]
	if !ok {
		return nil, nil
	}
	return &msg, nil
}

func (s *MessageStore) UpdateContent(ctx context.Context, messageID int64, content string) (*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	msg, ok := s.st.messages[messageID]
	if !ok {
		return nil, nil
	}
	msg.Content = content
	msg.IsEdited = true
	msg.UpdatedAt = s.st.now()
	s.st.messages[messageID] = msg
	return &msg, nil
}

func (s *MessageStore) SetPinned(ctx context.Context, messageID int64, pinned bool) (*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	msg, ok := s.st.messages[messageID]
	if !ok {
		return nil, nil
	}
	msg.IsPinned = pinned
	s.st.messages[messageID] = msg
	return &msg, nil
}

func (s *MessageStore) Delete(ctx context.Context, messageID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if _, ok := s.st.messages[messageID]; !ok {
		return false, nil
	}
	delete(s.st.messages, messageID)
	for id, r := range s.st.reactions {
		if r.MessageID == messageID {
			delete(s.st.reactions, id)
			delete(s.st.reactionKeys, reactionKey{r.MessageID, r.UserID, r.Emoji})
		}
	}
	for k := range s.st.readStatus {
		if k.message == messageID {
			delete(s.st.readStatus, k)
		}
	}
	return true, nil
}

// newerFirst is the listing order: created_at DESC, id DESC.
func newerFirst(a, b models.Message) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID > b.ID
	}
	return a.CreatedAt.After(b.CreatedAt)
}

func (s *MessageStore) List(ctx context.Context, f repository.MessageFilter) ([]models.Message, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	matches := func(m models.Message) bool {
		if m.ChannelID != f.ChannelID {
			return false
		}
		if f.ThreadID == nil {
			return m.ThreadID == nil
		}
		return m.ThreadID != nil && *m.ThreadID == *f.ThreadID
	}

	var cursor *models.Message
	if f.Cursor != nil {
		if c, ok := s.st.messages[*f.Cursor]; ok {
			if !matches(c) {
				return nil, repository.ErrInvalidCursor
			}
			cursor = &c
		}
	}

	out := make([]models.Message, 0)
	for _, m := range s.st.messages {
		if !matches(m) {
			continue
		}
		if f.Cursor != nil {
			if cursor != nil {
				// inclusive: keep the cursor row and everything after it
				if newerFirst(m, *cursor) {
					continue
				}
			} else if m.ID > *f.Cursor {
				continue
			}
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return newerFirst(out[i], out[j]) })
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MessageStore) ListPinned(ctx context.Context, channelID uuid.UUID) ([]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	out := make([]models.Message, 0)
	for _, m := range s.st.messages {
		if m.ChannelID == channelID && m.IsPinned {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return newerFirst(out[i], out[j]) })
	return out, nil
}

// ---------- reactions ----------

type ReactionStore struct{ st *State }

func (s *ReactionStore) Add(ctx context.Context, messageID int64, userID uuid.UUID, emoji string) (*models.MessageReaction, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	if _, ok := s.st.messages[messageID]; !ok {
		return nil, false, fmt.Errorf("insert reaction: message %d does not exist", messageID)
	}
	k := reactionKey{messageID, userID, emoji}
	if id, ok := s.st.reactionKeys[k]; ok {
		r := s.st.reactions[id]
		return &r, false, nil
	}
	r := models.MessageReaction{ID: uuid.New(), MessageID: messageID, UserID: userID, Emoji: emoji, CreatedAt: s.st.now()}
	s.st.reactions[r.ID] = r
	s.st.reactionKeys[k] = r.ID
	return &r, true, nil
}

func (s *ReactionStore) GetByID(ctx context.Context, reactionID uuid.UUID) (*models.MessageReaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	r, ok := s.st.reactions[reactionID]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *ReactionStore) DeleteOwned(ctx context.Context, reactionID, userID uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	r, ok := s.st.reactions[reactionID]
	if !ok || r.UserID != userID {
		return false, nil
	}
	delete(s.st.reactions, reactionID)
	delete(s.st.reactionKeys, reactionKey{r.MessageID, r.UserID, r.Emoji})
	return true, nil
}

func (s *ReactionStore) ListByMessage(ctx context.Context, messageID int64) ([]models.MessageReaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	out := make([]models.MessageReaction, 0)
	for _, r := range s.st.reactions {
		if r.MessageID == messageID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ---------- read status ----------

type ReadStatusStore struct{ st *State }

func (s *ReadStatusStore) Upsert(ctx context.Context, messageID int64, userID uuid.UUID, markedUnread bool, readAt time.Time) (*models.MessageReadStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if _, ok := s.st.messages[messageID]; !ok {
		return nil, fmt.Errorf("upsert read status: message %d does not exist", messageID)
	}
	rs := models.MessageReadStatus{MessageID: messageID, UserID: userID, MarkedUnread: markedUnread, ReadAt: readAt.UTC()}
	s.st.readStatus[readKey{messageID, userID}] = rs
	return &rs, nil
}

func (s *ReadStatusStore) Get(ctx context.Context, messageID int64, userID uuid.UUID) (*models.MessageReadStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	rs, ok := s.st.readStatus[readKey{messageID, userID}]
	if !ok {
		return nil, nil
	}
	return &rs, nil
}

func cloneRaw(b json.RawMessage) json.RawMessage {
	if b == nil {
		return nil
	}
	out := make(json.RawMessage, len(b))
	copy(out, b)
	return out
}
