package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/lalith-99/huddle/internal/apperr"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/repository"
	"github.com/lalith-99/huddle/internal/repository/memory"
	"go.uber.org/zap"
)

type recorder struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *recorder) Notify(_ context.Context, ev models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) kinds() []models.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.EventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func (r *recorder) count(kind models.EventKind) int {
	n := 0
	for _, k := range r.kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

type fixture struct {
	store   *repository.Store
	state   *memory.State
	msgs    *Messaging
	chans   *Channels
	events  *recorder
	ws      uuid.UUID
	alice   Actor // workspace creator, owns #general
	bob     Actor // workspace member, MEMBER of #general
	carol   Actor // workspace member, not in #general
	general *models.Channel
	ctx     context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, state := memory.NewStore()
	ev := &recorder{}
	f := &fixture{
		store:  store,
		state:  state,
		msgs:   NewMessaging(store, ev, DefaultLimits(), zap.NewNop()),
		chans:  NewChannels(store, ev, DefaultLimits(), zap.NewNop()),
		events: ev,
		alice:  Actor{UserID: uuid.New()},
		bob:    Actor{UserID: uuid.New()},
		carol:  Actor{UserID: uuid.New()},
		ctx:    context.Background(),
	}
	state.PutUser(models.User{ID: f.alice.UserID, DisplayName: "Alice"})

	ws, err := store.Workspaces.Create(f.ctx, "acme", f.alice.UserID)
	if err != nil {
		t.Fatalf("create workspace: %v", err)
	}
	f.ws = ws.ID
	for _, a := range []Actor{f.bob, f.carol} {
		if err := store.Workspaces.AddMember(f.ctx, ws.ID, a.UserID); err != nil {
			t.Fatalf("add workspace member: %v", err)
		}
	}
	f.general = f.mustChannel(t, f.alice, "general", models.ChannelPublic)
	if _, _, err := f.chans.JoinChannel(f.ctx, f.bob, f.general.ID); err != nil {
		t.Fatalf("bob join: %v", err)
	}
	f.events.events = nil
	return f
}

func (f *fixture) mustChannel(t *testing.T, owner Actor, name string, typ models.ChannelType) *models.Channel {
	t.Helper()
	ch, err := f.chans.CreateChannel(f.ctx, owner, f.ws, name, typ)
	if err != nil {
		t.Fatalf("create channel %s: %v", name, err)
	}
	return ch
}

func (f *fixture) mustSend(t *testing.T, a Actor, ch uuid.UUID, content string) *models.Message {
	t.Helper()
	m, err := f.msgs.SendMessage(f.ctx, a, SendMessageInput{ChannelID: ch, Content: content})
	if err != nil {
		t.Fatalf("send %q: %v", content, err)
	}
	return m
}

func wantCode(t *testing.T, err error, kind apperr.Kind, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s/%s, got nil", kind, code)
	}
	e, ok := apperr.As(err)
	if !ok {
		t.Fatalf("expected *apperr.Error, got %T: %v", err, err)
	}
	if e.Kind != kind || e.Code != code {
		t.Fatalf("got %s/%s (%v), want %s/%s", e.Kind, e.Code, err, kind, code)
	}
}

func TestOwnerCannotLeaveButMemberCan(t *testing.T) {
	f := newFixture(t)

	err := f.chans.LeaveChannel(f.ctx, f.alice, f.general.ID)
	wantCode(t, err, apperr.KindConflict, apperr.CodeOwnerCannotLeave)

	if err := f.chans.LeaveChannel(f.ctx, f.bob, f.general.ID); err != nil {
		t.Fatalf("bob leave: %v", err)
	}
	m, _ := f.store.Members.Get(f.ctx, f.general.ID, f.bob.UserID)
	if m != nil {
		t.Fatal("bob's membership row still present")
	}
	if f.events.count(models.EventMemberLeft) != 1 {
		t.Fatalf("events = %v", f.events.kinds())
	}
}

func TestOwnerIsImmutable(t *testing.T) {
	f := newFixture(t)
	if _, err := f.chans.ChangeRole(f.ctx, f.alice, f.general.ID, f.bob.UserID, "admin"); err != nil {
		t.Fatalf("promote bob: %v", err)
	}

	err := f.chans.RemoveMember(f.ctx, f.bob, f.general.ID, f.alice.UserID)
	wantCode(t, err, apperr.KindConflict, apperr.CodeOwnerImmutable)
	_, err = f.chans.ChangeRole(f.ctx, f.bob, f.general.ID, f.alice.UserID, "member")
	wantCode(t, err, apperr.KindConflict, apperr.CodeOwnerImmutable)
	_, err = f.chans.ChangeRole(f.ctx, f.bob, f.general.ID, f.bob.UserID, "owner")
	wantCode(t, err, apperr.KindInvalidInput, apperr.CodeInvalidRole)

	members, _ := f.chans.ListMembers(f.ctx, f.alice, f.general.ID)
	owners := 0
	for _, m := range members {
		if m.Role == models.RoleOwner {
			owners++
		}
	}
	if owners != 1 {
		t.Fatalf("owners = %d, want 1", owners)
	}
}

func TestMemberCannotManageMembers(t *testing.T) {
	f := newFixture(t)
	if _, err := f.chans.AddMember(f.ctx, f.alice, f.general.ID, f.carol.UserID, ""); err != nil {
		t.Fatalf("add carol: %v", err)
	}
	err := f.chans.RemoveMember(f.ctx, f.bob, f.general.ID, f.carol.UserID)
	wantCode(t, err, apperr.KindForbidden, apperr.CodeInsufficientRole)

	if err := f.chans.RemoveMember(f.ctx, f.alice, f.general.ID, f.carol.UserID); err != nil {
		t.Fatalf("owner removes carol: %v", err)
	}
	if f.events.count(models.EventMemberRemoved) != 1 {
		t.Fatalf("events = %v", f.events.kinds())
	}
}

func TestConcurrentSelfDemotionsKeepOneAdmin(t *testing.T) {
	f := newFixture(t)
	ch, err := f.store.Channels.Create(f.ctx, models.Channel{WorkspaceID: f.ws, Name: "ops", Type: models.ChannelPrivate, CreatedBy: f.alice.UserID})
	if err != nil {
		t.Fatal(err)
	}
	// a channel whose owner row is gone, administered by two ADMINs
	if _, err := f.store.Members.Apply(f.ctx, repository.MemberMutation{ChannelID: ch.ID, UserID: f.alice.UserID, Remove: true}, nil); err != nil {
		t.Fatal(err)
	}
	for _, a := range []Actor{f.bob, f.carol} {
		if _, err := f.store.Members.Add(f.ctx, models.ChannelMember{ChannelID: ch.ID, UserID: a.UserID, Role: models.RoleAdmin}); err != nil {
			t.Fatal(err)
		}
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, a := range []Actor{f.bob, f.carol} {
		wg.Add(1)
		go func(i int, a Actor) {
			defer wg.Done()
			_, errs[i] = f.chans.ChangeRole(f.ctx, a, ch.ID, a.UserID, "member")
		}(i, a)
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			wantCode(t, err, apperr.KindConflict, apperr.CodeLastAdmin)
			failed++
		}
	}
	if failed != 1 {
		t.Fatalf("failed demotions = %d, want exactly 1 (%v)", failed, errs)
	}
	members, _ := f.store.Members.List(f.ctx, ch.ID)
	admins := 0
	for _, m := range members {
		if m.Role.CanAdminister() {
			admins++
		}
	}
	if admins != 1 {
		t.Fatalf("admins = %d, want 1", admins)
	}
}

func TestPinIsIdempotentAndNotAuthorRestricted(t *testing.T) {
	f := newFixture(t)
	m := f.mustSend(t, f.alice, f.general.ID, "ship it")

	for i := 0; i < 2; i++ {
		got, err := f.msgs.PinMessage(f.ctx, f.bob, m.ID)
		if err != nil {
			t.Fatalf("pin #%d: %v", i+1, err)
		}
		if !got.IsPinned {
			t.Fatalf("pin #%d: IsPinned = false", i+1)
		}
	}
	if n := f.events.count(models.EventMessagePinned); n != 1 {
		t.Fatalf("pinned events = %d, want 1", n)
	}
	pins, _ := f.msgs.ListPinned(f.ctx, f.carol, f.general.ID)
	if len(pins) != 1 || pins[0].ID != m.ID {
		t.Fatalf("pins = %+v", pins)
	}

	for i := 0; i < 2; i++ {
		got, err := f.msgs.UnpinMessage(f.ctx, f.alice, m.ID)
		if err != nil || got.IsPinned {
			t.Fatalf("unpin #%d: %+v, %v", i+1, got, err)
		}
	}
	if n := f.events.count(models.EventMessageUnpinned); n != 1 {
		t.Fatalf("unpinned events = %d, want 1", n)
	}

	_, err := f.msgs.PinMessage(f.ctx, f.carol, m.ID)
	wantCode(t, err, apperr.KindForbidden, apperr.CodeNotChannelMember)
}

func TestNonAuthorCannotEditOrDelete(t *testing.T) {
	f := newFixture(t)
	m := f.mustSend(t, f.alice, f.general.ID, "hello")

	_, err := f.msgs.EditMessage(f.ctx, f.bob, m.ID, "hijacked")
	wantCode(t, err, apperr.KindForbidden, apperr.CodeNotMessageAuthor)
	err = f.msgs.DeleteMessage(f.ctx, f.bob, m.ID)
	wantCode(t, err, apperr.KindForbidden, apperr.CodeNotMessageAuthor)

	if _, err := f.msgs.PinMessage(f.ctx, f.bob, m.ID); err != nil {
		t.Fatalf("bob pin: %v", err)
	}
}

func TestEditTwiceStaysEdited(t *testing.T) {
	f := newFixture(t)
	m := f.mustSend(t, f.alice, f.general.ID, "draft")
	if m.IsEdited {
		t.Fatal("new message marked edited")
	}
	for _, content := range []string{"final", "final"} {
		got, err := f.msgs.EditMessage(f.ctx, f.alice, m.ID, content)
		if err != nil {
			t.Fatalf("edit: %v", err)
		}
		if !got.IsEdited || got.Content != content {
			t.Fatalf("after edit: %+v", got)
		}
	}
	if n := f.events.count(models.EventMessageUpdated); n != 2 {
		t.Fatalf("updated events = %d, want 2", n)
	}
}

func TestSendValidation(t *testing.T) {
	f := newFixture(t)
	other := f.mustChannel(t, f.alice, "random", models.ChannelPublic)
	root := f.mustSend(t, f.alice, other.ID, "elsewhere")

	long := strings.Repeat("x", DefaultLimits().MaxContentLength+1)
	tests := []struct {
		name string
		in   SendMessageInput
		kind apperr.Kind
		code string
	}{
		{"empty", SendMessageInput{Content: "   "}, apperr.KindInvalidInput, apperr.CodeEmptyContent},
		{"too long", SendMessageInput{Content: long}, apperr.KindInvalidInput, apperr.CodeContentTooLong},
		{"system type", SendMessageInput{Content: "x", Type: models.MessageSystem}, apperr.KindInvalidInput, apperr.CodeInvalidMessageType},
		{"bad attachments", SendMessageInput{Content: "x", Attachments: []byte("{oops")}, apperr.KindInvalidInput, apperr.CodeInvalidAttachments},
		{"foreign thread", SendMessageInput{Content: "x", ThreadID: &root.ID}, apperr.KindInvalidInput, apperr.CodeInvalidThread},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.in.ChannelID = f.general.ID
			_, err := f.msgs.SendMessage(f.ctx, f.alice, tt.in)
			wantCode(t, err, tt.kind, tt.code)
		})
	}

	page, err := f.msgs.ListMessages(f.ctx, f.alice, ListMessagesInput{ChannelID: f.general.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Messages) != 0 {
		t.Fatalf("rejected sends created %d rows", len(page.Messages))
	}
	if f.events.count(models.EventMessageCreated) != 1 {
		t.Fatalf("events = %v", f.events.kinds())
	}
}

func TestNonMemberCannotSend(t *testing.T) {
	f := newFixture(t)
	_, err := f.msgs.SendMessage(f.ctx, f.carol, SendMessageInput{ChannelID: f.general.ID, Content: "hi"})
	wantCode(t, err, apperr.KindForbidden, apperr.CodeNotChannelMember)

	secret := f.mustChannel(t, f.alice, "secret", models.ChannelPrivate)
	_, err = f.msgs.SendMessage(f.ctx, f.bob, SendMessageInput{ChannelID: secret.ID, Content: "hi"})
	wantCode(t, err, apperr.KindNotFound, apperr.CodeChannelNotFound)
}

func TestPaginationHasNoGapsOrOverlap(t *testing.T) {
	f := newFixture(t)
	const total, size = 7, 3
	for i := 0; i < total; i++ {
		f.mustSend(t, f.alice, f.general.ID, "m")
	}

	seen := map[int64]bool{}
	var cursor *int64
	var sizes []int
	for {
		page, err := f.msgs.ListMessages(f.ctx, f.bob, ListMessagesInput{ChannelID: f.general.ID, Cursor: cursor, Limit: size})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		sizes = append(sizes, len(page.Messages))
		for i, m := range page.Messages {
			if seen[m.ID] {
				t.Fatalf("message %d returned twice", m.ID)
			}
			seen[m.ID] = true
			if i > 0 && m.ID > page.Messages[i-1].ID {
				t.Fatal("page is not newest first")
			}
		}
		if page.NextCursor == nil {
			break
		}
		cursor = page.NextCursor
	}
	if len(seen) != total {
		t.Fatalf("saw %d messages, want %d", len(seen), total)
	}
	if len(sizes) != 3 || sizes[0] != size || sizes[1] != size || sizes[2] != 1 {
		t.Fatalf("page sizes = %v, want [3 3 1]", sizes)
	}
}

func TestListMessagesThreadsAndCursors(t *testing.T) {
	f := newFixture(t)
	root := f.mustSend(t, f.alice, f.general.ID, "root")
	reply, err := f.msgs.SendMessage(f.ctx, f.bob, SendMessageInput{ChannelID: f.general.ID, Content: "reply", ThreadID: &root.ID})
	if err != nil {
		t.Fatalf("reply: %v", err)
	}

	roots, _ := f.msgs.ListMessages(f.ctx, f.bob, ListMessagesInput{ChannelID: f.general.ID})
	if len(roots.Messages) != 1 || roots.Messages[0].ID != root.ID {
		t.Fatalf("roots = %+v", roots.Messages)
	}
	thread, _ := f.msgs.ListMessages(f.ctx, f.bob, ListMessagesInput{ChannelID: f.general.ID, ThreadID: &root.ID})
	if len(thread.Messages) != 1 || thread.Messages[0].ID != reply.ID {
		t.Fatalf("thread = %+v", thread.Messages)
	}

	_, err = f.msgs.ListMessages(f.ctx, f.bob, ListMessagesInput{ChannelID: f.general.ID, Cursor: &reply.ID})
	wantCode(t, err, apperr.KindInvalidInput, apperr.CodeInvalidCursor)
	_, err = f.msgs.ListMessages(f.ctx, f.bob, ListMessagesInput{ChannelID: f.general.ID, Limit: -1})
	wantCode(t, err, apperr.KindInvalidInput, apperr.CodeInvalidLimit)

	// deleting the root leaves the reply addressable
	if err := f.msgs.DeleteMessage(f.ctx, f.alice, root.ID); err != nil {
		t.Fatalf("delete root: %v", err)
	}
	thread, err = f.msgs.ListMessages(f.ctx, f.bob, ListMessagesInput{ChannelID: f.general.ID, ThreadID: &root.ID})
	if err != nil || len(thread.Messages) != 1 {
		t.Fatalf("orphaned thread = %+v, %v", thread, err)
	}
}

func TestForwardIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	src := f.mustSend(t, f.alice, f.general.ID, "quarterly numbers")
	open := f.mustChannel(t, f.carol, "open", models.ChannelPublic)
	closed := f.mustChannel(t, f.carol, "closed", models.ChannelPrivate)

	_, err := f.msgs.ForwardMessage(f.ctx, f.bob, ForwardInput{MessageID: src.ID, TargetChannelIDs: []uuid.UUID{open.ID, closed.ID}})
	wantCode(t, err, apperr.KindNotFound, apperr.CodeChannelNotFound)

	for _, ch := range []*models.Channel{open, closed} {
		page, _ := f.msgs.ListMessages(f.ctx, f.carol, ListMessagesInput{ChannelID: ch.ID})
		if len(page.Messages) != 0 {
			t.Fatalf("%s got %d messages after a failed forward", ch.Name, len(page.Messages))
		}
	}

	_, err = f.msgs.ForwardMessage(f.ctx, f.bob, ForwardInput{MessageID: src.ID, TargetChannelIDs: []uuid.UUID{open.ID, uuid.New()}})
	wantCode(t, err, apperr.KindNotFound, apperr.CodeChannelNotFound)
	_, err = f.msgs.ForwardMessage(f.ctx, f.bob, ForwardInput{MessageID: src.ID})
	wantCode(t, err, apperr.KindInvalidInput, apperr.CodeNoTargets)
}

func TestForwardContent(t *testing.T) {
	f := newFixture(t)
	src := f.mustSend(t, f.alice, f.general.ID, "line one\nline two")
	target := f.mustChannel(t, f.bob, "team", models.ChannelPublic)

	out, err := f.msgs.ForwardMessage(f.ctx, f.bob, ForwardInput{
		MessageID:        src.ID,
		TargetChannelIDs: []uuid.UUID{target.ID, target.ID},
		Comment:          "fyi",
	})
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("copies = %d, want 1 after dedupe", len(out))
	}
	want := "---------- Forwarded message ----------\n" +
		"From: Alice (#general)\n" +
		"> line one\n" +
		"> line two\n" +
		"\n" +
		"fyi"
	if out[0].Content != want {
		t.Fatalf("content =\n%s\nwant\n%s", out[0].Content, want)
	}
	if out[0].AuthorID != f.bob.UserID || out[0].ForwardedFromID == nil || *out[0].ForwardedFromID != src.ID {
		t.Fatalf("copy = %+v", out[0])
	}
}

func TestReactions(t *testing.T) {
	f := newFixture(t)
	m := f.mustSend(t, f.alice, f.general.ID, "lunch?")

	r1, created, err := f.msgs.AddReaction(f.ctx, f.bob, m.ID, "🍕")
	if err != nil || !created {
		t.Fatalf("first add: %v created=%v", err, created)
	}
	r2, created, err := f.msgs.AddReaction(f.ctx, f.bob, m.ID, "🍕")
	if err != nil || created || r2.ID != r1.ID {
		t.Fatalf("second add: %+v created=%v err=%v", r2, created, err)
	}
	if n := f.events.count(models.EventReactionAdded); n != 1 {
		t.Fatalf("reaction.added events = %d, want 1", n)
	}

	err = f.msgs.RemoveReaction(f.ctx, f.alice, r1.ID)
	wantCode(t, err, apperr.KindForbidden, apperr.CodeNotReactionOwner)

	if err := f.msgs.RemoveReaction(f.ctx, f.bob, r1.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	err = f.msgs.RemoveReaction(f.ctx, f.bob, r1.ID)
	wantCode(t, err, apperr.KindNotFound, apperr.CodeReactionNotFound)

	rs, _ := f.msgs.ListReactions(f.ctx, f.alice, m.ID)
	if len(rs) != 0 {
		t.Fatalf("reactions left: %+v", rs)
	}
	if f.events.count(models.EventReactionRemoved) != 1 {
		t.Fatalf("events = %v", f.events.kinds())
	}
}

func TestReadStatus(t *testing.T) {
	f := newFixture(t)
	m := f.mustSend(t, f.alice, f.general.ID, "read me")

	st, err := f.msgs.GetReadStatus(f.ctx, f.bob, m.ID)
	if err != nil || st.IsRead() {
		t.Fatalf("initial status: %+v, %v", st, err)
	}
	for i := 0; i < 2; i++ {
		st, err = f.msgs.SetReadStatus(f.ctx, f.bob, m.ID, true)
		if err != nil {
			t.Fatal(err)
		}
		if !st.MarkedUnread || !st.ReadAt.Equal(models.UnreadSentinel) {
			t.Fatalf("mark unread #%d: %+v", i+1, st)
		}
	}
	st, _ = f.msgs.SetReadStatus(f.ctx, f.bob, m.ID, false)
	if !st.IsRead() {
		t.Fatalf("mark read: %+v", st)
	}
	got, _ := f.msgs.GetReadStatus(f.ctx, f.bob, m.ID)
	if !got.IsRead() {
		t.Fatalf("stored status: %+v", got)
	}
	// carol can view #general, so she may track read state there too
	if _, err := f.msgs.SetReadStatus(f.ctx, f.carol, m.ID, false); err != nil {
		t.Fatalf("carol: %v", err)
	}
	if len(f.events.kinds()) != 1 {
		t.Fatalf("read status was broadcast: %v", f.events.kinds())
	}
}

func TestDeleteMessageBroadcastsTombstone(t *testing.T) {
	f := newFixture(t)
	m := f.mustSend(t, f.alice, f.general.ID, "oops")
	if err := f.msgs.DeleteMessage(f.ctx, f.alice, m.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	last := f.events.events[len(f.events.events)-1]
	del, ok := last.Payload.(models.MessageDeleted)
	if last.Kind != models.EventMessageDeleted || !ok || del.ID != m.ID {
		t.Fatalf("last event = %+v", last)
	}
	err := f.msgs.DeleteMessage(f.ctx, f.alice, m.ID)
	wantCode(t, err, apperr.KindNotFound, apperr.CodeMessageNotFound)
}

func TestGetOrCreateDM(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.chans.GetOrCreateDM(f.ctx, f.alice, f.ws, f.alice.UserID)
	wantCode(t, err, apperr.KindInvalidInput, apperr.CodeSelfDM)
	_, _, err = f.chans.GetOrCreateDM(f.ctx, f.alice, f.ws, uuid.New())
	wantCode(t, err, apperr.KindNotFound, apperr.CodeUserNotFound)
	_, _, err = f.chans.GetOrCreateDM(f.ctx, Actor{UserID: uuid.New()}, f.ws, f.alice.UserID)
	wantCode(t, err, apperr.KindNotFound, apperr.CodeWorkspaceNotFound)

	const n = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = map[uuid.UUID]bool{}
		created int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from, to := f.alice, f.bob
			if i%2 == 1 {
				from, to = f.bob, f.alice
			}
			ch, c, err := f.chans.GetOrCreateDM(f.ctx, from, f.ws, to.UserID)
			if err != nil {
				t.Errorf("dm: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[ch.ID] = true
			if c {
				created++
			}
		}(i)
	}
	wg.Wait()
	if len(ids) != 1 || created != 1 {
		t.Fatalf("distinct DMs = %d, created = %d; want 1 and 1", len(ids), created)
	}

	var dm uuid.UUID
	for id := range ids {
		dm = id
	}
	members, _ := f.chans.ListMembers(f.ctx, f.alice, dm)
	if len(members) != 2 {
		t.Fatalf("dm members = %d", len(members))
	}
	for _, m := range members {
		if m.Role != models.RoleMember {
			t.Fatalf("dm member role = %s, want MEMBER", m.Role)
		}
	}
	err = f.chans.LeaveChannel(f.ctx, f.alice, dm)
	wantCode(t, err, apperr.KindForbidden, apperr.CodeDMMembershipFixed)
	_, _, err = f.chans.JoinChannel(f.ctx, f.carol, dm)
	wantCode(t, err, apperr.KindNotFound, apperr.CodeChannelNotFound)
}

func TestChannelsLifecycle(t *testing.T) {
	f := newFixture(t)
	_, err := f.chans.CreateChannel(f.ctx, f.alice, f.ws, " ", models.ChannelPublic)
	wantCode(t, err, apperr.KindInvalidInput, apperr.CodeInvalidName)
	_, err = f.chans.CreateChannel(f.ctx, f.alice, f.ws, "dm", models.ChannelDM)
	wantCode(t, err, apperr.KindInvalidInput, apperr.CodeInvalidChannelType)
	_, err = f.chans.CreateChannel(f.ctx, Actor{UserID: uuid.New()}, f.ws, "x", models.ChannelPublic)
	wantCode(t, err, apperr.KindNotFound, apperr.CodeWorkspaceNotFound)

	secret := f.mustChannel(t, f.alice, "secret", "private")
	if secret.Type != models.ChannelPrivate {
		t.Fatalf("type = %s", secret.Type)
	}
	_, _, err = f.chans.JoinChannel(f.ctx, f.bob, secret.ID)
	wantCode(t, err, apperr.KindNotFound, apperr.CodeChannelNotFound)

	list, _ := f.chans.ListChannels(f.ctx, f.bob, f.ws)
	if len(list) != 1 || list[0].ID != f.general.ID {
		t.Fatalf("bob sees %+v", list)
	}

	if _, err := f.chans.AddMember(f.ctx, f.alice, secret.ID, f.bob.UserID, "admin"); err != nil {
		t.Fatalf("add bob: %v", err)
	}
	_, err = f.chans.AddMember(f.ctx, f.alice, secret.ID, f.bob.UserID, "member")
	wantCode(t, err, apperr.KindConflict, apperr.CodeAlreadyMember)
	_, err = f.chans.AddMember(f.ctx, f.alice, secret.ID, uuid.New(), "member")
	wantCode(t, err, apperr.KindInvalidInput, apperr.CodeNotWorkspaceMember)

	list, _ = f.chans.ListChannels(f.ctx, f.bob, f.ws)
	if len(list) != 2 {
		t.Fatalf("bob sees %d channels after being added, want 2", len(list))
	}

	m, joined, err := f.chans.JoinChannel(f.ctx, f.bob, secret.ID)
	if err != nil || joined || m.Role != models.RoleAdmin {
		t.Fatalf("rejoin: %+v joined=%v err=%v", m, joined, err)
	}
}

type failingMessages struct {
	repository.MessageRepository
}

func (failingMessages) Create(context.Context, repository.NewMessage) (*models.Message, error) {
	return nil, errors.New("connection reset")
}

func TestStoreFailureIsInternal(t *testing.T) {
	f := newFixture(t)
	f.store.Messages = failingMessages{f.store.Messages}
	_, err := f.msgs.SendMessage(f.ctx, f.alice, SendMessageInput{ChannelID: f.general.ID, Content: "x"})
	wantCode(t, err, apperr.KindInternal, apperr.CodeInternal)
	if strings.Contains(err.(*apperr.Error).Message, "connection reset") {
		t.Fatal("internal cause leaked into the message")
	}
	if len(f.events.kinds()) != 0 {
		t.Fatal("failed send was broadcast")
	}
}

// revokingMessages removes a membership right before the batch is written,
// the way a concurrent RemoveMember would.
type revokingMessages struct {
	repository.MessageRepository
	revoke func()
}

func (r revokingMessages) CreateBatch(ctx context.Context, ms []repository.NewMessage) ([]models.Message, error) {
	r.revoke()
	return r.MessageRepository.CreateBatch(ctx, ms)
}

func TestForwardRechecksAccessAtWrite(t *testing.T) {
	f := newFixture(t)
	src := f.mustSend(t, f.alice, f.general.ID, "heads up")
	ops := f.mustChannel(t, f.alice, "ops", models.ChannelPrivate)
	if _, err := f.chans.AddMember(f.ctx, f.alice, ops.ID, f.bob.UserID, "MEMBER"); err != nil {
		t.Fatalf("add bob to ops: %v", err)
	}
	f.events.events = nil

	f.store.Messages = revokingMessages{
		MessageRepository: f.store.Messages,
		revoke: func() {
			_, err := f.store.Members.Apply(f.ctx, repository.MemberMutation{ChannelID: ops.ID, UserID: f.bob.UserID, Remove: true}, nil)
			if err != nil {
				t.Errorf("remove bob: %v", err)
			}
		},
	}
	_, err := f.msgs.ForwardMessage(f.ctx, f.bob, ForwardInput{MessageID: src.ID, TargetChannelIDs: []uuid.UUID{f.general.ID, ops.ID}})
	wantCode(t, err, apperr.KindNotFound, apperr.CodeChannelNotFound)

	for _, ch := range []*models.Channel{f.general, ops} {
		page, _ := f.msgs.ListMessages(f.ctx, f.alice, ListMessagesInput{ChannelID: ch.ID})
		for _, m := range page.Messages {
			if m.ForwardedFromID != nil {
				t.Fatalf("%s received a copy after access was revoked", ch.Name)
			}
		}
	}
	if len(f.events.kinds()) != 0 {
		t.Fatalf("failed forward was broadcast: %v", f.events.kinds())
	}
}
