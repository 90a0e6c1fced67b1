package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/repository"
	"github.com/lalith-99/huddle/internal/repository/memory"
	"go.uber.org/zap"
)

// countingMembers records how often Get reaches the underlying store.
type countingMembers struct {
	repository.MembershipRepository
	gets int
}

func (c *countingMembers) Get(ctx context.Context, channelID, userID uuid.UUID) (*models.ChannelMember, error) {
	c.gets++
	return c.MembershipRepository.Get(ctx, channelID, userID)
}

func setup(t *testing.T) (*MembershipCache, *countingMembers, *miniredis.Miniredis, *models.Channel, uuid.UUID) {
	t.Helper()
	s := miniredis.RunT(t)
	rdb, err := NewRedisClient(context.Background(), "redis://"+s.Addr())
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })

	store, _ := memory.NewStore()
	ctx := context.Background()
	owner := uuid.New()
	ws, _ := store.Workspaces.Create(ctx, "acme", owner)
	ch, err := store.Channels.Create(ctx, models.Channel{WorkspaceID: ws.ID, Name: "general", Type: models.ChannelPublic, CreatedBy: owner})
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}

	counting := &countingMembers{MembershipRepository: store.Members}
	return NewMembershipCache(counting, rdb, 0, zap.NewNop()), counting, s, ch, owner
}

func TestGetIsServedFromCache(t *testing.T) {
	c, counting, _, ch, owner := setup(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		m, err := c.Get(ctx, ch.ID, owner)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if m == nil || m.Role != models.RoleOwner {
			t.Fatalf("Get = %+v, want OWNER", m)
		}
	}
	if counting.gets != 1 {
		t.Fatalf("store gets = %d, want 1", counting.gets)
	}
}

func TestNegativeEntryDroppedOnAdd(t *testing.T) {
	c, counting, _, ch, _ := setup(t)
	ctx := context.Background()
	bob := uuid.New()

	if m, _ := c.Get(ctx, ch.ID, bob); m != nil {
		t.Fatal("outsider reported as member")
	}
	if m, _ := c.Get(ctx, ch.ID, bob); m != nil {
		t.Fatal("outsider reported as member on cached read")
	}
	if counting.gets != 1 {
		t.Fatalf("negative answer not cached: store gets = %d", counting.gets)
	}

	if _, err := c.Add(ctx, models.ChannelMember{ChannelID: ch.ID, UserID: bob, Role: models.RoleMember}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	m, err := c.Get(ctx, ch.ID, bob)
	if err != nil || m == nil || m.Role != models.RoleMember {
		t.Fatalf("after Add: %+v, %v", m, err)
	}
}

func TestApplyInvalidates(t *testing.T) {
	c, _, _, ch, _ := setup(t)
	ctx := context.Background()
	bob := uuid.New()
	_, _ = c.Add(ctx, models.ChannelMember{ChannelID: ch.ID, UserID: bob, Role: models.RoleMember})
	_, _ = c.Get(ctx, ch.ID, bob)

	if _, err := c.Apply(ctx, repository.MemberMutation{ChannelID: ch.ID, UserID: bob, Remove: true}, nil); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if m, _ := c.Get(ctx, ch.ID, bob); m != nil {
		t.Fatalf("removed member still cached: %+v", m)
	}
}

func TestRedisOutageFallsThrough(t *testing.T) {
	c, counting, s, ch, owner := setup(t)
	s.Close()

	m, err := c.Get(context.Background(), ch.ID, owner)
	if err != nil {
		t.Fatalf("Get with redis down: %v", err)
	}
	if m == nil {
		t.Fatal("expected the store's answer")
	}
	if counting.gets != 1 {
		t.Fatalf("store gets = %d, want 1", counting.gets)
	}
}

func TestExpiredEntryIsRefetched(t *testing.T) {
	c, counting, s, ch, owner := setup(t)
	ctx := context.Background()
	_, _ = c.Get(ctx, ch.ID, owner)
	s.FastForward(DefaultMembershipTTL + 1)
	_, _ = c.Get(ctx, ch.ID, owner)
	if counting.gets != 2 {
		t.Fatalf("store gets = %d, want 2", counting.gets)
	}
	if _, err := s.Get(memberKey(ch.ID, owner)); err != nil {
		t.Fatalf("entry not re-cached: %v", err)
	}
}
