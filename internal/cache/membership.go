package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// DefaultMembershipTTL bounds how long a cached answer can be served.
const DefaultMembershipTTL = 30 * time.Second

// memberEntry is the cached value. Member=false is a negative entry, so
// repeated probes by outsiders don't reach Postgres either.
type memberEntry struct {
	Member   bool   `msgpack:"m"`
	Role     string `msgpack:"r,omitempty"`
	JoinedAt int64  `msgpack:"j,omitempty"`
}

// MembershipCache wraps a MembershipRepository and caches Get, the lookup
// almost every request makes. Writes go to the wrapped store first and then
// drop the key. List and Apply always read the store: Apply's check needs
// the locked rows, never a cached copy.
//
// Redis trouble never fails a request: errors are logged and the call falls
// through to the store.
type MembershipCache struct {
	next   repository.MembershipRepository
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewMembershipCache(next repository.MembershipRepository, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *MembershipCache {
	if ttl <= 0 {
		ttl = DefaultMembershipTTL
	}
	return &MembershipCache{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

func memberKey(channelID, userID uuid.UUID) string {
	return fmt.Sprintf("huddle:member:%s:%s", channelID, userID)
}

func (c *MembershipCache) Get(ctx context.Context, channelID, userID uuid.UUID) (*models.ChannelMember, error) {
	key := memberKey(channelID, userID)

	data, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var e memberEntry
		if err := msgpack.Unmarshal(data, &e); err == nil {
			if !e.Member {
				return nil, nil
			}
			return &models.ChannelMember{
				ChannelID: channelID,
				UserID:    userID,
				Role:      models.Role(e.Role),
				JoinedAt:  time.Unix(0, e.JoinedAt).UTC(),
			}, nil
		}
		c.logger.Warn("membership cache: bad entry", zap.String("key", key))
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("membership cache: get failed", zap.String("key", key), zap.Error(err))
	}

	m, err := c.next.Get(ctx, channelID, userID)
	if err != nil {
		return nil, err
	}

	e := memberEntry{}
	if m != nil {
		e = memberEntry{Member: true, Role: string(m.Role), JoinedAt: m.JoinedAt.UnixNano()}
	}
	if data, err := msgpack.Marshal(e); err == nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn("membership cache: set failed", zap.String("key", key), zap.Error(err))
		}
	}
	return m, nil
}

func (c *MembershipCache) List(ctx context.Context, channelID uuid.UUID) ([]models.ChannelMember, error) {
	return c.next.List(ctx, channelID)
}

func (c *MembershipCache) Add(ctx context.Context, m models.ChannelMember) (bool, error) {
	added, err := c.next.Add(ctx, m)
	if err != nil {
		return false, err
	}
	c.invalidate(ctx, m.ChannelID, m.UserID)
	return added, nil
}

func (c *MembershipCache) Apply(ctx context.Context, mut repository.MemberMutation, check repository.MemberCheck) (*models.ChannelMember, error) {
	m, err := c.next.Apply(ctx, mut, check)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, mut.ChannelID, mut.UserID)
	return m, nil
}

func (c *MembershipCache) invalidate(ctx context.Context, channelID, userID uuid.UUID) {
	key := memberKey(channelID, userID)
	if err := c.rdb.Del(context.WithoutCancel(ctx), key).Err(); err != nil {
		c.logger.Warn("membership cache: delete failed", zap.String("key", key), zap.Error(err))
	}
}
