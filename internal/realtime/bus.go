package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const busPrefix = "huddle:events:"

func busChannel(channelID uuid.UUID) string { return busPrefix + channelID.String() }

// wireEvent is an Event whose payload stays undecoded on the receiving
// side; the hub forwards it to clients byte for byte.
type wireEvent struct {
	Kind       models.EventKind `json:"kind"`
	ChannelID  uuid.UUID        `json:"channel_id"`
	ActorID    uuid.UUID        `json:"actor_id"`
	Payload    json.RawMessage  `json:"payload"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// RedisBus carries events between instances. Publish sends to Redis only;
// every instance, this one included, receives it back through Run and
// hands it to its local hub.
type RedisBus struct {
	rdb    *redis.Client
	hub    *Hub
	logger *zap.Logger
	ready  chan struct{}
}

func NewRedisBus(rdb *redis.Client, hub *Hub, logger *zap.Logger) *RedisBus {
	return &RedisBus{rdb: rdb, hub: hub, logger: logger, ready: make(chan struct{})}
}

func (b *RedisBus) Name() string { return "redis" }

func (b *RedisBus) Publish(ctx context.Context, ev models.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.rdb.Publish(ctx, busChannel(ev.ChannelID), data).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Ready is closed once the subscription is confirmed by Redis.
func (b *RedisBus) Ready() <-chan struct{} { return b.ready }

// Run relays bus traffic into the hub until ctx is done.
func (b *RedisBus) Run(ctx context.Context) error {
	sub := b.rdb.PSubscribe(ctx, busPrefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe event bus: %w", err)
	}
	close(b.ready)
	b.logger.Info("event bus subscribed", zap.String("pattern", busPrefix+"*"))

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			b.relay(ctx, msg)
		}
	}
}

func (b *RedisBus) relay(ctx context.Context, msg *redis.Message) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("relay panic", zap.Any("panic", r), zap.String("channel", msg.Channel))
		}
	}()
	var w wireEvent
	if err := json.Unmarshal([]byte(msg.Payload), &w); err != nil {
		b.logger.Warn("dropping undecodable bus message", zap.String("channel", msg.Channel), zap.Error(err))
		return
	}
	if strings.TrimPrefix(msg.Channel, busPrefix) != w.ChannelID.String() {
		b.logger.Warn("bus message channel mismatch", zap.String("channel", msg.Channel))
		return
	}
	ev := models.Event{
		Kind:       w.Kind,
		ChannelID:  w.ChannelID,
		ActorID:    w.ActorID,
		Payload:    w.Payload,
		OccurredAt: w.OccurredAt,
	}
	if err := b.hub.Publish(ctx, ev); err != nil {
		b.logger.Warn("relay bus event", zap.Error(err))
	}
}
