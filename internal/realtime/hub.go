package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/observ"
	"go.uber.org/zap"
)

const clientBuffer = 64

// Client is one subscriber connection. Outbound frames queue on send; a
// writer (the websocket write pump, or a test) drains it.
type Client struct {
	UserID   uuid.UUID
	channels []uuid.UUID
	send     chan []byte
	once     sync.Once

	registered bool // guarded by Hub.mu
}

func NewClient(userID uuid.UUID, channels []uuid.UUID) *Client {
	return &Client{UserID: userID, channels: channels, send: make(chan []byte, clientBuffer)}
}

// Send is closed when the hub drops the client.
func (c *Client) Send() <-chan []byte { return c.send }

func (c *Client) close() { c.once.Do(func() { close(c.send) }) }

// Hub tracks which local clients watch which channel.
type Hub struct {
	mu      sync.RWMutex
	subs    map[uuid.UUID]map[*Client]struct{}
	logger  *zap.Logger
	metrics *observ.Metrics
}

func NewHub(logger *zap.Logger, metrics *observ.Metrics) *Hub {
	return &Hub{
		subs:    make(map[uuid.UUID]map[*Client]struct{}),
		logger:  logger,
		metrics: metrics,
	}
}

func (h *Hub) Name() string { return "hub" }

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	for _, ch := range c.channels {
		set, ok := h.subs[ch]
		if !ok {
			set = make(map[*Client]struct{})
			h.subs[ch] = set
		}
		set[c] = struct{}{}
	}
	c.registered = true
	h.mu.Unlock()
	h.metrics.ConnectionOpened()
}

// Unregister removes c from every channel and closes its queue. Safe to
// call more than once. The queue is closed under the write lock; Publish
// only sends under the read lock, so a send never meets a closed queue.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	removed := c.registered
	c.registered = false
	for _, ch := range c.channels {
		if set, ok := h.subs[ch]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(h.subs, ch)
			}
		}
	}
	c.close()
	h.mu.Unlock()
	if removed {
		h.metrics.ConnectionClosed()
	}
}

// Subscribers returns how many clients watch channelID.
func (h *Hub) Subscribers(channelID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[channelID])
}

// Publish delivers ev to local subscribers of its channel, skipping the
// actor's own connections. A client whose queue is full is dropped rather
// than allowed to stall everyone else.
func (h *Hub) Publish(_ context.Context, ev models.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	var slow []*Client
	h.mu.RLock()
	for c := range h.subs[ev.ChannelID] {
		if c.UserID == ev.ActorID {
			continue
		}
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("dropping slow websocket client",
			zap.Stringer("user_id", c.UserID),
			zap.Stringer("channel_id", ev.ChannelID))
		h.Unregister(c)
	}

	if ev.Kind == models.EventMemberRemoved || ev.Kind == models.EventMemberLeft {
		if userID, ok := memberUserID(ev.Payload); ok {
			h.revoke(ev.ChannelID, userID)
		}
	}
	return nil
}

// revoke stops delivering channelID to userID's connections; they keep
// their other channels.
func (h *Hub) revoke(channelID, userID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[channelID]
	for c := range set {
		if c.UserID == userID {
			delete(set, c)
		}
	}
	if len(set) == 0 {
		delete(h.subs, channelID)
	}
}

// memberUserID pulls user_id out of a membership payload, whether it is
// the model itself or raw JSON relayed by the bus.
func memberUserID(payload any) (uuid.UUID, bool) {
	switch p := payload.(type) {
	case models.ChannelMember:
		return p.UserID, true
	case *models.ChannelMember:
		if p != nil {
			return p.UserID, true
		}
	case json.RawMessage:
		var m struct {
			UserID uuid.UUID `json:"user_id"`
		}
		if err := json.Unmarshal(p, &m); err == nil && m.UserID != uuid.Nil {
			return m.UserID, true
		}
	}
	return uuid.Nil, false
}
