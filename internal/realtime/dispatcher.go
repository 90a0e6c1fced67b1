// Package realtime fans committed state changes out to subscribers: the
// local websocket hub, other instances through Redis, and side consumers
// such as the search indexer.
package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/observ"
	"go.uber.org/zap"
)

// Publisher is one destination for events.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, ev models.Event) error
}

// DefaultPublishTimeout caps how long one publisher may hold up a request.
const DefaultPublishTimeout = 2 * time.Second

// Dispatcher hands each event to every publisher in order. It runs after
// the store commit and its outcome never reaches the caller: failures
// and panics are logged and counted, then dropped.
type Dispatcher struct {
	publishers []Publisher
	timeout    time.Duration
	logger     *zap.Logger
	metrics    *observ.Metrics
}

func NewDispatcher(logger *zap.Logger, metrics *observ.Metrics, publishers ...Publisher) *Dispatcher {
	return &Dispatcher{
		publishers: publishers,
		timeout:    DefaultPublishTimeout,
		logger:     logger,
		metrics:    metrics,
	}
}

// Notify publishes ev. The request's cancellation is stripped so a client
// hanging up right after a successful write still gets its event out.
func (d *Dispatcher) Notify(ctx context.Context, ev models.Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	base := context.WithoutCancel(ctx)
	for _, p := range d.publishers {
		err := d.publishOne(base, p, ev)
		d.metrics.ObserveEvent(string(ev.Kind), p.Name(), err)
		if err != nil {
			d.logger.Warn("publish event failed",
				zap.String("publisher", p.Name()),
				zap.String("kind", string(ev.Kind)),
				zap.Stringer("channel_id", ev.ChannelID),
				zap.Error(err),
			)
		}
	}
}

func (d *Dispatcher) publishOne(base context.Context, p Publisher, ev models.Event) (err error) {
	ctx, cancel := context.WithTimeout(base, d.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("publisher panic: %v", r)
		}
	}()
	return p.Publish(ctx, ev)
}
