package infrastructure

import (
	"context"
	"log/slog"
	"time"

	"propertyFeedWs/internal/modules/realtime/domain"
)

// Relay moves broker messages to the channel handlers through a bounded queue drained by
// a single dispatcher, so messages of one channel are handled in arrival order.
type Relay struct {
	registry *HandlerRegistry
	queue    chan *domain.Message
	logger   *slog.Logger
	now      func() time.Time
}

func NewRelay(registry *HandlerRegistry, buffer int, logger *slog.Logger) *Relay {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		registry: registry,
		queue:    make(chan *domain.Message, buffer),
		logger:   logger,
		now:      time.Now,
	}
}

// Deliver queues a payload received on channel. It blocks while the queue is full, which
// applies backpressure to the broker reader instead of dropping events.
func (r *Relay) Deliver(ctx context.Context, channel domain.Channel, payload []byte) {
	msg := &domain.Message{Channel: channel, Payload: payload, ReceivedAt: r.now()}
	select {
	case r.queue <- msg:
	case <-ctx.Done():
	}
}

// Run dispatches queued messages until ctx is done.
func (r *Relay) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-r.queue:
			if err := r.registry.Dispatch(ctx, msg); err != nil {
				r.logger.Error("event dropped",
					slog.String("channel", string(msg.Channel)),
					slog.Any("error", err))
			}
		}
	}
}
