package port

import (
	"context"

	"propertyFeedWs/internal/modules/realtime/domain"
)

// EventPublisher publishes raw domain events on the channel of their kind.
type EventPublisher interface {
	PublishEvent(ctx context.Context, evt domain.DomainEvent) error
}

// Broadcaster fans a normalized event out to the WebSocket clients subscribed to its
// channel and returns how many connections it was queued to.
type Broadcaster interface {
	Broadcast(ctx context.Context, evt *domain.NormalizedEvent) int
}

// TopicHandler processes the broker messages of one channel.
type TopicHandler interface {
	Channel() domain.Channel
	Handle(ctx context.Context, msg *domain.Message) error
}

// EventCache keeps the last normalized event per kind and per entity id.
type EventCache interface {
	Store(ctx context.Context, evt *domain.NormalizedEvent) error
	Latest(ctx context.Context, kind domain.Kind) ([]byte, error)
	Get(ctx context.Context, kind domain.Kind, id string) ([]byte, error)
}
