package infrastructure

import (
	"context"

	"propertyFeedWs/internal/modules/realtime/application/port"
	"propertyFeedWs/internal/modules/realtime/domain"
)

type HandlerRegistry struct {
	handlers map[domain.Channel]port.TopicHandler
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[domain.Channel]port.TopicHandler)}
}

func (r *HandlerRegistry) Register(h port.TopicHandler) {
	r.handlers[h.Channel()] = h
}

// Channels lists the channels that have a handler.
func (r *HandlerRegistry) Channels() []domain.Channel {
	out := make([]domain.Channel, 0, len(r.handlers))
	for _, ch := range domain.Channels() {
		if _, ok := r.handlers[ch]; ok {
			out = append(out, ch)
		}
	}
	return out
}

func (r *HandlerRegistry) Dispatch(ctx context.Context, msg *domain.Message) error {
	if handler, ok := r.handlers[msg.Channel]; ok {
		return handler.Handle(ctx, msg)
	}
	return nil
}
