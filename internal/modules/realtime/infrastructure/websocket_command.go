package infrastructure

import (
	"context"
	"log/slog"
	"strings"

	"propertyFeedWs/internal/modules/realtime/domain"
	"propertyFeedWs/internal/platform/metrics"
)

type CommandHandler func(ctx context.Context, client *Client, frame domain.InboundFrame)

// CommandProcessor answers the frames clients send over the socket.
type CommandProcessor struct {
	hub      *Hub
	handlers map[string]CommandHandler
	metrics  *metrics.Metrics
}

func NewCommandProcessor(hub *Hub, m *metrics.Metrics) *CommandProcessor {
	processor := &CommandProcessor{
		hub:      hub,
		handlers: make(map[string]CommandHandler),
		metrics:  m,
	}
	processor.Register(domain.FrameSubscribe, processor.handleSubscribe)
	processor.Register(domain.FrameUnsubscribe, processor.handleUnsubscribe)
	processor.Register(domain.FramePing, processor.handlePing)
	processor.Register(domain.FramePong, processor.handlePong)
	return processor
}

func (p *CommandProcessor) Register(frameType string, handler CommandHandler) {
	if handler == nil {
		return
	}
	key := strings.ToLower(strings.TrimSpace(frameType))
	if key == "" {
		return
	}
	p.handlers[key] = handler
}

// Process parses one raw frame and runs its handler. Invalid frames are answered with an
// error frame to the sender only.
func (p *CommandProcessor) Process(client *Client, data []byte) {
	if client == nil {
		return
	}
	frame, err := domain.ParseInboundFrame(data)
	if err != nil {
		p.reject(client, err)
		return
	}
	handler, ok := p.handlers[frame.Type]
	if !ok {
		p.reject(client, domain.ErrUnknownFrameType)
		return
	}
	handler(context.Background(), client, frame)
}

func (p *CommandProcessor) reject(client *Client, err error) {
	p.metrics.MalformedFrames.Inc()
	slog.Debug("ws frame rejected", slog.String("clientId", client.id), slog.Any("error", err))
	p.hub.sendJSON(client, domain.NewErrorFrame(domain.ErrorMessageFor(err)))
}

func (p *CommandProcessor) handleSubscribe(_ context.Context, client *Client, frame domain.InboundFrame) {
	channels := p.hub.Subscribe(client, frame.Channels)
	slog.Debug("ws subscribe", slog.String("clientId", client.id), slog.Any("channels", channels))
	p.hub.sendJSON(client, domain.NewSubscriptionFrame(channels))
}

func (p *CommandProcessor) handleUnsubscribe(_ context.Context, client *Client, frame domain.InboundFrame) {
	channels := p.hub.Unsubscribe(client, frame.Channels)
	slog.Debug("ws unsubscribe", slog.String("clientId", client.id), slog.Any("channels", channels))
	p.hub.sendJSON(client, domain.NewSubscriptionFrame(channels))
}

func (p *CommandProcessor) handlePing(_ context.Context, client *Client, _ domain.InboundFrame) {
	p.hub.sendJSON(client, domain.NewPongFrame())
}

func (p *CommandProcessor) handlePong(_ context.Context, client *Client, _ domain.InboundFrame) {
	p.hub.MarkAlive(client)
}
