package handler

import (
	"context"
	"fmt"
	"log/slog"

	"propertyFeedWs/internal/modules/realtime/application/port"
	"propertyFeedWs/internal/modules/realtime/application/usecase"
	"propertyFeedWs/internal/modules/realtime/domain"
	"propertyFeedWs/internal/platform/metrics"
)

// ChannelStreamHandler decodes the broker messages of one channel, normalizes them and
// forwards them to the subscribed WebSocket clients. The last event is kept in the cache
// when one is configured.
type ChannelStreamHandler struct {
	channel     domain.Channel
	transformer *usecase.Transformer
	broadcastUC *usecase.BroadcastUseCase
	cache       port.EventCache
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

func NewChannelStreamHandler(channel domain.Channel, transformer *usecase.Transformer, broadcastUC *usecase.BroadcastUseCase, cache port.EventCache, m *metrics.Metrics, logger *slog.Logger) *ChannelStreamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChannelStreamHandler{
		channel:     channel,
		transformer: transformer,
		broadcastUC: broadcastUC,
		cache:       cache,
		metrics:     m,
		logger:      logger,
	}
}

func (h *ChannelStreamHandler) Channel() domain.Channel { return h.channel }

func (h *ChannelStreamHandler) Handle(ctx context.Context, msg *domain.Message) error {
	h.metrics.EventsRelayed.WithLabelValues(string(h.channel)).Inc()

	evt, err := domain.DecodeEvent(msg.Payload)
	if err != nil {
		h.metrics.TransformErrors.WithLabelValues("malformed").Inc()
		return fmt.Errorf("decode %s message: %w", h.channel, err)
	}
	normalized, err := h.transformer.Transform(evt)
	if err != nil {
		h.metrics.TransformErrors.WithLabelValues(string(evt.EventKind())).Inc()
		return fmt.Errorf("transform %s message: %w", h.channel, err)
	}
	if normalized.Channel != h.channel {
		h.logger.Warn("event kind does not belong to channel, dropped",
			slog.String("channel", string(h.channel)),
			slog.String("kind", string(normalized.Kind)),
			slog.String("eventId", normalized.EventID))
		return nil
	}

	delivered := h.broadcastUC.Execute(ctx, normalized)
	h.logger.Debug("event delivered",
		slog.String("channel", string(h.channel)),
		slog.String("id", normalized.ID),
		slog.Int("clients", delivered))

	if h.cache != nil {
		if err := h.cache.Store(ctx, normalized); err != nil {
			h.logger.Warn("cache store failed", slog.String("channel", string(h.channel)), slog.Any("error", err))
		}
	}
	return nil
}

var _ port.TopicHandler = (*ChannelStreamHandler)(nil)
