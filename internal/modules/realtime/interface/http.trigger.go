package transport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"propertyFeedWs/internal/modules/realtime/domain"
	"propertyFeedWs/internal/shared/httputil"
)

// FeedTrigger runs one producer firing for a kind on demand.
type FeedTrigger interface {
	Trigger(ctx context.Context, kind domain.Kind) error
}

// TriggerResponse represents the response after a manual firing.
type TriggerResponse struct {
	Success bool           `json:"success"`
	Kind    domain.Kind    `json:"kind"`
	Channel domain.Channel `json:"channel"`
}

var triggerErrors = httputil.NewErrorMapper().
	WithMapping(domain.ErrUnsupportedEventKind, http.StatusBadRequest, "unsupported kind").
	WithMapping(domain.ErrProducerFailure, http.StatusBadGateway, "producer failed").
	WithMapping(domain.ErrBrokerUnavailable, http.StatusServiceUnavailable, "broker unavailable")

// NewTriggerHTTPHandler creates the endpoint that fires a producer run immediately,
// using the same retry policy as scheduled firings.
func NewTriggerHTTPHandler(trigger FeedTrigger) echo.HandlerFunc {
	return func(c echo.Context) error {
		kind, ok := domain.ParseKind(c.Param("kind"))
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown kind "+c.Param("kind"))
		}

		if err := trigger.Trigger(c.Request().Context(), kind); err != nil {
			info := triggerErrors.Map(err)
			slog.Warn("trigger http: firing failed", slog.String("kind", string(kind)), slog.Int("status", info.Status), slog.Any("error", err))
			return echo.NewHTTPError(info.Status, info.Message)
		}

		channel, _ := domain.ChannelFor(kind)
		slog.Info("trigger http: event published", slog.String("kind", string(kind)), slog.String("channel", string(channel)))
		return c.JSON(http.StatusOK, TriggerResponse{Success: true, Kind: kind, Channel: channel})
	}
}
