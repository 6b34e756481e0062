package transport

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"propertyFeedWs/internal/modules/realtime/application/port"
	"propertyFeedWs/internal/modules/realtime/domain"
	"propertyFeedWs/internal/shared/httputil"
)

var eventErrors = httputil.NewErrorMapper().
	WithMapping(domain.ErrEventNotFound, http.StatusNotFound, "event not found").
	WithDefault(http.StatusBadGateway, "cache unavailable")

// ChannelInfo describes one delivery channel.
type ChannelInfo struct {
	Channel domain.Channel `json:"channel"`
	Kind    domain.Kind    `json:"kind"`
}

// NewChannelsHandler lists the channels clients can subscribe to.
func NewChannelsHandler() echo.HandlerFunc {
	channels := make([]ChannelInfo, 0, len(domain.Channels()))
	for _, ch := range domain.Channels() {
		kind, _ := domain.KindFor(ch)
		channels = append(channels, ChannelInfo{Channel: ch, Kind: kind})
	}
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{"channels": channels})
	}
}

// NewLatestEventHandler serves the last normalized event of a kind.
func NewLatestEventHandler(cache port.EventCache) echo.HandlerFunc {
	return func(c echo.Context) error {
		kind, ok := domain.ParseKind(c.Param("kind"))
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown kind "+c.Param("kind"))
		}
		data, err := cache.Latest(c.Request().Context(), kind)
		return respondCached(c, data, err)
	}
}

// NewEventByIDHandler serves the last normalized event of one entity.
func NewEventByIDHandler(cache port.EventCache) echo.HandlerFunc {
	return func(c echo.Context) error {
		kind, ok := domain.ParseKind(c.Param("kind"))
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown kind "+c.Param("kind"))
		}
		id := strings.TrimSpace(c.Param("id"))
		if id == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "missing id")
		}
		data, err := cache.Get(c.Request().Context(), kind, id)
		return respondCached(c, data, err)
	}
}

func respondCached(c echo.Context, data []byte, err error) error {
	if err != nil {
		info := eventErrors.Map(err)
		if info.Status >= http.StatusInternalServerError {
			c.Logger().Errorf("event cache read failed path=%s: %v", c.Path(), err)
		}
		return echo.NewHTTPError(info.Status, info.Message)
	}
	return c.JSON(http.StatusOK, json.RawMessage(data))
}
