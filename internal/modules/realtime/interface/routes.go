package transport

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"propertyFeedWs/internal/modules/realtime/application/port"
	"propertyFeedWs/internal/modules/realtime/infrastructure"
)

// Routes groups what the gateway endpoints need. Cache, Trigger and Metrics are optional;
// their routes are only mounted when set.
type Routes struct {
	Hub          *infrastructure.Hub
	Commands     *infrastructure.CommandProcessor
	SendBuffer   int
	WriteTimeout time.Duration
	Cache        port.EventCache
	Trigger      FeedTrigger
	Metrics      http.Handler
}

func Register(e *echo.Echo, r Routes) {
	wsHandler := NewWebsocketHandler(r.Hub, r.Commands, r.SendBuffer, r.WriteTimeout)
	e.GET("/", wsHandler)
	e.GET("/ws", wsHandler)
	e.GET("/health", NewHealthHandler(r.Hub))

	api := e.Group("/api")
	api.GET("/channels", NewChannelsHandler())
	if r.Cache != nil {
		api.GET("/events/:kind/latest", NewLatestEventHandler(r.Cache))
		api.GET("/events/:kind/:id", NewEventByIDHandler(r.Cache))
	}
	if r.Trigger != nil {
		api.POST("/feeds/:kind/trigger", NewTriggerHTTPHandler(r.Trigger))
	}
	if r.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(r.Metrics))
	}
}
