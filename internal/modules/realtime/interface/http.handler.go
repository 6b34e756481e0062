package transport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"propertyFeedWs/internal/modules/realtime/infrastructure"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NewWebsocketHandler upgrades the request and registers the connection with the hub.
// Clients start with no subscriptions.
func NewWebsocketHandler(hub *infrastructure.Hub, commands *infrastructure.CommandProcessor, sendBuffer int, writeTimeout time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		logger := c.Logger()
		requestID := c.Response().Header().Get(echo.HeaderXRequestID)
		peerIP := c.RealIP()

		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			slog.Error("ws handler upgrade failed", slog.String("ip", peerIP), slog.Any("error", err))
			logger.Errorf("ws upgrade failed ip=%s reqID=%s: %v", peerIP, requestID, err)
			return err
		}

		client := infrastructure.NewClient(hub, conn, commands, sendBuffer, writeTimeout)
		hub.Register(client)

		go client.WritePump()
		go client.ReadPump()

		logger.Infof("ws connected client=%s ip=%s reqID=%s", client.ID(), peerIP, requestID)
		return nil
	}
}
