package infrastructure

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"propertyFeedWs/internal/modules/realtime/domain"
	"propertyFeedWs/internal/platform/metrics"
)

const maxFrameSize = 1 << 16

type Client struct {
	id           string
	hub          *Hub
	conn         *websocket.Conn
	commands     *CommandProcessor
	writeTimeout time.Duration

	sendMu sync.Mutex
	send   chan []byte
	closed bool

	closeOnce sync.Once

	// guarded by hub.mu
	alive         bool
	subscriptions map[domain.Channel]struct{}
	lastPongAt    time.Time
}

// NewClient wraps an upgraded connection with a bounded send queue.
func NewClient(hub *Hub, conn *websocket.Conn, commands *CommandProcessor, buf int, writeTimeout time.Duration) *Client {
	if buf <= 0 {
		buf = 16
	}
	return &Client{
		id:            uuid.NewString(),
		hub:           hub,
		conn:          conn,
		commands:      commands,
		writeTimeout:  writeTimeout,
		send:          make(chan []byte, buf),
		subscriptions: make(map[domain.Channel]struct{}),
	}
}

func (c *Client) ID() string { return c.id }

var (
	errClientClosed  = errors.New("client closed")
	errSendQueueFull = errors.New("send queue full")
)

// enqueue queues a frame without blocking. It fails with errSendQueueFull when the
// queue is full and with errClientClosed once the client has been detached.
func (c *Client) enqueue(data []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return errClientClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return errSendQueueFull
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.sendMu.Lock()
		c.closed = true
		close(c.send)
		c.sendMu.Unlock()
		_ = c.conn.Close()
	})
}

// WritePump drains the send queue to the socket until the queue is closed.
func (c *Client) WritePump() {
	for msg := range c.send {
		if c.writeTimeout > 0 {
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			slog.Warn("websocket write error", slog.String("clientId", c.id), slog.Any("error", err))
			c.hub.Detach(c, metrics.ReasonClosed)
			return
		}
	}
}

// ReadPump reads client frames until the connection fails, then detaches the client.
func (c *Client) ReadPump() {
	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetPongHandler(func(string) error {
		c.hub.MarkAlive(c)
		return nil
	})
	defer c.hub.Detach(c, metrics.ReasonClosed)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("websocket read error", slog.String("clientId", c.id), slog.Any("error", err))
			}
			return
		}
		c.commands.Process(c, data)
	}
}
