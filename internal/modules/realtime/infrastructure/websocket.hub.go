package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"propertyFeedWs/internal/modules/realtime/domain"
	"propertyFeedWs/internal/platform/metrics"
)

// Hub owns the connection registry: every client, its subscriptions and its liveness
// flag are only read or written under mu.
type Hub struct {
	clients  map[string]*Client
	channels map[domain.Channel]map[*Client]struct{}
	mu       sync.RWMutex

	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func NewHub(m *metrics.Metrics, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:  make(map[string]*Client),
		channels: make(map[domain.Channel]map[*Client]struct{}),
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// Register adds an accepted connection as alive with no subscriptions and sends it the
// connection acknowledgement.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if existing, ok := h.clients[c.id]; ok && existing != c {
		h.detachLocked(existing, metrics.ReasonClosed)
	}
	c.alive = true
	c.lastPongAt = h.now()
	c.subscriptions = make(map[domain.Channel]struct{})
	h.clients[c.id] = c
	h.metrics.Connections.Inc()
	h.mu.Unlock()

	h.logger.Info("ws client registered", slog.String("clientId", c.id))
	h.sendJSON(c, domain.NewConnectionFrame())
}

// Subscribe adds channels to the client's set and returns the resulting set, sorted.
func (h *Hub) Subscribe(c *Client, channels []domain.Channel) []domain.Channel {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.registeredLocked(c) {
		return nil
	}
	for _, ch := range channels {
		if h.channels[ch] == nil {
			h.channels[ch] = make(map[*Client]struct{})
		}
		h.channels[ch][c] = struct{}{}
		c.subscriptions[ch] = struct{}{}
	}
	return sortedChannels(c.subscriptions)
}

// Unsubscribe removes channels from the client's set and returns what is left, sorted.
func (h *Hub) Unsubscribe(c *Client, channels []domain.Channel) []domain.Channel {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.registeredLocked(c) {
		return nil
	}
	for _, ch := range channels {
		h.removeFromIndexLocked(c, ch)
		delete(c.subscriptions, ch)
	}
	return sortedChannels(c.subscriptions)
}

// Subscriptions returns a sorted snapshot of the client's channels.
func (h *Hub) Subscriptions(c *Client) []domain.Channel {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return sortedChannels(c.subscriptions)
}

// Broadcast queues the event to every alive client subscribed to its channel, at most
// once per client. Clients whose send queue is full are detached.
func (h *Hub) Broadcast(_ context.Context, evt *domain.NormalizedEvent) int {
	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("broadcast marshal error", slog.String("channel", string(evt.Channel)), slog.Any("error", err))
		return 0
	}

	h.mu.RLock()
	subscribers := h.channels[evt.Channel]
	targets := make([]*Client, 0, len(subscribers))
	for c := range subscribers {
		if c.alive {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		switch err := c.enqueue(data); {
		case err == nil:
			delivered++
		case errors.Is(err, errSendQueueFull):
			h.logger.Warn("websocket send buffer full", slog.String("clientId", c.id))
			go h.Detach(c, metrics.ReasonSlow)
		}
	}
	h.metrics.Deliveries.WithLabelValues(string(evt.Channel)).Add(float64(delivered))
	return delivered
}

// MarkAlive records a liveness answer from the client.
func (h *Hub) MarkAlive(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.registeredLocked(c) {
		return
	}
	c.alive = true
	c.lastPongAt = h.now()
}

// Sweep runs one liveness probe. Clients that did not answer the previous probe are
// closed and removed; the others are marked not alive and sent a ping frame. It returns
// the number of evicted clients.
func (h *Hub) Sweep() int {
	h.mu.Lock()
	stale := make([]*Client, 0)
	probe := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		if !c.alive {
			stale = append(stale, c)
			continue
		}
		c.alive = false
		probe = append(probe, c)
	}
	for _, c := range stale {
		h.detachLocked(c, metrics.ReasonStale)
	}
	h.mu.Unlock()

	for _, c := range stale {
		h.logger.Info("terminating inactive ws client", slog.String("clientId", c.id), slog.Time("lastPongAt", c.lastPongAt))
	}
	for _, c := range probe {
		h.sendJSON(c, domain.NewPingFrame())
	}
	return len(stale)
}

// RunLiveness sweeps on every tick until ctx is done.
func (h *Hub) RunLiveness(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if evicted := h.Sweep(); evicted > 0 {
				h.logger.Debug("liveness sweep", slog.Int("evicted", evicted), slog.Int("clients", h.Count()))
			}
		}
	}
}

// Detach removes the client from the registry and closes its connection. It is safe to
// call more than once.
func (h *Hub) Detach(c *Client, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detachLocked(c, reason)
}

// Close detaches every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		h.detachLocked(c, metrics.ReasonShutdown)
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) registeredLocked(c *Client) bool {
	return c != nil && h.clients[c.id] == c
}

func (h *Hub) detachLocked(c *Client, reason string) {
	if !h.registeredLocked(c) {
		return
	}
	for ch := range c.subscriptions {
		h.removeFromIndexLocked(c, ch)
	}
	delete(h.clients, c.id)
	c.alive = false
	c.close()
	h.metrics.Connections.Dec()
	h.metrics.Evictions.WithLabelValues(reason).Inc()
	h.logger.Info("ws client detached", slog.String("clientId", c.id), slog.String("reason", reason))
}

func (h *Hub) removeFromIndexLocked(c *Client, ch domain.Channel) {
	if subs, ok := h.channels[ch]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.channels, ch)
		}
	}
}

func (h *Hub) sendJSON(c *Client, frame any) {
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("websocket marshal error", slog.Any("error", err))
		return
	}
	if err := c.enqueue(data); errors.Is(err, errSendQueueFull) {
		h.logger.Warn("websocket send buffer full", slog.String("clientId", c.id))
		go h.Detach(c, metrics.ReasonSlow)
	}
}

func sortedChannels(set map[domain.Channel]struct{}) []domain.Channel {
	out := make([]domain.Channel, 0, len(set))
	for ch := range set {
		out = append(out, ch)
	}
	slices.Sort(out)
	return out
}
