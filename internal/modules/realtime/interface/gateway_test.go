package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propertyFeedWs/internal/modules/realtime/domain"
	"propertyFeedWs/internal/modules/realtime/infrastructure"
	"propertyFeedWs/internal/platform/metrics"
)

type gateway struct {
	server  *httptest.Server
	hub     *infrastructure.Hub
	cache   *infrastructure.MemoryEventCache
	trigger *fakeTrigger
	metrics *metrics.Metrics
}

type fakeTrigger struct {
	kinds []domain.Kind
	err   error
}

func (f *fakeTrigger) Trigger(_ context.Context, kind domain.Kind) error {
	f.kinds = append(f.kinds, kind)
	return f.err
}

func newGateway(t *testing.T) *gateway {
	t.Helper()
	m := metrics.New()
	hub := infrastructure.NewHub(m, nil)
	g := &gateway{
		hub:     hub,
		cache:   infrastructure.NewMemoryEventCache(time.Minute),
		trigger: &fakeTrigger{},
		metrics: m,
	}
	e := echo.New()
	Register(e, Routes{
		Hub:          hub,
		Commands:     infrastructure.NewCommandProcessor(hub, m),
		SendBuffer:   16,
		WriteTimeout: time.Second,
		Cache:        g.cache,
		Trigger:      g.trigger,
		Metrics:      m.Handler(),
	})
	g.server = httptest.NewServer(e)
	t.Cleanup(func() {
		hub.Close()
		g.server.Close()
	})
	return g
}

func (g *gateway) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(g.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	frame := readFrame(t, conn)
	require.Equal(t, "connection", frame["type"])
	require.Equal(t, "connected", frame["status"])
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame map[string]any
	require.NoError(t, json.Unmarshal(data, &frame), string(data))
	return frame
}

func send(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(raw)))
}

func subscribe(t *testing.T, conn *websocket.Conn, channels ...string) []any {
	t.Helper()
	payload, err := json.Marshal(map[string]any{"type": "subscribe", "channels": channels})
	require.NoError(t, err)
	send(t, conn, string(payload))
	reply := readFrame(t, conn)
	require.Equal(t, "subscription", reply["type"])
	require.Equal(t, "success", reply["status"])
	return reply["channels"].([]any)
}

func event(channel domain.Channel, id string) *domain.NormalizedEvent {
	kind, _ := domain.KindFor(channel)
	return &domain.NormalizedEvent{Kind: kind, Channel: channel, ID: id, EmittedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestSubscriberReceivesOnlyItsChannels(t *testing.T) {
	g := newGateway(t)
	market := g.dial(t)
	property := g.dial(t)

	assert.Equal(t, []any{"market-updates"}, subscribe(t, market, "market-updates"))
	subscribe(t, property, "property-updates")

	assert.Equal(t, 1, g.hub.Broadcast(context.Background(), event(domain.ChannelPropertyUpdates, "prop-1")))
	assert.Equal(t, 1, g.hub.Broadcast(context.Background(), event(domain.ChannelMarketUpdates, "sydney-cbd")))

	got := readFrame(t, market)
	assert.Equal(t, "market-updates", got["channel"])
	assert.Equal(t, "sydney-cbd", got["id"])

	got = readFrame(t, property)
	assert.Equal(t, "property-updates", got["channel"])
	assert.Equal(t, 2.0, testutil.ToFloat64(g.metrics.Connections))
}

func TestUnsubscribedClientReceivesNothing(t *testing.T) {
	g := newGateway(t)
	idle := g.dial(t)
	listener := g.dial(t)
	subscribe(t, listener, "infrastructure-updates")

	assert.Equal(t, 1, g.hub.Broadcast(context.Background(), event(domain.ChannelInfrastructureUpdates, "metro")))
	readFrame(t, listener)

	// the idle client must see its own pong first, proving no event was queued before it
	send(t, idle, `{"type":"ping"}`)
	assert.Equal(t, "pong", readFrame(t, idle)["type"])
}

func TestRepeatedSubscribeDeliversOnce(t *testing.T) {
	g := newGateway(t)
	conn := g.dial(t)

	subscribe(t, conn, "market-updates")
	assert.Equal(t, []any{"market-updates", "property-updates"}, subscribe(t, conn, "property-updates", "market-updates"))

	assert.Equal(t, 1, g.hub.Broadcast(context.Background(), event(domain.ChannelMarketUpdates, "first")))
	assert.Equal(t, 1, g.hub.Broadcast(context.Background(), event(domain.ChannelMarketUpdates, "second")))

	assert.Equal(t, "first", readFrame(t, conn)["id"])
	assert.Equal(t, "second", readFrame(t, conn)["id"])
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	g := newGateway(t)
	conn := g.dial(t)
	subscribe(t, conn, "market-updates", "property-updates")

	send(t, conn, `{"type":"unsubscribe","channels":["market-updates"]}`)
	reply := readFrame(t, conn)
	assert.Equal(t, "subscription", reply["type"])
	assert.Equal(t, []any{"property-updates"}, reply["channels"])

	assert.Equal(t, 0, g.hub.Broadcast(context.Background(), event(domain.ChannelMarketUpdates, "m")))
	assert.Equal(t, 1, g.hub.Broadcast(context.Background(), event(domain.ChannelPropertyUpdates, "p")))
	assert.Equal(t, "p", readFrame(t, conn)["id"])
}

func TestMalformedFramesGetErrorReplies(t *testing.T) {
	g := newGateway(t)
	conn := g.dial(t)

	cases := map[string]string{
		`not json`:                              "Invalid message format",
		`{"type":"subscribe"}`:                  "Invalid message format",
		`{"type":"dance"}`:                      "Unknown message type",
		`{"type":"subscribe","channels":["x"]}`: "Unknown channel: x",
	}
	for raw, message := range cases {
		send(t, conn, raw)
		reply := readFrame(t, conn)
		assert.Equal(t, "error", reply["type"], raw)
		assert.Equal(t, message, reply["message"], raw)
	}
	assert.Equal(t, 4.0, testutil.ToFloat64(g.metrics.MalformedFrames))

	// the connection stays usable and alive
	send(t, conn, `{"type":"ping"}`)
	assert.Equal(t, "pong", readFrame(t, conn)["type"])
	assert.Equal(t, 0, g.hub.Sweep())
}

func TestLivenessEvictsSilentClients(t *testing.T) {
	g := newGateway(t)
	silent := g.dial(t)
	responsive := g.dial(t)
	subscribe(t, silent, "market-updates")
	subscribe(t, responsive, "market-updates")

	assert.Equal(t, 0, g.hub.Sweep())
	assert.Equal(t, "ping", readFrame(t, silent)["type"])
	assert.Equal(t, "ping", readFrame(t, responsive)["type"])

	// no delivery to clients waiting on a probe answer
	assert.Equal(t, 0, g.hub.Broadcast(context.Background(), event(domain.ChannelMarketUpdates, "skipped")))

	send(t, responsive, `{"type":"pong"}`)
	send(t, responsive, `{"type":"ping"}`)
	assert.Equal(t, "pong", readFrame(t, responsive)["type"])

	assert.Equal(t, 1, g.hub.Sweep())
	assert.Equal(t, 1, g.hub.Count())
	assert.Equal(t, 1.0, testutil.ToFloat64(g.metrics.Evictions.WithLabelValues(metrics.ReasonStale)))

	require.NoError(t, silent.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := silent.ReadMessage(); err != nil {
			var netErr interface{ Timeout() bool }
			if errors.As(err, &netErr) && netErr.Timeout() {
				t.Fatal("silent client was not closed")
			}
			break
		}
	}
	assert.Equal(t, "ping", readFrame(t, responsive)["type"])
}

func TestClientPingDoesNotAnswerProbe(t *testing.T) {
	g := newGateway(t)
	conn := g.dial(t)

	g.hub.Sweep()
	assert.Equal(t, "ping", readFrame(t, conn)["type"])
	send(t, conn, `{"type":"ping"}`)
	assert.Equal(t, "pong", readFrame(t, conn)["type"])

	assert.Equal(t, 1, g.hub.Sweep())
	assert.Equal(t, 0, g.hub.Count())
}

func TestHTTPEndpoints(t *testing.T) {
	g := newGateway(t)
	g.dial(t)

	get := func(path string) (int, string) {
		resp, err := http.Get(g.server.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body)
	}

	status, body := get("/health")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok","connections":1}`, body)

	status, body = get("/api/channels")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"channel":"infrastructure-updates","kind":"infrastructure"`)

	status, _ = get("/api/events/market/latest")
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = get("/api/events/weather/latest")
	assert.Equal(t, http.StatusBadRequest, status)

	require.NoError(t, g.cache.Store(context.Background(), event(domain.ChannelMarketUpdates, "sydney-cbd")))
	status, body = get("/api/events/markets/latest")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"id":"sydney-cbd"`)
	status, _ = get("/api/events/market/sydney-cbd")
	assert.Equal(t, http.StatusOK, status)

	status, body = get("/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "property_feed_connections 1")
}

func TestTriggerEndpoint(t *testing.T) {
	g := newGateway(t)

	resp, err := http.Post(g.server.URL+"/api/feeds/infra/trigger", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []domain.Kind{domain.KindInfrastructure}, g.trigger.kinds)

	g.trigger.err = domain.ErrProducerFailure
	resp, err = http.Post(g.server.URL+"/api/feeds/market/trigger", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	resp, err = http.Post(g.server.URL+"/api/feeds/weather/trigger", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
