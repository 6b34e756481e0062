package transport

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propertyFeedWs/internal/modules/realtime/application/handler"
	"propertyFeedWs/internal/modules/realtime/application/usecase"
	"propertyFeedWs/internal/modules/realtime/domain"
	"propertyFeedWs/internal/modules/realtime/infrastructure"
	"propertyFeedWs/internal/platform/broker"
)

// startPipeline wires the memory broker through the bridge, relay and channel handlers
// into the gateway hub, the same way cmd/server does.
func startPipeline(t *testing.T, g *gateway) (*broker.Bridge, *broker.MemoryDriver) {
	t.Helper()
	driver := broker.NewMemoryDriver()
	bridge := broker.NewBridge(driver, g.metrics, nil, 5*time.Millisecond, 20*time.Millisecond)

	transformer := usecase.NewTransformer(nil)
	broadcastUC := usecase.NewBroadcastUseCase(g.hub)
	registry := infrastructure.NewHandlerRegistry()
	for _, ch := range domain.Channels() {
		registry.Register(handler.NewChannelStreamHandler(ch, transformer, broadcastUC, g.cache, g.metrics, nil))
	}
	relay := infrastructure.NewRelay(registry, 8, nil)
	_, err := bridge.Subscribe("*-updates", relay.Deliver)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{}, 2)
	go func() {
		relay.Run(ctx)
		done <- struct{}{}
	}()
	go func() {
		_ = bridge.Run(ctx)
		done <- struct{}{}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		<-done
	})

	select {
	case <-bridge.Subscribed():
	case <-time.After(2 * time.Second):
		t.Fatal("bridge never subscribed")
	}
	return bridge, driver
}

func TestPublishedEventsReachOnlyMatchingSubscribers(t *testing.T) {
	g := newGateway(t)
	bridge, driver := startPipeline(t, g)
	client := g.dial(t)
	subscribe(t, client, "market-updates")

	at := time.Date(2025, 3, 3, 9, 30, 0, 0, time.UTC)
	ctx := context.Background()
	prop := domain.NewPropertyEvent("evt-p", at)
	prop.PropertyID = "PROP1"
	prop.Metrics.Price = 1500000
	market := domain.NewMarketEvent("evt-m", at)
	market.MarketID = "MKT1"
	market.MedianPrice = 1250000
	market.ClearanceRate = 71.5

	require.NoError(t, bridge.PublishEvent(ctx, prop))
	require.NoError(t, bridge.PublishEvent(ctx, market))
	require.NoError(t, driver.Publish(ctx, domain.ChannelMarketUpdates, []byte(`{"kind":"unknown","emittedAt":"2025-03-03T09:30:00Z"}`)))

	got := readFrame(t, client)
	assert.Equal(t, "market-updates", got["channel"])
	assert.Equal(t, "market", got["kind"])
	assert.Equal(t, "MKT1", got["id"])
	data := got["data"].(map[string]any)
	indicators := data["indicators"].(map[string]any)
	assert.Equal(t, "$1,250,000.00", indicators["medianPrice"])
	assert.Equal(t, "71.50%", indicators["clearanceRate"])

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(g.metrics.TransformErrors.WithLabelValues("unknown")) == 1
	}, 2*time.Second, 5*time.Millisecond)

	// the relay has handled every message; nothing else may reach the client
	require.NoError(t, client.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, extra, err := client.ReadMessage()
	require.Error(t, err, "unexpected frame %s", extra)

	assert.Equal(t, 1.0, testutil.ToFloat64(g.metrics.EventsRelayed.WithLabelValues("property-updates")))
	assert.Equal(t, 2.0, testutil.ToFloat64(g.metrics.EventsRelayed.WithLabelValues("market-updates")))
	assert.Equal(t, 0.0, testutil.ToFloat64(g.metrics.Deliveries.WithLabelValues("property-updates")))
	assert.Equal(t, 1.0, testutil.ToFloat64(g.metrics.Deliveries.WithLabelValues("market-updates")))

	cached, err := g.cache.Latest(ctx, domain.KindProperty)
	require.NoError(t, err)
	assert.Contains(t, string(cached), "PROP1")
}
