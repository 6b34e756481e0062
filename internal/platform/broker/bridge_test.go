package broker

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propertyFeedWs/internal/modules/realtime/domain"
	"propertyFeedWs/internal/platform/metrics"
)

type collector struct {
	mu       sync.Mutex
	messages []domain.Message
}

func (c *collector) deliver(_ context.Context, channel domain.Channel, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, domain.Message{Channel: channel, Payload: payload})
}

func (c *collector) snapshot() []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Message(nil), c.messages...)
}

func startBridge(t *testing.T) (*Bridge, *MemoryDriver, *metrics.Metrics) {
	t.Helper()
	driver := NewMemoryDriver()
	m := metrics.New()
	bridge := NewBridge(driver, m, nil, 5*time.Millisecond, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = bridge.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return bridge, driver, m
}

func marketEvent(id string) *domain.MarketEvent {
	evt := domain.NewMarketEvent(id, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	evt.MarketID = id
	return evt
}

func waitSubscribed(t *testing.T, b *Bridge) {
	t.Helper()
	select {
	case <-b.Subscribed():
	case <-time.After(2 * time.Second):
		t.Fatal("bridge never subscribed")
	}
}

func TestBridgeDeliversMatchingChannelsInOrder(t *testing.T) {
	bridge, _, m := startBridge(t)
	sink := &collector{}

	channels, err := bridge.Subscribe("market-*", sink.deliver)
	require.NoError(t, err)
	assert.Equal(t, []domain.Channel{domain.ChannelMarketUpdates}, channels)
	waitSubscribed(t, bridge)

	ctx := context.Background()
	prop := domain.NewPropertyEvent("p", time.Now())
	require.NoError(t, bridge.PublishEvent(ctx, prop))
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, bridge.PublishEvent(ctx, marketEvent(id)))
	}

	require.Eventually(t, func() bool { return len(sink.snapshot()) == 3 }, 2*time.Second, 5*time.Millisecond)
	for i, id := range []string{"a", "b", "c"} {
		msg := sink.snapshot()[i]
		assert.Equal(t, domain.ChannelMarketUpdates, msg.Channel)
		evt, err := domain.DecodeEvent(msg.Payload)
		require.NoError(t, err)
		assert.Equal(t, id, evt.(*domain.MarketEvent).MarketID)
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues("market-updates")))
}

func TestBridgeSubscribeRejectsUnknownPattern(t *testing.T) {
	bridge := NewBridge(NewMemoryDriver(), metrics.New(), nil, 0, 0)
	_, err := bridge.Subscribe("weather-*", func(context.Context, domain.Channel, []byte) {})
	assert.ErrorIs(t, err, ErrNoMatchingChannel)
}

func TestBridgePublishRejectsUnsupportedKind(t *testing.T) {
	bridge := NewBridge(NewMemoryDriver(), metrics.New(), nil, 0, 0)
	evt, err := domain.DecodeEvent([]byte(`{"kind":"weather"}`))
	require.NoError(t, err)
	assert.ErrorIs(t, bridge.PublishEvent(context.Background(), evt), domain.ErrUnsupportedEventKind)
}

func TestBridgeSubscribeWhileRunningAddsChannels(t *testing.T) {
	bridge, driver, m := startBridge(t)
	markets := &collector{}
	everything := &collector{}

	_, err := bridge.Subscribe("market-updates", markets.deliver)
	require.NoError(t, err)
	waitSubscribed(t, bridge)

	_, err = bridge.Subscribe("*-updates", everything.deliver)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, bridge.PublishEvent(ctx, domain.NewInfrastructureEvent("i", time.Now())))
	require.NoError(t, bridge.PublishEvent(ctx, marketEvent("m")))

	require.Eventually(t, func() bool { return len(everything.snapshot()) == 2 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(markets.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.ChannelInfrastructureUpdates, everything.snapshot()[0].Channel)
	assert.Equal(t, 1, driver.Subscribers())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.BrokerReconnects), "a new registration is not a reconnect")
}

func TestBridgeSubscribeWhileRunningLosesNothing(t *testing.T) {
	bridge, driver, _ := startBridge(t)
	markets := &collector{}
	_, err := bridge.Subscribe("market-updates", markets.deliver)
	require.NoError(t, err)
	waitSubscribed(t, bridge)

	const total = 2000
	ctx := context.Background()
	published := make(chan error, 1)
	go func() {
		for i := range total {
			if err := bridge.PublishEvent(ctx, marketEvent(strconv.Itoa(i))); err != nil {
				published <- err
				return
			}
		}
		published <- nil
	}()

	require.Eventually(t, func() bool { return len(markets.snapshot()) >= 100 }, 2*time.Second, time.Millisecond)
	_, err = bridge.Subscribe("infrastructure-updates", func(context.Context, domain.Channel, []byte) {})
	require.NoError(t, err)
	require.NoError(t, <-published)

	require.Eventually(t, func() bool { return len(markets.snapshot()) == total }, 5*time.Second, 5*time.Millisecond)
	for i, msg := range markets.snapshot() {
		evt, err := domain.DecodeEvent(msg.Payload)
		require.NoError(t, err)
		if id := evt.(*domain.MarketEvent).MarketID; id != strconv.Itoa(i) {
			t.Fatalf("message %d out of order: got %s", i, id)
		}
	}
	assert.Equal(t, 1, driver.Subscribers())
}

func TestBridgeSubscribeBeforeRunOpensOneSession(t *testing.T) {
	driver := NewMemoryDriver()
	bridge := NewBridge(driver, metrics.New(), nil, 5*time.Millisecond, 20*time.Millisecond)
	sink := &collector{}
	_, err := bridge.Subscribe("*-updates", sink.deliver)
	require.NoError(t, err)

	sessions := 0
	var mu sync.Mutex
	counting := &countingDriver{Driver: driver, opened: func() {
		mu.Lock()
		sessions++
		mu.Unlock()
	}}
	bridge.driver = counting

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = bridge.Run(ctx)
	}()
	waitSubscribed(t, bridge)

	require.NoError(t, bridge.PublishEvent(context.Background(), marketEvent("m")))
	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, sessions)
}

type countingDriver struct {
	Driver
	opened func()
}

func (d *countingDriver) Subscribe(ctx context.Context, channels []domain.Channel, ready func(Subscription), deliver DeliverFunc) error {
	d.opened()
	return d.Driver.Subscribe(ctx, channels, ready, deliver)
}

func TestBridgeResubscribesAfterConnectivityLoss(t *testing.T) {
	bridge, driver, m := startBridge(t)
	sink := &collector{}
	_, err := bridge.Subscribe("*-updates", sink.deliver)
	require.NoError(t, err)
	waitSubscribed(t, bridge)

	ctx := context.Background()
	driver.SetDown(true)
	err = bridge.PublishEvent(ctx, marketEvent("lost"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBrokerUnavailable))
	require.Eventually(t, func() bool { return driver.Subscribers() == 0 }, time.Second, 5*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	driver.SetDown(false)

	require.Eventually(t, func() bool { return driver.Subscribers() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, bridge.PublishEvent(ctx, marketEvent("after")))
	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BrokerReconnects))
}
