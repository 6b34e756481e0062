package broker

import (
	"context"
	"errors"
	"sync"

	"propertyFeedWs/internal/modules/realtime/domain"
)

var errMemoryDown = errors.New("memory broker is down")

type memoryMessage struct {
	channel domain.Channel
	payload []byte
}

type memorySubscriber struct {
	channels map[domain.Channel]struct{}
	messages chan memoryMessage
	done     chan struct{}
	kill     chan error
}

// MemoryDriver is an in-process broker for single-binary runs and tests. Publish waits
// for every matching subscriber to accept the message, so nothing is dropped while a
// session is open.
type MemoryDriver struct {
	subscribers map[*memorySubscriber]struct{}
	down        bool
	closed      bool
	mu          sync.RWMutex
}

func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{subscribers: make(map[*memorySubscriber]struct{})}
}

func (d *MemoryDriver) Name() string { return DriverMemory }

func (d *MemoryDriver) Ping(context.Context) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.availableLocked("memory ping")
}

func (d *MemoryDriver) Publish(ctx context.Context, channel domain.Channel, payload []byte) error {
	d.mu.RLock()
	if err := d.availableLocked("memory publish"); err != nil {
		d.mu.RUnlock()
		return err
	}
	targets := make([]*memorySubscriber, 0, len(d.subscribers))
	for sub := range d.subscribers {
		if _, ok := sub.channels[channel]; ok {
			targets = append(targets, sub)
		}
	}
	d.mu.RUnlock()

	msg := memoryMessage{channel: channel, payload: append([]byte(nil), payload...)}
	for _, sub := range targets {
		select {
		case sub.messages <- msg:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (d *MemoryDriver) Subscribe(ctx context.Context, channels []domain.Channel, ready func(Subscription), deliver DeliverFunc) error {
	sub := &memorySubscriber{
		channels: make(map[domain.Channel]struct{}, len(channels)),
		messages: make(chan memoryMessage, 50),
		done:     make(chan struct{}),
		kill:     make(chan error, 1),
	}
	for _, ch := range channels {
		sub.channels[ch] = struct{}{}
	}

	d.mu.Lock()
	if err := d.availableLocked("memory subscribe"); err != nil {
		d.mu.Unlock()
		return err
	}
	d.subscribers[sub] = struct{}{}
	d.mu.Unlock()

	defer func() {
		close(sub.done)
		d.mu.Lock()
		delete(d.subscribers, sub)
		d.mu.Unlock()
	}()
	ready(&memorySubscription{driver: d, sub: sub})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.kill:
			return err
		case msg := <-sub.messages:
			deliver(ctx, msg.channel, msg.payload)
		}
	}
}

type memorySubscription struct {
	driver *MemoryDriver
	sub    *memorySubscriber
}

func (s *memorySubscription) Add(_ context.Context, channels []domain.Channel) error {
	s.driver.mu.Lock()
	defer s.driver.mu.Unlock()
	if _, ok := s.driver.subscribers[s.sub]; !ok {
		return unavailable("memory subscribe", errors.New("session closed"))
	}
	for _, ch := range channels {
		s.sub.channels[ch] = struct{}{}
	}
	return nil
}

// Interrupt breaks every open session, as a dropped connection would.
func (d *MemoryDriver) Interrupt() {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for sub := range d.subscribers {
		select {
		case sub.kill <- unavailable("memory session", errMemoryDown):
		default:
		}
	}
}

// SetDown makes the broker refuse every operation until it is brought back up.
func (d *MemoryDriver) SetDown(down bool) {
	d.mu.Lock()
	d.down = down
	d.mu.Unlock()
	if down {
		d.Interrupt()
	}
}

// Subscribers returns the number of open sessions.
func (d *MemoryDriver) Subscribers() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}

func (d *MemoryDriver) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.Interrupt()
	return nil
}

func (d *MemoryDriver) availableLocked(op string) error {
	if d.closed {
		return unavailable(op, errors.New("memory broker is closed"))
	}
	if d.down {
		return unavailable(op, errMemoryDown)
	}
	return nil
}
