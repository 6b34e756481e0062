package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"propertyFeedWs/internal/modules/realtime/domain"
	"propertyFeedWs/internal/platform/metrics"
)

var ErrNoMatchingChannel = errors.New("pattern matches no channel")

type registration struct {
	pattern  string
	channels []domain.Channel
	handler  DeliverFunc
}

// Bridge publishes domain events and keeps one subscription session open for every
// registered pattern, re-establishing it with exponential backoff when the driver fails.
// Patterns registered while a session is open are added to it in place.
type Bridge struct {
	driver     Driver
	metrics    *metrics.Metrics
	logger     *slog.Logger
	minBackoff time.Duration
	maxBackoff time.Duration

	mu            sync.Mutex
	registrations []registration
	changed       chan struct{}

	// live session, guarded by mu
	session         Subscription
	sessionChannels []domain.Channel
	cancelSession   context.CancelFunc

	subscribed     chan struct{}
	subscribedOnce sync.Once
}

func NewBridge(driver Driver, m *metrics.Metrics, logger *slog.Logger, minBackoff, maxBackoff time.Duration) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	if minBackoff <= 0 {
		minBackoff = 500 * time.Millisecond
	}
	if maxBackoff < minBackoff {
		maxBackoff = minBackoff
	}
	return &Bridge{
		driver:     driver,
		metrics:    m,
		logger:     logger,
		minBackoff: minBackoff,
		maxBackoff: maxBackoff,
		changed:    make(chan struct{}, 1),
		subscribed: make(chan struct{}),
	}
}

// PublishEvent encodes evt and publishes it on the channel of its kind. It returns once
// the broker accepted the message.
func (b *Bridge) PublishEvent(ctx context.Context, evt domain.DomainEvent) error {
	if evt == nil {
		return fmt.Errorf("%w: nil event", domain.ErrUnsupportedEventKind)
	}
	channel, ok := domain.ChannelFor(evt.EventKind())
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnsupportedEventKind, evt.EventKind())
	}
	payload, err := domain.EncodeEvent(evt)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", evt.EventKind(), err)
	}
	if err := b.driver.Publish(ctx, channel, payload); err != nil {
		return err
	}
	b.metrics.EventsPublished.WithLabelValues(string(channel)).Inc()
	return nil
}

// Subscribe registers handler for every channel matching pattern. Registrations are never
// removed. Channels new to an open session are added to it without interrupting delivery
// on the channels it already carries.
func (b *Bridge) Subscribe(pattern string, handler DeliverFunc) ([]domain.Channel, error) {
	channels := domain.MatchChannels(pattern)
	if len(channels) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoMatchingChannel, pattern)
	}
	b.mu.Lock()
	b.registrations = append(b.registrations, registration{pattern: pattern, channels: channels, handler: handler})
	session, cancel := b.session, b.cancelSession
	var added []domain.Channel
	if session != nil {
		added = b.pendingLocked()
	}
	b.mu.Unlock()

	b.logger.Info("broker subscription registered", slog.String("pattern", pattern), slog.Any("channels", channels))
	if session == nil {
		select {
		case b.changed <- struct{}{}:
		default:
		}
		return channels, nil
	}
	if len(added) > 0 {
		if err := session.Add(context.Background(), added); err != nil {
			b.logger.Warn("broker session refused new channels, restarting",
				slog.Any("channels", added), slog.Any("error", err))
			cancel()
		}
	}
	return channels, nil
}

// Subscribed is closed once the first session is established.
func (b *Bridge) Subscribed() <-chan struct{} {
	return b.subscribed
}

// Run keeps a subscription session open until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = b.minBackoff
	bo.MaxInterval = b.maxBackoff
	failures := 0

	for {
		if ctx.Err() != nil {
			return nil
		}
		channels := b.snapshot()
		if len(channels) == 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-b.changed:
				continue
			}
		}

		sessionCtx, cancel := context.WithCancel(ctx)
		b.mu.Lock()
		b.cancelSession = cancel
		b.mu.Unlock()

		ready := func(session Subscription) {
			b.mu.Lock()
			b.session = session
			b.sessionChannels = slices.Clone(channels)
			added := b.pendingLocked()
			b.mu.Unlock()
			if len(added) > 0 {
				if err := session.Add(sessionCtx, added); err != nil {
					b.logger.Warn("broker session refused new channels, restarting", slog.Any("channels", added), slog.Any("error", err))
					cancel()
				}
			}

			bo.Reset()
			if failures > 0 {
				b.metrics.BrokerReconnects.Inc()
				b.logger.Info("broker session re-established", slog.String("driver", b.driver.Name()), slog.Int("failures", failures), slog.Any("channels", channels))
			} else {
				b.logger.Info("broker session established", slog.String("driver", b.driver.Name()), slog.Any("channels", channels))
			}
			failures = 0
			b.subscribedOnce.Do(func() { close(b.subscribed) })
		}
		err := b.driver.Subscribe(sessionCtx, channels, ready, b.dispatch)
		cancel()

		b.mu.Lock()
		b.session = nil
		b.sessionChannels = nil
		b.cancelSession = nil
		b.mu.Unlock()

		if ctx.Err() != nil {
			return nil
		}

		failures++
		wait := bo.NextBackOff()
		b.logger.Warn("broker session lost",
			slog.String("driver", b.driver.Name()),
			slog.Int("attempt", failures),
			slog.Duration("retryIn", wait),
			slog.Any("error", err))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// dispatch hands a payload to every registration covering its channel, including ones
// added after the session opened.
func (b *Bridge) dispatch(ctx context.Context, channel domain.Channel, payload []byte) {
	b.mu.Lock()
	handlers := make([]DeliverFunc, 0, len(b.registrations))
	for _, reg := range b.registrations {
		if slices.Contains(reg.channels, channel) {
			handlers = append(handlers, reg.handler)
		}
	}
	b.mu.Unlock()

	for _, handler := range handlers {
		handler(ctx, channel, payload)
	}
}

// snapshot returns every registered channel and consumes any pending change signal,
// since the returned set already covers it.
func (b *Bridge) snapshot() []domain.Channel {
	b.mu.Lock()
	defer b.mu.Unlock()
	select {
	case <-b.changed:
	default:
	}
	return b.channelsLocked()
}

func (b *Bridge) channelsLocked() []domain.Channel {
	var channels []domain.Channel
	for _, reg := range b.registrations {
		for _, ch := range reg.channels {
			if !slices.Contains(channels, ch) {
				channels = append(channels, ch)
			}
		}
	}
	return channels
}

// pendingLocked returns the registered channels the live session does not carry yet
// and records them as carried.
func (b *Bridge) pendingLocked() []domain.Channel {
	var added []domain.Channel
	for _, ch := range b.channelsLocked() {
		if !slices.Contains(b.sessionChannels, ch) {
			added = append(added, ch)
			b.sessionChannels = append(b.sessionChannels, ch)
		}
	}
	return added
}

func (b *Bridge) Close() error {
	return b.driver.Close()
}
