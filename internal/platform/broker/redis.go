package broker

import (
	"context"

	"github.com/redis/go-redis/v9"

	"propertyFeedWs/internal/modules/realtime/domain"
)

// RedisDriver uses Redis PUBLISH/SUBSCRIBE. Messages published while no session is
// subscribed are lost, as with any Redis pub/sub consumer.
type RedisDriver struct {
	client redis.UniversalClient
}

func NewRedisDriver(client redis.UniversalClient) *RedisDriver {
	return &RedisDriver{client: client}
}

// Client exposes the underlying connection so the event cache can share it.
func (d *RedisDriver) Client() redis.UniversalClient { return d.client }

func (d *RedisDriver) Name() string { return DriverRedis }

func (d *RedisDriver) Ping(ctx context.Context) error {
	if err := d.client.Ping(ctx).Err(); err != nil {
		return unavailable("redis ping", err)
	}
	return nil
}

func (d *RedisDriver) Publish(ctx context.Context, channel domain.Channel, payload []byte) error {
	if err := d.client.Publish(ctx, string(channel), payload).Err(); err != nil {
		return unavailable("redis publish", err)
	}
	return nil
}

func (d *RedisDriver) Subscribe(ctx context.Context, channels []domain.Channel, ready func(Subscription), deliver DeliverFunc) error {
	ps := d.client.Subscribe(ctx, channelNames(channels)...)
	defer ps.Close()

	// ReceiveMessage does not return on cancellation alone.
	stop := context.AfterFunc(ctx, func() { _ = ps.Close() })
	defer stop()

	if _, err := ps.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return unavailable("redis subscribe", err)
	}
	ready(redisSubscription{ps: ps})

	for {
		msg, err := ps.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return unavailable("redis receive", err)
		}
		deliver(ctx, domain.Channel(msg.Channel), []byte(msg.Payload))
	}
}

type redisSubscription struct {
	ps *redis.PubSub
}

func (s redisSubscription) Add(ctx context.Context, channels []domain.Channel) error {
	if err := s.ps.Subscribe(ctx, channelNames(channels)...); err != nil {
		return unavailable("redis subscribe", err)
	}
	return nil
}

func (d *RedisDriver) Close() error {
	return d.client.Close()
}
