// Package broker connects the feed pipeline to a pub/sub broker. A Driver speaks to one
// broker technology; the Bridge adds channel resolution, event encoding and the
// reconnect loop on top of it.
package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"propertyFeedWs/internal/modules/realtime/domain"
)

// Driver names.
const (
	DriverRedis  = "redis"
	DriverKafka  = "kafka"
	DriverMemory = "memory"
)

var ErrUnknownDriver = errors.New("unknown broker driver")

// DeliverFunc receives one raw payload published on channel.
type DeliverFunc func(ctx context.Context, channel domain.Channel, payload []byte)

// Subscription is an open session returned to the ready callback of Driver.Subscribe.
type Subscription interface {
	// Add starts delivering channels on the open session without interrupting the
	// channels already subscribed.
	Add(ctx context.Context, channels []domain.Channel) error
}

type Driver interface {
	Name() string
	Ping(ctx context.Context) error
	Publish(ctx context.Context, channel domain.Channel, payload []byte) error
	// Subscribe listens on channels until ctx is done or the session breaks. It calls
	// ready on the calling goroutine once the subscription is in place, then deliver for
	// every message, in publish order per channel. A broken session returns an error
	// wrapping domain.ErrBrokerUnavailable.
	Subscribe(ctx context.Context, channels []domain.Channel, ready func(Subscription), deliver DeliverFunc) error
	Close() error
}

// Options selects and configures a driver.
type Options struct {
	Driver        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KafkaBrokers  []string
	KafkaGroupID  string
}

// NewDriver builds the driver named in opts.
func NewDriver(opts Options) (Driver, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case DriverRedis, "":
		client := redis.NewClient(&redis.Options{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
		})
		return NewRedisDriver(client), nil
	case DriverKafka:
		if len(opts.KafkaBrokers) == 0 {
			return nil, fmt.Errorf("kafka driver: no brokers configured")
		}
		return NewKafkaDriver(opts.KafkaBrokers, opts.KafkaGroupID), nil
	case DriverMemory:
		return NewMemoryDriver(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, opts.Driver)
	}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrBrokerUnavailable, op, err)
}

func channelNames(channels []domain.Channel) []string {
	names := make([]string, len(channels))
	for i, ch := range channels {
		names[i] = string(ch)
	}
	return names
}
