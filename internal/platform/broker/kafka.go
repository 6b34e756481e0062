package broker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"propertyFeedWs/internal/modules/realtime/domain"
)

// KafkaDriver maps every channel to a topic of the same name.
type KafkaDriver struct {
	brokers []string
	groupID string
	writer  *kafka.Writer
}

func NewKafkaDriver(brokers []string, groupID string) *KafkaDriver {
	return &KafkaDriver{
		brokers: brokers,
		groupID: groupID,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
		},
	}
}

func (d *KafkaDriver) Name() string { return DriverKafka }

func (d *KafkaDriver) Ping(ctx context.Context) error {
	var errs []error
	for _, addr := range d.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", addr)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		_ = conn.Close()
		return nil
	}
	return unavailable("kafka dial", errors.Join(errs...))
}

func (d *KafkaDriver) Publish(ctx context.Context, channel domain.Channel, payload []byte) error {
	if err := d.writer.WriteMessages(ctx, kafka.Message{Topic: string(channel), Key: []byte(channel), Value: payload}); err != nil {
		return unavailable("kafka write", err)
	}
	return nil
}

// Subscribe runs one reader per topic. Order is kept per topic partition, which covers
// per-channel order since the writer hashes every message of a channel to the same key.
func (d *KafkaDriver) Subscribe(ctx context.Context, channels []domain.Channel, ready func(Subscription), deliver DeliverFunc) error {
	g, gctx := errgroup.WithContext(ctx)
	session := &kafkaSession{driver: d, g: g, ctx: gctx, deliver: deliver}
	if err := session.Add(gctx, channels); err != nil {
		return err
	}
	ready(session)

	<-gctx.Done()
	session.close()
	err := g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// kafkaSession owns the readers of one Subscribe call. Readers are only started while
// the session is open, so every g.Go happens before g.Wait.
type kafkaSession struct {
	driver  *KafkaDriver
	g       *errgroup.Group
	ctx     context.Context
	deliver DeliverFunc

	mu      sync.Mutex
	readers []*kafka.Reader
	closed  bool
}

func (s *kafkaSession) Add(_ context.Context, channels []domain.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.ctx.Err() != nil {
		return unavailable("kafka subscribe", errors.New("session closed"))
	}
	for _, ch := range channels {
		r := kafka.NewReader(kafka.ReaderConfig{
			Brokers:     s.driver.brokers,
			GroupID:     s.driver.groupID,
			Topic:       string(ch),
			StartOffset: kafka.LastOffset,
			MaxWait:     500 * time.Millisecond,
		})
		s.readers = append(s.readers, r)
		s.g.Go(func() error { return s.consume(r, ch) })
	}
	return nil
}

func (s *kafkaSession) consume(r *kafka.Reader, channel domain.Channel) error {
	for {
		m, err := r.FetchMessage(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return s.ctx.Err()
			}
			return unavailable("kafka read "+string(channel), err)
		}
		slog.Debug("kafka message consumed",
			slog.String("topic", m.Topic),
			slog.Int("partition", m.Partition),
			slog.Int64("offset", m.Offset))
		s.deliver(s.ctx, channel, m.Value)
		if err := r.CommitMessages(s.ctx, m); err != nil && s.ctx.Err() == nil {
			slog.Warn("kafka commit error", slog.String("topic", m.Topic), slog.Any("error", err))
		}
	}
}

func (s *kafkaSession) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for _, r := range s.readers {
		_ = r.Close()
	}
}

func (d *KafkaDriver) Close() error {
	return d.writer.Close()
}
