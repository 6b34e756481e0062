package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"propertyFeedWs/internal/modules/feeds/application/port"
	"propertyFeedWs/internal/modules/feeds/domain"
	realtimeport "propertyFeedWs/internal/modules/realtime/application/port"
	realtime "propertyFeedWs/internal/modules/realtime/domain"
	"propertyFeedWs/internal/platform/metrics"
)

// Options tunes how firings are retried.
type Options struct {
	MaxAttempts    uint
	AttemptTimeout time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	FireOnStart    bool
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts == 0 {
		o.MaxAttempts = 5
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = 10 * time.Second
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = time.Second
	}
	if o.MaxBackoff < o.InitialBackoff {
		o.MaxBackoff = 30 * o.InitialBackoff
	}
	return o
}

// Scheduler fires one producer job per kind on a fixed period. Every firing runs in its
// own goroutine, so a firing that is still retrying never delays the next one.
type Scheduler struct {
	source    port.Source
	publisher realtimeport.EventPublisher
	jobs      map[realtime.Kind]domain.Job
	opts      Options
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	loops  sync.WaitGroup
}

func NewScheduler(source port.Source, publisher realtimeport.EventPublisher, jobs []domain.Job, opts Options, m *metrics.Metrics, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	byKind := make(map[realtime.Kind]domain.Job, len(jobs))
	for _, job := range jobs {
		if err := job.Validate(); err != nil {
			return nil, fmt.Errorf("job %s: %w", job.Kind, err)
		}
		byKind[job.Kind] = job
	}
	return &Scheduler{
		source:    source,
		publisher: publisher,
		jobs:      byKind,
		opts:      opts.withDefaults(),
		metrics:   m,
		logger:    logger,
	}, nil
}

// Start launches one ticker per job. Firings outlive ctx cancellation only as long as
// their retry budget.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	firingCtx := context.WithoutCancel(ctx)

	for _, job := range s.jobs {
		s.loops.Add(1)
		go func(job domain.Job) {
			defer s.loops.Done()
			s.loop(loopCtx, firingCtx, job)
		}(job)
		s.logger.Info("producer job scheduled", slog.String("kind", string(job.Kind)), slog.Duration("period", job.Period))
	}
}

// Stop cancels every timer and returns once no further firing can start. Firings that
// are already running are not waited for.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.loops.Wait()
}

// Trigger runs one firing for kind immediately, with the same retry policy, and waits
// for its outcome.
func (s *Scheduler) Trigger(ctx context.Context, kind realtime.Kind) error {
	job, ok := s.jobs[kind]
	if !ok {
		return fmt.Errorf("%w: %w %q", realtime.ErrUnsupportedEventKind, domain.ErrUnknownJob, kind)
	}
	return s.fire(ctx, job, "manual")
}

func (s *Scheduler) loop(loopCtx, firingCtx context.Context, job domain.Job) {
	if s.opts.FireOnStart {
		go s.fire(firingCtx, job, "startup")
	}
	ticker := time.NewTicker(job.Period)
	defer ticker.Stop()
	for {
		select {
		case <-loopCtx.Done():
			return
		case <-ticker.C:
			go s.fire(firingCtx, job, "schedule")
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, job domain.Job, trigger string) error {
	kind := string(job.Kind)
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.opts.InitialBackoff
	bo.MaxInterval = s.opts.MaxBackoff

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, s.produce(ctx, job)
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(s.opts.MaxAttempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			s.metrics.ProducerRetries.WithLabelValues(kind).Inc()
			s.logger.Warn("producer attempt failed",
				slog.String("kind", kind),
				slog.String("trigger", trigger),
				slog.Duration("retryIn", wait),
				slog.Any("error", err))
		}),
	)
	if err != nil {
		s.metrics.ProducerFailures.WithLabelValues(kind).Inc()
		s.logger.Error("producer firing failed", slog.String("kind", kind), slog.String("trigger", trigger), slog.Any("error", err))
		return fmt.Errorf("%w: %s: %w", realtime.ErrProducerFailure, kind, err)
	}
	s.logger.Debug("producer firing published", slog.String("kind", kind), slog.String("trigger", trigger))
	return nil
}

func (s *Scheduler) produce(ctx context.Context, job domain.Job) error {
	attemptCtx, cancel := context.WithTimeout(ctx, s.opts.AttemptTimeout)
	defer cancel()

	evt, err := s.source.Fetch(attemptCtx, job.Kind)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", job.Kind, err)
	}
	if evt == nil || evt.EventKind() != job.Kind {
		return backoff.Permanent(fmt.Errorf("%w: source returned %v for %s", realtime.ErrUnsupportedEventKind, kindOf(evt), job.Kind))
	}
	if err := s.publisher.PublishEvent(attemptCtx, evt); err != nil {
		if errors.Is(err, realtime.ErrUnsupportedEventKind) {
			return backoff.Permanent(err)
		}
		return fmt.Errorf("publish %s: %w", job.Kind, err)
	}
	return nil
}

func kindOf(evt realtime.DomainEvent) any {
	if evt == nil {
		return nil
	}
	return evt.EventKind()
}
