package domain

import (
	"errors"
	"time"

	realtime "propertyFeedWs/internal/modules/realtime/domain"
)

var (
	// ErrUnknownJob is returned when no job is scheduled for a kind.
	ErrUnknownJob = errors.New("no producer job for kind")
	// ErrInvalidPeriod rejects jobs that would never fire.
	ErrInvalidPeriod = errors.New("job period must be positive")
)

// Job produces one event of Kind every Period.
type Job struct {
	Kind   realtime.Kind
	Period time.Duration
}

// Channel is the channel the job publishes on.
func (j Job) Channel() realtime.Channel {
	ch, _ := realtime.ChannelFor(j.Kind)
	return ch
}

func (j Job) Validate() error {
	if _, ok := realtime.ChannelFor(j.Kind); !ok {
		return realtime.ErrUnsupportedEventKind
	}
	if j.Period <= 0 {
		return ErrInvalidPeriod
	}
	return nil
}

// DefaultJobs mirrors the production cadence: property every 5 minutes, market hourly,
// infrastructure daily.
func DefaultJobs() []Job {
	return []Job{
		{Kind: realtime.KindProperty, Period: 5 * time.Minute},
		{Kind: realtime.KindMarket, Period: time.Hour},
		{Kind: realtime.KindInfrastructure, Period: 24 * time.Hour},
	}
}
