package infrastructure

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"propertyFeedWs/internal/modules/feeds/application/port"
	realtime "propertyFeedWs/internal/modules/realtime/domain"
)

// SyntheticSource generates plausible Sydney market data for local runs and demos.
type SyntheticSource struct {
	mu    sync.Mutex
	rng   *rand.Rand
	now   func() time.Time
	newID func() string
}

func NewSyntheticSource(seed uint64) *SyntheticSource {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &SyntheticSource{
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

func (s *SyntheticSource) Fetch(ctx context.Context, kind realtime.Kind) (realtime.DomainEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	switch kind {
	case realtime.KindProperty:
		return s.property(now), nil
	case realtime.KindMarket:
		return s.market(now), nil
	case realtime.KindInfrastructure:
		return s.infrastructure(now), nil
	default:
		return nil, fmt.Errorf("%w: %q", realtime.ErrUnsupportedEventKind, kind)
	}
}

func (s *SyntheticSource) property(now time.Time) *realtime.PropertyEvent {
	evt := realtime.NewPropertyEvent(s.newID(), now)
	evt.PropertyID = fmt.Sprintf("PROP%d", s.rng.IntN(1000))
	evt.Location = realtime.Location{
		Suburb:   "Sydney CBD",
		Postcode: "2000",
		Coordinates: realtime.Coordinates{
			Lat: -33.8688 + s.rng.Float64()*0.1,
			Lng: 151.2093 + s.rng.Float64()*0.1,
		},
	}
	evt.Metrics = realtime.PropertyMetrics{
		Price:         float64(s.rng.IntN(5_000_000) + 500_000),
		Equity:        float64(s.rng.IntN(60) + 20),
		ClearanceRate: float64(s.rng.IntN(30) + 60),
		GrowthRate:    float64(s.rng.IntN(15) + 1),
	}
	zone := "yellow"
	if s.rng.Float64() > 0.5 {
		zone = "green"
	}
	evt.ZoneClassification = realtime.ZoneClassification{
		CurrentZone: zone,
		Confidence:  float64(s.rng.IntN(20) + 80),
		LastUpdated: now.UTC(),
	}
	return evt
}

func (s *SyntheticSource) market(now time.Time) *realtime.MarketEvent {
	evt := realtime.NewMarketEvent(s.newID(), now)
	evt.MarketID = fmt.Sprintf("MKT%d", s.rng.IntN(1000))
	evt.MedianPrice = float64(s.rng.IntN(2_000_000) + 800_000)
	evt.SalesVolume = s.rng.IntN(500) + 100
	evt.DaysOnMarket = s.rng.IntN(30) + 15
	evt.ClearanceRate = float64(s.rng.IntN(30) + 60)
	evt.Trends = realtime.MarketTrends{
		PriceGrowth:  float64(s.rng.IntN(10) + 1),
		VolumeGrowth: float64(s.rng.IntN(20) - 10),
		DemandIndex:  float64(s.rng.IntN(50) + 50),
	}
	return evt
}

func (s *SyntheticSource) infrastructure(now time.Time) *realtime.InfrastructureEvent {
	evt := realtime.NewInfrastructureEvent(s.newID(), now)
	evt.ProjectID = fmt.Sprintf("INF%d", s.rng.IntN(1000))
	evt.Name = "Metro Line Extension"
	evt.Category = "Transport"
	evt.Status = "In Progress"
	evt.Completion = float64(s.rng.IntN(100))
	evt.Impact = realtime.ProjectImpact{
		Radius:         float64(s.rng.IntN(5) + 1),
		EstimatedValue: float64(s.rng.IntN(1_000_000_000)),
		Confidence:     float64(s.rng.IntN(20) + 80),
	}
	return evt
}

var _ port.Source = (*SyntheticSource)(nil)
