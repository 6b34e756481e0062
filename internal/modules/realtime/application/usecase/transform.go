package usecase

import (
	"fmt"

	"propertyFeedWs/internal/modules/realtime/domain"
	"propertyFeedWs/internal/shared/normalization"
)

// Transformer turns raw domain events into the display form clients receive.
// It holds no state besides the formatter, so equal inputs give equal outputs.
type Transformer struct {
	format *normalization.Formatter
}

func NewTransformer(format *normalization.Formatter) *Transformer {
	if format == nil {
		format = normalization.DefaultFormatter()
	}
	return &Transformer{format: format}
}

// Transform dispatches on the event variant. Kinds outside the closed set return
// ErrUnsupportedEventKind.
func (t *Transformer) Transform(evt domain.DomainEvent) (*domain.NormalizedEvent, error) {
	switch e := evt.(type) {
	case *domain.PropertyEvent:
		return t.property(e), nil
	case *domain.MarketEvent:
		return t.market(e), nil
	case *domain.InfrastructureEvent:
		return t.infrastructure(e), nil
	case nil:
		return nil, fmt.Errorf("%w: nil event", domain.ErrUnsupportedEventKind)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedEventKind, evt.EventKind())
	}
}

func (t *Transformer) property(e *domain.PropertyEvent) *domain.NormalizedEvent {
	view := domain.PropertyView{
		ID:       e.PropertyID,
		Location: e.Location,
		Metrics: domain.PropertyFigures{
			Price:         t.format.Currency(e.Metrics.Price),
			Equity:        t.format.Percentage(e.Metrics.Equity),
			ClearanceRate: t.format.Percentage(e.Metrics.ClearanceRate),
			GrowthRate:    t.format.Percentage(e.Metrics.GrowthRate),
		},
		ZoneClassification: domain.ZoneView{
			Zone:        e.ZoneClassification.CurrentZone,
			Confidence:  t.format.Percentage(e.ZoneClassification.Confidence),
			LastUpdated: e.ZoneClassification.LastUpdated,
		},
	}
	return envelope(e.EventHeader, domain.KindProperty, e.PropertyID, view)
}

func (t *Transformer) market(e *domain.MarketEvent) *domain.NormalizedEvent {
	view := domain.MarketView{
		MarketID: e.MarketID,
		Indicators: domain.MarketIndicators{
			MedianPrice:   t.format.Currency(e.MedianPrice),
			SalesVolume:   e.SalesVolume,
			DaysOnMarket:  e.DaysOnMarket,
			ClearanceRate: t.format.Percentage(e.ClearanceRate),
		},
		Trends: domain.MarketTrendsView{
			PriceGrowth:  t.format.Percentage(e.Trends.PriceGrowth),
			VolumeGrowth: t.format.Percentage(e.Trends.VolumeGrowth),
			DemandIndex:  e.Trends.DemandIndex,
		},
	}
	return envelope(e.EventHeader, domain.KindMarket, e.MarketID, view)
}

func (t *Transformer) infrastructure(e *domain.InfrastructureEvent) *domain.NormalizedEvent {
	view := domain.InfrastructureView{
		ProjectID: e.ProjectID,
		Details: domain.ProjectDetails{
			Name:       e.Name,
			Category:   e.Category,
			Status:     e.Status,
			Completion: t.format.Percentage(e.Completion),
		},
		Impact: domain.ImpactView{
			Radius:         e.Impact.Radius,
			EstimatedValue: t.format.Currency(e.Impact.EstimatedValue),
			Confidence:     t.format.Percentage(e.Impact.Confidence),
		},
	}
	return envelope(e.EventHeader, domain.KindInfrastructure, e.ProjectID, view)
}

func envelope(h domain.EventHeader, kind domain.Kind, id string, data any) *domain.NormalizedEvent {
	channel, _ := domain.ChannelFor(kind)
	return &domain.NormalizedEvent{
		EventID:   h.EventID,
		Kind:      kind,
		Channel:   channel,
		ID:        id,
		EmittedAt: h.EmittedAt,
		Data:      data,
	}
}
