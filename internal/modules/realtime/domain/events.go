package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DomainEvent is the closed set of raw events producers publish on the broker.
// Concrete variants are *PropertyEvent, *MarketEvent and *InfrastructureEvent;
// *OpaqueEvent carries kinds this build does not know about.
type DomainEvent interface {
	EventKind() Kind
	EventTime() time.Time
	isDomainEvent()
}

// EventHeader holds the fields shared by every domain event.
type EventHeader struct {
	EventID   string    `json:"eventId,omitempty"`
	Kind      Kind      `json:"kind"`
	EmittedAt time.Time `json:"emittedAt"`
}

func (h EventHeader) EventKind() Kind      { return h.Kind }
func (h EventHeader) EventTime() time.Time { return h.EmittedAt }
func (EventHeader) isDomainEvent()         {}

func (h *EventHeader) headerRef() *EventHeader { return h }

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Location struct {
	Suburb      string      `json:"suburb"`
	Postcode    string      `json:"postcode"`
	Coordinates Coordinates `json:"coordinates"`
}

// PropertyMetrics are raw figures; ratios are expressed in percent units (42 means 42%).
type PropertyMetrics struct {
	Price         float64 `json:"price"`
	Equity        float64 `json:"equity"`
	ClearanceRate float64 `json:"clearanceRate"`
	GrowthRate    float64 `json:"growthRate"`
}

type ZoneClassification struct {
	CurrentZone string    `json:"currentZone"`
	Confidence  float64   `json:"confidence"`
	LastUpdated time.Time `json:"lastUpdated"`
}

type PropertyEvent struct {
	EventHeader
	PropertyID         string             `json:"propertyId"`
	Location           Location           `json:"location"`
	Metrics            PropertyMetrics    `json:"metrics"`
	ZoneClassification ZoneClassification `json:"zoneClassification"`
}

type MarketTrends struct {
	PriceGrowth  float64 `json:"priceGrowth"`
	VolumeGrowth float64 `json:"volumeGrowth"`
	DemandIndex  float64 `json:"demandIndex"`
}

type MarketEvent struct {
	EventHeader
	MarketID      string       `json:"marketId"`
	MedianPrice   float64      `json:"medianPrice"`
	SalesVolume   int          `json:"salesVolume"`
	DaysOnMarket  int          `json:"daysOnMarket"`
	ClearanceRate float64      `json:"clearanceRate"`
	Trends        MarketTrends `json:"trends"`
}

type ProjectImpact struct {
	Radius         float64 `json:"radius"`
	EstimatedValue float64 `json:"estimatedValue"`
	Confidence     float64 `json:"confidence"`
}

type InfrastructureEvent struct {
	EventHeader
	ProjectID  string        `json:"projectId"`
	Name       string        `json:"name"`
	Category   string        `json:"category"`
	Status     string        `json:"status"`
	Completion float64       `json:"completion"`
	Impact     ProjectImpact `json:"impact"`
}

// OpaqueEvent is what DecodeEvent yields for a kind outside the closed set. It is
// never transformed or delivered.
type OpaqueEvent struct {
	EventHeader
	Raw json.RawMessage `json:"-"`
}

// NewPropertyEvent stamps the header of a property event.
func NewPropertyEvent(id string, at time.Time) *PropertyEvent {
	return &PropertyEvent{EventHeader: EventHeader{EventID: id, Kind: KindProperty, EmittedAt: at.UTC()}}
}

// NewMarketEvent stamps the header of a market event.
func NewMarketEvent(id string, at time.Time) *MarketEvent {
	return &MarketEvent{EventHeader: EventHeader{EventID: id, Kind: KindMarket, EmittedAt: at.UTC()}}
}

// NewInfrastructureEvent stamps the header of an infrastructure event.
func NewInfrastructureEvent(id string, at time.Time) *InfrastructureEvent {
	return &InfrastructureEvent{EventHeader: EventHeader{EventID: id, Kind: KindInfrastructure, EmittedAt: at.UTC()}}
}

// EncodeEvent serializes an event for the broker.
func EncodeEvent(evt DomainEvent) ([]byte, error) {
	if evt == nil {
		return nil, fmt.Errorf("encode event: nil event")
	}
	if opaque, ok := evt.(*OpaqueEvent); ok && len(opaque.Raw) > 0 {
		return opaque.Raw, nil
	}
	return json.Marshal(evt)
}

// DecodeEvent parses a broker payload into its concrete variant. Payloads that
// are not JSON objects return ErrMalformedEvent; unknown kinds decode into an
// *OpaqueEvent so the transformer can reject them explicitly.
func DecodeEvent(data []byte) (DomainEvent, error) {
	var header EventHeader
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	header.Kind = Kind(strings.ToLower(strings.TrimSpace(string(header.Kind))))

	var evt DomainEvent
	switch header.Kind {
	case KindProperty:
		evt = &PropertyEvent{}
	case KindMarket:
		evt = &MarketEvent{}
	case KindInfrastructure:
		evt = &InfrastructureEvent{}
	default:
		raw := make(json.RawMessage, len(data))
		copy(raw, data)
		return &OpaqueEvent{EventHeader: header, Raw: raw}, nil
	}
	if err := json.Unmarshal(data, evt); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, header.Kind, err)
	}
	if h, ok := evt.(interface{ headerRef() *EventHeader }); ok {
		h.headerRef().Kind = header.Kind
	}
	return evt, nil
}
