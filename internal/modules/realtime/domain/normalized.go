package domain

import "time"

// NormalizedEvent is the display-ready form of a DomainEvent that clients receive.
// Data holds one of PropertyView, MarketView or InfrastructureView.
type NormalizedEvent struct {
	EventID   string    `json:"eventId,omitempty"`
	Kind      Kind      `json:"kind"`
	Channel   Channel   `json:"channel"`
	ID        string    `json:"id"`
	EmittedAt time.Time `json:"emittedAt"`
	Data      any       `json:"data"`
}

type PropertyFigures struct {
	Price         string `json:"price"`
	Equity        string `json:"equity"`
	ClearanceRate string `json:"clearanceRate"`
	GrowthRate    string `json:"growthRate"`
}

type ZoneView struct {
	Zone        string    `json:"zone"`
	Confidence  string    `json:"confidence"`
	LastUpdated time.Time `json:"lastUpdated"`
}

type PropertyView struct {
	ID                 string          `json:"id"`
	Location           Location        `json:"location"`
	Metrics            PropertyFigures `json:"metrics"`
	ZoneClassification ZoneView        `json:"zoneClassification"`
}

type MarketIndicators struct {
	MedianPrice   string `json:"medianPrice"`
	SalesVolume   int    `json:"salesVolume"`
	DaysOnMarket  int    `json:"daysOnMarket"`
	ClearanceRate string `json:"clearanceRate"`
}

type MarketTrendsView struct {
	PriceGrowth  string  `json:"priceGrowth"`
	VolumeGrowth string  `json:"volumeGrowth"`
	DemandIndex  float64 `json:"demandIndex"`
}

type MarketView struct {
	MarketID   string           `json:"marketId"`
	Indicators MarketIndicators `json:"indicators"`
	Trends     MarketTrendsView `json:"trends"`
}

type ProjectDetails struct {
	Name       string `json:"name"`
	Category   string `json:"category"`
	Status     string `json:"status"`
	Completion string `json:"completion"`
}

type ImpactView struct {
	Radius         float64 `json:"radius"`
	EstimatedValue string  `json:"estimatedValue"`
	Confidence     string  `json:"confidence"`
}

type InfrastructureView struct {
	ProjectID string         `json:"projectId"`
	Details   ProjectDetails `json:"details"`
	Impact    ImpactView     `json:"impact"`
}
