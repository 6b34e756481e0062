// Package metrics exposes the Prometheus collectors of the feed pipeline.
//
// Each Metrics value owns its registry so tests and multiple gateway instances in one
// process never collide on registration.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "property_feed"

// Eviction reasons.
const (
	ReasonStale    = "stale"
	ReasonSlow     = "slow_consumer"
	ReasonClosed   = "closed"
	ReasonShutdown = "shutdown"
)

type Metrics struct {
	registry *prometheus.Registry

	EventsPublished  *prometheus.CounterVec
	ProducerFailures *prometheus.CounterVec
	ProducerRetries  *prometheus.CounterVec
	EventsRelayed    *prometheus.CounterVec
	TransformErrors  *prometheus.CounterVec
	Deliveries       *prometheus.CounterVec
	Connections      prometheus.Gauge
	Evictions        *prometheus.CounterVec
	MalformedFrames  prometheus.Counter
	BrokerReconnects prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Domain events accepted by the broker, by channel",
		}, []string{"channel"}),
		ProducerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "producer_failures_total",
			Help:      "Scheduled firings that failed after every retry, by kind",
		}, []string{"kind"}),
		ProducerRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "producer_retries_total",
			Help:      "Retried producer attempts, by kind",
		}, []string{"kind"}),
		EventsRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_relayed_total",
			Help:      "Broker messages received by the gateway, by channel",
		}, []string{"channel"}),
		TransformErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transform_errors_total",
			Help:      "Events dropped because they could not be decoded or transformed, by kind",
		}, []string{"kind"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Frames queued to client connections, by channel",
		}, []string{"channel"}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Currently registered client connections",
		}),
		Evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_evictions_total",
			Help:      "Connections removed from the registry, by reason",
		}, []string{"reason"}),
		MalformedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_frames_total",
			Help:      "Client frames answered with an error frame",
		}),
		BrokerReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broker_reconnects_total",
			Help:      "Broker subscription sessions re-established after a failure",
		}),
	}
	m.registry.MustRegister(
		m.EventsPublished,
		m.ProducerFailures,
		m.ProducerRetries,
		m.EventsRelayed,
		m.TransformErrors,
		m.Deliveries,
		m.Connections,
		m.Evictions,
		m.MalformedFrames,
		m.BrokerReconnects,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
