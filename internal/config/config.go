// Package config resolves the gateway settings from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type KafkaConfig struct {
	Brokers []string
	GroupID string
}

type BrokerConfig struct {
	Driver       string
	Redis        RedisConfig
	Kafka        KafkaConfig
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

type ProducerConfig struct {
	PropertyPeriod       time.Duration
	MarketPeriod         time.Duration
	InfrastructurePeriod time.Duration
	Source               string
	UpstreamURL          string
	Timeout              time.Duration
	MaxAttempts          int
	FireOnStart          bool
}

type WebsocketConfig struct {
	ProbeInterval time.Duration
	SendBuffer    int
	WriteTimeout  time.Duration
	RelayBuffer   int
}

type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

type LoggingConfig struct {
	Level     string
	Format    string
	Directory string
}

type Config struct {
	Server    ServerConfig
	Broker    BrokerConfig
	Producer  ProducerConfig
	Websocket WebsocketConfig
	Cache     CacheConfig
	Logging   LoggingConfig
}

var defaults = map[string]any{
	"PORT":                    "3006",
	"BROKER_DRIVER":           "redis",
	"REDIS_HOST":              "localhost",
	"REDIS_PORT":              6379,
	"REDIS_PASSWORD":          "",
	"REDIS_DB":                0,
	"KAFKA_BROKERS":           "",
	"KAFKA_BROKER":            "",
	"KAFKA_GROUP_ID":          "property-feed-gateway",
	"BROKER_RECONNECT_MIN":    "500ms",
	"BROKER_RECONNECT_MAX":    "30s",
	"PROPERTY_PERIOD":         "5m",
	"MARKET_PERIOD":           "1h",
	"INFRASTRUCTURE_PERIOD":   "24h",
	"PRODUCER_SOURCE":         "synthetic",
	"DATA_INFRASTRUCTURE_URL": "",
	"PRODUCER_TIMEOUT":        "10s",
	"PRODUCER_MAX_ATTEMPTS":   5,
	"PRODUCER_FIRE_ON_START":  false,
	"WS_PROBE_INTERVAL":       "30s",
	"WS_SEND_BUFFER":          16,
	"WS_WRITE_TIMEOUT":        "10s",
	"RELAY_BUFFER":            64,
	"CACHE_ENABLED":           true,
	"CACHE_TTL":               "1h",
	"LOG_LEVEL":               "info",
	"LOG_FORMAT":              "text",
	"LOG_DIR":                 "./logs",
}

// Load reads the process environment.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	return FromViper(v)
}

// FromViper builds a validated Config from v, filling unset keys with defaults.
func FromViper(v *viper.Viper) (*Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	brokers := splitList(v.GetString("KAFKA_BROKERS"))
	if len(brokers) == 0 {
		brokers = splitList(v.GetString("KAFKA_BROKER"))
	}

	cfg := &Config{
		Server: ServerConfig{Port: strings.TrimSpace(v.GetString("PORT"))},
		Broker: BrokerConfig{
			Driver: strings.ToLower(strings.TrimSpace(v.GetString("BROKER_DRIVER"))),
			Redis: RedisConfig{
				Host:     v.GetString("REDIS_HOST"),
				Port:     v.GetInt("REDIS_PORT"),
				Password: v.GetString("REDIS_PASSWORD"),
				DB:       v.GetInt("REDIS_DB"),
			},
			Kafka: KafkaConfig{
				Brokers: brokers,
				GroupID: v.GetString("KAFKA_GROUP_ID"),
			},
			ReconnectMin: v.GetDuration("BROKER_RECONNECT_MIN"),
			ReconnectMax: v.GetDuration("BROKER_RECONNECT_MAX"),
		},
		Producer: ProducerConfig{
			PropertyPeriod:       v.GetDuration("PROPERTY_PERIOD"),
			MarketPeriod:         v.GetDuration("MARKET_PERIOD"),
			InfrastructurePeriod: v.GetDuration("INFRASTRUCTURE_PERIOD"),
			Source:               strings.ToLower(strings.TrimSpace(v.GetString("PRODUCER_SOURCE"))),
			UpstreamURL:          strings.TrimSpace(v.GetString("DATA_INFRASTRUCTURE_URL")),
			Timeout:              v.GetDuration("PRODUCER_TIMEOUT"),
			MaxAttempts:          v.GetInt("PRODUCER_MAX_ATTEMPTS"),
			FireOnStart:          v.GetBool("PRODUCER_FIRE_ON_START"),
		},
		Websocket: WebsocketConfig{
			ProbeInterval: v.GetDuration("WS_PROBE_INTERVAL"),
			SendBuffer:    v.GetInt("WS_SEND_BUFFER"),
			WriteTimeout:  v.GetDuration("WS_WRITE_TIMEOUT"),
			RelayBuffer:   v.GetInt("RELAY_BUFFER"),
		},
		Cache: CacheConfig{
			Enabled: v.GetBool("CACHE_ENABLED"),
			TTL:     v.GetDuration("CACHE_TTL"),
		},
		Logging: LoggingConfig{
			Level:     v.GetString("LOG_LEVEL"),
			Format:    v.GetString("LOG_FORMAT"),
			Directory: v.GetString("LOG_DIR"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the gateway cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("PORT must not be empty"))
	}
	switch c.Broker.Driver {
	case "redis", "memory":
	case "kafka":
		if len(c.Broker.Kafka.Brokers) == 0 {
			errs = append(errs, errors.New("KAFKA_BROKERS is required for the kafka driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown BROKER_DRIVER %q", c.Broker.Driver))
	}
	if c.Broker.ReconnectMin <= 0 || c.Broker.ReconnectMax < c.Broker.ReconnectMin {
		errs = append(errs, errors.New("BROKER_RECONNECT_MIN must be positive and not above BROKER_RECONNECT_MAX"))
	}
	for name, period := range map[string]time.Duration{
		"PROPERTY_PERIOD":       c.Producer.PropertyPeriod,
		"MARKET_PERIOD":         c.Producer.MarketPeriod,
		"INFRASTRUCTURE_PERIOD": c.Producer.InfrastructurePeriod,
		"PRODUCER_TIMEOUT":      c.Producer.Timeout,
		"WS_PROBE_INTERVAL":     c.Websocket.ProbeInterval,
		"WS_WRITE_TIMEOUT":      c.Websocket.WriteTimeout,
	} {
		if period <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	switch c.Producer.Source {
	case "synthetic":
	case "http":
		if c.Producer.UpstreamURL == "" {
			errs = append(errs, errors.New("DATA_INFRASTRUCTURE_URL is required for the http source"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown PRODUCER_SOURCE %q", c.Producer.Source))
	}
	if c.Producer.MaxAttempts <= 0 {
		errs = append(errs, errors.New("PRODUCER_MAX_ATTEMPTS must be positive"))
	}
	if c.Websocket.SendBuffer <= 0 || c.Websocket.RelayBuffer <= 0 {
		errs = append(errs, errors.New("WS_SEND_BUFFER and RELAY_BUFFER must be positive"))
	}
	if c.Cache.Enabled && c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("CACHE_TTL must be positive"))
	}
	return errors.Join(errs...)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
