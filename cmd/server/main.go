package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"propertyFeedWs/internal/config"
	feeds "propertyFeedWs/internal/modules/feeds/domain"
	feedport "propertyFeedWs/internal/modules/feeds/application/port"
	feedusecase "propertyFeedWs/internal/modules/feeds/application/usecase"
	feedinfra "propertyFeedWs/internal/modules/feeds/infrastructure"
	"propertyFeedWs/internal/modules/realtime/application/handler"
	"propertyFeedWs/internal/modules/realtime/application/port"
	"propertyFeedWs/internal/modules/realtime/application/usecase"
	"propertyFeedWs/internal/modules/realtime/domain"
	"propertyFeedWs/internal/modules/realtime/infrastructure"
	transport "propertyFeedWs/internal/modules/realtime/interface"
	"propertyFeedWs/internal/platform/broker"
	"propertyFeedWs/internal/platform/metrics"
	"propertyFeedWs/internal/shared/logging"
	"propertyFeedWs/internal/shared/normalization"
)

func main() {
	// Attempt to load variables from .env so local runs honour configuration tweaks.
	if err := godotenv.Overload(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, ".env load warning: %v\n", err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	logFile, logger, err := setupLogging(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging setup error: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()
	slog.SetDefault(logger)
	slog.Info("logging initialized", slog.String("directory", cfg.Logging.Directory), slog.String("level", cfg.Logging.Level), slog.String("format", cfg.Logging.Format))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		slog.Error("gateway stopped with error", slog.Any("error", err))
		logFile.Close()
		os.Exit(1)
	}
	slog.Info("gateway stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	m := metrics.New()

	driver, err := broker.NewDriver(broker.Options{
		Driver:        cfg.Broker.Driver,
		RedisAddr:     cfg.Broker.Redis.Addr(),
		RedisPassword: cfg.Broker.Redis.Password,
		RedisDB:       cfg.Broker.Redis.DB,
		KafkaBrokers:  cfg.Broker.Kafka.Brokers,
		KafkaGroupID:  cfg.Broker.Kafka.GroupID,
	})
	if err != nil {
		return err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = driver.Ping(pingCtx)
	cancel()
	if err != nil {
		_ = driver.Close()
		return fmt.Errorf("broker unreachable: %w", err)
	}
	slog.Info("broker connected", slog.String("driver", driver.Name()), slog.Any("kafkaBrokers", cfg.Broker.Kafka.Brokers), slog.String("redis", cfg.Broker.Redis.Addr()))

	bridge := broker.NewBridge(driver, m, logging.Component(logger, "bridge"), cfg.Broker.ReconnectMin, cfg.Broker.ReconnectMax)
	defer bridge.Close()

	cache := newEventCache(cfg, driver)

	// Gateway
	hub := infrastructure.NewHub(m, logging.Component(logger, "hub"))
	commands := infrastructure.NewCommandProcessor(hub, m)
	broadcastUC := usecase.NewBroadcastUseCase(hub)
	transformer := usecase.NewTransformer(normalization.DefaultFormatter())

	registry := infrastructure.NewHandlerRegistry()
	for _, ch := range domain.Channels() {
		registry.Register(handler.NewChannelStreamHandler(ch, transformer, broadcastUC, cache, m, logging.Component(logger, "stream")))
	}
	relay := infrastructure.NewRelay(registry, cfg.Websocket.RelayBuffer, logging.Component(logger, "relay"))
	if _, err := bridge.Subscribe("*-updates", func(ctx context.Context, ch domain.Channel, payload []byte) {
		relay.Deliver(ctx, ch, payload)
	}); err != nil {
		return err
	}

	// Producers
	scheduler, err := feedusecase.NewScheduler(newSource(cfg), bridge, jobs(cfg), feedusecase.Options{
		MaxAttempts:    uint(cfg.Producer.MaxAttempts),
		AttemptTimeout: cfg.Producer.Timeout,
		FireOnStart:    cfg.Producer.FireOnStart,
	}, m, logging.Component(logger, "scheduler"))
	if err != nil {
		return err
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.Logger.SetOutput(log.Writer())
	transport.Register(e, transport.Routes{
		Hub:          hub,
		Commands:     commands,
		SendBuffer:   cfg.Websocket.SendBuffer,
		WriteTimeout: cfg.Websocket.WriteTimeout,
		Cache:        cache,
		Trigger:      scheduler,
		Metrics:      m.Handler(),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", slog.String("port", cfg.Server.Port))
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		relay.Run(gctx)
		return nil
	})
	g.Go(func() error {
		hub.RunLiveness(gctx, cfg.Websocket.ProbeInterval)
		return nil
	})
	g.Go(func() error {
		return bridge.Run(gctx)
	})
	g.Go(func() error {
		select {
		case <-bridge.Subscribed():
		case <-gctx.Done():
			return nil
		}
		scheduler.Start(gctx)
		<-gctx.Done()
		scheduler.Stop()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		hub.Close()
		return e.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func jobs(cfg *config.Config) []feeds.Job {
	return []feeds.Job{
		{Kind: domain.KindProperty, Period: cfg.Producer.PropertyPeriod},
		{Kind: domain.KindMarket, Period: cfg.Producer.MarketPeriod},
		{Kind: domain.KindInfrastructure, Period: cfg.Producer.InfrastructurePeriod},
	}
}

func newSource(cfg *config.Config) feedport.Source {
	if cfg.Producer.Source == "http" {
		return feedinfra.NewHTTPSource(cfg.Producer.UpstreamURL, cfg.Producer.Timeout, nil)
	}
	return feedinfra.NewSyntheticSource(0)
}

func newEventCache(cfg *config.Config, driver broker.Driver) port.EventCache {
	if !cfg.Cache.Enabled {
		return nil
	}
	if redisDriver, ok := driver.(*broker.RedisDriver); ok {
		return infrastructure.NewRedisEventCache(redisDriver.Client(), cfg.Cache.TTL)
	}
	return infrastructure.NewMemoryEventCache(cfg.Cache.TTL)
}

func setupLogging(cfg config.LoggingConfig) (*os.File, *slog.Logger, error) {
	dir := cfg.Directory
	if dir == "" {
		dir = "./logs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	fileName := filepath.Join(dir, time.Now().UTC().Format("2006-01-02")+".log")
	file, err := os.OpenFile(fileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	writer := io.MultiWriter(os.Stdout, file)
	logger := logging.New(writer, logging.Config{
		Level:     cfg.Level,
		Format:    cfg.Format,
		AddSource: true,
	})
	log.SetOutput(writer)
	log.SetFlags(0)
	log.SetPrefix("")

	return file, logger, nil
}
