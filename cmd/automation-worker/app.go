package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"opsflow/internal/automation"
	"opsflow/internal/config"
	"opsflow/internal/constants"
	"opsflow/internal/entities"
	"opsflow/internal/logger"
	"opsflow/pkg/bootstrap"
	"opsflow/pkg/health"
	"opsflow/pkg/logging"
	"opsflow/pkg/metrics"
	"opsflow/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	stores         *bootstrap.Stores
	handler        *automation.Handler
	tracerProvider *tracing.TracerProvider
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	ctx = logging.WithServiceName(ctx, constants.ServiceNameWorker)

	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceNameWorker)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterAutomationMetrics()
	metrics.RegisterEntityMetrics()
	metrics.RegisterBrokerMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	stores, err := a.dbConnector.ConnectStores(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.stores = stores

	if err := a.initEngine(); err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}

	if err := a.InitConsumer(constants.ServiceNameWorker); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	a.initHTTPServer()
	return nil
}

func (a *App) initEngine() error {
	loader, err := entities.NewLoader(a.Config, a.stores.Entities(), a.Logger)
	if err != nil {
		return err
	}

	engine, err := automation.NewEngine(
		automation.NewRepository(a.stores.Postgres),
		loader,
		automation.ConfigFrom(a.Config.Automation),
		a.Logger,
	)
	if err != nil {
		return err
	}

	a.handler = automation.NewHandler(engine, a.Logger)
	return nil
}

func (a *App) initHTTPServer() {
	healthRegistry := health.NewCheckerRegistry()
	a.stores.RegisterHealth(healthRegistry)
	healthRegistry.Register(health.NewKafkaChecker(a.Config.Broker.Kafka.Brokers))

	mux := http.NewServeMux()
	mux.Handle("/health", healthRegistry)
	mux.Handle("/metrics", promhttp.Handler())

	a.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	topic := a.Config.Broker.Kafka.EventTopic
	g.Go(func() error {
		consumeCtx := logging.WithServiceName(gCtx, constants.ServiceNameWorker)
		a.Logger.InfowCtx(consumeCtx, "Consuming app events", "topic", topic)
		return a.Consumer.Consume(consumeCtx, topic, a.handler.HandleEvent)
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownStores(ctx, a.stores)...)
		return errs
	}

	return a.Base.Shutdown(logging.WithServiceName(ctx, constants.ServiceNameWorker), additionalShutdown)
}
