package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"golang.org/x/sync/errgroup"

	"opsflow/internal/api"
	"opsflow/internal/automation"
	"opsflow/internal/config"
	"opsflow/internal/constants"
	"opsflow/internal/entities"
	"opsflow/internal/logger"
	"opsflow/pkg/bootstrap"
	"opsflow/pkg/health"
	"opsflow/pkg/logging"
	"opsflow/pkg/metrics"
	"opsflow/pkg/middleware"
	"opsflow/pkg/ratelimit"
	"opsflow/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	stores         *bootstrap.Stores
	router         *gin.Engine
	server         *http.Server
	tracerProvider *tracing.TracerProvider
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	ctx = logging.WithServiceName(ctx, constants.ServiceNameAPI)

	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceNameAPI)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterAutomationMetrics()
	metrics.RegisterEntityMetrics()
	metrics.RegisterAPIMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	stores, err := a.dbConnector.ConnectStores(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.stores = stores

	if len(a.Config.Broker.Kafka.Brokers) > 0 {
		if err := a.InitProducer(); err != nil {
			a.Logger.WarnwCtx(ctx, "Failed to create event producer, replay disabled", "error", err)
		} else {
			metrics.RegisterBrokerMetrics()
		}
	}

	if err := a.initRouter(ctx); err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  a.Config.Server.ReadTimeoutSeconds,
		WriteTimeout: a.Config.Server.WriteTimeoutSeconds,
	}
	return nil
}

func (a *App) initRouter(ctx context.Context) error {
	loader, err := entities.NewLoader(a.Config, a.stores.Entities(), a.Logger)
	if err != nil {
		return err
	}

	repo := automation.NewRepository(a.stores.Postgres)
	engine, err := automation.NewEngine(repo, loader, automation.ConfigFrom(a.Config.Automation), a.Logger)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(constants.ServiceNameAPI), tracing.OrgAttributes())
	}

	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.LoggerMiddleware(a.Logger))

	var limits []gin.HandlerFunc
	if a.Config.API.RateLimit.Enabled {
		rl := ratelimit.FromConfig(a.Config.API.RateLimit)
		limits = append(limits, ratelimit.RateLimitMiddleware(ctx, rl, ratelimit.ByOrgOrIP))
		a.Logger.InfowCtx(ctx, "Rate limiting enabled", "rps", rl.RPS, "burst", rl.Burst)
	}

	handler := api.NewHandler(engine, repo, a.Producer, a.Config.Broker.Kafka.EventTopic, a.Logger)
	handler.RegisterRoutes(router, limits...)

	healthRegistry := health.NewCheckerRegistry()
	a.stores.RegisterHealth(healthRegistry)

	router.GET("/health", gin.WrapH(healthRegistry))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	a.router = router
	return nil
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "Server listening", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
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

	return a.Base.Shutdown(logging.WithServiceName(ctx, constants.ServiceNameAPI), additionalShutdown)
}
