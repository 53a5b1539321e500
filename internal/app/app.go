// Package app wires the storefront service together.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/storefront/internal/config"
	"github.com/utafrali/storefront/internal/event"
	"github.com/utafrali/storefront/internal/handler"
	"github.com/utafrali/storefront/internal/productapi"
	"github.com/utafrali/storefront/internal/repository"
	"github.com/utafrali/storefront/internal/repository/memory"
	redisrepo "github.com/utafrali/storefront/internal/repository/redis"
	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/internal/view"
	"github.com/utafrali/storefront/pkg/database"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/httpclient"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/tracing"
)

const (
	// slowRedisCommand is the latency above which session store commands are logged.
	slowRedisCommand = 50 * time.Millisecond

	janitorInterval = time.Minute
)

// App wires together all dependencies and runs the storefront service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	rdb            *redis.Client
	producer       *pkgkafka.Producer
	controller     *service.DetailsController
	httpServer     *http.Server
	tracerShutdown func(context.Context) error

	// stopBackground ends the session janitor and the rate limiter's
	// eviction loop.
	stopBackground context.CancelFunc
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	renderer, err := view.New()
	if err != nil {
		_ = tracerShutdown(context.Background())
		return nil, fmt.Errorf("init page renderer: %w", err)
	}

	background, stopBackground := context.WithCancel(context.Background())
	healthHandler := health.NewHandler()

	// Page session store.
	var (
		repo repository.PageStateRepository
		rdb  *redis.Client
	)
	switch cfg.SessionStore {
	case config.StoreRedis:
		redisCfg := database.DefaultRedisConfig()
		redisCfg.Addr = cfg.RedisAddr
		redisCfg.Password = cfg.RedisPass
		redisCfg.DB = cfg.RedisDB
		rdb, err = database.NewRedisClient(ctx, redisCfg)
		if err != nil {
			stopBackground()
			_ = tracerShutdown(context.Background())
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info("connected to Redis",
			slog.String("addr", cfg.RedisAddr),
			slog.Int("db", cfg.RedisDB),
		)
		database.RegisterPoolMetrics(rdb, cfg.ServiceName)
		database.SetSlowCommandLogging(slowRedisCommand, logger)
		healthHandler.Register("redis", database.RedisChecker(rdb))
		repo = redisrepo.NewPageStateRepository(rdb, cfg.SessionTTL)
	default:
		memRepo := memory.NewPageStateRepository(cfg.SessionTTL)
		go memRepo.RunJanitor(background, janitorInterval)
		repo = memRepo
	}

	// Product API client: retries, then a circuit breaker around them.
	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = cfg.ProductAPITimeout
	httpCfg.MaxRetries = cfg.ProductAPIRetries
	breaker := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpCfg),
		httpclient.DefaultCircuitBreakerConfig("product-api"),
		logger,
	)
	products := productapi.New(cfg.ProductAPIURL, breaker, logger)
	healthHandler.RegisterNonCritical("product_api", products.Healthy)

	// Page events, published asynchronously so a slow broker never holds
	// up a page.
	var (
		producer *pkgkafka.Producer
		events   service.EventPublisher
	)
	if cfg.EventsEnabled {
		kafkaCfg := pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers)
		kafkaCfg.Async = true
		producer = pkgkafka.NewProducer(kafkaCfg, logger)
		healthHandler.RegisterNonCritical("kafka", producer.Ping)
		events = event.NewProducer(producer, cfg.EventsTopic, logger)
		logger.Info("page events enabled",
			slog.Any("brokers", cfg.KafkaBrokers),
			slog.String("topic", cfg.EventsTopic),
		)
	}

	controller := service.NewDetailsController(repo, products, logger, service.Options{
		MaxQuantity: cfg.MaxQuantity,
		Events:      events,
	})

	if cfg.ProductionLike() && !cfg.SessionCookieSecure {
		logger.Warn("session cookie is sent without the Secure attribute",
			slog.String("environment", cfg.Environment),
		)
	}

	router := handler.NewRouter(background, cfg, controller, renderer, healthHandler, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15*time.Second + cfg.RenderWait,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		rdb:            rdb,
		producer:       producer,
		controller:     controller,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
		stopBackground: stopBackground,
	}, nil
}

// Handler returns the HTTP handler served by the application.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
			slog.String("session_store", a.cfg.SessionStore),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return errors.Join(err, a.Shutdown())
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in order:
// 1. HTTP server (drain in-flight requests)
// 2. Details controller (cancel product fetches still running)
// 3. Event producer (flush queued page events)
// 4. Background loops and the session store connection
// 5. Tracer (flush pending spans)
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests.
	httpCtx, httpCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 2. Cancel page fetches; their results would have nowhere to go.
	a.logger.Info("cancelling product fetches", slog.Int("in_flight", a.controller.InFlight()))
	fetchCtx, fetchCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer fetchCancel()
	if err := a.controller.Close(fetchCtx); err != nil {
		a.logger.Error("details controller shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 3. Flush queued page events.
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 4. Stop background loops and close Redis.
	a.stopBackground()
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 5. Flush pending spans.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
