package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/kursadbilgin/publish-engine/internal/config"
	"github.com/kursadbilgin/publish-engine/internal/domain"
	"github.com/kursadbilgin/publish-engine/internal/handler"
	"github.com/kursadbilgin/publish-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/publish-engine/internal/infra/redis"
	"github.com/kursadbilgin/publish-engine/internal/notify"
	"github.com/kursadbilgin/publish-engine/internal/observability"
	"github.com/kursadbilgin/publish-engine/internal/platform"
	"github.com/kursadbilgin/publish-engine/internal/queue"
	"github.com/kursadbilgin/publish-engine/internal/ratelimit"
	"github.com/kursadbilgin/publish-engine/internal/repository"
	"github.com/kursadbilgin/publish-engine/internal/service"
	"github.com/kursadbilgin/publish-engine/internal/transport"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// app holds the wired engine. Redis and RabbitMQ are optional: without redis
// the rate limiter and delayed retry queue stay in process, without RabbitMQ
// auto-publish runs inline and no job workers start.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	sqlDB    *sql.DB
	rdb      *redis.Client
	rabbit   *queue.RabbitMQ
	consumer *queue.RabbitMQConsumer
	events   *queue.RabbitMQPublisher

	metrics      *observability.Metrics
	orchestrator *service.Orchestrator
	retries      *service.RetryService
	gate         *service.ApprovalGate
	auto         *service.AutoPublisher
}

func newApp(cfg *config.Config, logger *zap.Logger, migrate bool) (*app, error) {
	a := &app{cfg: cfg, logger: logger, metrics: observability.NewMetrics()}

	db, err := openDatabase(cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres initialization failed: %w", err)
	}
	if migrate {
		if err := migrations.Migrate(db); err != nil {
			return nil, fmt.Errorf("database migrations failed: %w", err)
		}
	}
	a.sqlDB, err = db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres underlying db init failed: %w", err)
	}

	var (
		limiter ratelimit.RateLimiter = ratelimit.NewLocalRateLimiter(cfg.RateLimitPerSec)
		delays  queue.DelayQueue      = queue.NewMemoryDelayQueue()
	)
	if cfg.RedisURL != "" {
		if a.rdb, err = infraredis.NewRedis(cfg.RedisURL); err != nil {
			a.close()
			return nil, fmt.Errorf("redis initialization failed: %w", err)
		}
		if limiter, err = infraredis.NewRedisRateLimiter(a.rdb, cfg.RateLimitPerSec); err != nil {
			a.close()
			return nil, err
		}
		if delays, err = infraredis.NewRedisDelayQueue(a.rdb, ""); err != nil {
			a.close()
			return nil, err
		}
	}

	notifiers := notify.Multi{notify.NewLogNotifier(logger)}
	var jobs queue.Publisher
	if cfg.RabbitMQURL != "" {
		if a.rabbit, err = queue.NewRabbitMQ(cfg.RabbitMQURL); err != nil {
			a.close()
			return nil, fmt.Errorf("rabbitmq initialization failed: %w", err)
		}
		a.events = queue.NewRabbitMQPublisher(a.rabbit)
		a.consumer = queue.NewRabbitMQConsumer(a.rabbit, cfg.PublishConcurrency, logger)
		jobs = a.events
		notifiers = append(notifiers, notify.NewAMQPNotifier(a.events))
	}

	registry, err := newRegistry(cfg.WebhookEndpoint)
	if err != nil {
		a.close()
		return nil, err
	}

	var (
		contents     = repository.NewGormContentRepo(db)
		projects     = repository.NewGormProjectRepo(db)
		platforms    = repository.NewGormPlatformRepo(db)
		publications = repository.NewGormPublicationRepo(db)
		attempts     = repository.NewGormAttemptRepo(db)
		approvals    = repository.NewGormApprovalRepo(db)
	)

	a.orchestrator, err = service.NewOrchestrator(service.OrchestratorDeps{
		Contents:     contents,
		Platforms:    platforms,
		Publications: publications,
		Attempts:     attempts,
		Registry:     registry,
		Formatter:    platform.PassthroughFormatter{},
		RateLimiter:  limiter,
		Notifier:     notifiers,
	}, cfg.PublishConcurrency, cfg.AutoRetry, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	a.orchestrator.SetMetrics(a.metrics)

	a.retries, err = service.NewRetryService(publications, platforms, a.orchestrator, delays, cfg.RetryScanLimit, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	a.retries.SetMetrics(a.metrics)
	a.orchestrator.SetRetryScheduler(a.retries)

	a.gate, err = service.NewApprovalGate(approvals, contents, platforms, a.orchestrator, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	a.gate.SetMetrics(a.metrics)

	a.auto, err = service.NewAutoPublisher(contents, projects, platforms, a.gate, a.orchestrator, jobs, logger)
	if err != nil {
		a.close()
		return nil, err
	}

	logger.Info("publish engine wired",
		zap.Bool("redis", a.rdb != nil),
		zap.Bool("rabbitmq", a.rabbit != nil),
		zap.Int("concurrency", cfg.PublishConcurrency),
		zap.Bool("auto_retry", cfg.AutoRetry),
	)
	return a, nil
}

// newRegistry routes webhook targets to the webhook publisher. With a relay
// endpoint configured every other platform type is delivered through it too.
func newRegistry(endpoint string) (*platform.Registry, error) {
	webhook, err := platform.NewWebhookPublisher(endpoint)
	if err != nil {
		return nil, err
	}

	registry := platform.NewRegistry()
	if err := registry.Register(domain.PlatformWebhook, webhook); err != nil {
		return nil, err
	}
	if endpoint == "" {
		return registry, nil
	}
	for _, platformType := range domain.PlatformTypes() {
		if platformType == domain.PlatformWebhook {
			continue
		}
		if err := registry.Register(platformType, webhook); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func (a *app) serve(ctx context.Context) error {
	scanner, err := service.NewRetryScanner(a.retries, a.cfg.RetryScanInterval(), a.logger)
	if err != nil {
		return err
	}
	expirer, err := service.NewApprovalExpirer(a.gate, a.cfg.ApprovalScanInterval(), a.logger)
	if err != nil {
		return err
	}

	api := fiber.New(fiber.Config{
		AppName:      "publish-engine",
		ErrorHandler: transport.ErrorHandler(a.logger),
	})
	api.Use(recover.New())
	api.Use(requestid.New())
	api.Use(a.metrics.HTTPMiddleware())
	api.Get("/metrics", adaptor.HTTPHandler(a.metrics.Handler()))
	handler.RegisterHealthRoutes(api, a.sqlDB, a.rdb)
	if err := handler.RegisterPublishRoutes(api, a.orchestrator, a.retries, a.gate, a.auto); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("publish engine api started", zap.Int("port", a.cfg.APIPort))
		return api.Listen(fmt.Sprintf(":%d", a.cfg.APIPort))
	})
	g.Go(func() error {
		<-gctx.Done()
		return api.ShutdownWithTimeout(shutdownTimeout)
	})
	g.Go(func() error { return scanner.Start(gctx) })
	g.Go(func() error { return expirer.Start(gctx) })
	if a.consumer != nil {
		worker, err := service.NewWorkerService(a.consumer, a.orchestrator, a.cfg.PublishConcurrency, a.logger)
		if err != nil {
			return err
		}
		g.Go(func() error { return ignoreCanceled(worker.Start(gctx)) })
	}

	err = g.Wait()
	a.logger.Info("publish engine stopped", zap.Error(err))
	return ignoreCanceled(err)
}

func (a *app) close() {
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.events != nil {
		_ = a.events.Close()
	}
	if a.rabbit != nil {
		_ = a.rabbit.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.sqlDB != nil {
		_ = a.sqlDB.Close()
	}
}
