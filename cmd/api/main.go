package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/iam-service/internal/api/http"
	"github.com/spec-kit/iam-service/internal/api/http/handlers"
	"github.com/spec-kit/iam-service/internal/auth"
	"github.com/spec-kit/iam-service/internal/config"
	"github.com/spec-kit/iam-service/internal/events"
	"github.com/spec-kit/iam-service/internal/gateway"
	"github.com/spec-kit/iam-service/internal/observability"
	"github.com/spec-kit/iam-service/internal/persistence"
	"github.com/spec-kit/iam-service/internal/relation"
	"github.com/spec-kit/iam-service/internal/service"
	"github.com/spec-kit/iam-service/internal/store"
	"github.com/spec-kit/iam-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger,
		zap.String("service", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("env", cfg.App.Env),
	)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	hasher := auth.NewPasswordHasher(cfg.Auth.BcryptCost)
	deps := map[string]handlers.Pinger{}

	var gw gateway.Gateway
	if pool := pg.PoolHandle(); pool != nil {
		gw = gateway.NewPostgres(pool, hasher, cfg.IAM.GatewayTimeout())
		deps["postgres"] = pg
	} else {
		logger.Warn("no database configured; using in-memory system of record")
		mem := gateway.NewMemory(hasher)
		mem.SeedDefaults(cfg.IAM.SystemRoleName)
		gw = mem
	}

	dispatcher := events.NewInMemoryDispatcher()
	if redis != nil {
		worker.StartEventRelay(dispatcher, worker.NewEventRelay(redis, cfg.Redis.EventsChannel, logger))
		deps["redis"] = redis
	}

	metrics := observability.NewMetrics()
	iam := service.NewIAMService(cfg.IAM, service.Dependencies{
		Store:        store.New(),
		Gateway:      gw,
		Synchronizer: relation.NewSynchronizer(logger),
		Dispatcher:   dispatcher,
		Metrics:      metrics,
		Logger:       logger,
	})

	go loadUntilReady(ctx, iam, logger)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, iam.Loaded, deps).WithMetrics(metrics),
		Users:          handlers.NewUsersHandler(iam),
		Roles:          handlers.NewRolesHandler(iam),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, cfg.Auth.Require),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

// loadUntilReady hydrates the entity store, retrying with a capped backoff
// until it succeeds. Readiness reports "not loaded" and commands answer
// Transient until then.
func loadUntilReady(ctx context.Context, iam *service.IAMService, logger *zap.Logger) {
	for attempt := 1; ; attempt++ {
		err := iam.Load(ctx)
		if err == nil {
			return
		}
		wait := time.Duration(min(attempt, 6)) * 5 * time.Second
		logger.Warn("entity store load failed", zap.Int("attempt", attempt), zap.Duration("retry_in", wait), zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
