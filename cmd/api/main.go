package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/issue-tracker/internal/api/http"
	"github.com/spec-kit/issue-tracker/internal/api/http/handlers"
	"github.com/spec-kit/issue-tracker/internal/auth"
	"github.com/spec-kit/issue-tracker/internal/config"
	"github.com/spec-kit/issue-tracker/internal/events"
	"github.com/spec-kit/issue-tracker/internal/observability"
	"github.com/spec-kit/issue-tracker/internal/persistence"
	"github.com/spec-kit/issue-tracker/internal/ratelimit"
	"github.com/spec-kit/issue-tracker/internal/repository"
	"github.com/spec-kit/issue-tracker/internal/service"
	"github.com/spec-kit/issue-tracker/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
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
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	issueRepo := repository.NewIssueRepository(pool)

	limiter := ratelimit.NewRedisLimiter(redis.Client, logger, cfg.RateLimit.LoginMaxFailures, cfg.RateLimit.LoginWindow())

	dispatcher := events.NewInMemoryDispatcher()
	notificationService := service.NewNotificationService(dispatcher, logger)
	worker.StartNotificationWorker(notificationService)

	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		UserRepo: userRepo,
		Limiter:  limiter,
	})
	issueService := service.NewIssueService(service.IssueDependencies{
		IssueRepo:  issueRepo,
		Dispatcher: dispatcher,
	})
	authMiddleware := auth.NewMiddleware(authService.TokenManager())

	metrics := observability.NewMetrics()

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	healthHandler := handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis)
	authHandler := handlers.NewAuthHandler(authService, cfg.App.IsProduction())
	issuesHandler := handlers.NewIssuesHandler(issueService)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         healthHandler,
		Auth:           authHandler,
		Issues:         issuesHandler,
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
