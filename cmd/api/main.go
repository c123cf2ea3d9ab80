package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/support-engine/internal/api/http"
	"github.com/spec-kit/support-engine/internal/api/http/handlers"
	"github.com/spec-kit/support-engine/internal/auth"
	"github.com/spec-kit/support-engine/internal/config"
	"github.com/spec-kit/support-engine/internal/observability"
	"github.com/spec-kit/support-engine/internal/persistence"
	"github.com/spec-kit/support-engine/internal/repository"
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
	customerRepo := repository.NewCustomerRepository(pool)
	conversationRepo := repository.NewConversationRepository(pool)
	messageRepo := repository.NewMessageRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	metricsRepo := repository.NewMetricsRepository(pool)
	deadLetterRepo := repository.NewDeadLetterRepository(pool)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewMiddleware(tokens)

	metrics := observability.NewMetrics()

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Auth:           handlers.NewAuthHandler(tokens, cfg.Auth),
		Customers:      handlers.NewCustomersHandler(customerRepo, conversationRepo),
		Conversations:  handlers.NewConversationsHandler(conversationRepo, messageRepo, ticketRepo),
		Metrics:        handlers.NewMetricsHandler(metricsRepo),
		DeadLetters:    handlers.NewDeadLettersHandler(deadLetterRepo),
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
