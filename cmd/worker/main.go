package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-engine/internal/bus"
	"github.com/spec-kit/support-engine/internal/channel"
	"github.com/spec-kit/support-engine/internal/config"
	"github.com/spec-kit/support-engine/internal/domain"
	"github.com/spec-kit/support-engine/internal/events"
	"github.com/spec-kit/support-engine/internal/observability"
	"github.com/spec-kit/support-engine/internal/persistence"
	"github.com/spec-kit/support-engine/internal/repository"
	"github.com/spec-kit/support-engine/internal/responder"
	"github.com/spec-kit/support-engine/internal/service"
	"github.com/spec-kit/support-engine/internal/worker"
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
	deliveryRepo := repository.NewDeliveryRepository(pool)
	metricsRepo := repository.NewMetricsRepository(pool)
	deadLetterRepo := repository.NewDeadLetterRepository(pool)

	dispatcher := events.NewInMemoryDispatcher(logger)
	metrics := observability.NewMetrics()

	streamBus := bus.NewRedisStreamBus(redis.ClientHandle(), logger, time.Duration(cfg.Bus.BlockSeconds)*time.Second)

	locker := service.NewRedisLocker(redis.ClientHandle(), 10*time.Second)
	identityService := service.NewIdentityService(customerRepo, locker, logger)
	sessionService := service.NewSessionService(conversationRepo, dispatcher, cfg.Pipeline.ContinuityWindow(), logger)
	ticketService := service.NewTicketService(ticketRepo, dispatcher, cfg.Pipeline, logger)

	senders := channel.NewSenderRegistry(
		channel.NewLogSender(domain.ChannelEmail, logger),
		channel.NewLogSender(domain.ChannelChat, logger),
		channel.NewLogSender(domain.ChannelWebForm, logger),
	)
	deliveryService := service.NewDeliveryService(deliveryRepo, messageRepo, senders, dispatcher, cfg.Delivery, logger)

	notifications := service.NewNotificationService(dispatcher, streamBus, metricsRepo, cfg.Bus, logger)
	notifications.RegisterHandlers()

	ingestion := worker.NewIngestionWorker(worker.Dependencies{
		Bus:         streamBus,
		Normalizer:  channel.NewNormalizer(),
		Identity:    identityService,
		Sessions:    sessionService,
		Tickets:     ticketService,
		Delivery:    deliveryService,
		Responder:   responder.NewHTTPResponder(cfg.Responder.URL, cfg.Responder.Timeout()),
		Messages:    messageRepo,
		DeadLetters: deadLetterRepo,
		Dispatcher:  dispatcher,
		Metrics:     metrics,
	}, cfg.Bus, cfg.Pipeline, logger)

	go func() {
		if err := ingestion.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("ingestion worker stopped", zap.Error(err))
		}
	}()

	logger.Info("ingestion worker started",
		zap.String("stream", cfg.Bus.InboundStream),
		zap.String("group", cfg.Bus.ConsumerGroup),
		zap.Int("workers", cfg.Bus.WorkerCount))

	waitForShutdown(logger)
	cancel()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
