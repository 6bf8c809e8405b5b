package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/support-chat-service/internal/api/http"
	"github.com/spec-kit/support-chat-service/internal/api/http/handlers"
	"github.com/spec-kit/support-chat-service/internal/auth"
	"github.com/spec-kit/support-chat-service/internal/config"
	"github.com/spec-kit/support-chat-service/internal/events"
	"github.com/spec-kit/support-chat-service/internal/gateway"
	"github.com/spec-kit/support-chat-service/internal/journal"
	"github.com/spec-kit/support-chat-service/internal/limiter"
	"github.com/spec-kit/support-chat-service/internal/observability"
	"github.com/spec-kit/support-chat-service/internal/persistence"
	"github.com/spec-kit/support-chat-service/internal/repository"
	"github.com/spec-kit/support-chat-service/internal/service"
	"github.com/spec-kit/support-chat-service/internal/worker"
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
	sessionRepo := repository.NewChatSessionRepository(pool)
	messageRepo := repository.NewChatMessageRepository(pool)
	customerRepo := repository.NewCustomerRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	staffRepo := repository.NewStaffRepository(pool)

	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()

	chatService := service.NewChatService(service.ChatDependencies{
		SessionRepo:  sessionRepo,
		MessageRepo:  messageRepo,
		CustomerRepo: customerRepo,
		OrderRepo:    orderRepo,
		Dispatcher:   dispatcher,
	})
	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		CustomerRepo: customerRepo,
		StaffRepo:    staffRepo,
	})
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), customerRepo, staffRepo)

	eventJournal, err := journal.New(cfg.Kafka, logger)
	if err != nil {
		logger.Warn("kafka journal unavailable", zap.Error(err))
	}
	defer eventJournal.Close() //nolint:errcheck
	journalPump := worker.StartJournalPump(dispatcher, eventJournal, logger)
	defer journalPump.Stop()

	presence := gateway.NewPresence(redis.Client, cfg.Chat.PresenceTTL(), logger)
	hub := gateway.NewHub(presence, logger, metrics)
	gateway.NewBridge(hub, dispatcher, logger)
	gatewayHandler := gateway.NewHandler(chatService, hub, logger, metrics, cfg.Chat.ClientBufferSize)

	messageLimiter := limiter.New(redis.Client, cfg.Chat.MessageRateLimit, cfg.Chat.MessageRateWindow())

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Auth:           handlers.NewAuthHandler(authService),
		Chat:           handlers.NewChatHandler(chatService, messageLimiter),
		Gateway:        gatewayHandler,
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
