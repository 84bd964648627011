package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	httptransport "github.com/spec-kit/moving-chat/internal/api/http"
	"github.com/spec-kit/moving-chat/internal/api/http/handlers"
	"github.com/spec-kit/moving-chat/internal/auth"
	"github.com/spec-kit/moving-chat/internal/backend"
	"github.com/spec-kit/moving-chat/internal/chat"
	"github.com/spec-kit/moving-chat/internal/config"
	"github.com/spec-kit/moving-chat/internal/events"
	"github.com/spec-kit/moving-chat/internal/observability"
	"github.com/spec-kit/moving-chat/internal/persistence"
	"github.com/spec-kit/moving-chat/internal/repository"
	"github.com/spec-kit/moving-chat/internal/service"
	"github.com/spec-kit/moving-chat/internal/worker"
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

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	var readCursors repository.ReadCursorRepository
	if pg.Enabled() {
		readCursors = repository.NewReadCursorRepository(pg.PoolHandle())
		cursorWorker := worker.NewReadCursorWorker(readCursors, logger, 0)
		cursorWorker.Register(dispatcher)
		go cursorWorker.Run(ctx)
	}

	service.NewNotificationService(dispatcher, logger, cfg.Notification).RegisterHandlers()

	chatService := service.NewChatService(service.ChatDependencies{
		Backend:       backend.NewHTTPClient(cfg.Backend, logger),
		Conversations: repository.NewConversationCache(redis.Client, cfg.Chat.ConversationCacheTTL()),
		ReadCursors:   readCursors,
		Logger:        logger,
		Session: chat.Options{
			PollInterval:    cfg.Chat.PollInterval(),
			PollMaxPages:    cfg.Chat.PollMaxPages,
			ScrollThreshold: float64(cfg.Chat.ScrollThresholdPx),
			Drafts:          repository.NewDraftCache(redis.Client, cfg.Chat.DraftTTL()),
			Metrics:         metrics,
			Dispatcher:      dispatcher,
		},
	})
	defer chatService.Shutdown()

	go worker.RunSessionReaper(ctx, chatService, time.Minute, cfg.Chat.SessionIdleTimeout())

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)

	app := httptransport.NewApp(cfg.App.Name, cfg.App.BodyLimitBytes)
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	dependencies := map[string]handlers.Pinger{"redis": redis}
	if pg.Enabled() {
		dependencies["postgres"] = pg
	}

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, dependencies, chatService, metrics),
		Chat:           handlers.NewChatHandler(chatService, cfg.Chat),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
	cancel()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
