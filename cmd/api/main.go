package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"interruptd/internal/config"
	"interruptd/internal/handler"
	"interruptd/internal/httpserver"
	"interruptd/internal/ledger"
	"interruptd/internal/repository"
	"interruptd/internal/service/auth"
	"interruptd/internal/service/billing"
	"interruptd/internal/service/insight"
	"interruptd/internal/service/pattern"
	"interruptd/pkg/db"
	"interruptd/pkg/logger"
	"interruptd/pkg/mq"
	"interruptd/pkg/otel"
	"interruptd/pkg/outbox"
	"interruptd/pkg/redis"
	"interruptd/pkg/util"
)

const serviceName = "interruptd-api"

func main() {
	cfg, err := config.Load("config")
	if err != nil {
		logger.NewLogger().Fatal("Failed to load config", zap.Error(err))
	}

	log := logger.NewLogger(cfg.Log.Level)
	defer log.Sync()

	log.Info("Starting interruptd api...",
		zap.String("port", cfg.Server.Port),
		zap.String("db_host", cfg.DB.Host),
		zap.Int("tracking_year", cfg.Tracking.Year),
		zap.String("timezone", cfg.Tracking.Timezone),
	)

	shutdownTracing, err := otel.Init(serviceName, cfg.Otel, log)
	if err != nil {
		log.Fatal("Failed to init tracing", zap.Error(err))
	}
	defer shutdownTracing()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	if _, err := db.Migrate(ctx, dbConn, log); err != nil {
		log.Fatal("Migration failed", zap.Error(err))
	}

	// Redis
	rdb := redis.NewRedisClient(cfg.Redis)
	defer rdb.Close()
	if err := redis.Ping(ctx, rdb, 2*time.Second); err != nil {
		// 缓存和去重降级运行
		log.Warn("Redis unavailable at startup", zap.Error(err))
	}
	deduper := util.NewDeduper(rdb, 72*time.Hour, log)

	// MQ
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	// Outbox
	outboxRepo := outbox.NewRepository(dbConn)
	replayService := outbox.NewReplayService(outboxRepo, publisher, log)
	dispatcher := outbox.NewDispatcher(outboxRepo, publisher, log)
	go dispatcher.Start(ctx)

	// Services
	store := repository.NewStore(dbConn, outboxRepo, log)
	index := ledger.NewIndex(cfg.Tracking.Year, cfg.Tracking.MaxOrdinal, cfg.Location(), nil)

	registry := pattern.NewRegistry(store, index, log)
	authService := auth.NewService(store, registry, cfg.JWT, log)
	billingService := billing.NewService(store, deduper, cfg.Billing.WebhookSecret, log)

	generator, err := insight.NewGenerator(ctx, cfg.Insight)
	if err != nil {
		log.Fatal("Failed to init insight generator", zap.Error(err))
	}
	if generator == nil {
		log.Warn("No insight provider configured, serving fallback texts")
	}
	insightService := insight.NewService(registry, generator, insight.NewRedisCache(rdb), index, cfg.Insight, log)

	// Router
	router := httpserver.NewRouter(httpserver.Handlers{
		Auth:     handler.NewAuthHandler(authService, log),
		Patterns: handler.NewPatternHandler(registry, log),
		Billing:  handler.NewBillingHandler(billingService, log),
		Insights: handler.NewInsightHandler(insightService, log),
		Activity: handler.NewActivityHandler(store, log),
		Admin:    handler.NewAdminHandler(replayService, log),
	}, cfg.JWT.Secret, store, publisher, log)

	srv := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 优雅退出处理
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down interruptd api gracefully...")

	// 停止 outbox dispatcher
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}

	log.Info("interruptd api shutdown complete")
}
