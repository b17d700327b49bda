package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	mqcontracts "interruptd/contracts/mq"
	"interruptd/internal/config"
	"interruptd/internal/ledger"
	"interruptd/internal/mqhandler"
	"interruptd/internal/repository"
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

const (
	serviceName     = "interruptd-worker"
	maxRetries      = 3
	activityQueue   = "activity.q"
	invalidateQueue = "insight.invalidate.q"
)

type queue struct {
	name        string
	routingKeys []string
	handler     mq.MessageHandler
}

func main() {
	cfg, err := config.Load("config")
	if err != nil {
		logger.NewLogger().Fatal("Failed to load config", zap.Error(err))
	}

	log := logger.NewLogger(cfg.Log.Level)
	defer log.Sync()

	log.Info("Starting interruptd worker...")

	shutdownTracing, err := otel.Init(serviceName, cfg.Otel, log)
	if err != nil {
		log.Fatal("Failed to init tracing", zap.Error(err))
	}
	defer shutdownTracing()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis
	rdb := redis.NewRedisClient(cfg.Redis)
	defer rdb.Close()
	if err := redis.Ping(ctx, rdb, 2*time.Second); err != nil {
		log.Warn("Redis unavailable at startup, retries are unbounded until it recovers", zap.Error(err))
	}
	retryCounter := util.NewRetryCounter(rdb, time.Hour)

	// DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB connection failed", zap.Error(err))
	}
	defer dbConn.Close()

	store := repository.NewStore(dbConn, outbox.NewRepository(dbConn), log)

	index := ledger.NewIndex(cfg.Tracking.Year, cfg.Tracking.MaxOrdinal, cfg.Location(), nil)
	registry := pattern.NewRegistry(store, index, log)
	// worker 只做缓存失效，不需要 generator
	insights := insight.NewService(registry, nil, insight.NewRedisCache(rdb), index, cfg.Insight, log)

	queues := []queue{
		{
			name:        activityQueue,
			routingKeys: []string{"#"},
			handler:     mqhandler.NewActivityHandler(store, log).Handle,
		},
		{
			name: invalidateQueue,
			routingKeys: []string{
				mqcontracts.RoutingDayLogged,
				mqcontracts.RoutingDayCleared,
				mqcontracts.RoutingPatternUpdated,
			},
			handler: mqhandler.NewInsightInvalidationHandler(insights, log).Handle,
		},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, q := range queues {
		log.Info("Init consumer",
			zap.String("queue", q.name),
			zap.Strings("routing_keys", q.routingKeys),
		)
		consumer, err := mq.NewConsumer(cfg.MQ.URL, q.name, q.routingKeys, log)
		if err != nil {
			log.Fatal("Consumer init failed", zap.String("queue", q.name), zap.Error(err))
		}
		defer consumer.Close()

		consumer.SetHandler(q.handler)
		consumer.WithAttemptCounter(retryCounter, maxRetries)

		name := q.name
		g.Go(func() error {
			if err := consumer.StartConsuming(gctx); err != nil {
				log.Error("Consumer stopped with error", zap.String("queue", name), zap.Error(err))
				return err
			}
			return nil
		})
	}

	log.Info("Worker running")
	if err := g.Wait(); err != nil {
		log.Error("Worker exited", zap.Error(err))
		return
	}
	log.Info("Worker shutdown complete")
}
