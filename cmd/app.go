package cmd

import (
	"context"
	"errors"

	"poll-decision-backend/cache"
	"poll-decision-backend/database"
	"poll-decision-backend/metrics"
	"poll-decision-backend/migrations"
	"poll-decision-backend/mq"
	"poll-decision-backend/results"
	"poll-decision-backend/service"
	"poll-decision-backend/templates"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// app holds the process-wide dependencies shared by serve and worker.
type app struct {
	db         *gorm.DB
	redis      *redis.Client
	dispatcher mq.Dispatcher
	registry   *prometheus.Registry
	metrics    *metrics.Metrics
	polls      *service.PollLifecycle
}

func newApp(ctx context.Context) (*app, error) {
	db, err := database.Open(cfg.DB, cfg.App.LogLevel, log)
	if err != nil {
		return nil, err
	}
	a := &app{db: db}
	if cfg.DB.AutoMigrate {
		if err := migrations.Run(db, log); err != nil {
			a.close()
			return nil, err
		}
	}

	a.redis, err = cache.NewRedisClient(ctx, cache.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	}, log)
	switch {
	case errors.Is(err, cache.ErrRedisNotAvailable):
		log.Info("redis not configured; using in-process locks and caches")
	case err != nil:
		a.close()
		return nil, err
	}

	var redisClient cache.RedisClient
	if a.redis != nil {
		redisClient = a.redis
	}
	a.dispatcher, err = mq.NewDispatcher(mq.Config{
		Backend:    cfg.Notifications.Backend,
		RedisQueue: cfg.Notifications.RedisQueue,
		RocketMQ: mq.RocketMQConfig{
			NameServers: cfg.Notifications.RocketNameServer,
			Group:       cfg.Notifications.RocketGroup,
			Topic:       cfg.Notifications.RocketTopic,
			Retries:     int(cfg.Notifications.MaxRetries),
			SendTimeout: cfg.Notifications.SendTimeout,
		},
	}, redisClient, log)
	if err != nil {
		a.close()
		return nil, err
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)

	l1, err := results.NewLRUCache(cfg.Polls.ResultsCacheSize)
	if err != nil {
		a.close()
		return nil, err
	}
	caches := []results.Cache{l1}
	var locker cache.Locker = cache.NewLocalLocker()
	if a.redis != nil {
		caches = append(caches, cache.NewResultsCache(a.redis, cfg.Polls.ResultsCacheTTL, log))
		locker = cache.NewDistributedLockService(a.redis)
	}

	a.polls = service.New(service.Deps{
		DB:         db,
		Templates:  templates.Default(),
		Dispatcher: a.dispatcher,
		Locker:     locker,
		Caches:     caches,
		Metrics:    a.metrics,
		Log:        log,
	}, service.Options{
		AllowRevealAfterClose: cfg.Polls.AllowRevealAfterClose,
		ClosingSoonLead:       cfg.Polls.ClosingSoonLead,
		ClosingSoonRecency:    cfg.Polls.ClosingSoonRecency,
		LockExpiry:            cfg.Polls.LockExpiry,
		DispatchRetries:       cfg.Notifications.MaxRetries,
		DispatchMaxElapsed:    cfg.Notifications.MaxRetryElapsed,
	})
	return a, nil
}

func (a *app) close() {
	if a.dispatcher != nil {
		if err := a.dispatcher.Close(); err != nil {
			log.Warn("failed to close dispatcher", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Warn("failed to close redis", zap.Error(err))
		}
	}
	database.Close(a.db, log)
}
